package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"fiatramp/internal/middleware"
)

// AdminAuthHandler serves the admin login endpoint.
type AdminAuthHandler struct {
	auth   *middleware.AdminAuth
	logger *logrus.Logger
}

// NewAdminAuthHandler creates the admin login handler.
func NewAdminAuthHandler(auth *middleware.AdminAuth, logger *logrus.Logger) *AdminAuthHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AdminAuthHandler{auth: auth, logger: logger}
}

type adminLoginBody struct {
	Password string `json:"password"`
	TOTPCode string `json:"totpCode"`
}

// Login handles POST /admin/login: password + TOTP in, bearer JWT out.
func (h *AdminAuthHandler) Login(c *gin.Context) {
	var body adminLoginBody
	if err := c.ShouldBindJSON(&body); err != nil {
		envelope(c, http.StatusBadRequest, false, "invalid request body: "+err.Error(), nil)
		return
	}

	token, err := h.auth.Login(body.Password, body.TOTPCode)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"remote_addr": c.ClientIP(),
			"error":       err.Error(),
		}).Warn("admin login failed")
		envelope(c, http.StatusUnauthorized, false, "invalid credentials", nil)
		return
	}

	envelope(c, http.StatusOK, true, "login successful", gin.H{"token": token})
}
