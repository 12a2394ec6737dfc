package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"fiatramp/internal/session"
)

// SessionHandler serves the session-clear endpoint.
type SessionHandler struct {
	sessions *session.Store
	logger   *logrus.Logger
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(sessions *session.Store, logger *logrus.Logger) *SessionHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &SessionHandler{sessions: sessions, logger: logger}
}

// Clear handles POST /session/clear: removes exactly the intercepted-payload
// keys of the session and expires every cookie.
func (h *SessionHandler) Clear(c *gin.Context) {
	sessionID := c.GetHeader("X-Session-ID")
	if sessionID == "" {
		envelope(c, http.StatusBadRequest, false, "X-Session-ID header is required", nil)
		return
	}

	removed := h.sessions.ClearIntercepted(sessionID)
	session.ClearCookies(c)

	h.logger.WithFields(logrus.Fields{
		"session": sessionID,
		"removed": removed,
	}).Info("session cleared")
	envelope(c, http.StatusOK, true, "session cleared", gin.H{"removedKeys": removed})
}
