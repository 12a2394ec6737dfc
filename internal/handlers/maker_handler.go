package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"fiatramp/internal/platforms"
	"fiatramp/internal/store"
)

// MakerHandler serves the maker payee-details endpoints.
type MakerHandler struct {
	makers *store.Store
	logger *logrus.Logger
}

// NewMakerHandler creates a maker handler.
func NewMakerHandler(makers *store.Store, logger *logrus.Logger) *MakerHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &MakerHandler{makers: makers, logger: logger}
}

type createMakerBody struct {
	ProcessorName   string `json:"processorName"`
	DepositData     string `json:"depositData"`
	HashedOnchainID string `json:"hashedOnchainId"`
}

// Create handles POST /makers/create.
func (h *MakerHandler) Create(c *gin.Context) {
	var body createMakerBody
	if err := c.ShouldBindJSON(&body); err != nil {
		envelope(c, http.StatusBadRequest, false, "invalid request body: "+err.Error(), nil)
		return
	}
	if _, ok := platforms.Get(body.ProcessorName); !ok {
		envelope(c, http.StatusBadRequest, false, "unknown payment platform: "+body.ProcessorName, nil)
		return
	}
	if body.DepositData == "" {
		envelope(c, http.StatusBadRequest, false, "depositData is required", nil)
		return
	}

	record, err := h.makers.Create(body.ProcessorName, body.DepositData, body.HashedOnchainID)
	if err != nil {
		h.logger.WithField("error", err).Error("create maker details failed")
		envelope(c, http.StatusInternalServerError, false, "failed to store maker details", nil)
		return
	}

	envelope(c, http.StatusOK, true, "maker details stored", record)
}

// Get handles GET /makers/:platform/:hashedOnchainId.
func (h *MakerHandler) Get(c *gin.Context) {
	platform := c.Param("platform")
	hashedOnchainID := c.Param("hashedOnchainId")

	record, err := h.makers.Get(platform, hashedOnchainID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			envelope(c, http.StatusNotFound, false, "maker details not found", nil)
			return
		}
		h.logger.WithField("error", err).Error("get maker details failed")
		envelope(c, http.StatusInternalServerError, false, "failed to load maker details", nil)
		return
	}

	envelope(c, http.StatusOK, true, "maker details", record)
}
