package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"fiatramp/internal/conversion"
	"fiatramp/internal/escrow"
	"fiatramp/internal/faults"
	"fiatramp/internal/metrics"
)

// DepositSource supplies the current deposit read model to the quote
// endpoints. Backed by the lifecycle store's polled snapshot.
type DepositSource func() []escrow.DepositView

// QuoteHandler serves the quote endpoints.
type QuoteHandler struct {
	engine   *conversion.Engine
	deposits DepositSource
	logger   *logrus.Logger
}

// NewQuoteHandler creates a quote handler.
func NewQuoteHandler(engine *conversion.Engine, deposits DepositSource, logger *logrus.Logger) *QuoteHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &QuoteHandler{engine: engine, deposits: deposits, logger: logger}
}

// quoteBody is the request body; the amount field matching the endpoint's
// sizing mode must be set. quotesToReturn travels as a query parameter.
type quoteBody struct {
	PaymentPlatform  string `json:"paymentPlatform"`
	FiatCurrency     string `json:"fiatCurrency"`
	ExactFiatAmount  string `json:"exactFiatAmount"`
	ExactTokenAmount string `json:"exactTokenAmount"`
	TokenDecimals    int    `json:"tokenDecimals"`
}

// ExactFiat handles POST /quote/exact-fiat.
func (h *QuoteHandler) ExactFiat(c *gin.Context) {
	h.serve(c, true)
}

// ExactToken handles POST /quote/exact-token.
func (h *QuoteHandler) ExactToken(c *gin.Context) {
	h.serve(c, false)
}

func (h *QuoteHandler) serve(c *gin.Context, exactFiat bool) {
	start := time.Now()

	var body quoteBody
	if err := c.ShouldBindJSON(&body); err != nil {
		envelope(c, http.StatusBadRequest, false, "invalid request body: "+err.Error(), nil)
		return
	}

	quotesToReturn := 1
	if raw := c.Query("quotesToReturn"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			envelope(c, http.StatusBadRequest, false, "quotesToReturn must be a positive integer", nil)
			return
		}
		quotesToReturn = n
	}

	mode := "exact-token"
	if exactFiat {
		mode = "exact-fiat"
	}
	metrics.QuoteRequests.WithLabelValues(body.PaymentPlatform, mode).Inc()

	req := conversion.QuoteRequest{
		PaymentPlatform:  body.PaymentPlatform,
		FiatCurrency:     body.FiatCurrency,
		ExactFiatAmount:  body.ExactFiatAmount,
		ExactTokenAmount: body.ExactTokenAmount,
		IsExactFiat:      &exactFiat,
		QuotesToReturn:   quotesToReturn,
		TokenDecimals:    body.TokenDecimals,
	}

	quotes, err := h.engine.AggregateQuotes(h.deposits(), req)
	if err != nil {
		var fault *faults.Fault
		if errors.As(err, &fault) && fault.Kind == faults.KindValidation {
			envelope(c, http.StatusBadRequest, false, fault.Message, nil)
			return
		}
		h.logger.WithField("error", err).Error("quote aggregation failed")
		envelope(c, http.StatusInternalServerError, false, "failed to aggregate quotes", nil)
		return
	}

	metrics.QuoteDuration.Observe(time.Since(start).Seconds())

	decimals := body.TokenDecimals
	if decimals == 0 {
		decimals = conversion.DefaultTokenDecimals
	}
	envelope(c, http.StatusOK, true, "quotes", gin.H{
		"fiat": gin.H{
			"currencyCode": body.FiatCurrency,
		},
		"token": gin.H{
			"token":    "USDC",
			"decimals": decimals,
		},
		"quotes": quotes,
		"fees":   gin.H{},
	})
}
