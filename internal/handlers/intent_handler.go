package handlers

import (
	"crypto/ecdsa"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"fiatramp/internal/platforms"
	"fiatramp/internal/store"
)

// IntentHandler serves POST /verify/intent: it checks the order against the
// registry and the stored payee details, then issues the gating-service
// signature the escrow contract requires on signalIntent.
type IntentHandler struct {
	makers     *store.Store
	gatingKey  *ecdsa.PrivateKey
	verifierOf func(platformID string) string
	logger     *logrus.Logger
}

// NewIntentHandler creates the intent-verification handler. verifierOf maps
// platform ids to verifier contract addresses.
func NewIntentHandler(makers *store.Store, gatingKey *ecdsa.PrivateKey, verifierOf func(string) string, logger *logrus.Logger) *IntentHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &IntentHandler{
		makers:     makers,
		gatingKey:  gatingKey,
		verifierOf: verifierOf,
		logger:     logger,
	}
}

type verifyIntentBody struct {
	ProcessorName    string `json:"processorName"`
	DepositID        string `json:"depositId"`
	TokenAmount      string `json:"tokenAmount"`
	PayeeDetails     string `json:"payeeDetails"`
	ToAddress        string `json:"toAddress"`
	FiatCurrencyCode string `json:"fiatCurrencyCode"`
	ChainID          int64  `json:"chainId"`
}

// VerifyIntent handles POST /verify/intent.
func (h *IntentHandler) VerifyIntent(c *gin.Context) {
	var body verifyIntentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		envelope(c, http.StatusBadRequest, false, "invalid request body: "+err.Error(), nil)
		return
	}

	platform, ok := platforms.Get(body.ProcessorName)
	if !ok {
		envelope(c, http.StatusBadRequest, false, "unknown payment platform: "+body.ProcessorName, nil)
		return
	}
	currencyHash, ok := platform.Currencies[strings.ToUpper(body.FiatCurrencyCode)]
	if !ok {
		envelope(c, http.StatusBadRequest, false, "currency not supported on "+platform.DisplayName+": "+body.FiatCurrencyCode, nil)
		return
	}

	depositID, ok := new(big.Int).SetString(body.DepositID, 10)
	if !ok || depositID.Sign() < 0 {
		envelope(c, http.StatusBadRequest, false, "malformed depositId", nil)
		return
	}
	tokenAmount, ok := new(big.Int).SetString(body.TokenAmount, 10)
	if !ok || tokenAmount.Sign() <= 0 {
		envelope(c, http.StatusBadRequest, false, "malformed tokenAmount", nil)
		return
	}
	if tokenAmount.Cmp(platform.MinOrderAmount) < 0 {
		envelope(c, http.StatusBadRequest, false, "amount below platform minimum", nil)
		return
	}
	if !common.IsHexAddress(body.ToAddress) {
		envelope(c, http.StatusBadRequest, false, "malformed toAddress", nil)
		return
	}

	// Payee details must be on record: an intent against an unknown maker
	// would be unpayable off-chain.
	if _, err := h.makers.Get(body.ProcessorName, body.PayeeDetails); err != nil {
		h.logger.WithFields(logrus.Fields{
			"platform":     body.ProcessorName,
			"payeeDetails": body.PayeeDetails,
		}).Warn("verify intent rejected, unknown payee details")
		envelope(c, http.StatusNotFound, false, "payee details not found", nil)
		return
	}

	verifier := h.verifierOf(body.ProcessorName)
	if verifier == "" {
		envelope(c, http.StatusInternalServerError, false, "no verifier configured for "+body.ProcessorName, nil)
		return
	}

	signature, err := h.sign(depositID, tokenAmount, body.ToAddress, verifier, currencyHash)
	if err != nil {
		h.logger.WithField("error", err).Error("gating signature failed")
		envelope(c, http.StatusInternalServerError, false, "failed to sign intent", nil)
		return
	}

	envelope(c, http.StatusOK, true, "intent verified", gin.H{
		"depositId":              depositID.String(),
		"tokenAmount":            tokenAmount.String(),
		"recipientAddress":       body.ToAddress,
		"verifierAddress":        verifier,
		"currencyCodeHash":       currencyHash,
		"gatingServiceSignature": signature,
	})
}

// sign produces the gating-service signature over the signalIntent
// parameters, matching the digest the escrow contract reconstructs.
func (h *IntentHandler) sign(depositID, tokenAmount *big.Int, to, verifier, currencyHash string) (string, error) {
	digest := crypto.Keccak256(
		common.LeftPadBytes(depositID.Bytes(), 32),
		common.LeftPadBytes(tokenAmount.Bytes(), 32),
		common.HexToAddress(to).Bytes(),
		common.HexToAddress(verifier).Bytes(),
		common.HexToHash(currencyHash).Bytes(),
	)
	sig, err := crypto.Sign(digest, h.gatingKey)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(sig), nil
}
