package handlers

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiatramp/internal/conversion"
	"fiatramp/internal/escrow"
	"fiatramp/internal/platforms"
)

func quoteRouter(deposits []escrow.DepositView) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewQuoteHandler(conversion.NewEngine(nil, nil), func() []escrow.DepositView { return deposits }, nil)
	r := gin.New()
	r.POST("/quote/exact-fiat", h.ExactFiat)
	r.POST("/quote/exact-token", h.ExactToken)
	return r
}

func quoteDeposits() []escrow.DepositView {
	rate, _ := new(big.Int).SetString("1050000000000000000", 10)
	return []escrow.DepositView{{
		DepositID:          big.NewInt(1),
		AvailableLiquidity: big.NewInt(1_000_000_000),
		Deposit: escrow.Deposit{
			Depositor:               "0x1111111111111111111111111111111111111111",
			Token:                   "0x2222222222222222222222222222222222222222",
			DepositAmount:           big.NewInt(1_000_000_000),
			RemainingDepositAmount:  big.NewInt(1_000_000_000),
			OutstandingIntentAmount: big.NewInt(0),
			IntentAmountRange:       escrow.Range{Min: big.NewInt(1), Max: big.NewInt(0)},
			AcceptingIntents:        true,
		},
		Verifiers: []escrow.Verifier{{
			Verifier: "0x7777777777777777777777777777777777777777",
			Currencies: []escrow.VerifierCurrency{{
				Code:           platforms.CurrencyHash("USD"),
				ConversionRate: rate,
			}},
		}},
	}}
}

// quotesEnvelope is the typed shape of the quote response, so big.Int fields
// decode without float64 precision loss.
type quotesEnvelope struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	ResponseObject struct {
		Token struct {
			Token    string `json:"token"`
			Decimals int    `json:"decimals"`
		} `json:"token"`
		Quotes []conversion.Quote `json:"quotes"`
	} `json:"responseObject"`
}

func decodeQuotes(t *testing.T, w *httptest.ResponseRecorder) quotesEnvelope {
	t.Helper()
	var out quotesEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func postQuote(t *testing.T, r *gin.Engine, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &parsed))
	return w, parsed
}

func TestQuoteExactFiat(t *testing.T) {
	r := quoteRouter(quoteDeposits())

	w, _ := postQuote(t, r, "/quote/exact-fiat", gin.H{
		"paymentPlatform": "venmo",
		"fiatCurrency":    "USD",
		"exactFiatAmount": "100",
	})
	require.Equal(t, http.StatusOK, w.Code)

	out := decodeQuotes(t, w)
	assert.True(t, out.Success)
	require.Len(t, out.ResponseObject.Quotes, 1)
	assert.Equal(t, big.NewInt(95238095), out.ResponseObject.Quotes[0].UsdcAmount)
	assert.Equal(t, "95.238095", out.ResponseObject.Quotes[0].OutputTokenFormatted)
	assert.Equal(t, "USDC", out.ResponseObject.Token.Token)
	assert.Equal(t, 6, out.ResponseObject.Token.Decimals)
}

func TestQuoteInvalidQuotesToReturnQueryParam(t *testing.T) {
	r := quoteRouter(quoteDeposits())

	for _, raw := range []string{"0", "-1", "abc"} {
		w, body := postQuote(t, r, "/quote/exact-fiat?quotesToReturn="+raw, gin.H{
			"paymentPlatform": "venmo",
			"fiatCurrency":    "USD",
			"exactFiatAmount": "100",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code, "quotesToReturn=%s", raw)
		assert.Equal(t, "quotesToReturn must be a positive integer", body["message"])
	}
}

func TestQuoteValidationFaultMapsTo400(t *testing.T) {
	r := quoteRouter(quoteDeposits())

	w, body := postQuote(t, r, "/quote/exact-fiat", gin.H{
		"paymentPlatform": "paypal",
		"fiatCurrency":    "USD",
		"exactFiatAmount": "100",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["message"], "unknown payment platform")
}

func TestQuoteExactToken(t *testing.T) {
	r := quoteRouter(quoteDeposits())

	w, _ := postQuote(t, r, "/quote/exact-token", gin.H{
		"paymentPlatform":  "venmo",
		"fiatCurrency":     "USD",
		"exactTokenAmount": "95238095",
	})
	require.Equal(t, http.StatusOK, w.Code)

	out := decodeQuotes(t, w)
	require.Len(t, out.ResponseObject.Quotes, 1)
	want, _ := new(big.Int).SetString("99999999750000000000", 10)
	assert.Equal(t, want, out.ResponseObject.Quotes[0].FiatAmount)
}

func TestQuoteNoEligibleDepositsReturnsEmptyList(t *testing.T) {
	r := quoteRouter(nil)

	w, body := postQuote(t, r, "/quote/exact-fiat", gin.H{
		"paymentPlatform": "venmo",
		"fiatCurrency":    "USD",
		"exactFiatAmount": "100",
	})
	require.Equal(t, http.StatusOK, w.Code)
	obj := body["responseObject"].(map[string]interface{})
	assert.Empty(t, obj["quotes"])
}
