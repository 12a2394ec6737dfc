package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"fiatramp/internal/conversion"
	"fiatramp/internal/faults"
	"fiatramp/internal/metrics"
	"fiatramp/internal/reconcile"
)

// Client talks to the curator backend. Every call goes through the shared
// retry wrapper and classifies failures into the faults taxonomy.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
	sleep      func(context.Context, time.Duration) error
}

// NewClient creates a curator API client.
func NewClient(baseURL string, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger,
		sleep:  sleepContext,
	}
}

// Envelope is the curator's uniform response wrapper.
type Envelope struct {
	Success        bool            `json:"success"`
	Message        string          `json:"message"`
	ResponseObject json.RawMessage `json:"responseObject"`
	StatusCode     int             `json:"statusCode"`
}

// QuoteResponseObject is the payload of the quote endpoints.
type QuoteResponseObject struct {
	Fiat   FiatInfo           `json:"fiat"`
	Token  TokenAssetInfo     `json:"token"`
	Quotes []conversion.Quote `json:"quotes"`
	Fees   json.RawMessage    `json:"fees"`
}

// FiatInfo identifies the fiat side of a quote response.
type FiatInfo struct {
	CurrencyCode string `json:"currencyCode"`
	CurrencyName string `json:"currencyName"`
}

// TokenAssetInfo identifies the token side of a quote response.
type TokenAssetInfo struct {
	Token    string `json:"token"`
	Decimals int    `json:"decimals"`
}

// quoteBody mirrors conversion.QuoteRequest minus amount/isExactFiat/
// quotesToReturn: the amount is re-expressed as exactFiatAmount or
// exactTokenAmount and quotesToReturn travels as a query parameter.
type quoteBody struct {
	PaymentPlatform  string `json:"paymentPlatform"`
	FiatCurrency     string `json:"fiatCurrency"`
	ExactFiatAmount  string `json:"exactFiatAmount,omitempty"`
	ExactTokenAmount string `json:"exactTokenAmount,omitempty"`
}

// GetQuote calls POST /quote/exact-fiat or /quote/exact-token depending on
// the request's sizing mode. quotesToReturn is validated locally before any
// network traffic.
func (c *Client) GetQuote(ctx context.Context, req conversion.QuoteRequest) (*QuoteResponseObject, error) {
	if req.QuotesToReturn < 1 {
		return nil, faults.Validation("quotesToReturn", "quotesToReturn must be a positive integer")
	}

	path := "/quote/exact-token"
	body := quoteBody{
		PaymentPlatform:  req.PaymentPlatform,
		FiatCurrency:     req.FiatCurrency,
		ExactTokenAmount: req.ExactTokenAmount,
	}
	if req.IsExactFiat == nil || *req.IsExactFiat {
		path = "/quote/exact-fiat"
		body.ExactTokenAmount = ""
		body.ExactFiatAmount = req.ExactFiatAmount
	}
	path = fmt.Sprintf("%s?quotesToReturn=%d", path, req.QuotesToReturn)

	var out QuoteResponseObject
	if err := c.call(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyIntentRequest asks the gating service to approve an intent before it
// goes on-chain.
type VerifyIntentRequest struct {
	ProcessorName    string `json:"processorName"`
	DepositID        string `json:"depositId"`
	TokenAmount      string `json:"tokenAmount"`
	PayeeDetails     string `json:"payeeDetails"`
	ToAddress        string `json:"toAddress"`
	FiatCurrencyCode string `json:"fiatCurrencyCode"`
	ChainID          int64  `json:"chainId"`
}

// SignedIntent carries the gating-service signature plus the parameters that
// populate the on-chain signalIntent call.
type SignedIntent struct {
	DepositID              string `json:"depositId"`
	TokenAmount            string `json:"tokenAmount"`
	RecipientAddress       string `json:"recipientAddress"`
	VerifierAddress        string `json:"verifierAddress"`
	CurrencyCodeHash       string `json:"currencyCodeHash"`
	GatingServiceSignature string `json:"gatingServiceSignature"`
}

// VerifyIntent calls POST /verify/intent.
func (c *Client) VerifyIntent(ctx context.Context, req VerifyIntentRequest) (*SignedIntent, error) {
	var out SignedIntent
	if err := c.call(ctx, http.MethodPost, "/verify/intent", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MakerDetailsRequest posts hashed payee details so raw payment destinations
// stay off-chain.
type MakerDetailsRequest struct {
	Platform        string `json:"processorName"`
	PayeeDetails    string `json:"depositData"`
	HashedOnchainID string `json:"hashedOnchainId,omitempty"`
}

// MakerDetails is the stored payee-details record.
type MakerDetails struct {
	ID              uint64 `json:"id"`
	Platform        string `json:"processorName"`
	HashedOnchainID string `json:"hashedOnchainId"`
	PayeeDetails    string `json:"depositData"`
}

// CreateMakerDetails calls POST /makers/create.
func (c *Client) CreateMakerDetails(ctx context.Context, req MakerDetailsRequest) (*MakerDetails, error) {
	var out MakerDetails
	if err := c.call(ctx, http.MethodPost, "/makers/create", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetMakerDetails calls GET /makers/{platform}/{hashedOnchainId}.
func (c *Client) GetMakerDetails(ctx context.Context, platform, hashedOnchainID string) (*MakerDetails, error) {
	var out MakerDetails
	path := fmt.Sprintf("/makers/%s/%s", platform, hashedOnchainID)
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// proofBody carries the selected payment record to the proof pipeline.
type proofBody struct {
	IntentHash string                   `json:"intentHash"`
	Record     *reconcile.PaymentRecord `json:"record"`
}

// Generate calls POST /proof/generate, handing the selected payment record to
// the attestation pipeline. It blocks until the proof is produced or fails.
func (c *Client) Generate(ctx context.Context, intentHash string, record *reconcile.PaymentRecord) error {
	return c.call(ctx, http.MethodPost, "/proof/generate", proofBody{
		IntentHash: intentHash,
		Record:     record,
	}, nil)
}

// call runs one retried request, unwraps the curator envelope into out and
// classifies every failure mode.
func (c *Client) call(ctx context.Context, method, path string, body, out interface{}) error {
	name := method + " " + path
	start := time.Now()
	defer func() {
		metrics.CuratorCallDuration.WithLabelValues(method + " " + routeLabel(path)).Observe(time.Since(start).Seconds())
	}()
	return withRetry(ctx, c.logger, c.sleep, name, func(ctx context.Context) error {
		return c.doOnce(ctx, method, path, body, out)
	})
}

// routeLabel reduces a request path to its leading route segments so metric
// labels stay bounded: ids and query parameters are dropped.
func routeLabel(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	segments := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 3)
	if len(segments) > 2 {
		segments = segments[:2]
	}
	return "/" + strings.Join(segments, "/")
}

func (c *Client) doOnce(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return faults.Wrap(fmt.Errorf("encode request body: %w", err))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return faults.Wrap(fmt.Errorf("create request: %w", err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// No response received at all.
		return faults.Network(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return faults.Network(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return faults.API(resp.StatusCode, raw)
	}

	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return faults.Wrap(fmt.Errorf("decode response envelope: %w", err))
	}
	if !envelope.Success {
		return faults.API(resp.StatusCode, raw)
	}
	if out != nil && len(envelope.ResponseObject) > 0 {
		if err := json.Unmarshal(envelope.ResponseObject, out); err != nil {
			return faults.Wrap(fmt.Errorf("decode response object: %w", err))
		}
	}
	return nil
}
