package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fiatramp/internal/conversion"
)

// LiFiClient queries the LiFi aggregator for cross-chain transfer prices.
// It is the bridge price collaborator of the quote engine.
type LiFiClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewLiFiClient creates a new LiFi client. An empty baseURL falls back to the
// public LiFi endpoint.
func NewLiFiClient(baseURL string) *LiFiClient {
	if baseURL == "" {
		baseURL = "https://li.quest/v1"
	}
	return &LiFiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// LiFiQuoteResponse is the subset of the LiFi quote payload we consume.
type LiFiQuoteResponse struct {
	Type     string `json:"type"`
	Id       string `json:"id"`
	Tool     string `json:"tool"`
	Estimate struct {
		Tool              string    `json:"tool"`
		FromAmount        string    `json:"fromAmount"`
		ToAmount          string    `json:"toAmount"`
		ToAmountMin       string    `json:"toAmountMin"`
		ApprovalAddress   string    `json:"approvalAddress"`
		ExecutionDuration int       `json:"executionDuration"` // seconds
		FeeCosts          []FeeCost `json:"feeCosts"`
	} `json:"estimate"`
}

// FeeCost is one LiFi fee line item.
type FeeCost struct {
	Name      string `json:"name"`
	Amount    string `json:"amount"`
	AmountUSD string `json:"amountUSD"`
}

// QuotePrice implements conversion.BridgePriceSource. A LiFi 404 or a
// "no routes" body maps to conversion.ErrNoRoute so callers can treat it as
// the expected no-route condition rather than a failure.
func (c *LiFiClient) QuotePrice(ctx context.Context, req conversion.BridgeRequest) (*conversion.BridgePrice, error) {
	params := url.Values{}
	params.Add("fromChain", fmt.Sprintf("%d", req.FromChainID))
	params.Add("toChain", fmt.Sprintf("%d", req.ToChainID))
	params.Add("fromToken", req.FromToken)
	params.Add("toToken", req.ToToken)
	params.Add("fromAmount", req.FromAmount.String())

	reqURL := fmt.Sprintf("%s/quote?%s", c.baseURL, params.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode == http.StatusNotFound || strings.Contains(strings.ToLower(string(body)), "no routes") {
			return nil, fmt.Errorf("lifi: %w", conversion.ErrNoRoute)
		}
		return nil, fmt.Errorf("LiFi API error (status %d): %s", resp.StatusCode, string(body))
	}

	var quoteResp LiFiQuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&quoteResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	toAmount, ok := new(big.Int).SetString(quoteResp.Estimate.ToAmount, 10)
	if !ok {
		return nil, fmt.Errorf("malformed toAmount %q in LiFi response", quoteResp.Estimate.ToAmount)
	}
	toAmountMin, ok := new(big.Int).SetString(quoteResp.Estimate.ToAmountMin, 10)
	if !ok {
		toAmountMin = toAmount
	}

	tool := quoteResp.Tool
	if tool == "" {
		tool = quoteResp.Estimate.Tool
	}

	totalFeeUSD := 0.0
	for _, fee := range quoteResp.Estimate.FeeCosts {
		var feeUSD float64
		if _, err := fmt.Sscanf(fee.AmountUSD, "%f", &feeUSD); err == nil {
			totalFeeUSD += feeUSD
		}
	}

	return &conversion.BridgePrice{
		Tool:         tool,
		ToAmount:     toAmount,
		ToAmountMin:  toAmountMin,
		FeeUSD:       fmt.Sprintf("%.2f", totalFeeUSD),
		DurationSecs: quoteResp.Estimate.ExecutionDuration,
	}, nil
}
