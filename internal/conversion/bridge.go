package conversion

import (
	"context"
	"errors"
	"math/big"

	"github.com/sirupsen/logrus"

	"fiatramp/internal/metrics"
)

// ZeroAddress is the native-asset sentinel. It is a VALID destination
// address: ETH, MATIC, BNB and friends are addressed this way by bridges.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// ErrNoRoute is returned by a bridge source when no route exists between the
// requested assets. Expected at high frequency, so it is never logged as an
// error.
var ErrNoRoute = errors.New("no routes found")

// DestinationToken identifies the payout asset when it differs from the
// escrow stablecoin. Address is a pointer on purpose: nil means the token
// has no usable contract address and must be filtered out, while a present
// zero address selects the chain's native asset.
type DestinationToken struct {
	Address  *string `json:"address"`
	ChainID  uint32  `json:"chainId"`
	Symbol   string  `json:"symbol"`
	Decimals int     `json:"decimals"`
}

// Bridgeable reports whether the token may be sent to the bridge source.
// Only a nil/absent address disqualifies a destination; the zero address
// passes.
func (t *DestinationToken) Bridgeable() bool {
	return t != nil && t.Address != nil
}

// BridgeRequest is what the engine hands to the bridge price source.
type BridgeRequest struct {
	FromChainID uint32
	ToChainID   uint32
	FromToken   string
	ToToken     string
	FromAmount  *big.Int
}

// BridgePrice is the merged-in output of a bridge source.
type BridgePrice struct {
	Tool         string
	ToAmount     *big.Int
	ToAmountMin  *big.Int
	FeeUSD       string
	DurationSecs int
}

// BridgePriceSource quotes a cross-chain/cross-token transfer. Implementations
// return ErrNoRoute (possibly wrapped) when no route exists.
type BridgePriceSource interface {
	QuotePrice(ctx context.Context, req BridgeRequest) (*BridgePrice, error)
}

// ResolveCrossAssetQuote merges a bridge price into a same-chain quote when
// the payout asset differs from the escrowed stablecoin. A nil result with a
// nil error means the quote was omitted: either the destination is not
// bridgeable or the bridge found no route. Callers with no other candidate
// surface "no quotes available".
func (e *Engine) ResolveCrossAssetQuote(ctx context.Context, quote Quote, dest DestinationToken, sourceToken string, sourceChainID uint32) (*Quote, error) {
	if !dest.Bridgeable() {
		e.logger.WithFields(logrus.Fields{
			"symbol": dest.Symbol,
			"chain":  dest.ChainID,
		}).Debug("destination token has no contract address, skipping bridge quote")
		return nil, nil
	}
	if e.bridge == nil {
		return nil, errors.New("bridge price source not configured")
	}

	price, err := e.bridge.QuotePrice(ctx, BridgeRequest{
		FromChainID: sourceChainID,
		ToChainID:   dest.ChainID,
		FromToken:   sourceToken,
		ToToken:     *dest.Address,
		FromAmount:  quote.UsdcAmount,
	})
	if err != nil {
		if errors.Is(err, ErrNoRoute) {
			metrics.BridgeQuoteFailures.WithLabelValues("no_route").Inc()
			e.logger.WithFields(logrus.Fields{
				"fromChain": sourceChainID,
				"toChain":   dest.ChainID,
				"toToken":   *dest.Address,
			}).Debug("no bridge route for destination, quote omitted")
			return nil, nil
		}
		metrics.BridgeQuoteFailures.WithLabelValues("error").Inc()
		e.logger.WithFields(logrus.Fields{
			"fromChain": sourceChainID,
			"toChain":   dest.ChainID,
			"error":     err,
		}).Warn("bridge price lookup failed, quote omitted")
		return nil, nil
	}

	quote.OutputTokenAmount = price.ToAmount
	quote.OutputTokenDecimals = dest.Decimals
	quote.OutputTokenFormatted = FormatUnits(price.ToAmount, dest.Decimals)
	quote.BridgeTool = price.Tool
	quote.BridgeFeeUSD = price.FeeUSD
	if price.ToAmountMin != nil {
		quote.BridgeMinReceived = price.ToAmountMin.String()
	}
	return &quote, nil
}
