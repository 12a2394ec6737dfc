package conversion

import (
	"math/big"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"fiatramp/internal/escrow"
	"fiatramp/internal/faults"
	"fiatramp/internal/platforms"
)

// Quote prices one deposit for a requested amount. Quotes are ephemeral: a
// quote is a pure function of its source deposit, verifier rate and amount,
// and must be re-derived whenever the source rate changes.
type Quote struct {
	DepositID       *big.Int `json:"depositId"`
	HashedOnchainID string   `json:"hashedOnchainId"`
	PaymentVerifier string   `json:"paymentVerifier"`
	FiatCurrency    string   `json:"fiatCurrency"` // on-chain currency hash
	// FiatAmount is 18 dp fixed point, UsdcAmount is token base units.
	FiatAmount     *big.Int `json:"fiatAmount"`
	UsdcAmount     *big.Int `json:"usdcAmount"`
	UsdcToFiatRate *big.Int `json:"usdcToFiatRate"`
	// Output asset fields. Same as the escrow token unless a bridge quote
	// was merged in.
	OutputTokenAmount    *big.Int `json:"outputTokenAmount"`
	OutputTokenDecimals  int      `json:"outputTokenDecimals"`
	OutputTokenFormatted string   `json:"outputTokenFormatted"`
	// Bridge fields, set only for cross-asset quotes.
	BridgeTool        string `json:"bridgeTool,omitempty"`
	BridgeFeeUSD      string `json:"bridgeFeeUsd,omitempty"`
	BridgeMinReceived string `json:"bridgeMinReceived,omitempty"`
}

// QuoteRequest sizes a quote by exactly one of fiat or token amount.
type QuoteRequest struct {
	PaymentPlatform string `json:"paymentPlatform"`
	FiatCurrency    string `json:"fiatCurrency"` // ISO code
	// ExactFiatAmount is a human decimal string; ExactTokenAmount is base
	// units. IsExactFiat defaults to true when nil.
	ExactFiatAmount  string `json:"exactFiatAmount,omitempty"`
	ExactTokenAmount string `json:"exactTokenAmount,omitempty"`
	IsExactFiat      *bool  `json:"isExactFiat,omitempty"`
	QuotesToReturn   int    `json:"quotesToReturn"`
	TokenDecimals    int    `json:"tokenDecimals,omitempty"`
}

func (r *QuoteRequest) exactFiat() bool {
	return r.IsExactFiat == nil || *r.IsExactFiat
}

// DefaultTokenDecimals is the escrow stablecoin's precision (USDC).
const DefaultTokenDecimals = 6

// Engine aggregates quotes across deposits and resolves cross-asset payouts
// through a bridge price source.
type Engine struct {
	bridge BridgePriceSource
	logger *logrus.Logger
}

// NewEngine creates a quote engine. bridge may be nil when cross-asset
// payouts are disabled.
func NewEngine(bridge BridgePriceSource, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Engine{bridge: bridge, logger: logger}
}

// AggregateQuotes prices the request against every eligible deposit and
// returns at most QuotesToReturn quotes, best effective rate for the taker
// first. A request with QuotesToReturn < 1 is rejected before any pricing
// work happens.
func (e *Engine) AggregateQuotes(deposits []escrow.DepositView, req QuoteRequest) ([]Quote, error) {
	if req.QuotesToReturn < 1 {
		return nil, faults.Validation("quotesToReturn", "quotesToReturn must be a positive integer")
	}

	platform, ok := platforms.Get(req.PaymentPlatform)
	if !ok {
		return nil, faults.Validation("paymentPlatform", "unknown payment platform: "+req.PaymentPlatform)
	}
	currencyHash, ok := platform.Currencies[strings.ToUpper(req.FiatCurrency)]
	if !ok {
		return nil, faults.Validation("fiatCurrency", "currency not supported on "+platform.DisplayName+": "+req.FiatCurrency)
	}

	decimals := req.TokenDecimals
	if decimals == 0 {
		decimals = DefaultTokenDecimals
	}

	var fiatAmount, tokenAmount *big.Int
	var err error
	if req.exactFiat() {
		if fiatAmount, err = ParseFiatAmount(req.ExactFiatAmount); err != nil {
			return nil, err
		}
	} else {
		if tokenAmount, err = parseTokenAmount(req.ExactTokenAmount); err != nil {
			return nil, err
		}
	}

	quotes := make([]Quote, 0, len(deposits))
	for i := range deposits {
		q, ok := e.priceDeposit(&deposits[i], platform, currencyHash, fiatAmount, tokenAmount, decimals, req.exactFiat())
		if ok {
			quotes = append(quotes, q)
		}
	}

	// Lowest fiat-per-token rate is the best deal for the taker.
	sort.SliceStable(quotes, func(i, j int) bool {
		return quotes[i].UsdcToFiatRate.Cmp(quotes[j].UsdcToFiatRate) < 0
	})

	if len(quotes) > req.QuotesToReturn {
		quotes = quotes[:req.QuotesToReturn]
	}
	return quotes, nil
}

// priceDeposit prices one deposit view, or reports it ineligible.
func (e *Engine) priceDeposit(view *escrow.DepositView, platform *platforms.Platform, currencyHash string, fiatAmount, tokenAmount *big.Int, decimals int, exactFiat bool) (Quote, bool) {
	if !view.Deposit.AcceptingIntents {
		return Quote{}, false
	}

	for i := range view.Verifiers {
		verifier := &view.Verifiers[i]
		// Currency hashes are shared across platforms, so a rate match alone
		// is not enough: a verifier bound to another platform settles on
		// different rails and its payee details are unpayable here.
		if p, ok := platforms.ForVerifier(verifier.Verifier); ok && p.ID != platform.ID {
			continue
		}
		rate := rateFor(verifier, currencyHash)
		if rate == nil || rate.Sign() == 0 {
			continue
		}

		tokens := tokenAmount
		fiat := fiatAmount
		if exactFiat {
			tokens = TokenFromFiatAmount(fiatAmount, rate, decimals)
		} else {
			fiat = FiatFromTokenAmount(tokenAmount, rate, decimals)
		}
		if tokens.Sign() == 0 {
			continue
		}
		if tokens.Cmp(view.AvailableLiquidity) > 0 {
			continue
		}
		if rng := view.Deposit.IntentAmountRange; rng.Min != nil && tokens.Cmp(rng.Min) < 0 {
			continue
		} else if rng.Max != nil && rng.Max.Sign() > 0 && tokens.Cmp(rng.Max) > 0 {
			continue
		}

		return Quote{
			DepositID:            view.DepositID,
			HashedOnchainID:      verifier.VerificationData.PayeeDetails,
			PaymentVerifier:      verifier.Verifier,
			FiatCurrency:         currencyHash,
			FiatAmount:           fiat,
			UsdcAmount:           tokens,
			UsdcToFiatRate:       rate,
			OutputTokenAmount:    tokens,
			OutputTokenDecimals:  decimals,
			OutputTokenFormatted: FormatUnits(tokens, decimals),
		}, true
	}
	return Quote{}, false
}

func rateFor(verifier *escrow.Verifier, currencyHash string) *big.Int {
	for _, c := range verifier.Currencies {
		if strings.EqualFold(c.Code, currencyHash) {
			return c.ConversionRate
		}
	}
	return nil
}

func parseTokenAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, faults.Validation("exactTokenAmount", "amount is required")
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 {
		return nil, faults.Validation("exactTokenAmount", "malformed token amount "+s)
	}
	return n, nil
}
