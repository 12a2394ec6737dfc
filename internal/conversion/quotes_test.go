package conversion

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiatramp/internal/escrow"
	"fiatramp/internal/faults"
	"fiatramp/internal/platforms"
)

const testVerifierAddr = "0x7777777777777777777777777777777777777777"

func usdHash() string {
	return platforms.CurrencyHash("USD")
}

func depositFixture(id int64, rate, liquidity *big.Int) escrow.DepositView {
	return escrow.DepositView{
		DepositID:          big.NewInt(id),
		AvailableLiquidity: liquidity,
		Deposit: escrow.Deposit{
			Depositor:               "0x1111111111111111111111111111111111111111",
			Token:                   "0x2222222222222222222222222222222222222222",
			DepositAmount:           liquidity,
			RemainingDepositAmount:  liquidity,
			OutstandingIntentAmount: big.NewInt(0),
			IntentAmountRange:       escrow.Range{Min: big.NewInt(1), Max: big.NewInt(0)},
			AcceptingIntents:        true,
		},
		Verifiers: []escrow.Verifier{{
			Verifier: testVerifierAddr,
			VerificationData: escrow.VerificationData{
				PayeeDetails: fmt.Sprintf("0xhash%d", id),
			},
			Currencies: []escrow.VerifierCurrency{{
				Code:           usdHash(),
				ConversionRate: rate,
			}},
		}},
	}
}

func exactFiatRequest(amount string, n int) QuoteRequest {
	return QuoteRequest{
		PaymentPlatform: "venmo",
		FiatCurrency:    "USD",
		ExactFiatAmount: amount,
		QuotesToReturn:  n,
	}
}

func TestAggregateQuotesRejectsNonPositiveQuotesToReturn(t *testing.T) {
	engine := NewEngine(nil, nil)
	for _, n := range []int{0, -1} {
		_, err := engine.AggregateQuotes(nil, exactFiatRequest("100", n))
		require.Error(t, err)
		assert.Equal(t, "quotesToReturn must be a positive integer", faults.Wrap(err).Message)
		assert.Equal(t, faults.KindValidation, faults.KindOf(err))
	}
}

func TestAggregateQuotesExactFiat(t *testing.T) {
	engine := NewEngine(nil, nil)
	deposits := []escrow.DepositView{
		depositFixture(1, mustBig(t, "1050000000000000000"), big.NewInt(1_000_000_000)),
	}

	quotes, err := engine.AggregateQuotes(deposits, exactFiatRequest("100", 1))
	require.NoError(t, err)
	require.Len(t, quotes, 1)

	q := quotes[0]
	assert.Equal(t, big.NewInt(1), q.DepositID)
	assert.Equal(t, big.NewInt(95238095), q.UsdcAmount)
	assert.Equal(t, big.NewInt(95238095), q.OutputTokenAmount)
	assert.Equal(t, "95.238095", q.OutputTokenFormatted)
	assert.Equal(t, usdHash(), q.FiatCurrency)
	assert.Equal(t, testVerifierAddr, q.PaymentVerifier)
}

func TestAggregateQuotesBestRateFirst(t *testing.T) {
	engine := NewEngine(nil, nil)
	deposits := []escrow.DepositView{
		depositFixture(1, mustBig(t, "1100000000000000000"), big.NewInt(1_000_000_000)),
		depositFixture(2, mustBig(t, "990000000000000000"), big.NewInt(1_000_000_000)),
		depositFixture(3, mustBig(t, "1050000000000000000"), big.NewInt(1_000_000_000)),
	}

	quotes, err := engine.AggregateQuotes(deposits, exactFiatRequest("100", 10))
	require.NoError(t, err)
	require.Len(t, quotes, 3)
	assert.Equal(t, big.NewInt(2), quotes[0].DepositID)
	assert.Equal(t, big.NewInt(3), quotes[1].DepositID)
	assert.Equal(t, big.NewInt(1), quotes[2].DepositID)

	// quotesToReturn truncates after sorting.
	quotes, err = engine.AggregateQuotes(deposits, exactFiatRequest("100", 2))
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.Equal(t, big.NewInt(2), quotes[0].DepositID)
}

func TestAggregateQuotesSkipsIneligibleDeposits(t *testing.T) {
	engine := NewEngine(nil, nil)
	rate := mustBig(t, "1000000000000000000")

	closed := depositFixture(1, rate, big.NewInt(1_000_000_000))
	closed.Deposit.AcceptingIntents = false

	thin := depositFixture(2, rate, big.NewInt(50)) // less than the quoted amount

	belowMin := depositFixture(3, rate, big.NewInt(1_000_000_000))
	belowMin.Deposit.IntentAmountRange.Min = big.NewInt(200_000_000)

	aboveMax := depositFixture(4, rate, big.NewInt(1_000_000_000))
	aboveMax.Deposit.IntentAmountRange.Max = big.NewInt(50_000_000)

	wrongCurrency := depositFixture(5, rate, big.NewInt(1_000_000_000))
	wrongCurrency.Verifiers[0].Currencies[0].Code = platforms.CurrencyHash("EUR")

	good := depositFixture(6, rate, big.NewInt(1_000_000_000))

	quotes, err := engine.AggregateQuotes(
		[]escrow.DepositView{closed, thin, belowMin, aboveMax, wrongCurrency, good},
		exactFiatRequest("100", 10),
	)
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, big.NewInt(6), quotes[0].DepositID)
}

func TestAggregateQuotesSkipsOtherPlatformVerifiers(t *testing.T) {
	engine := NewEngine(nil, nil)
	rate := mustBig(t, "1000000000000000000")

	// USD hashes identically on every platform, so only the verifier binding
	// distinguishes the rails.
	foreign := depositFixture(1, rate, big.NewInt(1_000_000_000))
	foreign.Verifiers[0].Verifier = "0x8888888888888888888888888888888888888888"
	foreign.Verifiers[0].VerificationData.PayeeDetails = "0xrevolut-payee"

	local := depositFixture(2, rate, big.NewInt(1_000_000_000))
	local.Verifiers[0].Verifier = "0x9999888888888888888888888888888888888888"

	platforms.RegisterVerifier("0x8888888888888888888888888888888888888888", "revolut")
	platforms.RegisterVerifier("0x9999888888888888888888888888888888888888", "venmo")

	quotes, err := engine.AggregateQuotes([]escrow.DepositView{foreign, local}, exactFiatRequest("100", 10))
	require.NoError(t, err)
	require.Len(t, quotes, 1, "a venmo request must never be filled by a revolut verifier")
	assert.Equal(t, big.NewInt(2), quotes[0].DepositID)

	// The same deposit prices normally on its own platform.
	req := exactFiatRequest("100", 10)
	req.PaymentPlatform = "revolut"
	quotes, err = engine.AggregateQuotes([]escrow.DepositView{foreign}, req)
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "0xrevolut-payee", quotes[0].HashedOnchainID)
}

func TestAggregateQuotesExactToken(t *testing.T) {
	engine := NewEngine(nil, nil)
	deposits := []escrow.DepositView{
		depositFixture(1, mustBig(t, "1050000000000000000"), big.NewInt(1_000_000_000)),
	}

	exact := false
	quotes, err := engine.AggregateQuotes(deposits, QuoteRequest{
		PaymentPlatform:  "venmo",
		FiatCurrency:     "USD",
		ExactTokenAmount: "95238095",
		IsExactFiat:      &exact,
		QuotesToReturn:   1,
	})
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, big.NewInt(95238095), quotes[0].UsdcAmount)
	assert.Equal(t, mustBig(t, "99999999750000000000"), quotes[0].FiatAmount)
}

func TestAggregateQuotesUnknownPlatformAndCurrency(t *testing.T) {
	engine := NewEngine(nil, nil)

	req := exactFiatRequest("100", 1)
	req.PaymentPlatform = "paypal"
	_, err := engine.AggregateQuotes(nil, req)
	require.Error(t, err)
	assert.Equal(t, faults.KindValidation, faults.KindOf(err))

	req = exactFiatRequest("100", 1)
	req.FiatCurrency = "JPY" // not on venmo
	_, err = engine.AggregateQuotes(nil, req)
	require.Error(t, err)
	assert.Equal(t, faults.KindValidation, faults.KindOf(err))
}

// --- cross-asset resolution ---

type stubBridge struct {
	price *BridgePrice
	err   error
	calls int
	last  BridgeRequest
}

func (s *stubBridge) QuotePrice(_ context.Context, req BridgeRequest) (*BridgePrice, error) {
	s.calls++
	s.last = req
	return s.price, s.err
}

func strPtr(s string) *string { return &s }

func TestResolveCrossAssetQuoteMergesBridgePrice(t *testing.T) {
	bridge := &stubBridge{price: &BridgePrice{
		Tool:         "stargate",
		ToAmount:     mustBig(t, "52000000000000000"),
		ToAmountMin:  mustBig(t, "51000000000000000"),
		FeeUSD:       "0.42",
		DurationSecs: 30,
	}}
	engine := NewEngine(bridge, nil)

	base := Quote{UsdcAmount: big.NewInt(95238095), OutputTokenAmount: big.NewInt(95238095), OutputTokenDecimals: 6}
	dest := DestinationToken{Address: strPtr("0x9999999999999999999999999999999999999999"), ChainID: 8453, Symbol: "WETH", Decimals: 18}

	resolved, err := engine.ResolveCrossAssetQuote(context.Background(), base, dest, "0x2222222222222222222222222222222222222222", 1)
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, "stargate", resolved.BridgeTool)
	assert.Equal(t, mustBig(t, "52000000000000000"), resolved.OutputTokenAmount)
	assert.Equal(t, 18, resolved.OutputTokenDecimals)
	assert.Equal(t, "51000000000000000", resolved.BridgeMinReceived)
	assert.Equal(t, "0.42", resolved.BridgeFeeUSD)
	assert.Equal(t, big.NewInt(95238095), bridge.last.FromAmount)

	// The input quote is not mutated.
	assert.Empty(t, base.BridgeTool)
}

func TestResolveCrossAssetQuoteZeroAddressIsNativeAsset(t *testing.T) {
	bridge := &stubBridge{price: &BridgePrice{Tool: "hop", ToAmount: big.NewInt(1)}}
	engine := NewEngine(bridge, nil)

	dest := DestinationToken{Address: strPtr(ZeroAddress), ChainID: 10, Symbol: "ETH", Decimals: 18}
	resolved, err := engine.ResolveCrossAssetQuote(context.Background(), Quote{UsdcAmount: big.NewInt(1)}, dest, "0x2222222222222222222222222222222222222222", 1)
	require.NoError(t, err)
	require.NotNil(t, resolved, "zero address must be treated as a valid native-asset destination")
	assert.Equal(t, 1, bridge.calls)
	assert.Equal(t, ZeroAddress, bridge.last.ToToken)
}

func TestResolveCrossAssetQuoteNilAddressIsFilteredOut(t *testing.T) {
	bridge := &stubBridge{}
	engine := NewEngine(bridge, nil)

	dest := DestinationToken{Address: nil, ChainID: 10, Symbol: "XYZ", Decimals: 18}
	resolved, err := engine.ResolveCrossAssetQuote(context.Background(), Quote{UsdcAmount: big.NewInt(1)}, dest, "0x2222222222222222222222222222222222222222", 1)
	require.NoError(t, err)
	assert.Nil(t, resolved)
	assert.Zero(t, bridge.calls, "bridge must not be queried for an unbridgeable destination")
}

func TestResolveCrossAssetQuoteOmitsOnNoRouteAndFailure(t *testing.T) {
	dest := DestinationToken{Address: strPtr("0x9999999999999999999999999999999999999999"), ChainID: 8453, Decimals: 18}

	engine := NewEngine(&stubBridge{err: fmt.Errorf("lifi: %w", ErrNoRoute)}, nil)
	resolved, err := engine.ResolveCrossAssetQuote(context.Background(), Quote{UsdcAmount: big.NewInt(1)}, dest, "0x22", 1)
	require.NoError(t, err)
	assert.Nil(t, resolved)

	engine = NewEngine(&stubBridge{err: errors.New("http 500")}, nil)
	resolved, err = engine.ResolveCrossAssetQuote(context.Background(), Quote{UsdcAmount: big.NewInt(1)}, dest, "0x22", 1)
	require.NoError(t, err)
	assert.Nil(t, resolved)
}
