package lifecycle

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiatramp/internal/chain"
	"fiatramp/internal/escrow"
)

func TestRefreshGuardSupersedesEarlierRequests(t *testing.T) {
	g := NewRefreshGuard()

	first := g.Begin("deposits")
	assert.True(t, g.Current("deposits", first))

	second := g.Begin("deposits")
	assert.False(t, g.Current("deposits", first), "superseded request must be dropped")
	assert.True(t, g.Current("deposits", second))

	// Kinds are independent.
	intentReq := g.Begin("intent")
	assert.True(t, g.Current("intent", intentReq))
	assert.True(t, g.Current("deposits", second))
}

func TestRefreshNowInstallsSnapshots(t *testing.T) {
	fake := chain.NewFakeClient(testOwner)
	seedFakeDeposit(fake, "1", "1000000000")
	seedFakeDeposit(fake, "2", "2000000000")

	store := NewStore()
	p := NewPoller(store, fake, nil, testOwner, func() []*big.Int {
		return []*big.Int{big.NewInt(1), big.NewInt(2)}
	}, 0)

	p.RefreshNow(context.Background())

	views, ok := store.GetState(KeyDepositViews).([]escrow.DepositView)
	require.True(t, ok)
	require.Len(t, views, 2)
	assert.Equal(t, big.NewInt(1), views[0].DepositID)
	assert.Equal(t, big.NewInt(2), views[1].DepositID)

	// No open intent stores an explicit nil snapshot.
	intent, ok := store.GetState(KeyAccountIntent).(*escrow.IntentView)
	require.True(t, ok)
	assert.Nil(t, intent)
}

func TestRefreshNowSkipsUnparseableDeposits(t *testing.T) {
	fake := chain.NewFakeClient(testOwner)
	seedFakeDeposit(fake, "1", "1000000000")

	broken := escrow.RawDepositView{
		DepositID:          "2",
		AvailableLiquidity: "garbage",
		Deposit: escrow.RawDeposit{
			Depositor:               testOwner,
			Token:                   testToken,
			DepositAmount:           "1",
			RemainingDepositAmount:  "1",
			OutstandingIntentAmount: "0",
			IntentAmountRange:       escrow.RawRange{Min: "1", Max: "0"},
		},
	}
	fake.SeedDeposit(broken)

	store := NewStore()
	p := NewPoller(store, fake, nil, testOwner, func() []*big.Int {
		return []*big.Int{big.NewInt(1), big.NewInt(2)}
	}, 0)

	p.RefreshNow(context.Background())

	views, ok := store.GetState(KeyDepositViews).([]escrow.DepositView)
	require.True(t, ok)
	require.Len(t, views, 1, "the unparseable view is skipped, the rest survive")
	assert.Equal(t, big.NewInt(1), views[0].DepositID)
}

func TestRefreshNowParsesOpenIntent(t *testing.T) {
	fake := chain.NewFakeClient(testOwner)
	seedFakeDeposit(fake, "7", "1000000000")
	fake.SeedIntent(escrow.RawIntentView{
		IntentHash: "0xfeed",
		Intent: escrow.RawIntent{
			Owner:           testOwner,
			To:              "0x9999999999999999999999999999999999999999",
			DepositID:       "7",
			Amount:          "100000000",
			Timestamp:       "1700000000",
			PaymentVerifier: testVerifier,
			FiatCurrency:    "0x01",
			ConversionRate:  "1000000000000000000",
		},
		Deposit: escrow.RawDepositView{
			DepositID:          "7",
			AvailableLiquidity: "900000000",
			Deposit: escrow.RawDeposit{
				Depositor:               testOwner,
				Token:                   testToken,
				DepositAmount:           "1000000000",
				RemainingDepositAmount:  "1000000000",
				OutstandingIntentAmount: "100000000",
				IntentAmountRange:       escrow.RawRange{Min: "100000", Max: "0"},
				AcceptingIntents:        true,
			},
		},
	})

	store := NewStore()
	p := NewPoller(store, fake, nil, testOwner, func() []*big.Int { return nil }, 0)
	p.RefreshNow(context.Background())

	intent, ok := store.GetState(KeyAccountIntent).(*escrow.IntentView)
	require.True(t, ok)
	require.NotNil(t, intent)
	assert.Equal(t, "0xfeed", intent.IntentHash)
	assert.Equal(t, big.NewInt(100000000), intent.Intent.Amount)
}

func TestRefreshNowNoWatchedDepositsLeavesSnapshotAlone(t *testing.T) {
	fake := chain.NewFakeClient(testOwner)
	store := NewStore()
	store.Set(KeyDepositViews, []escrow.DepositView{{DepositID: big.NewInt(9)}})

	p := NewPoller(store, fake, nil, testOwner, func() []*big.Int { return nil }, 0)
	p.RefreshNow(context.Background())

	views, ok := store.GetState(KeyDepositViews).([]escrow.DepositView)
	require.True(t, ok)
	require.Len(t, views, 1, "an empty watch set must not clobber the snapshot")
}
