package lifecycle

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiatramp/internal/chain"
	"fiatramp/internal/escrow"
	"fiatramp/internal/reconcile"
)

type stubProofProducer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *stubProofProducer) Generate(context.Context, string, *reconcile.PaymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.err
}

func openIntentView(t *testing.T, depositID int64, intentHash string) *escrow.IntentView {
	t.Helper()
	return &escrow.IntentView{
		IntentHash: intentHash,
		Intent: escrow.Intent{
			Owner:     testOwner,
			DepositID: big.NewInt(depositID),
			Amount:    big.NewInt(100_000_000),
			Timestamp: big.NewInt(time.Now().Unix()),
		},
	}
}

func freshRecordSet() *reconcile.RecordSet {
	return &reconcile.RecordSet{
		Records:   []reconcile.PaymentRecord{{SubjectText: "payment"}},
		ExpiresAt: time.Now().Add(5 * time.Minute),
		Version:   1,
	}
}

func newFulfillmentHarness(t *testing.T, fake *chain.FakeClient, proofs ProofProducer, ttl time.Duration) (*FulfillmentMachine, *Store, *capturePublisher) {
	t.Helper()
	store := NewStore()
	events := &capturePublisher{}
	m := NewFulfillmentMachine(store, fake, fake, proofs, events, nil, testOwner, ttl)
	m.pollInterval = 5 * time.Millisecond
	return m, store, events
}

func TestFulfillmentCompletesOnRelease(t *testing.T) {
	fake := chain.NewFakeClient(testOwner)
	intentHash := "0xfeed"
	seedFakeDeposit(fake, "7", "1000000000")

	// Attach the intent hash so the release check sees it pending.
	views, err := fake.GetDepositViews(context.Background(), []*big.Int{big.NewInt(7)})
	require.NoError(t, err)
	view := views[0]
	view.Deposit.IntentHashes = []string{intentHash}
	fake.SeedDeposit(view)

	proofs := &stubProofProducer{}
	m, store, events := newFulfillmentHarness(t, fake, proofs, time.Hour)

	// Release the intent shortly after proof generation.
	go func() {
		time.Sleep(30 * time.Millisecond)
		cleared := view
		cleared.Deposit.IntentHashes = nil
		fake.SeedDeposit(cleared)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = m.Complete(ctx, openIntentView(t, 7, intentHash), freshRecordSet(), &reconcile.PaymentRecord{SubjectText: "payment"})
	require.NoError(t, err)

	assert.Equal(t, FulfillmentDone, store.GetState(KeyFulfillmentState))
	assert.Equal(t, 1, proofs.calls)
	assert.Contains(t, events.published(), SubjectPaymentVerified)
}

func TestFulfillmentStaleRecordSetWaits(t *testing.T) {
	fake := chain.NewFakeClient(testOwner)
	proofs := &stubProofProducer{}
	m, store, _ := newFulfillmentHarness(t, fake, proofs, time.Hour)

	stale := freshRecordSet()
	stale.ExpiresAt = time.Now().Add(10 * time.Second) // inside the safety buffer

	err := m.Complete(context.Background(), openIntentView(t, 7, "0xfeed"), stale, &reconcile.PaymentRecord{})
	require.NoError(t, err)
	assert.Equal(t, FulfillmentAwaitingRecord, store.GetState(KeyFulfillmentState))
	assert.Zero(t, proofs.calls, "no proof may start against a stale record set")
}

func TestFulfillmentProofFailure(t *testing.T) {
	fake := chain.NewFakeClient(testOwner)
	proofs := &stubProofProducer{err: assert.AnError}
	m, store, _ := newFulfillmentHarness(t, fake, proofs, time.Hour)

	err := m.Complete(context.Background(), openIntentView(t, 7, "0xfeed"), freshRecordSet(), &reconcile.PaymentRecord{})
	require.Error(t, err)
	assert.Equal(t, FulfillmentFailed, store.GetState(KeyFulfillmentState))
}

func TestFulfillmentExpiresPastIntentTTL(t *testing.T) {
	fake := chain.NewFakeClient(testOwner)
	intentHash := "0xfeed"
	seedFakeDeposit(fake, "7", "1000000000")

	views, err := fake.GetDepositViews(context.Background(), []*big.Int{big.NewInt(7)})
	require.NoError(t, err)
	view := views[0]
	view.Deposit.IntentHashes = []string{intentHash}
	fake.SeedDeposit(view)

	m, store, events := newFulfillmentHarness(t, fake, &stubProofProducer{}, time.Hour)

	intent := openIntentView(t, 7, intentHash)
	intent.Intent.Timestamp = big.NewInt(time.Now().Add(-2 * time.Hour).Unix())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Complete(ctx, intent, freshRecordSet(), &reconcile.PaymentRecord{}))

	assert.Equal(t, FulfillmentExpired, store.GetState(KeyFulfillmentState))
	assert.Contains(t, events.published(), SubjectIntentExpired)
}

func TestFulfillmentMissingDepositCountsAsReleased(t *testing.T) {
	fake := chain.NewFakeClient(testOwner) // deposit never seeded
	m, store, _ := newFulfillmentHarness(t, fake, &stubProofProducer{}, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Complete(ctx, openIntentView(t, 7, "0xfeed"), freshRecordSet(), &reconcile.PaymentRecord{}))
	assert.Equal(t, FulfillmentDone, store.GetState(KeyFulfillmentState))
}

func TestCancelExpiredOnlyFromExpiredState(t *testing.T) {
	fake := chain.NewFakeClient(testOwner)
	fake.SeedIntent(escrow.RawIntentView{
		IntentHash: "0xfeed",
		Intent: escrow.RawIntent{
			Owner:           testOwner,
			To:              "0x9999999999999999999999999999999999999999",
			DepositID:       "7",
			Amount:          "100000000",
			Timestamp:       "1700000000",
			PaymentVerifier: testVerifier,
			ConversionRate:  "1000000000000000000",
		},
	})
	m, store, _ := newFulfillmentHarness(t, fake, &stubProofProducer{}, time.Hour)

	// Not expired: cancel is refused and the intent survives.
	store.Set(KeyFulfillmentState, FulfillmentAwaitingOnchain)
	require.NoError(t, m.CancelExpired(context.Background(), "0xfeed"))
	open, err := fake.GetAccountIntent(context.Background(), testOwner)
	require.NoError(t, err)
	assert.NotNil(t, open)

	// Expired: cancel goes through and the machine resets.
	store.Set(KeyFulfillmentState, FulfillmentExpired)
	require.NoError(t, m.CancelExpired(context.Background(), "0xfeed"))
	open, err = fake.GetAccountIntent(context.Background(), testOwner)
	require.NoError(t, err)
	assert.Nil(t, open)
	assert.Equal(t, FulfillmentAwaitingRecord, store.GetState(KeyFulfillmentState))
}
