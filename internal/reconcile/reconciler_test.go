package reconcile

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiatramp/internal/escrow"
	"fiatramp/internal/platforms"
)

func intentContext(t *testing.T, platformID string) *IntentContext {
	t.Helper()
	platform, ok := platforms.Get(platformID)
	require.True(t, ok)

	rate, _ := new(big.Int).SetString("1000000000000000000", 10) // 1.0 fiat/token
	return &IntentContext{
		View: &escrow.IntentView{
			IntentHash: "0xintent",
			Intent: escrow.Intent{
				Amount:         big.NewInt(100_000_000), // 100 USDC
				ConversionRate: rate,
				FiatCurrency:   platforms.CurrencyHash("USD"),
				Timestamp:      big.NewInt(1_700_000_000),
			},
		},
		Platform:          platform,
		ExpectedRecipient: "alice-123",
	}
}

func fiat(t *testing.T, whole int64) *big.Int {
	t.Helper()
	scale, _ := new(big.Int).SetString("1000000000000000000", 10)
	return new(big.Int).Mul(big.NewInt(whole), scale)
}

func sentRecord(t *testing.T, amount int64, at int64) PaymentRecord {
	t.Helper()
	ts := time.Unix(at, 0)
	return PaymentRecord{
		Date:        &ts,
		Amount:      fiat(t, amount),
		Currency:    "USD",
		RecipientID: "alice-123",
		SubjectText: "payment",
	}
}

func TestIsPaymentValid(t *testing.T) {
	ctx := intentContext(t, "revolut")

	good := sentRecord(t, 100, 1_700_000_100)
	assert.True(t, IsPaymentValid(&good, ctx))

	over := sentRecord(t, 150, 1_700_000_100)
	assert.True(t, IsPaymentValid(&over, ctx), "overpayment satisfies the intent")

	under := sentRecord(t, 99, 1_700_000_100)
	assert.False(t, IsPaymentValid(&under, ctx))

	incoming := sentRecord(t, 100, 1_700_000_100)
	incoming.SubjectText = ""
	assert.False(t, IsPaymentValid(&incoming, ctx), "records without subject text are incoming, never proof of payment")

	wrongCurrency := sentRecord(t, 100, 1_700_000_100)
	wrongCurrency.Currency = "EUR"
	assert.False(t, IsPaymentValid(&wrongCurrency, ctx))

	early := sentRecord(t, 100, 1_699_999_999)
	assert.False(t, IsPaymentValid(&early, ctx), "payment predating the intent cannot settle it")

	wrongRecipient := sentRecord(t, 100, 1_700_000_100)
	wrongRecipient.RecipientID = "bob-999"
	assert.False(t, IsPaymentValid(&wrongRecipient, ctx))
}

func TestIsPaymentValidUnknownFieldsPass(t *testing.T) {
	ctx := intentContext(t, "revolut")

	rec := PaymentRecord{SubjectText: "payment"}
	assert.True(t, IsPaymentValid(&rec, ctx), "a record with every field unparsed still passes")

	noAmount := sentRecord(t, 100, 1_700_000_100)
	noAmount.Amount = nil
	assert.True(t, IsPaymentValid(&noAmount, ctx))

	noDate := sentRecord(t, 100, 1_700_000_100)
	noDate.Date = nil
	assert.True(t, IsPaymentValid(&noDate, ctx))

	noRecipient := sentRecord(t, 100, 1_700_000_100)
	noRecipient.RecipientID = ""
	assert.True(t, IsPaymentValid(&noRecipient, ctx))

	// An unresolved expected recipient also skips the recipient check.
	unresolved := intentContext(t, "revolut")
	unresolved.ExpectedRecipient = ""
	other := sentRecord(t, 100, 1_700_000_100)
	other.RecipientID = "bob-999"
	assert.True(t, IsPaymentValid(&other, unresolved))
}

func TestIsPaymentValidSkipsFieldsOutsidePlatformCapabilities(t *testing.T) {
	// Venmo's extractor reports no currency field, so whatever ends up in
	// Currency is noise and must not reject the record.
	ctx := intentContext(t, "venmo")

	rec := sentRecord(t, 100, 1_700_000_100)
	rec.Currency = "EUR"
	assert.True(t, IsPaymentValid(&rec, ctx))

	// The same contradiction on a currency-capable platform still rejects.
	capable := intentContext(t, "revolut")
	assert.False(t, IsPaymentValid(&rec, capable))

	// A nil platform applies every check.
	strict := intentContext(t, "venmo")
	strict.Platform = nil
	assert.False(t, IsPaymentValid(&rec, strict))
}

func TestSelectAutoSelectsSingleValidRecord(t *testing.T) {
	ctx := intentContext(t, "revolut")
	r := New(nil)

	set := &RecordSet{
		Records: []PaymentRecord{
			sentRecord(t, 50, 1_700_000_100), // underpayment, invalid
			sentRecord(t, 100, 1_700_000_200),
		},
		Version: 1,
	}

	sel := r.Select(set, ctx, false)
	require.NotNil(t, sel.Auto)
	assert.False(t, sel.RequiresManualChoice)
	assert.Equal(t, fiat(t, 100), sel.Auto.Amount)
}

func TestSelectAutoFiresOncePerVersion(t *testing.T) {
	ctx := intentContext(t, "revolut")
	r := New(nil)

	set := &RecordSet{Records: []PaymentRecord{sentRecord(t, 100, 1_700_000_200)}, Version: 3}

	first := r.Select(set, ctx, false)
	require.NotNil(t, first.Auto)

	again := r.Select(set, ctx, false)
	assert.Nil(t, again.Auto, "re-render of the same version must not re-trigger")
	assert.Len(t, again.Candidates, 1)

	set.Version = 4
	fresh := r.Select(set, ctx, false)
	assert.NotNil(t, fresh.Auto, "a new capture version auto-selects again")
}

func TestSelectDefersDuringManualReview(t *testing.T) {
	ctx := intentContext(t, "revolut")
	r := New(nil)

	set := &RecordSet{Records: []PaymentRecord{sentRecord(t, 100, 1_700_000_200)}, Version: 1}
	sel := r.Select(set, ctx, true)
	assert.Nil(t, sel.Auto)
	assert.Len(t, sel.Candidates, 1)
}

func TestSelectMultipleValidRequiresManualChoice(t *testing.T) {
	ctx := intentContext(t, "revolut")
	r := New(nil)

	set := &RecordSet{
		Records: []PaymentRecord{
			sentRecord(t, 100, 1_700_000_100),
			sentRecord(t, 120, 1_700_000_200),
		},
		Version: 1,
	}

	sel := r.Select(set, ctx, false)
	assert.Nil(t, sel.Auto)
	assert.True(t, sel.RequiresManualChoice)
	assert.Len(t, sel.Candidates, 2)
}

func TestSelectNoValidOffersSentRecords(t *testing.T) {
	ctx := intentContext(t, "revolut")
	r := New(nil)

	incoming := sentRecord(t, 100, 1_700_000_100)
	incoming.SubjectText = ""
	set := &RecordSet{
		Records: []PaymentRecord{
			incoming,
			sentRecord(t, 10, 1_700_000_100), // sent but invalid
		},
		Version: 1,
	}

	sel := r.Select(set, ctx, false)
	assert.Nil(t, sel.Auto)
	assert.False(t, sel.RequiresManualChoice)
	require.Len(t, sel.Candidates, 1, "only sent records are offered for manual choice")
	assert.Equal(t, fiat(t, 10), sel.Candidates[0].Amount)
}

func TestSelectRestoresChronologicalOrderForNewestFirst(t *testing.T) {
	// Revolut captures newest-first; candidates come back oldest-first.
	ctx := intentContext(t, "revolut")
	r := New(nil)

	set := &RecordSet{
		Records: []PaymentRecord{
			sentRecord(t, 120, 1_700_000_300),
			sentRecord(t, 110, 1_700_000_200),
			sentRecord(t, 100, 1_700_000_100),
		},
		Version: 1,
	}

	sel := r.Select(set, ctx, false)
	require.Len(t, sel.Candidates, 3)
	assert.Equal(t, fiat(t, 100), sel.Candidates[0].Amount)
	assert.Equal(t, fiat(t, 120), sel.Candidates[2].Amount)
}

func TestCanGenerateProofHonorsSafetyBuffer(t *testing.T) {
	now := time.Now()
	set := &RecordSet{ExpiresAt: now.Add(time.Minute)}
	assert.True(t, set.CanGenerateProof(now))
	assert.False(t, set.CanGenerateProof(now.Add(31*time.Second)))
	assert.False(t, set.CanGenerateProof(now.Add(30*time.Second)), "exactly at the buffer boundary is too late")
}

func TestWatchExpiryFiresOnce(t *testing.T) {
	set := &RecordSet{ExpiresAt: time.Now().Add(ProofSafetyBuffer + 1500*time.Millisecond)}

	fired := make(chan struct{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go WatchExpiry(ctx, set, func() { close(fired) })

	select {
	case <-fired:
	case <-ctx.Done():
		t.Fatal("expiry callback never fired")
	}
}

func TestRequiredFiat(t *testing.T) {
	rate, _ := new(big.Int).SetString("1050000000000000000", 10)
	intent := &escrow.Intent{Amount: big.NewInt(95_238_095), ConversionRate: rate}

	want, _ := new(big.Int).SetString("99999999750000000000", 10)
	assert.Equal(t, want, RequiredFiat(intent, 6))
}
