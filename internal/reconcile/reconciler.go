package reconcile

import (
	"context"
	"encoding/json"
	"math/big"
	"time"

	"github.com/sirupsen/logrus"

	"fiatramp/internal/conversion"
	"fiatramp/internal/escrow"
	"fiatramp/internal/metrics"
	"fiatramp/internal/platforms"
)

// PaymentRecord is one externally captured payment, consumed read-only. A nil
// pointer or empty string means the platform extractor could not parse that
// field for this record, not that the field was absent from the payment.
type PaymentRecord struct {
	Date        *time.Time      `json:"date"`
	Amount      *big.Int        `json:"amount"` // fiat, 18 dp fixed point
	Currency    string          `json:"currency"`
	RecipientID string          `json:"recipientId"`
	SubjectText string          `json:"subjectText"`
	Raw         json.RawMessage `json:"raw,omitempty"`
}

// RecordSet is one batch of captured records. Version increments only when
// the underlying capture changes; a re-render of the same batch keeps its
// version.
type RecordSet struct {
	Records   []PaymentRecord
	ExpiresAt time.Time
	Version   uint64
}

// ProofSafetyBuffer is subtracted from the record-set expiry when deciding
// whether proof generation can still finish before server-side invalidation.
const ProofSafetyBuffer = 30 * time.Second

// CanGenerateProof reports whether a proof started now would complete inside
// the record set's validity window.
func (s *RecordSet) CanGenerateProof(now time.Time) bool {
	return now.Before(s.ExpiresAt.Add(-ProofSafetyBuffer))
}

// IntentContext bundles everything needed to judge records against one live
// intent. ExpectedRecipient is the raw payment destination resolved from the
// deposit's hashed payee details; empty when the resolution is unavailable.
type IntentContext struct {
	View              *escrow.IntentView
	Platform          *platforms.Platform
	ExpectedRecipient string
	TokenDecimals     int
}

func (c *IntentContext) tokenDecimals() int {
	if c.TokenDecimals == 0 {
		return conversion.DefaultTokenDecimals
	}
	return c.TokenDecimals
}

// RequiredFiat is the fiat amount (18 dp) the taker must have paid to satisfy
// the intent at its locked conversion rate.
func RequiredFiat(intent *escrow.Intent, tokenDecimals int) *big.Int {
	return conversion.FiatFromTokenAmount(intent.Amount, intent.ConversionRate, tokenDecimals)
}

// IsPaymentValid decides whether one record proves payment for the intent.
// Unparseable fields pass: a record with partial evidence is not rejected
// outright, it falls through to manual selection. This "unknown passes" bias
// is deliberate — tightening it would silently block legitimate payments
// whose extractor could not parse a field. A field outside the platform's
// capability set is unknown by definition, whatever the record carries.
func IsPaymentValid(record *PaymentRecord, ctx *IntentContext) bool {
	caps := platforms.CapabilitySet{Subject: true, Amount: true, Currency: true, Timestamp: true, Recipient: true}
	if ctx.Platform != nil {
		caps = ctx.Platform.Capabilities
	}

	// Only sent payments qualify; incoming records carry no subject text.
	if record.SubjectText == "" {
		return false
	}

	intent := &ctx.View.Intent

	// Underpayment rejects; equal or greater passes.
	if caps.Amount && record.Amount != nil {
		required := RequiredFiat(intent, ctx.tokenDecimals())
		if record.Amount.Cmp(required) < 0 {
			return false
		}
	}

	if caps.Currency && record.Currency != "" {
		code, ok := platforms.ResolveCurrency(intent.FiatCurrency)
		if !ok || code != record.Currency {
			return false
		}
	}

	// Payment must not predate intent creation.
	if caps.Timestamp && record.Date != nil && intent.Timestamp != nil {
		if record.Date.Unix() < intent.Timestamp.Int64() {
			return false
		}
	}

	if caps.Recipient && record.RecipientID != "" && ctx.ExpectedRecipient != "" {
		if record.RecipientID != ctx.ExpectedRecipient {
			return false
		}
	}

	return true
}

// Selection is the outcome of running the reconciler over a record set.
type Selection struct {
	// Auto is non-nil when exactly one record was valid and it was selected
	// without human involvement.
	Auto *PaymentRecord
	// Candidates are the records offered for manual choice when Auto is nil.
	Candidates []PaymentRecord
	// RequiresManualChoice is true when several records were valid; none may
	// be picked silently, to avoid acting on the wrong counterpart's payment.
	RequiresManualChoice bool
}

// Reconciler matches captured payment records against one live intent.
type Reconciler struct {
	logger *logrus.Logger
	// lastAutoVersion remembers the record-set version we auto-selected for,
	// so a re-render of the same set cannot re-trigger verification.
	lastAutoVersion uint64
	autoFired       bool
}

// New creates a reconciler for a single intent's lifetime.
func New(logger *logrus.Logger) *Reconciler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Reconciler{logger: logger}
}

// Select evaluates every record, restores chronological order when the
// platform captures newest-first, and applies the auto-select rule: exactly
// one valid record, no manual review in progress, once per set version.
func (r *Reconciler) Select(set *RecordSet, ctx *IntentContext, manualReviewInProgress bool) Selection {
	valid := make([]PaymentRecord, 0, len(set.Records))
	sent := make([]PaymentRecord, 0, len(set.Records))
	for i := range set.Records {
		rec := set.Records[i]
		if rec.SubjectText != "" {
			sent = append(sent, rec)
		}
		if IsPaymentValid(&rec, ctx) {
			valid = append(valid, rec)
		}
	}

	if ctx.Platform != nil && ctx.Platform.NewestFirst {
		reverse(valid)
		reverse(sent)
	}

	switch {
	case len(valid) == 1:
		if manualReviewInProgress {
			return Selection{Candidates: valid}
		}
		if r.autoFired && r.lastAutoVersion == set.Version {
			// Same batch re-presented; do not re-trigger verification.
			return Selection{Candidates: valid}
		}
		r.autoFired = true
		r.lastAutoVersion = set.Version
		metrics.ReconcileOutcomes.WithLabelValues("auto").Inc()
		r.logger.WithFields(logrus.Fields{
			"intentHash": ctx.View.IntentHash,
			"version":    set.Version,
		}).Info("auto-selected the single valid payment record")
		return Selection{Auto: &valid[0]}

	case len(valid) == 0:
		metrics.ReconcileOutcomes.WithLabelValues("none").Inc()
		return Selection{Candidates: sent}

	default:
		metrics.ReconcileOutcomes.WithLabelValues("manual").Inc()
		r.logger.WithFields(logrus.Fields{
			"intentHash": ctx.View.IntentHash,
			"candidates": len(valid),
		}).Info("multiple valid payment records, deferring to manual choice")
		return Selection{Candidates: valid, RequiresManualChoice: true}
	}
}

func reverse(records []PaymentRecord) {
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
}

// WatchExpiry ticks once per second and invokes onExpired the first time the
// record set can no longer safely start proof generation. Returns when the
// context is done or the callback fired.
func WatchExpiry(ctx context.Context, set *RecordSet, onExpired func()) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !set.CanGenerateProof(now) {
				metrics.RecordSetExpiries.Inc()
				onExpired()
				return
			}
		}
	}
}
