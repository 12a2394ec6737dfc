package lifecycle

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"fiatramp/internal/chain"
	"fiatramp/internal/escrow"
	"fiatramp/internal/metrics"
	"fiatramp/internal/reconcile"
)

// ProofProducer turns a selected payment record into a settlement proof. The
// proof pipeline is an external collaborator; only its completion status
// matters here.
type ProofProducer interface {
	Generate(ctx context.Context, intentHash string, record *reconcile.PaymentRecord) error
}

// FulfillmentMachine watches a signaled intent through payment verification
// and on-chain release, or into expiry.
type FulfillmentMachine struct {
	store  *Store
	reader chain.Reader
	writer chain.Writer
	proofs ProofProducer
	events Publisher
	logger *logrus.Logger

	owner        string
	intentTTL    time.Duration
	pollInterval time.Duration
	now          func() time.Time
}

// NewFulfillmentMachine creates a payment-completion machine. intentTTL is
// the on-chain intent lifetime after which the intent is cancel-eligible.
func NewFulfillmentMachine(store *Store, reader chain.Reader, writer chain.Writer, proofs ProofProducer, events Publisher, logger *logrus.Logger, owner string, intentTTL time.Duration) *FulfillmentMachine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &FulfillmentMachine{
		store:        store,
		reader:       reader,
		writer:       writer,
		proofs:       proofs,
		events:       events,
		logger:       logger,
		owner:        owner,
		intentTTL:    intentTTL,
		pollInterval: 2 * time.Second,
		now:          time.Now,
	}
}

func (m *FulfillmentMachine) setState(s FulfillmentState) {
	metrics.IntentTransitions.WithLabelValues("fulfillment", string(s)).Inc()
	m.store.Set(KeyFulfillmentState, s)
}

// Complete hands the selected record to the proof producer, then polls escrow
// reads until the intent hash disappears from the deposit's intentHashes. If
// the intent reaches its on-chain expiry before that, the machine lands in
// Expired and the intent becomes cancel-eligible.
func (m *FulfillmentMachine) Complete(ctx context.Context, view *escrow.IntentView, set *reconcile.RecordSet, record *reconcile.PaymentRecord) error {
	if !set.CanGenerateProof(m.now()) {
		// Stale capture; verification must wait for a refreshed record set.
		m.setState(FulfillmentAwaitingRecord)
		return nil
	}

	m.setState(FulfillmentGeneratingProof)
	if err := m.proofs.Generate(ctx, view.IntentHash, record); err != nil {
		m.setState(FulfillmentFailed)
		return err
	}

	if m.events != nil {
		if err := m.events.Publish(SubjectPaymentVerified, map[string]interface{}{
			"intentHash": view.IntentHash,
		}); err != nil {
			m.logger.WithField("error", err).Warn("event publish failed")
		}
	}

	m.setState(FulfillmentAwaitingOnchain)
	return m.awaitRelease(ctx, view)
}

// awaitRelease polls until the counterpart fulfillment clears the intent.
func (m *FulfillmentMachine) awaitRelease(ctx context.Context, view *escrow.IntentView) error {
	expiry := m.expiryOf(&view.Intent)
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		cleared, err := m.intentCleared(ctx, view)
		if err != nil {
			m.logger.WithFields(logrus.Fields{
				"intentHash": view.IntentHash,
				"error":      err,
			}).Warn("escrow poll failed")
			continue
		}
		if cleared {
			m.setState(FulfillmentDone)
			m.logger.WithField("intentHash", view.IntentHash).Info("intent released on-chain")
			return nil
		}

		if !expiry.IsZero() && m.now().After(expiry) {
			m.setState(FulfillmentExpired)
			if m.events != nil {
				if err := m.events.Publish(SubjectIntentExpired, map[string]interface{}{
					"intentHash": view.IntentHash,
				}); err != nil {
					m.logger.WithField("error", err).Warn("event publish failed")
				}
			}
			return nil
		}
	}
}

// intentCleared re-reads the source deposit and checks whether the intent
// hash is still listed. The read also refreshes the shared deposit snapshot,
// releasing the deposit-side liquidity once the hash is gone.
func (m *FulfillmentMachine) intentCleared(ctx context.Context, view *escrow.IntentView) (bool, error) {
	raws, err := m.reader.GetDepositViews(ctx, []*big.Int{view.Intent.DepositID})
	if err != nil {
		return false, err
	}
	if len(raws) == 0 {
		// Deposit fully withdrawn; nothing holds the intent anymore.
		return true, nil
	}
	parsed, err := escrow.ParseDepositView(raws[0])
	if err != nil {
		return false, err
	}
	m.store.Set(KeyDepositViews, []escrow.DepositView{parsed})

	for _, h := range parsed.Deposit.IntentHashes {
		if equalHashes(h, view.IntentHash) {
			return false, nil
		}
	}
	return true, nil
}

// CancelExpired cancels a cancel-eligible intent, releasing its liquidity.
func (m *FulfillmentMachine) CancelExpired(ctx context.Context, intentHash string) error {
	if state, _ := m.store.GetState(KeyFulfillmentState).(FulfillmentState); state != FulfillmentExpired {
		return nil
	}
	tx, err := m.writer.CancelIntent(ctx, intentHash)
	if err != nil {
		return err
	}
	if err := tx.Wait(ctx); err != nil {
		return err
	}
	m.setState(FulfillmentAwaitingRecord)
	return nil
}

func (m *FulfillmentMachine) expiryOf(intent *escrow.Intent) time.Time {
	if m.intentTTL <= 0 || intent.Timestamp == nil {
		return time.Time{}
	}
	return time.Unix(intent.Timestamp.Int64(), 0).Add(m.intentTTL)
}

func equalHashes(a, b string) bool {
	return strings.EqualFold(a, b)
}
