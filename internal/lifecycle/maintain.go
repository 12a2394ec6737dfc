package lifecycle

import (
	"context"
	"math/big"
	"sync"

	"github.com/sirupsen/logrus"

	"fiatramp/internal/chain"
	"fiatramp/internal/faults"
	"fiatramp/internal/metrics"
)

// MaintenanceMachine covers the two narrow maker flows, conversion-rate
// update and deposit withdrawal. Both are configure → sign → mine → refetch
// and share the signing/mining states.
type MaintenanceMachine struct {
	store     *Store
	writer    chain.Writer
	logger    *logrus.Logger
	onSuccess func()

	mu              sync.Mutex
	shouldConfigure bool
}

// NewMaintenanceMachine creates a rate-update/withdraw machine. onSuccess
// refetches the deposit list after a mined transaction.
func NewMaintenanceMachine(store *Store, writer chain.Writer, logger *logrus.Logger, onSuccess func()) *MaintenanceMachine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &MaintenanceMachine{
		store:     store,
		writer:    writer,
		logger:    logger,
		onSuccess: onSuccess,
	}
}

// Arm re-arms the latch for one run.
func (m *MaintenanceMachine) Arm() {
	m.mu.Lock()
	m.shouldConfigure = true
	m.mu.Unlock()
}

func (m *MaintenanceMachine) take() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.shouldConfigure {
		return false
	}
	m.shouldConfigure = false
	return true
}

func (m *MaintenanceMachine) setState(s MaintenanceState) {
	metrics.IntentTransitions.WithLabelValues("maintenance", string(s)).Inc()
	m.store.Set(KeyMaintenanceState, s)
}

// UpdateRate changes one currency's conversion rate on a live deposit.
func (m *MaintenanceMachine) UpdateRate(ctx context.Context, depositID *big.Int, verifier, currencyHash string, rate *big.Int) error {
	if !m.take() {
		return nil
	}
	if rate == nil || rate.Sign() <= 0 {
		m.setState(MaintenanceFailed)
		return faults.Validation("conversionRate", "conversion rate must be positive")
	}
	return m.submit(ctx, func(ctx context.Context) (*chain.PendingTx, error) {
		return m.writer.UpdateConversionRate(ctx, depositID, verifier, currencyHash, rate)
	})
}

// Withdraw pulls the remaining deposit balance back to the maker.
func (m *MaintenanceMachine) Withdraw(ctx context.Context, depositID *big.Int) error {
	if !m.take() {
		return nil
	}
	return m.submit(ctx, func(ctx context.Context) (*chain.PendingTx, error) {
		return m.writer.WithdrawDeposit(ctx, depositID)
	})
}

func (m *MaintenanceMachine) submit(ctx context.Context, send func(context.Context) (*chain.PendingTx, error)) error {
	m.setState(MaintenanceSigning)
	tx, err := send(ctx)
	if err != nil {
		m.setState(MaintenanceFailed)
		return err
	}
	m.setState(MaintenanceMining)
	if err := tx.Wait(ctx); err != nil {
		m.setState(MaintenanceFailed)
		return err
	}
	m.setState(MaintenanceSucceeded)
	if m.onSuccess != nil {
		m.onSuccess()
	}
	return nil
}
