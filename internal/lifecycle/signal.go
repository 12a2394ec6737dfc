package lifecycle

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sirupsen/logrus"

	"fiatramp/internal/apiclient"
	"fiatramp/internal/chain"
	"fiatramp/internal/escrow"
	"fiatramp/internal/metrics"
	"fiatramp/internal/platforms"
)

// SignalInput is the taker's order: which deposit, how many tokens, where the
// payout goes.
type SignalInput struct {
	Deposit      *escrow.DepositView
	PlatformID   string
	CurrencyCode string // ISO code; hashed before going on-chain
	TokenAmount  *big.Int
	Recipient    string
	PayeeDetails string // hashed payee details of the chosen verifier
	ChainID      int64
}

// SignalMachine drives intent signaling: local validation, the signed-intent
// fetch from the curator and the escrow signalIntent transaction.
type SignalMachine struct {
	store   *Store
	writer  chain.Writer
	curator *apiclient.Client
	events  Publisher
	logger  *logrus.Logger

	mu              sync.Mutex
	shouldConfigure bool
}

// NewSignalMachine creates an intent-signaling machine.
func NewSignalMachine(store *Store, writer chain.Writer, curator *apiclient.Client, events Publisher, logger *logrus.Logger) *SignalMachine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &SignalMachine{
		store:   store,
		writer:  writer,
		curator: curator,
		events:  events,
		logger:  logger,
	}
}

// Arm re-arms the latch for one run.
func (m *SignalMachine) Arm() {
	m.mu.Lock()
	m.shouldConfigure = true
	m.mu.Unlock()
}

func (m *SignalMachine) take() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.shouldConfigure {
		return false
	}
	m.shouldConfigure = false
	return true
}

func (m *SignalMachine) setState(s SignalState) {
	metrics.IntentTransitions.WithLabelValues("signal", string(s)).Inc()
	m.store.Set(KeySignalState, s)
}

// Validate checks the order against the deposit without network traffic.
func (m *SignalMachine) Validate(input SignalInput) SignalState {
	if input.TokenAmount == nil || input.TokenAmount.Sign() <= 0 {
		return SignalInvalidAmount
	}
	platform, ok := platforms.Get(input.PlatformID)
	if !ok {
		return SignalInvalidAmount
	}
	if input.TokenAmount.Cmp(platform.MinOrderAmount) < 0 {
		return SignalInvalidAmount
	}
	if input.Deposit == nil {
		return SignalInvalidAmount
	}
	if input.TokenAmount.Cmp(input.Deposit.AvailableLiquidity) > 0 {
		return SignalInvalidAmount
	}
	rng := input.Deposit.Deposit.IntentAmountRange
	if rng.Min != nil && input.TokenAmount.Cmp(rng.Min) < 0 {
		return SignalInvalidAmount
	}
	// A zero max means the deposit sets no per-order ceiling.
	if rng.Max != nil && rng.Max.Sign() > 0 && input.TokenAmount.Cmp(rng.Max) > 0 {
		return SignalInvalidAmount
	}
	return SignalCreateOrder
}

// Run executes one signaling attempt. The curator fetch goes through the
// shared retry policy; the chain transaction is never auto-retried — a revert
// lands in TransactionFailed and the user must re-arm.
func (m *SignalMachine) Run(ctx context.Context, input SignalInput) error {
	if !m.take() {
		return nil
	}

	if state := m.Validate(input); state != SignalCreateOrder {
		m.setState(state)
		return nil
	}
	m.setState(SignalCreateOrder)

	m.setState(SignalFetching)
	signed, err := m.curator.VerifyIntent(ctx, apiclient.VerifyIntentRequest{
		ProcessorName:    input.PlatformID,
		DepositID:        input.Deposit.DepositID.String(),
		TokenAmount:      input.TokenAmount.String(),
		PayeeDetails:     input.PayeeDetails,
		ToAddress:        input.Recipient,
		FiatCurrencyCode: input.CurrencyCode,
		ChainID:          input.ChainID,
	})
	if err != nil {
		m.setState(SignalFetchFailed)
		return err
	}

	depositID, ok := new(big.Int).SetString(signed.DepositID, 10)
	if !ok {
		depositID = input.Deposit.DepositID
	}
	tokenAmount, ok := new(big.Int).SetString(signed.TokenAmount, 10)
	if !ok {
		tokenAmount = input.TokenAmount
	}
	signature, err := hexutil.Decode(signed.GatingServiceSignature)
	if err != nil {
		m.setState(SignalFetchFailed)
		return err
	}

	m.setState(SignalSigning)
	tx, err := m.writer.SignalIntent(ctx, chain.SignalIntentParams{
		DepositID:              depositID,
		TokenAmount:            tokenAmount,
		Recipient:              signed.RecipientAddress,
		Verifier:               signed.VerifierAddress,
		CurrencyCodeHash:       signed.CurrencyCodeHash,
		GatingServiceSignature: signature,
	})
	if err != nil {
		m.setState(SignalTxFailed)
		return err
	}

	m.setState(SignalMining)
	if err := tx.Wait(ctx); err != nil {
		m.setState(SignalTxFailed)
		return err
	}

	m.setState(SignalDone)
	m.logger.WithFields(logrus.Fields{
		"depositId": depositID.String(),
		"amount":    tokenAmount.String(),
		"txHash":    tx.Hash,
	}).Info("intent signaled")
	if m.events != nil {
		if err := m.events.Publish(SubjectIntentSignaled, map[string]interface{}{
			"depositId": depositID.String(),
			"amount":    tokenAmount.String(),
			"txHash":    tx.Hash,
		}); err != nil {
			m.logger.WithField("error", err).Warn("event publish failed")
		}
	}
	return nil
}
