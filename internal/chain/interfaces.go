package chain

import (
	"context"
	"math/big"

	"fiatramp/internal/escrow"
)

// Reader reads escrow and ERC-20 state. Implementations return the raw
// string-typed structs consumed by the escrow parsing layer.
type Reader interface {
	// GetDepositViews reads the deposit read composites for the given ids.
	GetDepositViews(ctx context.Context, depositIDs []*big.Int) ([]escrow.RawDepositView, error)
	// GetAccountIntent reads the owner's open intent, nil when none is open.
	GetAccountIntent(ctx context.Context, owner string) (*escrow.RawIntentView, error)
	// TokenBalance reads an ERC-20 balance.
	TokenBalance(ctx context.Context, token, owner string) (*big.Int, error)
	// TokenAllowance reads an ERC-20 allowance.
	TokenAllowance(ctx context.Context, token, owner, spender string) (*big.Int, error)
}

// PendingTx is a broadcast transaction awaiting inclusion.
type PendingTx struct {
	Hash string
	wait func(ctx context.Context) error
}

// Wait blocks until the transaction is mined or ctx is done. Mining has no
// client-side timeout; the caller's latch prevents re-submission meanwhile.
func (p *PendingTx) Wait(ctx context.Context) error {
	if p.wait == nil {
		return nil
	}
	return p.wait(ctx)
}

// SignalIntentParams populates the escrow signalIntent call.
type SignalIntentParams struct {
	DepositID              *big.Int
	TokenAmount            *big.Int
	Recipient              string
	Verifier               string
	CurrencyCodeHash       string
	GatingServiceSignature []byte
}

// CreateDepositParams populates the escrow createDeposit call.
type CreateDepositParams struct {
	Token      string
	Amount     *big.Int
	IntentMin  *big.Int
	IntentMax  *big.Int
	Verifiers  []string
	PayeeData  []escrow.VerificationData
	Currencies [][]escrow.VerifierCurrency
}

// Writer submits state-mutating escrow and ERC-20 transactions. Every error
// it returns is classified as a contract fault; writes are never retried
// automatically.
type Writer interface {
	Approve(ctx context.Context, token, spender string, amount *big.Int) (*PendingTx, error)
	CreateDeposit(ctx context.Context, params CreateDepositParams) (*PendingTx, error)
	SignalIntent(ctx context.Context, params SignalIntentParams) (*PendingTx, error)
	CancelIntent(ctx context.Context, intentHash string) (*PendingTx, error)
	WithdrawDeposit(ctx context.Context, depositID *big.Int) (*PendingTx, error)
	UpdateConversionRate(ctx context.Context, depositID *big.Int, verifier, currencyHash string, rate *big.Int) (*PendingTx, error)
}
