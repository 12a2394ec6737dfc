package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"

	"fiatramp/internal/escrow"
	"fiatramp/internal/faults"
)

// FakeClient is an in-memory Reader/Writer for tests and local development.
// Deposits and intents live in maps; every write mines instantly.
type FakeClient struct {
	mu sync.Mutex

	deposits      map[string]*escrow.RawDepositView // keyed by decimal deposit id
	intentByOwner map[string]*escrow.RawIntentView  // keyed by lowercase owner
	balances      map[string]*big.Int               // token|owner
	allowances    map[string]*big.Int               // token|owner|spender

	nextDepositID int64
	nextNonce     int64

	// FailNextWrite, when set, makes the next write return a contract fault.
	FailNextWrite error
	// Owner is the address writes are attributed to.
	Owner string
}

// NewFakeClient creates an empty fake chain.
func NewFakeClient(owner string) *FakeClient {
	return &FakeClient{
		deposits:      make(map[string]*escrow.RawDepositView),
		intentByOwner: make(map[string]*escrow.RawIntentView),
		balances:      make(map[string]*big.Int),
		allowances:    make(map[string]*big.Int),
		nextDepositID: 1,
		Owner:         owner,
	}
}

func balanceKey(token, owner string) string {
	return strings.ToLower(token) + "|" + strings.ToLower(owner)
}

func allowanceKey(token, owner, spender string) string {
	return strings.ToLower(token) + "|" + strings.ToLower(owner) + "|" + strings.ToLower(spender)
}

// SetBalance seeds an ERC-20 balance.
func (f *FakeClient) SetBalance(token, owner string, amount *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[balanceKey(token, owner)] = new(big.Int).Set(amount)
}

// SetAllowance seeds an ERC-20 allowance.
func (f *FakeClient) SetAllowance(token, owner, spender string, amount *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allowances[allowanceKey(token, owner, spender)] = new(big.Int).Set(amount)
}

// SeedDeposit installs a deposit view verbatim.
func (f *FakeClient) SeedDeposit(view escrow.RawDepositView) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := view
	f.deposits[view.DepositID] = &copied
}

// SeedIntent installs an intent view for its owner.
func (f *FakeClient) SeedIntent(view escrow.RawIntentView) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := view
	f.intentByOwner[strings.ToLower(view.Intent.Owner)] = &copied
}

// ClearIntent removes the owner's open intent, simulating fulfillment.
func (f *FakeClient) ClearIntent(owner string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.intentByOwner, strings.ToLower(owner))
}

func (f *FakeClient) GetDepositViews(_ context.Context, depositIDs []*big.Int) ([]escrow.RawDepositView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	views := make([]escrow.RawDepositView, 0, len(depositIDs))
	for _, id := range depositIDs {
		if v, ok := f.deposits[id.String()]; ok {
			views = append(views, *v)
		}
	}
	return views, nil
}

func (f *FakeClient) GetAccountIntent(_ context.Context, owner string) (*escrow.RawIntentView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	v, ok := f.intentByOwner[strings.ToLower(owner)]
	if !ok {
		return nil, nil
	}
	copied := *v
	return &copied, nil
}

func (f *FakeClient) TokenBalance(_ context.Context, token, owner string) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if b, ok := f.balances[balanceKey(token, owner)]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

func (f *FakeClient) TokenAllowance(_ context.Context, token, owner, spender string) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if a, ok := f.allowances[allowanceKey(token, owner, spender)]; ok {
		return new(big.Int).Set(a), nil
	}
	return big.NewInt(0), nil
}

func (f *FakeClient) failWrite() error {
	if f.FailNextWrite != nil {
		err := f.FailNextWrite
		f.FailNextWrite = nil
		return faults.Contract(err)
	}
	return nil
}

func (f *FakeClient) minedTx() *PendingTx {
	f.nextNonce++
	hash := crypto.Keccak256Hash([]byte(fmt.Sprintf("fake-tx-%d", f.nextNonce)))
	return &PendingTx{Hash: hash.Hex()}
}

func (f *FakeClient) Approve(_ context.Context, token, spender string, amount *big.Int) (*PendingTx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failWrite(); err != nil {
		return nil, err
	}
	f.allowances[allowanceKey(token, f.Owner, spender)] = new(big.Int).Set(amount)
	return f.minedTx(), nil
}

func (f *FakeClient) CreateDeposit(_ context.Context, params CreateDepositParams) (*PendingTx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failWrite(); err != nil {
		return nil, err
	}

	id := fmt.Sprintf("%d", f.nextDepositID)
	f.nextDepositID++

	verifiers := make([]escrow.RawVerifier, 0, len(params.Verifiers))
	for i, addr := range params.Verifiers {
		rv := escrow.RawVerifier{Verifier: addr}
		if i < len(params.PayeeData) {
			rv.VerificationData = params.PayeeData[i]
		}
		if i < len(params.Currencies) {
			for _, cur := range params.Currencies[i] {
				rv.Currencies = append(rv.Currencies, escrow.RawVerifierCurrency{
					Code:           cur.Code,
					ConversionRate: cur.ConversionRate.String(),
				})
			}
		}
		verifiers = append(verifiers, rv)
	}

	f.deposits[id] = &escrow.RawDepositView{
		DepositID:          id,
		AvailableLiquidity: params.Amount.String(),
		Deposit: escrow.RawDeposit{
			Depositor:               f.Owner,
			Token:                   params.Token,
			DepositAmount:           params.Amount.String(),
			RemainingDepositAmount:  params.Amount.String(),
			OutstandingIntentAmount: "0",
			IntentAmountRange: escrow.RawRange{
				Min: params.IntentMin.String(),
				Max: params.IntentMax.String(),
			},
			AcceptingIntents: true,
		},
		Verifiers: verifiers,
	}
	return f.minedTx(), nil
}

func (f *FakeClient) SignalIntent(_ context.Context, params SignalIntentParams) (*PendingTx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failWrite(); err != nil {
		return nil, err
	}

	deposit, ok := f.deposits[params.DepositID.String()]
	if !ok {
		return nil, faults.Contract(fmt.Errorf("execution reverted: DepositNotFound"))
	}

	hash := crypto.Keccak256Hash([]byte(fmt.Sprintf("intent-%s-%s", f.Owner, params.DepositID))).Hex()
	f.intentByOwner[strings.ToLower(f.Owner)] = &escrow.RawIntentView{
		IntentHash: hash,
		Intent: escrow.RawIntent{
			Owner:           f.Owner,
			To:              params.Recipient,
			DepositID:       params.DepositID.String(),
			Amount:          params.TokenAmount.String(),
			Timestamp:       "0",
			PaymentVerifier: params.Verifier,
			FiatCurrency:    params.CurrencyCodeHash,
			ConversionRate:  "0",
		},
		Deposit: *deposit,
	}
	deposit.Deposit.IntentHashes = append(deposit.Deposit.IntentHashes, hash)
	return f.minedTx(), nil
}

func (f *FakeClient) CancelIntent(_ context.Context, intentHash string) (*PendingTx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failWrite(); err != nil {
		return nil, err
	}
	for owner, view := range f.intentByOwner {
		if strings.EqualFold(view.IntentHash, intentHash) {
			delete(f.intentByOwner, owner)
		}
	}
	return f.minedTx(), nil
}

func (f *FakeClient) WithdrawDeposit(_ context.Context, depositID *big.Int) (*PendingTx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failWrite(); err != nil {
		return nil, err
	}
	delete(f.deposits, depositID.String())
	return f.minedTx(), nil
}

func (f *FakeClient) UpdateConversionRate(_ context.Context, depositID *big.Int, verifier, currencyHash string, rate *big.Int) (*PendingTx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failWrite(); err != nil {
		return nil, err
	}

	deposit, ok := f.deposits[depositID.String()]
	if !ok {
		return nil, faults.Contract(fmt.Errorf("execution reverted: DepositNotFound"))
	}
	for i := range deposit.Verifiers {
		if !strings.EqualFold(deposit.Verifiers[i].Verifier, verifier) {
			continue
		}
		for j := range deposit.Verifiers[i].Currencies {
			if strings.EqualFold(deposit.Verifiers[i].Currencies[j].Code, currencyHash) {
				deposit.Verifiers[i].Currencies[j].ConversionRate = rate.String()
			}
		}
	}
	return f.minedTx(), nil
}
