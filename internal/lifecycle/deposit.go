package lifecycle

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fiatramp/internal/apiclient"
	"fiatramp/internal/chain"
	"fiatramp/internal/escrow"
	"fiatramp/internal/faults"
	"fiatramp/internal/metrics"
	"fiatramp/internal/platforms"
)

// Publisher fans lifecycle transitions out to interested consumers. Publishing
// is best-effort: a failed publish is logged and never blocks a machine.
type Publisher interface {
	Publish(subject string, payload interface{}) error
}

// Event subjects.
const (
	SubjectDepositCreated  = "ramp.deposit.created"
	SubjectIntentSignaled  = "ramp.intent.signaled"
	SubjectPaymentVerified = "ramp.payment.verified"
	SubjectIntentExpired   = "ramp.intent.expired"
)

// allowanceSettleDelay is how long to wait after an approval mines before
// re-reading the allowance. RPC nodes lag the chain head; reading immediately
// would show the stale allowance and flip the machine back to
// ApprovalRequired.
const allowanceSettleDelay = 2 * time.Second

// PlatformConfig is one selected platform in a deposit being configured.
type PlatformConfig struct {
	PlatformID   string
	PayeeDetails string
	// Rates maps ISO currency codes to fiat-per-token conversion rates
	// (18 dp fixed point).
	Rates map[string]*big.Int
}

// DepositInput is the maker's deposit configuration.
type DepositInput struct {
	Amount    *big.Int
	IntentMin *big.Int
	IntentMax *big.Int
	Platforms []PlatformConfig
}

// DepositMachine drives deposit creation: validation, payee-details posting,
// the interposed ERC-20 approval and the createDeposit transaction.
type DepositMachine struct {
	store   *Store
	reader  chain.Reader
	writer  chain.Writer
	curator *apiclient.Client
	events  Publisher
	logger  *logrus.Logger

	owner      string
	token      string
	escrowAddr string
	minDeposit *big.Int
	gating     string // intent gating service address posted with payee data

	mu sync.Mutex
	// shouldConfigure is the single-writer latch: cleared immediately before
	// firing and re-armed only by a fresh user action via Arm.
	shouldConfigure bool
	// isInApprovalFlow stays set from approval mining success until the
	// allowance read confirms the new value, so the state cannot flicker back
	// to ApprovalRequired while RPC nodes catch up.
	isInApprovalFlow bool

	sleep     func(time.Duration)
	onSuccess func()
}

// DepositMachineConfig wires a deposit machine.
type DepositMachineConfig struct {
	Store      *Store
	Reader     chain.Reader
	Writer     chain.Writer
	Curator    *apiclient.Client
	Events     Publisher
	Logger     *logrus.Logger
	Owner      string
	Token      string
	EscrowAddr string
	MinDeposit *big.Int
	Gating     string
	// OnSuccess runs after a successful deposit to refresh balances,
	// allowance and the deposit list.
	OnSuccess func()
}

// NewDepositMachine creates a deposit-creation machine.
func NewDepositMachine(cfg DepositMachineConfig) *DepositMachine {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	minDeposit := cfg.MinDeposit
	if minDeposit == nil {
		minDeposit = big.NewInt(0)
	}
	return &DepositMachine{
		store:      cfg.Store,
		reader:     cfg.Reader,
		writer:     cfg.Writer,
		curator:    cfg.Curator,
		events:     cfg.Events,
		logger:     logger,
		owner:      cfg.Owner,
		token:      cfg.Token,
		escrowAddr: cfg.EscrowAddr,
		minDeposit: minDeposit,
		gating:     cfg.Gating,
		sleep:      time.Sleep,
		onSuccess:  cfg.OnSuccess,
	}
}

// Arm re-arms the latch. Must be called on every fresh user action before Run.
func (m *DepositMachine) Arm() {
	m.mu.Lock()
	m.shouldConfigure = true
	m.mu.Unlock()
}

// take clears the latch, returning whether it was armed.
func (m *DepositMachine) take() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.shouldConfigure {
		return false
	}
	m.shouldConfigure = false
	return true
}

func (m *DepositMachine) setState(s DepositState) {
	metrics.IntentTransitions.WithLabelValues("deposit", string(s)).Inc()
	m.store.Set(KeyDepositState, s)
}

// Validate classifies the input without touching the network. It returns the
// sticky validation state the machine would land in, or DepositValid.
func (m *DepositMachine) Validate(ctx context.Context, input DepositInput) (DepositState, error) {
	if input.Amount == nil || input.Amount.Sign() <= 0 {
		return DepositMissingAmounts, nil
	}
	if input.Amount.Cmp(m.minDeposit) <= 0 {
		return DepositMissingAmounts, nil
	}
	if input.IntentMin == nil || input.IntentMax == nil ||
		input.IntentMin.Sign() <= 0 || input.IntentMax.Cmp(input.IntentMin) < 0 {
		return DepositMissingMinMax, nil
	}
	if len(input.Platforms) == 0 {
		return DepositMissingPlatforms, nil
	}
	for _, pc := range input.Platforms {
		if _, ok := platforms.Get(pc.PlatformID); !ok {
			return DepositMissingPlatforms, nil
		}
		if pc.PayeeDetails == "" {
			return DepositMissingPayeeDetails, nil
		}
		nonZero := false
		for _, rate := range pc.Rates {
			if rate != nil && rate.Sign() > 0 {
				nonZero = true
				break
			}
		}
		if !nonZero {
			return DepositInvalidCurrencyRates, nil
		}
	}

	balance, err := m.reader.TokenBalance(ctx, m.token, m.owner)
	if err != nil {
		return DepositFailed, err
	}
	if input.Amount.Cmp(balance) > 0 {
		return DepositMissingAmounts, nil
	}
	return DepositValid, nil
}

// Run executes the whole creation flow. A no-op unless Arm was called since
// the last run.
func (m *DepositMachine) Run(ctx context.Context, input DepositInput) error {
	if !m.take() {
		return nil
	}

	state, err := m.Validate(ctx, input)
	if err != nil {
		m.setState(DepositFailed)
		return err
	}
	if state != DepositValid {
		// Sticky validation state; a new Arm+Run is required.
		m.setState(state)
		return nil
	}

	m.setState(DepositValidatePayee)
	verifiers, payeeData, currencies, err := m.postPayeeDetails(ctx, input.Platforms)
	if err != nil {
		m.setState(DepositFailed)
		return err
	}

	if err := m.ensureAllowance(ctx, input.Amount); err != nil {
		m.setState(DepositFailed)
		return err
	}

	m.setState(DepositValid)
	m.setState(DepositSigning)
	tx, err := m.writer.CreateDeposit(ctx, chain.CreateDepositParams{
		Token:      m.token,
		Amount:     input.Amount,
		IntentMin:  input.IntentMin,
		IntentMax:  input.IntentMax,
		Verifiers:  verifiers,
		PayeeData:  payeeData,
		Currencies: currencies,
	})
	if err != nil {
		m.setState(DepositFailed)
		return err
	}

	m.setState(DepositMining)
	if err := tx.Wait(ctx); err != nil {
		m.setState(DepositFailed)
		return err
	}

	m.setState(DepositSucceeded)
	m.publish(SubjectDepositCreated, map[string]interface{}{
		"owner":  m.owner,
		"token":  m.token,
		"amount": input.Amount.String(),
		"txHash": tx.Hash,
	})
	if m.onSuccess != nil {
		m.onSuccess()
	}
	return nil
}

// postPayeeDetails posts every platform's payee details to the curator and
// assembles the createDeposit verifier arrays. Raw payment destinations never
// go on-chain; only the curator-assigned hashes do.
func (m *DepositMachine) postPayeeDetails(ctx context.Context, configs []PlatformConfig) ([]string, []escrow.VerificationData, [][]escrow.VerifierCurrency, error) {
	m.setState(DepositPostingPayee)

	verifiers := make([]string, 0, len(configs))
	payeeData := make([]escrow.VerificationData, 0, len(configs))
	currencies := make([][]escrow.VerifierCurrency, 0, len(configs))

	for _, pc := range configs {
		details, err := m.curator.CreateMakerDetails(ctx, apiclient.MakerDetailsRequest{
			Platform:     pc.PlatformID,
			PayeeDetails: pc.PayeeDetails,
		})
		if err != nil {
			return nil, nil, nil, err
		}

		platform, _ := platforms.Get(pc.PlatformID)
		entries := make([]escrow.VerifierCurrency, 0, len(pc.Rates))
		for code, rate := range pc.Rates {
			if rate == nil || rate.Sign() <= 0 {
				continue
			}
			hash, ok := platform.Currencies[code]
			if !ok {
				return nil, nil, nil, faults.Validation("rates", "currency "+code+" is not supported by "+pc.PlatformID)
			}
			entries = append(entries, escrow.VerifierCurrency{
				Code:           hash,
				ConversionRate: rate,
			})
		}

		verifiers = append(verifiers, verifierAddressFor(pc.PlatformID))
		payeeData = append(payeeData, escrow.VerificationData{
			IntentGatingService: m.gating,
			PayeeDetails:        details.HashedOnchainID,
			Data:                "0x",
		})
		currencies = append(currencies, entries)
	}
	return verifiers, payeeData, currencies, nil
}

// ensureAllowance interposes ERC-20 approvals until the escrow allowance
// covers the deposit amount.
func (m *DepositMachine) ensureAllowance(ctx context.Context, amount *big.Int) error {
	for {
		m.mu.Lock()
		inFlow := m.isInApprovalFlow
		m.mu.Unlock()

		allowance, err := m.reader.TokenAllowance(ctx, m.token, m.owner, m.escrowAddr)
		if err != nil {
			return err
		}
		if allowance.Cmp(amount) >= 0 {
			m.mu.Lock()
			m.isInApprovalFlow = false
			m.mu.Unlock()
			return nil
		}

		if inFlow {
			// Approval already mined; the node is still serving the stale
			// allowance. Hold state and re-read after the settle window.
			m.sleep(allowanceSettleDelay)
			continue
		}

		m.setState(DepositApprovalRequired)
		m.setState(DepositSigning)
		tx, err := m.writer.Approve(ctx, m.token, m.escrowAddr, amount)
		if err != nil {
			return err
		}
		m.setState(DepositMining)
		if err := tx.Wait(ctx); err != nil {
			return err
		}

		m.mu.Lock()
		m.isInApprovalFlow = true
		m.mu.Unlock()
		m.sleep(allowanceSettleDelay)
	}
}

func (m *DepositMachine) publish(subject string, payload interface{}) {
	if m.events == nil {
		return
	}
	if err := m.events.Publish(subject, payload); err != nil {
		m.logger.WithFields(logrus.Fields{
			"subject": subject,
			"error":   err,
		}).Warn("event publish failed")
	}
}

// verifierIndexByPlatform maps platform ids to verifier contract addresses.
// Populated from config at startup alongside platforms.RegisterVerifier.
var verifierIndexByPlatform = map[string]string{}

// RegisterPlatformVerifier binds a platform id to its verifier contract.
func RegisterPlatformVerifier(platformID, addr string) {
	verifierIndexByPlatform[platformID] = addr
	platforms.RegisterVerifier(addr, platformID)
}

func verifierAddressFor(platformID string) string {
	return verifierIndexByPlatform[platformID]
}
