package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"fiatramp/internal/escrow"
	"fiatramp/internal/faults"
	"fiatramp/internal/metrics"
)

// EthClient implements Reader and Writer against a live node.
type EthClient struct {
	client     *ethclient.Client
	escrowAddr common.Address
	escrowABI  abi.ABI
	erc20ABI   abi.ABI
	contract   *bind.BoundContract
	txOpts     *bind.TransactOpts
	chainID    *big.Int
}

// EthClientConfig configures the node connection. PrivateKeyHex may be empty
// for a read-only client.
type EthClientConfig struct {
	RPCURL         string
	EscrowContract string
	PrivateKeyHex  string
}

// NewEthClient dials the node and binds the escrow contract.
func NewEthClient(ctx context.Context, cfg EthClientConfig) (*EthClient, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	if cfg.EscrowContract == "" {
		return nil, fmt.Errorf("escrow contract address is required")
	}

	cli, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	escrowABI, err := abi.JSON(strings.NewReader(escrowABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse escrow abi: %w", err)
	}
	erc20ABI, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}

	addr := common.HexToAddress(cfg.EscrowContract)
	c := &EthClient{
		client:     cli,
		escrowAddr: addr,
		escrowABI:  escrowABI,
		erc20ABI:   erc20ABI,
		contract:   bind.NewBoundContract(addr, escrowABI, cli, cli, cli),
	}

	if cfg.PrivateKeyHex != "" {
		pk, err := parsePrivateKey(cfg.PrivateKeyHex)
		if err != nil {
			return nil, err
		}
		chainID, err := cli.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch chain id: %w", err)
		}
		opts, err := bind.NewKeyedTransactorWithChainID(pk, chainID)
		if err != nil {
			return nil, fmt.Errorf("transactor: %w", err)
		}
		c.txOpts = opts
		c.chainID = chainID
	}

	return c, nil
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	pk, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return pk, nil
}

// ABI tuple mirrors. Field order and types must track abi.go.

type abiRange struct {
	Min *big.Int
	Max *big.Int
}

type abiVerificationData struct {
	IntentGatingService common.Address
	PayeeDetails        string
	Data                []byte
}

type abiCurrency struct {
	Code           [32]byte
	ConversionRate *big.Int
}

type abiVerifierView struct {
	Verifier         common.Address
	VerificationData abiVerificationData
	Currencies       []abiCurrency
}

type abiDeposit struct {
	Depositor               common.Address
	Token                   common.Address
	Amount                  *big.Int
	IntentAmountRange       abiRange
	AcceptingIntents        bool
	RemainingDeposits       *big.Int
	OutstandingIntentAmount *big.Int
	IntentHashes            [][32]byte
}

type abiDepositView struct {
	DepositId          *big.Int
	Deposit            abiDeposit
	AvailableLiquidity *big.Int
	Verifiers          []abiVerifierView
}

type abiIntent struct {
	Owner           common.Address
	To              common.Address
	DepositId       *big.Int
	Amount          *big.Int
	Timestamp       *big.Int
	PaymentVerifier common.Address
	FiatCurrency    [32]byte
	ConversionRate  *big.Int
}

type abiIntentView struct {
	IntentHash [32]byte
	Intent     abiIntent
	Deposit    abiDepositView
}

// GetDepositViews reads deposit composites and re-expresses every numeric
// field as a decimal string for the parsing layer.
func (c *EthClient) GetDepositViews(ctx context.Context, depositIDs []*big.Int) ([]escrow.RawDepositView, error) {
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx}
	if err := c.contract.Call(opts, &out, "getDepositFromIds", depositIDs); err != nil {
		metrics.ChainCallFailures.WithLabelValues("getDepositFromIds").Inc()
		return nil, fmt.Errorf("getDepositFromIds: %w", err)
	}
	views := *abi.ConvertType(out[0], new([]abiDepositView)).(*[]abiDepositView)

	raw := make([]escrow.RawDepositView, 0, len(views))
	for i := range views {
		raw = append(raw, rawDepositView(&views[i]))
	}
	return raw, nil
}

// GetAccountIntent reads the owner's open intent. An all-zero intent hash
// means no intent is open and yields nil.
func (c *EthClient) GetAccountIntent(ctx context.Context, owner string) (*escrow.RawIntentView, error) {
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx}
	if err := c.contract.Call(opts, &out, "getAccountIntent", common.HexToAddress(owner)); err != nil {
		metrics.ChainCallFailures.WithLabelValues("getAccountIntent").Inc()
		return nil, fmt.Errorf("getAccountIntent: %w", err)
	}
	view := *abi.ConvertType(out[0], new(abiIntentView)).(*abiIntentView)

	if view.IntentHash == ([32]byte{}) {
		return nil, nil
	}

	deposit := rawDepositView(&view.Deposit)
	return &escrow.RawIntentView{
		IntentHash: hexutil.Encode(view.IntentHash[:]),
		Intent: escrow.RawIntent{
			Owner:           view.Intent.Owner.Hex(),
			To:              view.Intent.To.Hex(),
			DepositID:       view.Intent.DepositId.String(),
			Amount:          view.Intent.Amount.String(),
			Timestamp:       view.Intent.Timestamp.String(),
			PaymentVerifier: view.Intent.PaymentVerifier.Hex(),
			FiatCurrency:    hexutil.Encode(view.Intent.FiatCurrency[:]),
			ConversionRate:  view.Intent.ConversionRate.String(),
		},
		Deposit: deposit,
	}, nil
}

func rawDepositView(v *abiDepositView) escrow.RawDepositView {
	hashes := make([]string, 0, len(v.Deposit.IntentHashes))
	for _, h := range v.Deposit.IntentHashes {
		hashes = append(hashes, hexutil.Encode(h[:]))
	}

	verifiers := make([]escrow.RawVerifier, 0, len(v.Verifiers))
	for _, ver := range v.Verifiers {
		currencies := make([]escrow.RawVerifierCurrency, 0, len(ver.Currencies))
		for _, cur := range ver.Currencies {
			currencies = append(currencies, escrow.RawVerifierCurrency{
				Code:           hexutil.Encode(cur.Code[:]),
				ConversionRate: cur.ConversionRate.String(),
			})
		}
		verifiers = append(verifiers, escrow.RawVerifier{
			Verifier: ver.Verifier.Hex(),
			VerificationData: escrow.VerificationData{
				IntentGatingService: ver.VerificationData.IntentGatingService.Hex(),
				PayeeDetails:        ver.VerificationData.PayeeDetails,
				Data:                hexutil.Encode(ver.VerificationData.Data),
			},
			Currencies: currencies,
		})
	}

	return escrow.RawDepositView{
		DepositID:          v.DepositId.String(),
		AvailableLiquidity: v.AvailableLiquidity.String(),
		Deposit: escrow.RawDeposit{
			Depositor:               v.Deposit.Depositor.Hex(),
			Token:                   v.Deposit.Token.Hex(),
			DepositAmount:           v.Deposit.Amount.String(),
			RemainingDepositAmount:  v.Deposit.RemainingDeposits.String(),
			OutstandingIntentAmount: v.Deposit.OutstandingIntentAmount.String(),
			IntentHashes:            hashes,
			IntentAmountRange: escrow.RawRange{
				Min: v.Deposit.IntentAmountRange.Min.String(),
				Max: v.Deposit.IntentAmountRange.Max.String(),
			},
			AcceptingIntents: v.Deposit.AcceptingIntents,
		},
		Verifiers: verifiers,
	}
}

// TokenBalance reads an ERC-20 balance.
func (c *EthClient) TokenBalance(ctx context.Context, token, owner string) (*big.Int, error) {
	return c.erc20View(ctx, token, "balanceOf", common.HexToAddress(owner))
}

// TokenAllowance reads an ERC-20 allowance against the escrow contract or
// any other spender.
func (c *EthClient) TokenAllowance(ctx context.Context, token, owner, spender string) (*big.Int, error) {
	return c.erc20View(ctx, token, "allowance", common.HexToAddress(owner), common.HexToAddress(spender))
}

func (c *EthClient) erc20View(ctx context.Context, token, method string, args ...interface{}) (*big.Int, error) {
	bound := bind.NewBoundContract(common.HexToAddress(token), c.erc20ABI, c.client, c.client, c.client)
	var out []interface{}
	if err := bound.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		metrics.ChainCallFailures.WithLabelValues(method).Inc()
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// Approve submits an ERC-20 approval for the escrow spender.
func (c *EthClient) Approve(ctx context.Context, token, spender string, amount *big.Int) (*PendingTx, error) {
	bound := bind.NewBoundContract(common.HexToAddress(token), c.erc20ABI, c.client, c.client, c.client)
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := bound.Transact(opts, "approve", common.HexToAddress(spender), amount)
	if err != nil {
		metrics.ChainCallFailures.WithLabelValues("approve").Inc()
		return nil, faults.Contract(err)
	}
	return c.pending(tx), nil
}

// CreateDeposit submits the escrow createDeposit call.
func (c *EthClient) CreateDeposit(ctx context.Context, params CreateDepositParams) (*PendingTx, error) {
	verifiers := make([]common.Address, 0, len(params.Verifiers))
	for _, v := range params.Verifiers {
		verifiers = append(verifiers, common.HexToAddress(v))
	}
	data := make([]abiVerificationData, 0, len(params.PayeeData))
	for _, d := range params.PayeeData {
		data = append(data, abiVerificationData{
			IntentGatingService: common.HexToAddress(d.IntentGatingService),
			PayeeDetails:        d.PayeeDetails,
			Data:                common.FromHex(d.Data),
		})
	}
	currencies := make([][]abiCurrency, 0, len(params.Currencies))
	for _, group := range params.Currencies {
		entries := make([]abiCurrency, 0, len(group))
		for _, cur := range group {
			entries = append(entries, abiCurrency{
				Code:           common.HexToHash(cur.Code),
				ConversionRate: cur.ConversionRate,
			})
		}
		currencies = append(currencies, entries)
	}

	opts, err := c.transactOpts(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := c.contract.Transact(opts, "createDeposit",
		common.HexToAddress(params.Token),
		params.Amount,
		abiRange{Min: params.IntentMin, Max: params.IntentMax},
		verifiers,
		data,
		currencies,
	)
	if err != nil {
		metrics.ChainCallFailures.WithLabelValues("createDeposit").Inc()
		return nil, faults.Contract(err)
	}
	return c.pending(tx), nil
}

// SignalIntent submits the escrow signalIntent call.
func (c *EthClient) SignalIntent(ctx context.Context, params SignalIntentParams) (*PendingTx, error) {
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := c.contract.Transact(opts, "signalIntent",
		params.DepositID,
		params.TokenAmount,
		common.HexToAddress(params.Recipient),
		common.HexToAddress(params.Verifier),
		common.HexToHash(params.CurrencyCodeHash),
		params.GatingServiceSignature,
	)
	if err != nil {
		metrics.ChainCallFailures.WithLabelValues("signalIntent").Inc()
		return nil, faults.Contract(err)
	}
	return c.pending(tx), nil
}

// CancelIntent submits the escrow cancelIntent call.
func (c *EthClient) CancelIntent(ctx context.Context, intentHash string) (*PendingTx, error) {
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := c.contract.Transact(opts, "cancelIntent", common.HexToHash(intentHash))
	if err != nil {
		metrics.ChainCallFailures.WithLabelValues("cancelIntent").Inc()
		return nil, faults.Contract(err)
	}
	return c.pending(tx), nil
}

// WithdrawDeposit submits the escrow withdrawDeposit call.
func (c *EthClient) WithdrawDeposit(ctx context.Context, depositID *big.Int) (*PendingTx, error) {
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := c.contract.Transact(opts, "withdrawDeposit", depositID)
	if err != nil {
		metrics.ChainCallFailures.WithLabelValues("withdrawDeposit").Inc()
		return nil, faults.Contract(err)
	}
	return c.pending(tx), nil
}

// UpdateConversionRate submits the escrow updateDepositConversionRate call.
func (c *EthClient) UpdateConversionRate(ctx context.Context, depositID *big.Int, verifier, currencyHash string, rate *big.Int) (*PendingTx, error) {
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := c.contract.Transact(opts, "updateDepositConversionRate",
		depositID,
		common.HexToAddress(verifier),
		common.HexToHash(currencyHash),
		rate,
	)
	if err != nil {
		metrics.ChainCallFailures.WithLabelValues("updateDepositConversionRate").Inc()
		return nil, faults.Contract(err)
	}
	return c.pending(tx), nil
}

// transactOpts errors instead of panicking when the client was built without
// a private key: read-only clients may still reach Writer methods via shared
// interfaces.
func (c *EthClient) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if c.txOpts == nil {
		return nil, faults.Contract(errors.New("no signing key configured"))
	}
	opts := *c.txOpts
	opts.Context = ctx
	return &opts, nil
}

func (c *EthClient) pending(tx *types.Transaction) *PendingTx {
	return &PendingTx{
		Hash: tx.Hash().Hex(),
		wait: func(ctx context.Context) error {
			receipt, err := bind.WaitMined(ctx, c.client, tx)
			if err != nil {
				return faults.Contract(err)
			}
			if receipt.Status != types.ReceiptStatusSuccessful {
				return faults.Contract(errors.New("execution reverted"))
			}
			return nil
		},
	}
}
