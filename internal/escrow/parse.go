package escrow

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"fiatramp/internal/faults"
)

// Raw structs mirror the escrow contract read views: every numeric field
// arrives as a plain decimal or 0x-prefixed hex string.

// RawDeposit is the unparsed deposit struct.
type RawDeposit struct {
	Depositor               string   `json:"depositor"`
	DepositAmount           string   `json:"depositAmount"`
	RemainingDepositAmount  string   `json:"remainingDepositAmount"`
	OutstandingIntentAmount string   `json:"outstandingIntentAmount"`
	IntentHashes            []string `json:"intentHashes"`
	IntentAmountRange       RawRange `json:"intentAmountRange"`
	Token                   string   `json:"token"`
	AcceptingIntents        bool     `json:"acceptingIntents"`
}

// RawRange is the unparsed per-order range.
type RawRange struct {
	Min string `json:"min"`
	Max string `json:"max"`
}

// RawVerifierCurrency is one unparsed currency entry.
type RawVerifierCurrency struct {
	Code           string `json:"code"`
	ConversionRate string `json:"conversionRate"`
}

// RawVerifier is the unparsed verifier struct.
type RawVerifier struct {
	Verifier         string                `json:"verifier"`
	VerificationData VerificationData      `json:"verificationData"`
	Currencies       []RawVerifierCurrency `json:"currencies"`
}

// RawDepositView is the unparsed read composite.
type RawDepositView struct {
	Deposit            RawDeposit    `json:"deposit"`
	AvailableLiquidity string        `json:"availableLiquidity"`
	DepositID          string        `json:"depositId"`
	Verifiers          []RawVerifier `json:"verifiers"`
}

// RawIntent is the unparsed intent struct.
type RawIntent struct {
	Owner           string `json:"owner"`
	To              string `json:"to"`
	DepositID       string `json:"depositId"`
	Amount          string `json:"amount"`
	Timestamp       string `json:"timestamp"`
	PaymentVerifier string `json:"paymentVerifier"`
	FiatCurrency    string `json:"fiatCurrency"`
	ConversionRate  string `json:"conversionRate"`
}

// RawIntentView is the unparsed intent read composite.
type RawIntentView struct {
	Intent     RawIntent      `json:"intent"`
	Deposit    RawDepositView `json:"deposit"`
	IntentHash string         `json:"intentHash"`
}

// parseBig converts a decimal or 0x-hex string to an unsigned big integer.
// Values up to 2^256-1 must survive without precision loss, so everything
// stays in big.Int.
func parseBig(field, value string) (*big.Int, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return nil, faults.Parse(field, "numeric field is empty")
	}

	var n *big.Int
	var ok bool
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		n, ok = new(big.Int).SetString(s[2:], 16)
	} else {
		n, ok = new(big.Int).SetString(s, 10)
	}
	if !ok {
		return nil, faults.Parse(field, fmt.Sprintf("malformed numeric string %q", value))
	}
	if n.Sign() < 0 {
		return nil, faults.Parse(field, fmt.Sprintf("negative value %q for unsigned field", value))
	}
	return n, nil
}

// requireAddress validates a required address field, returning it verbatim.
func requireAddress(field, value string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", faults.Parse(field, "missing required address field")
	}
	if !common.IsHexAddress(value) {
		return "", faults.Parse(field, fmt.Sprintf("invalid address %q", value))
	}
	return value, nil
}

func equalHex(a, b string) bool {
	return strings.EqualFold(a, b)
}

// ParseDeposit converts a raw deposit into its typed form.
func ParseDeposit(raw RawDeposit) (Deposit, error) {
	var d Deposit
	var err error

	if d.Depositor, err = requireAddress("depositor", raw.Depositor); err != nil {
		return Deposit{}, err
	}
	if d.Token, err = requireAddress("token", raw.Token); err != nil {
		return Deposit{}, err
	}
	if d.DepositAmount, err = parseBig("depositAmount", raw.DepositAmount); err != nil {
		return Deposit{}, err
	}
	if d.RemainingDepositAmount, err = parseBig("remainingDepositAmount", raw.RemainingDepositAmount); err != nil {
		return Deposit{}, err
	}
	if d.OutstandingIntentAmount, err = parseBig("outstandingIntentAmount", raw.OutstandingIntentAmount); err != nil {
		return Deposit{}, err
	}
	if d.IntentAmountRange.Min, err = parseBig("intentAmountRange.min", raw.IntentAmountRange.Min); err != nil {
		return Deposit{}, err
	}
	if d.IntentAmountRange.Max, err = parseBig("intentAmountRange.max", raw.IntentAmountRange.Max); err != nil {
		return Deposit{}, err
	}

	d.IntentHashes = append([]string(nil), raw.IntentHashes...)
	d.AcceptingIntents = raw.AcceptingIntents
	return d, nil
}

// ParseVerifiers converts raw verifiers element by element. A malformed
// currency rate drops that currency only; the verifier and its remaining
// currencies survive.
func ParseVerifiers(raw []RawVerifier) ([]Verifier, error) {
	verifiers := make([]Verifier, 0, len(raw))
	for i, rv := range raw {
		addr, err := requireAddress(fmt.Sprintf("verifiers[%d].verifier", i), rv.Verifier)
		if err != nil {
			return nil, err
		}

		v := Verifier{
			Verifier:         addr,
			VerificationData: rv.VerificationData,
			Currencies:       make([]VerifierCurrency, 0, len(rv.Currencies)),
		}
		for _, rc := range rv.Currencies {
			rate, err := parseBig("conversionRate", rc.ConversionRate)
			if err != nil {
				continue
			}
			v.Currencies = append(v.Currencies, VerifierCurrency{
				Code:           rc.Code,
				ConversionRate: rate,
			})
		}
		verifiers = append(verifiers, v)
	}
	return verifiers, nil
}

// ParseDepositView wraps ParseDeposit and ParseVerifiers. availableLiquidity
// is already clamped upstream but is floored at zero again here.
func ParseDepositView(raw RawDepositView) (DepositView, error) {
	deposit, err := ParseDeposit(raw.Deposit)
	if err != nil {
		return DepositView{}, err
	}
	verifiers, err := ParseVerifiers(raw.Verifiers)
	if err != nil {
		return DepositView{}, err
	}
	depositID, err := parseBig("depositId", raw.DepositID)
	if err != nil {
		return DepositView{}, err
	}
	liquidity, err := parseBig("availableLiquidity", raw.AvailableLiquidity)
	if err != nil {
		return DepositView{}, err
	}
	if liquidity.Sign() < 0 {
		liquidity = big.NewInt(0)
	}

	return DepositView{
		Deposit:            deposit,
		AvailableLiquidity: liquidity,
		DepositID:          depositID,
		Verifiers:          verifiers,
	}, nil
}

// ParseIntent converts a raw intent into its typed form.
func ParseIntent(raw RawIntent) (Intent, error) {
	var in Intent
	var err error

	if in.Owner, err = requireAddress("owner", raw.Owner); err != nil {
		return Intent{}, err
	}
	if in.To, err = requireAddress("to", raw.To); err != nil {
		return Intent{}, err
	}
	if in.PaymentVerifier, err = requireAddress("paymentVerifier", raw.PaymentVerifier); err != nil {
		return Intent{}, err
	}
	if in.DepositID, err = parseBig("depositId", raw.DepositID); err != nil {
		return Intent{}, err
	}
	if in.Amount, err = parseBig("amount", raw.Amount); err != nil {
		return Intent{}, err
	}
	if in.Timestamp, err = parseBig("timestamp", raw.Timestamp); err != nil {
		return Intent{}, err
	}
	if in.ConversionRate, err = parseBig("conversionRate", raw.ConversionRate); err != nil {
		return Intent{}, err
	}
	in.FiatCurrency = raw.FiatCurrency
	return in, nil
}

// ParseIntentView wraps ParseIntent and ParseDepositView.
func ParseIntentView(raw RawIntentView) (IntentView, error) {
	intent, err := ParseIntent(raw.Intent)
	if err != nil {
		return IntentView{}, err
	}
	depositView, err := ParseDepositView(raw.Deposit)
	if err != nil {
		return IntentView{}, err
	}
	if raw.IntentHash == "" {
		return IntentView{}, faults.Parse("intentHash", "missing required field")
	}

	return IntentView{
		Intent:     intent,
		Deposit:    depositView,
		IntentHash: raw.IntentHash,
	}, nil
}
