package escrow

import (
	"math/big"
)

// Deposit is a maker's escrowed balance as read from the escrow contract.
type Deposit struct {
	Depositor               string     `json:"depositor"`
	DepositAmount           *big.Int   `json:"depositAmount"`
	RemainingDepositAmount  *big.Int   `json:"remainingDepositAmount"`
	OutstandingIntentAmount *big.Int   `json:"outstandingIntentAmount"`
	IntentHashes            []string   `json:"intentHashes"`
	IntentAmountRange       Range      `json:"intentAmountRange"`
	Token                   string     `json:"token"`
	AcceptingIntents        bool       `json:"acceptingIntents"`
}

// Range is the per-order [min, max] bound of a deposit.
type Range struct {
	Min *big.Int `json:"min"`
	Max *big.Int `json:"max"`
}

// AvailableLiquidity is remaining minus outstanding, floored at zero.
// Upstream data can be transiently inconsistent while intents settle, so the
// difference is never allowed to go negative.
func (d *Deposit) AvailableLiquidity() *big.Int {
	if d.RemainingDepositAmount == nil || d.OutstandingIntentAmount == nil {
		return big.NewInt(0)
	}
	avail := new(big.Int).Sub(d.RemainingDepositAmount, d.OutstandingIntentAmount)
	if avail.Sign() < 0 {
		return big.NewInt(0)
	}
	return avail
}

// VerifierCurrency pairs a hashed currency code with the maker's fiat-per-token
// rate (fixed point, 18 decimal places).
type VerifierCurrency struct {
	Code           string   `json:"code"`
	ConversionRate *big.Int `json:"conversionRate"`
}

// VerificationData holds the off-chain coordinates of one payment platform
// integration. PayeeDetails is a hash; the raw destination never goes on-chain.
type VerificationData struct {
	IntentGatingService string `json:"intentGatingService"`
	PayeeDetails        string `json:"payeeDetails"`
	Data                string `json:"data"`
}

// Verifier is one payment-platform integration attached to a deposit.
type Verifier struct {
	Verifier         string             `json:"verifier"`
	VerificationData VerificationData   `json:"verificationData"`
	Currencies       []VerifierCurrency `json:"currencies"`
}

// Intent is a taker's on-chain commitment to pay a maker off-chain.
type Intent struct {
	Owner           string   `json:"owner"`
	To              string   `json:"to"`
	DepositID       *big.Int `json:"depositId"`
	Amount          *big.Int `json:"amount"`
	Timestamp       *big.Int `json:"timestamp"`
	PaymentVerifier string   `json:"paymentVerifier"`
	FiatCurrency    string   `json:"fiatCurrency"`
	ConversionRate  *big.Int `json:"conversionRate"`
}

// DepositView is the read-side composite of a deposit. Recomputed on every
// refresh, never persisted on its own.
type DepositView struct {
	Deposit            Deposit    `json:"deposit"`
	AvailableLiquidity *big.Int   `json:"availableLiquidity"`
	DepositID          *big.Int   `json:"depositId"`
	Verifiers          []Verifier `json:"verifiers"`
}

// VerifierFor returns the verifier entry matching the given verifier contract
// address, or nil.
func (v *DepositView) VerifierFor(addr string) *Verifier {
	for i := range v.Verifiers {
		if equalHex(v.Verifiers[i].Verifier, addr) {
			return &v.Verifiers[i]
		}
	}
	return nil
}

// IntentView is the read-side composite of an intent and its source deposit.
type IntentView struct {
	Intent     Intent      `json:"intent"`
	Deposit    DepositView `json:"deposit"`
	IntentHash string      `json:"intentHash"`
}
