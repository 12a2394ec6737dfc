package conversion

import (
	"fmt"
	"math/big"
	"strings"

	"fiatramp/internal/faults"
)

// Conversion rates are fixed point with 18 decimal places, expressing fiat
// per whole token. Fiat amounts computed here carry the same 18 dp precision;
// token amounts are in the token's smallest denomination.
const RateDecimals = 18

var ratePrecision = pow10(RateDecimals)

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// FiatFromTokenAmount computes tokenAmount * rate / 10^tokenDecimals with
// floor division. Rounding down guarantees the payer is never asked for more
// fiat than the tokens are worth at the quoted rate. The intermediate product
// stays in big.Int, so 256-bit operands cannot overflow.
func FiatFromTokenAmount(tokenAmount, conversionRate *big.Int, tokenDecimals int) *big.Int {
	if tokenAmount == nil || conversionRate == nil {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(tokenAmount, conversionRate)
	return product.Quo(product, pow10(tokenDecimals))
}

// TokenFromFiatAmount is the inverse: fiatAmount * 10^tokenDecimals / rate,
// floored. The rounding direction favors the maker: the taker receives at
// most the fiat-equivalent in tokens, never more.
func TokenFromFiatAmount(fiatAmount, conversionRate *big.Int, tokenDecimals int) *big.Int {
	if fiatAmount == nil || conversionRate == nil || conversionRate.Sign() == 0 {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(fiatAmount, pow10(tokenDecimals))
	return product.Quo(product, conversionRate)
}

// ParseFiatAmount parses a human decimal string ("100", "99.95") into an
// 18 dp fixed-point value. More than 18 fractional digits is rejected rather
// than silently truncated.
func ParseFiatAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, faults.Validation("amount", "amount is required")
	}

	whole, frac := s, ""
	if idx := strings.Index(s, "."); idx >= 0 {
		whole, frac = s[:idx], s[idx+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > RateDecimals {
		return nil, faults.Validation("amount", fmt.Sprintf("amount %q exceeds %d decimal places", s, RateDecimals))
	}

	digits := whole + frac + strings.Repeat("0", RateDecimals-len(frac))
	n, ok := new(big.Int).SetString(digits, 10)
	if !ok || n.Sign() < 0 {
		return nil, faults.Validation("amount", fmt.Sprintf("malformed amount %q", s))
	}
	return n, nil
}

// FormatUnits renders a base-unit amount as a human decimal string. Display
// only; the result never feeds back into money math.
func FormatUnits(amount *big.Int, decimals int) string {
	if amount == nil {
		return "0"
	}
	q, r := new(big.Int).QuoRem(amount, pow10(decimals), new(big.Int))
	if r.Sign() == 0 {
		return q.String()
	}
	frac := fmt.Sprintf("%0*s", decimals, r.String())
	frac = strings.TrimRight(frac, "0")
	return q.String() + "." + frac
}
