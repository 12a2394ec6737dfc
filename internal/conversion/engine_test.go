package conversion

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiatramp/internal/faults"
)

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	n, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok, "bad fixture %q", s)
	return n
}

func TestTokenFromFiatAmount(t *testing.T) {
	// 100 USD at 1.05 USD/USDC buys 95.238095 USDC, floored at 6 dp.
	fiat := mustBig(t, "100000000000000000000")
	rate := mustBig(t, "1050000000000000000")
	assert.Equal(t, big.NewInt(95238095), TokenFromFiatAmount(fiat, rate, 6))

	// A 1.0 rate is the identity between 18 dp fiat and 6 dp tokens.
	one := mustBig(t, "1000000000000000000")
	assert.Equal(t, big.NewInt(100000000), TokenFromFiatAmount(fiat, one, 6))

	assert.Zero(t, TokenFromFiatAmount(fiat, big.NewInt(0), 6).Sign())
	assert.Zero(t, TokenFromFiatAmount(nil, rate, 6).Sign())
}

func TestFiatFromTokenAmount(t *testing.T) {
	rate := mustBig(t, "1050000000000000000")
	fiat := FiatFromTokenAmount(big.NewInt(95238095), rate, 6)
	// Floor rounding: converting the floored token amount back never exceeds
	// the original fiat amount.
	assert.True(t, fiat.Cmp(mustBig(t, "100000000000000000000")) <= 0)
	assert.Equal(t, mustBig(t, "99999999750000000000"), fiat)

	assert.Zero(t, FiatFromTokenAmount(nil, rate, 6).Sign())
}

func TestRoundTripNeverInflates(t *testing.T) {
	rates := []string{
		"1000000000000000000",
		"1050000000000000000",
		"990000000000000000",
		"17300000000000000000", // 17.3 fiat per token
		"1",                    // extreme rate still floors
	}
	fiat := mustBig(t, "250000000000000000000") // 250 fiat

	for _, r := range rates {
		rate := mustBig(t, r)
		tokens := TokenFromFiatAmount(fiat, rate, 6)
		back := FiatFromTokenAmount(tokens, rate, 6)
		assert.True(t, back.Cmp(fiat) <= 0, "rate %s inflated the round trip", r)
	}
}

func TestParseFiatAmount(t *testing.T) {
	cases := map[string]string{
		"100":    "100000000000000000000",
		"99.95":  "99950000000000000000",
		"0.5":    "500000000000000000",
		".5":     "500000000000000000",
		"0":      "0",
		" 1.25 ": "1250000000000000000",
	}
	for in, want := range cases {
		got, err := ParseFiatAmount(in)
		require.NoError(t, err, "input %q", in)
		assert.Equal(t, mustBig(t, want), got, "input %q", in)
	}
}

func TestParseFiatAmountRejects(t *testing.T) {
	for _, bad := range []string{"", "abc", "1.2.3", "-5", "1." + "0000000000000000001"} {
		_, err := ParseFiatAmount(bad)
		require.Error(t, err, "input %q", bad)
		assert.Equal(t, faults.KindValidation, faults.KindOf(err))
	}
}

func TestFormatUnits(t *testing.T) {
	assert.Equal(t, "95.238095", FormatUnits(big.NewInt(95238095), 6))
	assert.Equal(t, "100", FormatUnits(big.NewInt(100000000), 6))
	assert.Equal(t, "0.000001", FormatUnits(big.NewInt(1), 6))
	assert.Equal(t, "0", FormatUnits(nil, 6))
}
