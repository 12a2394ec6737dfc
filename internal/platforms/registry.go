package platforms

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// Platform describes one payment-platform integration: which currencies it
// supports, the smallest order it accepts, what its payment extractor can
// parse, and how it orders captured records.
type Platform struct {
	ID          string
	DisplayName string
	// Currencies maps ISO currency codes to their on-chain keccak hashes.
	Currencies map[string]string
	// MinOrderAmount is the platform floor in token base units (6 dp USDC).
	MinOrderAmount *big.Int
	// Capabilities name the record fields the platform extractor can parse.
	// A field outside this set is treated as unknown during reconciliation.
	Capabilities CapabilitySet
	// NewestFirst is true when captured records arrive in reverse
	// chronological order and must be flipped before selection.
	NewestFirst bool
}

// CapabilitySet is the per-platform field-parsing capability table.
type CapabilitySet struct {
	Subject   bool
	Amount    bool
	Currency  bool
	Timestamp bool
	Recipient bool
}

// CurrencyHash returns the on-chain hash of an ISO currency code.
func CurrencyHash(code string) string {
	return crypto.Keccak256Hash([]byte(code)).Hex()
}

func currencyTable(codes ...string) map[string]string {
	table := make(map[string]string, len(codes))
	for _, code := range codes {
		table[code] = CurrencyHash(code)
	}
	return table
}

var registry = map[string]*Platform{
	"venmo": {
		ID:             "venmo",
		DisplayName:    "Venmo",
		Currencies:     currencyTable("USD"),
		MinOrderAmount: big.NewInt(100_000), // 0.1 USDC
		Capabilities: CapabilitySet{
			Subject:   true,
			Amount:    true,
			Timestamp: true,
			Recipient: true,
			// Venmo is USD-only; the extractor reports no currency field.
		},
		NewestFirst: true,
	},
	"revolut": {
		ID:             "revolut",
		DisplayName:    "Revolut",
		Currencies:     currencyTable("USD", "EUR", "GBP", "CHF", "PLN", "CZK", "SEK", "NOK", "DKK"),
		MinOrderAmount: big.NewInt(100_000),
		Capabilities: CapabilitySet{
			Subject:   true,
			Amount:    true,
			Currency:  true,
			Timestamp: true,
			Recipient: true,
		},
		NewestFirst: true,
	},
	"wise": {
		ID:             "wise",
		DisplayName:    "Wise",
		Currencies:     currencyTable("USD", "EUR", "GBP", "AUD", "CAD", "JPY", "SGD", "TRY"),
		MinOrderAmount: big.NewInt(100_000),
		Capabilities: CapabilitySet{
			Subject:   true,
			Amount:    true,
			Currency:  true,
			Timestamp: true,
			Recipient: true,
		},
	},
	"cashapp": {
		ID:             "cashapp",
		DisplayName:    "Cash App",
		Currencies:     currencyTable("USD"),
		MinOrderAmount: big.NewInt(100_000),
		Capabilities: CapabilitySet{
			Subject:   true,
			Amount:    true,
			Currency:  true,
			Timestamp: true,
		},
	},
}

// Get looks up a platform by id.
func Get(id string) (*Platform, bool) {
	p, ok := registry[strings.ToLower(id)]
	return p, ok
}

// IDs returns the registered platform ids.
func IDs() []string {
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	return ids
}

// SupportsCurrencyHash reports whether the platform quotes the currency
// identified by its on-chain hash.
func (p *Platform) SupportsCurrencyHash(hash string) bool {
	for _, h := range p.Currencies {
		if strings.EqualFold(h, hash) {
			return true
		}
	}
	return false
}

// ResolveCurrency maps an on-chain currency hash back to its ISO code.
// The table is small enough that a scan across all platforms is fine.
func ResolveCurrency(hash string) (string, bool) {
	for _, p := range registry {
		for code, h := range p.Currencies {
			if strings.EqualFold(h, hash) {
				return code, true
			}
		}
	}
	return "", false
}

// ByVerifier maps verifier contract addresses to platform ids. Populated from
// config at startup; empty entries fall back to platform id matching.
var verifierIndex = map[string]string{}

// RegisterVerifier binds a verifier contract address to a platform id.
func RegisterVerifier(addr, platformID string) {
	verifierIndex[strings.ToLower(addr)] = strings.ToLower(platformID)
}

// ForVerifier resolves the platform handling a verifier contract address.
func ForVerifier(addr string) (*Platform, bool) {
	id, ok := verifierIndex[strings.ToLower(addr)]
	if !ok {
		return nil, false
	}
	return Get(id)
}
