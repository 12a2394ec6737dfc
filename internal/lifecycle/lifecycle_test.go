package lifecycle

import (
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"fiatramp/internal/apiclient"
	"fiatramp/internal/chain"
	"fiatramp/internal/escrow"
)

// Shared fixtures for the machine tests.

const (
	testOwner    = "0xAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAa"
	testToken    = "0x2222222222222222222222222222222222222222"
	testEscrow   = "0x5555555555555555555555555555555555555555"
	testVerifier = "0x7777777777777777777777777777777777777777"
)

type capturePublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (p *capturePublisher) Publish(subject string, _ interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return nil
}

func (p *capturePublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.subjects...)
}

type envelope struct {
	Success        bool        `json:"success"`
	Message        string      `json:"message"`
	ResponseObject interface{} `json:"responseObject"`
	StatusCode     int         `json:"statusCode"`
}

func respond(w http.ResponseWriter, status int, success bool, obj interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{
		Success:        success,
		ResponseObject: obj,
		StatusCode:     status,
	})
}

func curatorClient(t *testing.T, handler http.HandlerFunc) *apiclient.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return apiclient.NewClient(srv.URL, nil)
}

// seedFakeDepositWithRate installs a deposit carrying one verifier with one
// priced currency, for the rate-update flow.
func seedFakeDepositWithRate(fake *chain.FakeClient, id string, rate string) {
	fake.SeedDeposit(escrow.RawDepositView{
		DepositID:          id,
		AvailableLiquidity: "1000000000",
		Deposit: escrow.RawDeposit{
			Depositor:               testOwner,
			Token:                   testToken,
			DepositAmount:           "1000000000",
			RemainingDepositAmount:  "1000000000",
			OutstandingIntentAmount: "0",
			IntentAmountRange:       escrow.RawRange{Min: "100000", Max: "0"},
			AcceptingIntents:        true,
		},
		Verifiers: []escrow.RawVerifier{{
			Verifier:   testVerifier,
			Currencies: []escrow.RawVerifierCurrency{{Code: "0x01", ConversionRate: rate}},
		}},
	})
}

func parsedDepositView(t *testing.T, id int64, rateUSD string, liquidity int64) *escrow.DepositView {
	t.Helper()
	view := escrow.DepositView{
		DepositID:          big.NewInt(id),
		AvailableLiquidity: big.NewInt(liquidity),
		Deposit: escrow.Deposit{
			Depositor:               testOwner,
			Token:                   testToken,
			DepositAmount:           big.NewInt(liquidity),
			RemainingDepositAmount:  big.NewInt(liquidity),
			OutstandingIntentAmount: big.NewInt(0),
			IntentAmountRange:       escrow.Range{Min: big.NewInt(100_000), Max: big.NewInt(0)},
			AcceptingIntents:        true,
		},
	}
	rate, _ := new(big.Int).SetString(rateUSD, 10)
	view.Verifiers = []escrow.Verifier{{
		Verifier:   testVerifier,
		Currencies: []escrow.VerifierCurrency{{Code: "0x01", ConversionRate: rate}},
	}}
	return &view
}
