package faults

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind tags every failure surfaced to a state machine. Handling sites switch
// on Kind instead of unwrapping concrete types.
type Kind string

const (
	KindNetwork    Kind = "network_error"
	KindAPI        Kind = "api_error"
	KindContract   Kind = "contract_error"
	KindValidation Kind = "validation_error"
	KindParse      Kind = "parse_error"
	KindUnknown    Kind = "unknown_error"
)

// Stable machine-readable codes carried alongside Kind.
const (
	CodeNetwork             = "NETWORK_ERROR"
	CodeRateLimited         = "RATE_LIMITED"
	CodeAPI                 = "API_ERROR"
	CodeContractReverted    = "CONTRACT_REVERTED"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeValidation          = "VALIDATION_ERROR"
	CodeParse               = "PARSE_ERROR"
	CodeUnknown             = "UNKNOWN_ERROR"
)

// Fault is the single error currency of the settlement core.
type Fault struct {
	Kind    Kind
	Code    string
	Message string
	Status  int    // set for KindAPI
	Field   string // set for KindValidation / KindParse
	Reason  string // set for KindContract
	Err     error  // wrapped cause, may be nil
}

func (f *Fault) Error() string {
	if f.Field != "" {
		return fmt.Sprintf("%s: %s (field %s)", f.Code, f.Message, f.Field)
	}
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// Network wraps a transport failure where no response was received.
func Network(err error) *Fault {
	return &Fault{
		Kind:    KindNetwork,
		Code:    CodeNetwork,
		Message: "network request failed",
		Err:     err,
	}
}

// maxRawBodyLen bounds how much of a non-JSON body we surface verbatim.
const maxRawBodyLen = 200

// API builds a fault from a non-2xx response. Message priority:
// JSON body "error"/"message" field, then short raw text, then the HTTP
// status text. 429 always maps to a canned rate-limit message.
func API(status int, body []byte) *Fault {
	f := &Fault{
		Kind:   KindAPI,
		Code:   CodeAPI,
		Status: status,
	}

	if status == http.StatusTooManyRequests {
		f.Code = CodeRateLimited
		f.Message = "Too many requests. Please try again later."
		return f
	}

	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Error != "" {
			f.Message = parsed.Error
			return f
		}
		if parsed.Message != "" {
			f.Message = parsed.Message
			return f
		}
	}

	trimmed := strings.TrimSpace(string(body))
	if trimmed != "" && len(trimmed) <= maxRawBodyLen {
		f.Message = trimmed
		return f
	}

	f.Message = http.StatusText(status)
	if f.Message == "" {
		f.Message = fmt.Sprintf("request failed with status %d", status)
	}
	return f
}

// Contract classifies an error from the signing/broadcast path. Insufficient
// funds gets a dedicated sub-code; an explicit revert reason is preferred
// over the raw error text.
func Contract(err error) *Fault {
	f := &Fault{
		Kind: KindContract,
		Code: CodeContractReverted,
		Err:  err,
	}
	if err == nil {
		f.Message = "transaction failed"
		return f
	}

	msg := err.Error()
	lower := strings.ToLower(msg)

	if strings.Contains(lower, "insufficient funds") || strings.Contains(lower, "insufficient balance") {
		f.Code = CodeInsufficientBalance
		f.Reason = "insufficient balance"
		f.Message = "Insufficient balance to complete the transaction"
		return f
	}

	if idx := strings.Index(lower, "execution reverted"); idx >= 0 {
		reason := strings.TrimSpace(msg[idx+len("execution reverted"):])
		reason = strings.TrimLeft(reason, ": ")
		if reason != "" {
			f.Reason = reason
			f.Message = reason
			return f
		}
	}

	f.Message = "Transaction failed. Please try again."
	return f
}

// Validation marks a local precondition failure. Never retried, never sent
// over the wire.
func Validation(field, message string) *Fault {
	return &Fault{
		Kind:    KindValidation,
		Code:    CodeValidation,
		Field:   field,
		Message: message,
	}
}

// Parse marks a malformed on-chain payload field.
func Parse(field, message string) *Fault {
	return &Fault{
		Kind:    KindParse,
		Code:    CodeParse,
		Field:   field,
		Message: message,
	}
}

// Wrap converts an arbitrary error into a Fault, passing Faults through
// untouched.
func Wrap(err error) *Fault {
	if err == nil {
		return nil
	}
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	return &Fault{
		Kind:    KindUnknown,
		Code:    CodeUnknown,
		Message: err.Error(),
		Err:     err,
	}
}

// KindOf reports the Kind of err, KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether the shared retry policy may re-attempt the
// call: transport failures and rate-limited API responses only.
func IsRetryable(err error) bool {
	var f *Fault
	if !errors.As(err, &f) {
		return false
	}
	return f.Kind == KindNetwork || (f.Kind == KindAPI && f.Code == CodeRateLimited)
}

// IsRateLimited reports whether err is a rate-limited API fault.
func IsRateLimited(err error) bool {
	var f *Fault
	if !errors.As(err, &f) {
		return false
	}
	return f.Code == CodeRateLimited
}
