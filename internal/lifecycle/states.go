package lifecycle

// DepositState is the deposit-creation machine's state.
type DepositState string

const (
	DepositMissingAmounts       DepositState = "MissingAmounts"
	DepositMissingMinMax        DepositState = "MissingMinMax"
	DepositMissingPlatforms     DepositState = "MissingPlatforms"
	DepositMissingPayeeDetails  DepositState = "MissingPayeeDetails"
	DepositInvalidCurrencyRates DepositState = "InvalidCurrencyRates"
	DepositValidatePayee        DepositState = "ValidatePayeeDetails"
	DepositPostingPayee         DepositState = "PostingPayeeDetails"
	DepositApprovalRequired     DepositState = "ApprovalRequired"
	DepositSigning              DepositState = "TransactionSigning"
	DepositMining               DepositState = "TransactionMining"
	DepositValid                DepositState = "Valid"
	DepositSucceeded            DepositState = "Succeeded"
	DepositFailed               DepositState = "Failed"
)

// SignalState is the intent-signaling machine's state.
type SignalState string

const (
	SignalDefault       SignalState = "Default"
	SignalInvalidAmount SignalState = "InvalidAmount"
	SignalCreateOrder   SignalState = "CreateOrder"
	SignalFetching      SignalState = "FetchingSignedIntent"
	SignalFetchFailed   SignalState = "FailedToFetchSignedIntent"
	SignalSigning       SignalState = "TransactionSigning"
	SignalMining        SignalState = "TransactionMining"
	SignalDone          SignalState = "Done"
	SignalTxFailed      SignalState = "TransactionFailed"
)

// FulfillmentState is the payment-completion machine's state.
type FulfillmentState string

const (
	FulfillmentAwaitingRecord  FulfillmentState = "AwaitingRecord"
	FulfillmentGeneratingProof FulfillmentState = "GeneratingProof"
	FulfillmentAwaitingOnchain FulfillmentState = "AwaitingOnchainRelease"
	FulfillmentDone            FulfillmentState = "Fulfilled"
	FulfillmentExpired         FulfillmentState = "Expired"
	FulfillmentFailed          FulfillmentState = "Failed"
)

// MaintenanceState covers the rate-update and withdraw machines, which share
// one configure → sign → mine shape.
type MaintenanceState string

const (
	MaintenanceIdle      MaintenanceState = "Idle"
	MaintenanceSigning   MaintenanceState = "TransactionSigning"
	MaintenanceMining    MaintenanceState = "TransactionMining"
	MaintenanceSucceeded MaintenanceState = "Succeeded"
	MaintenanceFailed    MaintenanceState = "Failed"
)
