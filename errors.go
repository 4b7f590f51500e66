package stellarwork

import "errors"

// Sentinel errors for the wallet payment path.
var (
	// ErrInvalidInput indicates local validation failed before any network call.
	ErrInvalidInput = errors.New("stellarwork: invalid input")

	// ErrAgentUnavailable indicates no signing agent could be reached.
	ErrAgentUnavailable = errors.New("stellarwork: signing agent unavailable")

	// ErrUserDeclined indicates the user rejected the request in the signing agent.
	ErrUserDeclined = errors.New("stellarwork: user declined")

	// ErrAgentError indicates the signing agent failed or returned an unusable result.
	ErrAgentError = errors.New("stellarwork: signing agent error")

	// ErrNetworkError indicates a retryable failure talking to the ledger.
	ErrNetworkError = errors.New("stellarwork: ledger network error")

	// ErrAccountNotFound indicates the address has no on-ledger presence.
	ErrAccountNotFound = errors.New("stellarwork: account not found")

	// ErrRejectedByNetwork indicates the ledger rejected the transaction.
	ErrRejectedByNetwork = errors.New("stellarwork: transaction rejected by network")

	// ErrTimeoutOrUnknown indicates the submission outcome could not be determined.
	ErrTimeoutOrUnknown = errors.New("stellarwork: transaction outcome unknown")

	// ErrAmountTooSmall indicates a positive amount rounds to zero at ledger precision.
	ErrAmountTooSmall = errors.New("stellarwork: amount too small")

	// ErrInvalidAddress indicates a malformed ledger address.
	ErrInvalidAddress = errors.New("stellarwork: invalid address")

	// ErrInsufficientPrecision indicates an amount has more fractional digits than the ledger allows.
	ErrInsufficientPrecision = errors.New("stellarwork: amount exceeds ledger precision")

	// ErrInvalidNetwork indicates an unknown network name or passphrase.
	ErrInvalidNetwork = errors.New("stellarwork: invalid or unsupported network")

	// ErrAttemptInProgress indicates a payment attempt is already running for the dialog.
	ErrAttemptInProgress = errors.New("stellarwork: payment attempt in progress")

	// ErrCanceled indicates the user canceled the attempt before signing.
	ErrCanceled = errors.New("stellarwork: payment canceled")

	// ErrSessionNotFound indicates no session exists for the given id.
	ErrSessionNotFound = errors.New("stellarwork: session not found")
)

// ErrorCode represents payment error codes for programmatic handling.
type ErrorCode string

const (
	ErrCodeInvalidInput          ErrorCode = "invalid_input"
	ErrCodeAgentUnavailable      ErrorCode = "agent_unavailable"
	ErrCodeUserDeclined          ErrorCode = "user_declined"
	ErrCodeAgentError            ErrorCode = "agent_error"
	ErrCodeNetworkError          ErrorCode = "network_error"
	ErrCodeAccountNotFound       ErrorCode = "account_not_found"
	ErrCodeRejectedByNetwork     ErrorCode = "rejected_by_network"
	ErrCodeTimeoutOrUnknown      ErrorCode = "timeout_or_unknown"
	ErrCodeAmountTooSmall        ErrorCode = "amount_too_small"
	ErrCodeInvalidAddress        ErrorCode = "invalid_address"
	ErrCodeInsufficientPrecision ErrorCode = "insufficient_precision"
	ErrCodeCanceled              ErrorCode = "canceled"
)

// ReasonRateLimited is the failure reason of a submission the ledger refused
// with 429 before accepting it.
const ReasonRateLimited = "rate_limit_exceeded"

// Phase names the part of the payment path where a failure happened.
// Retry safety depends on it: failures before submission are always safe to retry.
type Phase string

const (
	PhaseValidation Phase = "validation"
	PhaseAccount    Phase = "account"
	PhaseSigning    Phase = "signing"
	PhaseSubmission Phase = "submission"
)

// PaymentError provides structured error information.
type PaymentError struct {
	// Code is the error code for programmatic handling.
	Code ErrorCode

	// Phase is where in the payment path the error happened.
	Phase Phase

	// Message is the human-readable error message.
	Message string

	// Details contains additional error context.
	Details map[string]interface{}

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *PaymentError) Error() string {
	msg := e.Message
	if e.Phase != "" {
		msg = string(e.Phase) + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *PaymentError) Unwrap() error {
	return e.Err
}

// NewPaymentError creates a new PaymentError with the given code and message.
func NewPaymentError(code ErrorCode, phase Phase, message string, err error) *PaymentError {
	return &PaymentError{
		Code:    code,
		Phase:   phase,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// WithDetails adds additional context to the error.
// Lazily initializes the Details map if nil.
func (e *PaymentError) WithDetails(key string, value interface{}) *PaymentError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// RetryAdvice tells the user what is safe to do after this failure.
func (e *PaymentError) RetryAdvice() string {
	switch {
	case e.Code == ErrCodeTimeoutOrUnknown && e.Details["reason"] == ReasonRateLimited:
		return "the ledger rate-limited the submission without accepting it; retry after a short wait"
	case e.Code == ErrCodeTimeoutOrUnknown:
		return "check the ledger for the transaction hash before paying again"
	case e.Code == ErrCodeRejectedByNetwork:
		return "the ledger rejected the transaction; fix the cause before retrying"
	case e.Phase == PhaseSubmission:
		return "check the ledger before retrying"
	default:
		return "safe to retry"
	}
}

// CodeFor maps a sentinel error to its ErrorCode.
// Unknown errors map to ErrCodeAgentError when they come from signing and
// ErrCodeNetworkError otherwise.
func CodeFor(err error, phase Phase) ErrorCode {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe.Code
	}
	switch {
	case errors.Is(err, ErrInvalidInput):
		return ErrCodeInvalidInput
	case errors.Is(err, ErrAgentUnavailable):
		return ErrCodeAgentUnavailable
	case errors.Is(err, ErrUserDeclined):
		return ErrCodeUserDeclined
	case errors.Is(err, ErrAgentError):
		return ErrCodeAgentError
	case errors.Is(err, ErrAmountTooSmall):
		return ErrCodeAmountTooSmall
	case errors.Is(err, ErrInvalidAddress):
		return ErrCodeInvalidAddress
	case errors.Is(err, ErrInsufficientPrecision):
		return ErrCodeInsufficientPrecision
	case errors.Is(err, ErrRejectedByNetwork):
		return ErrCodeRejectedByNetwork
	case errors.Is(err, ErrTimeoutOrUnknown):
		return ErrCodeTimeoutOrUnknown
	case errors.Is(err, ErrCanceled):
		return ErrCodeCanceled
	case errors.Is(err, ErrAccountNotFound):
		return ErrCodeAccountNotFound
	case errors.Is(err, ErrNetworkError):
		return ErrCodeNetworkError
	}
	if phase == PhaseSigning {
		return ErrCodeAgentError
	}
	return ErrCodeNetworkError
}
