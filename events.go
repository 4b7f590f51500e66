package stellarwork

import "time"

// PaymentEventType represents the type of payment event.
type PaymentEventType string

const (
	// PaymentEventAttempt indicates a payment is being attempted.
	PaymentEventAttempt PaymentEventType = "attempt"

	// PaymentEventSuccess indicates a payment succeeded.
	PaymentEventSuccess PaymentEventType = "success"

	// PaymentEventFailure indicates a payment failed.
	PaymentEventFailure PaymentEventType = "failure"
)

// PaymentEvent represents a payment lifecycle event.
// The orchestrator emits one attempt event per Pay call and exactly one
// success or failure event when the attempt reaches a terminal state.
type PaymentEvent struct {
	// Type is the event type (attempt, success, failure).
	Type PaymentEventType

	// Timestamp is when the event occurred.
	Timestamp time.Time

	// AttemptID identifies the payment attempt.
	AttemptID string

	// JobID is the listing being paid for.
	JobID int64

	// FiatAmount is the price in fiat with two decimals.
	FiatAmount string

	// Amount is the native amount with seven decimals.
	Amount string

	// Network is the network passphrase.
	Network string

	// Payer is the paying account.
	Payer string

	// Recipient is the payee account.
	Recipient string

	// Transaction is the transaction hash (available once built).
	Transaction string

	// Code is the failure code (failure only).
	Code ErrorCode

	// Phase is where the failure happened (failure only).
	Phase Phase

	// Error contains error details (available on failure).
	Error error

	// Duration is the time taken for the attempt.
	Duration time.Duration
}

// PaymentCallback is a function that handles payment events.
// Callbacks are invoked synchronously while the attempt runs, so they
// should be fast.
type PaymentCallback func(PaymentEvent)
