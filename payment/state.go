package payment

import "fmt"

// State is the phase of a payment attempt.
type State string

const (
	StateIdle              State = "idle"
	StateValidating        State = "validating"
	StateFetchingAccount   State = "fetching_account"
	StateAwaitingSignature State = "awaiting_signature"
	StateSubmitting        State = "submitting"
	StateSucceeded         State = "succeeded"
	StateFailed            State = "failed"
)

// transitions lists the legal edges of the attempt state machine.
var transitions = map[State][]State{
	StateIdle:              {StateValidating},
	StateValidating:        {StateFetchingAccount, StateIdle, StateFailed},
	StateFetchingAccount:   {StateAwaitingSignature, StateIdle, StateFailed},
	StateAwaitingSignature: {StateSubmitting, StateFailed},
	StateSubmitting:        {StateSucceeded, StateFailed},
	StateSucceeded:         {StateIdle},
	StateFailed:            {StateIdle},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether s ends an attempt.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Busy reports whether an attempt is running in s.
func (s State) Busy() bool {
	switch s {
	case StateValidating, StateFetchingAccount, StateAwaitingSignature, StateSubmitting:
		return true
	}
	return false
}

// Cancelable reports whether Cancel stops an attempt in s.
// Once the signing request is out, cancellation is advisory only.
func (s State) Cancelable() bool {
	return s == StateIdle || s == StateValidating || s == StateFetchingAccount
}

type illegalTransitionError struct {
	from, to State
}

func (e *illegalTransitionError) Error() string {
	return fmt.Sprintf("payment: illegal transition %s -> %s", e.from, e.to)
}
