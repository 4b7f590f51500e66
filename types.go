// Package stellarwork implements the wallet-mediated payment path of the
// StellarWork freelance marketplace.
//
// A payment attempt converts a fiat price into the ledger's native asset, builds
// a single-operation payment transaction against a freshly fetched account
// snapshot, has an external signing agent sign it and submits it to Horizon.
// The root package holds the shared data model, errors and contracts; the
// subpackages implement each step:
//   - convert: fiat <-> native amount conversion
//   - ledger: account queries
//   - txbuild: transaction construction
//   - submit: transaction submission and outcome classification
//   - payment: the per-attempt state machine
//   - session: wallet connection and identity reconciliation
//
// Import path: github.com/afrarahimemadak/stellarwork
package stellarwork

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerPrecision is the number of fractional digits of the native asset (stroops).
const LedgerPrecision int32 = 7

// FiatPrecision is the number of fractional digits used for fiat prices.
const FiatPrecision int32 = 2

// WalletAddress is an opaque ledger account identifier (a Stellar G... strkey).
type WalletAddress string

// String implements fmt.Stringer.
func (a WalletAddress) String() string {
	return string(a)
}

// Short renders the address the way the header shows it (first 6, last 4).
func (a WalletAddress) Short() string {
	s := string(a)
	if len(s) <= 10 {
		return s
	}
	return s[:6] + "..." + s[len(s)-4:]
}

// Role is the marketplace role a wallet is registered under.
type Role string

const (
	RoleFreelancer Role = "freelancer"
	RoleEmployer   Role = "employer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleFreelancer || r == RoleEmployer
}

// SessionContext is the authenticated wallet context for one browsing session.
// Only UserID changes after creation.
type SessionContext struct {
	// ID identifies the session in the session store.
	ID string `json:"id"`

	// WalletAddress is the connected account.
	WalletAddress WalletAddress `json:"walletAddress"`

	// Role is the effective role (the stored identity wins over the requested one).
	Role Role `json:"role"`

	// UserID is set once the identity is known.
	UserID *int64 `json:"userId,omitempty"`
}

// AccountSnapshot is the ledger state of an account at FetchedAt.
// Sequence numbers are single-use; a snapshot belongs to exactly one attempt.
type AccountSnapshot struct {
	Address        WalletAddress   `json:"address"`
	NativeBalance  decimal.Decimal `json:"nativeBalance"`
	SequenceNumber int64           `json:"sequenceNumber"`
	FetchedAt      time.Time       `json:"fetchedAt"`
}

// PaymentIntent is a validated request to move LedgerAmount from Payer to Payee.
type PaymentIntent struct {
	Payer        WalletAddress   `json:"payer"`
	Payee        WalletAddress   `json:"payee"`
	FiatAmount   decimal.Decimal `json:"fiatAmount"`
	LedgerAmount decimal.Decimal `json:"ledgerAmount"`
}

// UnsignedTransaction is a transaction envelope waiting for a signature.
type UnsignedTransaction struct {
	// Envelope is the base64 XDR transaction envelope without signatures.
	Envelope string `json:"envelope"`

	// Hash is the hex transaction hash for Network.
	Hash string `json:"hash"`

	Source      WalletAddress `json:"source"`
	Destination WalletAddress `json:"destination"`

	// Amount is the native amount with LedgerPrecision fractional digits.
	Amount string `json:"amount"`

	// Sequence is the sequence number this transaction consumes.
	Sequence int64 `json:"sequence"`

	// Network is the network passphrase the hash was computed for.
	Network string `json:"network"`

	// BaseFee is the per-operation fee in stroops.
	BaseFee int64 `json:"baseFee"`

	// ValidUntil is the end of the envelope validity window.
	ValidUntil time.Time `json:"validUntil"`
}

// Expired reports whether the validity window has closed at now.
func (u *UnsignedTransaction) Expired(now time.Time) bool {
	return !u.ValidUntil.IsZero() && now.After(u.ValidUntil)
}

// SignedTransaction is an UnsignedTransaction plus the agent's signature.
// It must be submitted at most once successfully.
type SignedTransaction struct {
	Unsigned UnsignedTransaction `json:"unsigned"`

	// Envelope is the signed base64 XDR envelope returned by the agent.
	Envelope string `json:"envelope"`

	// Hash equals Unsigned.Hash; signatures do not change the hash.
	Hash string `json:"hash"`
}

// Outcome classifies a submission.
type Outcome string

const (
	OutcomeSuccess           Outcome = "success"
	OutcomeRejectedByNetwork Outcome = "rejected_by_network"
	OutcomeTimeoutOrUnknown  Outcome = "timeout_or_unknown"
)

// SubmissionResult is the interpreted response of the ledger to a submission.
type SubmissionResult struct {
	Success         bool    `json:"success"`
	Outcome         Outcome `json:"outcome"`
	TransactionHash string  `json:"transactionHash,omitempty"`
	FailureReason   string  `json:"failureReason,omitempty"`

	// Ledger is the ledger sequence the transaction was included in (success only).
	Ledger int32 `json:"ledger,omitempty"`
}

// Err converts a failed result into the matching sentinel error.
func (r SubmissionResult) Err() error {
	switch r.Outcome {
	case OutcomeSuccess:
		return nil
	case OutcomeRejectedByNetwork:
		return ErrRejectedByNetwork
	default:
		return ErrTimeoutOrUnknown
	}
}

// Receipt records the terminal state of one payment attempt.
type Receipt struct {
	AttemptID       string        `json:"attemptId"`
	JobID           int64         `json:"jobId"`
	Payer           WalletAddress `json:"payer"`
	Payee           WalletAddress `json:"payee"`
	FiatAmount      string        `json:"fiatAmount"`
	LedgerAmount    string        `json:"ledgerAmount"`
	Network         string        `json:"network"`
	TransactionHash string        `json:"transactionHash,omitempty"`
	Ledger          int32         `json:"ledger,omitempty"`
	Outcome         Outcome       `json:"outcome"`
	FailureReason   string        `json:"failureReason,omitempty"`
	Timestamp       time.Time     `json:"timestamp"`
}
