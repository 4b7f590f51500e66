package identity

import (
	"github.com/shopspring/decimal"

	"github.com/afrarahimemadak/stellarwork"
)

// User is a registered marketplace user.
type User struct {
	ID            int64                     `json:"id"`
	FullName      string                    `json:"full_name"`
	WalletAddress stellarwork.WalletAddress `json:"wallet_address"`
	Email         string                    `json:"email,omitempty"`
	UserType      stellarwork.Role          `json:"user_type"`
}

// UserCreate is the body of POST /users.
type UserCreate struct {
	FullName      string                    `json:"full_name"`
	WalletAddress stellarwork.WalletAddress `json:"wallet_address"`
	Email         string                    `json:"email,omitempty"`
	UserType      stellarwork.Role          `json:"user_type"`
}

// LookupResult is the answer to "is this wallet registered?".
type LookupResult struct {
	Exists bool  `json:"exists"`
	User   *User `json:"user,omitempty"`
}

// FreelancerJob is a freelancer's service listing.
type FreelancerJob struct {
	ID          int64            `json:"id"`
	UserID      int64            `json:"user_id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Budget      decimal.Decimal  `json:"budget"`
	HourlyRate  *decimal.Decimal `json:"hourly_rate,omitempty"`

	// WalletAddress is the payee account. Older listings omit it.
	WalletAddress stellarwork.WalletAddress `json:"wallet_address,omitempty"`
}

// Rate is the hourly price of the listing: the hourly rate if set, else the budget.
func (j *FreelancerJob) Rate() decimal.Decimal {
	if j.HourlyRate != nil && j.HourlyRate.IsPositive() {
		return *j.HourlyRate
	}
	return j.Budget
}

// EmployerJob is an employer's job posting.
type EmployerJob struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"user_id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Salary      decimal.Decimal `json:"salary"`
}
