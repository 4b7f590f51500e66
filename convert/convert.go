// Package convert converts between fiat prices and native ledger amounts.
//
// All arithmetic uses shopspring/decimal; floats never touch an amount.
// Ledger amounts carry seven fractional digits and are rounded half away
// from zero. The exchange rate is the fiat value of one native unit and
// comes from configuration.
package convert

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/afrarahimemadak/stellarwork"
)

// DefaultRate is the fiat value of one native unit used when none is configured.
var DefaultRate = decimal.RequireFromString("0.10")

// ToLedgerAmount converts a fiat amount into the native amount at rate.
// Returns ErrInvalidInput for a non-positive amount or rate and
// ErrAmountTooSmall when a positive amount rounds to zero.
func ToLedgerAmount(fiat, rate decimal.Decimal) (decimal.Decimal, error) {
	if !fiat.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: fiat amount must be positive, got %s", stellarwork.ErrInvalidInput, fiat)
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: rate must be positive, got %s", stellarwork.ErrInvalidInput, rate)
	}

	amount := fiat.DivRound(rate, stellarwork.LedgerPrecision)
	if amount.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: %s at rate %s is below one stroop", stellarwork.ErrAmountTooSmall, fiat, rate)
	}
	return amount, nil
}

// ToFiat converts a native amount into fiat at rate. The result is exact;
// use FormatDisplay to render it.
func ToFiat(ledger, rate decimal.Decimal) (decimal.Decimal, error) {
	if ledger.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: ledger amount cannot be negative, got %s", stellarwork.ErrInvalidInput, ledger)
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: rate must be positive, got %s", stellarwork.ErrInvalidInput, rate)
	}
	return ledger.Mul(rate), nil
}

// FiatTotal computes the price of a job: hours times the hourly rate, in cents.
func FiatTotal(hours, hourlyRate decimal.Decimal) (decimal.Decimal, error) {
	if !hours.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: hours must be positive, got %s", stellarwork.ErrInvalidInput, hours)
	}
	if !hourlyRate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: hourly rate must be positive, got %s", stellarwork.ErrInvalidInput, hourlyRate)
	}
	total := hours.Mul(hourlyRate).Round(stellarwork.FiatPrecision)
	if total.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: %s hours at %s is below one cent", stellarwork.ErrAmountTooSmall, hours, hourlyRate)
	}
	return total, nil
}

// Parse parses a decimal amount, wrapping failures in ErrInvalidInput.
func Parse(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: amount cannot be empty", stellarwork.ErrInvalidInput)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: invalid amount %q", stellarwork.ErrInvalidInput, s)
	}
	return d, nil
}

// FormatLedger renders a native amount with seven decimals ("1250.0000000").
func FormatLedger(d decimal.Decimal) string {
	return d.StringFixed(stellarwork.LedgerPrecision)
}

// FormatDisplay renders an amount with two decimals ("125.00").
func FormatDisplay(d decimal.Decimal) string {
	return d.StringFixed(stellarwork.FiatPrecision)
}
