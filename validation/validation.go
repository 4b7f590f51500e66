// Package validation provides validation utilities for payment data.
// It validates account addresses, native amounts, network passphrases and
// payment intents before anything is sent to the ledger.
package validation

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stellar/go-stellar-sdk/strkey"

	"github.com/afrarahimemadak/stellarwork"
)

// ValidateAddress validates a Stellar account address (G... strkey).
func ValidateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("%w: address cannot be empty", stellarwork.ErrInvalidAddress)
	}
	if !strkey.IsValidEd25519PublicKey(address) {
		return fmt.Errorf("%w: %s is not an ed25519 account address", stellarwork.ErrInvalidAddress, address)
	}
	return nil
}

// ValidateLedgerAmount validates that amount is strictly positive and fits
// the ledger's seven fractional digits.
func ValidateLedgerAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive, got %s", stellarwork.ErrInvalidInput, amount)
	}
	if !amount.Equal(amount.Truncate(stellarwork.LedgerPrecision)) {
		return fmt.Errorf("%w: %s has more than %d fractional digits",
			stellarwork.ErrInsufficientPrecision, amount, stellarwork.LedgerPrecision)
	}
	return nil
}

// ParseLedgerAmount parses and validates a native amount string.
func ParseLedgerAmount(amount string) (decimal.Decimal, error) {
	if amount == "" {
		return decimal.Zero, fmt.Errorf("%w: amount cannot be empty", stellarwork.ErrInvalidInput)
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: invalid amount format: %s", stellarwork.ErrInvalidInput, amount)
	}
	if err := ValidateLedgerAmount(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// ValidateNetwork validates a network passphrase.
func ValidateNetwork(passphrase string) error {
	if passphrase == "" {
		return fmt.Errorf("%w: network cannot be empty", stellarwork.ErrInvalidNetwork)
	}
	return stellarwork.ValidatePassphrase(passphrase)
}

// ValidateIntent performs comprehensive validation of a payment intent.
func ValidateIntent(intent stellarwork.PaymentIntent) error {
	if err := ValidateAddress(string(intent.Payer)); err != nil {
		return fmt.Errorf("invalid intent: payer %w", err)
	}
	if err := ValidateAddress(string(intent.Payee)); err != nil {
		return fmt.Errorf("invalid intent: payee %w", err)
	}
	if intent.Payer == intent.Payee {
		return fmt.Errorf("%w: payer and payee are the same account", stellarwork.ErrInvalidInput)
	}
	if !intent.FiatAmount.IsPositive() {
		return fmt.Errorf("%w: fiat amount must be positive, got %s", stellarwork.ErrInvalidInput, intent.FiatAmount)
	}
	if err := ValidateLedgerAmount(intent.LedgerAmount); err != nil {
		return fmt.Errorf("invalid intent: %w", err)
	}
	return nil
}

// ValidateUnsigned checks the fields an agent needs before it is asked to sign.
func ValidateUnsigned(unsigned *stellarwork.UnsignedTransaction) error {
	if unsigned == nil {
		return fmt.Errorf("%w: transaction cannot be nil", stellarwork.ErrInvalidInput)
	}
	if unsigned.Envelope == "" {
		return fmt.Errorf("%w: envelope cannot be empty", stellarwork.ErrInvalidInput)
	}
	if unsigned.Hash == "" {
		return fmt.Errorf("%w: hash cannot be empty", stellarwork.ErrInvalidInput)
	}
	if err := ValidateAddress(string(unsigned.Source)); err != nil {
		return fmt.Errorf("invalid transaction: source %w", err)
	}
	return ValidateNetwork(unsigned.Network)
}
