// Package encoding provides utilities for encoding and decoding payment data.
// It handles base64 and JSON marshaling for receipts and unsigned transactions.
package encoding

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/afrarahimemadak/stellarwork"
)

// EncodeReceipt converts a Receipt to a base64-encoded JSON string.
// This is used for the X-Payment-Receipt response header.
//
// Returns an error if JSON marshaling fails.
func EncodeReceipt(receipt stellarwork.Receipt) (string, error) {
	receiptJSON, err := json.Marshal(receipt)
	if err != nil {
		return "", fmt.Errorf("failed to marshal receipt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(receiptJSON), nil
}

// DecodeReceipt converts a base64-encoded JSON string to Receipt.
//
// Returns an error if base64 decoding or JSON unmarshaling fails.
func DecodeReceipt(encoded string) (stellarwork.Receipt, error) {
	var receipt stellarwork.Receipt

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return receipt, fmt.Errorf("failed to decode base64: %w", err)
	}

	if err := json.Unmarshal(decoded, &receipt); err != nil {
		return receipt, fmt.Errorf("failed to unmarshal receipt: %w", err)
	}

	return receipt, nil
}

// EncodeUnsigned converts an UnsignedTransaction to a base64-encoded JSON string,
// for handing a transaction to an offline signer.
//
// Returns an error if JSON marshaling fails.
func EncodeUnsigned(unsigned stellarwork.UnsignedTransaction) (string, error) {
	unsignedJSON, err := json.Marshal(unsigned)
	if err != nil {
		return "", fmt.Errorf("failed to marshal unsigned transaction: %w", err)
	}
	return base64.StdEncoding.EncodeToString(unsignedJSON), nil
}

// DecodeUnsigned converts a base64-encoded JSON string to UnsignedTransaction.
//
// Returns an error if base64 decoding or JSON unmarshaling fails.
func DecodeUnsigned(encoded string) (stellarwork.UnsignedTransaction, error) {
	var unsigned stellarwork.UnsignedTransaction

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return unsigned, fmt.Errorf("failed to decode base64: %w", err)
	}

	if err := json.Unmarshal(decoded, &unsigned); err != nil {
		return unsigned, fmt.Errorf("failed to unmarshal unsigned transaction: %w", err)
	}

	return unsigned, nil
}
