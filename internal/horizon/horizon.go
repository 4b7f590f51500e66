// Package horizon holds the Horizon wire types and response helpers shared by
// the ledger query service and the submitter.
package horizon

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// Problem type suffixes used by Horizon.
const (
	ProblemTransactionFailed = "transaction_failed"
	ProblemTimeout           = "timeout"
	ProblemNotFound          = "not_found"
	ProblemRateLimitExceeded = "rate_limit_exceeded"
)

// Balance is one entry of an account's balances array.
type Balance struct {
	Balance   string `json:"balance"`
	AssetType string `json:"asset_type"`
	AssetCode string `json:"asset_code,omitempty"`
}

// Account is the subset of GET /accounts/{id} the payment path needs.
type Account struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	Sequence  string    `json:"sequence"`
	Balances  []Balance `json:"balances"`
}

// NativeBalance returns the native balance string, or "0" if the account holds none.
func (a *Account) NativeBalance() string {
	for _, b := range a.Balances {
		if b.AssetType == "native" {
			return b.Balance
		}
	}
	return "0"
}

// SequenceNumber parses the account's current sequence number.
func (a *Account) SequenceNumber() (int64, error) {
	seq, err := strconv.ParseInt(a.Sequence, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid sequence %q: %w", a.Sequence, err)
	}
	return seq, nil
}

// ResultCodes carries the transaction and operation result codes of a failure.
type ResultCodes struct {
	Transaction string   `json:"transaction"`
	Operations  []string `json:"operations,omitempty"`
}

// Extras is the extras object of a transaction_failed problem.
type Extras struct {
	EnvelopeXDR string       `json:"envelope_xdr,omitempty"`
	ResultXDR   string       `json:"result_xdr,omitempty"`
	ResultCodes *ResultCodes `json:"result_codes,omitempty"`
}

// Problem is a Horizon RFC 7807 problem response.
type Problem struct {
	Type   string  `json:"type"`
	Title  string  `json:"title"`
	Status int     `json:"status"`
	Detail string  `json:"detail"`
	Extras *Extras `json:"extras,omitempty"`
}

// Kind returns the last path segment of the problem type URL.
func (p *Problem) Kind() string {
	if i := strings.LastIndex(p.Type, "/"); i >= 0 {
		return p.Type[i+1:]
	}
	return p.Type
}

// Reason returns the most specific result code of a failed transaction.
// An operation code other than op_success wins over the transaction code
// tx_failed; otherwise the transaction code is returned as is.
func (p *Problem) Reason() string {
	if p.Extras == nil || p.Extras.ResultCodes == nil {
		return ""
	}
	codes := p.Extras.ResultCodes
	if codes.Transaction == "tx_failed" {
		for _, op := range codes.Operations {
			if op != "" && op != "op_success" {
				return op
			}
		}
	}
	return codes.Transaction
}

// TransactionSuccess is the body of a successful POST /transactions.
type TransactionSuccess struct {
	Hash       string `json:"hash"`
	Ledger     int32  `json:"ledger"`
	Successful *bool  `json:"successful,omitempty"`
}

// maxProblemBody bounds how much of an error body is read.
const maxProblemBody = 64 << 10

// ParseProblem decodes a problem body. It returns nil if the body is not
// problem JSON.
func ParseProblem(resp *http.Response) *Problem {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProblemBody))
	if err != nil || len(body) == 0 {
		return nil
	}
	var p Problem
	if err := json.Unmarshal(body, &p); err != nil {
		return nil
	}
	if p.Status == 0 {
		p.Status = resp.StatusCode
	}
	return &p
}

// Retryable reports whether a status code is worth retrying for idempotent reads.
func Retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}
