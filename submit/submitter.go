// Package submit sends signed transactions to Horizon and interprets the outcome.
//
// Submission is never retried automatically. A timeout does not mean the
// transaction failed: it may still be applied, so it is reported as
// timeout_or_unknown and the caller must check the ledger before paying again.
package submit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/afrarahimemadak/stellarwork"
	"github.com/afrarahimemadak/stellarwork/internal/helpers"
	"github.com/afrarahimemadak/stellarwork/internal/horizon"
)

// Local failure reasons. They mirror Horizon's result codes.
const (
	ReasonDuplicate = "tx_duplicate"
	ReasonTooLate   = "tx_too_late"
	ReasonMalformed = "tx_malformed"
)

// OnAfterSubmitFunc is a callback invoked after Submit completes.
type OnAfterSubmitFunc func(ctx context.Context, signed *stellarwork.SignedTransaction, result stellarwork.SubmissionResult, elapsed time.Duration)

// Submitter posts signed transactions to Horizon.
// A Submitter is safe for concurrent use. It remembers the hashes it has
// seen succeed and refuses to submit them again.
type Submitter struct {
	// BaseURL is the Horizon URL.
	BaseURL string

	// Client is the HTTP client to use for requests. If nil, http.DefaultClient is used.
	Client *http.Client

	// Timeouts bounds the request with SubmitTimeout when the context has no deadline.
	Timeouts stellarwork.TimeoutConfig

	// Logger receives submission logs. If nil, logging is disabled.
	Logger *zap.Logger

	// OnAfterSubmit is called after every Submit.
	OnAfterSubmit OnAfterSubmitFunc

	mu        sync.Mutex
	succeeded map[string]struct{}
	inflight  map[string]struct{}
	now       func() time.Time
}

// NewSubmitter creates a Submitter for baseURL with default timeouts.
func NewSubmitter(baseURL string) *Submitter {
	return &Submitter{
		BaseURL:  baseURL,
		Timeouts: stellarwork.DefaultTimeouts,
	}
}

func (s *Submitter) httpClient() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return http.DefaultClient
}

func (s *Submitter) logger() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}

func (s *Submitter) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// Submit posts signed to the ledger and classifies the response.
func (s *Submitter) Submit(ctx context.Context, signed *stellarwork.SignedTransaction) stellarwork.SubmissionResult {
	start := time.Now()
	result := s.submit(ctx, signed)

	fields := []zap.Field{
		zap.String("outcome", string(result.Outcome)),
		zap.String("hash", result.TransactionHash),
		zap.Duration("elapsed", time.Since(start)),
	}
	switch result.Outcome {
	case stellarwork.OutcomeSuccess:
		s.logger().Info("transaction submitted", append(fields, zap.Int32("ledger", result.Ledger))...)
	default:
		s.logger().Warn("transaction not confirmed", append(fields, zap.String("reason", result.FailureReason))...)
	}

	if s.OnAfterSubmit != nil {
		s.OnAfterSubmit(ctx, signed, result, time.Since(start))
	}
	return result
}

// Succeeded reports whether hash was confirmed through this submitter.
func (s *Submitter) Succeeded(hash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.succeeded[hash]
	return ok
}

func (s *Submitter) submit(ctx context.Context, signed *stellarwork.SignedTransaction) stellarwork.SubmissionResult {
	if signed == nil || signed.Envelope == "" || signed.Hash == "" {
		return rejected("", ReasonMalformed)
	}
	if signed.Unsigned.Expired(s.clock()) {
		return rejected(signed.Hash, ReasonTooLate)
	}
	if !s.claim(signed.Hash) {
		return rejected(signed.Hash, ReasonDuplicate)
	}

	result := s.post(ctx, signed)
	s.release(signed.Hash, result.Success)
	return result
}

// claim marks hash as in flight. It fails if the hash already succeeded or
// is being submitted concurrently.
func (s *Submitter) claim(hash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.succeeded == nil {
		s.succeeded = make(map[string]struct{})
		s.inflight = make(map[string]struct{})
	}
	if _, ok := s.succeeded[hash]; ok {
		return false
	}
	if _, ok := s.inflight[hash]; ok {
		return false
	}
	s.inflight[hash] = struct{}{}
	return true
}

func (s *Submitter) release(hash string, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, hash)
	if success {
		s.succeeded[hash] = struct{}{}
	}
}

func (s *Submitter) post(ctx context.Context, signed *stellarwork.SignedTransaction) stellarwork.SubmissionResult {
	// Use provided context, apply timeout only if not already set
	reqCtx, cancel := helpers.RequestContext(ctx, s.Timeouts.SubmitTimeout)
	defer cancel()

	form := url.Values{"tx": {signed.Envelope}}
	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, helpers.JoinURL(s.BaseURL, "transactions"), strings.NewReader(form.Encode()))
	if err != nil {
		return unknown(signed.Hash, fmt.Sprintf("failed to create request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := s.httpClient().Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return unknown(signed.Hash, "request timed out")
		}
		return unknown(signed.Hash, err.Error())
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode == http.StatusOK {
		var body horizon.TransactionSuccess
		if err := json.NewDecoder(httpResp.Body).Decode(&body); err != nil {
			// The ledger accepted the transaction; only the body is unreadable.
			s.logger().Warn("could not decode submission response", zap.String("hash", signed.Hash), zap.Error(err))
		}
		hash := body.Hash
		if hash == "" {
			hash = signed.Hash
		}
		return stellarwork.SubmissionResult{
			Success:         true,
			Outcome:         stellarwork.OutcomeSuccess,
			TransactionHash: hash,
			Ledger:          body.Ledger,
		}
	}

	problem := horizon.ParseProblem(httpResp)
	switch {
	case httpResp.StatusCode == http.StatusGatewayTimeout,
		problem != nil && problem.Kind() == horizon.ProblemTimeout:
		return unknown(signed.Hash, "ledger timed out waiting for inclusion")
	case httpResp.StatusCode >= http.StatusInternalServerError:
		return unknown(signed.Hash, fmt.Sprintf("status %d", httpResp.StatusCode))
	case httpResp.StatusCode == http.StatusTooManyRequests:
		// Refused before reaching the ledger. The outcome stays unknown so the
		// hash is not marked as settled; the reason carries the retry advice.
		return unknown(signed.Hash, stellarwork.ReasonRateLimited)
	case problem != nil && problem.Reason() != "":
		return rejected(signed.Hash, problem.Reason())
	case problem != nil && problem.Kind() != "":
		return rejected(signed.Hash, problem.Kind())
	default:
		return rejected(signed.Hash, fmt.Sprintf("status %d", httpResp.StatusCode))
	}
}

func rejected(hash, reason string) stellarwork.SubmissionResult {
	return stellarwork.SubmissionResult{
		Outcome:         stellarwork.OutcomeRejectedByNetwork,
		TransactionHash: hash,
		FailureReason:   reason,
	}
}

func unknown(hash, reason string) stellarwork.SubmissionResult {
	return stellarwork.SubmissionResult{
		Outcome:         stellarwork.OutcomeTimeoutOrUnknown,
		TransactionHash: hash,
		FailureReason:   reason,
	}
}
