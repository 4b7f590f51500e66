// Package ledger queries account state from Horizon.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/afrarahimemadak/stellarwork"
	"github.com/afrarahimemadak/stellarwork/convert"
	"github.com/afrarahimemadak/stellarwork/internal/helpers"
	"github.com/afrarahimemadak/stellarwork/internal/horizon"
	"github.com/afrarahimemadak/stellarwork/validation"
)

// Balance display values for accounts that could not be read.
const (
	DisplayNotFound    = "0.00"
	DisplayUnavailable = "unavailable"
)

// OnAfterFetchFunc is a callback invoked after FetchAccount completes.
// Called with the result (success or failure) for logging, metrics, etc.
type OnAfterFetchFunc func(ctx context.Context, address stellarwork.WalletAddress, snapshot *stellarwork.AccountSnapshot, attempts int, err error)

// Client reads account snapshots from a Horizon server.
type Client struct {
	// BaseURL is the Horizon URL (e.g., "https://horizon-testnet.stellar.org").
	BaseURL string

	// Client is the HTTP client to use for requests. If nil, http.DefaultClient is used.
	Client *http.Client

	// Timeouts bounds each request with RequestTimeout when the context has no deadline.
	Timeouts stellarwork.TimeoutConfig

	// MaxAttempts is the maximum number of attempts for retryable failures (default: 3).
	MaxAttempts int

	// RetryDelay is the delay step between attempts (default: 250ms).
	// The n-th retry waits n*RetryDelay.
	RetryDelay time.Duration

	// Logger receives retry and failure logs. If nil, logging is disabled.
	Logger *zap.Logger

	// OnAfterFetch is called after every FetchAccount.
	OnAfterFetch OnAfterFetchFunc

	// now is the clock for FetchedAt; tests override it.
	now func() time.Time
}

// NewClient creates a Client for baseURL with default timeouts and retries.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:     baseURL,
		Timeouts:    stellarwork.DefaultTimeouts,
		MaxAttempts: 3,
		RetryDelay:  250 * time.Millisecond,
	}
}

func (c *Client) httpClient() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return http.DefaultClient
}

func (c *Client) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}

func (c *Client) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

// backOff returns the retry policy: linear delays, bounded attempts, stopped by ctx.
func (c *Client) backOff(ctx context.Context) backoff.BackOff {
	step := c.RetryDelay
	if step <= 0 {
		step = 250 * time.Millisecond
	}
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	return backoff.WithContext(backoff.WithMaxRetries(&linearBackOff{step: step}, uint64(attempts-1)), ctx)
}

// FetchAccount returns a fresh snapshot of address.
// Returns ErrAccountNotFound if the account does not exist on the ledger and
// ErrNetworkError if Horizon could not be reached after all attempts.
func (c *Client) FetchAccount(ctx context.Context, address stellarwork.WalletAddress) (*stellarwork.AccountSnapshot, error) {
	if err := validation.ValidateAddress(string(address)); err != nil {
		return nil, err
	}

	var (
		snapshot *stellarwork.AccountSnapshot
		attempts int
	)
	operation := func() error {
		attempts++
		s, err := c.fetchOnce(ctx, address)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(fmt.Errorf("%w: %v", stellarwork.ErrNetworkError, ctx.Err()))
			}
			return err
		}
		snapshot = s
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger().Warn("account fetch failed, retrying",
			zap.String("address", string(address)),
			zap.Int("attempt", attempts),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	err := backoff.RetryNotify(operation, c.backOff(ctx), notify)
	if err != nil && !errors.Is(err, stellarwork.ErrAccountNotFound) && !errors.Is(err, stellarwork.ErrNetworkError) {
		err = fmt.Errorf("%w: %v", stellarwork.ErrNetworkError, err)
	}
	if err != nil {
		snapshot = nil
		c.logger().Debug("account fetch finished with error",
			zap.String("address", string(address)),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
	}

	if c.OnAfterFetch != nil {
		c.OnAfterFetch(ctx, address, snapshot, attempts, err)
	}
	return snapshot, err
}

// fetchOnce performs one GET /accounts/{id}. Non-retryable failures are
// wrapped in backoff.Permanent.
func (c *Client) fetchOnce(ctx context.Context, address stellarwork.WalletAddress) (*stellarwork.AccountSnapshot, error) {
	// Use provided context, apply timeout only if not already set
	reqCtx, cancel := helpers.RequestContext(ctx, c.Timeouts.RequestTimeout)
	defer cancel()

	endpoint := helpers.JoinURL(c.BaseURL, "accounts/"+url.PathEscape(string(address)))
	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", stellarwork.ErrNetworkError, err)
	}
	defer httpResp.Body.Close()

	switch {
	case httpResp.StatusCode == http.StatusOK:
	case httpResp.StatusCode == http.StatusNotFound:
		return nil, backoff.Permanent(fmt.Errorf("%w: %s", stellarwork.ErrAccountNotFound, address))
	case horizon.Retryable(httpResp.StatusCode):
		_, _ = io.Copy(io.Discard, httpResp.Body)
		return nil, fmt.Errorf("%w: status %d", stellarwork.ErrNetworkError, httpResp.StatusCode)
	default:
		if p := horizon.ParseProblem(httpResp); p != nil && p.Detail != "" {
			return nil, backoff.Permanent(fmt.Errorf("%w: status %d, reason: %s", stellarwork.ErrNetworkError, httpResp.StatusCode, p.Detail))
		}
		return nil, backoff.Permanent(fmt.Errorf("%w: status %d", stellarwork.ErrNetworkError, httpResp.StatusCode))
	}

	var account horizon.Account
	if err := json.NewDecoder(httpResp.Body).Decode(&account); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: failed to decode account: %v", stellarwork.ErrNetworkError, err))
	}
	seq, err := account.SequenceNumber()
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: %v", stellarwork.ErrNetworkError, err))
	}
	balance, err := decimal.NewFromString(account.NativeBalance())
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: invalid native balance %q", stellarwork.ErrNetworkError, account.NativeBalance()))
	}

	return &stellarwork.AccountSnapshot{
		Address:        address,
		NativeBalance:  balance,
		SequenceNumber: seq,
		FetchedAt:      c.clock(),
	}, nil
}

// DisplayBalance renders the native balance of address with two decimals.
// A missing account shows as "0.00"; an unreachable ledger as "unavailable".
func (c *Client) DisplayBalance(ctx context.Context, address stellarwork.WalletAddress) string {
	snapshot, err := c.FetchAccount(ctx, address)
	switch {
	case errors.Is(err, stellarwork.ErrAccountNotFound):
		return DisplayNotFound
	case err != nil:
		return DisplayUnavailable
	}
	return convert.FormatDisplay(snapshot.NativeBalance)
}

// linearBackOff waits step, 2*step, 3*step, ...
type linearBackOff struct {
	step time.Duration
	n    int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return time.Duration(b.n) * b.step
}

func (b *linearBackOff) Reset() {
	b.n = 0
}
