// Package identity is a client for the marketplace CRUD API: users and job
// listings. It resolves wallet addresses to registered users.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/afrarahimemadak/stellarwork"
	"github.com/afrarahimemadak/stellarwork/internal/helpers"
)

var (
	// ErrUnavailable indicates the marketplace API could not be reached or failed.
	ErrUnavailable = errors.New("identity: service unavailable")

	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("identity: not found")
)

// Strategy selects how a wallet address is resolved to a user.
type Strategy string

const (
	// StrategyScan lists every user and filters locally. O(n) in users.
	StrategyScan Strategy = "scan"

	// StrategyServer asks the API for the user owning the address.
	StrategyServer Strategy = "server"
)

// ParseStrategy parses a configured strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyScan, StrategyServer:
		return Strategy(s), nil
	case "":
		return StrategyScan, nil
	default:
		return "", fmt.Errorf("unknown identity lookup strategy %q", s)
	}
}

// Client talks to the marketplace API.
type Client struct {
	// BaseURL is the API URL (e.g., "http://localhost:8000").
	BaseURL string

	// Client is the HTTP client to use for requests. If nil, http.DefaultClient is used.
	Client *http.Client

	// Timeout bounds each request when the context has no deadline (default: 10s).
	Timeout time.Duration

	// Strategy selects the lookup method (default: scan).
	Strategy Strategy

	// Logger receives request logs. If nil, logging is disabled.
	Logger *zap.Logger
}

// NewClient creates a Client for baseURL.
func NewClient(baseURL string, strategy Strategy) *Client {
	return &Client{BaseURL: baseURL, Timeout: 10 * time.Second, Strategy: strategy}
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

// do sends a request and decodes a 2xx JSON body into out.
// A 404 returns ErrNotFound; everything else that is not 2xx returns ErrUnavailable.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	// Use provided context, apply timeout only if not already set
	reqCtx, cancel := helpers.RequestContext(ctx, c.Timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, method, helpers.JoinURL(c.BaseURL, path), body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	httpResp, err := c.httpClient().Do(httpReq)
	if err != nil {
		c.logger().Warn("marketplace API request failed",
			zap.String("method", method), zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer httpResp.Body.Close()

	c.logger().Debug("marketplace API request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", httpResp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	switch {
	case httpResp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case httpResp.StatusCode < 200 || httpResp.StatusCode > 299:
		bodyBytes, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		if len(bodyBytes) > 0 {
			return fmt.Errorf("%w: status %d, body: %s", ErrUnavailable, httpResp.StatusCode, helpers.Truncate(string(bodyBytes), 200))
		}
		return fmt.Errorf("%w: status %d", ErrUnavailable, httpResp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", ErrUnavailable, err)
	}
	return nil
}

// ListUsers returns every registered user.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := c.do(ctx, http.MethodGet, "users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// LookupByAddress resolves a wallet address to its registered user.
// An unknown address is not an error: it returns Exists false.
func (c *Client) LookupByAddress(ctx context.Context, address stellarwork.WalletAddress) (LookupResult, error) {
	if c.Strategy == StrategyServer {
		var user User
		err := c.do(ctx, http.MethodGet, "users/by-wallet/"+url.PathEscape(string(address)), nil, &user)
		switch {
		case errors.Is(err, ErrNotFound):
			return LookupResult{}, nil
		case err != nil:
			return LookupResult{}, err
		}
		return LookupResult{Exists: true, User: &user}, nil
	}

	users, err := c.ListUsers(ctx)
	if err != nil {
		return LookupResult{}, err
	}
	for i := range users {
		if users[i].WalletAddress == address {
			return LookupResult{Exists: true, User: &users[i]}, nil
		}
	}
	return LookupResult{}, nil
}

// GetUser returns the user with id.
func (c *Client) GetUser(ctx context.Context, id int64) (*User, error) {
	if c.Strategy == StrategyServer {
		var user User
		if err := c.do(ctx, http.MethodGet, "users/"+strconv.FormatInt(id, 10), nil, &user); err != nil {
			return nil, err
		}
		return &user, nil
	}

	users, err := c.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].ID == id {
			return &users[i], nil
		}
	}
	return nil, ErrNotFound
}

// CreateUser registers a new user.
func (c *Client) CreateUser(ctx context.Context, in UserCreate) (*User, error) {
	if in.FullName == "" {
		return nil, fmt.Errorf("%w: full name is required", stellarwork.ErrInvalidInput)
	}
	if in.WalletAddress == "" {
		return nil, fmt.Errorf("%w: wallet address is required", stellarwork.ErrInvalidInput)
	}
	if !in.UserType.Valid() {
		return nil, fmt.Errorf("%w: unknown user type %q", stellarwork.ErrInvalidInput, in.UserType)
	}
	var user User
	if err := c.do(ctx, http.MethodPost, "users", in, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListFreelancerJobs returns every freelancer listing.
func (c *Client) ListFreelancerJobs(ctx context.Context) ([]FreelancerJob, error) {
	var jobs []FreelancerJob
	if err := c.do(ctx, http.MethodGet, "freelancer/jobs", nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// GetFreelancerJob returns the freelancer listing with id.
func (c *Client) GetFreelancerJob(ctx context.Context, id int64) (*FreelancerJob, error) {
	jobs, err := c.ListFreelancerJobs(ctx)
	if err != nil {
		return nil, err
	}
	for i := range jobs {
		if jobs[i].ID == id {
			return &jobs[i], nil
		}
	}
	return nil, ErrNotFound
}

// ListEmployerJobs returns every employer posting.
func (c *Client) ListEmployerJobs(ctx context.Context) ([]EmployerJob, error) {
	var jobs []EmployerJob
	if err := c.do(ctx, http.MethodGet, "employer/jobs", nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}
