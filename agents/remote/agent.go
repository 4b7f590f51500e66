// Package remote implements a signing agent that talks to an out-of-process
// wallet daemon over HTTP/JSON.
//
// The daemon exposes three endpoints:
//
//	GET  /status   -> {"connected": true}
//	POST /address  -> {"address": "G..."}
//	POST /sign     {"xdr", "networkPassphrase", "address"} -> {"signedTxXdr": "..."}
//
// A user rejection is reported as 403 with {"error": "user_declined"}.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/afrarahimemadak/stellarwork"
	"github.com/afrarahimemadak/stellarwork/internal/helpers"
	"github.com/afrarahimemadak/stellarwork/validation"
)

// ErrorUserDeclined is the error value the daemon uses for a rejection.
const ErrorUserDeclined = "user_declined"

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Connected bool   `json:"connected"`
	Version   string `json:"version,omitempty"`
}

// AddressResponse is the body of POST /address.
type AddressResponse struct {
	Address string `json:"address"`
	Error   string `json:"error,omitempty"`
}

// SignRequest is the body of POST /sign.
type SignRequest struct {
	XDR               string `json:"xdr"`
	NetworkPassphrase string `json:"networkPassphrase"`
	Address           string `json:"address"`
}

// SignResponse is the body of POST /sign.
type SignResponse struct {
	SignedTxXDR string `json:"signedTxXdr"`
	Error       string `json:"error,omitempty"`
}

// Agent is a client for a wallet daemon.
// Address and sign requests wait for the user and carry no timeout of their
// own; bound them with the context if needed.
type Agent struct {
	// BaseURL is the daemon URL (e.g., "http://127.0.0.1:7341").
	BaseURL string

	// Client is the HTTP client to use for requests. If nil, http.DefaultClient is used.
	Client *http.Client

	// DetectTimeout bounds the status probe (default: 2s).
	DetectTimeout time.Duration

	// Authorization is a static Authorization header value sent with every request.
	Authorization string

	// Logger receives request logs. If nil, logging is disabled.
	Logger *zap.Logger
}

// Verify that Agent implements stellarwork.Agent.
var _ stellarwork.Agent = (*Agent)(nil)

// New creates an Agent for the daemon at baseURL.
func New(baseURL string) *Agent {
	return &Agent{BaseURL: baseURL, DetectTimeout: 2 * time.Second}
}

func (a *Agent) httpClient() *http.Client {
	if a.Client != nil {
		return a.Client
	}
	return http.DefaultClient
}

func (a *Agent) logger() *zap.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return zap.NewNop()
}

func (a *Agent) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, helpers.JoinURL(a.BaseURL, path), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.Authorization != "" {
		req.Header.Set("Authorization", a.Authorization)
	}
	return req, nil
}

// Detect probes GET /status. Any failure reports false.
func (a *Agent) Detect(ctx context.Context) bool {
	timeout := a.DetectTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := a.newRequest(ctx, http.MethodGet, "status", nil)
	if err != nil {
		return false
	}
	resp, err := a.httpClient().Do(req)
	if err != nil {
		a.logger().Debug("agent not reachable", zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	var status StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return false
	}
	return status.Connected
}

// RequestAddress asks the daemon for the active account.
func (a *Agent) RequestAddress(ctx context.Context) (stellarwork.WalletAddress, error) {
	req, err := a.newRequest(ctx, http.MethodPost, "address", struct{}{})
	if err != nil {
		return "", fmt.Errorf("%w: %v", stellarwork.ErrAgentUnavailable, err)
	}
	resp, err := a.httpClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", stellarwork.ErrAgentUnavailable, err)
	}
	defer resp.Body.Close()

	var body AddressResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&body)
	if declined(resp.StatusCode, body.Error) {
		return "", stellarwork.ErrUserDeclined
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", stellarwork.ErrAgentUnavailable, resp.StatusCode)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("%w: failed to decode address response: %v", stellarwork.ErrAgentUnavailable, decodeErr)
	}
	if err := validation.ValidateAddress(body.Address); err != nil {
		return "", fmt.Errorf("%w: %v", stellarwork.ErrAgentUnavailable, err)
	}
	return stellarwork.WalletAddress(body.Address), nil
}

// Sign asks the daemon to sign unsigned and verifies the returned envelope.
func (a *Agent) Sign(ctx context.Context, unsigned *stellarwork.UnsignedTransaction, network string, address stellarwork.WalletAddress) (*stellarwork.SignedTransaction, error) {
	if err := validation.ValidateUnsigned(unsigned); err != nil {
		return nil, fmt.Errorf("%w: %v", stellarwork.ErrAgentError, err)
	}

	req, err := a.newRequest(ctx, http.MethodPost, "sign", SignRequest{
		XDR:               unsigned.Envelope,
		NetworkPassphrase: network,
		Address:           string(address),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", stellarwork.ErrAgentError, err)
	}
	resp, err := a.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", stellarwork.ErrAgentError, err)
	}
	defer resp.Body.Close()

	var body SignResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&body)
	if declined(resp.StatusCode, body.Error) {
		a.logger().Info("signature declined", zap.String("hash", unsigned.Hash))
		return nil, stellarwork.ErrUserDeclined
	}
	if resp.StatusCode != http.StatusOK {
		if body.Error != "" {
			return nil, fmt.Errorf("%w: status %d, reason: %s", stellarwork.ErrAgentError, resp.StatusCode, body.Error)
		}
		return nil, fmt.Errorf("%w: status %d", stellarwork.ErrAgentError, resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: failed to decode sign response: %v", stellarwork.ErrAgentError, decodeErr)
	}

	return stellarwork.VerifySigned(unsigned, body.SignedTxXDR)
}

func declined(status int, errValue string) bool {
	return errValue == ErrorUserDeclined || (status == http.StatusForbidden && errValue == "")
}
