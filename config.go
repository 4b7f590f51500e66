package stellarwork

import (
	"fmt"
	"time"
)

// TimeoutConfig holds timeout configuration for the payment path.
// RequestTimeout bounds each ledger HTTP call; TTL bounds the validity
// window of a built transaction. The two are independent.
type TimeoutConfig struct {
	// RequestTimeout is the maximum time to wait for a single Horizon request.
	RequestTimeout time.Duration

	// SubmitTimeout is the maximum time to wait for a submission response.
	SubmitTimeout time.Duration

	// TTL is how long a built transaction stays valid on the ledger.
	TTL time.Duration
}

// DefaultTimeouts provides sensible defaults for payment operations.
var DefaultTimeouts = TimeoutConfig{
	RequestTimeout: 10 * time.Second,
	SubmitTimeout:  30 * time.Second,
	TTL:            30 * time.Second,
}

// WithRequestTimeout returns a new TimeoutConfig with updated request timeout.
func (tc TimeoutConfig) WithRequestTimeout(d time.Duration) TimeoutConfig {
	tc.RequestTimeout = d
	return tc
}

// WithSubmitTimeout returns a new TimeoutConfig with updated submit timeout.
func (tc TimeoutConfig) WithSubmitTimeout(d time.Duration) TimeoutConfig {
	tc.SubmitTimeout = d
	return tc
}

// WithTTL returns a new TimeoutConfig with updated transaction TTL.
func (tc TimeoutConfig) WithTTL(d time.Duration) TimeoutConfig {
	tc.TTL = d
	return tc
}

// TTLSeconds returns the TTL rounded down to whole seconds, as the ledger's
// time bounds use second resolution.
func (tc TimeoutConfig) TTLSeconds() int64 {
	return int64(tc.TTL / time.Second)
}

// Validate ensures timeout values are reasonable.
func (tc TimeoutConfig) Validate() error {
	if tc.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %v", tc.RequestTimeout)
	}
	if tc.SubmitTimeout <= 0 {
		return fmt.Errorf("submit timeout must be positive, got %v", tc.SubmitTimeout)
	}
	if tc.TTL < time.Second {
		return fmt.Errorf("transaction ttl must be at least 1s, got %v", tc.TTL)
	}
	return nil
}
