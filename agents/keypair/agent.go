// Package keypair implements an in-process signing agent backed by an ed25519 seed.
//
// It stands in for a browser wallet in development, in the CLI and in tests.
// An optional Approver models the user's decision on each request.
package keypair

import (
	"context"
	"fmt"

	"github.com/stellar/go-stellar-sdk/keypair"
	"github.com/stellar/go-stellar-sdk/txnbuild"
	"go.uber.org/zap"

	"github.com/afrarahimemadak/stellarwork"
	"github.com/afrarahimemadak/stellarwork/validation"
)

// RequestKind identifies what the agent is being asked to approve.
type RequestKind string

const (
	RequestAddress RequestKind = "address"
	RequestSign    RequestKind = "sign"
)

// Request is shown to the Approver.
type Request struct {
	Kind     RequestKind
	Address  stellarwork.WalletAddress
	Network  string
	Unsigned *stellarwork.UnsignedTransaction
}

// Approver decides whether the user accepts a request. It may block.
type Approver func(ctx context.Context, req Request) (bool, error)

// ApproveAll accepts every request.
func ApproveAll(context.Context, Request) (bool, error) {
	return true, nil
}

// Agent signs with a single keypair.
type Agent struct {
	kp       *keypair.Full
	approver Approver
	logger   *zap.Logger
}

// Option configures an Agent.
type Option func(*Agent) error

// WithApprover sets the function that accepts or declines requests.
func WithApprover(approver Approver) Option {
	return func(a *Agent) error {
		if approver == nil {
			return fmt.Errorf("approver cannot be nil")
		}
		a.approver = approver
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Agent) error {
		if logger != nil {
			a.logger = logger
		}
		return nil
	}
}

// New creates an Agent from a secret seed (S...).
func New(seed string, opts ...Option) (*Agent, error) {
	kp, err := keypair.ParseFull(seed)
	if err != nil {
		return nil, fmt.Errorf("invalid secret seed: %w", err)
	}
	return NewFromKeypair(kp, opts...)
}

// NewFromKeypair creates an Agent from an existing keypair.
func NewFromKeypair(kp *keypair.Full, opts ...Option) (*Agent, error) {
	if kp == nil {
		return nil, fmt.Errorf("keypair cannot be nil")
	}
	a := &Agent{
		kp:       kp,
		approver: ApproveAll,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Verify that Agent implements stellarwork.Agent.
var _ stellarwork.Agent = (*Agent)(nil)

// Address returns the agent's account address.
func (a *Agent) Address() stellarwork.WalletAddress {
	return stellarwork.WalletAddress(a.kp.Address())
}

// Detect always reports true; the key is in process.
func (a *Agent) Detect(context.Context) bool {
	return true
}

// RequestAddress returns the account address once the user approves access.
func (a *Agent) RequestAddress(ctx context.Context) (stellarwork.WalletAddress, error) {
	ok, err := a.approver(ctx, Request{Kind: RequestAddress, Address: a.Address()})
	if err != nil {
		return "", fmt.Errorf("%w: %v", stellarwork.ErrAgentUnavailable, err)
	}
	if !ok {
		a.logger.Info("address request declined")
		return "", stellarwork.ErrUserDeclined
	}
	return a.Address(), nil
}

// Sign signs unsigned for network once the user approves it.
func (a *Agent) Sign(ctx context.Context, unsigned *stellarwork.UnsignedTransaction, network string, address stellarwork.WalletAddress) (*stellarwork.SignedTransaction, error) {
	if err := validation.ValidateUnsigned(unsigned); err != nil {
		return nil, fmt.Errorf("%w: %v", stellarwork.ErrAgentError, err)
	}
	if address != a.Address() {
		return nil, fmt.Errorf("%w: agent holds %s, not %s", stellarwork.ErrAgentError, a.Address(), address)
	}
	if network != unsigned.Network {
		return nil, fmt.Errorf("%w: transaction was built for a different network", stellarwork.ErrAgentError)
	}

	generic, err := txnbuild.TransactionFromXDR(unsigned.Envelope)
	if err != nil {
		return nil, fmt.Errorf("%w: decode envelope: %v", stellarwork.ErrAgentError, err)
	}
	tx, ok := generic.Transaction()
	if !ok {
		return nil, fmt.Errorf("%w: fee bump transactions are not supported", stellarwork.ErrAgentError)
	}
	hash, err := tx.HashHex(network)
	if err != nil {
		return nil, fmt.Errorf("%w: hash envelope: %v", stellarwork.ErrAgentError, err)
	}
	if hash != unsigned.Hash {
		return nil, fmt.Errorf("%w: envelope hash %s does not match %s", stellarwork.ErrAgentError, hash, unsigned.Hash)
	}

	approved, err := a.approver(ctx, Request{Kind: RequestSign, Address: address, Network: network, Unsigned: unsigned})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", stellarwork.ErrAgentError, err)
	}
	if !approved {
		a.logger.Info("signature declined", zap.String("hash", unsigned.Hash))
		return nil, stellarwork.ErrUserDeclined
	}

	signed, err := tx.Sign(network, a.kp)
	if err != nil {
		return nil, fmt.Errorf("%w: sign: %v", stellarwork.ErrAgentError, err)
	}
	envelope, err := signed.Base64()
	if err != nil {
		return nil, fmt.Errorf("%w: encode signed envelope: %v", stellarwork.ErrAgentError, err)
	}

	a.logger.Debug("transaction signed", zap.String("hash", hash))
	return stellarwork.VerifySigned(unsigned, envelope)
}
