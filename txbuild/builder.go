// Package txbuild constructs unsigned native payment transactions.
//
// A Builder never talks to the ledger. It consumes an AccountSnapshot that
// the caller fetched for the current attempt and uses exactly the next
// sequence number after it.
package txbuild

import (
	"fmt"
	"time"

	"github.com/stellar/go-stellar-sdk/txnbuild"
	"go.uber.org/zap"

	"github.com/afrarahimemadak/stellarwork"
	"github.com/afrarahimemadak/stellarwork/validation"
)

// Builder builds single-operation payment transactions.
type Builder struct {
	baseFee int64
	now     func() time.Time
	logger  *zap.Logger
}

// Option configures a Builder.
type Option func(*Builder) error

// WithBaseFee sets the per-operation fee in stroops.
func WithBaseFee(fee int64) Option {
	return func(b *Builder) error {
		if fee < txnbuild.MinBaseFee {
			return fmt.Errorf("%w: base fee %d is below the minimum %d", stellarwork.ErrInvalidInput, fee, txnbuild.MinBaseFee)
		}
		b.baseFee = fee
		return nil
	}
}

// WithClock sets the time source used for the validity window.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) error {
		if now == nil {
			return fmt.Errorf("%w: clock cannot be nil", stellarwork.ErrInvalidInput)
		}
		b.now = now
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Builder) error {
		if logger != nil {
			b.logger = logger
		}
		return nil
	}
}

// NewBuilder creates a Builder with the minimum base fee unless overridden.
func NewBuilder(opts ...Option) (*Builder, error) {
	b := &Builder{
		baseFee: txnbuild.MinBaseFee,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// BaseFee returns the configured per-operation fee in stroops.
func (b *Builder) BaseFee() int64 {
	return b.baseFee
}

// Build creates an unsigned transaction paying intent.LedgerAmount from the
// snapshot's account to intent.Payee on network, valid for ttlSeconds.
func (b *Builder) Build(snapshot *stellarwork.AccountSnapshot, intent stellarwork.PaymentIntent, network string, ttlSeconds int64) (*stellarwork.UnsignedTransaction, error) {
	if snapshot == nil {
		return nil, fmt.Errorf("%w: account snapshot is required", stellarwork.ErrInvalidInput)
	}
	if ttlSeconds <= 0 {
		return nil, fmt.Errorf("%w: ttl must be positive, got %d", stellarwork.ErrInvalidInput, ttlSeconds)
	}
	if err := validation.ValidateNetwork(network); err != nil {
		return nil, err
	}
	if err := validation.ValidateAddress(string(intent.Payer)); err != nil {
		return nil, fmt.Errorf("source %w", err)
	}
	if err := validation.ValidateAddress(string(intent.Payee)); err != nil {
		return nil, fmt.Errorf("destination %w", err)
	}
	if snapshot.Address != intent.Payer {
		return nil, fmt.Errorf("%w: snapshot for %s does not belong to payer %s",
			stellarwork.ErrInvalidInput, snapshot.Address, intent.Payer)
	}
	if err := validation.ValidateLedgerAmount(intent.LedgerAmount); err != nil {
		return nil, err
	}

	amount := intent.LedgerAmount.StringFixed(stellarwork.LedgerPrecision)
	now := b.now()
	validUntil := now.Add(time.Duration(ttlSeconds) * time.Second)

	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount: &txnbuild.SimpleAccount{
			AccountID: string(intent.Payer),
			Sequence:  snapshot.SequenceNumber,
		},
		IncrementSequenceNum: true,
		Operations: []txnbuild.Operation{&txnbuild.Payment{
			Destination: string(intent.Payee),
			Amount:      amount,
			Asset:       txnbuild.NativeAsset{},
		}},
		BaseFee: b.baseFee,
		Preconditions: txnbuild.Preconditions{
			TimeBounds: txnbuild.NewTimebounds(now.Unix(), validUntil.Unix()),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: build transaction: %v", stellarwork.ErrInvalidInput, err)
	}

	envelope, err := tx.Base64()
	if err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}
	hash, err := tx.HashHex(network)
	if err != nil {
		return nil, fmt.Errorf("hash transaction: %w", err)
	}

	unsigned := &stellarwork.UnsignedTransaction{
		Envelope:    envelope,
		Hash:        hash,
		Source:      intent.Payer,
		Destination: intent.Payee,
		Amount:      amount,
		Sequence:    snapshot.SequenceNumber + 1,
		Network:     network,
		BaseFee:     b.baseFee,
		ValidUntil:  time.Unix(validUntil.Unix(), 0).UTC(),
	}

	b.logger.Debug("built payment transaction",
		zap.String("hash", hash),
		zap.String("source", string(intent.Payer)),
		zap.String("destination", string(intent.Payee)),
		zap.String("amount", amount),
		zap.Int64("sequence", unsigned.Sequence),
	)

	return unsigned, nil
}
