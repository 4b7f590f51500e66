// Package payment runs payment attempts through the wallet-mediated path:
// validate, fetch a fresh account snapshot, build, sign, submit.
//
// An Orchestrator serves one payment dialog and runs at most one attempt at
// a time. Concurrent Pay calls are rejected, not queued.
package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/afrarahimemadak/stellarwork"
	"github.com/afrarahimemadak/stellarwork/convert"
	"github.com/afrarahimemadak/stellarwork/identity"
	"github.com/afrarahimemadak/stellarwork/validation"
)

// AccountFetcher reads a fresh account snapshot. Implemented by *ledger.Client.
type AccountFetcher interface {
	FetchAccount(ctx context.Context, address stellarwork.WalletAddress) (*stellarwork.AccountSnapshot, error)
}

// TransactionBuilder builds unsigned transactions. Implemented by *txbuild.Builder.
type TransactionBuilder interface {
	Build(snapshot *stellarwork.AccountSnapshot, intent stellarwork.PaymentIntent, network string, ttlSeconds int64) (*stellarwork.UnsignedTransaction, error)
}

// TransactionSubmitter submits signed transactions. Implemented by *submit.Submitter.
type TransactionSubmitter interface {
	Submit(ctx context.Context, signed *stellarwork.SignedTransaction) stellarwork.SubmissionResult
}

// UserDirectory resolves a listing owner to their wallet. Implemented by *identity.Client.
type UserDirectory interface {
	GetUser(ctx context.Context, id int64) (*identity.User, error)
}

// Request asks to pay for Hours of work on Job from Payer.
type Request struct {
	Payer stellarwork.WalletAddress
	Job   identity.FreelancerJob
	Hours decimal.Decimal
}

// Status is a point-in-time view of an Orchestrator.
type Status struct {
	State     State                     `json:"state"`
	AttemptID string                    `json:"attemptId,omitempty"`
	Receipt   *stellarwork.Receipt      `json:"receipt,omitempty"`
	Error     *stellarwork.PaymentError `json:"-"`
}

// Orchestrator drives payment attempts for one dialog.
type Orchestrator struct {
	agent     stellarwork.Agent
	accounts  AccountFetcher
	builder   TransactionBuilder
	submitter TransactionSubmitter
	users     UserDirectory

	network   string
	rate      decimal.Decimal
	timeouts  stellarwork.TimeoutConfig
	logger    *zap.Logger
	callbacks []stellarwork.PaymentCallback
	now       func() time.Time

	mu              sync.Mutex
	state           State
	attemptID       string
	cancel          context.CancelFunc
	canceled        bool
	cancelRequested bool
	receipt         *stellarwork.Receipt
	lastErr         *stellarwork.PaymentError
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithNetwork sets the network passphrase transactions are built for.
func WithNetwork(passphrase string) Option {
	return func(o *Orchestrator) error {
		if err := validation.ValidateNetwork(passphrase); err != nil {
			return err
		}
		o.network = passphrase
		return nil
	}
}

// WithRate sets the fiat value of one native unit.
func WithRate(rate decimal.Decimal) Option {
	return func(o *Orchestrator) error {
		if !rate.IsPositive() {
			return fmt.Errorf("%w: rate must be positive, got %s", stellarwork.ErrInvalidInput, rate)
		}
		o.rate = rate
		return nil
	}
}

// WithTimeouts sets the transaction TTL and request timeouts.
func WithTimeouts(timeouts stellarwork.TimeoutConfig) Option {
	return func(o *Orchestrator) error {
		if err := timeouts.Validate(); err != nil {
			return err
		}
		o.timeouts = timeouts
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) error {
		if logger != nil {
			o.logger = logger
		}
		return nil
	}
}

// WithCallback registers a payment event callback.
func WithCallback(cb stellarwork.PaymentCallback) Option {
	return func(o *Orchestrator) error {
		if cb != nil {
			o.callbacks = append(o.callbacks, cb)
		}
		return nil
	}
}

// WithClock sets the time source for events and receipts.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) error {
		if now == nil {
			return fmt.Errorf("clock cannot be nil")
		}
		o.now = now
		return nil
	}
}

// New creates an Orchestrator. users may be nil if every listing carries a
// wallet address.
func New(agent stellarwork.Agent, accounts AccountFetcher, builder TransactionBuilder, submitter TransactionSubmitter, users UserDirectory, opts ...Option) (*Orchestrator, error) {
	if agent == nil || accounts == nil || builder == nil || submitter == nil {
		return nil, fmt.Errorf("payment: agent, accounts, builder and submitter are required")
	}
	o := &Orchestrator{
		agent:     agent,
		accounts:  accounts,
		builder:   builder,
		submitter: submitter,
		users:     users,
		network:   stellarwork.Testnet.Passphrase,
		rate:      convert.DefaultRate,
		timeouts:  stellarwork.DefaultTimeouts,
		logger:    zap.NewNop(),
		now:       time.Now,
		state:     StateIdle,
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Status returns the current state with the last receipt and error.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Status{State: o.state, AttemptID: o.attemptID, Receipt: o.receipt, Error: o.lastErr}
}

// Quote prices req without starting an attempt.
func (o *Orchestrator) Quote(req Request) (*convert.Quote, error) {
	return convert.NewQuote(req.Hours, req.Job.Rate(), o.rate)
}

// Cancel asks the running attempt to stop. It returns true if the attempt
// will stop; once the signing request has been sent it returns false and the
// attempt runs to completion.
func (o *Orchestrator) Cancel() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.state {
	case StateValidating, StateFetchingAccount:
		o.canceled = true
		if o.cancel != nil {
			o.cancel()
		}
		o.logger.Info("payment attempt canceled", zap.String("attempt", o.attemptID), zap.String("state", string(o.state)))
		return true
	case StateAwaitingSignature, StateSubmitting:
		o.cancelRequested = true
		o.logger.Info("cancel requested after signing started; attempt continues",
			zap.String("attempt", o.attemptID), zap.String("state", string(o.state)))
		return false
	default:
		return o.state == StateIdle
	}
}

// Reset returns a finished orchestrator to idle.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.Busy() {
		return stellarwork.ErrAttemptInProgress
	}
	if o.state != StateIdle {
		o.setState(StateIdle)
	}
	o.receipt = nil
	o.lastErr = nil
	return nil
}

// Pay runs one payment attempt and blocks until it ends.
// On failure it returns a *stellarwork.PaymentError; the receipt is non-nil
// whenever a transaction reached the ledger, even if its outcome is unknown.
func (o *Orchestrator) Pay(ctx context.Context, req Request) (*stellarwork.Receipt, error) {
	attemptCtx, attemptID, err := o.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer o.end()

	start := o.now()
	log := o.logger.With(zap.String("attempt", attemptID), zap.Int64("job", req.Job.ID))
	o.emit(stellarwork.PaymentEvent{
		Type:      stellarwork.PaymentEventAttempt,
		AttemptID: attemptID,
		JobID:     req.Job.ID,
		Network:   o.network,
		Payer:     string(req.Payer),
	})

	// validating
	intent, perr := o.validate(attemptCtx, req)
	if perr != nil {
		if o.wasCanceled() {
			perr = o.interrupted(stellarwork.ErrCanceled, stellarwork.PhaseValidation)
		}
		return nil, o.fail(log, req, attemptID, start, intent, perr, "")
	}
	if !o.agent.Detect(attemptCtx) {
		if o.wasCanceled() {
			return nil, o.fail(log, req, attemptID, start, intent, o.interrupted(stellarwork.ErrCanceled, stellarwork.PhaseValidation), "")
		}
		perr := stellarwork.NewPaymentError(stellarwork.ErrCodeAgentUnavailable, stellarwork.PhaseSigning,
			"signing agent not detected", stellarwork.ErrAgentUnavailable)
		return nil, o.fail(log, req, attemptID, start, intent, perr, "")
	}
	if err := o.advance(StateValidating, StateFetchingAccount); err != nil {
		return nil, o.fail(log, req, attemptID, start, intent, o.interrupted(err, stellarwork.PhaseAccount), "")
	}
	log.Debug("state", zap.String("state", string(StateFetchingAccount)))

	// fetching_account
	snapshot, err := o.accounts.FetchAccount(attemptCtx, req.Payer)
	if err != nil {
		if o.wasCanceled() {
			return nil, o.fail(log, req, attemptID, start, intent, o.interrupted(stellarwork.ErrCanceled, stellarwork.PhaseAccount), "")
		}
		perr := stellarwork.NewPaymentError(stellarwork.CodeFor(err, stellarwork.PhaseAccount), stellarwork.PhaseAccount,
			"could not read payer account", err)
		return nil, o.fail(log, req, attemptID, start, intent, perr, "")
	}
	unsigned, err := o.builder.Build(snapshot, *intent, o.network, o.timeouts.TTLSeconds())
	if err != nil {
		perr := stellarwork.NewPaymentError(stellarwork.CodeFor(err, stellarwork.PhaseAccount), stellarwork.PhaseAccount,
			"could not build transaction", err)
		return nil, o.fail(log, req, attemptID, start, intent, perr, "")
	}
	if err := o.advance(StateFetchingAccount, StateAwaitingSignature); err != nil {
		return nil, o.fail(log, req, attemptID, start, intent, o.interrupted(err, stellarwork.PhaseAccount), "")
	}
	log.Debug("state", zap.String("state", string(StateAwaitingSignature)),
		zap.String("hash", unsigned.Hash), zap.Int64("sequence", unsigned.Sequence))

	// awaiting_signature: the user is in control now, so cancellation of ctx
	// no longer reaches the agent or the ledger.
	detached := context.WithoutCancel(ctx)
	signed, err := o.agent.Sign(detached, unsigned, o.network, req.Payer)
	if err == nil && signed.Hash != unsigned.Hash {
		err = fmt.Errorf("%w: agent returned a different transaction", stellarwork.ErrAgentError)
	}
	if err != nil {
		code := stellarwork.CodeFor(err, stellarwork.PhaseSigning)
		msg := "signing failed"
		switch code {
		case stellarwork.ErrCodeUserDeclined:
			msg = "signature declined in wallet"
		case stellarwork.ErrCodeAgentUnavailable:
			msg = "signing agent unavailable"
		}
		perr := stellarwork.NewPaymentError(code, stellarwork.PhaseSigning, msg, err).WithDetails("hash", unsigned.Hash)
		return nil, o.fail(log, req, attemptID, start, intent, perr, unsigned.Hash)
	}
	if err := o.advance(StateAwaitingSignature, StateSubmitting); err != nil {
		return nil, o.fail(log, req, attemptID, start, intent, o.interrupted(err, stellarwork.PhaseSubmission), signed.Hash)
	}
	log.Debug("state", zap.String("state", string(StateSubmitting)), zap.String("hash", signed.Hash))

	// submitting
	result := o.submitter.Submit(detached, signed)
	receipt := &stellarwork.Receipt{
		AttemptID:       attemptID,
		JobID:           req.Job.ID,
		Payer:           intent.Payer,
		Payee:           intent.Payee,
		FiatAmount:      convert.FormatDisplay(intent.FiatAmount),
		LedgerAmount:    convert.FormatLedger(intent.LedgerAmount),
		Network:         o.network,
		TransactionHash: result.TransactionHash,
		Ledger:          result.Ledger,
		Outcome:         result.Outcome,
		FailureReason:   result.FailureReason,
		Timestamp:       o.now(),
	}
	if receipt.TransactionHash == "" {
		receipt.TransactionHash = signed.Hash
	}

	if !result.Success {
		code := stellarwork.ErrCodeTimeoutOrUnknown
		msg := "transaction outcome unknown"
		if result.Outcome == stellarwork.OutcomeRejectedByNetwork {
			code = stellarwork.ErrCodeRejectedByNetwork
			msg = "transaction rejected by network"
		}
		perr := stellarwork.NewPaymentError(code, stellarwork.PhaseSubmission, msg, result.Err()).
			WithDetails("hash", receipt.TransactionHash).
			WithDetails("reason", result.FailureReason)
		o.setReceipt(receipt)
		return receipt, o.fail(log, req, attemptID, start, intent, perr, receipt.TransactionHash)
	}

	o.finish(StateSubmitting, StateSucceeded, receipt, nil)
	log.Info("payment succeeded",
		zap.String("hash", receipt.TransactionHash),
		zap.Int32("ledger", receipt.Ledger),
		zap.String("amount", receipt.LedgerAmount),
	)
	o.emit(stellarwork.PaymentEvent{
		Type:        stellarwork.PaymentEventSuccess,
		AttemptID:   attemptID,
		JobID:       req.Job.ID,
		FiatAmount:  receipt.FiatAmount,
		Amount:      receipt.LedgerAmount,
		Network:     o.network,
		Payer:       string(intent.Payer),
		Recipient:   string(intent.Payee),
		Transaction: receipt.TransactionHash,
		Duration:    o.now().Sub(start),
	})
	return receipt, nil
}

// validate resolves the payee and prices the request.
func (o *Orchestrator) validate(ctx context.Context, req Request) (*stellarwork.PaymentIntent, *stellarwork.PaymentError) {
	invalid := func(err error) *stellarwork.PaymentError {
		return stellarwork.NewPaymentError(stellarwork.CodeFor(err, stellarwork.PhaseValidation), stellarwork.PhaseValidation, "invalid payment request", err)
	}

	if err := validation.ValidateAddress(string(req.Payer)); err != nil {
		return nil, invalid(err)
	}
	quote, err := o.Quote(req)
	if err != nil {
		return nil, invalid(err)
	}

	payee, perr := o.resolvePayee(ctx, req.Job)
	if perr != nil {
		return nil, perr
	}

	intent := &stellarwork.PaymentIntent{
		Payer:        req.Payer,
		Payee:        payee,
		FiatAmount:   quote.FiatAmount,
		LedgerAmount: quote.LedgerAmount,
	}
	if err := validation.ValidateIntent(*intent); err != nil {
		return nil, invalid(err)
	}
	return intent, nil
}

// resolvePayee prefers the listing's wallet address and falls back to the
// listing owner's registered wallet.
func (o *Orchestrator) resolvePayee(ctx context.Context, job identity.FreelancerJob) (stellarwork.WalletAddress, *stellarwork.PaymentError) {
	if job.WalletAddress != "" {
		return job.WalletAddress, nil
	}
	unavailable := stellarwork.NewPaymentError(stellarwork.ErrCodeInvalidInput, stellarwork.PhaseValidation,
		"payee wallet address unavailable", stellarwork.ErrInvalidInput)
	if o.users == nil || job.UserID == 0 {
		return "", unavailable
	}

	user, err := o.users.GetUser(ctx, job.UserID)
	switch {
	case errors.Is(err, identity.ErrNotFound):
		return "", unavailable.WithDetails("userId", job.UserID)
	case err != nil:
		return "", stellarwork.NewPaymentError(stellarwork.ErrCodeNetworkError, stellarwork.PhaseValidation,
			"could not look up payee", err)
	case user.WalletAddress == "":
		return "", unavailable.WithDetails("userId", job.UserID)
	}
	return user.WalletAddress, nil
}

// begin claims the orchestrator for a new attempt.
func (o *Orchestrator) begin(ctx context.Context) (context.Context, string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.state {
	case StateIdle:
	case StateFailed:
		o.setState(StateIdle)
	case StateSucceeded:
		return nil, "", fmt.Errorf("%w: attempt %s already succeeded; reset before paying again",
			stellarwork.ErrAttemptInProgress, o.attemptID)
	default:
		return nil, "", fmt.Errorf("%w: attempt %s is %s", stellarwork.ErrAttemptInProgress, o.attemptID, o.state)
	}

	attemptCtx, cancel := context.WithCancel(ctx)
	o.attemptID = uuid.NewString()
	o.cancel = cancel
	o.canceled = false
	o.cancelRequested = false
	o.receipt = nil
	o.lastErr = nil
	o.setState(StateValidating)
	return attemptCtx, o.attemptID, nil
}

// end releases the attempt context.
func (o *Orchestrator) end() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
}

// advance moves from -> to unless the attempt was canceled.
func (o *Orchestrator) advance(from, to State) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.canceled {
		return stellarwork.ErrCanceled
	}
	if o.state != from || !CanTransition(from, to) {
		return &illegalTransitionError{from: o.state, to: to}
	}
	o.setState(to)
	return nil
}

func (o *Orchestrator) wasCanceled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.canceled
}

// interrupted converts a cancel or an illegal transition into a PaymentError.
func (o *Orchestrator) interrupted(err error, phase stellarwork.Phase) *stellarwork.PaymentError {
	if errors.Is(err, stellarwork.ErrCanceled) {
		return stellarwork.NewPaymentError(stellarwork.ErrCodeCanceled, phase, "payment canceled", err)
	}
	return stellarwork.NewPaymentError(stellarwork.CodeFor(err, phase), phase, "payment interrupted", err)
}

// fail ends the attempt. Invalid input and cancellation return to idle;
// everything else lands in failed.
func (o *Orchestrator) fail(log *zap.Logger, req Request, attemptID string, start time.Time, intent *stellarwork.PaymentIntent, perr *stellarwork.PaymentError, hash string) error {
	target := StateFailed
	if perr.Code == stellarwork.ErrCodeCanceled ||
		(perr.Phase == stellarwork.PhaseValidation && perr.Code != stellarwork.ErrCodeNetworkError) {
		target = StateIdle
	}

	o.mu.Lock()
	from := o.state
	o.lastErr = perr
	if CanTransition(from, target) {
		o.setState(target)
	} else {
		o.setState(StateFailed)
	}
	o.mu.Unlock()

	log.Warn("payment failed",
		zap.String("from", string(from)),
		zap.String("phase", string(perr.Phase)),
		zap.String("code", string(perr.Code)),
		zap.String("advice", perr.RetryAdvice()),
		zap.Error(perr),
	)

	event := stellarwork.PaymentEvent{
		Type:        stellarwork.PaymentEventFailure,
		AttemptID:   attemptID,
		JobID:       req.Job.ID,
		Network:     o.network,
		Payer:       string(req.Payer),
		Transaction: hash,
		Code:        perr.Code,
		Phase:       perr.Phase,
		Error:       perr,
		Duration:    o.now().Sub(start),
	}
	if intent != nil {
		event.Recipient = string(intent.Payee)
		event.FiatAmount = convert.FormatDisplay(intent.FiatAmount)
		event.Amount = convert.FormatLedger(intent.LedgerAmount)
	}
	o.emit(event)
	return perr
}

func (o *Orchestrator) finish(from, to State, receipt *stellarwork.Receipt, perr *stellarwork.PaymentError) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == from && CanTransition(from, to) {
		o.setState(to)
	}
	o.receipt = receipt
	o.lastErr = perr
}

func (o *Orchestrator) setReceipt(receipt *stellarwork.Receipt) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.receipt = receipt
}

// setState must be called with o.mu held.
func (o *Orchestrator) setState(s State) {
	o.state = s
}

func (o *Orchestrator) emit(event stellarwork.PaymentEvent) {
	if len(o.callbacks) == 0 {
		return
	}
	event.Timestamp = o.now()
	for _, cb := range o.callbacks {
		cb(event)
	}
}
