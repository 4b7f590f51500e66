package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stellar/go-stellar-sdk/keypair"
	"go.uber.org/zap/zaptest"

	"github.com/afrarahimemadak/stellarwork"
	kpagent "github.com/afrarahimemadak/stellarwork/agents/keypair"
	"github.com/afrarahimemadak/stellarwork/identity"
	"github.com/afrarahimemadak/stellarwork/txbuild"
)

type fakeAccounts struct {
	mu    sync.Mutex
	calls int
	err   error
	block chan struct{}
}

func (f *fakeAccounts) FetchAccount(ctx context.Context, address stellarwork.WalletAddress) (*stellarwork.AccountSnapshot, error) {
	f.mu.Lock()
	f.calls++
	calls := f.calls
	err := f.err
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", stellarwork.ErrNetworkError, ctx.Err())
		}
	}
	if err != nil {
		return nil, err
	}
	return &stellarwork.AccountSnapshot{
		Address:        address,
		NativeBalance:  decimal.NewFromInt(10000),
		SequenceNumber: int64(100 + calls),
		FetchedAt:      time.Now(),
	}, nil
}

func (f *fakeAccounts) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeAccounts) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSubmitter struct {
	mu        sync.Mutex
	submitted []*stellarwork.SignedTransaction
	ctxErrs   []error
	result    *stellarwork.SubmissionResult
}

func (f *fakeSubmitter) Submit(ctx context.Context, signed *stellarwork.SignedTransaction) stellarwork.SubmissionResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, signed)
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	if f.result != nil {
		r := *f.result
		if r.TransactionHash == "" {
			r.TransactionHash = signed.Hash
		}
		return r
	}
	return stellarwork.SubmissionResult{
		Success:         true,
		Outcome:         stellarwork.OutcomeSuccess,
		TransactionHash: signed.Hash,
		Ledger:          42,
	}
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

type fakeUsers struct {
	users map[int64]*identity.User
	err   error
}

func (f *fakeUsers) GetUser(_ context.Context, id int64) (*identity.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return u, nil
}

type offlineAgent struct{}

func (offlineAgent) Detect(context.Context) bool { return false }

func (offlineAgent) RequestAddress(context.Context) (stellarwork.WalletAddress, error) {
	return "", stellarwork.ErrAgentUnavailable
}

func (offlineAgent) Sign(context.Context, *stellarwork.UnsignedTransaction, string, stellarwork.WalletAddress) (*stellarwork.SignedTransaction, error) {
	return nil, stellarwork.ErrAgentUnavailable
}

type eventLog struct {
	mu     sync.Mutex
	events []stellarwork.PaymentEvent
}

func (l *eventLog) record(e stellarwork.PaymentEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) types() []stellarwork.PaymentEventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []stellarwork.PaymentEventType
	for _, e := range l.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	payer     *keypair.Full
	payee     *keypair.Full
	accounts  *fakeAccounts
	submitter *fakeSubmitter
	events    *eventLog
	orch      *Orchestrator
}

func newFixture(t *testing.T, approver kpagent.Approver, users UserDirectory) *fixture {
	t.Helper()
	f := &fixture{
		payer:     keypair.MustRandom(),
		payee:     keypair.MustRandom(),
		accounts:  &fakeAccounts{},
		submitter: &fakeSubmitter{},
		events:    &eventLog{},
	}
	if approver == nil {
		approver = kpagent.ApproveAll
	}
	agent, err := kpagent.NewFromKeypair(f.payer, kpagent.WithApprover(approver))
	if err != nil {
		t.Fatalf("agent: %v", err)
	}
	builder, err := txbuild.NewBuilder()
	if err != nil {
		t.Fatalf("builder: %v", err)
	}
	f.orch, err = New(agent, f.accounts, builder, f.submitter, users,
		WithLogger(zaptest.NewLogger(t)),
		WithCallback(f.events.record),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}

func (f *fixture) request() Request {
	return Request{
		Payer: stellarwork.WalletAddress(f.payer.Address()),
		Job: identity.FreelancerJob{
			ID:            7,
			UserID:        3,
			Title:         "Logo design",
			Budget:        decimal.NewFromInt(50),
			WalletAddress: stellarwork.WalletAddress(f.payee.Address()),
		},
		Hours: decimal.RequireFromString("2.5"),
	}
}

func paymentError(t *testing.T, err error) *stellarwork.PaymentError {
	t.Helper()
	var pe *stellarwork.PaymentError
	if !errors.As(err, &pe) {
		t.Fatalf("Expected *PaymentError, got %T: %v", err, err)
	}
	return pe
}

func waitForState(t *testing.T, o *Orchestrator, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if o.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for state %s, still %s", want, o.State())
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(nil, &fakeAccounts{}, nil, &fakeSubmitter{}, nil); err == nil {
		t.Error("Expected error for missing dependencies")
	}
}

func TestNewOptions(t *testing.T) {
	agent, _ := kpagent.NewFromKeypair(keypair.MustRandom())
	builder, _ := txbuild.NewBuilder()

	tests := []struct {
		name string
		opt  Option
	}{
		{"unknown network", WithNetwork("not a network")},
		{"zero rate", WithRate(decimal.Zero)},
		{"bad timeouts", WithTimeouts(stellarwork.TimeoutConfig{})},
		{"nil clock", WithClock(nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(agent, &fakeAccounts{}, builder, &fakeSubmitter{}, nil, tt.opt); err == nil {
				t.Error("Expected option error")
			}
		})
	}
}

func TestPaySuccess(t *testing.T) {
	f := newFixture(t, nil, nil)

	receipt, err := f.orch.Pay(context.Background(), f.request())
	if err != nil {
		t.Fatalf("Pay: %v", err)
	}

	if f.orch.State() != StateSucceeded {
		t.Errorf("Expected state succeeded, got %s", f.orch.State())
	}
	if receipt.FiatAmount != "125.00" {
		t.Errorf("Expected fiat 125.00, got %s", receipt.FiatAmount)
	}
	if receipt.LedgerAmount != "1250.0000000" {
		t.Errorf("Expected ledger amount 1250.0000000, got %s", receipt.LedgerAmount)
	}
	if receipt.Outcome != stellarwork.OutcomeSuccess {
		t.Errorf("Expected outcome success, got %s", receipt.Outcome)
	}
	if receipt.Payee != stellarwork.WalletAddress(f.payee.Address()) {
		t.Errorf("Expected payee %s, got %s", f.payee.Address(), receipt.Payee)
	}
	if receipt.Ledger != 42 || receipt.TransactionHash == "" {
		t.Errorf("Expected ledger 42 and a hash, got %d %q", receipt.Ledger, receipt.TransactionHash)
	}
	if receipt.JobID != 7 || receipt.AttemptID == "" {
		t.Errorf("Expected job 7 and an attempt id, got %d %q", receipt.JobID, receipt.AttemptID)
	}

	if f.submitter.count() != 1 {
		t.Fatalf("Expected 1 submission, got %d", f.submitter.count())
	}
	signed := f.submitter.submitted[0]
	if signed.Unsigned.Sequence != 102 {
		t.Errorf("Expected sequence 102 from the fresh snapshot, got %d", signed.Unsigned.Sequence)
	}

	status := f.orch.Status()
	if status.Receipt == nil || status.Receipt.TransactionHash != receipt.TransactionHash {
		t.Error("Expected status to carry the receipt")
	}

	got := f.events.types()
	if len(got) != 2 || got[0] != stellarwork.PaymentEventAttempt || got[1] != stellarwork.PaymentEventSuccess {
		t.Errorf("Expected [attempt success] events, got %v", got)
	}
}

func TestPayDeclined(t *testing.T) {
	decline := func(_ context.Context, req kpagent.Request) (bool, error) {
		return req.Kind != kpagent.RequestSign, nil
	}
	f := newFixture(t, decline, nil)

	receipt, err := f.orch.Pay(context.Background(), f.request())
	if receipt != nil {
		t.Error("Expected no receipt")
	}
	pe := paymentError(t, err)
	if pe.Code != stellarwork.ErrCodeUserDeclined {
		t.Errorf("Expected user_declined, got %s", pe.Code)
	}
	if pe.Phase != stellarwork.PhaseSigning {
		t.Errorf("Expected signing phase, got %s", pe.Phase)
	}
	if f.orch.State() != StateFailed {
		t.Errorf("Expected failed, got %s", f.orch.State())
	}
	if f.submitter.count() != 0 {
		t.Error("Expected nothing submitted")
	}
	if f.orch.Status().Error.Code != stellarwork.ErrCodeUserDeclined {
		t.Error("Expected status to carry the error")
	}

	f.events.mu.Lock()
	last := f.events.events[len(f.events.events)-1]
	f.events.mu.Unlock()
	if last.Type != stellarwork.PaymentEventFailure || last.Code != stellarwork.ErrCodeUserDeclined || last.Transaction == "" {
		t.Errorf("Unexpected failure event: %+v", last)
	}
}

func TestPayAgentNotDetected(t *testing.T) {
	builder, _ := txbuild.NewBuilder()
	accounts := &fakeAccounts{}
	o, err := New(offlineAgent{}, accounts, builder, &fakeSubmitter{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	req := Request{
		Payer: stellarwork.WalletAddress(keypair.MustRandom().Address()),
		Job: identity.FreelancerJob{
			Budget:        decimal.NewFromInt(20),
			WalletAddress: stellarwork.WalletAddress(keypair.MustRandom().Address()),
		},
		Hours: decimal.NewFromInt(1),
	}

	_, err = o.Pay(context.Background(), req)
	pe := paymentError(t, err)
	if pe.Code != stellarwork.ErrCodeAgentUnavailable {
		t.Errorf("Expected agent_unavailable, got %s", pe.Code)
	}
	if accounts.count() != 0 {
		t.Error("Expected no account fetch without an agent")
	}
	if o.State() != StateFailed {
		t.Errorf("Expected failed, got %s", o.State())
	}
}

func TestPayInvalidInputReturnsToIdle(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Request)
		code   stellarwork.ErrorCode
	}{
		{"zero hours", func(r *Request) { r.Hours = decimal.Zero }, stellarwork.ErrCodeInvalidInput},
		{"negative hours", func(r *Request) { r.Hours = decimal.NewFromInt(-1) }, stellarwork.ErrCodeInvalidInput},
		{"payer is payee", func(r *Request) { r.Job.WalletAddress = r.Payer }, stellarwork.ErrCodeInvalidInput},
		{"bad payer", func(r *Request) { r.Payer = "GNOPE" }, stellarwork.ErrCodeInvalidAddress},
		{"bad payee", func(r *Request) { r.Job.WalletAddress = "GNOPE" }, stellarwork.ErrCodeInvalidAddress},
		{"tiny amount", func(r *Request) {
			r.Hours = decimal.RequireFromString("0.0001")
			r.Job.Budget = decimal.RequireFromString("0.01")
		}, stellarwork.ErrCodeAmountTooSmall},
		{"no payee", func(r *Request) { r.Job.WalletAddress = "" }, stellarwork.ErrCodeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil, nil)
			req := f.request()
			tt.mutate(&req)

			_, err := f.orch.Pay(context.Background(), req)
			pe := paymentError(t, err)
			if pe.Code != tt.code {
				t.Errorf("Expected %s, got %s (%v)", tt.code, pe.Code, err)
			}
			if pe.Phase != stellarwork.PhaseValidation {
				t.Errorf("Expected validation phase, got %s", pe.Phase)
			}
			if f.orch.State() != StateIdle {
				t.Errorf("Expected idle, got %s", f.orch.State())
			}
			if f.accounts.count() != 0 {
				t.Error("Expected no account fetch")
			}
		})
	}
}

func TestPayResolvesPayeeFromIdentity(t *testing.T) {
	payee := keypair.MustRandom()
	users := &fakeUsers{users: map[int64]*identity.User{
		3: {ID: 3, WalletAddress: stellarwork.WalletAddress(payee.Address()), UserType: stellarwork.RoleFreelancer},
	}}
	f := newFixture(t, nil, users)
	req := f.request()
	req.Job.WalletAddress = ""

	receipt, err := f.orch.Pay(context.Background(), req)
	if err != nil {
		t.Fatalf("Pay: %v", err)
	}
	if receipt.Payee != stellarwork.WalletAddress(payee.Address()) {
		t.Errorf("Expected payee from identity, got %s", receipt.Payee)
	}
}

func TestPayPayeeLookupFailures(t *testing.T) {
	t.Run("unknown user", func(t *testing.T) {
		f := newFixture(t, nil, &fakeUsers{})
		req := f.request()
		req.Job.WalletAddress = ""

		_, err := f.orch.Pay(context.Background(), req)
		if pe := paymentError(t, err); pe.Code != stellarwork.ErrCodeInvalidInput {
			t.Errorf("Expected invalid_input, got %s", pe.Code)
		}
		if f.orch.State() != StateIdle {
			t.Errorf("Expected idle, got %s", f.orch.State())
		}
	})

	t.Run("identity unavailable", func(t *testing.T) {
		f := newFixture(t, nil, &fakeUsers{err: identity.ErrUnavailable})
		req := f.request()
		req.Job.WalletAddress = ""

		_, err := f.orch.Pay(context.Background(), req)
		if pe := paymentError(t, err); pe.Code != stellarwork.ErrCodeNetworkError {
			t.Errorf("Expected network_error, got %s", pe.Code)
		}
		if f.orch.State() != StateFailed {
			t.Errorf("Expected failed, got %s", f.orch.State())
		}
	})
}

func TestPayAccountFailureThenRetry(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.accounts.setErr(stellarwork.ErrAccountNotFound)

	_, err := f.orch.Pay(context.Background(), f.request())
	pe := paymentError(t, err)
	if pe.Code != stellarwork.ErrCodeAccountNotFound || pe.Phase != stellarwork.PhaseAccount {
		t.Errorf("Expected account_not_found in account phase, got %s/%s", pe.Code, pe.Phase)
	}
	if pe.RetryAdvice() != "safe to retry" {
		t.Errorf("Expected safe retry advice, got %q", pe.RetryAdvice())
	}
	if f.orch.State() != StateFailed {
		t.Fatalf("Expected failed, got %s", f.orch.State())
	}

	f.accounts.setErr(nil)
	if _, err := f.orch.Pay(context.Background(), f.request()); err != nil {
		t.Fatalf("retry Pay: %v", err)
	}
	if f.accounts.count() != 2 {
		t.Errorf("Expected a fresh snapshot per attempt, got %d fetches", f.accounts.count())
	}
}

func TestPayRejectedByNetwork(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.submitter.result = &stellarwork.SubmissionResult{
		Outcome:       stellarwork.OutcomeRejectedByNetwork,
		FailureReason: "op_underfunded",
	}

	receipt, err := f.orch.Pay(context.Background(), f.request())
	pe := paymentError(t, err)
	if pe.Code != stellarwork.ErrCodeRejectedByNetwork || pe.Phase != stellarwork.PhaseSubmission {
		t.Errorf("Expected rejected_by_network in submission, got %s/%s", pe.Code, pe.Phase)
	}
	if pe.Details["reason"] != "op_underfunded" {
		t.Errorf("Expected reason detail, got %v", pe.Details["reason"])
	}
	if !errors.Is(err, stellarwork.ErrRejectedByNetwork) {
		t.Error("Expected error to wrap ErrRejectedByNetwork")
	}
	if receipt == nil || receipt.Outcome != stellarwork.OutcomeRejectedByNetwork || receipt.FailureReason != "op_underfunded" {
		t.Errorf("Expected rejected receipt, got %+v", receipt)
	}
	if f.orch.State() != StateFailed {
		t.Errorf("Expected failed, got %s", f.orch.State())
	}
}

func TestPayTimeoutOrUnknown(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.submitter.result = &stellarwork.SubmissionResult{Outcome: stellarwork.OutcomeTimeoutOrUnknown}

	receipt, err := f.orch.Pay(context.Background(), f.request())
	pe := paymentError(t, err)
	if pe.Code != stellarwork.ErrCodeTimeoutOrUnknown {
		t.Errorf("Expected timeout_or_unknown, got %s", pe.Code)
	}
	if receipt == nil || receipt.TransactionHash == "" {
		t.Error("Expected a receipt with the hash to check")
	}
	if pe.Details["hash"] != receipt.TransactionHash {
		t.Errorf("Expected hash detail %s, got %v", receipt.TransactionHash, pe.Details["hash"])
	}
}

func TestPayRateLimitedSubmission(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.submitter.result = &stellarwork.SubmissionResult{
		Outcome:       stellarwork.OutcomeTimeoutOrUnknown,
		FailureReason: stellarwork.ReasonRateLimited,
	}

	_, err := f.orch.Pay(context.Background(), f.request())
	pe := paymentError(t, err)
	if pe.Code != stellarwork.ErrCodeTimeoutOrUnknown {
		t.Errorf("Expected timeout_or_unknown, got %s", pe.Code)
	}
	if advice := pe.RetryAdvice(); !strings.Contains(advice, "retry after a short wait") {
		t.Errorf("Expected rate limit advice, got %q", advice)
	}

	f.submitter.mu.Lock()
	f.submitter.result = nil
	f.submitter.mu.Unlock()
	if _, err := f.orch.Pay(context.Background(), f.request()); err != nil {
		t.Errorf("Expected retry to succeed, got %v", err)
	}
}

func TestPayRejectsConcurrentAttempt(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.accounts.block = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := f.orch.Pay(context.Background(), f.request())
		done <- err
	}()
	waitForState(t, f.orch, StateFetchingAccount)

	_, err := f.orch.Pay(context.Background(), f.request())
	if !errors.Is(err, stellarwork.ErrAttemptInProgress) {
		t.Errorf("Expected ErrAttemptInProgress, got %v", err)
	}

	close(f.accounts.block)
	if err := <-done; err != nil {
		t.Fatalf("first Pay: %v", err)
	}
	if f.submitter.count() != 1 {
		t.Errorf("Expected exactly one submission, got %d", f.submitter.count())
	}
}

func TestCancelWhileFetching(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.accounts.block = make(chan struct{})
	defer close(f.accounts.block)

	done := make(chan error, 1)
	go func() {
		_, err := f.orch.Pay(context.Background(), f.request())
		done <- err
	}()
	waitForState(t, f.orch, StateFetchingAccount)

	if !f.orch.Cancel() {
		t.Error("Expected Cancel to stop the attempt")
	}
	err := <-done
	pe := paymentError(t, err)
	if pe.Code != stellarwork.ErrCodeCanceled {
		t.Errorf("Expected canceled, got %s", pe.Code)
	}
	if !errors.Is(err, stellarwork.ErrCanceled) {
		t.Error("Expected error to wrap ErrCanceled")
	}
	if f.orch.State() != StateIdle {
		t.Errorf("Expected idle, got %s", f.orch.State())
	}
	if f.submitter.count() != 0 {
		t.Error("Expected nothing submitted")
	}
}

// blockingUsers holds GetUser until the context ends.
type blockingUsers struct {
	entered chan struct{}
}

func (b *blockingUsers) GetUser(ctx context.Context, _ int64) (*identity.User, error) {
	close(b.entered)
	<-ctx.Done()
	return nil, ctx.Err()
}

// hangingAgent holds Detect until the context ends.
type hangingAgent struct {
	offlineAgent
	entered chan struct{}
}

func (a hangingAgent) Detect(ctx context.Context) bool {
	close(a.entered)
	<-ctx.Done()
	return false
}

func TestCancelWhileValidating(t *testing.T) {
	t.Run("payee lookup", func(t *testing.T) {
		users := &blockingUsers{entered: make(chan struct{})}
		f := newFixture(t, nil, users)
		req := f.request()
		req.Job.WalletAddress = ""

		done := make(chan error, 1)
		go func() {
			_, err := f.orch.Pay(context.Background(), req)
			done <- err
		}()
		<-users.entered
		if f.orch.State() != StateValidating {
			t.Fatalf("Expected validating, got %s", f.orch.State())
		}
		if !f.orch.Cancel() {
			t.Error("Expected Cancel to stop the attempt")
		}

		pe := paymentError(t, <-done)
		if pe.Code != stellarwork.ErrCodeCanceled || pe.Phase != stellarwork.PhaseValidation {
			t.Errorf("Expected canceled in validation, got %s in %s", pe.Code, pe.Phase)
		}
		if f.orch.State() != StateIdle {
			t.Errorf("Expected idle, got %s", f.orch.State())
		}
	})

	t.Run("agent detection", func(t *testing.T) {
		f := newFixture(t, nil, nil)
		agent := hangingAgent{entered: make(chan struct{})}
		builder, _ := txbuild.NewBuilder()
		orch, err := New(agent, f.accounts, builder, f.submitter, nil, WithLogger(zaptest.NewLogger(t)))
		if err != nil {
			t.Fatal(err)
		}

		done := make(chan error, 1)
		go func() {
			_, err := orch.Pay(context.Background(), f.request())
			done <- err
		}()
		<-agent.entered
		if !orch.Cancel() {
			t.Error("Expected Cancel to stop the attempt")
		}

		pe := paymentError(t, <-done)
		if pe.Code != stellarwork.ErrCodeCanceled {
			t.Errorf("Expected canceled, got %s", pe.Code)
		}
		if orch.State() != StateIdle {
			t.Errorf("Expected idle, got %s", orch.State())
		}
		if f.accounts.count() != 0 {
			t.Error("Expected no account fetch")
		}
	})
}

func TestCancelAfterSigningStartedIsAdvisory(t *testing.T) {
	release := make(chan struct{})
	approver := func(_ context.Context, req kpagent.Request) (bool, error) {
		if req.Kind == kpagent.RequestSign {
			<-release
		}
		return true, nil
	}
	f := newFixture(t, approver, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type result struct {
		receipt *stellarwork.Receipt
		err     error
	}
	done := make(chan result, 1)
	go func() {
		r, err := f.orch.Pay(ctx, f.request())
		done <- result{r, err}
	}()
	waitForState(t, f.orch, StateAwaitingSignature)

	if f.orch.Cancel() {
		t.Error("Expected Cancel to be advisory once signing started")
	}
	cancel()
	close(release)

	res := <-done
	if res.err != nil {
		t.Fatalf("Expected the signed transaction to be processed, got %v", res.err)
	}
	if res.receipt.Outcome != stellarwork.OutcomeSuccess {
		t.Errorf("Expected success, got %s", res.receipt.Outcome)
	}
	if f.submitter.ctxErrs[0] != nil {
		t.Errorf("Expected submission context to be detached, got %v", f.submitter.ctxErrs[0])
	}
}

func TestPayAfterSuccessNeedsReset(t *testing.T) {
	f := newFixture(t, nil, nil)
	if _, err := f.orch.Pay(context.Background(), f.request()); err != nil {
		t.Fatal(err)
	}

	_, err := f.orch.Pay(context.Background(), f.request())
	if !errors.Is(err, stellarwork.ErrAttemptInProgress) {
		t.Errorf("Expected ErrAttemptInProgress after success, got %v", err)
	}

	if err := f.orch.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if f.orch.State() != StateIdle || f.orch.Status().Receipt != nil {
		t.Error("Expected reset to clear the dialog")
	}
	if _, err := f.orch.Pay(context.Background(), f.request()); err != nil {
		t.Fatalf("Pay after reset: %v", err)
	}
}

func TestQuote(t *testing.T) {
	f := newFixture(t, nil, nil)
	req := f.request()
	rate := decimal.NewFromInt(65)
	req.Job.HourlyRate = &rate

	q, err := f.orch.Quote(req)
	if err != nil {
		t.Fatal(err)
	}
	if q.FiatDisplay() != "162.50" {
		t.Errorf("Expected 162.50, got %s", q.FiatDisplay())
	}
	if q.LedgerDisplay() != "1625.0000000" {
		t.Errorf("Expected 1625.0000000, got %s", q.LedgerDisplay())
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateIdle, StateValidating, true},
		{StateValidating, StateIdle, true},
		{StateFetchingAccount, StateAwaitingSignature, true},
		{StateValidating, StateAwaitingSignature, false},
		{StateAwaitingSignature, StateIdle, false},
		{StateSubmitting, StateSucceeded, true},
		{StateSucceeded, StateFailed, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, expected %v", tt.from, tt.to, got, tt.want)
		}
	}
}
