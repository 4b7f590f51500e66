package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stellar/go-stellar-sdk/keypair"
	"go.uber.org/zap/zaptest"

	"github.com/afrarahimemadak/stellarwork"
	kpagent "github.com/afrarahimemadak/stellarwork/agents/keypair"
	"github.com/afrarahimemadak/stellarwork/encoding"
	"github.com/afrarahimemadak/stellarwork/identity"
	"github.com/afrarahimemadak/stellarwork/internal/metrics"
	"github.com/afrarahimemadak/stellarwork/ledger"
	"github.com/afrarahimemadak/stellarwork/payment"
	"github.com/afrarahimemadak/stellarwork/session"
	"github.com/afrarahimemadak/stellarwork/submit"
	"github.com/afrarahimemadak/stellarwork/txbuild"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router      *gin.Engine
	dialogs     *payment.Dialogs
	payer       *keypair.Full
	payee       *keypair.Full
	submissions atomic.Int32
}

// marketplace is a stub of the marketplace API.
type marketplace struct {
	mu    sync.Mutex
	users []identity.User
	jobs  []identity.FreelancerJob
}

func (m *marketplace) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/users":
		_ = json.NewEncoder(w).Encode(m.users)
	case r.Method == http.MethodPost && r.URL.Path == "/users":
		var in identity.UserCreate
		_ = json.NewDecoder(r.Body).Decode(&in)
		u := identity.User{ID: int64(len(m.users) + 1), FullName: in.FullName, WalletAddress: in.WalletAddress, UserType: in.UserType}
		m.users = append(m.users, u)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(u)
	case r.Method == http.MethodGet && r.URL.Path == "/freelancer/jobs":
		_ = json.NewEncoder(w).Encode(m.jobs)
	default:
		http.NotFound(w, r)
	}
}

func newTestEnv(t *testing.T, approver kpagent.Approver, opts ...Option) *testEnv {
	t.Helper()
	env := &testEnv{payer: keypair.MustRandom(), payee: keypair.MustRandom()}

	horizonSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/accounts/"+env.payer.Address():
			fmt.Fprintf(w, `{"id":%q,"sequence":"100","balances":[{"asset_type":"native","balance":"5000.0000000"}]}`, env.payer.Address())
		case r.Method == http.MethodPost && r.URL.Path == "/transactions":
			if err := r.ParseForm(); err != nil || r.PostForm.Get("tx") == "" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			env.submissions.Add(1)
			fmt.Fprint(w, `{"ledger":77,"successful":true}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"type":"https://stellar.org/horizon-errors/not_found","status":404}`)
		}
	}))
	t.Cleanup(horizonSrv.Close)

	market := &marketplace{
		jobs: []identity.FreelancerJob{{
			ID:            7,
			UserID:        2,
			Title:         "Logo design",
			WalletAddress: stellarwork.WalletAddress(env.payee.Address()),
		}},
	}
	market.jobs[0].Budget = decimal.RequireFromString("50")
	marketSrv := httptest.NewServer(market)
	t.Cleanup(marketSrv.Close)

	logger := zaptest.NewLogger(t)
	if approver == nil {
		approver = kpagent.ApproveAll
	}
	agent, err := kpagent.NewFromKeypair(env.payer, kpagent.WithApprover(approver), kpagent.WithLogger(logger))
	if err != nil {
		t.Fatal(err)
	}

	directory := identity.NewClient(marketSrv.URL, identity.StrategyScan)
	accounts := ledger.NewClient(horizonSrv.URL)
	accounts.RetryDelay = time.Millisecond
	submitter := submit.NewSubmitter(horizonSrv.URL)
	builder, err := txbuild.NewBuilder()
	if err != nil {
		t.Fatal(err)
	}

	bootstrapper := session.NewBootstrapper(agent, directory, session.NewMemoryStore(),
		session.WithBalances(accounts), session.WithLogger(logger))
	dialogs := payment.NewDialogs(func() (*payment.Orchestrator, error) {
		return payment.New(agent, accounts, builder, submitter, directory, payment.WithLogger(logger))
	})

	opts = append([]Option{WithLogger(logger), WithMetrics(metrics.New())}, opts...)
	env.dialogs = dialogs
	env.router = NewServer(bootstrapper, dialogs, directory, accounts, opts...).Router()
	return env
}

func (e *testEnv) do(method, path, sessionID string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) connect(t *testing.T) string {
	t.Helper()
	rec := e.do(http.MethodPost, "/v1/session/connect", "", gin.H{"role": "employer"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("connect: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	id := rec.Header().Get(SessionHeader)
	if id == "" {
		t.Fatal("connect: missing session header")
	}
	return id
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode error: %v", err)
	}
	return body
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
}

func TestConnectRoutesUnknownWalletToRegistration(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(http.MethodPost, "/v1/session/connect", "", gin.H{"role": "employer"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rec.Code)
	}
	var res session.ConnectResult
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if res.Route != session.RouteRegisterEmployer {
		t.Errorf("Expected register_employer, got %s", res.Route)
	}
	if res.Balance != "5000.00" {
		t.Errorf("Expected balance 5000.00, got %s", res.Balance)
	}
}

func TestConnectRejectsUnknownRole(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(http.MethodPost, "/v1/session/connect", "", gin.H{"role": "admin"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.Error != "invalid_input" {
		t.Errorf("Expected invalid_input, got %s", body.Error)
	}
}

func TestSessionRequired(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, path := range []string{"/v1/session", "/v1/balance", "/v1/jobs/7/quote?hours=1"} {
		rec := env.do(http.MethodGet, path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401 without session, got %d", path, rec.Code)
		}
		rec = env.do(http.MethodGet, path, "nope", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401 for unknown session, got %d", path, rec.Code)
		}
	}
}

func TestRegisterAndDisconnect(t *testing.T) {
	env := newTestEnv(t, nil)
	sid := env.connect(t)

	rec := env.do(http.MethodPost, "/v1/session/register", sid, gin.H{"fullName": "Acme Ltd"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(http.MethodGet, "/v1/session", sid, nil)
	var sc stellarwork.SessionContext
	if err := json.NewDecoder(rec.Body).Decode(&sc); err != nil {
		t.Fatal(err)
	}
	if sc.UserID == nil || sc.Role != stellarwork.RoleEmployer {
		t.Errorf("Expected registered employer session, got %+v", sc)
	}

	if rec := env.do(http.MethodDelete, "/v1/session", sid, nil); rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", rec.Code)
	}
	if rec := env.do(http.MethodGet, "/v1/session", sid, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 after disconnect, got %d", rec.Code)
	}
}

func TestBalance(t *testing.T) {
	env := newTestEnv(t, nil)
	sid := env.connect(t)

	rec := env.do(http.MethodGet, "/v1/balance", sid, nil)
	var body BalanceResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Balance != "5000.00" {
		t.Errorf("Expected 5000.00, got %s", body.Balance)
	}
	if body.Address != env.payer.Address() || !strings.Contains(body.Short, "...") {
		t.Errorf("Unexpected address fields %+v", body)
	}
}

func TestQuote(t *testing.T) {
	env := newTestEnv(t, nil)
	sid := env.connect(t)

	rec := env.do(http.MethodGet, "/v1/jobs/7/quote?hours=2.5", sid, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var q QuoteResponse
	if err := json.NewDecoder(rec.Body).Decode(&q); err != nil {
		t.Fatal(err)
	}
	if q.FiatAmount != "125.00" || q.LedgerAmount != "1250.0000000" {
		t.Errorf("Expected 125.00 / 1250.0000000, got %s / %s", q.FiatAmount, q.LedgerAmount)
	}

	tests := []struct {
		path   string
		status int
	}{
		{"/v1/jobs/99/quote?hours=1", http.StatusNotFound},
		{"/v1/jobs/abc/quote?hours=1", http.StatusBadRequest},
		{"/v1/jobs/7/quote?hours=", http.StatusBadRequest},
		{"/v1/jobs/7/quote?hours=0", http.StatusBadRequest},
	}
	for _, tt := range tests {
		if rec := env.do(http.MethodGet, tt.path, sid, nil); rec.Code != tt.status {
			t.Errorf("%s: expected %d, got %d", tt.path, tt.status, rec.Code)
		}
	}
}

func TestPaySuccess(t *testing.T) {
	env := newTestEnv(t, nil)
	sid := env.connect(t)

	rec := env.do(http.MethodPost, "/v1/jobs/7/pay", sid, gin.H{"hours": "2.5"})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var receipt stellarwork.Receipt
	if err := json.NewDecoder(rec.Body).Decode(&receipt); err != nil {
		t.Fatal(err)
	}
	if receipt.Outcome != stellarwork.OutcomeSuccess || receipt.Ledger != 77 {
		t.Errorf("Expected success in ledger 77, got %+v", receipt)
	}
	if receipt.LedgerAmount != "1250.0000000" {
		t.Errorf("Expected 1250.0000000, got %s", receipt.LedgerAmount)
	}
	if env.submissions.Load() != 1 {
		t.Errorf("Expected 1 submission, got %d", env.submissions.Load())
	}

	header, err := encoding.DecodeReceipt(rec.Header().Get(ReceiptHeader))
	if err != nil {
		t.Fatalf("Failed to decode receipt header: %v", err)
	}
	if header.TransactionHash != receipt.TransactionHash {
		t.Error("Expected receipt header to match body")
	}

	rec = env.do(http.MethodGet, "/v1/jobs/7/pay", sid, nil)
	var st PayStatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.State != payment.StateSucceeded {
		t.Errorf("Expected succeeded, got %s", st.State)
	}

	rec = env.do(http.MethodPost, "/v1/jobs/7/pay", sid, gin.H{"hours": "2.5"})
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 for a second payment in the same dialog, got %d", rec.Code)
	}
}

func TestPayAgainAfterClosingDialog(t *testing.T) {
	env := newTestEnv(t, nil)
	sid := env.connect(t)

	if rec := env.do(http.MethodPost, "/v1/jobs/7/pay", sid, gin.H{"hours": "1"}); rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := env.do(http.MethodDelete, "/v1/jobs/7/pay", sid, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if env.dialogs.Len() != 0 {
		t.Errorf("Expected dialog to be closed, %d open", env.dialogs.Len())
	}

	rec := env.do(http.MethodGet, "/v1/jobs/7/pay", sid, nil)
	var st PayStatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.State != payment.StateIdle || st.Receipt != nil {
		t.Errorf("Expected a fresh idle dialog, got %+v", st)
	}

	if rec := env.do(http.MethodPost, "/v1/jobs/7/pay", sid, gin.H{"hours": "2"}); rec.Code != http.StatusOK {
		t.Fatalf("Expected second payment to succeed, got %d: %s", rec.Code, rec.Body.String())
	}
	if env.submissions.Load() != 2 {
		t.Errorf("Expected 2 submissions, got %d", env.submissions.Load())
	}

	if rec := env.do(http.MethodDelete, "/v1/jobs/99/pay", sid, nil); rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204 for a dialog that was never opened, got %d", rec.Code)
	}
}

func TestDisconnectClosesDialogs(t *testing.T) {
	env := newTestEnv(t, nil)
	sid := env.connect(t)
	other := env.connect(t)

	env.do(http.MethodPost, "/v1/jobs/7/pay", sid, gin.H{"hours": "1"})
	env.do(http.MethodPost, "/v1/jobs/7/pay", other, gin.H{"hours": "2"})
	if env.dialogs.Len() != 2 {
		t.Fatalf("Expected 2 open dialogs, got %d", env.dialogs.Len())
	}

	if rec := env.do(http.MethodDelete, "/v1/session", sid, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", rec.Code)
	}
	if env.dialogs.Len() != 1 {
		t.Errorf("Expected only the other session's dialog to remain, got %d", env.dialogs.Len())
	}
	if _, ok := env.dialogs.Lookup(payment.DialogKey(other, 7)); !ok {
		t.Error("Expected the other session's dialog to stay open")
	}
}

func TestPayDeclined(t *testing.T) {
	decline := func(_ context.Context, req kpagent.Request) (bool, error) {
		return req.Kind != kpagent.RequestSign, nil
	}
	env := newTestEnv(t, decline)
	sid := env.connect(t)

	rec := env.do(http.MethodPost, "/v1/jobs/7/pay", sid, gin.H{"hours": 1})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("Expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeError(t, rec)
	if body.Error != "user_declined" || body.Phase != "signing" || body.Advice != "safe to retry" {
		t.Errorf("Unexpected error body %+v", body)
	}
	if env.submissions.Load() != 0 {
		t.Error("Expected nothing submitted")
	}

	rec = env.do(http.MethodGet, "/v1/jobs/7/pay", sid, nil)
	var st PayStatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.State != payment.StateFailed || st.Error == nil || st.Error.Error != "user_declined" {
		t.Errorf("Expected failed dialog with user_declined, got %+v", st)
	}
}

func TestPayUnknownJob(t *testing.T) {
	env := newTestEnv(t, nil)
	sid := env.connect(t)
	if rec := env.do(http.MethodPost, "/v1/jobs/99/pay", sid, gin.H{"hours": 1}); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestCancelWithoutDialog(t *testing.T) {
	env := newTestEnv(t, nil)
	sid := env.connect(t)
	rec := env.do(http.MethodPost, "/v1/jobs/7/pay/cancel", sid, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var body struct {
		Canceled bool          `json:"canceled"`
		State    payment.State `json:"state"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if !body.Canceled || body.State != payment.StateIdle {
		t.Errorf("Unexpected cancel body %+v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(http.MethodGet, "/healthz", "", nil)
	rec := env.do(http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "stellarwork_http_requests_total") {
		t.Error("Expected request counter in exposition")
	}
}

func TestRateLimiter(t *testing.T) {
	env := newTestEnv(t, nil, WithRateLimiter(NewRateLimiter(0.001, 1, nil)))

	first := env.do(http.MethodPost, "/v1/session/connect", "", gin.H{"role": "employer"})
	if first.Code != http.StatusCreated {
		t.Fatalf("Expected first request allowed, got %d", first.Code)
	}
	second := env.do(http.MethodPost, "/v1/session/connect", "", gin.H{"role": "employer"})
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Error("Expected Retry-After header")
	}
	if rec := env.do(http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Errorf("Expected /healthz outside the limiter, got %d", rec.Code)
	}
}

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"declined", stellarwork.NewPaymentError(stellarwork.ErrCodeUserDeclined, stellarwork.PhaseSigning, "declined", stellarwork.ErrUserDeclined), http.StatusForbidden, "user_declined"},
		{"unknown outcome", stellarwork.NewPaymentError(stellarwork.ErrCodeTimeoutOrUnknown, stellarwork.PhaseSubmission, "unknown", nil), http.StatusGatewayTimeout, "timeout_or_unknown"},
		{"rejected", stellarwork.NewPaymentError(stellarwork.ErrCodeRejectedByNetwork, stellarwork.PhaseSubmission, "rejected", nil), http.StatusUnprocessableEntity, "rejected_by_network"},
		{"agent down", stellarwork.NewPaymentError(stellarwork.ErrCodeAgentUnavailable, stellarwork.PhaseSigning, "down", nil), http.StatusServiceUnavailable, "agent_unavailable"},
		{"busy", fmt.Errorf("%w: attempt x", stellarwork.ErrAttemptInProgress), http.StatusConflict, "attempt_in_progress"},
		{"no session", stellarwork.ErrSessionNotFound, http.StatusUnauthorized, "session_not_found"},
		{"job missing", identity.ErrNotFound, http.StatusNotFound, "not_found"},
		{"marketplace down", identity.ErrUnavailable, http.StatusBadGateway, "identity_unavailable"},
		{"bare sentinel", stellarwork.ErrAmountTooSmall, http.StatusBadRequest, "amount_too_small"},
		{"unknown", errors.New("boom"), http.StatusServiceUnavailable, "network_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := errorResponse(tt.err)
			if status != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, status)
			}
			if body.Error != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, body.Error)
			}
		})
	}
}
