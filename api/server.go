// Package api serves the wallet payment path over HTTP.
//
// Clients connect a wallet with POST /v1/session/connect and send the
// returned session id in the X-Session-ID header on every later request.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/afrarahimemadak/stellarwork"
	"github.com/afrarahimemadak/stellarwork/convert"
	"github.com/afrarahimemadak/stellarwork/identity"
	"github.com/afrarahimemadak/stellarwork/internal/metrics"
	"github.com/afrarahimemadak/stellarwork/payment"
	"github.com/afrarahimemadak/stellarwork/session"
)

// SessionHeader carries the session id.
const SessionHeader = "X-Session-ID"

// ReceiptHeader carries the base64 JSON receipt of a finished payment.
const ReceiptHeader = "X-Payment-Receipt"

const sessionContextKey = "stellarwork_session"

// Listings finds freelancer listings. Implemented by *identity.Client.
type Listings interface {
	GetFreelancerJob(ctx context.Context, id int64) (*identity.FreelancerJob, error)
}

// Balances renders display balances. Implemented by *ledger.Client.
type Balances interface {
	DisplayBalance(ctx context.Context, address stellarwork.WalletAddress) string
}

// Server holds the HTTP handlers.
type Server struct {
	sessions *session.Bootstrapper
	dialogs  *payment.Dialogs
	listings Listings
	balances Balances

	rate    decimal.Decimal
	limiter *RateLimiter
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithRate sets the fiat value of one native unit used for quotes.
func WithRate(rate decimal.Decimal) Option {
	return func(s *Server) { s.rate = rate }
}

// WithRateLimiter limits /v1 requests per client.
func WithRateLimiter(rl *RateLimiter) Option {
	return func(s *Server) { s.limiter = rl }
}

// WithMetrics records request metrics and serves /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a Server.
func NewServer(sessions *session.Bootstrapper, dialogs *payment.Dialogs, listings Listings, balances Balances, opts ...Option) *Server {
	s := &Server{
		sessions: sessions,
		dialogs:  dialogs,
		listings: listings,
		balances: balances,
		rate:     convert.DefaultRate,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())
	if s.metrics != nil {
		r.Use(s.metrics.Middleware())
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")
	if s.limiter != nil {
		v1.Use(s.limiter.Middleware())
	}
	v1.POST("/session/connect", s.connect)

	authed := v1.Group("")
	authed.Use(s.requireSession())
	{
		authed.GET("/session", s.getSession)
		authed.DELETE("/session", s.disconnect)
		authed.POST("/session/register", s.register)
		authed.GET("/balance", s.balance)
		authed.GET("/jobs/:id/quote", s.quote)
		authed.POST("/jobs/:id/pay", s.pay)
		authed.GET("/jobs/:id/pay", s.payStatus)
		authed.DELETE("/jobs/:id/pay", s.closePay)
		authed.POST("/jobs/:id/pay/cancel", s.cancelPay)
	}
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
		)
	}
}

// requireSession loads the session named by the X-Session-ID header.
func (s *Server) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(SessionHeader)
		if id == "" {
			abortWithError(c, stellarwork.ErrSessionNotFound)
			return
		}
		sc, err := s.sessions.Session(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Set(sessionContextKey, sc)
		c.Next()
	}
}

func currentSession(c *gin.Context) *stellarwork.SessionContext {
	v, ok := c.Get(sessionContextKey)
	if !ok {
		return nil
	}
	sc, _ := v.(*stellarwork.SessionContext)
	return sc
}
