// Package metrics exposes Prometheus metrics for the HTTP surface and the
// payment path.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/afrarahimemadak/stellarwork"
	"github.com/afrarahimemadak/stellarwork/ledger"
	"github.com/afrarahimemadak/stellarwork/submit"
)

const namespace = "stellarwork"

// Metrics holds every collector on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	PaymentEventsTotal *prometheus.CounterVec
	PaymentDuration    *prometheus.HistogramVec

	AccountFetchesTotal *prometheus.CounterVec
	AccountFetchAttempt prometheus.Histogram

	SubmissionsTotal   *prometheus.CounterVec
	SubmissionDuration prometheus.Histogram
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distributions.",
			Buckets:   []float64{0.1, 0.3, 0.5, 1.0, 2.0, 5.0},
		}, []string{"method", "path"}),
		PaymentEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_events_total",
			Help:      "Payment attempt lifecycle events by type and failure code.",
		}, []string{"event", "code"}),
		PaymentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payment_duration_seconds",
			Help:      "Duration of payment attempts, signing included.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120},
		}, []string{"event"}),
		AccountFetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "account_fetches_total",
			Help:      "Account snapshot reads by result.",
		}, []string{"result"}),
		AccountFetchAttempt: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "account_fetch_attempts",
			Help:      "Attempts needed per account snapshot read.",
			Buckets:   []float64{1, 2, 3, 5},
		}),
		SubmissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Transaction submissions by outcome and failure reason.",
		}, []string{"outcome", "reason"}),
		SubmissionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submission_duration_seconds",
			Help:      "Transaction submission latency.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PaymentEventsTotal,
		m.PaymentDuration,
		m.AccountFetchesTotal,
		m.AccountFetchAttempt,
		m.SubmissionsTotal,
		m.SubmissionDuration,
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request counts and latency by route template.
// Unmatched routes are not recorded.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()

		c.Next()

		if path == "" {
			return
		}
		status := strconv.Itoa(c.Writer.Status())
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// PaymentCallback counts orchestrator events.
func (m *Metrics) PaymentCallback() stellarwork.PaymentCallback {
	return func(e stellarwork.PaymentEvent) {
		m.PaymentEventsTotal.WithLabelValues(string(e.Type), string(e.Code)).Inc()
		if e.Type != stellarwork.PaymentEventAttempt {
			m.PaymentDuration.WithLabelValues(string(e.Type)).Observe(e.Duration.Seconds())
		}
	}
}

// OnAfterFetch records ledger account reads.
func (m *Metrics) OnAfterFetch() ledger.OnAfterFetchFunc {
	return func(_ context.Context, _ stellarwork.WalletAddress, _ *stellarwork.AccountSnapshot, attempts int, err error) {
		m.AccountFetchesTotal.WithLabelValues(string(fetchResult(err))).Inc()
		m.AccountFetchAttempt.Observe(float64(attempts))
	}
}

// OnAfterSubmit records transaction submissions.
func (m *Metrics) OnAfterSubmit() submit.OnAfterSubmitFunc {
	return func(_ context.Context, _ *stellarwork.SignedTransaction, result stellarwork.SubmissionResult, elapsed time.Duration) {
		m.SubmissionsTotal.WithLabelValues(string(result.Outcome), result.FailureReason).Inc()
		m.SubmissionDuration.Observe(elapsed.Seconds())
	}
}

func fetchResult(err error) stellarwork.ErrorCode {
	if err == nil {
		return "ok"
	}
	return stellarwork.CodeFor(err, stellarwork.PhaseAccount)
}
