// Package metrics provides Prometheus metrics for the ledger gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds ledger session and transaction metrics. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	SessionsAcquiredTotal *prometheus.CounterVec // by source: pooled, dialed
	SessionsReleasedTotal *prometheus.CounterVec // by disposition: pooled, closed
	SessionsActive        prometheus.Gauge
	SessionAcquireSeconds prometheus.Histogram

	InvocationsTotal  *prometheus.CounterVec   // by operation, mode, outcome
	InvocationSeconds *prometheus.HistogramVec // by operation, mode
	RetriesTotal      *prometheus.CounterVec   // by operation
	BreakerOpenTotal  *prometheus.CounterVec   // by channel
}

func New() *Metrics {
	return &Metrics{
		SessionsAcquiredTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "registrar_ledger_sessions_acquired_total",
			Help: "Ledger sessions handed out, by whether they came from the idle pool or a new connection",
		}, []string{"source"}),
		SessionsReleasedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "registrar_ledger_sessions_released_total",
			Help: "Ledger sessions released, by whether they were pooled or closed",
		}, []string{"disposition"}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "registrar_ledger_sessions_active",
			Help: "Ledger sessions currently leased to a request",
		}),
		SessionAcquireSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "registrar_ledger_session_acquire_duration_seconds",
			Help:    "Time to acquire a ledger session",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		InvocationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "registrar_ledger_invocations_total",
			Help: "Ledger contract invocations by operation, mode and outcome category",
		}, []string{"operation", "mode", "outcome"}),
		InvocationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "registrar_ledger_invocation_duration_seconds",
			Help:    "Ledger contract invocation latency including retries",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"operation", "mode"}),
		RetriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "registrar_ledger_retries_total",
			Help: "Evaluate retries after transient network failures",
		}, []string{"operation"}),
		BreakerOpenTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "registrar_ledger_breaker_open_total",
			Help: "Circuit breaker transitions to open, by channel",
		}, []string{"channel"}),
	}
}

func (m *Metrics) RecordAcquire(pooled bool, seconds float64) {
	if m == nil {
		return
	}
	source := "dialed"
	if pooled {
		source = "pooled"
	}
	m.SessionsAcquiredTotal.WithLabelValues(source).Inc()
	m.SessionAcquireSeconds.Observe(seconds)
	m.SessionsActive.Inc()
}

func (m *Metrics) RecordRelease(pooled bool) {
	if m == nil {
		return
	}
	disposition := "closed"
	if pooled {
		disposition = "pooled"
	}
	m.SessionsReleasedTotal.WithLabelValues(disposition).Inc()
	m.SessionsActive.Dec()
}

func (m *Metrics) RecordInvocation(operation, mode, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.InvocationsTotal.WithLabelValues(operation, mode, outcome).Inc()
	m.InvocationSeconds.WithLabelValues(operation, mode).Observe(seconds)
}

func (m *Metrics) RecordRetry(operation string) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(operation).Inc()
}

func (m *Metrics) RecordBreakerOpen(channel string) {
	if m == nil {
		return
	}
	m.BreakerOpenTotal.WithLabelValues(channel).Inc()
}
