// Package metrics exposes Prometheus counters for the ledger.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Materialization outcomes.
const (
	OutcomeCreated = "created"
	OutcomeAlready = "already_materialized"
	OutcomeFailed  = "failed"
)

// Metrics is safe to use as a nil pointer; every method becomes a no-op.
type Metrics struct {
	registry         *prometheus.Registry
	materializations *prometheus.CounterVec
	eventsPublished  *prometheus.CounterVec
	balanceRuns      prometheus.Counter
	balanceDuration  prometheus.Histogram
	workerRuns       *prometheus.CounterVec
	mirrorWrites     *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     prometheus.Histogram
	rejected         *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		materializations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conti",
			Name:      "materializations_total",
			Help:      "Recurring occurrences materialized, by outcome.",
		}, []string{"outcome"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conti",
			Name:      "events_published_total",
			Help:      "Ledger events published to AMQP, by type and result.",
		}, []string{"type", "result"}),
		balanceRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "conti",
			Name:      "balance_computations_total",
			Help:      "Balance reports computed.",
		}),
		balanceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "conti",
			Name:      "balance_computation_seconds",
			Help:      "Time spent computing a balance report.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		workerRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conti",
			Name:      "worker_runs_total",
			Help:      "Recurring worker passes, by result.",
		}, []string{"result"}),
		mirrorWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conti",
			Name:      "mirror_writes_total",
			Help:      "Rows appended to the spreadsheet mirror, by kind and result.",
		}, []string{"kind", "result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conti",
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by method and status code.",
		}, []string{"method", "code"}),
		httpDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "conti",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conti",
			Name:      "http_rejected_total",
			Help:      "Requests rejected before reaching a handler, by reason.",
		}, []string{"reason"}),
	}
	m.registry.MustRegister(
		m.materializations,
		m.eventsPublished,
		m.balanceRuns,
		m.balanceDuration,
		m.workerRuns,
		m.mirrorWrites,
		m.httpRequests,
		m.httpDuration,
		m.rejected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Materialization(outcome string) {
	if m == nil {
		return
	}
	m.materializations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) EventPublished(eventType string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.eventsPublished.WithLabelValues(eventType, result).Inc()
}

func (m *Metrics) BalanceComputed(d time.Duration) {
	if m == nil {
		return
	}
	m.balanceRuns.Inc()
	m.balanceDuration.Observe(d.Seconds())
}

func (m *Metrics) WorkerRun(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.workerRuns.WithLabelValues(result).Inc()
}

func (m *Metrics) MirrorWrite(kind string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.mirrorWrites.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) HTTPRequest(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.httpDuration.Observe(d.Seconds())
}

// Rejected counts requests stopped by middleware, e.g. "rate_limit".
func (m *Metrics) Rejected(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}
