// Package metrics holds the Prometheus collectors exported on /metrics.
// All record methods are safe on a nil *Metrics so services can run without
// instrumentation in tests and CLI commands.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rcm"

type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	ediTx         *prometheus.CounterVec
	bulkItems     *prometheus.CounterVec
	triageBatch   prometheus.Histogram
	insightCalls  *prometheus.CounterVec
	reportRuns    *prometheus.CounterVec
	reportLatency prometheus.Histogram
	auditFailures prometheus.Counter
}

// New registers every collector on a fresh registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		ediTx: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edi_transactions_total",
			Help:      "EDI transactions by transaction set and final status.",
		}, []string{"type", "status"}),
		bulkItems: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bulk_items_total",
			Help:      "Items processed by bulk operations.",
		}, []string{"operation", "target", "outcome"}),
		triageBatch: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "denial_triage_batch_size",
			Help:      "Denials sent per triage request.",
			Buckets:   []float64{1, 5, 10, 20, 40, 80},
		}),
		insightCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "insight_calls_total",
			Help:      "Calls to the insight service by capability and outcome.",
		}, []string{"capability", "outcome"}),
		reportRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_runs_total",
			Help:      "Report executions by outcome.",
		}, []string{"outcome"}),
		reportLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_generation_seconds",
			Help:      "Time spent running the report pipeline.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		auditFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_write_failures_total",
			Help:      "Audit entries that could not be persisted.",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) EDITransaction(txType, status string) {
	if m == nil {
		return
	}
	m.ediTx.WithLabelValues(txType, status).Inc()
}

func (m *Metrics) BulkResult(operation, target string, successful, failed int) {
	if m == nil {
		return
	}
	m.bulkItems.WithLabelValues(operation, target, "success").Add(float64(successful))
	m.bulkItems.WithLabelValues(operation, target, "failure").Add(float64(failed))
}

func (m *Metrics) TriageBatch(size int) {
	if m == nil {
		return
	}
	m.triageBatch.Observe(float64(size))
}

func (m *Metrics) InsightCall(capability string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.insightCalls.WithLabelValues(capability, outcome).Inc()
}

func (m *Metrics) ReportRun(d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.reportRuns.WithLabelValues(outcome).Inc()
	m.reportLatency.Observe(d.Seconds())
}

func (m *Metrics) AuditFailure() {
	if m == nil {
		return
	}
	m.auditFailures.Inc()
}
