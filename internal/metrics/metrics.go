// Package metrics holds the Prometheus collectors shared by the pipeline, the
// inbox watcher and the status API. A nil *Metrics is a valid no-op.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dona"

// Metrics bundles the collectors on a private registry.
type Metrics struct {
	registry        *prometheus.Registry
	runsTotal       *prometheus.CounterVec
	failuresTotal   *prometheus.CounterVec
	recordsTotal    *prometheus.CounterVec
	droppedTotal    *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	inboxEvents     *prometheus.CounterVec
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	rateLimited     prometheus.Counter
	ledgerErrors    prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by source and outcome",
		}, []string{"source", "outcome"}),
		failuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_failures_total",
			Help:      "Failed pipeline runs by reason code",
		}, []string{"reason"}),
		recordsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_extracted_total",
			Help:      "Raw records produced by extractors",
		}, []string{"source"}),
		droppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_dropped_total",
			Help:      "Records and conversations dropped before assembly",
		}, []string{"source", "reason"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Histogram of pipeline run durations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		inboxEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbox_events_total",
			Help:      "Inbox watcher events by outcome",
		}, []string{"outcome"}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests received",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request durations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_rate_limited_total",
			Help:      "Number of HTTP requests rejected due to rate limiting",
		}),
		ledgerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_write_errors_total",
			Help:      "Number of run ledger write errors",
		}),
	}

	registry.MustRegister(
		m.runsTotal,
		m.failuresTotal,
		m.recordsTotal,
		m.droppedTotal,
		m.runDuration,
		m.inboxEvents,
		m.requestsTotal,
		m.requestDuration,
		m.rateLimited,
		m.ledgerErrors,
	)

	return m
}

// Handler returns an HTTP handler exposing the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{DisableCompression: true})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveRun records the outcome of one pipeline run. reason is empty on success.
func (m *Metrics) ObserveRun(source, reason string, dur time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if reason != "" {
		outcome = "failed"
		m.failuresTotal.WithLabelValues(reason).Inc()
	}
	m.runsTotal.WithLabelValues(source, outcome).Inc()
	m.runDuration.WithLabelValues(source).Observe(dur.Seconds())
}

// AddRecords counts extracted records for a source.
func (m *Metrics) AddRecords(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.recordsTotal.WithLabelValues(source).Add(float64(n))
}

// AddDropped counts dropped records for a source and reason.
func (m *Metrics) AddDropped(source, reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.droppedTotal.WithLabelValues(source, reason).Add(float64(n))
}

// IncInboxEvent counts one watcher event with the given outcome.
func (m *Metrics) IncInboxEvent(outcome string) {
	if m == nil {
		return
	}
	m.inboxEvents.WithLabelValues(outcome).Inc()
}

// ObserveRequest records timing and status information.
func (m *Metrics) ObserveRequest(route, method string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(dur.Seconds())
}

// IncRateLimited increments the rate limit counter.
func (m *Metrics) IncRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// IncLedgerErrors increments the ledger write error counter.
func (m *Metrics) IncLedgerErrors() {
	if m == nil {
		return
	}
	m.ledgerErrors.Inc()
}
