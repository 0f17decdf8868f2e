// Package metrics provides Prometheus instrumentation for the inventory core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all inventory core metrics.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Ledger metrics
	MovementsAppended *prometheus.CounterVec
	EntriesDeleted    prometheus.Counter

	// Conversion metrics
	ConversionsExecuted *prometheus.CounterVec
	ConversionRetries   prometheus.Counter

	// Summary metrics
	SummariesGenerated *prometheus.CounterVec

	// Projection metrics
	ProjectionRefreshes    *prometheus.CounterVec
	ProjectionQueueDropped prometheus.Counter
	ProjectionQueueDepth   prometheus.Gauge
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{registry: registry}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "invcore",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "invcore",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	m.MovementsAppended = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "invcore",
			Name:      "ledger_movements_appended_total",
			Help:      "Total number of ledger movements appended",
		},
		[]string{"movement_type", "source"},
	)

	m.EntriesDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "invcore",
			Name:      "ledger_entries_deleted_total",
			Help:      "Total number of ledger entries soft-deleted",
		},
	)

	m.ConversionsExecuted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "invcore",
			Name:      "conversions_executed_total",
			Help:      "Total number of conversion executions",
		},
		[]string{"status"},
	)

	m.ConversionRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "invcore",
			Name:      "conversion_retries_total",
			Help:      "Total number of conversion retries after concurrency conflicts",
		},
	)

	m.SummariesGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "invcore",
			Name:      "summaries_generated_total",
			Help:      "Total number of monthly summary generation attempts",
		},
		[]string{"status"},
	)

	m.ProjectionRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "invcore",
			Name:      "projection_refreshes_total",
			Help:      "Total number of projection refresh operations",
		},
		[]string{"status"},
	)

	m.ProjectionQueueDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "invcore",
			Name:      "projection_queue_dropped_total",
			Help:      "Refresh requests dropped because the queue was full",
		},
	)

	m.ProjectionQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "invcore",
			Name:      "projection_queue_depth",
			Help:      "Number of refresh requests waiting in the queue",
		},
	)

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.MovementsAppended,
		m.EntriesDeleted,
		m.ConversionsExecuted,
		m.ConversionRetries,
		m.SummariesGenerated,
		m.ProjectionRefreshes,
		m.ProjectionQueueDropped,
		m.ProjectionQueueDepth,
	)

	return m
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
