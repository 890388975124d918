package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the shortener
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActiveRequests  *prometheus.GaugeVec

	// Admission metrics
	RateLimitRequests *prometheus.CounterVec
	RateLimitDegraded *prometheus.CounterVec

	// Allocator metrics
	ShortcodeAllocations *prometheus.CounterVec
	ShortcodeCollisions  *prometheus.CounterVec

	// Store metrics
	StoreOperationDuration *prometheus.HistogramVec

	// Health check metrics
	HealthCheckDuration *prometheus.HistogramVec
	HealthCheckStatus   *prometheus.GaugeVec

	// URL record metrics
	URLsCreated  prometheus.Counter
	URLsDeleted  prometheus.Counter
	URLRedirects *prometheus.CounterVec
	ClickUpdates *prometheus.CounterVec
}

// Decision label values
const (
	DecisionAllowed  = "allowed"
	DecisionDenied   = "denied"
	DecisionDegraded = "degraded"
)

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new Metrics instance with a custom registry
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shortener_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shortener_http_request_duration_seconds",
				Help:    "HTTP request latencies in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
		ActiveRequests: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "shortener_http_requests_active",
				Help: "Number of active HTTP requests",
			},
			[]string{"method"},
		),

		RateLimitRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shortener_rate_limit_requests_total",
				Help: "Admission decisions by rule, algorithm and outcome",
			},
			[]string{"rule", "algorithm", "decision"},
		),
		RateLimitDegraded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shortener_rate_limit_degraded_total",
				Help: "Admission checks that failed open because the store was unavailable",
			},
			[]string{"algorithm"},
		),

		ShortcodeAllocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shortener_shortcode_allocations_total",
				Help: "Short code allocations by outcome",
			},
			[]string{"outcome"},
		),
		ShortcodeCollisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shortener_shortcode_collisions_total",
				Help: "Candidate codes rejected because they were already in use",
			},
			[]string{"length"},
		),

		StoreOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shortener_store_operation_duration_seconds",
				Help:    "Key-value store call latencies in seconds",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
			},
			[]string{"op"},
		),

		HealthCheckDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shortener_health_check_duration_seconds",
				Help:    "Health check durations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"check_name"},
		),
		HealthCheckStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "shortener_health_check_status",
				Help: "Health check status (1 = healthy, 0 = unhealthy)",
			},
			[]string{"check_name"},
		),

		URLsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "shortener_urls_created_total",
				Help: "Total number of short URLs created",
			},
		),
		URLsDeleted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "shortener_urls_deleted_total",
				Help: "Total number of short URLs deleted",
			},
		),
		URLRedirects: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shortener_redirects_total",
				Help: "Redirect lookups by result",
			},
			[]string{"result"},
		),
		ClickUpdates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shortener_click_updates_total",
				Help: "Asynchronous click counter writes by result",
			},
			[]string{"result"},
		),
	}
}

// ObserveStore records the latency of a store call started at start.
// Safe to call on a nil *Metrics.
func (m *Metrics) ObserveStore(op string, start time.Time) {
	if m == nil {
		return
	}
	m.StoreOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// RecordDecision counts an admission decision. Safe to call on a nil *Metrics.
func (m *Metrics) RecordDecision(rule, algorithm, decision string) {
	if m == nil {
		return
	}
	m.RateLimitRequests.WithLabelValues(rule, algorithm, decision).Inc()
	if decision == DecisionDegraded {
		m.RateLimitDegraded.WithLabelValues(algorithm).Inc()
	}
}

// NormalizePath normalizes the path for metrics labels to avoid high cardinality
func NormalizePath(path string) string {
	const maxLength = 50
	if path == "" {
		return "unmatched"
	}
	if len(path) > maxLength {
		return path[:maxLength] + "..."
	}
	return path
}
