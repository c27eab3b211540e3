package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce         sync.Once
	httpRequestsTotal    *prometheus.CounterVec
	httpLatencySeconds   *prometheus.HistogramVec
	httpErrorsTotal      *prometheus.CounterVec
	executionRequests    *prometheus.CounterVec
	gradedSubmissions    *prometheus.CounterVec
	analyticsCacheLookup *prometheus.CounterVec
	draftOperations      *prometheus.CounterVec
	editorSessionsActive prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oelp_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "oelp_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oelp_http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		executionRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oelp_execution_requests_total",
			Help: "Run and submit requests handled by the execution endpoints.",
		}, []string{"operation", "outcome"})

		gradedSubmissions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oelp_graded_submissions_total",
			Help: "Submissions graded, labelled by submission status.",
		}, []string{"status"})

		analyticsCacheLookup = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oelp_analytics_cache_lookups_total",
			Help: "Cache lookups for leaderboard and progress aggregates.",
		}, []string{"cache", "result"})

		draftOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oelp_draft_operations_total",
			Help: "Draft store operations.",
		}, []string{"operation", "result"})

		editorSessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "oelp_editor_sessions_active",
			Help: "Editor websocket sessions currently open.",
		})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			executionRequests,
			gradedSubmissions,
			analyticsCacheLookup,
			draftOperations,
			editorSessionsActive,
		)
	})
}

// HTTPRequests exposes the request counter.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the request latency histogram.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the error response counter.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// ExecutionRequests counts run/submit calls by outcome.
func ExecutionRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return executionRequests
}

// GradedSubmissions counts persisted submissions by status.
func GradedSubmissions() *prometheus.CounterVec {
	RegisterMetrics()
	return gradedSubmissions
}

// AnalyticsCacheLookups counts cache hits and misses per cache.
func AnalyticsCacheLookups() *prometheus.CounterVec {
	RegisterMetrics()
	return analyticsCacheLookup
}

// DraftOperations counts draft loads, saves and deletes.
func DraftOperations() *prometheus.CounterVec {
	RegisterMetrics()
	return draftOperations
}

// EditorSessionsActive tracks open editor sessions.
func EditorSessionsActive() prometheus.Gauge {
	RegisterMetrics()
	return editorSessionsActive
}
