package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Session metrics
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dashboard_sessions_active",
			Help: "Number of live WebSocket streaming sessions",
		},
	)

	FramesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_frames_sent_total",
			Help: "Total stream frames sent to clients by frame type",
		},
		[]string{"type"},
	)

	// Subprocess metrics
	SubprocessTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_subprocess_total",
			Help: "Total subprocesses spawned by command",
		},
		[]string{"command"},
	)

	SubprocessDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dashboard_subprocess_duration_seconds",
			Help:    "Subprocess wall time in seconds by command",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 1800},
		},
		[]string{"command"},
	)

	// Provisioning metrics
	ProvisionOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_provision_outcomes_total",
			Help: "Terminal provisioning outcomes by operation and result",
		},
		[]string{"operation", "outcome"},
	)

	// Cache metrics
	CacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dashboard_cache_hits_total",
			Help: "Response cache hits",
		},
	)

	CacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dashboard_cache_misses_total",
			Help: "Response cache misses, including forced refreshes",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_api_requests_total",
			Help: "Total HTTP API requests by method and status",
		},
		[]string{"method", "status"},
	)
)

// Register registers all collectors with the default registry.
// Call once at startup.
func Register() {
	prometheus.MustRegister(
		SessionsActive,
		FramesSent,
		SubprocessTotal,
		SubprocessDuration,
		ProvisionOutcomes,
		CacheHits,
		CacheMisses,
		APIRequestsTotal,
	)
}

// Handler returns the HTTP handler serving the /metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}
