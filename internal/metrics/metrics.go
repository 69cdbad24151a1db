// Package metrics exposes Prometheus instrumentation for the refresh
// scheduler and liveness monitor.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Refresh scheduler
	RefreshExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livecore_refresh_executed_total",
		Help: "Refresh actions executed, by trigger kind.",
	}, []string{"trigger"})
	RefreshThrottled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livecore_refresh_throttled_total",
		Help: "Triggers deferred because the minimum interval had not elapsed.",
	})
	RefreshSkippedUnsaved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livecore_refresh_skipped_unsaved_total",
		Help: "Refreshes skipped because unsaved form data was present.",
	})
	RefreshFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livecore_refresh_failed_total",
		Help: "Refresh actions that returned an error.",
	})
	ActiveConsumers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "livecore_refresh_consumers_active",
		Help: "Currently registered refresh consumers.",
	})

	// Liveness monitor
	LivenessChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livecore_liveness_checks_total",
		Help: "Completed liveness checks, by outcome.",
	}, []string{"outcome"})
	LivenessSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livecore_liveness_checks_skipped_total",
		Help: "Liveness checks skipped before running, by cause.",
	}, []string{"cause"})
	SessionValid = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "livecore_session_valid",
		Help: "1 while the session is considered valid, 0 after invalidation.",
	})
)

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
