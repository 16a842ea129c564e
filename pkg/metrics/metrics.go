// Package metrics exposes the Prometheus collectors of the sync engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teesync_runs_total",
			Help: "Portal runs by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	StrategyAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teesync_strategy_attempts_total",
			Help: "Extraction strategy attempts by strategy and result",
		},
		[]string{"strategy", "result"},
	)

	AuthDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "teesync_auth_duration_seconds",
			Help:    "Duration of the SSO login handshake",
			Buckets: prometheus.DefBuckets,
		},
	)

	ImportDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teesync_import_decisions_total",
			Help: "Import outcomes per application",
		},
		[]string{"result"},
	)
)

// Strategy attempt results.
const (
	RESULT_OK    = "ok"
	RESULT_EMPTY = "empty"
	RESULT_ERROR = "error"
)

func Handler() http.Handler {
	return promhttp.Handler()
}
