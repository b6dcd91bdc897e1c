// Package syncer drains the pending-operation log against the remote API.
//
// This file registers the sync Prometheus collectors.
package syncer

import "github.com/prometheus/client_golang/prometheus"

// Outcome label values for invsync_sync_operations_total.
const (
	outcomeCompleted = "completed"
	outcomeRetry     = "retry"
	outcomeFailed    = "failed"
	outcomeSkipped   = "skipped"
)

var (
	syncOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invsync_sync_operations_total",
			Help: "Replayed pending operations by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	syncCycleDur = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "invsync_sync_cycle_duration_seconds",
			Help:    "Duration of sync cycles in seconds.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	syncPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "invsync_sync_queue_pending",
			Help: "Pending operations left after the last sync cycle.",
		},
	)
)

func init() {
	prometheus.MustRegister(syncOps, syncCycleDur, syncPending)
}
