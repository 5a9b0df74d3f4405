package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initCollectorMetrics() {
	r.CollectorPollsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlgate_collector_polls_total",
			Help: "Total number of metric poll cycles",
		},
		[]string{"status"}, // ok, partial
	)

	r.CollectorPollDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlgate_collector_poll_duration_seconds",
			Help:    "Duration of a full poll cycle in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
		},
	)

	r.ReplicaLatencyMs = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sqlgate_replica_latency_ms",
			Help: "Measured round-trip latency per replica in milliseconds",
		},
		[]string{"replica_id"},
	)

	r.ReplicaLag = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sqlgate_replica_lag",
			Help: "Replication lag per replica in global-order units",
		},
		[]string{"replica_id"},
	)

	r.ReplicaHealthy = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sqlgate_replica_healthy",
			Help: "Replica health (1=healthy, 0=unhealthy)",
		},
		[]string{"replica_id"},
	)

	r.ReplicaCrashesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlgate_replica_crashes_total",
			Help: "Observed healthy-to-unhealthy transitions per replica",
		},
		[]string{"replica_id"},
	)

	r.SnapshotsPublishedTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "sqlgate_snapshots_published_total",
			Help: "Total number of metrics snapshots published",
		},
	)

	r.SnapshotSubscribersTotal = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "sqlgate_snapshot_subscribers",
			Help: "Connected snapshot fan-out subscribers",
		},
	)
}
