package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initCoordinatorMetrics() {
	r.QueriesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlgate_queries_total",
			Help: "Total number of queries handled by the coordinator",
		},
		[]string{"kind", "status"}, // kind: read, write; status: ok, error
	)

	r.QueryDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqlgate_query_duration_seconds",
			Help:    "Query execution latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	r.WritesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlgate_writes_total",
			Help: "Total number of writes by consistency level",
		},
		[]string{"consistency"}, // EVENTUAL, STRONG
	)

	r.WriteQuorumConfirmState = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlgate_write_quorum_confirmations_total",
			Help: "Quorum confirmation outcomes for strong writes",
		},
		[]string{"outcome"}, // confirmed, unconfirmed
	)

	r.QuorumConfirmDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlgate_quorum_confirm_duration_seconds",
			Help:    "Time spent waiting for quorum confirmation",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0},
		},
	)

	r.ReadRouteTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlgate_read_routes_total",
			Help: "Read routing decisions",
		},
		[]string{"target"}, // replica, master_fallback
	)

	r.FailoversTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlgate_failovers_total",
			Help: "Total number of failover attempts",
		},
		[]string{"result"}, // completed, failed, conflict
	)

	r.FailoverDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlgate_failover_duration_seconds",
			Help:    "Duration of completed failovers in seconds",
			Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
		},
	)

	r.FailoverPhase = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sqlgate_failover_phase",
			Help: "Current failover phase (1 for active phase, 0 otherwise)",
		},
		[]string{"phase"}, // stable, suspected, electing, promoting, rejoining
	)
}
