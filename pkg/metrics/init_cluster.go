package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initClusterMetrics() {
	r.ClusterReplicasTotal = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "sqlgate_cluster_replicas_total",
			Help: "Total number of replicas in the cluster",
		},
	)

	r.ClusterHealthyReplicasTotal = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "sqlgate_cluster_healthy_replicas_total",
			Help: "Number of healthy replicas in the cluster",
		},
	)

	r.ClusterMasterIsOriginal = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "sqlgate_cluster_master_is_original",
			Help: "Whether the configured master still holds the role (1=yes, 0=no)",
		},
	)

	r.ClusterElectionsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlgate_cluster_elections_total",
			Help: "Total number of leader elections",
		},
		[]string{"result"}, // elected, no_candidates, error
	)

	r.ClusterElectionScore = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "sqlgate_cluster_election_score",
			Help: "Total score of the most recently elected leader",
		},
	)
}
