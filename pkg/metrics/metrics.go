package metrics

import (
	"time"
)

// RecordHTTPRequest records an HTTP request with its duration
func (r *Registry) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	r.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordQuery records a coordinator query execution
func (r *Registry) RecordQuery(kind, status string, duration time.Duration) {
	r.QueriesTotal.WithLabelValues(kind, status).Inc()
	r.QueryDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordWrite records a write at the given consistency level
func (r *Registry) RecordWrite(consistency string) {
	r.WritesTotal.WithLabelValues(consistency).Inc()
}

// RecordQuorumConfirmation records the outcome of a quorum confirmation wait
func (r *Registry) RecordQuorumConfirmation(confirmed bool, duration time.Duration) {
	outcome := "confirmed"
	if !confirmed {
		outcome = "unconfirmed"
	}
	r.WriteQuorumConfirmState.WithLabelValues(outcome).Inc()
	r.QuorumConfirmDuration.Observe(duration.Seconds())
}

// UpdateReplicaMetrics publishes one replica's probed values
func (r *Registry) UpdateReplicaMetrics(replicaID string, latencyMs float64, lag uint64, healthy bool) {
	r.ReplicaLatencyMs.WithLabelValues(replicaID).Set(latencyMs)
	r.ReplicaLag.WithLabelValues(replicaID).Set(float64(lag))
	if healthy {
		r.ReplicaHealthy.WithLabelValues(replicaID).Set(1)
	} else {
		r.ReplicaHealthy.WithLabelValues(replicaID).Set(0)
	}
}

// SetFailoverPhase switches the active failover phase gauge
func (r *Registry) SetFailoverPhase(phase string) {
	for _, p := range []string{"stable", "suspected", "electing", "promoting", "rejoining"} {
		r.FailoverPhase.WithLabelValues(p).Set(0)
	}
	r.FailoverPhase.WithLabelValues(phase).Set(1)
}

// UpdateClusterMetrics updates cluster-wide gauges
func (r *Registry) UpdateClusterMetrics(totalReplicas, healthyReplicas int, masterIsOriginal bool) {
	r.ClusterReplicasTotal.Set(float64(totalReplicas))
	r.ClusterHealthyReplicasTotal.Set(float64(healthyReplicas))
	if masterIsOriginal {
		r.ClusterMasterIsOriginal.Set(1)
	} else {
		r.ClusterMasterIsOriginal.Set(0)
	}
}
