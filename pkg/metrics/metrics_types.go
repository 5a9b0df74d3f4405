package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all operational metrics for the application
type Registry struct {
	// HTTP Metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Coordinator Metrics
	QueriesTotal            *prometheus.CounterVec
	QueryDuration           *prometheus.HistogramVec
	WritesTotal             *prometheus.CounterVec
	WriteQuorumConfirmState *prometheus.CounterVec
	QuorumConfirmDuration   prometheus.Histogram
	ReadRouteTotal          *prometheus.CounterVec
	FailoversTotal          *prometheus.CounterVec
	FailoverDuration        prometheus.Histogram
	FailoverPhase           *prometheus.GaugeVec

	// Collector Metrics
	CollectorPollsTotal      *prometheus.CounterVec
	CollectorPollDuration    prometheus.Histogram
	ReplicaLatencyMs         *prometheus.GaugeVec
	ReplicaLag               *prometheus.GaugeVec
	ReplicaHealthy           *prometheus.GaugeVec
	ReplicaCrashesTotal      *prometheus.CounterVec
	SnapshotsPublishedTotal  prometheus.Counter
	SnapshotSubscribersTotal prometheus.Gauge

	// Timestamp Metrics
	TimestampsIssuedTotal prometheus.Counter
	TimestampCounter      prometheus.Gauge
	TimestampCheckpoints  prometheus.Counter
	TimestampResetsTotal  prometheus.Counter

	// Cluster Metrics
	ClusterReplicasTotal        prometheus.Gauge
	ClusterHealthyReplicasTotal prometheus.Gauge
	ClusterMasterIsOriginal     prometheus.Gauge
	ClusterElectionsTotal       *prometheus.CounterVec
	ClusterElectionScore        prometheus.Gauge

	registry *prometheus.Registry
	mu       sync.RWMutex
}

var (
	// Global registry instance
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
	}

	r.initHTTPMetrics()
	r.initCoordinatorMetrics()
	r.initCollectorMetrics()
	r.initTimestampMetrics()
	r.initClusterMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
