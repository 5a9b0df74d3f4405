// Package coordinator is the single client-facing endpoint of the
// cluster: it classifies statements, attaches global timestamps to
// writes, enforces the requested consistency level, routes reads to
// fresh replicas, and owns the failover state machine.
package coordinator

import (
	"context"

	"github.com/dd0wney/cluso-sqlgate/pkg/cabinet"
	"github.com/dd0wney/cluso-sqlgate/pkg/config"
	"github.com/dd0wney/cluso-sqlgate/pkg/logging"
	"github.com/dd0wney/cluso-sqlgate/pkg/metrics"
	"github.com/dd0wney/cluso-sqlgate/pkg/seer"
	"github.com/dd0wney/cluso-sqlgate/pkg/store"
)

// DB is the slice of a database instance the coordinator drives.
// *store.Instance satisfies it.
type DB interface {
	ID() string
	Host() string
	Query(ctx context.Context, sql string) ([]map[string]any, error)
	ApplyWrite(ctx context.Context, sql string, ts uint64) (int64, error)
	AppliedTimestamp(ctx context.Context) (uint64, error)
	Promote(ctx context.Context) error
	Demote(ctx context.Context, primaryHost string) error
	IsWritable(ctx context.Context) (bool, error)
}

// Fleet resolves instance ids to live connections.
type Fleet interface {
	Get(id string) (DB, error)
}

// storeFleet adapts *store.Fleet to the Fleet interface.
type storeFleet struct {
	inner *store.Fleet
}

// NewStoreFleet wraps a connected store fleet.
func NewStoreFleet(f *store.Fleet) Fleet {
	return storeFleet{inner: f}
}

func (s storeFleet) Get(id string) (DB, error) {
	return s.inner.Get(id)
}

// timestampSource, quorumSelector, and leaderElector are the
// dependency seams the request path runs through.
type timestampSource interface {
	Next(ctx context.Context) (uint64, error)
}

type quorumSelector interface {
	SelectQuorum(ctx context.Context, operation string) (*cabinet.Selection, error)
}

type leaderElector interface {
	ElectLeader(ctx context.Context, exclude []string) (*seer.ElectionResult, error)
}

// Coordinator ties the services together. Safe for concurrent use.
type Coordinator struct {
	cfg   config.CoordinatorConfig
	fleet Fleet
	state *ClusterState

	timestamps timestampSource
	quorums    quorumSelector
	snapshots  SnapshotSource

	failover    *FailoverManager
	consistency *ConsistencyMetrics

	registry *metrics.Registry
	logger   logging.Logger
}

// New wires a coordinator from configuration and live collaborators.
func New(cfg config.CoordinatorConfig, fleet Fleet, state *ClusterState,
	snapshots SnapshotSource, procs ProcessController) *Coordinator {

	timeout := cfg.DependencyTimeout.Std()

	elector := NewSeerClient(cfg.SeerURL, timeout)
	failover := NewFailoverManager(cfg, fleet, state, elector, procs)

	return &Coordinator{
		cfg:         cfg,
		fleet:       fleet,
		state:       state,
		timestamps:  NewTimestampClient(cfg.TimestampServices, cfg.TimestampRetries, timeout),
		quorums:     NewCabinetClient(cfg.CabinetURL, timeout),
		snapshots:   snapshots,
		failover:    failover,
		consistency: NewConsistencyMetrics(),
		registry:    metrics.DefaultRegistry(),
		logger:      logging.With(logging.Component("coordinator")),
	}
}

// Failover exposes the failover manager for the admin surface.
func (c *Coordinator) Failover() *FailoverManager {
	return c.failover
}

// State exposes the cluster topology owner.
func (c *Coordinator) State() *ClusterState {
	return c.state
}

// Consistency exposes the per-level write aggregates.
func (c *Coordinator) Consistency() *ConsistencyMetrics {
	return c.consistency
}

// publishClusterMetrics refreshes the topology gauges from the current
// view and snapshot.
func (c *Coordinator) publishClusterMetrics() {
	view := c.state.View()

	healthy := 0
	if snap := c.snapshots.Latest(); snap != nil {
		healthy = len(snap.Healthy())
	}
	c.registry.UpdateClusterMetrics(len(view.Replicas), healthy, view.MasterIsOriginal)
}
