package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dd0wney/cluso-sqlgate/pkg/cabinet"
	"github.com/dd0wney/cluso-sqlgate/pkg/collector"
	"github.com/dd0wney/cluso-sqlgate/pkg/config"
	"github.com/dd0wney/cluso-sqlgate/pkg/logging"
	"github.com/dd0wney/cluso-sqlgate/pkg/metrics"
	"github.com/dd0wney/cluso-sqlgate/pkg/seer"
)

// mockDB is a scriptable database instance.
type mockDB struct {
	mu sync.Mutex

	id   string
	host string

	applied    uint64
	appliedErr error

	rows     []map[string]any
	queryErr error
	queries  []string

	writeErr error
	writes   []uint64

	writable   bool
	promoteErr error
	demotedTo  string
}

func (m *mockDB) ID() string   { return m.id }
func (m *mockDB) Host() string { return m.host }

func (m *mockDB) Query(ctx context.Context, sql string) ([]map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	m.queries = append(m.queries, sql)
	return m.rows, nil
}

func (m *mockDB) ApplyWrite(ctx context.Context, sql string, ts uint64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	m.writes = append(m.writes, ts)
	m.applied = ts
	return 1, nil
}

func (m *mockDB) AppliedTimestamp(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applied, m.appliedErr
}

func (m *mockDB) Promote(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.promoteErr != nil {
		return m.promoteErr
	}
	m.writable = true
	return nil
}

func (m *mockDB) Demote(ctx context.Context, primaryHost string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writable = false
	m.demotedTo = primaryHost
	return nil
}

func (m *mockDB) IsWritable(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writable, nil
}

func (m *mockDB) setApplied(ts uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applied = ts
}

// mockFleet maps ids to mock instances.
type mockFleet map[string]*mockDB

func (f mockFleet) Get(id string) (DB, error) {
	db, ok := f[id]
	if !ok {
		return nil, fmt.Errorf("instance %q not connected", id)
	}
	return db, nil
}

// seqTimestamps issues 10, 20, 30, ...
type seqTimestamps struct {
	mu   sync.Mutex
	next uint64
	err  error
}

func (s *seqTimestamps) Next(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.next += 10
	return s.next, nil
}

// fixedQuorum returns a canned selection.
type fixedQuorum struct {
	selection *cabinet.Selection
	err       error
}

func (f *fixedQuorum) SelectQuorum(ctx context.Context, operation string) (*cabinet.Selection, error) {
	return f.selection, f.err
}

// localQuorum runs the real selection over the snapshot source.
type localQuorum struct {
	source SnapshotSource
}

func (l *localQuorum) SelectQuorum(ctx context.Context, operation string) (*cabinet.Selection, error) {
	snap := l.source.Latest()
	if snap == nil {
		return nil, ErrDependencyUnavailable
	}
	sel := cabinet.SelectQuorum(snap)
	return &sel, nil
}

// fixedElector returns a canned election result.
type fixedElector struct {
	result *seer.ElectionResult
	err    error
}

func (f *fixedElector) ElectLeader(ctx context.Context, exclude []string) (*seer.ElectionResult, error) {
	return f.result, f.err
}

// localElector runs the real election over the snapshot source.
type localElector struct {
	source SnapshotSource
}

func (l *localElector) ElectLeader(ctx context.Context, exclude []string) (*seer.ElectionResult, error) {
	snap := l.source.Latest()
	if snap == nil {
		return nil, ErrDependencyUnavailable
	}
	return seer.ElectLeader(snap, exclude)
}

// staticSnapshots serves a fixed snapshot.
type staticSnapshots struct {
	mu   sync.Mutex
	snap *collector.Snapshot
}

func (s *staticSnapshots) Latest() *collector.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *staticSnapshots) set(snap *collector.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
}

func testCoordinatorConfig() config.CoordinatorConfig {
	return config.CoordinatorConfig{
		ListenAddr:         ":0",
		TimestampServices:  []string{"http://localhost:9001"},
		CabinetURL:         "http://localhost:9004",
		SeerURL:            "http://localhost:9005",
		MetricsURL:         "http://localhost:9003",
		ReadLagThreshold:   5,
		DependencyTimeout:  config.Duration(500 * time.Millisecond),
		QuorumPollInterval: config.Duration(5 * time.Millisecond),
		QuorumTimeout:      config.Duration(300 * time.Millisecond),
		TimestampRetries:   3,
	}
}

func testCluster() config.ClusterConfig {
	return config.ClusterConfig{
		Master: config.InstanceConfig{ID: "master", Host: "db-master:5432"},
		Replicas: []config.InstanceConfig{
			{ID: "replica1", Host: "db-replica1:5432"},
			{ID: "replica2", Host: "db-replica2:5432"},
			{ID: "replica3", Host: "db-replica3:5432"},
		},
	}
}

// testHarness bundles a coordinator with all mocks exposed.
type testHarness struct {
	coordinator *Coordinator
	fleet       mockFleet
	state       *ClusterState
	snapshots   *staticSnapshots
	timestamps  *seqTimestamps
	quorums     *fixedQuorum
	elector     *fixedElector
}

func newHarness() *testHarness {
	fleet := mockFleet{
		"master":   {id: "master", host: "db-master:5432", writable: true},
		"replica1": {id: "replica1", host: "db-replica1:5432"},
		"replica2": {id: "replica2", host: "db-replica2:5432"},
		"replica3": {id: "replica3", host: "db-replica3:5432"},
	}

	cfg := testCoordinatorConfig()
	state := NewClusterState(testCluster())
	snapshots := &staticSnapshots{}
	timestamps := &seqTimestamps{}
	quorums := &fixedQuorum{selection: &cabinet.Selection{Satisfied: true}}
	elector := &fixedElector{}

	failover := NewFailoverManager(cfg, fleet, state, elector, NoopController{})

	c := &Coordinator{
		cfg:         cfg,
		fleet:       fleet,
		state:       state,
		timestamps:  timestamps,
		quorums:     quorums,
		snapshots:   snapshots,
		failover:    failover,
		consistency: NewConsistencyMetrics(),
		registry:    metrics.DefaultRegistry(),
		logger:      logging.With(logging.Component("coordinator")),
	}

	return &testHarness{
		coordinator: c,
		fleet:       fleet,
		state:       state,
		snapshots:   snapshots,
		timestamps:  timestamps,
		quorums:     quorums,
		elector:     elector,
	}
}

func healthySnapshot() *collector.Snapshot {
	return &collector.Snapshot{
		Replicas: []collector.ReplicaRecord{
			{ReplicaID: "replica1", LatencyMs: 7.4, ReplicationLag: 0, UptimeSeconds: 40, IsHealthy: true},
			{ReplicaID: "replica2", LatencyMs: 6.4, ReplicationLag: 0, UptimeSeconds: 40, IsHealthy: true},
			{ReplicaID: "replica3", LatencyMs: 10.1, ReplicationLag: 2, UptimeSeconds: 40, IsHealthy: true},
		},
		MasterReachable: true,
		MasterTimestamp: 100,
	}
}
