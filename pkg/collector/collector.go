package collector

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dd0wney/cluso-sqlgate/pkg/config"
	"github.com/dd0wney/cluso-sqlgate/pkg/logging"
	"github.com/dd0wney/cluso-sqlgate/pkg/metrics"
)

// Target is a database instance the collector can measure.
// *store.Instance satisfies it.
type Target interface {
	ID() string
	Probe(ctx context.Context) (time.Duration, error)
	AppliedTimestamp(ctx context.Context) (uint64, error)
}

// Collector polls every instance on a fixed interval and publishes an
// immutable snapshot of the results. Readers never block pollers: the
// current snapshot is swapped in with a single atomic pointer store.
type Collector struct {
	master   Target
	replicas []Target
	cfg      config.CollectorConfig
	registry *metrics.Registry
	logger   logging.Logger

	snapshot atomic.Pointer[Snapshot]

	// track is only touched by the poll loop
	track map[string]*replicaTrack

	publisher *Publisher
	journal   *Journal

	stopCh    chan struct{}
	wg        sync.WaitGroup
	running   bool
	runningMu sync.Mutex
}

// replicaTrack carries state that survives across poll cycles.
type replicaTrack struct {
	crashCount   int
	healthySince time.Time
	wasHealthy   bool
	seen         bool
}

// New creates a collector for a master and its replicas. Publisher and
// journal are optional.
func New(master Target, replicas []Target, cfg config.CollectorConfig, publisher *Publisher, journal *Journal) *Collector {
	track := make(map[string]*replicaTrack, len(replicas))
	for _, r := range replicas {
		track[r.ID()] = &replicaTrack{}
	}

	return &Collector{
		master:    master,
		replicas:  replicas,
		cfg:       cfg,
		registry:  metrics.DefaultRegistry(),
		logger:    logging.With(logging.Component("collector")),
		track:     track,
		publisher: publisher,
		journal:   journal,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the poll loop. The first cycle runs immediately so a
// snapshot is available as soon as possible.
func (c *Collector) Start() error {
	c.runningMu.Lock()
	defer c.runningMu.Unlock()

	if c.running {
		return fmt.Errorf("collector already running")
	}

	c.running = true
	c.wg.Add(1)
	go c.pollLoop()

	c.logger.Info("Collector started",
		logging.Count(len(c.replicas)),
		logging.Duration("poll_interval", c.cfg.PollInterval.Std()))
	return nil
}

// Stop halts the poll loop and waits for the in-flight cycle.
func (c *Collector) Stop() {
	c.runningMu.Lock()
	defer c.runningMu.Unlock()

	if !c.running {
		return
	}

	close(c.stopCh)
	c.running = false
	c.wg.Wait()
	c.logger.Info("Collector stopped")
}

// GetSnapshot returns the most recent snapshot, or nil if no poll
// cycle has completed yet. The returned snapshot is never mutated.
func (c *Collector) GetSnapshot() *Snapshot {
	return c.snapshot.Load()
}

func (c *Collector) pollLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.PollInterval.Std())
	defer ticker.Stop()

	c.pollOnce()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.pollOnce()
		}
	}
}

// probeResult is one replica's raw measurement before cross-cycle
// state is applied.
type probeResult struct {
	id        string
	latencyMs float64
	applied   uint64
	reachable bool
}

func (c *Collector) pollOnce() {
	started := time.Now()

	masterTS, masterReachable := c.pollMaster()

	results := make([]probeResult, len(c.replicas))
	var probeWg sync.WaitGroup
	for idx, replica := range c.replicas {
		probeWg.Add(1)
		go func(idx int, replica Target) {
			defer probeWg.Done()
			results[idx] = c.probeReplica(replica)
		}(idx, replica)
	}
	probeWg.Wait()

	snap := c.buildSnapshot(results, masterTS, masterReachable)
	c.snapshot.Store(snap)

	status := "ok"
	if !masterReachable {
		status = "partial"
	}
	for _, rec := range snap.Replicas {
		c.registry.UpdateReplicaMetrics(rec.ReplicaID, rec.LatencyMs, rec.ReplicationLag, rec.IsHealthy)
		if !rec.IsHealthy {
			status = "partial"
		}
	}
	c.registry.CollectorPollsTotal.WithLabelValues(status).Inc()
	c.registry.CollectorPollDuration.Observe(time.Since(started).Seconds())

	if c.publisher != nil {
		if err := c.publisher.Publish(snap); err != nil {
			c.logger.Warn("Failed to publish snapshot", logging.Error(err))
		} else {
			c.registry.SnapshotsPublishedTotal.Inc()
		}
	}
	if c.journal != nil {
		if _, err := c.journal.Append(snap); err != nil {
			c.logger.Warn("Failed to journal snapshot", logging.Error(err))
		}
	}
}

func (c *Collector) pollMaster() (uint64, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ProbeTimeout.Std())
	defer cancel()

	if _, err := c.master.Probe(ctx); err != nil {
		c.logger.Warn("Master probe failed",
			logging.InstanceID(c.master.ID()),
			logging.Error(err))
		return 0, false
	}

	ts, err := c.master.AppliedTimestamp(ctx)
	if err != nil {
		c.logger.Warn("Master timestamp read failed",
			logging.InstanceID(c.master.ID()),
			logging.Error(err))
		return 0, false
	}
	return ts, true
}

func (c *Collector) probeReplica(replica Target) probeResult {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ProbeTimeout.Std())
	defer cancel()

	res := probeResult{id: replica.ID()}

	rtt, err := replica.Probe(ctx)
	if err != nil {
		res.latencyMs = UnreachableLatencyMs
		return res
	}
	res.latencyMs = float64(rtt.Microseconds()) / 1000.0
	res.reachable = true

	applied, err := replica.AppliedTimestamp(ctx)
	if err != nil {
		res.latencyMs = UnreachableLatencyMs
		res.reachable = false
		return res
	}
	res.applied = applied
	return res
}

// buildSnapshot folds raw probe results into records, applying the
// crash counter and uptime clock that persist across cycles.
func (c *Collector) buildSnapshot(results []probeResult, masterTS uint64, masterReachable bool) *Snapshot {
	now := time.Now()
	records := make([]ReplicaRecord, 0, len(results))

	for _, res := range results {
		tr := c.track[res.id]
		if tr == nil {
			tr = &replicaTrack{}
			c.track[res.id] = tr
		}

		healthy := res.reachable && res.latencyMs < c.cfg.UnhealthyLatencyMs

		switch {
		case healthy && !tr.wasHealthy:
			tr.healthySince = now
			if tr.seen {
				c.logger.Info("Replica recovered", logging.ReplicaID(res.id))
			}
		case !healthy && tr.wasHealthy:
			tr.crashCount++
			c.registry.ReplicaCrashesTotal.WithLabelValues(res.id).Inc()
			c.logger.Warn("Replica became unhealthy",
				logging.ReplicaID(res.id),
				logging.Count(tr.crashCount))
		}
		tr.wasHealthy = healthy
		tr.seen = true

		var lag uint64
		if res.reachable && masterTS > res.applied {
			lag = masterTS - res.applied
		}

		var uptime float64
		if healthy {
			uptime = now.Sub(tr.healthySince).Seconds()
		}

		records = append(records, ReplicaRecord{
			ReplicaID:      res.id,
			LatencyMs:      res.latencyMs,
			ReplicationLag: lag,
			UptimeSeconds:  uptime,
			CrashCount:     tr.crashCount,
			IsHealthy:      healthy,
			LastUpdated:    now,
		})
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].ReplicaID < records[j].ReplicaID
	})

	return &Snapshot{
		Replicas:        records,
		MasterReachable: masterReachable,
		MasterTimestamp: masterTS,
		CollectedAt:     now,
	}
}
