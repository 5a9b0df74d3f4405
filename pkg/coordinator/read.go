package coordinator

import (
	"context"
	"fmt"

	"github.com/dd0wney/cluso-sqlgate/pkg/logging"
)

// executeRead routes a read to the freshest fast replica, falling back
// to the master when no replica qualifies. A lagging replica is never
// chosen, however fast: freshness beats load spreading here.
func (c *Coordinator) executeRead(ctx context.Context, query string) (*QueryResult, error) {
	if target := c.pickReadReplica(); target != "" {
		db, err := c.fleet.Get(target)
		if err == nil {
			rows, qerr := db.Query(ctx, query)
			if qerr == nil {
				c.registry.ReadRouteTotal.WithLabelValues("replica").Inc()
				return &QueryResult{
					Success:    true,
					Message:    "read served",
					ExecutedOn: target,
					Rows:       rows,
				}, nil
			}
			c.logger.Warn("Replica read failed, falling back to master",
				logging.ReplicaID(target),
				logging.Error(qerr))
		}
	}

	return c.readFromMaster(ctx, query)
}

// pickReadReplica returns the id of the healthy replica with the
// lowest latency among those under the lag threshold, or "" when no
// replica qualifies (or no snapshot exists yet).
func (c *Coordinator) pickReadReplica() string {
	snap := c.snapshots.Latest()
	if snap == nil {
		return ""
	}

	best := ""
	bestLatency := 0.0
	for _, rec := range snap.Replicas {
		if !rec.IsHealthy || rec.ReplicationLag >= c.cfg.ReadLagThreshold {
			continue
		}
		if best == "" || rec.LatencyMs < bestLatency {
			best = rec.ReplicaID
			bestLatency = rec.LatencyMs
		}
	}
	return best
}

func (c *Coordinator) readFromMaster(ctx context.Context, query string) (*QueryResult, error) {
	masterRef := c.state.Master()

	master, err := c.fleet.Get(masterRef.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoReadCandidates, err)
	}

	rows, err := master.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: master read failed: %v", ErrMasterUnreachable, err)
	}

	c.registry.ReadRouteTotal.WithLabelValues("master_fallback").Inc()
	return &QueryResult{
		Success:    true,
		Message:    "read served by master",
		ExecutedOn: masterRef.ID,
		Rows:       rows,
	}, nil
}
