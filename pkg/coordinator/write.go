package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dd0wney/cluso-sqlgate/pkg/logging"
)

// QueryRequest is one statement submitted by a client.
type QueryRequest struct {
	Query       string `json:"query"`
	Consistency string `json:"consistency,omitempty"`
}

// QueryResult is the structured outcome of a statement. Success and
// QuorumAchieved are separate on purpose: a STRONG write that commits
// on the master but never gets quorum confirmation is still durable.
type QueryResult struct {
	Success        bool             `json:"success"`
	Message        string           `json:"message"`
	Kind           string           `json:"kind"`
	Consistency    string           `json:"consistency,omitempty"`
	Timestamp      *uint64          `json:"timestamp,omitempty"`
	ExecutedOn     string           `json:"executed_on"`
	QuorumAchieved *bool            `json:"quorum_achieved,omitempty"`
	Quorum         []string         `json:"quorum,omitempty"`
	Rows           []map[string]any `json:"rows,omitempty"`
	RowsAffected   int64            `json:"rows_affected,omitempty"`
	LatencyMs      float64          `json:"latency_ms"`
}

// Execute classifies and runs one statement.
func (c *Coordinator) Execute(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	started := time.Now()

	kind, err := Classify(req.Query)
	if err != nil {
		c.registry.RecordQuery("unknown", "malformed", time.Since(started))
		return nil, err
	}

	var result *QueryResult
	switch kind {
	case KindRead:
		result, err = c.executeRead(ctx, req.Query)
	case KindWrite:
		level, perr := ParseConsistency(req.Consistency)
		if perr != nil {
			c.registry.RecordQuery(kind.String(), "malformed", time.Since(started))
			return nil, fmt.Errorf("%w: %v", ErrMalformedQuery, perr)
		}
		result, err = c.executeWrite(ctx, req.Query, level)
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	c.registry.RecordQuery(kind.String(), status, time.Since(started))

	if result != nil {
		result.Kind = kind.String()
		result.LatencyMs = float64(time.Since(started).Microseconds()) / 1000.0
	}
	return result, err
}

// executeWrite orders the write, commits it on the master, and then
// enforces the consistency level.
func (c *Coordinator) executeWrite(ctx context.Context, query string, level ConsistencyLevel) (*QueryResult, error) {
	started := time.Now()

	ts, err := c.timestamps.Next(ctx)
	if err != nil {
		c.consistency.Record(level, time.Since(started), true)
		return nil, err
	}

	affected, master, err := c.commitOnMaster(ctx, query, ts)
	if err != nil {
		c.consistency.Record(level, time.Since(started), true)
		return nil, err
	}

	c.registry.RecordWrite(level.String())

	result := &QueryResult{
		Success:      true,
		Message:      "write committed",
		Consistency:  level.String(),
		Timestamp:    &ts,
		ExecutedOn:   master,
		RowsAffected: affected,
	}

	if level == Strong {
		achieved, quorum, detail := c.confirmQuorum(ctx, ts)
		result.QuorumAchieved = &achieved
		result.Quorum = quorum
		if !achieved {
			// Never rolled back: the master commit stands
			result.Message = "write committed, quorum unconfirmed: " + detail
		} else {
			result.Message = "write committed, quorum confirmed"
		}
	}

	failed := result.QuorumAchieved != nil && !*result.QuorumAchieved
	c.consistency.Record(level, time.Since(started), failed)
	c.publishClusterMetrics()

	return result, nil
}

// commitOnMaster executes the write on the current master. If the
// master is unreachable it runs the failover state machine and retries
// once, with the same timestamp, on the newly promoted master.
func (c *Coordinator) commitOnMaster(ctx context.Context, query string, ts uint64) (int64, string, error) {
	masterRef := c.state.Master()

	master, err := c.fleet.Get(masterRef.ID)
	if err == nil {
		affected, werr := master.ApplyWrite(ctx, query, ts)
		if werr == nil {
			return affected, masterRef.ID, nil
		}
		err = werr
	}

	c.logger.Warn("Master write failed, starting failover",
		logging.InstanceID(masterRef.ID),
		logging.Timestamp(ts),
		logging.Error(err))

	if _, ferr := c.failover.TriggerFailover(ctx, ""); ferr != nil {
		if errors.Is(ferr, ErrFailoverInProgress) {
			return 0, "", fmt.Errorf("%w: failover already running: %v", ErrMasterUnreachable, err)
		}
		return 0, "", fmt.Errorf("%w: failover failed: %v", ErrMasterUnreachable, ferr)
	}

	// Same timestamp on the new master keeps the global order intact
	newRef := c.state.Master()
	newMaster, err := c.fleet.Get(newRef.ID)
	if err != nil {
		return 0, "", fmt.Errorf("%w: promoted master not connected: %v", ErrMasterUnreachable, err)
	}
	affected, err := newMaster.ApplyWrite(ctx, query, ts)
	if err != nil {
		return 0, "", fmt.Errorf("%w: retry on promoted master failed: %v", ErrMasterUnreachable, err)
	}

	c.logger.Info("Write retried on promoted master",
		logging.InstanceID(newRef.ID),
		logging.Timestamp(ts))
	return affected, newRef.ID, nil
}

// confirmQuorum selects a quorum and polls its members until each has
// applied the issued timestamp or the window closes.
func (c *Coordinator) confirmQuorum(ctx context.Context, ts uint64) (bool, []string, string) {
	started := time.Now()

	selection, err := c.quorums.SelectQuorum(ctx, "write")
	if err != nil {
		c.registry.RecordQuorumConfirmation(false, time.Since(started))
		return false, nil, err.Error()
	}
	if !selection.Satisfied {
		c.registry.RecordQuorumConfirmation(false, time.Since(started))
		return false, selection.Quorum, fmt.Sprintf(
			"only %d of %d required replicas healthy", len(selection.Quorum), selection.QuorumSize)
	}

	deadline := time.Now().Add(c.cfg.QuorumTimeout.Std())
	interval := c.cfg.QuorumPollInterval.Std()

	pending := make(map[string]bool, len(selection.Quorum))
	for _, id := range selection.Quorum {
		pending[id] = true
	}

	for len(pending) > 0 && time.Now().Before(deadline) {
		for id := range pending {
			db, err := c.fleet.Get(id)
			if err != nil {
				continue
			}
			applied, err := db.AppliedTimestamp(ctx)
			if err == nil && applied >= ts {
				delete(pending, id)
			}
		}

		if len(pending) == 0 {
			break
		}
		select {
		case <-ctx.Done():
			c.registry.RecordQuorumConfirmation(false, time.Since(started))
			return false, selection.Quorum, "request cancelled during quorum wait"
		case <-time.After(interval):
		}
	}

	if len(pending) > 0 {
		unconfirmed := make([]string, 0, len(pending))
		for id := range pending {
			unconfirmed = append(unconfirmed, id)
		}
		c.registry.RecordQuorumConfirmation(false, time.Since(started))
		return false, selection.Quorum, fmt.Sprintf("timed out waiting for %v", unconfirmed)
	}

	c.registry.RecordQuorumConfirmation(true, time.Since(started))
	c.logger.Info("Quorum confirmed",
		logging.Timestamp(ts),
		logging.Quorum(selection.Quorum),
		logging.Latency(time.Since(started)))
	return true, selection.Quorum, ""
}
