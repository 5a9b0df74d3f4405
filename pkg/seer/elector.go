// Package seer elects the next master from a cluster snapshot. The
// score blends current speed with demonstrated stability, so a fast
// replica that keeps crashing loses to a slightly slower one that has
// stayed up.
package seer

import (
	"errors"

	"github.com/dd0wney/cluso-sqlgate/pkg/collector"
)

// ErrNoCandidates means no healthy, non-excluded replica exists.
var ErrNoCandidates = errors.New("no eligible election candidates")

// Score component weighting. Latency and stability dominate; lag
// matters less because a healthy replica catches up in seconds.
const (
	latencyWeight   = 0.4
	stabilityWeight = 0.4
	lagWeight       = 0.2
)

// ElectionResult names the elected leader with the full score
// breakdown and the raw measurements behind it.
type ElectionResult struct {
	LeaderID string  `json:"leader_id"`
	Score    float64 `json:"score"`

	LatencyScore   float64 `json:"latency_score"`
	StabilityScore float64 `json:"stability_score"`
	LagScore       float64 `json:"lag_score"`

	LatencyMs      float64 `json:"latency_ms"`
	ReplicationLag uint64  `json:"replication_lag"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
	CrashCount     int     `json:"crash_count"`
}

// ScoreReplica computes the election score for one replica.
func ScoreReplica(rec collector.ReplicaRecord) (total, latency, stability, lag float64) {
	latency = 1.0 / (rec.LatencyMs + 1.0)
	// Each crash costs 100 seconds of demonstrated uptime
	stability = rec.UptimeSeconds / (rec.UptimeSeconds + float64(rec.CrashCount)*100.0 + 1.0)
	lag = 1.0 / (float64(rec.ReplicationLag) + 1.0)
	total = latencyWeight*latency + stabilityWeight*stability + lagWeight*lag
	return total, latency, stability, lag
}

// ElectLeader picks the healthy, non-excluded replica with the highest
// score. Ties break by replica id ascending. Pure over the snapshot:
// no I/O, same snapshot and exclusions always elect the same leader.
func ElectLeader(snap *collector.Snapshot, exclude []string) (*ElectionResult, error) {
	excluded := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}

	var best *ElectionResult
	for _, rec := range snap.Replicas {
		if !rec.IsHealthy || excluded[rec.ReplicaID] {
			continue
		}

		total, latency, stability, lag := ScoreReplica(rec)
		candidate := &ElectionResult{
			LeaderID:       rec.ReplicaID,
			Score:          total,
			LatencyScore:   latency,
			StabilityScore: stability,
			LagScore:       lag,
			LatencyMs:      rec.LatencyMs,
			ReplicationLag: rec.ReplicationLag,
			UptimeSeconds:  rec.UptimeSeconds,
			CrashCount:     rec.CrashCount,
		}

		// Snapshot order is id-ascending, so strict > keeps the
		// lowest id on ties.
		if best == nil || candidate.Score > best.Score {
			best = candidate
		}
	}

	if best == nil {
		return nil, ErrNoCandidates
	}
	return best, nil
}
