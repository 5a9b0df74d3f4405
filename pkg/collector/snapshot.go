package collector

import (
	"encoding/json"
	"fmt"
	"time"
)

// SnapshotTopic prefixes every published snapshot frame so subscribers
// can filter on it.
const SnapshotTopic = "METRICS:"

// UnreachableLatencyMs is the sentinel latency recorded for a replica
// that failed its probe. It is far above any real round-trip and above
// the unhealthy threshold, so consumers rank unreachable replicas last
// without a special case.
const UnreachableLatencyMs = 9999.0

// ReplicaRecord is one replica's measured state within a snapshot.
type ReplicaRecord struct {
	ReplicaID      string    `json:"replica_id"`
	LatencyMs      float64   `json:"latency_ms"`
	ReplicationLag uint64    `json:"replication_lag"`
	UptimeSeconds  float64   `json:"uptime_seconds"`
	CrashCount     int       `json:"crash_count"`
	IsHealthy      bool      `json:"is_healthy"`
	LastUpdated    time.Time `json:"last_updated"`
}

// Snapshot is an immutable view of the cluster captured by one poll
// cycle. Replicas are ordered by replica id, so consumers that break
// ties by iteration order are deterministic.
type Snapshot struct {
	Replicas        []ReplicaRecord `json:"replicas"`
	MasterReachable bool            `json:"master_reachable"`
	MasterTimestamp uint64          `json:"master_timestamp"`
	CollectedAt     time.Time       `json:"collected_at"`
}

// Get returns the record for a replica id, or false if the snapshot
// does not contain it.
func (s *Snapshot) Get(replicaID string) (ReplicaRecord, bool) {
	for _, r := range s.Replicas {
		if r.ReplicaID == replicaID {
			return r, true
		}
	}
	return ReplicaRecord{}, false
}

// Healthy returns the subset of replicas currently considered healthy,
// preserving snapshot order.
func (s *Snapshot) Healthy() []ReplicaRecord {
	out := make([]ReplicaRecord, 0, len(s.Replicas))
	for _, r := range s.Replicas {
		if r.IsHealthy {
			out = append(out, r)
		}
	}
	return out
}

// Encode serializes a snapshot with its topic prefix for fan-out.
func (s *Snapshot) Encode() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return append([]byte(SnapshotTopic), data...), nil
}

// DecodeSnapshot parses a published frame back into a snapshot,
// stripping the topic prefix.
func DecodeSnapshot(frame []byte) (*Snapshot, error) {
	if len(frame) < len(SnapshotTopic) || string(frame[:len(SnapshotTopic)]) != SnapshotTopic {
		return nil, fmt.Errorf("frame missing %q topic prefix", SnapshotTopic)
	}

	var snap Snapshot
	if err := json.Unmarshal(frame[len(SnapshotTopic):], &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}
