// Package cabinet picks the set of replicas a strongly consistent
// write must be confirmed on. The selection is adaptive: faster and
// fresher replicas are preferred, so the quorum wait tracks the best
// replicas the cluster currently has rather than a fixed member list.
package cabinet

import (
	"sort"

	"github.com/dd0wney/cluso-sqlgate/pkg/collector"
)

// Selection is the quorum chosen for one write. Recomputed fresh per
// call so it always reflects the snapshot it was given.
type Selection struct {
	Quorum        []string `json:"quorum"`
	QuorumSize    int      `json:"quorum_size"`
	TotalReplicas int      `json:"total_replicas"`
	// Satisfied is false when fewer healthy replicas exist than the
	// nominal quorum size. The caller decides whether that is fatal.
	Satisfied bool               `json:"satisfied"`
	Weights   map[string]float64 `json:"weights,omitempty"`
}

// RequiredSize is the quorum size for a given healthy replica count:
// a majority of healthy+1, so confirmation always needs more than
// half the voting set even when the count is even.
func RequiredSize(healthy int) int {
	return (healthy + 2) / 2
}

// Weight scores one replica for quorum membership. Lower latency and
// lower lag both push the weight toward 1; an idle local replica
// scores 1/(0+0+1) = 1 exactly.
func Weight(rec collector.ReplicaRecord) float64 {
	return 1.0 / (rec.LatencyMs + float64(rec.ReplicationLag) + 1.0)
}

// SelectQuorum computes the quorum for the given snapshot: healthy
// replicas ranked by weight descending, ties broken by replica id
// ascending, taken up to ceil((healthy+1)/2). Pure over the snapshot,
// no I/O, so the same snapshot always yields the same selection.
func SelectQuorum(snap *collector.Snapshot) Selection {
	healthy := snap.Healthy()

	type candidate struct {
		id     string
		weight float64
	}
	candidates := make([]candidate, 0, len(healthy))
	weights := make(map[string]float64, len(healthy))
	for _, rec := range healthy {
		w := Weight(rec)
		candidates = append(candidates, candidate{id: rec.ReplicaID, weight: w})
		weights[rec.ReplicaID] = w
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].weight != candidates[j].weight {
			return candidates[i].weight > candidates[j].weight
		}
		return candidates[i].id < candidates[j].id
	})

	required := RequiredSize(len(healthy))

	take := required
	satisfied := true
	if take > len(candidates) {
		take = len(candidates)
		satisfied = false
	}

	quorum := make([]string, 0, take)
	for _, c := range candidates[:take] {
		quorum = append(quorum, c.id)
	}

	return Selection{
		Quorum:        quorum,
		QuorumSize:    required,
		TotalReplicas: len(snap.Replicas),
		Satisfied:     satisfied,
		Weights:       weights,
	}
}
