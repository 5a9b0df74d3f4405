package coordinator

import (
	"fmt"
	"sync"

	"github.com/dd0wney/cluso-sqlgate/pkg/config"
)

// ReplicationMode tags how changes propagate to replicas. This system
// rides the storage engine's streaming replication.
const ReplicationMode = "streaming"

// InstanceRef identifies one database instance in the topology.
type InstanceRef struct {
	ID   string `json:"id"`
	Host string `json:"host"`
}

// ClusterView is an immutable copy of the topology handed to readers.
// All fields are consistent with each other at the moment of the copy.
type ClusterView struct {
	MasterID         string        `json:"master_id"`
	MasterHost       string        `json:"master_host"`
	Replicas         []InstanceRef `json:"replicas"`
	MasterIsOriginal bool          `json:"master_is_original"`
	DemotedMaster    *InstanceRef  `json:"demoted_master,omitempty"`
	ReplicationMode  string        `json:"replication_mode"`
}

// ClusterState is the single owner of the current topology. Mutations
// happen only at failover transitions and are atomic: a reader never
// sees a master id paired with a replica set it does not belong to.
type ClusterState struct {
	mu sync.RWMutex

	masterID   string
	masterHost string
	replicas   []InstanceRef

	originalMasterID string
	demotedMaster    *InstanceRef
}

// NewClusterState builds the initial topology from configuration.
func NewClusterState(cluster config.ClusterConfig) *ClusterState {
	replicas := make([]InstanceRef, 0, len(cluster.Replicas))
	for _, r := range cluster.Replicas {
		replicas = append(replicas, InstanceRef{ID: r.ID, Host: r.Host})
	}

	return &ClusterState{
		masterID:         cluster.Master.ID,
		masterHost:       cluster.Master.Host,
		replicas:         replicas,
		originalMasterID: cluster.Master.ID,
	}
}

// View returns a consistent copy of the topology.
func (s *ClusterState) View() ClusterView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	replicas := make([]InstanceRef, len(s.replicas))
	copy(replicas, s.replicas)

	var demoted *InstanceRef
	if s.demotedMaster != nil {
		d := *s.demotedMaster
		demoted = &d
	}

	return ClusterView{
		MasterID:         s.masterID,
		MasterHost:       s.masterHost,
		Replicas:         replicas,
		MasterIsOriginal: s.masterID == s.originalMasterID,
		DemotedMaster:    demoted,
		ReplicationMode:  ReplicationMode,
	}
}

// Master returns the current master reference.
func (s *ClusterState) Master() InstanceRef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return InstanceRef{ID: s.masterID, Host: s.masterHost}
}

// PromoteReplica atomically makes the named replica the new master:
// it leaves the replica set, the old master is recorded as demoted,
// and both fields change under one critical section.
func (s *ClusterState) PromoteReplica(replicaID string) (InstanceRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, r := range s.replicas {
		if r.ID == replicaID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return InstanceRef{}, fmt.Errorf("replica %q not in current topology", replicaID)
	}

	oldMaster := InstanceRef{ID: s.masterID, Host: s.masterHost}
	promoted := s.replicas[idx]

	s.replicas = append(s.replicas[:idx], s.replicas[idx+1:]...)
	s.masterID = promoted.ID
	s.masterHost = promoted.Host
	s.demotedMaster = &oldMaster

	return oldMaster, nil
}

// AddReplica appends an instance to the replica set, typically an old
// master that finished rejoining. Clears the demoted marker if it
// matches.
func (s *ClusterState) AddReplica(ref InstanceRef) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.replicas {
		if r.ID == ref.ID {
			return
		}
	}
	s.replicas = append(s.replicas, ref)

	if s.demotedMaster != nil && s.demotedMaster.ID == ref.ID {
		s.demotedMaster = nil
	}
}

// DemotedMaster returns the old master awaiting rejoin, if any.
func (s *ClusterState) DemotedMaster() (InstanceRef, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.demotedMaster == nil {
		return InstanceRef{}, false
	}
	return *s.demotedMaster, true
}
