package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dd0wney/cluso-sqlgate/pkg/config"
)

var (
	ErrInstanceNotFound = errors.New("instance not found in fleet")
)

// Fleet holds the clients for every known database instance, master included.
// It is the single place that maps instance ids and hosts to connections.
type Fleet struct {
	mu        sync.RWMutex
	instances map[string]*Instance
	byHost    map[string]*Instance
}

// NewFleet connects to every instance in the cluster configuration.
// Instances that cannot be reached at startup are skipped; they can be
// added later via Add once they come back.
func NewFleet(ctx context.Context, cluster config.ClusterConfig) (*Fleet, error) {
	f := &Fleet{
		instances: make(map[string]*Instance),
		byHost:    make(map[string]*Instance),
	}

	all := append([]config.InstanceConfig{cluster.Master}, cluster.Replicas...)
	var connected int
	for _, ic := range all {
		inst, err := Connect(ctx, ic)
		if err != nil {
			continue
		}
		f.instances[inst.ID()] = inst
		f.byHost[inst.Host()] = inst
		connected++
	}

	if connected == 0 {
		return nil, fmt.Errorf("no database instances reachable")
	}

	return f, nil
}

// NewFleetFromInstances builds a fleet from pre-built instances; used by tests
func NewFleetFromInstances(instances ...*Instance) *Fleet {
	f := &Fleet{
		instances: make(map[string]*Instance),
		byHost:    make(map[string]*Instance),
	}
	for _, inst := range instances {
		f.instances[inst.ID()] = inst
		f.byHost[inst.Host()] = inst
	}
	return f
}

// Get returns the instance with the given id
func (f *Fleet) Get(id string) (*Instance, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	inst, ok := f.instances[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
	}
	return inst, nil
}

// GetByHost returns the instance with the given host descriptor
func (f *Fleet) GetByHost(host string) (*Instance, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	inst, ok := f.byHost[host]
	if !ok {
		return nil, fmt.Errorf("%w: host %s", ErrInstanceNotFound, host)
	}
	return inst, nil
}

// Add registers (or replaces) an instance client
func (f *Fleet) Add(inst *Instance) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if old, ok := f.instances[inst.ID()]; ok && old != inst {
		old.Close()
	}
	f.instances[inst.ID()] = inst
	f.byHost[inst.Host()] = inst
}

// IDs returns all known instance ids
func (f *Fleet) IDs() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	ids := make([]string, 0, len(f.instances))
	for id := range f.instances {
		ids = append(ids, id)
	}
	return ids
}

// Close releases every instance pool
func (f *Fleet) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, inst := range f.instances {
		inst.Close()
	}
}
