// Package timestamp implements the partitioned global-ordering counter.
// Each issuer owns one residue class (issuer i emits start, start+stride,
// start+2*stride, ...), so independent issuers never collide and any two
// issued values remain numerically comparable.
package timestamp

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dd0wney/cluso-sqlgate/pkg/metrics"
)

var (
	ErrCheckpointFailed = errors.New("counter checkpoint failed")
)

// Issuer hands out globally ordered timestamps from one residue class.
//
// Concurrent Safety:
// 1. The hot path is a single atomic add
// 2. Reservation extension is serialized by a mutex, re-checked under lock
// 3. A value is only ever issued while below the durable reservation mark
type Issuer struct {
	serverID int
	start    uint64
	stride   uint64
	reserve  uint64

	counter  atomic.Uint64 // next value to issue
	reserved atomic.Uint64 // first value NOT covered by the durable checkpoint

	mu         sync.Mutex
	checkpoint *Checkpoint

	registry *metrics.Registry
}

// IssuerConfig configures one issuer instance
type IssuerConfig struct {
	ServerID   int
	StartValue uint64
	Stride     uint64
	// CheckpointPath enables durable counter state. Empty disables it,
	// in which case a restart reissues from StartValue.
	CheckpointPath string
	// CheckpointReserve is the number of values covered per checkpoint write
	CheckpointReserve uint64
}

// NewIssuer creates an issuer, resuming from its checkpoint if one exists
func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	if cfg.Stride == 0 {
		return nil, fmt.Errorf("stride must be positive")
	}
	if cfg.StartValue == 0 || cfg.StartValue > cfg.Stride {
		return nil, fmt.Errorf("start value %d outside residue range [1,%d]", cfg.StartValue, cfg.Stride)
	}
	reserve := cfg.CheckpointReserve
	if reserve == 0 {
		reserve = 1000
	}

	iss := &Issuer{
		serverID: cfg.ServerID,
		start:    cfg.StartValue,
		stride:   cfg.Stride,
		reserve:  reserve,
		registry: metrics.DefaultRegistry(),
	}
	iss.counter.Store(cfg.StartValue)

	if cfg.CheckpointPath != "" {
		ckpt, err := OpenCheckpoint(cfg.CheckpointPath)
		if err != nil {
			return nil, err
		}
		iss.checkpoint = ckpt

		if resumed, ok := ckpt.Reserved(); ok {
			// Resume past everything the previous process may have issued
			iss.counter.Store(resumed)
			iss.reserved.Store(resumed)
		}
	}

	iss.registry.TimestampCounter.Set(float64(iss.counter.Load()))
	return iss, nil
}

// ServerID returns this issuer's identifier
func (i *Issuer) ServerID() int { return i.serverID }

// Current returns the next value this issuer would emit, without issuing it
func (i *Issuer) Current() uint64 {
	return i.counter.Load()
}

// Next issues the next timestamp in this issuer's residue class.
// A value is never handed out unless the durable reservation covers it,
// so a restart can never reissue it.
func (i *Issuer) Next() (uint64, error) {
	v := i.counter.Add(i.stride) - i.stride

	if i.checkpoint != nil && v >= i.reserved.Load() {
		if err := i.extendReservation(v); err != nil {
			return 0, err
		}
	}

	i.registry.TimestampsIssuedTotal.Inc()
	i.registry.TimestampCounter.Set(float64(v + i.stride))
	return v, nil
}

// extendReservation checkpoints a new reservation covering at least v
func (i *Issuer) extendReservation(v uint64) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	// Another caller may have extended while we waited for the lock
	if v < i.reserved.Load() {
		return nil
	}

	next := v + i.reserve*i.stride
	if err := i.checkpoint.Write(i.serverID, next); err != nil {
		return fmt.Errorf("%w: %v", ErrCheckpointFailed, err)
	}
	i.reserved.Store(next)
	i.registry.TimestampCheckpoints.Inc()
	return nil
}

// Reset rewinds the counter to its seed value. Used when clearing all data;
// the checkpoint is rewritten so the reset survives a restart.
func (i *Issuer) Reset() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.checkpoint != nil {
		if err := i.checkpoint.Write(i.serverID, i.start); err != nil {
			return fmt.Errorf("%w: %v", ErrCheckpointFailed, err)
		}
		i.reserved.Store(i.start)
	}
	i.counter.Store(i.start)
	i.registry.TimestampResetsTotal.Inc()
	i.registry.TimestampCounter.Set(float64(i.start))
	return nil
}
