package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dd0wney/cluso-sqlgate/pkg/config"
	"github.com/dd0wney/cluso-sqlgate/pkg/logging"
	"github.com/dd0wney/cluso-sqlgate/pkg/metrics"
	"github.com/dd0wney/cluso-sqlgate/pkg/seer"
)

// Failover phases. The phase value itself is the mutual exclusion:
// any request arriving while the machine is not stable is rejected,
// never queued.
const (
	PhaseStable    = "stable"
	PhaseSuspected = "suspected"
	PhaseElecting  = "electing"
	PhasePromoting = "promoting"
	PhaseRejoining = "rejoining"
)

// StepReport records one observable step of a failover run, so an
// operator can see exactly which phase failed.
type StepReport struct {
	Phase      string  `json:"phase"`
	OK         bool    `json:"ok"`
	Detail     string  `json:"detail"`
	DurationMs float64 `json:"duration_ms"`
}

// FailoverReport is the full outcome of one failover or rejoin run.
type FailoverReport struct {
	Completed bool                 `json:"completed"`
	NewMaster string               `json:"new_master,omitempty"`
	OldMaster string               `json:"old_master,omitempty"`
	Election  *seer.ElectionResult `json:"election,omitempty"`
	Steps     []StepReport         `json:"steps"`
}

func (r *FailoverReport) addStep(phase string, ok bool, detail string, started time.Time) {
	r.Steps = append(r.Steps, StepReport{
		Phase:      phase,
		OK:         ok,
		Detail:     detail,
		DurationMs: float64(time.Since(started).Microseconds()) / 1000.0,
	})
}

// FailoverManager runs the failover state machine. One run at a time;
// topology changes exactly once, at the promoting step's end.
type FailoverManager struct {
	mu    sync.Mutex
	phase string

	cfg     config.CoordinatorConfig
	fleet   Fleet
	state   *ClusterState
	elector leaderElector
	procs   ProcessController

	lastElection *seer.ElectionResult

	registry *metrics.Registry
	logger   logging.Logger
}

// NewFailoverManager creates the state machine in the stable phase.
func NewFailoverManager(cfg config.CoordinatorConfig, fleet Fleet, state *ClusterState,
	elector leaderElector, procs ProcessController) *FailoverManager {

	m := &FailoverManager{
		phase:    PhaseStable,
		cfg:      cfg,
		fleet:    fleet,
		state:    state,
		elector:  elector,
		procs:    procs,
		registry: metrics.DefaultRegistry(),
		logger:   logging.With(logging.Component("failover")),
	}
	m.registry.SetFailoverPhase(PhaseStable)
	return m
}

// Phase returns the current phase.
func (m *FailoverManager) Phase() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// LastElection returns the most recent election result, if any.
func (m *FailoverManager) LastElection() *seer.ElectionResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastElection
}

// begin moves stable -> first, rejecting concurrent runs.
func (m *FailoverManager) begin(first string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != PhaseStable {
		return fmt.Errorf("%w: currently %s", ErrFailoverInProgress, m.phase)
	}
	m.phase = first
	m.registry.SetFailoverPhase(first)
	return nil
}

func (m *FailoverManager) setPhase(phase string) {
	m.mu.Lock()
	m.phase = phase
	m.mu.Unlock()
	m.registry.SetFailoverPhase(phase)
	m.logger.Info("Failover phase changed", logging.Phase(phase))
}

// TriggerFailover runs the full path: suspect the master, stop its
// process, elect a successor (preferred overrides the election), and
// promote it. On any failure the machine returns to stable with the
// topology untouched and the report shows the failed step.
func (m *FailoverManager) TriggerFailover(ctx context.Context, preferred string) (*FailoverReport, error) {
	if err := m.begin(PhaseSuspected); err != nil {
		return nil, err
	}

	started := time.Now()
	oldMaster := m.state.Master()
	report := &FailoverReport{OldMaster: oldMaster.ID}

	// Suspected: take the failed master's process down so it cannot
	// accept writes while a successor is promoted.
	stepStart := time.Now()
	if err := m.procs.Stop(ctx, oldMaster.ID); err != nil {
		// The process may already be dead; record and continue
		report.addStep(PhaseSuspected, true, "stop attempt: "+err.Error(), stepStart)
	} else {
		report.addStep(PhaseSuspected, true, "master "+oldMaster.ID+" stopped", stepStart)
	}

	if err := m.runElection(ctx, report, preferred, []string{oldMaster.ID}); err != nil {
		m.abort(report, started)
		return report, err
	}

	if err := m.promote(ctx, report); err != nil {
		m.abort(report, started)
		return report, err
	}

	m.finish(report, started)
	return report, nil
}

// PromoteLeader is the graceful elect-only path for planned leadership
// transfer: no process is stopped, the machine goes straight to
// electing, and the old master is demoted into the replica set.
func (m *FailoverManager) PromoteLeader(ctx context.Context, newLeader string) (*FailoverReport, error) {
	if err := m.begin(PhaseElecting); err != nil {
		return nil, err
	}

	started := time.Now()
	oldMaster := m.state.Master()
	report := &FailoverReport{OldMaster: oldMaster.ID}

	if err := m.runElection(ctx, report, newLeader, []string{oldMaster.ID}); err != nil {
		m.abort(report, started)
		return report, err
	}

	if err := m.promote(ctx, report); err != nil {
		m.abort(report, started)
		return report, err
	}

	// Demote the old master in place so it follows the new one
	stepStart := time.Now()
	newMaster := m.state.Master()
	if old, err := m.fleet.Get(oldMaster.ID); err == nil {
		if err := old.Demote(ctx, newMaster.Host); err != nil {
			report.addStep(PhaseRejoining, false, "demotion failed: "+err.Error(), stepStart)
		} else {
			m.state.AddReplica(oldMaster)
			report.addStep(PhaseRejoining, true, oldMaster.ID+" demoted to replica", stepStart)
		}
	} else {
		report.addStep(PhaseRejoining, false, "old master not connected: "+err.Error(), stepStart)
	}

	m.finish(report, started)
	return report, nil
}

// RejoinOldMaster brings a demoted master back as a replica of the
// current master: start its process, wait until it answers, and point
// its replication at the new master.
func (m *FailoverManager) RejoinOldMaster(ctx context.Context) (*FailoverReport, error) {
	demoted, ok := m.state.DemotedMaster()
	if !ok {
		return nil, fmt.Errorf("no demoted master to rejoin")
	}

	if err := m.begin(PhaseRejoining); err != nil {
		return nil, err
	}

	started := time.Now()
	report := &FailoverReport{OldMaster: demoted.ID, NewMaster: m.state.Master().ID}

	stepStart := time.Now()
	if err := m.procs.Start(ctx, demoted.ID); err != nil {
		report.addStep(PhaseRejoining, false, "start failed: "+err.Error(), stepStart)
		m.abort(report, started)
		return report, fmt.Errorf("failed to start %s: %w", demoted.ID, err)
	}
	report.addStep(PhaseRejoining, true, demoted.ID+" process started", stepStart)

	stepStart = time.Now()
	db, err := m.waitReachable(ctx, demoted.ID)
	if err != nil {
		report.addStep(PhaseRejoining, false, "never became reachable: "+err.Error(), stepStart)
		m.abort(report, started)
		return report, err
	}
	report.addStep(PhaseRejoining, true, demoted.ID+" reachable", stepStart)

	stepStart = time.Now()
	if err := db.Demote(ctx, m.state.Master().Host); err != nil {
		report.addStep(PhaseRejoining, false, "demotion failed: "+err.Error(), stepStart)
		m.abort(report, started)
		return report, err
	}
	m.state.AddReplica(demoted)
	report.addStep(PhaseRejoining, true, demoted.ID+" following "+m.state.Master().ID, stepStart)

	m.finish(report, started)
	return report, nil
}

// runElection fills report.Election, preferring an explicit candidate.
func (m *FailoverManager) runElection(ctx context.Context, report *FailoverReport,
	preferred string, exclude []string) error {

	m.setPhase(PhaseElecting)
	stepStart := time.Now()

	if preferred != "" {
		view := m.state.View()
		for _, r := range view.Replicas {
			if r.ID == preferred {
				report.Election = &seer.ElectionResult{LeaderID: preferred}
				report.addStep(PhaseElecting, true, "operator chose "+preferred, stepStart)
				return nil
			}
		}
		err := fmt.Errorf("preferred leader %q not in replica set", preferred)
		report.addStep(PhaseElecting, false, err.Error(), stepStart)
		return err
	}

	result, err := m.elector.ElectLeader(ctx, exclude)
	if err != nil {
		report.addStep(PhaseElecting, false, err.Error(), stepStart)
		return err
	}

	m.mu.Lock()
	m.lastElection = result
	m.mu.Unlock()

	report.Election = result
	report.addStep(PhaseElecting, true,
		fmt.Sprintf("%s elected with score %.3f", result.LeaderID, result.Score), stepStart)
	return nil
}

// promote reconfigures the elected replica as master and commits the
// topology change. The ClusterState update is the single atomic point
// where the switch becomes visible.
func (m *FailoverManager) promote(ctx context.Context, report *FailoverReport) error {
	m.setPhase(PhasePromoting)
	stepStart := time.Now()

	candidate := report.Election.LeaderID
	db, err := m.fleet.Get(candidate)
	if err != nil {
		report.addStep(PhasePromoting, false, "candidate not connected: "+err.Error(), stepStart)
		return fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}

	if err := db.Promote(ctx); err != nil {
		report.addStep(PhasePromoting, false, "promotion failed: "+err.Error(), stepStart)
		return err
	}

	if err := m.waitWritable(ctx, db); err != nil {
		report.addStep(PhasePromoting, false, "never became writable: "+err.Error(), stepStart)
		return err
	}

	if _, err := m.state.PromoteReplica(candidate); err != nil {
		report.addStep(PhasePromoting, false, err.Error(), stepStart)
		return err
	}

	report.NewMaster = candidate
	report.addStep(PhasePromoting, true, candidate+" is now master", stepStart)
	return nil
}

// waitWritable polls until the instance accepts writes. A condition
// check, not a fixed sleep: promotion time varies with load.
func (m *FailoverManager) waitWritable(ctx context.Context, db DB) error {
	deadline := time.Now().Add(m.cfg.DependencyTimeout.Std())
	interval := m.cfg.QuorumPollInterval.Std()

	for {
		writable, err := db.IsWritable(ctx)
		if err == nil && writable {
			return nil
		}
		if time.Now().After(deadline) {
			if err != nil {
				return fmt.Errorf("writability check: %w", err)
			}
			return fmt.Errorf("instance %s still read-only after %s", db.ID(), m.cfg.DependencyTimeout.Std())
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// waitReachable polls until the instance answers a writability check
// at all, regardless of the answer.
func (m *FailoverManager) waitReachable(ctx context.Context, id string) (DB, error) {
	deadline := time.Now().Add(m.cfg.DependencyTimeout.Std())
	interval := m.cfg.QuorumPollInterval.Std()

	for {
		db, err := m.fleet.Get(id)
		if err == nil {
			if _, herr := db.IsWritable(ctx); herr == nil {
				return db, nil
			}
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("instance %s unreachable after %s", id, m.cfg.DependencyTimeout.Std())
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}

func (m *FailoverManager) abort(report *FailoverReport, started time.Time) {
	m.setPhase(PhaseStable)
	m.registry.FailoversTotal.WithLabelValues("failed").Inc()
	m.registry.FailoverDuration.Observe(time.Since(started).Seconds())
	m.logger.Error("Failover aborted", logging.Count(len(report.Steps)))
}

func (m *FailoverManager) finish(report *FailoverReport, started time.Time) {
	report.Completed = true
	m.setPhase(PhaseStable)
	m.registry.FailoversTotal.WithLabelValues("completed").Inc()
	m.registry.FailoverDuration.Observe(time.Since(started).Seconds())
	m.logger.Info("Failover completed",
		logging.InstanceID(report.NewMaster),
		logging.Latency(time.Since(started)))
}
