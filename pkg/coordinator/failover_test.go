package coordinator

import (
	"context"
	"errors"
	"testing"

	"github.com/dd0wney/cluso-sqlgate/pkg/seer"
)

func TestTriggerFailoverPromotesElectedReplica(t *testing.T) {
	h := newHarness()
	h.elector.result = &seer.ElectionResult{LeaderID: "replica2", Score: 0.369}

	report, err := h.coordinator.Failover().TriggerFailover(context.Background(), "")
	if err != nil {
		t.Fatalf("TriggerFailover failed: %v", err)
	}

	if !report.Completed {
		t.Error("Report should be marked completed")
	}
	if report.NewMaster != "replica2" {
		t.Errorf("Expected replica2 as new master, got %s", report.NewMaster)
	}
	if report.OldMaster != "master" {
		t.Errorf("Expected master as old master, got %s", report.OldMaster)
	}
	if got := h.state.Master().ID; got != "replica2" {
		t.Errorf("Topology not updated, master is %s", got)
	}
	if !h.fleet["replica2"].writable {
		t.Error("Promoted replica should be writable")
	}
	if h.coordinator.Failover().Phase() != PhaseStable {
		t.Errorf("Machine should return to stable, got %s", h.coordinator.Failover().Phase())
	}

	// Every step in the completed run must have passed
	for _, step := range report.Steps {
		if !step.OK {
			t.Errorf("Step %s failed: %s", step.Phase, step.Detail)
		}
	}
}

func TestTriggerFailoverHonorsPreferredLeader(t *testing.T) {
	h := newHarness()
	// No election result configured; the preferred candidate must be
	// used without consulting the elector.
	h.elector.err = errors.New("elector should not be called")

	report, err := h.coordinator.Failover().TriggerFailover(context.Background(), "replica3")
	if err != nil {
		t.Fatalf("TriggerFailover failed: %v", err)
	}
	if report.NewMaster != "replica3" {
		t.Errorf("Expected replica3, got %s", report.NewMaster)
	}
	if got := h.state.Master().ID; got != "replica3" {
		t.Errorf("Topology not updated, master is %s", got)
	}
}

func TestTriggerFailoverRejectsUnknownPreferredLeader(t *testing.T) {
	h := newHarness()

	_, err := h.coordinator.Failover().TriggerFailover(context.Background(), "replica9")
	if err == nil {
		t.Fatal("Expected error for unknown preferred leader")
	}
	if got := h.state.Master().ID; got != "master" {
		t.Errorf("Topology must be untouched, master is %s", got)
	}
	if h.coordinator.Failover().Phase() != PhaseStable {
		t.Error("Machine should return to stable after abort")
	}
}

func TestTriggerFailoverRejectsConcurrentRun(t *testing.T) {
	h := newHarness()
	fm := h.coordinator.Failover()

	if err := fm.begin(PhaseElecting); err != nil {
		t.Fatalf("begin failed: %v", err)
	}

	_, err := fm.TriggerFailover(context.Background(), "")
	if !errors.Is(err, ErrFailoverInProgress) {
		t.Fatalf("Expected ErrFailoverInProgress, got %v", err)
	}

	fm.setPhase(PhaseStable)
}

func TestTriggerFailoverAbortsWhenElectionFails(t *testing.T) {
	h := newHarness()
	h.elector.err = seer.ErrNoCandidates

	report, err := h.coordinator.Failover().TriggerFailover(context.Background(), "")
	if err == nil {
		t.Fatal("Expected election failure")
	}
	if report.Completed {
		t.Error("Aborted run must not be marked completed")
	}
	if got := h.state.Master().ID; got != "master" {
		t.Errorf("Topology must be untouched, master is %s", got)
	}
	if h.coordinator.Failover().Phase() != PhaseStable {
		t.Error("Machine should return to stable after abort")
	}
}

func TestTriggerFailoverAbortsWhenPromotionFails(t *testing.T) {
	h := newHarness()
	h.elector.result = &seer.ElectionResult{LeaderID: "replica2", Score: 0.369}
	h.fleet["replica2"].promoteErr = errors.New("pg_promote failed")

	report, err := h.coordinator.Failover().TriggerFailover(context.Background(), "")
	if err == nil {
		t.Fatal("Expected promotion failure")
	}
	if report.Completed {
		t.Error("Aborted run must not be marked completed")
	}
	if got := h.state.Master().ID; got != "master" {
		t.Errorf("Topology must be untouched, master is %s", got)
	}

	lastStep := report.Steps[len(report.Steps)-1]
	if lastStep.Phase != PhasePromoting || lastStep.OK {
		t.Errorf("Last step should be a failed promotion, got %+v", lastStep)
	}
}

func TestPromoteLeaderDemotesOldMasterInPlace(t *testing.T) {
	h := newHarness()

	report, err := h.coordinator.Failover().PromoteLeader(context.Background(), "replica1")
	if err != nil {
		t.Fatalf("PromoteLeader failed: %v", err)
	}

	if report.NewMaster != "replica1" {
		t.Errorf("Expected replica1, got %s", report.NewMaster)
	}
	if got := h.state.Master().ID; got != "replica1" {
		t.Errorf("Topology not updated, master is %s", got)
	}

	// Old master rejoins the replica set following the new leader
	old := h.fleet["master"]
	old.mu.Lock()
	demotedTo := old.demotedTo
	old.mu.Unlock()
	if demotedTo != "db-replica1:5432" {
		t.Errorf("Old master should follow db-replica1:5432, followed %q", demotedTo)
	}

	view := h.state.View()
	found := false
	for _, r := range view.Replicas {
		if r.ID == "master" {
			found = true
		}
	}
	if !found {
		t.Error("Old master should be back in the replica set")
	}
}

func TestRejoinOldMasterAfterFailover(t *testing.T) {
	h := newHarness()
	h.elector.result = &seer.ElectionResult{LeaderID: "replica2", Score: 0.369}

	if _, err := h.coordinator.Failover().TriggerFailover(context.Background(), ""); err != nil {
		t.Fatalf("TriggerFailover failed: %v", err)
	}

	report, err := h.coordinator.Failover().RejoinOldMaster(context.Background())
	if err != nil {
		t.Fatalf("RejoinOldMaster failed: %v", err)
	}
	if !report.Completed {
		t.Error("Rejoin should complete")
	}

	old := h.fleet["master"]
	old.mu.Lock()
	demotedTo := old.demotedTo
	old.mu.Unlock()
	if demotedTo != "db-replica2:5432" {
		t.Errorf("Rejoined master should follow db-replica2:5432, followed %q", demotedTo)
	}

	view := h.state.View()
	if view.DemotedMaster != nil {
		t.Errorf("Demoted marker should be cleared, got %+v", view.DemotedMaster)
	}
	found := false
	for _, r := range view.Replicas {
		if r.ID == "master" {
			found = true
		}
	}
	if !found {
		t.Error("Rejoined master should appear in the replica set")
	}
}

func TestRejoinWithoutDemotedMaster(t *testing.T) {
	h := newHarness()

	if _, err := h.coordinator.Failover().RejoinOldMaster(context.Background()); err == nil {
		t.Fatal("Expected error when no master was demoted")
	}
}

func TestWaitWritableTimesOut(t *testing.T) {
	h := newHarness()
	fm := h.coordinator.Failover()

	// An instance that never reports itself writable
	readonly := &mockDB{id: "replica9", host: "db-replica9:5432"}
	if err := fm.waitWritable(context.Background(), readonly); err == nil {
		t.Fatal("Expected timeout waiting for writability")
	}
}

func TestLastElectionRecorded(t *testing.T) {
	h := newHarness()
	h.elector.result = &seer.ElectionResult{LeaderID: "replica2", Score: 0.421}

	if _, err := h.coordinator.Failover().TriggerFailover(context.Background(), ""); err != nil {
		t.Fatalf("TriggerFailover failed: %v", err)
	}

	last := h.coordinator.Failover().LastElection()
	if last == nil || last.LeaderID != "replica2" {
		t.Fatalf("Expected recorded election for replica2, got %+v", last)
	}
}
