package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry() returned nil")
	}

	if r.HTTPRequestsTotal == nil {
		t.Error("HTTPRequestsTotal not initialized")
	}
	if r.QueriesTotal == nil {
		t.Error("QueriesTotal not initialized")
	}
	if r.ReplicaLag == nil {
		t.Error("ReplicaLag not initialized")
	}
	if r.TimestampsIssuedTotal == nil {
		t.Error("TimestampsIssuedTotal not initialized")
	}
	if r.ClusterElectionsTotal == nil {
		t.Error("ClusterElectionsTotal not initialized")
	}
	if r.registry == nil {
		t.Error("Prometheus registry not initialized")
	}
}

func TestDefaultRegistry(t *testing.T) {
	r1 := DefaultRegistry()
	r2 := DefaultRegistry()

	if r1 != r2 {
		t.Error("DefaultRegistry() should return the same instance")
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	r := NewRegistry()

	r.RecordHTTPRequest("POST", "/query", "200", 100*time.Millisecond)
	r.RecordHTTPRequest("POST", "/query", "200", 50*time.Millisecond)

	got := testutil.ToFloat64(r.HTTPRequestsTotal.WithLabelValues("POST", "/query", "200"))
	if got != 2 {
		t.Errorf("Expected 2 recorded requests, got %v", got)
	}
}

func TestRecordQuorumConfirmation(t *testing.T) {
	r := NewRegistry()

	r.RecordQuorumConfirmation(true, 20*time.Millisecond)
	r.RecordQuorumConfirmation(false, 5*time.Second)

	confirmed := testutil.ToFloat64(r.WriteQuorumConfirmState.WithLabelValues("confirmed"))
	unconfirmed := testutil.ToFloat64(r.WriteQuorumConfirmState.WithLabelValues("unconfirmed"))
	if confirmed != 1 || unconfirmed != 1 {
		t.Errorf("Expected 1 confirmed / 1 unconfirmed, got %v / %v", confirmed, unconfirmed)
	}
}

func TestUpdateReplicaMetrics(t *testing.T) {
	r := NewRegistry()

	r.UpdateReplicaMetrics("replica-2", 6.38, 3, true)

	if got := testutil.ToFloat64(r.ReplicaLatencyMs.WithLabelValues("replica-2")); got != 6.38 {
		t.Errorf("Expected latency 6.38, got %v", got)
	}
	if got := testutil.ToFloat64(r.ReplicaLag.WithLabelValues("replica-2")); got != 3 {
		t.Errorf("Expected lag 3, got %v", got)
	}
	if got := testutil.ToFloat64(r.ReplicaHealthy.WithLabelValues("replica-2")); got != 1 {
		t.Errorf("Expected healthy 1, got %v", got)
	}

	r.UpdateReplicaMetrics("replica-2", 9999, 3, false)
	if got := testutil.ToFloat64(r.ReplicaHealthy.WithLabelValues("replica-2")); got != 0 {
		t.Errorf("Expected healthy 0 after unhealthy update, got %v", got)
	}
}

func TestSetFailoverPhase(t *testing.T) {
	r := NewRegistry()

	r.SetFailoverPhase("electing")

	if got := testutil.ToFloat64(r.FailoverPhase.WithLabelValues("electing")); got != 1 {
		t.Errorf("Expected electing phase gauge 1, got %v", got)
	}
	if got := testutil.ToFloat64(r.FailoverPhase.WithLabelValues("stable")); got != 0 {
		t.Errorf("Expected stable phase gauge 0, got %v", got)
	}

	r.SetFailoverPhase("stable")
	if got := testutil.ToFloat64(r.FailoverPhase.WithLabelValues("electing")); got != 0 {
		t.Errorf("Expected electing phase gauge reset to 0, got %v", got)
	}
}

func TestUpdateClusterMetrics(t *testing.T) {
	r := NewRegistry()

	r.UpdateClusterMetrics(3, 2, false)

	if got := testutil.ToFloat64(r.ClusterReplicasTotal); got != 3 {
		t.Errorf("Expected 3 replicas, got %v", got)
	}
	if got := testutil.ToFloat64(r.ClusterHealthyReplicasTotal); got != 2 {
		t.Errorf("Expected 2 healthy replicas, got %v", got)
	}
	if got := testutil.ToFloat64(r.ClusterMasterIsOriginal); got != 0 {
		t.Errorf("Expected master_is_original 0, got %v", got)
	}
}
