package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.nanomsg.org/mangos/v3"

	"github.com/dd0wney/cluso-sqlgate/pkg/config"
	"github.com/dd0wney/cluso-sqlgate/pkg/metrics"
)

// stubTarget is a scriptable instance for poll tests.
type stubTarget struct {
	id       string
	rtt      time.Duration
	applied  uint64
	probeErr error
	tsErr    error
}

func (s *stubTarget) ID() string { return s.id }

func (s *stubTarget) Probe(ctx context.Context) (time.Duration, error) {
	return s.rtt, s.probeErr
}

func (s *stubTarget) AppliedTimestamp(ctx context.Context) (uint64, error) {
	return s.applied, s.tsErr
}

func testConfig() config.CollectorConfig {
	return config.CollectorConfig{
		ListenAddr:         ":0",
		PollInterval:       config.Duration(time.Second),
		ProbeTimeout:       config.Duration(time.Second),
		UnhealthyLatencyMs: 5000,
	}
}

func TestPollComputesLagAndHealth(t *testing.T) {
	master := &stubTarget{id: "master", applied: 100}
	replicas := []Target{
		&stubTarget{id: "replica1", rtt: 7 * time.Millisecond, applied: 100},
		&stubTarget{id: "replica2", rtt: 10 * time.Millisecond, applied: 98},
	}

	c := New(master, replicas, testConfig(), nil, nil)
	c.pollOnce()

	snap := c.GetSnapshot()
	if snap == nil {
		t.Fatal("Expected snapshot after poll")
	}
	if !snap.MasterReachable {
		t.Error("Expected master to be reachable")
	}
	if snap.MasterTimestamp != 100 {
		t.Errorf("Expected master timestamp 100, got %d", snap.MasterTimestamp)
	}

	r1, ok := snap.Get("replica1")
	if !ok {
		t.Fatal("Missing replica1")
	}
	if r1.ReplicationLag != 0 {
		t.Errorf("Expected lag 0 for replica1, got %d", r1.ReplicationLag)
	}
	if !r1.IsHealthy {
		t.Error("Expected replica1 healthy")
	}
	if r1.LatencyMs < 6.9 || r1.LatencyMs > 7.1 {
		t.Errorf("Expected ~7ms latency, got %f", r1.LatencyMs)
	}

	r2, _ := snap.Get("replica2")
	if r2.ReplicationLag != 2 {
		t.Errorf("Expected lag 2 for replica2, got %d", r2.ReplicationLag)
	}
}

func TestPollUnreachableReplicaGetsSentinel(t *testing.T) {
	master := &stubTarget{id: "master", applied: 50}
	replicas := []Target{
		&stubTarget{id: "replica1", probeErr: errors.New("connection refused")},
	}

	c := New(master, replicas, testConfig(), nil, nil)
	c.pollOnce()

	rec, ok := c.GetSnapshot().Get("replica1")
	if !ok {
		t.Fatal("Missing replica1")
	}
	if rec.LatencyMs != UnreachableLatencyMs {
		t.Errorf("Expected sentinel latency %f, got %f", UnreachableLatencyMs, rec.LatencyMs)
	}
	if rec.IsHealthy {
		t.Error("Unreachable replica must be unhealthy")
	}
	if rec.UptimeSeconds != 0 {
		t.Errorf("Unhealthy replica uptime should be 0, got %f", rec.UptimeSeconds)
	}
}

func TestPollTimestampFailureIsUnhealthy(t *testing.T) {
	master := &stubTarget{id: "master", applied: 50}
	replicas := []Target{
		&stubTarget{id: "replica1", rtt: time.Millisecond, tsErr: errors.New("relation missing")},
	}

	c := New(master, replicas, testConfig(), nil, nil)
	c.pollOnce()

	rec, _ := c.GetSnapshot().Get("replica1")
	if rec.IsHealthy {
		t.Error("Replica without readable applied timestamp must be unhealthy")
	}
	if rec.LatencyMs != UnreachableLatencyMs {
		t.Errorf("Expected sentinel latency, got %f", rec.LatencyMs)
	}
}

func TestCrashCountIncrementsOnTransition(t *testing.T) {
	master := &stubTarget{id: "master", applied: 10}
	replica := &stubTarget{id: "replica1", rtt: time.Millisecond}

	c := New(master, []Target{replica}, testConfig(), nil, nil)

	c.pollOnce()
	rec, _ := c.GetSnapshot().Get("replica1")
	if rec.CrashCount != 0 {
		t.Errorf("Expected crash count 0, got %d", rec.CrashCount)
	}

	// Healthy -> unhealthy counts as one crash
	replica.probeErr = errors.New("down")
	c.pollOnce()
	rec, _ = c.GetSnapshot().Get("replica1")
	if rec.CrashCount != 1 {
		t.Errorf("Expected crash count 1 after transition, got %d", rec.CrashCount)
	}

	// Staying unhealthy does not count again
	c.pollOnce()
	rec, _ = c.GetSnapshot().Get("replica1")
	if rec.CrashCount != 1 {
		t.Errorf("Expected crash count to stay 1, got %d", rec.CrashCount)
	}

	// Recovery restarts the uptime clock but keeps the crash count
	replica.probeErr = nil
	c.pollOnce()
	rec, _ = c.GetSnapshot().Get("replica1")
	if rec.CrashCount != 1 {
		t.Errorf("Expected crash count 1 after recovery, got %d", rec.CrashCount)
	}
	if !rec.IsHealthy {
		t.Error("Expected replica healthy after recovery")
	}
	if rec.UptimeSeconds > 1.0 {
		t.Errorf("Expected uptime clock restarted, got %f", rec.UptimeSeconds)
	}
}

func TestMasterUnreachableMarksSnapshot(t *testing.T) {
	master := &stubTarget{id: "master", probeErr: errors.New("down")}
	replicas := []Target{&stubTarget{id: "replica1", rtt: time.Millisecond, applied: 40}}

	c := New(master, replicas, testConfig(), nil, nil)
	c.pollOnce()

	snap := c.GetSnapshot()
	if snap.MasterReachable {
		t.Error("Expected master unreachable")
	}
	if snap.MasterTimestamp != 0 {
		t.Errorf("Expected zero master timestamp, got %d", snap.MasterTimestamp)
	}

	// A replica ahead of an unknown master position reports no lag
	rec, _ := snap.Get("replica1")
	if rec.ReplicationLag != 0 {
		t.Errorf("Expected lag 0 with unreachable master, got %d", rec.ReplicationLag)
	}
}

func TestSnapshotOrderedByReplicaID(t *testing.T) {
	master := &stubTarget{id: "master", applied: 10}
	replicas := []Target{
		&stubTarget{id: "replica3", rtt: time.Millisecond},
		&stubTarget{id: "replica1", rtt: time.Millisecond},
		&stubTarget{id: "replica2", rtt: time.Millisecond},
	}

	c := New(master, replicas, testConfig(), nil, nil)
	c.pollOnce()

	snap := c.GetSnapshot()
	want := []string{"replica1", "replica2", "replica3"}
	for i, id := range want {
		if snap.Replicas[i].ReplicaID != id {
			t.Errorf("Position %d: expected %s, got %s", i, id, snap.Replicas[i].ReplicaID)
		}
	}
}

func TestSnapshotEncodeDecode(t *testing.T) {
	snap := &Snapshot{
		Replicas: []ReplicaRecord{
			{ReplicaID: "replica1", LatencyMs: 6.38, ReplicationLag: 0, IsHealthy: true},
		},
		MasterReachable: true,
		MasterTimestamp: 42,
		CollectedAt:     time.Now().UTC(),
	}

	frame, err := snap.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if string(frame[:len(SnapshotTopic)]) != SnapshotTopic {
		t.Errorf("Frame missing topic prefix")
	}

	decoded, err := DecodeSnapshot(frame)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.MasterTimestamp != 42 {
		t.Errorf("Expected master timestamp 42, got %d", decoded.MasterTimestamp)
	}
	rec, ok := decoded.Get("replica1")
	if !ok || rec.LatencyMs != 6.38 {
		t.Errorf("Replica record did not survive round trip: %+v", rec)
	}

	if _, err := DecodeSnapshot([]byte("OTHER:{}")); err == nil {
		t.Error("Expected error for wrong topic prefix")
	}
}

// fakePubSocket records published frames.
type fakePubSocket struct {
	frames  [][]byte
	sendErr error
}

func (f *fakePubSocket) Listen(addr string) error { return nil }
func (f *fakePubSocket) Close() error             { return nil }
func (f *fakePubSocket) Send(data []byte) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.frames = append(f.frames, data)
	return nil
}

func TestPublisherSendsTopicFrames(t *testing.T) {
	sock := &fakePubSocket{}
	p := newPublisherWithSocket(sock, "inproc://test")

	snap := &Snapshot{MasterReachable: true, MasterTimestamp: 7}
	if err := p.Publish(snap); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if len(sock.frames) != 1 {
		t.Fatalf("Expected 1 frame, got %d", len(sock.frames))
	}
	decoded, err := DecodeSnapshot(sock.frames[0])
	if err != nil {
		t.Fatalf("Published frame not decodable: %v", err)
	}
	if decoded.MasterTimestamp != 7 {
		t.Errorf("Expected master timestamp 7, got %d", decoded.MasterTimestamp)
	}
}

func TestSubscriberGaugeTracksPipeEvents(t *testing.T) {
	gauge := metrics.DefaultRegistry().SnapshotSubscribersTotal
	base := testutil.ToFloat64(gauge)

	trackSubscriber(mangos.PipeEventAttached)
	trackSubscriber(mangos.PipeEventAttached)
	if got := testutil.ToFloat64(gauge); got != base+2 {
		t.Errorf("Expected gauge %v after two attaches, got %v", base+2, got)
	}

	trackSubscriber(mangos.PipeEventDetached)
	if got := testutil.ToFloat64(gauge); got != base+1 {
		t.Errorf("Expected gauge %v after detach, got %v", base+1, got)
	}

	// Attaching is not attached yet; the gauge must not move.
	trackSubscriber(mangos.PipeEventAttaching)
	if got := testutil.ToFloat64(gauge); got != base+1 {
		t.Errorf("Expected gauge unchanged on attaching event, got %v", got)
	}

	trackSubscriber(mangos.PipeEventDetached)
}
