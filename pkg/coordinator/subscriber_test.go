package coordinator

import (
	"errors"
	"sync"
	"testing"
	"time"

	"go.nanomsg.org/mangos/v3"

	"github.com/dd0wney/cluso-sqlgate/pkg/collector"
)

// fakeSubSocket feeds scripted frames to the receive loop.
type fakeSubSocket struct {
	mu      sync.Mutex
	frames  [][]byte
	dialed  string
	options map[string]any
	closed  bool
}

func newFakeSubSocket(frames ...[]byte) *fakeSubSocket {
	return &fakeSubSocket{frames: frames, options: make(map[string]any)}
}

func (f *fakeSubSocket) Dial(addr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dialed = addr
	return nil
}

func (f *fakeSubSocket) Recv() ([]byte, error) {
	f.mu.Lock()
	if len(f.frames) == 0 {
		f.mu.Unlock()
		// Mimic the receive deadline so the loop does not spin hot
		time.Sleep(time.Millisecond)
		return nil, mangos.ErrRecvTimeout
	}
	frame := f.frames[0]
	f.frames = f.frames[1:]
	f.mu.Unlock()
	return frame, nil
}

func (f *fakeSubSocket) SetOption(name string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.options[name] = value
	return nil
}

func (f *fakeSubSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func waitForSnapshot(t *testing.T, s *SnapshotSubscriber) *collector.Snapshot {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if snap := s.Latest(); snap != nil {
			return snap
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("No snapshot received before deadline")
	return nil
}

func TestSubscriberReceivesSnapshot(t *testing.T) {
	snap := healthySnapshot()
	frame, err := snap.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	socket := newFakeSubSocket(frame)
	s := newSubscriberWithSocket(socket, "tcp://localhost:9103")
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	got := waitForSnapshot(t, s)
	if len(got.Replicas) != 3 {
		t.Errorf("Expected 3 replicas, got %d", len(got.Replicas))
	}
	if got.MasterTimestamp != 100 {
		t.Errorf("Expected master timestamp 100, got %d", got.MasterTimestamp)
	}
}

func TestSubscriberSubscribesToTopic(t *testing.T) {
	socket := newFakeSubSocket()
	s := newSubscriberWithSocket(socket, "tcp://localhost:9103")
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	socket.mu.Lock()
	topic, _ := socket.options[mangos.OptionSubscribe].([]byte)
	dialed := socket.dialed
	socket.mu.Unlock()

	if string(topic) != collector.SnapshotTopic {
		t.Errorf("Expected subscription to %q, got %q", collector.SnapshotTopic, topic)
	}
	if dialed != "tcp://localhost:9103" {
		t.Errorf("Dialed wrong address: %s", dialed)
	}
}

func TestSubscriberDropsBadFrames(t *testing.T) {
	good, err := healthySnapshot().Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	socket := newFakeSubSocket([]byte("METRICS:{not json"), good)
	s := newSubscriberWithSocket(socket, "tcp://localhost:9103")
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	got := waitForSnapshot(t, s)
	if len(got.Replicas) != 3 {
		t.Errorf("Bad frame should be skipped, good one kept; got %d replicas", len(got.Replicas))
	}
}

func TestSubscriberStopClosesSocket(t *testing.T) {
	socket := newFakeSubSocket()
	s := newSubscriberWithSocket(socket, "tcp://localhost:9103")
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	socket.mu.Lock()
	closed := socket.closed
	socket.mu.Unlock()
	if !closed {
		t.Error("Socket should be closed after Stop")
	}

	// Idempotent
	if err := s.Stop(); err != nil {
		t.Errorf("Second Stop should be a no-op, got %v", err)
	}
}

func TestSubscriberLatestNilBeforeFirstFrame(t *testing.T) {
	s := newSubscriberWithSocket(newFakeSubSocket(), "tcp://localhost:9103")
	if s.Latest() != nil {
		t.Error("Latest should be nil before any frame arrives")
	}
}

func TestSubscriberStartDialFailure(t *testing.T) {
	socket := newFakeSubSocket()
	s := newSubscriberWithSocket(&failingDialSocket{fakeSubSocket: socket}, "tcp://bad")
	if err := s.Start(); err == nil {
		t.Fatal("Expected dial error")
	}
}

type failingDialSocket struct {
	*fakeSubSocket
}

func (f *failingDialSocket) Dial(addr string) error {
	return errors.New("connection refused")
}
