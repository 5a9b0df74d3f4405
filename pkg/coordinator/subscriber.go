package coordinator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/sub"

	// Register all transports
	_ "go.nanomsg.org/mangos/v3/transport/all"

	"github.com/dd0wney/cluso-sqlgate/pkg/collector"
	"github.com/dd0wney/cluso-sqlgate/pkg/logging"
)

// SnapshotSource hands out the most recently observed cluster
// snapshot. Nil means nothing has arrived yet.
type SnapshotSource interface {
	Latest() *collector.Snapshot
}

// subSocket is the slice of mangos.Socket the subscriber needs.
type subSocket interface {
	Dial(addr string) error
	Recv() ([]byte, error)
	SetOption(name string, value any) error
	Close() error
}

// SnapshotSubscriber holds a SUB connection to the collector's fan-out
// and keeps the last snapshot in an atomic pointer, so the read path
// never does per-request HTTP to the collector.
type SnapshotSubscriber struct {
	socket      subSocket
	addr        string
	recvTimeout time.Duration

	latest atomic.Pointer[collector.Snapshot]
	logger logging.Logger

	stopCh    chan struct{}
	wg        sync.WaitGroup
	running   bool
	runningMu sync.Mutex
}

// NewSnapshotSubscriber creates a subscriber for the collector's PUB
// address, e.g. "tcp://localhost:9103".
func NewSnapshotSubscriber(addr string) (*SnapshotSubscriber, error) {
	socket, err := sub.NewSocket()
	if err != nil {
		return nil, err
	}

	return &SnapshotSubscriber{
		socket:      socket,
		addr:        addr,
		recvTimeout: time.Second,
		logger:      logging.With(logging.Component("snapshot_subscriber")),
		stopCh:      make(chan struct{}),
	}, nil
}

func newSubscriberWithSocket(socket subSocket, addr string) *SnapshotSubscriber {
	return &SnapshotSubscriber{
		socket:      socket,
		addr:        addr,
		recvTimeout: time.Second,
		logger:      logging.With(logging.Component("snapshot_subscriber")),
		stopCh:      make(chan struct{}),
	}
}

// Start dials the collector and begins receiving snapshots.
func (s *SnapshotSubscriber) Start() error {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()

	if s.running {
		return nil
	}

	if err := s.socket.Dial(s.addr); err != nil {
		return err
	}
	if err := s.socket.SetOption(mangos.OptionSubscribe, []byte(collector.SnapshotTopic)); err != nil {
		s.socket.Close()
		return err
	}
	if err := s.socket.SetOption(mangos.OptionRecvDeadline, s.recvTimeout); err != nil {
		s.socket.Close()
		return err
	}

	s.running = true
	s.wg.Add(1)
	go s.receiveLoop()

	s.logger.Info("Snapshot subscriber connected", logging.String("addr", s.addr))
	return nil
}

// Stop halts the receive loop and closes the socket.
func (s *SnapshotSubscriber) Stop() error {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()

	if !s.running {
		return nil
	}

	close(s.stopCh)
	s.running = false
	s.wg.Wait()
	return s.socket.Close()
}

// Latest returns the most recent snapshot, or nil before the first
// frame arrives.
func (s *SnapshotSubscriber) Latest() *collector.Snapshot {
	return s.latest.Load()
}

func (s *SnapshotSubscriber) receiveLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		frame, err := s.socket.Recv()
		if err != nil {
			// Recv deadline doubles as the stop-check interval
			continue
		}

		snap, err := collector.DecodeSnapshot(frame)
		if err != nil {
			s.logger.Warn("Dropping undecodable snapshot frame", logging.Error(err))
			continue
		}
		s.latest.Store(snap)
	}
}

// PollingSource adapts a collector HTTP client into a SnapshotSource
// for deployments without the fan-out socket.
type PollingSource struct {
	client  *collector.Client
	timeout time.Duration
}

// NewPollingSource wraps a collector client.
func NewPollingSource(client *collector.Client, timeout time.Duration) *PollingSource {
	return &PollingSource{client: client, timeout: timeout}
}

// Latest fetches the snapshot synchronously; nil on any failure.
func (p *PollingSource) Latest() *collector.Snapshot {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	snap, err := p.client.FetchSnapshot(ctx)
	if err != nil {
		return nil
	}
	return snap
}
