package collector

import (
	"fmt"

	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/pub"

	// Register all transports
	_ "go.nanomsg.org/mangos/v3/transport/all"

	"github.com/dd0wney/cluso-sqlgate/pkg/metrics"
)

// pubSocket is the slice of mangos.Socket the publisher needs.
type pubSocket interface {
	Listen(addr string) error
	Send(data []byte) error
	Close() error
}

// Publisher fans snapshots out to subscribers over a PUB socket.
// Slow or absent subscribers never block the poll loop: PUB drops
// frames it cannot deliver, and every frame carries a full snapshot,
// so a subscriber that misses one catches up on the next.
type Publisher struct {
	sock pubSocket
	addr string
}

// NewPublisher binds a PUB socket on addr, e.g. "tcp://0.0.0.0:9103".
func NewPublisher(addr string) (*Publisher, error) {
	sock, err := pub.NewSocket()
	if err != nil {
		return nil, fmt.Errorf("failed to create PUB socket: %w", err)
	}
	sock.SetPipeEventHook(func(ev mangos.PipeEvent, _ mangos.Pipe) {
		trackSubscriber(ev)
	})
	if err := sock.Listen(addr); err != nil {
		sock.Close()
		return nil, fmt.Errorf("failed to bind PUB socket to %s: %w", addr, err)
	}
	return &Publisher{sock: sock, addr: addr}, nil
}

func newPublisherWithSocket(sock pubSocket, addr string) *Publisher {
	return &Publisher{sock: sock, addr: addr}
}

// trackSubscriber keeps the subscriber gauge in step with pipe
// attach and detach events on the PUB socket.
func trackSubscriber(ev mangos.PipeEvent) {
	gauge := metrics.DefaultRegistry().SnapshotSubscribersTotal
	switch ev {
	case mangos.PipeEventAttached:
		gauge.Inc()
	case mangos.PipeEventDetached:
		gauge.Dec()
	}
}

// Publish sends one snapshot frame to all connected subscribers.
func (p *Publisher) Publish(snap *Snapshot) error {
	frame, err := snap.Encode()
	if err != nil {
		return err
	}
	if err := p.sock.Send(frame); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return nil
}

// Addr returns the bound address.
func (p *Publisher) Addr() string { return p.addr }

// Close shuts the socket down.
func (p *Publisher) Close() error {
	return p.sock.Close()
}
