package canbus

import (
	"context"
	"sync"
)

// loopbackDepth is the per-endpoint receive buffer.
const loopbackDepth = 64

// LoopbackBus is an in-memory CAN bus for tests and simulations. Endpoints
// opened on the same bus see each other's frames; a sender never receives
// its own.
type LoopbackBus struct {
	mu   sync.Mutex
	eps  []*loopEndpoint
	done chan struct{}
	once sync.Once
}

// NewLoopbackBus creates a new loopback bus.
func NewLoopbackBus() *LoopbackBus {
	return &LoopbackBus{done: make(chan struct{})}
}

// Open attaches a new endpoint. On a closed bus the endpoint is born closed.
func (b *LoopbackBus) Open() Bus {
	ep := &loopEndpoint{bus: b, rx: make(chan Frame, loopbackDepth), gone: make(chan struct{})}
	b.mu.Lock()
	defer b.mu.Unlock()
	select {
	case <-b.done:
		ep.shut()
	default:
		b.eps = append(b.eps, ep)
	}
	return ep
}

// Dialer returns a Dialer that opens a fresh endpoint on every call. The
// bitrate in the DialConfig is ignored.
func (b *LoopbackBus) Dialer() Dialer {
	return func(context.Context, DialConfig) (Bus, error) {
		return b.Open(), nil
	}
}

// Close shuts the bus and every endpoint on it.
func (b *LoopbackBus) Close() error {
	b.once.Do(func() { close(b.done) })
	b.mu.Lock()
	eps := b.eps
	b.eps = nil
	b.mu.Unlock()
	for _, ep := range eps {
		ep.shut()
	}
	return nil
}

// peers returns a snapshot of the endpoints other than self.
func (b *LoopbackBus) peers(self *loopEndpoint) []*loopEndpoint {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*loopEndpoint, 0, len(b.eps))
	for _, ep := range b.eps {
		if ep != self {
			out = append(out, ep)
		}
	}
	return out
}

func (b *LoopbackBus) remove(ep *loopEndpoint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, e := range b.eps {
		if e == ep {
			b.eps = append(b.eps[:i], b.eps[i+1:]...)
			return
		}
	}
}

type loopEndpoint struct {
	bus  *LoopbackBus
	rx   chan Frame
	gone chan struct{}
	once sync.Once
}

func (e *loopEndpoint) shut() { e.once.Do(func() { close(e.gone) }) }

func (e *loopEndpoint) dead() bool {
	select {
	case <-e.gone:
		return true
	case <-e.bus.done:
		return true
	default:
		return false
	}
}

// Send broadcasts the frame to every other endpoint. It blocks while a
// receiver's buffer is full, until ctx is done.
func (e *loopEndpoint) Send(ctx context.Context, frame Frame) error {
	if err := frame.Validate(); err != nil {
		return err
	}
	if e.dead() {
		return ErrClosed
	}
	for _, p := range e.bus.peers(e) {
		select {
		case p.rx <- frame:
		case <-p.gone:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Receive waits for the next frame.
func (e *loopEndpoint) Receive(ctx context.Context) (Frame, error) {
	if e.dead() {
		return Frame{}, ErrClosed
	}
	select {
	case f := <-e.rx:
		return f, nil
	case <-e.gone:
		return Frame{}, ErrClosed
	case <-e.bus.done:
		return Frame{}, ErrClosed
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// Close detaches the endpoint. Pending frames are discarded.
func (e *loopEndpoint) Close() error {
	e.shut()
	e.bus.remove(e)
	return nil
}
