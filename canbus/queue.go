package canbus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// DialConfig carries the interface settings a Dialer should apply when
// opening a Bus. Drivers that can filter or suppress loopback in hardware
// (or in the kernel) should honour Filter and Loopback; Queue applies the
// filter in software as well.
type DialConfig struct {
	Bitrate  uint32
	Filter   Filter
	Loopback bool
}

// Dialer opens a Bus configured per cfg.
type Dialer func(ctx context.Context, cfg DialConfig) (Bus, error)

// Defaults for Queue.
const (
	DefaultQueueDepth   = 64
	DefaultWriteTimeout = 10 * time.Millisecond
)

// Queue adapts a blocking Bus into a polled Transport.
//
// Begin dials the Bus and starts a single background goroutine that reads
// from Receive, applies the acceptance filter and buffers accepted frames.
// Available and Read only inspect that buffer and never block. When the
// buffer is full, newly received frames are dropped and counted.
//
// With internal loopback enabled, every successful Write is also offered to
// the local receive buffer, like a controller in loopback mode.
type Queue struct {
	dial         Dialer
	depth        int
	writeTimeout time.Duration
	onDrop       func(Frame)

	mu       sync.Mutex
	filter   Filter
	loopback bool
	bus      Bus
	frames   chan Frame
	cancel   context.CancelFunc
	done     chan struct{}
	rxErr    error

	dropped atomic.Uint64
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithDepth sets the receive buffer size.
func WithDepth(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.depth = n
		}
	}
}

// WithWriteTimeout bounds how long Write may block on the underlying Bus.
func WithWriteTimeout(d time.Duration) QueueOption {
	return func(q *Queue) {
		if d > 0 {
			q.writeTimeout = d
		}
	}
}

// WithInternalLoopback starts the queue with internal loopback enabled.
func WithInternalLoopback() QueueOption {
	return func(q *Queue) { q.loopback = true }
}

// WithDropHook registers fn to be called for each frame dropped on a full
// buffer. fn runs on the receive goroutine and must not block.
func WithDropHook(fn func(Frame)) QueueOption {
	return func(q *Queue) { q.onDrop = fn }
}

// NewQueue returns an unstarted Queue that will open its Bus with dial.
func NewQueue(dial Dialer, opts ...QueueOption) *Queue {
	q := &Queue{
		dial:         dial,
		depth:        DefaultQueueDepth,
		writeTimeout: DefaultWriteTimeout,
		filter:       AcceptAll,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// DisableInternalLoopback implements Transport.
func (q *Queue) DisableInternalLoopback() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.bus != nil {
		return ErrStarted
	}
	q.loopback = false
	return nil
}

// SetFilter implements Transport. It must be called before Begin.
func (q *Queue) SetFilter(f Filter) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.bus != nil {
		return ErrStarted
	}
	q.filter = f
	return nil
}

// Begin implements Transport.
func (q *Queue) Begin(bitrate uint32) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.bus != nil {
		return ErrStarted
	}
	ctx, cancel := context.WithCancel(context.Background())
	bus, err := q.dial(ctx, DialConfig{Bitrate: bitrate, Filter: q.filter, Loopback: q.loopback})
	if err != nil {
		cancel()
		return fmt.Errorf("canbus: dial: %w", err)
	}
	q.bus = bus
	q.frames = make(chan Frame, q.depth)
	q.cancel = cancel
	q.done = make(chan struct{})
	go q.run(ctx, bus, q.filter.Func())
	return nil
}

func (q *Queue) run(ctx context.Context, bus Bus, accept FrameFilter) {
	defer close(q.done)
	for {
		f, err := bus.Receive(ctx)
		if err != nil {
			q.mu.Lock()
			q.rxErr = err
			q.mu.Unlock()
			return
		}
		if accept(f) {
			q.offer(f)
		}
	}
}

// offer queues f without blocking.
func (q *Queue) offer(f Frame) {
	select {
	case q.frames <- f:
	default:
		q.dropped.Add(1)
		if q.onDrop != nil {
			q.onDrop(f)
		}
	}
}

// Available implements Transport.
func (q *Queue) Available() int {
	q.mu.Lock()
	ch := q.frames
	q.mu.Unlock()
	return len(ch)
}

// Read implements Transport. Once the receive goroutine has stopped and the
// buffer is drained, Read returns the error that stopped it.
func (q *Queue) Read() (Frame, error) {
	q.mu.Lock()
	ch, rxErr := q.frames, q.rxErr
	q.mu.Unlock()
	if ch == nil {
		return Frame{}, ErrNotStarted
	}
	select {
	case f := <-ch:
		return f, nil
	default:
	}
	if rxErr != nil {
		return Frame{}, fmt.Errorf("canbus: receive: %w", rxErr)
	}
	return Frame{}, ErrEmpty
}

// Write implements Transport.
func (q *Queue) Write(f Frame) error {
	q.mu.Lock()
	bus, loopback, accept := q.bus, q.loopback, q.filter
	q.mu.Unlock()
	if bus == nil {
		return ErrNotStarted
	}
	ctx, cancel := context.WithTimeout(context.Background(), q.writeTimeout)
	defer cancel()
	if err := bus.Send(ctx, f); err != nil {
		return err
	}
	if loopback && accept.Match(f) {
		q.offer(f)
	}
	return nil
}

// Dropped returns the number of received frames discarded on a full buffer.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Close stops the receive goroutine and closes the underlying Bus.
func (q *Queue) Close() error {
	q.mu.Lock()
	bus, cancel, done := q.bus, q.cancel, q.done
	q.mu.Unlock()
	if bus == nil {
		return nil
	}
	err := bus.Close()
	cancel()
	<-done
	return err
}
