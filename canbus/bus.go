package canbus

import (
	"context"
	"errors"
)

// Bus represents a CAN bus connection which can send and receive CAN frames.
// Implementations should be safe for concurrent use by multiple goroutines.
type Bus interface {
	// Send transmits a frame. It may block until the frame is queued or sent.
	// Context cancellation should abort the operation and return the context error.
	Send(ctx context.Context, frame Frame) error

	// Receive retrieves the next available frame. It should block until a frame
	// is available or the context is cancelled.
	Receive(ctx context.Context) (Frame, error)

	// Close releases resources. Further Send/Receive may return an error.
	Close() error
}

// Transport is the polled, controller-style view of a CAN interface that a
// cooperative control loop drives. None of its methods block for longer than
// a single transmit.
//
// The expected lifecycle is DisableInternalLoopback and SetFilter, then Begin
// exactly once, then any number of Available/Read/Write calls.
type Transport interface {
	// DisableInternalLoopback stops transmitted frames from being received
	// back by this transport.
	DisableInternalLoopback() error

	// SetFilter installs the acceptance filter applied to received frames.
	SetFilter(Filter) error

	// Begin starts the interface at the given bit rate.
	Begin(bitrate uint32) error

	// Available reports how many received frames are queued.
	Available() int

	// Read pops one received frame. It returns ErrEmpty when none is queued.
	Read() (Frame, error)

	// Write transmits one frame.
	Write(Frame) error
}

var (
	// ErrClosed indicates the bus or endpoint has been closed.
	ErrClosed = errors.New("canbus: closed")
	// ErrEmpty is returned by Transport.Read when no frame is queued.
	ErrEmpty = errors.New("canbus: no frame available")
	// ErrNotStarted is returned when a Transport is used before Begin.
	ErrNotStarted = errors.New("canbus: transport not started")
	// ErrStarted is returned when a Transport is configured after Begin.
	ErrStarted = errors.New("canbus: transport already started")
)
