package slcan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tarm/serial"

	"github.com/notnil/vescnode/canbus"
)

const (
	rxDepth = 64

	// idleBackoff spaces out reads while a serial port with a read timeout
	// reports an idle line as io.EOF.
	idleBackoff = 5 * time.Millisecond
)

// Bus is a canbus.Bus over an SLCAN adapter.
type Bus struct {
	port    Port
	idleEOF bool

	wmu    sync.Mutex
	frames chan canbus.Frame
	quit   chan struct{}
	done   chan struct{}
	rxErr  error

	closing   atomic.Bool
	closeOnce sync.Once
	closeErr  error

	bells     atomic.Uint64
	malformed atomic.Uint64
}

// Open resets the adapter on port, sets bitrate and opens the channel. A
// zero bitrate keeps the adapter's current setting. The Bus owns port from
// then on, including on error.
func Open(port Port, bitrate uint32) (*Bus, error) {
	cmds := []string{"C\r"}
	if bitrate != 0 {
		s, err := BitrateCommand(bitrate)
		if err != nil {
			port.Close()
			return nil, err
		}
		cmds = append(cmds, s)
	}
	cmds = append(cmds, "O\r")

	_, isSerial := port.(*serial.Port)
	b := &Bus{
		port:    port,
		idleEOF: isSerial,
		frames:  make(chan canbus.Frame, rxDepth),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go b.readLoop()
	for _, c := range cmds {
		if err := b.write(c); err != nil {
			b.Close()
			return nil, fmt.Errorf("slcan: setup %q: %w", c[:len(c)-1], err)
		}
	}
	return b, nil
}

// PortDialer returns a canbus.Dialer that obtains a port from open and
// starts an adapter on it at the dialed bit rate. Filtering and loopback are
// left to the caller; SLCAN adapters never echo transmitted frames.
func PortDialer(open func() (Port, error)) canbus.Dialer {
	return func(ctx context.Context, cfg canbus.DialConfig) (canbus.Bus, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		port, err := open()
		if err != nil {
			return nil, err
		}
		return Open(port, cfg.Bitrate)
	}
}

// Dialer returns a canbus.Dialer for the serial device in cfg.
func Dialer(cfg Config) canbus.Dialer {
	return PortDialer(func() (Port, error) { return OpenPort(cfg) })
}

func (b *Bus) write(s string) error {
	b.wmu.Lock()
	defer b.wmu.Unlock()
	_, err := io.WriteString(b.port, s)
	return err
}

// Send implements canbus.Bus.
func (b *Bus) Send(ctx context.Context, f canbus.Frame) error {
	if b.closing.Load() {
		return canbus.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s, err := EncodeFrame(f)
	if err != nil {
		return err
	}
	if err := b.write(s); err != nil {
		return fmt.Errorf("slcan: write: %w", err)
	}
	return nil
}

// Receive implements canbus.Bus.
func (b *Bus) Receive(ctx context.Context) (canbus.Frame, error) {
	select {
	case f := <-b.frames:
		return f, nil
	case <-b.done:
		// Frames queued before the reader stopped are still delivered.
		select {
		case f := <-b.frames:
			return f, nil
		default:
		}
		if b.closing.Load() {
			return canbus.Frame{}, canbus.ErrClosed
		}
		return canbus.Frame{}, fmt.Errorf("slcan: read: %w", b.rxErr)
	case <-ctx.Done():
		return canbus.Frame{}, ctx.Err()
	}
}

// Close closes the CAN channel and the port.
func (b *Bus) Close() error {
	b.closeOnce.Do(func() {
		b.closing.Store(true)
		_ = b.write("C\r")
		close(b.quit)
		b.closeErr = b.port.Close()
		<-b.done
	})
	return b.closeErr
}

// Errors returns how many error replies (BELL) the adapter has sent.
func (b *Bus) Errors() uint64 { return b.bells.Load() }

// Malformed returns how many received lines could not be decoded.
func (b *Bus) Malformed() uint64 { return b.malformed.Load() }

func (b *Bus) readLoop() {
	defer close(b.done)
	buf := make([]byte, 256)
	var line []byte
	for {
		n, err := b.port.Read(buf)
		for _, c := range buf[:n] {
			switch c {
			case '\r':
				if !b.handleLine(string(line)) {
					return
				}
				line = line[:0]
			case '\a':
				b.bells.Add(1)
				line = line[:0]
			default:
				line = append(line, c)
			}
		}
		if err == nil {
			continue
		}
		if b.closing.Load() {
			return
		}
		if b.idleEOF && errors.Is(err, io.EOF) && n == 0 {
			select {
			case <-b.quit:
				return
			case <-time.After(idleBackoff):
			}
			continue
		}
		b.rxErr = err
		return
	}
}

// handleLine processes one adapter line. It returns false once the bus is
// closing.
func (b *Bus) handleLine(line string) bool {
	switch {
	case line == "", line == "z", line == "Z":
		return true
	case line[0] == 't', line[0] == 'T', line[0] == 'r', line[0] == 'R':
	default:
		return true
	}
	f, err := DecodeFrame(line)
	if err != nil {
		b.malformed.Add(1)
		return true
	}
	select {
	case b.frames <- f:
		return true
	case <-b.quit:
		return false
	}
}
