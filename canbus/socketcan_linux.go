//go:build linux

package canbus

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"golang.org/x/sys/unix"
)

// pollInterval bounds a single poll(2) so that context cancellation and
// Close are noticed promptly.
const pollInterval = 50 // ms

// socketCAN implements Bus over a Linux SocketCAN raw socket.
type socketCAN struct {
	fd        int
	closeOnce sync.Once
	closed    chan struct{}
}

// SocketCANOptions controls how SocketCANDialer prepares the interface.
type SocketCANOptions struct {
	// ConfigureInterface brings the interface down, applies the dial bitrate
	// (and RestartMs, if set) through iproute2, and brings it back up before
	// opening the socket. Requires CAP_NET_ADMIN. Leave false for vcan or
	// interfaces configured by the system.
	ConfigureInterface bool

	// RestartMs sets automatic bus-off recovery when ConfigureInterface is set.
	RestartMs *uint32
}

// SocketCANDialer returns a Dialer for the named interface (e.g. "can0").
// The dial filter is installed as a kernel CAN_RAW_FILTER and the dial
// loopback flag is applied through CAN_RAW_LOOPBACK.
func SocketCANDialer(iface string, opts SocketCANOptions) Dialer {
	return func(ctx context.Context, cfg DialConfig) (Bus, error) {
		if opts.ConfigureInterface {
			if err := configureForDial(iface, cfg.Bitrate, opts.RestartMs); err != nil {
				return nil, err
			}
		}
		return dialSocketCAN(iface, cfg)
	}
}

// DialSocketCAN opens a raw CAN socket bound to the given interface name,
// accepting every frame with kernel loopback left at its default.
func DialSocketCAN(iface string) (Bus, error) {
	return dialSocketCAN(iface, DialConfig{Filter: AcceptAll, Loopback: true})
}

func configureForDial(iface string, bitrate uint32, restartMs *uint32) error {
	if err := SetInterfaceDown(iface); err != nil {
		return RequireRootOrCapNetAdmin(err)
	}
	opts := LinuxCANInterfaceOptions{RestartMs: restartMs}
	if bitrate != 0 {
		opts.Bitrate = &bitrate
	}
	if err := ConfigureLinuxCANInterface(iface, opts); err != nil {
		return err
	}
	return RequireRootOrCapNetAdmin(SetInterfaceUp(iface))
}

func dialSocketCAN(iface string, cfg DialConfig) (Bus, error) {
	netIf, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("canbus: socket: %w", err)
	}
	fail := func(op string, err error) (Bus, error) {
		unix.Close(fd)
		return nil, fmt.Errorf("canbus: %s: %w", op, err)
	}
	if err := unix.SetsockoptCanRawFilter(fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FILTER, rawFilters(cfg.Filter)); err != nil {
		return fail("set filter", err)
	}
	loopback := 0
	if cfg.Loopback {
		loopback = 1
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_CAN_RAW, unix.CAN_RAW_LOOPBACK, loopback); err != nil {
		return fail("set loopback", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: netIf.Index}); err != nil {
		return fail("bind", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return fail("set nonblock", err)
	}
	return &socketCAN{fd: fd, closed: make(chan struct{})}, nil
}

// rawFilters translates an acceptance Filter into kernel CAN_RAW filters.
func rawFilters(f Filter) []unix.CanFilter {
	if f.Mask == 0 && f.Frames == AnyFrame {
		return []unix.CanFilter{{Id: 0, Mask: 0}}
	}
	id, mask := f.ID, f.Mask
	if f.Mask != 0 {
		mask |= unix.CAN_EFF_FLAG
		if f.Extended {
			id = (id & unix.CAN_EFF_MASK) | unix.CAN_EFF_FLAG
		} else {
			id &= unix.CAN_SFF_MASK
		}
	}
	switch f.Frames {
	case DataFrame:
		mask |= unix.CAN_RTR_FLAG
	case RemoteFrame:
		mask |= unix.CAN_RTR_FLAG
		id |= unix.CAN_RTR_FLAG
	}
	return []unix.CanFilter{{Id: id, Mask: mask}}
}

func (s *socketCAN) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = unix.Close(s.fd)
	})
	return err
}

// Send writes one frame using the Linux can_frame binary layout.
func (s *socketCAN) Send(ctx context.Context, frame Frame) error {
	buf, err := frame.MarshalBinary()
	if err != nil {
		return err
	}
	for {
		if s.isClosed() {
			return ErrClosed
		}
		n, werr := unix.Write(s.fd, buf)
		if werr == nil {
			if n != len(buf) {
				return errors.New("canbus: short write")
			}
			return nil
		}
		if werr == unix.EAGAIN || werr == unix.ENOBUFS {
			if err := s.wait(ctx, unix.POLLOUT); err != nil {
				return err
			}
			continue
		}
		return werr
	}
}

// Receive reads one frame, blocking until one arrives, the context is done
// or the socket is closed.
func (s *socketCAN) Receive(ctx context.Context) (Frame, error) {
	var f Frame
	buf := make([]byte, 16)
	for {
		if s.isClosed() {
			return Frame{}, ErrClosed
		}
		n, rerr := unix.Read(s.fd, buf)
		if rerr == nil {
			if n != len(buf) {
				return Frame{}, errors.New("canbus: short read")
			}
			if err := f.UnmarshalBinary(buf); err != nil {
				return Frame{}, err
			}
			return f, nil
		}
		if rerr == unix.EAGAIN {
			if err := s.wait(ctx, unix.POLLIN); err != nil {
				return Frame{}, err
			}
			continue
		}
		return Frame{}, rerr
	}
}

func (s *socketCAN) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// wait polls the socket for events in slices of pollInterval.
func (s *socketCAN) wait(ctx context.Context, events int16) error {
	fds := []unix.PollFd{{Fd: int32(s.fd), Events: events}}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.closed:
			return ErrClosed
		default:
		}
		n, err := unix.Poll(fds, pollInterval)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
	}
}
