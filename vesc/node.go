package vesc

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/notnil/vescnode/canbus"
)

// ErrAlreadyOpen is returned by a second call to Open.
var ErrAlreadyOpen = errors.New("vesc: node already open")

// Node answers VESC CAN traffic on behalf of one motor.
//
// A Node is driven by calling Run from a single control loop; it holds no
// locks and must not be used from several goroutines at once. Setters may be
// called between Run calls and take effect on the next cycle.
type Node struct {
	transport canbus.Transport
	motor     Motor
	address   uint8
	bitrate   uint32

	firmware Firmware
	clock    Clock
	logger   *slog.Logger
	metrics  Metrics

	opened       bool
	watchdog     Watchdog
	remoteEnable bool
	voltage      float64
	errorState   int
}

// Option configures a Node.
type Option func(*Node)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(n *Node) {
		if l != nil {
			n.logger = l
		}
	}
}

// WithClock replaces the monotonic microsecond clock.
func WithClock(c Clock) Option {
	return func(n *Node) {
		if c != nil {
			n.clock = c
		}
	}
}

// WithMetrics registers a Metrics sink.
func WithMetrics(m Metrics) Option {
	return func(n *Node) {
		if m != nil {
			n.metrics = m
		}
	}
}

// WithFirmware sets the version reported to FW_VERSION queries.
func WithFirmware(fw Firmware) Option {
	return func(n *Node) { n.firmware = fw }
}

// New binds a transport and motor to a node address and bit rate. It does not
// touch the bus; call Open once before Run. A nil transport or motor makes
// Run a no-op.
func New(t canbus.Transport, m Motor, address uint8, bitrate uint32, opts ...Option) *Node {
	n := &Node{
		transport: t,
		motor:     m,
		address:   address,
		bitrate:   bitrate,
		firmware:  DefaultFirmware,
		clock:     MonotonicClock(),
		logger:    slog.Default(),
		metrics:   nopMetrics{},
		watchdog:  NewWatchdog(WatchdogTimeout),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Address returns the node address.
func (n *Node) Address() uint8 { return n.address }

// Open disables transport loopback, installs an extended-id filter on the
// node address in the low identifier byte and starts the transport.
func (n *Node) Open() error {
	if n.transport == nil {
		return errors.New("vesc: no transport")
	}
	if n.opened {
		return ErrAlreadyOpen
	}
	if err := n.transport.DisableInternalLoopback(); err != nil {
		return fmt.Errorf("vesc: disable loopback: %w", err)
	}
	filter := canbus.Filter{ID: uint32(n.address), Mask: 0xFF, Extended: true, Frames: canbus.AnyFrame}
	if err := n.transport.SetFilter(filter); err != nil {
		return fmt.Errorf("vesc: set filter: %w", err)
	}
	if err := n.transport.Begin(n.bitrate); err != nil {
		return fmt.Errorf("vesc: begin: %w", err)
	}
	n.opened = true
	n.logger.Info("vesc node open", "address", n.address, "bitrate", n.bitrate, "firmware", n.firmware.String())
	return nil
}

// SetRemoteEnable allows or forbids remote torque commands and the watchdog.
func (n *Node) SetRemoteEnable(enable bool) { n.remoteEnable = enable }

// RemoteEnabled reports the remote-enable flag.
func (n *Node) RemoteEnabled() bool { return n.remoteEnable }

// SetBusVoltage updates the voltage reported to GET_VALUES_SELECTIVE.
func (n *Node) SetBusVoltage(volts float64) { n.voltage = volts }

// SetErrorState updates the fault code; any nonzero code is reported as 1.
func (n *Node) SetErrorState(code int) { n.errorState = code }

// Run performs one dispatch cycle: the watchdog check, then every frame the
// transport has queued is decoded and answered before Run returns.
func (n *Node) Run() {
	if n.transport == nil || n.motor == nil {
		return
	}
	now := n.clock.Micros()
	if n.watchdog.Expired(now) && n.motor.Enabled() && n.remoteEnable {
		n.motor.Disable()
		n.metrics.WatchdogTripped()
		n.logger.Warn("vesc watchdog expired, motor disabled", "silent_us", now-n.watchdog.Last())
	}

	for n.transport.Available() > 0 {
		f, err := n.transport.Read()
		if err != nil {
			n.metrics.FrameDropped(DropReadError)
			n.logger.Debug("vesc read failed", "error", err)
			return
		}
		n.dispatch(f, now)
	}
}

func (n *Node) dispatch(f canbus.Frame, now uint32) {
	if !f.Extended {
		n.drop(f, DropStandardID)
		return
	}
	target, cmd := SplitID(f.ID)
	if !n.addressed(target) {
		n.drop(f, DropNotAddressed)
		return
	}
	n.metrics.FrameReceived(cmd)

	switch cmd {
	case CmdProcessShortBuffer:
		n.handleShortBuffer(f, now)
	case CmdSetCurrentRel:
		n.handleSetCurrentRel(f)
	case CmdPing:
		n.handlePing()
	case CmdPollRotorPos:
		n.handlePollRotorPos()
	default:
		n.drop(f, DropUnknownCommand)
	}
}

// addressed is the check applied after the transport filter. As written it
// accepts any nonzero target.
// TODO: narrow to target == n.address once peers stop sending to other ids.
func (n *Node) addressed(target uint8) bool {
	return target&n.address != 0 || target&0xFF != 0
}

func (n *Node) drop(f canbus.Frame, reason string) {
	n.metrics.FrameDropped(reason)
	n.logger.Debug("vesc frame dropped", "reason", reason, "frame", f.String())
}

// send writes one reply frame.
func (n *Node) send(target uint8, cmd Command, payload []byte) {
	f, err := canbus.NewExtended(FrameID(target, cmd), payload)
	if err != nil {
		n.logger.Warn("vesc reply not encodable", "command", cmd.String(), "error", err)
		return
	}
	n.write(f)
}

// sendShort writes a short-buffer reply from this node to target.
func (n *Node) sendShort(target uint8, comm Comm, payload ...byte) {
	msg := ShortBuffer{ReplyTo: n.address, Command: comm, Payload: payload}
	f, err := msg.MarshalCANFrame(target)
	if err != nil {
		n.logger.Warn("vesc reply not encodable", "command", comm.String(), "error", err)
		return
	}
	n.write(f)
}

// write hands a reply to the transport. There is no retry.
func (n *Node) write(f canbus.Frame) {
	target, cmd := SplitID(f.ID)
	if err := n.transport.Write(f); err != nil {
		n.metrics.FrameDropped(DropWriteError)
		n.logger.Warn("vesc reply failed", "command", cmd.String(), "target", target, "error", err)
		return
	}
	n.metrics.ReplySent(cmd)
}
