package vesc

import (
	"github.com/notnil/vescnode/canbus"
)

type fakeTransport struct {
	calls    []string
	filter   canbus.Filter
	bitrate  uint32
	rx       []canbus.Frame
	tx       []canbus.Frame
	failWith error
	readErr  error
}

func (t *fakeTransport) DisableInternalLoopback() error {
	t.calls = append(t.calls, "loopback")
	return t.failWith
}

func (t *fakeTransport) SetFilter(f canbus.Filter) error {
	t.calls = append(t.calls, "filter")
	t.filter = f
	return t.failWith
}

func (t *fakeTransport) Begin(bitrate uint32) error {
	t.calls = append(t.calls, "begin")
	t.bitrate = bitrate
	return t.failWith
}

func (t *fakeTransport) Available() int { return len(t.rx) }

func (t *fakeTransport) Read() (canbus.Frame, error) {
	if t.readErr != nil {
		return canbus.Frame{}, t.readErr
	}
	if len(t.rx) == 0 {
		return canbus.Frame{}, canbus.ErrEmpty
	}
	f := t.rx[0]
	t.rx = t.rx[1:]
	return f, nil
}

func (t *fakeTransport) Write(f canbus.Frame) error {
	if t.failWith != nil {
		return t.failWith
	}
	t.tx = append(t.tx, f)
	return nil
}

func (t *fakeTransport) push(frames ...canbus.Frame) { t.rx = append(t.rx, frames...) }

// take returns and clears the transmitted frames.
func (t *fakeTransport) take() []canbus.Frame {
	out := t.tx
	t.tx = nil
	return out
}

type fakeMotor struct {
	enabled  bool
	target   float64
	limit    float64
	angle    float64
	enables  int
	disables int
}

func (m *fakeMotor) Enabled() bool          { return m.enabled }
func (m *fakeMotor) SetTarget(amps float64) { m.target = amps }
func (m *fakeMotor) CurrentLimit() float64  { return m.limit }
func (m *fakeMotor) ShaftAngle() float64    { return m.angle }

func (m *fakeMotor) Enable() {
	m.enabled = true
	m.enables++
}

func (m *fakeMotor) Disable() {
	m.enabled = false
	m.disables++
}

type manualClock struct{ now uint32 }

func (c *manualClock) Micros() uint32 { return c.now }

type countingMetrics struct {
	received map[Command]int
	dropped  map[string]int
	sent     map[Command]int
	trips    int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{
		received: make(map[Command]int),
		dropped:  make(map[string]int),
		sent:     make(map[Command]int),
	}
}

func (m *countingMetrics) FrameReceived(cmd Command)  { m.received[cmd]++ }
func (m *countingMetrics) FrameDropped(reason string) { m.dropped[reason]++ }
func (m *countingMetrics) ReplySent(cmd Command)      { m.sent[cmd]++ }
func (m *countingMetrics) WatchdogTripped()           { m.trips++ }
