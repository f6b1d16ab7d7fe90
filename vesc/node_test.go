package vesc

import (
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notnil/vescnode/canbus"
)

const (
	nodeAddr = 0x0A
	peerAddr = 0x01
)

type harness struct {
	tr      *fakeTransport
	motor   *fakeMotor
	clock   *manualClock
	metrics *countingMetrics
	node    *Node
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		tr:      &fakeTransport{},
		motor:   &fakeMotor{limit: 20},
		clock:   &manualClock{},
		metrics: newCountingMetrics(),
	}
	h.node = New(h.tr, h.motor, nodeAddr, 500000,
		WithClock(h.clock),
		WithMetrics(h.metrics),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, h.node.Open())
	return h
}

// run queues frames and performs one cycle, returning what was sent.
func (h *harness) run(frames ...canbus.Frame) []canbus.Frame {
	h.tr.push(frames...)
	h.node.Run()
	return h.tr.take()
}

func TestOpenConfiguresTransport(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, []string{"loopback", "filter", "begin"}, h.tr.calls)
	assert.Equal(t, canbus.Filter{ID: nodeAddr, Mask: 0xFF, Extended: true, Frames: canbus.AnyFrame}, h.tr.filter)
	assert.Equal(t, uint32(500000), h.tr.bitrate)
	assert.Equal(t, uint8(nodeAddr), h.node.Address())
	assert.ErrorIs(t, h.node.Open(), ErrAlreadyOpen)
}

func TestOpenErrors(t *testing.T) {
	assert.Error(t, New(nil, &fakeMotor{}, nodeAddr, 500000).Open())

	boom := errors.New("bus off")
	n := New(&fakeTransport{failWith: boom}, &fakeMotor{}, nodeAddr, 500000)
	err := n.Open()
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "vesc: disable loopback")
}

func TestRunWithoutCollaboratorsIsNoop(t *testing.T) {
	New(nil, nil, nodeAddr, 500000).Run()

	tr := &fakeTransport{}
	tr.push(PingFrame(nodeAddr))
	New(tr, nil, nodeAddr, 500000).Run()
	assert.Equal(t, 1, tr.Available(), "frames must stay queued without a motor")
	assert.Empty(t, tr.tx)
}

func TestSetCurrentRel(t *testing.T) {
	cases := []struct {
		name string
		raw  int32
		want float64
	}{
		{"half", 50000, 10},
		{"full reverse", -100000, -20},
		{"quarter reverse", -25000, -5},
		{"zero", 0, 0},
		{"over range is not clamped", 150000, 30},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.node.SetRemoteEnable(true)
			h.motor.target = 99

			data := make([]byte, 4)
			binary.BigEndian.PutUint32(data, uint32(tc.raw))
			f, err := canbus.NewExtended(FrameID(nodeAddr, CmdSetCurrentRel), data)
			require.NoError(t, err)

			sent := h.run(f)
			assert.Empty(t, sent, "SET_CURRENT_REL is never answered")
			assert.InDelta(t, tc.want, h.motor.target, 1e-9)
		})
	}
}

func TestSetCurrentRelIgnored(t *testing.T) {
	h := newHarness(t)
	h.motor.target = 3

	assert.Empty(t, h.run(SetCurrentRelFrame(nodeAddr, 0.5)))
	assert.Equal(t, 3.0, h.motor.target, "remote disabled must not change target")
	assert.Equal(t, 1, h.metrics.dropped[DropRemoteDisabled])

	h.node.SetRemoteEnable(true)
	short, err := canbus.NewExtended(FrameID(nodeAddr, CmdSetCurrentRel), []byte{0, 0, 0xC3})
	require.NoError(t, err)
	assert.Empty(t, h.run(short))
	assert.Equal(t, 3.0, h.motor.target, "short payload must not change target")
	assert.Equal(t, 1, h.metrics.dropped[DropShortPayload])

	assert.Empty(t, h.run(SetCurrentRelFrame(nodeAddr, -0.5)))
	assert.InDelta(t, -10.0, h.motor.target, 1e-9)
}

func TestPingPong(t *testing.T) {
	h := newHarness(t)

	first := h.run(PingFrame(nodeAddr))
	require.Len(t, first, 1)
	pong := first[0]
	assert.True(t, pong.Extended)
	assert.Equal(t, uint32(nodeAddr|18<<8), pong.ID)
	assert.Equal(t, uint8(0), pong.Len)
	_, cmd := SplitID(pong.ID)
	assert.Equal(t, CmdPong, cmd)

	second := h.run(PingFrame(nodeAddr))
	require.Len(t, second, 1)
	assert.Equal(t, pong, second[0])
	assert.Equal(t, 2, h.metrics.sent[CmdPong])
}

func TestPollRotorPos(t *testing.T) {
	h := newHarness(t)

	h.motor.angle = 1.5708
	sent := h.run(PollRotorPosFrame(nodeAddr))
	require.Len(t, sent, 1)
	assert.Equal(t, FrameID(nodeAddr, CmdPollRotorPos), sent[0].ID)
	require.Equal(t, uint8(4), sent[0].Len)
	raw := int32(binary.BigEndian.Uint32(sent[0].Data[:4]))
	assert.InDelta(t, 9000000, raw, 50)

	src, deg, err := ParseRotorPos(sent[0])
	require.NoError(t, err)
	assert.Equal(t, uint8(nodeAddr), src)
	assert.InDelta(t, 90.0, deg, 1e-3)

	h.motor.angle = -0.1
	sent = h.run(PollRotorPosFrame(nodeAddr))
	require.Len(t, sent, 1)
	raw = int32(binary.BigEndian.Uint32(sent[0].Data[:4]))
	assert.Equal(t, EncodeRotorPos(2*math.Pi-0.1), raw)
	assert.Greater(t, raw, int32(35400000))
}

func TestFirmwareVersion(t *testing.T) {
	h := newHarness(t)

	first := h.run(FirmwareVersionRequest(nodeAddr, peerAddr))
	require.Len(t, first, 1)
	f := first[0]
	assert.Equal(t, FrameID(peerAddr, CmdProcessShortBuffer), f.ID)
	assert.Equal(t, []byte{nodeAddr, 0, byte(CommFWVersion), 6, 2}, f.Payload())

	again := h.run(FirmwareVersionRequest(nodeAddr, peerAddr))
	require.Len(t, again, 1)
	assert.Equal(t, f, again[0])
}

func TestFirmwareVersionOverride(t *testing.T) {
	tr := &fakeTransport{}
	n := New(tr, &fakeMotor{}, nodeAddr, 500000, WithFirmware(Firmware{Major: 5, Minor: 3}))
	require.NoError(t, n.Open())
	tr.push(FirmwareVersionRequest(nodeAddr, peerAddr))
	n.Run()
	require.Len(t, tr.tx, 1)
	assert.Equal(t, []byte{nodeAddr, 0, 0, 5, 3}, tr.tx[0].Payload())
}

func TestValuesSelectiveVoltage(t *testing.T) {
	cases := []struct {
		volts float64
		want  byte
	}{
		{12.3, 0},  // 123 >> 8
		{48.0, 1},  // 480 >> 8
		{300, 11},  // 3000 >> 8
		{-5, 0xFF}, // -50 >> 8 keeps the sign
	}
	for _, tc := range cases {
		h := newHarness(t)
		h.node.SetBusVoltage(tc.volts)

		sent := h.run(ValuesSelectiveRequest(nodeAddr, peerAddr, ValueVoltageIn))
		require.Len(t, sent, 1)
		f := sent[0]
		assert.Equal(t, FrameID(peerAddr, CmdProcessShortBuffer), f.ID)
		require.Equal(t, uint8(8), f.Len)
		assert.Equal(t, []byte{nodeAddr, 0, byte(CommGetValuesSelective), 0, 0, 0x01, 0x00}, f.Payload()[:7])
		assert.Equal(t, tc.want, f.Data[7], "volts=%v", tc.volts)
	}
}

func TestValuesSelectiveFault(t *testing.T) {
	h := newHarness(t)

	h.node.SetErrorState(7)
	sent := h.run(ValuesSelectiveRequest(nodeAddr, peerAddr, ValueFault))
	require.Len(t, sent, 1)
	assert.Equal(t, []byte{nodeAddr, 0, byte(CommGetValuesSelective), 0, 0, 0x80, 0x00, 1}, sent[0].Payload())

	h.node.SetErrorState(0)
	sent = h.run(ValuesSelectiveRequest(nodeAddr, peerAddr, ValueFault))
	require.Len(t, sent, 1)
	assert.Equal(t, byte(0), sent[0].Data[sent[0].Len-1])
}

func TestValuesSelectiveBothAndOther(t *testing.T) {
	h := newHarness(t)
	h.node.SetBusVoltage(48)
	h.node.SetErrorState(1)

	sent := h.run(ValuesSelectiveRequest(nodeAddr, peerAddr, ValueVoltageIn|ValueFault|1<<0|1<<3))
	require.Len(t, sent, 2)

	var s ShortBuffer
	require.NoError(t, s.UnmarshalCANFrame(sent[0]))
	v, err := ParseSelectiveValue(s)
	require.NoError(t, err)
	assert.Equal(t, SelectiveValue{Source: nodeAddr, Mask: ValueVoltageIn, Value: []byte{1}}, v)

	require.NoError(t, s.UnmarshalCANFrame(sent[1]))
	v, err = ParseSelectiveValue(s)
	require.NoError(t, err)
	assert.Equal(t, SelectiveValue{Source: nodeAddr, Mask: ValueFault, Value: []byte{1}}, v)

	assert.Empty(t, h.run(ValuesSelectiveRequest(nodeAddr, peerAddr, 1<<0|1<<7)), "unsupported bits are not answered")
}

func TestValuesSelectiveEnablesMotorInLocalMode(t *testing.T) {
	h := newHarness(t)
	require.False(t, h.motor.enabled)

	h.run(ValuesSelectiveRequest(nodeAddr, peerAddr, 0))
	assert.True(t, h.motor.enabled, "query with remote disabled enables the motor")
	assert.Equal(t, 1, h.motor.enables)

	h.run(ValuesSelectiveRequest(nodeAddr, peerAddr, 0))
	assert.Equal(t, 1, h.motor.enables, "already enabled")

	r := newHarness(t)
	r.node.SetRemoteEnable(true)
	r.run(ValuesSelectiveRequest(nodeAddr, peerAddr, 0))
	assert.False(t, r.motor.enabled, "remote mode never enables from a query")
}

func TestValuesSelectiveShortRequestHasNoSideEffects(t *testing.T) {
	h := newHarness(t)
	h.clock.now = 500000

	short, err := ShortBuffer{ReplyTo: peerAddr, Command: CommGetValuesSelective, Payload: []byte{0, 0, 1}}.MarshalCANFrame(nodeAddr)
	require.NoError(t, err)
	assert.Empty(t, h.run(short))
	assert.False(t, h.motor.enabled)
	assert.Equal(t, uint32(0), h.node.watchdog.Last())
	assert.Equal(t, 1, h.metrics.dropped[DropShortPayload])
}

func TestWatchdog(t *testing.T) {
	h := newHarness(t)
	h.node.SetRemoteEnable(true)
	h.motor.enabled = true

	h.clock.now = 100000
	h.run(ValuesSelectiveRequest(nodeAddr, peerAddr, 0))
	assert.Equal(t, uint32(100000), h.node.watchdog.Last())

	h.clock.now = 100000 + 900000
	h.node.Run()
	assert.True(t, h.motor.enabled, "exactly 900ms is not a timeout")

	h.clock.now++
	h.node.Run()
	assert.False(t, h.motor.enabled)
	assert.Equal(t, 1, h.motor.disables)
	assert.Equal(t, 1, h.metrics.trips)

	h.clock.now += 5000000
	h.node.Run()
	assert.Equal(t, 1, h.motor.disables, "disabled once per violation")

	h.node.SetRemoteEnable(false)
	h.run(ValuesSelectiveRequest(nodeAddr, peerAddr, 0))
	assert.True(t, h.motor.enabled)
	h.clock.now += 10000000
	h.node.Run()
	assert.True(t, h.motor.enabled, "watchdog inactive without remote enable")
}

func TestWatchdogTripsFromStartup(t *testing.T) {
	h := newHarness(t)
	h.node.SetRemoteEnable(true)
	h.motor.enabled = true

	h.clock.now = 900001
	h.node.Run()
	assert.False(t, h.motor.enabled, "no query since startup")
}

func TestWatchdogClockWrap(t *testing.T) {
	h := newHarness(t)
	h.node.SetRemoteEnable(true)
	h.motor.enabled = true

	h.clock.now = math.MaxUint32 - 100000
	h.run(ValuesSelectiveRequest(nodeAddr, peerAddr, 0))

	h.clock.now = 500000 // wrapped, 600001us later
	h.node.Run()
	assert.True(t, h.motor.enabled)

	h.clock.now = 800001
	h.node.Run()
	assert.False(t, h.motor.enabled)
}

func TestIgnoredFrames(t *testing.T) {
	h := newHarness(t)
	h.node.SetRemoteEnable(true)
	h.motor.target = 1

	unknown, err := canbus.NewExtended(FrameID(nodeAddr, 99), []byte{1, 2, 3, 4})
	require.NoError(t, err)
	fill, err := canbus.NewExtended(FrameID(nodeAddr, CmdFillRxBuffer), []byte{0, 1, 2})
	require.NoError(t, err)
	standard := canbus.MustFrame(FrameID(nodeAddr, CmdPing)&canbus.MaxStdID, nil)
	tooShort, err := canbus.NewExtended(FrameID(nodeAddr, CmdProcessShortBuffer), []byte{peerAddr, 0})
	require.NoError(t, err)
	rotorComm, err := ShortBuffer{ReplyTo: peerAddr, Command: CommRotorPosition}.MarshalCANFrame(nodeAddr)
	require.NoError(t, err)
	zeroTarget := PingFrame(0)

	sent := h.run(unknown, fill, standard, tooShort, rotorComm, zeroTarget)
	assert.Empty(t, sent)
	assert.Equal(t, 1.0, h.motor.target)
	assert.False(t, h.motor.enabled)
	assert.Equal(t, 2, h.metrics.dropped[DropUnknownCommand])
	assert.Equal(t, 1, h.metrics.dropped[DropStandardID])
	assert.Equal(t, 1, h.metrics.dropped[DropShortPayload])
	assert.Equal(t, 1, h.metrics.dropped[DropUnknownSubCommand])
	assert.Equal(t, 1, h.metrics.dropped[DropNotAddressed])
}

// The post-filter address check accepts any nonzero target. Kept as is
// until peers are known not to depend on it.
func TestAddressCheckIsLoose(t *testing.T) {
	h := newHarness(t)

	sent := h.run(PingFrame(0x05), PingFrame(0xFF))
	require.Len(t, sent, 2)
	for _, f := range sent {
		assert.Equal(t, FrameID(nodeAddr, CmdPong), f.ID)
	}
	assert.Empty(t, h.run(PingFrame(0)))
}

func TestRunDrainsAllQueuedFrames(t *testing.T) {
	h := newHarness(t)

	frames := make([]canbus.Frame, 0, 10)
	for i := 0; i < 10; i++ {
		frames = append(frames, PingFrame(nodeAddr))
	}
	assert.Len(t, h.run(frames...), 10)
	assert.Equal(t, 0, h.tr.Available())
	assert.Equal(t, 10, h.metrics.received[CmdPing])
}

func TestReadAndWriteErrors(t *testing.T) {
	h := newHarness(t)

	h.tr.readErr = errors.New("controller fault")
	h.tr.push(PingFrame(nodeAddr))
	h.node.Run()
	assert.Equal(t, 1, h.metrics.dropped[DropReadError])

	h.tr.readErr = nil
	h.tr.failWith = errors.New("tx full")
	h.node.Run()
	assert.Empty(t, h.tr.tx)
	assert.Equal(t, 1, h.metrics.dropped[DropWriteError])
	assert.Zero(t, h.metrics.sent[CmdPong])
}
