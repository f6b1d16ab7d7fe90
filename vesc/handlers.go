package vesc

import (
	"encoding/binary"

	"github.com/notnil/vescnode/canbus"
)

func (n *Node) handleSetCurrentRel(f canbus.Frame) {
	if f.Len < 4 {
		n.drop(f, DropShortPayload)
		return
	}
	if !n.remoteEnable {
		n.drop(f, DropRemoteDisabled)
		return
	}
	raw := int32(binary.BigEndian.Uint32(f.Data[:4]))
	n.motor.SetTarget(n.motor.CurrentLimit() * DecodeCurrentRel(raw))
}

func (n *Node) handlePing() {
	n.logger.Debug("vesc ping")
	n.send(n.address, CmdPong, nil)
}

func (n *Node) handlePollRotorPos() {
	n.send(n.address, CmdPollRotorPos, putInt32(EncodeRotorPos(n.motor.ShaftAngle())))
}

func (n *Node) handleShortBuffer(f canbus.Frame, now uint32) {
	var msg ShortBuffer
	if err := msg.UnmarshalCANFrame(f); err != nil {
		n.drop(f, DropShortPayload)
		return
	}
	switch msg.Command {
	case CommFWVersion:
		n.sendShort(msg.ReplyTo, CommFWVersion, n.firmware.Major, n.firmware.Minor)
	case CommGetValuesSelective:
		n.handleValuesSelective(f, msg, now)
	default:
		n.drop(f, DropUnknownSubCommand)
	}
}

// handleValuesSelective answers the voltage and fault bits of a selective
// values query, one frame per bit. The query is also the only traffic that
// feeds the watchdog, and in local mode it switches the motor on.
func (n *Node) handleValuesSelective(f canbus.Frame, msg ShortBuffer, now uint32) {
	if len(msg.Payload) < 4 {
		n.drop(f, DropShortPayload)
		return
	}
	n.watchdog.Feed(now)
	if !n.motor.Enabled() && !n.remoteEnable {
		n.motor.Enable()
	}

	mask := binary.BigEndian.Uint32(msg.Payload[:4])
	if mask&ValueVoltageIn != 0 {
		n.sendShort(msg.ReplyTo, CommGetValuesSelective, selectiveReply(ValueVoltageIn, voltageHighByte(n.voltage))...)
	}
	if mask&ValueFault != 0 {
		n.sendShort(msg.ReplyTo, CommGetValuesSelective, selectiveReply(ValueFault, faultByte(n.errorState))...)
	}
}

// selectiveReply is the echoed single-bit mask followed by the value.
func selectiveReply(bit uint32, value ...byte) []byte {
	b := make([]byte, 4, 4+len(value))
	binary.BigEndian.PutUint32(b, bit)
	return append(b, value...)
}
