package vesc

import "fmt"

// Command is the VESC CAN packet id carried in bits 8..15 of the extended
// identifier.
type Command uint8

const (
	CmdFillRxBuffer       Command = 5 // not supported
	CmdFillRxBufferLong   Command = 6 // not supported
	CmdProcessRxBuffer    Command = 7 // not supported
	CmdProcessShortBuffer Command = 8
	CmdSetCurrentRel      Command = 10
	CmdPing               Command = 17
	CmdPong               Command = 18
	CmdPollRotorPos       Command = 56
)

func (c Command) String() string {
	switch c {
	case CmdFillRxBuffer:
		return "FILL_RX_BUFFER"
	case CmdFillRxBufferLong:
		return "FILL_RX_BUFFER_LONG"
	case CmdProcessRxBuffer:
		return "PROCESS_RX_BUFFER"
	case CmdProcessShortBuffer:
		return "PROCESS_SHORT_BUFFER"
	case CmdSetCurrentRel:
		return "SET_CURRENT_REL"
	case CmdPing:
		return "PING"
	case CmdPong:
		return "PONG"
	case CmdPollRotorPos:
		return "POLL_ROTOR_POS"
	default:
		return fmt.Sprintf("CMD_%d", uint8(c))
	}
}

// Comm is a command id inside a short-buffer message.
type Comm uint8

const (
	CommFWVersion          Comm = 0
	CommRotorPosition      Comm = 22 // not supported
	CommGetValuesSelective Comm = 50
)

func (c Comm) String() string {
	switch c {
	case CommFWVersion:
		return "COMM_FW_VERSION"
	case CommRotorPosition:
		return "COMM_ROTOR_POSITION"
	case CommGetValuesSelective:
		return "COMM_GET_VALUES_SELECTIVE"
	default:
		return fmt.Sprintf("COMM_%d", uint8(c))
	}
}

// GET_VALUES_SELECTIVE mask bits answered by a Node.
const (
	ValueVoltageIn uint32 = 1 << 8
	ValueFault     uint32 = 1 << 15
)

// FrameID composes the 29-bit identifier for a packet to target.
func FrameID(target uint8, cmd Command) uint32 {
	return uint32(target) | uint32(cmd)<<8
}

// SplitID decomposes an identifier into target address and command. Bits
// above 15 are ignored.
func SplitID(id uint32) (target uint8, cmd Command) {
	return uint8(id & 0xFF), Command((id >> 8) & 0xFF)
}
