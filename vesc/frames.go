package vesc

import (
	"encoding/binary"
	"fmt"

	"github.com/notnil/vescnode/canbus"
)

// Builders for the requests a Node answers, as a commanding peer sends
// them, and parsers for the answers.

func mustExtended(id uint32, data []byte) canbus.Frame {
	f, err := canbus.NewExtended(id, data)
	if err != nil {
		panic(err)
	}
	return f
}

// PingFrame builds a PING to target.
func PingFrame(target uint8) canbus.Frame {
	return mustExtended(FrameID(target, CmdPing), nil)
}

// SetCurrentRelFrame builds a SET_CURRENT_REL asking target for fraction of
// its current limit.
func SetCurrentRelFrame(target uint8, fraction float64) canbus.Frame {
	return mustExtended(FrameID(target, CmdSetCurrentRel), putInt32(EncodeCurrentRel(fraction)))
}

// PollRotorPosFrame builds a POLL_ROTOR_POS to target.
func PollRotorPosFrame(target uint8) canbus.Frame {
	return mustExtended(FrameID(target, CmdPollRotorPos), nil)
}

// FirmwareVersionRequest builds a short-buffer FW_VERSION query to target,
// answered to replyTo.
func FirmwareVersionRequest(target, replyTo uint8) canbus.Frame {
	f, _ := ShortBuffer{ReplyTo: replyTo, Command: CommFWVersion}.MarshalCANFrame(target)
	return f
}

// ValuesSelectiveRequest builds a short-buffer GET_VALUES_SELECTIVE query.
func ValuesSelectiveRequest(target, replyTo uint8, mask uint32) canbus.Frame {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, mask)
	f, _ := ShortBuffer{ReplyTo: replyTo, Command: CommGetValuesSelective, Payload: payload}.MarshalCANFrame(target)
	return f
}

// ParseRotorPos decodes a POLL_ROTOR_POS answer into source address and
// degrees.
func ParseRotorPos(f canbus.Frame) (uint8, float64, error) {
	src, cmd := SplitID(f.ID)
	if cmd != CmdPollRotorPos {
		return 0, 0, fmt.Errorf("vesc: not a rotor position frame (id=0x%X)", f.ID)
	}
	if f.Len < 4 {
		return 0, 0, fmt.Errorf("%w: rotor position has %d bytes", ErrShortFrame, f.Len)
	}
	v := int32(binary.BigEndian.Uint32(f.Data[:4]))
	return src, DecodeRotorPos(v), nil
}

// SelectiveValue is one answer to GET_VALUES_SELECTIVE: the single mask bit
// it answers and the raw value bytes that followed it.
type SelectiveValue struct {
	Source uint8
	Mask   uint32
	Value  []byte
}

// ParseSelectiveValue decodes a GET_VALUES_SELECTIVE answer.
func ParseSelectiveValue(s ShortBuffer) (SelectiveValue, error) {
	if s.Command != CommGetValuesSelective {
		return SelectiveValue{}, fmt.Errorf("vesc: unexpected short buffer command %v", s.Command)
	}
	if len(s.Payload) < 4 {
		return SelectiveValue{}, fmt.Errorf("%w: selective value has %d bytes", ErrShortFrame, len(s.Payload))
	}
	return SelectiveValue{
		Source: s.ReplyTo,
		Mask:   binary.BigEndian.Uint32(s.Payload[:4]),
		Value:  s.Payload[4:],
	}, nil
}
