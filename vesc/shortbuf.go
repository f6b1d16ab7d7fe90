package vesc

import (
	"errors"
	"fmt"

	"github.com/notnil/vescnode/canbus"
)

const (
	shortBufferHeader     = 3
	maxShortBufferPayload = 8 - shortBufferHeader
)

// ErrShortFrame is returned when a frame is too short for its packet type.
var ErrShortFrame = errors.New("vesc: frame too short")

// ShortBuffer is a message carried in a single PROCESS_SHORT_BUFFER frame:
// {ReplyTo, Reserved, Command, Payload...}. In requests ReplyTo names the
// address the answer goes to; in answers it is the responder's own address.
type ShortBuffer struct {
	ReplyTo  uint8
	Reserved uint8 // 0 asks the receiver to process the message
	Command  Comm
	Payload  []byte
}

// MarshalCANFrame encodes the message as a PROCESS_SHORT_BUFFER frame to
// target. At most five payload bytes fit.
func (s ShortBuffer) MarshalCANFrame(target uint8) (canbus.Frame, error) {
	if len(s.Payload) > maxShortBufferPayload {
		return canbus.Frame{}, fmt.Errorf("vesc: short buffer payload %d bytes, max %d", len(s.Payload), maxShortBufferPayload)
	}
	data := make([]byte, 0, 8)
	data = append(data, s.ReplyTo, s.Reserved, byte(s.Command))
	data = append(data, s.Payload...)
	return canbus.NewExtended(FrameID(target, CmdProcessShortBuffer), data)
}

// UnmarshalCANFrame decodes the message from a frame payload. The command
// byte of the identifier is not checked. Payload aliases a copy of the data.
func (s *ShortBuffer) UnmarshalCANFrame(f canbus.Frame) error {
	p := f.Payload()
	if len(p) < shortBufferHeader {
		return fmt.Errorf("%w: short buffer has %d bytes", ErrShortFrame, len(p))
	}
	s.ReplyTo = p[0]
	s.Reserved = p[1]
	s.Command = Comm(p[2])
	s.Payload = append([]byte(nil), p[shortBufferHeader:]...)
	return nil
}

// ParseShortBuffer decodes a PROCESS_SHORT_BUFFER frame.
func ParseShortBuffer(f canbus.Frame) (ShortBuffer, error) {
	var s ShortBuffer
	if _, cmd := SplitID(f.ID); cmd != CmdProcessShortBuffer {
		return s, fmt.Errorf("vesc: not a short buffer frame (id=0x%X)", f.ID)
	}
	err := s.UnmarshalCANFrame(f)
	return s, err
}
