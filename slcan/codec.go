package slcan

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/notnil/vescnode/canbus"
)

// ErrMalformed is returned for text that is not a frame.
var ErrMalformed = errors.New("slcan: malformed frame")

// ErrBitrate is returned for a bit rate the adapter has no setup code for.
var ErrBitrate = errors.New("slcan: unsupported bitrate")

// bitrates maps bits/s to the S<n> setup command digit.
var bitrates = map[uint32]byte{
	10000:   '0',
	20000:   '1',
	50000:   '2',
	100000:  '3',
	125000:  '4',
	250000:  '5',
	500000:  '6',
	800000:  '7',
	1000000: '8',
}

// BitrateCommand returns the setup command for bitrate, e.g. "S6\r".
func BitrateCommand(bitrate uint32) (string, error) {
	c, ok := bitrates[bitrate]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrBitrate, bitrate)
	}
	return "S" + string(c) + "\r", nil
}

// EncodeFrame renders f as a carriage-return terminated command.
func EncodeFrame(f canbus.Frame) (string, error) {
	if err := f.Validate(); err != nil {
		return "", err
	}
	var b strings.Builder
	switch {
	case f.RTR && f.Extended:
		b.WriteByte('R')
	case f.RTR:
		b.WriteByte('r')
	case f.Extended:
		b.WriteByte('T')
	default:
		b.WriteByte('t')
	}
	if f.Extended {
		fmt.Fprintf(&b, "%08X", f.ID)
	} else {
		fmt.Fprintf(&b, "%03X", f.ID)
	}
	b.WriteByte('0' + f.Len)
	if !f.RTR {
		for _, c := range f.Payload() {
			fmt.Fprintf(&b, "%02X", c)
		}
	}
	b.WriteByte('\r')
	return b.String(), nil
}

// DecodeFrame parses one frame line without its terminator. Trailing
// characters after the data, such as a timestamp, are ignored.
func DecodeFrame(line string) (canbus.Frame, error) {
	if len(line) == 0 {
		return canbus.Frame{}, ErrMalformed
	}
	var f canbus.Frame
	idLen := 3
	switch line[0] {
	case 't':
	case 'r':
		f.RTR = true
	case 'T':
		f.Extended = true
		idLen = 8
	case 'R':
		f.Extended, f.RTR = true, true
		idLen = 8
	default:
		return canbus.Frame{}, fmt.Errorf("%w: unknown type %q", ErrMalformed, line[0])
	}
	if len(line) < 1+idLen+1 {
		return canbus.Frame{}, fmt.Errorf("%w: %q too short", ErrMalformed, line)
	}
	id, err := strconv.ParseUint(line[1:1+idLen], 16, 32)
	if err != nil {
		return canbus.Frame{}, fmt.Errorf("%w: id: %v", ErrMalformed, err)
	}
	f.ID = uint32(id)
	dlc := line[1+idLen]
	if dlc < '0' || dlc > '8' {
		return canbus.Frame{}, fmt.Errorf("%w: length %q", ErrMalformed, dlc)
	}
	f.Len = dlc - '0'
	if !f.RTR {
		data := line[2+idLen:]
		if len(data) < int(f.Len)*2 {
			return canbus.Frame{}, fmt.Errorf("%w: %q has %d data bytes, want %d", ErrMalformed, line, len(data)/2, f.Len)
		}
		for i := 0; i < int(f.Len); i++ {
			v, err := strconv.ParseUint(data[2*i:2*i+2], 16, 8)
			if err != nil {
				return canbus.Frame{}, fmt.Errorf("%w: data: %v", ErrMalformed, err)
			}
			f.Data[i] = byte(v)
		}
	}
	if err := f.Validate(); err != nil {
		return canbus.Frame{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return f, nil
}
