package vesc

import (
	"encoding/binary"
	"math"
)

// Fixed-point scales used on the wire.
const (
	currentRelScale = 100000.0 // SET_CURRENT_REL fraction
	rotorPosScale   = 100000.0 // POLL_ROTOR_POS degrees
	voltageScale    = 10.0     // GET_VALUES_SELECTIVE decivolts
)

// WrapAngle maps an angle in radians into [0, 2π).
func WrapAngle(rad float64) float64 {
	a := math.Mod(rad, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	if a >= 2*math.Pi {
		a = 0
	}
	return a
}

// EncodeRotorPos converts a shaft angle in radians to the POLL_ROTOR_POS
// value: degrees in [0, 360) scaled by 1e5, truncated toward zero.
func EncodeRotorPos(rad float64) int32 {
	deg := WrapAngle(rad) * 180 / math.Pi
	return int32(deg * rotorPosScale)
}

// DecodeRotorPos converts a POLL_ROTOR_POS value back to degrees.
func DecodeRotorPos(v int32) float64 {
	return float64(v) / rotorPosScale
}

// DecodeCurrentRel converts a SET_CURRENT_REL value to a fraction of the
// current limit. 50000 is 0.5; negative values reverse torque.
func DecodeCurrentRel(v int32) float64 {
	return float64(v) / currentRelScale
}

// EncodeCurrentRel is the inverse of DecodeCurrentRel, truncating toward zero.
func EncodeCurrentRel(fraction float64) int32 {
	return int32(fraction * currentRelScale)
}

// voltageHighByte returns the most significant byte of the int16 decivolt
// value. The low byte would need a multi-frame transfer and is never sent.
func voltageHighByte(volts float64) byte {
	return byte(int16(volts*voltageScale) >> 8)
}

// faultByte reduces an error code to the 0/1 status flag.
func faultByte(code int) byte {
	if code != 0 {
		return 1
	}
	return 0
}

func putInt32(v int32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(v))
	return b
}
