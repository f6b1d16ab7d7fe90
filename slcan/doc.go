// Package slcan drives serial-line CAN adapters that speak the Lawicel ASCII
// protocol (CANable, CANtact, USBtin and similar), exposing them as a
// canbus.Bus.
//
// Frames travel as carriage-return terminated text:
//
//	t1230DEAD\r      standard data frame, id 0x123, 2 bytes
//	T0000110A0\r     extended data frame, id 0x0000110A, no data
//	r1230\r          standard remote frame
//	R0000110A0\r     extended remote frame
//
// The adapter acknowledges commands with '\r' (or "z\r"/"Z\r" after a
// transmit) and reports errors with a BELL byte.
package slcan
