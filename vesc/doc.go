// Package vesc lets a motor-control process answer on a CAN bus as a VESC
// motor controller.
//
// A Node owns the node address and bus settings, polls a canbus.Transport
// once per control cycle, and services the subset of the VESC CAN protocol
// needed for discovery and remote torque control:
//   - PING, answered with PONG
//   - SET_CURRENT_REL, a torque request relative to the motor current limit
//   - POLL_ROTOR_POS, answered with the shaft angle in 1e-5 degrees
//   - PROCESS_SHORT_BUFFER carrying FW_VERSION and GET_VALUES_SELECTIVE
//
// A 900 ms watchdog disables the motor when remote control is enabled and
// the commanding peer stops polling. Multi-frame buffer transfers are not
// supported; the selective voltage reply therefore carries only the high
// byte of the decivolt value.
package vesc
