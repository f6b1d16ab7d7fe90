// Package canbus provides the CAN transport layer used by the VESC node.
//
// It includes:
//   - A core Frame type with validation and binary marshaling helpers
//   - Composable frame filters and a controller-style acceptance Filter
//   - The blocking Bus interface and the polled Transport interface
//   - Queue, which pumps a Bus into a non-blocking Transport
//   - An in-memory loopback bus for tests and simulations
//   - A Linux SocketCAN driver (linux-only) built on golang.org/x/sys/unix
package canbus
