// Package canbus is the bus transport adapter used by the node runtime.
//
// It includes:
//   - A classical CAN Frame type with validation and binary marshaling helpers
//   - The Bus and Driver interfaces consumed by the node
//   - An in-memory loopback bus for tests and simulations
//   - A Mux that fans received frames out to filtered subscribers
//   - A Linux SocketCAN driver (linux-only) via raw syscalls
package canbus
