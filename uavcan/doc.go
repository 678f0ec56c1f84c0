// Package uavcan encodes the node protocol carried on the bus: UAVCAN v0 style
// 29-bit identifiers, single-frame transfers with a tail byte, and the three
// data types the node runtime exchanges with its peers:
//   - NodeStatus, broadcast periodically by every node
//   - GlobalTimeSync, broadcast by the time-sync publisher
//   - ServiceCallStorm, a one-byte request/response service
//
// Multi-frame transfers are not implemented; every payload used here fits in
// the seven bytes that precede the tail byte.
package uavcan
