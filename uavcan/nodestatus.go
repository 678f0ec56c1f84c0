package uavcan

import (
	"encoding/binary"
	"fmt"
)

// NodeStatus is broadcast by every node to report liveness and health.
//
// Layout (7 bytes, little-endian):
//
//	0..3 uptime in seconds
//	4    status code
//	5..6 vendor specific status
type NodeStatus struct {
	UptimeSec uint32
	Code      StatusCode
	Vendor    uint16
}

const nodeStatusSize = 7

func (s NodeStatus) MarshalPayload() ([]byte, error) {
	b := make([]byte, nodeStatusSize)
	binary.LittleEndian.PutUint32(b[0:4], s.UptimeSec)
	b[4] = byte(s.Code)
	binary.LittleEndian.PutUint16(b[5:7], s.Vendor)
	return b, nil
}

func (s *NodeStatus) UnmarshalPayload(b []byte) error {
	// Older nodes omit the vendor field.
	if len(b) < 5 {
		return fmt.Errorf("uavcan: node status too short: %d", len(b))
	}
	s.UptimeSec = binary.LittleEndian.Uint32(b[0:4])
	s.Code = StatusCode(b[4])
	s.Vendor = 0
	if len(b) >= nodeStatusSize {
		s.Vendor = binary.LittleEndian.Uint16(b[5:7])
	}
	return nil
}
