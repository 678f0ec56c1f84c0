package uavcan

import (
	"errors"
	"fmt"
)

// NodeID identifies a node on the bus (1..127). Zero is the anonymous node.
type NodeID uint8

const (
	// Anonymous is the node id of a node that has not been assigned one.
	Anonymous NodeID = 0
	// MaxNodeID is the highest valid node id.
	MaxNodeID NodeID = 127
)

// Validate checks that the node identifier is in the range 1..127.
func (n NodeID) Validate() error {
	if n < 1 || n > MaxNodeID {
		return fmt.Errorf("uavcan: invalid node id %d (valid 1..127)", n)
	}
	return nil
}

// Kind distinguishes broadcast messages from service requests and responses.
type Kind uint8

const (
	KindMessage Kind = iota
	KindRequest
	KindResponse
)

func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Transfer priorities; lower values win arbitration.
const (
	PriorityHighest uint8 = 0
	PriorityHigh    uint8 = 8
	PriorityMedium  uint8 = 16
	PriorityLow     uint8 = 24
	PriorityLowest  uint8 = 31
)

// Data type identifiers.
const (
	GlobalTimeSyncID   uint16 = 4
	NodeStatusID       uint16 = 341
	ServiceCallStormID uint16 = 200
)

var ErrInvalidCANID = errors.New("uavcan: invalid CAN identifier")

// ID is the decoded form of a 29-bit transfer identifier.
//
// Message layout:
//
//	28..24 priority | 23..8 data type id | 7 service=0 | 6..0 source node
//
// Service layout:
//
//	28..24 priority | 23..16 data type id | 15 request | 14..8 destination | 7 service=1 | 6..0 source
type ID struct {
	Priority    uint8
	Kind        Kind
	DataType    uint16
	Source      NodeID
	Destination NodeID // services only
}

// CANID composes the 29-bit identifier.
func (id ID) CANID() (uint32, error) {
	if id.Priority > PriorityLowest {
		return 0, fmt.Errorf("uavcan: priority %d out of range", id.Priority)
	}
	if id.Source > MaxNodeID {
		return 0, fmt.Errorf("uavcan: source node %d out of range", id.Source)
	}
	v := uint32(id.Priority) << 24
	switch id.Kind {
	case KindMessage:
		v |= uint32(id.DataType) << 8
	case KindRequest, KindResponse:
		if id.DataType > 0xFF {
			return 0, fmt.Errorf("uavcan: service type %d out of range", id.DataType)
		}
		if err := id.Destination.Validate(); err != nil {
			return 0, err
		}
		if id.Source == Anonymous {
			return 0, errors.New("uavcan: anonymous nodes cannot use services")
		}
		v |= uint32(id.DataType) << 16
		if id.Kind == KindRequest {
			v |= 1 << 15
		}
		v |= uint32(id.Destination) << 8
		v |= 1 << 7
	default:
		return 0, fmt.Errorf("uavcan: unknown transfer kind %d", id.Kind)
	}
	v |= uint32(id.Source)
	return v, nil
}

// ParseCANID decodes a 29-bit identifier.
func ParseCANID(v uint32) (ID, error) {
	if v > 0x1FFFFFFF {
		return ID{}, ErrInvalidCANID
	}
	id := ID{
		Priority: uint8(v >> 24),
		Source:   NodeID(v & 0x7F),
	}
	if v&(1<<7) == 0 {
		id.Kind = KindMessage
		id.DataType = uint16(v >> 8)
		return id, nil
	}
	id.Kind = KindResponse
	if v&(1<<15) != 0 {
		id.Kind = KindRequest
	}
	id.DataType = uint16((v >> 16) & 0xFF)
	id.Destination = NodeID((v >> 8) & 0x7F)
	if id.Destination == Anonymous {
		return ID{}, fmt.Errorf("%w: service without destination (0x%08X)", ErrInvalidCANID, v)
	}
	return id, nil
}
