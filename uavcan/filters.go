package uavcan

import "github.com/notnil/cannode/canbus"

// Protocol-typed frame filters.

// Frames matches extended data frames that decode as a protocol identifier.
func Frames() canbus.FrameFilter {
	return canbus.And(canbus.ExtendedOnly(), canbus.DataOnly(), canbus.LenAtLeast(1), func(f canbus.Frame) bool {
		_, err := ParseCANID(f.ID)
		return err == nil
	})
}

// Messages matches broadcasts of the given data type.
func Messages(dataType uint16) canbus.FrameFilter {
	return canbus.And(Frames(), func(f canbus.Frame) bool {
		id, _ := ParseCANID(f.ID)
		return id.Kind == KindMessage && id.DataType == dataType
	})
}

// ServicesFor matches service requests and responses addressed to node.
func ServicesFor(node NodeID) canbus.FrameFilter {
	return canbus.And(Frames(), func(f canbus.Frame) bool {
		id, _ := ParseCANID(f.ID)
		return id.Kind != KindMessage && id.Destination == node
	})
}

// ForNode matches everything a node with the given id consumes: all
// broadcasts plus services addressed to it.
func ForNode(node NodeID) canbus.FrameFilter {
	return canbus.And(Frames(), func(f canbus.Frame) bool {
		id, _ := ParseCANID(f.ID)
		return id.Kind == KindMessage || id.Destination == node
	})
}
