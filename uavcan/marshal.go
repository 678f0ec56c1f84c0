package uavcan

import "github.com/notnil/cannode/canbus"

// PayloadMarshaler encodes a typed data structure into a transfer payload.
type PayloadMarshaler interface {
	MarshalPayload() ([]byte, error)
}

// PayloadUnmarshaler decodes a typed data structure from a transfer payload.
type PayloadUnmarshaler interface {
	UnmarshalPayload([]byte) error
}

// PayloadCodec combines marshaling and unmarshaling of payloads.
type PayloadCodec interface {
	PayloadMarshaler
	PayloadUnmarshaler
}

// EncodeFrame marshals m as the payload of a single-frame transfer.
func EncodeFrame(id ID, transferID uint8, m PayloadMarshaler) (canbus.Frame, error) {
	payload, err := m.MarshalPayload()
	if err != nil {
		return canbus.Frame{}, err
	}
	return Transfer{ID: id, TransferID: transferID, Payload: payload}.MarshalCANFrame()
}
