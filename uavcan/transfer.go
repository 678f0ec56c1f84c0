package uavcan

import (
	"errors"
	"fmt"

	"github.com/notnil/cannode/canbus"
)

// MaxPayload is the payload capacity of a single-frame transfer.
const MaxPayload = 7

// Tail byte bits.
const (
	tailStart      = 1 << 7
	tailEnd        = 1 << 6
	tailToggle     = 1 << 5
	transferIDMask = 0x1F
)

var (
	ErrMultiFrame = errors.New("uavcan: multi-frame transfers are not supported")
	ErrNotUAVCAN  = errors.New("uavcan: not a protocol frame")
)

// NextTransferID returns the 5-bit transfer id following tid.
func NextTransferID(tid uint8) uint8 {
	return (tid + 1) & transferIDMask
}

// Transfer is a single-frame transfer: identifier, transfer id and payload.
type Transfer struct {
	ID         ID
	TransferID uint8
	Payload    []byte
}

// MarshalCANFrame encodes the transfer into one extended data frame with the
// tail byte appended to the payload.
func (t Transfer) MarshalCANFrame() (canbus.Frame, error) {
	if len(t.Payload) > MaxPayload {
		return canbus.Frame{}, fmt.Errorf("%w (payload %d bytes)", ErrMultiFrame, len(t.Payload))
	}
	id, err := t.ID.CANID()
	if err != nil {
		return canbus.Frame{}, err
	}
	var f canbus.Frame
	f.ID = id
	f.Extended = true
	n := copy(f.Data[:], t.Payload)
	f.Data[n] = tailStart | tailEnd | (t.TransferID & transferIDMask)
	f.Len = uint8(n + 1)
	return f, nil
}

// UnmarshalCANFrame decodes a single-frame transfer. The payload aliases a
// fresh copy, not the frame.
func (t *Transfer) UnmarshalCANFrame(f canbus.Frame) error {
	if !f.Extended || f.RTR || f.Len < 1 {
		return ErrNotUAVCAN
	}
	id, err := ParseCANID(f.ID)
	if err != nil {
		return err
	}
	tail := f.Data[f.Len-1]
	if tail&tailStart == 0 || tail&tailEnd == 0 {
		return ErrMultiFrame
	}
	if tail&tailToggle != 0 {
		return fmt.Errorf("uavcan: toggle bit set on first frame (tail 0x%02X)", tail)
	}
	t.ID = id
	t.TransferID = tail & transferIDMask
	t.Payload = append([]byte(nil), f.Data[:f.Len-1]...)
	return nil
}
