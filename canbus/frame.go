package canbus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// Frame is one classical CAN 2.0 frame. CAN FD is not supported.
type Frame struct {
	ID       uint32 // 11 or 29 significant bits depending on Extended
	Extended bool
	RTR      bool
	Len      uint8 // 0..8
	Data     [8]byte
}

const (
	maxStdID   = 0x7FF
	maxExtID   = 0x1FFFFFFF
	maxDataLen = 8
)

// can_id flag bits used by the SocketCAN encoding.
const (
	flagEFF = 1 << 31
	flagRTR = 1 << 30
)

// FrameSize is the length of a Linux struct can_frame.
const FrameSize = 16

var (
	ErrInvalidID  = errors.New("canbus: invalid identifier")
	ErrInvalidLen = errors.New("canbus: invalid data length")
)

func (f Frame) idLimit() uint32 {
	if f.Extended {
		return maxExtID
	}
	return maxStdID
}

// Validate reports whether the identifier fits its format and the length is
// at most eight.
func (f Frame) Validate() error {
	switch {
	case f.Len > maxDataLen:
		return ErrInvalidLen
	case f.ID > f.idLimit():
		return ErrInvalidID
	}
	return nil
}

// Payload is Data truncated to Len.
func (f Frame) Payload() []byte {
	return f.Data[:min(int(f.Len), maxDataLen)]
}

// MustFrame builds a data frame and panics on invalid input. Identifiers that
// do not fit in 11 bits yield extended frames.
func MustFrame(id uint32, data []byte) Frame {
	if len(data) > maxDataLen {
		panic(ErrInvalidLen)
	}
	f := Frame{ID: id, Extended: id > maxStdID, Len: uint8(len(data))}
	copy(f.Data[:], data)
	if err := f.Validate(); err != nil {
		panic(err)
	}
	return f
}

// String formats the frame like candump: "123 [2] DE AD", with an eight digit
// identifier for extended frames.
func (f Frame) String() string {
	var b strings.Builder
	width := 3
	if f.Extended {
		width = 8
	}
	fmt.Fprintf(&b, "%0*X [%d]", width, f.ID, f.Len)
	if f.RTR {
		b.WriteString(" RTR")
		return b.String()
	}
	for _, v := range f.Payload() {
		fmt.Fprintf(&b, " %02X", v)
	}
	return b.String()
}

// MarshalBinary encodes the frame as a little-endian struct can_frame: the
// flagged can_id in bytes 0..3, the length in byte 4, zero padding and then
// the eight data bytes.
func (f Frame) MarshalBinary() ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	canID := f.ID
	if f.Extended {
		canID |= flagEFF
	}
	if f.RTR {
		canID |= flagRTR
	}
	buf := make([]byte, FrameSize)
	binary.LittleEndian.PutUint32(buf, canID)
	buf[4] = f.Len
	copy(buf[8:], f.Data[:])
	return buf, nil
}

// UnmarshalBinary is the inverse of MarshalBinary.
func (f *Frame) UnmarshalBinary(data []byte) error {
	if len(data) < FrameSize {
		return fmt.Errorf("canbus: short can_frame: %d of %d bytes", len(data), FrameSize)
	}
	canID := binary.LittleEndian.Uint32(data)
	*f = Frame{
		Extended: canID&flagEFF != 0,
		RTR:      canID&flagRTR != 0,
		Len:      data[4],
	}
	f.ID = canID & f.idLimit()
	copy(f.Data[:], data[8:FrameSize])
	return f.Validate()
}
