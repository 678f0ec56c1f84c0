package uavcan

import (
	"fmt"
	"time"
)

// GlobalTimeSync carries the publisher's UTC time in microseconds since the
// Unix epoch as a 56-bit little-endian integer. Zero means "no time".
type GlobalTimeSync struct {
	Timestamp time.Time
}

const (
	timeSyncSize = 7
	maxUsec56    = 1<<56 - 1
)

func (m GlobalTimeSync) MarshalPayload() ([]byte, error) {
	var usec int64
	if !m.Timestamp.IsZero() {
		usec = m.Timestamp.UnixMicro()
	}
	if usec < 0 || usec > maxUsec56 {
		return nil, fmt.Errorf("uavcan: timestamp %v not representable", m.Timestamp)
	}
	b := make([]byte, timeSyncSize)
	for i := 0; i < timeSyncSize; i++ {
		b[i] = byte(usec >> (8 * i))
	}
	return b, nil
}

func (m *GlobalTimeSync) UnmarshalPayload(b []byte) error {
	if len(b) < timeSyncSize {
		return fmt.Errorf("uavcan: time sync too short: %d", len(b))
	}
	var usec int64
	for i := 0; i < timeSyncSize; i++ {
		usec |= int64(b[i]) << (8 * i)
	}
	if usec == 0 {
		m.Timestamp = time.Time{}
		return nil
	}
	m.Timestamp = time.UnixMicro(usec).UTC()
	return nil
}
