package clock

import (
	"context"
	"sync"
	"time"
)

// Manual is a deterministic Clock for tests. Time only moves through Advance
// and Sleep; Sleep returns immediately after advancing the clock.
type Manual struct {
	mu      sync.Mutex
	mono    time.Duration
	base    time.Time
	offset  time.Duration
	jumps   int
	sleeps  []time.Duration
	onSleep func(n int, d time.Duration)
}

var _ Clock = (*Manual)(nil)

// NewManual returns a Manual clock whose UTC time starts at base.
func NewManual(base time.Time) *Manual {
	return &Manual{base: base.UTC()}
}

func (m *Manual) Monotonic() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mono
}

func (m *Manual) UTC() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.base.Add(m.mono + m.offset)
}

func (m *Manual) AdjustUTC(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offset += d
	m.jumps++
}

// Offset returns the accumulated UTC adjustment.
func (m *Manual) Offset() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offset
}

// Adjustments returns how many times AdjustUTC was called.
func (m *Manual) Adjustments() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jumps
}

// Advance moves both monotonic and UTC time forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mono += d
}

// OnSleep registers fn to run after every Sleep with the 1-based sleep count.
// Tests use it to cancel the context after a number of sleeps.
func (m *Manual) OnSleep(fn func(n int, d time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSleep = fn
}

// Sleeps returns the durations passed to Sleep so far.
func (m *Manual) Sleeps() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.sleeps...)
}

func (m *Manual) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	if d > 0 {
		m.mono += d
	}
	m.sleeps = append(m.sleeps, d)
	n := len(m.sleeps)
	fn := m.onSleep
	m.mu.Unlock()
	if fn != nil {
		fn(n, d)
	}
	return ctx.Err()
}
