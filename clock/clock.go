// Package clock is the time source of the node: a monotonic clock for
// scheduling and a UTC clock whose offset the time-sync roles adjust.
package clock

import (
	"context"
	"sync/atomic"
	"time"
)

// Clock provides monotonic and adjustable UTC time plus a cooperative sleep.
type Clock interface {
	// Monotonic returns the time elapsed since the clock was created.
	Monotonic() time.Duration
	// UTC returns the current UTC time including the applied offset.
	UTC() time.Time
	// AdjustUTC shifts the UTC clock by d.
	AdjustUTC(d time.Duration)
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in that case.
	Sleep(ctx context.Context, d time.Duration) error
}

// System is a Clock backed by the operating system clock.
type System struct {
	start  time.Time
	offset atomic.Int64
	jumps  atomic.Uint64
}

var _ Clock = (*System)(nil)

// NewSystem returns a System clock with a zero UTC offset.
func NewSystem() *System {
	return &System{start: time.Now()}
}

func (s *System) Monotonic() time.Duration { return time.Since(s.start) }

func (s *System) UTC() time.Time {
	return time.Now().UTC().Add(time.Duration(s.offset.Load()))
}

func (s *System) AdjustUTC(d time.Duration) {
	s.offset.Add(int64(d))
	s.jumps.Add(1)
}

// Offset returns the accumulated UTC adjustment.
func (s *System) Offset() time.Duration { return time.Duration(s.offset.Load()) }

// Adjustments returns how many times AdjustUTC was called.
func (s *System) Adjustments() uint64 { return s.jumps.Load() }

func (s *System) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
