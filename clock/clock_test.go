package clock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemAdjustUTC(t *testing.T) {
	c := NewSystem()
	before := c.UTC()
	c.AdjustUTC(time.Hour)
	after := c.UTC()

	assert.GreaterOrEqual(t, after.Sub(before), time.Hour)
	assert.Equal(t, time.Hour, c.Offset())
	assert.Equal(t, uint64(1), c.Adjustments())
	assert.GreaterOrEqual(t, c.Monotonic(), time.Duration(0))
}

func TestSystemSleepHonoursContext(t *testing.T) {
	c := NewSystem()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.Sleep(ctx, time.Hour)
	assert.True(t, errors.Is(err, context.Canceled))

	require.NoError(t, c.Sleep(context.Background(), time.Millisecond))
}

func TestManualClock(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewManual(base)

	assert.Equal(t, base, c.UTC())
	c.Advance(2 * time.Second)
	assert.Equal(t, 2*time.Second, c.Monotonic())
	assert.Equal(t, base.Add(2*time.Second), c.UTC())

	c.AdjustUTC(-time.Second)
	assert.Equal(t, base.Add(time.Second), c.UTC())
	assert.Equal(t, 2*time.Second, c.Monotonic(), "monotonic time is not adjusted")
	assert.Equal(t, 1, c.Adjustments())
}

func TestManualSleepHook(t *testing.T) {
	c := NewManual(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())
	c.OnSleep(func(n int, _ time.Duration) {
		if n == 3 {
			cancel()
		}
	})

	var err error
	calls := 0
	for err == nil {
		err = c.Sleep(ctx, 500*time.Millisecond)
		calls++
	}
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 500 * time.Millisecond, 500 * time.Millisecond}, c.Sleeps())
	assert.Equal(t, 1500*time.Millisecond, c.Monotonic())

	assert.ErrorIs(t, c.Sleep(ctx, time.Second), context.Canceled)
	assert.Len(t, c.Sleeps(), 3, "sleep on a done context does not advance")
}
