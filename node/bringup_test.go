package node

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notnil/cannode/clock"
)

func countState(states []State, s State) int {
	n := 0
	for _, st := range states {
		if st == s {
			n++
		}
	}
	return n
}

func TestBringUpRetriesUntilStarted(t *testing.T) {
	for _, failures := range []int{0, 1, 2, 5} {
		t.Run(fmt.Sprintf("failures=%d", failures), func(t *testing.T) {
			clk := clock.NewManual(epoch)
			remaining := failures
			starter := StarterFunc(func(context.Context) error {
				if remaining > 0 {
					remaining--
					return errors.New("bus start failed")
				}
				return nil
			})
			b := NewBringUp(clk, discardLogger(), starter, nil, time.Second)
			var states []State
			b.OnTransition = func(_, to State) { states = append(states, to) }

			require.NoError(t, b.Run(context.Background()))
			assert.Equal(t, StateReady, b.State())
			assert.Equal(t, failures+1, b.Attempts())

			sleeps := clk.Sleeps()
			assert.Len(t, sleeps, failures)
			for _, d := range sleeps {
				assert.Equal(t, time.Second, d)
			}
			assert.Equal(t, 1, countState(states, StateReady))
			assert.Equal(t, failures+1, countState(states, StateStarting))
			assert.Equal(t, StateReady, states[len(states)-1])

			require.NoError(t, b.Run(context.Background()))
			assert.Equal(t, failures+1, countState(states, StateStarting), "ready machine never restarts")
		})
	}
}

func TestBringUpConflictRetries(t *testing.T) {
	clk := clock.NewManual(epoch)
	var buf bytes.Buffer
	starts := 0
	checks := 0
	b := NewBringUp(clk, newLineLogger(&buf, slog.LevelInfo),
		StarterFunc(func(context.Context) error { starts++; return nil }),
		CheckerFunc(func(context.Context) (CompatibilityResult, error) {
			checks++
			if checks == 1 {
				return CompatibilityResult{ConflictingNode: 42}, nil
			}
			return CompatibilityResult{}, nil
		}),
		3*time.Second,
	)
	var states []State
	b.OnTransition = func(_, to State) { states = append(states, to) }

	require.NoError(t, b.Run(context.Background()))
	assert.Equal(t, []State{
		StateStarting, StateCheckingCompatibility, StateRetryWait,
		StateStarting, StateCheckingCompatibility, StateReady,
	}, states)
	assert.Equal(t, 2, starts)
	assert.Equal(t, []time.Duration{3 * time.Second}, clk.Sleeps())
	assert.Contains(t, buf.String(), "WARN network conflict conflicting_node=42 retry_in=3s\n")
	assert.Contains(t, buf.String(), "INFO checking network compatibility\n")
}

func TestBringUpCheckErrorRetries(t *testing.T) {
	clk := clock.NewManual(epoch)
	checks := 0
	b := NewBringUp(clk, discardLogger(),
		StarterFunc(func(context.Context) error { return nil }),
		CheckerFunc(func(context.Context) (CompatibilityResult, error) {
			checks++
			if checks == 1 {
				return CompatibilityResult{}, errors.New("listen failed")
			}
			return CompatibilityResult{}, nil
		}),
		time.Second,
	)
	require.NoError(t, b.Run(context.Background()))
	assert.Equal(t, 2, checks)
	assert.Len(t, clk.Sleeps(), 1)
}

func TestBringUpRetriesUntilCancelled(t *testing.T) {
	clk := clock.NewManual(epoch)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clk.OnSleep(func(n int, _ time.Duration) {
		if n == 3 {
			cancel()
		}
	})
	b := NewBringUp(clk, discardLogger(),
		StarterFunc(func(context.Context) error { return errors.New("never") }),
		nil, time.Second)

	err := b.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateRetryWait, b.State())
	assert.Equal(t, 3, b.Attempts())
}

func TestBringUpRejectsInvalidTransition(t *testing.T) {
	b := NewBringUp(clock.NewManual(epoch), nil, StarterFunc(func(context.Context) error { return nil }), nil, time.Second)
	assert.ErrorIs(t, b.to(StateReady), ErrInvalidTransition)
	require.NoError(t, b.to(StateStarting))
	assert.ErrorIs(t, b.to(StateStarting), ErrInvalidTransition)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "checking_compatibility", StateCheckingCompatibility.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "state(9)", State(9).String())
}
