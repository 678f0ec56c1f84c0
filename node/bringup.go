package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/notnil/cannode/clock"
	"github.com/notnil/cannode/internal/telemetry"
	"github.com/notnil/cannode/uavcan"
)

// State is the bring-up state of a node.
type State uint8

const (
	StateUninitialized State = iota
	StateStarting
	StateCheckingCompatibility
	StateRetryWait
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateStarting:
		return "starting"
	case StateCheckingCompatibility:
		return "checking_compatibility"
	case StateRetryWait:
		return "retry_wait"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// transitions lists the legal successors of every state. Ready is terminal.
var transitions = map[State][]State{
	StateUninitialized:         {StateStarting},
	StateStarting:              {StateCheckingCompatibility, StateRetryWait, StateReady},
	StateCheckingCompatibility: {StateRetryWait, StateReady},
	StateRetryWait:             {StateStarting},
}

var (
	ErrInvalidTransition = errors.New("node: invalid bring-up transition")
	ErrNetworkConflict   = errors.New("node: network conflict")
)

// Starter performs the protocol start of the node. It must be idempotent:
// calling it again after a success does nothing.
type Starter interface {
	Start(ctx context.Context) error
}

type StarterFunc func(ctx context.Context) error

func (f StarterFunc) Start(ctx context.Context) error { return f(ctx) }

// CompatibilityResult reports the node that conflicts with ours, if any.
type CompatibilityResult struct {
	ConflictingNode uavcan.NodeID
}

func (r CompatibilityResult) OK() bool { return r.ConflictingNode == uavcan.Anonymous }

// CompatibilityChecker looks on the bus for peers using our node id.
type CompatibilityChecker interface {
	Check(ctx context.Context) (CompatibilityResult, error)
}

type CheckerFunc func(ctx context.Context) (CompatibilityResult, error)

func (f CheckerFunc) Check(ctx context.Context) (CompatibilityResult, error) { return f(ctx) }

// BringUp drives a node from Uninitialized to Ready, retrying forever.
type BringUp struct {
	clock   clock.Clock
	log     *slog.Logger
	starter Starter
	checker CompatibilityChecker
	retry   time.Duration
	metrics *telemetry.Metrics

	state    State
	attempts int

	// OnTransition, if set, observes every state change.
	OnTransition func(from, to State)
}

// NewBringUp returns a machine in StateUninitialized. A nil checker skips the
// compatibility check.
func NewBringUp(clk clock.Clock, logger *slog.Logger, starter Starter, checker CompatibilityChecker, retry time.Duration) *BringUp {
	if logger == nil {
		logger = slog.Default()
	}
	return &BringUp{
		clock:   clk,
		log:     logger,
		starter: starter,
		checker: checker,
		retry:   retry,
	}
}

func (b *BringUp) State() State { return b.state }

// Attempts returns the number of times the starter was invoked.
func (b *BringUp) Attempts() int { return b.attempts }

func (b *BringUp) to(next State) error {
	for _, s := range transitions[b.state] {
		if s == next {
			prev := b.state
			b.state = next
			b.metrics.BringUpState(int(next))
			if b.OnTransition != nil {
				b.OnTransition(prev, next)
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.state, next)
}

// Run blocks until the node is Ready or ctx is done. Failures are logged and
// retried after the retry interval without limit. Run on a Ready machine
// returns nil at once.
func (b *BringUp) Run(ctx context.Context) error {
	if b.state == StateReady {
		return nil
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.to(StateStarting); err != nil {
			return err
		}
		b.attempts++
		if err := b.starter.Start(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.log.Warn("node initialization failure", "attempt", b.attempts, "error", err, "retry_in", b.retry)
			b.metrics.BringUpAttempt("start_failure")
			if err := b.wait(ctx); err != nil {
				return err
			}
			continue
		}
		if b.checker != nil {
			if err := b.to(StateCheckingCompatibility); err != nil {
				return err
			}
			b.log.Info("checking network compatibility")
			res, err := b.checker.Check(ctx)
			if err == nil && !res.OK() {
				err = fmt.Errorf("%w with node %d", ErrNetworkConflict, res.ConflictingNode)
			}
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if errors.Is(err, ErrNetworkConflict) {
					b.log.Warn("network conflict", "conflicting_node", res.ConflictingNode, "retry_in", b.retry)
				} else {
					b.log.Warn("network compatibility check failure", "error", err, "retry_in", b.retry)
				}
				b.metrics.BringUpAttempt("conflict")
				if err := b.wait(ctx); err != nil {
					return err
				}
				continue
			}
		}
		b.metrics.BringUpAttempt("ready")
		return b.to(StateReady)
	}
}

func (b *BringUp) wait(ctx context.Context) error {
	if err := b.to(StateRetryWait); err != nil {
		return err
	}
	return b.clock.Sleep(ctx, b.retry)
}
