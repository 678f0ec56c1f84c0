package node

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/notnil/cannode/canbus"
	"github.com/notnil/cannode/clock"
	"github.com/notnil/cannode/gpio"
	"github.com/notnil/cannode/internal/telemetry"
	"github.com/notnil/cannode/uavcan"
)

// Trace ids pulsed by the dispatch loop.
const (
	TraceLoop = 3 // toggled every iteration
	TraceSpin = 4 // high while servicing the bus
	TraceCall = 5 // toggled per service call issued
	TraceSync = 6 // toggled per time sync broadcast or adjustment
)

// subscriptionBuffer is the number of frames queued between the bus reader
// and Spin.
const subscriptionBuffer = 256

// Node is one configurable bus node built from role selections: bring-up
// plus an optional time sync role, status observer, service client and
// service server.
type Node struct {
	cfg       Config
	id        Identity
	bus       canbus.Driver
	clock     clock.Clock
	log       *slog.Logger
	metrics   *telemetry.Metrics
	indicator gpio.Pin
	trace     *gpio.Trace
	sinks     []StatusSink
	hook      func(from, to State)

	out       *Outbox
	router    *Router
	bringUp   *BringUp
	reporter  *StatusReporter
	publisher *Publisher
	tracker   *Tracker
	observer  *StatusObserver
	client    *ServiceClient
	server    *ServiceServer

	mux         *canbus.Mux
	rx          <-chan canbus.Frame
	unsubscribe func()

	started         bool
	rolesStarted    bool
	running         bool
	probing         bool
	conflict        uavcan.NodeID
	syncAdjustments int
	iterations      uint64
}

// Option customises a Node.
type Option func(*Node)

// WithClock replaces the system clock.
func WithClock(c clock.Clock) Option { return func(n *Node) { n.clock = c } }

func WithLogger(l *slog.Logger) Option { return func(n *Node) { n.log = l } }

func WithMetrics(m *telemetry.Metrics) Option { return func(n *Node) { n.metrics = m } }

// WithIndicator sets the activity indicator pin.
func WithIndicator(p gpio.Pin) Option { return func(n *Node) { n.indicator = p } }

// WithTrace sets the trace outputs pulsed by the dispatch loop.
func WithTrace(t *gpio.Trace) Option { return func(n *Node) { n.trace = t } }

// WithStatusSink forwards observed peer status to s.
func WithStatusSink(s StatusSink) Option {
	return func(n *Node) { n.sinks = append(n.sinks, s) }
}

// WithBringUpHook observes bring-up state transitions.
func WithBringUpHook(fn func(from, to State)) Option { return func(n *Node) { n.hook = fn } }

// New builds a node on bus. Nothing touches the bus until Run.
func New(cfg Config, bus canbus.Driver, opts ...Option) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if bus == nil {
		return nil, fmt.Errorf("node: nil bus driver")
	}
	n := &Node{
		cfg:       cfg,
		id:        cfg.Identity,
		bus:       bus,
		clock:     clock.NewSystem(),
		log:       slog.Default(),
		indicator: &gpio.MemPin{},
	}
	for _, opt := range opts {
		opt(n)
	}

	n.out = NewOutbox(bus, n.id.ID)
	n.out.metrics = n.metrics
	n.router = NewRouter()
	n.reporter = NewStatusReporter(n.clock, n.out, cfg.StatusPeriod)

	var checker CompatibilityChecker
	if cfg.CheckCompatibility {
		checker = CheckerFunc(n.checkCompatibility)
	}
	n.bringUp = NewBringUp(n.clock, n.log, StarterFunc(n.start), checker, cfg.RetryInterval)
	n.bringUp.metrics = n.metrics
	n.bringUp.OnTransition = n.hook

	switch cfg.Role {
	case RolePublisher:
		n.publisher = NewPublisher(n.clock, n.log, n.out, cfg.TimeSyncSeed, cfg.PublishPeriod)
	case RoleTracker:
		n.tracker = NewTracker(n.clock, n.log, cfg.MasterTimeout)
		n.tracker.metrics = n.metrics
	}
	if cfg.ObserveStatus {
		n.observer = NewStatusObserver(n.log, n.indicator, n.sinks...)
		n.observer.metrics = n.metrics
	}
	if cfg.ServiceTarget != uavcan.Anonymous {
		n.client = NewServiceClient(n.clock, n.out, cfg.ServiceTarget, cfg.ServiceTimeout)
		n.client.metrics = n.metrics
	}
	if cfg.ServeCalls {
		n.server = NewServiceServer(n.out, n.log)
	}
	return n, nil
}

func (n *Node) Identity() Identity { return n.id }

// State returns the bring-up state.
func (n *Node) State() State { return n.bringUp.State() }

// Iterations returns the number of completed dispatch iterations.
func (n *Node) Iterations() uint64 { return n.iterations }

// Tracker returns the time sync tracker, nil unless the role is RoleTracker.
func (n *Node) Tracker() *Tracker { return n.tracker }

// Publisher returns the time sync publisher, nil unless the role is
// RolePublisher.
func (n *Node) Publisher() *Publisher { return n.publisher }

// Client returns the service client, nil without a service target.
func (n *Node) Client() *ServiceClient { return n.client }

// Server returns the service server, nil unless ServeCalls is set.
func (n *Node) Server() *ServiceServer { return n.server }

// Observer returns the status observer, nil unless ObserveStatus is set.
func (n *Node) Observer() *StatusObserver { return n.observer }

// Run brings the node up and dispatches until ctx is done. It returns the
// context error, or a *FatalError once a dead node's context ends. A node may
// be run again after Run returns; bring-up and roles are not repeated.
func (n *Node) Run(ctx context.Context) error {
	return n.RunUntil(ctx, nil)
}

// StopFunc is consulted before every dispatch iteration with the number of
// iterations completed so far. Returning true ends RunUntil with nil.
type StopFunc func(iterations uint64) bool

// StopAfter stops once n iterations have completed.
func StopAfter(n uint64) StopFunc {
	return func(done uint64) bool { return done >= n }
}

// RunUntil is Run with an injectable stop condition. A nil stop runs until
// ctx is done.
func (n *Node) RunUntil(ctx context.Context, stop StopFunc) error {
	if err := n.bus.Init(n.cfg.Bitrate); err != nil {
		return n.die(ctx, "bus init", err)
	}
	n.log.Info("bus initialised", "bitrate", n.cfg.Bitrate)
	n.running = true
	n.attach()
	defer func() {
		n.running = false
		n.detach()
	}()

	if err := n.bringUp.Run(ctx); err != nil {
		return err
	}
	if err := n.startRoles(); err != nil {
		return n.die(ctx, err.stage, err.err)
	}
	n.log.Info("node started", "id", n.id.ID, "name", n.id.Name)
	n.reporter.SetOK()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if stop != nil && stop(n.iterations) {
			return nil
		}
		n.iterate(ctx)
		n.iterations++
	}
}

func (n *Node) attach() {
	if n.rx != nil {
		return
	}
	n.mux = canbus.NewMux(n.bus)
	n.rx, n.unsubscribe = n.mux.Subscribe(uavcan.ForNode(n.id.ID), subscriptionBuffer)
}

func (n *Node) detach() {
	if n.mux == nil {
		return
	}
	n.unsubscribe()
	n.mux.Close()
	n.mux, n.rx, n.unsubscribe = nil, nil, nil
}

type roleError struct {
	stage string
	err   error
}

// startRoles brings up the selected roles in a fixed order. Any failure is
// fatal for the node. Roles started by an earlier Run stay registered.
func (n *Node) startRoles() *roleError {
	if n.rolesStarted {
		return nil
	}
	if n.publisher != nil {
		if err := n.publisher.Init(); err != nil {
			return &roleError{"time sync publisher init", err}
		}
	}
	if n.tracker != nil {
		if err := n.tracker.Start(n.router); err != nil {
			return &roleError{"time sync tracker start", err}
		}
	}
	if n.client != nil {
		if err := n.client.Init(n.router); err != nil {
			return &roleError{"service client init", err}
		}
	}
	if n.server != nil {
		if err := n.server.Start(n.router); err != nil {
			return &roleError{"service server start", err}
		}
	}
	if n.observer != nil {
		if err := n.observer.Start(n.router); err != nil {
			return &roleError{"status observer start", err}
		}
	}
	n.rolesStarted = true
	return nil
}

// start is the production Starter: validate the identity and announce the
// node with an INITIALIZING status. Later calls after a success are no-ops.
func (n *Node) start(ctx context.Context) error {
	if n.started {
		return nil
	}
	if err := n.id.Validate(); err != nil {
		return err
	}
	if err := n.reporter.Publish(ctx); err != nil {
		return fmt.Errorf("broadcast node status: %w", err)
	}
	n.started = true
	return nil
}

// checkCompatibility announces the node and listens for a window. Any frame
// carrying our own node id as its source comes from a conflicting node.
func (n *Node) checkCompatibility(ctx context.Context) (CompatibilityResult, error) {
	n.conflict = uavcan.Anonymous
	n.probing = true
	defer func() { n.probing = false }()

	if err := n.reporter.Publish(ctx); err != nil {
		return CompatibilityResult{}, fmt.Errorf("broadcast node status: %w", err)
	}
	if _, err := n.Spin(ctx, n.cfg.CompatibilityWindow); err != nil {
		return CompatibilityResult{}, err
	}
	return CompatibilityResult{ConflictingNode: n.conflict}, nil
}
