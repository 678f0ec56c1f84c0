package node

import (
	"context"
	"log/slog"
	"time"

	"github.com/notnil/cannode/clock"
	"github.com/notnil/cannode/internal/telemetry"
	"github.com/notnil/cannode/uavcan"
)

// Publisher owns the authoritative clock and broadcasts it.
type Publisher struct {
	clock  clock.Clock
	log    *slog.Logger
	out    *Outbox
	seed   time.Duration
	period time.Duration

	ready     bool
	tid       uint8
	published bool
	last      time.Duration
}

// NewPublisher returns a publisher that applies seed to the clock on Init and
// broadcasts at most once per period (every call when period is zero).
func NewPublisher(clk clock.Clock, logger *slog.Logger, out *Outbox, seed, period time.Duration) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{clock: clk, log: logger, out: out, seed: seed, period: period}
}

// Init applies the seed offset. An anonymous node cannot publish time.
func (p *Publisher) Init() error {
	if p.out.Self() == uavcan.Anonymous {
		return ErrAnonymous
	}
	if p.ready {
		return nil
	}
	p.clock.AdjustUTC(p.seed)
	p.ready = true
	p.log.Info("time sync publisher initialized", "seed", p.seed)
	return nil
}

// Publish broadcasts the current UTC time when due and reports whether it
// did. Delivery is not confirmed.
func (p *Publisher) Publish(ctx context.Context) (bool, error) {
	if !p.ready {
		return false, ErrNotInitialized
	}
	now := p.clock.Monotonic()
	if p.period > 0 && p.published && now-p.last < p.period {
		return false, nil
	}
	id := uavcan.ID{Priority: uavcan.PriorityHigh, Kind: uavcan.KindMessage, DataType: uavcan.GlobalTimeSyncID}
	err := p.out.Send(ctx, id, p.tid, uavcan.GlobalTimeSync{Timestamp: p.clock.UTC()})
	p.tid = uavcan.NextTransferID(p.tid)
	p.published = true
	p.last = now
	return true, err
}

// Tracker follows the time of the recognised master. The lowest node id
// publishing wins; a master that stays silent for the timeout is replaced by
// whoever publishes next.
type Tracker struct {
	clock   clock.Clock
	log     *slog.Logger
	timeout time.Duration
	metrics *telemetry.Metrics

	master      uavcan.NodeID
	lastSync    time.Duration
	lastAdjust  time.Duration
	offset      time.Duration
	adjustments int
}

func NewTracker(clk clock.Clock, logger *slog.Logger, masterTimeout time.Duration) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{clock: clk, log: logger, timeout: masterTimeout}
}

// Start subscribes the tracker to time sync broadcasts.
func (t *Tracker) Start(r *Router) error {
	return r.Register(uavcan.KindMessage, uavcan.GlobalTimeSyncID, t.handle)
}

func (t *Tracker) handle(_ context.Context, rx Reception) {
	var msg uavcan.GlobalTimeSync
	if err := msg.UnmarshalPayload(rx.Payload); err != nil {
		t.log.Debug("malformed time sync", "source", rx.ID.Source, "error", err)
		return
	}
	src := rx.ID.Source
	if msg.Timestamp.IsZero() || src == uavcan.Anonymous {
		return
	}
	if !t.accepts(src, rx.Mono) {
		return
	}
	if src != t.master {
		t.log.Info("time sync master", "previous", t.master, "master", src)
	}
	t.master = src
	t.lastSync = rx.Mono

	// The clock reads exactly the master's time at the moment of reception.
	d := msg.Timestamp.Sub(rx.UTC)
	t.clock.AdjustUTC(d)
	t.offset = d
	t.lastAdjust = rx.Mono
	t.adjustments++
	t.metrics.ClockAdjusted(d)
}

func (t *Tracker) accepts(src uavcan.NodeID, now time.Duration) bool {
	switch {
	case t.master == uavcan.Anonymous, src == t.master, src < t.master:
		return true
	default:
		return now-t.lastSync > t.timeout
	}
}

// MasterID returns the recognised master, or Anonymous before the first sync.
func (t *Tracker) MasterID() uavcan.NodeID { return t.master }

// IsActive reports whether the master was heard within the timeout.
func (t *Tracker) IsActive(now time.Duration) bool {
	return t.master != uavcan.Anonymous && now-t.lastSync <= t.timeout
}

// SinceLastAdjustment returns the monotonic time elapsed since the last
// adjustment. ok is false before the first one.
func (t *Tracker) SinceLastAdjustment(now time.Duration) (d time.Duration, ok bool) {
	if t.adjustments == 0 {
		return 0, false
	}
	return now - t.lastAdjust, true
}

// LastAdjustment returns the size of the most recent adjustment.
func (t *Tracker) LastAdjustment() time.Duration { return t.offset }

func (t *Tracker) Adjustments() int { return t.adjustments }
