package node

import (
	"context"
	"log/slog"
	"time"

	"github.com/notnil/cannode/clock"
	"github.com/notnil/cannode/gpio"
	"github.com/notnil/cannode/internal/telemetry"
	"github.com/notnil/cannode/uavcan"
)

// StatusReporter broadcasts the node's own NodeStatus.
type StatusReporter struct {
	clock  clock.Clock
	out    *Outbox
	period time.Duration

	code uavcan.StatusCode
	ok   bool
	tid  uint8
	sent bool
	last time.Duration
}

// NewStatusReporter starts out reporting StatusInitializing.
func NewStatusReporter(clk clock.Clock, out *Outbox, period time.Duration) *StatusReporter {
	return &StatusReporter{clock: clk, out: out, period: period, code: uavcan.StatusInitializing}
}

func (r *StatusReporter) Code() uavcan.StatusCode { return r.code }

// SetOK switches the reported code to OK. Only the first call has an effect;
// it reports whether this call was it.
func (r *StatusReporter) SetOK() bool {
	if r.ok {
		return false
	}
	r.ok = true
	r.code = uavcan.StatusOK
	return true
}

// Publish broadcasts the status now.
func (r *StatusReporter) Publish(ctx context.Context) error {
	now := r.clock.Monotonic()
	msg := uavcan.NodeStatus{UptimeSec: uint32(now / time.Second), Code: r.code}
	id := uavcan.ID{Priority: uavcan.PriorityLow, Kind: uavcan.KindMessage, DataType: uavcan.NodeStatusID}
	err := r.out.Send(ctx, id, r.tid, msg)
	r.tid = uavcan.NextTransferID(r.tid)
	r.sent = true
	r.last = now
	return err
}

// PublishIfDue broadcasts when a period has passed since the last broadcast.
func (r *StatusReporter) PublishIfDue(ctx context.Context) (bool, error) {
	if r.sent && r.clock.Monotonic()-r.last < r.period {
		return false, nil
	}
	return true, r.Publish(ctx)
}

// PeerStatus is one observed NodeStatus broadcast.
type PeerStatus struct {
	SourceID   uavcan.NodeID
	Code       uavcan.StatusCode
	Uptime     time.Duration
	ObservedAt time.Time
}

// Name is the symbolic status name, UNKNOWN_STATUS for unlisted codes.
func (p PeerStatus) Name() string { return p.Code.String() }

// StatusSink receives every observed peer status.
type StatusSink interface {
	ObserveStatus(PeerStatus)
}

// StatusObserver logs peer NodeStatus broadcasts and toggles the indicator
// on each one.
type StatusObserver struct {
	log       *slog.Logger
	indicator gpio.Pin
	sinks     []StatusSink
	metrics   *telemetry.Metrics
	observed  int
}

func NewStatusObserver(logger *slog.Logger, indicator gpio.Pin, sinks ...StatusSink) *StatusObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusObserver{log: logger, indicator: indicator, sinks: sinks}
}

func (o *StatusObserver) Start(r *Router) error {
	return r.Register(uavcan.KindMessage, uavcan.NodeStatusID, o.handle)
}

// Observed returns how many broadcasts were handled.
func (o *StatusObserver) Observed() int { return o.observed }

func (o *StatusObserver) handle(ctx context.Context, rx Reception) {
	var msg uavcan.NodeStatus
	if err := msg.UnmarshalPayload(rx.Payload); err != nil {
		o.log.Debug("malformed node status", "source", rx.ID.Source, "error", err)
		return
	}
	ps := PeerStatus{
		SourceID:   rx.ID.Source,
		Code:       msg.Code,
		Uptime:     time.Duration(msg.UptimeSec) * time.Second,
		ObservedAt: rx.UTC,
	}
	o.observed++
	o.log.Info("node status", "source", ps.SourceID, "code", uint8(ps.Code), "name", ps.Name())
	if o.indicator != nil {
		if err := o.indicator.Toggle(); err != nil {
			o.log.Debug("indicator", "error", err)
		}
	}
	o.metrics.PeerStatus(ps.Name())
	for _, s := range o.sinks {
		s.ObserveStatus(ps)
	}
}
