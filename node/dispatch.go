package node

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/notnil/cannode/canbus"
	"github.com/notnil/cannode/uavcan"
)

var ErrNotAttached = errors.New("node: not attached to the bus")

// Spin services received frames for up to budget, then expires overdue
// service calls. A zero budget handles what is already queued and returns
// without waiting. It returns the number of frames handled.
//
// When the bus reader stops on a receive error Spin reports it and drops the
// subscription. The next Spin of a running node subscribes again.
func (n *Node) Spin(ctx context.Context, budget time.Duration) (int, error) {
	if n.rx == nil {
		if !n.running {
			return 0, ErrNotAttached
		}
		n.log.Info("resubscribing to the bus")
		n.attach()
	}
	defer n.expireCalls()

	handled := 0
	if budget <= 0 {
		for {
			select {
			case f, ok := <-n.rx:
				if !ok {
					return handled, n.lostSubscription()
				}
				n.handleFrame(ctx, f)
				handled++
			default:
				return handled, nil
			}
		}
	}

	timer := time.NewTimer(budget)
	defer timer.Stop()
	for {
		select {
		case f, ok := <-n.rx:
			if !ok {
				return handled, n.lostSubscription()
			}
			n.handleFrame(ctx, f)
			handled++
		case <-timer.C:
			return handled, nil
		case <-ctx.Done():
			return handled, ctx.Err()
		}
	}
}

// lostSubscription detaches from a stopped bus reader and returns the error
// that stopped it.
func (n *Node) lostSubscription() error {
	err := n.mux.Err()
	n.detach()
	if err != nil {
		return fmt.Errorf("bus receive: %w", err)
	}
	return canbus.ErrClosed
}

func (n *Node) expireCalls() {
	if n.client != nil {
		n.client.Expire(n.clock.Monotonic())
	}
}

func (n *Node) handleFrame(ctx context.Context, f canbus.Frame) {
	var t uavcan.Transfer
	if err := t.UnmarshalCANFrame(f); err != nil {
		n.log.Debug("dropping frame", "frame", f.String(), "error", err)
		return
	}
	if n.probing && t.ID.Source == n.id.ID {
		n.conflict = t.ID.Source
	}
	if t.ID.Kind != uavcan.KindMessage && t.ID.Destination != n.id.ID {
		return
	}
	n.metrics.Frame(t.ID.Kind.String(), "rx")
	n.router.Dispatch(ctx, Reception{Transfer: t, Mono: n.clock.Monotonic(), UTC: n.clock.UTC()})
}

// iterate runs one dispatch cycle: bus servicing, time sync, status, service
// calls and diagnostics, in that order.
func (n *Node) iterate(ctx context.Context) {
	n.pulse(TraceLoop, -1)

	n.pulse(TraceSpin, 1)
	began := time.Now()
	_, err := n.Spin(ctx, n.cfg.SpinBudget)
	n.pulse(TraceSpin, 0)
	if err != nil && ctx.Err() == nil {
		n.metrics.Spin(time.Since(began), err)
		pause := max(n.cfg.SpinBudget, n.cfg.RetryInterval)
		n.log.Warn("spin failure", "error", err, "retry_in", pause)
		_ = n.clock.Sleep(ctx, pause)
	} else {
		n.metrics.Spin(time.Since(began), nil)
	}

	n.timeSyncDuty(ctx)
	n.statusDuty(ctx)
	n.serviceDuty(ctx)
	if n.cfg.LogDiagnostics {
		n.diagnostics()
	}
}

func (n *Node) pulse(id, value int) {
	if err := n.trace.Write(id, value); err != nil {
		n.log.Debug("trace", "id", id, "error", err)
	}
}

func (n *Node) timeSyncDuty(ctx context.Context) {
	if n.publisher != nil {
		sent, err := n.publisher.Publish(ctx)
		if err != nil {
			n.log.Warn("time sync publish failed", "error", err)
		}
		if sent {
			n.pulse(TraceSync, -1)
		}
	}
	if n.tracker != nil {
		if adj := n.tracker.Adjustments(); adj != n.syncAdjustments {
			n.syncAdjustments = adj
			n.pulse(TraceSync, -1)
		}
		if n.cfg.LogTrackerStatus {
			now := n.clock.Monotonic()
			since, _ := n.tracker.SinceLastAdjustment(now)
			n.log.Info("time sync status",
				"master", n.tracker.MasterID(),
				"active", n.tracker.IsActive(now),
				"since_adjustment", since,
			)
		}
	}
}

func (n *Node) statusDuty(ctx context.Context) {
	if _, err := n.reporter.PublishIfDue(ctx); err != nil {
		n.log.Warn("node status publish failed", "error", err)
	}
}

// serviceDuty delivers completions of earlier calls and issues the next one.
func (n *Node) serviceDuty(ctx context.Context) {
	if n.client == nil {
		return
	}
	for _, res := range n.client.Poll() {
		if res.Err != nil {
			n.log.Warn("service call failed", "sequence", res.Call.Sequence, "error", res.Err)
			continue
		}
		if err := n.indicator.Toggle(); err != nil {
			n.log.Debug("indicator", "error", err)
		}
		n.log.Info("service call ok", "sequence", res.Call.Sequence, "value", res.Response.Value, "latency", res.Latency)
	}
	if _, err := n.client.Call(ctx); err != nil {
		n.log.Warn("service call failed", "sequence", n.client.Counter(), "error", err)
		return
	}
	n.pulse(TraceCall, -1)
}

func (n *Node) diagnostics() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	n.log.Info("memory usage", "heap_alloc", ms.HeapAlloc, "heap_sys", ms.HeapSys, "goroutines", runtime.NumGoroutine())
	errs := n.bus.ErrorCount()
	n.metrics.BusErrors(errs)
	n.log.Info("bus errors", "count", errs)
}
