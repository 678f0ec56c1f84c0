package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/notnil/cannode/clock"
	"github.com/notnil/cannode/internal/telemetry"
	"github.com/notnil/cannode/uavcan"
)

var (
	ErrAnonymous      = errors.New("node: anonymous node")
	ErrSelfTarget     = errors.New("node: service target is the local node")
	ErrNotInitialized = errors.New("node: not initialized")
	ErrCallTimeout    = errors.New("node: service call timed out")
	ErrCallSuperseded = errors.New("node: service call superseded by a newer call")
)

// PendingCall is one issued request. Done is closed once the call completes;
// Result is valid from then on.
type PendingCall struct {
	Target     uavcan.NodeID
	Sequence   uint8
	TransferID uint8
	IssuedAt   time.Duration

	done     chan struct{}
	response uavcan.ServiceCallStormResponse
	err      error
}

func (c *PendingCall) Done() <-chan struct{} { return c.done }

// Result returns the response or the reason the call failed. It must only be
// called after Done is closed.
func (c *PendingCall) Result() (uavcan.ServiceCallStormResponse, error) {
	return c.response, c.err
}

// CallResult is a completion queued for the dispatch loop.
type CallResult struct {
	Call     *PendingCall
	Response uavcan.ServiceCallStormResponse
	Err      error
	Latency  time.Duration
}

// ServiceClient issues ServiceCallStorm requests to one target. Calls never
// block: completions are queued and collected with Poll.
type ServiceClient struct {
	clock   clock.Clock
	out     *Outbox
	target  uavcan.NodeID
	timeout time.Duration
	metrics *telemetry.Metrics

	ready     bool
	counter   uint8
	tid       uint8
	pending   map[uint8]*PendingCall
	completed []CallResult
}

func NewServiceClient(clk clock.Clock, out *Outbox, target uavcan.NodeID, timeout time.Duration) *ServiceClient {
	return &ServiceClient{
		clock:   clk,
		out:     out,
		target:  target,
		timeout: timeout,
		pending: make(map[uint8]*PendingCall),
	}
}

// Init validates the target and subscribes to responses.
func (c *ServiceClient) Init(r *Router) error {
	if c.out.Self() == uavcan.Anonymous {
		return ErrAnonymous
	}
	if err := c.target.Validate(); err != nil {
		return fmt.Errorf("node: service target: %w", err)
	}
	if c.target == c.out.Self() {
		return ErrSelfTarget
	}
	if err := r.Register(uavcan.KindResponse, uavcan.ServiceCallStormID, c.handleResponse); err != nil {
		return err
	}
	c.ready = true
	return nil
}

func (c *ServiceClient) Target() uavcan.NodeID { return c.target }

// Counter returns the value the next request will carry.
func (c *ServiceClient) Counter() uint8 { return c.counter }

// InFlight returns the number of calls awaiting a response.
func (c *ServiceClient) InFlight() int { return len(c.pending) }

// Call sends the next request. A call whose transfer id is reused before it
// completed fails with ErrCallSuperseded. A send failure completes the
// returned call with that error.
func (c *ServiceClient) Call(ctx context.Context) (*PendingCall, error) {
	if !c.ready {
		return nil, ErrNotInitialized
	}
	call := &PendingCall{
		Target:     c.target,
		Sequence:   c.counter,
		TransferID: c.tid,
		IssuedAt:   c.clock.Monotonic(),
		done:       make(chan struct{}),
	}
	c.counter++
	c.tid = uavcan.NextTransferID(c.tid)

	if old, ok := c.pending[call.TransferID]; ok {
		c.complete(old, uavcan.ServiceCallStormResponse{}, ErrCallSuperseded, 0)
	}
	c.pending[call.TransferID] = call

	id := uavcan.ID{
		Priority:    uavcan.PriorityLow,
		Kind:        uavcan.KindRequest,
		DataType:    uavcan.ServiceCallStormID,
		Destination: c.target,
	}
	if err := c.out.Send(ctx, id, call.TransferID, uavcan.ServiceCallStormRequest{Value: call.Sequence}); err != nil {
		c.complete(call, uavcan.ServiceCallStormResponse{}, fmt.Errorf("send request: %w", err), 0)
	}
	c.metrics.InFlight(len(c.pending))
	return call, nil
}

func (c *ServiceClient) handleResponse(_ context.Context, rx Reception) {
	if rx.ID.Source != c.target {
		return
	}
	call, ok := c.pending[rx.TransferID]
	if !ok {
		return
	}
	var resp uavcan.ServiceCallStormResponse
	if err := resp.UnmarshalPayload(rx.Payload); err != nil {
		c.complete(call, resp, fmt.Errorf("malformed response: %w", err), 0)
		return
	}
	c.complete(call, resp, nil, rx.Mono-call.IssuedAt)
}

// Expire fails every call issued at least the timeout before now.
func (c *ServiceClient) Expire(now time.Duration) {
	if c.timeout <= 0 || len(c.pending) == 0 {
		return
	}
	var expired []*PendingCall
	for _, call := range c.pending {
		if now-call.IssuedAt >= c.timeout {
			expired = append(expired, call)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].IssuedAt < expired[j].IssuedAt })
	for _, call := range expired {
		c.complete(call, uavcan.ServiceCallStormResponse{}, ErrCallTimeout, 0)
	}
}

// Poll returns the completions queued since the last Poll, oldest first.
func (c *ServiceClient) Poll() []CallResult {
	out := c.completed
	c.completed = nil
	return out
}

func (c *ServiceClient) complete(call *PendingCall, resp uavcan.ServiceCallStormResponse, err error, latency time.Duration) {
	if cur, ok := c.pending[call.TransferID]; ok && cur == call {
		delete(c.pending, call.TransferID)
	}
	call.response = resp
	call.err = err
	close(call.done)
	c.completed = append(c.completed, CallResult{Call: call, Response: resp, Err: err, Latency: latency})
	c.metrics.CallCompleted(err == nil, latency)
	c.metrics.InFlight(len(c.pending))
}

// ServiceServer answers ServiceCallStorm requests addressed to this node by
// echoing the request value.
type ServiceServer struct {
	out    *Outbox
	log    *slog.Logger
	served int
}

func NewServiceServer(out *Outbox, logger *slog.Logger) *ServiceServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ServiceServer{out: out, log: logger}
}

func (s *ServiceServer) Start(r *Router) error {
	if s.out.Self() == uavcan.Anonymous {
		return ErrAnonymous
	}
	return r.Register(uavcan.KindRequest, uavcan.ServiceCallStormID, s.handle)
}

// Served returns the number of responses sent.
func (s *ServiceServer) Served() int { return s.served }

func (s *ServiceServer) handle(ctx context.Context, rx Reception) {
	if rx.ID.Destination != s.out.Self() {
		return
	}
	var req uavcan.ServiceCallStormRequest
	if err := req.UnmarshalPayload(rx.Payload); err != nil {
		s.log.Debug("malformed service request", "source", rx.ID.Source, "error", err)
		return
	}
	id := uavcan.ID{
		Priority:    rx.ID.Priority,
		Kind:        uavcan.KindResponse,
		DataType:    uavcan.ServiceCallStormID,
		Destination: rx.ID.Source,
	}
	if err := s.out.Send(ctx, id, rx.TransferID, uavcan.ServiceCallStormResponse{Value: req.Value}); err != nil {
		s.log.Warn("service response failed", "destination", rx.ID.Source, "error", err)
		return
	}
	s.served++
}
