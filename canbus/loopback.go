package canbus

import (
	"context"
	"sync"
	"sync/atomic"
)

// LoopbackBus is an in-memory CAN bus for tests and simulations.
// Multiple endpoints opened from the same bus can exchange frames. A frame is
// never delivered back to the endpoint that sent it, matching SocketCAN with
// CAN_RAW_RECV_OWN_MSGS disabled.
type LoopbackBus struct {
	mu        sync.RWMutex
	closed    bool
	endpoints map[*Endpoint]struct{}
}

// NewLoopbackBus creates a new loopback bus.
func NewLoopbackBus() *LoopbackBus {
	return &LoopbackBus{endpoints: make(map[*Endpoint]struct{})}
}

// Open creates a new endpoint attached to the bus.
func (b *LoopbackBus) Open() *Endpoint {
	ep := &Endpoint{
		bus:    b,
		ch:     make(chan Frame, 64),
		closed: make(chan struct{}),
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		ep.dead = true
		close(ep.closed)
		return ep
	}
	b.endpoints[ep] = struct{}{}
	b.mu.Unlock()
	return ep
}

// Close closes the bus and detaches all endpoints.
func (b *LoopbackBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for ep := range b.endpoints {
		ep.closeNoLock()
	}
	b.endpoints = nil
	b.mu.Unlock()
	return nil
}

// Endpoint is one node's attachment to a LoopbackBus. It implements Driver.
type Endpoint struct {
	bus    *LoopbackBus
	ch     chan Frame
	mu     sync.Mutex
	dead   bool
	closed chan struct{}

	bitrate   atomic.Uint32
	initErr   error
	failSends int
	errors    atomic.Uint64
}

var _ Driver = (*Endpoint)(nil)

// Init records the bitrate. It fails with the error set by FailInit, if any.
func (e *Endpoint) Init(bitrate uint32) error {
	e.mu.Lock()
	err := e.initErr
	e.mu.Unlock()
	if err != nil {
		return err
	}
	e.bitrate.Store(bitrate)
	return nil
}

// Bitrate returns the bitrate passed to the last successful Init.
func (e *Endpoint) Bitrate() uint32 { return e.bitrate.Load() }

// FailInit makes subsequent Init calls return err. A nil err clears it.
func (e *Endpoint) FailInit(err error) {
	e.mu.Lock()
	e.initErr = err
	e.mu.Unlock()
}

// FailSends makes the next n Send calls fail with ErrTransmit, simulating a
// controller that cannot get frames onto the wire.
func (e *Endpoint) FailSends(n int) {
	e.mu.Lock()
	e.failSends = n
	e.mu.Unlock()
}

// ErrorCount returns the number of failed sends on this endpoint.
func (e *Endpoint) ErrorCount() uint64 { return e.errors.Load() }

// Send broadcasts the frame to all other endpoints on the same bus.
func (e *Endpoint) Send(ctx context.Context, frame Frame) error {
	if err := frame.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	if e.dead {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.failSends > 0 {
		e.failSends--
		e.mu.Unlock()
		e.errors.Add(1)
		return ErrTransmit
	}
	e.mu.Unlock()
	// Snapshot endpoints under bus lock to avoid holding while sending.
	e.bus.mu.RLock()
	if e.bus.closed {
		e.bus.mu.RUnlock()
		return ErrClosed
	}
	targets := make([]*Endpoint, 0, len(e.bus.endpoints))
	for ep := range e.bus.endpoints {
		if ep != e {
			targets = append(targets, ep)
		}
	}
	e.bus.mu.RUnlock()

	for _, t := range targets {
		select {
		case t.ch <- frame:
		case <-t.closed:
		case <-ctx.Done():
			e.errors.Add(1)
			return ctx.Err()
		}
	}
	return nil
}

// Receive waits for the next frame.
func (e *Endpoint) Receive(ctx context.Context) (Frame, error) {
	select {
	case <-e.closed:
		return Frame{}, ErrClosed
	default:
	}
	select {
	case f := <-e.ch:
		return f, nil
	case <-e.closed:
		return Frame{}, ErrClosed
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// Close detaches the endpoint from the bus. Pending frames are discarded.
func (e *Endpoint) Close() error {
	e.bus.mu.Lock()
	e.closeNoLock()
	e.bus.mu.Unlock()
	return nil
}

func (e *Endpoint) closeNoLock() {
	e.mu.Lock()
	if e.dead {
		e.mu.Unlock()
		return
	}
	e.dead = true
	close(e.closed)
	if e.bus.endpoints != nil {
		delete(e.bus.endpoints, e)
	}
	e.mu.Unlock()
}
