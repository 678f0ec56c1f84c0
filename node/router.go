package node

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/notnil/cannode/uavcan"
)

var ErrDuplicateHandler = errors.New("node: handler already registered")

// Reception is a decoded transfer with the local time it was handled at.
type Reception struct {
	uavcan.Transfer
	Mono time.Duration
	UTC  time.Time
}

// Handler consumes one transfer.
type Handler func(ctx context.Context, rx Reception)

type routeKey struct {
	kind     uavcan.Kind
	dataType uint16
}

// Router dispatches transfers to the handler registered for their kind and
// data type.
type Router struct {
	routes map[routeKey]Handler
}

func NewRouter() *Router {
	return &Router{routes: make(map[routeKey]Handler)}
}

// Register installs h. Each kind and data type pair takes one handler.
func (r *Router) Register(kind uavcan.Kind, dataType uint16, h Handler) error {
	if h == nil {
		return fmt.Errorf("node: nil handler for %s %d", kind, dataType)
	}
	k := routeKey{kind, dataType}
	if _, ok := r.routes[k]; ok {
		return fmt.Errorf("%w: %s %d", ErrDuplicateHandler, kind, dataType)
	}
	r.routes[k] = h
	return nil
}

// Dispatch calls the matching handler and reports whether there was one.
func (r *Router) Dispatch(ctx context.Context, rx Reception) bool {
	h, ok := r.routes[routeKey{rx.ID.Kind, rx.ID.DataType}]
	if !ok {
		return false
	}
	h(ctx, rx)
	return true
}
