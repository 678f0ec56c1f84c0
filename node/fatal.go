package node

import (
	"context"
	"fmt"
)

// FatalError is returned by Run once a dead node's context ends. Until then
// the node only blinks its indicator.
type FatalError struct {
	Stage string
	Err   error
}

func (e *FatalError) Error() string { return fmt.Sprintf("node: fatal %s: %v", e.Stage, e.Err) }

func (e *FatalError) Unwrap() error { return e.Err }

// die logs the failure once and blinks the indicator every BlinkInterval. It
// does nothing else until ctx is done.
func (n *Node) die(ctx context.Context, stage string, err error) error {
	n.log.Error("node is dead", "stage", stage, "error", err)
	n.metrics.Fatal()
	for {
		if terr := n.indicator.Toggle(); terr != nil {
			n.log.Debug("indicator", "error", terr)
		}
		if serr := n.clock.Sleep(ctx, n.cfg.BlinkInterval); serr != nil {
			return &FatalError{Stage: stage, Err: err}
		}
	}
}
