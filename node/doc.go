// Package node is the runtime of a bus node: it brings the node online,
// runs the time synchronization role, reports and observes status, issues
// service calls and sequences all of it from a single dispatch loop.
//
// A Node owns all of its state and is driven by exactly one goroutine, the
// one calling Run. Frames reach node logic only through Spin on that
// goroutine, so none of the components below use locks.
//
//	n, err := node.New(cfg, driver, node.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	return n.Run(ctx)
package node
