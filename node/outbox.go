package node

import (
	"context"

	"github.com/notnil/cannode/canbus"
	"github.com/notnil/cannode/internal/telemetry"
	"github.com/notnil/cannode/uavcan"
)

// Outbox encodes transfers of the local node and puts them on the bus.
type Outbox struct {
	bus     canbus.Bus
	self    uavcan.NodeID
	metrics *telemetry.Metrics
}

func NewOutbox(bus canbus.Bus, self uavcan.NodeID) *Outbox {
	return &Outbox{bus: bus, self: self}
}

// Self returns the source node id stamped on every transfer.
func (o *Outbox) Self() uavcan.NodeID { return o.self }

// Send fills in the source node and sends m as a single-frame transfer.
func (o *Outbox) Send(ctx context.Context, id uavcan.ID, transferID uint8, m uavcan.PayloadMarshaler) error {
	id.Source = o.self
	f, err := uavcan.EncodeFrame(id, transferID, m)
	if err != nil {
		return err
	}
	if err := o.bus.Send(ctx, f); err != nil {
		return err
	}
	o.metrics.Frame(id.Kind.String(), "tx")
	return nil
}
