//go:build linux

package cli

import (
	"github.com/notnil/cannode/canbus"
	"github.com/notnil/cannode/internal/config"
)

func openSocketCAN(bus config.BusSection) (canbus.Driver, error) {
	return canbus.NewSocketCANDriver(bus.Interface, socketCANOptions(bus)...), nil
}

// socketCANOptions maps the optional link settings of the bus section.
func socketCANOptions(bus config.BusSection) []canbus.SocketCANOption {
	var opts []canbus.SocketCANOption
	if bus.RestartMs != nil {
		opts = append(opts, canbus.WithRestartMs(*bus.RestartMs))
	}
	if bus.TxQueueLen > 0 {
		opts = append(opts, canbus.WithTxQueueLen(bus.TxQueueLen))
	}
	return opts
}
