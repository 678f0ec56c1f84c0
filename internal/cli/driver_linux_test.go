//go:build linux

package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notnil/cannode/canbus"
	"github.com/notnil/cannode/internal/config"
)

func TestSocketCANOptionsFromConfig(t *testing.T) {
	assert.Empty(t, socketCANOptions(config.BusSection{Interface: "can0"}))

	restart := uint32(0)
	bus := config.BusSection{Driver: "socketcan", Interface: "can0", RestartMs: &restart, TxQueueLen: 1000}
	assert.Len(t, socketCANOptions(bus), 2)

	drv, err := openSocketCAN(bus)
	require.NoError(t, err)
	assert.IsType(t, &canbus.SocketCANDriver{}, drv)
}
