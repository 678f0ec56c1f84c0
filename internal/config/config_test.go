package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notnil/cannode/node"
	"github.com/notnil/cannode/uavcan"
)

const sample = `
node:
  id: 7
  name: org.example.bench
  unique_id: 6f1c2b9e-8d0a-4c1e-9d6b-2a7f3e5c4b10
bus:
  driver: loopback
  bitrate: 500000
  restart_ms: 0
  txqueuelen: 1000
bringup:
  retry_interval: 3s
  check_compatibility: false
time_sync:
  role: tracker
  master_timeout: 5s
  log_status: true
status:
  period: 250ms
service:
  target: 1
  timeout: 200ms
dispatch:
  spin_budget: 5s
  log_diagnostics: true
indicator:
  blink_interval: 100ms
metrics:
  listen: ":9102"
`

func TestParseAndConvert(t *testing.T) {
	f, err := Parse([]byte(sample))
	require.NoError(t, err)
	require.NoError(t, f.Validate())

	cfg, err := f.NodeConfig()
	require.NoError(t, err)
	assert.Equal(t, uavcan.NodeID(7), cfg.Identity.ID)
	assert.Equal(t, "org.example.bench", cfg.Identity.Name)
	assert.Equal(t, "6f1c2b9e-8d0a-4c1e-9d6b-2a7f3e5c4b10", cfg.Identity.UniqueID.String())
	assert.Equal(t, uint32(500000), cfg.Bitrate)
	assert.Equal(t, 3*time.Second, cfg.RetryInterval)
	assert.False(t, cfg.CheckCompatibility)
	assert.Equal(t, node.RoleTracker, cfg.Role)
	assert.Equal(t, 5*time.Second, cfg.MasterTimeout)
	assert.True(t, cfg.LogTrackerStatus)
	assert.Equal(t, 250*time.Millisecond, cfg.StatusPeriod)
	assert.True(t, cfg.ObserveStatus, "observe defaults to on")
	assert.Equal(t, uavcan.NodeID(1), cfg.ServiceTarget)
	assert.Equal(t, 200*time.Millisecond, cfg.ServiceTimeout)
	assert.Equal(t, 5*time.Second, cfg.SpinBudget)
	assert.True(t, cfg.LogDiagnostics)
	assert.Equal(t, 100*time.Millisecond, cfg.BlinkInterval)
	assert.Equal(t, ":9102", f.Metrics.Listen)
	require.NotNil(t, f.Bus.RestartMs, "an explicit zero restart is kept")
	assert.Equal(t, uint32(0), *f.Bus.RestartMs)
	assert.Equal(t, 1000, f.Bus.TxQueueLen)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("node:\n  id: 1\n  nmae: typo\n"))
	assert.Error(t, err)
}

func TestNodeConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing id", "node:\n  name: x\n"},
		{"bad role", "node:\n  id: 1\n  name: x\ntime_sync:\n  role: leader\n"},
		{"bad uuid", "node:\n  id: 1\n  name: x\n  unique_id: nope\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Parse([]byte(tt.yaml))
			require.NoError(t, err)
			_, err = f.NodeConfig()
			assert.Error(t, err)
		})
	}
}

func TestValidateBus(t *testing.T) {
	f, err := Parse([]byte("node:\n  id: 1\n  name: x\nbus:\n  driver: socketcan\n"))
	require.NoError(t, err)
	assert.ErrorContains(t, f.Validate(), "bus.interface")

	f.Bus.Driver = "pcan"
	assert.ErrorContains(t, f.Validate(), "unknown bus driver")

	f.Bus.Driver = "loopback"
	f.Bus.TxQueueLen = -1
	assert.ErrorContains(t, f.Validate(), "bus.txqueuelen")
}

func TestPresets(t *testing.T) {
	assert.Equal(t, []string{"publisher", "storm", "tracker"}, PresetNames())

	budgets := map[string]time.Duration{
		"publisher": time.Second,
		"tracker":   time.Second,
		"storm":     0,
	}
	for name, budget := range budgets {
		f, err := Preset(name)
		require.NoError(t, err)
		require.NoError(t, f.Validate(), name)
		cfg, err := f.NodeConfig()
		require.NoError(t, err)
		assert.Equal(t, budget, cfg.SpinBudget, name)
	}

	storm, _ := Preset("storm")
	cfg, _ := storm.NodeConfig()
	assert.Equal(t, uavcan.NodeID(1), cfg.ServiceTarget)
	assert.Equal(t, 3*time.Second, cfg.RetryInterval)
	assert.Equal(t, node.RoleTracker, cfg.Role)
	require.NotNil(t, storm.Bus.RestartMs)
	assert.Equal(t, uint32(100), *storm.Bus.RestartMs)

	pub, _ := Preset("publisher")
	cfg, _ = pub.NodeConfig()
	assert.Equal(t, node.RolePublisher, cfg.Role)
	assert.True(t, cfg.ServeCalls)
	assert.Equal(t, 1234*time.Microsecond, cfg.TimeSyncSeed)

	_, err := Preset("nope")
	assert.ErrorIs(t, err, ErrUnknownPreset)
}

func TestMarshalRoundTrip(t *testing.T) {
	f, err := Preset("storm")
	require.NoError(t, err)
	data, err := f.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), "retry_interval: 3s")

	path := filepath.Join(t.TempDir(), "storm.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, f, back)
}
