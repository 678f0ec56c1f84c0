package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, ctx context.Context, args ...string) (string, string, error) {
	t.Helper()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func TestRootRejectsBadFlags(t *testing.T) {
	_, _, err := execute(t, context.Background(), "--log-format", "xml", "presets")
	assert.ErrorContains(t, err, "invalid log format")

	_, _, err = execute(t, context.Background(), "--log-level", "loud", "presets")
	assert.ErrorContains(t, err, "invalid log level")
}

func TestPresetsCommand(t *testing.T) {
	out, _, err := execute(t, context.Background(), "presets")
	require.NoError(t, err)
	assert.Equal(t, "publisher\nstorm\ntracker\n", out)

	out, _, err = execute(t, context.Background(), "presets", "storm")
	require.NoError(t, err)
	assert.Contains(t, out, "target: 1")
	assert.Contains(t, out, "spin_budget: 0s")
	assert.Contains(t, out, "retry_interval: 3s")
	assert.Contains(t, out, "restart_ms: 100")

	_, _, err = execute(t, context.Background(), "presets", "nope")
	assert.ErrorContains(t, err, "unknown preset")
}

func TestTraceCommand(t *testing.T) {
	out, _, err := execute(t, context.Background(), "trace", "3", "1")
	require.NoError(t, err)
	assert.Equal(t, "SET GPIOC.UEXT3\n", out)

	out, _, err = execute(t, context.Background(), "trace", "10", "2")
	require.NoError(t, err)
	assert.Equal(t, "TGL GPIOG.UEXT10\n", out)

	_, _, err = execute(t, context.Background(), "trace", "9", "1")
	assert.ErrorContains(t, err, "unknown trace id")

	_, _, err = execute(t, context.Background(), "trace", "x", "1")
	assert.ErrorContains(t, err, "invalid trace id")
}

func TestRunRequiresSource(t *testing.T) {
	_, _, err := execute(t, context.Background(), "run")
	assert.ErrorContains(t, err, "--config or --preset")

	_, _, err = execute(t, context.Background(), "run", "--preset", "storm", "--config", "x.yaml")
	assert.ErrorContains(t, err, "mutually exclusive")

	_, _, err = execute(t, context.Background(), "run", "--preset", "storm", "--loopback-peer", "publisher")
	assert.ErrorContains(t, err, "requires the loopback driver")
}

func TestRunLoopbackUntilCancelled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
node:
  id: 3
  name: org.example.cli
bus:
  driver: loopback
  bitrate: 250000
bringup:
  retry_interval: 100ms
  check_compatibility: false
dispatch:
  spin_budget: 10ms
`), 0o600))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, stderr, err := execute(t, ctx, "--log-format", "text", "run", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, stderr, "msg=\"starting node\"")
	assert.Contains(t, stderr, "msg=\"bus initialised\" bitrate=250000")
	assert.Contains(t, stderr, "msg=\"node started\" id=3 name=org.example.cli")
}

func TestRunWithLoopbackPeer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()
	_, stderr, err := execute(t, ctx, "--log-format", "text", "run",
		"--preset", "publisher", "--driver", "loopback", "--loopback-peer", "tracker")
	require.NoError(t, err)
	assert.True(t, strings.Contains(stderr, "peer=tracker"), stderr)
	assert.Contains(t, stderr, "msg=\"node started\" id=1")
}

func TestNewLoggerFormats(t *testing.T) {
	for _, format := range ValidFormats {
		var buf bytes.Buffer
		logger, flush, err := newLogger(&RootOptions{LogLevel: "info", LogFormat: format}, &buf)
		require.NoError(t, err, format)
		logger.Debug("hidden")
		logger.Info("visible", "k", 1)
		flush()
		assert.Contains(t, buf.String(), "visible", format)
		assert.NotContains(t, buf.String(), "hidden", format)
	}
}
