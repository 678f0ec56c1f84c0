package telemetry

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.BringUpAttempt("ok")
		m.BringUpState(4)
		m.Spin(time.Millisecond, errors.New("x"))
		m.Frame("message", "rx")
		m.CallCompleted(true, time.Millisecond)
		m.InFlight(1)
		m.PeerStatus("OK")
		m.ClockAdjusted(time.Second)
		m.BusErrors(3)
		m.Fatal()
		m.SetBuildInfo("dev", 1)
	})
}

func TestCounters(t *testing.T) {
	m := New()
	m.BringUpAttempt("failure")
	m.BringUpAttempt("failure")
	m.BringUpAttempt("ok")
	m.Spin(time.Millisecond, errors.New("boom"))
	m.Spin(time.Millisecond, nil)
	m.CallCompleted(true, 2*time.Millisecond)
	m.CallCompleted(false, 0)
	m.PeerStatus("OK")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.bringUpAttempts.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.bringUpAttempts.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.spinFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.serviceCalls.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.serviceCalls.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.peerStatus.WithLabelValues("OK")))
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.SetBuildInfo("v1.2.3", 7)
	m.Fatal()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `cannode_build_info{node_id="7",version="v1.2.3"} 1`))
	assert.True(t, strings.Contains(body, "cannode_fatal 1"))
	assert.True(t, strings.Contains(body, "cannode_uptime_seconds"))
}
