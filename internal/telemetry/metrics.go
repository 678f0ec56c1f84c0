package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cannode"

// Metrics holds the collectors of one node on its own registry. All methods
// are safe on a nil *Metrics, which records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	bringUpAttempts *prometheus.CounterVec
	bringUpState    prometheus.Gauge
	spinFailures    prometheus.Counter
	spinDuration    prometheus.Histogram
	frames          *prometheus.CounterVec
	serviceCalls    *prometheus.CounterVec
	callLatency     prometheus.Histogram
	inFlight        prometheus.Gauge
	peerStatus      *prometheus.CounterVec
	clockAdjust     prometheus.Counter
	clockOffset     prometheus.Gauge
	busErrors       prometheus.Gauge
	fatal           prometheus.Gauge
	buildInfo       *prometheus.GaugeVec
}

// New creates the collectors and registers them with a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		bringUpAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bringup_attempts_total",
			Help:      "Bring-up attempts by outcome.",
		}, []string{"outcome"}),
		bringUpState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bringup_state",
			Help:      "Current bring-up state (0 uninitialized .. 4 ready).",
		}),
		spinFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spin_failures_total",
			Help:      "Dispatch iterations whose bus servicing failed.",
		}),
		spinDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "spin_duration_seconds",
			Help:      "Time spent servicing the bus per dispatch iteration.",
			// 1ms .. ~8s
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Transfers handled by kind and direction.",
		}, []string{"kind", "direction"}),
		serviceCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "service_calls_total",
			Help:      "Completed service calls by result.",
		}, []string{"result"}),
		callLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "service_call_latency_seconds",
			Help:      "Time from request to matched response.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 13),
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "service_calls_in_flight",
			Help:      "Service calls awaiting a response.",
		}),
		peerStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peer_status_total",
			Help:      "Observed peer status broadcasts by status name.",
		}, []string{"status"}),
		clockAdjust: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clock_adjustments_total",
			Help:      "UTC clock adjustments applied.",
		}),
		clockOffset: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clock_last_adjustment_seconds",
			Help:      "Size of the most recent UTC adjustment.",
		}),
		busErrors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bus_errors",
			Help:      "Error counter reported by the bus driver.",
		}),
		fatal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fatal",
			Help:      "1 once the node entered its terminal state.",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build info (constant 1, labeled by version and node id).",
		}, []string{"version", "node_id"}),
	}

	startTime := time.Now()
	uptime := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Process uptime in seconds.",
	}, func() float64 { return time.Since(startTime).Seconds() })

	m.Registry.MustRegister(
		m.bringUpAttempts, m.bringUpState, m.spinFailures, m.spinDuration,
		m.frames, m.serviceCalls, m.callLatency, m.inFlight, m.peerStatus,
		m.clockAdjust, m.clockOffset, m.busErrors, m.fatal, m.buildInfo, uptime,
	)
	return m
}

// Handler exposes the registry. Mount it with mux.Handle("/metrics", m.Handler()).
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// SetBuildInfo should be called once at startup.
func (m *Metrics) SetBuildInfo(version string, nodeID uint8) {
	if m == nil {
		return
	}
	m.buildInfo.WithLabelValues(version, strconv.Itoa(int(nodeID))).Set(1)
}

func (m *Metrics) BringUpAttempt(outcome string) {
	if m == nil {
		return
	}
	m.bringUpAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) BringUpState(state int) {
	if m == nil {
		return
	}
	m.bringUpState.Set(float64(state))
}

func (m *Metrics) Spin(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.spinDuration.Observe(d.Seconds())
	if err != nil {
		m.spinFailures.Inc()
	}
}

func (m *Metrics) Frame(kind, direction string) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(kind, direction).Inc()
}

// CallCompleted records a finished call; latency is ignored on failure.
func (m *Metrics) CallCompleted(ok bool, latency time.Duration) {
	if m == nil {
		return
	}
	if ok {
		m.serviceCalls.WithLabelValues("ok").Inc()
		m.callLatency.Observe(latency.Seconds())
		return
	}
	m.serviceCalls.WithLabelValues("failed").Inc()
}

func (m *Metrics) InFlight(n int) {
	if m == nil {
		return
	}
	m.inFlight.Set(float64(n))
}

func (m *Metrics) PeerStatus(name string) {
	if m == nil {
		return
	}
	m.peerStatus.WithLabelValues(name).Inc()
}

func (m *Metrics) ClockAdjusted(d time.Duration) {
	if m == nil {
		return
	}
	m.clockAdjust.Inc()
	m.clockOffset.Set(d.Seconds())
}

func (m *Metrics) BusErrors(n uint64) {
	if m == nil {
		return
	}
	m.busErrors.Set(float64(n))
}

func (m *Metrics) Fatal() {
	if m == nil {
		return
	}
	m.fatal.Set(1)
}
