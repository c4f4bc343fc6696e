package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// -----------------------------------------------------------------------------
// Metrics holds all Prometheus metrics for the terminal core.
// A nil *Metrics is valid everywhere and records nothing, so unit tests can
// build components without touching the global registry.
// -----------------------------------------------------------------------------

type Metrics struct {
	RequestsDispatched *prometheus.CounterVec // labels: kind
	RequestsResolved   *prometheus.CounterVec // labels: outcome
	TicksReceived      prometheus.Counter
	TicksDropped       prometheus.Counter
	PacingQueueDepth   prometheus.Gauge
	ConnectionState    prometheus.Gauge // 0=disconnected, 1=connecting, 2=connected
	BatchJobsSubmitted prometheus.Counter
	ActiveStreams      prometheus.Gauge
}

// -----------------------------------------------------------------------------

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		RequestsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "terminal_requests_dispatched_total",
			Help: "Total requests dispatched to the gateway, by kind",
		}, []string{"kind"}),
		RequestsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "terminal_requests_resolved_total",
			Help: "Total request resolutions, by outcome",
		}, []string{"outcome"}),
		TicksReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "terminal_ticks_received_total",
			Help: "Total ticks received on live streams",
		}),
		TicksDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "terminal_ticks_dropped_total",
			Help: "Ticks dropped for unknown or stopped streams",
		}),
		PacingQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "terminal_pacing_queue_depth",
			Help: "Dispatches currently queued behind the pacing window",
		}),
		ConnectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "terminal_connection_state",
			Help: "Gateway connection state (0=disconnected, 1=connecting, 2=connected)",
		}),
		BatchJobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "terminal_batch_jobs_submitted_total",
			Help: "Total historical batch jobs submitted",
		}),
		ActiveStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "terminal_active_streams",
			Help: "Currently active live streams",
		}),
	}

	prometheus.MustRegister(
		m.RequestsDispatched,
		m.RequestsResolved,
		m.TicksReceived,
		m.TicksDropped,
		m.PacingQueueDepth,
		m.ConnectionState,
		m.BatchJobsSubmitted,
		m.ActiveStreams,
	)

	return m
}

// -----------------------------------------------------------------------------
// Nil-safe recorders (hot paths call these instead of touching fields)
// -----------------------------------------------------------------------------

func (m *Metrics) Dispatched(kind string) {
	if m == nil {
		return
	}
	m.RequestsDispatched.WithLabelValues(kind).Inc()
}

func (m *Metrics) Resolved(outcome string) {
	if m == nil {
		return
	}
	m.RequestsResolved.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Tick() {
	if m == nil {
		return
	}
	m.TicksReceived.Inc()
}

func (m *Metrics) DroppedTick() {
	if m == nil {
		return
	}
	m.TicksDropped.Inc()
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.PacingQueueDepth.Set(float64(n))
}

func (m *Metrics) SetConnectionState(state float64) {
	if m == nil {
		return
	}
	m.ConnectionState.Set(state)
}

func (m *Metrics) BatchSubmitted() {
	if m == nil {
		return
	}
	m.BatchJobsSubmitted.Inc()
}

func (m *Metrics) SetActiveStreams(n int) {
	if m == nil {
		return
	}
	m.ActiveStreams.Set(float64(n))
}
