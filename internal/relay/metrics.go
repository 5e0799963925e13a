package relay

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the relay's Prometheus instrumentation, registered against
// a caller-supplied registry so tests can use a fresh one per case instead
// of fighting the global default registry.
type Metrics struct {
	SessionsCreated  prometheus.Counter
	SessionsEvicted  prometheus.Counter
	ActiveSessions   prometheus.Gauge
	ViewersConnected prometheus.Gauge
	FramesIn         *prometheus.CounterVec
	FramesOut        *prometheus.CounterVec
	ReaperSweeps     prometheus.Counter
	AuthFailures     prometheus.Counter
}

// NewMetrics constructs and registers the relay's metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "omnara_relay_sessions_created_total",
			Help: "Total number of sessions created (resurrections of ended sessions are not counted).",
		}),
		SessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "omnara_relay_sessions_evicted_total",
			Help: "Total number of ended sessions evicted by the reaper.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "omnara_relay_sessions_active",
			Help: "Current number of sessions held in the registry.",
		}),
		ViewersConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "omnara_relay_viewers_connected",
			Help: "Current number of connected viewer sockets.",
		}),
		FramesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omnara_relay_frames_in_total",
			Help: "Frames received, labeled by frame type.",
		}, []string{"frame_type"}),
		FramesOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omnara_relay_frames_out_total",
			Help: "Frames sent, labeled by frame type.",
		}, []string{"frame_type"}),
		ReaperSweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "omnara_relay_reaper_sweeps_total",
			Help: "Total number of reaper sweep passes.",
		}),
		AuthFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "omnara_relay_auth_failures_total",
			Help: "Total number of rejected authentication attempts.",
		}),
	}

	reg.MustRegister(
		m.SessionsCreated, m.SessionsEvicted, m.ActiveSessions,
		m.ViewersConnected, m.FramesIn, m.FramesOut,
		m.ReaperSweeps, m.AuthFailures,
	)
	return m
}
