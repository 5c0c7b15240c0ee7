// Package metrics exposes the relay's Prometheus collectors. A nil *Metrics
// is valid and records nothing, which keeps tests free of registries.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	activeSessions prometheus.Gauge
	sessionTotal   prometheus.Counter
	superseded     prometheus.Counter
	messages       *prometheus.CounterVec
	signals        *prometheus.CounterVec
	denials        *prometheus.CounterVec
	frameErrors    *prometheus.CounterVec
	presenceReaped prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "saathi_sessions_active",
			Help: "Current number of registered live sessions.",
		}),
		sessionTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "saathi_sessions_total",
			Help: "Total number of sessions connected since start.",
		}),
		superseded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "saathi_sessions_superseded_total",
			Help: "Sessions closed because the same user connected again.",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "saathi_messages_total",
			Help: "Chat messages persisted, grouped by whether the receiver was live.",
		}, []string{"delivery"}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "saathi_call_signals_total",
			Help: "Call signals relayed, grouped by kind and outcome.",
		}, []string{"kind", "result"}),
		denials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "saathi_authorization_denied_total",
			Help: "Exchanges refused by the authorization engine.",
		}, []string{"op"}),
		frameErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "saathi_ws_frame_errors_total",
			Help: "Websocket frames answered with an error, grouped by code.",
		}, []string{"code"}),
		presenceReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "saathi_presence_reaped_total",
			Help: "Stale online flags cleared by housekeeping.",
		}),
	}

	reg.MustRegister(
		m.activeSessions,
		m.sessionTotal,
		m.superseded,
		m.messages,
		m.signals,
		m.denials,
		m.frameErrors,
		m.presenceReaped,
	)
	return m
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
	m.sessionTotal.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

func (m *Metrics) SessionSuperseded() {
	if m == nil {
		return
	}
	m.superseded.Inc()
}

// MessageStored records a persisted chat message. live reports whether it
// was also forwarded to a connected receiver.
func (m *Metrics) MessageStored(live bool) {
	if m == nil {
		return
	}
	delivery := "stored"
	if live {
		delivery = "forwarded"
	}
	m.messages.WithLabelValues(delivery).Inc()
}

func (m *Metrics) SignalRelayed(kind string, delivered bool) {
	if m == nil {
		return
	}
	result := "dropped"
	if delivered {
		result = "delivered"
	}
	m.signals.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) Denied(op string) {
	if m == nil {
		return
	}
	m.denials.WithLabelValues(op).Inc()
}

func (m *Metrics) FrameError(code string) {
	if m == nil {
		return
	}
	m.frameErrors.WithLabelValues(code).Inc()
}

func (m *Metrics) PresenceReaped(n int) {
	if m == nil {
		return
	}
	m.presenceReaped.Add(float64(n))
}
