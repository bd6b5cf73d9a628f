package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks server activity. Each server owns its registry so test
// servers never collide on metric registration.
type Metrics struct {
	registry *prometheus.Registry

	activeSessions    prometheus.Gauge
	connectionsTotal  prometheus.Counter
	admissionRejected prometheus.Counter
	registrations     prometheus.Counter
	authFailures      prometheus.Counter
	messagesRouted    prometheus.Counter
	messagesQueued    prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatd_active_sessions",
			Help: "Number of currently authenticated sessions",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatd_connections_total",
			Help: "Total accepted connections",
		}),
		admissionRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatd_admission_rejected_total",
			Help: "Connections rejected at the admission gate",
		}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatd_registrations_total",
			Help: "Successful user registrations",
		}),
		authFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatd_auth_failures_total",
			Help: "Failed login attempts",
		}),
		messagesRouted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatd_messages_routed_total",
			Help: "Messages delivered live to an online session",
		}),
		messagesQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatd_messages_queued_total",
			Help: "Messages persisted for offline delivery",
		}),
	}

	m.registry.MustRegister(
		m.activeSessions,
		m.connectionsTotal,
		m.admissionRejected,
		m.registrations,
		m.authFailures,
		m.messagesRouted,
		m.messagesQueued,
	)

	return m
}

func (m *Metrics) RecordActiveSessions(n int) { m.activeSessions.Set(float64(n)) }
func (m *Metrics) RecordConnection()          { m.connectionsTotal.Inc() }
func (m *Metrics) RecordAdmissionRejected()   { m.admissionRejected.Inc() }
func (m *Metrics) RecordRegistration()        { m.registrations.Inc() }
func (m *Metrics) RecordAuthFailure()         { m.authFailures.Inc() }
func (m *Metrics) RecordMessageRouted()       { m.messagesRouted.Inc() }
func (m *Metrics) RecordMessageQueued()       { m.messagesQueued.Inc() }

// Handler serves this server's metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
