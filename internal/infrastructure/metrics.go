package infrastructure

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the application's Prometheus collectors on a private
// registry so tests can create isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	// LicenseChecks counts license evaluations by resulting status.
	LicenseChecks *prometheus.CounterVec

	// SessionEvents counts session start/end attempts by event and outcome.
	SessionEvents *prometheus.CounterVec

	// AuditDrops counts audit writes swallowed because the store failed.
	AuditDrops prometheus.Counter

	// RateLimited counts requests rejected by the per-client limiter.
	RateLimited prometheus.Counter
}

// NewMetrics creates and registers all application collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		LicenseChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "licgate_license_checks_total",
			Help: "License evaluations by resulting status.",
		}, []string{"status"}),
		SessionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "licgate_session_events_total",
			Help: "Session start/end attempts by event and outcome.",
		}, []string{"event", "outcome"}),
		AuditDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "licgate_audit_drops_total",
			Help: "Audit records dropped because the store write failed.",
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "licgate_rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter.",
		}),
	}
	reg.MustRegister(m.LicenseChecks, m.SessionEvents, m.AuditDrops, m.RateLimited)
	return m
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
