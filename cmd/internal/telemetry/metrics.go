// Package telemetry holds the Prometheus collectors of the auth server.
//
// All methods are safe on a nil *Metrics, so components can run without metrics.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is a private registry plus the auth counters.
type Metrics struct {
	registry *prometheus.Registry

	magicLinksIssued    prometheus.Counter
	magicLinksValidated *prometheus.CounterVec
	refresh             *prometheus.CounterVec
	logouts             prometheus.Counter
	syncAuthorizations  *prometheus.CounterVec
}

// New registers the auth counters and the Go/process collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		magicLinksIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_auth_magic_links_issued_total",
			Help: "Magic links created and handed to the e-mail sender.",
		}),
		magicLinksValidated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_auth_magic_links_validated_total",
			Help: "Magic link submissions by outcome.",
		}, []string{"outcome"}),
		refresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_auth_refresh_total",
			Help: "Refresh attempts by outcome.",
		}, []string{"outcome"}),
		logouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_auth_logouts_total",
			Help: "Logout requests.",
		}),
		syncAuthorizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_sync_authorizations_total",
			Help: "Sync channel authorization checks by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.magicLinksIssued,
		m.magicLinksValidated,
		m.refresh,
		m.logouts,
		m.syncAuthorizations,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) MagicLinkIssued() {
	if m != nil {
		m.magicLinksIssued.Inc()
	}
}

func (m *Metrics) MagicLinkValidated(outcome string) {
	if m != nil {
		m.magicLinksValidated.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) Refresh(outcome string) {
	if m != nil {
		m.refresh.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) Logout() {
	if m != nil {
		m.logouts.Inc()
	}
}

func (m *Metrics) SyncAuthorization(outcome string) {
	if m != nil {
		m.syncAuthorizations.WithLabelValues(outcome).Inc()
	}
}
