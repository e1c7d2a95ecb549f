package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the SSO bridge counters.
type Metrics struct {
	registry *prometheus.Registry

	AssertionsTotal  *prometheus.CounterVec
	SessionsCreated  *prometheus.CounterVec
	LogoutsTotal     prometheus.Counter
	IdleExpirations  prometheus.Counter
	CSRFRejections   prometheus.Counter
	RateLimitedTotal prometheus.Counter
	UnsafeRedirects  prometheus.Counter
}

// New creates the counters and registers them on registry.
func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		AssertionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sso_assertions_total",
				Help: "SSO assertions processed, by result and rejection reason",
			},
			[]string{"result", "reason"},
		),
		SessionsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sso_sessions_created_total",
				Help: "Sessions minted, by identity provider",
			},
			[]string{"provider"},
		),
		LogoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sso_logouts_total",
			Help: "Explicit logouts",
		}),
		IdleExpirations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sso_idle_expirations_total",
			Help: "Sessions terminated server-side after the idle limit",
		}),
		CSRFRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sso_csrf_rejections_total",
			Help: "Requests rejected for a missing or mismatched csrf token",
		}),
		RateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sso_rate_limited_total",
			Help: "SSO requests rejected by the per-ip rate limiter",
		}),
		UnsafeRedirects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sso_unsafe_redirects_total",
			Help: "Callback urls rewritten to / because they were not same-origin",
		}),
	}

	registry.MustRegister(
		m.AssertionsTotal,
		m.SessionsCreated,
		m.LogoutsTotal,
		m.IdleExpirations,
		m.CSRFRejections,
		m.RateLimitedTotal,
		m.UnsafeRedirects,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
