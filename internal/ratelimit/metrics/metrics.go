package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Check outcomes recorded per decision.
const (
	OutcomeAllowed  = "allowed"
	OutcomeLimited  = "limited"
	OutcomeBypassed = "bypassed"
)

type Metrics struct {
	ChecksTotal        *prometheus.CounterVec
	DegradedMode       prometheus.Gauge
	GuestCookiesIssued prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		ChecksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quotagate_ratelimit_checks_total",
			Help: "Total number of rate limit checks by role and outcome",
		}, []string{"role", "outcome"}),
		DegradedMode: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "quotagate_ratelimit_degraded_mode",
			Help: "1 when the last counter store call failed and checks bypass enforcement",
		}),
		GuestCookiesIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quotagate_ratelimit_guest_cookies_issued_total",
			Help: "Total number of freshly issued anonymous guest ids",
		}),
	}
}

func (m *Metrics) RecordCheck(role, outcome string) {
	m.ChecksTotal.WithLabelValues(role, outcome).Inc()
}

func (m *Metrics) SetDegraded(degraded bool) {
	if degraded {
		m.DegradedMode.Set(1)
		return
	}
	m.DegradedMode.Set(0)
}

func (m *Metrics) RecordGuestCookieIssued() {
	m.GuestCookiesIssued.Inc()
}
