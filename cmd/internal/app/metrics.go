package app

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the Prometheus registry and the pipeline counters. It
// satisfies both admission.Hooks and moderation.Hooks.
type Metrics struct {
	registry *prometheus.Registry

	challengesIssued *prometheus.CounterVec
	challengesSolved *prometheus.CounterVec
	challengesFailed *prometheus.CounterVec
	approvals        *prometheus.CounterVec
	restrictions     *prometheus.CounterVec
}

// NewMetrics builds a registry with process/go collectors plus the
// pipeline counters.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		challengesIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatekeep",
			Name:      "challenges_issued_total",
			Help:      "Challenges issued, by kind.",
		}, []string{"kind"}),
		challengesSolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatekeep",
			Name:      "challenges_solved_total",
			Help:      "Challenges solved, by kind.",
		}, []string{"kind"}),
		challengesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatekeep",
			Name:      "challenges_failed_total",
			Help:      "Wrong answers submitted, by kind.",
		}, []string{"kind"}),
		approvals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatekeep",
			Name:      "approvals_total",
			Help:      "Approval outcomes: ok, fallback, failed.",
		}, []string{"result"}),
		restrictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatekeep",
			Name:      "restrictions_total",
			Help:      "Restriction verdicts: applied, suppressed.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		m.challengesIssued,
		m.challengesSolved,
		m.challengesFailed,
		m.approvals,
		m.restrictions,
	)
	return m
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ChallengeIssued implements admission.Hooks.
func (m *Metrics) ChallengeIssued(kind string) { m.challengesIssued.WithLabelValues(kind).Inc() }

// ChallengeSolved implements admission.Hooks.
func (m *Metrics) ChallengeSolved(kind string) { m.challengesSolved.WithLabelValues(kind).Inc() }

// ChallengeFailed implements admission.Hooks.
func (m *Metrics) ChallengeFailed(kind string) { m.challengesFailed.WithLabelValues(kind).Inc() }

// ApprovalResult implements admission.Hooks.
func (m *Metrics) ApprovalResult(result string) { m.approvals.WithLabelValues(result).Inc() }

// Restriction implements moderation.Hooks.
func (m *Metrics) Restriction(result string) { m.restrictions.WithLabelValues(result).Inc() }
