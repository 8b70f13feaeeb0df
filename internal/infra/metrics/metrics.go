// Package metrics exposes orchestrator counters for Prometheus scraping.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts admission and settlement outcomes.
type Metrics interface {
	IncAdmitted(kind string)
	IncRejected(kind, reason string)
	IncSettled(kind, outcome string)
	AddCreditsRefunded(kind string, credits int64)
	IncSwept(kind string)
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) IncAdmitted(string)              {}
func (Noop) IncRejected(string, string)      {}
func (Noop) IncSettled(string, string)       {}
func (Noop) AddCreditsRefunded(string, int64) {}
func (Noop) IncSwept(string)                 {}

// Prom implements Metrics backed by Prometheus counters.
type Prom struct {
	admitted        *prometheus.CounterVec
	rejected        *prometheus.CounterVec
	settled         *prometheus.CounterVec
	creditsRefunded *prometheus.CounterVec
	swept           *prometheus.CounterVec
	once            sync.Once
}

func NewProm(namespace string) *Prom {
	p := &Prom{
		admitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_admitted_total",
			Help:      "Jobs admitted by kind",
		}, []string{"kind"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_rejected_total",
			Help:      "Requests rejected before reservation, by kind and reason",
		}, []string{"kind", "reason"}),
		settled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_settled_total",
			Help:      "Jobs settled by kind and outcome",
		}, []string{"kind", "outcome"}),
		creditsRefunded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credits_refunded_total",
			Help:      "Credits refunded on failed jobs, by kind",
		}, []string{"kind"}),
		swept: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_swept_total",
			Help:      "Stale jobs force-failed by the sweeper, by kind",
		}, []string{"kind"}),
	}
	p.register()
	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		prometheus.MustRegister(p.admitted, p.rejected, p.settled, p.creditsRefunded, p.swept)
	})
}

func (p *Prom) IncAdmitted(kind string)            { p.admitted.WithLabelValues(kind).Inc() }
func (p *Prom) IncRejected(kind, reason string)    { p.rejected.WithLabelValues(kind, reason).Inc() }
func (p *Prom) IncSettled(kind, outcome string)    { p.settled.WithLabelValues(kind, outcome).Inc() }
func (p *Prom) IncSwept(kind string)               { p.swept.WithLabelValues(kind).Inc() }

func (p *Prom) AddCreditsRefunded(kind string, credits int64) {
	p.creditsRefunded.WithLabelValues(kind).Add(float64(credits))
}
