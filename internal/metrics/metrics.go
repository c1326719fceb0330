// Package metrics holds the prometheus collectors of the engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bankrecon"

// Metrics is nil-safe: every method on a nil *Metrics is a no-op.
type Metrics struct {
	syncTotal      *prometheus.CounterVec
	syncDuration   *prometheus.HistogramVec
	ingested       *prometheus.CounterVec
	matches        *prometheus.CounterVec
	ambiguous      prometheus.Counter
	claimConflicts prometheus.Counter
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		syncTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_total",
			Help:      "Account sync attempts by institution and outcome.",
		}, []string{"institution", "outcome"}),
		syncDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Duration of account syncs.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"institution"}),
		ingested: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_ingested_total",
			Help:      "New bank transactions stored.",
		}, []string{"institution"}),
		matches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_total",
			Help:      "Reconciliations created by type.",
		}, []string{"type"}),
		ambiguous: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ambiguous_matches_total",
			Help:      "Transactions with more than one candidate sale.",
		}),
		claimConflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claim_conflicts_total",
			Help:      "Matches rolled back because the sale or transaction was claimed concurrently.",
		}),
	}
}

func (m *Metrics) ObserveSync(institution string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "error"
	}
	m.syncTotal.WithLabelValues(institution, outcome).Inc()
	m.syncDuration.WithLabelValues(institution).Observe(d.Seconds())
}

func (m *Metrics) AddIngested(institution string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ingested.WithLabelValues(institution).Add(float64(n))
}

func (m *Metrics) IncMatch(kind string) {
	if m == nil {
		return
	}
	m.matches.WithLabelValues(kind).Inc()
}

func (m *Metrics) AddAmbiguous(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ambiguous.Add(float64(n))
}

func (m *Metrics) IncConflict() {
	if m == nil {
		return
	}
	m.claimConflicts.Inc()
}
