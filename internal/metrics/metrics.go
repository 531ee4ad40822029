// Package metrics holds the Prometheus collectors for selection runs and
// evaluation scoring.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "callaudit"

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	selectionsInserted *prometheus.CounterVec
	selectionsSkipped  *prometheus.CounterVec
	dailyQuota         *prometheus.GaugeVec
	selectionRuns      *prometheus.CounterVec

	evaluationsScored *prometheus.CounterVec
	evaluationScore   *prometheus.HistogramVec
	corrections       *prometheus.CounterVec
	overridesApplied  *prometheus.CounterVec
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	auto := promauto.With(reg)
	return &Metrics{
		selectionsInserted: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "selection",
			Name:      "inserted_total",
			Help:      "Selections inserted, by client.",
		}, []string{"client"}),
		selectionsSkipped: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "selection",
			Name:      "skipped_total",
			Help:      "Selection inserts rejected as duplicates, by client.",
		}, []string{"client"}),
		dailyQuota: auto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "selection",
			Name:      "daily_quota",
			Help:      "Agent quota computed by the last run, by client. -1 means unbounded.",
		}, []string{"client"}),
		selectionRuns: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "selection",
			Name:      "runs_total",
			Help:      "Selection runs, by outcome.",
		}, []string{"outcome"}),
		evaluationsScored: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "scored_total",
			Help:      "Evaluations scored, by rubric.",
		}, []string{"rubric"}),
		evaluationScore: auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "score",
			Help:      "Distribution of final evaluation scores.",
			Buckets:   []float64{0, 20, 40, 60, 70, 80, 90, 100},
		}, []string{"rubric"}),
		corrections: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "corrections_total",
			Help:      "Reviewer corrections, by whether any outcome changed.",
		}, []string{"changed"}),
		overridesApplied: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "overrides_applied_total",
			Help:      "Criteria changed by transcript overrides, by rule.",
		}, []string{"rule"}),
	}
}

func (m *Metrics) RecordSelection(client string, inserted, skipped int) {
	if m == nil {
		return
	}
	m.selectionsInserted.WithLabelValues(client).Add(float64(inserted))
	m.selectionsSkipped.WithLabelValues(client).Add(float64(skipped))
}

func (m *Metrics) SetQuota(client string, quota int) {
	if m == nil {
		return
	}
	m.dailyQuota.WithLabelValues(client).Set(float64(quota))
}

func (m *Metrics) RecordRun(err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.selectionRuns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordScore(rubric string, score int) {
	if m == nil {
		return
	}
	m.evaluationsScored.WithLabelValues(rubric).Inc()
	m.evaluationScore.WithLabelValues(rubric).Observe(float64(score))
}

func (m *Metrics) RecordCorrection(changed bool) {
	if m == nil {
		return
	}
	label := "false"
	if changed {
		label = "true"
	}
	m.corrections.WithLabelValues(label).Inc()
}

func (m *Metrics) RecordOverride(rule string) {
	if m == nil {
		return
	}
	m.overridesApplied.WithLabelValues(rule).Inc()
}
