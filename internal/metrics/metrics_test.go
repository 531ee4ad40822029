package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordSelection(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordSelection("claro_hogar", 3, 1)
	m.RecordSelection("claro_hogar", 2, 0)
	m.SetQuota("lv", -1)

	assert.Equal(t, 5.0, testutil.ToFloat64(m.selectionsInserted.WithLabelValues("claro_hogar")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.selectionsSkipped.WithLabelValues("claro_hogar")))
	assert.Equal(t, -1.0, testutil.ToFloat64(m.dailyQuota.WithLabelValues("lv")))
}

func TestRecordRunOutcome(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordRun(nil)
	m.RecordRun(errors.New("db down"))
	m.RecordRun(nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.selectionRuns.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.selectionRuns.WithLabelValues("error")))
}

func TestEvaluationMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordScore("claro_tyt", 85)
	m.RecordCorrection(true)
	m.RecordOverride("no_objection")
	m.RecordOverride("no_objection")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.evaluationsScored.WithLabelValues("claro_tyt")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.corrections.WithLabelValues("true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.overridesApplied.WithLabelValues("no_objection")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordSelection("x", 1, 1)
	m.SetQuota("x", 1)
	m.RecordRun(nil)
	m.RecordScore("x", 1)
	m.RecordCorrection(false)
	m.RecordOverride("x")
}
