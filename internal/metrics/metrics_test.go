package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSchedulingMetricsCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSchedulingMetrics(reg)

	m.ObserveOperation("request", "ok", 0.01)
	m.ObserveOperation("request", "slot_unavailable", 0.02)
	m.ObserveOperation("request", "ok", 0.01)
	m.IncLinkFailure()
	m.AddHoldsReleased(3)
	m.ObserveSlotLock("acquired")
	m.ObserveSlotLock("contended")
	m.ObserveSlotLock("contended")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("request", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("request", "slot_unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.linkFailures))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.holdsReleased))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.slotLocks.WithLabelValues("contended")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *SchedulingMetrics
	m.ObserveOperation("approve", "ok", 1)
	m.IncLinkFailure()
	m.AddHoldsReleased(1)
	m.ObserveSlotLock("error")
}
