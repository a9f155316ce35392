package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for engine operations.
type SchedulingMetrics struct {
	operationsTotal  *prometheus.CounterVec
	operationLatency *prometheus.HistogramVec
	linkFailures     prometheus.Counter
	holdsReleased    prometheus.Counter
	slotLocks        *prometheus.CounterVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "therapy",
			Subsystem: "scheduling",
			Name:      "operations_total",
			Help:      "Scheduling engine operations by outcome",
		}, []string{"operation", "outcome"}),
		operationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "therapy",
			Subsystem: "scheduling",
			Name:      "operation_latency_seconds",
			Help:      "Latency of scheduling engine operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		linkFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "therapy",
			Subsystem: "scheduling",
			Name:      "profile_link_failures_total",
			Help:      "Best-effort patient to therapist profile links that failed during approval",
		}),
		holdsReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "therapy",
			Subsystem: "scheduling",
			Name:      "holds_released_total",
			Help:      "Held slots released by the stale hold sweeper",
		}),
		slotLocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "therapy",
			Subsystem: "scheduling",
			Name:      "slot_lock_attempts_total",
			Help:      "Redis slot lock attempts by outcome (acquired, contended, error)",
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.operationsTotal, m.operationLatency, m.linkFailures, m.holdsReleased, m.slotLocks)
	return m
}

func (m *SchedulingMetrics) ObserveOperation(operation, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(operation, outcome).Inc()
	m.operationLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *SchedulingMetrics) IncLinkFailure() {
	if m == nil {
		return
	}
	m.linkFailures.Inc()
}

func (m *SchedulingMetrics) AddHoldsReleased(n int) {
	if m == nil {
		return
	}
	m.holdsReleased.Add(float64(n))
}

func (m *SchedulingMetrics) ObserveSlotLock(outcome string) {
	if m == nil {
		return
	}
	m.slotLocks.WithLabelValues(outcome).Inc()
}
