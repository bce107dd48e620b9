package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "retention"

// RetentionMetrics holds the per-shard retention floors and lock counts.
// Every series is labelled by shard.
type RetentionMetrics struct {
	// TranslogMinGeneration is the oldest translog generation still required.
	TranslogMinGeneration *prometheus.GaugeVec

	// TranslogPendingLocks is the number of distinct generations pinned by
	// snapshot or recovery locks.
	TranslogPendingLocks *prometheus.GaugeVec

	// SoftDeletesMinRetainedSeqNo is the lowest sequence number whose
	// soft-deleted documents must be kept.
	SoftDeletesMinRetainedSeqNo *prometheus.GaugeVec

	// SoftDeletesLockHeld is 1 while a retention lock freezes the floor.
	SoftDeletesLockHeld *prometheus.GaugeVec

	// InvariantViolations counts rejected operations by kind.
	InvariantViolations *prometheus.CounterVec
}

// NewRetentionMetrics creates and registers retention metrics with the
// default registry.
func NewRetentionMetrics() *RetentionMetrics {
	return NewRetentionMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewRetentionMetricsWithRegistry creates retention metrics registered with
// reg. Useful for testing to avoid conflicts with the default registry.
func NewRetentionMetricsWithRegistry(reg prometheus.Registerer) *RetentionMetrics {
	factory := promauto.With(reg)
	return &RetentionMetrics{
		TranslogMinGeneration: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "translog",
				Name:      "min_generation",
				Help:      "Oldest translog generation still required; older generations may be deleted.",
			},
			[]string{"shard"},
		),
		TranslogPendingLocks: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "translog",
				Name:      "pending_locks",
				Help:      "Number of distinct translog generations currently pinned.",
			},
			[]string{"shard"},
		),
		SoftDeletesMinRetainedSeqNo: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "softdeletes",
				Name:      "min_retained_seqno",
				Help:      "Lowest sequence number of soft-deleted documents that must be retained.",
			},
			[]string{"shard"},
		),
		SoftDeletesLockHeld: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "softdeletes",
				Name:      "lock_held",
				Help:      "1 while a retention lock holds the soft-deletes floor in place, otherwise 0.",
			},
			[]string{"shard"},
		),
		InvariantViolations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invariant_violations_total",
				Help:      "Operations rejected because they would break a retention invariant.",
			},
			[]string{"shard", "operation"},
		),
	}
}

// RecordPlan updates both retention floors for a shard.
func (m *RetentionMetrics) RecordPlan(shard string, minTranslogGen, minRetainedSeqNo int64) {
	m.TranslogMinGeneration.WithLabelValues(shard).Set(float64(minTranslogGen))
	m.SoftDeletesMinRetainedSeqNo.WithLabelValues(shard).Set(float64(minRetainedSeqNo))
}

// RecordLocks updates the lock gauges for a shard.
func (m *RetentionMetrics) RecordLocks(shard string, pendingGenerations int, retentionLockHeld bool) {
	m.TranslogPendingLocks.WithLabelValues(shard).Set(float64(pendingGenerations))
	held := 0.0
	if retentionLockHeld {
		held = 1
	}
	m.SoftDeletesLockHeld.WithLabelValues(shard).Set(held)
}

// RecordInvariantViolation counts one rejected operation.
func (m *RetentionMetrics) RecordInvariantViolation(shard, operation string) {
	m.InvariantViolations.WithLabelValues(shard, operation).Inc()
}

// Forget drops every gauge series of a closed shard. Violation counters are
// kept so rates stay correct across the close.
func (m *RetentionMetrics) Forget(shard string) {
	m.TranslogMinGeneration.DeleteLabelValues(shard)
	m.TranslogPendingLocks.DeleteLabelValues(shard)
	m.SoftDeletesMinRetainedSeqNo.DeleteLabelValues(shard)
	m.SoftDeletesLockHeld.DeleteLabelValues(shard)
}
