package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Transaction outcomes.
const (
	OutcomeCommitted = "committed"
	OutcomeAborted   = "aborted"
)

// SyncMetrics records synchronizer transactions. A nil *SyncMetrics is valid
// and records nothing.
type SyncMetrics struct {
	// transactions counts transactions.
	// Labels: collection, operation, outcome
	transactions *prometheus.CounterVec

	// duration tracks transaction duration in seconds.
	// Labels: collection, operation
	duration *prometheus.HistogramVec

	// fanout counts documents touched by back-reference propagation.
	// Labels: collection
	fanout *prometheus.CounterVec
}

// NewSyncMetrics creates unregistered sync metrics.
func NewSyncMetrics() *SyncMetrics {
	return &SyncMetrics{
		transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docsync_transactions_total",
				Help: "Total number of relation synchronization transactions",
			},
			[]string{"collection", "operation", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docsync_transaction_duration_seconds",
				Help:    "Relation synchronization transaction duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"collection", "operation"},
		),
		fanout: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docsync_fanout_documents_total",
				Help: "Documents updated by back-reference propagation",
			},
			[]string{"collection"},
		),
	}
}

func (m *SyncMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.transactions, m.duration, m.fanout}
}

// RecordTransaction records one finished transaction.
func (m *SyncMetrics) RecordTransaction(collection, operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeCommitted
	if err != nil {
		outcome = OutcomeAborted
	}
	m.transactions.WithLabelValues(collection, operation, outcome).Inc()
	m.duration.WithLabelValues(collection, operation).Observe(duration.Seconds())
}

// AddFanout adds n propagated document updates for collection.
func (m *SyncMetrics) AddFanout(collection string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.fanout.WithLabelValues(collection).Add(float64(n))
}
