package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for a chain node.
type Metrics struct {
	// Inbound deliveries
	DeliveriesApplied   prometheus.Counter
	DeliveriesDuplicate prometheus.Counter
	DeliveriesRejected  *prometheus.CounterVec
	DeliveryDuration    prometheus.Histogram

	// Holder-facing operations
	OperationsApplied  *prometheus.CounterVec
	OperationsRejected *prometheus.CounterVec
	OperationDuration  *prometheus.HistogramVec

	// Fund state
	ShareSupply        prometheus.Gauge
	HolderCount        prometheus.Gauge
	DispatchesInFlight prometheus.Gauge

	// Persistence
	PersistJournalsWritten   prometheus.Counter
	PersistDeliveriesWritten prometheus.Counter
	PersistBatchDur          prometheus.Histogram
	PersistBatchSize         prometheus.Histogram
	PersistErrors            *prometheus.CounterVec
	PersistRetry             prometheus.Counter

	// Snapshot
	SnapshotTaken     prometheus.Counter
	SnapshotDuration  prometheus.Histogram
	SnapshotSizeBytes prometheus.Gauge

	// Channel & backpressure
	ChannelSize        *prometheus.GaugeVec
	ChannelCapacity    *prometheus.GaugeVec
	ChannelUtilization *prometheus.GaugeVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.00001, 0.000025, 0.00005, 0.0001, 0.00025,
		0.0005, 0.001, 0.002, 0.005, 0.01, 0.025,
	}

	return &Metrics{
		DeliveriesApplied: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bridge_deliveries_applied_total",
			Help: "Inbound deliveries successfully applied",
		}),

		DeliveriesDuplicate: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bridge_deliveries_duplicate_total",
			Help: "Inbound deliveries suppressed as duplicates",
		}),

		DeliveriesRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_deliveries_rejected_total",
			Help: "Inbound deliveries rejected by validation",
		}, []string{"reason"}),

		DeliveryDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "bridge_delivery_apply_duration_seconds",
			Help:    "Time to apply one inbound delivery",
			Buckets: latencyBuckets,
		}),

		OperationsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_operations_applied_total",
			Help: "Holder operations successfully settled",
		}, []string{"op"}),

		OperationsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_operations_rejected_total",
			Help: "Holder operations aborted",
		}, []string{"op", "reason"}),

		OperationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bridge_operation_duration_seconds",
			Help:    "End-to-end settlement time per operation",
			Buckets: latencyBuckets,
		}, []string{"op"}),

		ShareSupply: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_share_supply",
			Help: "Outstanding fund shares on this chain",
		}),

		HolderCount: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_holder_count",
			Help: "Addresses with a positive share balance",
		}),

		DispatchesInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_dispatches_in_flight",
			Help: "Cross-chain requests dispatched and unresolved",
		}),

		PersistJournalsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bridge_persist_journals_written_total",
			Help: "Journal entries written to Postgres",
		}),

		PersistDeliveriesWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bridge_persist_deliveries_written_total",
			Help: "Settled deliveries written to Postgres",
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "bridge_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "bridge_persist_batch_size",
			Help:    "Outputs per persisted batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bridge_persist_retry_total",
			Help: "Persistence retries",
		}),

		SnapshotTaken: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bridge_snapshot_taken_total",
			Help: "Snapshots created",
		}),

		SnapshotDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "bridge_snapshot_duration_seconds",
			Help:    "Snapshot creation time",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		}),

		SnapshotSizeBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_snapshot_size_bytes",
			Help: "Last snapshot size",
		}),

		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bridge_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bridge_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bridge_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}
