package metrics

import (
	"k8s.io/component-base/metrics"
	"k8s.io/component-base/metrics/legacyregistry"
)

const (
	namespace = "audit_dashboard"
)

var (
	// StorageQueryDuration tracks the duration of event store queries
	StorageQueryDuration = metrics.NewHistogramVec(
		&metrics.HistogramOpts{
			Namespace:      namespace,
			Name:           "storage_query_duration_seconds",
			Help:           "Duration of event store queries in seconds",
			StabilityLevel: metrics.ALPHA,
			// Buckets from 1ms to ~10s for query latency
			Buckets: metrics.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"backend", "operation"},
	)

	// StorageQueryTotal tracks the total number of event store queries
	StorageQueryTotal = metrics.NewCounterVec(
		&metrics.CounterOpts{
			Namespace:      namespace,
			Name:           "storage_query_total",
			Help:           "Total number of event store queries",
			StabilityLevel: metrics.ALPHA,
		},
		[]string{"backend", "status"},
	)

	// StorageQueryErrors tracks failed event store queries
	StorageQueryErrors = metrics.NewCounterVec(
		&metrics.CounterOpts{
			Namespace:      namespace,
			Name:           "storage_query_errors_total",
			Help:           "Total number of failed event store queries",
			StabilityLevel: metrics.ALPHA,
		},
		[]string{"backend", "error_type"},
	)

	// RecentChangesResults tracks the distribution of result counts per page
	RecentChangesResults = metrics.NewHistogram(
		&metrics.HistogramOpts{
			Namespace:      namespace,
			Name:           "recent_changes_results",
			Help:           "Distribution of number of events returned per recent changes page",
			StabilityLevel: metrics.ALPHA,
			// Buckets: 1, 10, 100, 1k (max page size: 1000)
			Buckets: metrics.ExponentialBuckets(1, 10, 4),
		},
	)

	// LifecycleEvents tracks how many audit events make up a resource lifecycle
	LifecycleEvents = metrics.NewHistogram(
		&metrics.HistogramOpts{
			Namespace:      namespace,
			Name:           "lifecycle_events",
			Help:           "Distribution of number of audit events in a resource lifecycle",
			StabilityLevel: metrics.ALPHA,
			Buckets:        metrics.ExponentialBuckets(1, 4, 8),
		},
	)

	// LifecycleHiddenEventsTotal counts read-only events removed from timelines
	LifecycleHiddenEventsTotal = metrics.NewCounter(
		&metrics.CounterOpts{
			Namespace:      namespace,
			Name:           "lifecycle_hidden_events_total",
			Help:           "Total number of read-only events hidden from lifecycle timelines",
			StabilityLevel: metrics.ALPHA,
		},
	)

	// DiffFailuresTotal counts timeline entries whose diff could not be computed
	DiffFailuresTotal = metrics.NewCounter(
		&metrics.CounterOpts{
			Namespace:      namespace,
			Name:           "diff_failures_total",
			Help:           "Total number of lifecycle entries whose diff could not be computed",
			StabilityLevel: metrics.ALPHA,
		},
	)

	// CELFilterParseDuration tracks CEL filter parsing time
	CELFilterParseDuration = metrics.NewHistogram(
		&metrics.HistogramOpts{
			Namespace:      namespace,
			Name:           "cel_filter_parse_duration_seconds",
			Help:           "Duration of CEL filter parsing in seconds",
			StabilityLevel: metrics.ALPHA,
			// Buckets from 100μs to ~100ms for parsing time
			Buckets: metrics.ExponentialBuckets(0.0001, 2, 11),
		},
	)

	// CELFilterErrors tracks CEL filter parse errors
	CELFilterErrors = metrics.NewCounterVec(
		&metrics.CounterOpts{
			Namespace:      namespace,
			Name:           "cel_filter_errors_total",
			Help:           "Total number of CEL filter parse errors",
			StabilityLevel: metrics.ALPHA,
		},
		[]string{"error_type"},
	)

	// PreferenceOperationsTotal tracks preference reads and writes
	PreferenceOperationsTotal = metrics.NewCounterVec(
		&metrics.CounterOpts{
			Namespace:      namespace,
			Name:           "preference_operations_total",
			Help:           "Total number of preference store operations",
			StabilityLevel: metrics.ALPHA,
		},
		[]string{"operation", "status"},
	)

	// NATSConnectionStatus is 1 while the preference store is connected to NATS
	NATSConnectionStatus = metrics.NewGauge(
		&metrics.GaugeOpts{
			Namespace:      namespace,
			Name:           "nats_connection_status",
			Help:           "Whether the NATS connection is up (1) or down (0)",
			StabilityLevel: metrics.ALPHA,
		},
	)

	// NATSReconnectsTotal counts NATS reconnections
	NATSReconnectsTotal = metrics.NewCounter(
		&metrics.CounterOpts{
			Namespace:      namespace,
			Name:           "nats_reconnects_total",
			Help:           "Total number of NATS reconnections",
			StabilityLevel: metrics.ALPHA,
		},
	)
)

// init registers all custom metrics with the legacy registry
// This ensures they're included in the /metrics endpoint
func init() {
	legacyregistry.MustRegister(
		StorageQueryDuration,
		StorageQueryTotal,
		StorageQueryErrors,
		RecentChangesResults,
		LifecycleEvents,
		LifecycleHiddenEventsTotal,
		DiffFailuresTotal,
		CELFilterParseDuration,
		CELFilterErrors,
		PreferenceOperationsTotal,
		NATSConnectionStatus,
		NATSReconnectsTotal,
	)
}
