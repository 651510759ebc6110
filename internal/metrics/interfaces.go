package metrics

import "time"

// MetricsCollector defines the interface for collecting application metrics.
//
// Implementations:
//   - PrometheusMetrics: counters rendered in Prometheus text format at /metrics
//   - NullMetrics: no-op implementation for tests and embedded use
type MetricsCollector interface {
	// IncrementCommands counts a command written to the hub
	IncrementCommands()

	// IncrementCommandTimeouts counts commands that received no response line
	IncrementCommandTimeouts()

	// IncrementCommandErrors counts commands that failed for any other reason
	IncrementCommandErrors()

	// ObserveCommandDuration records the time from write to response completion
	ObserveCommandDuration(duration time.Duration)

	// IncrementMalformedLines counts push lines dropped by the router
	IncrementMalformedLines()

	// AddReadings records the outcome of one batch insert
	AddReadings(inserted, duplicates int)

	// IncrementBatches counts completed bulk uploads by ack status
	IncrementBatches(status int)

	// IncrementFlushErrors counts write buffer flushes that failed in storage
	IncrementFlushErrors()

	// IncrementMQTTPublishes increments the counter for successful MQTT publish operations
	IncrementMQTTPublishes()

	// IncrementMQTTErrors increments the counter for failed MQTT publish operations
	IncrementMQTTErrors()

	// IncrementTaskOutcome counts finished outbound tasks by final state
	IncrementTaskOutcome(state string)

	// SetHubStatus sets the current serial link status
	SetHubStatus(online bool)
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector
var _ MetricsCollector = (*PrometheusMetrics)(nil)

// Compile-time verification that NullMetrics implements MetricsCollector
var _ MetricsCollector = (*NullMetrics)(nil)
