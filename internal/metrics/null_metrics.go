package metrics

import "time"

// NullMetrics is a no-op implementation of MetricsCollector.
type NullMetrics struct{}

// NewNullMetrics creates a new NullMetrics instance
func NewNullMetrics() *NullMetrics {
	return &NullMetrics{}
}

func (nm *NullMetrics) IncrementCommands()                            {}
func (nm *NullMetrics) IncrementCommandTimeouts()                     {}
func (nm *NullMetrics) IncrementCommandErrors()                       {}
func (nm *NullMetrics) ObserveCommandDuration(duration time.Duration) {}
func (nm *NullMetrics) IncrementMalformedLines()                      {}
func (nm *NullMetrics) AddReadings(inserted, duplicates int)          {}
func (nm *NullMetrics) IncrementBatches(status int)                   {}
func (nm *NullMetrics) IncrementFlushErrors()                         {}
func (nm *NullMetrics) IncrementMQTTPublishes()                       {}
func (nm *NullMetrics) IncrementMQTTErrors()                          {}
func (nm *NullMetrics) IncrementTaskOutcome(state string)             {}
func (nm *NullMetrics) SetHubStatus(online bool)                      {}
