package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// PrometheusMetrics tracks application metrics in Prometheus format
type PrometheusMetrics struct {
	// Counters
	commandsTotal        int64
	commandTimeoutsTotal int64
	commandErrorsTotal   int64
	malformedLinesTotal  int64
	readingsInserted     int64
	readingsDuplicate    int64
	batchesByStatus      map[int]int64
	flushErrorsTotal     int64
	mqttPublishesTotal   int64
	mqttErrorsTotal      int64
	tasksByState         map[string]int64

	// Gauges
	hubStatus int64 // 1 = connected, 0 = disconnected

	// Histograms (simplified - store sum and count for average)
	commandDurationSum   float64
	commandDurationCount int64

	mu sync.RWMutex
}

// NewPrometheusMetrics creates a new Prometheus metrics collector
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		batchesByStatus: make(map[int]int64),
		tasksByState:    make(map[string]int64),
	}
}

func (pm *PrometheusMetrics) inc(counter *int64, by int64) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	*counter += by
}

// IncrementCommands increments the command counter
func (pm *PrometheusMetrics) IncrementCommands() { pm.inc(&pm.commandsTotal, 1) }

// IncrementCommandTimeouts increments the timeout counter
func (pm *PrometheusMetrics) IncrementCommandTimeouts() { pm.inc(&pm.commandTimeoutsTotal, 1) }

// IncrementCommandErrors increments the command error counter
func (pm *PrometheusMetrics) IncrementCommandErrors() { pm.inc(&pm.commandErrorsTotal, 1) }

// IncrementMalformedLines increments the dropped line counter
func (pm *PrometheusMetrics) IncrementMalformedLines() { pm.inc(&pm.malformedLinesTotal, 1) }

// IncrementFlushErrors increments the failed flush counter
func (pm *PrometheusMetrics) IncrementFlushErrors() { pm.inc(&pm.flushErrorsTotal, 1) }

// IncrementMQTTPublishes increments the MQTT publish counter
func (pm *PrometheusMetrics) IncrementMQTTPublishes() { pm.inc(&pm.mqttPublishesTotal, 1) }

// IncrementMQTTErrors increments the MQTT error counter
func (pm *PrometheusMetrics) IncrementMQTTErrors() { pm.inc(&pm.mqttErrorsTotal, 1) }

// AddReadings adds insert and duplicate counts
func (pm *PrometheusMetrics) AddReadings(inserted, duplicates int) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.readingsInserted += int64(inserted)
	pm.readingsDuplicate += int64(duplicates)
}

// IncrementBatches counts a bulk upload by its ack status
func (pm *PrometheusMetrics) IncrementBatches(status int) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.batchesByStatus[status]++
}

// IncrementTaskOutcome counts a finished task by state
func (pm *PrometheusMetrics) IncrementTaskOutcome(state string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.tasksByState[state]++
}

// SetHubStatus sets the hub link status (1 = connected, 0 = disconnected)
func (pm *PrometheusMetrics) SetHubStatus(online bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if online {
		pm.hubStatus = 1
	} else {
		pm.hubStatus = 0
	}
}

// ObserveCommandDuration records a command round-trip duration
func (pm *PrometheusMetrics) ObserveCommandDuration(duration time.Duration) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.commandDurationSum += duration.Seconds()
	pm.commandDurationCount++
}

// GetMetricsText returns metrics in Prometheus text format
func (pm *PrometheusMetrics) GetMetricsText() string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	var avgDuration float64
	if pm.commandDurationCount > 0 {
		avgDuration = pm.commandDurationSum / float64(pm.commandDurationCount)
	}

	var b strings.Builder
	counter := func(name, help string, v int64) {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s counter\n%s %d\n\n", name, help, name, name, v)
	}

	counter("hub_commands_total", "Total number of commands sent to the hub", pm.commandsTotal)
	counter("hub_command_timeouts_total", "Total number of commands without any response", pm.commandTimeoutsTotal)
	counter("hub_command_errors_total", "Total number of failed commands", pm.commandErrorsTotal)
	counter("hub_malformed_lines_total", "Total number of dropped malformed push lines", pm.malformedLinesTotal)
	counter("readings_inserted_total", "Total number of stored sensor readings", pm.readingsInserted)
	counter("readings_duplicate_total", "Total number of duplicate sensor readings skipped", pm.readingsDuplicate)
	counter("write_buffer_flush_errors_total", "Total number of failed write buffer flushes", pm.flushErrorsTotal)
	counter("mqtt_publishes_total", "Total number of MQTT publish operations", pm.mqttPublishesTotal)
	counter("mqtt_errors_total", "Total number of MQTT publish errors", pm.mqttErrorsTotal)

	b.WriteString("# HELP hub_batches_total Total number of bulk uploads by ack status\n# TYPE hub_batches_total counter\n")
	statuses := make([]int, 0, len(pm.batchesByStatus))
	for s := range pm.batchesByStatus {
		statuses = append(statuses, s)
	}
	sort.Ints(statuses)
	for _, s := range statuses {
		fmt.Fprintf(&b, "hub_batches_total{status=\"%d\"} %d\n", s, pm.batchesByStatus[s])
	}
	b.WriteString("\n")

	b.WriteString("# HELP queue_tasks_total Total number of finished outbound tasks by state\n# TYPE queue_tasks_total counter\n")
	states := make([]string, 0, len(pm.tasksByState))
	for s := range pm.tasksByState {
		states = append(states, s)
	}
	sort.Strings(states)
	for _, s := range states {
		fmt.Fprintf(&b, "queue_tasks_total{state=%q} %d\n", s, pm.tasksByState[s])
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "# HELP hub_status Current serial link status (1 = connected, 0 = disconnected)\n# TYPE hub_status gauge\nhub_status %d\n\n", pm.hubStatus)
	fmt.Fprintf(&b, "# HELP hub_command_duration_seconds Average command duration in seconds\n# TYPE hub_command_duration_seconds gauge\nhub_command_duration_seconds %.6f\n", avgDuration)

	return b.String()
}

// ServeHTTP implements http.Handler interface for /metrics endpoint
func (pm *PrometheusMetrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, pm.GetMetricsText())
}

// GetStats returns current metric values
func (pm *PrometheusMetrics) GetStats() MetricStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	var avgDuration float64
	if pm.commandDurationCount > 0 {
		avgDuration = pm.commandDurationSum / float64(pm.commandDurationCount)
	}

	return MetricStats{
		CommandsTotal:        pm.commandsTotal,
		CommandTimeoutsTotal: pm.commandTimeoutsTotal,
		CommandErrorsTotal:   pm.commandErrorsTotal,
		MalformedLinesTotal:  pm.malformedLinesTotal,
		ReadingsInserted:     pm.readingsInserted,
		ReadingsDuplicate:    pm.readingsDuplicate,
		HubOnline:            pm.hubStatus == 1,
		AvgCommandDuration:   avgDuration,
	}
}

// MetricStats represents current metric statistics
type MetricStats struct {
	CommandsTotal        int64   `json:"commands_total"`
	CommandTimeoutsTotal int64   `json:"command_timeouts_total"`
	CommandErrorsTotal   int64   `json:"command_errors_total"`
	MalformedLinesTotal  int64   `json:"malformed_lines_total"`
	ReadingsInserted     int64   `json:"readings_inserted"`
	ReadingsDuplicate    int64   `json:"readings_duplicate"`
	HubOnline            bool    `json:"hub_online"`
	AvgCommandDuration   float64 `json:"avg_command_duration_seconds"`
}
