package health

import (
	"sync"
	"time"

	"github.com/erikbeerepoot/bramble/internal/logger"
	"github.com/erikbeerepoot/bramble/internal/metrics"
	"github.com/erikbeerepoot/bramble/internal/recovery"
)

// Link is the part of the serial transport the monitor reads
type Link interface {
	IsConnected() bool
	LastActivity() time.Time
}

// Status is the health snapshot served by the API
type Status struct {
	Online            bool       `json:"online"`
	SerialConnected   bool       `json:"serial_connected"`
	LastActivity      *time.Time `json:"last_activity,omitempty"`
	LastSuccess       *time.Time `json:"last_success,omitempty"`
	LastTimeout       *time.Time `json:"last_timeout,omitempty"`
	LastTimeoutVerb   string     `json:"last_timeout_command,omitempty"`
	ConsecutiveErrors int        `json:"consecutive_timeouts"`
	InGracePeriod     bool       `json:"in_grace_period"`
}

// HubHealthMonitor tracks whether the hub is answering commands. A run of
// timeouts marks it offline only after the grace period has expired.
type HubHealthMonitor struct {
	link        Link
	grace       *recovery.GracePeriod
	metrics     metrics.MetricsCollector
	log         logger.ILogger
	now         func() time.Time
	online      bool
	lastSuccess time.Time
	lastTimeout time.Time
	timeoutVerb string
	mu          sync.RWMutex
}

// NewHubHealthMonitor creates a monitor. link, m and log may be nil.
func NewHubHealthMonitor(link Link, gracePeriod time.Duration, m metrics.MetricsCollector, log logger.ILogger) *HubHealthMonitor {
	if m == nil {
		m = metrics.NewNullMetrics()
	}
	if log == nil {
		log = logger.NewComponentLogger("health")
	}
	mon := &HubHealthMonitor{
		link:    link,
		metrics: m,
		log:     log,
		now:     time.Now,
		online:  true,
	}
	mon.grace = recovery.NewGracePeriod(gracePeriod, func() time.Time { return mon.now() })
	m.SetHubStatus(true)
	return mon
}

// CommandSucceeded records an answered command
func (m *HubHealthMonitor) CommandSucceeded(verb string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.grace.RecordSuccess()
	m.lastSuccess = m.now()
	if !m.online {
		m.log.LogInfo("🟢 Hub answering again (%s in %v)", verb, duration.Round(time.Millisecond))
		m.online = true
		m.metrics.SetHubStatus(true)
	}
}

// CommandTimedOut records a command that got no answer
func (m *HubHealthMonitor) CommandTimedOut(verb string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastTimeout = m.now()
	m.timeoutVerb = verb
	m.grace.RecordError()
	if m.grace.ShouldMarkOffline() {
		m.grace.MarkOffline()
		m.online = false
		m.metrics.SetHubStatus(false)
		m.log.LogWarn("🔴 Hub marked offline after %d consecutive timeouts (last: %s)",
			m.grace.ConsecutiveErrors(), verb)
	}
}

// IsOnline returns whether the hub is currently considered reachable
func (m *HubHealthMonitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online && (m.link == nil || m.link.IsConnected())
}

// Snapshot returns the current health view
func (m *HubHealthMonitor) Snapshot() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Status{
		Online:            m.online,
		SerialConnected:   true,
		ConsecutiveErrors: m.grace.ConsecutiveErrors(),
		InGracePeriod:     m.grace.InGracePeriod(),
		LastTimeoutVerb:   m.timeoutVerb,
		LastSuccess:       timePtr(m.lastSuccess),
		LastTimeout:       timePtr(m.lastTimeout),
	}
	if m.link != nil {
		s.SerialConnected = m.link.IsConnected()
		s.LastActivity = timePtr(m.link.LastActivity())
	}
	s.Online = s.Online && s.SerialConnected
	return s
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
