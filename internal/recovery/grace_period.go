package recovery

import (
	"time"
)

// GracePeriod tracks a run of consecutive link errors and decides when the
// hub should be reported offline. Not safe for concurrent use; callers hold
// their own lock.
type GracePeriod struct {
	consecutiveErrors int
	firstErrorTime    time.Time
	period            time.Duration
	reportedOffline   bool
	now               func() time.Time
}

// NewGracePeriod creates a tracker. A zero period defaults to 15 seconds.
func NewGracePeriod(period time.Duration, clock func() time.Time) *GracePeriod {
	if period <= 0 {
		period = 15 * time.Second
	}
	if clock == nil {
		clock = time.Now
	}
	return &GracePeriod{period: period, now: clock}
}

// RecordError counts an error and returns whether the grace period has expired
func (g *GracePeriod) RecordError() bool {
	g.consecutiveErrors++
	if g.firstErrorTime.IsZero() {
		g.firstErrorTime = g.now()
	}
	return g.now().Sub(g.firstErrorTime) >= g.period
}

// RecordSuccess ends the current error run
func (g *GracePeriod) RecordSuccess() {
	g.consecutiveErrors = 0
	g.firstErrorTime = time.Time{}
	g.reportedOffline = false
}

// ConsecutiveErrors returns the length of the current error run
func (g *GracePeriod) ConsecutiveErrors() int {
	return g.consecutiveErrors
}

// ShouldMarkOffline is true once per error run, after the period expires
func (g *GracePeriod) ShouldMarkOffline() bool {
	if g.reportedOffline || g.firstErrorTime.IsZero() {
		return false
	}
	return g.now().Sub(g.firstErrorTime) >= g.period
}

// MarkOffline suppresses further offline reports until the next success
func (g *GracePeriod) MarkOffline() {
	g.reportedOffline = true
}

// InGracePeriod is true while errors are occurring but the period has not expired
func (g *GracePeriod) InGracePeriod() bool {
	if g.firstErrorTime.IsZero() {
		return false
	}
	return g.now().Sub(g.firstErrorTime) < g.period
}
