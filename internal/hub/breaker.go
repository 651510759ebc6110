package hub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/erikbeerepoot/bramble/internal/logger"
	"github.com/erikbeerepoot/bramble/internal/recovery"
)

// CircuitBreakerSender wraps a Sender with a circuit breaker so queued
// commands fail fast while the hub is unreachable
type CircuitBreakerSender struct {
	sender  Sender
	breaker *recovery.CircuitBreaker
	log     logger.ILogger

	mu          sync.Mutex
	lastState   recovery.CircuitState
	lastLogTime time.Time
}

// NewCircuitBreakerSender creates a guarded sender
func NewCircuitBreakerSender(sender Sender, config recovery.CircuitBreakerConfig, log logger.ILogger) *CircuitBreakerSender {
	if log == nil {
		log = logger.NewComponentLogger("breaker")
	}
	log.LogInfo("🔌 Circuit breaker initialized for hub commands (MaxFailures: %d, Timeout: %s)",
		config.MaxFailures, config.Timeout)

	return &CircuitBreakerSender{
		sender:  sender,
		breaker: recovery.NewCircuitBreaker(config),
		log:     log,
	}
}

// Send runs the command through the breaker
func (s *CircuitBreakerSender) Send(ctx context.Context, command string, timeout time.Duration) (Response, error) {
	var resp Response
	err := s.breaker.Call(func() error {
		var sendErr error
		resp, sendErr = s.sender.Send(ctx, command, timeout)
		return sendErr
	})
	s.logStateIfChanged()
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Stats returns current circuit breaker statistics
func (s *CircuitBreakerSender) Stats() recovery.CircuitBreakerStats {
	return s.breaker.GetStats()
}

// Reset manually closes the breaker
func (s *CircuitBreakerSender) Reset() {
	s.log.LogInfo("🔄 Manually resetting circuit breaker")
	s.breaker.Reset()
}

// logStateIfChanged logs transitions immediately and a reminder at most once a minute
func (s *CircuitBreakerSender) logStateIfChanged() {
	state := s.breaker.GetState()

	s.mu.Lock()
	defer s.mu.Unlock()
	if state == s.lastState && time.Since(s.lastLogTime) < time.Minute {
		return
	}
	s.lastState = state
	s.lastLogTime = time.Now()

	switch state {
	case recovery.StateClosed:
		s.log.LogDebug("🟢 Circuit breaker: CLOSED (normal operation)")
	case recovery.StateOpen:
		s.log.LogWarn("🔴 Circuit breaker: OPEN (failures: %d, fast-failing commands)", s.breaker.GetStats().Failures)
	case recovery.StateHalfOpen:
		s.log.LogInfo("🟡 Circuit breaker: HALF-OPEN (testing recovery)")
	}
}

// String provides a string representation for debugging
func (s *CircuitBreakerSender) String() string {
	return fmt.Sprintf("CircuitBreakerSender{%s}", s.breaker.GetStats().String())
}
