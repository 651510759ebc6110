package recovery

import (
	"fmt"
	"sync"
	"time"

	"github.com/erikbeerepoot/bramble/internal/errors"
)

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	// StateClosed - commands pass through to the hub
	StateClosed CircuitState = iota
	// StateOpen - the link is failing, commands are rejected immediately
	StateOpen
	// StateHalfOpen - probing whether the hub answers again
	StateHalfOpen
)

// String returns the string representation of the circuit state
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerConfig holds configuration for circuit breaker
type CircuitBreakerConfig struct {
	MaxFailures      int           // Default: 5
	Timeout          time.Duration // Default: 30 seconds
	HalfOpenMaxTries int           // Default: 1

	// IsFailure decides which errors count against the link. The default
	// counts timeouts and a disconnected port; a hub that answers ERROR is
	// still reachable and does not trip the breaker.
	IsFailure func(error) bool

	Clock func() time.Time
}

// CircuitBreaker fails commands fast while the hub link is known to be down
type CircuitBreaker struct {
	maxFailures      int
	timeout          time.Duration
	halfOpenMaxTries int
	isFailure        func(error) bool
	now              func() time.Time

	state            CircuitState
	failures         int
	lastFailureTime  time.Time
	lastStateChange  time.Time
	halfOpenAttempts int
	halfOpenSuccess  int

	mu sync.RWMutex
}

// NewCircuitBreaker creates a new circuit breaker with given configuration
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.HalfOpenMaxTries <= 0 {
		config.HalfOpenMaxTries = 1
	}
	if config.IsFailure == nil {
		config.IsFailure = LinkFailure
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}

	return &CircuitBreaker{
		maxFailures:      config.MaxFailures,
		timeout:          config.Timeout,
		halfOpenMaxTries: config.HalfOpenMaxTries,
		isFailure:        config.IsFailure,
		now:              config.Clock,
		state:            StateClosed,
		lastStateChange:  config.Clock(),
	}
}

// LinkFailure reports whether err means the hub could not be reached
func LinkFailure(err error) bool {
	return errors.IsTimeout(err) || errors.IsNotConnected(err)
}

// Call executes fn if the circuit allows it. A rejected call returns an
// error wrapping errors.ErrCircuitOpen without running fn.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}

	err := fn()
	cb.afterCall(err)
	return err
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil

	case StateOpen:
		now := cb.now()
		if now.Sub(cb.lastFailureTime) >= cb.timeout {
			cb.setState(StateHalfOpen)
			cb.halfOpenAttempts = 1
			return nil
		}
		return fmt.Errorf("%w (failed %d times, retry in %.0fs)",
			errors.ErrCircuitOpen, cb.failures, cb.lastFailureTime.Add(cb.timeout).Sub(now).Seconds())

	case StateHalfOpen:
		if cb.halfOpenAttempts >= cb.halfOpenMaxTries {
			return fmt.Errorf("%w (half-open, probe in progress)", errors.ErrCircuitOpen)
		}
		cb.halfOpenAttempts++
		return nil

	default:
		return fmt.Errorf("%w (unknown state)", errors.ErrCircuitOpen)
	}
}

func (cb *CircuitBreaker) afterCall(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil && cb.isFailure(err) {
		cb.onFailure()
	} else {
		cb.onSuccess()
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.failures++
	cb.lastFailureTime = cb.now()

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.maxFailures {
			cb.setState(StateOpen)
		}
	case StateHalfOpen:
		cb.setState(StateOpen)
	}
}

func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.halfOpenSuccess++
		if cb.halfOpenSuccess >= cb.halfOpenMaxTries {
			cb.failures = 0
			cb.setState(StateClosed)
		}
	}
}

// setState must be called with mu held
func (cb *CircuitBreaker) setState(s CircuitState) {
	cb.state = s
	cb.halfOpenAttempts = 0
	cb.halfOpenSuccess = 0
	cb.lastStateChange = cb.now()
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// IsOpen returns true if circuit is open
func (cb *CircuitBreaker) IsOpen() bool {
	return cb.GetState() == StateOpen
}

// Reset manually resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.setState(StateClosed)
}

// GetStats returns statistics about the circuit breaker
func (cb *CircuitBreaker) GetStats() CircuitBreakerStats {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return CircuitBreakerStats{
		State:                    cb.state.String(),
		Failures:                 cb.failures,
		LastFailureTime:          cb.lastFailureTime,
		LastStateChange:          cb.lastStateChange,
		TimeSinceLastStateChange: cb.now().Sub(cb.lastStateChange),
	}
}

// CircuitBreakerStats holds statistics about the circuit breaker
type CircuitBreakerStats struct {
	State                    string        `json:"state"`
	Failures                 int           `json:"failures"`
	LastFailureTime          time.Time     `json:"last_failure_time"`
	LastStateChange          time.Time     `json:"last_state_change"`
	TimeSinceLastStateChange time.Duration `json:"time_since_last_state_change"`
}

// String returns a string representation of the stats
func (s CircuitBreakerStats) String() string {
	return fmt.Sprintf("State: %s, Failures: %d, Last State Change: %s ago",
		s.State, s.Failures, s.TimeSinceLastStateChange.Round(time.Second))
}
