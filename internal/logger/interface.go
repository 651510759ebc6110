package logger

import (
	"fmt"
	"strings"
	"sync"
)

// ILogger is an interface for dependency injection
// Allows testing with mock loggers and flexibility in log implementation
type ILogger interface {
	LogInfo(format string, args ...interface{})
	LogWarn(format string, args ...interface{})
	LogError(format string, args ...interface{})
	LogDebug(format string, args ...interface{})
}

// StandardLogger implements ILogger using the global logger functions.
// A non-empty component is prefixed to every message.
type StandardLogger struct {
	component string
}

// NewStandardLogger creates a logger that uses global logger functions
func NewStandardLogger() ILogger {
	return &StandardLogger{}
}

// NewComponentLogger creates a StandardLogger tagged with a component name
func NewComponentLogger(component string) ILogger {
	return &StandardLogger{component: component}
}

func (l *StandardLogger) prefix(format string) string {
	if l.component == "" {
		return format
	}
	return "[" + l.component + "] " + format
}

// LogInfo logs an info message
func (l *StandardLogger) LogInfo(format string, args ...interface{}) {
	LogInfo(l.prefix(format), args...)
}

// LogWarn logs a warning message
func (l *StandardLogger) LogWarn(format string, args ...interface{}) {
	LogWarn(l.prefix(format), args...)
}

// LogError logs an error message
func (l *StandardLogger) LogError(format string, args ...interface{}) {
	LogError(l.prefix(format), args...)
}

// LogDebug logs a debug message
func (l *StandardLogger) LogDebug(format string, args ...interface{}) {
	LogDebug(l.prefix(format), args...)
}

// MockLogger is a logger for testing that records formatted log messages.
// Safe for use from the serial reader goroutine.
type MockLogger struct {
	mu            sync.Mutex
	InfoMessages  []string
	WarnMessages  []string
	ErrorMessages []string
	DebugMessages []string
}

// NewMockLogger creates a new mock logger for testing
func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

func (l *MockLogger) record(dst *[]string, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*dst = append(*dst, fmt.Sprintf(format, args...))
}

// LogInfo records an info message
func (l *MockLogger) LogInfo(format string, args ...interface{}) {
	l.record(&l.InfoMessages, format, args...)
}

// LogWarn records a warning message
func (l *MockLogger) LogWarn(format string, args ...interface{}) {
	l.record(&l.WarnMessages, format, args...)
}

// LogError records an error message
func (l *MockLogger) LogError(format string, args ...interface{}) {
	l.record(&l.ErrorMessages, format, args...)
}

// LogDebug records a debug message
func (l *MockLogger) LogDebug(format string, args ...interface{}) {
	l.record(&l.DebugMessages, format, args...)
}

// Reset clears all recorded messages
func (l *MockLogger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.InfoMessages = l.InfoMessages[:0]
	l.WarnMessages = l.WarnMessages[:0]
	l.ErrorMessages = l.ErrorMessages[:0]
	l.DebugMessages = l.DebugMessages[:0]
}

// WarnCount returns the number of recorded warnings
func (l *MockLogger) WarnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.WarnMessages)
}

// ErrorCount returns the number of recorded errors
func (l *MockLogger) ErrorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ErrorMessages)
}

// HasWarnContaining checks if any warning contains substr
func (l *MockLogger) HasWarnContaining(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return containsAny(l.WarnMessages, substr)
}

// HasErrorContaining checks if any error contains substr
func (l *MockLogger) HasErrorContaining(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return containsAny(l.ErrorMessages, substr)
}

func containsAny(messages []string, substr string) bool {
	for _, m := range messages {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}
