package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// Sentinel errors shared across packages. Wrap them, compare with errors.Is.
var (
	ErrNotConnected = stderrors.New("serial link not connected")
	ErrNotFound     = stderrors.New("not found")
	ErrCircuitOpen  = stderrors.New("circuit breaker open")
	ErrRejected     = stderrors.New("command rejected by hub")
)

// ErrorSeverity defines the severity level of an error
type ErrorSeverity int

const (
	SeverityInfo ErrorSeverity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

// String returns the string representation of the severity
func (s ErrorSeverity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Diagnostic codes published alongside errors
const (
	CodeConfig     = 1
	CodeTransport  = 2
	CodeTimeout    = 3
	CodeProtocol   = 4
	CodeValidation = 5
	CodeStorage    = 6
	CodeQueue      = 7
	CodeMQTT       = 8
	CodeGeneric    = 99
)

// HubError is the base error type for all hub bridge errors
type HubError struct {
	Op       string        // Operation that failed
	Err      error         // Underlying error
	Severity ErrorSeverity // Error severity
	Code     int           // Diagnostic code
}

// Error implements the error interface
func (e *HubError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Severity, e.Op, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Severity, e.Op)
}

// Unwrap returns the underlying error
func (e *HubError) Unwrap() error {
	return e.Err
}

// TransportError represents serial port faults (open, read, write)
type TransportError struct {
	HubError
	Port string
}

// NewTransportError creates a new transport error
func NewTransportError(op string, err error, port string) *TransportError {
	return &TransportError{
		HubError: HubError{
			Op:       op,
			Err:      err,
			Severity: SeverityError,
			Code:     CodeTransport,
		},
		Port: port,
	}
}

// Error implements the error interface
func (e *TransportError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("[%s] Serial port '%s': %s: %v", e.Severity, e.Port, e.Op, e.Err)
	}
	return fmt.Sprintf("[%s] Serial: %s: %v", e.Severity, e.Op, e.Err)
}

// TimeoutError is returned when a command receives no response line in time
type TimeoutError struct {
	HubError
	Command string
	Timeout time.Duration
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(command string, timeout time.Duration) *TimeoutError {
	return &TimeoutError{
		HubError: HubError{
			Op:       "send",
			Err:      fmt.Errorf("no response within %s", timeout),
			Severity: SeverityWarning,
			Code:     CodeTimeout,
		},
		Command: command,
		Timeout: timeout,
	}
}

// Error implements the error interface
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("[%s] Command '%s': no response within %s", e.Severity, e.Command, e.Timeout)
}

// ProtocolError represents a line that could not be decoded
type ProtocolError struct {
	HubError
	Line string
}

// NewProtocolError creates a new protocol error
func NewProtocolError(op string, err error, line string) *ProtocolError {
	return &ProtocolError{
		HubError: HubError{
			Op:       op,
			Err:      err,
			Severity: SeverityWarning,
			Code:     CodeProtocol,
		},
		Line: line,
	}
}

// Error implements the error interface
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("[%s] Protocol line %q: %s: %v", e.Severity, e.Line, e.Op, e.Err)
}

// StorageError represents database failures
type StorageError struct {
	HubError
	Bucket string
}

// NewStorageError creates a new storage error
func NewStorageError(op string, err error, bucket string) *StorageError {
	return &StorageError{
		HubError: HubError{
			Op:       op,
			Err:      err,
			Severity: SeverityError,
			Code:     CodeStorage,
		},
		Bucket: bucket,
	}
}

// Error implements the error interface
func (e *StorageError) Error() string {
	if e.Bucket != "" {
		return fmt.Sprintf("[%s] Storage bucket '%s': %s: %v", e.Severity, e.Bucket, e.Op, e.Err)
	}
	return fmt.Sprintf("[%s] Storage: %s: %v", e.Severity, e.Op, e.Err)
}

// QueueError represents outbound task queue failures
type QueueError struct {
	HubError
	TaskID string
}

// NewQueueError creates a new queue error
func NewQueueError(op string, err error, taskID string) *QueueError {
	return &QueueError{
		HubError: HubError{
			Op:       op,
			Err:      err,
			Severity: SeverityError,
			Code:     CodeQueue,
		},
		TaskID: taskID,
	}
}

// Error implements the error interface
func (e *QueueError) Error() string {
	return fmt.Sprintf("[%s] Task '%s': %s: %v", e.Severity, e.TaskID, e.Op, e.Err)
}

// MQTTError represents errors from MQTT operations
type MQTTError struct {
	HubError
	Broker string
	Topic  string
}

// NewMQTTError creates a new MQTT error
func NewMQTTError(op string, err error, broker string) *MQTTError {
	return &MQTTError{
		HubError: HubError{
			Op:       op,
			Err:      err,
			Severity: SeverityError,
			Code:     CodeMQTT,
		},
		Broker: broker,
	}
}

// Error implements the error interface
func (e *MQTTError) Error() string {
	if e.Topic != "" {
		return fmt.Sprintf("[%s] MQTT broker '%s' (topic: %s): %s: %v",
			e.Severity, e.Broker, e.Topic, e.Op, e.Err)
	}
	return fmt.Sprintf("[%s] MQTT broker '%s': %s: %v",
		e.Severity, e.Broker, e.Op, e.Err)
}

// ConfigError represents configuration errors
type ConfigError struct {
	HubError
	Field string
}

// NewConfigError creates a new configuration error
func NewConfigError(op string, err error, field string) *ConfigError {
	return &ConfigError{
		HubError: HubError{
			Op:       op,
			Err:      err,
			Severity: SeverityCritical, // Config errors are critical
			Code:     CodeConfig,
		},
		Field: field,
	}
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] Configuration field '%s': %s: %v",
			e.Severity, e.Field, e.Op, e.Err)
	}
	return fmt.Sprintf("[%s] Configuration: %s: %v",
		e.Severity, e.Op, e.Err)
}

// ValidationError represents rejected request input
type ValidationError struct {
	HubError
	Field    string
	Expected interface{}
	Actual   interface{}
}

// NewValidationError creates a new validation error
func NewValidationError(field string, expected, actual interface{}) *ValidationError {
	return &ValidationError{
		HubError: HubError{
			Op:       "validation",
			Err:      fmt.Errorf("validation failed"),
			Severity: SeverityWarning,
			Code:     CodeValidation,
		},
		Field:    field,
		Expected: expected,
		Actual:   actual,
	}
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] Field '%s': expected %v, got %v",
		e.Severity, e.Field, e.Expected, e.Actual)
}
