package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/erikbeerepoot/bramble/internal/logger"
)

// ErrorHandler provides centralized error handling
type ErrorHandler struct {
	diagnosticPublisher DiagnosticPublisher
}

// DiagnosticPublisher interface for publishing diagnostics
type DiagnosticPublisher interface {
	PublishDiagnostic(ctx context.Context, code int, message string) error
}

// NewErrorHandler creates a new error handler. publisher may be nil.
func NewErrorHandler(publisher DiagnosticPublisher) *ErrorHandler {
	return &ErrorHandler{
		diagnosticPublisher: publisher,
	}
}

// Handle processes an error with appropriate logging and diagnostics
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil {
		return
	}

	var (
		timeoutErr    *TimeoutError
		transportErr  *TransportError
		protocolErr   *ProtocolError
		storageErr    *StorageError
		queueErr      *QueueError
		mqttErr       *MQTTError
		configErr     *ConfigError
		validationErr *ValidationError
		hubErr        hubCarrier
	)

	switch {
	case stderrors.As(err, &timeoutErr):
		h.report(ctx, "Timeout", timeoutErr.HubError, err,
			fmt.Sprintf("Command '%s' timed out", timeoutErr.Command))
	case stderrors.As(err, &transportErr):
		h.report(ctx, "Serial", transportErr.HubError, err,
			fmt.Sprintf("Port '%s': %s", transportErr.Port, transportErr.Op))
	case stderrors.As(err, &protocolErr):
		h.report(ctx, "Protocol", protocolErr.HubError, err,
			fmt.Sprintf("Malformed line: %s", protocolErr.Op))
	case stderrors.As(err, &storageErr):
		h.report(ctx, "Storage", storageErr.HubError, err,
			fmt.Sprintf("Bucket '%s': %s", storageErr.Bucket, storageErr.Op))
	case stderrors.As(err, &queueErr):
		h.report(ctx, "Queue", queueErr.HubError, err,
			fmt.Sprintf("Task %s: %s", queueErr.TaskID, queueErr.Op))
	case stderrors.As(err, &mqttErr):
		h.report(ctx, "MQTT", mqttErr.HubError, err,
			fmt.Sprintf("Broker '%s': %s", mqttErr.Broker, mqttErr.Op))
	case stderrors.As(err, &configErr):
		// Config errors are always critical
		logger.LogError("🔴 CRITICAL Configuration Error: %s", err.Error())
		h.publish(ctx, configErr.Code, fmt.Sprintf("Config field '%s': %s", configErr.Field, configErr.Op))
	case stderrors.As(err, &validationErr):
		logger.LogWarn("Validation Error: %s", err.Error())
	case stderrors.As(err, &hubErr):
		base := hubErr.hub()
		h.report(ctx, "Hub", *base, err, base.Op)
	default:
		logger.LogError("Untyped Error: %v", err)
		h.publish(ctx, CodeGeneric, err.Error())
	}
}

func (h *ErrorHandler) report(ctx context.Context, label string, base HubError, err error, message string) {
	switch base.Severity {
	case SeverityCritical:
		logger.LogError("🔴 CRITICAL %s Error: %s", label, err.Error())
	case SeverityError:
		logger.LogError("%s Error: %s", label, err.Error())
	case SeverityWarning:
		logger.LogWarn("%s Warning: %s", label, err.Error())
	default:
		logger.LogInfo("%s Info: %s", label, err.Error())
	}
	h.publish(ctx, base.Code, message)
}

func (h *ErrorHandler) publish(ctx context.Context, code int, message string) {
	if h.diagnosticPublisher == nil {
		return
	}
	if publishErr := h.diagnosticPublisher.PublishDiagnostic(ctx, code, message); publishErr != nil {
		logger.LogDebug("Failed to publish error diagnostic: %v", publishErr)
	}
}

// IsTimeout reports whether err is (or wraps) a TimeoutError
func IsTimeout(err error) bool {
	var timeoutErr *TimeoutError
	return stderrors.As(err, &timeoutErr)
}

// IsNotConnected reports whether err is (or wraps) ErrNotConnected
func IsNotConnected(err error) bool {
	return stderrors.Is(err, ErrNotConnected)
}

// IsRecoverable returns true if retrying the operation later may succeed
func IsRecoverable(err error) bool {
	if err == nil {
		return true
	}

	if IsTimeout(err) || IsNotConnected(err) || stderrors.Is(err, ErrCircuitOpen) {
		return true
	}

	var configErr *ConfigError
	var validationErr *ValidationError
	if stderrors.As(err, &configErr) || stderrors.As(err, &validationErr) {
		return false
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, ErrRejected) {
		return false
	}

	if base, ok := baseOf(err); ok {
		return base.Severity != SeverityCritical
	}
	return true // Unknown errors are assumed recoverable
}

// GetDiagnosticCode extracts the diagnostic code from an error
func GetDiagnosticCode(err error) int {
	if err == nil {
		return 0
	}

	if base, ok := baseOf(err); ok {
		return base.Code
	}
	return CodeGeneric
}

// HTTPStatus maps an error onto the status code the API answers with
func HTTPStatus(err error) int {
	var validationErr *ValidationError
	switch {
	case err == nil:
		return http.StatusOK
	case IsTimeout(err):
		return http.StatusGatewayTimeout
	case IsNotConnected(err), stderrors.Is(err, ErrCircuitOpen):
		return http.StatusServiceUnavailable
	case stderrors.As(err, &validationErr):
		return http.StatusBadRequest
	case stderrors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case stderrors.Is(err, ErrRejected):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// hubCarrier is implemented by HubError and every type embedding it
type hubCarrier interface {
	hub() *HubError
}

func (e *HubError) hub() *HubError { return e }

func baseOf(err error) (*HubError, bool) {
	var carrier hubCarrier
	if stderrors.As(err, &carrier) {
		return carrier.hub(), true
	}
	return nil, false
}
