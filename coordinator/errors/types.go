package errors

import (
	"fmt"
)

// ErrorCode represents different categories of errors
type ErrorCode string

const (
	// ErrCodeConfig indicates missing or malformed configuration
	ErrCodeConfig ErrorCode = "CONFIG"

	// ErrCodeDiscovery indicates the factory contract could not be resolved
	ErrCodeDiscovery ErrorCode = "DISCOVERY"

	// ErrCodeQuery indicates a contract or chain query failed
	ErrCodeQuery ErrorCode = "QUERY"

	// ErrCodeDecode indicates a query response did not match the expected schema
	ErrCodeDecode ErrorCode = "DECODE"

	// ErrCodeRelay indicates the external relayer invocation failed
	ErrCodeRelay ErrorCode = "RELAY"

	// ErrCodeTimeout indicates an operation exceeded its deadline
	ErrCodeTimeout ErrorCode = "TIMEOUT"

	// ErrCodePanic indicates a module panicked during a cycle
	ErrCodePanic ErrorCode = "PANIC"

	// ErrCodeInternal indicates internal system errors
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// Severity represents the severity level of an error
type Severity string

const (
	// SeverityFatal errors stop the coordinator before scheduling starts
	SeverityFatal Severity = "FATAL"

	// SeverityHigh indicates high priority errors
	SeverityHigh Severity = "HIGH"

	// SeverityMedium indicates errors that abort a single cycle
	SeverityMedium Severity = "MEDIUM"

	// SeverityLow indicates low priority errors
	SeverityLow Severity = "LOW"
)

// CoordinatorError is an error raised by a coordinator component, optionally
// attributed to a check module.
type CoordinatorError struct {
	Code     ErrorCode              `json:"code"`
	Message  string                 `json:"message"`
	Module   string                 `json:"module,omitempty"`
	Severity Severity               `json:"severity"`
	Cause    error                  `json:"-"`
	Context  map[string]interface{} `json:"context,omitempty"`
}

// NewCoordinatorError creates a new CoordinatorError
func NewCoordinatorError(code ErrorCode, module, message string, cause error) *CoordinatorError {
	return &CoordinatorError{
		Code:     code,
		Message:  message,
		Module:   module,
		Severity: determineSeverity(code),
		Cause:    cause,
		Context:  make(map[string]interface{}),
	}
}

// Error implements the error interface
func (e *CoordinatorError) Error() string {
	prefix := fmt.Sprintf("[%s]", e.Code)
	if e.Module != "" {
		prefix = fmt.Sprintf("[%s:%s]", e.Module, e.Code)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s %s", prefix, e.Message)
}

// Unwrap returns the underlying cause
func (e *CoordinatorError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *CoordinatorError) WithContext(key string, value interface{}) *CoordinatorError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// IsFatal reports whether the error must stop the process at startup.
func (e *CoordinatorError) IsFatal() bool {
	return e.Severity == SeverityFatal
}

func determineSeverity(code ErrorCode) Severity {
	switch code {
	case ErrCodeConfig, ErrCodeDiscovery:
		return SeverityFatal
	case ErrCodePanic, ErrCodeInternal:
		return SeverityHigh
	case ErrCodeQuery, ErrCodeDecode, ErrCodeTimeout:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Common error constructors

// NewConfigError creates a configuration error
func NewConfigError(message string) *CoordinatorError {
	return NewCoordinatorError(ErrCodeConfig, "", message, nil)
}

// NewDiscoveryError creates a factory discovery error
func NewDiscoveryError(message string, cause error) *CoordinatorError {
	return NewCoordinatorError(ErrCodeDiscovery, "", message, cause)
}

// NewQueryError creates a query error attributed to a module
func NewQueryError(module, message string, cause error) *CoordinatorError {
	return NewCoordinatorError(ErrCodeQuery, module, message, cause)
}

// NewDecodeError creates a response decoding error
func NewDecodeError(module, message string, cause error) *CoordinatorError {
	return NewCoordinatorError(ErrCodeDecode, module, message, cause)
}

// NewRelayError creates a relayer invocation error
func NewRelayError(message string, cause error) *CoordinatorError {
	return NewCoordinatorError(ErrCodeRelay, "", message, cause)
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(module, message string) *CoordinatorError {
	return NewCoordinatorError(ErrCodeTimeout, module, message, nil)
}

// NewPanicError creates an error describing a recovered panic
func NewPanicError(module string, value interface{}) *CoordinatorError {
	return NewCoordinatorError(ErrCodePanic, module, fmt.Sprintf("panic recovered: %v", value), nil)
}
