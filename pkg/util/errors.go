// Package util provides the shared logger and common error types.
package util

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors distinguishing the failure classes the middleware handles
var (
	ErrNotFound         = errors.New("device not found")
	ErrBusy             = errors.New("registry busy, retry later")
	ErrNotConnected     = errors.New("device not connected")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrValidationFailed = errors.New("validation failed")
	ErrProtocolTimeout  = errors.New("protocol reply timeout")
	ErrTransport        = errors.New("transport failure")
	ErrUnsupported      = errors.New("operation not supported by this reader")
)

// NotFoundError identifies an unknown device by name
type NotFoundError struct {
	Device string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("device %q not found", e.Device)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewNotFoundError creates a not-found error for a device name
func NewNotFoundError(device string) *NotFoundError {
	return &NotFoundError{Device: device}
}

// ConfigError reports an invalid or missing configuration value
type ConfigError struct {
	Field   string
	Details string
}

func (e *ConfigError) Error() string {
	if e.Details == "" {
		return "invalid configuration: " + e.Field
	}
	return fmt.Sprintf("invalid configuration: %s (%s)", e.Field, e.Details)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

// NewConfigError creates a configuration error
func NewConfigError(field, details string) *ConfigError {
	return &ConfigError{Field: field, Details: details}
}

// TransportError wraps a connect/read/write failure so supervisors can
// tell connection problems apart from protocol errors when scheduling the
// next attempt
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "transport failure: " + e.Err.Error()
}

func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

// WrapTransport marks an error as a transport failure; nil stays nil
func WrapTransport(err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Err: err}
}

// ValidationError represents one or more validation failures
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "validation failed: " + e.Errors[0]
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// NewValidationError creates a validation error from messages
func NewValidationError(messages ...string) *ValidationError {
	return &ValidationError{Errors: messages}
}

// ValidationBuilder helps accumulate validation errors
type ValidationBuilder struct {
	errors []string
}

// Add adds an error message if condition is false
func (v *ValidationBuilder) Add(condition bool, message string) *ValidationBuilder {
	if !condition {
		v.errors = append(v.errors, message)
	}
	return v
}

// AddErrorf adds a formatted error message
func (v *ValidationBuilder) AddErrorf(format string, args ...interface{}) *ValidationBuilder {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
	return v
}

// HasErrors returns true if there are validation errors
func (v *ValidationBuilder) HasErrors() bool {
	return len(v.errors) > 0
}

// Build returns the validation error or nil if no errors
func (v *ValidationBuilder) Build() error {
	if len(v.errors) == 0 {
		return nil
	}
	return &ValidationError{Errors: v.errors}
}
