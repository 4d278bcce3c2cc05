// Package errors provides a lightweight structured error type (ServiceError)
// for category-based classification and retry semantics across the service.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory represents the category of a service error for classification
type ErrorCategory string

const (
	// User-facing configuration and input errors
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"

	// External system integration errors
	CategoryNetwork ErrorCategory = "network"
	CategoryFetch   ErrorCategory = "fetch"
	CategoryGit     ErrorCategory = "git"

	// Storage and indexing errors
	CategoryStorage ErrorCategory = "storage"
	CategoryIndex   ErrorCategory = "index"

	// Runtime and infrastructure errors
	CategoryTenant   ErrorCategory = "tenant"
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops execution
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
)

// ServiceError is a structured error with category, retryability, and context
type ServiceError struct {
	Category  ErrorCategory `json:"category"`
	Severity  ErrorSeverity `json:"severity"`
	Message   string        `json:"message"`
	Cause     error         `json:"cause,omitempty"`
	Retryable bool          `json:"retryable"`
	Context   ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for ServiceError
type ContextFields map[string]any

// Error implements the error interface
func (e *ServiceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *ServiceError) WithContext(key string, value any) *ServiceError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new ServiceError
func New(category ErrorCategory, severity ErrorSeverity, message string) *ServiceError {
	return &ServiceError{Category: category, Severity: severity, Message: message}
}

// Wrap creates a new ServiceError that wraps an existing error
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *ServiceError {
	return &ServiceError{Category: category, Severity: severity, Message: message, Cause: err}
}

// Retryable creates a new retryable ServiceError
func Retryable(category ErrorCategory, severity ErrorSeverity, message string) *ServiceError {
	return &ServiceError{Category: category, Severity: severity, Message: message, Retryable: true}
}

// WrapRetryable creates a new retryable ServiceError that wraps an existing error
func WrapRetryable(err error, category ErrorCategory, severity ErrorSeverity, message string) *ServiceError {
	return &ServiceError{Category: category, Severity: severity, Message: message, Cause: err, Retryable: true}
}

// IsCategory checks if an error belongs to a specific category
func IsCategory(err error, category ErrorCategory) bool {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Category == category
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// GetCategory extracts the category from an error, or returns CategoryInternal otherwise
func GetCategory(err error) ErrorCategory {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Category
	}
	return CategoryInternal
}
