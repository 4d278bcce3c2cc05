package errors

import (
	stderrors "errors"
	"fmt"
)

// NotFound is returned to callers for unknown tenants, missing documents
// and empty browse paths. It is caller-visible but non-fatal.
func NotFound(what string) *ServiceError {
	return &ServiceError{
		Category: CategoryTenant,
		Severity: SeverityWarning,
		Message:  fmt.Sprintf("%s not found", what),
	}
}

// IsNotFound reports whether err is a NotFound-style tenant warning.
func IsNotFound(err error) bool {
	return IsCategory(err, CategoryTenant)
}

// ConfigError is fatal and surfaced to the caller at load time.
func ConfigError(message string) *ServiceError {
	return &ServiceError{Category: CategoryConfig, Severity: SeverityFatal, Message: message}
}

// ConfigErrorWrap is ConfigError with an underlying cause preserved for
// errors.Is/As chains.
func ConfigErrorWrap(message string, cause error) *ServiceError {
	return &ServiceError{Category: CategoryConfig, Severity: SeverityFatal, Message: message, Cause: cause}
}

// DatabaseCritical marks a storage failure that survived the bounded
// reconnect retries. The tenant runtime transitions to degraded
// read-only state when it sees one.
func DatabaseCritical(err error, message string) *ServiceError {
	return &ServiceError{
		Category: CategoryStorage,
		Severity: SeverityFatal,
		Message:  message,
		Cause:    err,
	}
}

// IsDatabaseCritical reports whether err carries a fatal storage failure.
func IsDatabaseCritical(err error) bool {
	var se *ServiceError
	if !stderrors.As(err, &se) {
		return false
	}
	return se.Category == CategoryStorage && se.Severity == SeverityFatal
}
