package shared

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeRateLimited  ErrorType = "rate_limited"
	ErrorTypeTimeout      ErrorType = "timeout"
	ErrorTypeInternal     ErrorType = "internal"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches on type and message, so a wrapped ErrInvalidToken still
// compares equal to the sentinel.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Message == t.Message
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// Wrap returns a copy of a sentinel carrying the underlying cause.
func Wrap(sentinel *DomainError, err error) *DomainError {
	return &DomainError{
		Type:    sentinel.Type,
		Message: sentinel.Message,
		Err:     err,
	}
}

var (
	// Authentication
	ErrInvalidCredentials = NewDomainError(ErrorTypeUnauthorized, "Invalid username or password", nil)
	ErrInvalidToken       = NewDomainError(ErrorTypeUnauthorized, "The access token is expired or not valid", nil)
	ErrUnauthenticated    = NewDomainError(ErrorTypeUnauthorized, "Authentication required", nil)
	ErrTooManyAttempts    = NewDomainError(ErrorTypeRateLimited, "Too many failed login attempts, try again later", nil)

	// Authorization
	ErrForbidden = NewDomainError(ErrorTypeForbidden, "You don't have permission to perform this action", nil)

	// Users
	ErrUserNotFound           = NewDomainError(ErrorTypeNotFound, "User profile not found", nil)
	ErrInvalidCurrentPassword = NewDomainError(ErrorTypeValidation, "The provided password does not match the current one", nil)
	ErrDuplicateUsername      = NewDomainError(ErrorTypeConflict, "Username already exists", nil)

	// Pipeline
	ErrInternal       = NewDomainError(ErrorTypeInternal, "internal server error", nil)
	ErrRequestTimeout = NewDomainError(ErrorTypeTimeout, "The request took too long to complete", nil)
)

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	return GetErrorType(err) == ErrorTypeUnauthorized
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}
