// Package domain defines the core domain models for KeyMesh.
package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business domain error with a structured error code.
// Codes follow the format KM-<AREA>-<NNNN>, where the numeric suffix mirrors
// the HTTP status family the error maps to.
type DomainError struct {
	Code    string // Error code (e.g., "KM-CODE-4040")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Activation Code Errors (CODE)
// ============================================================================

var (
	// ErrCodeMalformed indicates the activation code string has an unknown
	// prefix or an invalid shape. Rejected before touching storage.
	ErrCodeMalformed = NewDomainError("KM-CODE-4000", "malformed activation code")

	// ErrCodeNotFound indicates the activation code does not exist.
	ErrCodeNotFound = NewDomainError("KM-CODE-4040", "activation code not found")

	// ErrCodeExpired indicates the code's own validity window has elapsed.
	ErrCodeExpired = NewDomainError("KM-CODE-4041", "activation code expired")

	// ErrCodeExhausted indicates the code's redemption quota is used up.
	ErrCodeExhausted = NewDomainError("KM-CODE-4090", "activation code quota exhausted")

	// ErrCodeConflict indicates a generated code collided with an existing one.
	ErrCodeConflict = NewDomainError("KM-CODE-4091", "activation code already exists")
)

// ============================================================================
// Device Binding Errors (DEVC)
// ============================================================================

var (
	// ErrDeviceNotFound indicates no binding exists for the device.
	ErrDeviceNotFound = NewDomainError("KM-DEVC-4040", "device binding not found")

	// ErrDeviceAlreadyActive indicates the device already holds an active license.
	ErrDeviceAlreadyActive = NewDomainError("KM-DEVC-4090", "device already activated")

	// ErrDeviceValidation indicates device binding data validation failed.
	ErrDeviceValidation = NewDomainError("KM-DEVC-4001", "device binding validation failed")
)

// ============================================================================
// License Kind Errors (KIND)
// ============================================================================

var (
	// ErrKindInvalid indicates an unknown license kind.
	ErrKindInvalid = NewDomainError("KM-KIND-4001", "invalid license kind")
)

// ============================================================================
// System Errors (SYS)
// ============================================================================

var (
	// ErrInternalServer indicates an internal server error.
	ErrInternalServer = NewDomainError("KM-SYS-5000", "internal server error")

	// ErrStorageError indicates a storage layer error.
	ErrStorageError = NewDomainError("KM-SYS-5001", "storage error")

	// ErrStateInconsistent indicates quota was consumed without a matching
	// binding. A store implementing the atomic redeem-and-bind contract
	// never surfaces this; it exists so the condition is loud, not silent.
	ErrStateInconsistent = NewDomainError("KM-SYS-5002", "redeemed quota without device binding")

	// ErrBadRequest indicates a malformed request.
	ErrBadRequest = NewDomainError("KM-SYS-4000", "bad request")

	// ErrRateLimited indicates too many requests.
	ErrRateLimited = NewDomainError("KM-SYS-4290", "too many requests")
)

// ============================================================================
// Argument Errors (ARG)
// ============================================================================

var (
	// ErrInvalidArgument indicates an invalid argument.
	ErrInvalidArgument = NewDomainError("KM-ARG-1001", "invalid argument")

	// ErrMissingArgument indicates a required argument is missing.
	ErrMissingArgument = NewDomainError("KM-ARG-1002", "missing required argument")
)
