// Package domain defines the core domain models for wamesh.
package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business domain error with a structured error code.
// Codes have the form WA-<AREA>-<NNNN>, where the first three digits mirror
// the closest HTTP status.
type DomainError struct {
	Code    string // Error code (e.g., "WA-SESS-4040")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Cause != nil {
		msg += " (" + e.Cause.Error() + ")"
	}
	return msg
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is matches another DomainError by code, so wrapped copies produced by
// WithDetails/WithCause still compare equal to the package sentinels.
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

// IsNotFound reports whether err means "no such session or blob".
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrBlobNotFound)
}

// Session errors.
var (
	// ErrSessionNotFound indicates no active session exists for the client id.
	ErrSessionNotFound = NewDomainError("WA-SESS-4040", "session not found")

	// ErrSessionNotReady indicates the session has not finished bring-up.
	ErrSessionNotReady = NewDomainError("WA-SESS-4120", "session is not ready")
)

// Contact errors.
var (
	// ErrContactNotAuthorized indicates the peer never messaged the tenant.
	ErrContactNotAuthorized = NewDomainError("WA-AUTH-4030", "cannot send message to unknown contact")
)

// Blob errors.
var (
	// ErrBlobNotFound indicates no stored session blob exists for the key.
	ErrBlobNotFound = NewDomainError("WA-BLOB-4040", "session blob not found")

	// ErrBlobCorrupted indicates a stored blob could not be decoded or opened.
	ErrBlobCorrupted = NewDomainError("WA-BLOB-5000", "session blob corrupted")
)

// System errors.
var (
	// ErrStorageError indicates a registry, ledger or blob I/O failure.
	ErrStorageError = NewDomainError("WA-SYS-5001", "storage error")

	// ErrTransportError indicates the messaging transport failed to start,
	// send, or tear down.
	ErrTransportError = NewDomainError("WA-SYS-5020", "transport error")

	// ErrShuttingDown indicates the manager no longer accepts new sessions.
	ErrShuttingDown = NewDomainError("WA-SYS-5030", "session manager is shutting down")
)

// Argument errors.
var (
	// ErrInvalidArgument indicates an invalid argument.
	ErrInvalidArgument = NewDomainError("WA-ARG-1001", "invalid argument")
)
