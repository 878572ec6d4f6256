// Package errors provides domain-specific errors for the activitysync application.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common domain error conditions.
var (
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrLoginRejected      = errors.New("login rejected")
	ErrCredentialsMissing = errors.New("credentials missing")
	ErrActivityNotFound   = errors.New("activity not found")
	ErrFileUnavailable    = errors.New("activity file unavailable")
	ErrStateCorrupt       = errors.New("sync state corrupt")
	ErrStateNotFound      = errors.New("sync state not found")
	ErrPlatformResponse   = errors.New("unexpected platform response")
)

// ErrorCode categorizes errors for handling and reporting.
type ErrorCode string

const (
	CodeValidation    ErrorCode = "VALIDATION"
	CodeConfiguration ErrorCode = "CONFIG"
	CodeAuth          ErrorCode = "AUTH"
	CodeListing       ErrorCode = "LISTING"
	CodeTransient     ErrorCode = "TRANSIENT"
	CodePermanent     ErrorCode = "PERMANENT"
	CodeTransfer      ErrorCode = "TRANSFER"
	CodeState         ErrorCode = "STATE"
)

// SyncError wraps errors with additional context for debugging and handling.
type SyncError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error returns a formatted error string including the code, message, and cause if present.
func (e *SyncError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for use with errors.Is and errors.As.
func (e *SyncError) Unwrap() error {
	return e.Cause
}

// NewError creates a new SyncError with the given code, message, and optional cause.
func NewError(code ErrorCode, message string, cause error) *SyncError {
	return &SyncError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds a key-value pair to the error's context and returns the error.
func WithContext(err *SyncError, key string, value interface{}) *SyncError {
	if err.Context == nil {
		err.Context = make(map[string]interface{})
	}
	err.Context[key] = value
	return err
}

// Is reports whether err matches target using errors.Is semantics.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// CodeOf returns the code of the outermost SyncError in err's chain,
// or an empty code if there is none.
func CodeOf(err error) ErrorCode {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsFatal reports whether err must abort a run before state is persisted.
func IsFatal(err error) bool {
	switch CodeOf(err) {
	case CodeAuth, CodeListing, CodeConfiguration, CodeState:
		return true
	}
	return false
}

// IsRetryable reports whether err is worth another attempt.
// Unauthorized errors are retryable because callers re-authenticate first.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnauthorized) {
		return true
	}
	return CodeOf(err) == CodeTransient
}
