package live

import (
	"fmt"
)

// ErrorType categorizes session-fatal and recoverable failures.
type ErrorType string

const (
	// ErrConfig means a required credential or setting was missing before open.
	ErrConfig ErrorType = "config_error"
	// ErrPermission means the capture device could not be acquired.
	ErrPermission ErrorType = "permission_error"
	// ErrConnection means the remote closed or errored mid-session.
	ErrConnection ErrorType = "connection_error"
	// ErrMalformedMessage means an inbound payload could not be decoded.
	// Malformed messages are skipped, never fatal.
	ErrMalformedMessage ErrorType = "malformed_message"
)

// Error is the canonical error for the live session.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Fatal reports whether the error terminates the session.
func (e *Error) Fatal() bool {
	return e.Type != ErrMalformedMessage
}

// NewConfigError creates a missing-configuration error.
func NewConfigError(message string) *Error {
	return &Error{Type: ErrConfig, Message: message}
}

// NewPermissionError creates a device-access error.
func NewPermissionError(message string) *Error {
	return &Error{Type: ErrPermission, Message: message}
}

// NewConnectionError creates a remote close/error failure.
func NewConnectionError(message string) *Error {
	return &Error{Type: ErrConnection, Message: message}
}

// NewMalformedMessageError creates a skip-and-continue decode error.
func NewMalformedMessageError(message string) *Error {
	return &Error{Type: ErrMalformedMessage, Message: message}
}
