package domain

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes service errors. The set is closed: every error
// surfaced by a lifecycle service, the workflow, or the checkpoint service
// carries exactly one of these codes.
type ErrorCode string

const (
	// CodeInvalidRequest indicates malformed input (empty title,
	// approved=false, empty executionId).
	CodeInvalidRequest ErrorCode = "invalid_request"

	// CodeNotFound indicates a referenced entity, draft, or checkpoint is absent.
	CodeNotFound ErrorCode = "not_found"

	// CodeConflict indicates the wrong state for the requested transition,
	// including duplicate approvals and referential-integrity violations.
	CodeConflict ErrorCode = "conflict"

	// CodeForbidden indicates an unauthorized actor (non-user approver).
	CodeForbidden ErrorCode = "forbidden"

	// CodeUnknown indicates an infrastructure failure (persistence layer,
	// outbound execution port).
	CodeUnknown ErrorCode = "unknown"
)

// Error is a typed service error carrying a code, a message, and an optional
// structured cause.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the structured cause for errors.Is/errors.As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewInvalidRequest creates an invalid_request error.
func NewInvalidRequest(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

// NewNotFound creates a not_found error.
func NewNotFound(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewConflict creates a conflict error.
func NewConflict(format string, args ...any) *Error {
	return &Error{Code: CodeConflict, Message: fmt.Sprintf(format, args...)}
}

// NewForbidden creates a forbidden error.
func NewForbidden(format string, args ...any) *Error {
	return &Error{Code: CodeForbidden, Message: fmt.Sprintf(format, args...)}
}

// WrapUnknown wraps an infrastructure failure with the unknown code.
func WrapUnknown(message string, err error) *Error {
	return &Error{Code: CodeUnknown, Message: message, Err: err}
}

// CodeOf extracts the error code from an error chain.
// Returns CodeUnknown for errors that are not *Error.
func CodeOf(err error) ErrorCode {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeUnknown
}

// IsInvalidRequest reports whether the error chain carries invalid_request.
func IsInvalidRequest(err error) bool { return hasCode(err, CodeInvalidRequest) }

// IsNotFound reports whether the error chain carries not_found.
func IsNotFound(err error) bool { return hasCode(err, CodeNotFound) }

// IsConflict reports whether the error chain carries conflict.
func IsConflict(err error) bool { return hasCode(err, CodeConflict) }

// IsForbidden reports whether the error chain carries forbidden.
func IsForbidden(err error) bool { return hasCode(err, CodeForbidden) }

func hasCode(err error, code ErrorCode) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}
