// Package domainerrors defines the closed set of error codes the workflow
// engine returns across its service boundary. Services build these from
// store sentinels and precondition checks; the transport layer translates
// them to HTTP statuses and JSON envelopes.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies the kind of domain failure.
type Code string

const (
	// CodeForbidden: role or ownership check failed.
	CodeForbidden Code = "forbidden"
	// CodeInvalidState: operation not valid for the entity's current status.
	CodeInvalidState Code = "invalid_state"
	// CodeConflictingObservation: an observation referenced by notice issuance
	// is not eligible (wrong agency, not pending, or already linked to an
	// open notice).
	CodeConflictingObservation Code = "conflicting_observation"
	// CodeNoticeStillPending: close attempted while linked observations are
	// still pending.
	CodeNoticeStillPending Code = "notice_still_pending"
	// CodeNotFound: referenced entity does not exist.
	CodeNotFound Code = "not_found"
	// CodeValidation: missing or malformed required fields.
	CodeValidation Code = "validation_error"
	// CodeInternal: unexpected infrastructure failure.
	CodeInternal Code = "internal"
)

// Error carries a code plus an operator-facing message. It optionally wraps
// the underlying cause for logging; the cause is never serialized to clients.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a domain error with the given code and message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf builds a domain error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) error {
	return &Error{Code: code, Message: message, Err: err}
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for errors
// that did not originate in a service.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf extracts the operator-facing message from err.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}

// ToHTTPStatus maps a code to the HTTP status the transport layer should use.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeValidation:
		return http.StatusBadRequest
	case CodeInvalidState, CodeConflictingObservation, CodeNoticeStillPending:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
