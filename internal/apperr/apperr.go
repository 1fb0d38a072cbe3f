// Package apperr defines the error taxonomy surfaced at the HTTP boundary.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the caller.
type Kind string

const (
	KindBadRequest           Kind = "bad_request"
	KindUnauthorized         Kind = "unauthorized"
	KindInternal             Kind = "internal_server_error"
	KindLedger               Kind = "ledger_error"
	KindInvalidConfiguration Kind = "invalid_configuration"
)

// Machine-readable codes attached to specific failures.
const (
	CodeAnchorExpired      = "anchor_expired"
	CodeMissingSignature   = "missing_signature"
	CodeInvalidSignature   = "invalid_signature"
	CodeForeignInstruction = "foreign_instruction"
	CodePatientNotFound    = "patient_not_found"
	CodeDataIntegrity      = "data_integrity"
	CodeInvalidToken       = "invalid_token"
)

// Error is a classified failure. Message is safe to show to clients; Err is
// the underlying cause and is only logged.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Status maps the kind onto an HTTP status code.
func (e *Error) Status() int {
	switch e.Kind {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindLedger:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// WithCode returns a copy of e carrying code.
func (e *Error) WithCode(code string) *Error {
	c := *e
	c.Code = code
	return &c
}

// BadRequest reports malformed input.
func BadRequest(format string, args ...any) *Error {
	return &Error{Kind: KindBadRequest, Message: fmt.Sprintf(format, args...)}
}

// Unauthorized reports a missing or insufficient credential.
func Unauthorized(format string, args ...any) *Error {
	return &Error{Kind: KindUnauthorized, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps an unexpected failure.
func Internal(err error, msg string) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// Ledger wraps a failure talking to, or reported by, the ledger.
func Ledger(err error, msg string) *Error {
	return &Error{Kind: KindLedger, Message: msg, Err: err}
}

// InvalidConfiguration reports unusable startup configuration.
func InvalidConfiguration(err error, msg string) *Error {
	return &Error{Kind: KindInvalidConfiguration, Message: msg, Err: err}
}

// From returns err as an *Error, classifying anything unknown as internal.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err, "internal server error")
}

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}
