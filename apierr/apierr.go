// Package apierr defines the error kinds surfaced across the channel
// engine (§7 of the design): each kind carries the HTTP status it maps to,
// so a handler can return a typed error and let the HTTP layer decide how
// to render it without re-deriving the status code at every call site.
package apierr

import (
	"fmt"
	"net/http"
)

// Kind classifies an error the way the HTTP layer needs to render it.
type Kind string

const (
	// MalformedRequest / BadRequest: missing or invalid caller input, or an
	// unknown channel for the resolved app.
	MalformedRequest Kind = "malformed_request"
	BadRequest        Kind = "bad_request"
	// InvalidConfig: ChannelParams deserialization or key-format failure.
	InvalidConfig Kind = "invalid_config"
	// ApiError: upstream channel refused, returned non-SUCCESS, or a
	// signature failed to verify.
	ApiError Kind = "api_error"
	// Unexpected / InternalError: serialization, I/O, or crypto failure.
	Unexpected Kind = "unexpected"
	// DoesNotExist: Order/Charge/Refund/SubApp lookup miss.
	DoesNotExist Kind = "does_not_exist"
)

var statusByKind = map[Kind]int{
	MalformedRequest: http.StatusBadRequest,
	BadRequest:       http.StatusBadRequest,
	InvalidConfig:    http.StatusInternalServerError,
	ApiError:         http.StatusInternalServerError,
	Unexpected:       http.StatusInternalServerError,
	DoesNotExist:     http.StatusNotFound,
}

// Error is the error type every component in the channel engine returns.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Status returns the HTTP status code this error kind maps to.
func (e *Error) Status() int {
	if s, ok := statusByKind[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// As reports whether err is an *Error and returns it.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}
