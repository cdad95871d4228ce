// Package apperr holds the error taxonomy shared by the backend client,
// the weather service and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error by how the dashboard reacts to it.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindValidation   Kind = "validation"
	KindUpstream     Kind = "upstream"
)

// Sentinels for errors.Is checks. Any *Error matches the sentinel of its kind.
var (
	ErrNotFound     = &Error{Kind: KindNotFound, Status: http.StatusNotFound, Message: "not found"}
	ErrUnauthorized = &Error{Kind: KindUnauthorized, Status: http.StatusUnauthorized, Message: "unauthorized"}
	ErrForbidden    = &Error{Kind: KindForbidden, Status: http.StatusForbidden, Message: "forbidden"}
	ErrValidation   = &Error{Kind: KindValidation, Status: http.StatusBadRequest, Message: "validation failed"}
	ErrUpstream     = &Error{Kind: KindUpstream, Status: http.StatusBadGateway, Message: "upstream request failed"}
)

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports kind equality so that wrapped errors match the package sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newError(kind Kind, status int, cause error, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Status:  status,
		Message: fmt.Sprintf(format, args...),
		Err:     cause,
	}
}

// NotFound builds a NotFound error with the given user-facing message.
func NotFound(format string, args ...any) *Error {
	return newError(KindNotFound, http.StatusNotFound, nil, format, args...)
}

// CityNotFound is the message surfaced when the weather backend does not know a city.
func CityNotFound(city string) *Error {
	return NotFound("City '%s' not found. Please check the spelling and try again.", city)
}

// Unauthorized builds an Unauthorized error wrapping cause.
func Unauthorized(cause error, format string, args ...any) *Error {
	return newError(KindUnauthorized, http.StatusUnauthorized, cause, format, args...)
}

// Forbidden builds a Forbidden error.
func Forbidden(format string, args ...any) *Error {
	return newError(KindForbidden, http.StatusForbidden, nil, format, args...)
}

// Validation builds a Validation error.
func Validation(format string, args ...any) *Error {
	return newError(KindValidation, http.StatusBadRequest, nil, format, args...)
}

// Upstream builds a generic network/server error. An empty message falls back
// to fallback.
func Upstream(cause error, message, fallback string) *Error {
	if message == "" {
		message = fallback
	}
	return newError(KindUpstream, http.StatusBadGateway, cause, "%s", message)
}

// KindOf returns the kind of err, or KindUpstream for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUpstream
}

// StatusOf returns the HTTP status to answer with for err.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) && e.Status != 0 {
		return e.Status
	}
	return http.StatusInternalServerError
}
