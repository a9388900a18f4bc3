// Package apperr defines the error taxonomy shared by the financial
// lifecycle services. Handlers map kinds to HTTP statuses; services return
// them and never retry on Validation/Authorization/StateConflict.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	// Validation: bad input shape or range. Surfaced, never retried.
	Validation Kind = iota
	// Authorization: wrong role or not the resource owner.
	Authorization
	// StateConflict: operation or transition not valid from the current
	// status. Caller must re-fetch state before retrying.
	StateConflict
	// DuplicatePosting: ledger uniqueness violation on retry. Callers treat
	// it as "already processed", not a failure.
	DuplicatePosting
	// NotFound: missing job/bid/hold/withdrawal.
	NotFound
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches two taxonomy errors by kind, so errors.Is(err, apperr.Conflict("x"))
// style comparisons are not needed; use IsKind instead.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Validationf(format string, args ...any) *Error {
	return New(Validation, format, args...)
}

func Authorizationf(format string, args ...any) *Error {
	return New(Authorization, format, args...)
}

func Conflictf(format string, args ...any) *Error {
	return New(StateConflict, format, args...)
}

func NotFoundf(format string, args ...any) *Error {
	return New(NotFound, format, args...)
}

func Duplicatef(format string, args ...any) *Error {
	return New(DuplicatePosting, format, args...)
}

// Wrap attaches a cause to a taxonomy error.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// HTTPStatus maps a taxonomy error to its wire status. Unknown errors map
// to 500.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case Validation:
		return http.StatusBadRequest
	case Authorization:
		return http.StatusForbidden
	case StateConflict:
		return http.StatusConflict
	case DuplicatePosting:
		// Idempotent no-op; callers normally swallow this before it
		// reaches a handler.
		return http.StatusOK
	case NotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
