// Package apperr defines the error kinds returned by the catalog, roster and
// loan services.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a service error.
type Kind int

// Error kinds.
const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindInsufficientAvailability
	KindAlreadyReturned
	KindInvariant
	KindTransient
)

var kindNames = map[Kind]string{
	KindUnknown:                  "internal_error",
	KindValidation:               "validation_error",
	KindNotFound:                 "not_found",
	KindConflict:                 "conflict",
	KindInsufficientAvailability: "insufficient_availability",
	KindAlreadyReturned:          "already_returned",
	KindInvariant:                "invariant_violation",
	KindTransient:                "transient_error",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// HTTPStatus returns the HTTP status code for the kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindInsufficientAvailability, KindAlreadyReturned:
		return http.StatusConflict
	case KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified service error.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrValidation               = &Error{Kind: KindValidation}
	ErrNotFound                 = &Error{Kind: KindNotFound}
	ErrConflict                 = &Error{Kind: KindConflict}
	ErrInsufficientAvailability = &Error{Kind: KindInsufficientAvailability}
	ErrAlreadyReturned          = &Error{Kind: KindAlreadyReturned}
	ErrInvariant                = &Error{Kind: KindInvariant}
	ErrTransient                = &Error{Kind: KindTransient}
)

func newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Validation reports bad input.
func Validation(op, format string, args ...any) error {
	return newf(KindValidation, op, format, args...)
}

// NotFound reports a missing entity.
func NotFound(op, format string, args ...any) error {
	return newf(KindNotFound, op, format, args...)
}

// Conflict reports an operation blocked by referencing records.
func Conflict(op, format string, args ...any) error {
	return newf(KindConflict, op, format, args...)
}

// InsufficientAvailability reports a loan that would over-draw stock.
func InsufficientAvailability(op, format string, args ...any) error {
	return newf(KindInsufficientAvailability, op, format, args...)
}

// AlreadyReturned reports a second return of the same loan.
func AlreadyReturned(op, format string, args ...any) error {
	return newf(KindAlreadyReturned, op, format, args...)
}

// Invariant reports availability math that would leave its bounds.
func Invariant(op, format string, args ...any) error {
	return newf(KindInvariant, op, format, args...)
}

// Transient wraps a store or network failure that is safe to retry.
func Transient(op string, err error) error {
	return &Error{Kind: KindTransient, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
