// Package apperr defines the error taxonomy shared by the domain services
// and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation         Kind = "validation_error"
	KindInsufficientStock  Kind = "insufficient_stock"
	KindProductUnavailable Kind = "product_unavailable"
	KindInvalidTransition  Kind = "invalid_transition"
	KindOverpayment        Kind = "overpayment_rejected"
	KindReservationOverlap Kind = "reservation_overlap"
	KindInvalidTableStatus Kind = "invalid_table_status"
	KindNotFound           Kind = "not_found"
	KindUnauthorized       Kind = "unauthorized"
	KindForbidden          Kind = "forbidden"
	KindInternal           Kind = "internal"
)

// Error carries a Kind so callers can branch with errors.Is against the
// sentinels below without comparing messages.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrValidation         = &Error{Kind: KindValidation}
	ErrInsufficientStock  = &Error{Kind: KindInsufficientStock}
	ErrProductUnavailable = &Error{Kind: KindProductUnavailable}
	ErrInvalidTransition  = &Error{Kind: KindInvalidTransition}
	ErrOverpayment        = &Error{Kind: KindOverpayment}
	ErrReservationOverlap = &Error{Kind: KindReservationOverlap}
	ErrInvalidTableStatus = &Error{Kind: KindInvalidTableStatus}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrUnauthorized       = &Error{Kind: KindUnauthorized}
	ErrForbidden          = &Error{Kind: KindForbidden}
)

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validation builds a validation error with per-field detail.
func Validation(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: "invalid input", Fields: fields}
}

func NotFound(entity, id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %s not found", entity, id)}
}

// Internal wraps an unexpected failure (storage, broker) keeping the cause.
func Internal(err error, op string) *Error {
	return &Error{Kind: KindInternal, Message: op, Err: err}
}

// KindOf reports the kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// FieldErrors accumulates field-level problems and yields nil when empty.
type FieldErrors map[string]string

func (f FieldErrors) Add(field, msg string) {
	if _, ok := f[field]; !ok {
		f[field] = msg
	}
}

func (f FieldErrors) Err() error {
	if len(f) == 0 {
		return nil
	}
	return Validation(map[string]string(f))
}
