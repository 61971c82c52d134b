package domain

import (
	"errors"
	"net/http"
)

// ErrorKind classifies failures so transports can map them to their own codes.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindConflict   ErrorKind = "conflict"
	KindInternal   ErrorKind = "internal"
)

// HTTPStatus returns the status code a caller should answer with for this kind.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same kind and message,
// so wrapped copies of a sentinel still match it.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

func Validation(msg string) error {
	return &Error{Kind: KindValidation, Message: msg}
}

func NotFound(msg string) error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func Conflict(msg string) error {
	return &Error{Kind: KindConflict, Message: msg}
}

func Internal(msg string, err error) error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf extracts the kind of err. Errors that carry no kind are internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

var (
	ErrInvalidPaymentType  = &Error{Kind: KindValidation, Message: "invalid payment type"}
	ErrServiceRequired     = &Error{Kind: KindValidation, Message: "service id is required"}
	ErrProviderRequired    = &Error{Kind: KindValidation, Message: "provider id is required"}
	ErrScheduledAtRequired = &Error{Kind: KindValidation, Message: "scheduled time is required"}
	ErrInvalidScheduledAt  = &Error{Kind: KindValidation, Message: "scheduled time is not a valid timestamp"}
	ErrIdentityRequired    = &Error{Kind: KindValidation, Message: "tenant and user are required"}
	ErrBookingIDRequired   = &Error{Kind: KindValidation, Message: "booking id is required"}
	ErrInvalidAddress      = &Error{Kind: KindValidation, Message: "customer address must be a JSON object"}
	ErrServiceNotFound     = &Error{Kind: KindNotFound, Message: "service not found or inactive"}
	ErrBookingNotFound     = &Error{Kind: KindNotFound, Message: "booking not found"}
	ErrSlotNotAvailable    = &Error{Kind: KindConflict, Message: "slot not available"}
	ErrInvalidTransition   = &Error{Kind: KindConflict, Message: "invalid status transition"}
)
