// Package apperr defines the error taxonomy shared by the domain packages and
// its mapping onto HTTP status codes.
package apperr

import (
	"errors"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindDomainConstraint
	KindConflict
	KindTransientStore
	KindAuthorization
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindDomainConstraint:
		return "domain_constraint"
	case KindConflict:
		return "conflict"
	case KindTransientStore:
		return "transient_store"
	case KindAuthorization:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

// Error is a classified application error. Domain packages declare sentinel
// values of this type and wrap them with fmt.Errorf("%w: ...") for detail.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Validation(message string) *Error       { return New(KindValidation, message) }
func NotFound(message string) *Error         { return New(KindNotFound, message) }
func DomainConstraint(message string) *Error { return New(KindDomainConstraint, message) }
func Conflict(message string) *Error         { return New(KindConflict, message) }
func Unauthorized(message string) *Error     { return New(KindAuthorization, message) }
func Forbidden(message string) *Error        { return New(KindForbidden, message) }

// Transient wraps a store failure so callers can tell it apart from bad input.
func Transient(message string, err error) *Error {
	return &Error{Kind: KindTransientStore, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindDomainConstraint:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTransientStore:
		return http.StatusServiceUnavailable
	case KindAuthorization:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the text safe to show to a client. Internal errors are
// replaced with a generic message.
func PublicMessage(err error) string {
	if KindOf(err) == KindInternal {
		return "internal server error"
	}
	return err.Error()
}
