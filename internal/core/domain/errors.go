package domain

import (
	"errors"
	"time"
)

// ErrorKind is the stable, machine-readable discriminant of a domain error.
type ErrorKind string

const (
	KindValidation         ErrorKind = "validation_error"
	KindInvalidCredentials ErrorKind = "invalid_credentials"
	KindAccountLocked      ErrorKind = "account_locked"
	KindUnauthenticated    ErrorKind = "unauthenticated"
	KindInvalidToken       ErrorKind = "invalid_token"
	KindForbidden          ErrorKind = "forbidden"
	KindConflict           ErrorKind = "conflict"
	KindNotFound           ErrorKind = "not_found"
	KindTokenInvalid       ErrorKind = "token_invalid"
	KindTokenExpired       ErrorKind = "token_expired"
	KindInternal           ErrorKind = "internal"
)

// Error is a domain failure with a kind and a client-safe message.
// Two Errors match under errors.Is when their kinds are equal.
type Error struct {
	Kind    ErrorKind
	Message string
	// Until is set on account_locked errors.
	Until time.Time
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrValidation         = &Error{Kind: KindValidation, Message: "invalid request"}
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials, Message: "invalid credentials"}
	ErrAccountLocked      = &Error{Kind: KindAccountLocked, Message: "account locked, try again later"}
	ErrUnauthenticated    = &Error{Kind: KindUnauthenticated, Message: "unauthenticated"}
	ErrInvalidToken       = &Error{Kind: KindInvalidToken, Message: "invalid or expired refresh token"}
	ErrForbidden          = &Error{Kind: KindForbidden, Message: "access forbidden"}
	ErrConflict           = &Error{Kind: KindConflict, Message: "email or username already exists"}
	ErrNotFound           = &Error{Kind: KindNotFound, Message: "not found"}
	ErrTokenInvalid       = &Error{Kind: KindTokenInvalid, Message: "token invalid"}
	ErrTokenExpired       = &Error{Kind: KindTokenExpired, Message: "token expired"}

	ErrAccountNotFound = &Error{Kind: KindNotFound, Message: "account not found"}
	ErrAccountBlocked  = &Error{Kind: KindForbidden, Message: "account is blocked"}
)

// NewValidationError returns a validation_error carrying msg.
func NewValidationError(msg string) error {
	return &Error{Kind: KindValidation, Message: msg}
}

// NewUnauthenticatedError returns an unauthenticated error carrying msg.
func NewUnauthenticatedError(msg string) error {
	return &Error{Kind: KindUnauthenticated, Message: msg}
}

// KindOf returns the kind of the first domain error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}
