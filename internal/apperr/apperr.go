// Package apperr defines the error taxonomy shared by the ledger, policy and
// approval packages and its mapping onto HTTP statuses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure so callers can tell rejections apart without
// string matching.
type Kind string

const (
	Validation           Kind = "validation"
	NotFound             Kind = "not_found"
	InsufficientFunds    Kind = "insufficient_funds"
	SelfReference        Kind = "self_reference"
	PolicyDisabled       Kind = "policy_disabled"
	PolicyNotConfigured  Kind = "policy_not_configured"
	VerificationRequired Kind = "verification_required"
	LimitExceeded        Kind = "limit_exceeded"
	InvalidState         Kind = "invalid_state"
	Expired              Kind = "expired"
	Conflict             Kind = "conflict"
	UserInactive         Kind = "user_inactive"
	CurrencyMismatch     Kind = "currency_mismatch"
	Duplicate            Kind = "duplicate"
	Unauthorized         Kind = "unauthorized"
	Forbidden            Kind = "forbidden"
	Internal             Kind = "internal"
)

// Error is a classified error. Field is optional and names the offending input.
type Error struct {
	Kind    Kind
	Field   string
	Message string
	Err     error
}

// New returns a classified error with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf is New with formatting.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Invalid reports a malformed or missing input field.
func Invalid(field, message string) *Error {
	return &Error{Kind: Validation, Field: field, Message: message}
}

// Wrap classifies err under kind, keeping it reachable through errors.Is/As.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of the first classified error in err's chain, or
// Internal when none is found.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a kind onto the status code the HTTP layer responds with.
func HTTPStatus(kind Kind) int {
	switch kind {
	case Validation, SelfReference, CurrencyMismatch:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden, VerificationRequired, UserInactive:
		return http.StatusForbidden
	case NotFound, PolicyNotConfigured:
		return http.StatusNotFound
	case Conflict, InvalidState, Duplicate:
		return http.StatusConflict
	case Expired:
		return http.StatusGone
	case InsufficientFunds, LimitExceeded, PolicyDisabled:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
