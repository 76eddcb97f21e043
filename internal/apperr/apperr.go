// Package apperr classifies ledger failures into a small closed set of kinds
// that callers can branch on and the HTTP layer can map to status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindNotFound              Kind = "not_found"
	KindInsufficientFunds     Kind = "insufficient_funds"
	KindInsufficientInventory Kind = "insufficient_inventory"
	KindInsufficientBudget    Kind = "insufficient_budget"
	KindAlreadyRedeemed       Kind = "already_redeemed"
	KindExpired               Kind = "expired"
	KindUnauthorized          Kind = "unauthorized"
	KindValidation            Kind = "validation"
	KindInternal              Kind = "internal"
)

// Sentinels for errors.Is matching. Any *Error with the same Kind matches.
var (
	ErrNotFound              = &Error{Kind: KindNotFound, Message: "not found"}
	ErrInsufficientFunds     = &Error{Kind: KindInsufficientFunds, Message: "insufficient coins"}
	ErrInsufficientInventory = &Error{Kind: KindInsufficientInventory, Message: "insufficient voucher quantity"}
	ErrInsufficientBudget    = &Error{Kind: KindInsufficientBudget, Message: "insufficient campaign budget"}
	ErrAlreadyRedeemed       = &Error{Kind: KindAlreadyRedeemed, Message: "code has already been redeemed"}
	ErrExpired               = &Error{Kind: KindExpired, Message: "code has expired"}
	ErrUnauthorized          = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
	ErrValidation            = &Error{Kind: KindValidation, Message: "invalid request"}
)

// Error is a classified failure with a message safe to show to the caller.
type Error struct {
	Kind    Kind
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

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind, keeping it for errors.As/Unwrap.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

func Unauthorized(format string, args ...any) *Error {
	return New(KindUnauthorized, format, args...)
}

func InsufficientFunds(format string, args ...any) *Error {
	return New(KindInsufficientFunds, format, args...)
}

func InsufficientInventory(format string, args ...any) *Error {
	return New(KindInsufficientInventory, format, args...)
}

func InsufficientBudget(format string, args ...any) *Error {
	return New(KindInsufficientBudget, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the caller-facing message. Unclassified errors never leak
// their text.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}

// HTTPStatus maps a kind to the response status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindInsufficientFunds, KindInsufficientInventory, KindInsufficientBudget,
		KindAlreadyRedeemed, KindExpired:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
