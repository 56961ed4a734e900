package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrEmailTaken         = errors.New("user already registered")
	ErrUnavailableProduct = errors.New("product unavailable")
)

// RemoteError marks a failed call against the data or auth backend. The
// underlying cause is not classified further.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Remote wraps err as a RemoteError. It returns nil for a nil err.
func Remote(op string, err error) error {
	if err == nil {
		return nil
	}
	return &RemoteError{Op: op, Err: err}
}

type Reason string

const (
	ReasonUnauthenticated     Reason = "unauthenticated"
	ReasonEmptyCart           Reason = "empty_cart"
	ReasonRemoteRequestFailed Reason = "remote_request_failed"
	ReasonUnavailableProduct  Reason = "unavailable_product"
	ReasonUnexpected          Reason = "unexpected_error"
)

func ReasonFor(err error) Reason {
	var remote *RemoteError
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return ReasonUnauthenticated
	case errors.Is(err, ErrEmptyCart):
		return ReasonEmptyCart
	case errors.Is(err, ErrUnavailableProduct):
		return ReasonUnavailableProduct
	case errors.As(err, &remote):
		return ReasonRemoteRequestFailed
	default:
		return ReasonUnexpected
	}
}

// Result is the outcome shape every user-facing operation reports.
type Result struct {
	Success bool   `json:"success"`
	Reason  Reason `json:"reason,omitempty"`
	Error   string `json:"error,omitempty"`
}

func OK() Result {
	return Result{Success: true}
}

func Fail(err error) Result {
	return Result{Reason: ReasonFor(err), Error: err.Error()}
}

// FailWith reports err's reason with a caller-chosen message.
func FailWith(err error, message string) Result {
	return Result{Reason: ReasonFor(err), Error: message}
}
