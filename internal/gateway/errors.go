package gateway

import (
	"errors"
	"fmt"
)

// Failure kinds reported by Generate. Callers match them with errors.Is.
var (
	ErrUnauthorized    = errors.New("gateway credential missing or rejected")
	ErrRateLimited     = errors.New("rate limits exceeded")
	ErrPaymentRequired = errors.New("payment required")
	ErrGateway         = errors.New("gateway error")
	ErrTransport       = errors.New("gateway transport error")
)

// Error carries the failure kind together with the upstream status (zero
// when no response was received) and the underlying cause.
type Error struct {
	Kind       error
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%v (status %d): %v", e.Kind, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%v (status %d)", e.Kind, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	default:
		return e.Kind.Error()
	}
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func fail(kind error, status int, cause error) error {
	return &Error{Kind: kind, StatusCode: status, Err: cause}
}

// kindForStatus maps a non-2xx upstream status to a failure kind.
func kindForStatus(code int) error {
	switch code {
	case 401, 403:
		return ErrUnauthorized
	case 402:
		return ErrPaymentRequired
	case 429:
		return ErrRateLimited
	default:
		return ErrGateway
	}
}
