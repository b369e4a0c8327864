package gmail

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthRequired means no valid credential was available or the provider
	// answered 401.
	ErrAuthRequired = errors.New("authentication required")
	// ErrPermissionDenied is a 403 from the provider.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrRateLimited is a 429 from the provider.
	ErrRateLimited = errors.New("rate limited")
	// ErrServiceUnavailable covers 500/502/503 and network failures.
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrProtocol means a successful response had a body that was not JSON.
	ErrProtocol = errors.New("unexpected response format")
	// ErrRequestFailed covers every other non-2xx status.
	ErrRequestFailed = errors.New("request failed")
	// ErrNothingToDelete means a delete matched no messages.
	ErrNothingToDelete = errors.New("nothing to delete")
)

// RequestError describes a failed provider call. It unwraps to one of the
// sentinel kinds above.
type RequestError struct {
	Kind     error
	Status   int
	Endpoint string
	Message  string
}

func (e *RequestError) Error() string {
	switch {
	case e.Message != "" && e.Status != 0:
		return fmt.Sprintf("gmail %s: %v (%d): %s", e.Endpoint, e.Kind, e.Status, e.Message)
	case e.Message != "":
		return fmt.Sprintf("gmail %s: %v: %s", e.Endpoint, e.Kind, e.Message)
	case e.Status != 0:
		return fmt.Sprintf("gmail %s: %v (%d)", e.Endpoint, e.Kind, e.Status)
	default:
		return fmt.Sprintf("gmail %s: %v", e.Endpoint, e.Kind)
	}
}

func (e *RequestError) Unwrap() error { return e.Kind }

// Retryable reports whether err is worth another attempt after a wait.
func Retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrServiceUnavailable)
}
