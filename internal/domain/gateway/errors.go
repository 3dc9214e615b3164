package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrUnavailable means the gateway could not be reached after every
	// allowed attempt.
	ErrUnavailable = errors.New("gateway: service unavailable")

	// ErrMalformedResponse means the body was not the expected JSON envelope.
	ErrMalformedResponse = errors.New("gateway: malformed response")

	// ErrResponseTooLarge means the body exceeded the reply size limit.
	ErrResponseTooLarge = errors.New("gateway: response too large")
)

// StatusError is a well-formed reply whose status is not "success".
type StatusError struct {
	Action  string
	Status  string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gateway %s: %s: %s", e.Action, e.Status, e.Message)
	}
	return fmt.Sprintf("gateway %s: %s", e.Action, e.Status)
}

// HTTPError is a non-2xx response.
type HTTPError struct {
	Action     string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("gateway %s: http status %d", e.Action, e.StatusCode)
}

// Retryable is true for transport failures, timeouts and 5xx responses.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var transportErr *transportError
	return errors.As(err, &transportErr)
}

// transportError wraps failures before any response was read.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }
