package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Provider-level error classes. Every error leaving an adapter is
// wrapped in *Error and matches exactly one of these sentinels.
var (
	ErrTimeout     = errors.New("provider timeout")
	ErrRateLimited = errors.New("provider rate limited")
	ErrAuthFailed  = errors.New("provider auth failed")
	ErrUnavailable = errors.New("provider unavailable")
	ErrBadRequest  = errors.New("provider rejected request")
)

// Error annotates an adapter failure with the provider name and its
// classified error class.
type Error struct {
	Provider string
	Class    error
	Cause    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Provider, e.Class, e.Cause)
}

func (e *Error) Unwrap() []error { return []error{e.Class, e.Cause} }

// Retryable reports whether the failover controller may retry the same
// provider after this error. Auth failures and malformed requests will
// not improve on retry; the controller advances to the next provider.
func Retryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable)
}

// Classify wraps a raw adapter error into *Error with the matching
// error class. HTTP status codes map the usual way: 429 is rate
// limiting, 401/403 auth, 5xx unavailable, other 4xx a bad request.
func Classify(providerName string, err error) error {
	if err == nil {
		return nil
	}
	var alreadyClassified *Error
	if errors.As(err, &alreadyClassified) {
		return err
	}
	class := ErrUnavailable
	var httpErr *HTTPError
	var netErr net.Error
	switch {
	case errors.As(err, &httpErr):
		switch {
		case httpErr.StatusCode == 429:
			class = ErrRateLimited
		case httpErr.StatusCode == 401 || httpErr.StatusCode == 403:
			class = ErrAuthFailed
		case httpErr.StatusCode >= 500:
			class = ErrUnavailable
		default:
			class = ErrBadRequest
		}
	case errors.Is(err, context.DeadlineExceeded):
		class = ErrTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		class = ErrTimeout
	}
	return &Error{Provider: providerName, Class: class, Cause: err}
}
