package integrations

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUpstreamUnavailable covers network errors, timeouts and non-2xx answers.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrMalformedPayload means the provider answered 2xx with a body we cannot use.
	ErrMalformedPayload = errors.New("malformed upstream payload")
)

// HTTPError is returned for non-2xx responses. It unwraps to ErrUpstreamUnavailable.
type HTTPError struct {
	Provider   string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s http %d", e.Provider, e.StatusCode)
}

func (e *HTTPError) Unwrap() error { return ErrUpstreamUnavailable }

// Retryable reports whether repeating the request may help: throttling and server errors.
func (e *HTTPError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Unavailable wraps a transport-level error so that errors.Is(err, ErrUpstreamUnavailable) holds.
func Unavailable(provider string, err error) error {
	return fmt.Errorf("%s: %w: %w", provider, ErrUpstreamUnavailable, err)
}

// Malformed wraps a decoding/shape error so that errors.Is(err, ErrMalformedPayload) holds.
func Malformed(provider, reason string) error {
	return fmt.Errorf("%s: %w: %s", provider, ErrMalformedPayload, reason)
}

// IsRetryable is true for transport failures and retryable HTTP codes, false for malformed payloads.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrMalformedPayload) {
		return false
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Retryable()
	}
	return errors.Is(err, ErrUpstreamUnavailable)
}
