// Package apierr classifies failures of remote services (object storage,
// REST endpoints, the caption API) into shared sentinels and retries the
// transient ones.
//
// Adapters map status codes with FromStatus or wrap a sentinel directly
// with fmt.Errorf("%s: %w", msg, sentinel). Callers check with errors.Is.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for remote service failures.
var (
	// ErrRateLimit indicates the service throttled the request (retryable).
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrQuotaExceeded indicates a billing or storage quota was hit (not retryable).
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrTimeout indicates a request timed out (retryable).
	ErrTimeout = errors.New("request timeout")

	// ErrAuthFailed indicates credentials were missing or rejected.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrBadRequest indicates a client error (4xx) that is not otherwise classified.
	ErrBadRequest = errors.New("bad request")

	// ErrServer indicates a server-side failure (5xx, retryable).
	ErrServer = errors.New("server error")
)

// FromStatus maps an HTTP status code to a wrapped sentinel. It returns
// nil for 2xx and 3xx codes.
func FromStatus(status int, body string) error {
	if status < 400 {
		return nil
	}
	msg := fmt.Sprintf("status %d", status)
	if body != "" {
		msg = fmt.Sprintf("%s: %s", msg, truncate(body, 200))
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%s: %w", msg, ErrAuthFailed)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w", msg, ErrRateLimit)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return fmt.Errorf("%s: %w", msg, ErrTimeout)
	case status == http.StatusPaymentRequired || status == http.StatusInsufficientStorage:
		return fmt.Errorf("%s: %w", msg, ErrQuotaExceeded)
	case status >= 500:
		return fmt.Errorf("%s: %w", msg, ErrServer)
	default:
		return fmt.Errorf("%s: %w", msg, ErrBadRequest)
	}
}

// Retryable reports whether err is a transient failure worth retrying.
func Retryable(err error) bool {
	return errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrServer)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
