package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// backoffBase is the first retry delay; it doubles per attempt.
var backoffBase = time.Second

type rateLimitError struct {
	provider string
}

func (e *rateLimitError) Error() string { return e.provider + ": rate limited" }

type authError struct {
	provider string
	message  string
}

func (e *authError) Error() string {
	return e.provider + ": authentication error: " + e.message
}

type serverError struct {
	provider   string
	statusCode int
	body       string
}

func (e *serverError) Error() string {
	return fmt.Sprintf("%s: server error (status %d): %s", e.provider, e.statusCode, e.body)
}

// ErrMissingKey is returned when a backend that needs an API key has none.
var ErrMissingKey = errors.New("API key is not configured")

// IsAuthError reports whether err is a backend authentication failure,
// including a missing API key.
func IsAuthError(err error) bool {
	var ae *authError
	return errors.As(err, &ae) || errors.Is(err, ErrMissingKey)
}

func isRetryable(err error) bool {
	var rl *rateLimitError
	var se *serverError
	return errors.As(err, &rl) || errors.As(err, &se)
}

// statusError classifies a non-200 HTTP response.
func statusError(provider string, code int, body []byte) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusTooManyRequests:
		return &rateLimitError{provider: provider}
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return &authError{provider: provider, message: string(body)}
	case code >= 500:
		return &serverError{provider: provider, statusCode: code, body: string(body)}
	default:
		return fmt.Errorf("%s: API error (status %d): %s", provider, code, string(body))
	}
}

func retryWithBackoff(ctx context.Context, maxRetries int, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil || !isRetryable(lastErr) {
			return lastErr
		}
		if attempt < maxRetries {
			backoff := backoffBase << uint(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return lastErr
}
