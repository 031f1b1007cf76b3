package providers

import (
	"context"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// HTTPError is returned when the provider's HTTP endpoint answers with a
// non-200 status. RetryAfter is parsed from the response header, if present.
type HTTPError struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return e.Body
}

// ParseRetryAfter parses an HTTP Retry-After header value expressed in
// seconds. A missing or malformed header yields 0 (no minimum delay).
func ParseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// RetryConfig bounds how many times a transient failure is retried.
type RetryConfig struct {
	MaxAttempts uint
	BaseDelay   time.Duration
}

// DefaultRetryConfig matches the teacher's three-attempt, one-second-base
// exponential backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: time.Second}
}

// isTransient reports whether err is a retryable HTTP error (429 or 503).
func isTransient(err error) (bool, time.Duration) {
	httpErr, ok := err.(*HTTPError)
	if !ok {
		return false, 0
	}
	return httpErr.Status == 429 || httpErr.Status == 503, httpErr.RetryAfter
}

// RetryDo runs fn, retrying transient HTTP failures with exponential
// backoff; the server's Retry-After header, when present, floors the delay
// before the next attempt. Non-transient errors return immediately.
func RetryDo[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.BaseDelay

	return backoff.Retry(ctx, func() (T, error) {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		transient, retryAfter := isTransient(err)
		if !transient {
			return result, backoff.Permanent(err)
		}
		if retryAfter > 0 {
			time.Sleep(retryAfter)
		}
		return result, err
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(cfg.MaxAttempts))
}
