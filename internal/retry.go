package internal

import (
	"context"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig parameterizes the shared retry-with-backoff utility. Every
// strategy that retries goes through this one implementation.
type RetryConfig struct {
	MaxAttempts uint64 // total tries, including the first
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
	Jitter      float64 // randomization factor, 0..1
}

// DefaultRetryConfig matches the browser-strategy policy: three tries,
// 1s base, 10s cap, jittered exponential growth.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts: 3,
	InitialWait: time.Second,
	MaxWait:     10 * time.Second,
	Multiplier:  2.0,
	Jitter:      0.2,
}

// Retry runs fn with exponential backoff until it succeeds, a non-retryable
// error occurs, the attempt budget is spent, or ctx is done.
func Retry[T any](ctx context.Context, rc RetryConfig, fn func() (T, error)) (T, error) {
	return retryNotify(ctx, rc, fn, nil)
}

// retryNotify is Retry with a per-wait callback, used by tests to observe
// the backoff schedule.
func retryNotify[T any](ctx context.Context, rc RetryConfig, fn func() (T, error), notify backoff.Notify) (T, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = rc.InitialWait
	bo.MaxInterval = rc.MaxWait
	bo.Multiplier = rc.Multiplier
	bo.RandomizationFactor = rc.Jitter
	bo.MaxElapsedTime = 0 // bounded by attempt count, not wall clock

	op := func() (T, error) {
		v, err := fn()
		if err != nil && !retryable(err) {
			var zero T
			return zero, backoff.Permanent(err)
		}
		return v, err
	}

	attempts := rc.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}
	b := backoff.WithContext(backoff.WithMaxRetries(bo, attempts-1), ctx)
	return backoff.RetryNotifyWithData(op, b, notify)
}

// RetryHTTP executes an HTTP request function under Retry, converting
// retryable status codes (429, 5xx) into errors so they re-enter the loop.
func RetryHTTP(ctx context.Context, rc RetryConfig, fn func() (*http.Response, error)) (*http.Response, error) {
	return Retry(ctx, rc, func() (*http.Response, error) {
		resp, err := fn()
		if err != nil {
			return nil, err
		}
		if retryableStatus(resp.StatusCode) {
			resp.Body.Close()
			return nil, &httpStatusError{StatusCode: resp.StatusCode}
		}
		return resp, nil
	})
}
