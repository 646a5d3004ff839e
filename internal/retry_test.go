package internal

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// fastRetry keeps test wall time negligible while preserving the growth shape.
var fastRetry = RetryConfig{
	MaxAttempts: 3,
	InitialWait: time.Millisecond,
	MaxWait:     50 * time.Millisecond,
	Multiplier:  2.0,
	Jitter:      0,
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	got, err := Retry(context.Background(), fastRetry, func() (string, error) {
		calls++
		if calls < 3 {
			return "", failf(ReasonNetwork, "connection reset")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" || calls != 3 {
		t.Fatalf("got %q after %d calls, want ok after 3", got, calls)
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastRetry, func() (string, error) {
		calls++
		return "", failf(ReasonNotFound, "no captions")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("permanent error retried %d times", calls)
	}
	if ReasonOf(err) != ReasonNotFound {
		t.Fatalf("reason lost through retry: %v", err)
	}
}

func TestRetryExhaustsAttemptBudget(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastRetry, func() (int, error) {
		calls++
		return 0, failf(ReasonTimeout, "deadline exceeded")
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 3 {
		t.Fatalf("got %d attempts, want 3", calls)
	}
}

func TestRetryDelaysIncrease(t *testing.T) {
	var delays []time.Duration
	notify := func(err error, wait time.Duration) {
		delays = append(delays, wait)
	}

	rc := RetryConfig{
		MaxAttempts: 4,
		InitialWait: time.Millisecond,
		MaxWait:     time.Second,
		Multiplier:  2.0,
		Jitter:      0,
	}
	_, _ = retryNotify(context.Background(), rc, func() (int, error) {
		return 0, failf(ReasonNetwork, "still failing")
	}, notify)

	if len(delays) != 3 {
		t.Fatalf("expected 3 waits for 4 attempts, got %d", len(delays))
	}
	for i := 1; i < len(delays); i++ {
		if delays[i] <= delays[i-1] {
			t.Fatalf("waits not increasing: %v", delays)
		}
	}
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Retry(ctx, fastRetry, func() (int, error) {
		calls++
		return 0, failf(ReasonNetwork, "unreachable")
	})
	if err == nil {
		t.Fatal("expected an error from a cancelled context")
	}
	if !errors.Is(err, context.Canceled) && calls > 1 {
		t.Fatalf("cancelled context still retried %d times: %v", calls, err)
	}
}

func TestRetryHTTPRetriesServerErrors(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, "payload")
	}))
	defer srv.Close()

	resp, err := RetryHTTP(context.Background(), fastRetry, func() (*http.Response, error) {
		return http.Get(srv.URL)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if hits != 3 {
		t.Fatalf("server hit %d times, want 3", hits)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "payload" {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestRetryHTTPDoesNotRetryClientErrors(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	resp, err := RetryHTTP(context.Background(), fastRetry, func() (*http.Response, error) {
		return http.Get(srv.URL)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if hits != 1 {
		t.Fatalf("404 retried %d times", hits)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
}
