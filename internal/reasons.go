package internal

import (
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Reason classifies a strategy failure. The string values are part of the
// structured-log contract and must stay stable.
type Reason string

const (
	ReasonNotFound Reason = "not_found"
	ReasonBlocked  Reason = "blocked"
	ReasonTimeout  Reason = "timeout"
	ReasonNetwork  Reason = "transient_network_error"
	ReasonParse    Reason = "parse_error"
	ReasonConfig   Reason = "config_error"
	ReasonEmpty    Reason = "empty_body"
)

// StrategyError is the one error type strategies surface to the resolver.
// The wrapped error is kept for logging; the Reason drives control flow.
type StrategyError struct {
	Reason Reason
	Err    error
}

func (e *StrategyError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *StrategyError) Unwrap() error { return e.Err }

// failf builds a StrategyError with a formatted message.
func failf(reason Reason, format string, args ...any) *StrategyError {
	return &StrategyError{Reason: reason, Err: fmt.Errorf(format, args...)}
}

// ReasonOf extracts the taxonomy value from err, classifying raw network
// errors when no StrategyError is present.
func ReasonOf(err error) Reason {
	var se *StrategyError
	if errors.As(err, &se) {
		return se.Reason
	}
	return classify(err)
}

// classify maps raw errors onto the taxonomy.
func classify(err error) Reason {
	if err == nil {
		return ReasonNotFound
	}

	var httpErr *httpStatusError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusTooManyRequests, http.StatusForbidden:
			return ReasonBlocked
		case http.StatusNotFound:
			return ReasonNotFound
		}
		return ReasonNetwork
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ReasonNetwork
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ReasonNetwork
	}

	return ReasonNetwork
}

// wrapReason lifts a raw error into a StrategyError carrying its classified
// reason. Errors that already carry one pass through unchanged.
func wrapReason(err error) error {
	var se *StrategyError
	if errors.As(err, &se) {
		return err
	}
	return &StrategyError{Reason: classify(err), Err: err}
}

// retryable reports whether an error is worth another attempt. Permanent
// conditions (no captions, bad config, unparseable payloads) are not.
func retryable(err error) bool {
	switch ReasonOf(err) {
	case ReasonTimeout, ReasonNetwork, ReasonBlocked, ReasonEmpty:
		return true
	}
	return false
}

// breakerRelevant reports whether a browser-strategy failure should count
// against the circuit breaker. Only timeout/blocking signals open it.
func breakerRelevant(reason Reason) bool {
	return reason == ReasonTimeout || reason == ReasonBlocked
}

// skipError marks an attempt a strategy declined to make at all, as opposed
// to one it made and lost. The resolver logs these as skips, and they never
// count against the circuit breaker.
type skipError struct {
	reason string
}

func (e *skipError) Error() string { return e.reason }

func skipf(format string, args ...any) error {
	return &skipError{reason: fmt.Sprintf(format, args...)}
}

// httpStatusError wraps a non-success HTTP status so classify can map it.
type httpStatusError struct {
	StatusCode int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("HTTP %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// retryableStatus mirrors the set of statuses worth retrying on.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
