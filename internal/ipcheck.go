package internal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const defaultEchoURL = "https://api.ipify.org"

// IPChecker verifies that proxied traffic actually leaves through a
// different address than direct traffic. A misconfigured proxy that routes
// nothing is worse than no proxy: it burns the residential session while
// exposing the real address.
type IPChecker struct {
	log     zerolog.Logger
	echoURL string
	retry   RetryConfig
	direct  *http.Client
	proxied func(proxyURL string) *http.Client
}

// NewIPChecker builds a checker against the default echo service.
func NewIPChecker(log zerolog.Logger) *IPChecker {
	return &IPChecker{
		log:     log,
		echoURL: defaultEchoURL,
		retry: RetryConfig{
			MaxAttempts: 2,
			InitialWait: 500 * time.Millisecond,
			MaxWait:     2 * time.Second,
			Multiplier:  2.0,
			Jitter:      0.2,
		},
		direct:  &http.Client{Timeout: 10 * time.Second},
		proxied: proxiedClient,
	}
}

// VerifyRotation returns true when the proxied egress address differs from
// the direct one. An unreachable echo service is reported as an error, not
// as a verdict.
func (c *IPChecker) VerifyRotation(ctx context.Context, proxyURL string) (bool, error) {
	directIP, err := c.fetchIP(ctx, c.direct)
	if err != nil {
		return false, fmt.Errorf("resolving direct egress address: %w", err)
	}

	proxiedIP, err := c.fetchIP(ctx, c.proxied(proxyURL))
	if err != nil {
		return false, fmt.Errorf("resolving proxied egress address: %w", err)
	}

	rotated := directIP != proxiedIP
	c.log.Debug().
		Str("direct_ip", directIP).
		Str("proxied_ip", proxiedIP).
		Bool("rotated", rotated).
		Msg("egress address check")
	return rotated, nil
}

func (c *IPChecker) fetchIP(ctx context.Context, client *http.Client) (string, error) {
	resp, err := RetryHTTP(ctx, c.retry, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.echoURL, nil)
		if err != nil {
			return nil, err
		}
		return client.Do(req)
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &httpStatusError{StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return "", err
	}
	ip := strings.TrimSpace(string(body))
	if ip == "" {
		return "", fmt.Errorf("echo service returned empty body")
	}
	return ip, nil
}
