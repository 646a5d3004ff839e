package internal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Strategy is one way of obtaining a transcript. Strategies are tried in
// the order the resolver holds them; the first non-empty result wins.
type Strategy interface {
	Source() Source
	Enabled() bool
	Fetch(ctx context.Context, req *TranscriptRequest) (string, error)
}

// Resolver runs the acquisition pipeline: captions library, then the caption
// endpoint, then a real browser, then audio extraction. Cheap and unlikely to
// attract attention comes first; expensive and conspicuous comes last.
type Resolver struct {
	cfg        *Config
	log        zerolog.Logger
	proxies    *ProxyManager
	identities *Identities
	breaker    *CircuitBreaker
	strategies []Strategy
}

// ResolverOption configures the resolver.
type ResolverOption func(*Resolver)

// WithStrategies replaces the default strategy chain.
func WithStrategies(strategies ...Strategy) ResolverOption {
	return func(r *Resolver) { r.strategies = strategies }
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(cb *CircuitBreaker) ResolverOption {
	return func(r *Resolver) { r.breaker = cb }
}

// NewResolver assembles the pipeline from configuration.
func NewResolver(cfg *Config, log zerolog.Logger, proxies *ProxyManager, cmdRunner CommandRunner, options ...ResolverOption) *Resolver {
	identities := NewIdentities()
	r := &Resolver{
		cfg:        cfg,
		log:        log,
		proxies:    proxies,
		identities: identities,
		breaker:    NewCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown, log),
	}
	r.strategies = []Strategy{
		NewCaptionsAPIStrategy(cfg, log),
		NewTimedTextStrategy(cfg, proxies, log),
		NewBrowserStrategy(cfg, log, proxies, identities),
		NewAudioASRStrategy(cfg, log, proxies, identities, cmdRunner),
	}
	for _, option := range options {
		option(r)
	}
	return r
}

// Resolve walks the strategy chain for one video. Exhausting every strategy
// is a result, not an error: the caller gets an empty-source result and
// decides what that means for it.
func (r *Resolver) Resolve(ctx context.Context, req *TranscriptRequest) (*TranscriptResult, error) {
	if !IsValidYouTubeID(req.VideoID) {
		return nil, fmt.Errorf("invalid video ID %q", req.VideoID)
	}
	metrics.ResolveCalls.Add(1)
	attempts := newAttemptLogger(r.log, req.VideoID)
	defer r.releaseScope(req.VideoID)

	for _, strategy := range r.strategies {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !strategy.Enabled() {
			attempts.Disabled(strategy.Source())
			continue
		}
		if strategy.Source() == SourceBrowser && r.breaker.IsOpen() {
			attempts.Skipped(SourceBrowser, "circuit_open")
			metrics.BrowserSkips.Add(1)
			continue
		}

		incrAttempt(strategy.Source())
		start := time.Now()
		text, err := strategy.Fetch(ctx, req)
		elapsed := time.Since(start)

		if err == nil && strings.TrimSpace(text) != "" {
			attempts.Success(strategy.Source(), elapsed)
			incrSuccess(strategy.Source())
			if strategy.Source() == SourceBrowser {
				r.breaker.RecordSuccess()
			}
			return &TranscriptResult{Text: text, Source: strategy.Source(), Elapsed: elapsed}, nil
		}

		var skip *skipError
		if errors.As(err, &skip) {
			attempts.Skipped(strategy.Source(), skip.reason)
			continue
		}
		if err == nil {
			err = failf(ReasonEmpty, "strategy returned an empty transcript")
		}
		reason := ReasonOf(err)
		attempts.Failure(strategy.Source(), elapsed, reason, err)
		if strategy.Source() == SourceBrowser && breakerRelevant(reason) {
			r.breaker.RecordFailure()
		}
	}

	metrics.ResolveEmpty.Add(1)
	return &TranscriptResult{Source: SourceNone}, nil
}

// releaseScope drops the sticky session and identity bound to one video once
// its resolve call finishes, so the next video negotiates fresh ones.
func (r *Resolver) releaseScope(scope string) {
	if r.proxies != nil {
		r.proxies.EndSession(scope)
	}
	if r.identities != nil {
		r.identities.Forget(scope)
	}
}

// BreakerStatus exposes the breaker snapshot for health reporting.
func (r *Resolver) BreakerStatus() BreakerStatus {
	return r.breaker.Status()
}
