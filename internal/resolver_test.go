package internal

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testVideoID = "dQw4w9WgXcQ"

type stubStrategy struct {
	source  Source
	enabled bool
	text    string
	err     error
	calls   int
}

func (s *stubStrategy) Source() Source { return s.source }
func (s *stubStrategy) Enabled() bool  { return s.enabled }

func (s *stubStrategy) Fetch(ctx context.Context, req *TranscriptRequest) (string, error) {
	s.calls++
	return s.text, s.err
}

func testResolver(t *testing.T, options ...ResolverOption) *Resolver {
	t.Helper()
	cfg := &Config{BreakerThreshold: 3, BreakerCooldown: 10 * time.Minute}
	return NewResolver(cfg, zerolog.Nop(), nil, &DefaultCommandRunner{}, options...)
}

func TestResolveRejectsInvalidVideoID(t *testing.T) {
	r := testResolver(t, WithStrategies())
	_, err := r.Resolve(context.Background(), &TranscriptRequest{VideoID: "nope"})
	require.Error(t, err)
}

func TestResolveFirstNonEmptyWins(t *testing.T) {
	first := &stubStrategy{source: SourceCaptionsAPI, enabled: true, err: failf(ReasonNotFound, "no captions")}
	second := &stubStrategy{source: SourceTimedText, enabled: true, text: "hello from the endpoint"}
	third := &stubStrategy{source: SourceBrowser, enabled: true, text: "should never run"}

	r := testResolver(t, WithStrategies(first, second, third))
	result, err := r.Resolve(context.Background(), &TranscriptRequest{VideoID: testVideoID})
	require.NoError(t, err)

	assert.Equal(t, "hello from the endpoint", result.Text)
	assert.Equal(t, SourceTimedText, result.Source)
	assert.True(t, result.Found())
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.Equal(t, 0, third.calls, "later strategies must not run after a win")
}

func TestResolveSkipsDisabledStrategies(t *testing.T) {
	disabled := &stubStrategy{source: SourceAudioASR, enabled: false, text: "never"}
	working := &stubStrategy{source: SourceTimedText, enabled: true, text: "transcript"}

	r := testResolver(t, WithStrategies(disabled, working))
	result, err := r.Resolve(context.Background(), &TranscriptRequest{VideoID: testVideoID})
	require.NoError(t, err)

	assert.Equal(t, 0, disabled.calls)
	assert.Equal(t, SourceTimedText, result.Source)
}

func TestResolveExhaustedIsNotAnError(t *testing.T) {
	failing := &stubStrategy{source: SourceCaptionsAPI, enabled: true, err: failf(ReasonNotFound, "nothing")}

	r := testResolver(t, WithStrategies(failing))
	result, err := r.Resolve(context.Background(), &TranscriptRequest{VideoID: testVideoID})
	require.NoError(t, err)

	assert.Equal(t, SourceNone, result.Source)
	assert.False(t, result.Found())
}

func TestResolveTreatsBlankTextAsFailure(t *testing.T) {
	blank := &stubStrategy{source: SourceCaptionsAPI, enabled: true, text: "   \n  "}
	next := &stubStrategy{source: SourceTimedText, enabled: true, text: "real text"}

	r := testResolver(t, WithStrategies(blank, next))
	result, err := r.Resolve(context.Background(), &TranscriptRequest{VideoID: testVideoID})
	require.NoError(t, err)

	assert.Equal(t, SourceTimedText, result.Source)
}

func TestResolveSkipReasonContinuesChain(t *testing.T) {
	skipped := &stubStrategy{source: SourceAudioASR, enabled: true, err: skipf("video runs 45m, past the 30m transcription cap")}

	r := testResolver(t, WithStrategies(skipped))
	result, err := r.Resolve(context.Background(), &TranscriptRequest{VideoID: testVideoID})
	require.NoError(t, err)
	assert.Equal(t, SourceNone, result.Source)
	assert.Equal(t, 1, skipped.calls)
}

func TestResolveOpensBreakerOnRepeatedBrowserTimeouts(t *testing.T) {
	browser := &stubStrategy{source: SourceBrowser, enabled: true, err: failf(ReasonTimeout, "page load timed out")}
	cb := NewCircuitBreaker(3, 10*time.Minute, zerolog.Nop())

	r := testResolver(t, WithStrategies(browser), WithBreaker(cb))
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := r.Resolve(ctx, &TranscriptRequest{VideoID: testVideoID})
		require.NoError(t, err)
	}
	require.True(t, cb.IsOpen(), "breaker should open at the failure threshold")

	// With the breaker open the browser strategy is skipped entirely.
	before := browser.calls
	_, err := r.Resolve(ctx, &TranscriptRequest{VideoID: testVideoID})
	require.NoError(t, err)
	assert.Equal(t, before, browser.calls, "open breaker must suppress browser attempts")
}

func TestResolveBreakerIgnoresNonRelevantFailures(t *testing.T) {
	browser := &stubStrategy{source: SourceBrowser, enabled: true, err: failf(ReasonParse, "unexpected payload shape")}
	cb := NewCircuitBreaker(3, 10*time.Minute, zerolog.Nop())

	r := testResolver(t, WithStrategies(browser), WithBreaker(cb))
	for i := 0; i < 5; i++ {
		_, err := r.Resolve(context.Background(), &TranscriptRequest{VideoID: testVideoID})
		require.NoError(t, err)
	}
	assert.False(t, cb.IsOpen(), "parse failures must not trip the breaker")
	assert.Zero(t, cb.Status().Failures)
}

func TestResolveBrowserSuccessResetsBreaker(t *testing.T) {
	cb := NewCircuitBreaker(3, 10*time.Minute, zerolog.Nop())
	cb.RecordFailure()
	cb.RecordFailure()

	browser := &stubStrategy{source: SourceBrowser, enabled: true, text: "captured transcript"}
	r := testResolver(t, WithStrategies(browser), WithBreaker(cb))

	result, err := r.Resolve(context.Background(), &TranscriptRequest{VideoID: testVideoID})
	require.NoError(t, err)
	assert.Equal(t, SourceBrowser, result.Source)
	assert.Zero(t, cb.Status().Failures)
}

func TestResolveHonorsContextCancellation(t *testing.T) {
	strategy := &stubStrategy{source: SourceCaptionsAPI, enabled: true, text: "text"}
	r := testResolver(t, WithStrategies(strategy))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Resolve(ctx, &TranscriptRequest{VideoID: testVideoID})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, strategy.calls)
}

func TestResolveReleasesScope(t *testing.T) {
	proxies := NewProxyManager(testSecret(), time.Minute, zerolog.Nop())
	cfg := &Config{BreakerThreshold: 3, BreakerCooldown: 10 * time.Minute}
	strategy := &stubStrategy{source: SourceTimedText, enabled: true, text: "text"}
	r := NewResolver(cfg, zerolog.Nop(), proxies, &DefaultCommandRunner{}, WithStrategies(strategy))

	before := proxies.Session(testVideoID)
	_, err := r.Resolve(context.Background(), &TranscriptRequest{VideoID: testVideoID})
	require.NoError(t, err)
	assert.NotEqual(t, before, proxies.Session(testVideoID), "sticky session must be released after resolve")
}
