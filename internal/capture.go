package internal

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"
)

const (
	// transcriptAPIPattern matches the internal endpoint the transcript
	// panel calls when it opens.
	transcriptAPIPattern = "/youtubei/v1/get_transcript"

	domPollInterval = 500 * time.Millisecond
)

// domSegmentSelectors are tried in order when no transcript response was
// intercepted. Markup drifts, so several generations are kept.
var domSegmentSelectors = []string{
	"ytd-transcript-segment-renderer .segment-text",
	"ytd-transcript-segment-renderer yt-formatted-string",
	"#segments-container yt-formatted-string",
}

// transcriptTriggerSelectors open the transcript panel. Best effort: the
// panel sometimes opens from the description, sometimes from the overflow
// menu, and an already-open panel makes every click a no-op.
var transcriptTriggerSelectors = []string{
	"tp-yt-paper-button#expand",
	`button[aria-label="Show transcript"]`,
	"ytd-video-description-transcript-section-renderer button",
}

// BrowserStrategy drives a real browser against the watch page and captures
// the transcript either off the wire or out of the rendered panel.
type BrowserStrategy struct {
	cfg        *Config
	log        zerolog.Logger
	proxies    *ProxyManager
	identities *Identities
	retry      RetryConfig

	// start is swapped in tests that never touch a real browser.
	start func() (*browserRunner, error)
}

// NewBrowserStrategy wires the browser capture strategy.
func NewBrowserStrategy(cfg *Config, log zerolog.Logger, proxies *ProxyManager, identities *Identities) *BrowserStrategy {
	return &BrowserStrategy{
		cfg:        cfg,
		log:        log,
		proxies:    proxies,
		identities: identities,
		retry: DefaultRetryConfig,
		start: startBrowser,
	}
}

func (s *BrowserStrategy) Source() Source { return SourceBrowser }

func (s *BrowserStrategy) Enabled() bool { return s.cfg.BrowserEnabled }

// browserAttempt is one cell of the identity/routing matrix.
type browserAttempt struct {
	mobile   bool
	useProxy bool
}

// attemptPlan orders the attempts cheapest first: direct before proxied,
// desktop before mobile. Forcing the proxy drops the direct cells.
func attemptPlan(proxyUsable, forceProxy bool) []browserAttempt {
	var plan []browserAttempt
	for _, mobile := range []bool{false, true} {
		if !forceProxy {
			plan = append(plan, browserAttempt{mobile: mobile})
		}
		if proxyUsable {
			plan = append(plan, browserAttempt{mobile: mobile, useProxy: true})
		}
	}
	return plan
}

// proxyReady decides whether proxied attempts should be planned at all: the
// secret must be complete and the preflight probe must pass. A proxy that
// fails its preflight is dropped from the plan unless the caller forces
// proxying, which then fails outright instead of burning attempts.
func proxyReady(ctx context.Context, proxies *ProxyManager, forceProxy bool, log zerolog.Logger) (bool, error) {
	if !proxies.IsUsable() {
		if forceProxy {
			return false, failf(ReasonConfig, "proxy required but no proxy configured")
		}
		return false, nil
	}
	if !proxies.Reachable(ctx) {
		if forceProxy {
			return false, failf(ReasonNetwork, "proxy required but preflight probe failed")
		}
		log.Warn().Msg("proxy preflight failed, planning direct attempts only")
		return false, nil
	}
	return true, nil
}

func (s *BrowserStrategy) Fetch(ctx context.Context, req *TranscriptRequest) (string, error) {
	forceProxy := req.ForceProxy || s.cfg.ForceProxy
	proxyUsable, err := proxyReady(ctx, s.proxies, forceProxy, s.log)
	if err != nil {
		return "", err
	}

	runner, err := s.start()
	if err != nil {
		return "", failf(ReasonConfig, "browser unavailable: %v", err)
	}
	defer runner.Close()

	var lastErr error
	for _, attempt := range attemptPlan(proxyUsable, forceProxy) {
		text, err := Retry(ctx, s.retry, func() (string, error) {
			return s.tryOnce(ctx, runner, req, attempt)
		})
		if err == nil && strings.TrimSpace(text) != "" {
			return text, nil
		}
		if err != nil {
			s.log.Debug().
				Str("video_id", req.VideoID).
				Bool("mobile", attempt.mobile).
				Bool("proxy", attempt.useProxy).
				Err(err).
				Msg("browser attempt failed")
			lastErr = err
		}
		if ctx.Err() != nil {
			return "", wrapReason(ctx.Err())
		}
	}
	if lastErr == nil {
		lastErr = failf(ReasonEmpty, "no transcript captured")
	}
	return "", s.classifyBrowserErr(lastErr)
}

// tryOnce runs one context's worth of work: navigate, open the panel, and
// race the wire capture against the interception deadline.
func (s *BrowserStrategy) tryOnce(ctx context.Context, runner *browserRunner, req *TranscriptRequest, attempt browserAttempt) (string, error) {
	scope := req.VideoID

	var profile ClientProfile
	if attempt.mobile {
		profile = s.identities.Mobile(scope)
	} else {
		profile = s.identities.Desktop(scope)
	}

	var proxy *BrowserProxy
	if attempt.useProxy {
		proxy = s.proxies.ForBrowser(scope)
	}

	cookies, err := req.Cookies.BrowserCookies()
	if err != nil {
		return "", failf(ReasonConfig, "loading cookies: %v", err)
	}
	browserCtx, err := runner.newContext(contextSpec{
		profile:          profile,
		proxy:            proxy,
		storageStatePath: storageStatePath(s.cfg.StorageStateDir),
		cookies:          cookies,
	})
	if err != nil {
		return "", err
	}
	defer func() { _ = browserCtx.Close() }()

	page, err := browserCtx.NewPage()
	if err != nil {
		return "", err
	}

	// Interception is registered before navigation so an eagerly loading
	// panel cannot slip past it.
	captured := make(chan []byte, 1)
	page.OnResponse(func(resp playwright.Response) {
		if !strings.Contains(resp.URL(), transcriptAPIPattern) {
			return
		}
		body, err := resp.Body()
		if err != nil {
			return
		}
		select {
		case captured <- body:
		default:
		}
	})

	if _, err := page.Goto(WatchURL(req.VideoID), playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(s.cfg.HTTPTimeout.Milliseconds())),
	}); err != nil {
		return "", err
	}

	s.openTranscriptPanel(page)

	select {
	case body := <-captured:
		text, err := parseTranscriptPayload(body)
		if err != nil {
			// The wire payload was unusable; the panel may still have
			// rendered something readable.
			s.log.Debug().Str("video_id", req.VideoID).Err(err).Msg("intercepted payload unusable")
			return s.domFallback(ctx, page)
		}
		return text, nil
	case <-time.After(s.cfg.InterceptTimeout):
		return s.domFallback(ctx, page)
	case <-ctx.Done():
		return "", wrapReason(ctx.Err())
	}
}

// openTranscriptPanel clicks through the selectors that open the panel.
// Every click is best effort; failures only matter if nothing gets captured.
func (s *BrowserStrategy) openTranscriptPanel(page playwright.Page) {
	for _, sel := range transcriptTriggerSelectors {
		loc := page.Locator(sel).First()
		if err := loc.Click(playwright.LocatorClickOptions{
			Timeout: playwright.Float(3000),
		}); err != nil {
			continue
		}
	}
}

// domFallback polls the rendered transcript panel for segment text. Bounded
// by its own wait so a dead panel cannot stall the whole attempt.
func (s *BrowserStrategy) domFallback(ctx context.Context, page playwright.Page) (string, error) {
	deadline := time.Now().Add(s.cfg.DOMFallbackWait)
	for {
		for _, sel := range domSegmentSelectors {
			texts, err := page.Locator(sel).AllInnerTexts()
			if err != nil || len(texts) == 0 {
				continue
			}
			joined := strings.TrimSpace(strings.Join(texts, " "))
			if joined != "" {
				return CleanCaptionText(joined), nil
			}
		}
		if time.Now().After(deadline) {
			return "", failf(ReasonEmpty, "transcript panel never rendered segments")
		}
		select {
		case <-time.After(domPollInterval):
		case <-ctx.Done():
			return "", wrapReason(ctx.Err())
		}
	}
}

// classifyBrowserErr maps engine failures onto the shared taxonomy. Engine
// errors carry prose, not types, so this is substring matching by necessity.
func (s *BrowserStrategy) classifyBrowserErr(err error) error {
	var serr *StrategyError
	if errors.As(err, &serr) {
		return err
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "Timeout") || strings.Contains(msg, "timeout"):
		return &StrategyError{Reason: ReasonTimeout, Err: err}
	case strings.Contains(msg, "net::ERR"):
		return &StrategyError{Reason: ReasonNetwork, Err: err}
	default:
		return &StrategyError{Reason: ReasonBlocked, Err: err}
	}
}

// transcriptPayload is the slice of the get_transcript response the panel
// renders from. Everything else is ignored.
type transcriptPayload struct {
	Actions []struct {
		UpdateEngagementPanelAction struct {
			Content struct {
				TranscriptRenderer struct {
					Content struct {
						TranscriptSearchPanelRenderer struct {
							Body struct {
								TranscriptSegmentListRenderer struct {
									InitialSegments []struct {
										TranscriptSegmentRenderer struct {
											Snippet struct {
												Runs []struct {
													Text string `json:"text"`
												} `json:"runs"`
											} `json:"snippet"`
										} `json:"transcriptSegmentRenderer"`
									} `json:"initialSegments"`
								} `json:"transcriptSegmentListRenderer"`
							} `json:"body"`
						} `json:"transcriptSearchPanelRenderer"`
					} `json:"content"`
				} `json:"transcriptRenderer"`
			} `json:"content"`
		} `json:"updateEngagementPanelAction"`
	} `json:"actions"`
}

// parseTranscriptPayload extracts segment text from the intercepted response.
func parseTranscriptPayload(body []byte) (string, error) {
	var payload transcriptPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", failf(ReasonParse, "decoding transcript payload: %v", err)
	}

	var parts []string
	for _, action := range payload.Actions {
		segments := action.UpdateEngagementPanelAction.Content.TranscriptRenderer.
			Content.TranscriptSearchPanelRenderer.Body.
			TranscriptSegmentListRenderer.InitialSegments
		for _, seg := range segments {
			for _, run := range seg.TranscriptSegmentRenderer.Snippet.Runs {
				if t := strings.TrimSpace(run.Text); t != "" {
					parts = append(parts, t)
				}
			}
		}
	}
	if len(parts) == 0 {
		return "", failf(ReasonParse, "transcript payload held no segments")
	}
	return CleanCaptionText(strings.Join(parts, " ")), nil
}
