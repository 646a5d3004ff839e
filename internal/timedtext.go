package internal

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Caption-delivery hosts, tried in order. The mirror answers the same query
// shape as the primary endpoint.
var timedTextHosts = []string{
	"https://www.youtube.com/api/timedtext",
	"https://video.google.com/timedtext",
}

// timedTextBodyLimit bounds caption responses; real tracks are far smaller.
const timedTextBodyLimit = 512 * 1024

// TimedTextStrategy issues raw GETs against the platform's caption-delivery
// endpoint, walking a (language, kind) variant matrix: human-authored tracks
// before auto-generated ones, preferred languages before the English
// fallback.
type TimedTextStrategy struct {
	cfg     *Config
	log     zerolog.Logger
	proxies *ProxyManager
	client  *http.Client
	retry   RetryConfig
	hosts   []string
}

// NewTimedTextStrategy builds the direct-endpoint strategy.
func NewTimedTextStrategy(cfg *Config, proxies *ProxyManager, log zerolog.Logger) *TimedTextStrategy {
	return &TimedTextStrategy{
		cfg:     cfg,
		log:     log,
		proxies: proxies,
		client:  &http.Client{Timeout: cfg.HTTPTimeout},
		retry: RetryConfig{
			MaxAttempts: 2,
			InitialWait: 500 * time.Millisecond,
			MaxWait:     cfg.HTTPTimeout,
			Multiplier:  2.0,
			Jitter:      0.2,
		},
		hosts: timedTextHosts,
	}
}

func (s *TimedTextStrategy) Source() Source { return SourceTimedText }

func (s *TimedTextStrategy) Enabled() bool { return s.cfg.TimedTextEnabled }

// captionVariant is one (language, kind) pair in the priority matrix.
type captionVariant struct {
	lang string
	kind string // "" = human-authored, "asr" = auto-generated
}

// variants builds the priority-ordered matrix: every preferred language as a
// manual track first, then the same list as auto-generated tracks, with
// English appended as the universal fallback.
func (s *TimedTextStrategy) variants(req *TranscriptRequest) []captionVariant {
	languages := req.Languages
	if len(languages) == 0 {
		languages = s.cfg.Languages
	}
	hasEnglish := false
	for _, l := range languages {
		if l == "en" {
			hasEnglish = true
		}
	}
	if !hasEnglish {
		languages = append(append([]string{}, languages...), "en")
	}

	out := make([]captionVariant, 0, 2*len(languages))
	for _, kind := range []string{"", "asr"} {
		for _, lang := range languages {
			out = append(out, captionVariant{lang: lang, kind: kind})
		}
	}
	return out
}

// Fetch walks the variant matrix until one track parses into non-blank text.
func (s *TimedTextStrategy) Fetch(ctx context.Context, req *TranscriptRequest) (string, error) {
	cookieHeader, err := s.cookieHeader(req)
	if err != nil {
		return "", &StrategyError{Reason: ReasonConfig, Err: err}
	}

	var lastErr error
	sawBlocked := false
	for _, variant := range s.variants(req) {
		text, err := s.fetchVariant(ctx, req, variant, cookieHeader)
		if err != nil {
			lastErr = err
			if ReasonOf(err) == ReasonBlocked {
				sawBlocked = true
			}
			continue
		}
		if strings.TrimSpace(text) != "" {
			return text, nil
		}
	}

	if sawBlocked {
		return "", &StrategyError{Reason: ReasonBlocked, Err: fmt.Errorf("caption endpoint rejecting requests: %w", lastErr)}
	}
	if lastErr != nil {
		return "", &StrategyError{Reason: ReasonOf(lastErr), Err: lastErr}
	}
	return "", failf(ReasonNotFound, "no caption track for any (language, kind) variant")
}

// cookieHeader prefers the caller's cookies over the environment-wide
// fallback cookie.
func (s *TimedTextStrategy) cookieHeader(req *TranscriptRequest) (string, error) {
	if !req.Cookies.IsZero() {
		return req.Cookies.Header()
	}
	return s.cfg.FallbackCookies, nil
}

// fetchVariant tries each host for one variant, retrying transient failures
// with bounded backoff before moving to the next mirror.
func (s *TimedTextStrategy) fetchVariant(ctx context.Context, req *TranscriptRequest, variant captionVariant, cookieHeader string) (string, error) {
	var lastErr error
	for _, host := range s.hosts {
		endpoint := s.buildURL(host, req.VideoID, variant)
		text, err := Retry(ctx, s.retry, func() (string, error) {
			return s.fetchOnce(ctx, req, endpoint, cookieHeader)
		})
		if err == nil {
			return text, nil
		}
		lastErr = err
		s.log.Debug().
			Str("video_id", req.VideoID).
			Str("endpoint", host).
			Str("lang", variant.lang).
			Str("kind", variant.kind).
			Str("reason", string(ReasonOf(err))).
			Msg("timedtext variant failed")
	}
	return "", lastErr
}

func (s *TimedTextStrategy) buildURL(host, videoID string, variant captionVariant) string {
	q := url.Values{}
	q.Set("v", videoID)
	q.Set("lang", variant.lang)
	q.Set("fmt", "srv1")
	if variant.kind != "" {
		q.Set("kind", variant.kind)
	}
	return host + "?" + q.Encode()
}

// fetchOnce performs one GET and applies the validation policy: empty
// bodies, HTML interstitials, and unparseable payloads are rejected as
// failures with distinct reason codes, never silently treated as "no
// captions".
func (s *TimedTextStrategy) fetchOnce(ctx context.Context, req *TranscriptRequest, endpoint, cookieHeader string) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if cookieHeader != "" {
		httpReq.Header.Set("Cookie", cookieHeader)
	}

	resp, err := s.httpClient(req).Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &httpStatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, timedTextBodyLimit))
	if err != nil {
		return "", err
	}

	return s.validate(req.VideoID, body)
}

// validate applies the correctness contract for caption-endpoint responses.
// Each rejection is logged with its own reason code so operators can tell
// "truly no captions" apart from "platform is blocking us".
func (s *TimedTextStrategy) validate(videoID string, body []byte) (string, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		s.logRejection(videoID, ReasonEmpty)
		return "", failf(ReasonEmpty, "caption endpoint returned empty body")
	}

	if looksLikeHTML(trimmed) {
		s.logRejection(videoID, ReasonBlocked)
		return "", failf(ReasonBlocked, "caption endpoint returned an HTML interstitial")
	}

	var doc timedTextDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		s.logRejection(videoID, ReasonParse)
		return "", failf(ReasonParse, "caption document did not parse: %v", err)
	}

	var sb strings.Builder
	for _, cue := range doc.Cues {
		text := CleanCaptionText(cue.Text)
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}

func (s *TimedTextStrategy) logRejection(videoID string, reason Reason) {
	s.log.Warn().
		Str("video_id", videoID).
		Str("strategy", string(SourceTimedText)).
		Str("reason", string(reason)).
		Msg("caption response rejected")
}

// httpClient returns the direct client unless global policy forces proxy use
// for this endpoint class.
func (s *TimedTextStrategy) httpClient(req *TranscriptRequest) *http.Client {
	if !(s.cfg.ForceProxy || req.ForceProxy) || s.proxies == nil {
		return s.client
	}
	p := s.proxies.ForHTTP(req.VideoID)
	if p == nil {
		return s.client
	}
	client := proxiedClient(p.HTTPS)
	client.Timeout = s.cfg.HTTPTimeout
	return client
}

// looksLikeHTML detects consent/interstitial pages masquerading as caption
// documents.
func looksLikeHTML(body string) bool {
	lower := strings.ToLower(body)
	return strings.HasPrefix(lower, "<!doctype html") ||
		strings.HasPrefix(lower, "<html") ||
		strings.Contains(lower[:min(len(lower), 2048)], "<body")
}

// timedTextDoc is the XML-like cue list returned by the caption endpoint.
type timedTextDoc struct {
	XMLName xml.Name       `xml:"transcript"`
	Cues    []timedTextCue `xml:"text"`
}

type timedTextCue struct {
	Start string `xml:"start,attr"`
	Dur   string `xml:"dur,attr"`
	Text  string `xml:",chardata"`
}
