package internal

import (
	"context"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"
)

// Narrow views of the heavier collaborators so tests can stand in for them.
type metadataSource interface {
	Metadata(ctx context.Context, videoID string) (*VideoMetadata, error)
}

type audioExtractor interface {
	Extract(ctx context.Context, srcURL, cookieHeader string, proxyEnv map[string]string, videoID string) (string, error)
}

type speechRecognizer interface {
	Transcribe(ctx context.Context, audioFile string) (string, error)
}

type rotationChecker interface {
	VerifyRotation(ctx context.Context, proxyURL string) (bool, error)
}

// AudioASRStrategy is the most expensive path: pull the audio stream through
// ffmpeg and run it through speech recognition. Last resort by construction.
type AudioASRStrategy struct {
	cfg        *Config
	log        zerolog.Logger
	proxies    *ProxyManager
	identities *Identities

	probe      metadataSource
	transcoder audioExtractor
	asr        speechRecognizer
	ipcheck    rotationChecker

	// captureURL and start are swapped in tests.
	captureURL func(ctx context.Context, req *TranscriptRequest, useProxy bool) (string, error)
	start      func() (*browserRunner, error)
}

// NewAudioASRStrategy wires the audio extraction strategy.
func NewAudioASRStrategy(cfg *Config, log zerolog.Logger, proxies *ProxyManager, identities *Identities, cmdRunner CommandRunner) *AudioASRStrategy {
	s := &AudioASRStrategy{
		cfg:        cfg,
		log:        log,
		proxies:    proxies,
		identities: identities,
		probe:      NewMetadataProbe(cfg.Verbose),
		transcoder: NewTranscoder(cmdRunner, cfg.TempDir, cfg.Verbose),
		asr:        NewASRWithKey(cfg.OpenAIAPIKey, cfg.WhisperTimeout, cfg.Verbose),
		ipcheck:    NewIPChecker(log),
		start:      startBrowser,
	}
	s.captureURL = s.captureAudioURL
	return s
}

func (s *AudioASRStrategy) Source() Source { return SourceAudioASR }

func (s *AudioASRStrategy) Enabled() bool {
	return s.cfg.AudioASREnabled && s.cfg.OpenAIAPIKey != ""
}

func (s *AudioASRStrategy) Fetch(ctx context.Context, req *TranscriptRequest) (string, error) {
	meta, err := s.probe.Metadata(ctx, req.VideoID)
	if err != nil {
		return "", wrapReason(err)
	}
	if cap := s.cfg.MaxAudioDuration; cap > 0 && meta.Duration > cap.Seconds() {
		return "", skipf("video runs %s, past the %s transcription cap",
			(time.Duration(meta.Duration) * time.Second).String(), cap.String())
	}

	forceProxy := req.ForceProxy || s.cfg.ForceProxy
	useProxy, err := proxyReady(ctx, s.proxies, forceProxy, s.log)
	if err != nil {
		return "", err
	}
	if useProxy {
		if err := s.verifyEgress(ctx, req.VideoID); err != nil {
			return "", err
		}
	}

	audioURL, err := s.captureURL(ctx, req, useProxy)
	if err != nil {
		return "", err
	}

	var proxyEnv map[string]string
	if useProxy {
		proxyEnv = s.proxies.EnvForSubprocess(req.VideoID)
	}
	cookieHdr, err := s.cookieHeader(req)
	if err != nil {
		return "", failf(ReasonConfig, "resolving cookies: %v", err)
	}
	wavPath, err := s.transcoder.Extract(ctx, audioURL, cookieHdr, proxyEnv, req.VideoID)
	if err != nil {
		return "", wrapReason(err)
	}
	defer cleanupFiles(wavPath)

	text, err := s.asr.Transcribe(ctx, wavPath)
	if err != nil {
		return "", wrapReason(err)
	}
	return text, nil
}

// verifyEgress aborts proxied extraction when the proxy demonstrably routes
// nothing. An unreachable echo service is logged and waved through; a proxy
// that answers with the direct address is not.
func (s *AudioASRStrategy) verifyEgress(ctx context.Context, scope string) error {
	hp := s.proxies.ForHTTP(scope)
	if hp == nil {
		return failf(ReasonConfig, "proxy reported usable but produced no endpoint")
	}
	rotated, err := s.ipcheck.VerifyRotation(ctx, hp.HTTPS)
	if err != nil {
		s.log.Warn().Err(err).Msg("egress check unavailable, proceeding")
		return nil
	}
	if !rotated {
		return failf(ReasonConfig, "proxied egress matches direct address, refusing extraction")
	}
	return nil
}

func (s *AudioASRStrategy) cookieHeader(req *TranscriptRequest) (string, error) {
	if !req.Cookies.IsZero() {
		return req.Cookies.Header()
	}
	return s.cfg.FallbackCookies, nil
}

// captureAudioURL plays the video just long enough for the player to request
// its audio stream, and lifts the stream URL off the wire.
func (s *AudioASRStrategy) captureAudioURL(ctx context.Context, req *TranscriptRequest, useProxy bool) (string, error) {
	runner, err := s.start()
	if err != nil {
		return "", failf(ReasonConfig, "browser unavailable: %v", err)
	}
	defer runner.Close()

	var proxy *BrowserProxy
	if useProxy {
		proxy = s.proxies.ForBrowser(req.VideoID)
	}
	cookies, err := req.Cookies.BrowserCookies()
	if err != nil {
		return "", failf(ReasonConfig, "loading cookies: %v", err)
	}
	browserCtx, err := runner.newContext(contextSpec{
		profile:          s.identities.Desktop(req.VideoID),
		proxy:            proxy,
		storageStatePath: storageStatePath(s.cfg.StorageStateDir),
		cookies:          cookies,
	})
	if err != nil {
		return "", wrapReason(err)
	}
	defer func() { _ = browserCtx.Close() }()

	page, err := browserCtx.NewPage()
	if err != nil {
		return "", wrapReason(err)
	}

	found := make(chan string, 1)
	page.OnRequest(func(r playwright.Request) {
		u := r.URL()
		if strings.Contains(u, "videoplayback") && strings.Contains(u, "mime=audio") {
			select {
			case found <- u:
			default:
			}
		}
	})

	if _, err := page.Goto(WatchURL(req.VideoID), playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(s.cfg.HTTPTimeout.Milliseconds())),
	}); err != nil {
		return "", wrapReason(err)
	}

	// Autoplay policies vary; a click makes playback deterministic.
	_ = page.Locator("button.ytp-play-button").First().Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(3000),
	})

	select {
	case u := <-found:
		return u, nil
	case <-time.After(s.cfg.InterceptTimeout):
		return "", failf(ReasonTimeout, "player never requested an audio stream")
	case <-ctx.Done():
		return "", wrapReason(ctx.Err())
	}
}
