package internal

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeProbe struct {
	meta *VideoMetadata
	err  error
}

func (f *fakeProbe) Metadata(ctx context.Context, videoID string) (*VideoMetadata, error) {
	return f.meta, f.err
}

type fakeExtractor struct {
	wavPath   string
	err       error
	gotURL    string
	gotCookie string
	gotEnv    map[string]string
}

func (f *fakeExtractor) Extract(ctx context.Context, srcURL, cookieHeader string, proxyEnv map[string]string, videoID string) (string, error) {
	f.gotURL = srcURL
	f.gotCookie = cookieHeader
	f.gotEnv = proxyEnv
	return f.wavPath, f.err
}

type fakeASR struct {
	text string
	err  error
}

func (f *fakeASR) Transcribe(ctx context.Context, audioFile string) (string, error) {
	return f.text, f.err
}

type fakeRotation struct {
	rotated bool
	err     error
}

func (f *fakeRotation) VerifyRotation(ctx context.Context, proxyURL string) (bool, error) {
	return f.rotated, f.err
}

func testAudioStrategy(proxies *ProxyManager) (*AudioASRStrategy, *fakeExtractor) {
	cfg := &Config{
		AudioASREnabled:  true,
		OpenAIAPIKey:     "sk-test",
		MaxAudioDuration: 30 * time.Minute,
		HTTPTimeout:      5 * time.Second,
	}
	extractor := &fakeExtractor{wavPath: "/tmp/out.wav"}
	s := &AudioASRStrategy{
		cfg:        cfg,
		log:        zerolog.Nop(),
		proxies:    proxies,
		identities: NewIdentities(),
		probe:      &fakeProbe{meta: &VideoMetadata{Duration: 300}},
		transcoder: extractor,
		asr:        &fakeASR{text: "recognized speech"},
		ipcheck:    &fakeRotation{rotated: true},
	}
	s.captureURL = func(ctx context.Context, req *TranscriptRequest, useProxy bool) (string, error) {
		return "https://cdn.example/videoplayback?mime=audio", nil
	}
	return s, extractor
}

func noProxy() *ProxyManager {
	return NewProxyManager(nil, time.Minute, zerolog.Nop())
}

// reachableProxy returns a usable manager whose preflight probe hits a local
// server instead of the network.
func reachableProxy(t *testing.T) *ProxyManager {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	m := NewProxyManager(testSecret(), time.Minute, zerolog.Nop())
	m.probeURL = srv.URL
	m.probeClient = func(string) *http.Client { return srv.Client() }
	return m
}

// unreachableProxy returns a usable manager whose preflight probe always
// fails.
func unreachableProxy(t *testing.T) *ProxyManager {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	m := NewProxyManager(testSecret(), time.Minute, zerolog.Nop())
	m.probeURL = srv.URL
	m.probeClient = func(string) *http.Client { return &http.Client{Timeout: time.Second} }
	return m
}

func TestAudioFetchHappyPath(t *testing.T) {
	s, extractor := testAudioStrategy(noProxy())

	text, err := s.Fetch(context.Background(), &TranscriptRequest{VideoID: testVideoID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "recognized speech" {
		t.Fatalf("got %q", text)
	}
	if extractor.gotURL == "" {
		t.Fatal("extractor never received a stream URL")
	}
	if extractor.gotEnv != nil {
		t.Fatal("no proxy configured but extractor got a proxy env")
	}
}

func TestAudioFetchSkipsLongVideos(t *testing.T) {
	s, _ := testAudioStrategy(noProxy())
	s.probe = &fakeProbe{meta: &VideoMetadata{Duration: (45 * time.Minute).Seconds()}}

	_, err := s.Fetch(context.Background(), &TranscriptRequest{VideoID: testVideoID})
	var skip *skipError
	if !errors.As(err, &skip) {
		t.Fatalf("expected a skip, got %v", err)
	}
}

func TestAudioFetchNoCapWhenUnset(t *testing.T) {
	s, _ := testAudioStrategy(noProxy())
	s.cfg.MaxAudioDuration = 0
	s.probe = &fakeProbe{meta: &VideoMetadata{Duration: (3 * time.Hour).Seconds()}}

	if _, err := s.Fetch(context.Background(), &TranscriptRequest{VideoID: testVideoID}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAudioFetchForceProxyWithoutProxy(t *testing.T) {
	s, _ := testAudioStrategy(noProxy())

	_, err := s.Fetch(context.Background(), &TranscriptRequest{VideoID: testVideoID, ForceProxy: true})
	if got := ReasonOf(err); got != ReasonConfig {
		t.Fatalf("reason = %s, want %s", got, ReasonConfig)
	}
}

func TestAudioFetchRefusesUnrotatedEgress(t *testing.T) {
	s, _ := testAudioStrategy(reachableProxy(t))
	s.ipcheck = &fakeRotation{rotated: false}

	_, err := s.Fetch(context.Background(), &TranscriptRequest{VideoID: testVideoID})
	if got := ReasonOf(err); got != ReasonConfig {
		t.Fatalf("reason = %s, want %s", got, ReasonConfig)
	}
}

func TestAudioFetchProceedsWhenEgressCheckUnavailable(t *testing.T) {
	s, extractor := testAudioStrategy(reachableProxy(t))
	s.ipcheck = &fakeRotation{err: errors.New("echo service unreachable")}

	if _, err := s.Fetch(context.Background(), &TranscriptRequest{VideoID: testVideoID}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if extractor.gotEnv["https_proxy"] == "" {
		t.Fatal("proxied extraction should carry a subprocess proxy env")
	}
}

func TestAudioFetchPrefersCallerCookies(t *testing.T) {
	s, extractor := testAudioStrategy(noProxy())
	s.cfg.FallbackCookies = "FALLBACK=1"

	req := &TranscriptRequest{VideoID: testVideoID, Cookies: CookiesInline("SID=abc")}
	if _, err := s.Fetch(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if extractor.gotCookie != "SID=abc" {
		t.Fatalf("cookie header = %q, want caller cookies", extractor.gotCookie)
	}

	if _, err := s.Fetch(context.Background(), &TranscriptRequest{VideoID: testVideoID}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if extractor.gotCookie != "FALLBACK=1" {
		t.Fatalf("cookie header = %q, want fallback", extractor.gotCookie)
	}
}

func TestAudioFetchWrapsMetadataFailure(t *testing.T) {
	s, _ := testAudioStrategy(noProxy())
	s.probe = &fakeProbe{err: errors.New("metadata probe blew up")}

	_, err := s.Fetch(context.Background(), &TranscriptRequest{VideoID: testVideoID})
	if err == nil {
		t.Fatal("expected error")
	}
	var serr *StrategyError
	if !errors.As(err, &serr) {
		t.Fatalf("metadata failure not lifted into the taxonomy: %v", err)
	}
}

func TestAudioFetchDropsUnreachableProxy(t *testing.T) {
	s, extractor := testAudioStrategy(unreachableProxy(t))
	s.ipcheck = &fakeRotation{rotated: false}

	// Preflight failure drops the proxy from the plan; extraction proceeds
	// direct and the egress check is never consulted.
	if _, err := s.Fetch(context.Background(), &TranscriptRequest{VideoID: testVideoID}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if extractor.gotEnv != nil {
		t.Fatal("unreachable proxy still produced a subprocess proxy env")
	}
}

func TestAudioStrategyTranscriptionTimeout(t *testing.T) {
	cfg := &Config{
		AudioASREnabled: true,
		OpenAIAPIKey:    "sk-test",
		HTTPTimeout:     15 * time.Second,
		WhisperTimeout:  10 * time.Minute,
	}
	s := NewAudioASRStrategy(cfg, zerolog.Nop(), noProxy(), NewIdentities(), &DefaultCommandRunner{})

	asr, ok := s.asr.(*ASR)
	if !ok {
		t.Fatalf("unexpected recognizer type %T", s.asr)
	}
	if asr.timeout != cfg.WhisperTimeout {
		t.Fatalf("transcription deadline = %s, want %s", asr.timeout, cfg.WhisperTimeout)
	}
}

func TestAudioEnabledNeedsAPIKey(t *testing.T) {
	s, _ := testAudioStrategy(noProxy())
	if !s.Enabled() {
		t.Fatal("strategy with key should be enabled")
	}
	s.cfg.OpenAIAPIKey = ""
	if s.Enabled() {
		t.Fatal("strategy without key should be disabled")
	}
}
