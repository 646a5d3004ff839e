package internal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// App wires the acquisition pipeline together and fronts it with transcript
// caching. It is the unit both the CLI and the MCP server talk to.
type App struct {
	config   *Config
	log      zerolog.Logger
	proxies  *ProxyManager
	resolver *Resolver
	ui       UIManager
}

// NewApp initializes the application
func NewApp(config *Config, options ...AppOption) *App {
	log := NewLogger(config.Verbose)

	secret, err := config.LoadConfiguredProxySecret()
	if err != nil {
		log.Warn().Err(err).Msg("proxy secret unusable, continuing without proxy")
		secret = nil
	}
	proxies := NewProxyManager(secret, config.PreflightTTL, log)

	app := &App{
		config:   config,
		log:      log,
		proxies:  proxies,
		resolver: NewResolver(config, log, proxies, &DefaultCommandRunner{}),
		ui:       NewUIManager(config.Verbose, config.Quiet),
	}

	// Apply any custom options
	for _, option := range options {
		option(app)
	}

	return app
}

// AppOption customizes App creation
type AppOption func(*App)

// WithResolver sets a custom resolver
func WithResolver(resolver *Resolver) AppOption {
	return func(a *App) {
		a.resolver = resolver
	}
}

// Config returns the active configuration.
func (app *App) Config() *Config { return app.config }

// Logger returns the process logger.
func (app *App) Logger() zerolog.Logger { return app.log }

// transcriptsDir is where resolved transcripts are cached.
func (app *App) transcriptsDir() string {
	return filepath.Join(app.config.DataDir, "transcripts")
}

// ResolveTranscript returns the transcript for one video, from cache when a
// previous run already paid for it, otherwise from the strategy chain.
func (app *App) ResolveTranscript(ctx context.Context, req *TranscriptRequest) (*TranscriptResult, error) {
	return app.ResolveTranscriptWithStatus(ctx, req, false)
}

// ResolveTranscriptWithStatus resolves with an optional status spinner.
func (app *App) ResolveTranscriptWithStatus(ctx context.Context, req *TranscriptRequest, showStatus bool) (*TranscriptResult, error) {
	var spinner ProgressBar
	if showStatus {
		spinner = app.ui.NewSpinner("Checking for cached transcript...")
	}
	finish := func() {
		if spinner != nil {
			spinner.Finish()
		}
	}

	if err := EnsureDirs(app.transcriptsDir()); err != nil {
		finish()
		return nil, fmt.Errorf("creating transcripts directory: %w", err)
	}

	cachedPath := filepath.Join(app.transcriptsDir(), req.VideoID+".txt")
	if FileExists(cachedPath) {
		if spinner != nil {
			spinner.Describe("Found cached transcript")
		}
		finish()
		text, err := os.ReadFile(cachedPath)
		if err != nil {
			return nil, fmt.Errorf("reading cached transcript: %w", err)
		}
		app.log.Debug().Str("video_id", req.VideoID).Msg("serving cached transcript")
		return &TranscriptResult{Text: string(text), Source: SourceCache}, nil
	}

	if spinner != nil {
		spinner.Describe("Resolving transcript...")
		spinner.Advance()
	}

	result, err := app.resolver.Resolve(ctx, req)
	if err != nil {
		finish()
		return nil, err
	}

	if result.Found() {
		if spinner != nil {
			spinner.Describe("Saving transcript...")
			spinner.Advance()
		}
		if err := SaveTranscript(req.VideoID, result.Text, app.transcriptsDir()); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	finish()
	return result, nil
}

// Metadata returns video metadata via the subprocess probe.
func (app *App) Metadata(ctx context.Context, videoID string) (*VideoMetadata, error) {
	probe := NewMetadataProbe(app.config.Verbose)
	return probe.Metadata(ctx, videoID)
}

// StatusReport is the health snapshot surfaced by the status command and the
// pipeline_status tool.
type StatusReport struct {
	Breaker         BreakerStatus    `json:"breaker"`
	ProxyConfigured bool             `json:"proxy_configured"`
	ProxyUsername   string           `json:"proxy_username,omitempty"`
	Strategies      map[string]bool  `json:"strategies"`
	Metrics         map[string]int64 `json:"metrics"`
}

// Status reports breaker state, proxy configuration, and pipeline counters.
func (app *App) Status() StatusReport {
	report := StatusReport{
		Breaker:         app.resolver.BreakerStatus(),
		ProxyConfigured: app.proxies.IsUsable(),
		Strategies: map[string]bool{
			string(SourceCaptionsAPI): app.config.CaptionsAPIEnabled,
			string(SourceTimedText):   app.config.TimedTextEnabled,
			string(SourceBrowser):     app.config.BrowserEnabled,
			string(SourceAudioASR):    app.config.AudioASREnabled && app.config.OpenAIAPIKey != "",
		},
		Metrics: GetMetrics(app.proxies),
	}
	if report.ProxyConfigured {
		report.ProxyUsername = app.proxies.MaskedUsername()
	}
	return report
}
