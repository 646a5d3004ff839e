package internal

import (
	"context"
	"embed"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/lrstanley/go-ytdlp"
	"github.com/spf13/viper"
)

// CommandRunner executes external commands
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
	RunEnv(ctx context.Context, env map[string]string, name string, args ...string) ([]byte, error)
}

// DefaultCommandRunner implements CommandRunner
type DefaultCommandRunner struct{}

func (r *DefaultCommandRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

// RunEnv runs the command with extra environment entries merged over the
// process environment. Used to force subprocess traffic through the proxy.
func (r *DefaultCommandRunner) RunEnv(ctx context.Context, env map[string]string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	return cmd.CombinedOutput()
}

// Config holds the pipeline settings. It is constructed once at startup and
// passed by reference; nothing mutates it afterwards.
type Config struct {
	// Strategy feature flags
	CaptionsAPIEnabled bool
	TimedTextEnabled   bool
	BrowserEnabled     bool
	AudioASREnabled    bool

	// Resolver policy
	Languages  []string
	ForceProxy bool

	// Circuit breaker (browser strategy)
	BreakerThreshold int
	BreakerCooldown  time.Duration

	// Timeouts and bounds
	HTTPTimeout      time.Duration
	InterceptTimeout time.Duration
	DOMFallbackWait  time.Duration
	MaxAudioDuration time.Duration
	PreflightTTL     time.Duration
	WhisperTimeout   time.Duration // transcription runs minutes, not seconds

	// Credentials and external collaborators
	ProxySecretPath string
	ProxySecretJSON string
	OpenAIAPIKey    string
	FallbackCookies string // environment-wide cookie header, per-user cookies win

	Verbose bool
	Quiet   bool

	// Fixed XDG paths (not configurable)
	ConfigDir       string
	DataDir         string
	CacheDir        string
	TempDir         string
	StorageStateDir string
}

//go:embed config.toml
var defaultFS embed.FS

// WhisperLimit is the maximum file size accepted by OpenAI's Whisper API (25 MiB)
const WhisperLimit int64 = 25 << 20

// ensureDefaultFile checks if a file exists in the specified directory
// and creates it from the embedded default if it doesn't exist
func ensureDefaultFile(configDir, embedFilename, description string) error {
	filePath := filepath.Join(configDir, embedFilename)

	if FileExists(filePath) {
		return nil
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	defaultContent, err := defaultFS.ReadFile(embedFilename)
	if err != nil {
		return fmt.Errorf("reading embedded default %s: %w", description, err)
	}

	if err := os.WriteFile(filePath, defaultContent, 0644); err != nil {
		return fmt.Errorf("writing default %s: %w", description, err)
	}

	fmt.Printf("Created default %s at %s\n", description, filePath)
	return nil
}

// EnsureDefaultConfig checks if a config file exists in the XDG config directory
// and creates it from the embedded default if it doesn't exist
func EnsureDefaultConfig(configDir string) error {
	return ensureDefaultFile(configDir, "config.toml", "configuration")
}

// InitConfig initializes Viper and loads configuration
func InitConfig() *Config {
	// Ensure yt-dlp is installed for the metadata probe
	ytdlp.MustInstall(context.Background(), nil)

	// XDG standard directories
	configDir := filepath.Join(xdg.ConfigHome, "ytscribe")
	dataDir := filepath.Join(xdg.DataHome, "ytscribe")
	cacheDir := filepath.Join(xdg.CacheHome, "ytscribe")

	v := viper.New()

	// Strategy flags: everything on by default, operators flip individual
	// strategies off without code changes.
	v.SetDefault("captions_api_enabled", true)
	v.SetDefault("timedtext_enabled", true)
	v.SetDefault("browser_enabled", true)
	v.SetDefault("audio_asr_enabled", true)

	v.SetDefault("languages", []string{"en", "en-US", "en-GB"})
	v.SetDefault("force_proxy", false)

	v.SetDefault("breaker_threshold", 3)
	v.SetDefault("breaker_cooldown", 10*time.Minute)

	v.SetDefault("http_timeout", 15*time.Second)
	v.SetDefault("intercept_timeout", 20*time.Second)
	v.SetDefault("dom_fallback_wait", 4*time.Second)
	v.SetDefault("max_audio_duration", 30*time.Minute)
	v.SetDefault("preflight_ttl", 5*time.Minute)
	v.SetDefault("whisper_timeout", 10*time.Minute)

	v.SetDefault("proxy_secret_path", filepath.Join(configDir, "proxy.json"))
	v.SetDefault("fallback_cookies", "")
	v.SetDefault("verbose", false)

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	v.SetEnvPrefix("YTSCRIBE")
	v.AutomaticEnv()

	// Special cases checked both via Viper and direct env vars
	_ = v.BindEnv("openai_api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("proxy_secret_json", "YTSCRIBE_PROXY_SECRET")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Warning: Error reading config file: %v\n", err)
		}
	}

	config := &Config{
		CaptionsAPIEnabled: v.GetBool("captions_api_enabled"),
		TimedTextEnabled:   v.GetBool("timedtext_enabled"),
		BrowserEnabled:     v.GetBool("browser_enabled"),
		AudioASREnabled:    v.GetBool("audio_asr_enabled"),

		Languages:  v.GetStringSlice("languages"),
		ForceProxy: v.GetBool("force_proxy"),

		BreakerThreshold: v.GetInt("breaker_threshold"),
		BreakerCooldown:  v.GetDuration("breaker_cooldown"),

		HTTPTimeout:      v.GetDuration("http_timeout"),
		InterceptTimeout: v.GetDuration("intercept_timeout"),
		DOMFallbackWait:  v.GetDuration("dom_fallback_wait"),
		MaxAudioDuration: v.GetDuration("max_audio_duration"),
		PreflightTTL:     v.GetDuration("preflight_ttl"),
		WhisperTimeout:   v.GetDuration("whisper_timeout"),

		ProxySecretPath: v.GetString("proxy_secret_path"),
		ProxySecretJSON: v.GetString("proxy_secret_json"),
		OpenAIAPIKey:    v.GetString("openai_api_key"),
		FallbackCookies: v.GetString("fallback_cookies"),

		Verbose: v.GetBool("verbose"),

		ConfigDir:       configDir,
		DataDir:         dataDir,
		CacheDir:        cacheDir,
		TempDir:         filepath.Join(cacheDir, "audio_tmp"),
		StorageStateDir: filepath.Join(dataDir, "storage_state"),
	}

	if config.Verbose {
		fmt.Printf("Using config file: %s\n", v.ConfigFileUsed())
	}

	return config
}

// LoadConfiguredProxySecret resolves the proxy secret from the inline env
// JSON when set, otherwise from the configured file path. Absence of both is
// not an error; the pipeline runs without a proxy.
func (c *Config) LoadConfiguredProxySecret() (*ProxySecret, error) {
	if c.ProxySecretJSON != "" {
		return ParseProxySecret([]byte(c.ProxySecretJSON))
	}
	return LoadProxySecret(c.ProxySecretPath)
}
