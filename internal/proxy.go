package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ProxySecret is the rotating-proxy configuration loaded once from the
// secret store. All required fields must be non-empty for the proxy to be
// usable; the password is stored raw (not URL-encoded).
type ProxySecret struct {
	Provider   string `json:"provider"`
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	Protocol   string `json:"protocol"`
	GeoEnabled bool   `json:"geo_enabled,omitempty"`
	Country    string `json:"country,omitempty"`
}

// Validate returns the name of the first missing required field, or "" when
// the secret is complete.
func (s *ProxySecret) Validate() string {
	switch {
	case s == nil:
		return "secret"
	case s.Provider == "":
		return "provider"
	case s.Host == "":
		return "host"
	case s.Port == 0:
		return "port"
	case s.Username == "":
		return "username"
	case s.Password == "":
		return "password"
	case s.Protocol == "":
		return "protocol"
	}
	return ""
}

// HTTPProxy is the proxy shape handed to generic HTTP clients.
type HTTPProxy struct {
	HTTP  string `json:"http"`
	HTTPS string `json:"https"`
}

// BrowserProxy is the proxy shape the browser-automation engine expects.
type BrowserProxy struct {
	Server   string `json:"server"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// ProxyManager owns the proxy secret, mints rotating session tokens, and
// answers preflight reachability checks. A nil or invalid secret degrades to
// "no proxy" instead of failing.
type ProxyManager struct {
	secret *ProxySecret
	log    zerolog.Logger

	mu       sync.Mutex
	sessions map[string]string // scope → session token

	preflightTTL time.Duration
	checkedAt    time.Time
	reachable    bool
	probeURL     string
	probeClient  func(proxyURL string) *http.Client

	cacheHits   atomic.Int64
	cacheMisses atomic.Int64

	now func() time.Time
}

// defaultProbeURL answers with the caller's external IP; reachability through
// the proxy is what the preflight cares about, not the body.
const defaultProbeURL = "https://api.ipify.org"

// NewProxyManager wraps a loaded secret. Pass nil when no secret is
// configured; every lookup then degrades to no-proxy.
func NewProxyManager(secret *ProxySecret, preflightTTL time.Duration, log zerolog.Logger) *ProxyManager {
	return &ProxyManager{
		secret:       secret,
		log:          log,
		sessions:     make(map[string]string),
		preflightTTL: preflightTTL,
		probeURL:     defaultProbeURL,
		probeClient:  proxiedClient,
		now:          time.Now,
	}
}

// LoadProxySecret reads the secret-store JSON from path. A missing file is
// not an error: the manager just reports unusable.
func LoadProxySecret(path string) (*ProxySecret, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading proxy secret: %w", err)
	}
	return ParseProxySecret(data)
}

// ParseProxySecret decodes the secret-store JSON payload.
func ParseProxySecret(data []byte) (*ProxySecret, error) {
	var s ProxySecret
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing proxy secret: %w", err)
	}
	return &s, nil
}

// IsUsable re-validates the secret and logs the single missing field when it
// is incomplete. Invalid configuration is a degradation, never a crash.
func (m *ProxyManager) IsUsable() bool {
	if missing := m.secret.Validate(); missing != "" {
		m.log.Debug().Str("missing_field", missing).Msg("proxy secret not usable")
		return false
	}
	return true
}

// Session returns the sticky session token for scope, minting one on first
// use. Calls within one logical operation (transcript fetch plus follow-on
// audio fetch for the same video) share a token; independent scopes get
// fresh tokens so load spreads across egress IPs.
func (m *ProxyManager) Session(scope string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tok, ok := m.sessions[scope]; ok {
		return tok
	}
	tok := newSessionToken()
	m.sessions[scope] = tok
	return tok
}

// NewSessionToken discards any sticky token for scope and mints a fresh one,
// rotating the upstream egress IP for the next operation.
func (m *ProxyManager) NewSessionToken(scope string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	tok := newSessionToken()
	m.sessions[scope] = tok
	return tok
}

// EndSession forgets the sticky token for scope.
func (m *ProxyManager) EndSession(scope string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, scope)
}

func newSessionToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// sessionUsername embeds the rotating session token (and geo targeting when
// enabled) into the provider username.
func (m *ProxyManager) sessionUsername(scope string) string {
	user := m.secret.Username
	if m.secret.GeoEnabled && m.secret.Country != "" {
		user += "-country-" + m.secret.Country
	}
	return user + "-session-" + m.Session(scope)
}

// proxyURL builds the full authenticated proxy URL for scope. The raw
// password is URL-escaped here and nowhere else.
func (m *ProxyManager) proxyURL(scope string) string {
	return fmt.Sprintf("%s://%s:%s@%s:%d",
		m.secret.Protocol,
		url.QueryEscape(m.sessionUsername(scope)),
		url.QueryEscape(m.secret.Password),
		m.secret.Host,
		m.secret.Port,
	)
}

// ForHTTP returns the proxy in generic HTTP-client shape, or nil when the
// secret is unusable.
func (m *ProxyManager) ForHTTP(scope string) *HTTPProxy {
	if !m.IsUsable() {
		return nil
	}
	u := m.proxyURL(scope)
	return &HTTPProxy{HTTP: u, HTTPS: u}
}

// ForBrowser returns the proxy in browser-engine shape, or nil when the
// secret is unusable. The browser engine takes credentials separately, so
// the password stays raw.
func (m *ProxyManager) ForBrowser(scope string) *BrowserProxy {
	if !m.IsUsable() {
		return nil
	}
	return &BrowserProxy{
		Server:   fmt.Sprintf("%s://%s:%d", m.secret.Protocol, m.secret.Host, m.secret.Port),
		Username: m.sessionUsername(scope),
		Password: m.secret.Password,
	}
}

// ProxyFor returns the proxy configuration shaped for the given client kind
// ("http" or "browser"). An unrecognized kind is logged and falls back to
// the HTTP shape rather than failing.
func (m *ProxyManager) ProxyFor(kind, scope string) any {
	switch kind {
	case "http":
		p := m.ForHTTP(scope)
		if p == nil {
			return nil
		}
		return p
	case "browser":
		p := m.ForBrowser(scope)
		if p == nil {
			return nil
		}
		return p
	}
	m.log.Error().Str("client_kind", kind).Msg("unknown proxy client kind, falling back to http shape")
	p := m.ForHTTP(scope)
	if p == nil {
		return nil
	}
	return p
}

// EnvForSubprocess returns http_proxy/https_proxy entries for merging into a
// subprocess environment. Empty when the proxy is unusable.
func (m *ProxyManager) EnvForSubprocess(scope string) map[string]string {
	p := m.ForHTTP(scope)
	if p == nil {
		return nil
	}
	return map[string]string{
		"http_proxy":  p.HTTP,
		"https_proxy": p.HTTPS,
	}
}

// Reachable probes the proxy and caches the verdict for the preflight TTL so
// back-to-back resolve calls do not hammer the upstream.
func (m *ProxyManager) Reachable(ctx context.Context) bool {
	if !m.IsUsable() {
		return false
	}

	m.mu.Lock()
	if !m.checkedAt.IsZero() && m.now().Sub(m.checkedAt) < m.preflightTTL {
		verdict := m.reachable
		m.mu.Unlock()
		m.cacheHits.Add(1)
		return verdict
	}
	m.mu.Unlock()
	m.cacheMisses.Add(1)

	verdict := m.probe(ctx)

	m.mu.Lock()
	m.reachable = verdict
	m.checkedAt = m.now()
	m.mu.Unlock()
	return verdict
}

func (m *ProxyManager) probe(ctx context.Context) bool {
	client := m.probeClient(m.proxyURL("preflight"))

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.probeURL, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		m.log.Warn().Err(err).Msg("proxy preflight probe failed")
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// proxiedClient builds an HTTP client routed through proxyURL.
func proxiedClient(proxyURL string) *http.Client {
	u, err := url.Parse(proxyURL)
	if err != nil {
		return &http.Client{Timeout: 10 * time.Second}
	}
	return &http.Client{
		Timeout:   10 * time.Second,
		Transport: &http.Transport{Proxy: http.ProxyURL(u)},
	}
}

// PreflightStats exposes the reachability cache hit/miss counters.
func (m *ProxyManager) PreflightStats() (hits, misses int64) {
	return m.cacheHits.Load(), m.cacheMisses.Load()
}

// MaskedUsername returns the configured username with everything but the
// last four characters masked, for logs and status output. The password is
// never exposed.
func (m *ProxyManager) MaskedUsername() string {
	if m.secret == nil || m.secret.Username == "" {
		return ""
	}
	user := m.secret.Username
	if len(user) <= 4 {
		return strings.Repeat("*", len(user))
	}
	return strings.Repeat("*", len(user)-4) + user[len(user)-4:]
}
