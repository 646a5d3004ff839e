package internal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testSecret() *ProxySecret {
	return &ProxySecret{
		Provider: "residential-co",
		Host:     "gw.residential-co.example",
		Port:     8080,
		Username: "cust-abc123",
		Password: "s3cr3t/pass word",
		Protocol: "http",
	}
}

func TestProxySecretValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ProxySecret)
		missing string
	}{
		{"complete", func(s *ProxySecret) {}, ""},
		{"no host", func(s *ProxySecret) { s.Host = "" }, "host"},
		{"no port", func(s *ProxySecret) { s.Port = 0 }, "port"},
		{"no username", func(s *ProxySecret) { s.Username = "" }, "username"},
		{"no password", func(s *ProxySecret) { s.Password = "" }, "password"},
		{"no protocol", func(s *ProxySecret) { s.Protocol = "" }, "protocol"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testSecret()
			tt.mutate(s)
			if got := s.Validate(); got != tt.missing {
				t.Fatalf("Validate() = %q, want %q", got, tt.missing)
			}
		})
	}

	var nilSecret *ProxySecret
	if nilSecret.Validate() != "secret" {
		t.Fatal("nil secret should report itself missing")
	}
}

func TestProxyManagerUnusableWithoutSecret(t *testing.T) {
	m := NewProxyManager(nil, time.Minute, zerolog.Nop())
	if m.IsUsable() {
		t.Fatal("nil secret reported usable")
	}
	if m.ForHTTP("scope") != nil || m.ForBrowser("scope") != nil {
		t.Fatal("unusable manager returned proxy shapes")
	}
	if m.EnvForSubprocess("scope") != nil {
		t.Fatal("unusable manager returned subprocess env")
	}
}

func TestSessionStickyPerScope(t *testing.T) {
	m := NewProxyManager(testSecret(), time.Minute, zerolog.Nop())

	a1 := m.Session("videoA")
	a2 := m.Session("videoA")
	b := m.Session("videoB")

	if a1 != a2 {
		t.Fatalf("same scope produced different tokens: %q vs %q", a1, a2)
	}
	if a1 == b {
		t.Fatal("independent scopes share a session token")
	}
	if len(a1) != 16 {
		t.Fatalf("unexpected token length %d", len(a1))
	}
}

func TestNewSessionTokenRotates(t *testing.T) {
	m := NewProxyManager(testSecret(), time.Minute, zerolog.Nop())

	old := m.Session("videoA")
	fresh := m.NewSessionToken("videoA")
	if old == fresh {
		t.Fatal("rotation returned the same token")
	}
	if m.Session("videoA") != fresh {
		t.Fatal("rotated token not sticky afterwards")
	}
}

func TestEndSessionForgetsToken(t *testing.T) {
	m := NewProxyManager(testSecret(), time.Minute, zerolog.Nop())
	old := m.Session("videoA")
	m.EndSession("videoA")
	if m.Session("videoA") == old {
		t.Fatal("token survived EndSession")
	}
}

func TestSessionUsernameGeoTargeting(t *testing.T) {
	secret := testSecret()
	secret.GeoEnabled = true
	secret.Country = "us"
	m := NewProxyManager(secret, time.Minute, zerolog.Nop())

	user := m.sessionUsername("videoA")
	if !strings.HasPrefix(user, "cust-abc123-country-us-session-") {
		t.Fatalf("unexpected username %q", user)
	}
}

func TestProxyShapesPerClientKind(t *testing.T) {
	m := NewProxyManager(testSecret(), time.Minute, zerolog.Nop())

	httpShape := m.ForHTTP("videoA")
	if httpShape.HTTP != httpShape.HTTPS {
		t.Fatal("HTTP shape should mirror the URL for both schemes")
	}
	// The raw password contains characters that must be escaped in a URL.
	if strings.Contains(httpShape.HTTP, "s3cr3t/pass word") {
		t.Fatal("raw password leaked unescaped into proxy URL")
	}
	if !strings.Contains(httpShape.HTTP, "gw.residential-co.example:8080") {
		t.Fatalf("unexpected proxy URL %q", httpShape.HTTP)
	}

	browserShape := m.ForBrowser("videoA")
	if browserShape.Server != "http://gw.residential-co.example:8080" {
		t.Fatalf("unexpected browser server %q", browserShape.Server)
	}
	// The browser engine takes credentials separately, so no escaping there.
	if browserShape.Password != "s3cr3t/pass word" {
		t.Fatalf("browser password mangled: %q", browserShape.Password)
	}
	if !strings.Contains(browserShape.Username, "-session-") {
		t.Fatalf("browser username missing session token: %q", browserShape.Username)
	}
}

func TestProxyForUnknownKindFallsBack(t *testing.T) {
	m := NewProxyManager(testSecret(), time.Minute, zerolog.Nop())

	got := m.ProxyFor("grpc", "videoA")
	if got == nil {
		t.Fatal("unknown kind returned nil instead of falling back")
	}
	if _, ok := got.(*HTTPProxy); !ok {
		t.Fatalf("unknown kind returned %T, want *HTTPProxy", got)
	}
}

func TestEnvForSubprocess(t *testing.T) {
	m := NewProxyManager(testSecret(), time.Minute, zerolog.Nop())

	env := m.EnvForSubprocess("videoA")
	if env["http_proxy"] == "" || env["https_proxy"] == "" {
		t.Fatalf("incomplete env: %v", env)
	}
	if env["http_proxy"] != env["https_proxy"] {
		t.Fatal("subprocess env schemes diverge")
	}
}

func TestReachableCachesVerdict(t *testing.T) {
	var probes int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probes++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewProxyManager(testSecret(), 5*time.Minute, zerolog.Nop())
	m.probeURL = srv.URL
	m.probeClient = func(string) *http.Client { return srv.Client() }
	m.now = func() time.Time { return now }

	ctx := context.Background()
	if !m.Reachable(ctx) {
		t.Fatal("probe against healthy server reported unreachable")
	}
	if !m.Reachable(ctx) || !m.Reachable(ctx) {
		t.Fatal("cached verdict flipped")
	}
	if probes != 1 {
		t.Fatalf("probe ran %d times within TTL, want 1", probes)
	}

	hits, misses := m.PreflightStats()
	if hits != 2 || misses != 1 {
		t.Fatalf("stats hits=%d misses=%d, want 2/1", hits, misses)
	}

	// TTL expiry forces a fresh probe.
	now = now.Add(6 * time.Minute)
	m.Reachable(ctx)
	if probes != 2 {
		t.Fatalf("probe not refreshed after TTL, ran %d times", probes)
	}
}

func TestMaskedUsername(t *testing.T) {
	m := NewProxyManager(testSecret(), time.Minute, zerolog.Nop())
	got := m.MaskedUsername()
	if got != "*******c123" {
		t.Fatalf("MaskedUsername() = %q", got)
	}

	none := NewProxyManager(nil, time.Minute, zerolog.Nop())
	if none.MaskedUsername() != "" {
		t.Fatal("nil secret should mask to empty string")
	}
}

func TestParseProxySecret(t *testing.T) {
	s, err := ParseProxySecret([]byte(`{"provider":"p","host":"h","port":1,"username":"u","password":"pw","protocol":"http"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Validate() != "" {
		t.Fatalf("parsed secret invalid: %+v", s)
	}

	if _, err := ParseProxySecret([]byte("{nope")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadProxySecretMissingFile(t *testing.T) {
	s, err := LoadProxySecret("/nonexistent/proxy.json")
	if err != nil {
		t.Fatalf("missing file should not error, got %v", err)
	}
	if s != nil {
		t.Fatal("missing file should yield nil secret")
	}
}
