package internal

import (
	"math/rand"
	"sync"
)

// Viewport is the browser window size a profile presents.
type Viewport struct {
	Width  int
	Height int
}

// ClientProfile bundles the identity the automated browser presents: a
// user-agent string and matching viewport. Profiles are immutable and
// defined at configuration time.
type ClientProfile struct {
	Name      string
	UserAgent string
	Viewport  Viewport
}

var (
	desktopUserAgents = []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36",
	}
	mobileUserAgents = []string{
		"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Mobile Safari/537.36",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1",
	}
)

// Identities issues a consistent browser identity per logical session so the
// transcript fetch and any follow-on audio fetch for the same video present
// identical header fingerprints.
type Identities struct {
	mu       sync.Mutex
	sessions map[string]ClientProfile
}

// NewIdentities creates an empty identity registry.
func NewIdentities() *Identities {
	return &Identities{sessions: make(map[string]ClientProfile)}
}

// Desktop returns the desktop profile pinned to scope, minting one on first
// use. Repeated calls with the same scope return the same identity.
func (m *Identities) Desktop(scope string) ClientProfile {
	return m.profile("desktop:"+scope, "desktop", desktopUserAgents, Viewport{Width: 1920, Height: 1080})
}

// Mobile returns the mobile profile pinned to scope.
func (m *Identities) Mobile(scope string) ClientProfile {
	return m.profile("mobile:"+scope, "mobile", mobileUserAgents, Viewport{Width: 390, Height: 844})
}

func (m *Identities) profile(key, name string, agents []string, vp Viewport) ClientProfile {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.sessions[key]; ok {
		return p
	}
	p := ClientProfile{
		Name:      name,
		UserAgent: agents[rand.Intn(len(agents))],
		Viewport:  vp,
	}
	m.sessions[key] = p
	return p
}

// Forget drops the identities minted for scope, typically at the end of a
// resolve call.
func (m *Identities) Forget(scope string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, "desktop:"+scope)
	delete(m.sessions, "mobile:"+scope)
}
