package internal

import (
	"fmt"
	"path/filepath"

	"github.com/playwright-community/playwright-go"
)

// browserRunner owns one headless browser process. The resolver holds it for
// the lifetime of a single resolve call's browser attempts; contexts are
// borrowed per attempt and closed before the next one opens.
type browserRunner struct {
	pw      *playwright.Playwright
	browser playwright.Browser
}

// startBrowser launches one headless Chromium process.
func startBrowser() (*browserRunner, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("starting playwright driver: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--no-first-run",
		},
	})
	if err != nil {
		if stopErr := pw.Stop(); stopErr != nil {
			err = fmt.Errorf("%w (and stopping driver: %v)", err, stopErr)
		}
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	return &browserRunner{pw: pw, browser: browser}, nil
}

// Close releases the browser process and the driver. Safe to call from a
// deferred cleanup path regardless of how the attempt ended.
func (b *browserRunner) Close() {
	if b == nil {
		return
	}
	if b.browser != nil {
		_ = b.browser.Close()
	}
	if b.pw != nil {
		_ = b.pw.Stop()
	}
}

// contextSpec describes one isolated browsing context: the identity it
// presents, the proxy it routes through, and the session it resumes.
type contextSpec struct {
	profile          ClientProfile
	proxy            *BrowserProxy
	storageStatePath string
	cookies          []BrowserCookie
}

// newContext opens a fresh isolated context for one attempt. A saved storage
// state bypasses consent walls; otherwise any supplied cookie jar is loaded,
// normalized for host-scoped cookies.
func (b *browserRunner) newContext(spec contextSpec) (playwright.BrowserContext, error) {
	opts := playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(spec.profile.UserAgent),
		Viewport: &playwright.Size{
			Width:  spec.profile.Viewport.Width,
			Height: spec.profile.Viewport.Height,
		},
		Locale: playwright.String("en-US"),
	}
	if spec.proxy != nil {
		opts.Proxy = &playwright.Proxy{
			Server:   spec.proxy.Server,
			Username: playwright.String(spec.proxy.Username),
			Password: playwright.String(spec.proxy.Password),
		}
	}
	if spec.storageStatePath != "" && FileExists(spec.storageStatePath) {
		opts.StorageStatePath = playwright.String(spec.storageStatePath)
	}

	ctx, err := b.browser.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("creating browser context: %w", err)
	}

	if opts.StorageStatePath == nil && len(spec.cookies) > 0 {
		if err := ctx.AddCookies(toOptionalCookies(spec.cookies)); err != nil {
			_ = ctx.Close()
			return nil, fmt.Errorf("loading cookies into context: %w", err)
		}
	}

	return ctx, nil
}

// toOptionalCookies converts normalized cookies to the engine's shape.
// Host-scoped cookies carry a URL instead of a domain.
func toOptionalCookies(cookies []BrowserCookie) []playwright.OptionalCookie {
	out := make([]playwright.OptionalCookie, 0, len(cookies))
	for _, ck := range cookies {
		oc := playwright.OptionalCookie{
			Name:   ck.Name,
			Value:  ck.Value,
			Secure: playwright.Bool(ck.Secure),
		}
		if ck.URL != "" {
			oc.URL = playwright.String(ck.URL)
		} else {
			oc.Domain = playwright.String(ck.Domain)
			oc.Path = playwright.String(ck.Path)
		}
		if ck.Expires > 0 {
			oc.Expires = playwright.Float(ck.Expires)
		}
		out = append(out, oc)
	}
	return out
}

// storageStatePath returns the saved-session file for the configured
// directory, or "" when none has been established.
func storageStatePath(dir string) string {
	if dir == "" {
		return ""
	}
	path := filepath.Join(dir, "state.json")
	if !FileExists(path) {
		return ""
	}
	return path
}
