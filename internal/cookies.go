package internal

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// cookieKind tags the variant held by a CookieSource.
type cookieKind int

const (
	cookieNone cookieKind = iota
	cookieInline
	cookieMapping
	cookieFile
)

// CookieSource is the single tagged-variant cookie input accepted at the
// resolver boundary: an inline header string, a name/value mapping, a path
// to a legacy cookie-jar file, or nothing. Downstream strategies only ever
// see the canonical header-string form.
type CookieSource struct {
	kind   cookieKind
	inline string
	pairs  map[string]string
	path   string
}

// CookiesInline wraps a raw "name=value; name2=value2" header string.
func CookiesInline(header string) CookieSource {
	return CookieSource{kind: cookieInline, inline: header}
}

// CookiesMapping wraps a name→value map.
func CookiesMapping(pairs map[string]string) CookieSource {
	return CookieSource{kind: cookieMapping, pairs: pairs}
}

// CookiesFile wraps a path to a Netscape-format cookie-jar file.
func CookiesFile(path string) CookieSource {
	return CookieSource{kind: cookieFile, path: path}
}

// NoCookies is the absent variant. Absence is not an error.
func NoCookies() CookieSource { return CookieSource{} }

// IsZero reports whether no cookies were supplied.
func (c CookieSource) IsZero() bool { return c.kind == cookieNone }

// Header resolves the source to a canonical Cookie header value. Mapping
// keys are emitted in sorted order so the output is deterministic.
func (c CookieSource) Header() (string, error) {
	switch c.kind {
	case cookieNone:
		return "", nil
	case cookieInline:
		return strings.TrimSpace(c.inline), nil
	case cookieMapping:
		names := make([]string, 0, len(c.pairs))
		for name := range c.pairs {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, name+"="+c.pairs[name])
		}
		return strings.Join(parts, "; "), nil
	case cookieFile:
		jar, err := ParseCookieJar(c.path)
		if err != nil {
			return "", err
		}
		parts := make([]string, 0, len(jar))
		for _, ck := range jar {
			parts = append(parts, ck.Name+"="+ck.Value)
		}
		return strings.Join(parts, "; "), nil
	}
	return "", fmt.Errorf("unknown cookie source kind %d", c.kind)
}

// BrowserCookie is a cookie shaped for the browser-automation engine. For
// host-scoped cookies Domain is empty and URL carries the origin instead.
type BrowserCookie struct {
	Name    string
	Value   string
	Domain  string
	Path    string
	URL     string
	Secure  bool
	Expires float64
}

// BrowserCookies resolves the source to engine-ready cookies, applying
// host-scoped normalization. Inline and mapping variants are scoped to the
// youtube.com domain.
func (c CookieSource) BrowserCookies() ([]BrowserCookie, error) {
	switch c.kind {
	case cookieNone:
		return nil, nil
	case cookieFile:
		jar, err := ParseCookieJar(c.path)
		if err != nil {
			return nil, err
		}
		out := make([]BrowserCookie, 0, len(jar))
		for _, ck := range jar {
			out = append(out, normalizeHostScoped(ck))
		}
		return out, nil
	}

	header, err := c.Header()
	if err != nil {
		return nil, err
	}
	var out []BrowserCookie
	for pair := range strings.SplitSeq(header, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || name == "" {
			continue
		}
		out = append(out, normalizeHostScoped(BrowserCookie{
			Name:   name,
			Value:  value,
			Domain: ".youtube.com",
			Path:   "/",
		}))
	}
	return out, nil
}

// normalizeHostScoped enforces the constraints the automation engine demands
// for __Host- (and the secure flag for __Secure-) cookies: secure forced on,
// path forced to root, and an explicit URL instead of a domain. Malformed
// host-scoped cookies are rejected outright by the engine.
func normalizeHostScoped(ck BrowserCookie) BrowserCookie {
	if strings.HasPrefix(ck.Name, "__Secure-") {
		ck.Secure = true
	}
	if strings.HasPrefix(ck.Name, "__Host-") {
		ck.Secure = true
		ck.Path = "/"
		host := strings.TrimPrefix(ck.Domain, ".")
		if host == "" {
			host = "www.youtube.com"
		}
		ck.Domain = ""
		ck.URL = "https://" + host + "/"
	}
	return ck
}

// ParseCookieJar reads a Netscape-format cookie file (the legacy export
// format: seven tab-separated fields, "#HttpOnly_" domain prefixes).
func ParseCookieJar(path string) ([]BrowserCookie, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening cookie jar: %w", err)
	}
	defer f.Close()

	var cookies []BrowserCookie
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		httpOnly := strings.HasPrefix(line, "#HttpOnly_")
		if httpOnly {
			line = strings.TrimPrefix(line, "#HttpOnly_")
		} else if strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 7 {
			continue
		}

		expires, _ := strconv.ParseFloat(fields[4], 64)
		cookies = append(cookies, BrowserCookie{
			Domain:  fields[0],
			Path:    fields[2],
			Secure:  strings.EqualFold(fields[3], "TRUE"),
			Expires: expires,
			Name:    fields[5],
			Value:   fields[6],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading cookie jar: %w", err)
	}
	return cookies, nil
}
