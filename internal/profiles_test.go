package internal

import (
	"strings"
	"testing"
)

func TestIdentitiesStickyPerScope(t *testing.T) {
	ids := NewIdentities()

	first := ids.Desktop("videoA")
	for i := 0; i < 20; i++ {
		if got := ids.Desktop("videoA"); got != first {
			t.Fatalf("desktop identity changed within a scope: %+v vs %+v", got, first)
		}
	}
}

func TestIdentitiesDesktopAndMobileDiffer(t *testing.T) {
	ids := NewIdentities()

	desktop := ids.Desktop("videoA")
	mobile := ids.Mobile("videoA")

	if desktop.Name != "desktop" || mobile.Name != "mobile" {
		t.Fatalf("unexpected profile names %q / %q", desktop.Name, mobile.Name)
	}
	if desktop.UserAgent == mobile.UserAgent {
		t.Fatal("desktop and mobile share a user agent")
	}
	if desktop.Viewport == mobile.Viewport {
		t.Fatal("desktop and mobile share a viewport")
	}
	if !strings.Contains(mobile.UserAgent, "Mobile") {
		t.Fatalf("mobile user agent does not look mobile: %q", mobile.UserAgent)
	}
}

func TestIdentitiesForget(t *testing.T) {
	ids := NewIdentities()

	// A minted identity survives until the scope is forgotten. The pool is
	// small, so sample repeatedly to see rotation after Forget.
	before := ids.Desktop("videoA")
	rotated := false
	for i := 0; i < 50 && !rotated; i++ {
		ids.Forget("videoA")
		rotated = ids.Desktop("videoA") != before
	}
	if !rotated {
		t.Fatal("identity never rotated after Forget")
	}
}

func TestIdentitiesIndependentScopes(t *testing.T) {
	ids := NewIdentities()

	// Scopes may collide on user agent by chance; what matters is that
	// forgetting one scope leaves the other pinned.
	a := ids.Desktop("videoA")
	b := ids.Desktop("videoB")
	ids.Forget("videoB")
	if got := ids.Desktop("videoA"); got != a {
		t.Fatalf("forgetting one scope disturbed another: %+v vs %+v", got, a)
	}
	_ = b
}
