package preview

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"
)

const page = `<!DOCTYPE html>
<html><head>
<title>Webb spots a new exoplanet atmosphere</title>
<meta property="og:site_name" content="Space Daily">
<meta name="description" content="Astronomers used the James Webb Space Telescope to detect carbon dioxide in a distant atmosphere.">
</head><body>
<nav>Home | News</nav>
<article>
<h1>Webb spots a new exoplanet atmosphere</h1>
<p>Astronomers used the James Webb Space Telescope to detect carbon dioxide in the atmosphere of a gas giant orbiting a Sun-like star hundreds of light years away. The result opens a new window on planetary chemistry.</p>
<p>Further observations are planned for next year, when the planet transits its star again and the team can refine the measurement with a second instrument.</p>
</article>
</body></html>`

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, page)
	}))
	defer srv.Close()

	p, err := NewFetcher(0).Fetch(context.Background(), srv.URL+"/news/webb")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(p.Title, "Webb spots") {
		t.Errorf("unexpected title %q", p.Title)
	}
	if p.Site != "Space Daily" {
		t.Errorf("unexpected site %q", p.Site)
	}
	if !strings.Contains(p.Excerpt, "carbon dioxide") {
		t.Errorf("unexpected excerpt %q", p.Excerpt)
	}
	if utf8.RuneCountInString(p.Excerpt) > MaxExcerpt {
		t.Errorf("excerpt too long: %d", utf8.RuneCountInString(p.Excerpt))
	}
}

func TestFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	_, err := NewFetcher(0).Fetch(context.Background(), srv.URL)
	var he *HTTPError
	if !errors.As(err, &he) || he.StatusCode != http.StatusGone {
		t.Errorf("expected HTTPError 410, got %v", err)
	}
}

func TestFetchUnsupportedURL(t *testing.T) {
	for _, uri := range []string{"", "ftp://example.org/x", "javascript:alert(1)", "/relative"} {
		if _, err := NewFetcher(0).Fetch(context.Background(), uri); !errors.Is(err, ErrUnsupportedURL) {
			t.Errorf("%q: expected ErrUnsupportedURL, got %v", uri, err)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("expected unchanged, got %q", got)
	}
	long := strings.Repeat("word ", 200)
	got := truncate(long, 50)
	if utf8.RuneCountInString(got) > 50 {
		t.Errorf("expected at most 50 runes, got %d", utf8.RuneCountInString(got))
	}
	if !strings.HasSuffix(got, "…") || strings.HasSuffix(strings.TrimSuffix(got, "…"), " ") {
		t.Errorf("expected word-boundary cut with ellipsis, got %q", got)
	}
}
