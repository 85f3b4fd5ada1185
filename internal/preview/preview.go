// Package preview extracts a short readable summary of a citation page.
package preview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	readability "github.com/go-shiori/go-readability"
)

// MaxExcerpt is the longest excerpt returned, in runes.
const MaxExcerpt = 400

const maxBody = 4 << 20

// ErrUnsupportedURL is returned for anything but absolute http(s) URLs.
var ErrUnsupportedURL = errors.New("unsupported URL")

// Preview is what a citation link leads to.
type Preview struct {
	URI     string `json:"uri"`
	Title   string `json:"title"`
	Site    string `json:"site"`
	Excerpt string `json:"excerpt"`
}

// HTTPError is a non-success answer from the cited site.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("fetching page: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Fetcher downloads pages and runs readability extraction on them.
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a fetcher. A zero timeout uses 15 seconds.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// Fetch downloads uri and extracts its title, site name and excerpt.
func (f *Fetcher) Fetch(ctx context.Context, uri string) (Preview, error) {
	u, err := url.Parse(uri)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Preview{}, fmt.Errorf("%w: %q", ErrUnsupportedURL, uri)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return Preview{}, err
	}
	req.Header.Set("User-Agent", "adhara/1.0 (astronomy viewer)")

	resp, err := f.client.Do(req)
	if err != nil {
		return Preview{}, fmt.Errorf("fetching page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Preview{}, &HTTPError{StatusCode: resp.StatusCode}
	}

	article, err := readability.FromReader(io.LimitReader(resp.Body, maxBody), resp.Request.URL)
	if err != nil {
		return Preview{}, fmt.Errorf("extracting content: %w", err)
	}

	p := Preview{
		URI:   uri,
		Title: strings.TrimSpace(article.Title),
		Site:  strings.TrimSpace(article.SiteName),
	}
	if p.Title == "" {
		p.Title = uri
	}
	if p.Site == "" {
		p.Site = strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	}

	excerpt := strings.TrimSpace(article.Excerpt)
	if excerpt == "" {
		excerpt = article.TextContent
	}
	p.Excerpt = truncate(strings.Join(strings.Fields(excerpt), " "), MaxExcerpt)

	log.Debug("Fetched preview", "uri", uri, "site", p.Site)
	return p, nil
}

// truncate cuts s to at most n runes, preferring a word boundary.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	cut := string(r[:n-1])
	if i := strings.LastIndex(cut, " "); i > n/2 {
		cut = cut[:i]
	}
	return cut + "…"
}
