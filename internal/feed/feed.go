// Package feed lists recent items from the APOD RSS feed.
package feed

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/mmcdole/gofeed"
)

// DefaultURL is the public APOD RSS feed.
const DefaultURL = "https://apod.nasa.gov/apod.rss"

const maxSummary = 240

// Entry is one recent item.
type Entry struct {
	Date    string `json:"date"` // YYYY-MM-DD or empty
	Title   string `json:"title"`
	Link    string `json:"link"`
	Summary string `json:"summary,omitempty"`
}

// Reader fetches and parses the feed.
type Reader struct {
	url    string
	parser *gofeed.Parser
}

// NewReader creates a Reader for feedURL.
func NewReader(feedURL string) *Reader {
	if feedURL == "" {
		feedURL = DefaultURL
	}
	return &Reader{url: feedURL, parser: gofeed.NewParser()}
}

// Recent returns up to limit entries, newest first. limit <= 0 returns all.
func (r *Reader) Recent(ctx context.Context, limit int) ([]Entry, error) {
	f, err := r.parser.ParseURLWithContext(r.url, ctx)
	if err != nil {
		return nil, fmt.Errorf("parsing feed %s: %w", r.url, err)
	}

	var entries []Entry
	for _, item := range f.Items {
		if e := parseItem(item); e != nil {
			entries = append(entries, *e)
		}
	}

	// Undated entries sort last.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Date > entries[j].Date
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	log.Debug("Parsed feed", "url", r.url, "entries", len(entries))
	return entries, nil
}

// pageDate matches APOD page names such as ap240501.html.
var pageDate = regexp.MustCompile(`ap(\d{2})(\d{2})(\d{2})\.html`)

func parseItem(item *gofeed.Item) *Entry {
	link := item.Link
	if link == "" {
		link = item.GUID
	}
	title := strings.TrimSpace(item.Title)
	if link == "" || title == "" {
		return nil
	}

	var date string
	if m := pageDate.FindStringSubmatch(link); m != nil {
		century := "20"
		if m[1] >= "95" {
			century = "19"
		}
		date = fmt.Sprintf("%s%s-%s-%s", century, m[1], m[2], m[3])
	} else if item.PublishedParsed != nil {
		date = item.PublishedParsed.Format("2006-01-02")
	} else if item.UpdatedParsed != nil {
		date = item.UpdatedParsed.Format("2006-01-02")
	}

	summary := stripHTML(item.Description)
	if len([]rune(summary)) > maxSummary {
		summary = string([]rune(summary)[:maxSummary]) + "…"
	}

	return &Entry{Date: date, Title: title, Link: link, Summary: summary}
}

func stripHTML(text string) string {
	var result strings.Builder
	inTag := false
	for _, r := range text {
		if r == '<' {
			inTag = true
			result.WriteRune(' ')
			continue
		}
		if r == '>' {
			inTag = false
			continue
		}
		if !inTag {
			result.WriteRune(r)
		}
	}

	s := result.String()
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&quot;", `"`)
	s = strings.ReplaceAll(s, "&#39;", "'")

	return strings.Join(strings.Fields(s), " ")
}
