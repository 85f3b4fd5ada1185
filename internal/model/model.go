// Package model holds the records shared by the metadata client, the
// enrichment client, the session orchestrator and the favorites store.
package model

// MediaKind is the upstream media_type of a feed item.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
	MediaOther MediaKind = "other"
)

// FeedItem is one day's astronomy picture record. It is uniquely identified
// by Date (YYYY-MM-DD) and never modified after it is fetched.
type FeedItem struct {
	Date        string    `json:"date"`
	Title       string    `json:"title"`
	Explanation string    `json:"explanation"`
	MediaKind   MediaKind `json:"media_type"`
	StandardURL string    `json:"url"`
	HighDefURL  string    `json:"hdurl,omitempty"`
	Copyright   string    `json:"copyright,omitempty"`
}

// BestURL returns the high definition URL when there is one.
func (f FeedItem) BestURL() string {
	if f.HighDefURL != "" {
		return f.HighDefURL
	}
	return f.StandardURL
}

// Citation is a web source surfaced by the enrichment backend's search step.
type Citation struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// Insight is the generated commentary for a FeedItem.
type Insight struct {
	TranslatedTitle          string     `json:"translatedTitle"`
	TranslatedExplanation    string     `json:"translatedExplanation"`
	Reflection               string     `json:"reflection"`
	ScientificContext        string     `json:"scientificContext"`
	PhilosophicalPerspective string     `json:"philosophicalPerspective"`
	SuggestedReadings        []string   `json:"suggestedReading"`
	Citations                []Citation `json:"recentNews,omitempty"`
}

// FavoriteEntry is a saved item. Insight is always present.
type FavoriteEntry struct {
	Item    FeedItem `json:"apod"`
	Insight Insight  `json:"insight"`
}

// DisplayTitle prefers the translated title.
func (e FavoriteEntry) DisplayTitle() string {
	if e.Insight.TranslatedTitle != "" {
		return e.Insight.TranslatedTitle
	}
	return e.Item.Title
}
