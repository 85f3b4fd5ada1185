// Package apod fetches Astronomy Picture of the Day records.
package apod

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/charmbracelet/log"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"golang.org/x/time/rate"

	"github.com/TobiSchelling/adhara/internal/model"
)

const (
	// DefaultBaseURL is the public APOD endpoint.
	DefaultBaseURL = "https://api.nasa.gov/planetary/apod"

	// defaultOffsetDays keeps "today" one day behind the publishing clock.
	defaultOffsetDays = 1
)

// Client fetches APOD records.
type Client struct {
	baseURL string
	apiKey  string
	loc     *time.Location
	now     func() time.Time
	limiter *rate.Limiter
	client  *http.Client
}

// NewClient creates a client. timezone is the publishing timezone used to
// resolve the default date; rps <= 0 disables client-side pacing; a zero
// timeout leaves requests bounded only by the transport.
func NewClient(baseURL, apiKey, timezone string, rps float64, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", timezone, err)
	}

	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		loc:     loc,
		now:     time.Now,
		limiter: rate.NewLimiter(limit, 1),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// DefaultDate is the date fetched when the caller does not pick one.
func (c *Client) DefaultDate() string {
	return SafeDate(c.now(), c.loc, defaultOffsetDays)
}

// FetchByDate fetches the record for date. An empty date resolves to
// DefaultDate; if the service has not published that date yet, the request
// is retried once a day earlier. Explicit dates are never retried.
func (c *Client) FetchByDate(ctx context.Context, date string) (model.FeedItem, error) {
	if date != "" {
		if err := ValidateDate(date); err != nil {
			return model.FeedItem{}, err
		}
		return c.fetchDate(ctx, date)
	}

	resolved := c.DefaultDate()
	item, err := c.fetchDate(ctx, resolved)
	if err == nil || !notPublished(err) {
		return item, err
	}

	fallback := SafeDate(c.now(), c.loc, defaultOffsetDays+1)
	log.Warn("default date not published yet, trying the day before", "date", resolved, "fallback", fallback)
	return c.fetchDate(ctx, fallback)
}

// FetchRandom fetches one randomly selected record.
func (c *Client) FetchRandom(ctx context.Context) (model.FeedItem, error) {
	body, status, err := c.get(ctx, url.Values{"count": {"1"}})
	if err != nil {
		return model.FeedItem{}, err
	}

	var items []model.FeedItem
	if err := json.Unmarshal(body, &items); err != nil {
		return model.FeedItem{}, &UpstreamError{StatusCode: status, Message: "malformed random response"}
	}
	if len(items) == 0 {
		return model.FeedItem{}, &UpstreamError{StatusCode: status, Message: "empty random selection"}
	}
	return normalize(items[0], status)
}

func (c *Client) fetchDate(ctx context.Context, date string) (model.FeedItem, error) {
	body, status, err := c.get(ctx, url.Values{"date": {date}})
	if err != nil {
		return model.FeedItem{}, err
	}

	var item model.FeedItem
	if err := json.Unmarshal(body, &item); err != nil {
		return model.FeedItem{}, &UpstreamError{StatusCode: status, Message: "malformed response"}
	}
	return normalize(item, status)
}

// get issues the request and maps every failure onto the package errors.
// The request carries ctx, so cancelling it aborts the transfer.
func (c *Client) get(ctx context.Context, params url.Values) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, 0, cancelled(ctx)
		}
		return nil, 0, fmt.Errorf("rate limiter: %w", err)
	}

	params.Set("api_key", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	log.Debug("APOD request", "params", redact(params))

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, cancelled(ctx)
		}
		return nil, 0, fmt.Errorf("%w: %v", ErrNetworkUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, cancelled(ctx)
		}
		return nil, 0, fmt.Errorf("%w: reading response: %v", ErrNetworkUnreachable, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, resp.StatusCode, ErrRateLimited
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, resp.StatusCode, &UpstreamError{StatusCode: resp.StatusCode, Message: upstreamMessage(body)}
	}
	return body, resp.StatusCode, nil
}

func cancelled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
}

// upstreamMessage extracts the human message from an error body. The APOD
// service uses {"msg": ...}; the api.nasa.gov gateway uses {"error": {"message": ...}}.
func upstreamMessage(body []byte) string {
	var e struct {
		Msg   string `json:"msg"`
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		return ""
	}
	if e.Msg != "" {
		return e.Msg
	}
	return e.Error.Message
}

func normalize(item model.FeedItem, status int) (model.FeedItem, error) {
	item.Title = strings.TrimSpace(item.Title)
	item.Explanation = strings.TrimSpace(item.Explanation)
	item.Copyright = strings.Join(strings.Fields(item.Copyright), " ")
	if item.MediaKind == "" {
		item.MediaKind = model.MediaImage
	}

	err := validation.ValidateStruct(&item,
		validation.Field(&item.Date, validation.Required, validation.Date(DateLayout)),
		validation.Field(&item.Title, validation.Required),
		validation.Field(&item.StandardURL, validation.When(item.MediaKind != model.MediaOther, validation.Required)),
	)
	if err != nil {
		return model.FeedItem{}, &UpstreamError{StatusCode: status, Message: "incomplete record: " + err.Error()}
	}
	return item, nil
}

func redact(params url.Values) string {
	clean := url.Values{}
	for k, v := range params {
		if k == "api_key" {
			continue
		}
		clean[k] = v
	}
	return clean.Encode()
}

// IsCancelled reports whether err stems from a fired context.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}
