package apod

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

// 2024-05-03 02:00 UTC is 2024-05-02 22:00 in New York.
var fixedNow = time.Date(2024, time.May, 3, 2, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(baseURL, "TEST_KEY", "America/New_York", 0, 0)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	c.now = func() time.Time { return fixedNow }
	c.limiter = rate.NewLimiter(rate.Inf, 1)
	return c
}

func itemJSON(date string) string {
	return fmt.Sprintf(`{"date":%q,"title":"Pillars %s","explanation":"Dust.","media_type":"image","url":"https://apod.nasa.gov/a.jpg","hdurl":"https://apod.nasa.gov/a_hd.jpg","copyright":"\n Jane Doe \n","service_version":"v1"}`, date, date)
}

// recorder captures the dates requested.
type recorder struct {
	mu    sync.Mutex
	dates []string
}

func (r *recorder) add(d string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dates = append(r.dates, d)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.dates...)
}

func TestDefaultDateUsesPublishingTimezone(t *testing.T) {
	c := newTestClient(t, "http://unused")
	if got := c.DefaultDate(); got != "2024-05-01" {
		t.Errorf("expected 2024-05-01, got %s", got)
	}
}

func TestFetchByDateExplicit(t *testing.T) {
	var rec recorder
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api_key") != "TEST_KEY" {
			t.Errorf("expected api_key to be sent")
		}
		rec.add(r.URL.Query().Get("date"))
		fmt.Fprint(w, itemJSON(r.URL.Query().Get("date")))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	item, err := c.FetchByDate(context.Background(), "2023-12-25")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.Date != "2023-12-25" || item.Title != "Pillars 2023-12-25" {
		t.Errorf("unexpected item: %+v", item)
	}
	if item.HighDefURL == "" || item.Copyright != "Jane Doe" {
		t.Errorf("expected hdurl and trimmed copyright, got %+v", item)
	}
	if got := rec.all(); len(got) != 1 || got[0] != "2023-12-25" {
		t.Errorf("expected a single request for 2023-12-25, got %v", got)
	}
}

func TestFetchByDateDefaultFallsBackOnce(t *testing.T) {
	var rec recorder
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := r.URL.Query().Get("date")
		rec.add(d)
		if d == "2024-05-01" {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"code":404,"msg":"No data available for date: 2024-05-01"}`)
			return
		}
		fmt.Fprint(w, itemJSON(d))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	item, err := c.FetchByDate(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.Date != "2024-04-30" {
		t.Errorf("expected fallback item 2024-04-30, got %s", item.Date)
	}
	got := rec.all()
	if len(got) != 2 || got[0] != "2024-05-01" || got[1] != "2024-04-30" {
		t.Errorf("expected requests [2024-05-01 2024-04-30], got %v", got)
	}
}

func TestFetchByDateDefaultRetriesAtMostOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"code":400,"msg":"Date must be between Jun 16, 1995 and May 02, 2024."}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.FetchByDate(context.Background(), "")
	if !errors.Is(err, ErrUpstreamRejected) {
		t.Fatalf("expected ErrUpstreamRejected, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected exactly 2 requests, got %d", calls.Load())
	}
}

func TestFetchByDateDefaultDoesNotRetryOtherErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if _, err := c.FetchByDate(context.Background(), ""); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 request, got %d", calls.Load())
	}
}

func TestFetchByDateExplicitRejectionDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"code":404,"msg":"No data available for date: 2024-05-02"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.FetchByDate(context.Background(), "2024-05-02")

	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("expected *UpstreamError, got %v", err)
	}
	if ue.StatusCode != 404 || ue.Message != "No data available for date: 2024-05-02" {
		t.Errorf("unexpected upstream error: %+v", ue)
	}
	if calls.Load() != 1 {
		t.Errorf("expected exactly 1 request, got %d", calls.Load())
	}
}

func TestFetchStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
		msg    string
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"code":"OVER_RATE_LIMIT"}}`, ErrRateLimited, ""},
		{"gateway message", http.StatusForbidden, `{"error":{"code":"API_KEY_INVALID","message":"An invalid api_key was supplied."}}`, ErrUpstreamRejected, "An invalid api_key was supplied."},
		{"service message", http.StatusInternalServerError, `{"code":500,"msg":"Internal Service Error"}`, ErrUpstreamRejected, "Internal Service Error"},
		{"no body", http.StatusBadGateway, ``, ErrUpstreamRejected, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			c := newTestClient(t, srv.URL)
			_, err := c.FetchByDate(context.Background(), "2024-01-01")
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			var ue *UpstreamError
			if errors.As(err, &ue) && ue.Message != tt.msg {
				t.Errorf("expected message %q, got %q", tt.msg, ue.Message)
			}
		})
	}
}

func TestFetchNetworkUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := newTestClient(t, url)
	_, err := c.FetchByDate(context.Background(), "2024-01-01")
	if !errors.Is(err, ErrNetworkUnreachable) {
		t.Fatalf("expected ErrNetworkUnreachable, got %v", err)
	}
	if IsCancelled(err) {
		t.Error("network failure must not look like a cancellation")
	}
}

func TestFetchCancellationAbortsRequest(t *testing.T) {
	aborted := make(chan struct{})
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
		close(aborted)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := c.FetchByDate(ctx, "2024-01-01")
		errCh <- err
	}()

	<-started
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrCancelled) || !IsCancelled(err) {
			t.Errorf("expected ErrCancelled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fetch did not return after cancel")
	}

	select {
	case <-aborted:
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the request abort")
	}
}

func TestFetchRandom(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("count") != "1" || r.URL.Query().Get("date") != "" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		fmt.Fprintf(w, "[%s]", itemJSON("2001-07-14"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	item, err := c.FetchRandom(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.Date != "2001-07-14" {
		t.Errorf("expected 2001-07-14, got %s", item.Date)
	}
}

func TestFetchRandomEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "[]")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if _, err := c.FetchRandom(context.Background()); !errors.Is(err, ErrUpstreamRejected) {
		t.Errorf("expected ErrUpstreamRejected, got %v", err)
	}
}

func TestFetchIncompleteRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"date":"2024-01-01","media_type":"image","url":"https://x"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if _, err := c.FetchByDate(context.Background(), "2024-01-01"); !errors.Is(err, ErrUpstreamRejected) {
		t.Errorf("expected ErrUpstreamRejected for missing title, got %v", err)
	}
}

func TestFetchInvalidDateSkipsRequest(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	for _, d := range []string{"yesterday", "2024-13-01", "1990-01-01"} {
		if _, err := c.FetchByDate(context.Background(), d); !errors.Is(err, ErrInvalidDate) {
			t.Errorf("%s: expected ErrInvalidDate, got %v", d, err)
		}
	}
	if calls.Load() != 0 {
		t.Errorf("expected no requests, got %d", calls.Load())
	}
}
