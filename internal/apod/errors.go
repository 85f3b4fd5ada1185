package apod

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited means the upstream answered 429. With the shared demo
	// key this happens after a handful of requests per hour.
	ErrRateLimited = errors.New("APOD rate limit reached: the shared API key is saturated, wait a while or set your own key")

	// ErrUpstreamRejected is any other non-success answer. The concrete
	// error is an *UpstreamError.
	ErrUpstreamRejected = errors.New("APOD service rejected the request")

	// ErrNetworkUnreachable is a transport-level failure.
	ErrNetworkUnreachable = errors.New("could not reach the APOD service, check your connection or ad blockers")

	// ErrCancelled means the caller's context fired. Callers must swallow it.
	ErrCancelled = errors.New("APOD request cancelled")

	// ErrInvalidDate is an explicit date that cannot exist upstream.
	ErrInvalidDate = errors.New("invalid APOD date")
)

// UpstreamError carries the status and the message the service returned.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("APOD service error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("APOD service error (%d)", e.StatusCode)
}

func (e *UpstreamError) Unwrap() error {
	return ErrUpstreamRejected
}

// notPublished reports whether err is the 400/404 the service returns for a
// date it has not published yet.
func notPublished(err error) bool {
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		return false
	}
	return ue.StatusCode == 400 || ue.StatusCode == 404
}
