package session

import (
	"errors"
	"fmt"

	"github.com/TobiSchelling/adhara/internal/apod"
	"github.com/TobiSchelling/adhara/internal/model"
)

// Phase is where the current cycle stands.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseLoadingItem Phase = "loading_item"
	PhaseItemReady   Phase = "item_ready"
	PhaseSettled     Phase = "settled"
	PhaseErrored     Phase = "errored"
)

// ErrorKind classifies a user-visible metadata failure.
type ErrorKind string

const (
	KindRateLimited        ErrorKind = "rate_limited"
	KindUpstreamRejected   ErrorKind = "upstream_rejected"
	KindNetworkUnreachable ErrorKind = "network_unreachable"
	KindInvalidDate        ErrorKind = "invalid_date"
	KindUnknown            ErrorKind = "unknown"
)

// ErrorInfo is the error shown to the user. Every kind offers a retry.
type ErrorInfo struct {
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
}

// ViewState is the transient state of the current session.
type ViewState struct {
	Item           *model.FeedItem `json:"item,omitempty"`
	Insight        *model.Insight  `json:"insight,omitempty"`
	ItemLoading    bool            `json:"itemLoading"`
	InsightLoading bool            `json:"insightLoading"`
	Error          *ErrorInfo      `json:"error,omitempty"`
	SelectedDate   string          `json:"selectedDate"`
	Cycle          uint64          `json:"cycle"`
	Phase          Phase           `json:"phase"`
}

// DisplayTitle prefers the translated title and falls back to the original.
func (v ViewState) DisplayTitle() string {
	if v.Insight != nil && v.Insight.TranslatedTitle != "" {
		return v.Insight.TranslatedTitle
	}
	if v.Item != nil {
		return v.Item.Title
	}
	return ""
}

// DisplayExplanation prefers the translated explanation.
func (v ViewState) DisplayExplanation() string {
	if v.Insight != nil && v.Insight.TranslatedExplanation != "" {
		return v.Insight.TranslatedExplanation
	}
	if v.Item != nil {
		return v.Item.Explanation
	}
	return ""
}

func (v ViewState) clone() ViewState {
	out := v
	if v.Item != nil {
		item := *v.Item
		out.Item = &item
	}
	if v.Insight != nil {
		in := *v.Insight
		out.Insight = &in
	}
	if v.Error != nil {
		e := *v.Error
		out.Error = &e
	}
	return out
}

// classify maps a metadata error to its user-visible form.
func classify(err error) *ErrorInfo {
	info := &ErrorInfo{Kind: KindUnknown, Message: err.Error(), Retryable: true}

	var upstream *apod.UpstreamError
	switch {
	case errors.Is(err, apod.ErrRateLimited):
		info.Kind = KindRateLimited
		info.Message = apod.ErrRateLimited.Error()
	case errors.Is(err, apod.ErrNetworkUnreachable):
		info.Kind = KindNetworkUnreachable
		info.Message = apod.ErrNetworkUnreachable.Error()
	case errors.Is(err, apod.ErrInvalidDate):
		info.Kind = KindInvalidDate
	case errors.As(err, &upstream):
		info.Kind = KindUpstreamRejected
		info.Message = upstream.Message
		if info.Message == "" {
			info.Message = fmt.Sprintf("the image service returned status %d", upstream.StatusCode)
		}
	case errors.Is(err, apod.ErrUpstreamRejected):
		info.Kind = KindUpstreamRejected
	}
	return info
}
