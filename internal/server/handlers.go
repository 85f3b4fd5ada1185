package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/TobiSchelling/adhara/internal/model"
	"github.com/TobiSchelling/adhara/internal/preview"
	"github.com/TobiSchelling/adhara/internal/session"
	"github.com/TobiSchelling/adhara/internal/sse"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("JSON encode failed", "err", err)
	}
}

type errResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errResponse{Error: msg})
}

// wantsHTML reports whether the request came from a plain HTML form, in
// which case mutating endpoints redirect back to the page.
func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

type cycleResponse struct {
	Cycle uint64 `json:"cycle"`
}

func (s *Server) accepted(w http.ResponseWriter, r *http.Request, c *session.Cycle) {
	if wantsHTML(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusAccepted, cycleResponse{Cycle: c.ID})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	state := s.opts.Session.State()
	favorited := false
	if state.Item != nil {
		favorited = s.opts.Favorites.IsFavorited(state.Item.Date)
	}

	s.render(w, "index.html", map[string]any{
		"State":     state,
		"Favorited": favorited,
		"Favorites": s.opts.Favorites.List(),
		"Language":  s.opts.Language,
	})
}

func (s *Server) handleFavoritesPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, "favorites.html", map[string]any{
		"Favorites": s.opts.Favorites.List(),
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Session.State())
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	date := strings.TrimSpace(r.FormValue("date"))
	s.accepted(w, r, s.opts.Session.Load(date, false))
}

func (s *Server) handleRandom(w http.ResponseWriter, r *http.Request) {
	s.accepted(w, r, s.opts.Session.Load("", true))
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	s.accepted(w, r, s.opts.Session.Retry())
}

type favoritesResponse struct {
	Count   int                   `json:"count"`
	Entries []model.FavoriteEntry `json:"entries"`
}

func (s *Server) favoritesBody() favoritesResponse {
	entries := s.opts.Favorites.List()
	if entries == nil {
		entries = []model.FavoriteEntry{}
	}
	return favoritesResponse{Count: len(entries), Entries: entries}
}

func (s *Server) handleListFavorites(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.favoritesBody())
}

type toggleResponse struct {
	Date      string `json:"date"`
	Favorited bool   `json:"favorited"`
	Count     int    `json:"count"`
}

// handleToggleFavorite toggles the item currently on screen. Without an
// insight the toggle is a no-op.
func (s *Server) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	state := s.opts.Session.State()
	if state.Item == nil {
		writeError(w, http.StatusConflict, "no item loaded")
		return
	}

	favorited, err := s.opts.Favorites.Toggle(*state.Item, state.Insight)
	if err != nil {
		log.Error("Toggling favorite", "date", state.Item.Date, "err", err)
		writeError(w, http.StatusInternalServerError, "could not save favorites")
		return
	}
	s.opts.Broker.Publish(sse.Event{Type: sse.EventFavorites, Data: s.favoritesBody()})

	if wantsHTML(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, toggleResponse{
		Date:      state.Item.Date,
		Favorited: favorited,
		Count:     s.opts.Favorites.Len(),
	})
}

func (s *Server) handleRemoveFavorite(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	removed, err := s.opts.Favorites.Remove(date)
	if err != nil {
		log.Error("Removing favorite", "date", date, "err", err)
		writeError(w, http.StatusInternalServerError, "could not save favorites")
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "not a favorite")
		return
	}
	s.opts.Broker.Publish(sse.Event{Type: sse.EventFavorites, Data: s.favoritesBody()})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	if s.opts.Recent == nil {
		writeError(w, http.StatusNotImplemented, "recent listing disabled")
		return
	}

	limit := s.opts.RecentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.opts.Recent.Recent(r.Context(), limit)
	if err != nil {
		log.Warn("Listing recent items", "err", err)
		writeError(w, http.StatusBadGateway, "could not read the feed")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handlePreview only fetches pages cited by the current insight or a
// saved favorite.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if s.opts.Previews == nil {
		writeError(w, http.StatusNotImplemented, "previews disabled")
		return
	}

	uri := r.URL.Query().Get("uri")
	if uri == "" {
		writeError(w, http.StatusBadRequest, "uri is required")
		return
	}
	if !s.knownCitation(uri) {
		writeError(w, http.StatusNotFound, "not a known citation")
		return
	}

	p, err := s.opts.Previews.Fetch(r.Context(), uri)
	if err != nil {
		var he *preview.HTTPError
		switch {
		case errors.Is(err, preview.ErrUnsupportedURL):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &he):
			writeError(w, http.StatusBadGateway, err.Error())
		default:
			log.Warn("Fetching preview", "uri", uri, "err", err)
			writeError(w, http.StatusBadGateway, "could not fetch the page")
		}
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) knownCitation(uri string) bool {
	if st := s.opts.Session.State(); st.Insight != nil {
		for _, c := range st.Insight.Citations {
			if c.URI == uri {
				return true
			}
		}
	}
	for _, e := range s.opts.Favorites.List() {
		for _, c := range e.Insight.Citations {
			if c.URI == uri {
				return true
			}
		}
	}
	return false
}
