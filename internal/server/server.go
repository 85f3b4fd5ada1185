// Package server exposes the session over HTTP: an HTML page, a JSON API
// and a Server-Sent Events stream of view-state changes.
package server

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/yuin/goldmark"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/adhara/internal/favorites"
	"github.com/TobiSchelling/adhara/internal/feed"
	"github.com/TobiSchelling/adhara/internal/preview"
	"github.com/TobiSchelling/adhara/internal/session"
	"github.com/TobiSchelling/adhara/internal/sse"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

// Session is the part of the orchestrator the server drives.
type Session interface {
	Load(date string, random bool) *session.Cycle
	Retry() *session.Cycle
	State() session.ViewState
}

// RecentLister lists recent feed entries.
type RecentLister interface {
	Recent(ctx context.Context, limit int) ([]feed.Entry, error)
}

// PreviewFetcher fetches a citation preview.
type PreviewFetcher interface {
	Fetch(ctx context.Context, uri string) (preview.Preview, error)
}

// Options wires the server's collaborators. Recent and Previews may be nil.
type Options struct {
	Session     Session
	Favorites   *favorites.Store
	Broker      *sse.Broker
	Recent      RecentLister
	Previews    PreviewFetcher
	RecentLimit int
	Language    string
}

// Server is the HTTP server.
type Server struct {
	opts   Options
	pages  map[string]*template.Template
	router chi.Router
}

// New creates a new Server.
func New(opts Options) (*Server, error) {
	if opts.Session == nil || opts.Favorites == nil || opts.Broker == nil {
		return nil, errors.New("server: session, favorites and broker are required")
	}
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = 7
	}

	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone of base so it can define "content".
	pageNames := []string{"index.html", "favorites.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{opts: opts, pages: pages}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	staticSub, _ := fs.Sub(staticFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	r.Get("/", s.handleIndex)
	r.Get("/favorites", s.handleFavoritesPage)

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Post("/load", s.handleLoad)
		r.Post("/random", s.handleRandom)
		r.Post("/retry", s.handleRetry)

		r.Get("/favorites", s.handleListFavorites)
		r.Post("/favorites/toggle", s.handleToggleFavorite)
		r.Delete("/favorites/{date}", s.handleRemoveFavorite)

		r.Get("/recent", s.handleRecent)
		r.Get("/preview", s.handlePreview)
		r.Get("/events", s.opts.Broker.ServeHTTP)
	})

	s.router = r
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		log.Error("Template not found", "name", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		log.Error("Rendering template", "name", name, "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// requestLogger logs each request through the shared logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// Serve runs the server on addr until ctx is cancelled or the process gets
// SIGINT/SIGTERM, then shuts down gracefully.
func Serve(ctx context.Context, s *Server, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("Server listening", "url", "http://"+addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			log.Info("Received shutdown signal", "signal", sig.String())
		case <-gCtx.Done():
		}

		// Streams never end on their own; close them before Shutdown waits.
		s.opts.Broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", "err", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Server stopped")
	return nil
}
