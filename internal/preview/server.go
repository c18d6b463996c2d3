// Package preview serves the render engine's state over HTTP for local
// inspection: the rendered diagram, the failure view with its retry
// affordance, and the raw SVG. It is a development surface, not a public
// one, so it carries no auth.
package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/gitunderstand/gitunderstand-go/internal/render"
)

// Option configures the server.
type Option func(*Server)

// WithRepoLink makes diagram node clicks resolve to base joined with the
// repository-relative path. base is typically a GitHub blob URL prefix.
func WithRepoLink(base string) Option {
	return func(s *Server) {
		s.repoBase = strings.TrimSuffix(base, "/")
	}
}

// Server exposes one render engine on a local port.
type Server struct {
	Router *chi.Mux
	Port   int

	engine   *render.Engine
	logger   *slog.Logger
	repoBase string
}

// New wires routes and middleware around engine.
func New(engine *render.Engine, port int, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		Port:   port,
		engine: engine,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "gitunderstand-preview")
	})

	r.Get("/", s.handleIndex)
	r.Get("/diagram.svg", s.handleSVG)
	r.Post("/retry", s.handleRetry)
	r.Post("/reset", s.handleReset)
	r.Get("/files/*", s.handleFile)
	r.Get("/healthz", s.handleHealth)

	s.Router = r
	return s
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.Port),
		Handler: s.Router,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("preview server listening", slog.Int("port", s.Port))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderPage(w, s.engine.Snapshot()); err != nil {
		s.logger.Error("failed to render preview page",
			slog.String("error", err.Error()))
		http.Error(w, "template error", http.StatusInternalServerError)
	}
}

func (s *Server) handleSVG(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	if snap.State != render.StateRendered {
		http.Error(w, "no diagram rendered", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Write([]byte(snap.SVG))
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Retry(r.Context()); err != nil {
		AddError(r.Context(), err)
		if errors.Is(err, render.ErrNoCandidate) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.engine.Reset()
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleFile is the click target for diagram nodes. With a repository link
// configured it forwards to the hosted file; otherwise it names the path.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "*")
	if s.repoBase != "" {
		http.Redirect(w, r, s.repoBase+"/"+path, http.StatusFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, path)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
