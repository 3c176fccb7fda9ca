// Package httpapi serves the operator status API: health, metrics and the
// run ledger. It never exposes donation content.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jo25425/dona-sub000/internal/core"
	"github.com/jo25425/dona-sub000/internal/metrics"
	"github.com/jo25425/dona-sub000/internal/version"
)

type Store interface {
	Count(ctx context.Context, filters Filters) (int64, error)
	List(ctx context.Context, filters Filters) ([]core.RunRecord, error)
}

type Options struct {
	Addr           string
	RateLimitRPS   int
	RateLimitBurst int
	CORSOrigins    []string
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
	Build          version.Info
}

type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	store      Store
	opts       Options

	metrics *metrics.Metrics
	logger  *slog.Logger
	limits  *clientLimits
}

func New(store Store, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		store:   store,
		opts:    opts,
		metrics: opts.Metrics,
		logger:  logger,
		limits:  newClientLimits(opts.RateLimitRPS, opts.RateLimitBurst),
	}

	router := chi.NewRouter()
	router.Use(middleware.RealIP, srv.account, middleware.Recoverer)
	router.Use(allowOrigins(opts.CORSOrigins), srv.throttle)
	router.Get("/healthz", srv.handleHealthz)
	router.Get("/info", srv.handleInfo)
	router.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	router.Route("/runs", func(r chi.Router) {
		// Ledger listings are the only large bodies.
		r.Use(middleware.Compress(5, "application/json"))
		r.Get("/", srv.handleRuns)
		r.Get("/count", srv.handleCount)
	})
	srv.router = router

	srv.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return srv
}

// Handler exposes the routed handler for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Router lets callers mount extra routes before Start.
func (s *Server) Router() chi.Router { return s.router }

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type infoResponse struct {
	Version  string `json:"version"`
	Revision string `json:"rev"`
	BuiltAt  string `json:"built_at,omitempty"`
	Go       string `json:"go"`
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	build := s.opts.Build
	resp := infoResponse{Version: build.Version, Revision: build.Revision, Go: runtime.Version()}
	if !build.BuiltAt.IsZero() {
		resp.BuiltAt = build.BuiltAt.UTC().Format(time.RFC3339)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	filters, err := FiltersFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	count, err := s.store.Count(r.Context(), filters)
	if err != nil {
		http.Error(w, "count error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(map[string]any{"count": count})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	filters, err := FiltersFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rows, err := s.store.List(r.Context(), filters)
	if err != nil {
		http.Error(w, "list error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(rows)
}

func (s *Server) Start() error {
	log.Printf("httpapi: listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
