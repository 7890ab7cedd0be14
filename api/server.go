// Package api serves the catalog over HTTP as JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/docutag/animescraper/db"
	"github.com/docutag/animescraper/metrics"
	"github.com/docutag/animescraper/models"
	"github.com/docutag/animescraper/repository"
)

// StreamResolver turns a mirror data-content token into a player URL, and a
// player URL into its direct video URL
type StreamResolver interface {
	Resolve(ctx context.Context, dataContent string) (string, error)
	ExtractVideo(ctx context.Context, playerURL string) (string, error)
}

// ExportStore persists catalog exports
type ExportStore interface {
	SaveExport(ctx context.Context, data []byte, name, contentType string) (string, error)
	GetFullPath(key string) string
}

// Rebuilder rebuilds the live catalog
type Rebuilder interface {
	Rebuild(ctx context.Context) (*models.Catalog, error)
}

// Server represents the API server
type Server struct {
	catalog   *repository.Store
	rebuilder Rebuilder
	resolver  StreamResolver
	exports   ExportStore
	snapshots *db.DB
	metrics   *metrics.Metrics
	logger    *slog.Logger

	config Config
	router chi.Router
	server *http.Server
}

// Config contains server configuration
type Config struct {
	Addr         string
	CORSEnabled  bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		CORSEnabled:  true,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Deps are the collaborators behind the routes. Only Catalog is required;
// routes whose collaborator is nil answer 503.
type Deps struct {
	Catalog   *repository.Store
	Rebuilder Rebuilder
	Resolver  StreamResolver
	Exports   ExportStore
	Snapshots *db.DB
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// NewServer creates a new API server
func NewServer(config Config, deps Deps) *Server {
	if deps.Catalog == nil {
		deps.Catalog = repository.NewStore(nil)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &Server{
		catalog:   deps.Catalog,
		rebuilder: deps.Rebuilder,
		resolver:  deps.Resolver,
		exports:   deps.Exports,
		snapshots: deps.Snapshots,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		config:    config,
		router:    chi.NewRouter(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return s
}

// Handler returns the instrumented root handler
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "animescraper.api")
}

// setupMiddleware configures middleware stack.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.metrics.Middleware)

	if s.config.CORSEnabled {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type"},
			MaxAge:         300,
		}))
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", s.metrics.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/home", s.handleHome)
		r.Get("/ongoing", s.handleOngoing)
		r.Get("/anime", s.handleAnimeList)
		r.Get("/anime/{slug}", s.handleAnime)
		r.Get("/episodes/{slug}", s.handleEpisode)
		r.Get("/genres", s.handleGenres)
		r.Get("/genres/{slug}", s.handleGenre)
		r.Get("/schedule", s.handleSchedule)
		r.Get("/search", s.handleSearch)
		r.Get("/debug", s.handleDebug)

		r.Post("/resolve", s.handleResolve)
		r.Post("/rebuild", s.handleRebuild)
		r.Post("/exports", s.handleExport)

		r.Route("/snapshots", func(r chi.Router) {
			r.Post("/", s.handleCreateSnapshot)
			r.Get("/", s.handleListSnapshots)
			r.Get("/{id}", s.handleGetSnapshot)
			r.Delete("/{id}", s.handleDeleteSnapshot)
			r.Post("/{id}/restore", s.handleRestoreSnapshot)
		})
	})
}

// Start starts the API server
func (s *Server) Start() error {
	s.logger.Info("starting API server", "addr", s.config.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	if s.snapshots != nil {
		return s.snapshots.Close()
	}
	return nil
}

// requestLogger logs each request (skipping health checks to reduce noise)
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
