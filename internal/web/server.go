// Package web provides the HTTP front end of the directory service.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/idlookup/internal/backup"
	"github.com/JonMunkholm/idlookup/internal/config"
	"github.com/JonMunkholm/idlookup/internal/core"
	"github.com/JonMunkholm/idlookup/internal/web/middleware"
)

// Backuper exports a snapshot on demand.
type Backuper interface {
	Export(ctx context.Context) (backup.Result, error)
}

// Server is the HTTP server for the directory.
type Server struct {
	service *core.Service
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server

	rateLimiter *middleware.RateLimiter
	metrics     http.Handler
	backups     Backuper

	mu             sync.Mutex
	stopBackground context.CancelFunc
}

// Option customizes a Server.
type Option func(*Server)

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithBackups enables POST /api/backup.
func WithBackups(b Backuper) Option {
	return func(s *Server) { s.backups = b }
}

// NewServer creates a Server for service.
func NewServer(service *core.Service, cfg *config.Config, opts ...Option) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		router:  chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if cfg.Rate.Enabled {
		s.rateLimiter = middleware.NewRateLimiter(cfg.Rate.RequestsPerMinute)
	}
	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	if s.cfg.Server.RequestTimeout > 0 {
		s.router.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))
	}
	s.router.Use(securityHeaders)
	if s.rateLimiter != nil {
		s.router.Use(s.rateLimiter.Middleware(s.deny))
	}
	s.router.Use(middleware.RequestMetadata)
	s.router.Use(middleware.Privilege(s.cfg.Security.APIKeys))
}

func (s *Server) setupRoutes() {
	// Liveness
	s.router.Get("/", s.handleAlive)
	s.router.Get("/healthz", s.handleAlive)
	s.router.Get("/readyz", s.handleReady)
	if s.metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.metrics)
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/lookup", s.handleLookup)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequirePrivileged(s.deny))

			r.Get("/stats", s.handleStats)

			r.Get("/records", s.handleListRecords)
			r.Post("/records", s.handleAddRecord)
			r.Delete("/records", s.handleClearRecords)

			r.Post("/records/bulk", s.handleBulkAdd)
			r.Post("/records/bulk-edit", s.handleBulkAdd)
			r.Post("/records/import", s.handleImportCSV)

			r.Get("/records/{key}", s.handleGetRecord)
			r.Patch("/records/{key}", s.handleEditRecord)
			r.Put("/records/{key}/{field}", s.handleEditField)
			r.Delete("/records/{key}", s.handleDeleteRecord)

			r.Post("/reload", s.handleReload)
			r.Post("/backup", s.handleBackup)
		})
	})
}

// Start listens on the configured address until Shutdown is called.
func (s *Server) Start() error {
	if s.rateLimiter != nil {
		bgCtx, cancel := context.WithCancel(context.Background())
		s.mu.Lock()
		s.stopBackground = cancel
		s.mu.Unlock()
		go s.rateLimiter.Cleanup(bgCtx, time.Minute)
	}

	slog.Info("http server listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.stopBackground != nil {
		s.stopBackground()
	}
	s.mu.Unlock()
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
