// Package server provides the HTTP API for fransearch.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hyperjump/fransearch/internal/config"
	"github.com/hyperjump/fransearch/internal/dataset"
	"github.com/hyperjump/fransearch/internal/metrics"
	"github.com/hyperjump/fransearch/internal/model"
	"github.com/hyperjump/fransearch/internal/search"
	"github.com/hyperjump/fransearch/pkg/utils"
)

// AdminKeyHeader carries the admin API key.
const AdminKeyHeader = "X-Admin-API-Key"

// Server is the HTTP server for the fransearch API.
type Server struct {
	store    *dataset.Store
	engine   *search.Engine
	manager  *model.Manager
	config   config.ServerConfig
	adminKey string
	logger   *zap.Logger
	handler  http.Handler
	server   *http.Server
}

// NewServer creates a server with the given dependencies. An empty adminKey
// disables the admin routes.
func NewServer(
	store *dataset.Store,
	engine *search.Engine,
	manager *model.Manager,
	cfg config.ServerConfig,
	adminKey string,
	logger *zap.Logger,
) *Server {
	s := &Server{
		store:    store,
		engine:   engine,
		manager:  manager,
		config:   cfg,
		adminKey: adminKey,
		logger:   utils.OrNop(logger),
	}
	s.handler = s.routes()
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)
	if s.config.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.config.RequestTimeout))
	}
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", AdminKeyHeader},
		MaxAge:         300,
	}))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if s.config.RateLimit > 0 {
				r.Use(httprate.LimitByIP(s.config.RateLimit, time.Minute))
			}
			r.Get("/health", s.handleHealth)
			r.Get("/search", s.handleSearch)
			r.Get("/recommend/{id}", s.handleRecommend)
			r.Get("/autocomplete", s.handleAutocomplete)
			r.Get("/filters", s.handleFilters)
			r.Get("/listings", s.handleListListings)
			r.Get("/listings/{id}", s.handleGetListing)
		})

		r.Route("/admin", func(r chi.Router) {
			if s.config.AdminRateLimit > 0 {
				r.Use(httprate.LimitByIP(s.config.AdminRateLimit, time.Minute))
			}
			r.Use(s.requireAdmin)
			r.Get("/listings", s.handleListListings)
			r.Post("/listings", s.handleAddListing)
			r.Put("/listings/{id}", s.handleUpdateListing)
			r.Delete("/listings/{id}", s.handleDeleteListing)
			r.Post("/retrain", s.handleRetrain)
			r.Get("/retrain/status", s.handleRetrainStatus)
			r.Post("/restore", s.handleRestore)
			r.Get("/backups", s.handleBackups)
			r.Get("/stats", s.handleStats)
			r.Get("/storage-info", s.handleStorageInfo)
		})
	})
	return r
}

// instrument records request counts and latency by route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordHTTPRequest(route, status, time.Since(start))
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Addr()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       s.config.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.config.WriteTimeout,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Serve runs the server until ctx is cancelled, then shuts it down.
// It satisfies suture.Service.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (s *Server) String() string { return "http-server" }
