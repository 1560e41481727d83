// Package web provides the HTTP server and JSON API for the file analysis
// service.
package web

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"datapeek/internal/config"
	"datapeek/internal/metrics"
	"datapeek/internal/service"
)

// Server is the HTTP server for the analysis API.
type Server struct {
	service *service.Service
	metrics metrics.Backend
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a Server with middleware and routes configured.
func NewServer(svc *service.Service, backend metrics.Backend, cfg config.ServerConfig) *Server {
	s := &Server{
		service: svc,
		metrics: backend,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware(cfg)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) setupMiddleware(cfg config.ServerConfig) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(cfg.RequestTimeout))
	s.router.Use(s.instrument)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/files", s.handleUpload)
		r.Get("/files", s.handleList)
		r.Get("/files/{id}", s.handleGet)
		r.Delete("/files/{id}", s.handleDelete)
		r.Post("/files/{id}/process", s.handleProcess)
		r.Get("/files/{id}/report", s.handleReport)
	})
}

// instrument records request counts and durations per status class.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		status := strconv.Itoa(ww.Status())
		labels := metrics.Labels{"status": status}
		s.metrics.IncCounter(metrics.MetricHTTPRequests, 1, labels)
		if ww.Status() >= 500 {
			s.metrics.IncCounter(metrics.MetricHTTPErrors, 1, labels)
		}
		s.metrics.ObserveHistogram(metrics.MetricHTTPDuration, time.Since(start).Seconds(), labels)
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Start begins serving. Blocks until the listener fails or Shutdown is
// called; a clean shutdown returns nil.
func (s *Server) Start() error {
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
