// Package api exposes the CardioGenie intake engine over HTTP.
//
// It provides RESTful endpoints for starting conversations, submitting
// patient messages, abandoning conversations, and reading intake records.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Aniketchurihar/CardioGenie/internal/catalog"
	"github.com/Aniketchurihar/CardioGenie/internal/engine"
	"github.com/Aniketchurihar/CardioGenie/internal/store"
)

// DefaultAddr is the address the API server listens on when not configured.
const DefaultAddr = ":8080"

// Timeouts for the HTTP server.
const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// Server hosts the intake HTTP endpoints.
type Server struct {
	engine  *engine.Engine
	st      store.Store
	catalog *catalog.Catalog
	addr    string
	httpSrv *http.Server
}

// NewServer creates an API server around the given engine.
func NewServer(eng *engine.Engine, st store.Store, cat *catalog.Catalog, opts ...Option) (*Server, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewServer invoked", "addr", cfg.Addr)

	if eng == nil || st == nil || cat == nil {
		return nil, fmt.Errorf("engine, store and catalog are required")
	}
	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	return &Server{engine: eng, st: st, catalog: cat, addr: addr}, nil
}

// Routes builds the chi router with all intake endpoints.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.healthHandler)
	r.Route("/api", func(r chi.Router) {
		r.Post("/conversations", s.createConversationHandler)
		r.Get("/conversations", s.listConversationsHandler)
		r.Route("/conversations/{conversationID}", func(r chi.Router) {
			r.Get("/", s.getConversationHandler)
			r.Post("/messages", s.messageHandler)
			r.Post("/abandon", s.abandonHandler)
		})
		r.Get("/symptoms", s.symptomsHandler)
	})
	return r
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", s.addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("API server failed: %w", err)
	case <-ctx.Done():
		slog.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("API server shutdown failed: %w", err)
		}
		return nil
	}
}
