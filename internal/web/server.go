// Package web provides the HTTP API server for Track Tracker.
package web

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// DefaultAddr is the default server address.
const DefaultAddr = "127.0.0.1:8080"

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr        string
	TokenSecret string
}

// Server is the HTTP server for the API.
type Server struct {
	router   chi.Router
	server   *http.Server
	handlers *Handlers
}

// NewServer creates a new API server. runner may be nil to disable the
// ingest trigger endpoint.
func NewServer(cfg ServerConfig, store Store, runner Runner) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	issuer := NewTokenIssuer(cfg.TokenSecret)
	handlers := NewHandlers(store, runner, issuer)

	router := chi.NewRouter()
	s := &Server{
		router:   router,
		handlers: handlers,
	}

	s.setupMiddleware()
	s.setupRoutes(issuer)

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware for the router.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
}

// setupRoutes configures routes. Reads are open; mutating routes require
// a bearer token.
func (s *Server) setupRoutes(issuer *TokenIssuer) {
	s.router.Get("/health", s.handlers.Health)
	s.router.Post("/auth/token", s.handlers.IssueToken)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/stats", s.handlers.Stats)
		r.Get("/tracks/top", s.handlers.TopTracks)
		r.Get("/tracks/tiers", s.handlers.Tiers)
		r.Get("/snapshots/recent", s.handlers.RecentSnapshots)

		r.Group(func(r chi.Router) {
			r.Use(issuer.RequireAuth)
			r.Post("/ingest", s.handlers.TriggerIngest)
			r.Delete("/tracks/{id}", s.handlers.DeleteTrack)
		})
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	log.Printf("Starting server at http://%s", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Run starts the server and handles graceful shutdown on interrupt signals.
func (s *Server) Run() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-stop:
		log.Println("Shutting down server...")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil {
		return err
	}

	log.Println("Server stopped")
	return nil
}
