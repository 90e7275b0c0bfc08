// Package server provides the HTTP API for vecgate.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/devine/vecgate/internal/config"
	"github.com/devine/vecgate/internal/embedding"
	"github.com/devine/vecgate/internal/service"
)

// Server is the HTTP server for the vector API.
type Server struct {
	vectors  *service.VectorService
	embedder embedding.Embedder
	config   *config.ServerConfig
	debug    bool
	logger   *zap.Logger
	server   *http.Server
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithEmbedder enables POST /api/vectors/embed.
func WithEmbedder(e embedding.Embedder) Option {
	return func(s *Server) { s.embedder = e }
}

// WithDebug includes provider error details in embed failures.
func WithDebug(debug bool) Option {
	return func(s *Server) { s.debug = debug }
}

// NewServer creates a server with the given dependencies.
func NewServer(
	vectors *service.VectorService,
	cfg *config.ServerConfig,
	logger *zap.Logger,
	opts ...Option,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		vectors: vectors,
		config:  cfg,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the HTTP handler with all routes and middleware mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api/vectors", func(r chi.Router) {
		r.Post("/save", s.handleSave)
		r.Post("/search", s.handleSearch)
		r.Get("/count", s.handleCount)
		r.Get("/health", s.handleHealth)
		r.Post("/embed", s.handleEmbed)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
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
