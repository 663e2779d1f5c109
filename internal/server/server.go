// Package server provides the HTTP API for Dadras.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/dadras-ai/dadras/internal/config"
	"github.com/dadras-ai/dadras/internal/history"
	"github.com/dadras-ai/dadras/internal/ingest"
	"github.com/dadras-ai/dadras/internal/rag"
	"github.com/dadras-ai/dadras/internal/vectorstore"
)

// Server is the HTTP server for the Dadras API.
type Server struct {
	orchestrator *rag.Orchestrator
	ingestor     *ingest.Orchestrator
	store        vectorstore.Store
	messages     *history.MessageStore
	config       *config.ServerConfig
	logger       *zap.Logger
	server       *http.Server
}

// NewServer creates a server with the given dependencies. messages may be nil
// when conversation persistence is disabled.
func NewServer(
	orchestrator *rag.Orchestrator,
	ingestor *ingest.Orchestrator,
	store vectorstore.Store,
	messages *history.MessageStore,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	return &Server{
		orchestrator: orchestrator,
		ingestor:     ingestor,
		store:        store,
		messages:     messages,
		config:       cfg,
		logger:       logger,
	}
}

// Router builds the chi router with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/ask", s.handleAsk)
	r.Post("/api/v1/upload", s.handleUpload)
	r.Get("/api/v1/stats", s.handleStats)
	r.Get("/api/v1/sources", s.handleSources)
	r.Post("/api/v1/reset", s.handleReset)
	r.Get("/health", s.handleHealth)

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
