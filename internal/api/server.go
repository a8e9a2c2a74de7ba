// Package api provides the HTTP API server and handlers for the QuestLog resolution service.
package api

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/questlogapp/questlog-server/internal/http/response"
	"github.com/questlogapp/questlog-server/internal/logger"
	"github.com/questlogapp/questlog-server/internal/refindex"
	"github.com/questlogapp/questlog-server/internal/refresh"
	"github.com/questlogapp/questlog-server/internal/resolver"
	"github.com/questlogapp/questlog-server/internal/store"
	"github.com/questlogapp/questlog-server/internal/validation"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	store       *store.Store
	index       *refindex.Index
	pipeline    *resolver.Pipeline
	coordinator *refresh.Coordinator
	validator   *validation.Validator
	router      *chi.Mux
	api         huma.API
	logger      *logger.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(st *store.Store, index *refindex.Index, pipeline *resolver.Pipeline, coordinator *refresh.Coordinator, log *logger.Logger) *Server {
	s := &Server{
		store:       st,
		index:       index,
		pipeline:    pipeline,
		coordinator: coordinator,
		validator:   validation.New(),
		router:      chi.NewRouter(),
		logger:      log,
	}

	s.setupMiddleware()

	humaConfig := huma.DefaultConfig("QuestLog API", "1.0.0")
	s.api = humachi.New(s.router, humaConfig)
	RegisterErrorHandler()

	s.router.Get("/health", s.handleHealthCheck)

	s.registerResolveRoutes()
	s.registerLibraryRoutes()
	s.registerSearchRoutes()
	s.registerRefreshRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setupMiddleware configures middleware stack.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Idempotency-Key"},
		MaxAge:         300,
	}))
}

// handleHealthCheck returns server health status together with the live
// index generation so operators can see whether a crawl has landed yet.
func (s *Server) handleHealthCheck(w http.ResponseWriter, _ *http.Request) {
	response.Success(w, map[string]any{
		"status":        "healthy",
		"index_version": s.index.Version(),
		"catalog_size":  s.index.CatalogSize(),
	}, s.logger.Logger)
}
