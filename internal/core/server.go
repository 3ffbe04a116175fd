// Package core provides the API chassis for the Mizan messaging platform.
// It creates a chi router and enforces cross-cutting concerns -- panic
// recovery, request timeouts, correlation IDs, and structured logging --
// before requests reach domain handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mizan/internal/config"
	"mizan/internal/types"
)

// RouteRegistrar mounts a group of domain routes on the router. The
// indirection avoids import cycles between core and handler packages.
type RouteRegistrar func(r chi.Router)

// Server encapsulates the HTTP-facing dependencies, allowing injection
// during testing and distinct configuration per environment.
type Server struct {
	Config *config.Config
	Repos  types.RepositoryRegistry
	Logger *slog.Logger

	// V1Registrars are mounted under /v1; WebhookRegistrars are mounted at
	// the root (provider webhooks carry no version prefix).
	V1Registrars      []RouteRegistrar
	WebhookRegistrars []RouteRegistrar

	// HealthProbes are executed by GET /health.
	HealthProbes []HealthProbe

	router *chi.Mux
}

// NewServer initializes the server chassis. The caller mounts routes via
// MountRoutes after registering handlers.
func NewServer(cfg *config.Config, repos types.RepositoryRegistry, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if repos == nil {
		return nil, fmt.Errorf("repository registry must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config: cfg,
		Repos:  repos,
		Logger: logger,
		router: chi.NewRouter(),
	}, nil
}

// MountRoutes registers the global middleware chain and all routes.
//
// Middleware order matters:
//  1. Recoverer       - outermost, catches all panics.
//  2. ContextTimeout  - soft deadline below the provider's retry deadline.
//  3. RequestID       - correlation ID for tracing.
//  4. RequestLogger   - structured request logs.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(s.Config.Server.RequestTimeout))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(s.Logger))

	s.router.Route("/v1", func(r chi.Router) {
		for _, reg := range s.V1Registrars {
			reg(r)
		}
	})

	for _, reg := range s.WebhookRegistrars {
		reg(s.router)
	}

	s.router.Get("/health", s.HandleHealth)
}

// Handler returns the http.Handler for ListenAndServe.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown performs a graceful termination of server resources, closing the
// repository connection pool when the registry supports it.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	if closer, ok := s.Repos.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			s.Logger.Error("error closing repository connections", "error", err)
			return fmt.Errorf("closing repository connections: %w", err)
		}
	}

	s.Logger.Info("server shutdown complete")
	return nil
}
