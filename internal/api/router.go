// Package api provides the HTTP API for LifeGuard.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/lifeguard/lifeguard/internal/api/handler"
	"github.com/lifeguard/lifeguard/internal/api/middleware"
	"github.com/lifeguard/lifeguard/internal/api/models"
	"github.com/lifeguard/lifeguard/internal/facility"
	"github.com/lifeguard/lifeguard/internal/provider/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	RequireTLS  bool

	Dispatcher handler.Dispatcher
	Lookup     facility.Lookup
	Providers  *resilience.Registry
	Checks     []handler.DependencyCheck

	// DispatchMode is shown on the status endpoint. Optional.
	DispatchMode *models.DispatchMode
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Set default service name if not provided
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "lifeguard-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))         // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))       // Panic recovery
	r.Use(chimiddleware.RealIP)                  // Real IP extraction
	r.Use(middleware.SecurityHeaders)            // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS)) // TLS enforcement
	r.Use(middleware.ContentTypeJSON)            // JSON content type

	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Providers, cfg.Checks...).
		WithDispatchMode(cfg.DispatchMode)
	dispatchHandler := handler.NewDispatchHandler(cfg.Dispatcher, cfg.Lookup, cfg.Logger)

	dispatchRateLimit := middleware.RateLimitByDevice(middleware.DispatchRateLimit) // 30 req/min
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)     // 100 req/min

	// Emergency endpoints used by SOS clients and the tracking UI
	r.Route("/api/emergency", func(r chi.Router) {
		r.With(dispatchRateLimit, middleware.RequireJSON).Post("/dispatch", dispatchHandler.Dispatch)
		r.With(standardRateLimit).Get("/facilities", dispatchHandler.Facilities)
	})

	r.Route("/v1", func(r chi.Router) {
		r.With(dispatchRateLimit, middleware.RequireJSON).Post("/dispatch", dispatchHandler.Dispatch)

		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})
	})

	return r
}
