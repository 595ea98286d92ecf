// Package api provides the read-only ops server of a backfill run.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/breatheroute/aqbackfill/internal/api/handler"
	"github.com/breatheroute/aqbackfill/internal/api/middleware"
	"github.com/breatheroute/aqbackfill/internal/api/response"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version   string
	BuildTime string
	Logger    zerolog.Logger

	// Metrics enables HTTP metrics when set.
	Metrics *middleware.Metrics

	// RateLimit overrides middleware.OpsRateLimit.
	RateLimit *middleware.RateLimitConfig

	Progress  handler.ProgressSource
	Providers handler.HealthSource
}

// NewRouter creates the chi router serving /health, /v1/progress and /v1/providers.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	limit := middleware.OpsRateLimit
	if cfg.RateLimit != nil {
		limit = *cfg.RateLimit
	}

	// Order matters: the request ID must exist before tracing and logging read it.
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing())
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RateLimitByIP(limit))

	ops := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Progress, cfg.Providers)

	r.Get("/health", ops.HealthCheck)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/progress", ops.Progress)
		r.Get("/providers", ops.Providers)
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		response.NotFound(w, req, "no such endpoint")
	})

	return r
}
