// Package httptransport assembles the public HTTP surface: middleware chain,
// operational endpoints and the versioned API routes.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"certverify/internal/platform/metrics"
	"certverify/pkg/platform/middleware/admin"
	"certverify/pkg/platform/middleware/auth"
	"certverify/pkg/platform/middleware/metadata"
	"certverify/pkg/platform/middleware/request"
	"certverify/pkg/platform/middleware/requesttime"
)

// Routes is implemented by feature handlers.
type Routes interface {
	Register(r chi.Router)
}

// Config carries what the router composes. Validator nil disables API auth.
type Config struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	Validator      auth.JWTValidator
	AdminToken     string
	RequestTimeout time.Duration
	// RateLimit runs after authentication so callers are bucketed by subject.
	RateLimit func(http.Handler) http.Handler

	Health     http.Handler
	Prometheus http.Handler
	API        []Routes
}

// NewRouter wires all endpoints. Operational endpoints skip auth; /metrics is
// guarded by the admin token when one is configured.
func NewRouter(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(request.Recovery(logger))
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(request.Logger(logger))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}

	if cfg.Health != nil {
		r.Method(http.MethodGet, "/health", cfg.Health)
	}
	if cfg.Prometheus != nil {
		r.With(admin.RequireAdminToken(cfg.AdminToken, logger)).
			Method(http.MethodGet, "/metrics", cfg.Prometheus)
	}

	r.Group(func(api chi.Router) {
		api.Use(request.Timeout(cfg.RequestTimeout))
		api.Use(request.ContentTypeJSON)
		if cfg.Validator != nil {
			api.Use(auth.RequireAuth(cfg.Validator, logger))
		} else {
			logger.Warn("API authentication is disabled")
		}
		if cfg.RateLimit != nil {
			api.Use(cfg.RateLimit)
		}
		for _, routes := range cfg.API {
			routes.Register(api)
		}
	})

	return r
}
