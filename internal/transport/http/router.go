// Package httptransport assembles the public router. Handlers own their
// routes; this package only orders the middleware around them.
package httptransport

import (
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"healthconsent/internal/platform/metrics"
	"healthconsent/pkg/platform/middleware/auth"
	"healthconsent/pkg/platform/middleware/metadata"
	"healthconsent/pkg/platform/middleware/request"
	"healthconsent/pkg/platform/middleware/requesttime"
)

const (
	DefaultMaxBodyBytes   = 1 << 20
	DefaultRequestTimeout = 30 * time.Second
)

// RouteRegistrar is implemented by every domain handler.
type RouteRegistrar interface {
	Register(r chi.Router)
}

type Config struct {
	TrustedProxies []netip.Prefix
	MaxBodyBytes   int64
	RequestTimeout time.Duration
}

type Dependencies struct {
	Logger   *slog.Logger
	Tokens   auth.TokenValidator
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	// Public routes are served without a bearer token (health probes).
	Public []RouteRegistrar
	// Protected routes run behind RequireAuth.
	Protected []RouteRegistrar
}

// NewRouter wires the middleware chain and mounts the handlers.
func NewRouter(cfg Config, deps Dependencies) http.Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(deps.Logger))
	r.Use(metadata.NewMiddleware(metadata.Config{TrustedProxies: cfg.TrustedProxies}).Handler)
	r.Use(request.Logger(deps.Logger))
	r.Use(requesttime.Middleware)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}
	r.Use(request.BodyLimit(cfg.MaxBodyBytes))
	r.Use(request.ContentTypeJSON)

	for _, h := range deps.Public {
		h.Register(r)
	}
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(deps.Tokens, deps.Logger))
		r.Use(timeout(cfg.RequestTimeout))
		for _, h := range deps.Protected {
			h.Register(r)
		}
	})
	return r
}

func timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, `{"error":"timeout","error_description":"request timed out"}`)
	}
}
