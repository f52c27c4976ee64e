// Package http wires the recordbase HTTP server: routing, middleware,
// authentication, health and metrics endpoints.
package http

import (
	_ "embed"
	"net/http"
	"time"

	"github.com/artpar/recordbase/adapters/http/api"
	"github.com/artpar/recordbase/adapters/metrics"
	"github.com/artpar/recordbase/pkg/jsonapi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"
)

//go:embed openapi.json
var openAPIDocument []byte

// RouterConfig holds the router's collaborators. Nil fields disable the
// corresponding endpoints.
type RouterConfig struct {
	API     *api.Handler
	Auth    func(http.Handler) http.Handler // wraps /api; required when API is set
	Health  *HealthHandler
	Version VersionInfo

	Metrics     *metrics.Collector
	MetricsPath string              // default /metrics
	Gatherer    prometheus.Gatherer // default prometheus.DefaultGatherer

	EnableOpenAPI  bool
	RequestTimeout time.Duration // default 60s
}

// NewRouter creates the HTTP router.
func NewRouter(cfg RouterConfig, logger zerolog.Logger) chi.Router {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger, cfg.MetricsPath))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	if cfg.Metrics != nil {
		r.Use(NewMetricsMiddleware(cfg.Metrics, cfg.MetricsPath))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		jsonapi.WriteError(w, jsonapi.ErrNotFound("resource"))
	})

	if cfg.Health != nil {
		r.Get("/health", cfg.Health.Liveness)
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}
	r.Get("/version", cfg.Version.ServeHTTP)

	if cfg.Metrics != nil {
		gatherer := cfg.Gatherer
		if gatherer == nil {
			gatherer = prometheus.DefaultGatherer
		}
		r.Handle(cfg.MetricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	if cfg.EnableOpenAPI {
		r.Get("/openapi.json", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Access-Control-Allow-Origin", "*")
			_, _ = w.Write(openAPIDocument)
		})
		r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/openapi.json")))
	}

	if cfg.API != nil {
		r.Group(func(r chi.Router) {
			r.Use(cfg.Auth)
			r.Mount("/api", cfg.API.Routes())
		})
		// Share links are capabilities; the token is the credential.
		r.Mount("/share", cfg.API.ShareRoutes())
	}

	return r
}
