package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-estimator/internal/audit"
	"github.com/noah-isme/backend-estimator/internal/catalog"
	"github.com/noah-isme/backend-estimator/internal/common"
	"github.com/noah-isme/backend-estimator/internal/health"
	"github.com/noah-isme/backend-estimator/internal/obs"
	"github.com/noah-isme/backend-estimator/internal/quote"
	"github.com/noah-isme/backend-estimator/internal/ratelimit"
	"github.com/noah-isme/backend-estimator/internal/security"
)

type routerDeps struct {
	Logger         zerolog.Logger
	Catalog        *catalog.Handler
	Quote          *quote.Handler
	Audit          audit.Handler
	AuditRecorder  audit.HTTPRecorder
	Idem           common.Idem
	QuoteLimiter   *ratelimit.Handler
	Health         health.Handler
	HTTPMetrics    *obs.HTTPMetrics
	Headers        security.Headers
	MaxBodyBytes   int64
	Tracing        bool
	AllowedOrigins []string
}

func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if d.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if d.HTTPMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: d.HTTPMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: d.Logger}.Middleware)
	r.Use(d.Headers.Middleware)
	r.Use(security.BodyLimit{Max: d.MaxBodyBytes}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(d.AllowedOrigins),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders: []string{"Content-Disposition", "Location", "Retry-After", "X-RateLimit-Remaining"},
		MaxAge:         300,
	}))

	if d.HTTPMetrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}
	r.Get("/health/live", d.Health.Live)
	r.Get("/health/ready", d.Health.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Route("/catalog", func(c chi.Router) {
			d.Catalog.Routes(c,
				d.Idem.Middleware,
				d.AuditRecorder.Middleware(audit.HTTPConfig{
					ResourceType:    "price_list_item",
					ResourceIDParam: "id",
					MetadataFunc:    mutationMetadata,
				}),
			)
		})

		v.Route("/quotes", func(q chi.Router) {
			q.Get("/defaults", d.Quote.Defaults)
			calc := q.With()
			if d.QuoteLimiter != nil {
				calc = q.With(d.QuoteLimiter.Middleware)
			}
			calc.Post("/calculate", d.Quote.Calculate)
		})

		v.Get("/audit", d.Audit.List)
	})

	return r
}

func mutationMetadata(r *http.Request, status int) map[string]any {
	meta := map[string]any{"status": status}
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		meta["idempotencyKey"] = key
	}
	return meta
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
