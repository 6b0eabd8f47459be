package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-estimator/internal/audit"
	"github.com/noah-isme/backend-estimator/internal/catalog"
	"github.com/noah-isme/backend-estimator/internal/common"
	"github.com/noah-isme/backend-estimator/internal/config"
	"github.com/noah-isme/backend-estimator/internal/db"
	"github.com/noah-isme/backend-estimator/internal/health"
	"github.com/noah-isme/backend-estimator/internal/obs"
	"github.com/noah-isme/backend-estimator/internal/quote"
	"github.com/noah-isme/backend-estimator/internal/ratelimit"
	"github.com/noah-isme/backend-estimator/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Obs.MetricsEnabled {
		obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)
	}

	tracingEnabled := cfg.Obs.TracingEnabled
	if tracingEnabled {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   "estimator-api",
			Endpoint:      cfg.Obs.OTLPEndpoint,
			Exporter:      cfg.Obs.TracingExporter,
			SamplingRatio: cfg.Obs.SamplingRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	var (
		catalogStore catalog.Store
		auditStore   audit.Store
		probes       []health.Probe
	)
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pool, err := db.Connect(connectCtx, cfg.DatabaseURL, "estimator-api")
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Msg("connect database")
		}
		defer pool.Close()
		if cfg.RunMigrations {
			if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
				logger.Fatal().Err(err).Msg("run migrations")
			}
		}
		pgStore, err := catalog.NewPostgresStore(pool)
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise catalog store")
		}
		catalogStore = pgStore
		auditStore = audit.NewPostgresStore(pool)
		probes = append(probes, health.Probe{Name: "db", Timeout: cfg.HealthDBTimeout, Ping: pool.Ping})
	default:
		logger.Warn().Msg("using in-memory storage; data is lost on restart")
		catalogStore = catalog.NewMemoryStore()
		auditStore = audit.NewMemoryStore()
	}

	store, err := catalog.NewRetryStore(catalogStore, catalog.RetryConfig{
		Attempts:     cfg.StoreRetryAttempts,
		BaseBackoff:  cfg.StoreRetryBaseBackoff,
		MinRequests:  cfg.StoreBreakerMinReqs,
		FailureRatio: cfg.StoreBreakerFailRatio,
		OpenFor:      cfg.StoreBreakerOpenFor,
		Logger:       logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise retry store")
	}

	catalogService, err := catalog.NewService(catalog.ServiceConfig{Store: store, Logger: logger})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog service")
	}
	if cfg.SeedSampleCatalog {
		created, skipped, err := catalog.SeedSamples(ctx, catalogService)
		if err != nil {
			logger.Fatal().Err(err).Msg("seed sample catalog")
		}
		logger.Info().Int("created", created).Int("skipped", skipped).Msg("sample catalog seeded")
	}

	quoteService, err := quote.NewService(quote.ServiceConfig{
		Resolver: catalogService,
		Defaults: &cfg.QuoteDefaults,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise quote service")
	}

	redisClient := openRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
		probes = append(probes, health.Probe{
			Name:    "redis",
			Timeout: cfg.HealthRedisTimeout,
			Ping:    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}

	var quoteLimiter *ratelimit.Handler
	if redisClient != nil && cfg.QuoteRateLimitPerMin > 0 {
		quoteLimiter = &ratelimit.Handler{
			Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "ratelimit:"},
			Config: ratelimit.Config{
				Key:    ratelimit.KeyByClientIP("quote"),
				Window: time.Minute,
				Max:    cfg.QuoteRateLimitPerMin,
			},
			OnError: func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") },
		}
	}

	auditService := &audit.Service{Store: auditStore, Enabled: cfg.AuditEnabled}

	var httpMetrics *obs.HTTPMetrics
	if cfg.Obs.MetricsEnabled {
		httpMetrics = obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, obs.ParseBucketsCSV(cfg.Obs.MetricsBuckets), nil)
	}

	handler := newRouter(routerDeps{
		Logger:  logger,
		Catalog: catalog.NewHandler(catalog.HandlerConfig{Service: catalogService}),
		Quote:   quote.NewHandler(quote.HandlerConfig{Service: quoteService}),
		Audit:   audit.Handler{Store: auditStore},
		AuditRecorder: audit.HTTPRecorder{
			Service: auditService,
			OnError: func(err error) { logger.Error().Err(err).Msg("record audit entry") },
		},
		Idem:           common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL},
		QuoteLimiter:   quoteLimiter,
		Health:         health.Handler{Probes: probes},
		HTTPMetrics:    httpMetrics,
		Headers:        security.Headers{Enable: cfg.SecurityHeaders, HSTS: cfg.HSTS},
		MaxBodyBytes:   cfg.MaxBodyBytes,
		Tracing:        tracingEnabled,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("storage", cfg.StorageDriver).Msg("server starting")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case <-ctx.Done():
		health.SetReady(false)
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown")
		}
	}
}

// openRedis returns nil when REDIS_URL is unset; idempotency and rate limiting
// are then skipped.
func openRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	if cfg.RedisURL == "" {
		logger.Info().Msg("REDIS_URL not set; idempotency keys and quote rate limiting disabled")
		return nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if cfg.Obs.MetricsEnabled {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return client
}
