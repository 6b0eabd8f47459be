package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-estimator/internal/pricing"
)

// Storage drivers accepted by STORAGE_DRIVER.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	StorageDriver      string
	DatabaseURL        string
	RunMigrations      bool
	SeedSampleCatalog  bool
	RedisURL           string
	CORSAllowedOrigins []string
	MaxBodyBytes       int64
	SecurityHeaders    bool
	HSTS               bool

	QuoteDefaults         pricing.Markups
	QuoteRateLimitPerMin  int
	IdempotencyTTL        time.Duration
	AuditEnabled          bool
	StoreRetryAttempts    int
	StoreRetryBaseBackoff time.Duration
	StoreBreakerMinReqs   int
	StoreBreakerFailRatio float64
	StoreBreakerOpenFor   time.Duration
	HealthDBTimeout       time.Duration
	HealthRedisTimeout    time.Duration
	ShutdownTimeout       time.Duration

	Obs Observability
}

// Observability groups the OBS_* settings.
type Observability struct {
	LogFormat        string
	LogLevel         string
	MetricsEnabled   bool
	MetricsNamespace string
	MetricsBuckets   string
	TracingEnabled   bool
	TracingExporter  string
	OTLPEndpoint     string
	SamplingRatio    float64
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	defaults, err := parseMarkups(k)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		AppEnv:                valueOrDefault(k.String("APP_ENV"), "development"),
		Port:                  valueOrDefault(k.String("PORT"), "8080"),
		StorageDriver:         strings.ToLower(valueOrDefault(k.String("STORAGE_DRIVER"), StoragePostgres)),
		DatabaseURL:           strings.TrimSpace(k.String("DATABASE_URL")),
		RunMigrations:         parseBool(k.String("DATABASE_RUN_MIGRATIONS"), true),
		SeedSampleCatalog:     parseBool(k.String("CATALOG_SEED_SAMPLE"), false),
		RedisURL:              strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins:    splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		MaxBodyBytes:          int64(parseInt(k.String("HTTP_MAX_BODY_BYTES"), 1<<20)),
		SecurityHeaders:       parseBool(k.String("SECURITY_HEADERS_ENABLED"), true),
		HSTS:                  parseBool(k.String("SECURITY_HSTS_ENABLED"), false),
		QuoteDefaults:         defaults,
		QuoteRateLimitPerMin:  parseInt(k.String("QUOTE_RATE_LIMIT_PER_MINUTE"), 120),
		IdempotencyTTL:        parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		AuditEnabled:          parseBool(k.String("AUDIT_ENABLED"), true),
		StoreRetryAttempts:    parseInt(k.String("STORE_RETRY_ATTEMPTS"), 3),
		StoreRetryBaseBackoff: parseDuration(k.String("STORE_RETRY_BASE_BACKOFF"), "50ms"),
		StoreBreakerMinReqs:   parseInt(k.String("STORE_BREAKER_MIN_REQUESTS"), 20),
		StoreBreakerFailRatio: parseFloat(k.String("STORE_BREAKER_FAILURE_RATIO"), 0.5),
		StoreBreakerOpenFor:   parseDuration(k.String("STORE_BREAKER_OPEN_FOR"), "30s"),
		HealthDBTimeout:       parseDuration(k.String("HEALTH_READY_DB_TIMEOUT"), "500ms"),
		HealthRedisTimeout:    parseDuration(k.String("HEALTH_READY_REDIS_TIMEOUT"), "300ms"),
		ShutdownTimeout:       parseDuration(k.String("SHUTDOWN_TIMEOUT"), "15s"),
		Obs: Observability{
			LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			MetricsEnabled:   parseBool(k.String("OBS_ENABLE_PROMETHEUS"), true),
			MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "estimator"),
			MetricsBuckets:   strings.TrimSpace(k.String("OBS_METRICS_BUCKETS_MS")),
			TracingEnabled:   parseBool(k.String("OBS_ENABLE_TRACING"), false),
			TracingExporter:  valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
			OTLPEndpoint:     strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
			SamplingRatio:    parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1.0),
		},
	}

	switch cfg.StorageDriver {
	case StoragePostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required when STORAGE_DRIVER=postgres")
		}
	case StorageMemory:
	default:
		return nil, fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", StoragePostgres, StorageMemory, cfg.StorageDriver)
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func parseMarkups(k *koanf.Koanf) (pricing.Markups, error) {
	m := pricing.DefaultMarkups()
	fields := []struct {
		key string
		dst *decimal.Decimal
	}{
		{"QUOTE_DEFAULT_OVERHEAD_PERCENT", &m.OverheadPercent},
		{"QUOTE_DEFAULT_PROFIT_PERCENT", &m.ProfitPercent},
		{"QUOTE_DEFAULT_TOOL_DEPRECIATION_PERCENT", &m.ToolDepreciationPercent},
	}
	for _, f := range fields {
		raw := strings.TrimSpace(k.String(f.key))
		if raw == "" {
			continue
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return pricing.Markups{}, fmt.Errorf("%s: %w", f.key, err)
		}
		*f.dst = v
	}
	if err := m.Validate(); err != nil {
		return pricing.Markups{}, fmt.Errorf("quote defaults: %w", err)
	}
	return m, nil
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt(value string, fallback int) int {
	if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		return parsed
	}
	return fallback
}

func parseFloat(value string, fallback float64) float64 {
	if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
		return parsed
	}
	return fallback
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
