// Package config loads the server configuration from the environment.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	ServiceName    string        `env:"SERVICE_NAME,default=stock-ledger"`
	Port           int           `env:"PORT,default=8080"`
	LogLevel       string        `env:"LOG_LEVEL,default=info"`
	StoreDriver    string        `env:"STORE_DRIVER,default=sqlite"`
	SQLitePath     string        `env:"SQLITE_PATH,default=./data/ledger.db"`
	DatabaseURL    string        `env:"DATABASE_URL"`
	RedisURL       string        `env:"REDIS_URL"`
	CatalogURL     string        `env:"CATALOG_URL"`
	CatalogTimeout time.Duration `env:"CATALOG_TIMEOUT,default=3s"`

	AuditEnabled  bool          `env:"AUDIT_ENABLED,default=true"`
	AuditInterval time.Duration `env:"AUDIT_INTERVAL,default=5m"`

	StrictMinimumQuantity bool          `env:"STRICT_MINIMUM_QUANTITY,default=false"`
	UnitsFile             string        `env:"UNITS_FILE"`
	IdempotencyTTL        time.Duration `env:"IDEMPOTENCY_TTL,default=24h"`
	CORSOrigins           []string      `env:"CORS_ORIGINS,default=*"`
	OTLPEndpoint          string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ShutdownTimeout       time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
	DemoScenarios         bool          `env:"DEMO_SCENARIOS,default=true"`
}

func Load(ctx context.Context) (*Config, error) {
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom reads the configuration through l, for tests.
func LoadFrom(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	c.StoreDriver = strings.ToLower(c.StoreDriver)
	switch c.StoreDriver {
	case "sqlite", "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("store driver must be sqlite, postgres or memory, got %q", c.StoreDriver)
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level must be debug, info, warn or error, got %q", c.LogLevel)
	}

	if c.AuditEnabled && (c.AuditInterval < 10*time.Second || c.AuditInterval > 24*time.Hour) {
		return fmt.Errorf("audit interval must be between 10 seconds and 24 hours, got %v", c.AuditInterval)
	}

	if c.IdempotencyTTL < time.Minute {
		return fmt.Errorf("idempotency TTL must be at least 1 minute, got %v", c.IdempotencyTTL)
	}

	return nil
}
