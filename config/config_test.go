package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := LoadFrom(context.Background(), envconfig.MapLookuper(map[string]string{}))

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "sqlite", cfg.StoreDriver)
	assert.Equal(t, "./data/ledger.db", cfg.SQLitePath)
	assert.Equal(t, 5*time.Minute, cfg.AuditInterval)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.False(t, cfg.StrictMinimumQuantity)
	assert.True(t, cfg.DemoScenarios)
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := LoadFrom(context.Background(), envconfig.MapLookuper(map[string]string{
		"PORT":                    "9090",
		"STORE_DRIVER":            "Postgres",
		"DATABASE_URL":            "postgres://ledger@localhost/ledger",
		"STRICT_MINIMUM_QUANTITY": "true",
		"CORS_ORIGINS":            "https://a.example,https://b.example",
		"DEMO_SCENARIOS":          "false",
	}))

	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.True(t, cfg.StrictMinimumQuantity)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.False(t, cfg.DemoScenarios)
}

func TestLoad_Rejects(t *testing.T) {
	cases := map[string]map[string]string{
		"postgres without url": {"STORE_DRIVER": "postgres"},
		"unknown driver":       {"STORE_DRIVER": "mongo"},
		"bad port":             {"PORT": "0"},
		"bad log level":        {"LOG_LEVEL": "verbose"},
		"short audit interval": {"AUDIT_INTERVAL": "1s"},
		"short idempotency":    {"IDEMPOTENCY_TTL": "5s"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFrom(context.Background(), envconfig.MapLookuper(env))
			assert.Error(t, err)
		})
	}

	// A disabled auditor ignores its interval.
	_, err := LoadFrom(context.Background(), envconfig.MapLookuper(map[string]string{
		"AUDIT_ENABLED": "false", "AUDIT_INTERVAL": "1s",
	}))
	assert.NoError(t, err)
}
