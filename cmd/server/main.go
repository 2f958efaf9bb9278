/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the stock ledger server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration from the environment
  2. Build the zap logger and the OpenTelemetry meter provider
  3. Open the store (sqlite, postgres or memory)
  4. Pick collaborators: local directory or remote catalog, in-memory or
     Redis idempotency keys
  5. Build the engine, query surface, auditor and router
  6. Start server with graceful shutdown

ENVIRONMENT:
  See config/config.go. The common ones:
    PORT=8080
    STORE_DRIVER=sqlite|postgres|memory
    SQLITE_PATH=./data/ledger.db      (":memory:" for a throwaway database)
    DATABASE_URL=postgres://...
    REDIS_URL=redis://localhost:6379/0
    CATALOG_URL=http://catalog:8080

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the auditor
  2. Stop accepting new connections
  3. Wait for active requests to complete (SHUTDOWN_TIMEOUT)
  4. Flush metrics, close store and Redis
  5. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Settings
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/azenco/stock-ledger/api"
	"github.com/azenco/stock-ledger/catalog"
	"github.com/azenco/stock-ledger/config"
	"github.com/azenco/stock-ledger/factory"
	"github.com/azenco/stock-ledger/ledger"
	"github.com/azenco/stock-ledger/ledger/store"
	"github.com/azenco/stock-ledger/observability"
	"github.com/azenco/stock-ledger/store/postgres"
	redisstore "github.com/azenco/stock-ledger/store/redis"
	"github.com/azenco/stock-ledger/store/sqlite"
)

const meterName = "github.com/azenco/stock-ledger"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "stock-ledger: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	mp, err := observability.NewMeterProvider(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	defer func() {
		if err := mp.Shutdown(context.Background()); err != nil {
			logger.Warn("metrics shutdown failed", zap.Error(err))
		}
	}()
	metrics, err := observability.NewLedgerMetrics(mp.Meter(meterName))
	if err != nil {
		return fmt.Errorf("init instruments: %w", err)
	}

	// Store
	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.close()

	// Collaborators
	var (
		directory ledger.UserDirectory    = b.directory
		products  ledger.ProductCatalog   = b.catalog
		idem      ledger.IdempotencyStore = store.NewIdempotency()
	)
	if cfg.CatalogURL != "" {
		remote := catalog.New(cfg.CatalogURL, cfg.CatalogTimeout)
		directory, products = remote, remote
		logger.Info("using remote catalog", zap.String("url", cfg.CatalogURL))
	}
	if cfg.RedisURL != "" {
		client, err := redisstore.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		idem = redisstore.NewIdempotencyStore(client, redisstore.DefaultPrefix)
		logger.Info("using redis idempotency keys")
	}

	units, err := factory.NewUnitFactory().Load(cfg.UnitsFile)
	if err != nil {
		return err
	}
	validator := units.Validator()
	validator.StrictMinimum = cfg.StrictMinimumQuantity

	engine := ledger.NewEngine(b.store, validator, directory, products,
		ledger.WithReporter(ledger.NewReporter(b.history, logger.Named("history"))),
		ledger.WithLogger(logger.Named("engine")),
		ledger.WithMetrics(metrics),
		ledger.WithIdempotency(idem, cfg.IdempotencyTTL),
	)
	query := ledger.NewQuery(b.store, logger.Named("query"))

	handler := api.NewHandler(engine, query, b.admin, b.history, logger.Named("http"))

	auditor := api.NewAuditor(b.store, logger.Named("audit"), metrics)
	auditor.Interval = cfg.AuditInterval
	auditor.Enabled = cfg.AuditEnabled
	handler.Auditor = auditor
	auditor.Start()
	defer auditor.Stop()

	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.CORSOrigins,
		Scenarios:      cfg.DemoScenarios,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.Int("port", cfg.Port),
			zap.String("store", cfg.StoreDriver),
			zap.Bool("strict_minimum", cfg.StrictMinimumQuantity),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	auditor.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

// =============================================================================
// STORE BACKENDS
// =============================================================================

// backend is one store driver and the collaborators it provides locally.
type backend struct {
	store     ledger.TxStore
	admin     api.Admin
	history   ledger.HistoryLog
	directory ledger.UserDirectory
	catalog   ledger.ProductCatalog
	close     func()
}

func openBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*backend, error) {
	switch cfg.StoreDriver {
	case "postgres":
		s, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		logger.Info("postgres store ready")
		return &backend{store: s, admin: s, history: s.History(), directory: s, catalog: s, close: func() { s.Close() }}, nil

	case "memory":
		s := store.NewSandbox()
		logger.Warn("in-memory store: all data is lost on restart")
		return &backend{store: s, admin: s, history: s.History(), directory: s, catalog: s, close: func() {}}, nil

	default:
		if cfg.SQLitePath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		logger.Info("sqlite store ready", zap.String("path", cfg.SQLitePath))
		return &backend{store: s, admin: s, history: s.History(), directory: s, catalog: s, close: func() { s.Close() }}, nil
	}
}
