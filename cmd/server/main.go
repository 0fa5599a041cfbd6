package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/idlookup/internal/backup"
	"github.com/JonMunkholm/idlookup/internal/config"
	"github.com/JonMunkholm/idlookup/internal/core"
	"github.com/JonMunkholm/idlookup/internal/logging"
	"github.com/JonMunkholm/idlookup/internal/metrics"
	"github.com/JonMunkholm/idlookup/internal/store/mongo"
	"github.com/JonMunkholm/idlookup/internal/store/postgres"
	"github.com/JonMunkholm/idlookup/internal/store/sqlite"
	"github.com/JonMunkholm/idlookup/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"store_driver", cfg.Store.Driver,
		"bulk_max_concurrent", cfg.Bulk.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"reload_interval", cfg.Cache.ReloadInterval,
		"backups_enabled", cfg.Backup.Enabled(),
	)

	if err := run(cfg); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("failed to close store", "error", err)
		}
	}()

	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	recorder := metrics.NewRecorder()
	limiter := core.NewBulkLimiter(cfg.Bulk.MaxConcurrent, cfg.Bulk.MaxWaitTime)
	recorder.TrackBulkLimiter(limiter)

	service := core.NewService(store,
		core.WithStoreTimeout(cfg.Store.Timeout),
		core.WithBulkLimits(cfg.Bulk.MaxSamples, limiter),
		core.WithMetricsRecorder(recorder),
	)

	// The index must be loaded before the first lookup is served.
	stats, err := service.Reload(ctx)
	if err != nil {
		return fmt.Errorf("initial load: %w", err)
	}
	slog.Info("directory loaded", "names", stats.Names, "codes", stats.Codes)

	opts := []web.Option{web.WithMetricsHandler(recorder.Handler())}

	var exporter *backup.Exporter
	if cfg.Backup.Enabled() {
		exporter, err = backup.New(ctx, backup.Config{
			Bucket:          cfg.Backup.Bucket,
			Region:          cfg.Backup.Region,
			Endpoint:        cfg.Backup.Endpoint,
			PathStyle:       cfg.Backup.PathStyle,
			Prefix:          cfg.Backup.Prefix,
			AccessKeyID:     cfg.Backup.AccessKeyID,
			SecretAccessKey: cfg.Backup.SecretAccessKey,
		}, service)
		if err != nil {
			return fmt.Errorf("configure backups: %w", err)
		}
		opts = append(opts, web.WithBackups(exporter))
	}

	server := web.NewServer(service, cfg, opts...)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		service.StartReloadScheduler(gctx, cfg.Cache.ReloadInterval)
		return nil
	})

	if exporter != nil {
		g.Go(func() error {
			exporter.Run(gctx, cfg.Backup.Interval)
			return nil
		})
	}

	g.Go(func() error {
		return server.Start()
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for active bulk imports to complete (with timeout)
		if status := limiter.Status(); status.Active > 0 {
			slog.Info("waiting for bulk imports to complete", "active", status.Active)
			if err := limiter.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("bulk imports did not complete in time", "error", err)
			} else {
				slog.Info("all bulk imports completed")
			}
		}

		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("server stopped")
	return nil
}

// openStore connects to the durable store selected by cfg.Driver.
func openStore(ctx context.Context, cfg config.StoreConfig) (core.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		slog.Info("connected to store", "driver", cfg.Driver, "path", s.Path())
		return s, nil

	case config.DriverPostgres:
		s, err := postgres.New(ctx, postgres.Config{
			URL:             cfg.URL,
			MaxConns:        cfg.MaxConns,
			MinConns:        cfg.MinConns,
			MaxConnLifetime: cfg.MaxConnLifetime,
			MaxConnIdleTime: cfg.MaxConnIdleTime,
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		slog.Info("connected to store", "driver", cfg.Driver)
		return s, nil

	case config.DriverMongo:
		s, err := mongo.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("open mongo store: %w", err)
		}
		slog.Info("connected to store", "driver", cfg.Driver, "database", cfg.MongoDatabase)
		return s, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
