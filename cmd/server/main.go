package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/mapfolio/placesync/internal/catalog"
	"github.com/mapfolio/placesync/internal/config"
	"github.com/mapfolio/placesync/internal/core"
	"github.com/mapfolio/placesync/internal/logging"
	"github.com/mapfolio/placesync/internal/record"
	"github.com/mapfolio/placesync/internal/web"
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
		"catalog", cfg.Catalog.BaseURL,
		"collection", cfg.Catalog.Collection,
		"throttle", cfg.Sync.ThrottleDelay,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx := context.Background()

	// Run history is optional; without a database the service still runs,
	// it just keeps no durable record of finished syncs.
	var recorder core.RunRecorder
	if cfg.Database.URL != "" {
		poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
		if err != nil {
			slog.Error("failed to parse database URL", "error", err)
			os.Exit(1)
		}
		poolConfig.MaxConns = int32(cfg.Database.MaxConns)
		poolConfig.MinConns = int32(cfg.Database.MinConns)
		poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
		poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			slog.Error("failed to ping database", "error", err)
			os.Exit(1)
		}

		pg := core.NewPGRecorder(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare run history schema", "error", err)
			os.Exit(1)
		}
		recorder = pg
		slog.Info("run history enabled")
	} else {
		slog.Info("no database configured, run history disabled")
	}

	client := catalog.NewClient(catalog.Config{
		BaseURL:    cfg.Catalog.BaseURL,
		Token:      cfg.Catalog.Token,
		Collection: cfg.Catalog.Collection,
		Timeout:    cfg.Catalog.Timeout,
	})

	service := core.NewService(client, core.Options{
		Mapping: record.Mapping{
			ID:          cfg.Import.ColumnID,
			DisplayName: cfg.Import.ColumnName,
			Grouping:    cfg.Import.ColumnGrouping,
			GeoType:     cfg.Import.ColumnGeoType,
			Coordinates: cfg.Import.ColumnCoordinates,
			Address:     cfg.Import.ColumnAddress,
		},
		ThrottleDelay: cfg.Sync.ThrottleDelay,
		RunTimeout:    cfg.Sync.RunTimeout,
		MaxConcurrent: cfg.Sync.MaxConcurrent,
		MaxRunWait:    cfg.Sync.MaxWaitTime,
		RetainFor:     cfg.Import.RetainFor,
		Recorder:      recorder,
	})

	server := web.NewServer(service, web.Config{
		MaxFileSize:       cfg.Import.MaxFileSize,
		RequestTimeout:    cfg.Server.RequestTimeout,
		RateLimitEnabled:  cfg.Rate.Enabled,
		RequestsPerMinute: cfg.Rate.RequestsPerMinute,
		ImportPerMinute:   cfg.Rate.ImportLimit,
	})

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for active sync runs to complete (with timeout)
		if status := service.RunnerStatus(); status.Active > 0 {
			slog.Info("waiting for sync runs to complete", "active", status.Active)
			if err := service.WaitForRuns(shutdownCtx); err != nil {
				slog.Warn("sync runs did not complete in time", "error", err)
			} else {
				slog.Info("all sync runs completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(cfg.Server.Addr()); err != nil {
		slog.Info("server stopped", "error", err)
	}
}
