package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	_ "github.com/microsoft/go-mssqldb" // registers the "sqlserver" driver

	"datapeek/internal/config"
	"datapeek/internal/engine"
	"datapeek/internal/logging"
	"datapeek/internal/metrics"
	ddmetrics "datapeek/internal/metrics/datadog"
	"datapeek/internal/service"
	"datapeek/internal/storage"
	_ "datapeek/internal/storage/mssql"    // register backend
	_ "datapeek/internal/storage/postgres" // register backend
	_ "datapeek/internal/storage/sqlite"   // register backend
	"datapeek/internal/web"
)

func main() {
	// Load .env if present; real environment variables win.
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_kind", cfg.Database.Kind,
		"max_file_size", cfg.Analysis.MaxFileSize,
		"metrics_enabled", cfg.Metrics.Enabled,
	)

	ctx := context.Background()

	repo, err := storage.New(ctx, storage.Config{Kind: cfg.Database.Kind, DSN: cfg.Database.DSN})
	if err != nil {
		slog.Error("failed to open storage", "kind", cfg.Database.Kind, "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	if err := repo.EnsureSchema(ctx); err != nil {
		slog.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}
	slog.Info("storage ready", "kind", cfg.Database.Kind)

	var backend metrics.Backend = metrics.Nop{}
	if cfg.Metrics.Enabled {
		dd, err := ddmetrics.NewBackend(ctx, ddmetrics.Options{
			JobName:    cfg.Metrics.JobName,
			Tags:       ddmetrics.ParseTagsCSV(cfg.Metrics.Tags),
			FlushEvery: cfg.Metrics.FlushEvery,
		})
		if err != nil {
			slog.Error("failed to initialize metrics", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := dd.Close(); err != nil {
				slog.Warn("metrics final flush failed", "error", err)
			}
		}()
		backend = dd
		slog.Info("datadog metrics enabled", "job", cfg.Metrics.JobName, "flush_every", cfg.Metrics.FlushEvery)
	}

	limits := engine.Limits{
		MaxBytes:    cfg.Analysis.MaxFileSize,
		MaxRows:     cfg.Analysis.MaxRows,
		MaxColumns:  cfg.Analysis.MaxColumns,
		PreviewSize: cfg.Analysis.PreviewSize,
	}
	svc := service.New(repo, backend, limits, engine.DefaultInference())

	server := web.NewServer(svc, backend, cfg.Server)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", server.Addr())
	if err := server.Start(); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
