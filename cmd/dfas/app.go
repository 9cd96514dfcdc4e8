package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"dfas-hq/dfas/pkg/cli"
	"dfas-hq/dfas/pkg/config"
	"dfas-hq/dfas/pkg/evidence"
	"dfas-hq/dfas/pkg/evidence/sink"
	"dfas-hq/dfas/pkg/evidence/storage"
	"dfas-hq/dfas/pkg/packaging"
	"dfas-hq/dfas/pkg/telemetry/logging"
	"dfas-hq/dfas/pkg/telemetry/metrics"
	"dfas-hq/dfas/pkg/telemetry/tracing"
)

// store is an evidence store that accepts custody sinks. Every backend in
// pkg/evidence/storage satisfies it.
type store interface {
	evidence.Store
	AddSink(sink evidence.CustodySink)
}

// app holds what every command needs: configuration, logging, tracing,
// metrics and the open store with its sinks.
type app struct {
	cfg       *config.Config
	store     store
	collector *metrics.Collector
	tracer    *tracing.Tracer
	kafka     *sink.KafkaSink
	logger    *slog.Logger
}

// setup loads configuration and opens the store. The caller must Close the
// returned app.
func setup(ctx context.Context) (*app, error) {
	if err := config.ReloadConfig(cfgFile); err != nil {
		return nil, cli.NewConfigError("config", err.Error())
	}
	cfg := config.GetConfig()

	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	logger, err := logging.New(logging.Config{
		Level:     cfg.Telemetry.Logging.Level,
		Format:    cfg.Telemetry.Logging.Format,
		AddSource: cfg.Telemetry.Logging.AddSource,
		Redact:    cfg.Telemetry.Logging.Redact,
	})
	if err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}
	slog.SetDefault(logger)

	a := &app{
		cfg:       cfg,
		collector: metrics.NewCollector(&cfg.Telemetry.Metrics, nil),
		logger:    logger.With("component", "cli"),
	}

	if a.tracer, err = tracing.New(ctx, &cfg.Telemetry.Tracing, Version); err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	st, err := openStore(&cfg.Storage)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.store = st
	a.store.AddSink(a.collector)

	if cfg.CustodyStream.Kafka.Enabled() {
		k := cfg.CustodyStream.Kafka
		a.kafka, err = sink.NewKafkaSink(sink.KafkaConfig{
			Brokers:      k.Brokers,
			Topic:        k.Topic,
			MaxAttempts:  k.MaxAttempts,
			WriteTimeout: k.WriteTimeout,
		})
		if err != nil {
			a.Close(ctx)
			return nil, cli.NewConfigError("custody_stream.kafka", err.Error())
		}
		a.store.AddSink(a.kafka)
	}

	return a, nil
}

// openStore opens the configured backend.
func openStore(cfg *config.StorageConfig) (store, error) {
	switch cfg.Backend {
	case "sqlite":
		if dir := filepath.Dir(cfg.SQLite.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		s, err := storage.NewSQLiteStorage(&storage.SQLiteConfig{
			Path:         cfg.SQLite.Path,
			Driver:       cfg.SQLite.Driver,
			MaxOpenConns: cfg.SQLite.MaxOpenConns,
			MaxIdleConns: cfg.SQLite.MaxIdleConns,
			WALMode:      cfg.SQLite.WALMode,
			BusyTimeout:  cfg.SQLite.BusyTimeout,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := storage.NewPostgresStorage(&storage.PostgresConfig{
			DSN:             cfg.Postgres.DSN,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case "memory":
		return storage.NewMemoryStorage(), nil
	default:
		return nil, cli.NewConfigError("storage.backend", fmt.Sprintf("unsupported backend %q", cfg.Backend))
	}
}

// caseID resolves the case from the flag or the configuration.
func (a *app) caseID(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if a.cfg.Case.ID != "" {
		return a.cfg.Case.ID, nil
	}
	return "", cli.NewConfigError("--case", "a case id is required (flag or case.id)")
}

// packager builds a packager, with the S3 uploader when withUpload is set.
func (a *app) packager(ctx context.Context, withUpload bool) (*packaging.Packager, error) {
	pcfg := packaging.Config{
		OutputDir:       a.cfg.Packaging.OutputDir,
		AgentID:         a.cfg.Case.AgentID,
		RequireNonEmpty: a.cfg.Packaging.RequireNonEmpty,
		Metrics:         a.collector,
	}

	if withUpload {
		s3cfg := a.cfg.Packaging.Upload.S3
		if !s3cfg.Enabled() {
			return nil, cli.NewConfigError("packaging.upload.s3.bucket", "upload requested but no bucket is configured")
		}
		uploader, err := sink.NewS3Uploader(ctx, sink.S3Config{
			Bucket:       s3cfg.Bucket,
			Prefix:       s3cfg.Prefix,
			Region:       s3cfg.Region,
			Endpoint:     s3cfg.Endpoint,
			UsePathStyle: s3cfg.UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		pcfg.Uploader = uploader
	}

	return packaging.NewPackager(a.store, pcfg)
}

// serveMetrics exposes the collector over HTTP until ctx is done. It is a
// no-op when no listen address is configured.
func (a *app) serveMetrics(ctx context.Context) {
	mcfg := a.cfg.Telemetry.Metrics
	if !mcfg.Enabled || mcfg.ListenAddress == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle(mcfg.Path, a.collector.Handler())
	srv := &http.Server{
		Addr:              mcfg.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("serving metrics", "address", mcfg.ListenAddress, "path", mcfg.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
}

// Close writes the metrics textfile, closes sinks and the store, and
// flushes traces. Failures are logged.
func (a *app) Close(ctx context.Context) {
	if path := a.cfg.Telemetry.Metrics.TextfilePath; path != "" && a.cfg.Telemetry.Metrics.Enabled {
		if err := a.collector.WriteTextfile(path); err != nil {
			a.logger.Warn("failed to write metrics textfile", "path", path, "error", err)
		}
	}
	if a.kafka != nil {
		if err := a.kafka.Close(); err != nil {
			a.logger.Warn("failed to close kafka sink", "error", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("failed to close store", "error", err)
		}
	}
	if a.tracer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := a.tracer.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("failed to flush traces", "error", err)
		}
	}
}
