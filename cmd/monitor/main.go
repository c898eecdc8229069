package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ochanalytics/slow-onset-monitor/internal/adapter/feed"
	httpadapter "github.com/ochanalytics/slow-onset-monitor/internal/adapter/http"
	kafkaadapter "github.com/ochanalytics/slow-onset-monitor/internal/adapter/kafka"
	"github.com/ochanalytics/slow-onset-monitor/internal/adapter/store"
	"github.com/ochanalytics/slow-onset-monitor/internal/config"
	"github.com/ochanalytics/slow-onset-monitor/internal/observability"
	"github.com/ochanalytics/slow-onset-monitor/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	hotspots := feed.NewHotspotClient(cfg.HotspotsURL, cfg.Countries, cfg.FetchTimeout, logger)
	reports := feed.NewHapiClient(cfg.HapiURL, cfg.HapiAppIdentifier, cfg.HapiPageSize, cfg.Countries, cfg.FetchTimeout, logger)

	var snapshots pipeline.SnapshotStore
	switch cfg.SnapshotBackend {
	case "blob":
		blob, err := store.NewBlobStore(cfg.BlobEndpoint, cfg.BlobAccessKey, cfg.BlobSecretKey,
			cfg.BlobBucket, cfg.BlobRegion, cfg.SnapshotKey, logger)
		if err != nil {
			logger.Error("failed to init blob store", "error", err)
			os.Exit(1)
		}
		snapshots = blob
		logger.Info("snapshot backend: blob", "bucket", cfg.BlobBucket, "key", cfg.SnapshotKey)
	default:
		snapshots = store.NewLocalStore(cfg.SnapshotDir, cfg.SnapshotKey, logger)
		logger.Info("snapshot backend: local", "dir", cfg.SnapshotDir, "key", cfg.SnapshotKey)
	}

	publisher := kafkaadapter.NewWriter(cfg, logger)

	monitor := pipeline.New(hotspots, reports, snapshots, publisher, logger, metrics, pipeline.Options{
		Thresholds:    cfg.Thresholds,
		Countries:     cfg.Countries,
		ForcePublish:  cfg.ForcePublish,
		CheckInterval: cfg.CheckInterval,
	})

	srv := httpadapter.NewServer(cfg.HTTPAddr, monitor, monitor, metrics.Registry, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start the monitoring loop.
	go func() {
		if err := monitor.Run(ctx); err != nil {
			logger.Error("monitor error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := publisher.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}

	logger.Info("shutdown complete")
}
