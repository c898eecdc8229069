// Command exposure is the one-shot population-exposure aggregation: it reads
// the dekadal warning grid and the admin-2 population reference, and writes
// the country-month exposure table.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ochanalytics/slow-onset-monitor/internal/adapter/feed"
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

	grid := feed.NewWarningGridFile(cfg.WarningsFile, cfg.Countries, logger)
	populations := feed.NewPopulationFile(cfg.PopulationFile, logger)
	writer := store.ExposureFileWriter{Path: cfg.ExposureOutFile}

	job := pipeline.NewExposureJob(grid, populations, writer, logger, metrics, cfg.ExposureThresholds)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := job.Run(ctx); err != nil {
		logger.Error("exposure aggregation failed", "error", err)
		os.Exit(1)
	}
	logger.Info("exposure aggregation complete", "output", cfg.ExposureOutFile)
}
