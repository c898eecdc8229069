package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ochanalytics/slow-onset-monitor/internal/domain"
	"github.com/ochanalytics/slow-onset-monitor/internal/observability"
)

// WarningGridReader reads the dekadal admin-2 warning grid.
type WarningGridReader interface {
	ReadWarningGrid(ctx context.Context) ([]domain.WarningCell, error)
}

// PopulationReader reads the static admin-2 population reference.
type PopulationReader interface {
	ReadPopulations(ctx context.Context) ([]domain.Admin2Population, error)
}

// ExposureWriter persists the aggregated exposure table.
type ExposureWriter interface {
	WriteExposure(ctx context.Context, result domain.ExposureResult) error
}

// ExposureJob is the one-shot population-exposure aggregation: warning grid
// plus population reference in, country-month exposure table out.
type ExposureJob struct {
	grid        WarningGridReader
	populations PopulationReader
	writer      ExposureWriter
	logger      *slog.Logger
	metrics     *observability.Metrics
	cuts        domain.ExposureThresholds
}

// NewExposureJob wires an exposure aggregation run.
func NewExposureJob(g WarningGridReader, p PopulationReader, w ExposureWriter, logger *slog.Logger, metrics *observability.Metrics, cuts domain.ExposureThresholds) *ExposureJob {
	return &ExposureJob{
		grid:        g,
		populations: p,
		writer:      w,
		logger:      logger,
		metrics:     metrics,
		cuts:        cuts,
	}
}

// Run reads both inputs, aggregates, and writes the result.
func (j *ExposureJob) Run(ctx context.Context) error {
	cells, err := j.grid.ReadWarningGrid(ctx)
	if err != nil {
		j.metrics.FeedErrors.WithLabelValues("warnings").Inc()
		return fmt.Errorf("read warning grid: %w", err)
	}
	j.metrics.FeedRecords.WithLabelValues("warnings").Add(float64(len(cells)))

	populations, err := j.populations.ReadPopulations(ctx)
	if err != nil {
		j.metrics.FeedErrors.WithLabelValues("population").Inc()
		return fmt.Errorf("read populations: %w", err)
	}
	j.metrics.FeedRecords.WithLabelValues("population").Add(float64(len(populations)))

	result, err := domain.AggregateExposure(cells, populations, j.cuts)
	if err != nil {
		return fmt.Errorf("aggregate exposure: %w", err)
	}
	j.metrics.ExposureRows.Add(float64(len(result.Monthly)))
	j.metrics.ExposureMissingPopulation.Add(float64(result.MissingPopulation))
	if result.MissingPopulation > 0 {
		j.logger.Warn("warning cells without population reference skipped",
			"cells", result.MissingPopulation)
	}

	if err := j.writer.WriteExposure(ctx, result); err != nil {
		return fmt.Errorf("write exposure: %w", err)
	}
	j.logger.Info("exposure table written",
		"country_months", len(result.Monthly),
		"records", len(result.Records),
	)
	return nil
}
