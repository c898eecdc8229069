package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ochanalytics/slow-onset-monitor/internal/domain"
	"github.com/ochanalytics/slow-onset-monitor/internal/observability"
)

// HotspotFetcher pulls the full agricultural hotspot time series for the
// monitored countries.
type HotspotFetcher interface {
	FetchHotspots(ctx context.Context) ([]domain.HotspotRecord, error)
}

// ReportFetcher pulls the raw food-security phase rows for the monitored
// countries.
type ReportFetcher interface {
	FetchReports(ctx context.Context) ([]domain.IpcReport, error)
}

// SnapshotStore persists the published country summary between runs. Load
// returns found=false when no snapshot has been stored yet.
type SnapshotStore interface {
	LoadSummary(ctx context.Context) ([]domain.CountrySummary, bool, error)
	StoreSummary(ctx context.Context, summary []domain.CountrySummary) error
}

// SummaryPublisher pushes a changed summary downstream.
type SummaryPublisher interface {
	PublishSummary(ctx context.Context, summary []domain.CountrySummary) error
}

// Options are the tunables of the monitoring loop.
type Options struct {
	Thresholds domain.Thresholds
	// Countries maps feed country names to ISO3 codes and bounds every fetch.
	Countries     map[string]string
	ForcePublish  bool
	CheckInterval time.Duration
}

// Monitor orchestrates one fetch-classify-merge-publish cycle and repeats it
// on a fixed interval.
type Monitor struct {
	hotspots  HotspotFetcher
	reports   ReportFetcher
	store     SnapshotStore
	publisher SummaryPublisher
	logger    *slog.Logger
	metrics   *observability.Metrics
	opts      Options

	ready atomic.Bool

	mu     sync.RWMutex
	latest []domain.CountrySummary
}

// New creates a Monitor with the given feeds, store, and publisher.
func New(h HotspotFetcher, r ReportFetcher, s SnapshotStore, p SummaryPublisher, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Monitor {
	return &Monitor{
		hotspots:  h,
		reports:   r,
		store:     s,
		publisher: p,
		logger:    logger,
		metrics:   metrics,
		opts:      opts,
	}
}

// CheckReadiness returns nil once at least one run has completed successfully.
func (m *Monitor) CheckReadiness(_ context.Context) error {
	if !m.ready.Load() {
		return errors.New("no monitoring run has completed yet")
	}
	return nil
}

// LatestSummary returns the most recently computed summary, or nil before the
// first successful run.
func (m *Monitor) LatestSummary() []domain.CountrySummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}

// Run performs an immediate cycle and then repeats every CheckInterval until
// the context is cancelled. A failed cycle is logged and counted, never fatal:
// the next tick retries from scratch.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("monitor started",
		"check_interval", m.opts.CheckInterval,
		"countries", len(m.opts.Countries),
		"force_publish", m.opts.ForcePublish,
	)

	m.runAndRecord(ctx)

	ticker := time.NewTicker(m.opts.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopping", "reason", ctx.Err())
			return nil
		case <-ticker.C:
			m.runAndRecord(ctx)
		}
	}
}

func (m *Monitor) runAndRecord(ctx context.Context) {
	start := time.Now()
	m.metrics.MonitorRunning.Set(1)
	defer m.metrics.MonitorRunning.Set(0)

	result, err := m.RunOnce(ctx)
	m.metrics.RunDuration.Observe(time.Since(start).Seconds())
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return
		}
		m.metrics.RunsTotal.WithLabelValues("error").Inc()
		m.logger.Error("monitoring run failed", "error", err)
	case result.Changed:
		m.metrics.RunsTotal.WithLabelValues("success").Inc()
	default:
		m.metrics.RunsTotal.WithLabelValues("unchanged").Inc()
	}
}

// RunOnce executes a single monitoring cycle: fetch both feeds, classify,
// keep the latest record per country, merge, and publish when the table
// differs from the stored snapshot. The snapshot is stored before publishing
// so a publish failure is retried from an up-to-date baseline rather than
// re-announced as a change.
func (m *Monitor) RunOnce(ctx context.Context) (domain.ChangeResult, error) {
	previous, hasPrevious, err := m.store.LoadSummary(ctx)
	if err != nil {
		return domain.ChangeResult{}, fmt.Errorf("load snapshot: %w", err)
	}

	hotspots, err := m.latestHotspots(ctx)
	if err != nil {
		m.metrics.FeedErrors.WithLabelValues("hotspots").Inc()
		return domain.ChangeResult{}, fmt.Errorf("hotspot feed: %w", err)
	}

	reports, err := m.latestReports(ctx)
	if err != nil {
		m.metrics.FeedErrors.WithLabelValues("ipc").Inc()
		return domain.ChangeResult{}, fmt.Errorf("ipc feed: %w", err)
	}

	summary, err := domain.MergeAlerts(hotspots, reports, m.opts.Countries)
	if err != nil {
		return domain.ChangeResult{}, fmt.Errorf("merge alerts: %w", err)
	}

	result := domain.DetectChange(summary, previous, hasPrevious, m.opts.ForcePublish)
	if result.Changed {
		if err := m.store.StoreSummary(ctx, summary); err != nil {
			return domain.ChangeResult{}, fmt.Errorf("store snapshot: %w", err)
		}
		if err := m.publisher.PublishSummary(ctx, summary); err != nil {
			m.metrics.PublishErrors.Inc()
			return domain.ChangeResult{}, fmt.Errorf("publish summary: %w", err)
		}
		m.metrics.SummaryChanged.Inc()
		m.logger.Info("summary published",
			"countries", len(summary),
			"forced", result.Forced,
		)
	} else {
		m.logger.Info("summary unchanged", "countries", len(summary))
	}

	m.updateGauges(summary)
	m.mu.Lock()
	m.latest = summary
	m.mu.Unlock()
	m.ready.Store(true)
	return result, nil
}

func (m *Monitor) latestHotspots(ctx context.Context) ([]domain.HotspotAlert, error) {
	records, err := m.hotspots.FetchHotspots(ctx)
	if err != nil {
		return nil, err
	}
	m.metrics.FeedRecords.WithLabelValues("hotspots").Add(float64(len(records)))

	alerts, err := domain.ClassifyHotspots(records, m.opts.Thresholds)
	if err != nil {
		return nil, err
	}
	return domain.LatestHotspotAlerts(alerts), nil
}

func (m *Monitor) latestReports(ctx context.Context) ([]domain.IpcPeriodRecord, error) {
	reports, err := m.reports.FetchReports(ctx)
	if err != nil {
		return nil, err
	}
	m.metrics.FeedRecords.WithLabelValues("ipc").Add(float64(len(reports)))

	records, err := domain.ClassifyReports(reports, m.opts.Thresholds)
	if err != nil {
		return nil, err
	}
	return domain.LatestReports(records)
}

func (m *Monitor) updateGauges(summary []domain.CountrySummary) {
	counts := make(map[domain.AlertLevel]int)
	for _, s := range summary {
		counts[s.MaxAlertLevel]++
	}
	for _, level := range []domain.AlertLevel{domain.AlertNone, domain.AlertLow, domain.AlertMedium, domain.AlertHigh, domain.AlertVeryHigh} {
		name := level.String()
		if name == "" {
			name = "none"
		}
		m.metrics.CountriesByAlert.WithLabelValues(name).Set(float64(counts[level]))
	}
}
