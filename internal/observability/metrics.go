package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "slow_onset"

// Metrics holds every Prometheus collector the service exports.
type Metrics struct {
	Registry *prometheus.Registry

	// RunsTotal counts monitoring runs by outcome: success, error, unchanged.
	RunsTotal   *prometheus.CounterVec
	RunDuration prometheus.Histogram

	// SummaryChanged counts runs that produced a new published snapshot.
	SummaryChanged prometheus.Counter
	// CountriesByAlert is the current number of countries at each alert level.
	CountriesByAlert *prometheus.GaugeVec

	// FeedRecords counts raw records ingested, by feed (hotspots, ipc,
	// warnings, population).
	FeedRecords *prometheus.CounterVec
	// FeedErrors counts fetch or parse failures by feed.
	FeedErrors *prometheus.CounterVec

	PublishErrors  prometheus.Counter
	MonitorRunning prometheus.Gauge

	// ExposureRows counts country-month exposure rows produced per run.
	ExposureRows prometheus.Counter
	// ExposureMissingPopulation counts warning cells dropped for lack of a
	// population figure.
	ExposureMissingPopulation prometheus.Counter
}

// NewMetrics creates and registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Monitoring runs by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of a full monitoring run.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		SummaryChanged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summary_changed_total",
			Help:      "Runs whose country summary differed from the stored snapshot.",
		}),
		CountriesByAlert: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "countries_by_alert_level",
			Help:      "Countries currently at each alert level.",
		}, []string{"level"}),
		FeedRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_records_total",
			Help:      "Raw records ingested per feed.",
		}, []string{"feed"}),
		FeedErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_errors_total",
			Help:      "Fetch or parse failures per feed.",
		}, []string{"feed"}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Failed summary publishes.",
		}),
		MonitorRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "monitor_running",
			Help:      "1 while a monitoring run is in progress.",
		}),
		ExposureRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exposure_rows_total",
			Help:      "Country-month exposure rows produced.",
		}),
		ExposureMissingPopulation: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exposure_missing_population_total",
			Help:      "Warning cells skipped because no population figure was found.",
		}),
	}

	registry.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.SummaryChanged,
		m.CountriesByAlert,
		m.FeedRecords,
		m.FeedErrors,
		m.PublishErrors,
		m.MonitorRunning,
		m.ExposureRows,
		m.ExposureMissingPopulation,
	)
	return m
}

// NewMetricsForTesting returns metrics on an isolated registry so parallel
// tests never collide on registration.
func NewMetricsForTesting() *Metrics {
	return NewMetrics()
}
