package pipeline_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ochanalytics/slow-onset-monitor/internal/domain"
	"github.com/ochanalytics/slow-onset-monitor/internal/observability"
	"github.com/ochanalytics/slow-onset-monitor/internal/pipeline"
)

// --- fakes ---

type fakeHotspotFetcher struct {
	records []domain.HotspotRecord
	err     error
}

func (f *fakeHotspotFetcher) FetchHotspots(_ context.Context) ([]domain.HotspotRecord, error) {
	return f.records, f.err
}

type fakeReportFetcher struct {
	reports []domain.IpcReport
	err     error
}

func (f *fakeReportFetcher) FetchReports(_ context.Context) ([]domain.IpcReport, error) {
	return f.reports, f.err
}

type fakeStore struct {
	snapshot    []domain.CountrySummary
	hasSnapshot bool
	loadErr     error
	storeErr    error
	stores      int
}

func (f *fakeStore) LoadSummary(_ context.Context) ([]domain.CountrySummary, bool, error) {
	return f.snapshot, f.hasSnapshot, f.loadErr
}

func (f *fakeStore) StoreSummary(_ context.Context, summary []domain.CountrySummary) error {
	if f.storeErr != nil {
		return f.storeErr
	}
	f.snapshot, f.hasSnapshot = summary, true
	f.stores++
	return nil
}

type fakePublisher struct {
	published [][]domain.CountrySummary
	err       error
}

func (f *fakePublisher) PublishSummary(_ context.Context, summary []domain.CountrySummary) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, summary)
	return nil
}

// --- fixtures ---

var (
	testNow     = time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	periodStart = time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	periodEnd   = time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
)

func useFakeClock(t *testing.T) {
	t.Helper()
	domain.SetClock(clockwork.NewFakeClockAt(testNow))
	t.Cleanup(func() { domain.SetClock(nil) })
}

func hotspotSeries(country string, codes ...int) []domain.HotspotRecord {
	records := make([]domain.HotspotRecord, len(codes))
	for i, code := range codes {
		records[i] = domain.HotspotRecord{
			Country: country,
			Date:    periodStart.AddDate(0, 0, 10*i),
			Code:    code,
		}
	}
	return records
}

// ipcPeriod emits the full phase set of one active reporting period.
func ipcPeriod(iso3 string, prop3, pop3, prop4, pop4 float64) []domain.IpcReport {
	base := domain.IpcReport{
		LocationCode: iso3,
		Type:         domain.IpcCurrent,
		PeriodStart:  periodStart,
		PeriodEnd:    periodEnd,
		Year:         periodEnd.Year(),
	}
	mk := func(phase string, fraction, pop float64) domain.IpcReport {
		r := base
		r.Phase, r.PopulationFraction, r.Population = phase, fraction, pop
		return r
	}
	return []domain.IpcReport{
		mk("all", 1, 1_000_000),
		mk("3+", prop3, pop3),
		mk("4", prop4, pop4),
		mk("5", 0, 0),
	}
}

func newMonitor(h pipeline.HotspotFetcher, r pipeline.ReportFetcher, s pipeline.SnapshotStore, p pipeline.SummaryPublisher, opts pipeline.Options) *pipeline.Monitor {
	if opts.Thresholds == (domain.Thresholds{}) {
		opts.Thresholds = domain.DefaultThresholds()
	}
	if opts.Countries == nil {
		opts.Countries = map[string]string{"Kenya": "KEN", "Uganda": "UGA"}
	}
	if opts.CheckInterval == 0 {
		opts.CheckInterval = time.Hour
	}
	return pipeline.New(h, r, s, p, slog.Default(), observability.NewMetricsForTesting(), opts)
}

// --- tests ---

func TestMonitor_RunOnce_FirstRunPublishes(t *testing.T) {
	useFakeClock(t)

	store := &fakeStore{}
	pub := &fakePublisher{}
	m := newMonitor(
		&fakeHotspotFetcher{records: hotspotSeries("Kenya", 1, 1)},
		&fakeReportFetcher{reports: ipcPeriod("UGA", 0.30, 300_000, 0.08, 80_000)},
		store, pub, pipeline.Options{},
	)

	result, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.False(t, result.Forced)

	require.Len(t, pub.published, 1)
	summary := pub.published[0]
	require.Len(t, summary, 2)
	assert.Equal(t, "Kenya", summary[0].Country)
	assert.Equal(t, domain.AlertMedium, summary[0].MaxAlertLevel)
	assert.Equal(t, "Uganda", summary[1].Country)
	assert.Equal(t, domain.AlertMedium, summary[1].IpcLevel)

	assert.Equal(t, 1, store.stores)
	assert.NoError(t, m.CheckReadiness(context.Background()))
	assert.Equal(t, summary, m.LatestSummary())
}

func TestMonitor_RunOnce_UnchangedDoesNotRepublish(t *testing.T) {
	useFakeClock(t)

	store := &fakeStore{}
	pub := &fakePublisher{}
	m := newMonitor(
		&fakeHotspotFetcher{records: hotspotSeries("Kenya", 1)},
		&fakeReportFetcher{},
		store, pub, pipeline.Options{},
	)

	first, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, first.Changed)

	second, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, second.Changed)
	assert.Len(t, pub.published, 1)
	assert.Equal(t, 1, store.stores)
	// The summary endpoint still reflects the latest computation.
	require.Len(t, m.LatestSummary(), 1)
}

func TestMonitor_RunOnce_ForcePublish(t *testing.T) {
	useFakeClock(t)

	store := &fakeStore{}
	pub := &fakePublisher{}
	m := newMonitor(
		&fakeHotspotFetcher{records: hotspotSeries("Kenya", 1)},
		&fakeReportFetcher{},
		store, pub, pipeline.Options{ForcePublish: true},
	)

	_, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	result, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.True(t, result.Forced)
	assert.Len(t, pub.published, 2)
}

func TestMonitor_RunOnce_ChangeTriggersRepublish(t *testing.T) {
	useFakeClock(t)

	store := &fakeStore{}
	pub := &fakePublisher{}
	hotspots := &fakeHotspotFetcher{records: hotspotSeries("Kenya", 1)}
	m := newMonitor(hotspots, &fakeReportFetcher{}, store, pub, pipeline.Options{})

	_, err := m.RunOnce(context.Background())
	require.NoError(t, err)

	// The feed escalates: another consecutive minor-hotspot dekad.
	hotspots.records = hotspotSeries("Kenya", 1, 1, 1, 1)
	result, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.NotEmpty(t, result.Diff)
	require.Len(t, pub.published, 2)
	assert.Equal(t, domain.AlertHigh, pub.published[1][0].MaxAlertLevel)
}

func TestMonitor_RunOnce_Errors(t *testing.T) {
	useFakeClock(t)

	t.Run("hotspot feed failure aborts the run", func(t *testing.T) {
		pub := &fakePublisher{}
		m := newMonitor(
			&fakeHotspotFetcher{err: errors.New("gateway timeout")},
			&fakeReportFetcher{},
			&fakeStore{}, pub, pipeline.Options{},
		)
		_, err := m.RunOnce(context.Background())
		require.Error(t, err)
		assert.Empty(t, pub.published)
		assert.Error(t, m.CheckReadiness(context.Background()))
	})

	t.Run("ipc feed failure aborts the run", func(t *testing.T) {
		m := newMonitor(
			&fakeHotspotFetcher{},
			&fakeReportFetcher{err: errors.New("rate limited")},
			&fakeStore{}, &fakePublisher{}, pipeline.Options{},
		)
		_, err := m.RunOnce(context.Background())
		require.Error(t, err)
	})

	t.Run("snapshot is stored before publishing", func(t *testing.T) {
		store := &fakeStore{}
		m := newMonitor(
			&fakeHotspotFetcher{records: hotspotSeries("Kenya", 0)},
			&fakeReportFetcher{},
			store, &fakePublisher{err: errors.New("broker down")}, pipeline.Options{},
		)
		_, err := m.RunOnce(context.Background())
		require.Error(t, err)
		assert.Equal(t, 1, store.stores)
	})

	t.Run("store failure aborts before publish", func(t *testing.T) {
		pub := &fakePublisher{}
		m := newMonitor(
			&fakeHotspotFetcher{records: hotspotSeries("Kenya", 0)},
			&fakeReportFetcher{},
			&fakeStore{storeErr: errors.New("disk full")}, pub, pipeline.Options{},
		)
		_, err := m.RunOnce(context.Background())
		require.Error(t, err)
		assert.Empty(t, pub.published)
	})

	t.Run("unmonitored feed country aborts the run", func(t *testing.T) {
		m := newMonitor(
			&fakeHotspotFetcher{records: hotspotSeries("Atlantis", 1)},
			&fakeReportFetcher{},
			&fakeStore{}, &fakePublisher{}, pipeline.Options{},
		)
		_, err := m.RunOnce(context.Background())
		var unknown *domain.UnknownCategoryError
		require.ErrorAs(t, err, &unknown)
	})
}

func TestMonitor_Run_StopsOnCancel(t *testing.T) {
	useFakeClock(t)

	pub := &fakePublisher{}
	m := newMonitor(
		&fakeHotspotFetcher{records: hotspotSeries("Kenya", 1)},
		&fakeReportFetcher{},
		&fakeStore{}, pub, pipeline.Options{CheckInterval: time.Hour},
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	// The immediate first cycle publishes; then the loop waits for the tick.
	require.Eventually(t, func() bool {
		return m.CheckReadiness(context.Background()) == nil
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop after cancellation")
	}
	assert.Len(t, pub.published, 1)
}

// --- exposure job ---

type fakeGridReader struct {
	cells []domain.WarningCell
	err   error
}

func (f *fakeGridReader) ReadWarningGrid(_ context.Context) ([]domain.WarningCell, error) {
	return f.cells, f.err
}

type fakePopulationReader struct {
	populations []domain.Admin2Population
	err         error
}

func (f *fakePopulationReader) ReadPopulations(_ context.Context) ([]domain.Admin2Population, error) {
	return f.populations, f.err
}

type fakeExposureWriter struct {
	result *domain.ExposureResult
	err    error
}

func (f *fakeExposureWriter) WriteExposure(_ context.Context, result domain.ExposureResult) error {
	if f.err != nil {
		return f.err
	}
	f.result = &result
	return nil
}

func TestExposureJob_Run(t *testing.T) {
	newJob := func(g *fakeGridReader, p *fakePopulationReader, w *fakeExposureWriter) *pipeline.ExposureJob {
		return pipeline.NewExposureJob(g, p, w, slog.Default(),
			observability.NewMetricsForTesting(), domain.DefaultExposureThresholds())
	}

	cells := []domain.WarningCell{{
		Country:     "Kenya",
		Admin2ID:    1,
		Date:        time.Date(2024, 5, 21, 0, 0, 0, 0, time.UTC),
		CropWarning: "Warning group 2",
	}}
	populations := []domain.Admin2Population{{Admin2ID: 1, Country: "Kenya", Population: 10_000}}

	t.Run("aggregates and writes", func(t *testing.T) {
		writer := &fakeExposureWriter{}
		err := newJob(&fakeGridReader{cells: cells}, &fakePopulationReader{populations: populations}, writer).
			Run(context.Background())
		require.NoError(t, err)
		require.NotNil(t, writer.result)
		require.Len(t, writer.result.Monthly, 1)
		assert.Equal(t, "2024-05", writer.result.Monthly[0].YearMonth)
	})

	t.Run("grid failure aborts", func(t *testing.T) {
		writer := &fakeExposureWriter{}
		err := newJob(&fakeGridReader{err: errors.New("no such file")}, &fakePopulationReader{}, writer).
			Run(context.Background())
		require.Error(t, err)
		assert.Nil(t, writer.result)
	})

	t.Run("writer failure surfaces", func(t *testing.T) {
		err := newJob(&fakeGridReader{cells: cells}, &fakePopulationReader{populations: populations},
			&fakeExposureWriter{err: errors.New("read-only filesystem")}).
			Run(context.Background())
		require.Error(t, err)
	})
}
