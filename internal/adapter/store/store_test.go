package store

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ochanalytics/slow-onset-monitor/internal/domain"
)

func ptr(v float64) *float64 { return &v }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleSummary() []domain.CountrySummary {
	hsDate := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	return []domain.CountrySummary{
		{
			Country:         "Kenya",
			ISO3:            "KEN",
			MaxAlertLevel:   domain.AlertHigh,
			HotspotLevel:    domain.AlertMedium,
			IpcLevel:        domain.AlertHigh,
			IpcType:         domain.IpcCurrent,
			HotspotDate:     &hsDate,
			IpcStartDate:    &start,
			IpcEndDate:      &end,
			HotspotComment:  "dry spell, below-average rains",
			IpcDetail:       "emergency",
			Proportion3Plus: ptr(0.3),
			Proportion4Plus: ptr(0.1),
			Proportion5:     ptr(0.01),
			Population3Plus: ptr(300_000),
			Population4Plus: ptr(250_000),
			Population5:     ptr(10_000),
			PtChange3Plus:   ptr(6.5),
			PtChange4Plus:   ptr(1.25),
		},
		{
			// Hotspot-only row: every IPC field absent.
			Country:       "Uganda",
			ISO3:          "UGA",
			MaxAlertLevel: domain.AlertLow,
			HotspotLevel:  domain.AlertLow,
			HotspotDate:   &hsDate,
		},
	}
}

func TestSummaryCodec_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeSummary(&buf, sampleSummary()))

	decoded, err := DecodeSummary(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(sampleSummary(), decoded))
}

func TestSummaryCodec_RejectsForeignSchema(t *testing.T) {
	t.Run("wrong column count", func(t *testing.T) {
		_, err := DecodeSummary(strings.NewReader("country,iso3\nKenya,KEN\n"))
		assert.ErrorContains(t, err, "columns")
	})

	t.Run("renamed column", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, EncodeSummary(&buf, nil))
		mangled := strings.Replace(buf.String(), "max_alert_level", "overall_level", 1)
		_, err := DecodeSummary(strings.NewReader(mangled))
		assert.ErrorContains(t, err, "overall_level")
	})

	t.Run("empty file", func(t *testing.T) {
		_, err := DecodeSummary(strings.NewReader(""))
		assert.ErrorContains(t, err, "empty")
	})

	t.Run("bad alert level", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, EncodeSummary(&buf, sampleSummary()))
		mangled := strings.Replace(buf.String(), "high", "apocalyptic", 1)
		_, err := DecodeSummary(strings.NewReader(mangled))
		assert.Error(t, err)
	})
}

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	logger := testLogger()

	t.Run("missing snapshot is not an error", func(t *testing.T) {
		s := NewLocalStore(t.TempDir(), "summary.csv", logger)
		summary, found, err := s.LoadSummary(ctx)
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, summary)
	})

	t.Run("store and reload round trip", func(t *testing.T) {
		s := NewLocalStore(t.TempDir(), "summary.csv", logger)
		require.NoError(t, s.StoreSummary(ctx, sampleSummary()))

		loaded, found, err := s.LoadSummary(ctx)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Empty(t, cmp.Diff(sampleSummary(), loaded))
	})

	t.Run("dated copy is written alongside the latest", func(t *testing.T) {
		dir := t.TempDir()
		s := NewLocalStore(dir, "summary.csv", logger)
		s.SetClock(clockwork.NewFakeClockAt(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)))
		require.NoError(t, s.StoreSummary(ctx, sampleSummary()))

		latest, err := os.ReadFile(filepath.Join(dir, "summary.csv"))
		require.NoError(t, err)
		dated, err := os.ReadFile(filepath.Join(dir, "20250615", "summary.csv"))
		require.NoError(t, err)
		assert.Equal(t, latest, dated)
	})

	t.Run("corrupt snapshot surfaces as an error", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "summary.csv"), []byte("garbage"), 0o644))
		s := NewLocalStore(dir, "summary.csv", logger)
		_, _, err := s.LoadSummary(ctx)
		assert.Error(t, err)
	})
}

func TestWriteExposureFile(t *testing.T) {
	cells := []domain.WarningCell{{
		Country:     "Kenya",
		Admin2ID:    1,
		Date:        time.Date(2024, 5, 21, 0, 0, 0, 0, time.UTC),
		CropWarning: "Warning group 1",
	}}
	pops := []domain.Admin2Population{{Admin2ID: 1, Country: "Kenya", Population: 1_000}}
	result, err := domain.AggregateExposure(cells, pops, domain.DefaultExposureThresholds())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out", "monthly_exposure.csv")
	require.NoError(t, WriteExposureFile(path, result))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	// Header plus one row per threshold for the single covered type.
	require.Len(t, lines, 5)
	assert.Equal(t, "country,year_month,warning_type,threshold,exposed_population,exposed_population_pct,total_population,exposure_alert", lines[0])
	assert.Equal(t, "Kenya,2024-05,crop,1,1000,100.0000,1000,severe", lines[1])
	assert.Equal(t, "Kenya,2024-05,crop,4,0,0.0000,1000,severe", lines[4])
}
