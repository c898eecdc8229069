// Command genfixtures generates sample input files for local runs and demos:
// a hotspot time series with an escalating run, a warning grid month, and a
// matching population reference. It uses the actual domain classifiers so the
// emitted expected-summary fixture matches real monitor behavior.
//
// Usage:
//
//	go run ./cmd/genfixtures -out data/fixtures
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ochanalytics/slow-onset-monitor/internal/adapter/store"
	"github.com/ochanalytics/slow-onset-monitor/internal/config"
	"github.com/ochanalytics/slow-onset-monitor/internal/domain"
)

var baseDate = time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "data/fixtures", "output directory for fixture files")
	flag.Parse()

	if err := os.MkdirAll(*out, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	// Freeze time so the expected summary is reproducible.
	domain.SetClock(clockwork.NewFakeClockAt(baseDate.AddDate(0, 2, 14)))
	defer domain.SetClock(nil)

	hotspots := sampleHotspots()
	if err := writeHotspots(filepath.Join(*out, "hotspots_ts.csv"), hotspots); err != nil {
		return err
	}
	if err := writeWarningGrid(filepath.Join(*out, "warnings_l2_ts.csv")); err != nil {
		return err
	}
	if err := writePopulations(filepath.Join(*out, "worldpop_l2.csv")); err != nil {
		return err
	}

	// Run the classifiers over the fixture so the expected output ships with it.
	alerts, err := domain.ClassifyHotspots(hotspots, domain.DefaultThresholds())
	if err != nil {
		return fmt.Errorf("classify fixture hotspots: %w", err)
	}
	summary, err := domain.MergeAlerts(domain.LatestHotspotAlerts(alerts), nil, config.DefaultCountries())
	if err != nil {
		return fmt.Errorf("merge fixture alerts: %w", err)
	}

	summaryPath := filepath.Join(*out, "expected_summary.csv")
	file, err := os.Create(summaryPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", summaryPath, err)
	}
	defer file.Close()
	if err := store.EncodeSummary(file, summary); err != nil {
		return fmt.Errorf("write expected summary: %w", err)
	}

	log.Printf("fixtures written to %s: %d hotspot records, %d summary rows",
		*out, len(hotspots), len(summary))
	return nil
}

// sampleHotspots builds a series with the interesting shapes: a run long
// enough to escalate to high, a reset, and a major hotspot.
func sampleHotspots() []domain.HotspotRecord {
	mk := func(country string, dekad, code int, comment string) domain.HotspotRecord {
		return domain.HotspotRecord{
			Country: country,
			Date:    baseDate.AddDate(0, 0, 10*dekad),
			Code:    code,
			Comment: comment,
		}
	}
	return []domain.HotspotRecord{
		mk("Kenya", 0, 1, "late season onset"),
		mk("Kenya", 1, 1, "rainfall deficit persists"),
		mk("Kenya", 2, 1, "rainfall deficit persists"),
		mk("Kenya", 3, 1, "vegetation stress widespread"),
		mk("Malawi", 0, 0, ""),
		mk("Malawi", 1, 1, "dry spell in southern districts"),
		mk("Malawi", 2, 0, "conditions recovered"),
		mk("Zimbabwe", 0, 2, "failed season declared"),
		mk("Zimbabwe", 1, 2, "failed season declared"),
	}
}

func writeHotspots(path string, records []domain.HotspotRecord) error {
	rows := [][]string{{"asap0_name", "date", "hs_code", "comment"}}
	for _, r := range records {
		rows = append(rows, []string{
			r.Country, r.Date.Format(time.DateOnly), strconv.Itoa(r.Code), r.Comment,
		})
	}
	return writeCSV(path, ';', rows)
}

func writeWarningGrid(path string) error {
	date := baseDate.AddDate(0, 1, 20).Format(time.DateOnly)
	rows := [][]string{
		{"asap0_name", "asap2_id", "date", "w_crop_gr", "w_range_gr"},
		{"Kenya", "101", date, "Warning group 3", "Warning group 1"},
		{"Kenya", "102", date, "Warning group 1", "No warning"},
		{"Kenya", "103", date, "Off season", "No crop/rangeland"},
		{"Malawi", "201", date, "No warning", ""},
		{"Zimbabwe", "301", date, "Warning group 4", "Warning group 4"},
	}
	return writeCSV(path, ';', rows)
}

func writePopulations(path string) error {
	rows := [][]string{
		{"asap2_id", "population_sum_2020", "name0", "name2"},
		{"101", "850000", "Kenya", "Turkana"},
		{"102", "460000", "Kenya", "Marsabit"},
		{"103", "120000", "Kenya", "Lamu"},
		{"201", "300000", "Malawi", "Chikwawa"},
		{"301", "650000", "Zimbabwe", "Matabeleland North"},
	}
	return writeCSV(path, ',', rows)
}

func writeCSV(path string, comma rune, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	writer.Comma = comma
	if err := writer.WriteAll(rows); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	writer.Flush()
	return writer.Error()
}
