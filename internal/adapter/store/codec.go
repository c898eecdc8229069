// Package store persists the published country summary between monitoring
// runs, either on the local filesystem or in an S3-compatible object store.
// The snapshot format is CSV so analysts can open it directly.
package store

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/ochanalytics/slow-onset-monitor/internal/domain"
)

// summaryColumns is the fixed snapshot schema. Decoding rejects files whose
// header differs, so a schema change forces a fresh baseline instead of
// silently misreading old snapshots.
var summaryColumns = []string{
	"country", "iso3", "max_alert_level", "alert_level_hs", "alert_level_ipc",
	"ipc_type", "hotspot_date", "ipc_start_date", "ipc_end_date",
	"hotspot_comment", "alert_level_detail",
	"proportion_3+", "proportion_4+", "proportion_5",
	"population_3+", "population_4+", "population_5",
	"pt_change_3+", "pt_change_4+",
}

// EncodeSummary writes the summary as CSV.
func EncodeSummary(w io.Writer, summary []domain.CountrySummary) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(summaryColumns); err != nil {
		return fmt.Errorf("write summary header: %w", err)
	}
	for _, s := range summary {
		row := []string{
			s.Country,
			s.ISO3,
			s.MaxAlertLevel.String(),
			s.HotspotLevel.String(),
			s.IpcLevel.String(),
			string(s.IpcType),
			formatDate(s.HotspotDate),
			formatDate(s.IpcStartDate),
			formatDate(s.IpcEndDate),
			s.HotspotComment,
			s.IpcDetail,
			formatFloat(s.Proportion3Plus),
			formatFloat(s.Proportion4Plus),
			formatFloat(s.Proportion5),
			formatFloat(s.Population3Plus),
			formatFloat(s.Population4Plus),
			formatFloat(s.Population5),
			formatFloat(s.PtChange3Plus),
			formatFloat(s.PtChange4Plus),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write summary row for %s: %w", s.ISO3, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// DecodeSummary reads a snapshot previously written by EncodeSummary.
func DecodeSummary(r io.Reader) ([]domain.CountrySummary, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("snapshot is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot header: %w", err)
	}
	if len(header) != len(summaryColumns) {
		return nil, fmt.Errorf("snapshot has %d columns, want %d", len(header), len(summaryColumns))
	}
	for i, col := range header {
		if col != summaryColumns[i] {
			return nil, fmt.Errorf("snapshot column %d is %q, want %q", i, col, summaryColumns[i])
		}
	}

	summary := []domain.CountrySummary{}
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read snapshot row %d: %w", line, err)
		}
		s, err := decodeSummaryRow(row)
		if err != nil {
			return nil, fmt.Errorf("snapshot row %d: %w", line, err)
		}
		summary = append(summary, s)
	}
	return summary, nil
}

func decodeSummaryRow(row []string) (domain.CountrySummary, error) {
	maxLevel, err := domain.ParseAlertLevel(row[2])
	if err != nil {
		return domain.CountrySummary{}, err
	}
	hsLevel, err := domain.ParseAlertLevel(row[3])
	if err != nil {
		return domain.CountrySummary{}, err
	}
	ipcLevel, err := domain.ParseAlertLevel(row[4])
	if err != nil {
		return domain.CountrySummary{}, err
	}

	s := domain.CountrySummary{
		Country:        row[0],
		ISO3:           row[1],
		MaxAlertLevel:  maxLevel,
		HotspotLevel:   hsLevel,
		IpcLevel:       ipcLevel,
		IpcType:        domain.IpcType(row[5]),
		HotspotComment: row[9],
		IpcDetail:      row[10],
	}
	if s.HotspotDate, err = parseDate(row[6]); err != nil {
		return domain.CountrySummary{}, err
	}
	if s.IpcStartDate, err = parseDate(row[7]); err != nil {
		return domain.CountrySummary{}, err
	}
	if s.IpcEndDate, err = parseDate(row[8]); err != nil {
		return domain.CountrySummary{}, err
	}

	floats := []struct {
		dst   **float64
		value string
	}{
		{&s.Proportion3Plus, row[11]},
		{&s.Proportion4Plus, row[12]},
		{&s.Proportion5, row[13]},
		{&s.Population3Plus, row[14]},
		{&s.Population4Plus, row[15]},
		{&s.Population5, row[16]},
		{&s.PtChange3Plus, row[17]},
		{&s.PtChange4Plus, row[18]},
	}
	for _, f := range floats {
		if *f.dst, err = parseFloat(f.value); err != nil {
			return domain.CountrySummary{}, err
		}
	}
	return s, nil
}

// exposureColumns is the flat exposure output schema.
var exposureColumns = []string{
	"country", "year_month", "warning_type", "threshold",
	"exposed_population", "exposed_population_pct", "total_population",
	"exposure_alert",
}

// EncodeExposure writes the flat exposure records as CSV, with the per-type
// alert level of the country-month attached to every row.
func EncodeExposure(w io.Writer, result domain.ExposureResult) error {
	alerts := make(map[string]domain.ExposureAlertLevel, 2*len(result.Monthly))
	for _, m := range result.Monthly {
		alerts[m.Country+"\x00"+m.YearMonth+"\x00"+string(domain.WarningCrop)] = m.Crop.AlertLevel
		alerts[m.Country+"\x00"+m.YearMonth+"\x00"+string(domain.WarningRange)] = m.Range.AlertLevel
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(exposureColumns); err != nil {
		return fmt.Errorf("write exposure header: %w", err)
	}
	for _, rec := range result.Records {
		alert := alerts[rec.Country+"\x00"+rec.YearMonth+"\x00"+string(rec.WarningType)]
		row := []string{
			rec.Country,
			rec.YearMonth,
			string(rec.WarningType),
			strconv.Itoa(rec.Threshold),
			strconv.FormatFloat(rec.ExposedPopulation, 'f', -1, 64),
			strconv.FormatFloat(rec.ExposedPopulationPct, 'f', 4, 64),
			strconv.FormatFloat(rec.TotalPopulation, 'f', -1, 64),
			alert.String(),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write exposure row for %s %s: %w", rec.Country, rec.YearMonth, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.DateOnly)
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, fmt.Errorf("bad date %q", s)
	}
	return &t, nil
}

func formatFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func parseFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("bad number %q", s)
	}
	return &f, nil
}

// encodeSummaryBytes is a convenience for the blob backend.
func encodeSummaryBytes(summary []domain.CountrySummary) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeSummary(&buf, summary); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
