package feed

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ochanalytics/slow-onset-monitor/internal/domain"
)

// WarningGridFile reads the dekadal admin-2 warning grid from a
// semicolon-separated export.
type WarningGridFile struct {
	path      string
	countries map[string]string
	logger    *slog.Logger
}

// NewWarningGridFile creates a grid reader limited to the given countries.
func NewWarningGridFile(path string, countries map[string]string, logger *slog.Logger) *WarningGridFile {
	return &WarningGridFile{path: path, countries: countries, logger: logger}
}

// ReadWarningGrid parses the grid file into warning cells.
func (f *WarningGridFile) ReadWarningGrid(_ context.Context) ([]domain.WarningCell, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open warning grid: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read warning grid header: %w", err)
	}
	cols, err := columnIndex(header, "asap0_name", "asap2_id", "date", "w_crop_gr", "w_range_gr")
	if err != nil {
		return nil, fmt.Errorf("warning grid: %w", err)
	}

	var cells []domain.WarningCell
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read warning grid row %d: %w", line, err)
		}

		country := strings.TrimSpace(row[cols["asap0_name"]])
		if _, ok := f.countries[country]; !ok {
			continue
		}
		admin2, err := strconv.ParseInt(strings.TrimSpace(row[cols["asap2_id"]]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("warning grid row %d: bad admin-2 id %q", line, row[cols["asap2_id"]])
		}
		date, err := time.Parse(time.DateOnly, row[cols["date"]])
		if err != nil {
			return nil, fmt.Errorf("warning grid row %d: bad date %q", line, row[cols["date"]])
		}
		cells = append(cells, domain.WarningCell{
			Country:      country,
			Admin2ID:     admin2,
			Date:         date,
			CropWarning:  strings.TrimSpace(row[cols["w_crop_gr"]]),
			RangeWarning: strings.TrimSpace(row[cols["w_range_gr"]]),
		})
	}
	f.logger.Debug("warning grid read", "cells", len(cells))
	return cells, nil
}

// PopulationFile reads the static admin-2 population reference.
type PopulationFile struct {
	path   string
	logger *slog.Logger
}

// NewPopulationFile creates a population reference reader.
func NewPopulationFile(path string, logger *slog.Logger) *PopulationFile {
	return &PopulationFile{path: path, logger: logger}
}

// ReadPopulations parses the reference file. Rows without a population figure
// are kept out so the aggregation can count them as missing.
func (f *PopulationFile) ReadPopulations(_ context.Context) ([]domain.Admin2Population, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open population reference: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read population header: %w", err)
	}
	cols, err := columnIndex(header, "asap2_id", "population_sum_2020", "name0", "name2")
	if err != nil {
		return nil, fmt.Errorf("population reference: %w", err)
	}

	var populations []domain.Admin2Population
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read population row %d: %w", line, err)
		}

		admin2, err := strconv.ParseInt(strings.TrimSpace(row[cols["asap2_id"]]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("population row %d: bad admin-2 id %q", line, row[cols["asap2_id"]])
		}
		raw := strings.TrimSpace(row[cols["population_sum_2020"]])
		if raw == "" {
			continue
		}
		pop, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("population row %d: bad population %q", line, raw)
		}
		populations = append(populations, domain.Admin2Population{
			Admin2ID:   admin2,
			Country:    strings.TrimSpace(row[cols["name0"]]),
			Admin2Name: strings.TrimSpace(row[cols["name2"]]),
			Population: pop,
		})
	}
	f.logger.Debug("population reference read", "units", len(populations))
	return populations, nil
}
