package domain

import (
	"sort"
	"time"
)

// WarningType distinguishes the two warning series carried by each grid cell.
type WarningType string

const (
	WarningCrop  WarningType = "crop"
	WarningRange WarningType = "range"
)

// WarningCell is one dekadal record of the admin-2 warning grid. Either label
// may be empty when the feed has no coverage for that warning type.
type WarningCell struct {
	Country      string
	Admin2ID     int64
	Date         time.Time
	CropWarning  string
	RangeWarning string
}

// Admin2Population is the static population reference for one admin-2 unit.
type Admin2Population struct {
	Admin2ID   int64
	Country    string
	Admin2Name string
	Population float64
}

// Coverage marks which warning types actually had grid records for a
// country-month, so a genuine "no coverage" month is distinguishable from a
// month with zero exposed population.
type Coverage string

const (
	CoverageCrop  Coverage = "crop"
	CoverageRange Coverage = "range"
	CoverageBoth  Coverage = "both"
)

// ExposureAlertLevel buckets a country-month by its warning-1+ exposure
// percentage.
type ExposureAlertLevel int

const (
	ExposureNoWarning ExposureAlertLevel = iota
	ExposureLight
	ExposureModerate
	ExposureSevere
)

func (l ExposureAlertLevel) String() string {
	switch l {
	case ExposureLight:
		return "light"
	case ExposureModerate:
		return "moderate"
	case ExposureSevere:
		return "severe"
	default:
		return "no warning"
	}
}

// TypeExposure holds the exposure statistics of one warning type for one
// country-month.
type TypeExposure struct {
	TotalPopulation float64
	// LevelPopulation is the exact-level distribution, sentinel levels
	// included.
	LevelPopulation map[int]float64
	// ThresholdPopulation[i] is the population at warning level i+1 or worse;
	// sentinels never count. ThresholdPct is the same as a percentage of
	// TotalPopulation (0 when the total is 0).
	ThresholdPopulation [4]float64
	ThresholdPct        [4]float64
	AlertLevel          ExposureAlertLevel
}

// MonthlyExposure merges the crop and rangeland statistics of one
// country-month. A type without coverage carries zero-valued statistics; the
// Coverage field says which side is real.
type MonthlyExposure struct {
	Country       string
	YearMonth     string // "2024-05"
	Coverage      Coverage
	Crop          TypeExposure
	Range         TypeExposure
	CombinedAlert ExposureAlertLevel
}

// ExposureRecord is the flat per-threshold output row.
type ExposureRecord struct {
	Country              string
	YearMonth            string
	WarningType          WarningType
	Threshold            int
	ExposedPopulation    float64
	ExposedPopulationPct float64
	TotalPopulation      float64
}

// ExposureResult is the output of one aggregation pass.
type ExposureResult struct {
	Monthly []MonthlyExposure
	Records []ExposureRecord
	// MissingPopulation counts grid cells dropped because their admin-2 unit
	// has no population reference.
	MissingPopulation int
}

// cellKey identifies one admin-2 unit in one month.
type cellKey struct {
	Country   string
	Admin2ID  int64
	YearMonth string
}

type monthKey struct {
	Country   string
	YearMonth string
}

// AggregateExposure estimates how many people live under each warning severity
// per country and month.
//
// For every (country, month, admin-2 unit) the last dekadal record of the
// month stands for the whole month: warning levels are cumulative within a
// season, so the end-of-month state beats an average. Populations are then
// summed per exact warning level and per cumulative threshold (sentinel levels
// count only toward the total), crop and rangeland are merged with an outer
// join over country-months, and each side is bucketed into an exposure alert
// level by its warning-1+ percentage.
//
// An unknown warning label fails the whole aggregation; a cell whose admin-2
// unit has no population reference is skipped and counted in
// MissingPopulation.
func AggregateExposure(cells []WarningCell, populations []Admin2Population, cuts ExposureThresholds) (ExposureResult, error) {
	popByID := make(map[int64]float64, len(populations))
	for _, p := range populations {
		popByID[p.Admin2ID] = p.Population
	}

	// Single pass to keep the last dekad per unit per month.
	lastCell := make(map[cellKey]WarningCell, len(cells)/3)
	for _, c := range cells {
		key := cellKey{c.Country, c.Admin2ID, c.Date.Format("2006-01")}
		if cur, ok := lastCell[key]; !ok || c.Date.After(cur.Date) {
			lastCell[key] = c
		}
	}

	var result ExposureResult
	months := make(map[monthKey]*MonthlyExposure)
	for key, c := range lastCell {
		pop, ok := popByID[c.Admin2ID]
		if !ok {
			result.MissingPopulation++
			continue
		}
		mk := monthKey{key.Country, key.YearMonth}
		month, ok := months[mk]
		if !ok {
			month = &MonthlyExposure{Country: key.Country, YearMonth: key.YearMonth}
			months[mk] = month
		}
		if c.CropWarning != "" {
			if err := accumulate(&month.Crop, c.CropWarning, pop); err != nil {
				return ExposureResult{}, err
			}
		}
		if c.RangeWarning != "" {
			if err := accumulate(&month.Range, c.RangeWarning, pop); err != nil {
				return ExposureResult{}, err
			}
		}
	}

	result.Monthly = make([]MonthlyExposure, 0, len(months))
	for _, m := range months {
		finalizeType(&m.Crop, cuts.Crop)
		finalizeType(&m.Range, cuts.Range)
		m.Coverage = coverageOf(m.Crop, m.Range)
		m.CombinedAlert = max(m.Crop.AlertLevel, m.Range.AlertLevel)
		result.Monthly = append(result.Monthly, *m)
	}
	sort.Slice(result.Monthly, func(i, j int) bool {
		a, b := result.Monthly[i], result.Monthly[j]
		if a.Country != b.Country {
			return a.Country < b.Country
		}
		return a.YearMonth < b.YearMonth
	})

	result.Records = flattenExposure(result.Monthly)
	return result, nil
}

func accumulate(t *TypeExposure, label string, pop float64) error {
	level, err := MapWarningLevel(label)
	if err != nil {
		return err
	}
	if t.LevelPopulation == nil {
		t.LevelPopulation = make(map[int]float64)
	}
	t.TotalPopulation += pop
	t.LevelPopulation[level] += pop
	for i, threshold := range WarningThresholds {
		if MeetsWarningThreshold(level, threshold) {
			t.ThresholdPopulation[i] += pop
		}
	}
	return nil
}

func finalizeType(t *TypeExposure, cuts [3]float64) {
	for i := range t.ThresholdPct {
		if t.TotalPopulation > 0 {
			t.ThresholdPct[i] = t.ThresholdPopulation[i] / t.TotalPopulation * 100
		}
	}
	t.AlertLevel = classifyExposure(t.ThresholdPct[0], cuts)
}

func classifyExposure(pct float64, cuts [3]float64) ExposureAlertLevel {
	switch {
	case pct >= cuts[2]:
		return ExposureSevere
	case pct >= cuts[1]:
		return ExposureModerate
	case pct >= cuts[0]:
		return ExposureLight
	default:
		return ExposureNoWarning
	}
}

func coverageOf(crop, rng TypeExposure) Coverage {
	switch {
	case crop.LevelPopulation != nil && rng.LevelPopulation != nil:
		return CoverageBoth
	case crop.LevelPopulation != nil:
		return CoverageCrop
	default:
		return CoverageRange
	}
}

// flattenExposure emits one record per country-month, warning type, and
// threshold, skipping warning types without coverage that month.
func flattenExposure(monthly []MonthlyExposure) []ExposureRecord {
	var records []ExposureRecord
	for _, m := range monthly {
		for _, side := range []struct {
			typ WarningType
			exp TypeExposure
		}{{WarningCrop, m.Crop}, {WarningRange, m.Range}} {
			if side.exp.LevelPopulation == nil {
				continue
			}
			for i, threshold := range WarningThresholds {
				records = append(records, ExposureRecord{
					Country:              m.Country,
					YearMonth:            m.YearMonth,
					WarningType:          side.typ,
					Threshold:            threshold,
					ExposedPopulation:    side.exp.ThresholdPopulation[i],
					ExposedPopulationPct: side.exp.ThresholdPct[i],
					TotalPopulation:      side.exp.TotalPopulation,
				})
			}
		}
	}
	return records
}
