package domain

import (
	"sort"
	"strconv"
	"time"
)

// Hotspot codes as published by the ASAP feed.
const (
	HotspotNone  = 0
	HotspotMinor = 1
	HotspotMajor = 2
)

// HotspotRecord is one raw observation from the hotspot time series.
type HotspotRecord struct {
	Country string
	Date    time.Time
	Code    int
	Comment string
}

// HotspotAlert is the classified form of a HotspotRecord. Alerts are never
// persisted; they are recomputed from the raw series on every run.
type HotspotAlert struct {
	Country string
	Date    time.Time
	Level   AlertLevel
	Comment string
}

// ClassifyHotspots derives an alert level for every record in the series.
// Each country's records are split into maximal runs of identical hotspot
// codes; a record's level depends on its code and its 0-based position within
// the current run:
//
//	code 0                                  -> low
//	code 1, fewer than HighConsecutive runs -> medium
//	code 1, HighConsecutive or more         -> high
//	code 2                                  -> very high
//
// A code outside {0,1,2} fails the whole classification with an
// UnknownCategoryError. Input order does not matter; records are ordered by
// (country, date) before run-length counting.
func ClassifyHotspots(records []HotspotRecord, cfg Thresholds) ([]HotspotAlert, error) {
	sorted := make([]HotspotRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Country != sorted[j].Country {
			return sorted[i].Country < sorted[j].Country
		}
		return sorted[i].Date.Before(sorted[j].Date)
	})

	alerts := make([]HotspotAlert, 0, len(sorted))
	var (
		prevCountry string
		prevCode    int
		runPosition int
	)
	for i, rec := range sorted {
		if i == 0 || rec.Country != prevCountry || rec.Code != prevCode {
			runPosition = 0
		} else {
			runPosition++
		}
		prevCountry, prevCode = rec.Country, rec.Code

		level, err := classifyHotspot(rec.Code, runPosition, cfg.HighConsecutive)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, HotspotAlert{
			Country: rec.Country,
			Date:    rec.Date,
			Level:   level,
			Comment: rec.Comment,
		})
	}
	return alerts, nil
}

func classifyHotspot(code, runPosition, highConsecutive int) (AlertLevel, error) {
	switch {
	case code == HotspotNone:
		return AlertLow, nil
	case code == HotspotMinor && runPosition < highConsecutive:
		return AlertMedium, nil
	case code == HotspotMinor:
		return AlertHigh, nil
	case code == HotspotMajor:
		return AlertVeryHigh, nil
	default:
		return AlertNone, &UnknownCategoryError{Kind: "hotspot code", Value: strconv.Itoa(code)}
	}
}

// LatestHotspotAlerts keeps the max-date alert per country, sorted by country.
func LatestHotspotAlerts(alerts []HotspotAlert) []HotspotAlert {
	latest := make(map[string]HotspotAlert, len(alerts))
	for _, a := range alerts {
		cur, ok := latest[a.Country]
		if !ok || a.Date.After(cur.Date) {
			latest[a.Country] = a
		}
	}
	out := make([]HotspotAlert, 0, len(latest))
	for _, a := range latest {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Country < out[j].Country })
	return out
}
