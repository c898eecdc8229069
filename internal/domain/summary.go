package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/go-cmp/cmp"
)

// CountrySummary is one row of the published risk table: the hotspot and IPC
// alert levels for a country merged into a single max level, with the IPC
// metrics carried along for rendering. Pointer fields are absent when the
// corresponding feed had no active record for the country.
type CountrySummary struct {
	Country       string     `json:"country"`
	ISO3          string     `json:"iso3"`
	MaxAlertLevel AlertLevel `json:"max_alert_level"`
	HotspotLevel  AlertLevel `json:"alert_level_hs"`
	IpcLevel      AlertLevel `json:"alert_level_ipc"`
	IpcType       IpcType    `json:"ipc_type,omitempty"`

	HotspotDate    *time.Time `json:"hotspot_date,omitempty"`
	IpcStartDate   *time.Time `json:"ipc_start_date,omitempty"`
	IpcEndDate     *time.Time `json:"ipc_end_date,omitempty"`
	HotspotComment string     `json:"hotspot_comment,omitempty"`
	IpcDetail      string     `json:"alert_level_detail,omitempty"`

	Proportion3Plus *float64 `json:"proportion_3+,omitempty"`
	Proportion4Plus *float64 `json:"proportion_4+,omitempty"`
	Proportion5     *float64 `json:"proportion_5,omitempty"`
	Population3Plus *float64 `json:"population_3+,omitempty"`
	Population4Plus *float64 `json:"population_4+,omitempty"`
	Population5     *float64 `json:"population_5,omitempty"`
	PtChange3Plus   *float64 `json:"pt_change_3+,omitempty"`
	PtChange4Plus   *float64 `json:"pt_change_4+,omitempty"`
}

// MergeAlerts outer-joins the latest hotspot alerts (keyed by country name)
// with the latest IPC records (keyed by ISO3) into one summary row per
// country, sorted by country name. iso3ByCountry maps feed country names to
// ISO3 codes. A country may have either side missing; the max level skips the
// absent side. Duplicate keys on either input, or a merged row count that is
// not the union of both key sets, are DataIntegrityErrors.
func MergeAlerts(hotspots []HotspotAlert, reports []IpcPeriodRecord, iso3ByCountry map[string]string) ([]CountrySummary, error) {
	countryByISO3 := make(map[string]string, len(iso3ByCountry))
	for name, iso3 := range iso3ByCountry {
		countryByISO3[iso3] = name
	}

	hotspotByISO3 := make(map[string]HotspotAlert, len(hotspots))
	for _, h := range hotspots {
		iso3, ok := iso3ByCountry[h.Country]
		if !ok {
			return nil, &UnknownCategoryError{Kind: "country", Value: h.Country}
		}
		if _, dup := hotspotByISO3[iso3]; dup {
			return nil, &DataIntegrityError{Check: "duplicate hotspot alert", Location: iso3}
		}
		hotspotByISO3[iso3] = h
	}

	reportByISO3 := make(map[string]IpcPeriodRecord, len(reports))
	for _, r := range reports {
		if _, ok := countryByISO3[r.LocationCode]; !ok {
			return nil, &UnknownCategoryError{Kind: "location code", Value: r.LocationCode}
		}
		if _, dup := reportByISO3[r.LocationCode]; dup {
			return nil, &DataIntegrityError{Check: "duplicate ipc record", Location: r.LocationCode}
		}
		reportByISO3[r.LocationCode] = r
	}

	keys := make(map[string]struct{}, len(hotspotByISO3)+len(reportByISO3))
	for iso3 := range hotspotByISO3 {
		keys[iso3] = struct{}{}
	}
	for iso3 := range reportByISO3 {
		keys[iso3] = struct{}{}
	}

	summaries := make([]CountrySummary, 0, len(keys))
	for iso3 := range keys {
		s := CountrySummary{ISO3: iso3, Country: countryByISO3[iso3]}
		if h, ok := hotspotByISO3[iso3]; ok {
			date := h.Date
			s.HotspotLevel = h.Level
			s.HotspotDate = &date
			s.HotspotComment = h.Comment
		}
		if r, ok := reportByISO3[iso3]; ok {
			start, end := r.PeriodStart, r.PeriodEnd
			p3, p4, p5 := r.Proportion3Plus, r.Proportion4Plus, r.Proportion5
			pop3, pop4, pop5 := r.Population3Plus, r.Population4Plus, r.Population5
			s.IpcLevel = r.Level
			s.IpcType = r.Type
			s.IpcDetail = r.Detail
			s.IpcStartDate = &start
			s.IpcEndDate = &end
			s.Proportion3Plus, s.Proportion4Plus, s.Proportion5 = &p3, &p4, &p5
			s.Population3Plus, s.Population4Plus, s.Population5 = &pop3, &pop4, &pop5
			s.PtChange3Plus = r.PtChange3Plus
			s.PtChange4Plus = r.PtChange4Plus
		}
		s.MaxAlertLevel = MaxAlert(s.HotspotLevel, s.IpcLevel)
		summaries = append(summaries, s)
	}

	// The join is keyed by unique ISO3 on both sides, so the merged row count
	// must be exactly the key union. Anything else is a fan-out bug.
	if len(summaries) != len(keys) {
		return nil, &DataIntegrityError{
			Check:  "merge fan-out",
			Detail: fmt.Sprintf("%d rows merged from %d distinct countries", len(summaries), len(keys)),
		}
	}

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Country < summaries[j].Country })
	return summaries, nil
}

// ChangeResult reports whether a newly computed summary differs from the
// previously published one.
type ChangeResult struct {
	Changed bool
	Forced  bool
	Diff    string // human-readable structural diff, empty when identical
}

// DetectChange compares the new summary against the previous snapshot row by
// row, column by column. Any differing cell marks the whole run as changed
// (the full table is always republished). When no previous snapshot exists the
// run always counts as changed; force treats "no diff" as changed anyway.
func DetectChange(current, previous []CountrySummary, hasPrevious, force bool) ChangeResult {
	if !hasPrevious {
		return ChangeResult{Changed: true, Diff: "no previous snapshot"}
	}
	diff := cmp.Diff(previous, current)
	if diff != "" {
		return ChangeResult{Changed: true, Diff: diff}
	}
	if force {
		return ChangeResult{Changed: true, Forced: true}
	}
	return ChangeResult{}
}
