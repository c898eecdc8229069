package domain

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// IpcType is the report type of an IPC record. When several reports cover the
// same location at once, "current" beats "first projection" beats "second
// projection".
type IpcType string

const (
	IpcCurrent          IpcType = "current"
	IpcFirstProjection  IpcType = "first projection"
	IpcSecondProjection IpcType = "second projection"
)

// Priority returns the authority rank of the report type, lower is more
// authoritative.
func (t IpcType) Priority() (int, error) {
	switch t {
	case IpcCurrent:
		return 0, nil
	case IpcFirstProjection:
		return 1, nil
	case IpcSecondProjection:
		return 2, nil
	default:
		return 0, &UnknownCategoryError{Kind: "ipc type", Value: string(t)}
	}
}

// IpcReport is one raw row from the IPC feed: a population count and fraction
// for a single phase of a single reporting period.
type IpcReport struct {
	LocationCode       string // ISO3
	Phase              string // "1".."5", "3+", "all"
	Type               IpcType
	PopulationFraction float64
	Population         float64
	PeriodStart        time.Time
	PeriodEnd          time.Time
	Year               int
}

// IpcPeriodRecord is the wide form: one record per (location, type, period)
// with the phase metrics as fields, the population-comparability gate applied,
// and the alert decision tree evaluated.
type IpcPeriodRecord struct {
	LocationCode       string
	Type               IpcType
	PopulationAnalyzed *float64 // total from the "all" phase, absent if the feed lacked it
	PeriodStart        time.Time
	PeriodEnd          time.Time
	Year               int

	Proportion3Plus float64
	Proportion4Plus float64
	Proportion5     float64
	Population3Plus float64
	Population4Plus float64
	Population5     float64

	// Percentage-point changes from the immediately preceding period for the
	// same location. Nil when the analyzed populations are not comparable:
	// zero is a valid "no change" and must stay distinguishable from
	// "incomparable".
	PtChange3Plus *float64
	PtChange4Plus *float64
	PopComparable bool

	Level  AlertLevel
	Detail string // "emergency", "deteriorating", "all criteria", or empty
}

// periodKey identifies one reporting period of one location.
type periodKey struct {
	Location string
	Type     IpcType
	Start    int64
	End      int64
	Year     int
}

// phaseAccumulator collects the per-phase rows of one period while the raw
// feed is consolidated.
type phaseAccumulator struct {
	start, end time.Time

	proportion3, population3 float64
	proportion4, population4 float64 // phases 4 and 5 rolled up into "4+"
	proportion5, population5 float64
	populationAnalyzed       *float64

	has3, has4, has5 bool
}

// ClassifyReports converts raw IPC rows into classified wide period records.
//
// Steps, in order: phases 4 and 5 are summed into a synthetic "4+" (phase 5 is
// additionally kept on its own — famine is never merged away); the "all" phase
// total is attached as the analyzed population; rows are pivoted wide per
// (location, type, period); point changes are computed between temporally
// adjacent periods of the same location, gated by population comparability;
// and the alert decision tree is evaluated per record.
func ClassifyReports(reports []IpcReport, cfg Thresholds) ([]IpcPeriodRecord, error) {
	periods := make(map[periodKey]*phaseAccumulator)
	for _, r := range reports {
		if _, err := r.Type.Priority(); err != nil {
			return nil, err
		}
		key := periodKey{r.LocationCode, r.Type, r.PeriodStart.Unix(), r.PeriodEnd.Unix(), r.Year}
		acc, ok := periods[key]
		if !ok {
			acc = &phaseAccumulator{start: r.PeriodStart, end: r.PeriodEnd}
			periods[key] = acc
		}
		switch r.Phase {
		case "3+":
			acc.proportion3, acc.population3, acc.has3 = r.PopulationFraction, r.Population, true
		case "4", "4+":
			acc.proportion4 += r.PopulationFraction
			acc.population4 += r.Population
			acc.has4 = true
		case "5":
			acc.proportion5, acc.population5, acc.has5 = r.PopulationFraction, r.Population, true
			acc.proportion4 += r.PopulationFraction
			acc.population4 += r.Population
			acc.has4 = true
		case "all":
			pop := r.Population
			acc.populationAnalyzed = &pop
		case "1", "2", "3":
			// Individual lower phases are implied by the cumulative "3+".
		default:
			return nil, &UnknownCategoryError{Kind: "ipc phase", Value: r.Phase}
		}
	}

	records := make([]IpcPeriodRecord, 0, len(periods))
	for key, acc := range periods {
		if !acc.has3 || !acc.has4 || !acc.has5 {
			return nil, &DataIntegrityError{
				Check:    "incomplete phase set",
				Location: key.Location,
				Detail: fmt.Sprintf("period %s to %s (%s) is missing one of phases 3+/4/5",
					acc.start.Format(time.DateOnly), acc.end.Format(time.DateOnly), key.Type),
			}
		}
		records = append(records, IpcPeriodRecord{
			LocationCode:       key.Location,
			Type:               key.Type,
			PopulationAnalyzed: acc.populationAnalyzed,
			PeriodStart:        acc.start,
			PeriodEnd:          acc.end,
			Year:               key.Year,
			Proportion3Plus:    acc.proportion3,
			Proportion4Plus:    acc.proportion4,
			Proportion5:        acc.proportion5,
			Population3Plus:    acc.population3,
			Population4Plus:    acc.population4,
			Population5:        acc.population5,
		})
	}

	sortPeriodRecords(records)
	applyPointChanges(records, cfg)

	for i := range records {
		records[i].Level, records[i].Detail = classifyPeriod(records[i], cfg)
	}
	return records, nil
}

// sortPeriodRecords orders by location then period start. Ties on period start
// break by type priority then period end so the point-change sequence is
// deterministic.
func sortPeriodRecords(records []IpcPeriodRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.LocationCode != b.LocationCode {
			return a.LocationCode < b.LocationCode
		}
		if !a.PeriodStart.Equal(b.PeriodStart) {
			return a.PeriodStart.Before(b.PeriodStart)
		}
		pa, _ := a.Type.Priority()
		pb, _ := b.Type.Priority()
		if pa != pb {
			return pa < pb
		}
		return a.PeriodEnd.Before(b.PeriodEnd)
	})
}

// applyPointChanges computes percentage-point changes between consecutive
// records per location, gated by analyzed-population comparability. The first
// record of a location has no baseline and stays incomparable.
func applyPointChanges(records []IpcPeriodRecord, cfg Thresholds) {
	for i := range records {
		if i == 0 || records[i].LocationCode != records[i-1].LocationCode {
			continue
		}
		prev := &records[i-1]
		cur := &records[i]
		if prev.PopulationAnalyzed == nil || cur.PopulationAnalyzed == nil || *prev.PopulationAnalyzed <= 0 {
			continue
		}
		relChange := math.Abs(*cur.PopulationAnalyzed-*prev.PopulationAnalyzed) / *prev.PopulationAnalyzed
		if relChange > cfg.PopulationComparability {
			continue
		}
		cur.PopComparable = true
		pt3 := 100 * (cur.Proportion3Plus - prev.Proportion3Plus)
		pt4 := 100 * (cur.Proportion4Plus - prev.Proportion4Plus)
		cur.PtChange3Plus = &pt3
		cur.PtChange4Plus = &pt4
	}
}

// classifyPeriod runs the alert decision tree. Criteria are evaluated in fixed
// priority order; the very-high checks must run before the high ones because a
// record can satisfy both.
func classifyPeriod(r IpcPeriodRecord, cfg Thresholds) (AlertLevel, string) {
	veryHighSevere := r.Population4Plus >= cfg.VeryHighSeverePopulation4
	veryHighDeteriorating := r.Proportion3Plus >= cfg.VeryHighDeterioratingProportion3 &&
		r.PtChange4Plus != nil && *r.PtChange4Plus >= cfg.VeryHighDeterioratingIncrease4*100
	highSevere := r.Population4Plus >= cfg.HighSeverePopulation4
	highDeteriorating := r.Proportion3Plus >= cfg.HighDeterioratingProportion3 &&
		r.PtChange3Plus != nil && *r.PtChange3Plus >= cfg.HighDeterioratingIncrease3*100

	switch {
	case veryHighSevere && veryHighDeteriorating:
		return AlertVeryHigh, "all criteria"
	case veryHighSevere:
		return AlertVeryHigh, "emergency"
	case veryHighDeteriorating:
		return AlertVeryHigh, "deteriorating"
	case highSevere && highDeteriorating:
		return AlertHigh, "all criteria"
	case highSevere:
		return AlertHigh, "emergency"
	case highDeteriorating:
		return AlertHigh, "deteriorating"
	case r.Proportion3Plus >= cfg.MediumProportion3 || r.Population4Plus >= cfg.MediumPopulation4:
		return AlertMedium, ""
	default:
		return AlertLow, ""
	}
}

// LatestReports selects the single authoritative record per location among
// reports still active now (period end in the future): the most authoritative
// type wins. Two active reports of the same type for one location violate the
// deduplication invariant and abort the run.
func LatestReports(records []IpcPeriodRecord) ([]IpcPeriodRecord, error) {
	now := clock.Now()
	best := make(map[string]IpcPeriodRecord)
	for _, r := range records {
		if !r.PeriodEnd.After(now) {
			continue
		}
		prio, err := r.Type.Priority()
		if err != nil {
			return nil, err
		}
		cur, ok := best[r.LocationCode]
		if !ok {
			best[r.LocationCode] = r
			continue
		}
		curPrio, _ := cur.Type.Priority()
		switch {
		case prio < curPrio:
			best[r.LocationCode] = r
		case prio == curPrio:
			return nil, &DataIntegrityError{
				Check:    "duplicate active report",
				Location: r.LocationCode,
				Detail: fmt.Sprintf("two %q reports active at %s (periods ending %s and %s)",
					r.Type, now.Format(time.DateOnly),
					cur.PeriodEnd.Format(time.DateOnly), r.PeriodEnd.Format(time.DateOnly)),
			}
		}
	}

	out := make([]IpcPeriodRecord, 0, len(best))
	for _, r := range best {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LocationCode < out[j].LocationCode })
	return out, nil
}
