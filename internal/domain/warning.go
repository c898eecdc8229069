package domain

// Sentinel warning levels for admin-2 units with nothing to monitor. They
// count toward a country's total population but never toward a threshold.
const (
	WarningOffSeason       = -1
	WarningNoCropRangeland = -2
)

// WarningThresholds are the cumulative severity cut-offs the exposure
// aggregator reports on ("warning group T or worse").
var WarningThresholds = [4]int{1, 2, 3, 4}

var warningHierarchy = map[string]int{
	"No warning":        0,
	"Warning group 1":   1,
	"Warning group 2":   2,
	"Warning group 3":   3,
	"Warning group 4":   4,
	"Off season":        WarningOffSeason,
	"No crop/rangeland": WarningNoCropRangeland,
}

var warningLabels = func() map[int]string {
	m := make(map[int]string, len(warningHierarchy))
	for label, level := range warningHierarchy {
		m[level] = label
	}
	return m
}()

// MapWarningLevel converts a categorical warning label from the grid feed to
// its ordinal severity. Unrecognized labels are an UnknownCategoryError, never
// a silent zero.
func MapWarningLevel(label string) (int, error) {
	level, ok := warningHierarchy[label]
	if !ok {
		return 0, &UnknownCategoryError{Kind: "warning level", Value: label}
	}
	return level, nil
}

// WarningLabel is the reverse mapping, used when reporting exact-level
// population buckets.
func WarningLabel(level int) (string, bool) {
	label, ok := warningLabels[level]
	return label, ok
}

// MeetsWarningThreshold reports whether a numeric warning level counts toward
// the "at or above threshold" exposure sum. Negative sentinels (off season,
// no crop/rangeland) never do.
func MeetsWarningThreshold(level, threshold int) bool {
	return level >= threshold && level >= 0
}
