package domain

import "fmt"

// Thresholds holds every tunable constant of the hotspot and IPC classifiers.
// It is built once by the config layer and passed in explicitly, so notebooks
// or operators can retune thresholds without touching package state.
type Thresholds struct {
	// HighConsecutive is how many consecutive hotspot dekads escalate a
	// country from "medium" to "high".
	HighConsecutive int

	// Very high, severe: population in phase 4+ at or above this count.
	VeryHighSeverePopulation4 float64
	// Very high, deteriorating: proportion in 3+ and the phase-4+
	// percentage-point increase between comparable periods (fractional,
	// compared against pt-change x100).
	VeryHighDeterioratingProportion3 float64
	VeryHighDeterioratingIncrease4   float64

	// High, severe and deteriorating analogues.
	HighSeverePopulation4        float64
	HighDeterioratingProportion3 float64
	HighDeterioratingIncrease3   float64

	// Medium: proportion in 3+ or population in 4+.
	MediumProportion3 float64
	MediumPopulation4 float64

	// PopulationComparability is the max relative change in analyzed
	// population between consecutive periods for point-change metrics to be
	// defined at all.
	PopulationComparability float64
}

// DefaultThresholds returns the operational threshold set.
func DefaultThresholds() Thresholds {
	return Thresholds{
		HighConsecutive:                  3,
		VeryHighSeverePopulation4:        500_000,
		VeryHighDeterioratingProportion3: 0.25,
		VeryHighDeterioratingIncrease4:   0.03,
		HighSeverePopulation4:            200_000,
		HighDeterioratingProportion3:     0.25,
		HighDeterioratingIncrease3:       0.05,
		MediumProportion3:                0.18,
		MediumPopulation4:                50_000,
		PopulationComparability:          0.10,
	}
}

// Validate rejects threshold sets that would make the decision tree
// degenerate.
func (t Thresholds) Validate() error {
	if t.HighConsecutive < 1 {
		return fmt.Errorf("high consecutive count must be >= 1, got %d", t.HighConsecutive)
	}
	if t.PopulationComparability <= 0 {
		return fmt.Errorf("population comparability threshold must be > 0, got %g", t.PopulationComparability)
	}
	for name, v := range map[string]float64{
		"very high severe population 4+":  t.VeryHighSeverePopulation4,
		"high severe population 4+":       t.HighSeverePopulation4,
		"medium population 4+":            t.MediumPopulation4,
		"very high deteriorating prop 3+": t.VeryHighDeterioratingProportion3,
		"high deteriorating prop 3+":      t.HighDeterioratingProportion3,
		"medium proportion 3+":            t.MediumProportion3,
	} {
		if v < 0 {
			return fmt.Errorf("%s must be >= 0, got %g", name, v)
		}
	}
	return nil
}

// ExposureThresholds are the exposure-percentage cut-offs (warning group 1+)
// that bucket a country-month into an exposure alert level, per warning type.
// The three values are the light, moderate, and severe cut-offs in ascending
// order, derived from percentile analysis of the historical grid.
type ExposureThresholds struct {
	Crop  [3]float64
	Range [3]float64
}

// DefaultExposureThresholds returns the 75th/85th/95th percentile cut-offs.
func DefaultExposureThresholds() ExposureThresholds {
	return ExposureThresholds{
		Crop:  [3]float64{19, 35, 66},
		Range: [3]float64{23, 42, 76},
	}
}

// Validate rejects cut-offs that are not ascending.
func (t ExposureThresholds) Validate() error {
	for name, cuts := range map[string][3]float64{"crop": t.Crop, "range": t.Range} {
		if cuts[0] < 0 || cuts[0] >= cuts[1] || cuts[1] >= cuts[2] {
			return fmt.Errorf("%s exposure thresholds must be ascending and non-negative, got %v", name, cuts)
		}
	}
	return nil
}
