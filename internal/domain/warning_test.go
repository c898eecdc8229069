package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapWarningLevel(t *testing.T) {
	tests := []struct {
		label string
		level int
	}{
		{"No warning", 0},
		{"Warning group 1", 1},
		{"Warning group 2", 2},
		{"Warning group 3", 3},
		{"Warning group 4", 4},
		{"Off season", -1},
		{"No crop/rangeland", -2},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			level, err := MapWarningLevel(tt.label)
			require.NoError(t, err)
			assert.Equal(t, tt.level, level)
		})
	}

	t.Run("unknown label fails instead of defaulting", func(t *testing.T) {
		_, err := MapWarningLevel("Warning group 5")
		var unknown *UnknownCategoryError
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, "warning level", unknown.Kind)
	})
}

func TestMeetsWarningThreshold(t *testing.T) {
	assert.True(t, MeetsWarningThreshold(3, 2))
	assert.True(t, MeetsWarningThreshold(1, 1))
	assert.False(t, MeetsWarningThreshold(0, 1))
	// Sentinels never count, not even against a non-positive threshold.
	assert.False(t, MeetsWarningThreshold(WarningOffSeason, 1))
	assert.False(t, MeetsWarningThreshold(WarningNoCropRangeland, -2))
}

func TestAlertLevelRoundTrip(t *testing.T) {
	for _, level := range []AlertLevel{AlertNone, AlertLow, AlertMedium, AlertHigh, AlertVeryHigh} {
		parsed, err := ParseAlertLevel(level.String())
		require.NoError(t, err)
		assert.Equal(t, level, parsed)
	}

	_, err := ParseAlertLevel("catastrophic")
	var unknown *UnknownCategoryError
	require.ErrorAs(t, err, &unknown)
}

func TestMaxAlert(t *testing.T) {
	assert.Equal(t, AlertHigh, MaxAlert(AlertHigh, AlertMedium))
	assert.Equal(t, AlertVeryHigh, MaxAlert(AlertLow, AlertVeryHigh))
	// Skip-null semantics: an absent side never drags the max down.
	assert.Equal(t, AlertLow, MaxAlert(AlertNone, AlertLow))
	assert.Equal(t, AlertHigh, MaxAlert(AlertHigh, AlertNone))
	assert.Equal(t, AlertNone, MaxAlert(AlertNone, AlertNone))
}
