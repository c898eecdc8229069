package domain

import (
	"encoding/json"
	"fmt"
)

// AlertLevel is the ordinal alert severity shared by the hotspot and IPC
// classifiers. The zero value means no alert is available for that side.
type AlertLevel int

const (
	AlertNone AlertLevel = iota
	AlertLow
	AlertMedium
	AlertHigh
	AlertVeryHigh
)

var alertNames = map[AlertLevel]string{
	AlertLow:      "low",
	AlertMedium:   "medium",
	AlertHigh:     "high",
	AlertVeryHigh: "very high",
}

func (l AlertLevel) String() string {
	if l == AlertNone {
		return ""
	}
	if name, ok := alertNames[l]; ok {
		return name
	}
	return fmt.Sprintf("AlertLevel(%d)", int(l))
}

// ParseAlertLevel converts the wire form back to an AlertLevel. The empty
// string means "absent" and parses to AlertNone.
func ParseAlertLevel(s string) (AlertLevel, error) {
	switch s {
	case "":
		return AlertNone, nil
	case "low":
		return AlertLow, nil
	case "medium":
		return AlertMedium, nil
	case "high":
		return AlertHigh, nil
	case "very high":
		return AlertVeryHigh, nil
	default:
		return AlertNone, &UnknownCategoryError{Kind: "alert level", Value: s}
	}
}

// MaxAlert returns the higher of two alert levels under skip-null-max
// semantics: an absent side never drags the result down to "low".
func MaxAlert(a, b AlertLevel) AlertLevel {
	if a > b {
		return a
	}
	return b
}

// MarshalJSON encodes the level as its name; AlertNone encodes as null so
// downstream consumers can tell "no alert" from "low".
func (l AlertLevel) MarshalJSON() ([]byte, error) {
	if l == AlertNone {
		return []byte("null"), nil
	}
	return json.Marshal(l.String())
}

func (l *AlertLevel) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = AlertNone
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAlertLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
