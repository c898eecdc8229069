package domain

import "fmt"

// UnknownCategoryError reports a categorical value outside the known
// enumeration. Classification must fail loudly rather than default an
// unrecognized label to a severity of zero.
type UnknownCategoryError struct {
	Kind  string // e.g. "warning level", "hotspot code", "ipc phase"
	Value string
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("unknown %s %q", e.Kind, e.Value)
}

// DataIntegrityError reports a violated structural invariant, such as two
// active IPC reports surviving deduplication for one location. It aborts the
// whole run before anything is published.
type DataIntegrityError struct {
	Check    string // which invariant failed
	Location string // country or ISO3 location code, when known
	Detail   string
}

func (e *DataIntegrityError) Error() string {
	msg := "data integrity: " + e.Check
	if e.Location != "" {
		msg += " for " + e.Location
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}
