// Package domain models humanitarian early-warning data for the fixed set of
// Eastern and Southern Africa countries the monitor covers.
//
// # Data Sources
//
// Agricultural hotspots come from the ASAP (Anomaly hot Spots of Agricultural
// Production) time series, one record per country per dekad (~10 days) with a
// hotspot code and an analyst comment:
//
//	0 = no hotspot, 1 = hotspot, 2 = major hotspot
//
// Food-insecurity reports come from the IPC (Integrated Food Security Phase
// Classification) feed via HDX HAPI, one row per (location, phase, reporting
// period, report type). Phases of interest are the cumulative "3+" (crisis or
// worse), the individual "4" and "5" (emergency, famine), and "all" which
// carries the total analyzed population for the period. Report types are
// "current", "first projection", and "second projection", in that order of
// authority when several reports cover the same location at once.
//
// The exposure path consumes the dekadal ASAP warning grid at admin-2
// granularity. Warning labels map to an ordinal severity:
//
//	"No warning"          ->  0
//	"Warning group 1..4"  ->  1..4
//	"Off season"          -> -1   (sentinel)
//	"No crop/rangeland"   -> -2   (sentinel)
//
// Negative sentinels mark units with nothing to monitor; they count toward a
// country's total population but never toward a warning threshold.
//
// # Alert Levels
//
// Both classifiers emit the same four-level ordinal scale: low, medium, high,
// very high. A country's hotspot level depends on how long the current hotspot
// code has persisted (a single hotspot dekad is "medium"; three consecutive
// ones are "high"; a major hotspot is always "very high"). The IPC level comes
// from a fixed-priority decision tree over phase-4+ population, phase-3+
// proportion, and period-over-period percentage-point changes. Point changes
// are only defined when the analyzed population is comparable between periods
// (within 10% by default); otherwise they are absent, never zero.
//
// All classification is a pure recomputation from source snapshots. The only
// state carried between runs is the last published summary, kept solely for
// change detection.
package domain
