// Package bands maps spaced-repetition scheduler state to the retrievability
// bands the planner budgets from.
package bands

import "math"

// DefaultDecay is the FSRS-5 default forgetting-curve decay.
const DefaultDecay = 0.5

// Band is an item's readiness class for conversation use.
type Band string

const (
	Cold    Band = "cold"
	Fragile Band = "fragile"
	Stretch Band = "stretch"
	Support Band = "support"
	New     Band = "new"
)

var order = []Band{Cold, Fragile, Stretch, Support}

// Thresholds are the R cut points between cold/fragile/stretch/support.
type Thresholds struct {
	Cold    float64
	Fragile float64
	Stretch float64
}

// DefaultThresholds matches the scheduler's banding defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{Cold: 0.4, Fragile: 0.6, Stretch: 0.85}
}

// Retrievability computes current recall probability R from FSRS stability
// and elapsed days:
//
//	R = ((elapsed/stability) * factor + 1)^(-decay)
//	factor = 0.9^(1/-decay) - 1
//
// Non-positive stability or decay yields 0; the result is clamped to [0, 1].
func Retrievability(stability, elapsedDays, decay float64) float64 {
	if stability <= 0 || decay <= 0 {
		return 0
	}
	factor := math.Pow(0.9, 1.0/-decay) - 1.0
	r := math.Pow((elapsedDays/stability)*factor+1.0, -decay)
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

// Mastery is the per-item telemetry counters consulted for band adjustment.
type Mastery map[string]int

// Classify derives the base band from R, then applies telemetry adjustment:
// repeated dont_know or lookups downgrade one band (never below cold), a
// conversational success streak upgrades one band (never above support).
func Classify(retrievability float64, mastery Mastery, t Thresholds) Band {
	var base int
	switch {
	case retrievability < t.Cold:
		base = 0
	case retrievability < t.Fragile:
		base = 1
	case retrievability < t.Stretch:
		base = 2
	default:
		base = 3
	}

	if (mastery["dont_know"] >= 2 || mastery["lookup_count"] >= 3) && base > 0 {
		return order[base-1]
	}
	if mastery["conv_success_count"] >= 3 && base < len(order)-1 {
		return order[base+1]
	}
	return order[base]
}
