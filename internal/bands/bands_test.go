package bands

import (
	"math"
	"testing"
)

func TestRetrievability(t *testing.T) {
	tests := []struct {
		name      string
		stability float64
		elapsed   float64
		decay     float64
		want      float64
	}{
		{"zero elapsed is full recall", 10, 0, DefaultDecay, 1.0},
		{"zero stability", 0, 5, DefaultDecay, 0},
		{"negative stability", -1, 5, DefaultDecay, 0},
		{"zero decay", 10, 5, 0, 0},
		{"elapsed equals stability", 10, 10, DefaultDecay, 0.9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Retrievability(tt.stability, tt.elapsed, tt.decay)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("Retrievability = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRetrievabilityMonotoneInElapsed(t *testing.T) {
	prev := 1.1
	for elapsed := 0.0; elapsed <= 100; elapsed += 2.5 {
		r := Retrievability(12, elapsed, DefaultDecay)
		if r < 0 || r > 1 {
			t.Fatalf("R out of range at elapsed=%v: %v", elapsed, r)
		}
		if r > prev {
			t.Fatalf("R not non-increasing at elapsed=%v: %v > %v", elapsed, r, prev)
		}
		prev = r
	}
}

func TestClassifyBaseBands(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		r    float64
		want Band
	}{
		{0.0, Cold},
		{0.39, Cold},
		{0.4, Fragile},
		{0.59, Fragile},
		{0.6, Stretch},
		{0.84, Stretch},
		{0.85, Support},
		{1.0, Support},
	}
	for _, tt := range tests {
		if got := Classify(tt.r, nil, th); got != tt.want {
			t.Errorf("Classify(%v) = %v, want %v", tt.r, got, tt.want)
		}
	}
}

func TestClassifyTelemetryAdjustment(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		name    string
		r       float64
		mastery Mastery
		want    Band
	}{
		{"dont_know downgrades", 0.9, Mastery{"dont_know": 2}, Stretch},
		{"lookups downgrade", 0.7, Mastery{"lookup_count": 3}, Fragile},
		{"cold cannot downgrade", 0.1, Mastery{"dont_know": 5}, Cold},
		{"success upgrades", 0.5, Mastery{"conv_success_count": 3}, Stretch},
		{"support cannot upgrade", 0.95, Mastery{"conv_success_count": 9}, Support},
		{"downgrade wins over upgrade", 0.7, Mastery{"dont_know": 2, "conv_success_count": 3}, Fragile},
		{"below thresholds no change", 0.7, Mastery{"dont_know": 1, "lookup_count": 2, "conv_success_count": 2}, Stretch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.r, tt.mastery, th); got != tt.want {
				t.Fatalf("Classify = %v, want %v", got, tt.want)
			}
		})
	}
}
