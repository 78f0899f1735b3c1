package risk

import (
	"math"
	"math/rand"
	"testing"
)

func TestSizeSmallAccountScenario(t *testing.T) {
	// capital 10, 1% risk budget, stop one dollar away, full confidence:
	// risk capital 0.10 over per-unit risk 1 gives 0.10 units.
	size, err := Size(10.0, 100, 99, 1.0, 1.0, 0.01)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(size-0.10) > 1e-9 {
		t.Errorf("expected size 0.10, got %v", size)
	}
}

func TestSizeConfidenceScaling(t *testing.T) {
	full, err := Size(10000, 100, 98, 1.0, 1.0, 0.000001)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	half, err := Size(10000, 100, 98, 0.5, 1.0, 0.000001)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(half-full/2) > 0.001 {
		t.Errorf("half confidence should halve size: full=%v half=%v", full, half)
	}
}

func TestSizeFlooredToLotStep(t *testing.T) {
	size, err := Size(1000, 100, 97, 1.0, 1.0, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Raw size 10/3 = 3.333..., floored to 3.0 on a 0.5 lot step.
	if size != 3.0 {
		t.Errorf("expected 3.0, got %v", size)
	}
}

func TestSizeGuards(t *testing.T) {
	tests := []struct {
		name                                 string
		capital, entry, stop, conf, pct, lot float64
	}{
		{"zero capital", 0, 100, 99, 1, 1, 0.01},
		{"negative capital", -5, 100, 99, 1, 1, 0.01},
		{"nan capital", math.NaN(), 100, 99, 1, 1, 0.01},
		{"zero per-unit risk", 1000, 100, 100, 1, 1, 0.01},
		{"nan entry", 1000, math.NaN(), 99, 1, 1, 0.01},
		{"inf stop", 1000, 100, math.Inf(1), 1, 1, 0.01},
		{"confidence above one", 1000, 100, 99, 1.2, 1, 0.01},
		{"negative confidence", 1000, 100, 99, -0.3, 1, 0.01},
		{"zero confidence yields zero size", 1000, 100, 99, 0, 1, 0.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if size, err := Size(tt.capital, tt.entry, tt.stop, tt.conf, tt.pct, tt.lot); err == nil {
				t.Errorf("expected error, got size %v", size)
			}
		})
	}
}

func TestSizeRiskNeverExceedsBudget(t *testing.T) {
	// Randomized property: size * per-unit risk stays within the per-
	// position risk budget for any valid input combination.
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 2000; i++ {
		capital := 10 + rng.Float64()*100000
		entry := 1 + rng.Float64()*50000
		stop := entry * (1 - (0.001 + rng.Float64()*0.2))
		conf := rng.Float64()
		pct := 0.5 + rng.Float64()*5

		size, err := Size(capital, entry, stop, conf, pct, 0.000001)
		if err != nil {
			continue // zero-size outcomes are legal for tiny confidence
		}

		risked := size * math.Abs(entry-stop)
		budget := capital * pct / 100
		if risked > budget*(1+1e-9) {
			t.Fatalf("iteration %d: risked %v exceeds budget %v (capital=%v entry=%v stop=%v conf=%v pct=%v)",
				i, risked, budget, capital, entry, stop, conf, pct)
		}
	}
}
