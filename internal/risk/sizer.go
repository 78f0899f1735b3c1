package risk

import (
	"errors"
	"fmt"
	"math"
)

// Size converts an approved signal into base-asset units. Pure function:
// risk capital is a fixed percentage of account capital, divided by the
// per-unit distance to the stop, scaled by confidence, floored to the lot
// step. The risked amount therefore never exceeds
// capital * maxPositionSizePct / 100.
func Size(capital, entryPrice, stopLoss, confidence, maxPositionSizePct, lotStep float64) (float64, error) {
	if capital <= 0 || math.IsNaN(capital) || math.IsInf(capital, 0) {
		return 0, fmt.Errorf("capital must be positive and finite, got %v", capital)
	}
	if confidence < 0 || confidence > 1 || math.IsNaN(confidence) {
		return 0, fmt.Errorf("confidence %v out of range [0,1]", confidence)
	}

	perUnitRisk := math.Abs(entryPrice - stopLoss)
	if perUnitRisk == 0 || math.IsNaN(perUnitRisk) || math.IsInf(perUnitRisk, 0) {
		return 0, errors.New("per-unit risk is zero or non-finite")
	}

	riskCapital := capital * maxPositionSizePct / 100
	size := riskCapital / perUnitRisk * confidence

	if lotStep > 0 {
		size = math.Floor(size/lotStep) * lotStep
	}
	if size <= 0 || math.IsNaN(size) || math.IsInf(size, 0) {
		return 0, errors.New("computed size is zero")
	}
	return size, nil
}
