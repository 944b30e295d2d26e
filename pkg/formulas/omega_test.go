package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOmegaRatio(t *testing.T) {
	assert.Zero(t, OmegaRatio(nil, 0))

	// Gains 0.03, losses 0.015 -> omega 2.
	returns := []float64{0.01, 0.02, -0.01, -0.005}
	assert.InDelta(t, 2.0, OmegaRatio(returns, 0), 1e-12)

	// No losses at all.
	assert.True(t, math.IsInf(OmegaRatio([]float64{0.01, 0.02}, 0), 1))

	// A higher threshold turns gains into shortfalls.
	assert.Less(t, OmegaRatio(returns, 0.01), OmegaRatio(returns, 0))
}

func TestMaxDrawdown(t *testing.T) {
	assert.Zero(t, MaxDrawdown(nil))
	assert.Zero(t, MaxDrawdown([]float64{0.01, 0.02, 0.03}), "monotone growth has no drawdown")

	// Up 10% then down 20%: drawdown is 20% from the peak.
	assert.InDelta(t, 0.20, MaxDrawdown([]float64{0.10, -0.20}), 1e-12)

	// Recovery after the trough does not erase the drawdown.
	assert.InDelta(t, 0.20, MaxDrawdown([]float64{0.10, -0.20, 0.50}), 1e-12)
}
