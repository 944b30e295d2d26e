package optimizer

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func TestBuildWeightConstraints_Hierarchy(t *testing.T) {
	symbols := []string{"A", "B", "C"}
	categories := map[string]string{"A": "Equity", "B": "Equity", "C": "Bond"}

	wc := WeightConstraints{
		IndividualFundDefault: &Bound{Min: ptr(0.0), Max: ptr(0.4)},
		IndividualFund:        map[string]Bound{"B": {Max: ptr(0.2)}},
		GlobalFund:            &Bound{Min: ptr(0.05), Max: ptr(0.35)},
		IndividualCategory:    map[string]Bound{"Equity": {Min: ptr(0.3), Max: ptr(0.8)}},
		GlobalCategoryMax:     ptr(0.7),
	}

	rl := newRunLog(zerolog.Nop())
	built := buildWeightConstraints(symbols, categories, wc, rl)

	// Per-fund bounds: default max 0.4 capped by global max 0.35; B tightened
	// to 0.2 by its individual bound.
	assert.Equal(t, []float64{0, 0, 0}, built.Lower)
	assert.InDelta(t, 0.35, built.Upper[0], 1e-12)
	assert.InDelta(t, 0.2, built.Upper[1], 1e-12)
	assert.InDelta(t, 0.35, built.Upper[2], 1e-12)

	// Global per-fund min is deferred, not baked into Lower.
	assert.True(t, built.HasGlobal)
	assert.InDelta(t, 0.05, built.GlobalMin, 1e-12)

	// Categories sorted by name; global category max tightens Equity's 0.8.
	require.Len(t, built.Categories, 2)
	assert.Equal(t, "Bond", built.Categories[0].Name)
	assert.True(t, built.Categories[0].HasMax)
	assert.InDelta(t, 0.7, built.Categories[0].Max, 1e-12)
	assert.Equal(t, "Equity", built.Categories[1].Name)
	assert.InDelta(t, 0.3, built.Categories[1].Min, 1e-12)
	assert.InDelta(t, 0.7, built.Categories[1].Max, 1e-12)
}

func TestBuildWeightConstraints_PercentInputs(t *testing.T) {
	symbols := []string{"A", "B"}
	wc := WeightConstraints{GlobalFund: &Bound{Max: ptr(50.0)}} // 50% as percentage

	rl := newRunLog(zerolog.Nop())
	built := buildWeightConstraints(symbols, nil, wc, rl)
	assert.InDelta(t, 0.5, built.Upper[0], 1e-12)
	assert.InDelta(t, 0.5, built.Upper[1], 1e-12)
}

func TestBuildWeightConstraints_UnknownCategoryUnconstrained(t *testing.T) {
	symbols := []string{"A", "B"}
	wc := WeightConstraints{GlobalCategoryMax: ptr(0.3)}

	rl := newRunLog(zerolog.Nop())
	built := buildWeightConstraints(symbols, nil, wc, rl)
	assert.Empty(t, built.Categories, "unmapped assets form no constrained category")
}

func TestValidateWeightConstraints(t *testing.T) {
	symbols := []string{"A", "B"}

	err := ValidateWeightConstraints(symbols, nil, WeightConstraints{
		IndividualFund: map[string]Bound{"A": {Min: ptr(0.6), Max: ptr(0.4)}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fund A")

	err = ValidateWeightConstraints(symbols, nil, WeightConstraints{
		IndividualCategory: map[string]Bound{
			"Equity": {Min: ptr(0.7)},
			"Bond":   {Min: ptr(0.6)},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "category minimums")

	err = ValidateWeightConstraints(symbols, nil, WeightConstraints{
		GlobalFund: &Bound{Min: ptr(0.05), Max: ptr(0.5)},
	})
	assert.NoError(t, err)
}

func TestRedistributeMinimum_ZeroesSubMinimumPositions(t *testing.T) {
	weights := []float64{0.05, 0.40, 0.35, 0.20}
	caps := []float64{1, 1, 1, 1}
	rl := newRunLog(zerolog.Nop())

	out := redistributeMinimum(weights, 0.1, caps, nil, rl)

	assert.Zero(t, out[0])
	sum := 0.0
	for _, w := range out {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)

	// Mass moved proportionally: relative order of survivors preserved.
	assert.Greater(t, out[1], out[2])
	assert.Greater(t, out[2], out[3])
	assert.Greater(t, out[1], 0.40, "survivors should absorb the removed mass")

	// Input untouched.
	assert.Equal(t, 0.05, weights[0])
}

func TestRedistributeMinimum_RespectsCaps(t *testing.T) {
	weights := []float64{0.05, 0.48, 0.27, 0.20}
	caps := []float64{0.5, 0.5, 0.5, 0.5}
	rl := newRunLog(zerolog.Nop())

	out := redistributeMinimum(weights, 0.1, caps, nil, rl)

	assert.Zero(t, out[0])
	sum := 0.0
	for i, w := range out {
		assert.LessOrEqual(t, w, caps[i]+1e-9)
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestRedistributeMinimum_CategoryAtCapBlocked(t *testing.T) {
	// A and B form a category already at its cap; removed mass must flow to C
	// and D only.
	weights := []float64{0.30, 0.30, 0.05, 0.35}
	caps := []float64{1, 1, 1, 1}
	cats := []categoryGroup{{Name: "Equity", Members: []int{0, 1}, Max: 0.6, HasMax: true}}
	rl := newRunLog(zerolog.Nop())

	out := redistributeMinimum(weights, 0.1, caps, cats, rl)

	assert.Zero(t, out[2])
	assert.InDelta(t, 0.30, out[0], 1e-9)
	assert.InDelta(t, 0.30, out[1], 1e-9)
	assert.InDelta(t, 0.40, out[3], 1e-9)
}

func TestRedistributeMinimum_AllBelowMinimumFallsBackToEqual(t *testing.T) {
	weights := []float64{0.02, 0.03, 0.01}
	caps := []float64{1, 1, 1}
	rl := newRunLog(zerolog.Nop())

	out := redistributeMinimum(weights, 0.1, caps, nil, rl)

	for _, w := range out {
		assert.InDelta(t, 1.0/3.0, w, 1e-9)
	}
}

func TestRedistributeMinimum_NoChangeWhenAllAboveMinimum(t *testing.T) {
	weights := []float64{0.5, 0.3, 0.2}
	caps := []float64{1, 1, 1}
	rl := newRunLog(zerolog.Nop())

	out := redistributeMinimum(weights, 0.1, caps, nil, rl)
	assert.InDeltaSlice(t, weights, out, 1e-12)
}

func TestAsFraction(t *testing.T) {
	assert.Equal(t, 0.5, asFraction(0.5))
	assert.Equal(t, 0.5, asFraction(50))
	assert.Equal(t, 1.0, asFraction(1.0))
	assert.InDelta(t, 0.015, asFraction(1.5), 1e-12)
}
