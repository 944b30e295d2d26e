package optimizer

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputePortfolioMetrics(t *testing.T) {
	m := syntheticReturns(252, []string{"A", "B"},
		[]float64{0.0005, 0.0002}, []float64{0.01, 0.008}, 40)

	metrics := computePortfolioMetrics([]float64{0.6, 0.4}, m)
	require.NotNil(t, metrics)
	assert.Greater(t, metrics.AnnualVolatility, 0.0)
	assert.Less(t, metrics.CVaR95, 0.0, "CVaR of a volatile series is a loss")
	assert.Greater(t, metrics.Omega, 0.0)
	assert.GreaterOrEqual(t, metrics.MaxDrawdown, 0.0)
}

func TestComputePortfolioMetrics_EmptySlice(t *testing.T) {
	assert.Nil(t, computePortfolioMetrics([]float64{1}, ReturnMatrix{Symbols: []string{"A"}}))
}

func TestDeflatedSharpeRatio_EdgeCases(t *testing.T) {
	// Too few observations.
	assert.Zero(t, deflatedSharpeRatio([]float64{0.01, 0.02}, 10))

	// Zero variance.
	flat := make([]float64, 100)
	assert.Zero(t, deflatedSharpeRatio(flat, 10))
}

func TestDeflatedSharpeRatio_MoreTrialsDeflateMore(t *testing.T) {
	rng := rand.New(rand.NewSource(41))
	returns := make([]float64, 252)
	for i := range returns {
		returns[i] = 0.0008 + 0.01*rng.NormFloat64()
	}

	few := deflatedSharpeRatio(returns, 1)
	many := deflatedSharpeRatio(returns, 1000)

	assert.Greater(t, few, 0.0)
	assert.LessOrEqual(t, few, 1.0)
	assert.Less(t, many, few, "assuming more trials should lower the probability")
}

func TestProbabilityOfBacktestOverfitting(t *testing.T) {
	// Too short.
	assert.Equal(t, 0.5, probabilityOfBacktestOverfitting([]float64{0.01, 0.02, 0.01}))

	// Non-positive in-sample Sharpe counts as fully overfit.
	losing := make([]float64, 100)
	for i := range losing {
		losing[i] = -0.001
		if i%2 == 0 {
			losing[i] = -0.002
		}
	}
	assert.Equal(t, 1.0, probabilityOfBacktestOverfitting(losing))

	// A series whose halves behave alike shows little degradation.
	rng := rand.New(rand.NewSource(42))
	stable := make([]float64, 400)
	for i := range stable {
		stable[i] = 0.001 + 0.005*rng.NormFloat64()
	}
	pbo := probabilityOfBacktestOverfitting(stable)
	assert.GreaterOrEqual(t, pbo, 0.0)
	assert.Less(t, pbo, 0.5)
}
