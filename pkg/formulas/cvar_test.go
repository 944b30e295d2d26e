package formulas

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateCVaR(t *testing.T) {
	assert.Zero(t, CalculateCVaR(nil, 0.95))
	assert.Equal(t, -0.03, CalculateCVaR([]float64{-0.03}, 0.95))

	// 20 observations at 95%: tail is the single worst return.
	returns := make([]float64, 20)
	for i := range returns {
		returns[i] = 0.01
	}
	returns[7] = -0.10
	assert.InDelta(t, -0.10, CalculateCVaR(returns, 0.95), 1e-12)

	// At 90% the tail holds the two worst returns.
	returns[13] = -0.06
	assert.InDelta(t, (-0.10-0.06)/2, CalculateCVaR(returns, 0.90), 1e-12)
}

func TestCalculateCVaR_ExactTailBoundary(t *testing.T) {
	// 100 observations at 95%: the tail is exactly the five worst returns,
	// even though 100*(1-0.95) lands just above 5.0 in floating point.
	returns := make([]float64, 100)
	for i := range returns {
		returns[i] = 0.005
	}
	worst := []float64{-0.09, -0.08, -0.07, -0.06, -0.05}
	for i, v := range worst {
		returns[i*17] = v
	}
	assert.InDelta(t, (-0.09-0.08-0.07-0.06-0.05)/5, CalculateCVaR(returns, 0.95), 1e-12)
}

func TestCalculateCVaR_AllPositive(t *testing.T) {
	returns := []float64{0.01, 0.02, 0.03, 0.04, 0.05}
	// Still the mean of the worst ceil(5*0.05)=1 observation.
	assert.InDelta(t, 0.01, CalculateCVaR(returns, 0.95), 1e-12)
}
