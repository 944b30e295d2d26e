package formulas

import "math"

// OmegaRatio calculates the ratio of probability-weighted gains to losses
// relative to the threshold return. Returns +Inf when there are gains but no
// losses, and 0 for an empty series.
func OmegaRatio(returns []float64, threshold float64) float64 {
	if len(returns) == 0 {
		return 0
	}

	var gains, losses float64
	for _, r := range returns {
		if r > threshold {
			gains += r - threshold
		} else {
			losses += threshold - r
		}
	}

	if losses == 0 {
		if gains == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return gains / losses
}

// MaxDrawdown calculates the maximum peak-to-trough decline of the cumulative
// return path implied by the periodic returns. Returned as a non-negative
// fraction (0.25 = 25% drawdown).
func MaxDrawdown(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}

	equity := 1.0
	peak := 1.0
	maxDD := 0.0
	for _, r := range returns {
		equity *= 1 + r
		if equity > peak {
			peak = equity
		}
		if dd := (peak - equity) / peak; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}
