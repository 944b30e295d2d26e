// Package formulas provides shared financial statistics used across the
// optimizer and its validation metrics.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// AnnualizedVolatility calculates annualized volatility from daily returns
// Formula: Std Dev of Daily Returns × sqrt(252 trading days)
func AnnualizedVolatility(dailyReturns []float64) float64 {
	if len(dailyReturns) == 0 {
		return 0
	}
	return StdDev(dailyReturns) * math.Sqrt(252)
}

// AnnualizedReturn calculates the compound annual growth rate from a series
// of periodic returns: ((1+r1)*(1+r2)*...*(1+rN))^(252/N) - 1.
func AnnualizedReturn(returns []float64) float64 {
	if len(returns) == 0 {
		return 0.0
	}

	cumulative := 1.0
	for _, r := range returns {
		cumulative *= (1 + r)
	}

	numPeriods := float64(len(returns))

	// For very short periods, return the simple cumulative return to avoid
	// extreme annualization.
	if numPeriods < 3 {
		return cumulative - 1
	}

	years := numPeriods / 252.0
	return math.Pow(cumulative, 1.0/years) - 1
}

// SharpeRatio calculates the annualized Sharpe ratio of daily returns with a
// zero risk-free rate. Returns 0 when the volatility vanishes.
func SharpeRatio(dailyReturns []float64) float64 {
	sd := StdDev(dailyReturns)
	if sd <= 0 {
		return 0
	}
	return Mean(dailyReturns) / sd * math.Sqrt(252)
}

// Skewness returns the sample skewness of the series.
func Skewness(data []float64) float64 {
	if len(data) < 3 {
		return 0
	}
	return stat.Skew(data, nil)
}

// ExcessKurtosis returns the sample excess kurtosis of the series
// (0 for a normal distribution).
func ExcessKurtosis(data []float64) float64 {
	if len(data) < 4 {
		return 0
	}
	return stat.ExKurtosis(data, nil)
}
