package optimizer

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ViniHorstFer/portfolio-sub000/pkg/formulas"
)

// eulerMascheroni appears in the expected-maximum term of the deflated
// Sharpe ratio threshold.
const eulerMascheroni = 0.5772156649015329

// computePortfolioMetrics evaluates realized performance of the weight vector
// on one chronological data slice.
func computePortfolioMetrics(weights []float64, slice ReturnMatrix) *PortfolioMetrics {
	if slice.NumRows() == 0 {
		return nil
	}
	r := slice.PortfolioReturns(weights)
	return &PortfolioMetrics{
		AnnualReturn:     formulas.AnnualizedReturn(r),
		AnnualVolatility: formulas.AnnualizedVolatility(r),
		Sharpe:           formulas.SharpeRatio(r),
		CVaR95:           formulas.CalculateCVaR(r, 1-cvarAlpha),
		Omega:            formulas.OmegaRatio(r, omegaThreshold),
		MaxDrawdown:      formulas.MaxDrawdown(r),
	}
}

// deflatedSharpeRatio applies the Bailey & Lopez de Prado correction for
// selection bias and non-normality: the observed (periodic) Sharpe ratio is
// compared against the expected maximum Sharpe over the assumed number of
// independent trials, with the test statistic's variance widened by skewness
// and kurtosis. The result is a probability in [0, 1]; heavier tails or more
// trials lower it.
func deflatedSharpeRatio(returns []float64, trials int) float64 {
	n := len(returns)
	if n < 10 {
		return 0
	}
	sd := formulas.StdDev(returns)
	if sd <= 0 {
		return 0
	}
	sr := formulas.Mean(returns) / sd

	skew := formulas.Skewness(returns)
	kurt := formulas.ExcessKurtosis(returns) + 3

	if trials < 1 {
		trials = 1
	}
	normal := distuv.Normal{Mu: 0, Sigma: 1}

	// Expected maximum Sharpe under the null across the assumed trials.
	srStar := 0.0
	if trials > 1 {
		nTrials := float64(trials)
		srStar = math.Sqrt(1.0/float64(n-1)) *
			((1-eulerMascheroni)*normal.Quantile(1-1/nTrials) +
				eulerMascheroni*normal.Quantile(1-1/(nTrials*math.E)))
	}

	variance := 1 - skew*sr + (kurt-1)/4*sr*sr
	if variance <= 0 || math.IsNaN(variance) {
		return 0
	}

	z := (sr - srStar) * math.Sqrt(float64(n-1)) / math.Sqrt(variance)
	return normal.CDF(z)
}

// probabilityOfBacktestOverfitting is the simplified PBO estimate: split the
// series chronologically in half and map the non-negative relative Sharpe
// degradation from the first half to the second into [0, 1]. A non-positive
// first-half Sharpe is treated as fully overfit.
func probabilityOfBacktestOverfitting(returns []float64) float64 {
	if len(returns) < 4 {
		return 0.5
	}
	half := len(returns) / 2
	s1 := formulas.SharpeRatio(returns[:half])
	s2 := formulas.SharpeRatio(returns[half:])

	if s1 <= 0 {
		return 1.0
	}

	degradation := (s1 - s2) / s1
	if degradation < 0 {
		degradation = 0
	}
	return math.Min(1.0, degradation/2.0)
}
