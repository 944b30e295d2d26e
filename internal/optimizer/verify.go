package optimizer

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/ViniHorstFer/portfolio-sub000/pkg/formulas"
)

// verifyConstraints recomputes the realized value of each specified
// portfolio-level constraint against the final weights on the scenario set
// and logs whether it holds along with the numeric margin. Purely diagnostic:
// it never mutates weights or fails the optimization.
func verifyConstraints(weights []float64, scenarios ReturnMatrix, pc PortfolioConstraints, rl *RunLog) {
	if scenarios.NumRows() == 0 {
		return
	}
	r := scenarios.PortfolioReturns(weights)

	logCheck := func(name string, realized, bound float64, satisfied bool) {
		verdict := "satisfied"
		if !satisfied {
			verdict = "VIOLATED"
		}
		rl.Addf("Constraint %s: realized %.6f vs bound %.6f (%s, margin %.6f)",
			name, realized, bound, verdict, realized-bound)
	}

	if pc.MinAnnualReturn != nil {
		realized := stat.Mean(r, nil) * tradingDaysPerYear
		logCheck("min_annual_return", realized, *pc.MinAnnualReturn, realized >= *pc.MinAnnualReturn)
	}
	if pc.MaxVolatility != nil {
		realized := stat.StdDev(r, nil) * math.Sqrt(tradingDaysPerYear)
		logCheck("max_volatility", realized, *pc.MaxVolatility, realized <= *pc.MaxVolatility)
	}
	if pc.MaxCVaR != nil {
		realized := formulas.CalculateCVaR(r, 1-cvarAlpha)
		logCheck("max_cvar", realized, *pc.MaxCVaR, realized >= *pc.MaxCVaR)
	}
	if pc.MinOmega != nil {
		realized := formulas.OmegaRatio(r, omegaThreshold)
		logCheck("min_omega", realized, *pc.MinOmega, realized >= *pc.MinOmega)
	}
}
