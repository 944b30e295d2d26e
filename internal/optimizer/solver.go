package optimizer

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/ViniHorstFer/portfolio-sub000/pkg/formulas"
)

const (
	// penaltyWeight scales the quadratic penalties for the equality, category
	// and portfolio-level constraints.
	penaltyWeight = 1000.0

	// cvarAlpha is the tail fraction for CVaR at 95%.
	cvarAlpha = 0.05

	// OmegaDownsideWeight is the downside-penalty coefficient of the convex
	// Omega surrogate. It is a tuning choice, not a derived constant.
	OmegaDownsideWeight = 2.0

	// omegaThreshold is the gain/loss threshold return for the Omega
	// objective and the Omega metric.
	omegaThreshold = 0.0

	tradingDaysPerYear = 252.0

	statusOptimal           = "optimal"
	statusOptimalInaccurate = "optimal_inaccurate"
)

// solveInput bundles everything the robust solve needs.
type solveInput struct {
	Objective     Objective
	Scenarios     ReturnMatrix
	Cov           *mat.SymDense
	Radius        float64
	Lower         []float64
	Upper         []float64
	Categories    []categoryGroup
	Portfolio     PortfolioConstraints
	MaxIterations int
	Tolerance     float64
}

// solveDRO formulates and solves the distributionally robust program for one
// objective. Box bounds are enforced by projection; the fully-invested
// equality, category bounds and portfolio-level constraints enter as
// quadratic penalties; CVaR's free VaR scalar rides along as an extra
// coordinate of the decision vector. The primary method is BFGS with the
// analytic gradient; on failure the solve is retried once with NelderMead at
// a relaxed budget and tolerance. Weights are clipped and renormalized before
// being returned.
func solveDRO(in solveInput, rl *RunLog) ([]float64, float64, string) {
	n := in.Scenarios.NumAssets()
	mu := in.Scenarios.MeanVector()

	dim := n
	if in.Objective == ObjectiveMinCVaR {
		dim = n + 1 // trailing coordinate is the VaR level
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			w := projectToBounds(x[:n], in.Lower, in.Upper)
			varLevel := 0.0
			if in.Objective == ObjectiveMinCVaR {
				varLevel = x[n]
			}
			r := in.Scenarios.PortfolioReturns(w)
			return robustObjective(in, mu, w, r, varLevel) + constraintPenalty(in, w, r)
		},
		Grad: func(grad, x []float64) {
			w := projectToBounds(x[:n], in.Lower, in.Upper)
			varLevel := 0.0
			if in.Objective == ObjectiveMinCVaR {
				varLevel = x[n]
			}
			r := in.Scenarios.PortfolioReturns(w)
			for i := range grad {
				grad[i] = 0
			}
			robustObjectiveGradient(in, mu, w, r, varLevel, grad)
			addConstraintPenaltyGradient(in, w, r, grad)
		},
	}

	initial := make([]float64, dim)
	for i := 0; i < n; i++ {
		initial[i] = 1.0 / float64(n)
	}

	settings := &optimize.Settings{
		MajorIterations:   in.MaxIterations,
		GradientThreshold: in.Tolerance,
	}

	status := statusOptimal
	result, err := optimize.Minimize(problem, initial, settings, &optimize.BFGS{})
	if err != nil || !converged(result.Status) {
		if err != nil {
			rl.Warnf("Primary solver failed (%v); retrying with fallback at relaxed tolerance", err)
		} else {
			rl.Warnf("Primary solver status %v; retrying with fallback at relaxed tolerance", result.Status)
		}
		// NelderMead needs a much larger iteration budget on the hinge
		// objectives; convergence is judged on function values alone.
		relaxed := &optimize.Settings{
			MajorIterations: 10 * in.MaxIterations,
			Converger: &optimize.FunctionConverge{
				Absolute:   1e-8,
				Iterations: 50,
			},
		}
		result, err = optimize.Minimize(problem, initial, relaxed, &optimize.NelderMead{})
		if err != nil {
			return nil, math.Inf(1), "failed: " + err.Error()
		}
		if !converged(result.Status) {
			return nil, math.Inf(1), "failed: " + result.Status.String()
		}
		status = statusOptimalInaccurate
	}

	// Clip numerical noise and renormalize to the simplex.
	w := projectToBounds(result.X[:n], in.Lower, in.Upper)
	for i := range w {
		if w[i] < 0 {
			w[i] = 0
		}
	}
	normalizeWeights(w)

	varLevel := 0.0
	if in.Objective == ObjectiveMinCVaR {
		varLevel = result.X[n]
	}
	r := in.Scenarios.PortfolioReturns(w)
	objective := robustObjective(in, mu, w, r, varLevel)

	return w, objective, status
}

// robustObjective is the convex objective without penalties, including the
// radius-scaled L2 robustification term. Concentrated portfolios have larger
// L2 norm and are more exposed to adversarial shifts inside the Wasserstein
// ball, so the term pushes toward diversification as the radius grows.
func robustObjective(in solveInput, mu, w, r []float64, varLevel float64) float64 {
	robust := in.Radius * l2Norm(w)

	switch in.Objective {
	case ObjectiveMaxReturn:
		return -dot(mu, w) + robust

	case ObjectiveMinVolatility:
		return quadraticForm(in.Cov, w) + robust

	case ObjectiveMinCVaR:
		// Rockafellar-Uryasev: VaR + E[max(0, loss - VaR)] / alpha.
		var excess float64
		for _, ret := range r {
			if loss := -ret - varLevel; loss > 0 {
				excess += loss
			}
		}
		return varLevel + excess/(float64(len(r))*cvarAlpha) + robust

	case ObjectiveMaxOmega:
		// Convex surrogate for the Omega ratio: reward the mean, penalize
		// downside mass below the threshold.
		var mean, downside float64
		for _, ret := range r {
			mean += ret
			if d := omegaThreshold - ret; d > 0 {
				downside += d
			}
		}
		count := float64(len(r))
		return -mean/count + OmegaDownsideWeight*downside/count + robust

	default:
		return math.Inf(1)
	}
}

// constraintPenalty adds the quadratic penalties for the fully-invested
// equality, category bounds and the caller's portfolio-level constraints.
func constraintPenalty(in solveInput, w, r []float64) float64 {
	var pen float64

	var sum float64
	for _, v := range w {
		sum += v
	}
	pen += penaltyWeight * (sum - 1.0) * (sum - 1.0)

	for _, g := range in.Categories {
		var cw float64
		for _, i := range g.Members {
			cw += w[i]
		}
		if g.HasMin && cw < g.Min {
			d := g.Min - cw
			pen += penaltyWeight * d * d
		}
		if g.HasMax && cw > g.Max {
			d := cw - g.Max
			pen += penaltyWeight * d * d
		}
	}

	count := float64(len(r))
	if count == 0 {
		return pen
	}

	if in.Portfolio.MinAnnualReturn != nil {
		dailyTarget := *in.Portfolio.MinAnnualReturn / tradingDaysPerYear
		var mean float64
		for _, ret := range r {
			mean += ret
		}
		mean /= count
		if mean < dailyTarget {
			d := dailyTarget - mean
			pen += penaltyWeight * d * d
		}
	}

	if in.Portfolio.MaxVolatility != nil {
		dailyBound := *in.Portfolio.MaxVolatility / math.Sqrt(tradingDaysPerYear)
		var mean float64
		for _, ret := range r {
			mean += ret
		}
		mean /= count
		var ss float64
		for _, ret := range r {
			d := ret - mean
			ss += d * d
		}
		sd := math.Sqrt(ss) / math.Sqrt(count)
		if sd > dailyBound {
			d := sd - dailyBound
			pen += penaltyWeight * d * d
		}
	}

	if in.Portfolio.MaxCVaR != nil {
		cvar := formulas.CalculateCVaR(r, 1-cvarAlpha)
		if cvar < *in.Portfolio.MaxCVaR {
			d := *in.Portfolio.MaxCVaR - cvar
			pen += penaltyWeight * d * d
		}
	}

	if in.Portfolio.MinOmega != nil {
		var gains, losses float64
		for _, ret := range r {
			if ret > omegaThreshold {
				gains += ret - omegaThreshold
			} else {
				losses += omegaThreshold - ret
			}
		}
		gains /= count
		losses /= count
		if gains < *in.Portfolio.MinOmega*losses {
			d := *in.Portfolio.MinOmega*losses - gains
			pen += penaltyWeight * d * d
		}
	}

	return pen
}

// robustObjectiveGradient accumulates the gradient of robustObjective into
// grad. Hinge terms contribute their subgradient, with the zero branch taken
// at the kink. For min_cvar the trailing entry of grad is the VaR coordinate.
func robustObjectiveGradient(in solveInput, mu, w, r []float64, varLevel float64, grad []float64) {
	n := len(w)
	count := float64(len(r))

	if norm := l2Norm(w); norm > 0 {
		for i := 0; i < n; i++ {
			grad[i] += in.Radius * w[i] / norm
		}
	}

	switch in.Objective {
	case ObjectiveMaxReturn:
		for i := 0; i < n; i++ {
			grad[i] -= mu[i]
		}

	case ObjectiveMinVolatility:
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				grad[i] += 2 * in.Cov.At(i, j) * w[j]
			}
		}

	case ObjectiveMinCVaR:
		scale := 1.0 / (count * cvarAlpha)
		active := 0.0
		for t, ret := range r {
			if -ret-varLevel > 0 {
				active++
				for i := 0; i < n; i++ {
					grad[i] -= scale * in.Scenarios.Rows[t][i]
				}
			}
		}
		grad[n] += 1.0 - active*scale

	case ObjectiveMaxOmega:
		for i := 0; i < n; i++ {
			grad[i] -= mu[i]
		}
		scale := OmegaDownsideWeight / count
		for t, ret := range r {
			if omegaThreshold-ret > 0 {
				for i := 0; i < n; i++ {
					grad[i] -= scale * in.Scenarios.Rows[t][i]
				}
			}
		}
	}
}

// addConstraintPenaltyGradient accumulates the gradient of constraintPenalty
// into grad. Only penalties violated at w contribute.
func addConstraintPenaltyGradient(in solveInput, w, r []float64, grad []float64) {
	n := len(w)

	var sum float64
	for _, v := range w {
		sum += v
	}
	for i := 0; i < n; i++ {
		grad[i] += 2 * penaltyWeight * (sum - 1.0)
	}

	for _, g := range in.Categories {
		var cw float64
		for _, i := range g.Members {
			cw += w[i]
		}
		if g.HasMin && cw < g.Min {
			for _, i := range g.Members {
				grad[i] -= 2 * penaltyWeight * (g.Min - cw)
			}
		}
		if g.HasMax && cw > g.Max {
			for _, i := range g.Members {
				grad[i] += 2 * penaltyWeight * (cw - g.Max)
			}
		}
	}

	count := float64(len(r))
	if count == 0 {
		return
	}

	var mean float64
	for _, ret := range r {
		mean += ret
	}
	mean /= count
	mu := in.Scenarios.MeanVector()

	if in.Portfolio.MinAnnualReturn != nil {
		dailyTarget := *in.Portfolio.MinAnnualReturn / tradingDaysPerYear
		if mean < dailyTarget {
			for i := 0; i < n; i++ {
				grad[i] -= 2 * penaltyWeight * (dailyTarget - mean) * mu[i]
			}
		}
	}

	if in.Portfolio.MaxVolatility != nil {
		dailyBound := *in.Portfolio.MaxVolatility / math.Sqrt(tradingDaysPerYear)
		var ss float64
		for _, ret := range r {
			d := ret - mean
			ss += d * d
		}
		sd := math.Sqrt(ss) / math.Sqrt(count)
		if sd > dailyBound && sd > 0 {
			for i := 0; i < n; i++ {
				var dsd float64
				for t, ret := range r {
					dsd += (ret - mean) * (in.Scenarios.Rows[t][i] - mu[i])
				}
				dsd /= count * sd
				grad[i] += 2 * penaltyWeight * (sd - dailyBound) * dsd
			}
		}
	}

	if in.Portfolio.MaxCVaR != nil {
		cvar := formulas.CalculateCVaR(r, 1-cvarAlpha)
		if cvar < *in.Portfolio.MaxCVaR {
			tail := cvarTailIndices(r)
			k := float64(len(tail))
			for i := 0; i < n; i++ {
				var dcvar float64
				for _, t := range tail {
					dcvar += in.Scenarios.Rows[t][i]
				}
				dcvar /= k
				grad[i] -= 2 * penaltyWeight * (*in.Portfolio.MaxCVaR - cvar) * dcvar
			}
		}
	}

	if in.Portfolio.MinOmega != nil {
		var gains, losses float64
		for _, ret := range r {
			if ret > omegaThreshold {
				gains += ret - omegaThreshold
			} else {
				losses += omegaThreshold - ret
			}
		}
		gains /= count
		losses /= count
		if gains < *in.Portfolio.MinOmega*losses {
			shortfall := *in.Portfolio.MinOmega*losses - gains
			for i := 0; i < n; i++ {
				var dgains, dlosses float64
				for t, ret := range r {
					if ret > omegaThreshold {
						dgains += in.Scenarios.Rows[t][i]
					} else {
						dlosses -= in.Scenarios.Rows[t][i]
					}
				}
				dgains /= count
				dlosses /= count
				grad[i] += 2 * penaltyWeight * shortfall * (*in.Portfolio.MinOmega*dlosses - dgains)
			}
		}
	}
}

// cvarTailIndices returns the indexes of the worst portfolio returns, the
// same tail formulas.CalculateCVaR averages over at the 95% level.
func cvarTailIndices(r []float64) []int {
	idx := make([]int, len(r))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return r[idx[a]] < r[idx[b]] })
	k := int(math.Ceil(float64(len(r))*cvarAlpha - 1e-9))
	if k < 1 {
		k = 1
	}
	if k > len(r) {
		k = len(r)
	}
	return idx[:k]
}

func converged(status optimize.Status) bool {
	switch status {
	case optimize.Success, optimize.GradientThreshold, optimize.FunctionConvergence:
		return true
	default:
		return false
	}
}

// projectToBounds clamps each weight coordinate to its box bounds.
func projectToBounds(x, lower, upper []float64) []float64 {
	proj := make([]float64, len(x))
	for i := range x {
		proj[i] = math.Max(lower[i], math.Min(upper[i], x[i]))
	}
	return proj
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func l2Norm(w []float64) float64 {
	var sum float64
	for _, v := range w {
		sum += v * v
	}
	return math.Sqrt(sum)
}

func quadraticForm(cov *mat.SymDense, w []float64) float64 {
	var sum float64
	for i := range w {
		for j := range w {
			sum += w[i] * w[j] * cov.At(i, j)
		}
	}
	return sum
}
