package optimizer

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

const (
	// minRadius floors every selection method so the program never degrades
	// to a zero-robustness formulation.
	minRadius = 1e-6

	defaultManualRadius = 0.01

	bootstrapPercentile = 0.95
)

// cvRadiusMultipliers scale the distance dispersion into the candidate grid
// for cross-validated radius selection.
var cvRadiusMultipliers = []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0}

// selectRadius determines the Wasserstein ball radius with the configured
// data-driven procedure. All methods floor the result at 1e-6.
func selectRadius(scenarios ReturnMatrix, cfg Config, rl *RunLog) float64 {
	var radius float64
	switch cfg.RadiusMethod {
	case RadiusManual:
		radius = cfg.ManualRadius
		if radius <= 0 {
			radius = defaultManualRadius
		}
	case RadiusRWPI:
		radius = rwpiRadius(scenarios, cfg.Confidence)
	case RadiusCV:
		radius = cvRadius(scenarios, cfg, rl)
	case RadiusBootstrap:
		radius = bootstrapRadius(scenarios, cfg.BootstrapDraws, cfg.Seed)
	default:
		rl.Warnf("Unknown radius method %q; using manual default", cfg.RadiusMethod)
		radius = defaultManualRadius
	}

	if radius < minRadius {
		radius = minRadius
	}
	rl.Addf("Selected Wasserstein radius %.6f via %s", radius, cfg.RadiusMethod)
	return radius
}

// rwpiRadius implements the robust Wasserstein profile inference bound:
// radius = (1 + ln(1+d)/10) * sigma * sqrt(ln(1/beta) / n), where sigma is
// the dispersion of per-observation distances from the sample mean, d the
// asset count, n the scenario count and beta = 1 - confidence. The radius
// shrinks as the sample grows and widens with the assumed confidence.
func rwpiRadius(scenarios ReturnMatrix, confidence float64) float64 {
	n := scenarios.NumRows()
	d := scenarios.NumAssets()
	if n == 0 {
		return defaultManualRadius
	}

	dists := distancesFromMean(scenarios)
	sigma := stat.StdDev(dists, nil)

	beta := 1.0 - confidence
	if beta <= 0 {
		beta = 0.05
	}

	dimFactor := 1.0 + math.Log(1.0+float64(d))/10.0
	return dimFactor * sigma * math.Sqrt(math.Log(1.0/beta)/float64(n))
}

// cvRadius grid-searches candidate radii with a chronological k-fold split.
// Each fold solves a simplified mean-variance program with the candidate's
// L2 penalty on the training rows and is scored by annualized Sharpe on the
// validation rows; a fold whose solve fails simply drops out of the mean.
func cvRadius(scenarios ReturnMatrix, cfg Config, rl *RunLog) float64 {
	n := scenarios.NumRows()
	folds := cfg.CVFolds
	if folds < 2 {
		folds = 2
	}
	if n < folds*2 {
		rl.Warnf("Too few scenarios (%d) for %d-fold CV; using RWPI radius", n, folds)
		return rwpiRadius(scenarios, cfg.Confidence)
	}

	sigma := stat.StdDev(distancesFromMean(scenarios), nil)
	if sigma <= 0 {
		return defaultManualRadius
	}

	foldSize := n / folds
	bestRadius, bestScore := cvRadiusMultipliers[0]*sigma, math.Inf(-1)

	for _, mult := range cvRadiusMultipliers {
		candidate := mult * sigma
		var scoreSum float64
		scored := 0

		for f := 0; f < folds; f++ {
			valFrom := f * foldSize
			valTo := valFrom + foldSize
			if f == folds-1 {
				valTo = n
			}

			train := ReturnMatrix{Symbols: scenarios.Symbols}
			train.Rows = append(train.Rows, scenarios.Rows[:valFrom]...)
			train.Rows = append(train.Rows, scenarios.Rows[valTo:]...)
			validation := scenarios.SliceRows(valFrom, valTo)

			w, err := solveSimplifiedMeanVariance(train, candidate, cfg.MaxIterations)
			if err != nil {
				continue
			}

			r := validation.PortfolioReturns(w)
			sd := stat.StdDev(r, nil)
			if sd <= 0 {
				continue
			}
			scoreSum += stat.Mean(r, nil) / sd * math.Sqrt(tradingDaysPerYear)
			scored++
		}

		if scored == 0 {
			continue
		}
		if score := scoreSum / float64(scored); score > bestScore {
			bestScore = score
			bestRadius = candidate
		}
	}

	return bestRadius
}

// solveSimplifiedMeanVariance solves min -mu'w + w'Sigma w + radius*||w||_2
// over the simplex with the same penalty machinery as the main solve. It is
// only used for radius cross-validation scoring.
func solveSimplifiedMeanVariance(train ReturnMatrix, radius float64, maxIterations int) ([]float64, error) {
	n := train.NumAssets()
	mu := train.MeanVector()
	cov := sampleCovariance(train)
	repairEigenvalues(cov)

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			w := make([]float64, n)
			for i := range w {
				w[i] = math.Max(0, math.Min(1, x[i]))
			}
			obj := -dot(mu, w) + quadraticForm(cov, w) + radius*l2Norm(w)
			var sum float64
			for _, v := range w {
				sum += v
			}
			return obj + penaltyWeight*(sum-1.0)*(sum-1.0)
		},
		Grad: func(grad, x []float64) {
			w := make([]float64, n)
			for i := range w {
				w[i] = math.Max(0, math.Min(1, x[i]))
			}
			var sum float64
			for _, v := range w {
				sum += v
			}
			norm := l2Norm(w)
			for i := 0; i < n; i++ {
				grad[i] = -mu[i] + 2*penaltyWeight*(sum-1.0)
				for j := 0; j < n; j++ {
					grad[i] += 2 * cov.At(i, j) * w[j]
				}
				if norm > 0 {
					grad[i] += radius * w[i] / norm
				}
			}
		},
	}

	initial := make([]float64, n)
	for i := range initial {
		initial[i] = 1.0 / float64(n)
	}

	result, err := optimize.Minimize(problem, initial, &optimize.Settings{MajorIterations: maxIterations}, &optimize.BFGS{})
	if err != nil {
		return nil, err
	}

	w := make([]float64, n)
	for i := range w {
		w[i] = math.Max(0, math.Min(1, result.X[i]))
	}
	normalizeWeights(w)
	return w, nil
}

// bootstrapRadius resamples the scenario rows with replacement and returns
// the 95th percentile of the distances between resample means and the full
// sample mean.
func bootstrapRadius(scenarios ReturnMatrix, draws int, seed int64) float64 {
	n := scenarios.NumRows()
	if n == 0 {
		return defaultManualRadius
	}
	if draws <= 0 {
		draws = 200
	}

	rng := rand.New(rand.NewSource(seed))
	fullMean := scenarios.MeanVector()
	p := scenarios.NumAssets()

	dists := make([]float64, draws)
	resampleMean := make([]float64, p)
	for b := 0; b < draws; b++ {
		for j := range resampleMean {
			resampleMean[j] = 0
		}
		for t := 0; t < n; t++ {
			row := scenarios.Rows[rng.Intn(n)]
			for j := 0; j < p; j++ {
				resampleMean[j] += row[j]
			}
		}
		for j := 0; j < p; j++ {
			resampleMean[j] /= float64(n)
		}
		dists[b] = euclidean(resampleMean, fullMean)
	}

	sort.Float64s(dists)
	return stat.Quantile(bootstrapPercentile, stat.Empirical, dists, nil)
}

func distancesFromMean(scenarios ReturnMatrix) []float64 {
	mu := scenarios.MeanVector()
	dists := make([]float64, scenarios.NumRows())
	for i, row := range scenarios.Rows {
		dists[i] = euclidean(row, mu)
	}
	return dists
}
