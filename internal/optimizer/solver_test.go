package optimizer

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ViniHorstFer/portfolio-sub000/pkg/formulas"
)

func solveFor(t *testing.T, objective Objective, scenarios ReturnMatrix, radius float64, pc PortfolioConstraints) ([]float64, string) {
	t.Helper()
	cov, _, err := estimateCovariance(scenarios, CovSample)
	require.NoError(t, err)

	n := scenarios.NumAssets()
	lower := make([]float64, n)
	upper := make([]float64, n)
	for i := range upper {
		upper[i] = 1.0
	}

	rl := newRunLog(zerolog.Nop())
	w, _, status := solveDRO(solveInput{
		Objective:     objective,
		Scenarios:     scenarios,
		Cov:           cov,
		Radius:        radius,
		Lower:         lower,
		Upper:         upper,
		Portfolio:     pc,
		MaxIterations: 1000,
		Tolerance:     1e-8,
	}, rl)
	require.NotNil(t, w, "solver failed: %s", status)
	return w, status
}

func TestSolveDRO_GradientMatchesFiniteDifferences(t *testing.T) {
	// Hand-picked scenarios keep every portfolio return well away from the
	// hinge kinks, so central differences of the objective are valid at the
	// evaluation point.
	m := ReturnMatrix{
		Symbols: []string{"A", "B", "C"},
		Rows: [][]float64{
			{0.010, 0.002, -0.004},
			{-0.020, 0.001, 0.003},
			{0.015, -0.003, 0.002},
			{0.005, 0.004, -0.001},
			{-0.010, -0.002, 0.006},
			{0.020, 0.003, -0.002},
			{-0.005, 0.001, 0.004},
			{0.010, -0.004, 0.001},
		},
	}
	cov, _, err := estimateCovariance(m, CovSample)
	require.NoError(t, err)
	mu := m.MeanVector()

	// Every portfolio-level bound and both category bounds are violated at
	// the evaluation point, so each penalty contributes to the gradient.
	minReturn, maxVol, maxCVaR, minOmega := 2.0, 0.01, -0.002, 5.0
	base := solveInput{
		Scenarios: m,
		Cov:       cov,
		Radius:    0.05,
		Portfolio: PortfolioConstraints{
			MinAnnualReturn: &minReturn,
			MaxVolatility:   &maxVol,
			MaxCVaR:         &maxCVaR,
			MinOmega:        &minOmega,
		},
		Categories: []categoryGroup{
			{Name: "Equity", Members: []int{0, 1}, Min: 0.9, HasMin: true},
			{Name: "Bond", Members: []int{2}, Max: 0.1, HasMax: true},
		},
	}

	for _, objective := range []Objective{ObjectiveMaxReturn, ObjectiveMinVolatility, ObjectiveMinCVaR, ObjectiveMaxOmega} {
		t.Run(string(objective), func(t *testing.T) {
			in := base
			in.Objective = objective

			point := []float64{0.5, 0.3, 0.25}
			if objective == ObjectiveMinCVaR {
				point = append(point, 0.004)
			}

			eval := func(z []float64) float64 {
				w := z[:3]
				varLevel := 0.0
				if objective == ObjectiveMinCVaR {
					varLevel = z[3]
				}
				r := m.PortfolioReturns(w)
				return robustObjective(in, mu, w, r, varLevel) + constraintPenalty(in, w, r)
			}

			grad := make([]float64, len(point))
			r := m.PortfolioReturns(point[:3])
			varLevel := 0.0
			if objective == ObjectiveMinCVaR {
				varLevel = point[3]
			}
			robustObjectiveGradient(in, mu, point[:3], r, varLevel, grad)
			addConstraintPenaltyGradient(in, point[:3], r, grad)

			const h = 1e-6
			for i := range point {
				up := append([]float64(nil), point...)
				down := append([]float64(nil), point...)
				up[i] += h
				down[i] -= h
				fd := (eval(up) - eval(down)) / (2 * h)
				assert.InDelta(t, fd, grad[i], 1e-5, "coordinate %d", i)
			}
		})
	}
}

func TestSolveDRO_MinCVaRConverges(t *testing.T) {
	symbols := []string{"A", "B", "C", "D"}
	means := []float64{0.0010, 0.0005, 0.0002, 0.0008}
	vols := []float64{0.020, 0.010, 0.004, 0.015}
	m := syntheticReturns(300, symbols, means, vols, 52)

	w, status := solveFor(t, ObjectiveMinCVaR, m, 0.01, PortfolioConstraints{})

	assert.Contains(t, []string{statusOptimal, statusOptimalInaccurate}, status)
	sum := 0.0
	for i, v := range w {
		assert.GreaterOrEqual(t, v, 0.0, "weight %d should be non-negative", i)
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-6, "weights should sum to 1")
}

func TestSolveDRO_LargerRadiusReducesConcentration(t *testing.T) {
	// One asset clearly dominates on expected return; the robustification term
	// is the only force pushing away from a corner solution.
	symbols := []string{"A", "B", "C"}
	means := []float64{0.002, 0.0, 0.0}
	vols := []float64{0.01, 0.01, 0.01}
	scenarios := syntheticReturns(300, symbols, means, vols, 50)

	tight, _ := solveFor(t, ObjectiveMaxReturn, scenarios, 1e-4, PortfolioConstraints{})
	wide, _ := solveFor(t, ObjectiveMaxReturn, scenarios, 0.1, PortfolioConstraints{})

	assert.Greater(t, l2Norm(tight), l2Norm(wide),
		"a larger Wasserstein radius should yield a less concentrated portfolio")
	assert.Greater(t, tight[0], 0.8, "with a tiny radius the best asset dominates")
}

func TestOptimize_MaxOmegaFavorsSkewedAsset(t *testing.T) {
	// Asset A: strong positive skew (frequent small gains, rare small losses).
	// Asset B: symmetric and calm. min_volatility prefers B; max_omega should
	// prefer A and realize a higher in-sample Omega ratio.
	rows := 400
	m := ReturnMatrix{Symbols: []string{"A", "B"}, Rows: make([][]float64, rows)}
	for i := 0; i < rows; i++ {
		a := 0.02
		if i%10 == 0 {
			a = -0.005
		}
		b := 0.001
		if i%2 == 0 {
			b = -0.0005
		}
		m.Rows[i] = []float64{a, b}
	}

	cfg := testConfig()
	optOmega := New(m, nil, cfg, zerolog.Nop())
	resOmega := optOmega.Optimize(ObjectiveMaxOmega, PortfolioConstraints{}, WeightConstraints{}, false)
	require.True(t, resOmega.Success, "status: %s", resOmega.SolverStatus)

	optVol := New(m, nil, cfg, zerolog.Nop())
	resVol := optVol.Optimize(ObjectiveMinVolatility, PortfolioConstraints{}, WeightConstraints{}, false)
	require.True(t, resVol.Success, "status: %s", resVol.SolverStatus)

	require.NotNil(t, resOmega.InSample)
	require.NotNil(t, resVol.InSample)
	assert.Greater(t, resOmega.InSample.Omega, resVol.InSample.Omega)
	assert.Greater(t, resOmega.Weights["A"], resVol.Weights["A"])
}

func TestOptimize_MaxCVaRConstraintHolds(t *testing.T) {
	// Without the constraint, max_return piles into the volatile high-mean
	// asset; the CVaR bound should pull it back toward the calm one.
	symbols := []string{"RISKY", "CALM"}
	means := []float64{0.0015, 0.0002}
	vols := []float64{0.03, 0.003}
	m := syntheticReturns(400, symbols, means, vols, 51)

	bound := -0.02
	opt := New(m, nil, testConfig(), zerolog.Nop())
	result := opt.Optimize(ObjectiveMaxReturn, PortfolioConstraints{MaxCVaR: &bound}, WeightConstraints{}, false)

	require.True(t, result.Success, "status: %s", result.SolverStatus)

	train := m.SliceRows(0, int(float64(m.NumRows())*testConfig().TrainRatio))
	weights := []float64{result.Weights["RISKY"], result.Weights["CALM"]}
	realized := formulas.CalculateCVaR(train.PortfolioReturns(weights), 0.95)
	assert.GreaterOrEqual(t, realized, bound-0.005, "training CVaR should respect the bound")
}
