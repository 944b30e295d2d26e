package optimizer

import (
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/ViniHorstFer/portfolio-sub000/pkg/formulas"
)

// lowObservationRatio is the observations-to-assets ratio below which the
// optimizer warns about unstable estimates.
const lowObservationRatio = 5.0

// highCorrelationThreshold flags asset pairs whose estimated correlation is
// suspiciously high for the run log.
const highCorrelationThreshold = 0.80

// Optimizer runs Wasserstein-DRO portfolio construction over one return
// matrix and category map. A single instance is safe for sequential reuse;
// concurrent Optimize calls need one instance each.
type Optimizer struct {
	returns    ReturnMatrix
	categories map[string]string
	cfg        Config
	log        zerolog.Logger
}

// New creates an optimizer for the given return matrix (rows chronological,
// columns following returns.Symbols) and asset-to-category map. Zero config
// fields fall back to DefaultConfig values.
func New(returns ReturnMatrix, categories map[string]string, cfg Config, log zerolog.Logger) *Optimizer {
	applyConfigDefaults(&cfg)
	if categories == nil {
		categories = map[string]string{}
	}
	return &Optimizer{
		returns:    returns,
		categories: categories,
		cfg:        cfg,
		log:        log.With().Str("component", "optimizer").Logger(),
	}
}

// Optimize runs the full pipeline for one objective: split, reduce, estimate
// covariance, select radius, solve, redistribute, verify and evaluate. It
// never returns an error; solver failures surface as a failure Result with
// the accumulated log.
func (o *Optimizer) Optimize(objective Objective, constraints PortfolioConstraints, weightConstraints WeightConstraints, fullEval bool) Result {
	start := time.Now()
	rl := newRunLog(o.log)
	rl.Addf("Optimizing objective %s over %d observations x %d assets",
		objective, o.returns.NumRows(), o.returns.NumAssets())

	o.warnDataQuality(rl)

	train, validation, test := o.splitData(rl)

	target := o.cfg.TargetScenarios
	if target <= 0 {
		target = defaultTargetScenarios(train.NumRows(), train.NumAssets(), o.cfg.MinScenarios, o.cfg.MaxScenarios)
	}
	scenarios := reduceScenarios(train, target, o.cfg.ReductionMethod, o.cfg.Seed, rl)

	cov, intensity, err := estimateCovariance(scenarios, o.cfg.CovarianceMethod)
	if err != nil {
		rl.Warnf("Covariance estimation failed: %v", err)
		return o.failureResult("failed: "+err.Error(), 0, scenarios.NumRows(), 0, rl, start)
	}
	rl.Addf("Estimated covariance via %s (shrinkage intensity %.4f)", o.cfg.CovarianceMethod, intensity)
	o.reportHighCorrelations(cov, rl)

	radius := selectRadius(scenarios, o.cfg, rl)

	built := buildWeightConstraints(o.returns.Symbols, o.categories, weightConstraints, rl)

	weights, objectiveValue, status := solveDRO(solveInput{
		Objective:     objective,
		Scenarios:     scenarios,
		Cov:           cov,
		Radius:        radius,
		Lower:         built.Lower,
		Upper:         built.Upper,
		Categories:    built.Categories,
		Portfolio:     constraints,
		MaxIterations: o.cfg.MaxIterations,
		Tolerance:     o.cfg.Tolerance,
	}, rl)
	if weights == nil {
		rl.Warnf("Solver failed with status %q", status)
		return o.failureResult(status, radius, scenarios.NumRows(), intensity, rl, start)
	}
	rl.Addf("Solver finished with status %s (objective %.6f)", status, objectiveValue)

	if built.HasGlobal {
		weights = redistributeMinimum(weights, built.GlobalMin, built.Upper, built.Categories, rl)
		rl.Addf("Applied global per-fund minimum %.4f via redistribution", built.GlobalMin)
	}

	verifyConstraints(weights, scenarios, constraints, rl)

	result := Result{
		Success:            true,
		Weights:            o.weightMap(weights),
		ObjectiveValue:     objectiveValue,
		SolverStatus:       status,
		Radius:             radius,
		ScenarioCount:      scenarios.NumRows(),
		ShrinkageIntensity: intensity,
		InSample:           computePortfolioMetrics(weights, train),
		Validation:         computePortfolioMetrics(weights, validation),
		Test:               computePortfolioMetrics(weights, test),
	}

	if fullEval && o.cfg.RunStatTests {
		trainReturns := train.PortfolioReturns(weights)
		dsr := deflatedSharpeRatio(trainReturns, o.cfg.AssumedTrials)
		pbo := probabilityOfBacktestOverfitting(trainReturns)
		result.DeflatedSharpe = &dsr
		result.PBO = &pbo
		rl.Addf("Statistical tests: deflated Sharpe %.4f, PBO %.4f", dsr, pbo)
	}

	elapsed := time.Since(start)
	result.ElapsedNs = elapsed.Nanoseconds()
	result.Log = rl.Lines()
	rl.log.Info().
		Str("objective", string(objective)).
		Str("status", status).
		Dur("elapsed", elapsed).
		Msg("Optimization complete")
	return result
}

// splitData slices the return matrix chronologically into train, validation
// and test; the test slice is the remainder.
func (o *Optimizer) splitData(rl *RunLog) (train, validation, test ReturnMatrix) {
	rows := o.returns.NumRows()
	trainEnd := int(float64(rows) * o.cfg.TrainRatio)
	valEnd := trainEnd + int(float64(rows)*o.cfg.ValidationRatio)
	if trainEnd > rows {
		trainEnd = rows
	}
	if valEnd > rows {
		valEnd = rows
	}

	train = o.returns.SliceRows(0, trainEnd)
	validation = o.returns.SliceRows(trainEnd, valEnd)
	test = o.returns.SliceRows(valEnd, rows)
	rl.Addf("Split data: train %d, validation %d, test %d rows",
		train.NumRows(), validation.NumRows(), test.NumRows())
	return train, validation, test
}

// warnDataQuality logs non-fatal data issues: NaNs, zero-volatility assets
// and a low observations-to-assets ratio.
func (o *Optimizer) warnDataQuality(rl *RunLog) {
	nanCount := 0
	for _, row := range o.returns.Rows {
		for _, v := range row {
			if math.IsNaN(v) {
				nanCount++
			}
		}
	}
	if nanCount > 0 {
		rl.Warnf("Return matrix contains %d NaN values; callers should pre-clean", nanCount)
	}

	for j, sym := range o.returns.Symbols {
		if formulas.StdDev(o.returns.Column(j)) == 0 {
			rl.Warnf("Asset %s has zero return volatility", sym)
		}
	}

	if assets := o.returns.NumAssets(); assets > 0 {
		ratio := float64(o.returns.NumRows()) / float64(assets)
		if ratio < lowObservationRatio {
			rl.Warnf("Low observations-to-assets ratio %.1f (< %.0f); estimates may be unstable",
				ratio, lowObservationRatio)
		}
	}
}

// reportHighCorrelations surfaces suspiciously correlated asset pairs.
func (o *Optimizer) reportHighCorrelations(cov *mat.SymDense, rl *RunLog) {
	n := o.returns.NumAssets()
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			vi, vj := cov.At(i, i), cov.At(j, j)
			if vi <= 0 || vj <= 0 {
				continue
			}
			corr := cov.At(i, j) / math.Sqrt(vi*vj)
			if math.Abs(corr) >= highCorrelationThreshold {
				rl.Warnf("High correlation %.2f between %s and %s",
					corr, o.returns.Symbols[i], o.returns.Symbols[j])
			}
		}
	}
}

func (o *Optimizer) failureResult(status string, radius float64, scenarioCount int, intensity float64, rl *RunLog, start time.Time) Result {
	weights := make(map[string]float64, o.returns.NumAssets())
	for _, sym := range o.returns.Symbols {
		weights[sym] = 0
	}
	return Result{
		Success:            false,
		Weights:            weights,
		ObjectiveValue:     math.Inf(1),
		SolverStatus:       status,
		ElapsedNs:          time.Since(start).Nanoseconds(),
		Radius:             radius,
		ScenarioCount:      scenarioCount,
		ShrinkageIntensity: intensity,
		Log:                rl.Lines(),
	}
}

func (o *Optimizer) weightMap(weights []float64) map[string]float64 {
	out := make(map[string]float64, len(weights))
	for i, sym := range o.returns.Symbols {
		out[sym] = weights[i]
	}
	return out
}

func applyConfigDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.WassersteinOrder == 0 {
		cfg.WassersteinOrder = def.WassersteinOrder
	}
	if cfg.RadiusMethod == "" {
		cfg.RadiusMethod = def.RadiusMethod
	}
	if cfg.ManualRadius == 0 {
		cfg.ManualRadius = def.ManualRadius
	}
	if cfg.Confidence == 0 {
		cfg.Confidence = def.Confidence
	}
	if cfg.ReductionMethod == "" {
		cfg.ReductionMethod = def.ReductionMethod
	}
	if cfg.MinScenarios == 0 {
		cfg.MinScenarios = def.MinScenarios
	}
	if cfg.MaxScenarios == 0 {
		cfg.MaxScenarios = def.MaxScenarios
	}
	if cfg.CovarianceMethod == "" {
		cfg.CovarianceMethod = def.CovarianceMethod
	}
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = def.MaxIterations
	}
	if cfg.Tolerance == 0 {
		cfg.Tolerance = def.Tolerance
	}
	if cfg.TrainRatio == 0 {
		cfg.TrainRatio = def.TrainRatio
	}
	if cfg.ValidationRatio == 0 {
		cfg.ValidationRatio = def.ValidationRatio
	}
	if cfg.AssumedTrials == 0 {
		cfg.AssumedTrials = def.AssumedTrials
	}
	if cfg.CVFolds == 0 {
		cfg.CVFolds = def.CVFolds
	}
	if cfg.BootstrapDraws == 0 {
		cfg.BootstrapDraws = def.BootstrapDraws
	}
	if cfg.Seed == 0 {
		cfg.Seed = def.Seed
	}
}
