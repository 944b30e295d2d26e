// Package optimizer implements distributionally robust portfolio construction.
//
// The optimizer selects long-only, fully-invested asset weights that are
// robust against shifts of the empirical return distribution within a bounded
// Wasserstein distance. A single Optimize call runs scenario reduction,
// shrinkage covariance estimation, data-driven radius selection, the robust
// solve, post-optimization weight redistribution, constraint verification and
// statistical validation.
package optimizer

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Objective selects the robust objective to optimize.
type Objective string

const (
	ObjectiveMaxReturn     Objective = "max_return"
	ObjectiveMinVolatility Objective = "min_volatility"
	ObjectiveMinCVaR       Objective = "min_cvar"
	ObjectiveMaxOmega      Objective = "max_omega"
)

// ReductionMethod selects the scenario reduction strategy.
type ReductionMethod string

const (
	ReduceNone        ReductionMethod = "none"
	ReduceFastForward ReductionMethod = "fast_forward"
	ReduceKMeans      ReductionMethod = "kmeans"
)

// CovarianceMethod selects the covariance estimator.
type CovarianceMethod string

const (
	CovSample     CovarianceMethod = "sample"
	CovLedoitWolf CovarianceMethod = "ledoit_wolf"
	CovOAS        CovarianceMethod = "oas"
)

// RadiusMethod selects how the Wasserstein ball radius is determined.
type RadiusMethod string

const (
	RadiusManual    RadiusMethod = "manual"
	RadiusRWPI      RadiusMethod = "rwpi"
	RadiusCV        RadiusMethod = "cv"
	RadiusBootstrap RadiusMethod = "bootstrap"
)

// Config holds the optimizer parameters for one instance. Zero values are
// replaced by defaults in New; out-of-range values are the caller's
// responsibility.
type Config struct {
	// DRO parameters
	WassersteinOrder int          `yaml:"wasserstein_order"`
	RadiusMethod     RadiusMethod `yaml:"radius_method"`
	ManualRadius     float64      `yaml:"manual_radius"`
	Confidence       float64      `yaml:"confidence"`

	// Scenario reduction
	ReductionMethod ReductionMethod `yaml:"reduction_method"`
	TargetScenarios int             `yaml:"target_scenarios"` // 0 = auto
	MinScenarios    int             `yaml:"min_scenarios"`
	MaxScenarios    int             `yaml:"max_scenarios"`

	// Covariance
	CovarianceMethod CovarianceMethod `yaml:"covariance_method"`

	// Solver
	MaxIterations int     `yaml:"max_iterations"`
	Tolerance     float64 `yaml:"tolerance"`

	// Chronological data splits; test is the remainder.
	TrainRatio      float64 `yaml:"train_ratio"`
	ValidationRatio float64 `yaml:"validation_ratio"`

	// Statistical tests
	RunStatTests   bool `yaml:"run_stat_tests"`
	AssumedTrials  int  `yaml:"assumed_trials"`
	CVFolds        int  `yaml:"cv_folds"`
	BootstrapDraws int  `yaml:"bootstrap_draws"`

	// Seed for kmeans and bootstrap reproducibility.
	Seed int64 `yaml:"seed"`
}

// DefaultConfig returns the configuration used when the caller leaves fields
// unset.
func DefaultConfig() Config {
	return Config{
		WassersteinOrder: 1,
		RadiusMethod:     RadiusRWPI,
		ManualRadius:     0.01,
		Confidence:       0.95,
		ReductionMethod:  ReduceFastForward,
		MinScenarios:     50,
		MaxScenarios:     500,
		CovarianceMethod: CovLedoitWolf,
		MaxIterations:    1000,
		Tolerance:        1e-8,
		TrainRatio:       0.70,
		ValidationRatio:  0.15,
		RunStatTests:     true,
		AssumedTrials:    10,
		CVFolds:          3,
		BootstrapDraws:   200,
		Seed:             42,
	}
}

// ReturnMatrix is a dates x assets table of periodic fractional returns.
// Rows are chronological; columns follow Symbols.
type ReturnMatrix struct {
	Dates   []string
	Symbols []string
	Rows    [][]float64
}

// NumRows returns the number of observations.
func (m ReturnMatrix) NumRows() int { return len(m.Rows) }

// NumAssets returns the number of assets.
func (m ReturnMatrix) NumAssets() int { return len(m.Symbols) }

// Column copies the return series of asset j.
func (m ReturnMatrix) Column(j int) []float64 {
	col := make([]float64, len(m.Rows))
	for i, row := range m.Rows {
		col[i] = row[j]
	}
	return col
}

// SliceRows returns the chronological sub-matrix [from, to). Dates are sliced
// alongside when present. The underlying rows are shared, not copied.
func (m ReturnMatrix) SliceRows(from, to int) ReturnMatrix {
	if from < 0 {
		from = 0
	}
	if to > len(m.Rows) {
		to = len(m.Rows)
	}
	if from > to {
		from = to
	}
	out := ReturnMatrix{Symbols: m.Symbols, Rows: m.Rows[from:to]}
	if len(m.Dates) == len(m.Rows) {
		out.Dates = m.Dates[from:to]
	}
	return out
}

// MeanVector returns the per-asset mean return.
func (m ReturnMatrix) MeanVector() []float64 {
	n := m.NumAssets()
	mu := make([]float64, n)
	if m.NumRows() == 0 {
		return mu
	}
	for _, row := range m.Rows {
		for j := 0; j < n; j++ {
			mu[j] += row[j]
		}
	}
	for j := 0; j < n; j++ {
		mu[j] /= float64(m.NumRows())
	}
	return mu
}

// PortfolioReturns returns the per-row portfolio return for weight vector w.
func (m ReturnMatrix) PortfolioReturns(w []float64) []float64 {
	out := make([]float64, len(m.Rows))
	for i, row := range m.Rows {
		var r float64
		for j := range w {
			r += row[j] * w[j]
		}
		out[i] = r
	}
	return out
}

// PortfolioConstraints are the optional portfolio-level risk/return bounds.
// Annualized inputs are converted to daily terms inside the solver.
type PortfolioConstraints struct {
	MinAnnualReturn *float64 `json:"min_annual_return,omitempty"`
	MaxVolatility   *float64 `json:"max_volatility,omitempty"`
	MaxCVaR         *float64 `json:"max_cvar,omitempty"`
	MinOmega        *float64 `json:"min_omega,omitempty"`
}

// Bound is a {min, max} weight bound. Nil means unconstrained on that side.
// Values above 1 are interpreted as percentages and divided by 100.
type Bound struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// WeightConstraints is the four-level allocation constraint hierarchy.
//
// The global per-fund minimum is deliberately NOT part of the convex program:
// a uniform nonzero lower bound on every asset combined with upper bounds is
// generally infeasible once many assets are present. It is enforced by the
// post-optimization redistribution pass instead.
type WeightConstraints struct {
	// IndividualFundDefault applies one bound to every asset; IndividualFund
	// overrides it per asset name.
	IndividualFundDefault *Bound           `json:"individual_fund_default,omitempty"`
	IndividualFund        map[string]Bound `json:"individual_fund,omitempty"`

	// GlobalFund.Max is enforced inside the solver; GlobalFund.Min only after.
	GlobalFund *Bound `json:"global_fund,omitempty"`

	// Category bounds on the summed weight of each category's members.
	IndividualCategory map[string]Bound `json:"individual_category,omitempty"`
	GlobalCategoryMax  *float64         `json:"global_category_max,omitempty"`
}

// PortfolioMetrics are realized performance statistics for one data slice.
type PortfolioMetrics struct {
	AnnualReturn     float64 `json:"annual_return"`
	AnnualVolatility float64 `json:"annual_volatility"`
	Sharpe           float64 `json:"sharpe"`
	CVaR95           float64 `json:"cvar_95"`
	Omega            float64 `json:"omega"`
	MaxDrawdown      float64 `json:"max_drawdown"`
}

// Result is the immutable outcome of one Optimize call.
type Result struct {
	Success            bool               `json:"success"`
	Weights            map[string]float64 `json:"weights"`
	ObjectiveValue     float64            `json:"objective_value"`
	SolverStatus       string             `json:"solver_status"`
	ElapsedNs          int64              `json:"elapsed_ns"`
	Radius             float64            `json:"radius"`
	ScenarioCount      int                `json:"scenario_count"`
	ShrinkageIntensity float64            `json:"shrinkage_intensity"`
	InSample           *PortfolioMetrics  `json:"in_sample,omitempty"`
	Validation         *PortfolioMetrics  `json:"validation,omitempty"`
	Test               *PortfolioMetrics  `json:"test,omitempty"`
	DeflatedSharpe     *float64           `json:"deflated_sharpe,omitempty"`
	PBO                *float64           `json:"pbo,omitempty"`
	Log                []string           `json:"log"`
}

// RunLog accumulates the human-readable step log for one Optimize call and
// mirrors every entry to the structured logger. It is owned by a single call
// and is not safe for concurrent use.
type RunLog struct {
	lines []string
	log   zerolog.Logger
}

func newRunLog(log zerolog.Logger) *RunLog {
	return &RunLog{log: log}
}

// Addf appends a formatted informational entry.
func (rl *RunLog) Addf(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	rl.lines = append(rl.lines, line)
	rl.log.Info().Msg(line)
}

// Warnf appends a formatted warning entry.
func (rl *RunLog) Warnf(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	rl.lines = append(rl.lines, "WARNING: "+line)
	rl.log.Warn().Msg(line)
}

// Lines returns the accumulated entries.
func (rl *RunLog) Lines() []string { return rl.lines }
