package optimizer

import (
	"fmt"
	"math"
	"sort"
)

const (
	// UnknownCategory is the implicit bucket for assets without a mapped
	// category. It participates in no category constraint.
	UnknownCategory = "Unknown"

	maxRedistributionPasses = 100
	redistributionEpsilon   = 1e-9
)

// categoryGroup is one category's membership plus its summed-weight bounds.
type categoryGroup struct {
	Name    string
	Members []int // column indexes into the symbol order
	Min     float64
	Max     float64
	HasMin  bool
	HasMax  bool
}

// builtConstraints is the solver-ready constraint set plus the global per-fund
// minimum, which is enforced after the solve rather than inside it.
type builtConstraints struct {
	Lower      []float64
	Upper      []float64
	Categories []categoryGroup
	GlobalMin  float64
	HasGlobal  bool
}

// buildWeightConstraints translates the four-level weight-constraint hierarchy
// into per-asset bounds and category groups for the solver. Order matters:
// individual per-fund bounds first, then the global per-fund max, then
// individual per-category bounds, then the global per-category max.
func buildWeightConstraints(symbols []string, categories map[string]string, wc WeightConstraints, rl *RunLog) builtConstraints {
	n := len(symbols)
	built := builtConstraints{
		Lower: make([]float64, n),
		Upper: make([]float64, n),
	}
	for i := range built.Upper {
		built.Upper[i] = 1.0
	}

	// 1. Individual per-fund bounds.
	if wc.IndividualFundDefault != nil {
		for i := range symbols {
			applyBound(*wc.IndividualFundDefault, &built.Lower[i], &built.Upper[i])
		}
		rl.Addf("Applied default per-fund bounds to all %d assets", n)
	}
	if len(wc.IndividualFund) > 0 {
		applied := 0
		for i, sym := range symbols {
			if b, ok := wc.IndividualFund[sym]; ok {
				applyBound(b, &built.Lower[i], &built.Upper[i])
				applied++
			}
		}
		rl.Addf("Applied individual per-fund bounds to %d of %d assets", applied, n)
	}

	// 2. Global per-fund bound. The max is a hard solver constraint; the min
	// is recorded and applied by the post-optimization redistribution pass.
	if wc.GlobalFund != nil {
		if wc.GlobalFund.Max != nil {
			globalMax := asFraction(*wc.GlobalFund.Max)
			for i := range built.Upper {
				built.Upper[i] = math.Min(built.Upper[i], globalMax)
			}
			rl.Addf("Global per-fund max %.4f applied inside the solver", globalMax)
		}
		if wc.GlobalFund.Min != nil {
			built.GlobalMin = asFraction(*wc.GlobalFund.Min)
			built.HasGlobal = true
			rl.Addf("Global per-fund min %.4f deferred to post-optimization redistribution", built.GlobalMin)
		}
	}

	// Group columns by category; unmapped assets fall into the Unknown bucket.
	members := make(map[string][]int)
	for i, sym := range symbols {
		cat, ok := categories[sym]
		if !ok || cat == "" {
			cat = UnknownCategory
		}
		members[cat] = append(members[cat], i)
	}
	names := make([]string, 0, len(members))
	for name := range members {
		names = append(names, name)
	}
	sort.Strings(names)

	// 3. Individual per-category bounds. 4. Global per-category max.
	for _, name := range names {
		if name == UnknownCategory {
			continue
		}
		group := categoryGroup{Name: name, Members: members[name]}
		if b, ok := wc.IndividualCategory[name]; ok {
			if b.Min != nil {
				group.Min = asFraction(*b.Min)
				group.HasMin = true
			}
			if b.Max != nil {
				group.Max = asFraction(*b.Max)
				group.HasMax = true
			}
		}
		if wc.GlobalCategoryMax != nil {
			globalMax := asFraction(*wc.GlobalCategoryMax)
			if !group.HasMax || globalMax < group.Max {
				group.Max = globalMax
				group.HasMax = true
			}
		}
		if group.HasMin || group.HasMax {
			built.Categories = append(built.Categories, group)
		}
	}
	if len(built.Categories) > 0 {
		rl.Addf("Built %d category constraints", len(built.Categories))
	}

	return built
}

// ValidateWeightConstraints reports obviously infeasible combinations before
// a solve is attempted: min above max on any bound, or category minimums
// summing above 100%. It is informational; the orchestrator still relies on
// the solver status for the authoritative feasibility verdict.
func ValidateWeightConstraints(symbols []string, categories map[string]string, wc WeightConstraints) error {
	check := func(label string, b Bound) error {
		if b.Min != nil && b.Max != nil && asFraction(*b.Min) > asFraction(*b.Max) {
			return fmt.Errorf("%s: min %.4f exceeds max %.4f", label, asFraction(*b.Min), asFraction(*b.Max))
		}
		return nil
	}
	if wc.IndividualFundDefault != nil {
		if err := check("default fund bound", *wc.IndividualFundDefault); err != nil {
			return err
		}
	}
	for sym, b := range wc.IndividualFund {
		if err := check("fund "+sym, b); err != nil {
			return err
		}
	}
	if wc.GlobalFund != nil {
		if err := check("global fund bound", *wc.GlobalFund); err != nil {
			return err
		}
	}
	var minSum float64
	for cat, b := range wc.IndividualCategory {
		if err := check("category "+cat, b); err != nil {
			return err
		}
		if b.Min != nil {
			minSum += asFraction(*b.Min)
		}
	}
	if minSum > 1.0 {
		return fmt.Errorf("category minimums sum to %.2f%%, above 100%%", minSum*100)
	}
	return nil
}

// redistributeMinimum enforces the global per-fund minimum after the solve:
// positions below the minimum are zeroed and their mass is redistributed
// proportionally among eligible assets (nonzero, below their effective cap,
// and not inside a category already at its cap). The pass is iterative and
// heuristic rather than a re-solved program, trading optimality for
// guaranteed feasibility and determinism. Returns a new slice; the input is
// not mutated.
func redistributeMinimum(weights []float64, minLimit float64, caps []float64, cats []categoryGroup, rl *RunLog) []float64 {
	w := append([]float64(nil), weights...)
	n := len(w)

	for pass := 0; pass < maxRedistributionPasses; pass++ {
		var removed float64
		for i := 0; i < n; i++ {
			if w[i] > 0 && w[i] < minLimit {
				removed += w[i]
				w[i] = 0
			}
		}
		if removed <= redistributionEpsilon {
			break
		}

		eligible := eligibleForRedistribution(w, caps, cats)
		if len(eligible) == 0 {
			// No asset can absorb more weight: spread equally across all
			// remaining nonzero positions instead of failing.
			nonzero := 0
			for i := 0; i < n; i++ {
				if w[i] > 0 {
					nonzero++
				}
			}
			if nonzero == 0 {
				rl.Warnf("Redistribution removed all positions; falling back to equal weights")
				for i := range w {
					w[i] = 1.0 / float64(n)
				}
				break
			}
			rl.Warnf("No eligible assets for redistribution; distributing %.4f equally across %d positions", removed, nonzero)
			for i := 0; i < n; i++ {
				if w[i] > 0 {
					w[i] += removed / float64(nonzero)
				}
			}
			continue
		}

		distributeProportionally(w, removed, eligible, caps, rl)
	}

	normalizeWeights(w)
	return w
}

// distributeProportionally adds mass to the eligible set in proportion to
// current weights, clipping at each asset's cap and cascading the excess to
// the assets still below cap.
func distributeProportionally(w []float64, mass float64, eligible []int, caps []float64, rl *RunLog) {
	remaining := mass
	pool := eligible

	// Cap-and-cascade is bounded by the pool size: each round either places
	// all remaining mass or saturates at least one asset.
	for round := 0; round < len(eligible)+1 && remaining > redistributionEpsilon && len(pool) > 0; round++ {
		var poolSum float64
		for _, i := range pool {
			poolSum += w[i]
		}

		var next []int
		var placed float64
		for _, i := range pool {
			share := remaining / float64(len(pool))
			if poolSum > 0 {
				share = remaining * w[i] / poolSum
			}
			room := caps[i] - w[i]
			if share >= room {
				placed += room
				w[i] = caps[i]
				continue
			}
			w[i] += share
			placed += share
			next = append(next, i)
		}
		remaining -= placed
		pool = next
	}

	if remaining > redistributionEpsilon {
		// Everyone is at cap; park the remainder equally on nonzero positions
		// so the vector still sums to its mass before renormalization.
		nonzero := 0
		for i := range w {
			if w[i] > 0 {
				nonzero++
			}
		}
		if nonzero > 0 {
			rl.Warnf("All eligible assets at cap; %.4f spread equally across %d positions", remaining, nonzero)
			for i := range w {
				if w[i] > 0 {
					w[i] += remaining / float64(nonzero)
				}
			}
		}
	}
}

func eligibleForRedistribution(w, caps []float64, cats []categoryGroup) []int {
	blocked := make(map[int]bool)
	for _, g := range cats {
		if !g.HasMax {
			continue
		}
		var sum float64
		for _, i := range g.Members {
			sum += w[i]
		}
		if sum >= g.Max-redistributionEpsilon {
			for _, i := range g.Members {
				blocked[i] = true
			}
		}
	}

	var eligible []int
	for i := range w {
		if w[i] > 0 && w[i] < caps[i]-redistributionEpsilon && !blocked[i] {
			eligible = append(eligible, i)
		}
	}
	return eligible
}

func normalizeWeights(w []float64) {
	var sum float64
	for _, v := range w {
		sum += v
	}
	if sum <= 0 {
		return
	}
	for i := range w {
		w[i] /= sum
	}
}

func applyBound(b Bound, lower, upper *float64) {
	if b.Min != nil {
		*lower = asFraction(*b.Min)
	}
	if b.Max != nil {
		*upper = asFraction(*b.Max)
	}
}

// asFraction accepts either a weight fraction in [0, 1] or a percentage and
// returns the fraction.
func asFraction(v float64) float64 {
	if v > 1.0 {
		return v / 100.0
	}
	return v
}
