package optimizer

import (
	"math"
	"math/rand"
)

const kmeansMaxIterations = 100

// defaultTargetScenarios derives the reduction target when none is
// configured: clamp(2 * assets, minScenarios, min(rows/3, maxScenarios)).
func defaultTargetScenarios(rows, assets, minScenarios, maxScenarios int) int {
	target := 2 * assets
	upper := rows / 3
	if maxScenarios < upper {
		upper = maxScenarios
	}
	if target > upper {
		target = upper
	}
	if target < minScenarios {
		target = minScenarios
	}
	return target
}

// reduceScenarios compresses the training returns into a representative
// scenario set. With ReduceNone, or when the target is not smaller than the
// input, the input is returned unchanged.
func reduceScenarios(train ReturnMatrix, target int, method ReductionMethod, seed int64, rl *RunLog) ReturnMatrix {
	rows := train.NumRows()
	if method == ReduceNone || target >= rows || target <= 0 {
		rl.Addf("Scenario reduction skipped: keeping all %d observations", rows)
		return train
	}

	var reduced ReturnMatrix
	switch method {
	case ReduceFastForward:
		reduced = fastForwardSelect(train, target)
	case ReduceKMeans:
		reduced = kmeansReduce(train, target, seed)
	default:
		rl.Warnf("Unknown reduction method %q: keeping all %d observations", method, rows)
		return train
	}

	rl.Addf("Reduced %d observations to %d scenarios via %s", rows, reduced.NumRows(), method)
	return reduced
}

// fastForwardSelect performs greedy max-min diversity selection: seed with
// the observation closest to the sample mean, then repeatedly add the
// observation whose minimum distance to the selected set is largest.
// Deterministic; quadratic in the pool size, acceptable for capped targets.
func fastForwardSelect(train ReturnMatrix, target int) ReturnMatrix {
	rows := train.NumRows()
	mu := train.MeanVector()

	seed, best := 0, math.Inf(1)
	for i := 0; i < rows; i++ {
		d := euclidean(train.Rows[i], mu)
		if d < best {
			best = d
			seed = i
		}
	}

	selected := make([]int, 0, target)
	selected = append(selected, seed)

	// minDist[i] tracks each pool member's distance to the selected set.
	minDist := make([]float64, rows)
	for i := 0; i < rows; i++ {
		minDist[i] = euclidean(train.Rows[i], train.Rows[seed])
	}
	minDist[seed] = -1 // mark selected

	for len(selected) < target {
		next, far := -1, -1.0
		for i := 0; i < rows; i++ {
			if minDist[i] > far {
				far = minDist[i]
				next = i
			}
		}
		if next < 0 {
			break
		}
		selected = append(selected, next)
		for i := 0; i < rows; i++ {
			if minDist[i] < 0 {
				continue
			}
			if d := euclidean(train.Rows[i], train.Rows[next]); d < minDist[i] {
				minDist[i] = d
			}
		}
		minDist[next] = -1
	}

	out := ReturnMatrix{Symbols: train.Symbols, Rows: make([][]float64, 0, len(selected))}
	for _, idx := range selected {
		out.Rows = append(out.Rows, train.Rows[idx])
		if len(train.Dates) == rows {
			out.Dates = append(out.Dates, train.Dates[idx])
		}
	}
	return out
}

// kmeansReduce clusters the observations with Lloyd's algorithm (seeded RNG
// for reproducibility) and returns the centroids as synthetic scenarios.
func kmeansReduce(train ReturnMatrix, k int, seed int64) ReturnMatrix {
	rows := train.NumRows()
	cols := train.NumAssets()
	rng := rand.New(rand.NewSource(seed))

	// Initialize centroids from distinct random observations.
	perm := rng.Perm(rows)
	centroids := make([][]float64, k)
	for c := 0; c < k; c++ {
		centroids[c] = append([]float64(nil), train.Rows[perm[c]]...)
	}

	assign := make([]int, rows)
	for iter := 0; iter < kmeansMaxIterations; iter++ {
		changed := false
		for i := 0; i < rows; i++ {
			best, bestDist := 0, math.Inf(1)
			for c := 0; c < k; c++ {
				if d := euclidean(train.Rows[i], centroids[c]); d < bestDist {
					bestDist = d
					best = c
				}
			}
			if assign[i] != best {
				assign[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		counts := make([]int, k)
		for c := range centroids {
			for j := range centroids[c] {
				centroids[c][j] = 0
			}
		}
		for i := 0; i < rows; i++ {
			c := assign[i]
			counts[c]++
			for j := 0; j < cols; j++ {
				centroids[c][j] += train.Rows[i][j]
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				// Re-seed an empty cluster with a random observation.
				copy(centroids[c], train.Rows[rng.Intn(rows)])
				continue
			}
			for j := 0; j < cols; j++ {
				centroids[c][j] /= float64(counts[c])
			}
		}
	}

	return ReturnMatrix{Symbols: train.Symbols, Rows: centroids}
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
