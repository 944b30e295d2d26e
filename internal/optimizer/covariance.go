package optimizer

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const (
	minEigenvalue    = 1e-10
	eigenRepairFloor = 1e-8
)

// estimateCovariance computes a regularized assets x assets covariance matrix
// from the scenario set and reports the shrinkage intensity in [0, 1]
// (0 for the plain sample estimator). All estimators end with an eigen-repair
// pass so the matrix is safe to use in a quadratic form.
func estimateCovariance(scenarios ReturnMatrix, method CovarianceMethod) (*mat.SymDense, float64, error) {
	n := scenarios.NumRows()
	p := scenarios.NumAssets()
	if n < 2 {
		return nil, 0, fmt.Errorf("need at least 2 scenarios for covariance, got %d", n)
	}
	if p == 0 {
		return nil, 0, fmt.Errorf("no assets in scenario matrix")
	}

	var cov *mat.SymDense
	var intensity float64
	switch method {
	case CovSample:
		cov = sampleCovariance(scenarios)
	case CovLedoitWolf:
		cov, intensity = ledoitWolfCovariance(scenarios)
	case CovOAS:
		cov, intensity = oasCovariance(scenarios)
	default:
		return nil, 0, fmt.Errorf("unknown covariance method %q", method)
	}

	repairEigenvalues(cov)
	return cov, intensity, nil
}

// sampleCovariance is the classic unbiased sample covariance.
func sampleCovariance(scenarios ReturnMatrix) *mat.SymDense {
	n := scenarios.NumRows()
	p := scenarios.NumAssets()
	x := mat.NewDense(n, p, nil)
	for i, row := range scenarios.Rows {
		x.SetRow(i, row)
	}
	cov := mat.NewSymDense(p, nil)
	stat.CovarianceMatrix(cov, x, nil)
	return cov
}

// ledoitWolfCovariance blends the (biased) sample covariance toward the
// scaled-identity target, with the data-driven intensity of Ledoit & Wolf
// (2004), "A well-conditioned estimator for large-dimensional covariance
// matrices".
func ledoitWolfCovariance(scenarios ReturnMatrix) (*mat.SymDense, float64) {
	n := scenarios.NumRows()
	p := scenarios.NumAssets()
	centered := centerRows(scenarios)

	// Biased sample covariance S = X'X / n.
	s := biasedCovariance(centered, p)

	// Shrinkage target is mu * I with mu = trace(S) / p.
	var trace float64
	for j := 0; j < p; j++ {
		trace += s.At(j, j)
	}
	muHat := trace / float64(p)

	// delta^2 = ||S - mu I||_F^2 / p
	var delta2 float64
	for i := 0; i < p; i++ {
		for j := 0; j < p; j++ {
			v := s.At(i, j)
			if i == j {
				v -= muHat
			}
			delta2 += v * v
		}
	}
	delta2 /= float64(p)

	// beta_bar^2 = (sum_t ||x_t||^4 - n ||S||_F^2) / (n^2 p)
	var sumNorm4, frobS2 float64
	for _, row := range centered {
		var norm2 float64
		for _, v := range row {
			norm2 += v * v
		}
		sumNorm4 += norm2 * norm2
	}
	for i := 0; i < p; i++ {
		for j := 0; j < p; j++ {
			v := s.At(i, j)
			frobS2 += v * v
		}
	}
	betaBar2 := (sumNorm4 - float64(n)*frobS2) / (float64(n) * float64(n) * float64(p))
	if betaBar2 < 0 {
		betaBar2 = 0
	}

	intensity := 0.0
	if delta2 > 0 {
		beta2 := betaBar2
		if beta2 > delta2 {
			beta2 = delta2
		}
		intensity = beta2 / delta2
	}

	return shrinkTowardIdentity(s, muHat, intensity), intensity
}

// oasCovariance applies the Oracle Approximating Shrinkage estimator of
// Chen, Wiesel, Eldar & Hero (2010) toward the scaled-identity target.
func oasCovariance(scenarios ReturnMatrix) (*mat.SymDense, float64) {
	n := scenarios.NumRows()
	p := scenarios.NumAssets()
	centered := centerRows(scenarios)
	s := biasedCovariance(centered, p)

	var trace, meanSq float64
	for i := 0; i < p; i++ {
		trace += s.At(i, i)
		for j := 0; j < p; j++ {
			v := s.At(i, j)
			meanSq += v * v
		}
	}
	muHat := trace / float64(p)
	meanSq /= float64(p * p)

	num := meanSq + muHat*muHat
	den := (float64(n) + 1.0) * (meanSq - muHat*muHat/float64(p))

	intensity := 1.0
	if den > 0 {
		intensity = num / den
		if intensity > 1 {
			intensity = 1
		}
		if intensity < 0 {
			intensity = 0
		}
	}

	return shrinkTowardIdentity(s, muHat, intensity), intensity
}

// repairEigenvalues guarantees positive definiteness: when the smallest
// eigenvalue falls below 1e-10 the diagonal is lifted so it lands at 1e-8.
func repairEigenvalues(cov *mat.SymDense) {
	var eig mat.EigenSym
	if ok := eig.Factorize(cov, false); !ok {
		// Factorization failure is treated like a degenerate spectrum.
		for i := 0; i < cov.SymmetricDim(); i++ {
			cov.SetSym(i, i, cov.At(i, i)+eigenRepairFloor)
		}
		return
	}
	values := eig.Values(nil)
	minEig := values[0]
	for _, v := range values[1:] {
		if v < minEig {
			minEig = v
		}
	}
	if minEig < minEigenvalue {
		lift := eigenRepairFloor - minEig
		for i := 0; i < cov.SymmetricDim(); i++ {
			cov.SetSym(i, i, cov.At(i, i)+lift)
		}
	}
}

func centerRows(scenarios ReturnMatrix) [][]float64 {
	mu := scenarios.MeanVector()
	out := make([][]float64, scenarios.NumRows())
	for i, row := range scenarios.Rows {
		c := make([]float64, len(row))
		for j := range row {
			c[j] = row[j] - mu[j]
		}
		out[i] = c
	}
	return out
}

func biasedCovariance(centered [][]float64, p int) *mat.SymDense {
	n := len(centered)
	s := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			var sum float64
			for t := 0; t < n; t++ {
				sum += centered[t][i] * centered[t][j]
			}
			s.SetSym(i, j, sum/float64(n))
		}
	}
	return s
}

func shrinkTowardIdentity(s *mat.SymDense, muHat, intensity float64) *mat.SymDense {
	p := s.SymmetricDim()
	out := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			v := (1 - intensity) * s.At(i, j)
			if i == j {
				v += intensity * muHat
			}
			out.SetSym(i, j, v)
		}
	}
	return out
}
