package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// CovarianceMatrix builds the annualised covariance matrix of per-symbol
// daily return series. Series must be equal length and at least two long.
func CovarianceMatrix(returns [][]float64) [][]float64 {
	n := len(returns)
	cov := make([][]float64, n)
	for i := range cov {
		cov[i] = make([]float64, n)
		for j := range cov[i] {
			cov[i][j] = stat.Covariance(returns[i], returns[j], nil) * TradingDaysPerYear
		}
	}
	return cov
}

// CorrelationMatrixFromCovariance normalises a covariance matrix into a
// correlation matrix. Zero-variance rows correlate 0 with everything and 1
// with themselves.
func CorrelationMatrixFromCovariance(cov [][]float64) [][]float64 {
	n := len(cov)
	corr := make([][]float64, n)
	for i := range corr {
		corr[i] = make([]float64, n)
		for j := range corr[i] {
			if i == j {
				corr[i][j] = 1
				continue
			}
			denom := math.Sqrt(cov[i][i] * cov[j][j])
			if denom == 0 {
				corr[i][j] = 0
				continue
			}
			corr[i][j] = cov[i][j] / denom
		}
	}
	return corr
}

// CorrelationToDistance converts correlation ρ into the clustering distance
// d = sqrt(2(1−ρ)) used by hierarchical risk parity.
func CorrelationToDistance(corr float64) float64 {
	d := 2 * (1 - corr)
	if d < 0 {
		d = 0
	}
	return math.Sqrt(d)
}

// InverseVarianceWeights allocates proportionally to 1/σ² per symbol.
// Symbols with zero variance receive the mean inverse variance.
func InverseVarianceWeights(variances []float64) []float64 {
	n := len(variances)
	if n == 0 {
		return nil
	}

	inv := make([]float64, n)
	sum := 0.0
	count := 0
	for i, v := range variances {
		if v > 0 {
			inv[i] = 1 / v
			sum += inv[i]
			count++
		}
	}
	if count == 0 {
		// No usable variances: equal weights.
		weights := make([]float64, n)
		for i := range weights {
			weights[i] = 1 / float64(n)
		}
		return weights
	}
	mean := sum / float64(count)
	for i, v := range variances {
		if v <= 0 {
			inv[i] = mean
			sum += mean
		}
	}

	weights := make([]float64, n)
	for i := range weights {
		weights[i] = inv[i] / sum
	}
	return weights
}
