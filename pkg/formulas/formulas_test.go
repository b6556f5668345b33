package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeanAndStdDev(t *testing.T) {
	values := []float64{1, 2, 3}
	assert.InDelta(t, 2.0, Mean(values), 1e-9)
	assert.InDelta(t, 1.0, Variance(values), 1e-9)
	assert.InDelta(t, 1.0, StdDev(values), 1e-9)

	assert.Zero(t, Mean(nil))
	assert.Zero(t, Variance([]float64{5}))
}

func TestCalculateReturns(t *testing.T) {
	returns := CalculateReturns([]float64{100, 110, 99})
	require.Len(t, returns, 2)
	assert.InDelta(t, 0.10, returns[0], 1e-9)
	assert.InDelta(t, -0.10, returns[1], 1e-9)

	assert.Nil(t, CalculateReturns([]float64{100}))

	// Non-positive prices are skipped rather than dividing by zero.
	returns = CalculateReturns([]float64{100, 0, 50})
	require.Len(t, returns, 1)
	assert.InDelta(t, -1.0, returns[0], 1e-9)
}

func TestAnnualizedVolatility(t *testing.T) {
	daily := []float64{0.10, -0.10}
	expected := math.Sqrt(0.02) * math.Sqrt(252)
	assert.InDelta(t, expected, AnnualizedVolatility(daily), 1e-9)
}

func TestAnnualizedReturn(t *testing.T) {
	// Short series: simple scaling.
	assert.InDelta(t, 2.52, AnnualizedReturn([]float64{0.01, 0.01}), 1e-9)

	// Longer series: geometric compounding.
	daily := []float64{0.01, 0.01, 0.01}
	expected := math.Pow(1.01, 252) - 1
	assert.InDelta(t, expected, AnnualizedReturn(daily), 1e-6)

	// A total wipeout annualises to −100%.
	assert.Equal(t, -1.0, AnnualizedReturn([]float64{-0.5, -0.6, -1.0}))
	assert.Zero(t, AnnualizedReturn(nil))
}

func TestSharpeAndSortino(t *testing.T) {
	// Constant returns: zero volatility, ratio defined as 0.
	assert.Zero(t, SharpeRatio([]float64{0.01, 0.01}))

	// No losing days: Sortino has no downside deviation.
	assert.Zero(t, SortinoRatio([]float64{0.01, 0.02, 0.01}))

	mixed := []float64{0.02, -0.01, 0.03, -0.02, 0.01}
	assert.NotZero(t, SharpeRatio(mixed))
	assert.NotZero(t, SortinoRatio(mixed))
	// Sortino ignores upside variance, so it never punishes harder than Sharpe
	// on a net-positive series.
	assert.Greater(t, SortinoRatio(mixed), SharpeRatio(mixed))
}

func TestMaxDrawdown(t *testing.T) {
	assert.InDelta(t, -0.25, MaxDrawdown([]float64{100, 120, 90, 110}), 1e-9)
	assert.Zero(t, MaxDrawdown([]float64{100, 110, 120}))
	assert.Zero(t, MaxDrawdown(nil))
}

func TestCovarianceMatrix(t *testing.T) {
	a := []float64{0.01, -0.01, 0.01, -0.01}
	cov := CovarianceMatrix([][]float64{a, a})

	expectedVar := Variance(a) * 252
	assert.InDelta(t, expectedVar, cov[0][0], 1e-12)
	assert.InDelta(t, expectedVar, cov[0][1], 1e-12)
	assert.InDelta(t, cov[0][1], cov[1][0], 1e-12)
}

func TestCorrelationMatrixFromCovariance(t *testing.T) {
	a := []float64{0.01, -0.01, 0.02, -0.02}
	b := []float64{-0.01, 0.01, -0.02, 0.02}
	corr := CorrelationMatrixFromCovariance(CovarianceMatrix([][]float64{a, b}))

	assert.Equal(t, 1.0, corr[0][0])
	assert.Equal(t, 1.0, corr[1][1])
	assert.InDelta(t, -1.0, corr[0][1], 1e-9)

	// Zero-variance series correlates 0 with everything else.
	flat := []float64{0, 0, 0, 0}
	corr = CorrelationMatrixFromCovariance(CovarianceMatrix([][]float64{a, flat}))
	assert.Zero(t, corr[0][1])
	assert.Equal(t, 1.0, corr[1][1])
}

func TestCorrelationToDistance(t *testing.T) {
	assert.InDelta(t, 0.0, CorrelationToDistance(1), 1e-9)
	assert.InDelta(t, math.Sqrt(2), CorrelationToDistance(0), 1e-9)
	assert.InDelta(t, 2.0, CorrelationToDistance(-1), 1e-9)
	// Floating error past ρ=1 must not produce NaN.
	assert.False(t, math.IsNaN(CorrelationToDistance(1.0000001)))
}

func TestInverseVarianceWeights(t *testing.T) {
	weights := InverseVarianceWeights([]float64{0.01, 0.02})
	require.Len(t, weights, 2)
	assert.InDelta(t, 2.0/3.0, weights[0], 1e-9)
	assert.InDelta(t, 1.0/3.0, weights[1], 1e-9)

	// A zero-variance symbol gets the mean inverse variance.
	weights = InverseVarianceWeights([]float64{0, 0.01})
	assert.InDelta(t, 0.5, weights[0], 1e-9)
	assert.InDelta(t, 0.5, weights[1], 1e-9)

	// All-zero variances degrade to equal weights.
	weights = InverseVarianceWeights([]float64{0, 0, 0})
	for _, w := range weights {
		assert.InDelta(t, 1.0/3.0, w, 1e-9)
	}

	assert.Nil(t, InverseVarianceWeights(nil))
}
