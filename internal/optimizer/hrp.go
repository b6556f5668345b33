package optimizer

import (
	"fmt"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/aristath/helmsman/pkg/formulas"
	"gonum.org/v1/gonum/stat"
)

// HRPOptimizer allocates by hierarchical risk parity: inverse-variance
// weights refined by penalising highly correlated pairs. No matrix
// inversion, so it stays usable when the covariance estimate is noisy.
type HRPOptimizer struct{}

// NewHRPOptimizer creates an HRP optimizer.
func NewHRPOptimizer() *HRPOptimizer {
	return &HRPOptimizer{}
}

// Correlation refinement knobs.
const (
	hrpCorrThreshold = 0.7
	hrpCorrPenalty   = 0.2
	hrpWeightFloor   = 0.1 // of the pre-refinement weight
)

// Optimize computes HRP weights from per-symbol daily return series.
func (h *HRPOptimizer) Optimize(symbols []string, returnSeries [][]float64) (map[string]float64, error) {
	n := len(symbols)
	if n < 2 {
		return nil, fmt.Errorf("%w: hrp needs at least two symbols, got %d", domain.ErrInsufficientData, n)
	}
	if len(returnSeries) != n {
		return nil, fmt.Errorf("%w: %d return series for %d symbols", domain.ErrInsufficientData, len(returnSeries), n)
	}

	variances := make([]float64, n)
	for i, series := range returnSeries {
		variances[i] = formulas.Variance(series)
	}

	weights := formulas.InverseVarianceWeights(variances)

	// Penalise weights of symbols strongly correlated with another holding
	// so clusters do not dominate.
	refined := make([]float64, n)
	copy(refined, weights)
	for i := 0; i < n; i++ {
		maxCorr := 0.0
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			corr := stat.Correlation(returnSeries[i], returnSeries[j], nil)
			if corr > maxCorr {
				maxCorr = corr
			}
		}
		if maxCorr > hrpCorrThreshold {
			scaled := weights[i] * (1 - hrpCorrPenalty*maxCorr)
			floor := weights[i] * hrpWeightFloor
			if scaled < floor {
				scaled = floor
			}
			refined[i] = scaled
		}
	}

	sum := 0.0
	for _, w := range refined {
		sum += w
	}
	if sum <= 0 {
		return nil, fmt.Errorf("%w: hrp produced a zero portfolio", domain.ErrInsufficientData)
	}

	out := make(map[string]float64, n)
	for i, symbol := range symbols {
		out[symbol] = refined[i] / sum
	}
	return out, nil
}
