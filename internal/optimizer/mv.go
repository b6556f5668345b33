package optimizer

import (
	"fmt"
	"math"

	"github.com/aristath/helmsman/internal/domain"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// MV strategies.
const (
	StrategyEfficientReturn = "efficient_return"
	StrategyMaxSharpe       = "max_sharpe"
	StrategyMinVolatility   = "min_volatility"
)

const penaltyWeight = 1000.0

// MVOptimizer solves the mean-variance problem with a penalty method:
// bounds by projection, the sum-to-one and group constraints as quadratic
// penalties.
type MVOptimizer struct{}

// NewMVOptimizer creates a mean-variance optimizer.
func NewMVOptimizer() *MVOptimizer {
	return &MVOptimizer{}
}

// Optimize solves for weights under the chosen strategy. targetReturn is
// only consulted for efficient_return.
func (mvo *MVOptimizer) Optimize(
	expectedReturns map[string]float64,
	covMatrix [][]float64,
	symbols []string,
	bounds [][2]float64,
	groups []GroupConstraint,
	strategy string,
	targetReturn float64,
) (map[string]float64, error) {
	n := len(symbols)
	if n < 2 {
		return nil, fmt.Errorf("%w: %d symbols", domain.ErrInsufficientData, n)
	}
	if len(covMatrix) != n {
		return nil, fmt.Errorf("%w: covariance size %d for %d symbols", domain.ErrInsufficientData, len(covMatrix), n)
	}

	mu := make([]float64, n)
	for i, symbol := range symbols {
		ret, ok := expectedReturns[symbol]
		if !ok {
			return nil, fmt.Errorf("%w: missing expected return for %s", domain.ErrInsufficientData, symbol)
		}
		mu[i] = ret
	}

	sigma := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			sigma.Set(i, j, covMatrix[i][j])
		}
	}

	groupIndex := indexGroups(symbols, groups)

	objective := func(x []float64) float64 {
		xp := projectToBounds(x, bounds)
		ret, variance := portfolioMoments(xp, mu, sigma)

		var obj float64
		switch strategy {
		case StrategyEfficientReturn:
			// maximise return − λ·variance subject to return = target
			obj = -(ret - variance)
			obj += penaltyWeight * (ret - targetReturn) * (ret - targetReturn)
		case StrategyMaxSharpe:
			std := math.Sqrt(math.Max(variance, 1e-10))
			obj = -ret / std
		case StrategyMinVolatility:
			obj = variance
		default:
			obj = variance
		}

		sum := 0.0
		for _, w := range xp {
			sum += w
		}
		obj += penaltyWeight * (sum - 1) * (sum - 1)
		obj += groupPenalty(xp, groupIndex)
		return obj
	}

	problem := optimize.Problem{Func: objective}

	initial := make([]float64, n)
	for i := range initial {
		initial[i] = 1 / float64(n)
	}

	result, err := optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.NelderMead{})
	if err != nil || !converged(result.Status) {
		result, err = optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.BFGS{})
		if err != nil {
			return nil, fmt.Errorf("%w: %s solver: %v", domain.ErrOptimizerInfeasible, strategy, err)
		}
		if !converged(result.Status) {
			return nil, fmt.Errorf("%w: %s did not converge (status=%v)", domain.ErrOptimizerInfeasible, strategy, result.Status)
		}
	}

	xFinal := projectToBounds(result.X, bounds)
	weights := make(map[string]float64, n)
	sum := 0.0
	for _, w := range xFinal {
		sum += math.Max(0, w)
	}
	if sum <= 0 {
		return nil, fmt.Errorf("%w: %s produced a zero portfolio", domain.ErrOptimizerInfeasible, strategy)
	}
	for i, symbol := range symbols {
		weights[symbol] = math.Max(0, xFinal[i]) / sum
	}
	return weights, nil
}

func converged(status optimize.Status) bool {
	switch status {
	case optimize.Success, optimize.GradientThreshold, optimize.FunctionConvergence, optimize.StepConvergence:
		return true
	}
	return false
}

func portfolioMoments(x, mu []float64, sigma *mat.Dense) (ret, variance float64) {
	n := len(x)
	for i := 0; i < n; i++ {
		ret += mu[i] * x[i]
		for j := 0; j < n; j++ {
			variance += x[i] * x[j] * sigma.At(i, j)
		}
	}
	return ret, variance
}

func projectToBounds(x []float64, bounds [][2]float64) []float64 {
	if len(bounds) == 0 {
		return x
	}
	proj := make([]float64, len(x))
	for i := range x {
		proj[i] = math.Max(bounds[i][0], math.Min(bounds[i][1], x[i]))
	}
	return proj
}

// indexedGroup caches member indices so penalties avoid repeated lookups.
type indexedGroup struct {
	members []int
	lower   float64
	upper   float64
}

func indexGroups(symbols []string, groups []GroupConstraint) []indexedGroup {
	position := make(map[string]int, len(symbols))
	for i, s := range symbols {
		position[s] = i
	}
	indexed := make([]indexedGroup, 0, len(groups))
	for _, g := range groups {
		ig := indexedGroup{lower: g.Lower, upper: g.Upper}
		for _, s := range g.Symbols {
			if i, ok := position[s]; ok {
				ig.members = append(ig.members, i)
			}
		}
		if len(ig.members) > 0 {
			indexed = append(indexed, ig)
		}
	}
	return indexed
}

func groupPenalty(x []float64, groups []indexedGroup) float64 {
	var penalty float64
	for _, g := range groups {
		weight := 0.0
		for _, i := range g.members {
			weight += x[i]
		}
		if weight < g.lower {
			penalty += penaltyWeight * (g.lower - weight) * (g.lower - weight)
		}
		if weight > g.upper {
			penalty += penaltyWeight * (weight - g.upper) * (weight - g.upper)
		}
	}
	return penalty
}
