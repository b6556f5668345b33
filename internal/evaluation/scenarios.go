package evaluation

import (
	"hash/fnv"
	"math"
	"math/rand"
	"sort"

	"github.com/aristath/helmsman/internal/domain"
	"gonum.org/v1/gonum/stat"
)

const (
	mcFactorFloor   = 0.5
	mcFactorCeiling = 2.0
)

// EvaluateSequence scores one sequence under the requested scenario mode and
// returns the full result.
func EvaluateSequence(
	scorer *Scorer,
	ctx *domain.PortfolioContext,
	positions []domain.Position,
	securities map[string]domain.Security,
	seq domain.ActionSequence,
	settings domain.EvaluationSettings,
) domain.EvaluationResult {
	// The base (unshifted) run supplies cash, cost, and end positions; the
	// scenario aggregate replaces the scores only.
	base := Simulate(ctx, positions, seq, settings, nil)
	scores := scorer.Score(base, settings.CostPenaltyFactor)

	switch settings.ScenarioMode {
	case domain.ScenarioStochastic:
		scores = stochasticScores(scorer, ctx, positions, seq, settings)
	case domain.ScenarioMonteCarlo:
		scores = monteCarloScores(scorer, ctx, positions, securities, seq, settings)
	}

	result := domain.EvaluationResult{
		Sequence:             seq,
		SequenceHash:         seq.SequenceHash,
		EndScore:             scores.EndState,
		DiversificationScore: scores.Diversification,
		RiskScore:            scores.Risk,
		TotalScore:           scores.Total,
		ScoreBreakdown:       scores.Breakdown,
		TotalCost:            base.TotalCost,
		CashRequired:         base.CashRequired,
		EndCash:              base.EndCash,
		EndPositions:         base.PositionValues,
		TotalValue:           base.TotalValue,
		Feasible:             base.Feasible,
	}
	if base.Err != nil {
		result.Error = base.Err.Error()
	}
	return result
}

// stochasticScores evaluates the sequence under each global price shift and
// aggregates 0.6·worst + 0.4·mean per score dimension.
func stochasticScores(
	scorer *Scorer,
	ctx *domain.PortfolioContext,
	positions []domain.Position,
	seq domain.ActionSequence,
	settings domain.EvaluationSettings,
) Scores {
	shifts := settings.StochasticShifts
	if len(shifts) == 0 {
		shifts = []float64{-0.10, -0.05, 0, 0.05, 0.10}
	}

	runs := make([]Scores, 0, len(shifts))
	for _, shift := range shifts {
		factors := globalFactors(ctx, positions, seq, 1+shift)
		outcome := Simulate(ctx, positions, seq, settings, factors)
		runs = append(runs, scorer.Score(outcome, settings.CostPenaltyFactor))
	}

	return aggregateScores(runs, func(values []float64) float64 {
		return 0.6*worst(values) + 0.4*stat.Mean(values, nil)
	})
}

// monteCarloScores samples price paths for the symbols in the sequence and
// aggregates 0.4·worst + 0.3·p10 + 0.3·mean. The path generator is seeded so
// evaluation stays reproducible.
func monteCarloScores(
	scorer *Scorer,
	ctx *domain.PortfolioContext,
	positions []domain.Position,
	securities map[string]domain.Security,
	seq domain.ActionSequence,
	settings domain.EvaluationSettings,
) Scores {
	paths := settings.MonteCarloPaths
	if paths < 1 {
		paths = 100
	}
	if paths > 500 {
		paths = 500
	}

	seed := settings.MonteCarloSeed
	if seed == 0 {
		seed = hashSeed(seq.SequenceHash)
	}
	rng := rand.New(rand.NewSource(seed))

	symbols := sequenceSymbols(seq)
	dailyVol := make(map[string]float64, len(symbols))
	for _, symbol := range symbols {
		dailyVol[symbol] = securities[symbol].Volatility / math.Sqrt(252)
	}

	runs := make([]Scores, 0, paths)
	for i := 0; i < paths; i++ {
		factors := make(map[string]float64, len(symbols))
		for _, symbol := range symbols {
			f := math.Exp(dailyVol[symbol] * rng.NormFloat64())
			if f < mcFactorFloor {
				f = mcFactorFloor
			}
			if f > mcFactorCeiling {
				f = mcFactorCeiling
			}
			factors[symbol] = f
		}
		outcome := Simulate(ctx, positions, seq, settings, factors)
		runs = append(runs, scorer.Score(outcome, settings.CostPenaltyFactor))
	}

	return aggregateScores(runs, func(values []float64) float64 {
		return 0.4*worst(values) + 0.3*percentile10(values) + 0.3*stat.Mean(values, nil)
	})
}

// globalFactors applies one factor to every symbol the simulation can touch.
func globalFactors(ctx *domain.PortfolioContext, positions []domain.Position, seq domain.ActionSequence, factor float64) map[string]float64 {
	factors := make(map[string]float64)
	for _, p := range positions {
		factors[p.Symbol] = factor
	}
	for _, a := range seq.Actions {
		factors[a.Symbol] = factor
	}
	return factors
}

func sequenceSymbols(seq domain.ActionSequence) []string {
	seen := make(map[string]bool, len(seq.Actions))
	var symbols []string
	for _, a := range seq.Actions {
		if !seen[a.Symbol] {
			seen[a.Symbol] = true
			symbols = append(symbols, a.Symbol)
		}
	}
	sort.Strings(symbols)
	return symbols
}

func aggregateScores(runs []Scores, combine func([]float64) float64) Scores {
	pick := func(get func(Scores) float64) float64 {
		values := make([]float64, len(runs))
		for i, r := range runs {
			values[i] = get(r)
		}
		return combine(values)
	}

	return Scores{
		EndState:        pick(func(s Scores) float64 { return s.EndState }),
		Diversification: pick(func(s Scores) float64 { return s.Diversification }),
		Risk:            pick(func(s Scores) float64 { return s.Risk }),
		Total:           pick(func(s Scores) float64 { return s.Total }),
		Breakdown:       runs[0].Breakdown,
	}
}

func worst(values []float64) float64 {
	w := values[0]
	for _, v := range values[1:] {
		if v < w {
			w = v
		}
	}
	return w
}

func percentile10(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return stat.Quantile(0.10, stat.Empirical, sorted, nil)
}

func hashSeed(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
