package evaluation

import (
	"math"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/aristath/helmsman/pkg/formulas"
)

// End-state score weights. Diversification dominates; the rest reward
// stability, fundamentals, income, and long-horizon growth.
const (
	weightDiversification = 0.35
	weightStability       = 0.20
	weightQuality         = 0.20
	weightDividend        = 0.10
	weightGrowth          = 0.15

	// Diversification sub-score weights.
	weightCountryGap  = 0.40
	weightIndustryGap = 0.30
	weightAveraging   = 0.30

	// A mean target deviation of 30pp scores zero.
	deviationScale = 0.30

	// Normalisation anchors for the metric sub-scores.
	volatilityCeiling = 0.40
	dividendAnchor    = 0.04
	growthAnchor      = 0.15

	// Per-symbol stability composite: volatility, drawdown, and
	// risk-adjusted-return components from price history.
	stabilityWeightVol      = 0.40
	stabilityWeightDrawdown = 0.30
	stabilityWeightRatio    = 0.30
	riskRatioAnchor         = 2.0
	minHistoryForStability  = 30
)

// Scorer computes the four scores of an end state. Per-symbol metrics come
// from the securities universe, fetched once per request; per-symbol
// stability is precomputed here so scoring a sequence stays O(positions).
type Scorer struct {
	ctx        *domain.PortfolioContext
	securities map[string]domain.Security
	stability  map[string]float64
}

// NewScorer builds a scorer for one evaluation request. priceHistory may be
// nil; symbols without enough history fall back to the headline volatility
// figure on the security.
func NewScorer(ctx *domain.PortfolioContext, securities []domain.Security, priceHistory map[string][]float64) *Scorer {
	bySymbol := make(map[string]domain.Security, len(securities))
	stability := make(map[string]float64, len(securities))
	for _, s := range securities {
		bySymbol[s.Symbol] = s
		stability[s.Symbol] = symbolStability(s, priceHistory[s.Symbol])
	}
	return &Scorer{ctx: ctx, securities: bySymbol, stability: stability}
}

// symbolStability composites annualised volatility, maximum drawdown, and the
// mean of Sharpe and Sortino into one [0,1] figure. Short or missing history
// degrades to the volatility-only mapping.
func symbolStability(sec domain.Security, prices []float64) float64 {
	if len(prices) < minHistoryForStability {
		return 1 - math.Min(1, sec.Volatility/volatilityCeiling)
	}

	returns := formulas.CalculateReturns(prices)
	volScore := 1 - math.Min(1, formulas.AnnualizedVolatility(returns)/volatilityCeiling)

	// MaxDrawdown is ≤ 0; a 100% drawdown scores 0.
	drawdownScore := clamp01(1 + formulas.MaxDrawdown(prices))

	ratio := (formulas.SharpeRatio(returns) + formulas.SortinoRatio(returns)) / 2
	ratioScore := clamp01(ratio / riskRatioAnchor)

	return stabilityWeightVol*volScore +
		stabilityWeightDrawdown*drawdownScore +
		stabilityWeightRatio*ratioScore
}

// Scores holds one scored end state.
type Scores struct {
	EndState        float64
	Diversification float64
	Risk            float64
	Total           float64
	Breakdown       map[string]float64
}

// Score evaluates a simulated end state. The cost penalty subtracts
// costPenaltyFactor · totalCost / totalValue from the end-state score.
func (s *Scorer) Score(outcome SimulationOutcome, costPenaltyFactor float64) Scores {
	invested := 0.0
	for _, v := range outcome.PositionValues {
		invested += v
	}

	div, divBreakdown := s.diversification(outcome, invested)
	stability := s.stabilityScore(outcome, invested)
	quality := s.weightedMetric(outcome, invested, func(sec domain.Security) float64 {
		return clamp01(sec.QualityScore)
	})
	dividend := s.weightedMetric(outcome, invested, func(sec domain.Security) float64 {
		return clamp01(sec.DividendYield / dividendAnchor)
	})
	growth := s.weightedMetric(outcome, invested, func(sec domain.Security) float64 {
		return clamp01(sec.HistoricalCAGR / growthAnchor)
	})

	end := weightDiversification*div +
		weightStability*stability +
		weightQuality*quality +
		weightDividend*dividend +
		weightGrowth*growth

	risk := 0.6*stability + 0.4*(1-s.concentration(outcome, invested))

	total := end
	if costPenaltyFactor > 0 && outcome.TotalValue > 0 {
		total -= costPenaltyFactor * outcome.TotalCost / outcome.TotalValue
	}
	if total < 0 {
		total = 0
	}

	breakdown := map[string]float64{
		"diversification": div,
		"stability":       stability,
		"quality":         quality,
		"dividend":        dividend,
		"growth":          growth,
		"risk":            risk,
	}
	for k, v := range divBreakdown {
		breakdown[k] = v
	}

	return Scores{
		EndState:        end,
		Diversification: div,
		Risk:            risk,
		Total:           total,
		Breakdown:       breakdown,
	}
}

// diversification blends the country gap, industry gap, and averaging
// sub-scores 40/30/30.
func (s *Scorer) diversification(outcome SimulationOutcome, invested float64) (float64, map[string]float64) {
	country := s.gapScore(outcome, invested, s.ctx.CountryTargets, s.ctx.CountryGroupOf)
	industry := s.gapScore(outcome, invested, s.ctx.IndustryTargets, s.ctx.IndustryGroupOf)
	averaging := s.averagingScore(outcome)

	div := weightCountryGap*country + weightIndustryGap*industry + weightAveraging*averaging
	return div, map[string]float64{
		"country_gap":  country,
		"industry_gap": industry,
		"averaging":    averaging,
	}
}

// gapScore measures how close the end-state group weights sit to their
// targets: 1 at zero deviation, 0 at a mean deviation of deviationScale.
func (s *Scorer) gapScore(outcome SimulationOutcome, invested float64, targets map[string]float64, groupOf func(string) string) float64 {
	if len(targets) == 0 || invested <= 0 {
		return 0.5
	}

	weights := make(map[string]float64)
	for symbol, value := range outcome.PositionValues {
		weights[groupOf(symbol)] += value / invested
	}

	deviation := 0.0
	for group, target := range targets {
		deviation += math.Abs(weights[group] - target)
	}
	deviation /= float64(len(targets))

	return 1 - math.Min(1, deviation/deviationScale)
}

// averagingScore rewards executed buys of quality names trading below their
// average cost. With no buys the sub-score is neutral.
func (s *Scorer) averagingScore(outcome SimulationOutcome) float64 {
	if len(outcome.ExecutedBuys) == 0 {
		return 0.5
	}

	sum := 0.0
	for _, buy := range outcome.ExecutedBuys {
		avgCost := s.ctx.SymbolAvgCost[buy.Symbol]
		quality := s.securities[buy.Symbol].QualityScore
		if avgCost > 0 && buy.Price < avgCost && quality > 0 {
			sum += clamp01(quality)
		} else {
			sum += 0.5
		}
	}
	return sum / float64(len(outcome.ExecutedBuys))
}

// stabilityScore is the value-weighted mean of the per-symbol stability
// composites.
func (s *Scorer) stabilityScore(outcome SimulationOutcome, invested float64) float64 {
	if invested <= 0 {
		return 0
	}
	sum := 0.0
	for symbol, value := range outcome.PositionValues {
		sum += s.stability[symbol] * value / invested
	}
	return clamp01(sum)
}

// concentration is the largest single-position weight, in [0,1].
func (s *Scorer) concentration(outcome SimulationOutcome, invested float64) float64 {
	if invested <= 0 {
		return 0
	}
	maxWeight := 0.0
	for _, value := range outcome.PositionValues {
		if w := value / invested; w > maxWeight {
			maxWeight = w
		}
	}
	return clamp01(maxWeight)
}

func (s *Scorer) weightedMetric(outcome SimulationOutcome, invested float64, metric func(domain.Security) float64) float64 {
	return clamp01(s.weightedRaw(outcome, invested, metric))
}

func (s *Scorer) weightedRaw(outcome SimulationOutcome, invested float64, metric func(domain.Security) float64) float64 {
	if invested <= 0 {
		return 0
	}
	sum := 0.0
	for symbol, value := range outcome.PositionValues {
		sum += metric(s.securities[symbol]) * value / invested
	}
	return sum
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
