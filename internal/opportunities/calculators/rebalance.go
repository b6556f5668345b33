package calculators

import (
	"fmt"
	"math"
	"sort"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/rs/zerolog"
)

// Weight-gap threshold above which a position counts as over/underweight.
const defaultMinWeightDiff = 0.005

// weightGap is one over/underweight finding.
type weightGap struct {
	symbol  string
	current float64
	target  float64
	diff    float64 // target − current
}

// weightGaps compares current weights against targets and returns the gaps
// exceeding minDiff, sorted by magnitude descending (ties by symbol).
func weightGaps(ctx *domain.OpportunityContext, minDiff float64) []weightGap {
	if len(ctx.TargetWeights) == 0 || ctx.TotalPortfolioValueEUR <= 0 {
		return nil
	}

	current := make(map[string]float64)
	for _, pos := range ctx.Positions {
		price, ok := ctx.CurrentPrices[pos.Symbol]
		if !ok || price <= 0 {
			price = pos.CurrentPrice
		}
		if price <= 0 {
			continue
		}
		current[pos.Symbol] = float64(pos.Quantity) * price / ctx.TotalPortfolioValueEUR
	}

	var gaps []weightGap
	for symbol, target := range ctx.TargetWeights {
		diff := target - current[symbol]
		if math.Abs(diff) > minDiff {
			gaps = append(gaps, weightGap{symbol: symbol, current: current[symbol], target: target, diff: diff})
		}
	}
	// Positions with no target at all are fully overweight.
	for symbol, w := range current {
		if _, ok := ctx.TargetWeights[symbol]; !ok && w > minDiff {
			gaps = append(gaps, weightGap{symbol: symbol, current: w, target: 0, diff: -w})
		}
	}

	sort.Slice(gaps, func(i, j int) bool {
		gi, gj := math.Abs(gaps[i].diff), math.Abs(gaps[j].diff)
		if gi != gj {
			return gi > gj
		}
		return gaps[i].symbol < gaps[j].symbol
	})
	return gaps
}

// RebalanceSellsCalculator trims overweight positions toward target.
type RebalanceSellsCalculator struct {
	*BaseCalculator
}

// NewRebalanceSellsCalculator creates the rebalance-sells calculator.
func NewRebalanceSellsCalculator(log zerolog.Logger) *RebalanceSellsCalculator {
	return &RebalanceSellsCalculator{BaseCalculator: NewBaseCalculator(log, "rebalance_sells")}
}

func (c *RebalanceSellsCalculator) Name() string { return "rebalance_sells" }

func (c *RebalanceSellsCalculator) Category() domain.OpportunityCategory {
	return domain.OpportunityCategoryRebalanceSells
}

func (c *RebalanceSellsCalculator) Calculate(
	ctx *domain.OpportunityContext,
	params map[string]interface{},
) ([]domain.ActionCandidate, error) {
	if !ctx.AllowSell {
		return nil, nil
	}

	minDiff := domain.GetFloatParam(params, "min_weight_diff", defaultMinWeightDiff)
	maxValuePerTrade := domain.GetFloatParam(params, "max_value_per_trade", 500.0)
	maxPositions := domain.GetIntParam(params, "max_positions", 5)

	var candidates []domain.ActionCandidate

	for _, gap := range weightGaps(ctx, minDiff) {
		if gap.diff >= 0 || len(candidates) >= maxPositions {
			continue
		}
		if ctx.IneligibleSymbols[gap.symbol] || ctx.RecentlySold[gap.symbol] {
			continue
		}

		pos, held := ctx.PositionFor(gap.symbol)
		if !held {
			continue
		}
		sec := ctx.StocksBySymbol[gap.symbol]
		if !sec.AllowSell && sec.Symbol != "" {
			continue
		}

		price, ok := ctx.CurrentPrices[gap.symbol]
		if !ok || price <= 0 {
			price = pos.CurrentPrice
		}
		if price <= 0 {
			continue
		}

		targetReduction := math.Min(-gap.diff*ctx.TotalPortfolioValueEUR, maxValuePerTrade)
		quantity := roundToLot(int(targetReduction/price), sec.MinLot)
		if quantity < 1 {
			quantity = 1
		}
		if quantity > pos.Quantity {
			quantity = pos.Quantity
		}

		valueEUR := float64(quantity) * price
		if !ctx.IsWorthwhile(valueEUR) {
			continue
		}
		netValue := valueEUR - ctx.TransactionCost(valueEUR)

		candidates = append(candidates, domain.ActionCandidate{
			Side:     "SELL",
			Symbol:   gap.symbol,
			Name:     sec.Name,
			Quantity: quantity,
			Price:    price,
			ValueEUR: netValue,
			Currency: currencyOr(sec.Currency, pos.Currency),
			Priority: math.Abs(gap.diff) * 0.8,
			Reason: fmt.Sprintf("Target weight %.1f%%, current %.1f%% (overweight by %.1f%%)",
				gap.target*100, gap.current*100, -gap.diff*100),
			Tags: []string{"rebalance", "overweight"},
		})
	}

	c.log.Info().Int("candidates", len(candidates)).Msg("Rebalance-sell opportunities identified")
	return candidates, nil
}

// RebalanceBuysCalculator tops up underweight symbols toward target.
type RebalanceBuysCalculator struct {
	*BaseCalculator
}

// NewRebalanceBuysCalculator creates the rebalance-buys calculator.
func NewRebalanceBuysCalculator(log zerolog.Logger) *RebalanceBuysCalculator {
	return &RebalanceBuysCalculator{BaseCalculator: NewBaseCalculator(log, "rebalance_buys")}
}

func (c *RebalanceBuysCalculator) Name() string { return "rebalance_buys" }

func (c *RebalanceBuysCalculator) Category() domain.OpportunityCategory {
	return domain.OpportunityCategoryRebalanceBuys
}

func (c *RebalanceBuysCalculator) Calculate(
	ctx *domain.OpportunityContext,
	params map[string]interface{},
) ([]domain.ActionCandidate, error) {
	if !ctx.AllowBuy || ctx.AvailableCashEUR <= 0 {
		return nil, nil
	}

	minDiff := domain.GetFloatParam(params, "min_weight_diff", defaultMinWeightDiff)
	maxValuePerTrade := domain.GetFloatParam(params, "max_value_per_trade", 500.0)
	maxPositions := domain.GetIntParam(params, "max_positions", 5)

	var candidates []domain.ActionCandidate

	for _, gap := range weightGaps(ctx, minDiff) {
		if gap.diff <= 0 || len(candidates) >= maxPositions {
			continue
		}
		if ctx.RecentlyBought[gap.symbol] {
			continue
		}

		sec, ok := ctx.StocksBySymbol[gap.symbol]
		if !ok || !sec.AllowBuy {
			continue
		}

		price, ok := ctx.CurrentPrices[gap.symbol]
		if !ok || price <= 0 {
			price = sec.Price
		}
		if price <= 0 {
			continue
		}

		targetValue := math.Min(gap.diff*ctx.TotalPortfolioValueEUR, maxValuePerTrade)
		targetValue = math.Min(targetValue, ctx.AvailableCashEUR)
		quantity := roundToLot(int(targetValue/price), sec.MinLot)
		if quantity < 1 {
			continue
		}

		valueEUR := float64(quantity) * price
		if !ctx.IsWorthwhile(valueEUR) {
			continue
		}
		totalCost := valueEUR + ctx.TransactionCost(valueEUR)
		if totalCost > ctx.AvailableCashEUR {
			continue
		}

		priority := gap.diff * 0.8
		if sec.QualityScore >= 0.8 {
			priority *= 1.15
		}

		candidates = append(candidates, domain.ActionCandidate{
			Side:     "BUY",
			Symbol:   gap.symbol,
			Name:     sec.Name,
			Quantity: quantity,
			Price:    price,
			ValueEUR: totalCost,
			Currency: currencyOr(sec.Currency, "EUR"),
			Priority: priority,
			Reason: fmt.Sprintf("Target weight %.1f%%, current %.1f%% (underweight by %.1f%%)",
				gap.target*100, gap.current*100, gap.diff*100),
			Tags: []string{"rebalance", "underweight"},
		})
	}

	c.log.Info().Int("candidates", len(candidates)).Msg("Rebalance-buy opportunities identified")
	return candidates, nil
}
