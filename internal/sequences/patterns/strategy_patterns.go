package patterns

import (
	"sort"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/rs/zerolog"
)

// MixedStrategyPattern pairs the best sell with the best buy across all
// categories, then widens to second-best combinations.
type MixedStrategyPattern struct {
	*BasePattern
}

// NewMixedStrategyPattern creates the mixed-strategy pattern.
func NewMixedStrategyPattern(log zerolog.Logger) *MixedStrategyPattern {
	return &MixedStrategyPattern{BasePattern: NewBasePattern(log, "mixed_strategy")}
}

func (p *MixedStrategyPattern) Name() string { return "mixed_strategy" }

func (p *MixedStrategyPattern) Generate(ctx *Context, params map[string]interface{}) []domain.ActionSequence {
	width := domain.GetIntParam(params, "width", 2)
	sells := topN(allSells(ctx), width)
	buys := topN(allBuys(ctx), width)

	var sequences []domain.ActionSequence
	for _, sell := range sells {
		for _, buy := range buys {
			if sell.Symbol == buy.Symbol {
				continue
			}
			pair := []domain.ActionCandidate{sell, buy}
			if affordable(ctx, pair) {
				sequences = append(sequences, NewSequence(p.Name(), pair))
			}
		}
	}
	return sequences
}

// CostOptimizedPattern prefers fewer, larger trades: it ranks candidates by
// value per fee unit and emits the leanest sequences.
type CostOptimizedPattern struct {
	*BasePattern
}

// NewCostOptimizedPattern creates the cost-optimized pattern.
func NewCostOptimizedPattern(log zerolog.Logger) *CostOptimizedPattern {
	return &CostOptimizedPattern{BasePattern: NewBasePattern(log, "cost_optimized")}
}

func (p *CostOptimizedPattern) Name() string { return "cost_optimized" }

func (p *CostOptimizedPattern) Generate(ctx *Context, params map[string]interface{}) []domain.ActionSequence {
	maxActions := domain.GetIntParam(params, "max_actions", 2)

	var all []domain.ActionCandidate
	all = append(all, allSells(ctx)...)
	all = append(all, allBuys(ctx)...)

	// Fee efficiency: EUR moved per EUR of fees. Larger trades amortise the
	// fixed fee better.
	feeFor := func(v float64) float64 {
		return ctx.Portfolio.TransactionCost(v)
	}
	sort.SliceStable(all, func(i, j int) bool {
		ri := all[i].ValueEUR / feeFor(all[i].ValueEUR)
		rj := all[j].ValueEUR / feeFor(all[j].ValueEUR)
		if ri != rj {
			return ri > rj
		}
		return all[i].Symbol < all[j].Symbol
	})

	var actions []domain.ActionCandidate
	for _, a := range all {
		if len(actions) >= maxActions {
			break
		}
		candidate := append(append([]domain.ActionCandidate{}, actions...), a)
		if !uniqueSymbols(candidate) || !affordable(ctx, candidate) {
			continue
		}
		actions = candidate
	}

	if len(actions) == 0 {
		return nil
	}
	return []domain.ActionSequence{NewSequence(p.Name(), actions)}
}

// AdaptivePattern picks its shape from the portfolio state: cash-poor
// portfolios lead with sells, cash-rich ones go straight to buys.
type AdaptivePattern struct {
	*BasePattern
}

// NewAdaptivePattern creates the adaptive pattern.
func NewAdaptivePattern(log zerolog.Logger) *AdaptivePattern {
	return &AdaptivePattern{BasePattern: NewBasePattern(log, "adaptive")}
}

func (p *AdaptivePattern) Name() string { return "adaptive" }

func (p *AdaptivePattern) Generate(ctx *Context, params map[string]interface{}) []domain.ActionSequence {
	cashRichThreshold := domain.GetFloatParam(params, "cash_rich_threshold", 0.10)

	total := ctx.Portfolio.TotalPortfolioValueEUR
	cashRatio := 0.0
	if total > 0 {
		cashRatio = ctx.Portfolio.AvailableCashEUR / total
	}

	var actions []domain.ActionCandidate
	cash := ctx.Portfolio.AvailableCashEUR

	if cashRatio < cashRichThreshold {
		for _, sell := range topN(allSells(ctx), ctx.MaxDepth/2+1) {
			if len(actions) >= ctx.MaxDepth {
				break
			}
			actions = append(actions, sell)
			cash += sell.ValueEUR
		}
	}
	for _, buy := range allBuys(ctx) {
		if len(actions) >= ctx.MaxDepth || buy.ValueEUR > cash {
			continue
		}
		candidate := append(append([]domain.ActionCandidate{}, actions...), buy)
		if !uniqueSymbols(candidate) {
			continue
		}
		actions = candidate
		cash -= buy.ValueEUR
	}

	if len(actions) == 0 {
		return nil
	}
	return []domain.ActionSequence{NewSequence(p.Name(), actions)}
}
