package patterns

import (
	"github.com/aristath/helmsman/internal/domain"
	"github.com/rs/zerolog"
)

// RebalancePattern pairs an overweight trim with an underweight top-up so
// the sell funds the buy.
type RebalancePattern struct {
	*BasePattern
}

// NewRebalancePattern creates the rebalance pattern.
func NewRebalancePattern(log zerolog.Logger) *RebalancePattern {
	return &RebalancePattern{BasePattern: NewBasePattern(log, "rebalance")}
}

func (p *RebalancePattern) Name() string { return "rebalance" }

func (p *RebalancePattern) Generate(ctx *Context, params map[string]interface{}) []domain.ActionSequence {
	maxPairs := domain.GetIntParam(params, "max_pairs", 3)
	sells := ctx.Opportunities[domain.OpportunityCategoryRebalanceSells]
	buys := ctx.Opportunities[domain.OpportunityCategoryRebalanceBuys]

	var sequences []domain.ActionSequence
	for i, sell := range topN(sells, maxPairs) {
		for j, buy := range topN(buys, maxPairs) {
			if i+j >= maxPairs+1 || sell.Symbol == buy.Symbol {
				continue
			}
			pair := []domain.ActionCandidate{sell, buy}
			if !affordable(ctx, pair) {
				continue
			}
			sequences = append(sequences, NewSequence(p.Name(), pair))
		}
	}
	return sequences
}

// DeepRebalancePattern stacks rebalance actions up to the depth limit,
// sells first so they fund the buys.
type DeepRebalancePattern struct {
	*BasePattern
}

// NewDeepRebalancePattern creates the deep-rebalance pattern.
func NewDeepRebalancePattern(log zerolog.Logger) *DeepRebalancePattern {
	return &DeepRebalancePattern{BasePattern: NewBasePattern(log, "deep_rebalance")}
}

func (p *DeepRebalancePattern) Name() string { return "deep_rebalance" }

func (p *DeepRebalancePattern) Generate(ctx *Context, _ map[string]interface{}) []domain.ActionSequence {
	sells := ctx.Opportunities[domain.OpportunityCategoryRebalanceSells]
	buys := ctx.Opportunities[domain.OpportunityCategoryRebalanceBuys]
	if len(sells)+len(buys) < 2 {
		return nil
	}

	var actions []domain.ActionCandidate
	cash := ctx.Portfolio.AvailableCashEUR
	for _, sell := range sells {
		if len(actions) >= ctx.MaxDepth {
			break
		}
		actions = append(actions, sell)
		cash += sell.ValueEUR
	}
	for _, buy := range buys {
		if len(actions) >= ctx.MaxDepth || buy.ValueEUR > cash {
			continue
		}
		actions = append(actions, buy)
		cash -= buy.ValueEUR
	}

	if len(actions) < 2 || !uniqueSymbols(actions) {
		return nil
	}
	return []domain.ActionSequence{NewSequence(p.Name(), actions)}
}

// AveragingDownPattern emits sequences around averaging-down buys, funding
// them from profit-taking sells when cash is short.
type AveragingDownPattern struct {
	*BasePattern
}

// NewAveragingDownPattern creates the averaging-down pattern.
func NewAveragingDownPattern(log zerolog.Logger) *AveragingDownPattern {
	return &AveragingDownPattern{BasePattern: NewBasePattern(log, "averaging_down")}
}

func (p *AveragingDownPattern) Name() string { return "averaging_down" }

func (p *AveragingDownPattern) Generate(ctx *Context, params map[string]interface{}) []domain.ActionSequence {
	maxBuys := domain.GetIntParam(params, "max_buys", 3)
	buys := topN(ctx.Opportunities[domain.OpportunityCategoryAveragingDown], maxBuys)
	sells := ctx.Opportunities[domain.OpportunityCategoryProfitTaking]

	var sequences []domain.ActionSequence
	for _, buy := range buys {
		if buy.ValueEUR <= ctx.Portfolio.AvailableCashEUR {
			sequences = append(sequences, NewSequence(p.Name(), []domain.ActionCandidate{buy}))
			continue
		}
		// Short on cash: fund from the best profit-taking sell.
		for _, sell := range sells {
			if sell.Symbol == buy.Symbol {
				continue
			}
			pair := []domain.ActionCandidate{sell, buy}
			if affordable(ctx, pair) {
				sequences = append(sequences, NewSequence(p.Name(), pair))
			}
			break
		}
	}
	return sequences
}
