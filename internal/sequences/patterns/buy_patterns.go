package patterns

import (
	"github.com/aristath/helmsman/internal/domain"
	"github.com/rs/zerolog"
)

// DirectBuyPattern emits single-buy sequences from the top buy candidates.
type DirectBuyPattern struct {
	*BasePattern
}

// NewDirectBuyPattern creates the direct-buy pattern.
func NewDirectBuyPattern(log zerolog.Logger) *DirectBuyPattern {
	return &DirectBuyPattern{BasePattern: NewBasePattern(log, "direct_buy")}
}

func (p *DirectBuyPattern) Name() string { return "direct_buy" }

func (p *DirectBuyPattern) Generate(ctx *Context, params map[string]interface{}) []domain.ActionSequence {
	maxBuys := domain.GetIntParam(params, "max_buys", 5)

	var sequences []domain.ActionSequence
	for _, buy := range topN(allBuys(ctx), maxBuys) {
		if buy.ValueEUR > ctx.Portfolio.AvailableCashEUR {
			continue
		}
		sequences = append(sequences, NewSequence(p.Name(), []domain.ActionCandidate{buy}))
	}
	return sequences
}

// SingleBestPattern emits one sequence with the single highest-priority
// action across all categories.
type SingleBestPattern struct {
	*BasePattern
}

// NewSingleBestPattern creates the single-best pattern.
func NewSingleBestPattern(log zerolog.Logger) *SingleBestPattern {
	return &SingleBestPattern{BasePattern: NewBasePattern(log, "single_best")}
}

func (p *SingleBestPattern) Name() string { return "single_best" }

func (p *SingleBestPattern) Generate(ctx *Context, _ map[string]interface{}) []domain.ActionSequence {
	var all []domain.ActionCandidate
	all = append(all, allSells(ctx)...)
	all = append(all, allBuys(ctx)...)
	sortCandidates(all)

	for _, best := range all {
		if best.Side == "BUY" && best.ValueEUR > ctx.Portfolio.AvailableCashEUR {
			continue
		}
		return []domain.ActionSequence{NewSequence(p.Name(), []domain.ActionCandidate{best})}
	}
	return nil
}

// OpportunityFirstPattern leads with opportunity buys, then backfills with
// rebalance buys while cash lasts.
type OpportunityFirstPattern struct {
	*BasePattern
}

// NewOpportunityFirstPattern creates the opportunity-first pattern.
func NewOpportunityFirstPattern(log zerolog.Logger) *OpportunityFirstPattern {
	return &OpportunityFirstPattern{BasePattern: NewBasePattern(log, "opportunity_first")}
}

func (p *OpportunityFirstPattern) Name() string { return "opportunity_first" }

func (p *OpportunityFirstPattern) Generate(ctx *Context, params map[string]interface{}) []domain.ActionSequence {
	maxActions := domain.GetIntParam(params, "max_actions", ctx.MaxDepth)

	var actions []domain.ActionCandidate
	cash := ctx.Portfolio.AvailableCashEUR
	pools := [][]domain.ActionCandidate{
		ctx.Opportunities[domain.OpportunityCategoryOpportunityBuys],
		ctx.Opportunities[domain.OpportunityCategoryRebalanceBuys],
	}
	for _, pool := range pools {
		for _, buy := range pool {
			if len(actions) >= maxActions {
				break
			}
			if buy.ValueEUR > cash {
				continue
			}
			actions = append(actions, buy)
			cash -= buy.ValueEUR
		}
	}

	if len(actions) == 0 || !uniqueSymbols(actions) {
		return nil
	}
	return []domain.ActionSequence{NewSequence(p.Name(), actions)}
}
