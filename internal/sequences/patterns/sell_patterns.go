package patterns

import (
	"github.com/aristath/helmsman/internal/domain"
	"github.com/rs/zerolog"
)

// ProfitTakingPattern emits sequences built around windfall and
// profit-taking sells, alone and paired.
type ProfitTakingPattern struct {
	*BasePattern
}

// NewProfitTakingPattern creates the profit-taking pattern.
func NewProfitTakingPattern(log zerolog.Logger) *ProfitTakingPattern {
	return &ProfitTakingPattern{BasePattern: NewBasePattern(log, "profit_taking")}
}

func (p *ProfitTakingPattern) Name() string { return "profit_taking" }

func (p *ProfitTakingPattern) Generate(ctx *Context, params map[string]interface{}) []domain.ActionSequence {
	maxSells := domain.GetIntParam(params, "max_sells", 3)
	sells := topN(ctx.Opportunities[domain.OpportunityCategoryProfitTaking], maxSells)

	var sequences []domain.ActionSequence
	for _, sell := range sells {
		sequences = append(sequences, NewSequence(p.Name(), []domain.ActionCandidate{sell}))
	}
	for i := 0; i < len(sells); i++ {
		for j := i + 1; j < len(sells); j++ {
			pair := []domain.ActionCandidate{sells[i], sells[j]}
			if uniqueSymbols(pair) {
				sequences = append(sequences, NewSequence(p.Name(), pair))
			}
		}
	}
	return sequences
}

// MultiSellPattern combines the top sells across categories into one
// sequence, deepest first.
type MultiSellPattern struct {
	*BasePattern
}

// NewMultiSellPattern creates the multi-sell pattern.
func NewMultiSellPattern(log zerolog.Logger) *MultiSellPattern {
	return &MultiSellPattern{BasePattern: NewBasePattern(log, "multi_sell")}
}

func (p *MultiSellPattern) Name() string { return "multi_sell" }

func (p *MultiSellPattern) Generate(ctx *Context, params map[string]interface{}) []domain.ActionSequence {
	maxSells := domain.GetIntParam(params, "max_sells", ctx.MaxDepth)
	sells := allSells(ctx)
	if len(sells) < 2 {
		return nil
	}

	var sequences []domain.ActionSequence
	for depth := min(maxSells, len(sells)); depth >= 2; depth-- {
		actions := sells[:depth]
		if uniqueSymbols(actions) {
			sequences = append(sequences, NewSequence(p.Name(), actions))
		}
	}
	return sequences
}

// CashGenerationPattern sells until a target amount of cash is raised.
type CashGenerationPattern struct {
	*BasePattern
}

// NewCashGenerationPattern creates the cash-generation pattern.
func NewCashGenerationPattern(log zerolog.Logger) *CashGenerationPattern {
	return &CashGenerationPattern{BasePattern: NewBasePattern(log, "cash_generation")}
}

func (p *CashGenerationPattern) Name() string { return "cash_generation" }

func (p *CashGenerationPattern) Generate(ctx *Context, params map[string]interface{}) []domain.ActionSequence {
	// Default target: enough to fund the best unaffordable buy, or 5% of the
	// portfolio when everything is already affordable.
	target := domain.GetFloatParam(params, "target_cash", 0)
	if target <= 0 {
		for _, buy := range allBuys(ctx) {
			if buy.ValueEUR > ctx.Portfolio.AvailableCashEUR {
				target = buy.ValueEUR - ctx.Portfolio.AvailableCashEUR
				break
			}
		}
	}
	if target <= 0 {
		target = ctx.Portfolio.TotalPortfolioValueEUR * 0.05
	}
	if target <= 0 {
		return nil
	}

	var actions []domain.ActionCandidate
	raised := 0.0
	for _, sell := range allSells(ctx) {
		if len(actions) >= ctx.MaxDepth {
			break
		}
		actions = append(actions, sell)
		raised += sell.ValueEUR
		if raised >= target {
			break
		}
	}

	if len(actions) == 0 || raised < target || !uniqueSymbols(actions) {
		return nil
	}
	return []domain.ActionSequence{NewSequence(p.Name(), actions)}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
