package evaluation

import (
	"fmt"

	"github.com/aristath/helmsman/internal/domain"
)

// SimulationOutcome is the portfolio state after hypothetically executing a
// sequence, at scenario-adjusted prices.
type SimulationOutcome struct {
	EndCash        float64
	EndPositions   map[string]float64 // symbol → quantity
	PositionValues map[string]float64 // symbol → EUR value at scenario prices
	TotalValue     float64
	TotalCost      float64
	CashRequired   float64
	ExecutedBuys   []domain.ActionCandidate
	SkippedBuys    int
	Feasible       bool
	Err            error
}

// Simulate applies each action in order to a copy of the portfolio state.
// Prices are multiplied by the per-symbol scenario factor (absent = 1).
// Unaffordable buys are skipped rather than failing the sequence; a sell of
// an unheld symbol makes the sequence infeasible.
func Simulate(
	ctx *domain.PortfolioContext,
	positions []domain.Position,
	seq domain.ActionSequence,
	settings domain.EvaluationSettings,
	priceFactors map[string]float64,
) SimulationOutcome {
	held := make(map[string]float64, len(positions))
	for _, p := range positions {
		held[p.Symbol] = float64(p.Quantity)
	}

	outcome := SimulationOutcome{
		EndCash:        ctx.AvailableCashEUR,
		EndPositions:   held,
		PositionValues: make(map[string]float64),
		Feasible:       true,
	}

	factor := func(symbol string) float64 {
		if f, ok := priceFactors[symbol]; ok && f > 0 {
			return f
		}
		return 1
	}
	fee := func(gross float64) float64 {
		return settings.TransactionCostFixed + gross*settings.TransactionCostPercent
	}

	minCash := outcome.EndCash
	for _, a := range seq.Actions {
		price := a.Price * factor(a.Symbol)
		gross := float64(a.Quantity) * price

		switch a.Side {
		case "SELL":
			if held[a.Symbol] <= 0 {
				outcome.Feasible = false
				outcome.Err = fmt.Errorf("sell of unheld symbol %s", a.Symbol)
				continue
			}
			quantity := float64(a.Quantity)
			if quantity > held[a.Symbol] {
				quantity = held[a.Symbol]
				gross = quantity * price
			}
			cost := fee(gross)
			held[a.Symbol] -= quantity
			outcome.EndCash += gross - cost
			outcome.TotalCost += cost

		case "BUY":
			cost := fee(gross)
			if gross+cost > outcome.EndCash {
				outcome.SkippedBuys++
				continue
			}
			held[a.Symbol] += float64(a.Quantity)
			outcome.EndCash -= gross + cost
			outcome.TotalCost += cost
			outcome.ExecutedBuys = append(outcome.ExecutedBuys, a)
		}

		if outcome.EndCash < minCash {
			minCash = outcome.EndCash
		}
	}

	outcome.CashRequired = ctx.AvailableCashEUR - minCash
	if outcome.CashRequired < 0 {
		outcome.CashRequired = 0
	}

	outcome.TotalValue = outcome.EndCash
	for symbol, quantity := range held {
		if quantity <= 0 {
			delete(held, symbol)
			continue
		}
		price, ok := ctx.CurrentPrices[symbol]
		if !ok || price <= 0 {
			continue
		}
		value := quantity * price * factor(symbol)
		outcome.PositionValues[symbol] = value
		outcome.TotalValue += value
	}

	return outcome
}
