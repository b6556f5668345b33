package calculators

import (
	"fmt"
	"math"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/rs/zerolog"
)

// ProfitTakingCalculator proposes partial sells of positions whose return
// sits materially above their historical growth band.
type ProfitTakingCalculator struct {
	*BaseCalculator
}

// NewProfitTakingCalculator creates the profit-taking calculator.
func NewProfitTakingCalculator(log zerolog.Logger) *ProfitTakingCalculator {
	return &ProfitTakingCalculator{BaseCalculator: NewBaseCalculator(log, "profit_taking")}
}

func (c *ProfitTakingCalculator) Name() string { return "profit_taking" }

func (c *ProfitTakingCalculator) Category() domain.OpportunityCategory {
	return domain.OpportunityCategoryProfitTaking
}

// Calculate walks held positions and applies the windfall rules.
func (c *ProfitTakingCalculator) Calculate(
	ctx *domain.OpportunityContext,
	params map[string]interface{},
) ([]domain.ActionCandidate, error) {
	if !ctx.AllowSell {
		return nil, nil
	}

	var candidates []domain.ActionCandidate

	for _, pos := range ctx.Positions {
		if ctx.IneligibleSymbols[pos.Symbol] || ctx.RecentlySold[pos.Symbol] {
			continue
		}
		if pos.AvgPrice <= 0 || pos.Quantity <= 0 {
			continue
		}

		price, ok := ctx.CurrentPrices[pos.Symbol]
		if !ok || price <= 0 {
			price = pos.CurrentPrice
		}
		if price <= 0 {
			continue
		}

		gain := price/pos.AvgPrice - 1
		years := math.Max(0.1, pos.YearsHeld)
		sec := ctx.StocksBySymbol[pos.Symbol]

		decision := ShouldTakeProfits(gain, years, sec.HistoricalCAGR)
		if !decision.ShouldSell {
			continue
		}

		quantity := int(math.Round(float64(pos.Quantity) * decision.SellPct))
		quantity = roundToLot(quantity, sec.MinLot)
		if quantity < 1 {
			quantity = 1
		}
		if quantity > pos.Quantity {
			quantity = pos.Quantity
		}

		valueEUR := float64(quantity) * price
		if !ctx.IsWorthwhile(valueEUR) {
			c.log.Debug().
				Str("symbol", pos.Symbol).
				Float64("value", valueEUR).
				Msg("Profit-taking sell below worthwhile value")
			continue
		}
		netValue := valueEUR - ctx.TransactionCost(valueEUR)

		excess := ExcessGain(gain, years, sec.HistoricalCAGR)
		priority := 0.5 + WindfallScore(excess)*0.5 + math.Min(gain, 1.0)*0.2

		tags := []string{"profit_taking"}
		if decision.IsWindfall {
			tags = append(tags, "windfall")
		}

		candidates = append(candidates, domain.ActionCandidate{
			Side:     "SELL",
			Symbol:   pos.Symbol,
			Name:     sec.Name,
			Quantity: quantity,
			Price:    price,
			ValueEUR: netValue,
			Currency: currencyOr(sec.Currency, pos.Currency),
			Priority: priority,
			Reason:   fmt.Sprintf("%s (up %.0f%%)", decision.Reason, gain*100),
			Tags:     tags,
		})
	}

	sortByPriority(candidates)

	c.log.Info().Int("candidates", len(candidates)).Msg("Profit-taking opportunities identified")
	return candidates, nil
}

func currencyOr(primary, fallback string) string {
	if primary != "" {
		return primary
	}
	if fallback != "" {
		return fallback
	}
	return "EUR"
}
