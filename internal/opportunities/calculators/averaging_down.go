package calculators

import (
	"fmt"
	"math"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/rs/zerolog"
)

// AveragingDownCalculator proposes buys of quality positions trading well
// below their average cost. Quality gating keeps this from doubling down on
// broken theses.
type AveragingDownCalculator struct {
	*BaseCalculator
}

// NewAveragingDownCalculator creates the averaging-down calculator.
func NewAveragingDownCalculator(log zerolog.Logger) *AveragingDownCalculator {
	return &AveragingDownCalculator{BaseCalculator: NewBaseCalculator(log, "averaging_down")}
}

func (c *AveragingDownCalculator) Name() string { return "averaging_down" }

func (c *AveragingDownCalculator) Category() domain.OpportunityCategory {
	return domain.OpportunityCategoryAveragingDown
}

// Calculate proposes buys for held positions with quality at or above
// min_quality (default 0.70) whose price is at least min_drop (default 10%)
// below average cost, but not past the deep-loss line (default −35%).
func (c *AveragingDownCalculator) Calculate(
	ctx *domain.OpportunityContext,
	params map[string]interface{},
) ([]domain.ActionCandidate, error) {
	if !ctx.AllowBuy || ctx.AvailableCashEUR <= 0 {
		return nil, nil
	}

	minQuality := domain.GetFloatParam(params, "min_quality", 0.70)
	minDrop := domain.GetFloatParam(params, "min_drop", 0.10)
	maxDrop := domain.GetFloatParam(params, "max_drop", 0.35)
	maxValuePerTrade := domain.GetFloatParam(params, "max_value_per_trade", 500.0)

	var candidates []domain.ActionCandidate

	for _, pos := range ctx.Positions {
		if ctx.RecentlyBought[pos.Symbol] {
			continue
		}
		if pos.AvgPrice <= 0 {
			continue
		}

		sec, ok := ctx.StocksBySymbol[pos.Symbol]
		if !ok || !sec.AllowBuy {
			continue
		}
		if sec.QualityScore < minQuality {
			continue
		}

		price, ok := ctx.CurrentPrices[pos.Symbol]
		if !ok || price <= 0 {
			price = pos.CurrentPrice
		}
		if price <= 0 {
			continue
		}

		drop := 1 - price/pos.AvgPrice
		if drop < minDrop || drop > maxDrop {
			continue
		}

		targetValue := math.Min(maxValuePerTrade, ctx.AvailableCashEUR)
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

		// Quality carries most of the weight; deeper (eligible) dips rank
		// higher. A concentrated position dampens the appetite.
		priority := sec.QualityScore*0.6 + drop*2*0.4
		if ctx.TotalPortfolioValueEUR > 0 {
			weight := float64(pos.Quantity) * price / ctx.TotalPortfolioValueEUR
			if weight > 0.15 {
				priority *= 0.9
			}
			if weight > 0.25 {
				priority *= 0.7
			}
		}

		candidates = append(candidates, domain.ActionCandidate{
			Side:     "BUY",
			Symbol:   pos.Symbol,
			Name:     sec.Name,
			Quantity: quantity,
			Price:    price,
			ValueEUR: totalCost,
			Currency: currencyOr(sec.Currency, pos.Currency),
			Priority: priority,
			Reason:   fmt.Sprintf("Quality %.2f trading %.0f%% below average cost", sec.QualityScore, drop*100),
			Tags:     []string{"averaging_down", "quality"},
		})
	}

	sortByPriority(candidates)

	c.log.Info().Int("candidates", len(candidates)).Msg("Averaging-down opportunities identified")
	return candidates, nil
}
