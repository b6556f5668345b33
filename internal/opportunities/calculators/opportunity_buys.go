package calculators

import (
	"fmt"
	"math"
	"sort"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/rs/zerolog"
)

// OpportunityBuysCalculator surfaces high-priority buys not driven by the
// optimizer gap: dividend payers and quality names not yet held.
type OpportunityBuysCalculator struct {
	*BaseCalculator
}

// NewOpportunityBuysCalculator creates the opportunity-buys calculator.
func NewOpportunityBuysCalculator(log zerolog.Logger) *OpportunityBuysCalculator {
	return &OpportunityBuysCalculator{BaseCalculator: NewBaseCalculator(log, "opportunity_buys")}
}

func (c *OpportunityBuysCalculator) Name() string { return "opportunity_buys" }

func (c *OpportunityBuysCalculator) Category() domain.OpportunityCategory {
	return domain.OpportunityCategoryOpportunityBuys
}

func (c *OpportunityBuysCalculator) Calculate(
	ctx *domain.OpportunityContext,
	params map[string]interface{},
) ([]domain.ActionCandidate, error) {
	if !ctx.AllowBuy || ctx.AvailableCashEUR <= 0 {
		return nil, nil
	}

	minQuality := domain.GetFloatParam(params, "min_quality", 0.80)
	minDividendYield := domain.GetFloatParam(params, "min_dividend_yield", 0.03)
	maxValuePerTrade := domain.GetFloatParam(params, "max_value_per_trade", 500.0)
	maxPositions := domain.GetIntParam(params, "max_positions", 3)

	symbols := make([]string, 0, len(ctx.StocksBySymbol))
	for symbol := range ctx.StocksBySymbol {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	var candidates []domain.ActionCandidate

	for _, symbol := range symbols {
		sec := ctx.StocksBySymbol[symbol]
		if len(candidates) >= maxPositions {
			break
		}
		if !sec.AllowBuy || ctx.RecentlyBought[symbol] {
			continue
		}
		if _, held := ctx.PositionFor(symbol); held {
			continue
		}
		// Covered by rebalance_buys when the optimizer already targets it.
		if w, ok := ctx.TargetWeights[symbol]; ok && w > 0 {
			continue
		}

		isQuality := sec.QualityScore >= minQuality
		isDividend := sec.DividendYield >= minDividendYield
		if !isQuality && !isDividend {
			continue
		}

		price, ok := ctx.CurrentPrices[symbol]
		if !ok || price <= 0 {
			price = sec.Price
		}
		if price <= 0 {
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

		priority := sec.QualityScore*0.6 + math.Min(sec.DividendYield*10, 1)*0.4
		tags := []string{"opportunity"}
		reason := ""
		switch {
		case isQuality && isDividend:
			tags = append(tags, "quality", "dividend")
			reason = fmt.Sprintf("Quality %.2f with %.1f%% dividend yield", sec.QualityScore, sec.DividendYield*100)
		case isQuality:
			tags = append(tags, "quality")
			reason = fmt.Sprintf("New quality addition (score %.2f)", sec.QualityScore)
		default:
			tags = append(tags, "dividend")
			reason = fmt.Sprintf("Dividend payer yielding %.1f%%", sec.DividendYield*100)
		}

		candidates = append(candidates, domain.ActionCandidate{
			Side:     "BUY",
			Symbol:   symbol,
			Name:     sec.Name,
			Quantity: quantity,
			Price:    price,
			ValueEUR: totalCost,
			Currency: currencyOr(sec.Currency, "EUR"),
			Priority: priority,
			Reason:   reason,
			Tags:     tags,
		})
	}

	sortByPriority(candidates)

	c.log.Info().Int("candidates", len(candidates)).Msg("Opportunity-buy candidates identified")
	return candidates, nil
}
