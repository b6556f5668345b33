package optimizer

import (
	"github.com/aristath/helmsman/internal/domain"
	"github.com/aristath/helmsman/pkg/formulas"
)

// minReturnObservations is the shortest daily-return series accepted for a
// symbol; shorter histories exclude the symbol from optimisation.
const minReturnObservations = 30

// ExpectedReturns computes annualised expected returns per symbol from daily
// price histories, plus an optional per-symbol dividend bonus. Symbols with
// missing or too-short history are excluded.
func ExpectedReturns(
	priceHistory map[string][]float64,
	dividendBonus map[string]float64,
) map[string]float64 {
	expected := make(map[string]float64, len(priceHistory))
	for symbol, prices := range priceHistory {
		returns := formulas.CalculateReturns(prices)
		if len(returns) < minReturnObservations {
			continue
		}
		annual := formulas.AnnualizedReturn(returns)
		if bonus, ok := dividendBonus[symbol]; ok {
			annual += bonus
		}
		expected[symbol] = annual
	}
	return expected
}

// ReturnSeries extracts equal-length daily return series for the given
// symbols, truncating to the shortest history. Symbols without usable
// history are dropped; the returned symbol list preserves input order.
func ReturnSeries(symbols []string, priceHistory map[string][]float64) ([]string, [][]float64) {
	var usable []string
	var series [][]float64
	minLen := -1

	for _, symbol := range symbols {
		returns := formulas.CalculateReturns(priceHistory[symbol])
		if len(returns) < minReturnObservations {
			continue
		}
		usable = append(usable, symbol)
		series = append(series, returns)
		if minLen < 0 || len(returns) < minLen {
			minLen = len(returns)
		}
	}

	// Align to common length, keeping the most recent observations.
	for i := range series {
		series[i] = series[i][len(series[i])-minLen:]
	}

	return usable, series
}

// CurrentWeights computes symbol → weight from positions and prices.
func CurrentWeights(positions []domain.Position, prices map[string]float64, totalValueEUR float64) map[string]float64 {
	weights := make(map[string]float64, len(positions))
	if totalValueEUR <= 0 {
		return weights
	}
	for _, p := range positions {
		price, ok := prices[p.Symbol]
		if !ok || price <= 0 {
			price = p.CurrentPrice
		}
		if price <= 0 {
			continue
		}
		weights[p.Symbol] = float64(p.Quantity) * price / totalValueEUR
	}
	return weights
}
