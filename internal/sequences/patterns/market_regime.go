package patterns

import (
	"sort"

	"github.com/aristath/helmsman/internal/domain"
	talib "github.com/markcheno/go-talib"
	"github.com/rs/zerolog"
)

// Regime classification of the broad market held in the portfolio.
type Regime string

const (
	RegimeOverbought Regime = "overbought"
	RegimeOversold   Regime = "oversold"
	RegimeNeutral    Regime = "neutral"

	rsiPeriod        = 14
	rsiOverbought    = 70.0
	rsiOversold      = 30.0
	minRegimeHistory = rsiPeriod + 1
)

// MarketRegimePattern tilts sequence shape by market regime: overbought
// markets favour profit-taking, oversold ones favour buying the dip.
type MarketRegimePattern struct {
	*BasePattern
}

// NewMarketRegimePattern creates the market-regime pattern.
func NewMarketRegimePattern(log zerolog.Logger) *MarketRegimePattern {
	return &MarketRegimePattern{BasePattern: NewBasePattern(log, "market_regime")}
}

func (p *MarketRegimePattern) Name() string { return "market_regime" }

// DetectRegime computes RSI over an equal-weight composite of the available
// price histories. Too little history reads as neutral.
func DetectRegime(history map[string][]float64) Regime {
	composite := compositeSeries(history)
	if len(composite) < minRegimeHistory {
		return RegimeNeutral
	}

	rsi := talib.Rsi(composite, rsiPeriod)
	last := rsi[len(rsi)-1]
	switch {
	case last >= rsiOverbought:
		return RegimeOverbought
	case last <= rsiOversold:
		return RegimeOversold
	default:
		return RegimeNeutral
	}
}

// compositeSeries averages each symbol's prices normalised to its first
// observation, aligned to the shortest common length.
func compositeSeries(history map[string][]float64) []float64 {
	symbols := make([]string, 0, len(history))
	shortest := 0
	for symbol, prices := range history {
		if len(prices) < minRegimeHistory || prices[0] <= 0 {
			continue
		}
		symbols = append(symbols, symbol)
		if shortest == 0 || len(prices) < shortest {
			shortest = len(prices)
		}
	}
	if len(symbols) == 0 {
		return nil
	}
	sort.Strings(symbols)

	composite := make([]float64, shortest)
	for _, symbol := range symbols {
		prices := history[symbol]
		offset := len(prices) - shortest
		base := prices[offset]
		if base <= 0 {
			base = 1
		}
		for i := 0; i < shortest; i++ {
			composite[i] += prices[offset+i] / base
		}
	}
	for i := range composite {
		composite[i] /= float64(len(symbols))
	}
	return composite
}

func (p *MarketRegimePattern) Generate(ctx *Context, params map[string]interface{}) []domain.ActionSequence {
	maxActions := domain.GetIntParam(params, "max_actions", ctx.MaxDepth)
	regime := DetectRegime(ctx.PriceHistory)

	var pool []domain.ActionCandidate
	switch regime {
	case RegimeOverbought:
		pool = allSells(ctx)
	case RegimeOversold:
		pool = allBuys(ctx)
	default:
		return nil
	}

	var actions []domain.ActionCandidate
	cash := ctx.Portfolio.AvailableCashEUR
	for _, a := range pool {
		if len(actions) >= maxActions {
			break
		}
		if a.Side == "BUY" {
			if a.ValueEUR > cash {
				continue
			}
			cash -= a.ValueEUR
		}
		candidate := append(append([]domain.ActionCandidate{}, actions...), a)
		if !uniqueSymbols(candidate) {
			continue
		}
		actions = candidate
	}

	if len(actions) == 0 {
		return nil
	}
	p.log.Debug().Str("regime", string(regime)).Int("actions", len(actions)).Msg("Regime-tilted sequence built")
	return []domain.ActionSequence{NewSequence(p.Name(), actions)}
}
