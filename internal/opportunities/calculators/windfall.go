package calculators

import "math"

// Windfall thresholds: excess gain above the expected growth band at which
// profit-taking triggers.
const (
	WindfallExcessMedium = 0.25
	WindfallExcessHigh   = 0.50

	WindfallSellPctMedium    = 0.20
	WindfallSellPctHigh      = 0.40
	WindfallDoublerSellPct   = 0.50
	ConsistentDoublerSellPct = 0.30

	defaultMarketCAGR = 0.10
)

// ExcessGain is the gain above what the security's historical CAGR predicts:
// currentGain − ((1+CAGR)^years − 1). With no history the whole gain counts.
func ExcessGain(currentGain, yearsHeld, historicalCAGR float64) float64 {
	if yearsHeld <= 0 || historicalCAGR <= -1 {
		return currentGain
	}
	expected := math.Pow(1+historicalCAGR, yearsHeld) - 1
	return currentGain - expected
}

// WindfallScore maps excess gain to [0,1]: 0 at no excess, 0.5 at the medium
// threshold, 1 at the high threshold.
func WindfallScore(excess float64) float64 {
	switch {
	case excess >= WindfallExcessHigh:
		return 1.0
	case excess >= WindfallExcessMedium:
		return 0.5 + (excess-WindfallExcessMedium)/(WindfallExcessHigh-WindfallExcessMedium)*0.5
	case excess > 0:
		return excess / WindfallExcessMedium * 0.5
	default:
		return 0
	}
}

// ProfitTakingDecision is the sell recommendation for one position.
type ProfitTakingDecision struct {
	ShouldSell bool
	SellPct    float64
	IsWindfall bool
	Reason     string
}

// ShouldTakeProfits applies the windfall rules:
//
//  1. doubled money with >30% excess: sell 50% (windfall doubler)
//  2. doubled money otherwise: sell 30% (consistent doubler)
//  3. excess ≥ 50%: sell 40%
//  4. excess ≥ 25%: sell 20%
//  5. otherwise hold
func ShouldTakeProfits(currentGain, yearsHeld, historicalCAGR float64) ProfitTakingDecision {
	if historicalCAGR == 0 {
		historicalCAGR = defaultMarketCAGR
	}
	excess := ExcessGain(currentGain, yearsHeld, historicalCAGR)

	if currentGain >= 1.0 {
		if excess > 0.30 {
			return ProfitTakingDecision{
				ShouldSell: true,
				SellPct:    WindfallDoublerSellPct,
				IsWindfall: true,
				Reason:     "Windfall doubler: gain far above expected growth",
			}
		}
		return ProfitTakingDecision{
			ShouldSell: true,
			SellPct:    ConsistentDoublerSellPct,
			Reason:     "Consistent doubler: locking in part of a long climb",
		}
	}

	if excess >= WindfallExcessHigh {
		return ProfitTakingDecision{
			ShouldSell: true,
			SellPct:    WindfallSellPctHigh,
			IsWindfall: true,
			Reason:     "High windfall: well above expected growth",
		}
	}
	if excess >= WindfallExcessMedium {
		return ProfitTakingDecision{
			ShouldSell: true,
			SellPct:    WindfallSellPctMedium,
			IsWindfall: true,
			Reason:     "Medium windfall: above expected growth",
		}
	}

	return ProfitTakingDecision{Reason: "Performing within the expected band"}
}
