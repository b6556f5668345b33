package optimizer

import (
	"math"
	"sort"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/rs/zerolog"
)

// Hard concentration caps.
const (
	MaxConcentration        = 0.20 // per symbol
	MaxCountryConcentration = 0.40 // per country group
	MaxSectorConcentration  = 0.30 // per industry group
	GroupTolerance          = 0.05 // default ± around group targets
)

// GroupConstraint bounds the combined weight of a set of symbols.
type GroupConstraint struct {
	Name    string
	Symbols []string
	Lower   float64
	Upper   float64
	Target  float64
}

// ConstraintsManager translates business rules into per-symbol weight bounds
// and group constraints for the solvers.
type ConstraintsManager struct {
	log zerolog.Logger
}

// NewConstraintsManager creates a constraints manager.
func NewConstraintsManager(log zerolog.Logger) *ConstraintsManager {
	return &ConstraintsManager{
		log: log.With().Str("component", "constraints").Logger(),
	}
}

// WeightBounds computes (lower, upper) per symbol in the given order.
//
// Rules, applied in order:
//  1. default (0, MaxConcentration)
//  2. per-symbol min/max portfolio targets (percent) override the defaults
//  3. allow_buy=false caps upper at current weight; allow_sell=false floors
//     lower at current weight (the tighter bound wins)
//  4. min_lot: a position at or below one lot is locked at its current
//     weight; larger positions get a lot-value floor unless it would exceed
//     the upper bound
//  5. any remaining lower > upper conflict clamps both to current weight
func (cm *ConstraintsManager) WeightBounds(
	symbols []string,
	securities map[string]domain.Security,
	currentWeights map[string]float64,
	totalValueEUR float64,
) [][2]float64 {
	bounds := make([][2]float64, len(symbols))

	for i, symbol := range symbols {
		lower, upper := 0.0, MaxConcentration
		sec, hasSec := securities[symbol]
		current := currentWeights[symbol]

		if hasSec {
			if sec.MinPortfolioTarget != nil {
				lower = *sec.MinPortfolioTarget / 100
			}
			if sec.MaxPortfolioTarget != nil {
				upper = math.Min(upper, *sec.MaxPortfolioTarget/100)
			}

			if !sec.AllowBuy {
				upper = math.Min(upper, current)
			}
			if !sec.AllowSell {
				lower = math.Max(lower, current)
			}

			if sec.MinLot > 1 && current > 0 && totalValueEUR > 0 && sec.Price > 0 {
				lotWeight := float64(sec.MinLot) * sec.Price / totalValueEUR
				if current <= lotWeight {
					// At or below one lot: locked.
					lower = math.Max(lower, current)
				} else if lotWeight <= upper {
					lower = math.Max(lower, lotWeight)
				}
				// Lot floor above the upper bound is dropped.
			}
		}

		if lower > upper {
			lower = current
			upper = current
		}

		bounds[i] = [2]float64{lower, upper}
	}

	return bounds
}

// GroupConstraints builds country-group and industry-group constraints from
// target maps. Targets are normalised over active groups when their sum
// exceeds 1, then lower bounds are scaled down uniformly when their sum
// exceeds 0.7 (normalise-then-scale). With only one or two active industry
// groups, the industry upper bound is relaxed to 0.7 or 0.5.
func (cm *ConstraintsManager) GroupConstraints(
	symbols []string,
	ctx *domain.PortfolioContext,
) []GroupConstraint {
	countryGroups := groupSymbols(symbols, ctx.CountryGroupOf)
	industryGroups := groupSymbols(symbols, ctx.IndustryGroupOf)

	var constraints []GroupConstraint
	constraints = append(constraints,
		cm.buildGroupSet(countryGroups, ctx.CountryTargets, MaxCountryConcentration, 0)...)
	constraints = append(constraints,
		cm.buildGroupSet(industryGroups, ctx.IndustryTargets, MaxSectorConcentration, len(industryGroups))...)

	return constraints
}

// buildGroupSet converts one grouping table into constraints. activeIndustry
// is non-zero only for the industry set and drives the 1/2-group relaxation.
func (cm *ConstraintsManager) buildGroupSet(
	groups map[string][]string,
	targets map[string]float64,
	hardCap float64,
	activeIndustry int,
) []GroupConstraint {
	if len(groups) == 0 {
		return nil
	}

	upperCap := hardCap
	if activeIndustry == 1 {
		upperCap = 0.70
	} else if activeIndustry == 2 {
		upperCap = 0.50
	}

	// Normalise targets over groups that actually have stocks.
	activeTargets := make(map[string]float64)
	sum := 0.0
	for name := range groups {
		if t, ok := targets[name]; ok {
			activeTargets[name] = t
			sum += t
		}
	}
	if sum > 1 {
		for name := range activeTargets {
			activeTargets[name] /= sum
		}
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	var constraints []GroupConstraint
	lowerSum := 0.0
	for _, name := range names {
		target, hasTarget := activeTargets[name]
		lower, upper := 0.0, upperCap
		if hasTarget {
			lower = math.Max(0, target-GroupTolerance)
			upper = math.Min(upperCap, target+GroupTolerance)
		}
		lowerSum += lower
		constraints = append(constraints, GroupConstraint{
			Name:    name,
			Symbols: groups[name],
			Lower:   lower,
			Upper:   upper,
			Target:  target,
		})
	}

	// Leave headroom for cash and ungrouped weight: lower bounds may not
	// claim more than 70% combined.
	if lowerSum > 0.7 {
		scale := 0.7 / lowerSum
		for i := range constraints {
			constraints[i].Lower *= scale
		}
		cm.log.Debug().
			Float64("lower_sum", lowerSum).
			Float64("scale", scale).
			Msg("Scaled group lower bounds")
	}

	return constraints
}

func groupSymbols(symbols []string, groupOf func(string) string) map[string][]string {
	groups := make(map[string][]string)
	for _, symbol := range symbols {
		g := groupOf(symbol)
		groups[g] = append(groups[g], symbol)
	}
	return groups
}
