package calculators

import (
	"sort"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/rs/zerolog"
)

// Calculator identifies candidates of one opportunity category.
type Calculator interface {
	Name() string
	Category() domain.OpportunityCategory
	Calculate(ctx *domain.OpportunityContext, params map[string]interface{}) ([]domain.ActionCandidate, error)
}

// BaseCalculator carries the shared logger.
type BaseCalculator struct {
	log zerolog.Logger
}

// NewBaseCalculator creates the embedded base with a component logger.
func NewBaseCalculator(log zerolog.Logger, name string) *BaseCalculator {
	return &BaseCalculator{
		log: log.With().Str("component", "calculator").Str("calculator", name).Logger(),
	}
}

// sortByPriority orders candidates by priority descending, ties by symbol
// for determinism.
func sortByPriority(candidates []domain.ActionCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].Symbol < candidates[j].Symbol
	})
}

// roundToLot clamps a quantity to the security's minimum lot size.
func roundToLot(quantity, minLot int) int {
	if minLot <= 1 {
		return quantity
	}
	return (quantity / minLot) * minLot
}
