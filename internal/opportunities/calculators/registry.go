package calculators

import (
	"sync"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/rs/zerolog"
)

// CalculatorRegistry maps calculator names to implementations.
type CalculatorRegistry struct {
	mu          sync.RWMutex
	calculators map[string]Calculator
	log         zerolog.Logger
}

// NewCalculatorRegistry creates an empty registry.
func NewCalculatorRegistry(log zerolog.Logger) *CalculatorRegistry {
	return &CalculatorRegistry{
		calculators: make(map[string]Calculator),
		log:         log.With().Str("component", "calculator_registry").Logger(),
	}
}

// NewPopulatedRegistry registers the five standard calculators.
func NewPopulatedRegistry(log zerolog.Logger) *CalculatorRegistry {
	r := NewCalculatorRegistry(log)
	r.Register(NewProfitTakingCalculator(log))
	r.Register(NewAveragingDownCalculator(log))
	r.Register(NewRebalanceSellsCalculator(log))
	r.Register(NewRebalanceBuysCalculator(log))
	r.Register(NewOpportunityBuysCalculator(log))
	return r
}

// Register adds a calculator under its name.
func (r *CalculatorRegistry) Register(c Calculator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calculators[c.Name()] = c
}

// Get returns a calculator by name.
func (r *CalculatorRegistry) Get(name string) (Calculator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.calculators[name]
	return c, ok
}

// IdentifyOpportunities runs the enabled calculators and groups their
// candidates by category. A failing calculator is logged and skipped; it
// never fails the pass.
func (r *CalculatorRegistry) IdentifyOpportunities(
	ctx *domain.OpportunityContext,
	config *domain.PlannerConfiguration,
) (domain.OpportunitiesByCategory, error) {
	opportunities := make(domain.OpportunitiesByCategory)
	for _, category := range domain.AllOpportunityCategories {
		opportunities[category] = nil
	}

	for _, name := range config.GetEnabledCalculators() {
		calc, ok := r.Get(name)
		if !ok {
			r.log.Warn().Str("calculator", name).Msg("Enabled calculator not registered")
			continue
		}

		candidates, err := calc.Calculate(ctx, config.GetCalculatorParams(name))
		if err != nil {
			r.log.Error().Str("calculator", name).Err(err).Msg("Calculator failed, skipping")
			continue
		}
		opportunities[calc.Category()] = append(opportunities[calc.Category()], candidates...)
	}

	for category := range opportunities {
		sortByPriority(opportunities[category])
	}

	return opportunities, nil
}
