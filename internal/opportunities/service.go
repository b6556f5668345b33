package opportunities

import (
	"github.com/aristath/helmsman/internal/domain"
	"github.com/aristath/helmsman/internal/opportunities/calculators"
	"github.com/rs/zerolog"
)

// Service runs the calculator registry and applies per-category limits.
type Service struct {
	registry *calculators.CalculatorRegistry
	log      zerolog.Logger
}

// New creates an opportunity service with the standard calculators.
func New(log zerolog.Logger) *Service {
	return &Service{
		registry: calculators.NewPopulatedRegistry(log),
		log:      log.With().Str("module", "opportunities").Logger(),
	}
}

// NewWithRegistry creates a service around a prepared registry.
func NewWithRegistry(registry *calculators.CalculatorRegistry, log zerolog.Logger) *Service {
	return &Service{
		registry: registry,
		log:      log.With().Str("module", "opportunities").Logger(),
	}
}

// Identify runs all enabled calculators against the portfolio context and
// returns candidates grouped by category, each list sorted by priority and
// truncated to MaxOpportunitiesPerCategory.
func (s *Service) Identify(
	ctx *domain.OpportunityContext,
	config *domain.PlannerConfiguration,
) (domain.OpportunitiesByCategory, error) {
	opportunities, err := s.registry.IdentifyOpportunities(ctx, config)
	if err != nil {
		return nil, err
	}

	limit := config.MaxOpportunitiesPerCategory
	if limit > 0 {
		for category, candidates := range opportunities {
			if len(candidates) > limit {
				opportunities[category] = candidates[:limit]
			}
		}
	}

	s.log.Info().
		Int("total", opportunities.Total()).
		Msg("Opportunity identification complete")

	return opportunities, nil
}
