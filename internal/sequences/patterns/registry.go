package patterns

import (
	"sync"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/rs/zerolog"
)

// Registry maps pattern names to implementations.
type Registry struct {
	mu       sync.RWMutex
	patterns map[string]PatternGenerator
	log      zerolog.Logger
}

// NewRegistry creates an empty pattern registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		patterns: make(map[string]PatternGenerator),
		log:      log.With().Str("component", "pattern_registry").Logger(),
	}
}

// NewPopulatedRegistry registers the thirteen standard patterns.
func NewPopulatedRegistry(log zerolog.Logger) *Registry {
	r := NewRegistry(log)
	r.Register(NewDirectBuyPattern(log))
	r.Register(NewProfitTakingPattern(log))
	r.Register(NewRebalancePattern(log))
	r.Register(NewAveragingDownPattern(log))
	r.Register(NewSingleBestPattern(log))
	r.Register(NewMultiSellPattern(log))
	r.Register(NewMixedStrategyPattern(log))
	r.Register(NewOpportunityFirstPattern(log))
	r.Register(NewDeepRebalancePattern(log))
	r.Register(NewCashGenerationPattern(log))
	r.Register(NewCostOptimizedPattern(log))
	r.Register(NewAdaptivePattern(log))
	r.Register(NewMarketRegimePattern(log))
	return r
}

// Register adds a pattern under its name.
func (r *Registry) Register(p PatternGenerator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns[p.Name()] = p
}

// Get returns a pattern by name.
func (r *Registry) Get(name string) (PatternGenerator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.patterns[name]
	return p, ok
}

// GenerateAll runs every enabled pattern in sorted name order and
// concatenates the results.
func (r *Registry) GenerateAll(ctx *Context, config *domain.PlannerConfiguration) []domain.ActionSequence {
	var sequences []domain.ActionSequence
	for _, name := range config.GetEnabledPatterns() {
		pattern, ok := r.Get(name)
		if !ok {
			r.log.Warn().Str("pattern", name).Msg("Enabled pattern not registered")
			continue
		}
		sequences = append(sequences, pattern.Generate(ctx, config.GetPatternParams(name))...)
	}
	return sequences
}
