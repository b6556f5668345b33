package generators

import (
	"sync"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/aristath/helmsman/internal/sequences/patterns"
	"github.com/rs/zerolog"
)

// Registry maps generator names to implementations.
type Registry struct {
	mu         sync.RWMutex
	generators map[string]Generator
	log        zerolog.Logger
}

// NewRegistry creates an empty generator registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		generators: make(map[string]Generator),
		log:        log.With().Str("component", "generator_registry").Logger(),
	}
}

// NewPopulatedRegistry registers the three standard generators.
func NewPopulatedRegistry(log zerolog.Logger) *Registry {
	r := NewRegistry(log)
	r.Register(NewCombinatorialGenerator(log))
	r.Register(NewPartialExecutionGenerator(log))
	r.Register(NewConstraintRelaxationGenerator(log))
	return r
}

// Register adds a generator under its name.
func (r *Registry) Register(g Generator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generators[g.Name()] = g
}

// Get returns a generator by name.
func (r *Registry) Get(name string) (Generator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.generators[name]
	return g, ok
}

// GenerateAll runs every enabled generator in sorted name order and
// concatenates the results.
func (r *Registry) GenerateAll(ctx *patterns.Context, config *domain.PlannerConfiguration) []domain.ActionSequence {
	var sequences []domain.ActionSequence
	for _, name := range config.GetEnabledGenerators() {
		gen, ok := r.Get(name)
		if !ok {
			r.log.Warn().Str("generator", name).Msg("Enabled generator not registered")
			continue
		}
		params := config.GetGeneratorParams(name)
		if name == "combinatorial" && domain.GetIntParam(params, "max_combinations", 0) == 0 {
			merged := map[string]interface{}{"max_combinations": config.MaxCombinations}
			for k, v := range params {
				merged[k] = v
			}
			params = merged
		}
		sequences = append(sequences, gen.Generate(ctx, params)...)
	}
	return sequences
}
