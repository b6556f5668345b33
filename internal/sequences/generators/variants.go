package generators

import (
	"math"
	"sort"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/aristath/helmsman/internal/sequences/patterns"
	"github.com/rs/zerolog"
)

// PartialExecutionGenerator scales the top candidates down to fractional
// sizes, surfacing plans the full-size candidates would price out.
type PartialExecutionGenerator struct {
	log zerolog.Logger
}

// NewPartialExecutionGenerator creates the partial-execution generator.
func NewPartialExecutionGenerator(log zerolog.Logger) *PartialExecutionGenerator {
	return &PartialExecutionGenerator{
		log: log.With().Str("component", "generator").Str("generator", "partial_execution").Logger(),
	}
}

func (g *PartialExecutionGenerator) Name() string { return "partial_execution" }

var defaultMultipliers = []float64{0.25, 0.50, 0.75}

func (g *PartialExecutionGenerator) Generate(ctx *patterns.Context, params map[string]interface{}) []domain.ActionSequence {
	poolSize := domain.GetIntParam(params, "pool_size", 6)
	pool := candidatePool(ctx, poolSize)

	var sequences []domain.ActionSequence
	for _, base := range pool {
		for _, mult := range defaultMultipliers {
			scaled := scaleAction(ctx, base, mult)
			if scaled == nil {
				continue
			}
			if scaled.Side == "BUY" && scaled.ValueEUR > ctx.Portfolio.AvailableCashEUR {
				continue
			}
			sequences = append(sequences, patterns.NewSequence("partial_execution", []domain.ActionCandidate{*scaled}))
		}
	}
	return sequences
}

// scaleAction resizes a candidate, re-deriving value and fees. Scaling that
// collapses to zero shares or drops below the worthwhile floor returns nil.
func scaleAction(ctx *patterns.Context, a domain.ActionCandidate, mult float64) *domain.ActionCandidate {
	quantity := int(math.Round(float64(a.Quantity) * mult))
	if quantity < 1 || quantity == a.Quantity {
		return nil
	}

	gross := float64(quantity) * a.Price
	if !ctx.Portfolio.IsWorthwhile(gross) {
		return nil
	}
	fee := ctx.Portfolio.TransactionCost(gross)

	scaled := a
	scaled.Quantity = quantity
	if a.Side == "BUY" {
		scaled.ValueEUR = gross + fee
	} else {
		scaled.ValueEUR = gross - fee
	}
	// A scaled-down trade is less attractive than its full-size original.
	if mult < 1 {
		scaled.Priority = a.Priority * mult
	}
	return &scaled
}

// ConstraintRelaxationGenerator retries the sizing rules with the
// per-trade value cap lifted, so a strongly underweight position can be
// corrected in one trade instead of many.
type ConstraintRelaxationGenerator struct {
	log zerolog.Logger
}

// NewConstraintRelaxationGenerator creates the constraint-relaxation generator.
func NewConstraintRelaxationGenerator(log zerolog.Logger) *ConstraintRelaxationGenerator {
	return &ConstraintRelaxationGenerator{
		log: log.With().Str("component", "generator").Str("generator", "constraint_relaxation").Logger(),
	}
}

func (g *ConstraintRelaxationGenerator) Name() string { return "constraint_relaxation" }

func (g *ConstraintRelaxationGenerator) Generate(ctx *patterns.Context, params map[string]interface{}) []domain.ActionSequence {
	relaxFactor := domain.GetFloatParam(params, "relax_factor", 2.0)
	poolSize := domain.GetIntParam(params, "pool_size", 6)
	pool := candidatePool(ctx, poolSize)

	var sequences []domain.ActionSequence
	for _, base := range pool {
		scaled := scaleAction(ctx, base, relaxFactor)
		if scaled == nil {
			continue
		}
		if scaled.Side == "BUY" && scaled.ValueEUR > ctx.Portfolio.AvailableCashEUR {
			continue
		}
		if scaled.Side == "SELL" {
			pos, held := ctx.Portfolio.PositionFor(scaled.Symbol)
			if !held || scaled.Quantity > pos.Quantity {
				continue
			}
		}
		sequences = append(sequences, patterns.NewSequence("constraint_relaxation", []domain.ActionCandidate{*scaled}))
	}
	return sequences
}

func sortCandidates(candidates []domain.ActionCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].Symbol < candidates[j].Symbol
	})
}
