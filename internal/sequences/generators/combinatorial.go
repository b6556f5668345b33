package generators

import (
	"github.com/aristath/helmsman/internal/domain"
	"github.com/aristath/helmsman/internal/sequences/patterns"
	"github.com/rs/zerolog"
)

// Generator expands the opportunity pool into candidate sequences beyond
// what the named patterns produce.
type Generator interface {
	Name() string
	Generate(ctx *patterns.Context, params map[string]interface{}) []domain.ActionSequence
}

// CombinatorialGenerator enumerates k-combinations of the top candidates for
// k = 1..max_depth, in deterministic order, pruning infeasible cash paths and
// over-concentrated buys. The max_combinations cap applies to raw enumeration,
// before any downstream filtering.
type CombinatorialGenerator struct {
	log zerolog.Logger
}

// NewCombinatorialGenerator creates the combinatorial generator.
func NewCombinatorialGenerator(log zerolog.Logger) *CombinatorialGenerator {
	return &CombinatorialGenerator{
		log: log.With().Str("component", "generator").Str("generator", "combinatorial").Logger(),
	}
}

func (g *CombinatorialGenerator) Name() string { return "combinatorial" }

func (g *CombinatorialGenerator) Generate(ctx *patterns.Context, params map[string]interface{}) []domain.ActionSequence {
	maxCombinations := domain.GetIntParam(params, "max_combinations", 2000)
	maxPositionPct := domain.GetFloatParam(params, "max_position_pct", 0.20)
	poolSize := domain.GetIntParam(params, "pool_size", 12)

	pool := candidatePool(ctx, poolSize)
	if len(pool) == 0 {
		return nil
	}

	maxDepth := ctx.MaxDepth
	if maxDepth < 1 {
		maxDepth = 1
	}
	if maxDepth > len(pool) {
		maxDepth = len(pool)
	}

	var sequences []domain.ActionSequence
	enumerated := 0

	indices := make([]int, 0, maxDepth)
	var walk func(start int)
	walk = func(start int) {
		if enumerated >= maxCombinations {
			return
		}
		if len(indices) > 0 {
			enumerated++
			actions := make([]domain.ActionCandidate, len(indices))
			for i, idx := range indices {
				actions[i] = pool[idx]
			}
			if g.feasible(ctx, actions, maxPositionPct) {
				sequences = append(sequences, patterns.NewSequence("combinatorial", actions))
			}
		}
		if len(indices) >= maxDepth {
			return
		}
		for i := start; i < len(pool); i++ {
			indices = append(indices, i)
			walk(i + 1)
			indices = indices[:len(indices)-1]
			if enumerated >= maxCombinations {
				return
			}
		}
	}
	walk(0)

	g.log.Debug().
		Int("enumerated", enumerated).
		Int("kept", len(sequences)).
		Msg("Combinatorial enumeration complete")
	return sequences
}

// feasible checks symbol uniqueness, the sells-first cash path, and the
// per-symbol concentration cap on buys.
func (g *CombinatorialGenerator) feasible(ctx *patterns.Context, actions []domain.ActionCandidate, maxPositionPct float64) bool {
	seen := make(map[string]bool, len(actions))
	cash := ctx.Portfolio.AvailableCashEUR
	total := ctx.Portfolio.TotalPortfolioValueEUR

	for _, a := range actions {
		if seen[a.Symbol] {
			return false
		}
		seen[a.Symbol] = true
		if a.Side == "SELL" {
			cash += a.ValueEUR
		}
	}
	for _, a := range actions {
		if a.Side != "BUY" {
			continue
		}
		cash -= a.ValueEUR
		if cash < 0 {
			return false
		}
		if total > 0 {
			existing := 0.0
			if pos, held := ctx.Portfolio.PositionFor(a.Symbol); held {
				price := ctx.Portfolio.CurrentPrices[a.Symbol]
				if price <= 0 {
					price = pos.CurrentPrice
				}
				existing = float64(pos.Quantity) * price
			}
			if (existing+a.ValueEUR)/total > maxPositionPct {
				return false
			}
		}
	}
	return true
}

// candidatePool flattens all categories into one priority-ordered slice,
// keeping only the strongest few so the enumeration stays tractable.
func candidatePool(ctx *patterns.Context, limit int) []domain.ActionCandidate {
	var pool []domain.ActionCandidate
	for _, category := range domain.AllOpportunityCategories {
		pool = append(pool, ctx.Opportunities[category]...)
	}
	sortCandidates(pool)
	if len(pool) > limit {
		pool = pool[:limit]
	}
	return pool
}
