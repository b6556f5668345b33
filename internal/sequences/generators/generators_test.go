package generators

import (
	"testing"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/aristath/helmsman/internal/sequences/patterns"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext(maxDepth int) *patterns.Context {
	portfolio := domain.NewOpportunityContext()
	portfolio.AvailableCashEUR = 1000
	portfolio.TotalPortfolioValueEUR = 10000
	return &patterns.Context{
		Opportunities: make(domain.OpportunitiesByCategory),
		Portfolio:     portfolio,
		MaxDepth:      maxDepth,
	}
}

func candidate(side, symbol string, quantity int, price, priority float64) domain.ActionCandidate {
	value := float64(quantity) * price
	return domain.ActionCandidate{
		Side: side, Symbol: symbol, Name: symbol,
		Quantity: quantity, Price: price, ValueEUR: value, Priority: priority,
	}
}

func TestCombinatorialDepthOneOnlySingletons(t *testing.T) {
	ctx := testContext(1)
	ctx.Opportunities[domain.OpportunityCategoryRebalanceBuys] = []domain.ActionCandidate{
		candidate("BUY", "A", 10, 30, 0.9),
		candidate("BUY", "B", 10, 40, 0.8),
	}

	g := NewCombinatorialGenerator(zerolog.Nop())
	sequences := g.Generate(ctx, nil)
	require.Len(t, sequences, 2)
	for _, seq := range sequences {
		assert.Equal(t, 1, seq.Depth)
	}
}

func TestCombinatorialEnumeratesUpToDepth(t *testing.T) {
	ctx := testContext(2)
	ctx.Opportunities[domain.OpportunityCategoryProfitTaking] = []domain.ActionCandidate{
		candidate("SELL", "S1", 10, 30, 0.9),
		candidate("SELL", "S2", 10, 20, 0.8),
	}
	ctx.Opportunities[domain.OpportunityCategoryRebalanceBuys] = []domain.ActionCandidate{
		candidate("BUY", "B1", 10, 50, 0.7),
	}

	g := NewCombinatorialGenerator(zerolog.Nop())
	sequences := g.Generate(ctx, nil)
	// 3 singletons + 3 pairs, all feasible.
	assert.Len(t, sequences, 6)
}

func TestCombinatorialPrunesCashInfeasible(t *testing.T) {
	ctx := testContext(2)
	ctx.Portfolio.AvailableCashEUR = 100
	ctx.Opportunities[domain.OpportunityCategoryRebalanceBuys] = []domain.ActionCandidate{
		candidate("BUY", "BIG", 10, 50, 0.9), // 500 > 100 cash
		candidate("BUY", "OK", 2, 40, 0.8),   // 80 fits
	}

	g := NewCombinatorialGenerator(zerolog.Nop())
	sequences := g.Generate(ctx, nil)
	require.Len(t, sequences, 1)
	assert.Equal(t, "OK", sequences[0].Actions[0].Symbol)
}

func TestCombinatorialHonoursConcentrationCap(t *testing.T) {
	ctx := testContext(1)
	ctx.Portfolio.AvailableCashEUR = 5000
	// 2500 on one symbol is 25% of a 10k portfolio, above the 20% cap.
	ctx.Opportunities[domain.OpportunityCategoryOpportunityBuys] = []domain.ActionCandidate{
		candidate("BUY", "FAT", 50, 50, 0.9),
	}

	g := NewCombinatorialGenerator(zerolog.Nop())
	assert.Empty(t, g.Generate(ctx, nil))
}

func TestCombinatorialRespectsMaxCombinations(t *testing.T) {
	ctx := testContext(3)
	ctx.Portfolio.AvailableCashEUR = 100000
	ctx.Portfolio.TotalPortfolioValueEUR = 1000000
	var pool []domain.ActionCandidate
	for _, s := range []string{"A", "B", "C", "D", "E", "F"} {
		pool = append(pool, candidate("BUY", s, 1, 100, 0.5))
	}
	ctx.Opportunities[domain.OpportunityCategoryOpportunityBuys] = pool

	g := NewCombinatorialGenerator(zerolog.Nop())
	sequences := g.Generate(ctx, map[string]interface{}{"max_combinations": 5})
	assert.LessOrEqual(t, len(sequences), 5)
}

func TestCombinatorialDeterministic(t *testing.T) {
	ctx := testContext(3)
	ctx.Opportunities[domain.OpportunityCategoryProfitTaking] = []domain.ActionCandidate{
		candidate("SELL", "S1", 10, 30, 0.9),
		candidate("SELL", "S2", 10, 20, 0.8),
	}
	ctx.Opportunities[domain.OpportunityCategoryRebalanceBuys] = []domain.ActionCandidate{
		candidate("BUY", "B1", 5, 50, 0.7),
		candidate("BUY", "B2", 5, 40, 0.6),
	}

	g := NewCombinatorialGenerator(zerolog.Nop())
	first := g.Generate(ctx, nil)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, g.Generate(ctx, nil))
	}
}

func TestPartialExecutionScalesQuantities(t *testing.T) {
	ctx := testContext(4)
	ctx.Opportunities[domain.OpportunityCategoryRebalanceBuys] = []domain.ActionCandidate{
		candidate("BUY", "A", 20, 25, 0.9), // 500 EUR full size
	}

	g := NewPartialExecutionGenerator(zerolog.Nop())
	sequences := g.Generate(ctx, nil)
	require.Len(t, sequences, 3)

	quantities := map[int]bool{}
	for _, seq := range sequences {
		require.Len(t, seq.Actions, 1)
		quantities[seq.Actions[0].Quantity] = true
		assert.Equal(t, "partial_execution", seq.PatternType)
	}
	assert.True(t, quantities[5])
	assert.True(t, quantities[10])
	assert.True(t, quantities[15])
}

func TestPartialExecutionDropsDust(t *testing.T) {
	ctx := testContext(4)
	// Quarter size of 2 shares at 3 EUR rounds to 1 share = 3 EUR, below the
	// worthwhile floor.
	ctx.Opportunities[domain.OpportunityCategoryRebalanceBuys] = []domain.ActionCandidate{
		candidate("BUY", "TINY", 2, 3, 0.9),
	}

	g := NewPartialExecutionGenerator(zerolog.Nop())
	assert.Empty(t, g.Generate(ctx, nil))
}

func TestConstraintRelaxationDoublesWithinCash(t *testing.T) {
	ctx := testContext(4)
	ctx.Portfolio.AvailableCashEUR = 2000
	ctx.Opportunities[domain.OpportunityCategoryRebalanceBuys] = []domain.ActionCandidate{
		candidate("BUY", "A", 10, 50, 0.9), // 500 full, 1000 relaxed
	}

	g := NewConstraintRelaxationGenerator(zerolog.Nop())
	sequences := g.Generate(ctx, nil)
	require.Len(t, sequences, 1)
	assert.Equal(t, 20, sequences[0].Actions[0].Quantity)
}

func TestConstraintRelaxationCapsSellAtHolding(t *testing.T) {
	ctx := testContext(4)
	ctx.Portfolio.Positions = []domain.Position{
		{Symbol: "S", Quantity: 12, CurrentPrice: 50},
	}
	ctx.Opportunities[domain.OpportunityCategoryProfitTaking] = []domain.ActionCandidate{
		candidate("SELL", "S", 10, 50, 0.9), // doubling needs 20 > 12 held
	}

	g := NewConstraintRelaxationGenerator(zerolog.Nop())
	assert.Empty(t, g.Generate(ctx, nil))
}
