package evaluation

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPortfolioContext() *domain.PortfolioContext {
	return &domain.PortfolioContext{
		TotalValueEUR:    10000,
		AvailableCashEUR: 1000,
		CurrentPrices:    map[string]float64{"AAA": 10, "BBB": 20, "CCC": 30},
		CountryTargets:   map[string]float64{"EU": 0.6, "US": 0.4},
		IndustryTargets:  map[string]float64{"TECH": 0.5, "HEALTH": 0.5},
		SymbolCountry:    map[string]string{"AAA": "Germany", "BBB": "USA", "CCC": "France"},
		SymbolIndustry:   map[string]string{"AAA": "Software", "BBB": "Biotech", "CCC": "Software"},
		SymbolAvgCost:    map[string]float64{"AAA": 12},
		CountryGroups:    map[string]string{"Germany": "EU", "France": "EU", "USA": "US"},
		IndustryGroups:   map[string]string{"Software": "TECH", "Biotech": "HEALTH"},
	}
}

func testSecurities() []domain.Security {
	return []domain.Security{
		{Symbol: "AAA", QualityScore: 0.9, DividendYield: 0.03, HistoricalCAGR: 0.10, Volatility: 0.20},
		{Symbol: "BBB", QualityScore: 0.7, DividendYield: 0.01, HistoricalCAGR: 0.12, Volatility: 0.30},
		{Symbol: "CCC", QualityScore: 0.8, DividendYield: 0.02, HistoricalCAGR: 0.08, Volatility: 0.25},
	}
}

func testPositions() []domain.Position {
	return []domain.Position{
		{Symbol: "AAA", Quantity: 100, AvgPrice: 12, CurrentPrice: 10},
		{Symbol: "BBB", Quantity: 50, AvgPrice: 15, CurrentPrice: 20},
	}
}

func seqOf(actions ...domain.ActionCandidate) domain.ActionSequence {
	return domain.ActionSequence{
		Actions:      actions,
		Depth:        len(actions),
		SequenceHash: fmt.Sprintf("h-%v", actions),
	}
}

func TestSimulateCashPath(t *testing.T) {
	ctx := testPortfolioContext()
	settings := domain.NewDefaultEvaluationSettings()

	seq := seqOf(
		domain.ActionCandidate{Side: "SELL", Symbol: "BBB", Quantity: 10, Price: 20},
		domain.ActionCandidate{Side: "BUY", Symbol: "CCC", Quantity: 20, Price: 30},
	)
	outcome := Simulate(ctx, testPositions(), seq, settings, nil)

	require.True(t, outcome.Feasible)
	// Sell: 200 gross − (2 + 0.4) fee; buy: 600 gross + (2 + 1.2) fee.
	assert.InDelta(t, 1000+200-2.4-600-3.2, outcome.EndCash, 1e-9)
	assert.InDelta(t, 2.4+3.2, outcome.TotalCost, 1e-9)
	assert.Equal(t, 40.0, outcome.EndPositions["BBB"])
	assert.Equal(t, 20.0, outcome.EndPositions["CCC"])
	// Cash dipped 405.6 below the starting level after the buy.
	assert.InDelta(t, 405.6, outcome.CashRequired, 1e-9)
}

func TestSimulateSkipsUnaffordableBuy(t *testing.T) {
	ctx := testPortfolioContext()
	ctx.AvailableCashEUR = 100
	settings := domain.NewDefaultEvaluationSettings()

	seq := seqOf(domain.ActionCandidate{Side: "BUY", Symbol: "CCC", Quantity: 50, Price: 30})
	outcome := Simulate(ctx, testPositions(), seq, settings, nil)

	assert.True(t, outcome.Feasible)
	assert.Equal(t, 1, outcome.SkippedBuys)
	assert.Equal(t, 100.0, outcome.EndCash)
	assert.Zero(t, outcome.TotalCost)
}

func TestSimulateSellClampsToHolding(t *testing.T) {
	ctx := testPortfolioContext()
	settings := domain.NewDefaultEvaluationSettings()

	seq := seqOf(domain.ActionCandidate{Side: "SELL", Symbol: "BBB", Quantity: 80, Price: 20})
	outcome := Simulate(ctx, testPositions(), seq, settings, nil)

	require.True(t, outcome.Feasible)
	_, stillHeld := outcome.EndPositions["BBB"]
	assert.False(t, stillHeld, "entire holding sold")
	// 50 shares, not the requested 80.
	assert.InDelta(t, 1000+50*20-(2+1000*0.002), outcome.EndCash, 1e-9)
}

func TestSimulateSellUnheldIsInfeasible(t *testing.T) {
	ctx := testPortfolioContext()
	settings := domain.NewDefaultEvaluationSettings()

	seq := seqOf(domain.ActionCandidate{Side: "SELL", Symbol: "CCC", Quantity: 10, Price: 30})
	outcome := Simulate(ctx, testPositions(), seq, settings, nil)

	assert.False(t, outcome.Feasible)
	assert.Error(t, outcome.Err)
}

func TestSimulateAppliesPriceFactors(t *testing.T) {
	ctx := testPortfolioContext()
	settings := domain.NewDefaultEvaluationSettings()

	seq := seqOf(domain.ActionCandidate{Side: "SELL", Symbol: "BBB", Quantity: 10, Price: 20})
	baseline := Simulate(ctx, testPositions(), seq, settings, nil)
	crashed := Simulate(ctx, testPositions(), seq, settings, map[string]float64{
		"AAA": 0.9, "BBB": 0.9,
	})

	assert.Less(t, crashed.EndCash, baseline.EndCash)
	assert.Less(t, crashed.TotalValue, baseline.TotalValue)
}

func TestScoreRewardsClosingTargetGap(t *testing.T) {
	ctx := testPortfolioContext()
	scorer := NewScorer(ctx, testSecurities(), nil)
	settings := domain.NewDefaultEvaluationSettings()

	// Current: AAA (EU) 1000, BBB (US) 1000 → EU 50/US 50 vs 60/40 targets.
	// Buying CCC (EU) moves toward target.
	toward := Simulate(ctx, testPositions(), seqOf(
		domain.ActionCandidate{Side: "BUY", Symbol: "CCC", Quantity: 10, Price: 30},
	), settings, nil)
	away := Simulate(ctx, testPositions(), seqOf(
		domain.ActionCandidate{Side: "BUY", Symbol: "BBB", Quantity: 15, Price: 20},
	), settings, nil)

	scoreToward := scorer.Score(toward, 0)
	scoreAway := scorer.Score(away, 0)
	assert.Greater(t, scoreToward.Breakdown["country_gap"], scoreAway.Breakdown["country_gap"])
}

func TestScoreCostPenaltyReducesTotal(t *testing.T) {
	ctx := testPortfolioContext()
	scorer := NewScorer(ctx, testSecurities(), nil)
	settings := domain.NewDefaultEvaluationSettings()

	outcome := Simulate(ctx, testPositions(), seqOf(
		domain.ActionCandidate{Side: "SELL", Symbol: "BBB", Quantity: 10, Price: 20},
	), settings, nil)

	without := scorer.Score(outcome, 0)
	with := scorer.Score(outcome, 0.5)
	assert.Equal(t, without.EndState, with.EndState)
	assert.Less(t, with.Total, without.Total)
}

func TestScoreAveragingRewardsQualityDips(t *testing.T) {
	ctx := testPortfolioContext()
	scorer := NewScorer(ctx, testSecurities(), nil)
	settings := domain.NewDefaultEvaluationSettings()

	// AAA trades at 10 with avg cost 12 and quality 0.9.
	dip := Simulate(ctx, testPositions(), seqOf(
		domain.ActionCandidate{Side: "BUY", Symbol: "AAA", Quantity: 10, Price: 10},
	), settings, nil)
	scores := scorer.Score(dip, 0)
	assert.InDelta(t, 0.9, scores.Breakdown["averaging"], 1e-9)
}

func TestScoreStabilityUsesPriceHistory(t *testing.T) {
	ctx := testPortfolioContext()
	settings := domain.NewDefaultEvaluationSettings()

	smooth := make([]float64, 60)
	crashy := make([]float64, 60)
	for i := range smooth {
		smooth[i] = 100 + float64(i)*0.1
		crashy[i] = 100 + 40*math.Sin(float64(i))
	}

	positions := []domain.Position{{Symbol: "AAA", Quantity: 100, AvgPrice: 12, CurrentPrice: 10}}
	outcome := Simulate(ctx, positions, domain.ActionSequence{}, settings, nil)

	calm := NewScorer(ctx, testSecurities(), map[string][]float64{"AAA": smooth})
	wild := NewScorer(ctx, testSecurities(), map[string][]float64{"AAA": crashy})
	assert.Greater(t,
		calm.Score(outcome, 0).Breakdown["stability"],
		wild.Score(outcome, 0).Breakdown["stability"])
}

func TestScoreStabilityFallsBackWithoutHistory(t *testing.T) {
	ctx := testPortfolioContext()
	settings := domain.NewDefaultEvaluationSettings()
	outcome := Simulate(ctx, testPositions(), domain.ActionSequence{}, settings, nil)

	// AAA vol 0.20 → 0.50, BBB vol 0.30 → 0.25; equal €1000 weights.
	scorer := NewScorer(ctx, testSecurities(), nil)
	assert.InDelta(t, 0.375, scorer.Score(outcome, 0).Breakdown["stability"], 1e-9)
}

func TestBeamKeepsTopKSorted(t *testing.T) {
	beam := NewBeam(3, false)
	for i, score := range []float64{0.2, 0.8, 0.5, 0.9, 0.1} {
		beam.Add(domain.EvaluationResult{
			SequenceHash: fmt.Sprintf("s%d", i),
			EndScore:     score,
		})
	}

	results := beam.Results()
	require.Len(t, results, 3)
	assert.Equal(t, 0.9, results[0].EndScore)
	assert.Equal(t, 0.8, results[1].EndScore)
	assert.Equal(t, 0.5, results[2].EndScore)
}

func TestBeamRejectsDuplicateHash(t *testing.T) {
	beam := NewBeam(3, false)
	assert.True(t, beam.Add(domain.EvaluationResult{SequenceHash: "dup", EndScore: 0.5}))
	assert.False(t, beam.Add(domain.EvaluationResult{SequenceHash: "dup", EndScore: 0.9}))
	assert.Equal(t, 1, beam.Len())
}

func TestBeamParetoEvictsDominated(t *testing.T) {
	beam := NewBeam(5, true)
	dominated := domain.EvaluationResult{SequenceHash: "weak", EndScore: 0.5, DiversificationScore: 0.5, RiskScore: 0.5, TotalCost: 10}
	dominator := domain.EvaluationResult{SequenceHash: "strong", EndScore: 0.6, DiversificationScore: 0.6, RiskScore: 0.6, TotalCost: 5}
	tradeoff := domain.EvaluationResult{SequenceHash: "cheap", EndScore: 0.4, DiversificationScore: 0.4, RiskScore: 0.4, TotalCost: 1}

	require.True(t, beam.Add(dominated))
	require.True(t, beam.Add(dominator))
	require.True(t, beam.Add(tradeoff))

	hashes := map[string]bool{}
	for _, r := range beam.Results() {
		hashes[r.SequenceHash] = true
	}
	assert.False(t, hashes["weak"], "dominated entry evicted")
	assert.True(t, hashes["strong"])
	assert.True(t, hashes["cheap"], "non-dominated trade-off kept")

	// A newcomer dominated by an existing entry is rejected.
	assert.False(t, beam.Add(domain.EvaluationResult{SequenceHash: "worse", EndScore: 0.3, DiversificationScore: 0.3, RiskScore: 0.3, TotalCost: 100}))
}

func TestEvaluateSequenceDeterministicMode(t *testing.T) {
	ctx := testPortfolioContext()
	scorer := NewScorer(ctx, testSecurities(), nil)
	securities := map[string]domain.Security{}
	for _, s := range testSecurities() {
		securities[s.Symbol] = s
	}
	settings := domain.NewDefaultEvaluationSettings()

	seq := seqOf(domain.ActionCandidate{Side: "SELL", Symbol: "BBB", Quantity: 10, Price: 20})
	first := EvaluateSequence(scorer, ctx, testPositions(), securities, seq, settings)
	again := EvaluateSequence(scorer, ctx, testPositions(), securities, seq, settings)
	assert.Equal(t, first, again)
	assert.True(t, first.Feasible)
	assert.Greater(t, first.EndScore, 0.0)
}

func TestMonteCarloReproducibleWithSeed(t *testing.T) {
	ctx := testPortfolioContext()
	scorer := NewScorer(ctx, testSecurities(), nil)
	securities := map[string]domain.Security{}
	for _, s := range testSecurities() {
		securities[s.Symbol] = s
	}
	settings := domain.NewDefaultEvaluationSettings()
	settings.ScenarioMode = domain.ScenarioMonteCarlo
	settings.MonteCarloPaths = 50
	settings.MonteCarloSeed = 42

	seq := seqOf(domain.ActionCandidate{Side: "BUY", Symbol: "CCC", Quantity: 10, Price: 30})
	first := EvaluateSequence(scorer, ctx, testPositions(), securities, seq, settings)
	again := EvaluateSequence(scorer, ctx, testPositions(), securities, seq, settings)
	assert.Equal(t, first.EndScore, again.EndScore)
	assert.Equal(t, first.TotalScore, again.TotalScore)
}

func TestStochasticScoresAtMostDeterministic(t *testing.T) {
	ctx := testPortfolioContext()
	scorer := NewScorer(ctx, testSecurities(), nil)
	securities := map[string]domain.Security{}
	for _, s := range testSecurities() {
		securities[s.Symbol] = s
	}

	seq := seqOf(domain.ActionCandidate{Side: "SELL", Symbol: "BBB", Quantity: 10, Price: 20})
	deterministic := EvaluateSequence(scorer, ctx, testPositions(), securities, seq, domain.NewDefaultEvaluationSettings())

	settings := domain.NewDefaultEvaluationSettings()
	settings.ScenarioMode = domain.ScenarioStochastic
	stochastic := EvaluateSequence(scorer, ctx, testPositions(), securities, seq, settings)

	// 0.6·worst + 0.4·mean can never exceed the best single run, and the
	// unshifted run is one of them.
	assert.LessOrEqual(t, stochastic.EndScore, deterministic.EndScore+1e-9)
}

func TestEvaluateBatchValidation(t *testing.T) {
	svc := NewService(2, zerolog.Nop())
	ctx := context.Background()

	_, err := svc.EvaluateBatch(ctx, BatchRequest{Context: testPortfolioContext()})
	assert.Error(t, err, "empty batch rejected")

	_, err = svc.EvaluateBatch(ctx, BatchRequest{
		Sequences: make([]domain.ActionSequence, MaxBatchSize+1),
		Context:   testPortfolioContext(),
	})
	assert.Error(t, err, "oversized batch rejected")

	settings := domain.NewDefaultEvaluationSettings()
	settings.TransactionCostFixed = -1
	_, err = svc.EvaluateBatch(ctx, BatchRequest{
		Sequences: []domain.ActionSequence{seqOf(domain.ActionCandidate{Side: "SELL", Symbol: "BBB", Quantity: 1, Price: 20})},
		Context:   testPortfolioContext(),
		Settings:  settings,
	})
	assert.Error(t, err, "negative cost rejected")
}

func TestEvaluateBatchReturnsSortedTopK(t *testing.T) {
	svc := NewService(4, zerolog.Nop())

	var sequences []domain.ActionSequence
	for i := 1; i <= 20; i++ {
		sequences = append(sequences, seqOf(
			domain.ActionCandidate{Side: "SELL", Symbol: "BBB", Quantity: i, Price: 20},
		))
	}

	settings := domain.NewDefaultEvaluationSettings()
	settings.BeamWidth = 5

	resp, err := svc.EvaluateBatch(context.Background(), BatchRequest{
		Sequences:  sequences,
		Context:    testPortfolioContext(),
		Positions:  testPositions(),
		Securities: testSecurities(),
		Settings:   settings,
	})
	require.NoError(t, err)
	assert.Equal(t, 20, resp.Evaluated)
	require.LessOrEqual(t, len(resp.TopSequences), 5)
	for i := 1; i < len(resp.TopSequences); i++ {
		assert.GreaterOrEqual(t, resp.TopSequences[i-1].EndScore, resp.TopSequences[i].EndScore)
	}
}

func TestEvaluateBatchCountsInfeasible(t *testing.T) {
	svc := NewService(1, zerolog.Nop())

	resp, err := svc.EvaluateBatch(context.Background(), BatchRequest{
		Sequences: []domain.ActionSequence{
			seqOf(domain.ActionCandidate{Side: "SELL", Symbol: "CCC", Quantity: 10, Price: 30}), // unheld
			seqOf(domain.ActionCandidate{Side: "SELL", Symbol: "BBB", Quantity: 10, Price: 20}),
		},
		Context:    testPortfolioContext(),
		Positions:  testPositions(),
		Securities: testSecurities(),
		Settings:   domain.NewDefaultEvaluationSettings(),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Infeasible)
	assert.Len(t, resp.TopSequences, 1)
}
