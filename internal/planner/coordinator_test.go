package planner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/aristath/helmsman/internal/cache"
	"github.com/aristath/helmsman/internal/domain"
	"github.com/aristath/helmsman/internal/evaluation"
	"github.com/aristath/helmsman/internal/opportunities"
	"github.com/aristath/helmsman/internal/resilience"
	"github.com/aristath/helmsman/internal/safety"
	"github.com/aristath/helmsman/internal/sequences"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocalPool(t *testing.T, evaluators ...Evaluator) *EvaluatorPool {
	t.Helper()
	if len(evaluators) == 0 {
		evaluators = []Evaluator{NewLocalEvaluator(evaluation.NewService(2, zerolog.Nop()))}
	}
	registry := resilience.NewBreakerRegistry(resilience.NewDefaultBreakerSettings(), zerolog.Nop())
	retry := resilience.NewDefaultRetryPolicy(zerolog.Nop())
	retry.MaxAttempts = 1
	return NewEvaluatorPool(evaluators, registry, retry, zerolog.Nop())
}

func newCoordinator(t *testing.T, pool *EvaluatorPool, rec *cache.RecommendationCache, limiter *safety.FrequencyLimiter) *Coordinator {
	t.Helper()
	return NewCoordinator(
		opportunities.New(zerolog.Nop()),
		sequences.New(zerolog.Nop()),
		pool,
		nil,
		limiter,
		rec,
		nil,
		zerolog.Nop(),
	)
}

// failingEvaluator always errors, to exercise pool fallback.
type failingEvaluator struct{ name string }

func (f *failingEvaluator) Name() string { return f.name }
func (f *failingEvaluator) Evaluate(context.Context, evaluation.BatchRequest) (*evaluation.BatchResponse, error) {
	return nil, errors.New("evaluator down")
}

// flakyEvaluator serves the first batch, then dies.
type flakyEvaluator struct {
	inner Evaluator
	calls int
}

func (f *flakyEvaluator) Name() string { return "flaky" }
func (f *flakyEvaluator) Evaluate(ctx context.Context, req evaluation.BatchRequest) (*evaluation.BatchResponse, error) {
	f.calls++
	if f.calls > 1 {
		return nil, errors.New("evaluator down")
	}
	return f.inner.Evaluate(ctx, req)
}

// constantEvaluator reports the same top sequence for every batch, so the
// global beam freezes after the first insert.
type constantEvaluator struct{}

func (constantEvaluator) Name() string { return "constant" }
func (constantEvaluator) Evaluate(_ context.Context, req evaluation.BatchRequest) (*evaluation.BatchResponse, error) {
	return &evaluation.BatchResponse{
		TopSequences: []domain.EvaluationResult{{SequenceHash: "same", EndScore: 0.5, Feasible: true}},
		Evaluated:    len(req.Sequences),
	}, nil
}

// improvingEvaluator returns a strictly better, never-seen sequence per batch.
type improvingEvaluator struct{ calls int }

func (e *improvingEvaluator) Name() string { return "improving" }
func (e *improvingEvaluator) Evaluate(_ context.Context, req evaluation.BatchRequest) (*evaluation.BatchResponse, error) {
	e.calls++
	return &evaluation.BatchResponse{
		TopSequences: []domain.EvaluationResult{{
			SequenceHash: fmt.Sprintf("h%d", e.calls),
			EndScore:     float64(e.calls) / 100,
			Feasible:     true,
		}},
		Evaluated: len(req.Sequences),
	}, nil
}

func directBuyRequest() PlanRequest {
	return PlanRequest{
		Portfolio: &domain.PortfolioContext{
			TotalValueEUR:    10000,
			AvailableCashEUR: 2000,
			CurrentPrices:    map[string]float64{"AAPL": 100, "SAP": 150},
		},
		Positions: []domain.Position{
			{Symbol: "AAPL", Quantity: 50, AvgPrice: 95, CurrentPrice: 100},
		},
		Securities: []domain.Security{
			{Symbol: "AAPL", Name: "Apple", Price: 100, AllowBuy: true, AllowSell: true, QualityScore: 0.60},
			{Symbol: "SAP", Name: "SAP SE", Price: 150, AllowBuy: true, AllowSell: true, QualityScore: 0.90},
		},
	}
}

// broadUniverseRequest yields enough opportunities for generation to span
// many small batches.
func broadUniverseRequest() PlanRequest {
	portfolio := &domain.PortfolioContext{
		TotalValueEUR:    50000,
		AvailableCashEUR: 10000,
		CurrentPrices:    map[string]float64{},
		SymbolAvgCost:    map[string]float64{"SEC00": 20, "SEC01": 25},
	}
	req := PlanRequest{Portfolio: portfolio}
	for i := 0; i < 12; i++ {
		symbol := fmt.Sprintf("SEC%02d", i)
		price := 50.0 + float64(i)
		portfolio.CurrentPrices[symbol] = price
		req.Securities = append(req.Securities, domain.Security{
			Symbol:       symbol,
			Name:         symbol,
			Price:        price,
			AllowBuy:     true,
			AllowSell:    true,
			QualityScore: 0.75 + float64(i%5)/100,
		})
	}
	req.Positions = []domain.Position{
		{Symbol: "SEC00", Quantity: 100, AvgPrice: 20, CurrentPrice: 50, YearsHeld: 2},
		{Symbol: "SEC01", Quantity: 80, AvgPrice: 25, CurrentPrice: 51, YearsHeld: 1},
	}
	return req
}

func TestCreatePlanDirectBuyWithCash(t *testing.T) {
	c := newCoordinator(t, newLocalPool(t), nil, nil)

	req := directBuyRequest()
	config := domain.NewDefaultConfiguration()
	config.Calculators["opportunity_buys"] = domain.ModuleConfig{
		Enabled: true,
		Params:  map[string]interface{}{"max_value_per_trade": 1500.0},
	}
	req.Config = config

	resp, err := c.CreatePlan(context.Background(), req)
	require.NoError(t, err)
	p := resp.Plan

	require.True(t, p.Feasible)
	require.Len(t, p.Steps, 1)
	step := p.Steps[0]
	assert.Equal(t, "BUY", step.Side)
	assert.Equal(t, "SAP", step.Symbol)
	assert.Equal(t, 10, step.Quantity)
	// 1500 gross plus 2 + 0.2% fee.
	assert.InDelta(t, 1505.0, p.CashRequired, 1e-9)
	assert.Positive(t, resp.Stats.SequencesEvaluated)
	assert.Positive(t, resp.Stats.BatchesProcessed)
}

func TestCreatePlanWindfallSellFundsAveraging(t *testing.T) {
	c := newCoordinator(t, newLocalPool(t), nil, nil)

	req := PlanRequest{
		Portfolio: &domain.PortfolioContext{
			TotalValueEUR:    6700,
			AvailableCashEUR: 100,
			CurrentPrices:    map[string]float64{"NVDA": 45, "BABA": 21},
			CountryTargets:   map[string]float64{"US": 0.3, "ASIA": 0.7},
			SymbolCountry:    map[string]string{"NVDA": "USA", "BABA": "China"},
			CountryGroups:    map[string]string{"USA": "US", "China": "ASIA"},
			SymbolAvgCost:    map[string]float64{"NVDA": 25, "BABA": 30},
		},
		Positions: []domain.Position{
			{Symbol: "NVDA", Quantity: 100, AvgPrice: 25, CurrentPrice: 45, YearsHeld: 1},
			{Symbol: "BABA", Quantity: 100, AvgPrice: 30, CurrentPrice: 21, YearsHeld: 1},
		},
		Securities: []domain.Security{
			{Symbol: "NVDA", Name: "NVIDIA", Price: 45, AllowBuy: true, AllowSell: true, QualityScore: 0.8, HistoricalCAGR: 0.10},
			{Symbol: "BABA", Name: "Alibaba", Price: 21, AllowBuy: true, AllowSell: true, QualityScore: 0.85, HistoricalCAGR: 0.08},
		},
	}

	resp, err := c.CreatePlan(context.Background(), req)
	require.NoError(t, err)
	p := resp.Plan

	require.True(t, p.Feasible)
	require.NotEmpty(t, p.Steps)
	assert.Equal(t, "SELL", p.Steps[0].Side)
	assert.Equal(t, "NVDA", p.Steps[0].Symbol)
	assert.Positive(t, p.Improvement)

	// Prefix cash never negative: running cash flow never dips below the
	// available 100 EUR.
	for _, s := range p.Steps {
		assert.GreaterOrEqual(t, 100+s.RunningCashFlow, -1e-9, "step %d", s.StepNumber)
	}
	// Sells strictly precede buys.
	sawBuy := false
	for _, s := range p.Steps {
		if s.Side == "BUY" {
			sawBuy = true
		}
		if s.Side == "SELL" {
			assert.False(t, sawBuy)
		}
	}
}

func TestCreatePlanCashOnlyPortfolioIsEmpty(t *testing.T) {
	c := newCoordinator(t, newLocalPool(t), nil, nil)

	resp, err := c.CreatePlan(context.Background(), PlanRequest{
		Portfolio: &domain.PortfolioContext{
			TotalValueEUR:    100000,
			AvailableCashEUR: 100000,
			CurrentPrices:    map[string]float64{},
		},
	})
	require.NoError(t, err)

	assert.True(t, resp.Plan.Feasible)
	assert.Empty(t, resp.Plan.Steps)
	assert.Contains(t, resp.Plan.NarrativeSummary, "No actions recommended")
}

// blockedTradeLog reports four trades today, saturating the daily limit.
type blockedTradeLog struct{}

func (blockedTradeLog) LastTrade(string, string) (time.Time, bool, error) {
	return time.Time{}, false, nil
}
func (blockedTradeLog) FirstBuy(string) (time.Time, bool, error) { return time.Time{}, false, nil }
func (blockedTradeLog) CountSince(time.Time) (int, error)        { return 4, nil }
func (blockedTradeLog) LastTradeTime() (time.Time, bool, error) {
	return time.Now().Add(-2 * time.Hour), true, nil
}

func TestCreatePlanFrequencyLimiterBlocks(t *testing.T) {
	cfg := safety.NewFrequencyConfigFrom(domain.NewDefaultConfiguration())
	limiter := safety.NewFrequencyLimiter(blockedTradeLog{}, cfg, zerolog.Nop())
	c := newCoordinator(t, newLocalPool(t), nil, limiter)

	resp, err := c.CreatePlan(context.Background(), directBuyRequest())
	require.NoError(t, err)

	assert.False(t, resp.Plan.Feasible)
	assert.Contains(t, resp.Plan.Error, "daily limit")
}

func TestCreatePlanAllEvaluatorsDown(t *testing.T) {
	pool := newLocalPool(t, &failingEvaluator{name: "a"}, &failingEvaluator{name: "b"})
	c := newCoordinator(t, pool, nil, nil)

	resp, err := c.CreatePlan(context.Background(), directBuyRequest())
	require.NoError(t, err)

	assert.False(t, resp.Plan.Feasible)
	assert.NotEmpty(t, resp.Plan.Error)
}

func TestCreatePlanAbortsWhenEvaluatorDiesMidSearch(t *testing.T) {
	flaky := &flakyEvaluator{inner: NewLocalEvaluator(evaluation.NewService(2, zerolog.Nop()))}
	c := newCoordinator(t, newLocalPool(t, flaky), nil, nil)

	req := broadUniverseRequest()
	config := domain.NewDefaultConfiguration()
	config.BatchSize = 10
	config.EnableEarlyTermination = false
	req.Config = config

	resp, err := c.CreatePlan(context.Background(), req)
	require.NoError(t, err)

	// One good batch must not produce a plan from a partial search.
	assert.False(t, resp.Plan.Feasible)
	assert.Contains(t, resp.Plan.Error, "evaluate batch")
	assert.Equal(t, 1, resp.Stats.BatchesProcessed)
	assert.Greater(t, flaky.calls, 1)
}

func TestCreatePlanFallsBackToHealthyEvaluator(t *testing.T) {
	healthy := NewLocalEvaluator(evaluation.NewService(2, zerolog.Nop()))
	pool := newLocalPool(t, &failingEvaluator{name: "down"}, healthy)
	c := newCoordinator(t, pool, nil, nil)

	resp, err := c.CreatePlan(context.Background(), directBuyRequest())
	require.NoError(t, err)
	assert.True(t, resp.Plan.Feasible)
	assert.NotEmpty(t, resp.Plan.Steps)
}

func TestCreatePlanCacheHitOnNearbyCash(t *testing.T) {
	store, err := cache.NewStore(filepath.Join(t.TempDir(), "cache.db"), zerolog.Nop())
	require.NoError(t, err)
	defer store.Close()
	rec := cache.NewRecommendationCache(store, cache.DefaultRecommendationTTL)

	c := newCoordinator(t, newLocalPool(t), rec, nil)

	first, err := c.CreatePlan(context.Background(), directBuyRequest())
	require.NoError(t, err)
	assert.False(t, first.Stats.CacheHit)

	// 3 EUR of cash difference lands in the same 10 EUR fingerprint bucket.
	req := directBuyRequest()
	req.Portfolio.AvailableCashEUR = 2003
	second, err := c.CreatePlan(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Stats.CacheHit)
	assert.Equal(t, first.Plan.Steps, second.Plan.Steps)
}

func TestCreatePlanTerminatesEarlyOnPlateau(t *testing.T) {
	c := newCoordinator(t, newLocalPool(t, constantEvaluator{}), nil, nil)

	req := broadUniverseRequest()
	config := domain.NewDefaultConfiguration()
	config.BatchSize = 10
	config.MinBatchesToEvaluate = 2
	config.PlateauThreshold = 2
	req.Config = config

	resp, err := c.CreatePlan(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, resp.Stats.TerminatedEarly)
	// Batch 1 inserts, batches 2 and 3 change nothing, then the search stops.
	assert.Equal(t, 3, resp.Stats.BatchesProcessed)
}

func TestCreatePlanKeepsSearchingWhileBeamImproves(t *testing.T) {
	eval := &improvingEvaluator{}
	c := newCoordinator(t, newLocalPool(t, eval), nil, nil)

	req := broadUniverseRequest()
	config := domain.NewDefaultConfiguration()
	config.BatchSize = 10
	config.MinBatchesToEvaluate = 2
	config.PlateauThreshold = 2
	req.Config = config

	resp, err := c.CreatePlan(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, resp.Stats.TerminatedEarly)
	assert.Greater(t, resp.Stats.BatchesProcessed, 3)
	assert.Equal(t, eval.calls, resp.Stats.BatchesProcessed)
}

func TestTargetWeightsDerivedFromPriceHistory(t *testing.T) {
	c := newCoordinator(t, newLocalPool(t), nil, nil)
	config := domain.NewDefaultConfiguration()

	history := func(base, amplitude float64) []float64 {
		prices := make([]float64, 41)
		for i := range prices {
			prices[i] = base + amplitude*float64(i%3)
		}
		return prices
	}

	req := directBuyRequest()
	req.PriceHistory = map[string][]float64{
		"AAPL": history(100, 1.0),
		"SAP":  history(150, 4.0),
	}

	weights := c.targetWeights(req, config, "fp", "sh")
	require.NotEmpty(t, weights)

	// Weights sum to the investable fraction (1 − cash reserve).
	sum := 0.0
	for symbol, w := range weights {
		assert.GreaterOrEqual(t, w, 0.0, "symbol %s", symbol)
		sum += w
	}
	assert.InDelta(t, 1-config.CashReserve, sum, 1e-6)

	// Caller-supplied targets always win over derivation.
	req.TargetWeights = map[string]float64{"AAPL": 0.5}
	assert.Equal(t, req.TargetWeights, c.targetWeights(req, config, "fp", "sh"))

	// No history and no targets means no optimisation.
	assert.Nil(t, c.targetWeights(directBuyRequest(), config, "fp", "sh"))
}

func TestTargetWeightsServedFromAnalyticsCache(t *testing.T) {
	store, err := cache.NewStore(filepath.Join(t.TempDir(), "cache.db"), zerolog.Nop())
	require.NoError(t, err)
	defer store.Close()
	analytics := cache.NewAnalyticsCache(store, cache.DefaultAnalyticsTTL)

	c := NewCoordinator(
		opportunities.New(zerolog.Nop()),
		sequences.New(zerolog.Nop()),
		newLocalPool(t),
		nil,
		nil,
		nil,
		analytics,
		zerolog.Nop(),
	)
	config := domain.NewDefaultConfiguration()

	history := func(base, amplitude float64) []float64 {
		prices := make([]float64, 41)
		for i := range prices {
			prices[i] = base + amplitude*float64(i%3)
		}
		return prices
	}

	req := directBuyRequest()
	req.PriceHistory = map[string][]float64{
		"AAPL": history(100, 1.0),
		"SAP":  history(150, 4.0),
	}
	first := c.targetWeights(req, config, "fp", "sh")
	require.NotEmpty(t, first)

	// Same fingerprint and settings hash: the optimiser is skipped even
	// though the history changed.
	req.PriceHistory = map[string][]float64{
		"AAPL": history(100, 8.0),
		"SAP":  history(150, 1.0),
	}
	cached := c.targetWeights(req, config, "fp", "sh")
	assert.Equal(t, first, cached)

	// A different fingerprint recomputes.
	fresh := c.targetWeights(req, config, "fp2", "sh")
	assert.NotEqual(t, first, fresh)
}

func TestEvaluatorPoolRoundRobin(t *testing.T) {
	a := NewLocalEvaluator(evaluation.NewService(1, zerolog.Nop()))
	b := NewLocalEvaluator(evaluation.NewService(1, zerolog.Nop()))
	pool := newLocalPool(t, a, b)

	req := evaluation.BatchRequest{
		Sequences: []domain.ActionSequence{{
			Actions:      []domain.ActionCandidate{{Side: "SELL", Symbol: "AAPL", Quantity: 1, Price: 100}},
			SequenceHash: "h1",
			Depth:        1,
		}},
		Context: &domain.PortfolioContext{
			TotalValueEUR:    10000,
			AvailableCashEUR: 1000,
			CurrentPrices:    map[string]float64{"AAPL": 100},
		},
		Positions:  []domain.Position{{Symbol: "AAPL", Quantity: 50, CurrentPrice: 100}},
		Securities: []domain.Security{{Symbol: "AAPL", QualityScore: 0.8}},
		Settings:   domain.NewDefaultEvaluationSettings(),
	}

	for i := 0; i < 4; i++ {
		resp, err := pool.Dispatch(context.Background(), req)
		require.NoError(t, err)
		assert.Len(t, resp.TopSequences, 1)
	}
}
