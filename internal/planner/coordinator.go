package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/helmsman/internal/cache"
	"github.com/aristath/helmsman/internal/domain"
	"github.com/aristath/helmsman/internal/evaluation"
	"github.com/aristath/helmsman/internal/fingerprint"
	"github.com/aristath/helmsman/internal/opportunities"
	"github.com/aristath/helmsman/internal/optimizer"
	"github.com/aristath/helmsman/internal/plan"
	"github.com/aristath/helmsman/internal/safety"
	"github.com/aristath/helmsman/internal/sequences"
	"github.com/aristath/helmsman/internal/sequences/patterns"
	"github.com/rs/zerolog"
)

const planCacheCategory = "plan"

// PlanRequest is one planning invocation.
type PlanRequest struct {
	Portfolio     *domain.PortfolioContext     `json:"portfolio"`
	Positions     []domain.Position            `json:"positions"`
	Securities    []domain.Security            `json:"securities"`
	TargetWeights map[string]float64           `json:"target_weights,omitempty"`
	PriceHistory  map[string][]float64         `json:"price_history,omitempty"`
	Config        *domain.PlannerConfiguration `json:"config,omitempty"`
	Settings      *domain.EvaluationSettings   `json:"settings,omitempty"`
}

// PlanResponse pairs the plan with run statistics.
type PlanResponse struct {
	Plan  domain.Plan      `json:"plan"`
	Stats domain.PlanStats `json:"stats"`
}

// Coordinator drives the planning workflow: identify opportunities, stream
// sequence batches, dispatch each batch to an evaluator, merge local top-Ks
// into a global beam in strict batch order, and assemble the winner into a
// plan. One request is one single-logical-threaded driver.
type Coordinator struct {
	opportunities   *opportunities.Service
	sequences       *sequences.Service
	pool            *EvaluatorPool
	gate            *safety.Gate
	limiter         *safety.FrequencyLimiter
	recommendations *cache.RecommendationCache
	analytics       *cache.AnalyticsCache
	optimizer       *optimizer.Service
	assembler       *plan.Assembler
	log             zerolog.Logger
}

// NewCoordinator wires the planning pipeline. gate, limiter,
// recommendations, and analytics may be nil when the corresponding layer is
// disabled.
func NewCoordinator(
	opps *opportunities.Service,
	seqs *sequences.Service,
	pool *EvaluatorPool,
	gate *safety.Gate,
	limiter *safety.FrequencyLimiter,
	recommendations *cache.RecommendationCache,
	analytics *cache.AnalyticsCache,
	log zerolog.Logger,
) *Coordinator {
	return &Coordinator{
		opportunities:   opps,
		sequences:       seqs,
		pool:            pool,
		gate:            gate,
		limiter:         limiter,
		recommendations: recommendations,
		analytics:       analytics,
		optimizer:       optimizer.NewService(log),
		assembler:       plan.NewAssembler(log),
		log:             log.With().Str("module", "planner").Logger(),
	}
}

// CreatePlan runs the full workflow. Planning failures ride inside the plan
// (feasible=false plus error); only malformed requests return an error.
func (c *Coordinator) CreatePlan(ctx context.Context, req PlanRequest) (*PlanResponse, error) {
	started := time.Now()

	config := req.Config
	if config == nil {
		config = domain.NewDefaultConfiguration()
	}
	config.Validate()

	settings := domain.NewDefaultEvaluationSettings()
	if req.Settings != nil {
		settings = *req.Settings
	} else if config.EnableMonteCarlo {
		settings.ScenarioMode = domain.ScenarioMonteCarlo
		settings.MonteCarloPaths = config.MonteCarloPaths
	} else if config.EnableStochasticScenarios {
		settings.ScenarioMode = domain.ScenarioStochastic
	}
	settings.BeamWidth = config.BeamWidth
	settings.TransactionCostFixed = config.TransactionFeeFixed
	settings.TransactionCostPercent = config.TransactionFeePercent

	stats := domain.PlanStats{}
	finish := func(p domain.Plan) *PlanResponse {
		stats.WallClockSeconds = time.Since(started).Seconds()
		return &PlanResponse{Plan: p, Stats: stats}
	}

	fp := fingerprint.Generate(req.Positions, req.Portfolio.AvailableCashEUR)
	settingsHash := fingerprint.SettingsHash(config)

	if c.recommendations != nil {
		var cached PlanResponse
		hit, err := c.recommendations.Get(fp, settingsHash, planCacheCategory, &cached)
		if err != nil {
			c.log.Warn().Err(err).Msg("Recommendation cache read failed")
		}
		if hit {
			cached.Stats.CacheHit = true
			cached.Stats.WallClockSeconds = time.Since(started).Seconds()
			c.log.Info().Str("fingerprint", fp).Msg("Plan served from cache")
			return &cached, nil
		}
	}

	if c.limiter != nil {
		if err := c.limiter.CheckExecution(); err != nil {
			c.log.Warn().Err(err).Msg("Trade frequency limiter rejected planning")
			return finish(plan.InfeasiblePlan(err)), nil
		}
	}

	currentScore := c.currentScore(req, settings)

	octx := c.buildOpportunityContext(req, config, c.targetWeights(req, config, fp, settingsHash))
	opportunitiesByCategory, err := c.opportunities.Identify(octx, config)
	if err != nil {
		return finish(plan.InfeasiblePlan(err)), nil
	}
	if c.gate != nil {
		for category, candidates := range opportunitiesByCategory {
			opportunitiesByCategory[category] = c.gate.FilterCandidates(candidates, req.Positions)
		}
	}
	stats.OpportunitiesFound = opportunitiesByCategory.Total()

	if stats.OpportunitiesFound == 0 {
		return finish(plan.EmptyPlan(currentScore, "")), nil
	}

	pctx := &patterns.Context{
		Opportunities: opportunitiesByCategory,
		Portfolio:     octx,
		PriceHistory:  req.PriceHistory,
		MaxDepth:      config.MaxDepth,
	}

	best, err := c.searchBestSequence(ctx, req, pctx, config, settings, &stats)
	if err != nil {
		return finish(plan.InfeasiblePlan(err)), nil
	}
	if best == nil {
		return finish(plan.EmptyPlan(currentScore, "")), nil
	}

	stats.BestSequencePattern = best.Sequence.PatternType
	stats.BestSequenceHash = best.SequenceHash
	assembled := c.assembler.Assemble(*best, req.Portfolio, currentScore, settings)
	response := &PlanResponse{Plan: assembled, Stats: stats}

	if c.recommendations != nil {
		if err := c.recommendations.Put(fp, settingsHash, planCacheCategory, response); err != nil {
			c.log.Warn().Err(err).Msg("Recommendation cache write failed")
		}
	}

	stats.WallClockSeconds = time.Since(started).Seconds()
	response.Stats = stats
	c.log.Info().
		Float64("improvement", assembled.Improvement).
		Int("steps", len(assembled.Steps)).
		Int("batches", stats.BatchesProcessed).
		Bool("terminated_early", stats.TerminatedEarly).
		Msg("Plan created")
	return response, nil
}

// searchBestSequence consumes generator batches, dispatches them to the
// evaluator pool, and merges results into the global beam in batch order.
// Early termination requires BOTH a best-score plateau and a frozen beam
// across plateau_threshold consecutive batches.
func (c *Coordinator) searchBestSequence(
	ctx context.Context,
	req PlanRequest,
	pctx *patterns.Context,
	config *domain.PlannerConfiguration,
	settings domain.EvaluationSettings,
	stats *domain.PlanStats,
) (*domain.EvaluationResult, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	beam := evaluation.NewBeam(config.BeamWidth, settings.MultiObjective)
	bestScore := 0.0
	stale := 0
	stats.EvaluatorsUsed = c.pool.Size()

	for batch := range c.sequences.Stream(streamCtx, pctx, config) {
		stats.SequencesGenerated += len(batch.Sequences)

		resp, err := c.pool.Dispatch(ctx, evaluation.BatchRequest{
			Sequences:    batch.Sequences,
			Context:      req.Portfolio,
			Positions:    req.Positions,
			Securities:   req.Securities,
			PriceHistory: req.PriceHistory,
			Settings:     settings,
		})
		if err != nil {
			// A Dispatch error means the whole pool was walked and every
			// evaluator failed. A plan built from a partial search would
			// silently miss sequences, so abort the request instead.
			c.log.Error().Int("batch", batch.BatchNumber).Err(err).Msg("Batch evaluation failed, aborting search")
			return nil, fmt.Errorf("evaluate batch %d: %w", batch.BatchNumber, err)
		}

		stats.BatchesProcessed++
		stats.SequencesEvaluated += resp.Evaluated

		inserted := false
		for _, result := range resp.TopSequences {
			if beam.Add(result) {
				inserted = true
			}
		}

		improved := false
		if top, ok := beam.Best(); ok && top.EndScore > bestScore {
			bestScore = top.EndScore
			improved = true
		}

		if improved || inserted {
			stale = 0
		} else {
			stale++
		}

		if config.EnableEarlyTermination &&
			stats.BatchesProcessed >= config.MinBatchesToEvaluate &&
			stale >= config.PlateauThreshold {
			stats.TerminatedEarly = true
			cancel()
			break
		}
	}

	stats.GlobalBeamFinalLength = beam.Len()

	best, ok := beam.Best()
	if !ok {
		return nil, nil
	}
	return &best, nil
}

// currentScore evaluates the untouched portfolio so plans can report their
// improvement against it.
func (c *Coordinator) currentScore(req PlanRequest, settings domain.EvaluationSettings) float64 {
	scorer := evaluation.NewScorer(req.Portfolio, req.Securities, req.PriceHistory)
	outcome := evaluation.Simulate(req.Portfolio, req.Positions, domain.ActionSequence{}, settings, nil)
	return scorer.Score(outcome, 0).EndState
}

// targetWeights returns the caller-supplied per-symbol targets, or derives
// them from the MV/HRP blend when the request carries price history instead.
// Derived weights are cached in the analytics namespace keyed by portfolio
// fingerprint and settings hash. Optimiser failure is not fatal: the
// calculators fall back to target-free rules.
func (c *Coordinator) targetWeights(req PlanRequest, config *domain.PlannerConfiguration, fp, settingsHash string) map[string]float64 {
	if len(req.TargetWeights) > 0 || len(req.PriceHistory) == 0 {
		return req.TargetWeights
	}

	cacheKey := fmt.Sprintf("weights:%s:%s", fp, settingsHash)
	if c.analytics != nil {
		var cached map[string]float64
		hit, err := c.analytics.Get(cacheKey, &cached)
		if err != nil {
			c.log.Warn().Err(err).Msg("Analytics cache read failed")
		}
		if hit {
			c.log.Debug().Str("fingerprint", fp).Msg("Target weights served from analytics cache")
			return cached
		}
	}

	result, err := c.optimizer.Optimize(optimizer.Request{
		Securities:         req.Securities,
		Positions:          req.Positions,
		Portfolio:          req.Portfolio,
		PriceHistory:       req.PriceHistory,
		BlendBeta:          config.BlendBeta,
		TargetAnnualReturn: config.TargetAnnualReturn,
		CashReserve:        config.CashReserve,
		WeightCutoff:       config.WeightCutoff,
	})
	if err != nil {
		c.log.Warn().Err(err).Msg("Target-weight optimisation skipped")
		return nil
	}

	if c.analytics != nil {
		if err := c.analytics.Put(cacheKey, result.Weights); err != nil {
			c.log.Warn().Err(err).Msg("Analytics cache write failed")
		}
	}
	return result.Weights
}

// buildOpportunityContext assembles the calculator input from the request
// plus the safety gate's recent-trade view.
func (c *Coordinator) buildOpportunityContext(req PlanRequest, config *domain.PlannerConfiguration, targetWeights map[string]float64) *domain.OpportunityContext {
	octx := domain.NewOpportunityContext()
	octx.Positions = req.Positions
	octx.TotalPortfolioValueEUR = req.Portfolio.TotalValueEUR
	octx.AvailableCashEUR = req.Portfolio.AvailableCashEUR
	octx.TransactionCostFixed = config.TransactionFeeFixed
	octx.TransactionCostPercent = config.TransactionFeePercent
	octx.CurrentPrices = req.Portfolio.CurrentPrices
	if targetWeights != nil {
		octx.TargetWeights = targetWeights
	}

	symbols := make([]string, 0, len(req.Securities))
	for _, sec := range req.Securities {
		octx.StocksBySymbol[sec.Symbol] = sec
		symbols = append(symbols, sec.Symbol)
	}

	if c.gate != nil {
		bought, sold := c.gate.RecentlyTraded(symbols)
		octx.RecentlyBought = bought
		octx.RecentlySold = sold
	}
	return octx
}
