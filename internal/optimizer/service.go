// Package optimizer computes target portfolio weights by blending a
// mean-variance solution with hierarchical risk parity, under per-symbol
// and per-group constraint bounds.
package optimizer

import (
	"errors"
	"fmt"
	"sort"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/aristath/helmsman/pkg/formulas"
	"github.com/rs/zerolog"
)

// Request carries the inputs of one optimisation run.
type Request struct {
	Securities    []domain.Security
	Positions     []domain.Position
	Portfolio     *domain.PortfolioContext
	PriceHistory  map[string][]float64 // symbol → daily closes
	DividendBonus map[string]float64   // optional per-symbol return bonus

	BlendBeta          float64 // HRP share; 0 = pure MV, 1 = pure HRP
	TargetAnnualReturn float64
	CashReserve        float64 // fraction of portfolio kept as cash
	WeightCutoff       float64 // ε below which weights are dropped
}

// Result is the target-weight mapping plus provenance for logging.
type Result struct {
	Weights  map[string]float64
	MVUsed   bool
	HRPUsed  bool
	MVError  string
	Strategy string // MV strategy that succeeded, if any
}

// Service orchestrates the MV and HRP branches and blends their outputs.
type Service struct {
	mv          *MVOptimizer
	hrp         *HRPOptimizer
	constraints *ConstraintsManager
	log         zerolog.Logger
}

// NewService creates the optimiser service.
func NewService(log zerolog.Logger) *Service {
	return &Service{
		mv:          NewMVOptimizer(),
		hrp:         NewHRPOptimizer(),
		constraints: NewConstraintsManager(log),
		log:         log.With().Str("module", "optimizer").Logger(),
	}
}

// Optimize produces symbol → target weight summing to 1 − cash_reserve.
//
// The MV branch solves efficient_return at the target, falling back to
// max_sharpe; if both fail the branch is skipped and HRP carries the
// allocation alone. Fewer than two usable symbols is InsufficientData.
func (s *Service) Optimize(req Request) (*Result, error) {
	active := make([]domain.Security, 0, len(req.Securities))
	securitiesBySymbol := make(map[string]domain.Security, len(req.Securities))
	for _, sec := range req.Securities {
		active = append(active, sec)
		securitiesBySymbol[sec.Symbol] = sec
	}
	if len(active) < 2 {
		return nil, fmt.Errorf("%w: %d active securities", domain.ErrInsufficientData, len(active))
	}

	expected := ExpectedReturns(req.PriceHistory, req.DividendBonus)

	candidateSymbols := make([]string, 0, len(active))
	for _, sec := range active {
		if _, ok := expected[sec.Symbol]; ok {
			candidateSymbols = append(candidateSymbols, sec.Symbol)
		}
	}
	sort.Strings(candidateSymbols)

	symbols, series := ReturnSeries(candidateSymbols, req.PriceHistory)
	if len(symbols) < 2 {
		return nil, fmt.Errorf("%w: %d symbols with usable return history", domain.ErrInsufficientData, len(symbols))
	}

	cov := formulas.CovarianceMatrix(series)

	currentWeights := CurrentWeights(req.Positions, req.Portfolio.CurrentPrices, req.Portfolio.TotalValueEUR)
	bounds := s.constraints.WeightBounds(symbols, securitiesBySymbol, currentWeights, req.Portfolio.TotalValueEUR)
	groups := s.constraints.GroupConstraints(symbols, req.Portfolio)

	result := &Result{}

	mvWeights := s.runMVBranch(expected, cov, symbols, bounds, groups, req.TargetAnnualReturn, result)
	hrpWeights := s.runHRPBranch(symbols, series, result)

	if mvWeights == nil && hrpWeights == nil {
		return nil, fmt.Errorf("%w: both optimisation branches failed", domain.ErrInsufficientData)
	}

	blended := blend(mvWeights, hrpWeights, symbols, req.BlendBeta)

	result.Weights = finalize(blended, req.WeightCutoff, 1-req.CashReserve)

	s.log.Info().
		Int("symbols", len(symbols)).
		Int("weights", len(result.Weights)).
		Bool("mv_used", result.MVUsed).
		Bool("hrp_used", result.HRPUsed).
		Msg("Optimization complete")

	return result, nil
}

func (s *Service) runMVBranch(
	expected map[string]float64,
	cov [][]float64,
	symbols []string,
	bounds [][2]float64,
	groups []GroupConstraint,
	targetReturn float64,
	result *Result,
) map[string]float64 {
	weights, err := s.mv.Optimize(expected, cov, symbols, bounds, groups, StrategyEfficientReturn, targetReturn)
	if err == nil {
		result.MVUsed = true
		result.Strategy = StrategyEfficientReturn
		return weights
	}
	s.log.Warn().Err(err).Msg("efficient_return infeasible, falling back to max_sharpe")

	weights, err = s.mv.Optimize(expected, cov, symbols, bounds, groups, StrategyMaxSharpe, 0)
	if err == nil {
		result.MVUsed = true
		result.Strategy = StrategyMaxSharpe
		return weights
	}

	// Both strategies failed: HRP-only weights.
	if errors.Is(err, domain.ErrOptimizerInfeasible) {
		s.log.Warn().Err(err).Msg("Mean-variance branch skipped")
	} else {
		s.log.Error().Err(err).Msg("Mean-variance branch failed")
	}
	result.MVError = err.Error()
	return nil
}

func (s *Service) runHRPBranch(symbols []string, series [][]float64, result *Result) map[string]float64 {
	weights, err := s.hrp.Optimize(symbols, series)
	if err != nil {
		s.log.Warn().Err(err).Msg("HRP branch skipped")
		return nil
	}
	result.HRPUsed = true
	return weights
}

// blend combines the branches: w = β·hrp + (1−β)·mv, falling back to the
// surviving branch when one failed.
func blend(mv, hrp map[string]float64, symbols []string, beta float64) map[string]float64 {
	if mv == nil {
		return hrp
	}
	if hrp == nil {
		return mv
	}
	out := make(map[string]float64, len(symbols))
	for _, symbol := range symbols {
		out[symbol] = beta*hrp[symbol] + (1-beta)*mv[symbol]
	}
	return out
}

// finalize drops weights below the cutoff and renormalises the rest to the
// investable fraction.
func finalize(weights map[string]float64, cutoff, investable float64) map[string]float64 {
	kept := make(map[string]float64)
	sum := 0.0
	for symbol, w := range weights {
		if w >= cutoff {
			kept[symbol] = w
			sum += w
		}
	}
	if sum <= 0 {
		return kept
	}
	for symbol := range kept {
		kept[symbol] = kept[symbol] / sum * investable
	}
	return kept
}
