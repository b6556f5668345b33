package safety

import (
	"fmt"
	"time"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/rs/zerolog"
)

// GateConfig holds the eligibility thresholds.
type GateConfig struct {
	BuyCooldownDays  int
	SellCooldownDays int
	MinHoldDays      int
	MaxLossThreshold float64 // e.g. -0.20; sells below this are blocked
}

// NewGateConfigFrom pulls the gate thresholds out of a planner configuration.
func NewGateConfigFrom(cfg *domain.PlannerConfiguration) GateConfig {
	return GateConfig{
		BuyCooldownDays:  cfg.BuyCooldownDays,
		SellCooldownDays: cfg.SellCooldownDays,
		MinHoldDays:      cfg.MinHoldDays,
		MaxLossThreshold: cfg.MaxLossThreshold,
	}
}

// Gate applies the four pre-flight eligibility filters to action candidates:
// buy cooldown, sell cooldown, minimum hold, and maximum-loss hold.
type Gate struct {
	tradeLog TradeLog
	cfg      GateConfig
	log      zerolog.Logger
	now      func() time.Time
}

// NewGate creates a safety gate over a trade log.
func NewGate(tradeLog TradeLog, cfg GateConfig, log zerolog.Logger) *Gate {
	return &Gate{
		tradeLog: tradeLog,
		cfg:      cfg,
		log:      log.With().Str("module", "safety_gate").Logger(),
		now:      time.Now,
	}
}

// CheckAction returns nil when the candidate passes all filters, or an
// ErrSafetyRejected-wrapped error naming the rule that blocked it. The
// position argument may be nil for buys.
func (g *Gate) CheckAction(action domain.ActionCandidate, position *domain.Position) error {
	switch action.Side {
	case "BUY":
		return g.checkBuy(action)
	case "SELL":
		return g.checkSell(action, position)
	default:
		return fmt.Errorf("%w: unknown side %q", domain.ErrSafetyRejected, action.Side)
	}
}

func (g *Gate) checkBuy(action domain.ActionCandidate) error {
	if g.cfg.BuyCooldownDays <= 0 {
		return nil
	}
	last, found, err := g.tradeLog.LastTrade(action.Symbol, "BUY")
	if err != nil {
		// Eligibility filters fail closed like the limiter: unknown
		// history must not allow a trade through.
		return fmt.Errorf("%w: trade log unavailable: %v", domain.ErrSafetyRejected, err)
	}
	if found {
		cooldown := time.Duration(g.cfg.BuyCooldownDays) * 24 * time.Hour
		if g.now().Sub(last) < cooldown {
			return fmt.Errorf("%w: %s bought within the last %d days",
				domain.ErrSafetyRejected, action.Symbol, g.cfg.BuyCooldownDays)
		}
	}
	return nil
}

func (g *Gate) checkSell(action domain.ActionCandidate, position *domain.Position) error {
	if position == nil {
		return fmt.Errorf("%w: no open position in %s", domain.ErrSafetyRejected, action.Symbol)
	}

	if g.cfg.SellCooldownDays > 0 {
		last, found, err := g.tradeLog.LastTrade(action.Symbol, "SELL")
		if err != nil {
			return fmt.Errorf("%w: trade log unavailable: %v", domain.ErrSafetyRejected, err)
		}
		if found {
			cooldown := time.Duration(g.cfg.SellCooldownDays) * 24 * time.Hour
			if g.now().Sub(last) < cooldown {
				return fmt.Errorf("%w: %s sold within the last %d days",
					domain.ErrSafetyRejected, action.Symbol, g.cfg.SellCooldownDays)
			}
		}
	}

	if g.cfg.MinHoldDays > 0 {
		acquired, found, err := g.tradeLog.FirstBuy(action.Symbol)
		if err != nil {
			return fmt.Errorf("%w: trade log unavailable: %v", domain.ErrSafetyRejected, err)
		}
		if found {
			minHold := time.Duration(g.cfg.MinHoldDays) * 24 * time.Hour
			if g.now().Sub(acquired) < minHold {
				return fmt.Errorf("%w: %s held less than %d days",
					domain.ErrSafetyRejected, action.Symbol, g.cfg.MinHoldDays)
			}
		}
	}

	// Never realise deep losses automatically.
	if position.AvgPrice > 0 {
		ret := position.CurrentPrice/position.AvgPrice - 1
		if ret < g.cfg.MaxLossThreshold {
			return fmt.Errorf("%w: %s unrealised return %.1f%% below loss threshold %.1f%%",
				domain.ErrSafetyRejected, action.Symbol, ret*100, g.cfg.MaxLossThreshold*100)
		}
	}

	return nil
}

// FilterCandidates removes blocked candidates from a list, logging each
// rejection. Per-candidate failures are never fatal.
func (g *Gate) FilterCandidates(candidates []domain.ActionCandidate, positions []domain.Position) []domain.ActionCandidate {
	bySymbol := make(map[string]*domain.Position, len(positions))
	for i := range positions {
		bySymbol[positions[i].Symbol] = &positions[i]
	}

	eligible := make([]domain.ActionCandidate, 0, len(candidates))
	for _, c := range candidates {
		if err := g.CheckAction(c, bySymbol[c.Symbol]); err != nil {
			g.log.Debug().
				Str("symbol", c.Symbol).
				Str("side", c.Side).
				Err(err).
				Msg("Candidate blocked by safety gate")
			continue
		}
		eligible = append(eligible, c)
	}
	return eligible
}

// RecentlyTraded builds the recently-bought and recently-sold symbol sets
// the opportunity identifier consults.
func (g *Gate) RecentlyTraded(symbols []string) (bought, sold map[string]bool) {
	bought = make(map[string]bool)
	sold = make(map[string]bool)

	for _, symbol := range symbols {
		if g.cfg.BuyCooldownDays > 0 {
			if last, found, err := g.tradeLog.LastTrade(symbol, "BUY"); err == nil && found {
				if g.now().Sub(last) < time.Duration(g.cfg.BuyCooldownDays)*24*time.Hour {
					bought[symbol] = true
				}
			}
		}
		if g.cfg.SellCooldownDays > 0 {
			if last, found, err := g.tradeLog.LastTrade(symbol, "SELL"); err == nil && found {
				if g.now().Sub(last) < time.Duration(g.cfg.SellCooldownDays)*24*time.Hour {
					sold[symbol] = true
				}
			}
		}
	}
	return bought, sold
}
