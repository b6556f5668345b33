package safety

import (
	"fmt"
	"time"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/rs/zerolog"
)

// FrequencyConfig bounds how often trades may execute.
type FrequencyConfig struct {
	Enabled                     bool
	MinTimeBetweenTradesMinutes int
	MaxTradesPerDay             int
	MaxTradesPerWeek            int
}

// NewFrequencyConfigFrom pulls limiter settings out of a planner
// configuration.
func NewFrequencyConfigFrom(cfg *domain.PlannerConfiguration) FrequencyConfig {
	return FrequencyConfig{
		Enabled:                     cfg.TradeFrequencyLimitsEnabled,
		MinTimeBetweenTradesMinutes: cfg.MinTimeBetweenTradesMinutes,
		MaxTradesPerDay:             cfg.MaxTradesPerDay,
		MaxTradesPerWeek:            cfg.MaxTradesPerWeek,
	}
}

// FrequencyLimiter rejects plan execution when the next trade would violate
// the spacing or per-day / per-week caps. Storage errors fail closed.
type FrequencyLimiter struct {
	tradeLog TradeLog
	cfg      FrequencyConfig
	log      zerolog.Logger
	now      func() time.Time
}

// NewFrequencyLimiter creates a limiter over a trade log.
func NewFrequencyLimiter(tradeLog TradeLog, cfg FrequencyConfig, log zerolog.Logger) *FrequencyLimiter {
	return &FrequencyLimiter{
		tradeLog: tradeLog,
		cfg:      cfg,
		log:      log.With().Str("module", "frequency_limiter").Logger(),
		now:      time.Now,
	}
}

// CheckExecution returns nil if another trade may execute now, or an
// ErrSafetyRejected-wrapped error naming the violated limit.
func (l *FrequencyLimiter) CheckExecution() error {
	if !l.cfg.Enabled {
		return nil
	}

	now := l.now()

	if l.cfg.MinTimeBetweenTradesMinutes > 0 {
		last, found, err := l.tradeLog.LastTradeTime()
		if err != nil {
			return l.failClosed(err)
		}
		if found {
			spacing := time.Duration(l.cfg.MinTimeBetweenTradesMinutes) * time.Minute
			if now.Sub(last) < spacing {
				return fmt.Errorf("%w: last trade %s ago, minimum spacing %d minutes",
					domain.ErrSafetyRejected, now.Sub(last).Round(time.Minute), l.cfg.MinTimeBetweenTradesMinutes)
			}
		}
	}

	if l.cfg.MaxTradesPerDay > 0 {
		startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		today, err := l.tradeLog.CountSince(startOfDay)
		if err != nil {
			return l.failClosed(err)
		}
		if today >= l.cfg.MaxTradesPerDay {
			return fmt.Errorf("%w: daily limit reached (%d trades today, max %d per day)",
				domain.ErrSafetyRejected, today, l.cfg.MaxTradesPerDay)
		}
	}

	if l.cfg.MaxTradesPerWeek > 0 {
		weekAgo := now.Add(-7 * 24 * time.Hour)
		week, err := l.tradeLog.CountSince(weekAgo)
		if err != nil {
			return l.failClosed(err)
		}
		if week >= l.cfg.MaxTradesPerWeek {
			return fmt.Errorf("%w: weekly limit reached (%d trades this week, max %d per week)",
				domain.ErrSafetyRejected, week, l.cfg.MaxTradesPerWeek)
		}
	}

	return nil
}

// failClosed converts a storage error into a rejection. Conservative: an
// unreadable trade log must never allow extra trades through.
func (l *FrequencyLimiter) failClosed(err error) error {
	l.log.Error().Err(err).Msg("Trade log unavailable, failing closed")
	return fmt.Errorf("%w: trade history unavailable: %v", domain.ErrSafetyRejected, err)
}
