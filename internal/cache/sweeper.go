package cache

import (
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Sweeper runs the expired-entry sweep on a schedule.
type Sweeper struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// StartSweeper schedules SweepExpired on the given cron spec (defaults to
// daily) and starts the scheduler.
func StartSweeper(store *Store, spec string, log zerolog.Logger) (*Sweeper, error) {
	if spec == "" {
		spec = "@daily"
	}
	logger := log.With().Str("component", "cache_sweeper").Logger()

	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		removed, err := store.SweepExpired()
		if err != nil {
			logger.Error().Err(err).Msg("Cache sweep failed")
			return
		}
		logger.Info().Int64("removed", removed).Msg("Swept expired cache entries")
	})
	if err != nil {
		return nil, err
	}

	c.Start()
	return &Sweeper{cron: c, log: logger}, nil
}

// Stop halts the scheduler; a running sweep finishes first.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
