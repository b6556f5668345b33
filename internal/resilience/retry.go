// Package resilience provides the retry and circuit-breaker primitives the
// coordinator wraps around evaluator transport, plus the persistent
// recommendation cache. The primitives are composable: the usual stack is
// breaker(retry(op)) per evaluator endpoint.
package resilience

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/rs/zerolog"
)

// RetryPolicy retries transient failures with exponential backoff.
type RetryPolicy struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	ExponentialBase float64
	MaxDelay        time.Duration
	Jitter          bool

	// IsRetryable classifies errors; non-retryable errors propagate
	// immediately. Nil means retry everything.
	IsRetryable func(error) bool

	log zerolog.Logger
}

// NewDefaultRetryPolicy returns three attempts starting at 100ms, doubling,
// capped at 5s, with jitter.
func NewDefaultRetryPolicy(log zerolog.Logger) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialDelay:    100 * time.Millisecond,
		ExponentialBase: 2.0,
		MaxDelay:        5 * time.Second,
		Jitter:          true,
		IsRetryable:     domain.IsTransient,
		log:             log.With().Str("component", "retry").Logger(),
	}
}

// Do runs op until it succeeds, fails non-transiently, exhausts attempts, or
// the context is cancelled. On exhaustion the last cause is preserved under
// ErrRetryExhausted.
func (p RetryPolicy) Do(ctx context.Context, op func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := p.backoff(attempt - 1)
			p.log.Debug().
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("Retrying after backoff")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		if p.IsRetryable != nil && !p.IsRetryable(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("%w after %d attempts: %w", domain.ErrRetryExhausted, p.MaxAttempts, lastErr)
}

// backoff computes the wait before retry k (0-indexed):
// min(max_delay, initial · base^k), jittered by a uniform factor in
// [0.5, 1.5] when enabled.
func (p RetryPolicy) backoff(k int) time.Duration {
	base := float64(p.InitialDelay) * math.Pow(p.ExponentialBase, float64(k))
	if capped := float64(p.MaxDelay); base > capped {
		base = capped
	}
	if p.Jitter {
		base *= 0.5 + rand.Float64()
	}
	return time.Duration(base)
}
