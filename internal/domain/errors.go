package domain

import "errors"

// Error taxonomy. Callers classify failures with errors.Is; wrapped causes
// are preserved with fmt.Errorf("%w", …).
var (
	// ErrInsufficientData signals missing expected returns or covariance inputs.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrOptimizerInfeasible signals that the mean-variance solver failed at
	// both efficient_return and max_sharpe.
	ErrOptimizerInfeasible = errors.New("optimizer infeasible")

	// ErrEvaluatorUnavailable signals that every evaluator failed for a batch.
	ErrEvaluatorUnavailable = errors.New("no evaluator available")

	// ErrCircuitOpen is returned by an open circuit breaker without calling
	// the wrapped operation.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrCircuitHalfOpen is returned when a half-open breaker already has its
	// single probe in flight.
	ErrCircuitHalfOpen = errors.New("circuit breaker half-open")

	// ErrRetryExhausted wraps the last transient failure after all attempts.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrSafetyRejected signals that the safety gate or frequency limiter
	// blocked execution.
	ErrSafetyRejected = errors.New("rejected by safety gate")

	// ErrCacheCorrupt signals an undecodable cache payload; treated as a miss.
	ErrCacheCorrupt = errors.New("cache payload corrupt")
)

// IsTransient reports whether an error should be retried by the outer retry
// loop. Circuit-breaker short-circuits count as transient so the caller can
// fail over to another evaluator.
func IsTransient(err error) bool {
	return errors.Is(err, ErrCircuitOpen) ||
		errors.Is(err, ErrCircuitHalfOpen) ||
		errors.Is(err, ErrEvaluatorUnavailable)
}
