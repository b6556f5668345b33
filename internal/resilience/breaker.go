package resilience

import (
	"sync"
	"time"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/rs/zerolog"
)

// BreakerState is the circuit state machine position.
type BreakerState string

const (
	StateClosed   BreakerState = "CLOSED"
	StateOpen     BreakerState = "OPEN"
	StateHalfOpen BreakerState = "HALF_OPEN"
)

// BreakerSettings parameterise one circuit breaker.
type BreakerSettings struct {
	FailureThreshold int           // consecutive failures before opening
	SuccessThreshold int           // consecutive half-open successes before closing
	Timeout          time.Duration // open duration before probing
}

// NewDefaultBreakerSettings returns the 5 / 2 / 60s defaults.
func NewDefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          60 * time.Second,
	}
}

// CircuitBreaker protects one downstream service. State transitions:
//
//	CLOSED    --failure_threshold consecutive failures--> OPEN
//	OPEN      --timeout elapsed since last failure-->     HALF_OPEN
//	HALF_OPEN --success_threshold successes-->            CLOSED
//	HALF_OPEN --any failure-->                            OPEN
//
// In HALF_OPEN at most one call is in flight; concurrent callers fail fast
// with ErrCircuitHalfOpen.
type CircuitBreaker struct {
	name     string
	settings BreakerSettings
	log      zerolog.Logger
	now      func() time.Time // injectable for tests

	mu            sync.Mutex
	state         BreakerState
	failures      int
	successes     int
	lastFailure   time.Time
	probeInFlight bool
}

// NewCircuitBreaker creates a breaker in the CLOSED state.
func NewCircuitBreaker(name string, settings BreakerSettings, log zerolog.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		name:     name,
		settings: settings,
		log:      log.With().Str("component", "circuit_breaker").Str("service", name).Logger(),
		now:      time.Now,
		state:    StateClosed,
	}
}

// Name returns the service name the breaker protects.
func (cb *CircuitBreaker) Name() string { return cb.name }

// State returns the current state, applying the OPEN→HALF_OPEN timeout.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.refreshLocked()
	return cb.state
}

// Execute runs op under the breaker's admission control.
func (cb *CircuitBreaker) Execute(op func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}

	err := op()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.refreshLocked()

	switch cb.state {
	case StateOpen:
		return domain.ErrCircuitOpen
	case StateHalfOpen:
		if cb.probeInFlight {
			return domain.ErrCircuitHalfOpen
		}
		cb.probeInFlight = true
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen {
		cb.probeInFlight = false
	}

	if err != nil {
		cb.lastFailure = cb.now()
		switch cb.state {
		case StateClosed:
			cb.failures++
			if cb.failures >= cb.settings.FailureThreshold {
				cb.transitionLocked(StateOpen)
			}
		case StateHalfOpen:
			cb.transitionLocked(StateOpen)
		}
		return
	}

	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.settings.SuccessThreshold {
			cb.transitionLocked(StateClosed)
		}
	}
}

// refreshLocked moves OPEN to HALF_OPEN once the timeout has elapsed.
func (cb *CircuitBreaker) refreshLocked() {
	if cb.state == StateOpen && cb.now().Sub(cb.lastFailure) >= cb.settings.Timeout {
		cb.transitionLocked(StateHalfOpen)
	}
}

func (cb *CircuitBreaker) transitionLocked(next BreakerState) {
	if cb.state == next {
		return
	}
	cb.log.Warn().
		Str("from", string(cb.state)).
		Str("to", string(next)).
		Msg("Circuit breaker state change")
	cb.state = next
	cb.failures = 0
	cb.successes = 0
	cb.probeInFlight = false
}

// BreakerRegistry holds named breakers shared across requests.
type BreakerRegistry struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	settings BreakerSettings
	log      zerolog.Logger
}

// NewBreakerRegistry creates a registry applying the given settings to new
// breakers.
func NewBreakerRegistry(settings BreakerSettings, log zerolog.Logger) *BreakerRegistry {
	return &BreakerRegistry{
		breakers: make(map[string]*CircuitBreaker),
		settings: settings,
		log:      log,
	}
}

// GetOrCreate returns the breaker for a service name, creating it on first
// use.
func (r *BreakerRegistry) GetOrCreate(name string) *CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[name]; ok {
		return cb
	}
	cb = NewCircuitBreaker(name, r.settings, r.log)
	r.breakers[name] = cb
	return cb
}

// States reports every breaker's state for health checks.
func (r *BreakerRegistry) States() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	states := make(map[string]string, len(r.breakers))
	for name, cb := range r.breakers {
		states[name] = string(cb.State())
	}
	return states
}
