package filters

import (
	"sync"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/aristath/helmsman/internal/sequences/patterns"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"
)

// Filter prunes generated sequences before evaluation.
type Filter interface {
	Name() string
	Apply(sequences []domain.ActionSequence, ctx *patterns.Context, params map[string]interface{}) []domain.ActionSequence
}

// EligibilityFilter drops sequences touching ineligible symbols or symbols
// whose trade direction is disallowed.
type EligibilityFilter struct {
	log zerolog.Logger
}

// NewEligibilityFilter creates the eligibility filter.
func NewEligibilityFilter(log zerolog.Logger) *EligibilityFilter {
	return &EligibilityFilter{log: log.With().Str("component", "filter").Str("filter", "eligibility").Logger()}
}

func (f *EligibilityFilter) Name() string { return "eligibility" }

func (f *EligibilityFilter) Apply(sequences []domain.ActionSequence, ctx *patterns.Context, _ map[string]interface{}) []domain.ActionSequence {
	kept := sequences[:0]
	for _, seq := range sequences {
		if f.eligible(seq, ctx) {
			kept = append(kept, seq)
		}
	}
	return kept
}

func (f *EligibilityFilter) eligible(seq domain.ActionSequence, ctx *patterns.Context) bool {
	for _, a := range seq.Actions {
		if ctx.Portfolio.IneligibleSymbols[a.Symbol] {
			return false
		}
		sec, known := ctx.Portfolio.StocksBySymbol[a.Symbol]
		if !known {
			continue
		}
		if a.Side == "BUY" && !sec.AllowBuy {
			return false
		}
		if a.Side == "SELL" && !sec.AllowSell {
			return false
		}
	}
	return true
}

// RecentlyTradedFilter drops sequences that would rebuy a recently bought
// symbol or resell a recently sold one.
type RecentlyTradedFilter struct {
	log zerolog.Logger
}

// NewRecentlyTradedFilter creates the recently-traded filter.
func NewRecentlyTradedFilter(log zerolog.Logger) *RecentlyTradedFilter {
	return &RecentlyTradedFilter{log: log.With().Str("component", "filter").Str("filter", "recently_traded").Logger()}
}

func (f *RecentlyTradedFilter) Name() string { return "recently_traded" }

func (f *RecentlyTradedFilter) Apply(sequences []domain.ActionSequence, ctx *patterns.Context, _ map[string]interface{}) []domain.ActionSequence {
	kept := sequences[:0]
	for _, seq := range sequences {
		blocked := false
		for _, a := range seq.Actions {
			if a.Side == "BUY" && ctx.Portfolio.RecentlyBought[a.Symbol] {
				blocked = true
				break
			}
			if a.Side == "SELL" && ctx.Portfolio.RecentlySold[a.Symbol] {
				blocked = true
				break
			}
		}
		if !blocked {
			kept = append(kept, seq)
		}
	}
	return kept
}

// CorrelationAwareFilter drops sequences buying two highly correlated
// symbols at once: such pairs concentrate the same risk twice.
type CorrelationAwareFilter struct {
	log zerolog.Logger
}

// NewCorrelationAwareFilter creates the correlation-aware filter.
func NewCorrelationAwareFilter(log zerolog.Logger) *CorrelationAwareFilter {
	return &CorrelationAwareFilter{log: log.With().Str("component", "filter").Str("filter", "correlation_aware").Logger()}
}

func (f *CorrelationAwareFilter) Name() string { return "correlation_aware" }

func (f *CorrelationAwareFilter) Apply(sequences []domain.ActionSequence, ctx *patterns.Context, params map[string]interface{}) []domain.ActionSequence {
	threshold := domain.GetFloatParam(params, "max_correlation", 0.7)
	if len(ctx.PriceHistory) == 0 {
		return sequences
	}

	kept := sequences[:0]
	for _, seq := range sequences {
		if !f.tooCorrelated(seq, ctx, threshold) {
			kept = append(kept, seq)
		}
	}
	return kept
}

func (f *CorrelationAwareFilter) tooCorrelated(seq domain.ActionSequence, ctx *patterns.Context, threshold float64) bool {
	var buys []string
	for _, a := range seq.Actions {
		if a.Side == "BUY" {
			buys = append(buys, a.Symbol)
		}
	}
	for i := 0; i < len(buys); i++ {
		for j := i + 1; j < len(buys); j++ {
			corr, ok := pairCorrelation(ctx.PriceHistory, buys[i], buys[j])
			if ok && corr > threshold {
				return true
			}
		}
	}
	return false
}

// pairCorrelation computes the return correlation of two price histories
// aligned to their shortest common length.
func pairCorrelation(history map[string][]float64, a, b string) (float64, bool) {
	pa, pb := history[a], history[b]
	n := len(pa)
	if len(pb) < n {
		n = len(pb)
	}
	if n < 3 {
		return 0, false
	}

	ra := returns(pa[len(pa)-n:])
	rb := returns(pb[len(pb)-n:])
	return stat.Correlation(ra, rb, nil), true
}

func returns(prices []float64) []float64 {
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, prices[i]/prices[i-1]-1)
	}
	return out
}

// Registry maps filter names to implementations.
type Registry struct {
	mu      sync.RWMutex
	filters map[string]Filter
	log     zerolog.Logger
}

// NewRegistry creates an empty filter registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		filters: make(map[string]Filter),
		log:     log.With().Str("component", "filter_registry").Logger(),
	}
}

// NewPopulatedRegistry registers the three standard filters.
func NewPopulatedRegistry(log zerolog.Logger) *Registry {
	r := NewRegistry(log)
	r.Register(NewEligibilityFilter(log))
	r.Register(NewRecentlyTradedFilter(log))
	r.Register(NewCorrelationAwareFilter(log))
	return r
}

// Register adds a filter under its name.
func (r *Registry) Register(f Filter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filters[f.Name()] = f
}

// Get returns a filter by name.
func (r *Registry) Get(name string) (Filter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.filters[name]
	return f, ok
}

// ApplyAll runs every enabled filter in sorted name order.
func (r *Registry) ApplyAll(sequences []domain.ActionSequence, ctx *patterns.Context, config *domain.PlannerConfiguration) []domain.ActionSequence {
	for _, name := range config.GetEnabledFilters() {
		if name == "correlation_aware" && !config.EnableCorrelationAware {
			continue
		}
		filter, ok := r.Get(name)
		if !ok {
			r.log.Warn().Str("filter", name).Msg("Enabled filter not registered")
			continue
		}
		before := len(sequences)
		sequences = filter.Apply(sequences, ctx, config.GetFilterParams(name))
		if dropped := before - len(sequences); dropped > 0 {
			r.log.Debug().Str("filter", name).Int("dropped", dropped).Msg("Sequences filtered")
		}
	}
	return sequences
}
