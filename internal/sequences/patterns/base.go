package patterns

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/rs/zerolog"
)

// Context carries everything a pattern needs for one generation pass.
type Context struct {
	Opportunities domain.OpportunitiesByCategory
	Portfolio     *domain.OpportunityContext
	PriceHistory  map[string][]float64
	MaxDepth      int
}

// PatternGenerator produces candidate sequences from identified opportunities.
type PatternGenerator interface {
	Name() string
	Generate(ctx *Context, params map[string]interface{}) []domain.ActionSequence
}

// BasePattern carries the shared logger.
type BasePattern struct {
	log zerolog.Logger
}

// NewBasePattern creates the embedded base with a component logger.
func NewBasePattern(log zerolog.Logger, name string) *BasePattern {
	return &BasePattern{
		log: log.With().Str("component", "pattern").Str("pattern", name).Logger(),
	}
}

// SequenceHash is the order-independent identity of a sequence: the MD5 of
// its sorted (symbol, side, quantity) tuples. Two sequences with the same
// actions in different order share a hash.
func SequenceHash(actions []domain.ActionCandidate) string {
	tuples := make([]string, len(actions))
	for i, a := range actions {
		tuples[i] = fmt.Sprintf("%s:%s:%d", a.Symbol, a.Side, a.Quantity)
	}
	sort.Strings(tuples)

	h := md5.New()
	for _, t := range tuples {
		h.Write([]byte(t))
		h.Write([]byte{'|'})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// NewSequence assembles a sequence from actions: priority is the mean of the
// action priorities, depth the action count, hash order-independent.
func NewSequence(patternType string, actions []domain.ActionCandidate) domain.ActionSequence {
	var sum float64
	for _, a := range actions {
		sum += a.Priority
	}
	priority := 0.0
	if len(actions) > 0 {
		priority = sum / float64(len(actions))
	}
	return domain.ActionSequence{
		Actions:      actions,
		Priority:     priority,
		Depth:        len(actions),
		PatternType:  patternType,
		SequenceHash: SequenceHash(actions),
	}
}

// topN returns up to n highest-priority candidates from a category list,
// which calculators already keep sorted.
func topN(candidates []domain.ActionCandidate, n int) []domain.ActionCandidate {
	if n > len(candidates) {
		n = len(candidates)
	}
	return candidates[:n]
}

// allSells flattens the sell-side categories, highest priority first.
func allSells(ctx *Context) []domain.ActionCandidate {
	var sells []domain.ActionCandidate
	sells = append(sells, ctx.Opportunities[domain.OpportunityCategoryProfitTaking]...)
	sells = append(sells, ctx.Opportunities[domain.OpportunityCategoryRebalanceSells]...)
	sortCandidates(sells)
	return sells
}

// allBuys flattens the buy-side categories, highest priority first.
func allBuys(ctx *Context) []domain.ActionCandidate {
	var buys []domain.ActionCandidate
	buys = append(buys, ctx.Opportunities[domain.OpportunityCategoryAveragingDown]...)
	buys = append(buys, ctx.Opportunities[domain.OpportunityCategoryRebalanceBuys]...)
	buys = append(buys, ctx.Opportunities[domain.OpportunityCategoryOpportunityBuys]...)
	sortCandidates(buys)
	return buys
}

func sortCandidates(candidates []domain.ActionCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].Symbol < candidates[j].Symbol
	})
}

// affordable reports whether the buys in a candidate set fit the available
// cash after the sells settle (quick prefix check, sells assumed first).
func affordable(ctx *Context, actions []domain.ActionCandidate) bool {
	cash := ctx.Portfolio.AvailableCashEUR
	for _, a := range actions {
		if a.Side == "SELL" {
			cash += a.ValueEUR
		}
	}
	for _, a := range actions {
		if a.Side == "BUY" {
			cash -= a.ValueEUR
			if cash < 0 {
				return false
			}
		}
	}
	return true
}

// uniqueSymbols reports whether no symbol repeats across the actions.
func uniqueSymbols(actions []domain.ActionCandidate) bool {
	seen := make(map[string]bool, len(actions))
	for _, a := range actions {
		if seen[a.Symbol] {
			return false
		}
		seen[a.Symbol] = true
	}
	return true
}
