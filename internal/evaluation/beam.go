package evaluation

import (
	"sort"

	"github.com/aristath/helmsman/internal/domain"
)

// Beam keeps the best K evaluation results. In single-objective mode it is a
// plain top-K by end-state score; in multi-objective mode it maintains a
// Pareto front on (end-state, diversification, risk, −cost) and falls back
// to top-K by end-state when the front outgrows K.
type Beam struct {
	width          int
	multiObjective bool
	entries        []domain.EvaluationResult
	seen           map[string]bool
}

// NewBeam creates a beam of the given width.
func NewBeam(width int, multiObjective bool) *Beam {
	if width < 1 {
		width = 1
	}
	return &Beam{
		width:          width,
		multiObjective: multiObjective,
		seen:           make(map[string]bool),
	}
}

// Add offers a result to the beam and reports whether it was inserted.
// Duplicate hashes are rejected.
func (b *Beam) Add(result domain.EvaluationResult) bool {
	if result.SequenceHash != "" && b.seen[result.SequenceHash] {
		return false
	}

	if b.multiObjective {
		return b.addPareto(result)
	}

	if len(b.entries) >= b.width && result.EndScore <= b.entries[len(b.entries)-1].EndScore {
		return false
	}
	b.insert(result)
	if len(b.entries) > b.width {
		evicted := b.entries[len(b.entries)-1]
		b.entries = b.entries[:b.width]
		delete(b.seen, evicted.SequenceHash)
	}
	return true
}

func (b *Beam) addPareto(result domain.EvaluationResult) bool {
	for _, e := range b.entries {
		if dominates(e, result) {
			return false
		}
	}
	kept := b.entries[:0]
	for _, e := range b.entries {
		if dominates(result, e) {
			delete(b.seen, e.SequenceHash)
			continue
		}
		kept = append(kept, e)
	}
	b.entries = kept
	b.insert(result)
	if len(b.entries) > b.width {
		evicted := b.entries[len(b.entries)-1]
		b.entries = b.entries[:b.width]
		delete(b.seen, evicted.SequenceHash)
	}
	return true
}

// insert places the result keeping entries sorted by end-state descending,
// ties broken by hash for determinism.
func (b *Beam) insert(result domain.EvaluationResult) {
	b.entries = append(b.entries, result)
	sort.SliceStable(b.entries, func(i, j int) bool {
		if b.entries[i].EndScore != b.entries[j].EndScore {
			return b.entries[i].EndScore > b.entries[j].EndScore
		}
		return b.entries[i].SequenceHash < b.entries[j].SequenceHash
	})
	b.seen[result.SequenceHash] = true
}

// Results returns the beam contents, best first.
func (b *Beam) Results() []domain.EvaluationResult {
	out := make([]domain.EvaluationResult, len(b.entries))
	copy(out, b.entries)
	return out
}

// Best returns the top result, if any.
func (b *Beam) Best() (domain.EvaluationResult, bool) {
	if len(b.entries) == 0 {
		return domain.EvaluationResult{}, false
	}
	return b.entries[0], true
}

// Len returns the current beam size.
func (b *Beam) Len() int { return len(b.entries) }

// dominates reports whether a is at least as good as b on every objective
// and strictly better on one. Cost is minimised, the rest maximised.
func dominates(a, b domain.EvaluationResult) bool {
	atLeast := a.EndScore >= b.EndScore &&
		a.DiversificationScore >= b.DiversificationScore &&
		a.RiskScore >= b.RiskScore &&
		a.TotalCost <= b.TotalCost
	strictly := a.EndScore > b.EndScore ||
		a.DiversificationScore > b.DiversificationScore ||
		a.RiskScore > b.RiskScore ||
		a.TotalCost < b.TotalCost
	return atLeast && strictly
}
