package sequences

import (
	"context"
	"sort"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/aristath/helmsman/internal/sequences/filters"
	"github.com/aristath/helmsman/internal/sequences/generators"
	"github.com/aristath/helmsman/internal/sequences/patterns"
	"github.com/rs/zerolog"
)

// Service is the sequence generation pipeline: patterns and generators
// produce candidates, normalisation orders sells before buys, dedup and the
// filters prune, diversity pruning thins near-duplicates, and the result
// streams out in priority-ordered batches.
type Service struct {
	patterns   *patterns.Registry
	generators *generators.Registry
	filters    *filters.Registry
	log        zerolog.Logger
}

// New creates a sequence service with the standard patterns, generators,
// and filters.
func New(log zerolog.Logger) *Service {
	return &Service{
		patterns:   patterns.NewPopulatedRegistry(log),
		generators: generators.NewPopulatedRegistry(log),
		filters:    filters.NewPopulatedRegistry(log),
		log:        log.With().Str("module", "sequences").Logger(),
	}
}

// Generate runs the full pipeline and returns sequences sorted by priority
// descending. Opportunities below the configured priority floor are dropped
// first; if that leaves nothing to work with, the floor is lifted and the
// pipeline reruns on the full candidate set.
func (s *Service) Generate(ctx *patterns.Context, config *domain.PlannerConfiguration) []domain.ActionSequence {
	floored := withPriorityFloor(ctx, config.MinPriority)
	sequences := s.pipeline(floored, config)
	if len(sequences) == 0 && floored.Opportunities.Total() < ctx.Opportunities.Total() {
		s.log.Info().
			Float64("min_priority", config.MinPriority).
			Msg("No sequences above the priority floor, relaxing it")
		sequences = s.pipeline(ctx, config)
	}

	sort.SliceStable(sequences, func(i, j int) bool {
		if sequences[i].Priority != sequences[j].Priority {
			return sequences[i].Priority > sequences[j].Priority
		}
		return sequences[i].SequenceHash < sequences[j].SequenceHash
	})

	s.log.Info().Int("sequences", len(sequences)).Msg("Sequence generation complete")
	return sequences
}

func (s *Service) pipeline(ctx *patterns.Context, config *domain.PlannerConfiguration) []domain.ActionSequence {
	sequences := s.patterns.GenerateAll(ctx, config)
	sequences = append(sequences, s.generators.GenerateAll(ctx, config)...)

	for i := range sequences {
		sequences[i] = Normalize(sequences[i])
	}
	sequences = dedupe(sequences)
	sequences = s.filters.ApplyAll(sequences, ctx, config)
	return pruneDiversity(sequences, config.DiversityWeight)
}

// withPriorityFloor returns a context whose opportunities all have priority
// at or above floor. A floor of 0 keeps everything.
func withPriorityFloor(ctx *patterns.Context, floor float64) *patterns.Context {
	if floor <= 0 {
		return ctx
	}
	kept := make(domain.OpportunitiesByCategory, len(ctx.Opportunities))
	for category, candidates := range ctx.Opportunities {
		var above []domain.ActionCandidate
		for _, c := range candidates {
			if c.Priority >= floor {
				above = append(above, c)
			}
		}
		if len(above) > 0 {
			kept[category] = above
		}
	}
	floored := *ctx
	floored.Opportunities = kept
	return &floored
}

// Stream generates sequences and sends them in batches of batchSize. The
// channel closes when all batches are sent or ctx is cancelled.
func (s *Service) Stream(ctx context.Context, pctx *patterns.Context, config *domain.PlannerConfiguration) <-chan domain.SequenceBatch {
	out := make(chan domain.SequenceBatch)
	go func() {
		defer close(out)
		for _, batch := range Batches(s.Generate(pctx, config), config.BatchSize) {
			select {
			case out <- batch:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Batches chunks sequences into numbered batches. The last batch has
// MoreAvailable false.
func Batches(sequences []domain.ActionSequence, batchSize int) []domain.SequenceBatch {
	if batchSize < 1 {
		batchSize = 1
	}
	var batches []domain.SequenceBatch
	for start := 0; start < len(sequences); start += batchSize {
		end := start + batchSize
		if end > len(sequences) {
			end = len(sequences)
		}
		batches = append(batches, domain.SequenceBatch{
			BatchNumber:   len(batches) + 1,
			Sequences:     sequences[start:end],
			MoreAvailable: end < len(sequences),
		})
	}
	return batches
}

// Normalize reorders a sequence so every sell precedes every buy, keeping
// the relative order within each side. The hash is order-independent and
// therefore unchanged.
func Normalize(seq domain.ActionSequence) domain.ActionSequence {
	ordered := make([]domain.ActionCandidate, 0, len(seq.Actions))
	for _, a := range seq.Actions {
		if a.Side == "SELL" {
			ordered = append(ordered, a)
		}
	}
	for _, a := range seq.Actions {
		if a.Side != "SELL" {
			ordered = append(ordered, a)
		}
	}
	seq.Actions = ordered
	seq.SequenceHash = patterns.SequenceHash(ordered)
	return seq
}

// dedupe keeps the first (highest-priority-pattern) occurrence of each hash.
func dedupe(sequences []domain.ActionSequence) []domain.ActionSequence {
	seen := make(map[string]bool, len(sequences))
	kept := sequences[:0]
	for _, seq := range sequences {
		if seen[seq.SequenceHash] {
			continue
		}
		seen[seq.SequenceHash] = true
		kept = append(kept, seq)
	}
	return kept
}

// pruneDiversity drops a sequence whose symbol set overlaps an already kept
// sequence beyond the Jaccard similarity ceiling 1 − diversityWeight.
// diversityWeight 0 disables pruning.
func pruneDiversity(sequences []domain.ActionSequence, diversityWeight float64) []domain.ActionSequence {
	if diversityWeight <= 0 {
		return sequences
	}
	ceiling := 1 - diversityWeight

	byPriority := make([]domain.ActionSequence, len(sequences))
	copy(byPriority, sequences)
	sort.SliceStable(byPriority, func(i, j int) bool {
		if byPriority[i].Priority != byPriority[j].Priority {
			return byPriority[i].Priority > byPriority[j].Priority
		}
		return byPriority[i].SequenceHash < byPriority[j].SequenceHash
	})

	var keptSets []map[string]bool
	keptHashes := make(map[string]bool)
	for _, seq := range byPriority {
		set := symbolSet(seq)
		redundant := false
		for _, other := range keptSets {
			if jaccard(set, other) > ceiling {
				redundant = true
				break
			}
		}
		if !redundant {
			keptSets = append(keptSets, set)
			keptHashes[seq.SequenceHash] = true
		}
	}

	kept := sequences[:0]
	for _, seq := range sequences {
		if keptHashes[seq.SequenceHash] {
			kept = append(kept, seq)
		}
	}
	return kept
}

func symbolSet(seq domain.ActionSequence) map[string]bool {
	set := make(map[string]bool, len(seq.Actions))
	for _, a := range seq.Actions {
		set[a.Symbol+"/"+a.Side] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	intersection := 0
	for k := range a {
		if b[k] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
