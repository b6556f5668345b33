package evaluation

import (
	"context"
	"fmt"
	"sort"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// MaxBatchSize is the hard ceiling on sequences per evaluation request.
const MaxBatchSize = 5000

// BatchRequest is one evaluator call: a batch of sequences plus everything
// needed to simulate and score them.
type BatchRequest struct {
	Sequences    []domain.ActionSequence   `json:"sequences"`
	Context      *domain.PortfolioContext  `json:"context"`
	Positions    []domain.Position         `json:"positions"`
	Securities   []domain.Security         `json:"securities"`
	PriceHistory map[string][]float64      `json:"price_history,omitempty"`
	Settings     domain.EvaluationSettings `json:"settings"`
}

// BatchResponse carries the local top-K and counters.
type BatchResponse struct {
	TopSequences []domain.EvaluationResult `json:"top_sequences"`
	Evaluated    int                       `json:"evaluated"`
	Infeasible   int                       `json:"infeasible"`
}

// Service evaluates sequence batches.
type Service struct {
	workers int
	log     zerolog.Logger
}

// NewService creates an evaluation service. workers bounds intra-batch
// parallelism; each evaluation is pure with respect to its inputs.
func NewService(workers int, log zerolog.Logger) *Service {
	if workers < 1 {
		workers = 1
	}
	return &Service{
		workers: workers,
		log:     log.With().Str("module", "evaluation").Logger(),
	}
}

// EvaluateBatch validates the request, evaluates every sequence, and returns
// the top-K by end-state score.
func (s *Service) EvaluateBatch(ctx context.Context, req BatchRequest) (*BatchResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	settings := req.Settings
	if settings.BeamWidth < 1 {
		settings.BeamWidth = 10
	}

	sequences := req.Sequences
	if settings.PrioritySort {
		sequences = make([]domain.ActionSequence, len(req.Sequences))
		copy(sequences, req.Sequences)
		sort.SliceStable(sequences, func(i, j int) bool {
			return prioritySum(sequences[i]) > prioritySum(sequences[j])
		})
	}

	scorer := NewScorer(req.Context, req.Securities, req.PriceHistory)
	securities := make(map[string]domain.Security, len(req.Securities))
	for _, sec := range req.Securities {
		securities[sec.Symbol] = sec
	}

	results := make([]domain.EvaluationResult, len(sequences))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range sequences {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = EvaluateSequence(scorer, req.Context, req.Positions, securities, sequences[i], settings)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Results merge into the beam in input order so the response is a
	// deterministic function of the batch.
	beam := NewBeam(settings.BeamWidth, settings.MultiObjective)
	infeasible := 0
	for _, r := range results {
		if !r.Feasible {
			infeasible++
			continue
		}
		beam.Add(r)
	}

	s.log.Debug().
		Int("evaluated", len(results)).
		Int("infeasible", infeasible).
		Int("top", beam.Len()).
		Msg("Batch evaluated")

	return &BatchResponse{
		TopSequences: beam.Results(),
		Evaluated:    len(results),
		Infeasible:   infeasible,
	}, nil
}

func validate(req BatchRequest) error {
	if req.Context == nil {
		return fmt.Errorf("evaluation request missing portfolio context")
	}
	if len(req.Sequences) == 0 {
		return fmt.Errorf("evaluation request has no sequences")
	}
	if len(req.Sequences) > MaxBatchSize {
		return fmt.Errorf("batch of %d sequences exceeds the %d limit", len(req.Sequences), MaxBatchSize)
	}
	if req.Settings.TransactionCostFixed < 0 || req.Settings.TransactionCostPercent < 0 {
		return fmt.Errorf("transaction costs must be non-negative")
	}
	return nil
}

func prioritySum(seq domain.ActionSequence) float64 {
	sum := 0.0
	for _, a := range seq.Actions {
		sum += a.Priority
	}
	return sum
}
