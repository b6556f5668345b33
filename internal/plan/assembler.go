package plan

import (
	"github.com/aristath/helmsman/internal/domain"
	"github.com/rs/zerolog"
)

// Assembler turns the best evaluation result into a narrated, ordered plan.
// Narratives are presentation only; they never change scores or ordering.
type Assembler struct {
	log zerolog.Logger
}

// NewAssembler creates a plan assembler.
func NewAssembler(log zerolog.Logger) *Assembler {
	return &Assembler{log: log.With().Str("module", "plan").Logger()}
}

// Assemble walks the winning sequence in order, accumulating running
// transaction cost and running cash delta per step. currentScore is the
// end-state score of the untouched portfolio, for the improvement figure.
func (a *Assembler) Assemble(
	result domain.EvaluationResult,
	ctx *domain.PortfolioContext,
	currentScore float64,
	settings domain.EvaluationSettings,
) domain.Plan {
	p := domain.Plan{
		CurrentScore:         currentScore,
		EndStateScore:        result.EndScore,
		DiversificationScore: result.DiversificationScore,
		RiskScore:            result.RiskScore,
		TotalScore:           result.TotalScore,
		Improvement:          result.EndScore - currentScore,
		ScoreBreakdown:       result.ScoreBreakdown,
		TotalCost:            result.TotalCost,
		CashRequired:         result.CashRequired,
		Feasible:             result.Feasible,
		Error:                result.Error,
		Metadata: map[string]string{
			"pattern":       result.Sequence.PatternType,
			"sequence_hash": result.SequenceHash,
		},
	}

	runningCost := 0.0
	runningCash := 0.0
	for i, action := range result.Sequence.Actions {
		gross := float64(action.Quantity) * action.Price
		fee := settings.TransactionCostFixed + gross*settings.TransactionCostPercent
		runningCost += fee

		if action.Side == "SELL" {
			runningCash += gross - fee
			p.CashGenerated += gross - fee
		} else {
			runningCash -= gross + fee
		}

		step := domain.PlanStep{
			StepNumber:      i + 1,
			Side:            action.Side,
			Symbol:          action.Symbol,
			Name:            action.Name,
			Quantity:        action.Quantity,
			EstimatedPrice:  action.Price,
			EstimatedValue:  gross,
			Currency:        action.Currency,
			RunningCost:     runningCost,
			RunningCashFlow: runningCash,
			Reason:          action.Reason,
			Narrative:       stepNarrative(action, ctx),
			IsWindfall:      action.HasTag("windfall"),
			IsAveragingDown: action.HasTag("averaging_down"),
			ContributesTo:   contributions(action, ctx),
		}
		p.Steps = append(p.Steps, step)
	}

	p.NarrativeSummary = planNarrative(p, result)
	return p
}

// EmptyPlan is the response when nothing worth doing was found. It is a
// valid, feasible plan with zero steps.
func EmptyPlan(currentScore float64, reason string) domain.Plan {
	if reason == "" {
		reason = "No actions recommended: the portfolio is already well positioned."
	}
	return domain.Plan{
		CurrentScore:     currentScore,
		EndStateScore:    currentScore,
		TotalScore:       currentScore,
		NarrativeSummary: reason,
		Feasible:         true,
		Metadata:         map[string]string{},
	}
}

// InfeasiblePlan is the response when a pre-flight check rejects planning
// outright. Plans never throw; the error rides inside.
func InfeasiblePlan(err error) domain.Plan {
	return domain.Plan{
		Feasible:         false,
		Error:            err.Error(),
		NarrativeSummary: "Planning was halted: " + err.Error(),
		Metadata:         map[string]string{},
	}
}
