package domain

// Security describes a tradeable instrument in the investment universe.
type Security struct {
	Symbol             string   `json:"symbol"`
	ISIN               string   `json:"isin,omitempty"`
	Name               string   `json:"name"`
	Country            string   `json:"country,omitempty"`
	Industry           string   `json:"industry,omitempty"`
	Currency           string   `json:"currency"`
	Price              float64  `json:"price"`
	MinLot             int      `json:"min_lot,omitempty"`
	AllowBuy           bool     `json:"allow_buy"`
	AllowSell          bool     `json:"allow_sell"`
	MinPortfolioTarget *float64 `json:"min_portfolio_target,omitempty"` // percent, e.g. 2.5
	MaxPortfolioTarget *float64 `json:"max_portfolio_target,omitempty"` // percent
	QualityScore       float64  `json:"quality_score,omitempty"`
	DividendYield      float64  `json:"dividend_yield,omitempty"`
	HistoricalCAGR     float64  `json:"historical_cagr,omitempty"`
	Volatility         float64  `json:"volatility,omitempty"` // annualised
}

// Position is a holding inside the portfolio. Quantity is whole units, like
// ActionCandidate.Quantity.
type Position struct {
	Symbol         string  `json:"symbol"`
	Quantity       int     `json:"quantity"`
	AvgPrice       float64 `json:"avg_price"`
	CurrentPrice   float64 `json:"current_price"`
	MarketValueEUR float64 `json:"market_value_eur"`
	Currency       string  `json:"currency"`
	GainLossEUR    float64 `json:"gain_loss_eur,omitempty"`
	GainLossPct    float64 `json:"gain_loss_pct,omitempty"`
	YearsHeld      float64 `json:"years_held,omitempty"`
}

// ActionCandidate represents a potential trade action with associated metadata
// for priority-based selection and sequencing.
type ActionCandidate struct {
	Side     string   `json:"side"`      // "BUY" or "SELL"
	Symbol   string   `json:"symbol"`    // Security symbol
	Name     string   `json:"name"`      // Security name for display
	Quantity int      `json:"quantity"`  // Number of units to trade
	Price    float64  `json:"price"`     // Price per unit
	ValueEUR float64  `json:"value_eur"` // Total value in EUR
	Currency string   `json:"currency"`  // Trading currency
	Priority float64  `json:"priority"`  // Higher values indicate higher priority
	Reason   string   `json:"reason"`    // Human-readable explanation
	Tags     []string `json:"tags"`      // Routing hints (e.g. ["windfall", "rebalance"])
}

// HasTag reports whether the candidate carries the given tag.
func (a ActionCandidate) HasTag(tag string) bool {
	for _, t := range a.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ActionSequence is an ordered tuple of candidates evaluated as one plan
// candidate. The cumulative cash path must never go negative at any prefix.
type ActionSequence struct {
	Actions      []ActionCandidate `json:"actions"`
	Priority     float64           `json:"priority"`      // Mean of action priorities
	Depth        int               `json:"depth"`         // Number of actions
	PatternType  string            `json:"pattern_type"`  // Pattern that produced it
	SequenceHash string            `json:"sequence_hash"` // Order-independent hash for dedup
}

// SequenceBatch is a streamed chunk of generated sequences.
type SequenceBatch struct {
	BatchNumber   int              `json:"batch_number"`
	Sequences     []ActionSequence `json:"sequences"`
	MoreAvailable bool             `json:"more_available"`
}

// EvaluationResult holds the outcome of evaluating one sequence.
type EvaluationResult struct {
	Sequence             ActionSequence     `json:"sequence"`
	SequenceHash         string             `json:"sequence_hash"`
	EndScore             float64            `json:"end_score"`
	DiversificationScore float64            `json:"div_score"`
	RiskScore            float64            `json:"risk_score"`
	TotalScore           float64            `json:"total_score"`
	ScoreBreakdown       map[string]float64 `json:"breakdown,omitempty"`
	TotalCost            float64            `json:"total_cost"`
	CashRequired         float64            `json:"cash_required"`
	EndCash              float64            `json:"end_cash"`
	EndPositions         map[string]float64 `json:"end_positions,omitempty"`
	TotalValue           float64            `json:"total_value"`
	Feasible             bool               `json:"feasible"`
	Error                string             `json:"error,omitempty"`
}

// PlanStep is a single narrated step of the final plan.
type PlanStep struct {
	StepNumber      int      `json:"step_number"`
	Side            string   `json:"side"`
	Symbol          string   `json:"symbol"`
	Name            string   `json:"name"`
	Quantity        int      `json:"quantity"`
	EstimatedPrice  float64  `json:"estimated_price"`
	EstimatedValue  float64  `json:"estimated_value"`
	Currency        string   `json:"currency"`
	RunningCost     float64  `json:"running_cost"`       // Cumulative transaction fees
	RunningCashFlow float64  `json:"running_cash_delta"` // Cumulative cash delta (sells +, buys −)
	Reason          string   `json:"reason"`
	Narrative       string   `json:"narrative"`
	IsWindfall      bool     `json:"is_windfall"`
	IsAveragingDown bool     `json:"is_averaging_down"`
	ContributesTo   []string `json:"contributes_to,omitempty"`
}

// Plan is the externally observable planner output.
type Plan struct {
	Steps                []PlanStep         `json:"steps"`
	CurrentScore         float64            `json:"current_score"`
	EndStateScore        float64            `json:"end_state_score"`
	DiversificationScore float64            `json:"div_score"`
	RiskScore            float64            `json:"risk_score"`
	TotalScore           float64            `json:"total_score"`
	Improvement          float64            `json:"improvement"`
	NarrativeSummary     string             `json:"narrative_summary"`
	ScoreBreakdown       map[string]float64 `json:"score_breakdown,omitempty"`
	TotalCost            float64            `json:"total_cost"`
	CashRequired         float64            `json:"cash_required"`
	CashGenerated        float64            `json:"cash_generated"`
	Feasible             bool               `json:"feasible"`
	Error                string             `json:"error,omitempty"`
	Metadata             map[string]string  `json:"metadata,omitempty"`
}

// PlanStats summarises a planning run.
type PlanStats struct {
	WallClockSeconds      float64 `json:"wall_clock_seconds"`
	OpportunitiesFound    int     `json:"opportunities_identified"`
	SequencesGenerated    int     `json:"sequences_generated"`
	SequencesEvaluated    int     `json:"sequences_evaluated"`
	BatchesProcessed      int     `json:"batches_processed"`
	EvaluatorsUsed        int     `json:"evaluators_used"`
	TerminatedEarly       bool    `json:"terminated_early"`
	CacheHit              bool    `json:"cache_hit"`
	BestSequencePattern   string  `json:"best_sequence_pattern,omitempty"`
	BestSequenceHash      string  `json:"best_sequence_hash,omitempty"`
	GlobalBeamFinalLength int     `json:"global_beam_final_length"`
}

// OpportunityCategory classifies candidate actions.
type OpportunityCategory string

const (
	OpportunityCategoryProfitTaking    OpportunityCategory = "profit_taking"
	OpportunityCategoryAveragingDown   OpportunityCategory = "averaging_down"
	OpportunityCategoryRebalanceSells  OpportunityCategory = "rebalance_sells"
	OpportunityCategoryRebalanceBuys   OpportunityCategory = "rebalance_buys"
	OpportunityCategoryOpportunityBuys OpportunityCategory = "opportunity_buys"
)

// AllOpportunityCategories lists the five categories in canonical order.
var AllOpportunityCategories = []OpportunityCategory{
	OpportunityCategoryProfitTaking,
	OpportunityCategoryAveragingDown,
	OpportunityCategoryRebalanceSells,
	OpportunityCategoryRebalanceBuys,
	OpportunityCategoryOpportunityBuys,
}

// OpportunitiesByCategory organizes action candidates by their category.
type OpportunitiesByCategory map[OpportunityCategory][]ActionCandidate

// Total returns the number of candidates across all categories.
func (o OpportunitiesByCategory) Total() int {
	n := 0
	for _, candidates := range o {
		n += len(candidates)
	}
	return n
}
