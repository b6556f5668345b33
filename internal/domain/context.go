package domain

// Default transaction cost model (EUR fixed fee plus percentage).
const (
	DefaultTransactionCostFixed   = 2.0
	DefaultTransactionCostPercent = 0.002
)

// OtherGroup is the bucket for country/industry values with no mapping.
const OtherGroup = "OTHER"

// PortfolioContext is the immutable per-request snapshot used by evaluation
// and scoring. Built once per planning request and read-only thereafter.
type PortfolioContext struct {
	TotalValueEUR    float64            `json:"total_value_eur"`
	AvailableCashEUR float64            `json:"available_cash_eur"`
	PositionValues   map[string]float64 `json:"position_values"` // symbol → market value EUR
	CountryTargets   map[string]float64 `json:"country_targets"` // country group → target weight
	IndustryTargets  map[string]float64 `json:"industry_targets"`
	SymbolCountry    map[string]string  `json:"symbol_country"`
	SymbolIndustry   map[string]string  `json:"symbol_industry"`
	SymbolQuality    map[string]float64 `json:"symbol_quality"`
	SymbolDividend   map[string]float64 `json:"symbol_dividend"`
	SymbolAvgCost    map[string]float64 `json:"symbol_avg_cost"`
	CurrentPrices    map[string]float64 `json:"current_prices"`
	CountryGroups    map[string]string  `json:"country_groups"`  // raw country → group bucket
	IndustryGroups   map[string]string  `json:"industry_groups"` // raw industry → group bucket
}

// CountryGroupOf maps a symbol to its country group, falling back to OTHER.
func (c *PortfolioContext) CountryGroupOf(symbol string) string {
	country, ok := c.SymbolCountry[symbol]
	if !ok {
		return OtherGroup
	}
	if group, ok := c.CountryGroups[country]; ok {
		return group
	}
	return OtherGroup
}

// IndustryGroupOf maps a symbol to its industry group, falling back to OTHER.
func (c *PortfolioContext) IndustryGroupOf(symbol string) string {
	industry, ok := c.SymbolIndustry[symbol]
	if !ok {
		return OtherGroup
	}
	if group, ok := c.IndustryGroups[industry]; ok {
		return group
	}
	return OtherGroup
}

// OpportunityContext carries everything the opportunity calculators need for
// one identification pass.
type OpportunityContext struct {
	Positions              []Position          `json:"positions"`
	StocksBySymbol         map[string]Security `json:"stocks_by_symbol"`
	CurrentPrices          map[string]float64  `json:"current_prices"`
	TargetWeights          map[string]float64  `json:"target_weights"`
	TotalPortfolioValueEUR float64             `json:"total_portfolio_value_eur"`
	AvailableCashEUR       float64             `json:"available_cash_eur"`
	TransactionCostFixed   float64             `json:"transaction_cost_fixed"`
	TransactionCostPercent float64             `json:"transaction_cost_percent"`
	AllowBuy               bool                `json:"allow_buy"`
	AllowSell              bool                `json:"allow_sell"`
	IneligibleSymbols      map[string]bool     `json:"ineligible_symbols,omitempty"`
	RecentlySold           map[string]bool     `json:"recently_sold,omitempty"`
	RecentlyBought         map[string]bool     `json:"recently_bought,omitempty"`
}

// NewOpportunityContext fills cost defaults and empty maps.
func NewOpportunityContext() *OpportunityContext {
	return &OpportunityContext{
		StocksBySymbol:         make(map[string]Security),
		CurrentPrices:          make(map[string]float64),
		TargetWeights:          make(map[string]float64),
		TransactionCostFixed:   DefaultTransactionCostFixed,
		TransactionCostPercent: DefaultTransactionCostPercent,
		AllowBuy:               true,
		AllowSell:              true,
		IneligibleSymbols:      make(map[string]bool),
		RecentlySold:           make(map[string]bool),
		RecentlyBought:         make(map[string]bool),
	}
}

// PositionFor returns the held position for a symbol, if any.
func (c *OpportunityContext) PositionFor(symbol string) (Position, bool) {
	for _, p := range c.Positions {
		if p.Symbol == symbol {
			return p, true
		}
	}
	return Position{}, false
}

// TransactionCost returns the fee for a trade of the given EUR value.
func (c *OpportunityContext) TransactionCost(valueEUR float64) float64 {
	if valueEUR < 0 {
		valueEUR = -valueEUR
	}
	return c.TransactionCostFixed + valueEUR*c.TransactionCostPercent
}

// IsWorthwhile reports whether a trade of EUR value v clears the
// cost-efficiency floor v ≥ 2·(fixed + v·pct).
func (c *OpportunityContext) IsWorthwhile(valueEUR float64) bool {
	return valueEUR >= 2*c.TransactionCost(valueEUR)
}

// MinWorthwhileValue solves v = 2·c_fixed / (1 − 2·c_pct), the smallest EUR
// value that passes IsWorthwhile.
func (c *OpportunityContext) MinWorthwhileValue() float64 {
	denom := 1 - 2*c.TransactionCostPercent
	if denom <= 0 {
		return 0
	}
	return 2 * c.TransactionCostFixed / denom
}

// ScenarioMode selects how price uncertainty is applied during evaluation.
type ScenarioMode string

const (
	ScenarioDeterministic ScenarioMode = "deterministic"
	ScenarioStochastic    ScenarioMode = "stochastic"
	ScenarioMonteCarlo    ScenarioMode = "monte_carlo"
)

// EvaluationSettings controls a single evaluator request.
type EvaluationSettings struct {
	BeamWidth              int          `json:"beam_width"`
	TransactionCostFixed   float64      `json:"transaction_cost_fixed"`
	TransactionCostPercent float64      `json:"transaction_cost_percent"`
	ScenarioMode           ScenarioMode `json:"scenario_mode"`
	MonteCarloPaths        int          `json:"monte_carlo_paths"`
	MonteCarloSeed         int64        `json:"monte_carlo_seed"`
	StochasticShifts       []float64    `json:"stochastic_shifts,omitempty"`
	CostPenaltyFactor      float64      `json:"cost_penalty_factor"`
	MultiObjective         bool         `json:"multi_objective"` // Pareto front instead of top-K
	PrioritySort           bool         `json:"priority_sort"`
}

// NewDefaultEvaluationSettings returns the standard evaluation knobs.
func NewDefaultEvaluationSettings() EvaluationSettings {
	return EvaluationSettings{
		BeamWidth:              10,
		TransactionCostFixed:   DefaultTransactionCostFixed,
		TransactionCostPercent: DefaultTransactionCostPercent,
		ScenarioMode:           ScenarioDeterministic,
		MonteCarloPaths:        100,
		StochasticShifts:       []float64{-0.10, -0.05, 0, 0.05, 0.10},
		CostPenaltyFactor:      0.5,
	}
}
