package domain

import "sort"

// ModuleConfig is the enable/params bucket for one pluggable module
// (pattern, calculator, generator, or filter).
type ModuleConfig struct {
	Enabled bool                   `json:"enabled"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// PlannerConfiguration carries every tunable of a planning run. Zero values
// are never used directly; construct with NewDefaultConfiguration and
// override.
type PlannerConfiguration struct {
	// Transaction cost model.
	TransactionFeeFixed   float64 `json:"transaction_fee_fixed"`
	TransactionFeePercent float64 `json:"transaction_fee_percent"`

	// Position sizing.
	MaxPositionPct float64 `json:"max_position_pct"` // Hard cap per symbol
	MinPositionPct float64 `json:"min_position_pct"`
	MinTradeValue  float64 `json:"min_trade_value"`
	MinCashBuffer  float64 `json:"min_cash_buffer"` // Fraction of portfolio kept as cash

	// Safety gate.
	BuyCooldownDays  int     `json:"buy_cooldown_days"`
	SellCooldownDays int     `json:"sell_cooldown_days"`
	MinHoldDays      int     `json:"min_hold_days"`
	MaxLossThreshold float64 `json:"max_loss_threshold"` // e.g. -0.20

	// Frequency limiter.
	TradeFrequencyLimitsEnabled bool `json:"trade_frequency_limits_enabled"`
	MinTimeBetweenTradesMinutes int  `json:"min_time_between_trades_minutes"`
	MaxTradesPerDay             int  `json:"max_trades_per_day"`
	MaxTradesPerWeek            int  `json:"max_trades_per_week"`

	// Scenario mode.
	EnableMonteCarlo          bool `json:"enable_monte_carlo"`
	MonteCarloPaths           int  `json:"monte_carlo_paths"`
	EnableStochasticScenarios bool `json:"enable_stochastic_scenarios"`

	// Search controls.
	BeamWidth              int     `json:"beam_width"`
	BatchSize              int     `json:"batch_size"`
	MaxDepth               int     `json:"max_depth"`
	MaxCombinations        int     `json:"max_combinations"`
	DiversityWeight        float64 `json:"diversity_weight"`
	MinPriority            float64 `json:"min_priority"`
	EnableCorrelationAware bool    `json:"enable_correlation_aware"`
	EnableEarlyTermination bool    `json:"enable_early_termination"`
	MinBatchesToEvaluate   int     `json:"min_batches_to_evaluate"`
	PlateauThreshold       int     `json:"plateau_threshold"`

	// Optimiser.
	BlendBeta          float64 `json:"blend_beta"`    // HRP share of the MV/HRP blend
	WeightCutoff       float64 `json:"weight_cutoff"` // ε below which weights are dropped
	CashReserve        float64 `json:"cash_reserve"`
	TargetAnnualReturn float64 `json:"target_annual_return"`

	MaxOpportunitiesPerCategory int `json:"max_opportunities_per_category"`

	// Pluggable module buckets keyed by registered name.
	Patterns    map[string]ModuleConfig `json:"patterns,omitempty"`
	Calculators map[string]ModuleConfig `json:"calculators,omitempty"`
	Generators  map[string]ModuleConfig `json:"generators,omitempty"`
	Filters     map[string]ModuleConfig `json:"filters,omitempty"`
}

// NewDefaultConfiguration returns the standard planner configuration with
// every pattern, calculator, generator, and filter enabled.
func NewDefaultConfiguration() *PlannerConfiguration {
	cfg := &PlannerConfiguration{
		TransactionFeeFixed:   DefaultTransactionCostFixed,
		TransactionFeePercent: DefaultTransactionCostPercent,

		MaxPositionPct: 0.20,
		MinPositionPct: 0.01,
		MinTradeValue:  100.0,
		MinCashBuffer:  0.05,

		BuyCooldownDays:  30,
		SellCooldownDays: 30,
		MinHoldDays:      90,
		MaxLossThreshold: -0.20,

		TradeFrequencyLimitsEnabled: true,
		MinTimeBetweenTradesMinutes: 30,
		MaxTradesPerDay:             4,
		MaxTradesPerWeek:            10,

		MonteCarloPaths: 100,

		BeamWidth:              10,
		BatchSize:              500,
		MaxDepth:               4,
		MaxCombinations:        2000,
		DiversityWeight:        0.3,
		MinPriority:            0.05,
		EnableCorrelationAware: true,
		EnableEarlyTermination: true,
		MinBatchesToEvaluate:   2,
		PlateauThreshold:       3,

		BlendBeta:          0.5,
		WeightCutoff:       0.01,
		CashReserve:        0.05,
		TargetAnnualReturn: 0.08,

		MaxOpportunitiesPerCategory: 10,

		Patterns:    make(map[string]ModuleConfig),
		Calculators: make(map[string]ModuleConfig),
		Generators:  make(map[string]ModuleConfig),
		Filters:     make(map[string]ModuleConfig),
	}

	for _, name := range []string{
		"direct_buy", "profit_taking", "rebalance", "averaging_down",
		"single_best", "multi_sell", "mixed_strategy", "opportunity_first",
		"deep_rebalance", "cash_generation", "cost_optimized", "adaptive",
		"market_regime",
	} {
		cfg.Patterns[name] = ModuleConfig{Enabled: true}
	}
	for _, name := range []string{
		"profit_taking", "averaging_down", "rebalance_sells",
		"rebalance_buys", "opportunity_buys",
	} {
		cfg.Calculators[name] = ModuleConfig{Enabled: true}
	}
	for _, name := range []string{"combinatorial", "partial_execution", "constraint_relaxation"} {
		cfg.Generators[name] = ModuleConfig{Enabled: true}
	}
	for _, name := range []string{"correlation_aware", "eligibility", "recently_traded"} {
		cfg.Filters[name] = ModuleConfig{Enabled: true}
	}

	return cfg
}

// Validate clamps search controls to their documented limits.
func (c *PlannerConfiguration) Validate() {
	if c.MaxDepth < 1 {
		c.MaxDepth = 1
	}
	if c.MaxDepth > 10 {
		c.MaxDepth = 10
	}
	if c.BeamWidth < 1 {
		c.BeamWidth = 1
	}
	if c.BeamWidth > 100 {
		c.BeamWidth = 100
	}
	if c.BatchSize < 10 {
		c.BatchSize = 10
	}
	if c.BatchSize > 5000 {
		c.BatchSize = 5000
	}
	if c.MaxCombinations > 10000 {
		c.MaxCombinations = 10000
	}
	if c.MonteCarloPaths > 500 {
		c.MonteCarloPaths = 500
	}
	if c.MinPriority < 0 {
		c.MinPriority = 0
	}
	if c.MinPriority > 1 {
		c.MinPriority = 1
	}
	if c.MinBatchesToEvaluate < 1 {
		c.MinBatchesToEvaluate = 1
	}
	if c.PlateauThreshold < 1 {
		c.PlateauThreshold = 1
	}
}

// GetEnabledPatterns returns the enabled pattern names, sorted for
// deterministic iteration.
func (c *PlannerConfiguration) GetEnabledPatterns() []string {
	return enabledNames(c.Patterns)
}

// GetEnabledCalculators returns the enabled calculator names, sorted.
func (c *PlannerConfiguration) GetEnabledCalculators() []string {
	return enabledNames(c.Calculators)
}

// GetEnabledGenerators returns the enabled generator names, sorted.
func (c *PlannerConfiguration) GetEnabledGenerators() []string {
	return enabledNames(c.Generators)
}

// GetEnabledFilters returns the enabled filter names, sorted.
func (c *PlannerConfiguration) GetEnabledFilters() []string {
	return enabledNames(c.Filters)
}

// GetPatternParams returns the params bucket for a pattern (may be nil).
func (c *PlannerConfiguration) GetPatternParams(name string) map[string]interface{} {
	return c.Patterns[name].Params
}

// GetCalculatorParams returns the params bucket for a calculator (may be nil).
func (c *PlannerConfiguration) GetCalculatorParams(name string) map[string]interface{} {
	return c.Calculators[name].Params
}

// GetGeneratorParams returns the params bucket for a generator (may be nil).
func (c *PlannerConfiguration) GetGeneratorParams(name string) map[string]interface{} {
	return c.Generators[name].Params
}

// GetFilterParams returns the params bucket for a filter (may be nil).
func (c *PlannerConfiguration) GetFilterParams(name string) map[string]interface{} {
	return c.Filters[name].Params
}

func enabledNames(modules map[string]ModuleConfig) []string {
	names := make([]string, 0, len(modules))
	for name, mc := range modules {
		if mc.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// GetFloatParam reads a float64 from a params map with a default. JSON
// decoding produces float64 for all numbers, so int values are accepted too.
func GetFloatParam(params map[string]interface{}, key string, def float64) float64 {
	if params == nil {
		return def
	}
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

// GetIntParam reads an int from a params map with a default.
func GetIntParam(params map[string]interface{}, key string, def int) int {
	if params == nil {
		return def
	}
	switch v := params[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}

// GetBoolParam reads a bool from a params map with a default.
func GetBoolParam(params map[string]interface{}, key string, def bool) bool {
	if params == nil {
		return def
	}
	if v, ok := params[key].(bool); ok {
		return v
	}
	return def
}
