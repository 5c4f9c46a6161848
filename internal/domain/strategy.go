package domain

// Calculation type tags
const (
	CalculationEarningsSurprise       = "EarningsSurprise"
	CalculationDayChange              = "DayChange"
	CalculationPERatio                = "PERatio"
	CalculationInstitutionalOwnership = "InstitutionalOwnership"
)

// Condition type tags
const (
	ConditionGreaterThan = "GreaterThan"
	ConditionLessThan    = "LessThan"
	ConditionBetween     = "Between"
)

// Entry rule type tags
const (
	EntryRuleSingle    = "EntryRule"
	EntryRuleComposite = "CompositeEntryRule"
)

// Exit rule type tags
const (
	ExitRuleTimeBased    = "TimeBasedExit"
	ExitRuleStopLoss     = "StopLossExit"
	ExitRuleTrailingStop = "TrailingStopExit"
	ExitRuleProfitTarget = "ProfitTargetExit"
	ExitRuleComposite    = "CompositeExitRule"
)

// Exit rule parameter keys
const (
	ParamHoldingDays = "holding_days"
	ParamStopPct     = "stop_pct"
	ParamTrailingPct = "trailing_pct"
	ParamTargetPct   = "target_pct"
	ParamExitPortion = "exit_portion"
)

// Exit reason codes
const (
	ExitReasonTimeExit     = "time_exit"
	ExitReasonStopLoss     = "stop_loss"
	ExitReasonTrailingStop = "trailing_stop"
	ExitReasonProfitTarget = "profit_target"
)

// Position sizer type tags
const (
	SizerFixedDollarAmount    = "FixedDollarAmount"
	SizerPercentPortfolio     = "PercentPortfolio"
	SizerPercentAvailableCash = "PercentAvailableCash"
	SizerEqualWeight          = "EqualWeight"
	SizerFixedShares          = "FixedShares"
	SizerRiskParity           = "RiskParity"
)

// CalculationConfig is the tagged form of a Calculation.
type CalculationConfig struct {
	Type string `json:"type" yaml:"type"`
}

// ConditionConfig is the tagged form of a Condition.
type ConditionConfig struct {
	Type      string   `json:"type" yaml:"type"`
	Threshold *float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"` // GreaterThan, LessThan
	Min       *float64 `json:"min,omitempty" yaml:"min,omitempty"`             // Between
	Max       *float64 `json:"max,omitempty" yaml:"max,omitempty"`             // Between
}

// EntryPairConfig is one (calculation, condition) pair of a composite entry rule.
type EntryPairConfig struct {
	Calculation CalculationConfig `json:"calculation" yaml:"calculation"`
	Condition   ConditionConfig   `json:"condition" yaml:"condition"`
}

// EntryRuleConfig is the tagged form of an EntryRule or CompositeEntryRule.
type EntryRuleConfig struct {
	Type string `json:"type" yaml:"type"`

	// EntryRule parameters
	Calculation *CalculationConfig `json:"calculation,omitempty" yaml:"calculation,omitempty"`
	Condition   *ConditionConfig   `json:"condition,omitempty" yaml:"condition,omitempty"`

	// CompositeEntryRule parameters
	Pairs []EntryPairConfig `json:"pairs,omitempty" yaml:"pairs,omitempty"`

	// Common parameters
	SignalType string   `json:"signal_type" yaml:"signal_type"`
	Priority   *float64 `json:"priority,omitempty" yaml:"priority,omitempty"` // defaults to 1.0
}

// ExitSlotConfig is one (rule, portion) entry of a composite exit rule.
type ExitSlotConfig struct {
	Rule    ExitRuleConfig `json:"rule" yaml:"rule"`
	Portion float64        `json:"portion" yaml:"portion"`
}

// ExitRuleConfig is the tagged form of an ExitRule.
// Leaf rules carry Params; CompositeExitRule carries Rules.
type ExitRuleConfig struct {
	Type   string             `json:"type" yaml:"type"`
	Params map[string]float64 `json:"params,omitempty" yaml:"params,omitempty"`
	Rules  []ExitSlotConfig   `json:"rules,omitempty" yaml:"rules,omitempty"`
}

// SizerConfig is the flat tagged form of a PositionSizer.
type SizerConfig struct {
	Type string `json:"type" yaml:"type"`

	// FixedDollarAmount
	DollarAmount *float64 `json:"dollar_amount,omitempty" yaml:"dollar_amount,omitempty"`

	// PercentPortfolio, PercentAvailableCash
	Percent *float64 `json:"percent,omitempty" yaml:"percent,omitempty"`

	// EqualWeight
	DefaultMaxPositions *int `json:"default_max_positions,omitempty" yaml:"default_max_positions,omitempty"`

	// FixedShares
	Shares *float64 `json:"shares,omitempty" yaml:"shares,omitempty"`

	// RiskParity
	BaseDollarAmount *float64 `json:"base_dollar_amount,omitempty" yaml:"base_dollar_amount,omitempty"`
	TargetVolatility *float64 `json:"target_volatility,omitempty" yaml:"target_volatility,omitempty"`
	MaxAdjustment    *float64 `json:"max_adjustment,omitempty" yaml:"max_adjustment,omitempty"`
}

// StrategyConfig is the persisted form of a complete strategy.
type StrategyConfig struct {
	Name          string            `json:"name" yaml:"name"`
	Description   string            `json:"description" yaml:"description"`
	EntryRules    []EntryRuleConfig `json:"entry_rules" yaml:"entry_rules"`
	ExitRules     ExitRuleConfig    `json:"exit_rules" yaml:"exit_rules"`
	PositionSizer SizerConfig       `json:"position_sizer" yaml:"position_sizer"`
	Universe      []string          `json:"universe" yaml:"universe"`
}

// Clone returns a deep copy of the strategy config.
func (c StrategyConfig) Clone() StrategyConfig {
	out := c
	if c.EntryRules != nil {
		out.EntryRules = make([]EntryRuleConfig, len(c.EntryRules))
		for i, r := range c.EntryRules {
			out.EntryRules[i] = r.clone()
		}
	}
	out.ExitRules = c.ExitRules.clone()
	out.PositionSizer = c.PositionSizer.clone()
	if c.Universe != nil {
		out.Universe = append([]string(nil), c.Universe...)
	}
	return out
}

func (c EntryRuleConfig) clone() EntryRuleConfig {
	out := c
	if c.Calculation != nil {
		calc := *c.Calculation
		out.Calculation = &calc
	}
	if c.Condition != nil {
		cond := c.Condition.clone()
		out.Condition = &cond
	}
	if c.Pairs != nil {
		out.Pairs = make([]EntryPairConfig, len(c.Pairs))
		for i, p := range c.Pairs {
			out.Pairs[i] = EntryPairConfig{Calculation: p.Calculation, Condition: p.Condition.clone()}
		}
	}
	out.Priority = clonePtr(c.Priority)
	return out
}

func (c ConditionConfig) clone() ConditionConfig {
	c.Threshold = clonePtr(c.Threshold)
	c.Min = clonePtr(c.Min)
	c.Max = clonePtr(c.Max)
	return c
}

func (c ExitRuleConfig) clone() ExitRuleConfig {
	out := c
	if c.Params != nil {
		out.Params = make(map[string]float64, len(c.Params))
		for k, v := range c.Params {
			out.Params[k] = v
		}
	}
	if c.Rules != nil {
		out.Rules = make([]ExitSlotConfig, len(c.Rules))
		for i, slot := range c.Rules {
			out.Rules[i] = ExitSlotConfig{Rule: slot.Rule.clone(), Portion: slot.Portion}
		}
	}
	return out
}

func (c SizerConfig) clone() SizerConfig {
	c.DollarAmount = clonePtr(c.DollarAmount)
	c.Percent = clonePtr(c.Percent)
	c.DefaultMaxPositions = clonePtr(c.DefaultMaxPositions)
	c.Shares = clonePtr(c.Shares)
	c.BaseDollarAmount = clonePtr(c.BaseDollarAmount)
	c.TargetVolatility = clonePtr(c.TargetVolatility)
	c.MaxAdjustment = clonePtr(c.MaxAdjustment)
	return c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
