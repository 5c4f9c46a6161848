package strategy

import (
	"errors"
	"fmt"
	"math"

	"equity-backtester/internal/domain"
	"equity-backtester/internal/sizing"
)

// Factory errors
var (
	ErrUnknownType    = errors.New("unknown type")
	ErrMissingParam   = errors.New("missing required parameter")
	ErrInvalidParam   = errors.New("invalid parameter")
	ErrEmptyComposite = errors.New("composite requires at least one member")
	ErrInvalidConfig  = errors.New("invalid strategy")
)

// CalculationFromConfig creates a Calculation from its tagged form.
func CalculationFromConfig(cfg domain.CalculationConfig) (Calculation, error) {
	ctor, ok := calculations[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("%w: calculation %q", ErrUnknownType, cfg.Type)
	}
	return ctor(), nil
}

// ConditionFromConfig creates a Condition from its tagged form.
func ConditionFromConfig(cfg domain.ConditionConfig) (Condition, error) {
	switch cfg.Type {
	case domain.ConditionGreaterThan:
		t, err := requiredFloat(cfg.Type, "threshold", cfg.Threshold)
		if err != nil {
			return nil, err
		}
		return GreaterThan{Threshold: t}, nil
	case domain.ConditionLessThan:
		t, err := requiredFloat(cfg.Type, "threshold", cfg.Threshold)
		if err != nil {
			return nil, err
		}
		return LessThan{Threshold: t}, nil
	case domain.ConditionBetween:
		lo, err := requiredFloat(cfg.Type, "min", cfg.Min)
		if err != nil {
			return nil, err
		}
		hi, err := requiredFloat(cfg.Type, "max", cfg.Max)
		if err != nil {
			return nil, err
		}
		return NewBetween(lo, hi)
	default:
		return nil, fmt.Errorf("%w: condition %q", ErrUnknownType, cfg.Type)
	}
}

// EntryRuleFromConfig creates an EntryRule or CompositeEntryRule from its tagged form.
// A missing priority defaults to DefaultPriority.
func EntryRuleFromConfig(cfg domain.EntryRuleConfig) (Entry, error) {
	priority := DefaultPriority
	if cfg.Priority != nil {
		priority = *cfg.Priority
	}

	switch cfg.Type {
	case domain.EntryRuleSingle:
		if cfg.Calculation == nil || cfg.Condition == nil {
			return nil, fmt.Errorf("%w: %s requires calculation and condition", ErrMissingParam, cfg.Type)
		}
		calc, cond, err := pairFromConfig(*cfg.Calculation, *cfg.Condition)
		if err != nil {
			return nil, err
		}
		return NewEntryRule(calc, cond, cfg.SignalType, priority)

	case domain.EntryRuleComposite:
		pairs := make([]Pair, 0, len(cfg.Pairs))
		for i, pc := range cfg.Pairs {
			calc, cond, err := pairFromConfig(pc.Calculation, pc.Condition)
			if err != nil {
				return nil, fmt.Errorf("pair %d: %w", i, err)
			}
			pairs = append(pairs, Pair{Calculation: calc, Condition: cond})
		}
		return NewCompositeEntryRule(pairs, cfg.SignalType, priority)

	default:
		return nil, fmt.Errorf("%w: entry rule %q", ErrUnknownType, cfg.Type)
	}
}

// ExitRuleFromConfig creates an exit rule from its tagged form.
// Composite rules are decoded recursively.
func ExitRuleFromConfig(cfg domain.ExitRuleConfig) (domain.ExitRule, error) {
	switch cfg.Type {
	case domain.ExitRuleTimeBased:
		days, err := requiredParam(cfg, domain.ParamHoldingDays)
		if err != nil {
			return nil, err
		}
		if days != math.Trunc(days) || math.Abs(days) > math.MaxInt32 {
			return nil, fmt.Errorf("%w: %s must be a whole number, got %v", ErrInvalidParam, domain.ParamHoldingDays, days)
		}
		return NewTimeBasedExit(int(days))

	case domain.ExitRuleStopLoss:
		pct, err := requiredParam(cfg, domain.ParamStopPct)
		if err != nil {
			return nil, err
		}
		return NewStopLossExit(pct)

	case domain.ExitRuleTrailingStop:
		pct, err := requiredParam(cfg, domain.ParamTrailingPct)
		if err != nil {
			return nil, err
		}
		return NewTrailingStopExit(pct)

	case domain.ExitRuleProfitTarget:
		pct, err := requiredParam(cfg, domain.ParamTargetPct)
		if err != nil {
			return nil, err
		}
		portion, ok := cfg.Params[domain.ParamExitPortion]
		if !ok {
			portion = 1
		}
		return NewProfitTargetExit(pct, portion)

	case domain.ExitRuleComposite:
		slots := make([]ExitSlot, 0, len(cfg.Rules))
		for i, sc := range cfg.Rules {
			rule, err := ExitRuleFromConfig(sc.Rule)
			if err != nil {
				return nil, fmt.Errorf("composite exit slot %d: %w", i, err)
			}
			slots = append(slots, ExitSlot{Rule: rule, Portion: sc.Portion})
		}
		return NewCompositeExitRule(slots)

	default:
		return nil, fmt.Errorf("%w: exit rule %q", ErrUnknownType, cfg.Type)
	}
}

// SizerFromConfig creates a position sizer from its flat tagged form.
func SizerFromConfig(cfg domain.SizerConfig) (sizing.PositionSizer, error) {
	s, err := sizing.FromConfig(cfg)
	if err != nil {
		if errors.Is(err, sizing.ErrUnknownSizer) {
			return nil, fmt.Errorf("%w: position sizer %q", ErrUnknownType, cfg.Type)
		}
		return nil, err
	}
	return s, nil
}

// FromConfig creates a Strategy from its persisted form.
func FromConfig(cfg domain.StrategyConfig) (*Strategy, error) {
	entries := make([]Entry, 0, len(cfg.EntryRules))
	for i, ec := range cfg.EntryRules {
		e, err := EntryRuleFromConfig(ec)
		if err != nil {
			return nil, fmt.Errorf("entry rule %d: %w", i, err)
		}
		entries = append(entries, e)
	}

	exit, err := ExitRuleFromConfig(cfg.ExitRules)
	if err != nil {
		return nil, fmt.Errorf("exit rules: %w", err)
	}

	sizer, err := SizerFromConfig(cfg.PositionSizer)
	if err != nil {
		return nil, fmt.Errorf("position sizer: %w", err)
	}

	return New(cfg.Name, cfg.Description, entries, exit, sizer, cfg.Universe)
}

func pairFromConfig(calcCfg domain.CalculationConfig, condCfg domain.ConditionConfig) (Calculation, Condition, error) {
	calc, err := CalculationFromConfig(calcCfg)
	if err != nil {
		return nil, nil, err
	}
	cond, err := ConditionFromConfig(condCfg)
	if err != nil {
		return nil, nil, err
	}
	return calc, cond, nil
}

func requiredFloat(typ, name string, v *float64) (float64, error) {
	if v == nil {
		return 0, fmt.Errorf("%w: %s requires %s", ErrMissingParam, typ, name)
	}
	if math.IsNaN(*v) {
		return 0, fmt.Errorf("%w: %s %s is NaN", ErrInvalidParam, typ, name)
	}
	return *v, nil
}

func requiredParam(cfg domain.ExitRuleConfig, name string) (float64, error) {
	v, ok := cfg.Params[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s requires %s", ErrMissingParam, cfg.Type, name)
	}
	return v, nil
}
