package strategy

import (
	"context"
	"fmt"
	"time"

	"equity-backtester/internal/domain"
	"equity-backtester/internal/marketdata"
)

// DefaultPriority is the signal priority when none is configured.
const DefaultPriority = 1.0

// Signal metadata keys of a single-pair EntryRule.
const (
	MetadataCalculation = "calculation"
	MetadataCondition   = "condition"
	MetadataValue       = "value"
)

// Entry produces at most one signal per ticker and day.
type Entry interface {
	ShouldEnter(ctx context.Context, ticker string, date time.Time, data marketdata.Provider, view PortfolioView) (*domain.Signal, error)
	Config() domain.EntryRuleConfig
}

// EntryRule emits a signal when its Condition accepts its Calculation's value.
type EntryRule struct {
	Calculation Calculation
	Condition   Condition
	SignalType  string
	Priority    float64
}

// NewEntryRule creates an EntryRule.
func NewEntryRule(calc Calculation, cond Condition, signalType string, priority float64) (*EntryRule, error) {
	if calc == nil || cond == nil {
		return nil, fmt.Errorf("%w: entry rule requires calculation and condition", ErrMissingParam)
	}
	if signalType == "" {
		return nil, fmt.Errorf("%w: entry rule requires signal_type", ErrMissingParam)
	}
	return &EntryRule{
		Calculation: calc,
		Condition:   cond,
		SignalType:  signalType,
		Priority:    priority,
	}, nil
}

// ShouldEnter returns a signal carrying the raw value, or nil when the value
// is missing or rejected.
func (r *EntryRule) ShouldEnter(ctx context.Context, ticker string, date time.Time, data marketdata.Provider, view PortfolioView) (*domain.Signal, error) {
	v, err := r.Calculation.Calculate(ctx, ticker, date, data, view)
	if err != nil {
		return nil, err
	}
	if !r.Condition.Check(v) {
		return nil, nil
	}

	return &domain.Signal{
		Ticker:     ticker,
		Date:       domain.Day(date),
		SignalType: r.SignalType,
		Metadata: map[string]any{
			MetadataCalculation: r.Calculation.Tag(),
			MetadataCondition:   r.Condition.Config(),
			MetadataValue:       *v,
		},
		Priority: r.Priority,
	}, nil
}

// Config returns the tagged form.
func (r *EntryRule) Config() domain.EntryRuleConfig {
	calc := CalculationConfig(r.Calculation)
	cond := r.Condition.Config()
	return domain.EntryRuleConfig{
		Type:        domain.EntryRuleSingle,
		Calculation: &calc,
		Condition:   &cond,
		SignalType:  r.SignalType,
		Priority:    value(r.Priority),
	}
}

// Pair is one (Calculation, Condition) term of a CompositeEntryRule.
type Pair struct {
	Calculation Calculation
	Condition   Condition
}

// CompositeEntryRule emits a signal only when every pair passes.
// Pairs are evaluated in order and evaluation stops at the first failure.
type CompositeEntryRule struct {
	Pairs      []Pair
	SignalType string
	Priority   float64
}

// NewCompositeEntryRule creates a CompositeEntryRule. At least one pair is required.
func NewCompositeEntryRule(pairs []Pair, signalType string, priority float64) (*CompositeEntryRule, error) {
	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w: composite entry rule requires at least one pair", ErrEmptyComposite)
	}
	for i, p := range pairs {
		if p.Calculation == nil || p.Condition == nil {
			return nil, fmt.Errorf("%w: pair %d requires calculation and condition", ErrMissingParam, i)
		}
	}
	if signalType == "" {
		return nil, fmt.Errorf("%w: composite entry rule requires signal_type", ErrMissingParam)
	}
	return &CompositeEntryRule{
		Pairs:      append([]Pair(nil), pairs...),
		SignalType: signalType,
		Priority:   priority,
	}, nil
}

// ShouldEnter returns a signal whose metadata maps each calculation tag to its value.
func (r *CompositeEntryRule) ShouldEnter(ctx context.Context, ticker string, date time.Time, data marketdata.Provider, view PortfolioView) (*domain.Signal, error) {
	metadata := make(map[string]any, len(r.Pairs))
	for _, p := range r.Pairs {
		v, err := p.Calculation.Calculate(ctx, ticker, date, data, view)
		if err != nil {
			return nil, err
		}
		if !p.Condition.Check(v) {
			return nil, nil
		}
		metadata[p.Calculation.Tag()] = *v
	}

	return &domain.Signal{
		Ticker:     ticker,
		Date:       domain.Day(date),
		SignalType: r.SignalType,
		Metadata:   metadata,
		Priority:   r.Priority,
	}, nil
}

// Config returns the tagged form.
func (r *CompositeEntryRule) Config() domain.EntryRuleConfig {
	pairs := make([]domain.EntryPairConfig, len(r.Pairs))
	for i, p := range r.Pairs {
		pairs[i] = domain.EntryPairConfig{
			Calculation: CalculationConfig(p.Calculation),
			Condition:   p.Condition.Config(),
		}
	}
	return domain.EntryRuleConfig{
		Type:       domain.EntryRuleComposite,
		Pairs:      pairs,
		SignalType: r.SignalType,
		Priority:   value(r.Priority),
	}
}

var (
	_ Entry = (*EntryRule)(nil)
	_ Entry = (*CompositeEntryRule)(nil)
)
