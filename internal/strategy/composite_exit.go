package strategy

import (
	"fmt"
	"time"

	"equity-backtester/internal/domain"
)

// ExitSlot is one (rule, portion) entry of a CompositeExitRule.
type ExitSlot struct {
	Rule    domain.ExitRule
	Portion float64
}

// CompositeExitRule evaluates its slots in order. The first rule that fires
// decides the exit, with the slot's Portion in place of the rule's own.
// Later slots are not evaluated that day.
type CompositeExitRule struct {
	Slots []ExitSlot
}

// NewCompositeExitRule creates a CompositeExitRule from a non-empty slot list.
func NewCompositeExitRule(slots []ExitSlot) (*CompositeExitRule, error) {
	if len(slots) == 0 {
		return nil, fmt.Errorf("%w: composite exit rule requires at least one rule", ErrEmptyComposite)
	}
	for i, s := range slots {
		if s.Rule == nil {
			return nil, fmt.Errorf("%w: composite exit slot %d has no rule", ErrMissingParam, i)
		}
		if err := checkPortion(s.Portion); err != nil {
			return nil, fmt.Errorf("composite exit slot %d: %w", i, err)
		}
	}
	return &CompositeExitRule{Slots: append([]ExitSlot(nil), slots...)}, nil
}

// ShouldExit implements domain.ExitRule.
func (r *CompositeExitRule) ShouldExit(rt *domain.RoundTrip, date time.Time, price float64, state *domain.ExitState) domain.ExitDecision {
	for _, s := range r.Slots {
		d := s.Rule.ShouldExit(rt, date, price, state)
		if d.Fire {
			d.Portion = s.Portion
			return d
		}
	}
	return domain.NoExit
}

// Config implements domain.ExitRule.
func (r *CompositeExitRule) Config() domain.ExitRuleConfig {
	rules := make([]domain.ExitSlotConfig, len(r.Slots))
	for i, s := range r.Slots {
		rules[i] = domain.ExitSlotConfig{Rule: s.Rule.Config(), Portion: s.Portion}
	}
	return domain.ExitRuleConfig{Type: domain.ExitRuleComposite, Rules: rules}
}

var _ domain.ExitRule = (*CompositeExitRule)(nil)
