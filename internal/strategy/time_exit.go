package strategy

import (
	"fmt"
	"time"

	"equity-backtester/internal/domain"
)

// TimeBasedExit closes a position once it has been held HoldingDays calendar days.
type TimeBasedExit struct {
	HoldingDays int
}

// NewTimeBasedExit creates a TimeBasedExit. holdingDays must be positive.
func NewTimeBasedExit(holdingDays int) (*TimeBasedExit, error) {
	if holdingDays <= 0 {
		return nil, fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidParam, domain.ParamHoldingDays, holdingDays)
	}
	return &TimeBasedExit{HoldingDays: holdingDays}, nil
}

// ShouldExit fires when days since the first transaction reach HoldingDays.
func (r *TimeBasedExit) ShouldExit(rt *domain.RoundTrip, date time.Time, _ float64, _ *domain.ExitState) domain.ExitDecision {
	if rt == nil || rt.TransactionCount() == 0 {
		return domain.NoExit
	}
	if rt.HoldingDays(date) < r.HoldingDays {
		return domain.NoExit
	}
	return domain.ExitDecision{Fire: true, Portion: 1, Reason: domain.ExitReasonTimeExit}
}

// Config implements domain.ExitRule.
func (r *TimeBasedExit) Config() domain.ExitRuleConfig {
	return domain.ExitRuleConfig{
		Type:   domain.ExitRuleTimeBased,
		Params: map[string]float64{domain.ParamHoldingDays: float64(r.HoldingDays)},
	}
}

var _ domain.ExitRule = (*TimeBasedExit)(nil)
