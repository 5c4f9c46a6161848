package strategy

import (
	"fmt"
	"math"
	"time"

	"equity-backtester/internal/domain"
)

// StopLossExit closes a position whose return from the average entry price
// falls to -StopPct or below.
type StopLossExit struct {
	StopPct float64
}

// NewStopLossExit creates a StopLossExit. stopPct must be positive.
func NewStopLossExit(stopPct float64) (*StopLossExit, error) {
	if err := positivePct(domain.ParamStopPct, stopPct); err != nil {
		return nil, err
	}
	return &StopLossExit{StopPct: stopPct}, nil
}

// ShouldExit implements domain.ExitRule.
func (r *StopLossExit) ShouldExit(rt *domain.RoundTrip, _ time.Time, price float64, _ *domain.ExitState) domain.ExitDecision {
	ret, ok := entryReturn(rt, price)
	if !ok || ret > -r.StopPct {
		return domain.NoExit
	}
	return domain.ExitDecision{Fire: true, Portion: 1, Reason: domain.ExitReasonStopLoss}
}

// Config implements domain.ExitRule.
func (r *StopLossExit) Config() domain.ExitRuleConfig {
	return domain.ExitRuleConfig{
		Type:   domain.ExitRuleStopLoss,
		Params: map[string]float64{domain.ParamStopPct: r.StopPct},
	}
}

// TrailingStopExit closes a position once price has fallen TrailingPct from
// its running peak. The peak starts at the average entry price and is raised
// on every evaluation, fired or not. It lives in the caller's ExitState.
type TrailingStopExit struct {
	TrailingPct float64
}

// NewTrailingStopExit creates a TrailingStopExit. trailingPct must be positive.
func NewTrailingStopExit(trailingPct float64) (*TrailingStopExit, error) {
	if err := positivePct(domain.ParamTrailingPct, trailingPct); err != nil {
		return nil, err
	}
	return &TrailingStopExit{TrailingPct: trailingPct}, nil
}

// ShouldExit implements domain.ExitRule.
// With a nil state the peak is the larger of the entry price and price.
func (r *TrailingStopExit) ShouldExit(rt *domain.RoundTrip, _ time.Time, price float64, state *domain.ExitState) domain.ExitDecision {
	if rt == nil || !validPrice(price) {
		return domain.NoExit
	}

	peak, ok := state.Peak(rt.ID)
	if !ok {
		peak = rt.AverageEntryPrice().InexactFloat64()
	}
	peak = math.Max(peak, price)
	state.SetPeak(rt.ID, peak)

	if !(peak > 0) || (peak-price)/peak < r.TrailingPct {
		return domain.NoExit
	}
	return domain.ExitDecision{Fire: true, Portion: 1, Reason: domain.ExitReasonTrailingStop}
}

// Config implements domain.ExitRule.
func (r *TrailingStopExit) Config() domain.ExitRuleConfig {
	return domain.ExitRuleConfig{
		Type:   domain.ExitRuleTrailingStop,
		Params: map[string]float64{domain.ParamTrailingPct: r.TrailingPct},
	}
}

// ProfitTargetExit sells ExitPortion of the remaining shares once the return
// from the average entry price reaches TargetPct.
type ProfitTargetExit struct {
	TargetPct   float64
	ExitPortion float64
}

// NewProfitTargetExit creates a ProfitTargetExit.
// targetPct must be positive and exitPortion in (0, 1].
func NewProfitTargetExit(targetPct, exitPortion float64) (*ProfitTargetExit, error) {
	if err := positivePct(domain.ParamTargetPct, targetPct); err != nil {
		return nil, err
	}
	if err := checkPortion(exitPortion); err != nil {
		return nil, err
	}
	return &ProfitTargetExit{TargetPct: targetPct, ExitPortion: exitPortion}, nil
}

// ShouldExit implements domain.ExitRule.
func (r *ProfitTargetExit) ShouldExit(rt *domain.RoundTrip, _ time.Time, price float64, _ *domain.ExitState) domain.ExitDecision {
	ret, ok := entryReturn(rt, price)
	if !ok || ret < r.TargetPct {
		return domain.NoExit
	}
	return domain.ExitDecision{Fire: true, Portion: r.ExitPortion, Reason: domain.ExitReasonProfitTarget}
}

// Config implements domain.ExitRule.
func (r *ProfitTargetExit) Config() domain.ExitRuleConfig {
	return domain.ExitRuleConfig{
		Type: domain.ExitRuleProfitTarget,
		Params: map[string]float64{
			domain.ParamTargetPct:   r.TargetPct,
			domain.ParamExitPortion: r.ExitPortion,
		},
	}
}

// entryReturn is (price - average entry) / average entry.
// ok is false when either side is not a positive price.
func entryReturn(rt *domain.RoundTrip, price float64) (float64, bool) {
	if rt == nil || !validPrice(price) {
		return 0, false
	}
	avg := rt.AverageEntryPrice().InexactFloat64()
	if !(avg > 0) {
		return 0, false
	}
	return (price - avg) / avg, true
}

func validPrice(price float64) bool {
	return price > 0 && !math.IsInf(price, 0)
}

func positivePct(name string, v float64) error {
	if !(v > 0) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %s must be positive, got %v", ErrInvalidParam, name, v)
	}
	return nil
}

func checkPortion(portion float64) error {
	if !(portion > 0) || portion > 1 {
		return fmt.Errorf("%w: portion must be in (0, 1], got %v", ErrInvalidParam, portion)
	}
	return nil
}

var (
	_ domain.ExitRule = (*StopLossExit)(nil)
	_ domain.ExitRule = (*TrailingStopExit)(nil)
	_ domain.ExitRule = (*ProfitTargetExit)(nil)
)
