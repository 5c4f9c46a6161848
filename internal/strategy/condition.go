package strategy

import (
	"fmt"
	"math"

	"equity-backtester/internal/domain"
)

// Condition tests a calculated value. A nil value never passes.
type Condition interface {
	Check(v *float64) bool
	Config() domain.ConditionConfig
}

// GreaterThan passes when value > Threshold.
type GreaterThan struct {
	Threshold float64
}

// Check implements Condition.
func (c GreaterThan) Check(v *float64) bool {
	return v != nil && *v > c.Threshold
}

// Config implements Condition.
func (c GreaterThan) Config() domain.ConditionConfig {
	return domain.ConditionConfig{Type: domain.ConditionGreaterThan, Threshold: value(c.Threshold)}
}

// LessThan passes when value < Threshold.
type LessThan struct {
	Threshold float64
}

// Check implements Condition.
func (c LessThan) Check(v *float64) bool {
	return v != nil && *v < c.Threshold
}

// Config implements Condition.
func (c LessThan) Config() domain.ConditionConfig {
	return domain.ConditionConfig{Type: domain.ConditionLessThan, Threshold: value(c.Threshold)}
}

// Between passes when Min <= value <= Max.
type Between struct {
	Min float64
	Max float64
}

// NewBetween creates a Between condition. min must not exceed max.
func NewBetween(min, max float64) (Between, error) {
	if math.IsNaN(min) || math.IsNaN(max) || min > max {
		return Between{}, fmt.Errorf("%w: between min %v > max %v", ErrInvalidParam, min, max)
	}
	return Between{Min: min, Max: max}, nil
}

// Check implements Condition.
func (c Between) Check(v *float64) bool {
	return v != nil && *v >= c.Min && *v <= c.Max
}

// Config implements Condition.
func (c Between) Config() domain.ConditionConfig {
	return domain.ConditionConfig{Type: domain.ConditionBetween, Min: value(c.Min), Max: value(c.Max)}
}

var (
	_ Condition = GreaterThan{}
	_ Condition = LessThan{}
	_ Condition = Between{}
)
