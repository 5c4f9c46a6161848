// Package backtest runs a strategy day by day against historical market data.
package backtest

import (
	"errors"
	"fmt"
	"math"
	"time"

	"equity-backtester/internal/domain"
)

// Backtest errors
var (
	ErrInvalidConfig = errors.New("invalid backtest config")
	ErrNilStrategy   = errors.New("strategy is required")
	ErrNilProvider   = errors.New("market data provider is required")
	ErrNoPriceData   = errors.New("no price data for universe")
)

// DefaultMaxPositions is the position capacity when none is configured.
const DefaultMaxPositions = 10

// ReasonBacktestEnd is the exit reason of positions closed after the last day.
const ReasonBacktestEnd = "backtest_end"

// fullExitPortion is the smallest exit portion treated as a full close.
const fullExitPortion = 0.9999

// Config holds the immutable run parameters.
type Config struct {
	InitialCapital   float64   `json:"initial_capital"`
	StartDate        time.Time `json:"start_date"`
	EndDate          time.Time `json:"end_date"` // inclusive
	MaxPositions     int       `json:"max_positions"`
	Commission       float64   `json:"commission"`   // flat dollars per trade
	SlippagePct      float64   `json:"slippage_pct"` // 0.001 = 0.1%
	FractionalShares bool      `json:"fractional_shares"`
}

// Validate checks Config for configuration errors.
func (c Config) Validate() error {
	if !(c.InitialCapital > 0) || math.IsInf(c.InitialCapital, 0) {
		return fmt.Errorf("%w: initial capital must be positive, got %v", ErrInvalidConfig, c.InitialCapital)
	}
	if c.StartDate.IsZero() || c.EndDate.IsZero() {
		return fmt.Errorf("%w: start and end dates are required", ErrInvalidConfig)
	}
	if !domain.Day(c.StartDate).Before(domain.Day(c.EndDate)) {
		return fmt.Errorf("%w: start %s must be before end %s", ErrInvalidConfig,
			c.StartDate.Format(domain.DateLayout), c.EndDate.Format(domain.DateLayout))
	}
	if c.MaxPositions <= 0 {
		return fmt.Errorf("%w: max positions must be positive, got %d", ErrInvalidConfig, c.MaxPositions)
	}
	if c.Commission < 0 || math.IsNaN(c.Commission) {
		return fmt.Errorf("%w: commission must not be negative, got %v", ErrInvalidConfig, c.Commission)
	}
	if c.SlippagePct < 0 || c.SlippagePct >= 1 || math.IsNaN(c.SlippagePct) {
		return fmt.Errorf("%w: slippage must be in [0, 1), got %v", ErrInvalidConfig, c.SlippagePct)
	}
	return nil
}

// normalized returns the config with dates truncated to UTC days.
func (c Config) normalized() Config {
	c.StartDate = domain.Day(c.StartDate)
	c.EndDate = domain.Day(c.EndDate)
	return c
}
