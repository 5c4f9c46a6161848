// Package sizing converts a price and the available capital into a share
// quantity for a new position.
package sizing

import (
	"errors"
	"fmt"
	"math"

	"equity-backtester/internal/domain"
)

// Sizing errors
var (
	ErrInvalidPrice = errors.New("price must be positive")
	ErrInvalidParam = errors.New("invalid sizer parameter")
	ErrMissingParam = errors.New("missing sizer parameter")
	ErrUnknownSizer = errors.New("unknown position sizer type")
)

// Defaults applied when optional parameters are omitted.
const (
	DefaultMaxPositions     = 10
	DefaultTargetVolatility = 0.20
	DefaultMaxAdjustment    = 2.0
)

// CapacityView exposes the portfolio capacity to sizers.
type CapacityView interface {
	MaxPositions() int
}

// PositionSizer decides how many shares to buy.
// CalculateShares returns ErrInvalidPrice for price <= 0 and never a negative quantity;
// an allocation that is non-positive or unaffordable yields zero.
// view may be nil.
type PositionSizer interface {
	CalculateShares(price, availableCash, portfolioValue float64, view CapacityView, ticker string) (float64, error)
	Config() domain.SizerConfig
}

// FixedDollarAmount allocates a fixed dollar amount per position, capped by cash.
type FixedDollarAmount struct {
	DollarAmount float64
}

// NewFixedDollarAmount creates a FixedDollarAmount sizer.
func NewFixedDollarAmount(dollarAmount float64) (*FixedDollarAmount, error) {
	if err := positive("dollar_amount", dollarAmount); err != nil {
		return nil, err
	}
	return &FixedDollarAmount{DollarAmount: dollarAmount}, nil
}

// CalculateShares returns min(dollar amount, cash) / price.
func (s *FixedDollarAmount) CalculateShares(price, availableCash, _ float64, _ CapacityView, _ string) (float64, error) {
	if err := checkPrice(price); err != nil {
		return 0, err
	}
	return allocate(math.Min(s.DollarAmount, availableCash), price), nil
}

// Config returns the tagged form.
func (s *FixedDollarAmount) Config() domain.SizerConfig {
	return domain.SizerConfig{Type: domain.SizerFixedDollarAmount, DollarAmount: ptr(s.DollarAmount)}
}

// PercentPortfolio allocates a fraction of total portfolio value, capped by cash.
type PercentPortfolio struct {
	Percent float64
}

// NewPercentPortfolio creates a PercentPortfolio sizer. percent must be in (0, 1].
func NewPercentPortfolio(percent float64) (*PercentPortfolio, error) {
	if err := fraction("percent", percent); err != nil {
		return nil, err
	}
	return &PercentPortfolio{Percent: percent}, nil
}

// CalculateShares returns min(portfolio value * percent, cash) / price.
func (s *PercentPortfolio) CalculateShares(price, availableCash, portfolioValue float64, _ CapacityView, _ string) (float64, error) {
	if err := checkPrice(price); err != nil {
		return 0, err
	}
	return allocate(math.Min(portfolioValue*s.Percent, availableCash), price), nil
}

// Config returns the tagged form.
func (s *PercentPortfolio) Config() domain.SizerConfig {
	return domain.SizerConfig{Type: domain.SizerPercentPortfolio, Percent: ptr(s.Percent)}
}

// PercentAvailableCash allocates a fraction of current cash.
type PercentAvailableCash struct {
	Percent float64
}

// NewPercentAvailableCash creates a PercentAvailableCash sizer. percent must be in (0, 1].
func NewPercentAvailableCash(percent float64) (*PercentAvailableCash, error) {
	if err := fraction("percent", percent); err != nil {
		return nil, err
	}
	return &PercentAvailableCash{Percent: percent}, nil
}

// CalculateShares returns cash * percent / price.
func (s *PercentAvailableCash) CalculateShares(price, availableCash, _ float64, _ CapacityView, _ string) (float64, error) {
	if err := checkPrice(price); err != nil {
		return 0, err
	}
	return allocate(availableCash*s.Percent, price), nil
}

// Config returns the tagged form.
func (s *PercentAvailableCash) Config() domain.SizerConfig {
	return domain.SizerConfig{Type: domain.SizerPercentAvailableCash, Percent: ptr(s.Percent)}
}

// EqualWeight divides cash by the portfolio capacity.
// DefaultMaxPositions is used when no capacity view is available.
type EqualWeight struct {
	DefaultMaxPositions int
}

// NewEqualWeight creates an EqualWeight sizer.
func NewEqualWeight(defaultMaxPositions int) (*EqualWeight, error) {
	if defaultMaxPositions <= 0 {
		return nil, fmt.Errorf("%w: default_max_positions must be positive, got %d", ErrInvalidParam, defaultMaxPositions)
	}
	return &EqualWeight{DefaultMaxPositions: defaultMaxPositions}, nil
}

// CalculateShares returns cash / max positions / price.
func (s *EqualWeight) CalculateShares(price, availableCash, _ float64, view CapacityView, _ string) (float64, error) {
	if err := checkPrice(price); err != nil {
		return 0, err
	}

	slots := s.DefaultMaxPositions
	if view != nil && view.MaxPositions() > 0 {
		slots = view.MaxPositions()
	}
	return allocate(availableCash/float64(slots), price), nil
}

// Config returns the tagged form.
func (s *EqualWeight) Config() domain.SizerConfig {
	n := s.DefaultMaxPositions
	return domain.SizerConfig{Type: domain.SizerEqualWeight, DefaultMaxPositions: &n}
}

// FixedShares buys a fixed share count when affordable.
type FixedShares struct {
	Shares float64
}

// NewFixedShares creates a FixedShares sizer.
func NewFixedShares(shares float64) (*FixedShares, error) {
	if err := positive("shares", shares); err != nil {
		return nil, err
	}
	return &FixedShares{Shares: shares}, nil
}

// CalculateShares returns the fixed count, or zero when shares * price exceeds cash.
func (s *FixedShares) CalculateShares(price, availableCash, _ float64, _ CapacityView, _ string) (float64, error) {
	if err := checkPrice(price); err != nil {
		return 0, err
	}
	if s.Shares*price > availableCash {
		return 0, nil
	}
	return s.Shares, nil
}

// Config returns the tagged form.
func (s *FixedShares) Config() domain.SizerConfig {
	return domain.SizerConfig{Type: domain.SizerFixedShares, Shares: ptr(s.Shares)}
}

// RiskParity is volatility-targeted sizing. Without a volatility feed it sizes
// exactly like FixedDollarAmount with BaseDollarAmount; TargetVolatility and
// MaxAdjustment are validated and persisted for when one exists.
type RiskParity struct {
	BaseDollarAmount float64
	TargetVolatility float64
	MaxAdjustment    float64
}

// NewRiskParity creates a RiskParity sizer. maxAdjustment must be >= 1.
func NewRiskParity(baseDollarAmount, targetVolatility, maxAdjustment float64) (*RiskParity, error) {
	if err := positive("base_dollar_amount", baseDollarAmount); err != nil {
		return nil, err
	}
	if err := positive("target_volatility", targetVolatility); err != nil {
		return nil, err
	}
	if !(maxAdjustment >= 1) || math.IsInf(maxAdjustment, 0) {
		return nil, fmt.Errorf("%w: max_adjustment must be >= 1, got %v", ErrInvalidParam, maxAdjustment)
	}
	return &RiskParity{
		BaseDollarAmount: baseDollarAmount,
		TargetVolatility: targetVolatility,
		MaxAdjustment:    maxAdjustment,
	}, nil
}

// CalculateShares returns min(base amount, cash) / price.
func (s *RiskParity) CalculateShares(price, availableCash, _ float64, _ CapacityView, _ string) (float64, error) {
	if err := checkPrice(price); err != nil {
		return 0, err
	}
	// TODO: scale by TargetVolatility / realized volatility, capped at MaxAdjustment, once bars carry a volatility series.
	return allocate(math.Min(s.BaseDollarAmount, availableCash), price), nil
}

// Config returns the tagged form.
func (s *RiskParity) Config() domain.SizerConfig {
	return domain.SizerConfig{
		Type:             domain.SizerRiskParity,
		BaseDollarAmount: ptr(s.BaseDollarAmount),
		TargetVolatility: ptr(s.TargetVolatility),
		MaxAdjustment:    ptr(s.MaxAdjustment),
	}
}

func checkPrice(price float64) error {
	if !(price > 0) || math.IsInf(price, 0) {
		return fmt.Errorf("%w: got %v", ErrInvalidPrice, price)
	}
	return nil
}

// allocate converts a dollar amount to shares, zero when the amount is not positive.
func allocate(amount, price float64) float64 {
	if !(amount > 0) {
		return 0
	}
	return amount / price
}

func positive(name string, v float64) error {
	if !(v > 0) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %s must be positive, got %v", ErrInvalidParam, name, v)
	}
	return nil
}

func fraction(name string, v float64) error {
	if !(v > 0 && v <= 1) {
		return fmt.Errorf("%w: %s must be in (0, 1], got %v", ErrInvalidParam, name, v)
	}
	return nil
}

func ptr(v float64) *float64 {
	return &v
}

var (
	_ PositionSizer = (*FixedDollarAmount)(nil)
	_ PositionSizer = (*PercentPortfolio)(nil)
	_ PositionSizer = (*PercentAvailableCash)(nil)
	_ PositionSizer = (*EqualWeight)(nil)
	_ PositionSizer = (*FixedShares)(nil)
	_ PositionSizer = (*RiskParity)(nil)
)
