package strategy

import (
	"context"
	"fmt"
	"time"

	"equity-backtester/internal/domain"
	"equity-backtester/internal/marketdata"
)

// PortfolioView is the read-only portfolio state available to calculations.
type PortfolioView interface {
	HoldsTicker(ticker string) bool
	OpenCount() int
	MaxPositions() int
}

// Calculation extracts one numeric value for a ticker on a date.
// Returns nil without error when data is unavailable; errors are reserved
// for provider failures.
type Calculation interface {
	Calculate(ctx context.Context, ticker string, date time.Time, data marketdata.Provider, view PortfolioView) (*float64, error)

	// Tag returns the serialization type tag.
	Tag() string
}

// EarningsSurprise returns the point-in-time earnings surprise (0.05 = 5% beat).
type EarningsSurprise struct{}

// Calculate implements Calculation.
func (EarningsSurprise) Calculate(ctx context.Context, ticker string, date time.Time, data marketdata.Provider, _ PortfolioView) (*float64, error) {
	s, err := data.Earnings(ctx, ticker, date)
	if err != nil {
		return nil, fmt.Errorf("earnings %s: %w", ticker, err)
	}
	if s == nil {
		return nil, nil
	}
	return value(s.SurprisePct), nil
}

// Tag implements Calculation.
func (EarningsSurprise) Tag() string { return domain.CalculationEarningsSurprise }

// DayChange returns (close - open) / open of the day's bar.
type DayChange struct{}

// Calculate implements Calculation.
func (DayChange) Calculate(ctx context.Context, ticker string, date time.Time, data marketdata.Provider, _ PortfolioView) (*float64, error) {
	bar, err := data.Bar(ctx, ticker, date)
	if err != nil {
		return nil, fmt.Errorf("bar %s: %w", ticker, err)
	}
	if bar == nil || !(bar.Open > 0) {
		return nil, nil
	}
	return value((bar.Close - bar.Open) / bar.Open), nil
}

// Tag implements Calculation.
func (DayChange) Tag() string { return domain.CalculationDayChange }

// PERatio returns the trailing price/earnings ratio.
type PERatio struct{}

// Calculate implements Calculation.
func (PERatio) Calculate(ctx context.Context, ticker string, _ time.Time, data marketdata.Provider, _ PortfolioView) (*float64, error) {
	f, err := data.Fundamentals(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("fundamentals %s: %w", ticker, err)
	}
	if f == nil || f.TrailingPE == nil {
		return nil, nil
	}
	return value(*f.TrailingPE), nil
}

// Tag implements Calculation.
func (PERatio) Tag() string { return domain.CalculationPERatio }

// InstitutionalOwnership returns the summed holder stake (0.65 = 65%).
type InstitutionalOwnership struct{}

// Calculate implements Calculation.
func (InstitutionalOwnership) Calculate(ctx context.Context, ticker string, _ time.Time, data marketdata.Provider, _ PortfolioView) (*float64, error) {
	f, err := data.Fundamentals(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("fundamentals %s: %w", ticker, err)
	}
	if f == nil || len(f.Holders) == 0 {
		return nil, nil
	}

	total := 0.0
	for _, h := range f.Holders {
		total += h.PctHeld
	}
	return value(total), nil
}

// Tag implements Calculation.
func (InstitutionalOwnership) Tag() string { return domain.CalculationInstitutionalOwnership }

// calculations maps type tags to constructors.
var calculations = map[string]func() Calculation{
	domain.CalculationEarningsSurprise:       func() Calculation { return EarningsSurprise{} },
	domain.CalculationDayChange:              func() Calculation { return DayChange{} },
	domain.CalculationPERatio:                func() Calculation { return PERatio{} },
	domain.CalculationInstitutionalOwnership: func() Calculation { return InstitutionalOwnership{} },
}

// CalculationConfig returns the tagged form of c.
func CalculationConfig(c Calculation) domain.CalculationConfig {
	return domain.CalculationConfig{Type: c.Tag()}
}

func value(v float64) *float64 {
	return &v
}

var (
	_ Calculation = EarningsSurprise{}
	_ Calculation = DayChange{}
	_ Calculation = PERatio{}
	_ Calculation = InstitutionalOwnership{}
)
