// Package marketdata provides the read-only market data view consumed by
// the simulation: daily closes, single-day bars, point-in-time earnings and
// fundamentals. Missing data is reported as nil, never as an error.
package marketdata

import (
	"context"
	"errors"
	"time"

	"equity-backtester/internal/domain"
)

// EarningsStalenessDays is the maximum age of an earnings report that still
// produces a surprise value.
const EarningsStalenessDays = 90

// Provider errors
var (
	ErrInvalidRange = errors.New("start must not be after end")
)

// Provider is the market data collaborator of the backtester.
// Implementations must never return earnings dated on or after asOf.
type Provider interface {
	// Prices returns a dense date-indexed close table for tickers within [start, end].
	// Missing tickers or days are simply absent.
	Prices(ctx context.Context, tickers []string, start, end time.Time) (*PriceTable, error)

	// Bar returns one day's OHLCV for a ticker, or nil when it did not trade.
	Bar(ctx context.Context, ticker string, date time.Time) (*domain.Bar, error)

	// Earnings returns the most recent earnings surprise strictly before asOf,
	// or nil when none exists or it is older than EarningsStalenessDays.
	Earnings(ctx context.Context, ticker string, asOf time.Time) (*domain.EarningsSurprise, error)

	// Fundamentals returns company fundamentals, or nil when unknown.
	Fundamentals(ctx context.Context, ticker string) (*domain.Fundamentals, error)

	// Preload warms caches for tickers within [start, end].
	Preload(ctx context.Context, tickers []string, start, end time.Time) error

	// IsTradeable reports whether the ticker has a bar on date.
	IsTradeable(ctx context.Context, ticker string, date time.Time) (bool, error)
}

// Surprise computes the earnings surprise of a record.
// Returns false when the estimate is zero. The sign follows the beat direction
// for negative estimates, which deliberately departs from the yfinance-style
// convention of negating the ratio when the estimate is below zero.
func Surprise(r *domain.EarningsRecord) (*domain.EarningsSurprise, bool) {
	if r == nil || r.EstimatedEPS == 0 {
		return nil, false
	}

	est := r.EstimatedEPS
	if est < 0 {
		est = -est
	}

	return &domain.EarningsSurprise{
		Ticker:       r.Ticker,
		ReportDate:   r.ReportDate,
		EstimatedEPS: r.EstimatedEPS,
		ReportedEPS:  r.ReportedEPS,
		SurprisePct:  (r.ReportedEPS - r.EstimatedEPS) / est,
	}, true
}

// PointInTimeSurprise selects the latest record reported strictly before asOf
// and returns its surprise. Records must be ordered by report date ascending.
// Returns nil when no record qualifies or the latest one is stale.
func PointInTimeSurprise(records []*domain.EarningsRecord, asOf time.Time) *domain.EarningsSurprise {
	day := domain.Day(asOf)

	var latest *domain.EarningsRecord
	for _, r := range records {
		if !domain.Day(r.ReportDate).Before(day) {
			break
		}
		latest = r
	}
	if latest == nil {
		return nil
	}
	if domain.DaysBetween(latest.ReportDate, day) > EarningsStalenessDays {
		return nil
	}

	s, ok := Surprise(latest)
	if !ok {
		return nil
	}
	return s
}
