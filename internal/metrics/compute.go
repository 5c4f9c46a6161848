// Package metrics derives performance statistics from a run's equity curve
// and round trips. Inputs are read-only views; nothing here touches the ledger.
package metrics

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"equity-backtester/internal/domain"
)

// Annualization constants
const (
	TradingDaysPerYear = 252
	DaysPerYear        = 365.25
)

var (
	// ErrNoEquity is returned when the equity curve is empty.
	ErrNoEquity = errors.New("no equity history")

	// ErrInvalidCapital is returned when the initial capital is not positive.
	ErrInvalidCapital = errors.New("initial capital must be positive")
)

// Input is everything Compute needs from a finished run.
type Input struct {
	InitialCapital decimal.Decimal
	Equity         []domain.EquityPoint      // ascending by date
	RoundTrips     []*domain.RoundTripRecord // open records are ignored
}

// Performance holds run-level statistics. Ratios are fractions (0.05 = 5%).
type Performance struct {
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	FinalValue  float64   `json:"final_value"`
	TotalReturn float64   `json:"total_return"`
	CAGR        float64   `json:"cagr"`
	Volatility  float64   `json:"volatility"` // annualized
	Sharpe      float64   `json:"sharpe"`     // risk-free rate 0
	Sortino     float64   `json:"sortino"`

	MaxDrawdown     float64 `json:"max_drawdown"`
	MaxDrawdownDays int     `json:"max_drawdown_days"` // calendar days from peak to recovery
	Calmar          float64 `json:"calmar"`

	Trades TradeStats `json:"trades"`
}

// TradeStats summarizes closed round trips.
type TradeStats struct {
	Count                int     `json:"count"`
	Wins                 int     `json:"wins"`
	Losses               int     `json:"losses"`
	WinRate              float64 `json:"win_rate"`
	AvgWin               float64 `json:"avg_win"`  // mean realized P&L of winners
	AvgLoss              float64 `json:"avg_loss"` // mean realized P&L of losers, <= 0
	ProfitFactor         float64 `json:"profit_factor"`
	AvgHoldingDays       float64 `json:"avg_holding_days"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`

	// Per-trade return distribution (realized P&L / total cost)
	ReturnMean   float64 `json:"return_mean"`
	ReturnMedian float64 `json:"return_median"`
	ReturnP10    float64 `json:"return_p10"`
	ReturnP90    float64 `json:"return_p90"`
	ReturnMin    float64 `json:"return_min"`
	ReturnMax    float64 `json:"return_max"`
}

// Compute derives Performance from in. The result is a pure function of the input.
func Compute(in Input) (*Performance, error) {
	if !in.InitialCapital.IsPositive() {
		return nil, ErrInvalidCapital
	}
	if len(in.Equity) == 0 {
		return nil, ErrNoEquity
	}

	initial := in.InitialCapital.InexactFloat64()
	values := make([]float64, len(in.Equity))
	for i, p := range in.Equity {
		values[i] = p.Value.InexactFloat64()
	}
	first, last := in.Equity[0].Date, in.Equity[len(in.Equity)-1].Date
	final := values[len(values)-1]

	perf := &Performance{
		StartDate:   first,
		EndDate:     last,
		FinalValue:  final,
		TotalReturn: final/initial - 1,
		CAGR:        computeCAGR(initial, final, domain.DaysBetween(first, last)),
	}

	returns := dailyReturns(values)
	mean := computeMean(returns)
	std := computeStddev(returns, mean)
	downside := computeDownsideDeviation(returns)
	annual := math.Sqrt(TradingDaysPerYear)

	perf.Volatility = std * annual
	if std > 0 {
		perf.Sharpe = mean / std * annual
	}
	if downside > 0 {
		perf.Sortino = mean / downside * annual
	}

	perf.MaxDrawdown, perf.MaxDrawdownDays = computeMaxDrawdown(in.Equity)
	if perf.MaxDrawdown > 0 {
		perf.Calmar = perf.CAGR / perf.MaxDrawdown
	}

	perf.Trades = computeTradeStats(in.RoundTrips)
	return perf, nil
}

// computeCAGR annualizes growth over calendar days. Zero days yields 0.
func computeCAGR(initial, final float64, days int) float64 {
	if days <= 0 {
		return 0
	}
	if final <= 0 {
		return -1
	}
	years := float64(days) / DaysPerYear
	return math.Pow(final/initial, 1/years) - 1
}

// dailyReturns returns simple returns between consecutive values.
// Steps from a non-positive value are skipped.
func dailyReturns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] <= 0 {
			continue
		}
		out = append(out, values[i]/values[i-1]-1)
	}
	return out
}

// computeMean calculates arithmetic mean.
func computeMean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// computeStddev calculates sample standard deviation (n-1 denominator).
func computeStddev(xs []float64, mean float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, x := range xs {
		diff := x - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// computeDownsideDeviation is the root mean square of negative returns over all n.
func computeDownsideDeviation(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	sumSq := 0.0
	for _, r := range returns {
		if r < 0 {
			sumSq += r * r
		}
	}
	return math.Sqrt(sumSq / float64(len(returns)))
}

// computePercentile uses linear interpolation.
// sorted must be pre-sorted ASC.
func computePercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// computeMaxDrawdown returns the worst peak-to-trough decline as a fraction of
// the peak, and the longest calendar span from a peak to its recovery.
// An unrecovered drawdown runs to the last point.
func computeMaxDrawdown(equity []domain.EquityPoint) (float64, int) {
	if len(equity) == 0 {
		return 0, 0
	}

	peak := equity[0].Value.InexactFloat64()
	peakDate := equity[0].Date
	underwater := false
	maxDrawdown := 0.0
	longest := 0

	for _, p := range equity[1:] {
		v := p.Value.InexactFloat64()
		if v >= peak {
			if underwater {
				longest = max(longest, domain.DaysBetween(peakDate, p.Date))
				underwater = false
			}
			peak, peakDate = v, p.Date
			continue
		}

		underwater = true
		if peak > 0 {
			maxDrawdown = max(maxDrawdown, (peak-v)/peak)
		}
	}
	if underwater {
		longest = max(longest, domain.DaysBetween(peakDate, equity[len(equity)-1].Date))
	}

	return maxDrawdown, longest
}

// computeTradeStats summarizes closed round trips in exit order.
func computeTradeStats(records []*domain.RoundTripRecord) TradeStats {
	var closed []*domain.RoundTripRecord
	for _, r := range records {
		if r != nil && r.Status == domain.RoundTripStatusClosed {
			closed = append(closed, r)
		}
	}

	n := len(closed)
	if n == 0 {
		return TradeStats{}
	}

	// Deterministic order: exit date ASC, round trip ID ASC
	sort.SliceStable(closed, func(i, j int) bool {
		ei, ej := exitDate(closed[i]), exitDate(closed[j])
		if !ei.Equal(ej) {
			return ei.Before(ej)
		}
		return closed[i].RoundTripID < closed[j].RoundTripID
	})

	stats := TradeStats{Count: n}
	returns := make([]float64, 0, n)
	var grossWin, grossLoss decimal.Decimal
	var holding, streak int

	for _, r := range closed {
		pnl := r.RealizedPnL
		holding += r.HoldingDays

		if pnl.IsPositive() {
			stats.Wins++
			grossWin = grossWin.Add(pnl)
			streak = 0
		} else {
			stats.Losses++
			grossLoss = grossLoss.Add(pnl)
			streak++
			if streak > stats.MaxConsecutiveLosses {
				stats.MaxConsecutiveLosses = streak
			}
		}

		if r.TotalCost.IsPositive() {
			returns = append(returns, pnl.Div(r.TotalCost).InexactFloat64())
		}
	}

	stats.WinRate = float64(stats.Wins) / float64(n)
	stats.AvgHoldingDays = float64(holding) / float64(n)
	if stats.Wins > 0 {
		stats.AvgWin = grossWin.Div(decimal.NewFromInt(int64(stats.Wins))).InexactFloat64()
	}
	if stats.Losses > 0 {
		stats.AvgLoss = grossLoss.Div(decimal.NewFromInt(int64(stats.Losses))).InexactFloat64()
	}
	if grossLoss.IsNegative() {
		stats.ProfitFactor = grossWin.Div(grossLoss.Abs()).InexactFloat64()
	}

	if len(returns) > 0 {
		sorted := make([]float64, len(returns))
		copy(sorted, returns)
		sort.Float64s(sorted)

		stats.ReturnMean = computeMean(returns)
		stats.ReturnMedian = computePercentile(sorted, 0.50)
		stats.ReturnP10 = computePercentile(sorted, 0.10)
		stats.ReturnP90 = computePercentile(sorted, 0.90)
		stats.ReturnMin = sorted[0]
		stats.ReturnMax = sorted[len(sorted)-1]
	}

	return stats
}

func exitDate(r *domain.RoundTripRecord) time.Time {
	if r.ExitDate == nil {
		return time.Time{}
	}
	return *r.ExitDate
}
