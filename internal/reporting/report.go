// Package reporting renders backtest results as markdown, console text and CSV.
package reporting

import (
	"time"

	"equity-backtester/internal/domain"
	"equity-backtester/internal/metrics"
)

// Report is the renderable view of one analysed run.
type Report struct {
	GeneratedAt time.Time

	Run         RunSummary
	Performance metrics.Performance

	// Closed round trips in exit order, then open ones
	RoundTrips []RoundTripRow

	// Exit reasons by count, sorted by reason
	ExitReasons []ExitReasonRow
}

// RunSummary describes the run inputs and outcome.
type RunSummary struct {
	RunID            string
	StrategyName     string
	Universe         []string
	StartDate        time.Time
	EndDate          time.Time
	TradingDays      int
	InitialCapital   float64
	FinalCash        float64
	FinalValue       float64
	MaxPositions     int
	Commission       float64
	SlippagePct      float64
	FractionalShares bool
	Transactions     int
	OpenPositions    int
}

// RoundTripRow is one line of the round trip table.
type RoundTripRow struct {
	RoundTripID   string
	Ticker        string
	EntryDate     time.Time
	ExitDate      *time.Time
	Shares        float64
	AvgEntryPrice float64
	RealizedPnL   float64
	Return        float64 // realized P&L / total cost
	HoldingDays   int
	ExitReason    string
	Status        string
}

// ExitReasonRow counts closed round trips per exit reason.
type ExitReasonRow struct {
	Reason string
	Count  int
}

// New builds a Report from an analysis.
func New(a *metrics.Analysis, generatedAt time.Time) *Report {
	run := a.Run
	r := &Report{
		GeneratedAt: generatedAt,
		Run: RunSummary{
			RunID:            run.RunID,
			StrategyName:     run.StrategyName,
			Universe:         run.StrategyConfig.Universe,
			StartDate:        run.StartDate,
			EndDate:          run.EndDate,
			TradingDays:      run.TradingDays,
			InitialCapital:   run.InitialCapital.InexactFloat64(),
			FinalCash:        run.FinalCash.InexactFloat64(),
			FinalValue:       run.FinalValue.InexactFloat64(),
			MaxPositions:     run.MaxPositions,
			Commission:       run.Commission,
			SlippagePct:      run.SlippagePct,
			FractionalShares: run.FractionalShares,
			Transactions:     len(a.Transactions),
		},
		Performance: *a.Performance,
	}

	reasons := make(map[string]int)
	for _, rt := range a.RoundTrips {
		row := RoundTripRow{
			RoundTripID:   rt.RoundTripID,
			Ticker:        rt.Ticker,
			EntryDate:     rt.EntryDate,
			ExitDate:      rt.ExitDate,
			Shares:        rt.TotalShares.InexactFloat64(),
			AvgEntryPrice: rt.AverageEntryPrice.InexactFloat64(),
			RealizedPnL:   rt.RealizedPnL.InexactFloat64(),
			HoldingDays:   rt.HoldingDays,
			ExitReason:    rt.ExitReason,
			Status:        rt.Status,
		}
		if rt.TotalCost.IsPositive() {
			row.Return = rt.RealizedPnL.Div(rt.TotalCost).InexactFloat64()
		}
		r.RoundTrips = append(r.RoundTrips, row)

		if rt.Status == domain.RoundTripStatusOpen {
			r.Run.OpenPositions++
			continue
		}
		reasons[rt.ExitReason]++
	}

	for reason, n := range reasons {
		r.ExitReasons = append(r.ExitReasons, ExitReasonRow{Reason: reason, Count: n})
	}
	sortExitReasons(r.ExitReasons)

	return r
}
