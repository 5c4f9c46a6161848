package backtest

import (
	"time"

	"github.com/shopspring/decimal"

	"equity-backtester/internal/domain"
	"equity-backtester/internal/portfolio"
)

// Result is the read-only outcome of a run. It carries ledger views only;
// performance statistics are computed by the metrics package.
type Result struct {
	RunID        string
	StrategyName string
	Strategy     domain.StrategyConfig
	Config       Config

	FirstDay    time.Time
	LastDay     time.Time
	TradingDays int

	ClosedRoundTrips []*domain.RoundTrip
	OpenRoundTrips   []*domain.RoundTrip // left open at the end: unpriced or unfundable
	Transactions     []*domain.Transaction
	EquityHistory    []domain.EquityPoint

	FinalCash  decimal.Decimal
	FinalValue decimal.Decimal
}

func newResult(b *Backtester, pf *portfolio.Portfolio, days []time.Time, finalValue decimal.Decimal) *Result {
	return &Result{
		RunID:            b.runID,
		StrategyName:     b.strategy.Name,
		Strategy:         b.strategy.Config(),
		Config:           b.cfg,
		FirstDay:         days[0],
		LastDay:          days[len(days)-1],
		TradingDays:      len(days),
		ClosedRoundTrips: pf.ClosedRoundTrips(),
		OpenRoundTrips:   pf.OpenRoundTrips(),
		Transactions:     pf.Transactions(),
		EquityHistory:    pf.EquityHistory(),
		FinalCash:        pf.Cash(),
		FinalValue:       finalValue,
	}
}

// RunRecord returns the storable run summary.
func (r *Result) RunRecord() *domain.RunRecord {
	return &domain.RunRecord{
		RunID:            r.RunID,
		StrategyName:     r.StrategyName,
		StrategyConfig:   r.Strategy,
		StartDate:        r.Config.StartDate,
		EndDate:          r.Config.EndDate,
		InitialCapital:   decimal.NewFromFloat(r.Config.InitialCapital),
		FinalCash:        r.FinalCash,
		FinalValue:       r.FinalValue,
		MaxPositions:     r.Config.MaxPositions,
		Commission:       r.Config.Commission,
		SlippagePct:      r.Config.SlippagePct,
		FractionalShares: r.Config.FractionalShares,
		TradingDays:      r.TradingDays,
	}
}

// RoundTripRecords flattens closed round trips, then the open remainder.
func (r *Result) RoundTripRecords() []*domain.RoundTripRecord {
	out := make([]*domain.RoundTripRecord, 0, len(r.ClosedRoundTrips)+len(r.OpenRoundTrips))
	for _, rt := range r.ClosedRoundTrips {
		out = append(out, rt.Record(r.LastDay))
	}
	for _, rt := range r.OpenRoundTrips {
		out = append(out, rt.Record(r.LastDay))
	}
	return out
}
