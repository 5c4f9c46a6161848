package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RoundTrip status values.
const (
	RoundTripStatusOpen   = "open"
	RoundTripStatusClosed = "closed"
)

// RunRecord summarizes one completed backtest run.
// Corresponds to backtest_runs table.
type RunRecord struct {
	RunID            string // deterministic uuid of config + strategy
	StrategyName     string
	StrategyConfig   StrategyConfig
	StartDate        time.Time
	EndDate          time.Time
	InitialCapital   decimal.Decimal
	FinalCash        decimal.Decimal
	FinalValue       decimal.Decimal
	MaxPositions     int
	Commission       float64
	SlippagePct      float64
	FractionalShares bool
	TradingDays      int
}

// RoundTripRecord is the flattened, storable form of a RoundTrip.
// Corresponds to round_trips table.
type RoundTripRecord struct {
	RoundTripID       string
	Ticker            string
	EntryDate         time.Time
	ExitDate          *time.Time // nil while open
	TotalShares       decimal.Decimal
	RemainingShares   decimal.Decimal
	AverageEntryPrice decimal.Decimal
	TotalCost         decimal.Decimal
	TotalProceeds     decimal.Decimal
	RealizedPnL       decimal.Decimal
	TransactionCount  int
	HoldingDays       int
	ExitRuleType      string
	ExitReason        string
	Status            string // "open" | "closed"
}
