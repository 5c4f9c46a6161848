package storage

import (
	"context"
	"time"

	"equity-backtester/internal/domain"
)

// BarStore provides access to daily_bars storage.
type BarStore interface {
	// InsertBulk adds multiple bars. Fails entire batch on duplicate (ticker, date).
	InsertBulk(ctx context.Context, bars []*domain.Bar) error

	// GetByTickerRange retrieves bars for a ticker within [start, end] (inclusive), ordered by date ASC.
	GetByTickerRange(ctx context.Context, ticker string, start, end time.Time) ([]*domain.Bar, error)

	// GetTickers returns all tickers with at least one bar, sorted.
	GetTickers(ctx context.Context) ([]string, error)
}

// EarningsStore provides access to earnings storage.
type EarningsStore interface {
	// InsertBulk adds multiple records atomically. Fails entire batch on duplicate (ticker, report_date).
	InsertBulk(ctx context.Context, records []*domain.EarningsRecord) error

	// GetByTicker retrieves all records for a ticker, ordered by report_date ASC.
	GetByTicker(ctx context.Context, ticker string) ([]*domain.EarningsRecord, error)
}

// FundamentalsStore provides access to fundamentals and institutional_holders storage.
type FundamentalsStore interface {
	// Insert adds fundamentals with holders. Returns ErrDuplicateKey if ticker exists.
	Insert(ctx context.Context, f *domain.Fundamentals) error

	// GetByTicker retrieves fundamentals. Returns ErrNotFound if not exists.
	GetByTicker(ctx context.Context, ticker string) (*domain.Fundamentals, error)
}

// RunStore provides access to backtest_runs storage.
type RunStore interface {
	// Insert adds a run. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, r *domain.RunRecord) error

	// GetByID retrieves a run. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, runID string) (*domain.RunRecord, error)

	// GetByStrategy retrieves all runs of a strategy, ordered by run_id ASC.
	GetByStrategy(ctx context.Context, strategyName string) ([]*domain.RunRecord, error)
}

// TransactionStore provides access to ledger_transactions storage.
type TransactionStore interface {
	// InsertBulk adds the transaction log of a run atomically, preserving order.
	InsertBulk(ctx context.Context, runID string, txns []*domain.Transaction) error

	// GetByRunID retrieves the transaction log of a run in simulation order.
	GetByRunID(ctx context.Context, runID string) ([]*domain.Transaction, error)
}

// RoundTripStore provides access to round_trips storage.
type RoundTripStore interface {
	// InsertBulk adds round trip records of a run atomically, preserving order.
	InsertBulk(ctx context.Context, runID string, records []*domain.RoundTripRecord) error

	// GetByRunID retrieves round trip records of a run in insertion order.
	GetByRunID(ctx context.Context, runID string) ([]*domain.RoundTripRecord, error)
}

// EquityStore provides access to equity_history storage.
type EquityStore interface {
	// InsertBulk adds the equity curve of a run. Fails entire batch on duplicate (run_id, date).
	InsertBulk(ctx context.Context, runID string, points []domain.EquityPoint) error

	// GetByRunID retrieves the equity curve of a run, ordered by date ASC.
	GetByRunID(ctx context.Context, runID string) ([]domain.EquityPoint, error)
}
