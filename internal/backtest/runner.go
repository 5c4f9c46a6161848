package backtest

import (
	"context"
	"errors"
	"fmt"

	"equity-backtester/internal/storage"
)

// Stores groups the ledger stores a run is persisted to.
type Stores struct {
	Runs         storage.RunStore
	Transactions storage.TransactionStore
	RoundTrips   storage.RoundTripStore
	Equity       storage.EquityStore
}

// Runner runs a backtest and persists its ledger.
type Runner struct {
	stores Stores
}

// NewRunner creates a runner writing to stores.
func NewRunner(stores Stores) *Runner {
	return &Runner{stores: stores}
}

// Run executes bt and saves the result.
func (r *Runner) Run(ctx context.Context, bt *Backtester) (*Result, error) {
	res, err := bt.Run(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.Save(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// Save persists the transaction log, round trips, equity curve and run summary.
// The run record is written last and marks the run as complete: a run already
// stored under the same ID is left untouched, since equal IDs mean equal inputs.
// Ledger batches left behind by an earlier failed save are treated as written,
// so a retry finishes the run.
func (r *Runner) Save(ctx context.Context, res *Result) error {
	if r.stores.Runs != nil {
		_, err := r.stores.Runs.GetByID(ctx, res.RunID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("check run: %w", err)
		}
	}

	if r.stores.Transactions != nil {
		if err := ignoreDuplicate(r.stores.Transactions.InsertBulk(ctx, res.RunID, res.Transactions)); err != nil {
			return fmt.Errorf("save transactions: %w", err)
		}
	}
	if r.stores.RoundTrips != nil {
		if err := ignoreDuplicate(r.stores.RoundTrips.InsertBulk(ctx, res.RunID, res.RoundTripRecords())); err != nil {
			return fmt.Errorf("save round trips: %w", err)
		}
	}
	if r.stores.Equity != nil {
		if err := ignoreDuplicate(r.stores.Equity.InsertBulk(ctx, res.RunID, res.EquityHistory)); err != nil {
			return fmt.Errorf("save equity: %w", err)
		}
	}

	if r.stores.Runs != nil {
		if err := ignoreDuplicate(r.stores.Runs.Insert(ctx, res.RunRecord())); err != nil {
			return fmt.Errorf("save run: %w", err)
		}
	}
	return nil
}

func ignoreDuplicate(err error) error {
	if errors.Is(err, storage.ErrDuplicateKey) {
		return nil
	}
	return err
}
