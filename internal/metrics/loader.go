package metrics

import (
	"context"
	"errors"
	"fmt"

	"equity-backtester/internal/domain"
	"equity-backtester/internal/storage"
)

// ErrRunNotFound is returned when the requested run has not been persisted.
var ErrRunNotFound = errors.New("run not found")

// Analysis is a persisted run together with its ledger and statistics.
type Analysis struct {
	Run          *domain.RunRecord
	Transactions []*domain.Transaction
	RoundTrips   []*domain.RoundTripRecord
	Equity       []domain.EquityPoint
	Performance  *Performance
}

// Loader reads a persisted run back from storage and computes its statistics.
type Loader struct {
	runs         storage.RunStore
	transactions storage.TransactionStore
	roundTrips   storage.RoundTripStore
	equity       storage.EquityStore
}

// NewLoader creates a Loader over the ledger stores.
func NewLoader(runs storage.RunStore, txns storage.TransactionStore, roundTrips storage.RoundTripStore, equity storage.EquityStore) *Loader {
	return &Loader{
		runs:         runs,
		transactions: txns,
		roundTrips:   roundTrips,
		equity:       equity,
	}
}

// Load returns the analysis of runID. Returns ErrRunNotFound if the run is unknown.
func (l *Loader) Load(ctx context.Context, runID string) (*Analysis, error) {
	run, err := l.runs.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, fmt.Errorf("load run: %w", err)
	}

	txns, err := l.transactions.GetByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	rts, err := l.roundTrips.GetByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load round trips: %w", err)
	}
	equity, err := l.equity.GetByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load equity: %w", err)
	}

	a, err := Analyze(run, txns, rts, equity)
	if err != nil {
		return nil, fmt.Errorf("compute %s: %w", runID, err)
	}
	return a, nil
}

// Analyze computes the statistics of an in-memory run.
func Analyze(run *domain.RunRecord, txns []*domain.Transaction, rts []*domain.RoundTripRecord, equity []domain.EquityPoint) (*Analysis, error) {
	perf, err := Compute(Input{
		InitialCapital: run.InitialCapital,
		Equity:         equity,
		RoundTrips:     rts,
	})
	if err != nil {
		return nil, err
	}

	return &Analysis{
		Run:          run,
		Transactions: txns,
		RoundTrips:   rts,
		Equity:       equity,
		Performance:  perf,
	}, nil
}

// LoadStrategy returns the analyses of every persisted run of strategyName, ordered by run ID.
func (l *Loader) LoadStrategy(ctx context.Context, strategyName string) ([]*Analysis, error) {
	runs, err := l.runs.GetByStrategy(ctx, strategyName)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	out := make([]*Analysis, 0, len(runs))
	for _, r := range runs {
		a, err := l.Load(ctx, r.RunID)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
