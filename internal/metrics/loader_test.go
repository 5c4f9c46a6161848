package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"equity-backtester/internal/domain"
	"equity-backtester/internal/storage/memory"
)

func TestLoader_Load(t *testing.T) {
	ctx := context.Background()
	runs := memory.NewRunStore()
	txns := memory.NewTransactionStore()
	rts := memory.NewRoundTripStore()
	equity := memory.NewEquityStore()

	run := &domain.RunRecord{
		RunID:          "run-1",
		StrategyName:   "demo",
		InitialCapital: decimal.NewFromInt(1000),
		FinalValue:     decimal.NewFromInt(1100),
	}
	if err := runs.Insert(ctx, run); err != nil {
		t.Fatalf("insert run: %v", err)
	}
	if err := rts.InsertBulk(ctx, "run-1", []*domain.RoundTripRecord{closedTrip("rt", 100, 500, 2, 2)}); err != nil {
		t.Fatalf("insert round trips: %v", err)
	}
	if err := equity.InsertBulk(ctx, "run-1", curve(map[int]float64{0: 1000, 1: 1050, 2: 1100})); err != nil {
		t.Fatalf("insert equity: %v", err)
	}

	loader := NewLoader(runs, txns, rts, equity)

	a, err := loader.Load(ctx, "run-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if a.Run.StrategyName != "demo" || len(a.RoundTrips) != 1 || len(a.Equity) != 3 {
		t.Errorf("unexpected analysis %+v", a)
	}
	if !near(a.Performance.TotalReturn, 0.1) || a.Performance.Trades.Wins != 1 {
		t.Errorf("unexpected performance %+v", a.Performance)
	}

	all, err := loader.LoadStrategy(ctx, "demo")
	if err != nil || len(all) != 1 {
		t.Errorf("LoadStrategy: %d analyses, err %v", len(all), err)
	}

	if _, err := loader.Load(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}
