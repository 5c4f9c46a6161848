package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"equity-backtester/internal/domain"
	"equity-backtester/internal/storage"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestBarStore_InsertAndRange(t *testing.T) {
	store := NewBarStore()
	ctx := context.Background()

	bars := []*domain.Bar{
		{Ticker: "AAPL", Date: day(2024, 1, 3), Open: 101, Close: 102},
		{Ticker: "AAPL", Date: day(2024, 1, 2), Open: 100, Close: 101},
		{Ticker: "AAPL", Date: day(2024, 1, 4), Open: 102, Close: 103},
		{Ticker: "MSFT", Date: day(2024, 1, 2), Open: 370, Close: 371},
	}
	if err := store.InsertBulk(ctx, bars); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetByTickerRange(ctx, "AAPL", day(2024, 1, 2), day(2024, 1, 3))
	if err != nil {
		t.Fatalf("GetByTickerRange failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(got))
	}
	if !got[0].Date.Equal(day(2024, 1, 2)) || !got[1].Date.Equal(day(2024, 1, 3)) {
		t.Errorf("bars not ordered by date: %v, %v", got[0].Date, got[1].Date)
	}

	// Mutating the result must not affect the store.
	got[0].Close = -1
	again, _ := store.GetByTickerRange(ctx, "AAPL", day(2024, 1, 2), day(2024, 1, 2))
	if again[0].Close != 101 {
		t.Errorf("store returned shared pointer: close=%v", again[0].Close)
	}

	tickers, err := store.GetTickers(ctx)
	if err != nil {
		t.Fatalf("GetTickers failed: %v", err)
	}
	if len(tickers) != 2 || tickers[0] != "AAPL" || tickers[1] != "MSFT" {
		t.Errorf("unexpected tickers %v", tickers)
	}
}

func TestBarStore_DuplicateKey(t *testing.T) {
	store := NewBarStore()
	ctx := context.Background()

	bar := &domain.Bar{Ticker: "AAPL", Date: day(2024, 1, 2), Close: 100}
	if err := store.InsertBulk(ctx, []*domain.Bar{bar}); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	err := store.InsertBulk(ctx, []*domain.Bar{
		{Ticker: "AAPL", Date: day(2024, 1, 3), Close: 100},
		bar,
	})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}

	// Batch must be atomic.
	got, _ := store.GetByTickerRange(ctx, "AAPL", day(2024, 1, 1), day(2024, 1, 31))
	if len(got) != 1 {
		t.Errorf("expected 1 bar after failed batch, got %d", len(got))
	}

	intra := []*domain.Bar{
		{Ticker: "MSFT", Date: day(2024, 1, 2)},
		{Ticker: "MSFT", Date: day(2024, 1, 2)},
	}
	if err := store.InsertBulk(ctx, intra); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey for intra-batch duplicate, got %v", err)
	}
}

func TestBarStore_InvalidInput(t *testing.T) {
	store := NewBarStore()
	ctx := context.Background()

	if err := store.InsertBulk(ctx, []*domain.Bar{nil}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if err := store.InsertBulk(ctx, []*domain.Bar{{Date: day(2024, 1, 2)}}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty ticker, got %v", err)
	}
}

func TestBarStore_ConcurrentAccess(t *testing.T) {
	store := NewBarStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = store.InsertBulk(ctx, []*domain.Bar{{Ticker: "AAPL", Date: day(2024, 1, 1).AddDate(0, 0, i), Close: 1}})
			_, _ = store.GetByTickerRange(ctx, "AAPL", day(2024, 1, 1), day(2024, 12, 31))
		}(i)
	}
	wg.Wait()

	got, _ := store.GetByTickerRange(ctx, "AAPL", day(2024, 1, 1), day(2024, 12, 31))
	if len(got) != 20 {
		t.Errorf("expected 20 bars, got %d", len(got))
	}
}

func TestEarningsStore(t *testing.T) {
	store := NewEarningsStore()
	ctx := context.Background()

	recs := []*domain.EarningsRecord{
		{Ticker: "AAPL", ReportDate: day(2024, 5, 2), EstimatedEPS: 1.5, ReportedEPS: 1.53},
		{Ticker: "AAPL", ReportDate: day(2024, 2, 1), EstimatedEPS: 2.1, ReportedEPS: 2.18},
	}
	if err := store.InsertBulk(ctx, recs); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}
	if err := store.InsertBulk(ctx, recs[:1]); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}

	got, err := store.GetByTicker(ctx, "AAPL")
	if err != nil {
		t.Fatalf("GetByTicker failed: %v", err)
	}
	if len(got) != 2 || !got[0].ReportDate.Equal(day(2024, 2, 1)) {
		t.Errorf("expected 2 records ordered by report date, got %v", got)
	}

	none, _ := store.GetByTicker(ctx, "MSFT")
	if len(none) != 0 {
		t.Errorf("expected no records, got %d", len(none))
	}
}

func TestFundamentalsStore(t *testing.T) {
	store := NewFundamentalsStore()
	ctx := context.Background()

	pe := 28.5
	f := &domain.Fundamentals{
		Ticker:     "AAPL",
		TrailingPE: &pe,
		Holders:    []domain.Holder{{Name: "Vanguard", PctHeld: 0.08}},
	}
	if err := store.Insert(ctx, f); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Insert(ctx, f); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}

	got, err := store.GetByTicker(ctx, "AAPL")
	if err != nil {
		t.Fatalf("GetByTicker failed: %v", err)
	}
	if got.TrailingPE == nil || *got.TrailingPE != 28.5 || len(got.Holders) != 1 {
		t.Errorf("unexpected fundamentals %+v", got)
	}

	*got.TrailingPE = 1
	got.Holders[0].PctHeld = 1
	again, _ := store.GetByTicker(ctx, "AAPL")
	if *again.TrailingPE != 28.5 || again.Holders[0].PctHeld != 0.08 {
		t.Error("store returned shared references")
	}

	if _, err := store.GetByTicker(ctx, "MSFT"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
