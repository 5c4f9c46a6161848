package marketdata

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"equity-backtester/internal/domain"
	"equity-backtester/internal/storage"
	"equity-backtester/internal/storage/memory"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSurprise(t *testing.T) {
	tests := []struct {
		name    string
		est     float64
		rep     float64
		want    float64
		wantNil bool
	}{
		{name: "beat", est: 2.0, rep: 2.1, want: 0.05},
		{name: "miss", est: 2.0, rep: 1.9, want: -0.05},
		{name: "negative estimate beat", est: -1.0, rep: -0.5, want: 0.5},
		{name: "negative estimate miss", est: -1.0, rep: -1.5, want: -0.5},
		{name: "smaller loss than expected is a beat", est: -0.5, rep: -0.4, want: 0.2},
		{name: "zero estimate", est: 0, rep: 1, wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ok := Surprise(&domain.EarningsRecord{Ticker: "AAPL", EstimatedEPS: tt.est, ReportedEPS: tt.rep})
			if tt.wantNil {
				if ok || s != nil {
					t.Errorf("expected no surprise, got %+v", s)
				}
				return
			}
			if !ok || !approxEqual(s.SurprisePct, tt.want) {
				t.Errorf("expected %v, got %+v", tt.want, s)
			}
		})
	}
}

func TestPointInTimeSurprise(t *testing.T) {
	records := []*domain.EarningsRecord{
		{Ticker: "AAPL", ReportDate: day(2023, 11, 10), EstimatedEPS: 1.0, ReportedEPS: 1.1},
		{Ticker: "AAPL", ReportDate: day(2024, 2, 1), EstimatedEPS: 2.0, ReportedEPS: 2.4},
	}

	tests := []struct {
		name    string
		asOf    time.Time
		want    float64
		wantNil bool
	}{
		{name: "before any report", asOf: day(2023, 11, 1), wantNil: true},
		{name: "on report date excluded", asOf: day(2024, 2, 1), want: 0.1},
		{name: "day after report", asOf: day(2024, 2, 2), want: 0.2},
		{name: "exactly 90 days", asOf: day(2024, 5, 1), want: 0.2},
		{name: "stale after 90 days", asOf: day(2024, 5, 2), wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PointInTimeSurprise(records, tt.asOf)
			if tt.wantNil {
				if got != nil {
					t.Errorf("expected nil, got %+v", got)
				}
				return
			}
			if got == nil {
				t.Fatal("expected surprise, got nil")
			}
			if !approxEqual(got.SurprisePct, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got.SurprisePct)
			}
			if !got.ReportDate.Before(tt.asOf) {
				t.Errorf("look-ahead: report %v not before %v", got.ReportDate, tt.asOf)
			}
		})
	}
}

func TestPriceTable(t *testing.T) {
	table := NewPriceTable()
	table.Set("AAPL", day(2024, 1, 3), 102)
	table.Set("AAPL", day(2024, 1, 2), 101)
	table.Set("MSFT", day(2024, 1, 4).Add(15*time.Hour), 370)

	dates := table.Dates()
	if len(dates) != 3 || table.Len() != 3 {
		t.Fatalf("expected 3 dates, got %d", len(dates))
	}
	for i := 1; i < len(dates); i++ {
		if !dates[i-1].Before(dates[i]) {
			t.Errorf("dates not ascending: %v", dates)
		}
	}

	if p, ok := table.Price("MSFT", day(2024, 1, 4)); !ok || p != 370 {
		t.Errorf("expected MSFT 370, got %v %v", p, ok)
	}
	if _, ok := table.Price("MSFT", day(2024, 1, 2)); ok {
		t.Error("expected missing MSFT close")
	}
	if _, ok := table.Price("GOOGL", day(2024, 1, 2)); ok {
		t.Error("expected missing ticker")
	}
	if last, ok := table.Last(); !ok || !last.Equal(day(2024, 1, 4)) {
		t.Errorf("unexpected last date %v", last)
	}
	if tickers := table.Tickers(); len(tickers) != 2 || tickers[0] != "AAPL" {
		t.Errorf("unexpected tickers %v", tickers)
	}
}

func newTestProvider(t *testing.T) *StoreProvider {
	t.Helper()
	pe := 18.0
	p, err := NewInMemory(context.Background(),
		[]*domain.Bar{
			{Ticker: "AAPL", Date: day(2024, 1, 2), Open: 100, Close: 102},
			{Ticker: "AAPL", Date: day(2024, 1, 3), Open: 102, Close: 101},
			{Ticker: "MSFT", Date: day(2024, 1, 3), Open: 370, Close: 371},
		},
		[]*domain.EarningsRecord{
			{Ticker: "AAPL", ReportDate: day(2023, 12, 15), EstimatedEPS: 2.0, ReportedEPS: 2.4},
		},
		[]*domain.Fundamentals{
			{Ticker: "AAPL", TrailingPE: &pe, Holders: []domain.Holder{{Name: "A", PctHeld: 0.1}}},
		},
		StoreProviderOptions{},
	)
	if err != nil {
		t.Fatalf("NewInMemory failed: %v", err)
	}
	return p
}

func TestStoreProvider_PricesAndBars(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	table, err := p.Prices(ctx, []string{"AAPL", "MSFT", "GOOGL"}, day(2024, 1, 1), day(2024, 1, 31))
	if err != nil {
		t.Fatalf("Prices failed: %v", err)
	}
	if table.Len() != 2 {
		t.Errorf("expected 2 trading days, got %d", table.Len())
	}
	if _, ok := table.Price("MSFT", day(2024, 1, 2)); ok {
		t.Error("MSFT should have no close on Jan 2")
	}

	bar, err := p.Bar(ctx, "AAPL", day(2024, 1, 2))
	if err != nil || bar == nil || bar.Open != 100 {
		t.Fatalf("unexpected bar %+v err=%v", bar, err)
	}
	bar, err = p.Bar(ctx, "MSFT", day(2024, 1, 2))
	if err != nil || bar != nil {
		t.Errorf("expected nil bar, got %+v err=%v", bar, err)
	}
	// Outside the preloaded range falls back to the store.
	bar, err = p.Bar(ctx, "AAPL", day(2023, 6, 1))
	if err != nil || bar != nil {
		t.Errorf("expected nil bar outside range, got %+v err=%v", bar, err)
	}

	ok, err := p.IsTradeable(ctx, "MSFT", day(2024, 1, 3))
	if err != nil || !ok {
		t.Errorf("expected MSFT tradeable, got %v err=%v", ok, err)
	}

	if _, err := p.Prices(ctx, []string{"AAPL"}, day(2024, 2, 1), day(2024, 1, 1)); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("expected ErrInvalidRange, got %v", err)
	}
}

func TestStoreProvider_EarningsAndFundamentals(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	s, err := p.Earnings(ctx, "AAPL", day(2024, 1, 2))
	if err != nil || s == nil || !approxEqual(s.SurprisePct, 0.1) {
		t.Errorf("expected 10%% surprise, got %+v err=%v", s, err)
	}
	s, err = p.Earnings(ctx, "MSFT", day(2024, 1, 2))
	if err != nil || s != nil {
		t.Errorf("expected nil surprise, got %+v err=%v", s, err)
	}

	f, err := p.Fundamentals(ctx, "AAPL")
	if err != nil || f == nil || *f.TrailingPE != 18 {
		t.Errorf("unexpected fundamentals %+v err=%v", f, err)
	}
	f, err = p.Fundamentals(ctx, "MSFT")
	if err != nil || f != nil {
		t.Errorf("expected nil fundamentals, got %+v err=%v", f, err)
	}

	bare := NewStoreProvider(memory.NewBarStore(), nil, nil, StoreProviderOptions{})
	if s, err := bare.Earnings(ctx, "AAPL", day(2024, 1, 2)); s != nil || err != nil {
		t.Errorf("expected nil earnings without store, got %+v %v", s, err)
	}
	if f, err := bare.Fundamentals(ctx, "AAPL"); f != nil || err != nil {
		t.Errorf("expected nil fundamentals without store, got %+v %v", f, err)
	}
}

// flakyBarStore fails the first n reads.
type flakyBarStore struct {
	storage.BarStore
	failures int
	calls    int
}

var errTransient = errors.New("connection reset")

func (s *flakyBarStore) GetByTickerRange(ctx context.Context, ticker string, start, end time.Time) ([]*domain.Bar, error) {
	s.calls++
	if s.calls <= s.failures {
		return nil, errTransient
	}
	return s.BarStore.GetByTickerRange(ctx, ticker, start, end)
}

func TestStoreProvider_RetriesTransientErrors(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewBarStore()
	if err := inner.InsertBulk(ctx, []*domain.Bar{{Ticker: "AAPL", Date: day(2024, 1, 2), Close: 100}}); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	flaky := &flakyBarStore{BarStore: inner, failures: 2}
	p := NewStoreProvider(flaky, nil, nil, StoreProviderOptions{
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
		MaxDelay:   2 * time.Millisecond,
	})

	if err := p.Preload(ctx, []string{"AAPL"}, day(2024, 1, 1), day(2024, 1, 31)); err != nil {
		t.Fatalf("Preload failed: %v", err)
	}
	if flaky.calls != 3 {
		t.Errorf("expected 3 calls, got %d", flaky.calls)
	}

	exhausted := &flakyBarStore{BarStore: inner, failures: 10}
	p = NewStoreProvider(exhausted, nil, nil, StoreProviderOptions{
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
		MaxDelay:   time.Millisecond,
	})
	err := p.Preload(ctx, []string{"AAPL"}, day(2024, 1, 1), day(2024, 1, 31))
	if !errors.Is(err, errTransient) {
		t.Errorf("expected wrapped transient error, got %v", err)
	}
	if exhausted.calls != 3 {
		t.Errorf("expected 3 calls, got %d", exhausted.calls)
	}
}

func TestStoreProvider_RetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	flaky := &flakyBarStore{BarStore: memory.NewBarStore(), failures: 10}
	p := NewStoreProvider(flaky, nil, nil, StoreProviderOptions{
		MaxRetries: 5,
		RetryDelay: time.Hour,
		MaxDelay:   time.Hour,
	})

	cancel()
	err := p.Preload(ctx, []string{"AAPL"}, day(2024, 1, 1), day(2024, 1, 31))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestLoadBarsCSV(t *testing.T) {
	in := `ticker,date,open,high,low,close,volume
AAPL,2024-01-02,187.15,188.44,183.89,185.64,82488700
MSFT,2024-01-02,373.86,375.90,366.77,370.87,25258600
`
	bars, err := LoadBarsCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("LoadBarsCSV failed: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	if bars[0].Ticker != "AAPL" || bars[0].Close != 185.64 || !bars[0].Date.Equal(day(2024, 1, 2)) {
		t.Errorf("unexpected bar %+v", bars[0])
	}

	bad := "ticker,date,open,high,low,close,volume\nAAPL,01/02/2024,1,1,1,1,1\n"
	if _, err := LoadBarsCSV(strings.NewReader(bad)); !errors.Is(err, ErrInvalidRow) {
		t.Errorf("expected ErrInvalidRow, got %v", err)
	}
}

func TestLoadEarningsCSV(t *testing.T) {
	in := `ticker,report_date,estimated_eps,reported_eps
AAPL,2024-02-01,2.10,2.18
`
	recs, err := LoadEarningsCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("LoadEarningsCSV failed: %v", err)
	}
	if len(recs) != 1 || recs[0].EstimatedEPS != 2.10 || recs[0].ReportedEPS != 2.18 {
		t.Errorf("unexpected records %+v", recs)
	}
}

func TestLoadFundamentalsCSV(t *testing.T) {
	in := `ticker,trailing_pe,holder,pct_held
MSFT,,Vanguard,0.09
AAPL,28.5,Vanguard,0.08
AAPL,,Blackrock,0.07
`
	funds, err := LoadFundamentalsCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("LoadFundamentalsCSV failed: %v", err)
	}
	if len(funds) != 2 || funds[0].Ticker != "AAPL" {
		t.Fatalf("unexpected fundamentals %+v", funds)
	}
	if funds[0].TrailingPE == nil || *funds[0].TrailingPE != 28.5 || len(funds[0].Holders) != 2 {
		t.Errorf("unexpected AAPL fundamentals %+v", funds[0])
	}
	if funds[1].TrailingPE != nil {
		t.Errorf("expected nil MSFT P/E, got %v", *funds[1].TrailingPE)
	}
}
