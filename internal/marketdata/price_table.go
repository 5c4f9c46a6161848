package marketdata

import (
	"sort"
	"time"

	"equity-backtester/internal/domain"
)

// PriceTable is a dense date-indexed table of daily closes.
// Dates are UTC days; a date exists when any ticker has a close on it.
type PriceTable struct {
	dates  []time.Time
	closes map[string]map[int64]float64 // ticker -> unix day -> close
	seen   map[int64]struct{}
	sorted bool
}

// NewPriceTable creates an empty table.
func NewPriceTable() *PriceTable {
	return &PriceTable{
		closes: make(map[string]map[int64]float64),
		seen:   make(map[int64]struct{}),
		sorted: true,
	}
}

// Set records a close for ticker on date.
func (t *PriceTable) Set(ticker string, date time.Time, price float64) {
	day := domain.Day(date)
	key := day.Unix()

	col, ok := t.closes[ticker]
	if !ok {
		col = make(map[int64]float64)
		t.closes[ticker] = col
	}
	col[key] = price

	if _, ok := t.seen[key]; !ok {
		t.seen[key] = struct{}{}
		t.dates = append(t.dates, day)
		t.sorted = false
	}
}

// Dates returns all dates in ascending order.
func (t *PriceTable) Dates() []time.Time {
	t.sort()
	out := make([]time.Time, len(t.dates))
	copy(out, t.dates)
	return out
}

// Len returns the number of dates.
func (t *PriceTable) Len() int {
	return len(t.dates)
}

// Price returns the close of ticker on date.
func (t *PriceTable) Price(ticker string, date time.Time) (float64, bool) {
	col, ok := t.closes[ticker]
	if !ok {
		return 0, false
	}
	p, ok := col[domain.Day(date).Unix()]
	return p, ok
}

// Tickers returns tickers with at least one close, sorted.
func (t *PriceTable) Tickers() []string {
	out := make([]string, 0, len(t.closes))
	for ticker := range t.closes {
		out = append(out, ticker)
	}
	sort.Strings(out)
	return out
}

// Last returns the final date of the table.
func (t *PriceTable) Last() (time.Time, bool) {
	if len(t.dates) == 0 {
		return time.Time{}, false
	}
	t.sort()
	return t.dates[len(t.dates)-1], true
}

func (t *PriceTable) sort() {
	if t.sorted {
		return
	}
	sort.Slice(t.dates, func(i, j int) bool {
		return t.dates[i].Before(t.dates[j])
	})
	t.sorted = true
}
