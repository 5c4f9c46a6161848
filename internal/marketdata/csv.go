package marketdata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"

	"equity-backtester/internal/domain"
	"equity-backtester/internal/storage/memory"
)

// CSV errors
var (
	ErrInvalidRow = errors.New("invalid csv row")
)

// barRow is one line of a daily bars CSV file.
type barRow struct {
	Ticker string  `csv:"ticker"`
	Date   string  `csv:"date"`
	Open   float64 `csv:"open"`
	High   float64 `csv:"high"`
	Low    float64 `csv:"low"`
	Close  float64 `csv:"close"`
	Volume float64 `csv:"volume"`
}

// earningsRow is one line of an earnings CSV file.
type earningsRow struct {
	Ticker       string  `csv:"ticker"`
	ReportDate   string  `csv:"report_date"`
	EstimatedEPS float64 `csv:"estimated_eps"`
	ReportedEPS  float64 `csv:"reported_eps"`
}

// fundamentalsRow is one holder line of a fundamentals CSV file.
// trailing_pe may be empty; holder columns may be empty for tickers without holder data.
type fundamentalsRow struct {
	Ticker     string `csv:"ticker"`
	TrailingPE string `csv:"trailing_pe"`
	Holder     string `csv:"holder"`
	PctHeld    string `csv:"pct_held"`
}

// LoadBarsCSV parses bars with header ticker,date,open,high,low,close,volume.
func LoadBarsCSV(r io.Reader) ([]*domain.Bar, error) {
	var rows []*barRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("parse bars csv: %w", err)
	}

	bars := make([]*domain.Bar, 0, len(rows))
	for i, row := range rows {
		ticker := strings.TrimSpace(row.Ticker)
		date, err := domain.ParseDay(strings.TrimSpace(row.Date))
		if ticker == "" || err != nil {
			return nil, fmt.Errorf("%w: line %d", ErrInvalidRow, i+2)
		}
		bars = append(bars, &domain.Bar{
			Ticker: ticker,
			Date:   date,
			Open:   row.Open,
			High:   row.High,
			Low:    row.Low,
			Close:  row.Close,
			Volume: row.Volume,
		})
	}
	return bars, nil
}

// LoadEarningsCSV parses earnings with header ticker,report_date,estimated_eps,reported_eps.
func LoadEarningsCSV(r io.Reader) ([]*domain.EarningsRecord, error) {
	var rows []*earningsRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("parse earnings csv: %w", err)
	}

	records := make([]*domain.EarningsRecord, 0, len(rows))
	for i, row := range rows {
		ticker := strings.TrimSpace(row.Ticker)
		date, err := domain.ParseDay(strings.TrimSpace(row.ReportDate))
		if ticker == "" || err != nil {
			return nil, fmt.Errorf("%w: line %d", ErrInvalidRow, i+2)
		}
		records = append(records, &domain.EarningsRecord{
			Ticker:       ticker,
			ReportDate:   date,
			EstimatedEPS: row.EstimatedEPS,
			ReportedEPS:  row.ReportedEPS,
		})
	}
	return records, nil
}

// LoadFundamentalsCSV parses fundamentals with header ticker,trailing_pe,holder,pct_held.
// Rows of the same ticker are merged; the first non-empty trailing_pe wins.
func LoadFundamentalsCSV(r io.Reader) ([]*domain.Fundamentals, error) {
	var rows []*fundamentalsRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("parse fundamentals csv: %w", err)
	}

	byTicker := make(map[string]*domain.Fundamentals)
	for i, row := range rows {
		ticker := strings.TrimSpace(row.Ticker)
		if ticker == "" {
			return nil, fmt.Errorf("%w: line %d", ErrInvalidRow, i+2)
		}

		f, ok := byTicker[ticker]
		if !ok {
			f = &domain.Fundamentals{Ticker: ticker}
			byTicker[ticker] = f
		}

		if pe := strings.TrimSpace(row.TrailingPE); pe != "" && f.TrailingPE == nil {
			v, err := strconv.ParseFloat(pe, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: trailing_pe: %v", ErrInvalidRow, i+2, err)
			}
			f.TrailingPE = &v
		}

		if name := strings.TrimSpace(row.Holder); name != "" {
			v, err := strconv.ParseFloat(strings.TrimSpace(row.PctHeld), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: pct_held: %v", ErrInvalidRow, i+2, err)
			}
			f.Holders = append(f.Holders, domain.Holder{Name: name, PctHeld: v})
		}
	}

	out := make([]*domain.Fundamentals, 0, len(byTicker))
	for _, f := range byTicker {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Ticker < out[j].Ticker
	})
	return out, nil
}

// NewInMemory builds a StoreProvider backed by fresh in-memory stores.
func NewInMemory(
	ctx context.Context,
	bars []*domain.Bar,
	earnings []*domain.EarningsRecord,
	fundamentals []*domain.Fundamentals,
	opts StoreProviderOptions,
) (*StoreProvider, error) {
	barStore := memory.NewBarStore()
	if err := barStore.InsertBulk(ctx, bars); err != nil {
		return nil, fmt.Errorf("insert bars: %w", err)
	}

	earningsStore := memory.NewEarningsStore()
	if err := earningsStore.InsertBulk(ctx, earnings); err != nil {
		return nil, fmt.Errorf("insert earnings: %w", err)
	}

	fundamentalsStore := memory.NewFundamentalsStore()
	for _, f := range fundamentals {
		if err := fundamentalsStore.Insert(ctx, f); err != nil {
			return nil, fmt.Errorf("insert fundamentals %s: %w", f.Ticker, err)
		}
	}

	return NewStoreProvider(barStore, earningsStore, fundamentalsStore, opts), nil
}
