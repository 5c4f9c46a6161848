package clickhouse

import (
	"context"
	"fmt"
	"time"

	"equity-backtester/internal/domain"
	"equity-backtester/internal/storage"
)

// BarStore implements storage.BarStore using ClickHouse.
// MergeTree does not enforce keys, so duplicates are rejected before insert.
type BarStore struct {
	conn *Conn
}

// NewBarStore creates a new BarStore.
func NewBarStore(conn *Conn) *BarStore {
	return &BarStore{conn: conn}
}

// Compile-time interface check.
var _ storage.BarStore = (*BarStore)(nil)

// InsertBulk adds multiple bars. Fails entire batch on duplicate (ticker, date).
func (s *BarStore) InsertBulk(ctx context.Context, bars []*domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	type key struct {
		ticker string
		day    int64
	}
	type span struct {
		from, to time.Time
	}
	seen := make(map[key]struct{}, len(bars))
	spans := make(map[string]span)
	for _, b := range bars {
		if b == nil || b.Ticker == "" || b.Date.IsZero() {
			return storage.ErrInvalidInput
		}
		day := domain.Day(b.Date)
		k := key{b.Ticker, day.Unix()}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}

		sp, ok := spans[b.Ticker]
		if !ok {
			sp = span{day, day}
		}
		if day.Before(sp.from) {
			sp.from = day
		}
		if day.After(sp.to) {
			sp.to = day
		}
		spans[b.Ticker] = sp
	}

	// One range read per ticker against existing rows
	for ticker, sp := range spans {
		existing, err := s.dates(ctx, ticker, sp.from, sp.to)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		for _, d := range existing {
			if _, dup := seen[key{ticker, d.Unix()}]; dup {
				return storage.ErrDuplicateKey
			}
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO daily_bars (ticker, date, open, high, low, close, volume)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, b := range bars {
		err = batch.Append(b.Ticker, domain.Day(b.Date), b.Open, b.High, b.Low, b.Close, b.Volume)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByTickerRange retrieves bars for a ticker within [start, end] (inclusive), ordered by date ASC.
func (s *BarStore) GetByTickerRange(ctx context.Context, ticker string, start, end time.Time) ([]*domain.Bar, error) {
	query := `
		SELECT ticker, date, open, high, low, close, volume
		FROM daily_bars
		WHERE ticker = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`

	rows, err := s.conn.Query(ctx, query, ticker, domain.Day(start), domain.Day(end))
	if err != nil {
		return nil, fmt.Errorf("query by ticker range: %w", err)
	}
	defer rows.Close()

	return scanBars(rows)
}

// GetTickers returns all tickers with at least one bar, sorted.
func (s *BarStore) GetTickers(ctx context.Context) ([]string, error) {
	rows, err := s.conn.Query(ctx, `SELECT DISTINCT ticker FROM daily_bars ORDER BY ticker ASC`)
	if err != nil {
		return nil, fmt.Errorf("query tickers: %w", err)
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan ticker row: %w", err)
		}
		tickers = append(tickers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ticker rows: %w", err)
	}
	return tickers, nil
}

// dates returns the stored dates of ticker within [from, to].
func (s *BarStore) dates(ctx context.Context, ticker string, from, to time.Time) ([]time.Time, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT date FROM daily_bars
		WHERE ticker = ? AND date >= ? AND date <= ?
	`, ticker, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, domain.Day(d))
	}
	return out, rows.Err()
}

// scanBars scans multiple rows.
func scanBars(rows chRows) ([]*domain.Bar, error) {
	var bars []*domain.Bar

	for rows.Next() {
		var b domain.Bar
		err := rows.Scan(&b.Ticker, &b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume)
		if err != nil {
			return nil, fmt.Errorf("scan bar row: %w", err)
		}
		b.Date = domain.Day(b.Date)
		bars = append(bars, &b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bar rows: %w", err)
	}

	return bars, nil
}
