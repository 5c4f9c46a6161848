package postgres

import (
	"context"
	"fmt"

	"equity-backtester/internal/domain"
	"equity-backtester/internal/storage"
)

// EarningsStore implements storage.EarningsStore using PostgreSQL.
type EarningsStore struct {
	pool *Pool
}

// NewEarningsStore creates a new EarningsStore.
func NewEarningsStore(pool *Pool) *EarningsStore {
	return &EarningsStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EarningsStore = (*EarningsStore)(nil)

// InsertBulk adds multiple records atomically. Fails entire batch on any duplicate.
func (s *EarningsStore) InsertBulk(ctx context.Context, records []*domain.EarningsRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if r == nil || r.Ticker == "" || r.ReportDate.IsZero() {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO earnings (ticker, report_date, estimated_eps, reported_eps)
		VALUES ($1, $2, $3, $4)
	`

	for _, r := range records {
		_, err := tx.Exec(ctx, query, r.Ticker, domain.Day(r.ReportDate), r.EstimatedEPS, r.ReportedEPS)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert earnings in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByTicker retrieves all records for a ticker, ordered by report_date ASC.
func (s *EarningsStore) GetByTicker(ctx context.Context, ticker string) ([]*domain.EarningsRecord, error) {
	query := `
		SELECT ticker, report_date, estimated_eps, reported_eps
		FROM earnings
		WHERE ticker = $1
		ORDER BY report_date ASC
	`

	rows, err := s.pool.Query(ctx, query, ticker)
	if err != nil {
		return nil, fmt.Errorf("get earnings by ticker: %w", err)
	}
	defer rows.Close()

	var records []*domain.EarningsRecord
	for rows.Next() {
		var r domain.EarningsRecord
		if err := rows.Scan(&r.Ticker, &r.ReportDate, &r.EstimatedEPS, &r.ReportedEPS); err != nil {
			return nil, fmt.Errorf("scan earnings row: %w", err)
		}
		r.ReportDate = domain.Day(r.ReportDate)
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate earnings rows: %w", err)
	}

	return records, nil
}
