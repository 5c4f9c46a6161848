package postgres

import (
	"context"
	"fmt"

	"equity-backtester/internal/domain"
	"equity-backtester/internal/storage"
)

// FundamentalsStore implements storage.FundamentalsStore using PostgreSQL.
// Holders live in institutional_holders and keep their insertion order.
type FundamentalsStore struct {
	pool *Pool
}

// NewFundamentalsStore creates a new FundamentalsStore.
func NewFundamentalsStore(pool *Pool) *FundamentalsStore {
	return &FundamentalsStore{pool: pool}
}

// Compile-time interface check.
var _ storage.FundamentalsStore = (*FundamentalsStore)(nil)

// Insert adds fundamentals with holders. Returns ErrDuplicateKey if ticker exists.
func (s *FundamentalsStore) Insert(ctx context.Context, f *domain.Fundamentals) error {
	if f == nil || f.Ticker == "" {
		return storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `INSERT INTO fundamentals (ticker, trailing_pe) VALUES ($1, $2)`, f.Ticker, f.TrailingPE)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert fundamentals: %w", err)
	}

	for i, h := range f.Holders {
		_, err := tx.Exec(ctx, `
			INSERT INTO institutional_holders (ticker, position, holder, pct_held)
			VALUES ($1, $2, $3, $4)
		`, f.Ticker, i, h.Name, h.PctHeld)
		if err != nil {
			return fmt.Errorf("insert holder %s: %w", h.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByTicker retrieves fundamentals. Returns ErrNotFound if not exists.
func (s *FundamentalsStore) GetByTicker(ctx context.Context, ticker string) (*domain.Fundamentals, error) {
	f := domain.Fundamentals{Ticker: ticker}
	err := s.pool.QueryRow(ctx, `SELECT trailing_pe FROM fundamentals WHERE ticker = $1`, ticker).Scan(&f.TrailingPE)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get fundamentals: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT holder, pct_held
		FROM institutional_holders
		WHERE ticker = $1
		ORDER BY position ASC
	`, ticker)
	if err != nil {
		return nil, fmt.Errorf("get holders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var h domain.Holder
		if err := rows.Scan(&h.Name, &h.PctHeld); err != nil {
			return nil, fmt.Errorf("scan holder row: %w", err)
		}
		f.Holders = append(f.Holders, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate holder rows: %w", err)
	}

	return &f, nil
}
