package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"equity-backtester/internal/domain"
	"equity-backtester/internal/storage"
)

// nextSeq returns the next sequence number for a run in table.
// Rows are read back in seq order, which preserves simulation order across batches.
func nextSeq(ctx context.Context, tx pgx.Tx, table, runID string) (int, error) {
	var seq int
	err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM `+table+` WHERE run_id = $1`, runID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("read %s seq: %w", table, err)
	}
	return seq + 1, nil
}

// TransactionStore implements storage.TransactionStore using PostgreSQL.
type TransactionStore struct {
	pool *Pool
}

// NewTransactionStore creates a new TransactionStore.
func NewTransactionStore(pool *Pool) *TransactionStore {
	return &TransactionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TransactionStore = (*TransactionStore)(nil)

// InsertBulk adds the transaction log of a run atomically. Fails entire batch on any duplicate ID.
func (s *TransactionStore) InsertBulk(ctx context.Context, runID string, txns []*domain.Transaction) error {
	if runID == "" {
		return storage.ErrInvalidInput
	}
	if len(txns) == 0 {
		return nil
	}
	for _, t := range txns {
		if t == nil || t.ID == "" || !t.Type.Valid() {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	seq, err := nextSeq(ctx, tx, "ledger_transactions", runID)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO ledger_transactions (
			run_id, seq, transaction_id, roundtrip_id, ticker, date, transaction_type,
			shares, price, net_amount, cost_basis, reason
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8::text::numeric, $9::text::numeric, $10::text::numeric, $11::text::numeric, $12
		)
	`

	for i, t := range txns {
		_, err := tx.Exec(ctx, query,
			runID, seq+i, t.ID, t.RoundTripID, t.Ticker, domain.Day(t.Date), string(t.Type),
			numericText(t.Shares), numericText(t.Price), numericText(t.NetAmount), numericText(t.CostBasis), t.Reason,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert transaction in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByRunID retrieves the transaction log of a run in simulation order.
func (s *TransactionStore) GetByRunID(ctx context.Context, runID string) ([]*domain.Transaction, error) {
	query := `
		SELECT
			transaction_id, roundtrip_id, ticker, date, transaction_type,
			shares::text, price::text, net_amount::text, cost_basis::text, reason
		FROM ledger_transactions
		WHERE run_id = $1
		ORDER BY seq ASC
	`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get transactions by run id: %w", err)
	}
	defer rows.Close()

	var txns []*domain.Transaction
	for rows.Next() {
		var (
			t                             domain.Transaction
			typ                           string
			shares, price, net, costBasis string
		)
		err := rows.Scan(
			&t.ID, &t.RoundTripID, &t.Ticker, &t.Date, &typ,
			&shares, &price, &net, &costBasis, &t.Reason,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		t.Type = domain.TransactionType(typ)
		t.Date = domain.Day(t.Date)
		if t.Shares, err = parseNumeric("shares", shares); err != nil {
			return nil, err
		}
		if t.Price, err = parseNumeric("price", price); err != nil {
			return nil, err
		}
		if t.NetAmount, err = parseNumeric("net_amount", net); err != nil {
			return nil, err
		}
		if t.CostBasis, err = parseNumeric("cost_basis", costBasis); err != nil {
			return nil, err
		}
		txns = append(txns, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction rows: %w", err)
	}

	return txns, nil
}

// RoundTripStore implements storage.RoundTripStore using PostgreSQL.
type RoundTripStore struct {
	pool *Pool
}

// NewRoundTripStore creates a new RoundTripStore.
func NewRoundTripStore(pool *Pool) *RoundTripStore {
	return &RoundTripStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RoundTripStore = (*RoundTripStore)(nil)

// InsertBulk adds round trip records of a run atomically. Fails entire batch on any duplicate ID.
func (s *RoundTripStore) InsertBulk(ctx context.Context, runID string, records []*domain.RoundTripRecord) error {
	if runID == "" {
		return storage.ErrInvalidInput
	}
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if r == nil || r.RoundTripID == "" {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	seq, err := nextSeq(ctx, tx, "round_trips", runID)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO round_trips (
			run_id, seq, roundtrip_id, ticker, entry_date, exit_date,
			total_shares, remaining_shares, average_entry_price,
			total_cost, total_proceeds, realized_pnl,
			transaction_count, holding_days, exit_rule_type, exit_reason, status
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7::text::numeric, $8::text::numeric, $9::text::numeric,
			$10::text::numeric, $11::text::numeric, $12::text::numeric,
			$13, $14, $15, $16, $17
		)
	`

	for i, r := range records {
		var exitDate *time.Time
		if r.ExitDate != nil {
			d := domain.Day(*r.ExitDate)
			exitDate = &d
		}
		_, err := tx.Exec(ctx, query,
			runID, seq+i, r.RoundTripID, r.Ticker, domain.Day(r.EntryDate), exitDate,
			numericText(r.TotalShares), numericText(r.RemainingShares), numericText(r.AverageEntryPrice),
			numericText(r.TotalCost), numericText(r.TotalProceeds), numericText(r.RealizedPnL),
			r.TransactionCount, r.HoldingDays, r.ExitRuleType, r.ExitReason, r.Status,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert round trip in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByRunID retrieves round trip records of a run in insertion order.
func (s *RoundTripStore) GetByRunID(ctx context.Context, runID string) ([]*domain.RoundTripRecord, error) {
	query := `
		SELECT
			roundtrip_id, ticker, entry_date, exit_date,
			total_shares::text, remaining_shares::text, average_entry_price::text,
			total_cost::text, total_proceeds::text, realized_pnl::text,
			transaction_count, holding_days, exit_rule_type, exit_reason, status
		FROM round_trips
		WHERE run_id = $1
		ORDER BY seq ASC
	`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get round trips by run id: %w", err)
	}
	defer rows.Close()

	var records []*domain.RoundTripRecord
	for rows.Next() {
		r, err := scanRoundTrip(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate round trip rows: %w", err)
	}

	return records, nil
}

func scanRoundTrip(rows pgx.Rows) (*domain.RoundTripRecord, error) {
	var (
		r                             domain.RoundTripRecord
		total, remaining, avg         string
		totalCost, proceeds, realized string
	)
	err := rows.Scan(
		&r.RoundTripID, &r.Ticker, &r.EntryDate, &r.ExitDate,
		&total, &remaining, &avg,
		&totalCost, &proceeds, &realized,
		&r.TransactionCount, &r.HoldingDays, &r.ExitRuleType, &r.ExitReason, &r.Status,
	)
	if err != nil {
		return nil, fmt.Errorf("scan round trip row: %w", err)
	}

	r.EntryDate = domain.Day(r.EntryDate)
	if r.ExitDate != nil {
		d := domain.Day(*r.ExitDate)
		r.ExitDate = &d
	}

	fields := []struct {
		column string
		text   string
		dst    *decimal.Decimal
	}{
		{"total_shares", total, &r.TotalShares},
		{"remaining_shares", remaining, &r.RemainingShares},
		{"average_entry_price", avg, &r.AverageEntryPrice},
		{"total_cost", totalCost, &r.TotalCost},
		{"total_proceeds", proceeds, &r.TotalProceeds},
		{"realized_pnl", realized, &r.RealizedPnL},
	}
	for _, f := range fields {
		if *f.dst, err = parseNumeric(f.column, f.text); err != nil {
			return nil, err
		}
	}

	return &r, nil
}

// EquityStore implements storage.EquityStore using PostgreSQL.
type EquityStore struct {
	pool *Pool
}

// NewEquityStore creates a new EquityStore.
func NewEquityStore(pool *Pool) *EquityStore {
	return &EquityStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EquityStore = (*EquityStore)(nil)

// InsertBulk adds the equity curve of a run. Fails entire batch on duplicate (run_id, date).
func (s *EquityStore) InsertBulk(ctx context.Context, runID string, points []domain.EquityPoint) error {
	if runID == "" {
		return storage.ErrInvalidInput
	}
	if len(points) == 0 {
		return nil
	}
	for _, p := range points {
		if p.Date.IsZero() {
			return storage.ErrInvalidInput
		}
	}

	rows := make([][]any, len(points))
	for i, p := range points {
		rows[i] = []any{runID, domain.Day(p.Date), numericText(p.Value)}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Stage as text, then cast into the numeric table in one statement.
	_, err = tx.Exec(ctx, `
		CREATE TEMP TABLE equity_stage (run_id TEXT, date DATE, value TEXT) ON COMMIT DROP
	`)
	if err != nil {
		return fmt.Errorf("create equity stage: %w", err)
	}
	_, err = tx.CopyFrom(ctx, pgx.Identifier{"equity_stage"}, []string{"run_id", "date", "value"}, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy equity points: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO equity_history (run_id, date, value)
		SELECT run_id, date, value::numeric FROM equity_stage
	`)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert equity points: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByRunID retrieves the equity curve of a run, ordered by date ASC.
func (s *EquityStore) GetByRunID(ctx context.Context, runID string) ([]domain.EquityPoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT date, value::text
		FROM equity_history
		WHERE run_id = $1
		ORDER BY date ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("get equity by run id: %w", err)
	}
	defer rows.Close()

	var points []domain.EquityPoint
	for rows.Next() {
		var (
			p     domain.EquityPoint
			value string
		)
		if err := rows.Scan(&p.Date, &value); err != nil {
			return nil, fmt.Errorf("scan equity row: %w", err)
		}
		p.Date = domain.Day(p.Date)
		if p.Value, err = parseNumeric("value", value); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate equity rows: %w", err)
	}

	return points, nil
}
