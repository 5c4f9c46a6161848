package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"equity-backtester/internal/domain"
	"equity-backtester/internal/storage"
)

// RunStore implements storage.RunStore using PostgreSQL.
// The strategy config is stored as JSONB.
type RunStore struct {
	pool *Pool
}

// NewRunStore creates a new RunStore.
func NewRunStore(pool *Pool) *RunStore {
	return &RunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RunStore = (*RunStore)(nil)

const runColumns = `
	run_id, strategy_name, strategy_config, start_date, end_date,
	initial_capital::text, final_cash::text, final_value::text,
	max_positions, commission, slippage_pct, fractional_shares, trading_days
`

// Insert adds a run. Returns ErrDuplicateKey if run_id exists.
func (s *RunStore) Insert(ctx context.Context, r *domain.RunRecord) error {
	if r == nil || r.RunID == "" {
		return storage.ErrInvalidInput
	}

	cfg, err := json.Marshal(r.StrategyConfig)
	if err != nil {
		return fmt.Errorf("marshal strategy config: %w", err)
	}

	query := `
		INSERT INTO backtest_runs (
			run_id, strategy_name, strategy_config, start_date, end_date,
			initial_capital, final_cash, final_value,
			max_positions, commission, slippage_pct, fractional_shares, trading_days
		) VALUES (
			$1, $2, $3, $4, $5,
			$6::text::numeric, $7::text::numeric, $8::text::numeric,
			$9, $10, $11, $12, $13
		)
	`

	_, err = s.pool.Exec(ctx, query,
		r.RunID, r.StrategyName, cfg, domain.Day(r.StartDate), domain.Day(r.EndDate),
		numericText(r.InitialCapital), numericText(r.FinalCash), numericText(r.FinalValue),
		r.MaxPositions, r.Commission, r.SlippagePct, r.FractionalShares, r.TradingDays,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetByID retrieves a run. Returns ErrNotFound if not exists.
func (s *RunStore) GetByID(ctx context.Context, runID string) (*domain.RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM backtest_runs WHERE run_id = $1`

	r, err := scanRun(s.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get run by id: %w", err)
	}
	return r, nil
}

// GetByStrategy retrieves all runs of a strategy, ordered by run_id ASC.
func (s *RunStore) GetByStrategy(ctx context.Context, strategyName string) ([]*domain.RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM backtest_runs WHERE strategy_name = $1 ORDER BY run_id ASC`

	rows, err := s.pool.Query(ctx, query, strategyName)
	if err != nil {
		return nil, fmt.Errorf("get runs by strategy: %w", err)
	}
	defer rows.Close()

	var runs []*domain.RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return runs, nil
}

// scanRun scans a single row into a RunRecord.
func scanRun(row pgx.Row) (*domain.RunRecord, error) {
	var (
		r                       domain.RunRecord
		cfg                     []byte
		capital, cash, finalVal string
	)

	err := row.Scan(
		&r.RunID, &r.StrategyName, &cfg, &r.StartDate, &r.EndDate,
		&capital, &cash, &finalVal,
		&r.MaxPositions, &r.Commission, &r.SlippagePct, &r.FractionalShares, &r.TradingDays,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(cfg, &r.StrategyConfig); err != nil {
		return nil, fmt.Errorf("unmarshal strategy config: %w", err)
	}
	if r.InitialCapital, err = parseNumeric("initial_capital", capital); err != nil {
		return nil, err
	}
	if r.FinalCash, err = parseNumeric("final_cash", cash); err != nil {
		return nil, err
	}
	if r.FinalValue, err = parseNumeric("final_value", finalVal); err != nil {
		return nil, err
	}
	r.StartDate = domain.Day(r.StartDate)
	r.EndDate = domain.Day(r.EndDate)

	return &r, nil
}
