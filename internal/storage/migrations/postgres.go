package migrations

import (
	"context"
	"fmt"

	"equity-backtester/internal/storage/postgres"
)

// RunPostgresMigrations applies embedded SQL files that are not yet recorded
// in schema_migrations, each in its own transaction. Returns the applied names.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) ([]string, error) {
	files, err := Files(DialectPostgres)
	if err != nil {
		return nil, err
	}

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	var applied []string
	for _, f := range files {
		var done bool
		err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, f.Name).Scan(&done)
		if err != nil {
			return applied, fmt.Errorf("check migration %s: %w", f.Name, err)
		}
		if done {
			continue
		}

		if err := applyPostgres(ctx, pool, f); err != nil {
			return applied, err
		}
		applied = append(applied, f.Name)
	}

	return applied, nil
}

func applyPostgres(ctx context.Context, pool *postgres.Pool, f File) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", f.Name, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, f.SQL); err != nil {
		return fmt.Errorf("apply migration %s: %w", f.Name, err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, f.Name); err != nil {
		return fmt.Errorf("record migration %s: %w", f.Name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration %s: %w", f.Name, err)
	}
	return nil
}
