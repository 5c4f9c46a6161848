// Command ingest loads daily bars, earnings and fundamentals from CSV files
// into ClickHouse and PostgreSQL after applying the schema migrations.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"equity-backtester/internal/config"
	"equity-backtester/internal/domain"
	"equity-backtester/internal/marketdata"
	"equity-backtester/internal/observability"
	"equity-backtester/internal/storage"
	chstore "equity-backtester/internal/storage/clickhouse"
	"equity-backtester/internal/storage/migrations"
	pgstore "equity-backtester/internal/storage/postgres"
)

// ingestOptions holds the command-only flags.
type ingestOptions struct {
	barsFile         string
	earningsFile     string
	fundamentalsFile string
	batchSize        int
	migrateOnly      bool
}

func main() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	barsFile := fs.String("bars", "", "Daily bars CSV (ticker,date,open,high,low,close,volume)")
	earningsFile := fs.String("earnings", "", "Earnings CSV (ticker,report_date,estimated_eps,reported_eps)")
	fundamentalsFile := fs.String("fundamentals", "", "Fundamentals CSV (ticker,trailing_pe,holder,pct_held)")
	batchSize := fs.Int("batch-size", 5000, "Bars per ClickHouse insert")
	migrateOnly := fs.Bool("migrate-only", false, "Apply migrations and exit")

	cfg, err := config.Load(fs, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}

	err = run(cfg, ingestOptions{
		barsFile:         *barsFile,
		earningsFile:     *earningsFile,
		fundamentalsFile: *fundamentalsFile,
		batchSize:        *batchSize,
		migrateOnly:      *migrateOnly,
	}, logger)
	if err != nil {
		logger.Error("ingest failed", zap.Error(err))
	}
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config, opts ingestOptions, logger *zap.Logger) error {
	if opts.batchSize <= 0 {
		return errors.New("--batch-size must be positive")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := observability.NewMetrics(observability.DefaultNamespace, prometheus.NewRegistry())
	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", m.Handler())
			logger.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server", zap.Error(err))
			}
		}()
	}

	var (
		pool *pgstore.Pool
		conn *chstore.Conn
		err  error
	)
	if cfg.PostgresDSN != "" {
		pool, err = pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()

		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			return fmt.Errorf("postgres migrations: %w", err)
		}
		logger.Info("postgres migrations applied", zap.Strings("files", applied))
	}
	if cfg.ClickhouseDSN != "" {
		conn, err = migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			return fmt.Errorf("clickhouse migrations: %w", err)
		}
		defer conn.Close()
		logger.Info("clickhouse migrations applied")
	}
	if opts.migrateOnly {
		return nil
	}

	in := ingester{logger: logger, metrics: m}

	if opts.barsFile != "" {
		if conn == nil {
			return errors.New("--clickhouse-dsn is required for --bars")
		}
		if err := in.bars(ctx, chstore.NewBarStore(conn), opts.barsFile, opts.batchSize); err != nil {
			return fmt.Errorf("ingest bars: %w", err)
		}
	}
	if opts.earningsFile != "" {
		if pool == nil {
			return errors.New("--postgres-dsn is required for --earnings")
		}
		if err := in.earnings(ctx, pgstore.NewEarningsStore(pool), opts.earningsFile); err != nil {
			return fmt.Errorf("ingest earnings: %w", err)
		}
	}
	if opts.fundamentalsFile != "" {
		if pool == nil {
			return errors.New("--postgres-dsn is required for --fundamentals")
		}
		if err := in.fundamentals(ctx, pgstore.NewFundamentalsStore(pool), opts.fundamentalsFile); err != nil {
			return fmt.Errorf("ingest fundamentals: %w", err)
		}
	}
	return nil
}

// ingester writes parsed CSV records to the stores.
// Batches that already exist are skipped so reruns are safe.
type ingester struct {
	logger  *zap.Logger
	metrics *observability.Metrics
}

func (in ingester) bars(ctx context.Context, store storage.BarStore, path string, batchSize int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	bars, err := marketdata.LoadBarsCSV(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	inserted, skipped := 0, 0
	for start := 0; start < len(bars); start += batchSize {
		end := min(start+batchSize, len(bars))
		batch := bars[start:end]

		err := in.timed("clickhouse", "insert_bars", func() error {
			return store.InsertBulk(ctx, batch)
		})
		switch {
		case errors.Is(err, storage.ErrDuplicateKey):
			skipped += len(batch)
			in.logger.Warn("bar batch already stored",
				zap.String("from", batch[0].Ticker+" "+batch[0].Date.Format(domain.DateLayout)),
				zap.Int("size", len(batch)),
			)
		case err != nil:
			return err
		default:
			inserted += len(batch)
		}
	}

	in.logger.Info("bars ingested", zap.Int("inserted", inserted), zap.Int("skipped", skipped))
	return nil
}

func (in ingester) earnings(ctx context.Context, store storage.EarningsStore, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	records, err := marketdata.LoadEarningsCSV(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	err = in.timed("postgres", "insert_earnings", func() error {
		return store.InsertBulk(ctx, records)
	})
	if errors.Is(err, storage.ErrDuplicateKey) {
		in.logger.Warn("earnings already stored", zap.Int("records", len(records)))
		return nil
	}
	if err != nil {
		return err
	}

	in.logger.Info("earnings ingested", zap.Int("records", len(records)))
	return nil
}

func (in ingester) fundamentals(ctx context.Context, store storage.FundamentalsStore, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	records, err := marketdata.LoadFundamentalsCSV(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	inserted := 0
	for _, rec := range records {
		err := in.timed("postgres", "insert_fundamentals", func() error {
			return store.Insert(ctx, rec)
		})
		if errors.Is(err, storage.ErrDuplicateKey) {
			in.logger.Debug("fundamentals already stored", zap.String("ticker", rec.Ticker))
			continue
		}
		if err != nil {
			return fmt.Errorf("%s: %w", rec.Ticker, err)
		}
		inserted++
	}

	in.logger.Info("fundamentals ingested", zap.Int("inserted", inserted), zap.Int("total", len(records)))
	return nil
}

// timed runs fn and records its duration. Duplicate batches are not counted as errors.
func (in ingester) timed(database, operation string, fn func() error) error {
	started := time.Now()
	err := fn()
	recorded := err
	if errors.Is(err, storage.ErrDuplicateKey) {
		recorded = nil
	}
	in.metrics.RecordDBQuery(database, operation, time.Since(started).Seconds(), recorded)
	return err
}
