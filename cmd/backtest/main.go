// Command backtest runs one strategy over a date range and prints its summary.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"equity-backtester/internal/backtest"
	"equity-backtester/internal/config"
	"equity-backtester/internal/domain"
	"equity-backtester/internal/marketdata"
	"equity-backtester/internal/metrics"
	"equity-backtester/internal/observability"
	"equity-backtester/internal/reporting"
	"equity-backtester/internal/storage"
	chstore "equity-backtester/internal/storage/clickhouse"
	pgstore "equity-backtester/internal/storage/postgres"
	"equity-backtester/internal/strategy"
)

// cliOptions holds the command-only flags.
type cliOptions struct {
	outputJSON bool
	persist    bool
	exportDir  string
}

func main() {
	fs := flag.NewFlagSet("backtest", flag.ExitOnError)
	outputJSON := fs.Bool("json", false, "Output the report as JSON")
	persist := fs.Bool("persist", false, "Persist the run and its ledger to PostgreSQL")
	exportDir := fs.String("export-dir", "", "Write transactions, round trips and equity CSV files to this directory")

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

	err = run(cfg, cliOptions{outputJSON: *outputJSON, persist: *persist, exportDir: *exportDir}, logger)
	if err != nil {
		logger.Error("backtest failed", zap.Error(err))
	}
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

// run executes the backtest. Deferred cleanup runs before it returns.
func run(cfg *config.Config, opts cliOptions, logger *zap.Logger) error {
	btCfg, err := cfg.BacktestConfig()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.StrategyFile == "" {
		return errors.New("--strategy-file is required")
	}
	strat, err := strategy.LoadYAML(cfg.StrategyFile)
	if err != nil {
		return fmt.Errorf("load strategy: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := observability.NewMetrics(observability.DefaultNamespace, prometheus.NewRegistry())
	if cfg.MetricsAddr != "" {
		go serveMetrics(logger, cfg.MetricsAddr, m)
	}

	if cfg.Tracing {
		shutdown, err := observability.InitTracing(os.Stderr, true)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("tracing shutdown", zap.Error(err))
			}
		}()
	}

	// PostgreSQL holds earnings, fundamentals and persisted runs.
	var pool *pgstore.Pool
	if cfg.PostgresDSN != "" {
		pool, err = pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()
	}
	if opts.persist && pool == nil {
		return errors.New("--postgres-dsn is required with --persist")
	}

	provider, closeData, err := buildProvider(ctx, cfg, pool, logger)
	if err != nil {
		return fmt.Errorf("market data: %w", err)
	}
	defer closeData()

	bt, err := backtest.NewBacktester(btCfg, strat, provider, backtest.Options{
		Logger:   logger,
		Recorder: m,
	})
	if err != nil {
		return fmt.Errorf("create backtester: %w", err)
	}

	logger.Info("running backtest",
		zap.String("run_id", bt.RunID()),
		zap.String("strategy", strat.Name),
		zap.Strings("universe", strat.Universe),
		zap.String("start", cfg.StartDate),
		zap.String("end", cfg.EndDate),
	)

	var res *backtest.Result
	if opts.persist {
		runner := backtest.NewRunner(backtest.Stores{
			Runs:         pgstore.NewRunStore(pool),
			Transactions: pgstore.NewTransactionStore(pool),
			RoundTrips:   pgstore.NewRoundTripStore(pool),
			Equity:       pgstore.NewEquityStore(pool),
		})
		res, err = runner.Run(ctx, bt)
	} else {
		res, err = bt.Run(ctx)
	}
	if err != nil {
		return err
	}

	analysis, err := metrics.Analyze(res.RunRecord(), res.Transactions, res.RoundTripRecords(), res.EquityHistory)
	if err != nil {
		return fmt.Errorf("compute metrics: %w", err)
	}
	report := reporting.New(analysis, time.Now().UTC())

	if opts.exportDir != "" {
		if err := reporting.WriteCSVDir(opts.exportDir, analysis); err != nil {
			return fmt.Errorf("export csv: %w", err)
		}
		logger.Info("csv exported", zap.String("dir", opts.exportDir))
	}

	if opts.outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		return nil
	}
	if err := reporting.WriteSummary(os.Stdout, report); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

// buildProvider reads bars from CSV files in cfg.DataDir when set, otherwise
// from ClickHouse. Earnings and fundamentals come from the same CSV directory
// or from PostgreSQL when a pool is available.
func buildProvider(ctx context.Context, cfg *config.Config, pool *pgstore.Pool, logger *zap.Logger) (marketdata.Provider, func(), error) {
	opts := marketdata.StoreProviderOptions{Logger: logger}

	if cfg.DataDir != "" {
		bars, earnings, fundamentals, err := loadDataDir(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("csv data loaded",
			zap.Int("bars", len(bars)),
			zap.Int("earnings", len(earnings)),
			zap.Int("fundamentals", len(fundamentals)),
		)
		p, err := marketdata.NewInMemory(ctx, bars, earnings, fundamentals, opts)
		if err != nil {
			return nil, nil, err
		}
		return p, func() {}, nil
	}

	if cfg.ClickhouseDSN == "" {
		return nil, nil, errors.New("--data-dir or --clickhouse-dsn is required")
	}
	conn, err := chstore.NewConn(ctx, cfg.ClickhouseDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
	}

	var (
		earnings     storage.EarningsStore
		fundamentals storage.FundamentalsStore
	)
	if pool != nil {
		earnings = pgstore.NewEarningsStore(pool)
		fundamentals = pgstore.NewFundamentalsStore(pool)
	}

	p := marketdata.NewStoreProvider(chstore.NewBarStore(conn), earnings, fundamentals, opts)
	return p, func() { conn.Close() }, nil
}

// loadDataDir reads bars.csv and, when present, earnings.csv and fundamentals.csv.
func loadDataDir(dir string) ([]*domain.Bar, []*domain.EarningsRecord, []*domain.Fundamentals, error) {
	f, err := os.Open(filepath.Join(dir, "bars.csv"))
	if err != nil {
		return nil, nil, nil, err
	}
	bars, err := marketdata.LoadBarsCSV(f)
	f.Close()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("bars.csv: %w", err)
	}

	var earnings []*domain.EarningsRecord
	if f, err := os.Open(filepath.Join(dir, "earnings.csv")); err == nil {
		earnings, err = marketdata.LoadEarningsCSV(f)
		f.Close()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("earnings.csv: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, nil, nil, err
	}

	var fundamentals []*domain.Fundamentals
	if f, err := os.Open(filepath.Join(dir, "fundamentals.csv")); err == nil {
		fundamentals, err = marketdata.LoadFundamentalsCSV(f)
		f.Close()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("fundamentals.csv: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, nil, nil, err
	}

	return bars, earnings, fundamentals, nil
}

// serveMetrics exposes /metrics and /health until the process exits.
func serveMetrics(logger *zap.Logger, addr string, m *observability.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK")) //nolint:errcheck
	})
	logger.Info("metrics server listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server", zap.Error(err))
	}
}
