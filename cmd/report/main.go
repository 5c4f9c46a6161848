// Command report renders a persisted backtest run as markdown, a console
// summary, JSON or CSV exports.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"equity-backtester/internal/config"
	"equity-backtester/internal/metrics"
	"equity-backtester/internal/observability"
	"equity-backtester/internal/reporting"
	pgstore "equity-backtester/internal/storage/postgres"
)

// Output formats
const (
	formatMarkdown = "markdown"
	formatSummary  = "summary"
	formatJSON     = "json"
	formatCSV      = "csv"
)

// reportOptions holds the command-only flags.
type reportOptions struct {
	runID        string
	strategyName string
	format       string
	output       string
}

func main() {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	runID := fs.String("run-id", "", "Run to report on")
	strategyName := fs.String("strategy", "", "Report every persisted run of this strategy")
	format := fs.String("format", formatMarkdown, "Output format: markdown, summary, json or csv")
	output := fs.String("output", "", "Output file (directory for csv); stdout when empty")

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

	err = run(cfg, reportOptions{runID: *runID, strategyName: *strategyName, format: *format, output: *output}, logger)
	if err != nil {
		logger.Error("report failed", zap.Error(err))
	}
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config, opts reportOptions, logger *zap.Logger) error {
	if (opts.runID == "") == (opts.strategyName == "") {
		return errors.New("exactly one of --run-id and --strategy is required")
	}
	if opts.format == formatCSV && opts.output == "" {
		return errors.New("--output directory is required for csv")
	}
	if cfg.PostgresDSN == "" {
		return errors.New("--postgres-dsn is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	loader := metrics.NewLoader(
		pgstore.NewRunStore(pool),
		pgstore.NewTransactionStore(pool),
		pgstore.NewRoundTripStore(pool),
		pgstore.NewEquityStore(pool),
	)

	var analyses []*metrics.Analysis
	if opts.runID != "" {
		a, err := loader.Load(ctx, opts.runID)
		if err != nil {
			return fmt.Errorf("load run %s: %w", opts.runID, err)
		}
		analyses = append(analyses, a)
	} else {
		analyses, err = loader.LoadStrategy(ctx, opts.strategyName)
		if err != nil {
			return fmt.Errorf("load strategy runs: %w", err)
		}
		if len(analyses) == 0 {
			return fmt.Errorf("no persisted runs for strategy %q", opts.strategyName)
		}
	}

	if opts.format == formatCSV {
		for _, a := range analyses {
			dir := opts.output
			if len(analyses) > 1 {
				dir = filepath.Join(dir, a.Run.RunID)
			}
			if err := reporting.WriteCSVDir(dir, a); err != nil {
				return fmt.Errorf("write csv: %w", err)
			}
			logger.Info("csv written", zap.String("run_id", a.Run.RunID), zap.String("dir", dir))
		}
		return nil
	}

	var w io.Writer = os.Stdout
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}

	now := time.Now().UTC()
	for i, a := range analyses {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if err := render(w, opts.format, reporting.New(a, now)); err != nil {
			return fmt.Errorf("render report: %w", err)
		}
	}
	return nil
}

func render(w io.Writer, format string, r *reporting.Report) error {
	switch format {
	case formatMarkdown:
		_, err := io.WriteString(w, reporting.RenderMarkdown(r))
		return err
	case formatSummary:
		return reporting.WriteSummary(w, r)
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
