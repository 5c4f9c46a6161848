package backtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"equity-backtester/internal/cost"
	"equity-backtester/internal/domain"
	"equity-backtester/internal/idhash"
	"equity-backtester/internal/marketdata"
	"equity-backtester/internal/portfolio"
	"equity-backtester/internal/strategy"
)

// Run status labels
const (
	StatusSuccess   = "success"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Recorder receives run metrics. observability.Metrics implements it.
type Recorder interface {
	ObserveRun(status string, d time.Duration)
	ObserveTradingDays(n int)
	ObserveTransaction(txType string)
	SetOpenPositions(n int)
	SetFinalEquity(v float64)
}

type nopRecorder struct{}

func (nopRecorder) ObserveRun(string, time.Duration) {}
func (nopRecorder) ObserveTradingDays(int) {}
func (nopRecorder) ObserveTransaction(string) {}
func (nopRecorder) SetOpenPositions(int) {}
func (nopRecorder) SetFinalEquity(float64) {}

// Options holds optional collaborators of a Backtester.
type Options struct {
	Logger   *zap.Logger  // defaults to zap.NewNop()
	Recorder Recorder     // defaults to a no-op
	Tracer   trace.Tracer // defaults to the global provider's tracer
}

// Backtester replays one strategy over one date range.
// Each Run starts from a fresh portfolio, so runs are independent and repeatable.
type Backtester struct {
	cfg      Config
	strategy *strategy.Strategy
	data     marketdata.Provider
	cost     cost.TransactionCost
	runID    string

	logger   *zap.Logger
	recorder Recorder
	tracer   trace.Tracer
}

// NewBacktester validates the configuration and strategy.
func NewBacktester(cfg Config, strat *strategy.Strategy, data marketdata.Provider, opts Options) (*Backtester, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if strat == nil {
		return nil, ErrNilStrategy
	}
	if data == nil {
		return nil, ErrNilProvider
	}
	if err := strat.Validate(); err != nil {
		return nil, err
	}

	tc, err := cost.New(cfg.Commission, cfg.SlippagePct)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	cfg = cfg.normalized()
	runID, err := computeRunID(cfg, strat.Config())
	if err != nil {
		return nil, err
	}

	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("equity-backtester/backtest")
	}

	return &Backtester{
		cfg:      cfg,
		strategy: strat,
		data:     data,
		cost:     tc,
		runID:    runID,
		logger:   opts.Logger.With(zap.String("run_id", runID), zap.String("strategy", strat.Name)),
		recorder: opts.Recorder,
		tracer:   opts.Tracer,
	}, nil
}

// RunID returns the deterministic identifier of this configuration and strategy.
func (b *Backtester) RunID() string {
	return b.runID
}

// Config returns the validated configuration.
func (b *Backtester) Config() Config {
	return b.cfg
}

// Run simulates every trading day in the configured range.
// A cancelled context stops the run between days and returns ctx.Err().
func (b *Backtester) Run(ctx context.Context) (*Result, error) {
	ctx, span := b.tracer.Start(ctx, "backtest.Run", trace.WithAttributes(
		attribute.String("run_id", b.runID),
		attribute.String("strategy", b.strategy.Name),
		attribute.String("start", b.cfg.StartDate.Format(domain.DateLayout)),
		attribute.String("end", b.cfg.EndDate.Format(domain.DateLayout)),
		attribute.Int("universe", len(b.strategy.Universe)),
	))
	defer span.End()

	started := time.Now()
	res, err := b.run(ctx)

	status := StatusSuccess
	switch {
	case err != nil && ctx.Err() != nil:
		status = StatusCancelled
	case err != nil:
		status = StatusFailed
	}
	b.recorder.ObserveRun(status, time.Since(started))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		b.logger.Error("backtest failed", zap.String("status", status), zap.Error(err))
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("trading_days", res.TradingDays),
		attribute.Int("transactions", len(res.Transactions)),
	)
	span.SetStatus(codes.Ok, "completed")
	return res, nil
}

func (b *Backtester) run(ctx context.Context) (*Result, error) {
	pf, err := portfolio.New(portfolio.Config{
		StartingCapital:  b.cfg.InitialCapital,
		MaxPositions:     b.cfg.MaxPositions,
		Cost:             b.cost,
		FractionalShares: b.cfg.FractionalShares,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	universe := b.strategy.Universe
	if err := b.data.Preload(ctx, universe, b.cfg.StartDate, b.cfg.EndDate); err != nil {
		return nil, fmt.Errorf("preload: %w", err)
	}
	table, err := b.data.Prices(ctx, universe, b.cfg.StartDate, b.cfg.EndDate)
	if err != nil {
		return nil, fmt.Errorf("prices: %w", err)
	}

	days := table.Dates()
	if len(days) == 0 {
		return nil, fmt.Errorf("%w: %d tickers between %s and %s", ErrNoPriceData, len(universe),
			b.cfg.StartDate.Format(domain.DateLayout), b.cfg.EndDate.Format(domain.DateLayout))
	}
	b.logger.Info("price data loaded",
		zap.Int("tickers", len(table.Tickers())),
		zap.Int("trading_days", len(days)),
	)
	b.recorder.ObserveTradingDays(len(days))

	sim := &simulation{
		Backtester: b,
		pf:         pf,
		table:      table,
		state:      domain.NewExitState(),
	}
	for _, day := range days {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := sim.step(ctx, day); err != nil {
			return nil, err
		}
	}

	last := days[len(days)-1]
	finalPrices := sim.prices(last)
	if err := sim.closeAll(last, finalPrices); err != nil {
		return nil, err
	}

	for _, txn := range pf.Transactions() {
		b.recorder.ObserveTransaction(string(txn.Type))
	}
	finalValue := pf.TotalValue(finalPrices)
	b.recorder.SetOpenPositions(pf.OpenCount())
	b.recorder.SetFinalEquity(finalValue.InexactFloat64())

	b.logger.Info("backtest finished",
		zap.Int("round_trips", len(pf.ClosedRoundTrips())),
		zap.Int("transactions", len(pf.Transactions())),
		zap.Int("open_remaining", pf.OpenCount()),
		zap.String("final_value", finalValue.StringFixed(2)),
	)

	return newResult(b, pf, days, finalValue), nil
}

// simulation holds the mutable state of one Run.
type simulation struct {
	*Backtester
	pf    *portfolio.Portfolio
	table *marketdata.PriceTable
	state *domain.ExitState
}

// pendingExit is an exit decision collected before any exit executes.
type pendingExit struct {
	id       string
	ticker   string
	price    float64
	decision domain.ExitDecision
}

// step processes one trading day: exits, then signals, then entries, then equity.
func (s *simulation) step(ctx context.Context, day time.Time) error {
	prices := s.prices(day)

	if err := s.processExits(day, prices); err != nil {
		return err
	}

	signals, err := s.strategy.GenerateSignals(ctx, day, s.data, s.pf)
	if err != nil {
		return err
	}
	if err := s.processEntries(day, prices, signals); err != nil {
		return err
	}

	s.pf.RecordEquity(day, s.pf.TotalValue(prices))
	return nil
}

// prices returns valid closes on day for the universe and every held ticker.
func (s *simulation) prices(day time.Time) map[string]float64 {
	out := make(map[string]float64, len(s.strategy.Universe))
	add := func(ticker string) {
		if _, ok := out[ticker]; ok {
			return
		}
		p, ok := s.table.Price(ticker, day)
		if !ok || !(p > 0) || math.IsInf(p, 0) {
			return
		}
		out[ticker] = p
	}
	for _, t := range s.strategy.Universe {
		add(t)
	}
	for _, rt := range s.pf.OpenRoundTrips() {
		add(rt.Ticker)
	}
	return out
}

// processExits evaluates every priced open position, then executes the
// collected decisions in the order positions were opened.
func (s *simulation) processExits(day time.Time, prices map[string]float64) error {
	var pending []pendingExit
	for _, rt := range s.pf.OpenRoundTrips() {
		price, ok := prices[rt.Ticker]
		if !ok {
			s.logger.Warn("no price for open position, marked at zero",
				zap.String("ticker", rt.Ticker),
				zap.String("round_trip_id", rt.ID),
				zap.String("date", day.Format(domain.DateLayout)),
			)
			continue
		}

		rule := rt.ExitRule
		if rule == nil {
			rule = s.strategy.ExitRule
		}
		d := rule.ShouldExit(rt, day, price, s.state)
		if d.Fire {
			pending = append(pending, pendingExit{id: rt.ID, ticker: rt.Ticker, price: price, decision: d})
		}
	}

	for _, p := range pending {
		if err := s.executeExit(day, p); err != nil {
			return err
		}
	}
	return nil
}

func (s *simulation) executeExit(day time.Time, p pendingExit) error {
	rt, ok := s.pf.OpenRoundTrip(p.id)
	if !ok {
		return nil
	}

	if p.decision.Portion >= fullExitPortion {
		pnl, err := s.pf.ClosePosition(p.id, day, p.price, p.decision.Reason)
		if errors.Is(err, portfolio.ErrInsufficientCash) {
			s.exitRefused(p.ticker, p.id, err)
			return nil
		}
		if err != nil {
			return fmt.Errorf("close %s: %w", p.ticker, err)
		}
		s.state.Forget(p.id)
		s.logger.Debug("closed position",
			zap.String("ticker", p.ticker),
			zap.String("reason", p.decision.Reason),
			zap.String("pnl", pnl.StringFixed(2)),
		)
		return nil
	}

	remaining := rt.RemainingShares()
	shares := s.pf.RoundShares(remaining.Mul(decimal.NewFromFloat(p.decision.Portion)))
	if !shares.IsPositive() {
		s.logger.Debug("partial exit rounds to zero shares",
			zap.String("ticker", p.ticker),
			zap.Float64("portion", p.decision.Portion),
		)
		return nil
	}
	if shares.GreaterThan(remaining) {
		shares = remaining
	}

	pnl, err := s.pf.ReducePosition(p.id, day, p.price, shares, p.decision.Reason)
	if errors.Is(err, portfolio.ErrInsufficientCash) {
		s.exitRefused(p.ticker, p.id, err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reduce %s: %w", p.ticker, err)
	}
	if _, open := s.pf.OpenRoundTrip(p.id); !open {
		s.state.Forget(p.id)
	}
	s.logger.Debug("reduced position",
		zap.String("ticker", p.ticker),
		zap.String("shares", shares.String()),
		zap.String("reason", p.decision.Reason),
		zap.String("pnl", pnl.StringFixed(2)),
	)
	return nil
}

// exitRefused logs a sale the ledger could not fund. The position stays open.
func (s *simulation) exitRefused(ticker, id string, err error) {
	s.logger.Warn("exit refused",
		zap.String("ticker", ticker),
		zap.String("round_trip_id", id),
		zap.Error(err),
	)
}

// processEntries opens positions in signal order until capacity is reached.
// Sizing uses the cash left after earlier entries of the same day.
func (s *simulation) processEntries(day time.Time, prices map[string]float64, signals []*domain.Signal) error {
	for _, sig := range signals {
		price, ok := prices[sig.Ticker]
		if !ok {
			continue
		}
		if !s.pf.CanOpenPosition() {
			break
		}

		value := s.pf.TotalValue(prices).InexactFloat64()
		cash := s.pf.Cash().InexactFloat64()
		shares, err := s.strategy.Sizer.CalculateShares(price, cash, value, s.pf, sig.Ticker)
		if err != nil {
			return fmt.Errorf("size %s: %w", sig.Ticker, err)
		}
		if !(shares > 0) {
			continue
		}

		exit := sig.ExitRuleOverride()
		if exit == nil {
			exit = s.strategy.ExitRule
		}

		rt, err := s.pf.OpenPosition(sig.Ticker, day, price, decimal.NewFromFloat(shares), exit, sig.Metadata)
		if err != nil {
			return fmt.Errorf("open %s: %w", sig.Ticker, err)
		}
		if rt == nil {
			s.logger.Debug("entry refused",
				zap.String("ticker", sig.Ticker),
				zap.Float64("shares", shares),
				zap.Float64("price", price),
			)
			continue
		}
		s.logger.Debug("opened position",
			zap.String("ticker", sig.Ticker),
			zap.String("signal_type", sig.SignalType),
			zap.String("shares", rt.RemainingShares().String()),
			zap.Float64("price", price),
		)
	}
	return nil
}

// closeAll closes every priced open position after the last day.
// Unpriced positions stay open and are valued at zero.
func (s *simulation) closeAll(day time.Time, prices map[string]float64) error {
	for _, rt := range s.pf.OpenRoundTrips() {
		price, ok := prices[rt.Ticker]
		if !ok {
			s.logger.Warn("no final price, position left open at zero value",
				zap.String("ticker", rt.Ticker),
				zap.String("round_trip_id", rt.ID),
			)
			continue
		}
		_, err := s.pf.ClosePosition(rt.ID, day, price, ReasonBacktestEnd)
		if errors.Is(err, portfolio.ErrInsufficientCash) {
			s.exitRefused(rt.Ticker, rt.ID, err)
			continue
		}
		if err != nil {
			return fmt.Errorf("final close %s: %w", rt.Ticker, err)
		}
		s.state.Forget(rt.ID)
	}
	return nil
}

// computeRunID hashes the canonical JSON of the config and strategy.
func computeRunID(cfg Config, strat domain.StrategyConfig) (string, error) {
	canonical, err := json.Marshal(struct {
		Config   Config                `json:"config"`
		Strategy domain.StrategyConfig `json:"strategy"`
	}{cfg, strat})
	if err != nil {
		return "", fmt.Errorf("encode run config: %w", err)
	}
	return idhash.ComputeRunID(canonical), nil
}
