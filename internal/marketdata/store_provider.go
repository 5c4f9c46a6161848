package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"equity-backtester/internal/domain"
	"equity-backtester/internal/storage"
)

// Retry defaults
const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 100 * time.Millisecond
	DefaultMaxDelay   = 2 * time.Second
)

// StoreProviderOptions configures StoreProvider.
type StoreProviderOptions struct {
	Logger     *zap.Logger
	MaxRetries int           // attempts after the first failure
	RetryDelay time.Duration // first backoff delay
	MaxDelay   time.Duration // backoff cap
}

// StoreProvider implements Provider over storage interfaces.
// Bars are cached per ticker after Preload or Prices; earnings are cached per ticker
// on first use. Safe for concurrent use.
type StoreProvider struct {
	bars         storage.BarStore
	earnings     storage.EarningsStore     // optional
	fundamentals storage.FundamentalsStore // optional

	logger     *zap.Logger
	maxRetries int
	retryDelay time.Duration
	maxDelay   time.Duration

	mu            sync.RWMutex
	barCache      map[string]map[int64]*domain.Bar
	loaded        map[string]dayRange
	earningsCache map[string][]*domain.EarningsRecord
}

// dayRange is an inclusive range of preloaded days.
type dayRange struct {
	start, end time.Time
}

func (r dayRange) contains(day time.Time) bool {
	return !day.Before(r.start) && !day.After(r.end)
}

// NewStoreProvider creates a provider. earnings and fundamentals may be nil.
func NewStoreProvider(
	bars storage.BarStore,
	earnings storage.EarningsStore,
	fundamentals storage.FundamentalsStore,
	opts StoreProviderOptions,
) *StoreProvider {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	} else if opts.MaxRetries == 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = DefaultMaxDelay
	}

	return &StoreProvider{
		bars:          bars,
		earnings:      earnings,
		fundamentals:  fundamentals,
		logger:        opts.Logger,
		maxRetries:    opts.MaxRetries,
		retryDelay:    opts.RetryDelay,
		maxDelay:      opts.MaxDelay,
		barCache:      make(map[string]map[int64]*domain.Bar),
		loaded:        make(map[string]dayRange),
		earningsCache: make(map[string][]*domain.EarningsRecord),
	}
}

// Preload fetches bars for tickers within [start, end] into the cache.
func (p *StoreProvider) Preload(ctx context.Context, tickers []string, start, end time.Time) error {
	_, err := p.Prices(ctx, tickers, start, end)
	return err
}

// Prices returns the close table for tickers within [start, end] and caches the bars.
func (p *StoreProvider) Prices(ctx context.Context, tickers []string, start, end time.Time) (*PriceTable, error) {
	from, to := domain.Day(start), domain.Day(end)
	if from.After(to) {
		return nil, fmt.Errorf("%w: %s > %s", ErrInvalidRange, from.Format(domain.DateLayout), to.Format(domain.DateLayout))
	}

	table := NewPriceTable()
	for _, ticker := range tickers {
		bars, err := p.loadBars(ctx, ticker, from, to)
		if err != nil {
			return nil, err
		}
		for _, b := range bars {
			table.Set(ticker, b.Date, b.Close)
		}
	}

	return table, nil
}

// Bar returns the cached bar when the ticker's range covers date, else reads the store.
func (p *StoreProvider) Bar(ctx context.Context, ticker string, date time.Time) (*domain.Bar, error) {
	day := domain.Day(date)

	p.mu.RLock()
	rng, ok := p.loaded[ticker]
	if ok && rng.contains(day) {
		b := p.barCache[ticker][day.Unix()]
		p.mu.RUnlock()
		if b == nil {
			return nil, nil
		}
		barCopy := *b
		return &barCopy, nil
	}
	p.mu.RUnlock()

	var bars []*domain.Bar
	err := p.retry(ctx, "get bar "+ticker, func() error {
		var err error
		bars, err = p.bars.GetByTickerRange(ctx, ticker, day, day)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, nil
	}
	return bars[0], nil
}

// IsTradeable reports whether the ticker has a bar on date.
func (p *StoreProvider) IsTradeable(ctx context.Context, ticker string, date time.Time) (bool, error) {
	b, err := p.Bar(ctx, ticker, date)
	if err != nil {
		return false, err
	}
	return b != nil, nil
}

// Earnings returns the point-in-time surprise for ticker as of asOf.
func (p *StoreProvider) Earnings(ctx context.Context, ticker string, asOf time.Time) (*domain.EarningsSurprise, error) {
	if p.earnings == nil {
		return nil, nil
	}

	p.mu.RLock()
	records, ok := p.earningsCache[ticker]
	p.mu.RUnlock()

	if !ok {
		err := p.retry(ctx, "get earnings "+ticker, func() error {
			var err error
			records, err = p.earnings.GetByTicker(ctx, ticker)
			return err
		})
		if err != nil {
			return nil, err
		}

		p.mu.Lock()
		p.earningsCache[ticker] = records
		p.mu.Unlock()
	}

	return PointInTimeSurprise(records, asOf), nil
}

// Fundamentals returns fundamentals for ticker, or nil when unknown.
func (p *StoreProvider) Fundamentals(ctx context.Context, ticker string) (*domain.Fundamentals, error) {
	if p.fundamentals == nil {
		return nil, nil
	}

	var f *domain.Fundamentals
	err := p.retry(ctx, "get fundamentals "+ticker, func() error {
		var err error
		f, err = p.fundamentals.GetByTicker(ctx, ticker)
		return err
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// loadBars reads bars for one ticker and merges them into the cache.
func (p *StoreProvider) loadBars(ctx context.Context, ticker string, from, to time.Time) ([]*domain.Bar, error) {
	var bars []*domain.Bar
	err := p.retry(ctx, "load bars "+ticker, func() error {
		var err error
		bars, err = p.bars.GetByTickerRange(ctx, ticker, from, to)
		return err
	})
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	cache, ok := p.barCache[ticker]
	if !ok {
		cache = make(map[int64]*domain.Bar, len(bars))
		p.barCache[ticker] = cache
	}
	for _, b := range bars {
		cache[domain.Day(b.Date).Unix()] = b
	}

	// Track only a contiguous covered range; a disjoint reload replaces it.
	rng, ok := p.loaded[ticker]
	if ok && !from.After(rng.end.AddDate(0, 0, 1)) && !to.Before(rng.start.AddDate(0, 0, -1)) {
		if from.Before(rng.start) {
			rng.start = from
		}
		if to.After(rng.end) {
			rng.end = to
		}
	} else {
		rng = dayRange{start: from, end: to}
	}
	p.loaded[ticker] = rng

	p.logger.Debug("bars loaded",
		zap.String("ticker", ticker),
		zap.Int("count", len(bars)),
	)
	return bars, nil
}

// retry runs fn with exponential backoff. Missing records, invalid input and
// context cancellation are not retried.
func (p *StoreProvider) retry(ctx context.Context, op string, fn func() error) error {
	b := &backoff.Backoff{
		Min:    p.retryDelay,
		Max:    p.maxDelay,
		Factor: 2,
		Jitter: false,
	}

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			delay := b.Duration()
			p.logger.Warn("retrying market data read",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("%s: %d attempts: %w", op, p.maxRetries+1, lastErr)
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, storage.ErrInvalidInput),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	default:
		return true
	}
}

var _ Provider = (*StoreProvider)(nil)
