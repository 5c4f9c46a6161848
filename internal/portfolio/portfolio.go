// Package portfolio implements the backtest ledger: cash, open and closed
// round trips, the flat transaction log and the equity history.
package portfolio

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"equity-backtester/internal/cost"
	"equity-backtester/internal/domain"
	"equity-backtester/internal/idhash"
)

// Portfolio errors
var (
	ErrInvalidCapital      = errors.New("starting capital must be positive")
	ErrInvalidMaxPositions = errors.New("max positions must be positive")
	ErrUnknownRoundTrip    = errors.New("unknown or closed round trip")
	ErrInvalidPrice        = errors.New("price must be a positive finite number")
	ErrInsufficientCash    = errors.New("insufficient cash")
)

// Config holds the immutable parameters of a Portfolio.
type Config struct {
	StartingCapital  float64
	MaxPositions     int
	Cost             cost.TransactionCost
	FractionalShares bool
}

// Validate checks Config for configuration errors.
func (c Config) Validate() error {
	if !(c.StartingCapital > 0) || math.IsInf(c.StartingCapital, 0) {
		return fmt.Errorf("%w: got %v", ErrInvalidCapital, c.StartingCapital)
	}
	if c.MaxPositions <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidMaxPositions, c.MaxPositions)
	}
	return nil
}

// Portfolio is the single mutable ledger of a simulation.
// Only OpenPosition, AddToPosition, ReducePosition and ClosePosition change cash
// or positions. Not safe for concurrent use; the engine is sequential.
type Portfolio struct {
	startingCapital  decimal.Decimal
	maxPositions     int
	cost             cost.TransactionCost
	fractionalShares bool

	cash      decimal.Decimal
	open      map[string]*domain.RoundTrip
	openOrder []string // insertion order of open round trip IDs
	closed    []*domain.RoundTrip
	log       []*domain.Transaction
	equity    []domain.EquityPoint
	opened    int // round trips opened so far; seeds deterministic IDs
}

// New creates a Portfolio holding only cash.
func New(cfg Config) (*Portfolio, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	capital := decimal.NewFromFloat(cfg.StartingCapital)
	return &Portfolio{
		startingCapital:  capital,
		maxPositions:     cfg.MaxPositions,
		cost:             cfg.Cost,
		fractionalShares: cfg.FractionalShares,
		cash:             capital,
		open:             make(map[string]*domain.RoundTrip),
	}, nil
}

// CanOpenPosition reports whether a free position slot exists.
func (p *Portfolio) CanOpenPosition() bool {
	return len(p.open) < p.maxPositions
}

// RoundShares floors shares when fractional shares are disabled.
func (p *Portfolio) RoundShares(shares decimal.Decimal) decimal.Decimal {
	if p.fractionalShares {
		return shares
	}
	return shares.Floor()
}

// OpenPosition opens a new round trip.
// Returns nil without error when the trade is refused: shares round to zero,
// no slot is free, or the entry cost exceeds cash. Refusals leave the ledger unchanged.
func (p *Portfolio) OpenPosition(
	ticker string,
	date time.Time,
	price float64,
	shares decimal.Decimal,
	exitRule domain.ExitRule,
	metadata map[string]any,
) (*domain.RoundTrip, error) {
	priceDec, err := toPrice(price)
	if err != nil {
		return nil, err
	}

	shares = p.RoundShares(shares)
	if !shares.IsPositive() {
		return nil, nil
	}
	if !p.CanOpenPosition() {
		return nil, nil
	}

	entryCost, err := p.cost.EntryCost(shares, priceDec)
	if err != nil {
		return nil, err
	}
	if entryCost.GreaterThan(p.cash) {
		return nil, nil
	}

	day := domain.Day(date)
	id := idhash.ComputeRoundTripID(ticker, day, p.opened+1)
	rt := domain.NewRoundTrip(id, ticker, exitRule, metadata)

	txn := newTransaction(rt, domain.TransactionOpen, day, shares, priceDec, entryCost.Neg(), decimal.Zero, domain.ReasonSignal)
	if err := rt.Append(txn); err != nil {
		return nil, fmt.Errorf("open %s: %w", ticker, err)
	}

	p.opened++
	p.cash = p.cash.Sub(entryCost)
	p.open[id] = rt
	p.openOrder = append(p.openOrder, id)
	p.log = append(p.log, txn)

	return rt, nil
}

// AddToPosition buys more shares into an open round trip.
// Returns false without error when shares round to zero or cash is insufficient.
// Returns ErrUnknownRoundTrip when id is not open.
func (p *Portfolio) AddToPosition(id string, date time.Time, price float64, shares decimal.Decimal, reason string) (bool, error) {
	rt, ok := p.open[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownRoundTrip, id)
	}

	priceDec, err := toPrice(price)
	if err != nil {
		return false, err
	}

	shares = p.RoundShares(shares)
	if !shares.IsPositive() {
		return false, nil
	}

	entryCost, err := p.cost.EntryCost(shares, priceDec)
	if err != nil {
		return false, err
	}
	if entryCost.GreaterThan(p.cash) {
		return false, nil
	}

	if reason == "" {
		reason = domain.ReasonAdd
	}

	txn := newTransaction(rt, domain.TransactionAdd, domain.Day(date), shares, priceDec, entryCost.Neg(), decimal.Zero, reason)
	if err := rt.Append(txn); err != nil {
		return false, fmt.Errorf("add to %s: %w", id, err)
	}

	p.cash = p.cash.Sub(entryCost)
	p.log = append(p.log, txn)
	return true, nil
}

// ReducePosition sells shares from an open round trip and returns the realized
// P&L of the slice: exit value minus the cost basis of the shares sold.
// Selling all remaining shares closes the round trip and moves it to the closed list.
// Returns ErrUnknownRoundTrip for an unknown or closed id and
// domain.ErrExceedsRemaining when shares exceed the remaining quantity.
// A sale whose commission outweighs its proceeds by more than the available
// cash is refused with ErrInsufficientCash and leaves the ledger untouched.
func (p *Portfolio) ReducePosition(id string, date time.Time, price float64, shares decimal.Decimal, reason string) (decimal.Decimal, error) {
	rt, ok := p.open[id]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownRoundTrip, id)
	}

	remaining := rt.RemainingShares()
	if shares.GreaterThan(remaining) {
		return decimal.Zero, fmt.Errorf("%w: requested %s, remaining %s", domain.ErrExceedsRemaining, shares, remaining)
	}

	priceDec, err := toPrice(price)
	if err != nil {
		return decimal.Zero, err
	}

	exitValue, err := p.cost.ExitValue(shares, priceDec)
	if err != nil {
		return decimal.Zero, err
	}
	if exitValue.IsNegative() && exitValue.Neg().GreaterThan(p.cash) {
		return decimal.Zero, fmt.Errorf("%w: exit of %s needs %s, cash %s", ErrInsufficientCash, id, exitValue.Neg(), p.cash)
	}

	basis := rt.CostBasisFor(shares)
	txType := domain.TransactionReduce
	if shares.Equal(remaining) {
		txType = domain.TransactionClose
	}

	txn := newTransaction(rt, txType, domain.Day(date), shares, priceDec, exitValue, basis, reason)
	if err := rt.Append(txn); err != nil {
		return decimal.Zero, fmt.Errorf("reduce %s: %w", id, err)
	}

	p.cash = p.cash.Add(exitValue)
	p.log = append(p.log, txn)

	if !rt.IsOpen() {
		p.moveToClosed(id)
	}

	return exitValue.Sub(basis), nil
}

// ClosePosition sells all remaining shares of an open round trip.
func (p *Portfolio) ClosePosition(id string, date time.Time, price float64, reason string) (decimal.Decimal, error) {
	rt, ok := p.open[id]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownRoundTrip, id)
	}
	return p.ReducePosition(id, date, price, rt.RemainingShares(), reason)
}

// RecordEquity appends one equity sample.
func (p *Portfolio) RecordEquity(date time.Time, value decimal.Decimal) {
	p.equity = append(p.equity, domain.EquityPoint{Date: domain.Day(date), Value: value})
}

// TotalValue marks open positions at prices and adds cash.
// Positions without a positive price contribute zero.
func (p *Portfolio) TotalValue(prices map[string]float64) decimal.Decimal {
	total := p.cash
	for _, id := range p.openOrder {
		rt := p.open[id]
		price, ok := prices[rt.Ticker]
		if !ok || !(price > 0) || math.IsInf(price, 0) {
			continue
		}
		total = total.Add(rt.RemainingShares().Mul(decimal.NewFromFloat(price)))
	}
	return total
}

// Cash returns the current cash balance.
func (p *Portfolio) Cash() decimal.Decimal {
	return p.cash
}

// StartingCapital returns the initial cash balance.
func (p *Portfolio) StartingCapital() decimal.Decimal {
	return p.startingCapital
}

// MaxPositions returns the open position capacity.
func (p *Portfolio) MaxPositions() int {
	return p.maxPositions
}

// FractionalShares reports whether fractional share quantities are allowed.
func (p *Portfolio) FractionalShares() bool {
	return p.fractionalShares
}

// Cost returns the transaction cost model.
func (p *Portfolio) Cost() cost.TransactionCost {
	return p.cost
}

// OpenCount returns the number of open round trips.
func (p *Portfolio) OpenCount() int {
	return len(p.open)
}

// OpenRoundTrip returns an open round trip by id.
func (p *Portfolio) OpenRoundTrip(id string) (*domain.RoundTrip, bool) {
	rt, ok := p.open[id]
	return rt, ok
}

// OpenRoundTrips returns open round trips in the order they were opened.
func (p *Portfolio) OpenRoundTrips() []*domain.RoundTrip {
	out := make([]*domain.RoundTrip, 0, len(p.openOrder))
	for _, id := range p.openOrder {
		out = append(out, p.open[id])
	}
	return out
}

// HoldsTicker reports whether any open round trip is in ticker.
func (p *Portfolio) HoldsTicker(ticker string) bool {
	for _, id := range p.openOrder {
		if p.open[id].Ticker == ticker {
			return true
		}
	}
	return false
}

// ClosedRoundTrips returns closed round trips in closing order.
func (p *Portfolio) ClosedRoundTrips() []*domain.RoundTrip {
	out := make([]*domain.RoundTrip, len(p.closed))
	copy(out, p.closed)
	return out
}

// Transactions returns the flat transaction log in simulation order.
func (p *Portfolio) Transactions() []*domain.Transaction {
	out := make([]*domain.Transaction, len(p.log))
	copy(out, p.log)
	return out
}

// EquityHistory returns all recorded equity samples.
func (p *Portfolio) EquityHistory() []domain.EquityPoint {
	out := make([]domain.EquityPoint, len(p.equity))
	copy(out, p.equity)
	return out
}

// moveToClosed transfers a fully exited round trip from the open set to the closed list.
func (p *Portfolio) moveToClosed(id string) {
	rt := p.open[id]
	delete(p.open, id)
	for i, oid := range p.openOrder {
		if oid == id {
			p.openOrder = append(p.openOrder[:i], p.openOrder[i+1:]...)
			break
		}
	}
	p.closed = append(p.closed, rt)
}

// newTransaction builds the next transaction of rt.
func newTransaction(
	rt *domain.RoundTrip,
	txType domain.TransactionType,
	date time.Time,
	shares, price, netAmount, costBasis decimal.Decimal,
	reason string,
) *domain.Transaction {
	return &domain.Transaction{
		ID:          idhash.ComputeTransactionID(rt.ID, rt.TransactionCount()),
		RoundTripID: rt.ID,
		Ticker:      rt.Ticker,
		Date:        date,
		Type:        txType,
		Shares:      shares,
		Price:       price,
		NetAmount:   netAmount,
		CostBasis:   costBasis,
		Reason:      reason,
	}
}

// toPrice converts a market price, rejecting non-positive and non-finite values.
func toPrice(price float64) (decimal.Decimal, error) {
	if !(price > 0) || math.IsInf(price, 0) {
		return decimal.Zero, fmt.Errorf("%w: got %v", ErrInvalidPrice, price)
	}
	return decimal.NewFromFloat(price), nil
}
