package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RoundTrip errors
var (
	ErrRoundTripMismatch  = errors.New("transaction belongs to a different round trip")
	ErrRoundTripClosed    = errors.New("round trip is closed")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrExceedsRemaining   = errors.New("exit exceeds remaining shares")
	ErrOpenMustBeFirst    = errors.New("open must be the first transaction")
	ErrMissingOpening     = errors.New("round trip has no opening transaction")
)

// RoundTrip is one logical position in one ticker, from first entry to full exit.
// Shares, cost basis and P&L are derived from the owned transactions.
type RoundTrip struct {
	ID            string
	Ticker        string
	ExitRule      ExitRule       // assigned at entry
	EntryMetadata map[string]any // signal metadata at entry

	transactions []*Transaction
}

// NewRoundTrip creates an empty round trip. The first appended transaction must be an open.
func NewRoundTrip(id, ticker string, exitRule ExitRule, metadata map[string]any) *RoundTrip {
	return &RoundTrip{
		ID:            id,
		Ticker:        ticker,
		ExitRule:      exitRule,
		EntryMetadata: metadata,
	}
}

// Append adds a transaction to the round trip.
// Only the portfolio ledger calls Append; transactions are never removed.
func (rt *RoundTrip) Append(t *Transaction) error {
	if t == nil || !t.Type.Valid() || !t.Shares.IsPositive() || !t.Price.IsPositive() {
		return ErrInvalidTransaction
	}
	if t.RoundTripID != rt.ID || t.Ticker != rt.Ticker {
		return ErrRoundTripMismatch
	}

	switch {
	case len(rt.transactions) == 0 && t.Type != TransactionOpen:
		return ErrMissingOpening
	case len(rt.transactions) > 0 && t.Type == TransactionOpen:
		return ErrOpenMustBeFirst
	case len(rt.transactions) > 0 && !rt.IsOpen():
		return ErrRoundTripClosed
	}

	if t.Type.IsExit() && t.Shares.GreaterThan(rt.RemainingShares()) {
		return fmt.Errorf("%w: requested %s, remaining %s", ErrExceedsRemaining, t.Shares, rt.RemainingShares())
	}

	rt.transactions = append(rt.transactions, t)
	return nil
}

// Transactions returns a copy of the ordered transaction list.
func (rt *RoundTrip) Transactions() []*Transaction {
	out := make([]*Transaction, len(rt.transactions))
	copy(out, rt.transactions)
	return out
}

// TransactionCount returns the number of owned transactions.
func (rt *RoundTrip) TransactionCount() int {
	return len(rt.transactions)
}

// TotalShares is the sum of open and add shares.
func (rt *RoundTrip) TotalShares() decimal.Decimal {
	total := decimal.Zero
	for _, t := range rt.transactions {
		if t.Type.IsEntry() {
			total = total.Add(t.Shares)
		}
	}
	return total
}

// ExitedShares is the sum of reduce and close shares.
func (rt *RoundTrip) ExitedShares() decimal.Decimal {
	total := decimal.Zero
	for _, t := range rt.transactions {
		if t.Type.IsExit() {
			total = total.Add(t.Shares)
		}
	}
	return total
}

// RemainingShares is TotalShares minus ExitedShares. Never negative.
func (rt *RoundTrip) RemainingShares() decimal.Decimal {
	return rt.TotalShares().Sub(rt.ExitedShares())
}

// TotalCost is the cumulative cash paid for entries.
func (rt *RoundTrip) TotalCost() decimal.Decimal {
	total := decimal.Zero
	for _, t := range rt.transactions {
		if t.Type.IsEntry() {
			total = total.Add(t.NetAmount.Abs())
		}
	}
	return total
}

// TotalProceeds is the cumulative cash received from exits.
func (rt *RoundTrip) TotalProceeds() decimal.Decimal {
	total := decimal.Zero
	for _, t := range rt.transactions {
		if t.Type.IsExit() {
			total = total.Add(t.NetAmount)
		}
	}
	return total
}

// releasedCost is the entry cost already attributed to exits.
func (rt *RoundTrip) releasedCost() decimal.Decimal {
	total := decimal.Zero
	for _, t := range rt.transactions {
		if t.Type.IsExit() {
			total = total.Add(t.CostBasis)
		}
	}
	return total
}

// AverageEntryPrice is TotalCost / TotalShares, zero when nothing was bought.
func (rt *RoundTrip) AverageEntryPrice() decimal.Decimal {
	shares := rt.TotalShares()
	if shares.IsZero() {
		return decimal.Zero
	}
	return rt.TotalCost().Div(shares)
}

// CostBasisFor returns the entry cost attributed to selling shares now.
// Selling everything that remains releases the residual cost so slice P&Ls sum to RealizedPnL.
func (rt *RoundTrip) CostBasisFor(shares decimal.Decimal) decimal.Decimal {
	if shares.Equal(rt.RemainingShares()) {
		return rt.TotalCost().Sub(rt.releasedCost())
	}
	return rt.AverageEntryPrice().Mul(shares)
}

// RealizedPnL is TotalProceeds minus TotalCost.
func (rt *RoundTrip) RealizedPnL() decimal.Decimal {
	return rt.TotalProceeds().Sub(rt.TotalCost())
}

// UnrealizedPnL marks the remaining shares at price against the average entry.
func (rt *RoundTrip) UnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	return price.Sub(rt.AverageEntryPrice()).Mul(rt.RemainingShares())
}

// IsOpen reports whether shares remain.
func (rt *RoundTrip) IsOpen() bool {
	return rt.RemainingShares().IsPositive()
}

// EntryDate is the date of the opening transaction.
func (rt *RoundTrip) EntryDate() time.Time {
	if len(rt.transactions) == 0 {
		return time.Time{}
	}
	return rt.transactions[0].Date
}

// ExitDate is the date of the final exit, or zero while open.
func (rt *RoundTrip) ExitDate() time.Time {
	if rt.IsOpen() || len(rt.transactions) == 0 {
		return time.Time{}
	}
	return rt.transactions[len(rt.transactions)-1].Date
}

// ExitReason is the reason of the final exit, or empty while open.
func (rt *RoundTrip) ExitReason() string {
	if rt.IsOpen() || len(rt.transactions) == 0 {
		return ""
	}
	return rt.transactions[len(rt.transactions)-1].Reason
}

// HoldingDays counts calendar days from the first transaction to date.
func (rt *RoundTrip) HoldingDays(date time.Time) int {
	if len(rt.transactions) == 0 {
		return 0
	}
	return DaysBetween(rt.EntryDate(), date)
}

// Record flattens the round trip for storage and reporting.
// Open round trips use asOf for HoldingDays.
func (rt *RoundTrip) Record(asOf time.Time) *RoundTripRecord {
	rec := &RoundTripRecord{
		RoundTripID:       rt.ID,
		Ticker:            rt.Ticker,
		EntryDate:         rt.EntryDate(),
		TotalShares:       rt.TotalShares(),
		RemainingShares:   rt.RemainingShares(),
		AverageEntryPrice: rt.AverageEntryPrice(),
		TotalCost:         rt.TotalCost(),
		TotalProceeds:     rt.TotalProceeds(),
		RealizedPnL:       rt.RealizedPnL(),
		TransactionCount:  len(rt.transactions),
		Status:            RoundTripStatusOpen,
	}
	if rt.ExitRule != nil {
		rec.ExitRuleType = rt.ExitRule.Config().Type
	}
	if rt.IsOpen() {
		rec.HoldingDays = rt.HoldingDays(asOf)
		return rec
	}

	exitDate := rt.ExitDate()
	rec.ExitDate = &exitDate
	rec.ExitReason = rt.ExitReason()
	rec.HoldingDays = rt.HoldingDays(exitDate)
	rec.Status = RoundTripStatusClosed
	return rec
}
