package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a cash-affecting event within a round trip.
type TransactionType string

// Transaction type constants.
const (
	TransactionOpen   TransactionType = "open"
	TransactionAdd    TransactionType = "add"
	TransactionReduce TransactionType = "reduce"
	TransactionClose  TransactionType = "close"
)

// IsEntry reports whether the type adds shares to a position.
func (t TransactionType) IsEntry() bool {
	return t == TransactionOpen || t == TransactionAdd
}

// IsExit reports whether the type removes shares from a position.
func (t TransactionType) IsExit() bool {
	return t == TransactionReduce || t == TransactionClose
}

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	return t.IsEntry() || t.IsExit()
}

// Transaction is one immutable cash-affecting event.
// Corresponds to ledger_transactions table.
type Transaction struct {
	ID          string          `json:"id"`           // deterministic uuid
	RoundTripID string          `json:"roundtrip_id"` // owning round trip
	Ticker      string          `json:"ticker"`
	Date        time.Time       `json:"date"`
	Type        TransactionType `json:"transaction_type"`
	Shares      decimal.Decimal `json:"shares"`     // always > 0
	Price       decimal.Decimal `json:"price"`      // always > 0
	NetAmount   decimal.Decimal `json:"net_amount"` // negative for buys, positive for sells
	CostBasis   decimal.Decimal `json:"cost_basis"` // entry cost released by an exit; zero for entries
	Reason      string          `json:"reason"`
}

// RealizedPnL returns the P&L realized by an exit transaction.
// Entries realize nothing.
func (t *Transaction) RealizedPnL() decimal.Decimal {
	if !t.Type.IsExit() {
		return decimal.Zero
	}
	return t.NetAmount.Sub(t.CostBasis)
}

// Entry and exit reason tags used by the engine.
const (
	ReasonSignal      = "signal"
	ReasonAdd         = "add"
	ReasonBacktestEnd = "backtest_end"
)
