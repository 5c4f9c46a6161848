package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EquityPoint is one end-of-day portfolio valuation.
// Corresponds to equity_history table.
type EquityPoint struct {
	Date  time.Time       `json:"date"`
	Value decimal.Decimal `json:"value"` // cash + marked open positions
}
