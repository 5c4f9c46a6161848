// Package cost converts share quantities and prices into cash amounts
// including slippage and a flat commission.
package cost

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Cost errors
var (
	ErrInvalidShares      = errors.New("shares must be positive")
	ErrInvalidPrice       = errors.New("price must be positive")
	ErrNegativeCommission = errors.New("commission must be non-negative")
	ErrNegativeSlippage   = errors.New("slippage must be non-negative")
	ErrSlippageRange      = errors.New("slippage must be below 1")
)

// TransactionCost applies a flat commission and proportional slippage.
// Entries pay price*(1+slippage) plus commission; exits receive
// price*(1-slippage) minus commission.
type TransactionCost struct {
	commission decimal.Decimal
	slippage   decimal.Decimal
}

// New creates a TransactionCost. Negative parameters and slippage of 1 or
// more are rejected.
func New(commission, slippagePct float64) (TransactionCost, error) {
	if commission < 0 || math.IsNaN(commission) || math.IsInf(commission, 0) {
		return TransactionCost{}, fmt.Errorf("%w: got %v", ErrNegativeCommission, commission)
	}
	if slippagePct < 0 || math.IsNaN(slippagePct) {
		return TransactionCost{}, fmt.Errorf("%w: got %v", ErrNegativeSlippage, slippagePct)
	}
	if slippagePct >= 1 {
		return TransactionCost{}, fmt.Errorf("%w: got %v", ErrSlippageRange, slippagePct)
	}
	return TransactionCost{
		commission: decimal.NewFromFloat(commission),
		slippage:   decimal.NewFromFloat(slippagePct),
	}, nil
}

// Zero is a cost model with no commission and no slippage.
func Zero() TransactionCost {
	return TransactionCost{commission: decimal.Zero, slippage: decimal.Zero}
}

// Commission returns the flat per-trade commission.
func (c TransactionCost) Commission() decimal.Decimal {
	return c.commission
}

// Slippage returns the proportional slippage.
func (c TransactionCost) Slippage() decimal.Decimal {
	return c.slippage
}

// EntryCost returns the total cash paid to buy shares at price.
func (c TransactionCost) EntryCost(shares, price decimal.Decimal) (decimal.Decimal, error) {
	if err := validate(shares, price); err != nil {
		return decimal.Zero, err
	}
	gross := shares.Mul(price).Mul(decimal.NewFromInt(1).Add(c.slippage))
	return gross.Add(c.commission), nil
}

// ExitValue returns the net cash received for selling shares at price.
// The result can be negative when commission exceeds proceeds.
func (c TransactionCost) ExitValue(shares, price decimal.Decimal) (decimal.Decimal, error) {
	if err := validate(shares, price); err != nil {
		return decimal.Zero, err
	}
	gross := shares.Mul(price).Mul(decimal.NewFromInt(1).Sub(c.slippage))
	return gross.Sub(c.commission), nil
}

func validate(shares, price decimal.Decimal) error {
	if !shares.IsPositive() {
		return fmt.Errorf("%w: got %s", ErrInvalidShares, shares)
	}
	if !price.IsPositive() {
		return fmt.Errorf("%w: got %s", ErrInvalidPrice, price)
	}
	return nil
}
