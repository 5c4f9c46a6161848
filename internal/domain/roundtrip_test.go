package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testTxn(rtID string, typ TransactionType, date time.Time, shares, price, net, basis string) *Transaction {
	return &Transaction{
		ID:          rtID + "-" + string(typ),
		RoundTripID: rtID,
		Ticker:      "AAPL",
		Date:        date,
		Type:        typ,
		Shares:      dec(shares),
		Price:       dec(price),
		NetAmount:   dec(net),
		CostBasis:   dec(basis),
		Reason:      "test",
	}
}

func TestRoundTrip_Lifecycle(t *testing.T) {
	d1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	d3 := time.Date(2024, 1, 30, 0, 0, 0, 0, time.UTC)

	rt := NewRoundTrip("rt1", "AAPL", nil, nil)
	if rt.IsOpen() {
		t.Error("empty round trip should not be open")
	}
	if !rt.AverageEntryPrice().IsZero() {
		t.Errorf("expected zero average entry, got %s", rt.AverageEntryPrice())
	}

	if err := rt.Append(testTxn("rt1", TransactionOpen, d1, "10", "100", "-1000", "0")); err != nil {
		t.Fatalf("append open: %v", err)
	}
	if err := rt.Append(testTxn("rt1", TransactionAdd, d2, "5", "90", "-450", "0")); err != nil {
		t.Fatalf("append add: %v", err)
	}

	if !rt.TotalShares().Equal(dec("15")) {
		t.Errorf("expected 15 total shares, got %s", rt.TotalShares())
	}
	if !rt.TotalCost().Equal(dec("1450")) {
		t.Errorf("expected total cost 1450, got %s", rt.TotalCost())
	}
	if got := rt.AverageEntryPrice().Round(2); !got.Equal(dec("96.67")) {
		t.Errorf("expected average 96.67, got %s", got)
	}
	if got := rt.HoldingDays(d3); got != 29 {
		t.Errorf("expected 29 holding days, got %d", got)
	}
	if !rt.ExitDate().IsZero() || rt.ExitReason() != "" {
		t.Error("open round trip should have no exit date or reason")
	}

	basis := rt.CostBasisFor(dec("15"))
	if !basis.Equal(dec("1450")) {
		t.Errorf("expected residual basis 1450, got %s", basis)
	}
	closeTxn := testTxn("rt1", TransactionClose, d3, "15", "110", "1650", basis.String())
	closeTxn.Reason = "exit"
	if err := rt.Append(closeTxn); err != nil {
		t.Fatalf("append close: %v", err)
	}

	if rt.IsOpen() {
		t.Error("expected closed round trip")
	}
	if !rt.RealizedPnL().Equal(dec("200")) {
		t.Errorf("expected pnl 200, got %s", rt.RealizedPnL())
	}
	if !rt.ExitDate().Equal(d3) || rt.ExitReason() != "exit" {
		t.Errorf("unexpected exit %v %q", rt.ExitDate(), rt.ExitReason())
	}
	if !closeTxn.RealizedPnL().Equal(dec("200")) {
		t.Errorf("expected close txn pnl 200, got %s", closeTxn.RealizedPnL())
	}

	rec := rt.Record(d3)
	if rec.Status != RoundTripStatusClosed || rec.ExitDate == nil || rec.HoldingDays != 29 || rec.TransactionCount != 3 {
		t.Errorf("unexpected record %+v", rec)
	}
}

func TestRoundTrip_AppendValidation(t *testing.T) {
	d := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		setup   []*Transaction
		txn     *Transaction
		wantErr error
	}{
		{
			name:    "nil transaction",
			txn:     nil,
			wantErr: ErrInvalidTransaction,
		},
		{
			name:    "zero shares",
			txn:     testTxn("rt", TransactionOpen, d, "0", "100", "0", "0"),
			wantErr: ErrInvalidTransaction,
		},
		{
			name:    "wrong round trip",
			txn:     testTxn("other", TransactionOpen, d, "1", "100", "-100", "0"),
			wantErr: ErrRoundTripMismatch,
		},
		{
			name:    "add before open",
			txn:     testTxn("rt", TransactionAdd, d, "1", "100", "-100", "0"),
			wantErr: ErrMissingOpening,
		},
		{
			name:    "second open",
			setup:   []*Transaction{testTxn("rt", TransactionOpen, d, "1", "100", "-100", "0")},
			txn:     testTxn("rt", TransactionOpen, d, "1", "100", "-100", "0"),
			wantErr: ErrOpenMustBeFirst,
		},
		{
			name:    "exit exceeds remaining",
			setup:   []*Transaction{testTxn("rt", TransactionOpen, d, "1", "100", "-100", "0")},
			txn:     testTxn("rt", TransactionReduce, d, "2", "100", "200", "0"),
			wantErr: ErrExceedsRemaining,
		},
		{
			name: "append after close",
			setup: []*Transaction{
				testTxn("rt", TransactionOpen, d, "1", "100", "-100", "0"),
				testTxn("rt", TransactionClose, d, "1", "100", "100", "100"),
			},
			txn:     testTxn("rt", TransactionAdd, d, "1", "100", "-100", "0"),
			wantErr: ErrRoundTripClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := NewRoundTrip("rt", "AAPL", nil, nil)
			for _, s := range tt.setup {
				if err := rt.Append(s); err != nil {
					t.Fatalf("setup append: %v", err)
				}
			}
			before := rt.TransactionCount()
			err := rt.Append(tt.txn)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if rt.TransactionCount() != before {
				t.Error("rejected append changed the round trip")
			}
		})
	}
}

func TestRoundTrip_UnrealizedPnL(t *testing.T) {
	d := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rt := NewRoundTrip("rt", "AAPL", nil, nil)
	if err := rt.Append(testTxn("rt", TransactionOpen, d, "10", "100", "-1000", "0")); err != nil {
		t.Fatalf("append: %v", err)
	}

	if got := rt.UnrealizedPnL(dec("112.5")); !got.Equal(dec("125")) {
		t.Errorf("expected 125, got %s", got)
	}

	rec := rt.Record(d.AddDate(0, 0, 3))
	if rec.Status != RoundTripStatusOpen || rec.ExitDate != nil || rec.HoldingDays != 3 {
		t.Errorf("unexpected open record %+v", rec)
	}
}

func TestExitState_NilSafe(t *testing.T) {
	var s *ExitState
	s.SetPeak("rt", 10)
	if _, ok := s.Peak("rt"); ok {
		t.Error("nil state should remember nothing")
	}
	s.Forget("rt")
	if s.Len() != 0 {
		t.Errorf("expected 0, got %d", s.Len())
	}

	s = NewExitState()
	s.SetPeak("rt", 10)
	if p, ok := s.Peak("rt"); !ok || p != 10 {
		t.Errorf("expected peak 10, got %v %v", p, ok)
	}
	s.Forget("rt")
	if s.Len() != 0 {
		t.Errorf("expected 0 after Forget, got %d", s.Len())
	}
}

func TestDaysBetween(t *testing.T) {
	from := time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 31, 1, 0, 0, 0, time.UTC)
	if got := DaysBetween(from, to); got != 30 {
		t.Errorf("expected 30, got %d", got)
	}
	if got := DaysBetween(to, from); got != -30 {
		t.Errorf("expected -30, got %d", got)
	}

	if _, err := ParseDay("2024-13-01"); err == nil {
		t.Error("expected error for invalid month")
	}
	day, err := ParseDay("2024-02-29")
	if err != nil || day.Day() != 29 || day.Location() != time.UTC {
		t.Errorf("unexpected ParseDay result %v %v", day, err)
	}
}
