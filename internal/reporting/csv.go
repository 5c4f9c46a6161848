package reporting

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"equity-backtester/internal/domain"
	"equity-backtester/internal/metrics"
)

// TransactionRow is the CSV form of a ledger transaction.
type TransactionRow struct {
	ID          string `csv:"id"`
	RoundTripID string `csv:"roundtrip_id"`
	Ticker      string `csv:"ticker"`
	Date        string `csv:"date"`
	Type        string `csv:"transaction_type"`
	Shares      string `csv:"shares"`
	Price       string `csv:"price"`
	NetAmount   string `csv:"net_amount"`
	CostBasis   string `csv:"cost_basis"`
	Reason      string `csv:"reason"`
}

// RoundTripCSVRow is the CSV form of a round trip.
type RoundTripCSVRow struct {
	RoundTripID       string `csv:"roundtrip_id"`
	Ticker            string `csv:"ticker"`
	EntryDate         string `csv:"entry_date"`
	ExitDate          string `csv:"exit_date"`
	TotalShares       string `csv:"total_shares"`
	RemainingShares   string `csv:"remaining_shares"`
	AverageEntryPrice string `csv:"average_entry_price"`
	TotalCost         string `csv:"total_cost"`
	TotalProceeds     string `csv:"total_proceeds"`
	RealizedPnL       string `csv:"realized_pnl"`
	TransactionCount  int    `csv:"transaction_count"`
	HoldingDays       int    `csv:"holding_days"`
	ExitRuleType      string `csv:"exit_rule_type"`
	ExitReason        string `csv:"exit_reason"`
	Status            string `csv:"status"`
}

// EquityRow is the CSV form of an equity point.
type EquityRow struct {
	Date  string `csv:"date"`
	Value string `csv:"value"`
}

// WriteTransactionsCSV writes txns as CSV with a header row.
func WriteTransactionsCSV(w io.Writer, txns []*domain.Transaction) error {
	rows := make([]*TransactionRow, 0, len(txns))
	for _, t := range txns {
		rows = append(rows, &TransactionRow{
			ID:          t.ID,
			RoundTripID: t.RoundTripID,
			Ticker:      t.Ticker,
			Date:        t.Date.Format(domain.DateLayout),
			Type:        string(t.Type),
			Shares:      t.Shares.String(),
			Price:       t.Price.String(),
			NetAmount:   t.NetAmount.String(),
			CostBasis:   t.CostBasis.String(),
			Reason:      t.Reason,
		})
	}
	return gocsv.Marshal(rows, w)
}

// WriteRoundTripsCSV writes round trips as CSV with a header row.
func WriteRoundTripsCSV(w io.Writer, rts []*domain.RoundTripRecord) error {
	rows := make([]*RoundTripCSVRow, 0, len(rts))
	for _, rt := range rts {
		var exit string
		if rt.ExitDate != nil {
			exit = rt.ExitDate.Format(domain.DateLayout)
		}
		rows = append(rows, &RoundTripCSVRow{
			RoundTripID:       rt.RoundTripID,
			Ticker:            rt.Ticker,
			EntryDate:         rt.EntryDate.Format(domain.DateLayout),
			ExitDate:          exit,
			TotalShares:       rt.TotalShares.String(),
			RemainingShares:   rt.RemainingShares.String(),
			AverageEntryPrice: rt.AverageEntryPrice.String(),
			TotalCost:         rt.TotalCost.String(),
			TotalProceeds:     rt.TotalProceeds.String(),
			RealizedPnL:       rt.RealizedPnL.String(),
			TransactionCount:  rt.TransactionCount,
			HoldingDays:       rt.HoldingDays,
			ExitRuleType:      rt.ExitRuleType,
			ExitReason:        rt.ExitReason,
			Status:            rt.Status,
		})
	}
	return gocsv.Marshal(rows, w)
}

// WriteEquityCSV writes the equity curve as CSV with a header row.
func WriteEquityCSV(w io.Writer, points []domain.EquityPoint) error {
	rows := make([]*EquityRow, 0, len(points))
	for _, p := range points {
		rows = append(rows, &EquityRow{
			Date:  p.Date.Format(domain.DateLayout),
			Value: p.Value.String(),
		})
	}
	return gocsv.Marshal(rows, w)
}

// CSV export file names written by WriteCSVDir.
const (
	TransactionsFile = "transactions.csv"
	RoundTripsFile   = "round_trips.csv"
	EquityFile       = "equity.csv"
)

// WriteCSVDir writes the transaction log, round trips and equity curve of a
// into dir, creating it when missing.
func WriteCSVDir(dir string, a *metrics.Analysis) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	write := func(name string, fn func(io.Writer) error) error {
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if err := fn(f); err != nil {
			f.Close()
			return fmt.Errorf("%s: %w", name, err)
		}
		return f.Close()
	}

	if err := write(TransactionsFile, func(w io.Writer) error {
		return WriteTransactionsCSV(w, a.Transactions)
	}); err != nil {
		return err
	}
	if err := write(RoundTripsFile, func(w io.Writer) error {
		return WriteRoundTripsCSV(w, a.RoundTrips)
	}); err != nil {
		return err
	}
	return write(EquityFile, func(w io.Writer) error {
		return WriteEquityCSV(w, a.Equity)
	})
}
