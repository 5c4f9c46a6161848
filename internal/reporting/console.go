package reporting

import (
	"fmt"
	"io"
	"text/tabwriter"

	"equity-backtester/internal/domain"
)

// WriteSummary writes a short aligned summary of r for terminal output.
func WriteSummary(w io.Writer, r *Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	run := r.Run
	perf := r.Performance

	rows := [][2]string{
		{"Strategy", run.StrategyName},
		{"Run", run.RunID},
		{"Period", run.StartDate.Format(domain.DateLayout) + " to " + run.EndDate.Format(domain.DateLayout)},
		{"Trading days", fmt.Sprintf("%d", run.TradingDays)},
		{"Initial capital", fmt.Sprintf("%.2f", run.InitialCapital)},
		{"Final value", fmt.Sprintf("%.2f", perf.FinalValue)},
		{"Total return", fmt.Sprintf("%.2f%%", perf.TotalReturn*100)},
		{"CAGR", fmt.Sprintf("%.2f%%", perf.CAGR*100)},
		{"Sharpe", fmt.Sprintf("%.4f", perf.Sharpe)},
		{"Max drawdown", fmt.Sprintf("%.2f%%", perf.MaxDrawdown*100)},
		{"Closed trades", fmt.Sprintf("%d", perf.Trades.Count)},
		{"Win rate", fmt.Sprintf("%.2f%%", perf.Trades.WinRate*100)},
		{"Transactions", fmt.Sprintf("%d", run.Transactions)},
		{"Open positions", fmt.Sprintf("%d", run.OpenPositions)},
	}
	for _, row := range rows {
		if _, err := fmt.Fprintf(tw, "%s:\t%s\n", row[0], row[1]); err != nil {
			return err
		}
	}
	return tw.Flush()
}
