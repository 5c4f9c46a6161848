package reporting

import (
	"fmt"
	"strings"
	"time"

	"equity-backtester/internal/domain"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder
	run := r.Run
	perf := r.Performance

	// Header
	sb.WriteString(fmt.Sprintf("# Backtest Report: %s\n\n", run.StrategyName))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Run: `%s`\n\n", run.RunID))

	// Configuration
	sb.WriteString("## Configuration\n\n")
	sb.WriteString("| Parameter | Value |\n")
	sb.WriteString("|-----------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Period | %s to %s |\n", run.StartDate.Format(domain.DateLayout), run.EndDate.Format(domain.DateLayout)))
	sb.WriteString(fmt.Sprintf("| Trading Days | %d |\n", run.TradingDays))
	sb.WriteString(fmt.Sprintf("| Universe | %s |\n", strings.Join(run.Universe, ", ")))
	sb.WriteString(fmt.Sprintf("| Initial Capital | %.2f |\n", run.InitialCapital))
	sb.WriteString(fmt.Sprintf("| Max Positions | %d |\n", run.MaxPositions))
	sb.WriteString(fmt.Sprintf("| Commission | %.2f |\n", run.Commission))
	sb.WriteString(fmt.Sprintf("| Slippage | %.4f%% |\n", run.SlippagePct*100))
	sb.WriteString(fmt.Sprintf("| Fractional Shares | %t |\n", run.FractionalShares))
	sb.WriteString("\n")

	// Performance
	sb.WriteString("## Performance\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Final Value | %.2f |\n", perf.FinalValue))
	sb.WriteString(fmt.Sprintf("| Final Cash | %.2f |\n", run.FinalCash))
	sb.WriteString(fmt.Sprintf("| Total Return | %.2f%% |\n", perf.TotalReturn*100))
	sb.WriteString(fmt.Sprintf("| CAGR | %.2f%% |\n", perf.CAGR*100))
	sb.WriteString(fmt.Sprintf("| Volatility | %.2f%% |\n", perf.Volatility*100))
	sb.WriteString(fmt.Sprintf("| Sharpe | %.4f |\n", perf.Sharpe))
	sb.WriteString(fmt.Sprintf("| Sortino | %.4f |\n", perf.Sortino))
	sb.WriteString(fmt.Sprintf("| Max Drawdown | %.2f%% |\n", perf.MaxDrawdown*100))
	sb.WriteString(fmt.Sprintf("| Max Drawdown Days | %d |\n", perf.MaxDrawdownDays))
	sb.WriteString(fmt.Sprintf("| Calmar | %.4f |\n", perf.Calmar))
	sb.WriteString("\n")

	// Trades
	t := perf.Trades
	sb.WriteString("## Trades\n\n")
	if t.Count == 0 {
		sb.WriteString("No closed round trips.\n\n")
	} else {
		sb.WriteString("| Metric | Value |\n")
		sb.WriteString("|--------|-------|\n")
		sb.WriteString(fmt.Sprintf("| Closed Round Trips | %d |\n", t.Count))
		sb.WriteString(fmt.Sprintf("| Wins / Losses | %d / %d |\n", t.Wins, t.Losses))
		sb.WriteString(fmt.Sprintf("| Win Rate | %.2f%% |\n", t.WinRate*100))
		sb.WriteString(fmt.Sprintf("| Avg Win | %.2f |\n", t.AvgWin))
		sb.WriteString(fmt.Sprintf("| Avg Loss | %.2f |\n", t.AvgLoss))
		sb.WriteString(fmt.Sprintf("| Profit Factor | %.4f |\n", t.ProfitFactor))
		sb.WriteString(fmt.Sprintf("| Avg Holding Days | %.1f |\n", t.AvgHoldingDays))
		sb.WriteString(fmt.Sprintf("| Max Consecutive Losses | %d |\n", t.MaxConsecutiveLosses))
		sb.WriteString(fmt.Sprintf("| Return Mean / Median | %.4f / %.4f |\n", t.ReturnMean, t.ReturnMedian))
		sb.WriteString(fmt.Sprintf("| Return P10 / P90 | %.4f / %.4f |\n", t.ReturnP10, t.ReturnP90))
		sb.WriteString(fmt.Sprintf("| Return Min / Max | %.4f / %.4f |\n", t.ReturnMin, t.ReturnMax))
		sb.WriteString("\n")
	}
	sb.WriteString(fmt.Sprintf("Transactions: %d | Open positions at end: %d\n\n", run.Transactions, run.OpenPositions))

	// Exit reasons
	if len(r.ExitReasons) > 0 {
		sb.WriteString("### Exit Reasons\n\n")
		sb.WriteString("| Reason | Count |\n")
		sb.WriteString("|--------|-------|\n")
		for _, e := range r.ExitReasons {
			sb.WriteString(fmt.Sprintf("| %s | %d |\n", e.Reason, e.Count))
		}
		sb.WriteString("\n")
	}

	// Round trips
	sb.WriteString("## Round Trips\n\n")
	if len(r.RoundTrips) == 0 {
		sb.WriteString("No round trips.\n")
		return sb.String()
	}
	sb.WriteString("| Ticker | Entry | Exit | Shares | Avg Entry | P&L | Return | Days | Reason | Status |\n")
	sb.WriteString("|--------|-------|------|--------|-----------|-----|--------|------|--------|--------|\n")
	for _, rt := range r.RoundTrips {
		exit := "-"
		if rt.ExitDate != nil {
			exit = rt.ExitDate.Format(domain.DateLayout)
		}
		reason := rt.ExitReason
		if reason == "" {
			reason = "-"
		}
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %.4f | %.4f | %.2f | %.2f%% | %d | %s | %s |\n",
			rt.Ticker, rt.EntryDate.Format(domain.DateLayout), exit,
			rt.Shares, rt.AvgEntryPrice, rt.RealizedPnL, rt.Return*100,
			rt.HoldingDays, reason, rt.Status))
	}

	return sb.String()
}
