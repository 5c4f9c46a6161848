package metrics

import (
	"errors"
	"math"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"equity-backtester/internal/domain"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func d(n int) time.Time {
	return base.AddDate(0, 0, n)
}

func curve(points map[int]float64) []domain.EquityPoint {
	var days []int
	for k := range points {
		days = append(days, k)
	}
	sort.Ints(days)
	out := make([]domain.EquityPoint, len(days))
	for i, k := range days {
		out[i] = domain.EquityPoint{Date: d(k), Value: decimal.NewFromFloat(points[k])}
	}
	return out
}

func closedTrip(id string, pnl, cost float64, exitDay, holding int) *domain.RoundTripRecord {
	exit := d(exitDay)
	return &domain.RoundTripRecord{
		RoundTripID: id,
		ExitDate:    &exit,
		TotalCost:   decimal.NewFromFloat(cost),
		RealizedPnL: decimal.NewFromFloat(pnl),
		HoldingDays: holding,
		Status:      domain.RoundTripStatusClosed,
	}
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestCompute_Errors(t *testing.T) {
	_, err := Compute(Input{InitialCapital: decimal.NewFromInt(1000)})
	if !errors.Is(err, ErrNoEquity) {
		t.Errorf("expected ErrNoEquity, got %v", err)
	}

	_, err = Compute(Input{Equity: curve(map[int]float64{0: 1})})
	if !errors.Is(err, ErrInvalidCapital) {
		t.Errorf("expected ErrInvalidCapital, got %v", err)
	}
}

func TestCompute_ReturnsAndRatios(t *testing.T) {
	perf, err := Compute(Input{
		InitialCapital: decimal.NewFromInt(100),
		Equity:         curve(map[int]float64{0: 100, 1: 110, 2: 99, 3: 108.9}),
	})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	if !near(perf.TotalReturn, 0.089) {
		t.Errorf("expected total return 0.089, got %f", perf.TotalReturn)
	}
	// daily returns 0.1, -0.1, 0.1
	if !near(perf.Volatility, 0.115470054*math.Sqrt(252)) {
		t.Errorf("unexpected volatility %f", perf.Volatility)
	}
	if !near(perf.Sharpe, 4.582575695) {
		t.Errorf("unexpected sharpe %f", perf.Sharpe)
	}
	if !near(perf.Sortino, 9.165151390) {
		t.Errorf("unexpected sortino %f", perf.Sortino)
	}
	if !near(perf.MaxDrawdown, 0.1) {
		t.Errorf("expected max drawdown 0.1, got %f", perf.MaxDrawdown)
	}
	if perf.MaxDrawdownDays != 2 {
		t.Errorf("expected unrecovered drawdown of 2 days, got %d", perf.MaxDrawdownDays)
	}
	if !near(perf.Calmar, perf.CAGR/0.1) {
		t.Errorf("unexpected calmar %f", perf.Calmar)
	}
	if !perf.StartDate.Equal(d(0)) || !perf.EndDate.Equal(d(3)) {
		t.Errorf("unexpected range %v..%v", perf.StartDate, perf.EndDate)
	}
}

func TestComputeCAGR(t *testing.T) {
	tests := []struct {
		name    string
		initial float64
		final   float64
		days    int
		want    float64
	}{
		{"one year", 100, 110, 365, math.Pow(1.1, 365.25/365) - 1},
		{"two years", 100, 121, 730, math.Pow(1.21, 365.25/730) - 1},
		{"same day", 100, 150, 0, 0},
		{"wiped out", 100, 0, 30, -1},
	}
	for _, tt := range tests {
		if got := computeCAGR(tt.initial, tt.final, tt.days); !near(got, tt.want) {
			t.Errorf("%s: expected %f, got %f", tt.name, tt.want, got)
		}
	}
}

func TestComputeMaxDrawdown(t *testing.T) {
	equity := curve(map[int]float64{0: 100, 1: 120, 3: 90, 5: 100, 8: 130, 9: 117})

	dd, days := computeMaxDrawdown(equity)
	if !near(dd, 0.25) {
		t.Errorf("expected 0.25, got %f", dd)
	}
	// peak on day 1, recovered on day 8
	if days != 7 {
		t.Errorf("expected 7 days, got %d", days)
	}

	dd, days = computeMaxDrawdown(curve(map[int]float64{0: 100, 1: 101, 2: 102}))
	if dd != 0 || days != 0 {
		t.Errorf("rising curve should have no drawdown, got %f/%d", dd, days)
	}
}

func TestComputeTradeStats(t *testing.T) {
	open := &domain.RoundTripRecord{RoundTripID: "open", Status: domain.RoundTripStatusOpen, TotalCost: decimal.NewFromInt(1)}
	records := []*domain.RoundTripRecord{
		closedTrip("a", 100, 1000, 2, 2),
		closedTrip("b", -50, 500, 3, 3),
		open,
		closedTrip("c", -25, 250, 5, 1),
		closedTrip("d", 200, 1000, 6, 4),
	}

	stats := computeTradeStats(records)

	if stats.Count != 4 || stats.Wins != 2 || stats.Losses != 2 {
		t.Fatalf("unexpected counts %+v", stats)
	}
	checks := []struct {
		name      string
		got, want float64
	}{
		{"win rate", stats.WinRate, 0.5},
		{"avg win", stats.AvgWin, 150},
		{"avg loss", stats.AvgLoss, -37.5},
		{"profit factor", stats.ProfitFactor, 4},
		{"avg holding", stats.AvgHoldingDays, 2.5},
		{"return mean", stats.ReturnMean, 0.025},
		{"return median", stats.ReturnMedian, 0},
		{"return p10", stats.ReturnP10, -0.1},
		{"return p90", stats.ReturnP90, 0.17},
		{"return min", stats.ReturnMin, -0.1},
		{"return max", stats.ReturnMax, 0.2},
	}
	for _, c := range checks {
		if !near(c.got, c.want) {
			t.Errorf("%s: expected %f, got %f", c.name, c.want, c.got)
		}
	}
	if stats.MaxConsecutiveLosses != 2 {
		t.Errorf("expected 2 consecutive losses, got %d", stats.MaxConsecutiveLosses)
	}
}

func TestComputeTradeStats_NoLosses(t *testing.T) {
	stats := computeTradeStats([]*domain.RoundTripRecord{closedTrip("a", 10, 100, 1, 1)})
	if stats.ProfitFactor != 0 || stats.AvgLoss != 0 {
		t.Errorf("profit factor is undefined without losses, got %+v", stats)
	}
	if empty := computeTradeStats(nil); empty.Count != 0 {
		t.Errorf("expected zero stats, got %+v", empty)
	}
}

func TestComputeTradeStats_OrderIndependent(t *testing.T) {
	records := []*domain.RoundTripRecord{
		closedTrip("a", 10, 100, 1, 1),
		closedTrip("b", -5, 100, 2, 1),
		closedTrip("c", -5, 100, 2, 1),
		closedTrip("d", 20, 100, 4, 3),
		closedTrip("e", -1, 100, 5, 1),
	}
	want := computeTradeStats(records)

	rng := rand.New(rand.NewSource(7))
	for run := 0; run < 5; run++ {
		shuffled := make([]*domain.RoundTripRecord, len(records))
		copy(shuffled, records)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		if got := computeTradeStats(shuffled); got != want {
			t.Fatalf("run %d: stats depend on input order: %+v vs %+v", run, got, want)
		}
	}
}

func TestComputePercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5}
	tests := []struct {
		p    float64
		want float64
	}{
		{0, 1},
		{0.5, 3},
		{0.9, 4.6},
		{1, 5},
	}
	for _, tt := range tests {
		if got := computePercentile(sorted, tt.p); !near(got, tt.want) {
			t.Errorf("p=%v: expected %v, got %v", tt.p, tt.want, got)
		}
	}
	if computePercentile(nil, 0.5) != 0 {
		t.Error("empty input should yield 0")
	}
}
