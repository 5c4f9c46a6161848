package strategy

import (
	"context"
	"errors"
	"testing"
	"time"

	"equity-backtester/internal/domain"
	"equity-backtester/internal/marketdata"
	"equity-backtester/internal/sizing"
)

func pf(v float64) *float64 {
	return &v
}

func testProvider(t *testing.T) marketdata.Provider {
	t.Helper()
	d := day(2024, 3, 1)
	bars := []*domain.Bar{
		{Ticker: "AAA", Date: d, Open: 100, High: 106, Low: 99, Close: 105, Volume: 1000},
		{Ticker: "BBB", Date: d, Open: 50, High: 52, Low: 49, Close: 51, Volume: 1000},
		{Ticker: "CCC", Date: d, Open: 20, High: 20, Low: 18, Close: 18, Volume: 1000},
	}
	earnings := []*domain.EarningsRecord{
		{Ticker: "AAA", ReportDate: day(2024, 2, 1), EstimatedEPS: 1.0, ReportedEPS: 1.2},
		{Ticker: "BBB", ReportDate: day(2024, 2, 1), EstimatedEPS: 1.0, ReportedEPS: 1.01},
	}
	fundamentals := []*domain.Fundamentals{
		{Ticker: "AAA", TrailingPE: pf(25), Holders: []domain.Holder{{Name: "X", PctHeld: 0.4}, {Name: "Y", PctHeld: 0.3}}},
		{Ticker: "BBB", TrailingPE: pf(12)},
	}
	p, err := marketdata.NewInMemory(context.Background(), bars, earnings, fundamentals, marketdata.StoreProviderOptions{})
	if err != nil {
		t.Fatalf("NewInMemory failed: %v", err)
	}
	return p
}

// countingCalc returns a fixed value and counts calls.
type countingCalc struct {
	tag   string
	v     *float64
	calls int
}

func (c *countingCalc) Calculate(context.Context, string, time.Time, marketdata.Provider, PortfolioView) (*float64, error) {
	c.calls++
	return c.v, nil
}

func (c *countingCalc) Tag() string { return c.tag }

// failingCalc always returns a provider error.
type failingCalc struct{}

func (failingCalc) Calculate(context.Context, string, time.Time, marketdata.Provider, PortfolioView) (*float64, error) {
	return nil, errors.New("provider down")
}

func (failingCalc) Tag() string { return "failing" }

func TestConditions(t *testing.T) {
	between, err := NewBetween(1, 2)
	if err != nil {
		t.Fatalf("NewBetween failed: %v", err)
	}

	tests := []struct {
		name string
		cond Condition
		v    *float64
		want bool
	}{
		{"gt above", GreaterThan{Threshold: 1}, pf(1.5), true},
		{"gt equal", GreaterThan{Threshold: 1}, pf(1), false},
		{"gt nil", GreaterThan{Threshold: 1}, nil, false},
		{"lt below", LessThan{Threshold: 1}, pf(0.5), true},
		{"lt equal", LessThan{Threshold: 1}, pf(1), false},
		{"lt nil", LessThan{Threshold: 1}, nil, false},
		{"between low edge", between, pf(1), true},
		{"between high edge", between, pf(2), true},
		{"between outside", between, pf(2.01), false},
		{"between nil", between, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cond.Check(tt.v); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}

	if _, err := NewBetween(3, 2); !errors.Is(err, ErrInvalidParam) {
		t.Errorf("expected ErrInvalidParam, got %v", err)
	}
}

func TestCalculations(t *testing.T) {
	ctx := context.Background()
	data := testProvider(t)
	date := day(2024, 3, 1)

	tests := []struct {
		name   string
		calc   Calculation
		ticker string
		want   *float64
	}{
		{"day change", DayChange{}, "AAA", pf(0.05)},
		{"day change no bar", DayChange{}, "ZZZ", nil},
		{"surprise", EarningsSurprise{}, "AAA", pf(0.2)},
		{"surprise missing", EarningsSurprise{}, "CCC", nil},
		{"pe", PERatio{}, "BBB", pf(12)},
		{"pe missing", PERatio{}, "CCC", nil},
		{"ownership", InstitutionalOwnership{}, "AAA", pf(0.7)},
		{"ownership no holders", InstitutionalOwnership{}, "BBB", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.calc.Calculate(ctx, tt.ticker, date, data, nil)
			if err != nil {
				t.Fatalf("Calculate failed: %v", err)
			}
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("expected nil, got %v", *got)
			case tt.want != nil && got == nil:
				t.Errorf("expected %v, got nil", *tt.want)
			case tt.want != nil && !near(*got, *tt.want):
				t.Errorf("expected %v, got %v", *tt.want, *got)
			}
		})
	}
}

func near(a, b float64) bool {
	diff := a - b
	return diff < 1e-9 && diff > -1e-9
}

func TestEntryRule_ShouldEnter(t *testing.T) {
	ctx := context.Background()
	data := testProvider(t)
	date := day(2024, 3, 1)

	rule, err := NewEntryRule(DayChange{}, GreaterThan{Threshold: 0.03}, "gap_up", 2)
	if err != nil {
		t.Fatalf("NewEntryRule failed: %v", err)
	}

	sig, err := rule.ShouldEnter(ctx, "AAA", date, data, nil)
	if err != nil {
		t.Fatalf("ShouldEnter failed: %v", err)
	}
	if sig == nil {
		t.Fatal("expected signal for AAA")
	}
	if sig.Ticker != "AAA" || sig.SignalType != "gap_up" || sig.Priority != 2 || !sig.Date.Equal(date) {
		t.Errorf("unexpected signal %+v", sig)
	}
	if sig.Metadata[MetadataCalculation] != domain.CalculationDayChange {
		t.Errorf("unexpected calculation metadata %v", sig.Metadata[MetadataCalculation])
	}
	if v, ok := sig.Metadata[MetadataValue].(float64); !ok || !near(v, 0.05) {
		t.Errorf("unexpected value metadata %v", sig.Metadata[MetadataValue])
	}

	for _, ticker := range []string{"BBB", "ZZZ"} {
		sig, err := rule.ShouldEnter(ctx, ticker, date, data, nil)
		if err != nil || sig != nil {
			t.Errorf("%s: expected no signal, got %+v %v", ticker, sig, err)
		}
	}

	if _, err := NewEntryRule(nil, GreaterThan{}, "x", 1); !errors.Is(err, ErrMissingParam) {
		t.Errorf("expected ErrMissingParam, got %v", err)
	}
}

func TestCompositeEntryRule_ShortCircuit(t *testing.T) {
	ctx := context.Background()
	first := &countingCalc{tag: "first", v: pf(1)}
	second := &countingCalc{tag: "second", v: pf(5)}

	rule, err := NewCompositeEntryRule([]Pair{
		{Calculation: first, Condition: LessThan{Threshold: 0}},
		{Calculation: second, Condition: GreaterThan{Threshold: 0}},
	}, "combo", 1)
	if err != nil {
		t.Fatalf("NewCompositeEntryRule failed: %v", err)
	}

	sig, err := rule.ShouldEnter(ctx, "AAA", day(2024, 3, 1), nil, nil)
	if err != nil || sig != nil {
		t.Fatalf("expected no signal, got %+v %v", sig, err)
	}
	if first.calls != 1 || second.calls != 0 {
		t.Errorf("expected short circuit, got calls %d/%d", first.calls, second.calls)
	}
}

func TestCompositeEntryRule_Metadata(t *testing.T) {
	ctx := context.Background()
	data := testProvider(t)

	rule, err := NewCompositeEntryRule([]Pair{
		{Calculation: EarningsSurprise{}, Condition: GreaterThan{Threshold: 0.1}},
		{Calculation: PERatio{}, Condition: LessThan{Threshold: 30}},
	}, "beat", 1)
	if err != nil {
		t.Fatalf("NewCompositeEntryRule failed: %v", err)
	}

	sig, err := rule.ShouldEnter(ctx, "AAA", day(2024, 3, 1), data, nil)
	if err != nil || sig == nil {
		t.Fatalf("expected signal, got %+v %v", sig, err)
	}
	if len(sig.Metadata) != 2 {
		t.Errorf("expected 2 metadata values, got %v", sig.Metadata)
	}
	if v, _ := sig.Metadata[domain.CalculationPERatio].(float64); v != 25 {
		t.Errorf("expected PERatio 25, got %v", sig.Metadata[domain.CalculationPERatio])
	}

	if _, err := NewCompositeEntryRule(nil, "beat", 1); !errors.Is(err, ErrEmptyComposite) {
		t.Errorf("expected ErrEmptyComposite, got %v", err)
	}
}

func testStrategy(t *testing.T, universe []string, entries ...Entry) *Strategy {
	t.Helper()
	exit, _ := NewTimeBasedExit(5)
	sizer, _ := sizing.NewFixedDollarAmount(1000)
	s, err := New("test", "", entries, exit, sizer, universe)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func TestStrategy_GenerateSignals_PriorityOrder(t *testing.T) {
	ctx := context.Background()
	data := testProvider(t)
	date := day(2024, 3, 1)

	low, _ := NewEntryRule(DayChange{}, GreaterThan{Threshold: 0}, "up", 1)
	high, _ := NewEntryRule(PERatio{}, LessThan{Threshold: 100}, "cheap", 3)
	s := testStrategy(t, []string{"BBB", "AAA", "CCC", "AAA"}, low, high)

	if len(s.Universe) != 3 {
		t.Fatalf("expected deduplicated universe of 3, got %v", s.Universe)
	}

	var first []string
	for run := 0; run < 5; run++ {
		signals, err := s.GenerateSignals(ctx, date, data, nil)
		if err != nil {
			t.Fatalf("GenerateSignals failed: %v", err)
		}

		var got []string
		for _, sig := range signals {
			got = append(got, sig.Ticker+"/"+sig.SignalType)
		}
		want := []string{"BBB/cheap", "AAA/cheap", "BBB/up", "AAA/up"}
		if len(got) != len(want) {
			t.Fatalf("expected %v, got %v", want, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("expected %v, got %v", want, got)
			}
		}

		if run == 0 {
			first = got
		} else {
			for i := range first {
				if first[i] != got[i] {
					t.Fatalf("run %d: order changed", run)
				}
			}
		}
	}
}

func TestStrategy_GenerateSignals_Error(t *testing.T) {
	rule, _ := NewEntryRule(failingCalc{}, GreaterThan{}, "x", 1)
	s := testStrategy(t, []string{"AAA"}, rule)
	if _, err := s.GenerateSignals(context.Background(), day(2024, 3, 1), nil, nil); err == nil {
		t.Error("expected provider error")
	}
}

func TestStrategy_Validate(t *testing.T) {
	rule, _ := NewEntryRule(DayChange{}, GreaterThan{}, "x", 1)
	exit, _ := NewTimeBasedExit(5)
	sizer, _ := sizing.NewFixedShares(10)

	tests := []struct {
		name     string
		sname    string
		entries  []Entry
		exit     domain.ExitRule
		sizer    sizing.PositionSizer
		universe []string
	}{
		{"no name", "", []Entry{rule}, exit, sizer, []string{"A"}},
		{"no entries", "s", nil, exit, sizer, []string{"A"}},
		{"no exit", "s", []Entry{rule}, nil, sizer, []string{"A"}},
		{"no sizer", "s", []Entry{rule}, exit, nil, []string{"A"}},
		{"empty universe", "s", []Entry{rule}, exit, sizer, nil},
		{"blank ticker", "s", []Entry{rule}, exit, sizer, []string{""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.sname, "", tt.entries, tt.exit, tt.sizer, tt.universe); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}
