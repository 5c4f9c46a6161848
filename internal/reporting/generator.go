package reporting

import (
	"context"
	"sort"
	"time"

	"equity-backtester/internal/metrics"
)

// Generator produces reports from persisted runs.
type Generator struct {
	loader *metrics.Loader
	now    func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(loader *metrics.Loader) *Generator {
	return &Generator{
		loader: loader,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate loads runID and builds its report.
func (g *Generator) Generate(ctx context.Context, runID string) (*Report, *metrics.Analysis, error) {
	a, err := g.loader.Load(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	return New(a, g.now()), a, nil
}

func sortExitReasons(rows []ExitReasonRow) {
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Reason < rows[j].Reason
	})
}
