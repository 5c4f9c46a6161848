// Package strategy composes entry rules, exit rules and a position sizer into
// a serializable trading strategy.
package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"equity-backtester/internal/domain"
	"equity-backtester/internal/marketdata"
	"equity-backtester/internal/sizing"
)

// Strategy bundles entry rules, a default exit rule, a sizer and a universe.
// It holds no per-run state and may be shared between backtests.
type Strategy struct {
	Name        string
	Description string
	EntryRules  []Entry
	ExitRule    domain.ExitRule
	Sizer       sizing.PositionSizer
	Universe    []string
}

// New creates a validated Strategy. Duplicate tickers are dropped, keeping
// the first occurrence.
func New(name, description string, entries []Entry, exit domain.ExitRule, sizer sizing.PositionSizer, universe []string) (*Strategy, error) {
	s := &Strategy{
		Name:        name,
		Description: description,
		EntryRules:  append([]Entry(nil), entries...),
		ExitRule:    exit,
		Sizer:       sizer,
		Universe:    dedupe(universe),
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the strategy for configuration errors.
func (s *Strategy) Validate() error {
	switch {
	case s.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidConfig)
	case len(s.EntryRules) == 0:
		return fmt.Errorf("%w: at least one entry rule is required", ErrInvalidConfig)
	case s.ExitRule == nil:
		return fmt.Errorf("%w: exit rule is required", ErrInvalidConfig)
	case s.Sizer == nil:
		return fmt.Errorf("%w: position sizer is required", ErrInvalidConfig)
	case len(s.Universe) == 0:
		return fmt.Errorf("%w: universe is empty", ErrInvalidConfig)
	}
	for i, e := range s.EntryRules {
		if e == nil {
			return fmt.Errorf("%w: entry rule %d is nil", ErrInvalidConfig, i)
		}
	}
	for _, t := range s.Universe {
		if t == "" {
			return fmt.Errorf("%w: universe contains an empty ticker", ErrInvalidConfig)
		}
	}
	return nil
}

// GenerateSignals evaluates every entry rule for every ticker on date.
// Signals are ordered by priority, highest first. Equal priorities keep
// universe order, then entry rule order.
func (s *Strategy) GenerateSignals(ctx context.Context, date time.Time, data marketdata.Provider, view PortfolioView) ([]*domain.Signal, error) {
	var signals []*domain.Signal
	for _, ticker := range s.Universe {
		for _, rule := range s.EntryRules {
			sig, err := rule.ShouldEnter(ctx, ticker, date, data, view)
			if err != nil {
				return nil, fmt.Errorf("signals %s %s: %w", ticker, date.Format(domain.DateLayout), err)
			}
			if sig != nil {
				signals = append(signals, sig)
			}
		}
	}

	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].Priority > signals[j].Priority
	})
	return signals, nil
}

// Config returns the persisted form of the strategy.
func (s *Strategy) Config() domain.StrategyConfig {
	entries := make([]domain.EntryRuleConfig, len(s.EntryRules))
	for i, e := range s.EntryRules {
		entries[i] = e.Config()
	}
	return domain.StrategyConfig{
		Name:          s.Name,
		Description:   s.Description,
		EntryRules:    entries,
		ExitRules:     s.ExitRule.Config(),
		PositionSizer: s.Sizer.Config(),
		Universe:      append([]string(nil), s.Universe...),
	}
}

// MarshalJSON encodes the persisted form.
func (s *Strategy) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Config())
}

// UnmarshalJSON decodes and validates the persisted form.
func (s *Strategy) UnmarshalJSON(data []byte) error {
	var cfg domain.StrategyConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return err
	}
	built, err := FromConfig(cfg)
	if err != nil {
		return err
	}
	*s = *built
	return nil
}

// ParseYAML decodes a strategy from YAML.
func ParseYAML(data []byte) (*Strategy, error) {
	var cfg domain.StrategyConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode strategy yaml: %w", err)
	}
	return FromConfig(cfg)
}

// LoadYAML reads a strategy file.
func LoadYAML(path string) (*Strategy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read strategy: %w", err)
	}
	s, err := ParseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// SaveYAML writes the strategy to path.
func (s *Strategy) SaveYAML(path string) error {
	data, err := yaml.Marshal(s.Config())
	if err != nil {
		return fmt.Errorf("encode strategy yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write strategy: %w", err)
	}
	return nil
}

func dedupe(tickers []string) []string {
	seen := make(map[string]bool, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
