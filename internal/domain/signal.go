package domain

import "time"

// MetadataExitRule is the signal metadata key carrying a per-signal exit rule override.
const MetadataExitRule = "exit_rule"

// Signal is a same-day recommendation to enter a ticker.
// Not persisted; consumed on the day it is generated.
type Signal struct {
	Ticker     string
	Date       time.Time
	SignalType string
	Metadata   map[string]any
	Priority   float64  // higher is preferred
	ExitRule   ExitRule // optional override of the strategy exit rule
}

// ExitRuleOverride returns the per-signal exit rule, if any.
// The typed field wins over the metadata entry.
func (s *Signal) ExitRuleOverride() ExitRule {
	if s.ExitRule != nil {
		return s.ExitRule
	}
	if s.Metadata == nil {
		return nil
	}
	if r, ok := s.Metadata[MetadataExitRule].(ExitRule); ok {
		return r
	}
	return nil
}
