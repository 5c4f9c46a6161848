package domain

import "time"

// ExitDecision is the outcome of evaluating an exit rule against a position.
type ExitDecision struct {
	Fire    bool
	Portion float64 // fraction of remaining shares in (0, 1]; 1 closes
	Reason  string
}

// NoExit is the decision returned when a rule does not fire.
var NoExit = ExitDecision{}

// ExitRule decides, per open round trip and day, whether to exit and how much.
// Implementations are stateless; per-position state lives in ExitState.
type ExitRule interface {
	ShouldExit(rt *RoundTrip, date time.Time, price float64, state *ExitState) ExitDecision
	Config() ExitRuleConfig
}

// ExitState holds per-position exit bookkeeping for a single simulation.
// It maps round trip IDs to the running peak price used by trailing stops.
// A nil *ExitState is valid and remembers nothing.
type ExitState struct {
	peaks map[string]float64
}

// NewExitState creates an empty exit state.
func NewExitState() *ExitState {
	return &ExitState{peaks: make(map[string]float64)}
}

// Peak returns the tracked peak for a round trip.
func (s *ExitState) Peak(roundTripID string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	p, ok := s.peaks[roundTripID]
	return p, ok
}

// SetPeak records the peak for a round trip.
func (s *ExitState) SetPeak(roundTripID string, peak float64) {
	if s == nil {
		return
	}
	s.peaks[roundTripID] = peak
}

// Forget drops all state for a round trip. Called when it closes.
func (s *ExitState) Forget(roundTripID string) {
	if s == nil {
		return
	}
	delete(s.peaks, roundTripID)
}

// Len returns the number of tracked round trips.
func (s *ExitState) Len() int {
	if s == nil {
		return 0
	}
	return len(s.peaks)
}
