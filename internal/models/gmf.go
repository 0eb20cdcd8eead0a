package models

import (
	"errors"
	"math"
)

// GroundMotionField is one site's ground-motion realization over a stochastic
// event set. EventIDs, when present, names the event-set index of each IML;
// otherwise the array position is the event index.
type GroundMotionField struct {
	IMLs     []float64 `json:"imls" yaml:"imls"`
	EventIDs []int     `json:"event_ids,omitempty" yaml:"event_ids,omitempty"`
	TSES     float64   `json:"tses" yaml:"tses"`
	TimeSpan float64   `json:"time_span" yaml:"time_span"`
}

// EventID returns the event-set index of the i-th ground-motion value.
func (g GroundMotionField) EventID(i int) int {
	if len(g.EventIDs) == 0 {
		return i
	}
	return g.EventIDs[i]
}

// Validate checks structural constraints. Duration checks are left to the curve
// builder so they surface as duration errors.
func (g *GroundMotionField) Validate() error {
	if len(g.EventIDs) > 0 && len(g.EventIDs) != len(g.IMLs) {
		return errors.New("event ids must match ground motion values in length")
	}
	seen := make(map[int]bool, len(g.EventIDs))
	for _, id := range g.EventIDs {
		if id < 0 {
			return errors.New("event ids must not be negative")
		}
		if seen[id] {
			return errors.New("event ids must be unique")
		}
		seen[id] = true
	}
	for _, v := range g.IMLs {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("ground motion values must be finite and non-negative")
		}
	}
	return nil
}
