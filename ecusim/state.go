package main

import (
	"math"

	"ecusim-ms/utils"
)

// ClampEvent records one out-of-range value proposed by a generator and the
// bound it was clipped to.
type ClampEvent struct {
	Signal    string
	Requested float64
	Applied   float64
}

// StateSnapshot is an immutable copy of the engine state handed to the
// encoder and the telemetry writer. The live state is never shared.
type StateSnapshot struct {
	Values  map[string]float64
	Clamped map[string]bool
}

// EngineState holds the live physical values for the catalog's signal set.
// Owned exclusively by the run loop; generators only see deltas in and a
// snapshot out.
type EngineState struct {
	catalog *utils.Catalog
	values  map[string]float64
	clamped map[string]bool
}

func NewEngineState(catalog *utils.Catalog) *EngineState {
	s := &EngineState{
		catalog: catalog,
		values:  catalog.Defaults(),
		clamped: make(map[string]bool, len(catalog.BySignal)),
	}
	for name := range s.values {
		s.clamped[name] = false
	}
	return s
}

// Apply stores each delta entry, clipping to the signal's physical bounds.
// The clamp flag for a signal is true exactly when this tick's proposed value
// fell outside its declared range (non-finite counts as out of range and is
// replaced by the signal default). Unknown signal names are rejected.
func (s *EngineState) Apply(delta map[string]float64) ([]ClampEvent, error) {
	var events []ClampEvent
	for name, proposed := range delta {
		sig, err := s.catalog.LookupSignal(name)
		if err != nil {
			return events, err
		}

		applied := proposed
		if math.IsNaN(applied) || math.IsInf(applied, 0) {
			applied = sig.Default
		}
		if applied < sig.Min {
			applied = sig.Min
		} else if applied > sig.Max {
			applied = sig.Max
		}

		clamped := applied != proposed || math.IsNaN(proposed)
		s.values[name] = applied
		s.clamped[name] = clamped
		if clamped {
			events = append(events, ClampEvent{Signal: name, Requested: proposed, Applied: applied})
		}
	}
	return events, nil
}

// Snapshot returns a deep copy of the current values and clamp flags.
func (s *EngineState) Snapshot() StateSnapshot {
	snap := StateSnapshot{
		Values:  make(map[string]float64, len(s.values)),
		Clamped: make(map[string]bool, len(s.clamped)),
	}
	for k, v := range s.values {
		snap.Values[k] = v
	}
	for k, v := range s.clamped {
		snap.Clamped[k] = v
	}
	return snap
}

// Value returns the current physical value of one signal.
func (s *EngineState) Value(name string) (float64, error) {
	if _, err := s.catalog.LookupSignal(name); err != nil {
		return 0, err
	}
	return s.values[name], nil
}
