package prune

import "fmt"

// MissingSignalError reports that a scorer needed data the caller did not
// supply (a weight gradient for SNIP, a reference direction for Alignment).
// The pruning event that hit it is aborted with no layer mutated.
type MissingSignalError struct {
	Scorer string // scorer name, e.g. "snip"
	Signal string // what was missing, e.g. "weight gradient"
	Layer  string // layer the signal was missing for; empty if global
}

// Error implements the error interface.
func (e *MissingSignalError) Error() string {
	if e.Layer == "" {
		return fmt.Sprintf("%s scorer: missing %s", e.Scorer, e.Signal)
	}
	return fmt.Sprintf("%s scorer: missing %s for layer %q", e.Scorer, e.Signal, e.Layer)
}

// ScheduleConfigError reports invalid experiment configuration. It is raised
// at construction time only; a successfully built schedule or scheduler can
// no longer produce it.
type ScheduleConfigError struct {
	Field  string // offending field, e.g. "prune_epochs"
	Reason string
}

// Error implements the error interface.
func (e *ScheduleConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

// RankFloorWarning records that a pruning event wanted to remove more
// components from a layer than the rank-1 floor allows. It is an expected
// boundary condition near high target sparsity, not an error: the event
// proceeds with the capped removal and the warning is attached to the
// event's report.
type RankFloorWarning struct {
	Layer     string // layer that hit the floor
	Requested int    // components the scope wanted to remove this event
	Applied   int    // components actually removed after capping
	FloorRank int    // the rank the layer is held at (always >= 1)
}

// String returns a human-readable description of the warning.
func (w RankFloorWarning) String() string {
	return fmt.Sprintf("layer %q at rank floor: requested %d, removed %d, rank held at %d",
		w.Layer, w.Requested, w.Applied, w.FloorRank)
}
