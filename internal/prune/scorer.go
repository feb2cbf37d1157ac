// Package prune implements the rank-pruning engine: importance scoring of
// rank-1 components, local and global pruning scopes, and the epoch-driven
// scheduler that ties them together.
//
// The engine sits behind two boundaries. Model construction registers
// FactorizedLinear layers with a Scheduler; the training loop calls
// Scheduler.OnEpochEnd once per epoch. Everything else (the training loop
// itself, datasets, experiment tracking) stays outside.
package prune

import (
	"github.com/lowrank-ml/lowrank/internal/nn"
	"github.com/lowrank-ml/lowrank/internal/tensor"
)

// ComponentScore is the importance of one rank-1 component of one layer.
// Scores are produced fresh at every pruning event and never persisted
// across events: the underlying weights change between events, so scores
// are recomputed, not accumulated.
type ComponentScore struct {
	Layer string  // registered layer name
	Index int     // component index within the layer, in [0, MaxRank)
	Score float64 // higher means more important
}

// Signals carries the externally supplied tensors a scorer may need.
// The Scheduler fills it from the caller's providers; scorers never fetch
// data themselves.
type Signals struct {
	// WeightGrads maps layer name to dL/dW [out_features, in_features],
	// computed from exactly one batch by the caller. Required by SNIP.
	WeightGrads map[string]*tensor.RawTensor

	// References maps layer name to a direction in the layer's output space
	// [out_features], e.g. the mean gradient of the layer's output.
	// Required by Alignment.
	References map[string]*tensor.RawTensor
}

// Needs declares which signals a scorer consumes. The Scheduler invokes a
// provider only when the configured scorer needs it; the Magnitude scorer
// needs neither.
type Needs struct {
	Gradients bool // per-layer weight gradients from one batch
	Reference bool // per-layer output-space reference direction
}

// Scorer computes importance scores for a layer's currently active rank-1
// components. Inactive components are never scored. The returned order is
// not semantically meaningful; the scope resolver re-sorts.
//
// The variant set is closed: Magnitude, SNIP, Alignment. Scorers are pure
// with respect to layers (read-only); only the Scheduler mutates them.
type Scorer[B tensor.Backend] interface {
	// Name returns the scorer's configuration name ("magnitude", "snip",
	// "alignment").
	Name() string

	// Needs reports which external signals Score requires.
	Needs() Needs

	// Score returns one ComponentScore per active component of the layer.
	Score(name string, layer *nn.FactorizedLinear[B], sig *Signals) ([]ComponentScore, error)
}

// Scorer configuration names.
const (
	ScorerMagnitude = "magnitude"
	ScorerSNIP      = "snip"
	ScorerAlignment = "alignment"
)

// NewScorer builds a scorer from its configuration name.
// Returns a ScheduleConfigError for unknown names.
func NewScorer[B tensor.Backend](kind string) (Scorer[B], error) {
	switch kind {
	case ScorerMagnitude:
		return &MagnitudeScorer[B]{}, nil
	case ScorerSNIP:
		return &SNIPScorer[B]{}, nil
	case ScorerAlignment:
		return &AlignmentScorer[B]{}, nil
	default:
		return nil, &ScheduleConfigError{
			Field:  "pruner",
			Reason: "unknown pruner " + kind + " (want magnitude, snip or alignment)",
		}
	}
}
