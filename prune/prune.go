// Copyright 2025 Lowrank ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package prune provides the public API for the rank-pruning engine.
//
// The engine gradually reduces the rank of FactorizedLinear layers during
// training. A Scheduler watches training epochs and, at each scheduled
// pruning event, scores rank-one components with the configured Scorer,
// selects victims with the configured Scope, and permanently deactivates
// them.
//
// Example:
//
//	import (
//	    "github.com/lowrank-ml/lowrank/backend/cpu"
//	    "github.com/lowrank-ml/lowrank/nn"
//	    "github.com/lowrank-ml/lowrank/prune"
//	)
//
//	func main() {
//	    backend := cpu.New()
//	    layer := nn.NewFactorizedLinear(64, 128, 32, backend)
//
//	    schedule, _ := prune.NewSchedule([]int{10, 20, 30}, 0.5, 50)
//	    scorer, _ := prune.NewScorer[*cpu.Backend](prune.ScorerMagnitude)
//	    scope, _ := prune.NewScope(prune.ScopeGlobal)
//
//	    scheduler, _ := prune.NewScheduler(schedule, scorer, scope, nil)
//	    scheduler.RegisterLayer("encoder", layer)
//
//	    for epoch := 0; epoch < 50; epoch++ {
//	        // ... train one epoch ...
//	        report, err := scheduler.OnEpochEnd(epoch, nil, nil)
//	        if err != nil {
//	            // event aborted, no layer was changed
//	        }
//	        if report != nil {
//	            // a pruning event ran this epoch
//	        }
//	    }
//	}
package prune

import (
	"log/slog"

	"github.com/lowrank-ml/lowrank/internal/prune"
	"github.com/lowrank-ml/lowrank/internal/tensor"
)

// Scoring

// ComponentScore is one component's importance within a layer.
type ComponentScore = prune.ComponentScore

// Signals carries the per-event training signals scorers may consume.
type Signals = prune.Signals

// Needs declares which signals a scorer requires.
type Needs = prune.Needs

// Scorer assigns importance scores to the active components of a layer.
type Scorer[B tensor.Backend] = prune.Scorer[B]

// Scorer kinds accepted by NewScorer.
const (
	ScorerMagnitude = prune.ScorerMagnitude
	ScorerSNIP      = prune.ScorerSNIP
	ScorerAlignment = prune.ScorerAlignment
)

// NewScorer builds a scorer by kind name.
func NewScorer[B tensor.Backend](kind string) (Scorer[B], error) {
	return prune.NewScorer[B](kind)
}

// MagnitudeScorer scores components by the product of their factor norms.
type MagnitudeScorer[B tensor.Backend] = prune.MagnitudeScorer[B]

// SNIPScorer scores components by first-order loss sensitivity.
type SNIPScorer[B tensor.Backend] = prune.SNIPScorer[B]

// AlignmentScorer scores components by alignment with a reference direction.
type AlignmentScorer[B tensor.Backend] = prune.AlignmentScorer[B]

// Selection scope

// LayerState is the rank bookkeeping a Scope sees for one layer.
type LayerState = prune.LayerState

// EventContext describes one pruning event to a Scope.
type EventContext = prune.EventContext

// Selection maps layer names to the component indices chosen for removal.
type Selection = prune.Selection

// Scope decides which scored components are removed at an event.
type Scope = prune.Scope

// Scope kinds accepted by NewScope.
const (
	ScopeLocal  = prune.ScopeLocal
	ScopeGlobal = prune.ScopeGlobal
)

// NewScope builds a selection scope by kind name.
func NewScope(kind string) (Scope, error) {
	return prune.NewScope(kind)
}

// Scheduling

// Schedule is a validated pruning timetable.
type Schedule = prune.Schedule

// NewSchedule validates and builds a pruning schedule.
//
// pruneEpochs is deduplicated and sorted; targetSparsity must be in (0, 1]
// and every epoch must fall within [0, totalEpochs].
func NewSchedule(pruneEpochs []int, targetSparsity float64, totalEpochs int) (*Schedule, error) {
	return prune.NewSchedule(pruneEpochs, targetSparsity, totalEpochs)
}

// Scheduler drives pruning across training epochs.
type Scheduler[B tensor.Backend] = prune.Scheduler[B]

// NewScheduler builds a pruning scheduler. A nil logger falls back to
// slog.Default().
func NewScheduler[B tensor.Backend](schedule *Schedule, scorer Scorer[B], scope Scope, logger *slog.Logger) (*Scheduler[B], error) {
	return prune.NewScheduler(schedule, scorer, scope, logger)
}

// State is the scheduler's position in its lifecycle.
type State = prune.State

// Scheduler states.
const (
	StateIdle    State = prune.StateIdle
	StatePruning State = prune.StatePruning
	StateDone    State = prune.StateDone
)

// GradientProvider supplies per-layer weight gradients for SNIP scoring.
type GradientProvider = prune.GradientProvider

// ReferenceProvider supplies per-layer reference directions for alignment
// scoring.
type ReferenceProvider = prune.ReferenceProvider

// Report is the structured record emitted after each pruning event.
type Report = prune.Report

// Errors

// MissingSignalError reports a scorer invoked without a signal it needs.
type MissingSignalError = prune.MissingSignalError

// ScheduleConfigError reports invalid pruning configuration.
type ScheduleConfigError = prune.ScheduleConfigError

// RankFloorWarning records a selection capped by the rank floor of one.
type RankFloorWarning = prune.RankFloorWarning
