package prune

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/lowrank-ml/lowrank/internal/nn"
	"github.com/lowrank-ml/lowrank/internal/tensor"
)

// State is the scheduler's position in its lifecycle.
type State int

// Scheduler states.
const (
	StateIdle State = iota // waiting for the next scheduled epoch
	StatePruning           // a pruning event is executing
	StateDone              // last scheduled event completed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePruning:
		return "pruning"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// GradientProvider supplies per-layer weight gradients dL/dW computed from
// one representative batch. It is invoked at most once per pruning event,
// and only when the configured scorer needs gradients.
type GradientProvider func() (map[string]*tensor.RawTensor, error)

// ReferenceProvider supplies per-layer reference directions in output space.
// It is invoked at most once per pruning event, and only when the configured
// scorer needs a reference.
type ReferenceProvider func() (map[string]*tensor.RawTensor, error)

// Report is the structured record emitted after each pruning event for the
// external experiment-tracking collaborator. The engine performs no
// persistence itself.
type Report struct {
	RunID           string               // stable id of this scheduler's run
	Epoch           int                  // epoch the event fired at
	PerLayerRank    map[string]int       // rank of every registered layer after the event
	OverallSparsity float64              // removed components / original total rank
	Warnings        []RankFloorWarning   // rank-floor cappings hit during the event
}

// Scheduler drives pruning across training epochs.
//
// It owns the Schedule and holds non-owning references to the registered
// FactorizedLinear layers; it does not own the model or its optimizer state.
// The whole engine is single-threaded and synchronous, driven entirely by
// the host training loop's OnEpochEnd calls.
//
// A pruning event is atomic with respect to the layers it mutates: every
// layer is scored before any Deactivate call is issued, and a scoring error
// aborts the event with no layer changed.
type Scheduler[B tensor.Backend] struct {
	schedule *Schedule
	scorer   Scorer[B]
	scope    Scope

	layers map[string]*nn.FactorizedLinear[B]
	names  []string // registration order

	state State
	runID string
	log   *slog.Logger
}

// NewScheduler builds a pruning scheduler.
//
// The schedule must already be validated via NewSchedule; scorer and scope
// must be non-nil. A nil logger falls back to slog.Default().
func NewScheduler[B tensor.Backend](schedule *Schedule, scorer Scorer[B], scope Scope, logger *slog.Logger) (*Scheduler[B], error) {
	if schedule == nil {
		return nil, &ScheduleConfigError{Field: "schedule", Reason: "schedule is required"}
	}
	if scorer == nil {
		return nil, &ScheduleConfigError{Field: "pruner", Reason: "scorer is required"}
	}
	if scope == nil {
		return nil, &ScheduleConfigError{Field: "pruning_scope", Reason: "scope is required"}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler[B]{
		schedule: schedule,
		scorer:   scorer,
		scope:    scope,
		layers:   make(map[string]*nn.FactorizedLinear[B]),
		state:    StateIdle,
		runID:    uuid.NewString(),
		log:      logger,
	}, nil
}

// RegisterLayer adds a prunable layer under a unique name. Called once per
// layer by model-construction code.
//
// Registration after the first pruning event still succeeds; the new layer
// simply participates in subsequent events only, with quotas computed
// against its own maximum rank.
func (s *Scheduler[B]) RegisterLayer(name string, layer *nn.FactorizedLinear[B]) error {
	if layer == nil {
		return fmt.Errorf("register layer %q: layer is nil", name)
	}
	if _, dup := s.layers[name]; dup {
		return fmt.Errorf("register layer %q: name already registered", name)
	}
	s.layers[name] = layer
	s.names = append(s.names, name)
	return nil
}

// State returns the scheduler's current lifecycle state.
func (s *Scheduler[B]) State() State {
	return s.state
}

// RunID returns the unique id stamped on this scheduler's reports.
func (s *Scheduler[B]) RunID() string {
	return s.runID
}

// Schedule returns the scheduler's pruning schedule.
func (s *Scheduler[B]) Schedule() *Schedule {
	return s.schedule
}

// OnEpochEnd is called once per epoch by the external training loop.
//
// If epoch is not a scheduled prune epoch, or the scheduler is Done, this is
// a no-op returning (nil, nil). Otherwise a pruning event runs: every
// registered layer is scored, the scope selects components, and the
// selections are applied. The providers are only invoked if the configured
// scorer needs them (the Magnitude scorer needs neither).
//
// Any scoring error aborts the whole event before any layer is mutated and
// is returned to the caller; there are no retries.
func (s *Scheduler[B]) OnEpochEnd(epoch int, grads GradientProvider, refs ReferenceProvider) (*Report, error) {
	if s.state == StateDone {
		return nil, nil
	}
	event, scheduled := s.schedule.EventIndex(epoch)
	if !scheduled {
		return nil, nil
	}

	s.state = StatePruning

	report, err := s.runEvent(epoch, event, grads, refs)
	if err != nil {
		s.state = StateIdle
		return nil, err
	}

	if event == s.schedule.NumEvents() {
		s.state = StateDone
	} else {
		s.state = StateIdle
	}

	return report, nil
}

// runEvent executes one scoring+selection+deactivation cycle.
func (s *Scheduler[B]) runEvent(epoch, event int, grads GradientProvider, refs ReferenceProvider) (*Report, error) {
	sig, err := s.collectSignals(grads, refs)
	if err != nil {
		return nil, err
	}

	// Score every layer before touching any of them.
	scores := make(map[string][]ComponentScore, len(s.layers))
	for _, name := range s.names {
		layerScores, err := s.scorer.Score(name, s.layers[name], sig)
		if err != nil {
			return nil, fmt.Errorf("scoring layer %q: %w", name, err)
		}
		if len(layerScores) != s.layers[name].Rank() {
			return nil, fmt.Errorf("scoring layer %q: got %d scores for %d active components",
				name, len(layerScores), s.layers[name].Rank())
		}
		scores[name] = layerScores
	}

	ctx := EventContext{
		Event:          event,
		TotalEvents:    s.schedule.NumEvents(),
		TargetSparsity: s.schedule.TargetSparsity(),
		Layers:         s.layerStates(),
	}
	selection, warnings := s.scope.Select(ctx, scores)

	for _, name := range s.names {
		indices := selection[name]
		if len(indices) == 0 {
			continue
		}
		if err := s.layers[name].Deactivate(indices); err != nil {
			// Selection is derived from fresh scores over active components,
			// so a deactivation failure means a bug in the scope.
			return nil, fmt.Errorf("applying selection to layer %q: %w", name, err)
		}
		s.log.Info("pruned layer",
			"run_id", s.runID,
			"epoch", epoch,
			"layer", name,
			"removed", len(indices),
			"rank", s.layers[name].Rank(),
		)
	}

	for _, w := range warnings {
		s.log.Warn("rank floor reached",
			"run_id", s.runID,
			"epoch", epoch,
			"layer", w.Layer,
			"requested", w.Requested,
			"applied", w.Applied,
		)
	}

	return s.buildReport(epoch, warnings), nil
}

// collectSignals invokes the providers the configured scorer needs.
func (s *Scheduler[B]) collectSignals(grads GradientProvider, refs ReferenceProvider) (*Signals, error) {
	needs := s.scorer.Needs()
	sig := &Signals{}

	if needs.Gradients {
		if grads == nil {
			return nil, &MissingSignalError{Scorer: s.scorer.Name(), Signal: "gradient provider"}
		}
		m, err := grads()
		if err != nil {
			return nil, fmt.Errorf("gradient provider: %w", err)
		}
		sig.WeightGrads = m
	}

	if needs.Reference {
		if refs == nil {
			return nil, &MissingSignalError{Scorer: s.scorer.Name(), Signal: "reference provider"}
		}
		m, err := refs()
		if err != nil {
			return nil, fmt.Errorf("reference provider: %w", err)
		}
		sig.References = m
	}

	return sig, nil
}

// layerStates snapshots rank bookkeeping for the scope.
func (s *Scheduler[B]) layerStates() map[string]LayerState {
	states := make(map[string]LayerState, len(s.layers))
	for name, layer := range s.layers {
		states[name] = LayerState{MaxRank: layer.MaxRank(), Rank: layer.Rank()}
	}
	return states
}

// buildReport assembles the post-event record.
func (s *Scheduler[B]) buildReport(epoch int, warnings []RankFloorWarning) *Report {
	perLayer := make(map[string]int, len(s.layers))
	totalMax := 0
	totalRank := 0
	for name, layer := range s.layers {
		perLayer[name] = layer.Rank()
		totalMax += layer.MaxRank()
		totalRank += layer.Rank()
	}

	overall := 0.0
	if totalMax > 0 {
		overall = float64(totalMax-totalRank) / float64(totalMax)
	}

	return &Report{
		RunID:           s.runID,
		Epoch:           epoch,
		PerLayerRank:    perLayer,
		OverallSparsity: overall,
		Warnings:        append([]RankFloorWarning(nil), warnings...),
	}
}

// LayerNames returns the registered layer names in registration order.
func (s *Scheduler[B]) LayerNames() []string {
	return append([]string(nil), s.names...)
}

// Layers returns the registered layers keyed by name. The map is a copy;
// the layers themselves are shared.
func (s *Scheduler[B]) Layers() map[string]*nn.FactorizedLinear[B] {
	layers := make(map[string]*nn.FactorizedLinear[B], len(s.layers))
	for name, layer := range s.layers {
		layers[name] = layer
	}
	return layers
}

// sortedReportLayers is a helper for stable textual rendering of reports.
func sortedReportLayers(r *Report) []string {
	names := make([]string, 0, len(r.PerLayerRank))
	for name := range r.PerLayerRank {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Summary renders the report as a single line for logs.
func (r *Report) Summary() string {
	out := fmt.Sprintf("epoch %d sparsity %.3f", r.Epoch, r.OverallSparsity)
	for _, name := range sortedReportLayers(r) {
		out += fmt.Sprintf(" %s=%d", name, r.PerLayerRank[name])
	}
	return out
}
