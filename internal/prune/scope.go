package prune

import (
	"math"
	"sort"
)

// LayerState is the rank bookkeeping a scope needs about one layer.
type LayerState struct {
	MaxRank int // original number of components
	Rank    int // currently active components
}

// EventContext describes one scheduled pruning event to a scope.
type EventContext struct {
	Event          int     // 1-based index of this event in the schedule
	TotalEvents    int     // total number of scheduled events
	TargetSparsity float64 // fraction of original total rank to remove by the end
	Layers         map[string]LayerState
}

// Selection maps layer name to the component indices to deactivate.
type Selection map[string][]int

// Scope turns per-layer component scores into a pruning decision, subject
// to the schedule's cumulative sparsity target. The variant set is closed:
// Local and Global.
//
// Both variants share the same rounding rule: the cumulative removal quota
// after event j of m is floor(sparsity · j/m · r) against the ORIGINAL rank
// budget r (a layer's MaxRank for Local, the pooled sum of MaxRanks for
// Global). Each event removes the difference between its quota and what is
// already removed, so flooring losses from earlier events land on the final
// scheduled event and the cumulative target is met exactly there.
//
// Neither variant ever reduces a layer below rank 1. A capped removal is
// reported as a RankFloorWarning, not an error.
type Scope interface {
	// Name returns the scope's configuration name ("local" or "global").
	Name() string

	// Select decides which components to deactivate this event.
	// Scores must contain an entry per registered layer, covering exactly
	// that layer's active components.
	Select(ctx EventContext, scores map[string][]ComponentScore) (Selection, []RankFloorWarning)
}

// Scope configuration names.
const (
	ScopeLocal  = "local"
	ScopeGlobal = "global"
)

// NewScope builds a scope from its configuration name.
// Returns a ScheduleConfigError for unknown names.
func NewScope(kind string) (Scope, error) {
	switch kind {
	case ScopeLocal:
		return &LocalScope{}, nil
	case ScopeGlobal:
		return &GlobalScope{}, nil
	default:
		return nil, &ScheduleConfigError{
			Field:  "pruning_scope",
			Reason: "unknown scope " + kind + " (want local or global)",
		}
	}
}

// cumulativeQuota is the total number of components that should be removed
// from a budget of r original components once event j of m has completed.
func cumulativeQuota(sparsity float64, event, totalEvents, r int) int {
	return int(math.Floor(sparsity * float64(event) / float64(totalEvents) * float64(r)))
}

// sortByScore orders scores ascending by score, breaking ties by lower
// component index first so selection is deterministic.
func sortByScore(scores []ComponentScore) []ComponentScore {
	sorted := append([]ComponentScore(nil), scores...)
	sort.Slice(sorted, func(a, b int) bool {
		if sorted[a].Score != sorted[b].Score {
			return sorted[a].Score < sorted[b].Score
		}
		if sorted[a].Layer != sorted[b].Layer {
			return sorted[a].Layer < sorted[b].Layer
		}
		return sorted[a].Index < sorted[b].Index
	})
	return sorted
}

// LocalScope prunes each layer independently: every layer shaves its own
// lowest-scoring components to reach its own cumulative quota.
type LocalScope struct{}

// Name returns "local".
func (s *LocalScope) Name() string {
	return ScopeLocal
}

// Select picks, per layer, the lowest-scoring active components needed to
// reach that layer's cumulative quota for this event.
func (s *LocalScope) Select(ctx EventContext, scores map[string][]ComponentScore) (Selection, []RankFloorWarning) {
	selection := make(Selection)
	var warnings []RankFloorWarning

	for _, name := range sortedLayerNames(ctx.Layers) {
		st := ctx.Layers[name]

		quota := cumulativeQuota(ctx.TargetSparsity, ctx.Event, ctx.TotalEvents, st.MaxRank)
		removedSoFar := st.MaxRank - st.Rank
		k := quota - removedSoFar
		if k <= 0 {
			continue
		}

		if k > st.Rank-1 {
			warnings = append(warnings, RankFloorWarning{
				Layer:     name,
				Requested: k,
				Applied:   st.Rank - 1,
				FloorRank: 1,
			})
			k = st.Rank - 1
		}
		if k == 0 {
			continue
		}

		sorted := sortByScore(scores[name])
		indices := make([]int, k)
		for i := 0; i < k; i++ {
			indices[i] = sorted[i].Index
		}
		sort.Ints(indices)
		selection[name] = indices
	}

	return selection, warnings
}

// GlobalScope pools scores across all layers and removes the globally
// lowest-scoring components, wherever they live, until the pooled cumulative
// quota for this event is met. A layer at its rank floor is skipped and
// selection continues down the pooled ordering, so the event still reaches
// its quota while other layers have capacity.
type GlobalScope struct{}

// Name returns "global".
func (s *GlobalScope) Name() string {
	return ScopeGlobal
}

// Select picks the globally lowest-scoring components up to the pooled quota.
func (s *GlobalScope) Select(ctx EventContext, scores map[string][]ComponentScore) (Selection, []RankFloorWarning) {
	totalMax := 0
	totalRemoved := 0
	capacity := make(map[string]int, len(ctx.Layers)) // removable before hitting the floor
	for name, st := range ctx.Layers {
		totalMax += st.MaxRank
		totalRemoved += st.MaxRank - st.Rank
		capacity[name] = st.Rank - 1
	}

	quota := cumulativeQuota(ctx.TargetSparsity, ctx.Event, ctx.TotalEvents, totalMax)
	want := quota - totalRemoved
	if want <= 0 {
		return make(Selection), nil
	}

	pool := make([]ComponentScore, 0, totalMax)
	for _, layerScores := range scores {
		pool = append(pool, layerScores...)
	}
	pool = sortByScore(pool)

	selection := make(Selection)
	skipped := make(map[string]int)
	taken := 0

	for _, cs := range pool {
		if taken == want {
			break
		}
		if len(selection[cs.Layer]) >= capacity[cs.Layer] {
			skipped[cs.Layer]++
			continue
		}
		selection[cs.Layer] = append(selection[cs.Layer], cs.Index)
		taken++
	}

	var warnings []RankFloorWarning
	for _, name := range sortedLayerNames(ctx.Layers) {
		if n, hit := skipped[name]; hit {
			warnings = append(warnings, RankFloorWarning{
				Layer:     name,
				Requested: len(selection[name]) + n,
				Applied:   len(selection[name]),
				FloorRank: 1,
			})
		}
	}

	for name := range selection {
		sort.Ints(selection[name])
	}

	return selection, warnings
}

// sortedLayerNames returns layer names in ascending order for deterministic
// iteration.
func sortedLayerNames(layers map[string]LayerState) []string {
	names := make([]string, 0, len(layers))
	for name := range layers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
