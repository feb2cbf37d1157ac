package prune

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowrank-ml/lowrank/internal/backend/cpu"
	"github.com/lowrank-ml/lowrank/internal/nn"
	"github.com/lowrank-ml/lowrank/internal/tensor"
)

func newScheduler(t *testing.T, epochs []int, sparsity float64, totalEpochs int, scorerKind, scopeKind string) *Scheduler[testBackend] {
	t.Helper()
	schedule, err := NewSchedule(epochs, sparsity, totalEpochs)
	require.NoError(t, err)
	scorer, err := NewScorer[testBackend](scorerKind)
	require.NoError(t, err)
	scope, err := NewScope(scopeKind)
	require.NoError(t, err)
	scheduler, err := NewScheduler(schedule, scorer, scope, nil)
	require.NoError(t, err)
	return scheduler
}

func TestNewScheduler_RejectsNilCollaborators(t *testing.T) {
	schedule, err := NewSchedule([]int{1}, 0.5, 3)
	require.NoError(t, err)
	scorer := &MagnitudeScorer[testBackend]{}
	scope := &LocalScope{}

	var cfgErr *ScheduleConfigError

	_, err = NewScheduler[testBackend](nil, scorer, scope, nil)
	require.ErrorAs(t, err, &cfgErr)

	_, err = NewScheduler[testBackend](schedule, nil, scope, nil)
	require.ErrorAs(t, err, &cfgErr)

	_, err = NewScheduler(schedule, scorer, nil, nil)
	require.ErrorAs(t, err, &cfgErr)
}

func TestScheduler_RegisterLayer(t *testing.T) {
	s := newScheduler(t, []int{1}, 0.5, 3, ScorerMagnitude, ScopeLocal)
	layer := nn.NewFactorizedLinear(4, 4, 6, cpu.New())

	require.NoError(t, s.RegisterLayer("fc", layer))
	assert.Error(t, s.RegisterLayer("fc", layer), "duplicate name must be rejected")
	assert.Error(t, s.RegisterLayer("nil", nil))
	assert.Equal(t, []string{"fc"}, s.LayerNames())
}

// TestScheduler_TwoStepHalving drives a rank-10 layer through the schedule
// {epochs 1 and 2, sparsity 0.5, 3 total epochs}: ranks go 10 -> 8 -> 5.
func TestScheduler_TwoStepHalving(t *testing.T) {
	s := newScheduler(t, []int{1, 2}, 0.5, 3, ScorerMagnitude, ScopeLocal)
	layer := nn.NewFactorizedLinear(4, 4, 10, cpu.New())
	require.NoError(t, s.RegisterLayer("fc", layer))

	// Epoch 0 is not scheduled.
	report, err := s.OnEpochEnd(0, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, report)
	assert.Equal(t, 10, layer.Rank())
	assert.Equal(t, StateIdle, s.State())

	report, err = s.OnEpochEnd(1, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, 8, layer.Rank())
	assert.Equal(t, 8, report.PerLayerRank["fc"])
	assert.InDelta(t, 0.2, report.OverallSparsity, 1e-9)
	assert.Equal(t, StateIdle, s.State())

	report, err = s.OnEpochEnd(2, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, 5, layer.Rank())
	assert.InDelta(t, 0.5, report.OverallSparsity, 1e-9)
	assert.Equal(t, StateDone, s.State())
	assert.Empty(t, report.Warnings)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, report.RunID, s.RunID())
}

func TestScheduler_NoOpAfterDone(t *testing.T) {
	s := newScheduler(t, []int{0}, 0.5, 2, ScorerMagnitude, ScopeLocal)
	layer := nn.NewFactorizedLinear(4, 4, 4, cpu.New())
	require.NoError(t, s.RegisterLayer("fc", layer))

	report, err := s.OnEpochEnd(0, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, StateDone, s.State())
	assert.Equal(t, 2, layer.Rank())

	// Even a scheduled epoch is ignored once done.
	report, err = s.OnEpochEnd(0, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, report)
	assert.Equal(t, 2, layer.Rank())
}

func TestScheduler_MissingProviderAbortsUnchanged(t *testing.T) {
	s := newScheduler(t, []int{1}, 0.5, 3, ScorerSNIP, ScopeLocal)
	layer := nn.NewFactorizedLinear(4, 4, 6, cpu.New())
	require.NoError(t, s.RegisterLayer("fc", layer))

	_, err := s.OnEpochEnd(1, nil, nil)
	var missing *MissingSignalError
	require.ErrorAs(t, err, &missing)

	assert.Equal(t, 6, layer.Rank(), "aborted event must not mutate layers")
	assert.Equal(t, StateIdle, s.State())
}

func TestScheduler_ProviderErrorAbortsUnchanged(t *testing.T) {
	s := newScheduler(t, []int{1}, 0.5, 3, ScorerSNIP, ScopeLocal)
	layer := nn.NewFactorizedLinear(4, 4, 6, cpu.New())
	require.NoError(t, s.RegisterLayer("fc", layer))

	grads := func() (map[string]*tensor.RawTensor, error) {
		return nil, errors.New("backward pass failed")
	}

	_, err := s.OnEpochEnd(1, grads, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backward pass failed")
	assert.Equal(t, 6, layer.Rank())
	assert.Equal(t, StateIdle, s.State())
}

func TestScheduler_ScoringErrorAbortsAllLayers(t *testing.T) {
	s := newScheduler(t, []int{1}, 0.5, 3, ScorerSNIP, ScopeLocal)
	first := nn.NewFactorizedLinear(4, 4, 6, cpu.New())
	second := nn.NewFactorizedLinear(4, 4, 6, cpu.New())
	require.NoError(t, s.RegisterLayer("a", first))
	require.NoError(t, s.RegisterLayer("b", second))

	// Gradient present for "a" only: scoring "b" fails and the whole
	// event aborts, including the already-scored layer.
	grad, err := tensor.NewRaw(tensor.Shape{4, 4}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	grads := func() (map[string]*tensor.RawTensor, error) {
		return map[string]*tensor.RawTensor{"a": grad}, nil
	}

	_, err = s.OnEpochEnd(1, grads, nil)
	require.Error(t, err)
	assert.Equal(t, 6, first.Rank())
	assert.Equal(t, 6, second.Rank())
}

func TestScheduler_LateRegistrationJoinsLaterEvents(t *testing.T) {
	s := newScheduler(t, []int{1, 2}, 0.5, 4, ScorerMagnitude, ScopeLocal)
	first := nn.NewFactorizedLinear(4, 4, 10, cpu.New())
	require.NoError(t, s.RegisterLayer("early", first))

	_, err := s.OnEpochEnd(1, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 8, first.Rank())

	// A layer registered between events participates from the next event
	// with quotas against its own max rank.
	second := nn.NewFactorizedLinear(4, 4, 10, cpu.New())
	require.NoError(t, s.RegisterLayer("late", second))

	report, err := s.OnEpochEnd(2, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, 5, first.Rank())
	assert.Equal(t, 5, second.Rank(), "final event quota applies to the full max rank")
	assert.Equal(t, StateDone, s.State())
}

func TestScheduler_GlobalFloorWarningInReport(t *testing.T) {
	s := newScheduler(t, []int{1}, 1.0, 2, ScorerMagnitude, ScopeGlobal)
	layer := nn.NewFactorizedLinear(4, 4, 3, cpu.New())
	require.NoError(t, s.RegisterLayer("fc", layer))

	report, err := s.OnEpochEnd(1, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, 1, layer.Rank(), "floor holds the layer at rank 1")
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, "fc", report.Warnings[0].Layer)
	assert.Equal(t, 2, report.Warnings[0].Applied)
	assert.Equal(t, 3, report.Warnings[0].Requested)
}

func TestReport_Summary(t *testing.T) {
	r := &Report{
		Epoch:           7,
		OverallSparsity: 0.25,
		PerLayerRank:    map[string]int{"b": 3, "a": 5},
	}
	assert.Equal(t, "epoch 7 sparsity 0.250 a=5 b=3", r.Summary())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "pruning", StatePruning.String())
	assert.Equal(t, "done", StateDone.String())
}
