package prune

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowrank-ml/lowrank/internal/backend/cpu"
	"github.com/lowrank-ml/lowrank/internal/nn"
	"github.com/lowrank-ml/lowrank/internal/tensor"
)

type testBackend = *cpu.CPUBackend

// newTestLayer builds a 2-in, 2-out, rank-2 layer with hand-picked factors:
//
//	component 0: L[:,0] = (3, 4)  R[0,:] = (1, 0)   norms 5 and 1
//	component 1: L[:,1] = (0, 1)  R[1,:] = (0, 2)   norms 1 and 2
func newTestLayer(t *testing.T) *nn.FactorizedLinear[testBackend] {
	t.Helper()
	layer := nn.NewFactorizedLinear(2, 2, 2, cpu.New())

	// left is [out=2, maxRank=2] row-major
	copy(layer.Left().Tensor().Data(), []float32{3, 0, 4, 1})
	// right is [maxRank=2, in=2] row-major
	copy(layer.Right().Tensor().Data(), []float32{1, 0, 0, 2})

	return layer
}

func TestMagnitudeScorer(t *testing.T) {
	layer := newTestLayer(t)
	scorer := &MagnitudeScorer[testBackend]{}

	assert.Equal(t, ScorerMagnitude, scorer.Name())
	assert.Equal(t, Needs{}, scorer.Needs())

	scores, err := scorer.Score("fc", layer, nil)
	require.NoError(t, err)
	require.Len(t, scores, 2)

	// score_i = ||L[:,i]|| * ||R[i,:]||
	assert.Equal(t, 0, scores[0].Index)
	assert.InDelta(t, 5.0, scores[0].Score, 1e-6)
	assert.Equal(t, 1, scores[1].Index)
	assert.InDelta(t, 2.0, scores[1].Score, 1e-6)
	assert.Equal(t, "fc", scores[0].Layer)
}

func TestMagnitudeScorer_SkipsInactiveComponents(t *testing.T) {
	layer := newTestLayer(t)
	require.NoError(t, layer.Deactivate([]int{0}))

	scorer := &MagnitudeScorer[testBackend]{}
	scores, err := scorer.Score("fc", layer, nil)
	require.NoError(t, err)

	require.Len(t, scores, 1)
	assert.Equal(t, 1, scores[0].Index)
}

func TestSNIPScorer(t *testing.T) {
	layer := newTestLayer(t)
	scorer := &SNIPScorer[testBackend]{}

	assert.Equal(t, Needs{Gradients: true}, scorer.Needs())

	// G = [[1, 0], [0, 1]]
	grad, err := tensor.NewRaw(tensor.Shape{2, 2}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	copy(grad.AsFloat32(), []float32{1, 0, 0, 1})

	sig := &Signals{WeightGrads: map[string]*tensor.RawTensor{"fc": grad}}
	scores, err := scorer.Score("fc", layer, sig)
	require.NoError(t, err)
	require.Len(t, scores, 2)

	// score_0 = |l0^T G r0| = |(3,4) . (1,0)| = 3
	// score_1 = |l1^T G r1| = |(0,1) . (0,2)| = 2
	assert.InDelta(t, 3.0, scores[0].Score, 1e-6)
	assert.InDelta(t, 2.0, scores[1].Score, 1e-6)
}

func TestSNIPScorer_MissingGradient(t *testing.T) {
	layer := newTestLayer(t)
	scorer := &SNIPScorer[testBackend]{}

	_, err := scorer.Score("fc", layer, nil)
	var missing *MissingSignalError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, ScorerSNIP, missing.Scorer)

	_, err = scorer.Score("fc", layer, &Signals{WeightGrads: map[string]*tensor.RawTensor{}})
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "fc", missing.Layer)
}

func TestSNIPScorer_GradientShapeMismatch(t *testing.T) {
	layer := newTestLayer(t)
	scorer := &SNIPScorer[testBackend]{}

	grad, err := tensor.NewRaw(tensor.Shape{3, 3}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)

	_, err = scorer.Score("fc", layer, &Signals{WeightGrads: map[string]*tensor.RawTensor{"fc": grad}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shape")
}

func TestAlignmentScorer(t *testing.T) {
	layer := newTestLayer(t)
	scorer := &AlignmentScorer[testBackend]{}

	assert.Equal(t, Needs{Reference: true}, scorer.Needs())

	// Reference along component 1's output direction (0, 1).
	ref, err := tensor.NewRaw(tensor.Shape{2}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	copy(ref.AsFloat32(), []float32{0, 1})

	sig := &Signals{References: map[string]*tensor.RawTensor{"fc": ref}}
	scores, err := scorer.Score("fc", layer, sig)
	require.NoError(t, err)
	require.Len(t, scores, 2)

	// score_0 = |cos((3,4),(0,1))| * 5 * 1 = (4/5) * 5 = 4
	// score_1 = |cos((0,1),(0,1))| * 1 * 2 = 2
	assert.InDelta(t, 4.0, scores[0].Score, 1e-6)
	assert.InDelta(t, 2.0, scores[1].Score, 1e-6)
}

func TestAlignmentScorer_MissingReference(t *testing.T) {
	layer := newTestLayer(t)
	scorer := &AlignmentScorer[testBackend]{}

	_, err := scorer.Score("fc", layer, &Signals{})
	var missing *MissingSignalError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, ScorerAlignment, missing.Scorer)
}

func TestNewScorer(t *testing.T) {
	for _, kind := range []string{ScorerMagnitude, ScorerSNIP, ScorerAlignment} {
		scorer, err := NewScorer[testBackend](kind)
		require.NoError(t, err)
		assert.Equal(t, kind, scorer.Name())
	}

	_, err := NewScorer[testBackend]("taylor")
	var cfgErr *ScheduleConfigError
	require.ErrorAs(t, err, &cfgErr)
}
