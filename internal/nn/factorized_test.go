package nn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowrank-ml/lowrank/internal/autodiff"
	"github.com/lowrank-ml/lowrank/internal/backend/cpu"
	"github.com/lowrank-ml/lowrank/internal/tensor"
)

type Backend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

// setFactors overwrites a layer's factors with known values.
func setFactors[B tensor.Backend](t *testing.T, layer *FactorizedLinear[B], left, right []float32) {
	t.Helper()
	require.Len(t, left, layer.OutFeatures()*layer.MaxRank())
	require.Len(t, right, layer.MaxRank()*layer.InFeatures())
	copy(layer.Left().Tensor().Data(), left)
	copy(layer.Right().Tensor().Data(), right)
}

func TestFactorizedLinear_Construction(t *testing.T) {
	backend := cpu.New()
	layer := NewFactorizedLinear(8, 4, 3, backend)

	assert.Equal(t, 8, layer.InFeatures())
	assert.Equal(t, 4, layer.OutFeatures())
	assert.Equal(t, 3, layer.MaxRank())
	assert.Equal(t, 3, layer.Rank(), "all components start active")

	assert.True(t, layer.Left().Tensor().Shape().Equal(tensor.Shape{4, 3}))
	assert.True(t, layer.Right().Tensor().Shape().Equal(tensor.Shape{3, 8}))
	assert.True(t, layer.Bias().Tensor().Shape().Equal(tensor.Shape{4}))

	for _, b := range layer.Bias().Tensor().Data() {
		assert.Zero(t, b, "bias starts at zero")
	}

	assert.Equal(t, []int{0, 1, 2}, layer.ActiveComponents())
	assert.Empty(t, layer.RemovedComponents())
	assert.Len(t, layer.Parameters(), 3)
}

func TestFactorizedLinear_ConstructionPanicsOnBadRank(t *testing.T) {
	assert.Panics(t, func() {
		NewFactorizedLinear(4, 4, 0, cpu.New())
	})
}

func TestFactorizedLinear_Deactivate(t *testing.T) {
	layer := NewFactorizedLinear(4, 4, 5, cpu.New())

	require.NoError(t, layer.Deactivate([]int{1, 3}))

	assert.Equal(t, 3, layer.Rank())
	assert.Equal(t, []int{0, 2, 4}, layer.ActiveComponents())
	assert.Equal(t, []int{1, 3}, layer.RemovedComponents())
	assert.Equal(t, []bool{true, false, true, false, true}, layer.ActiveMask())

	// Deactivated factor slices are zeroed.
	for _, v := range layer.LeftColumn(1) {
		assert.Zero(t, v)
	}
	for _, v := range layer.RightRow(3) {
		assert.Zero(t, v)
	}
}

func TestFactorizedLinear_DeactivateValidation(t *testing.T) {
	layer := NewFactorizedLinear(4, 4, 5, cpu.New())
	require.NoError(t, layer.Deactivate([]int{2}))

	tests := []struct {
		name    string
		indices []int
	}{
		{"negative index", []int{-1}},
		{"index beyond max rank", []int{5}},
		{"already inactive", []int{2}},
		{"duplicate in call", []int{0, 0}},
		{"valid mixed with invalid", []int{1, 9}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := layer.Deactivate(tt.indices)
			var compErr *InvalidComponentError
			require.ErrorAs(t, err, &compErr)

			// Validation precedes mutation: nothing else was removed.
			assert.Equal(t, 4, layer.Rank())
			assert.Equal(t, []int{2}, layer.RemovedComponents())
		})
	}
}

func TestFactorizedLinear_Reconstruct(t *testing.T) {
	layer := NewFactorizedLinear(2, 2, 2, cpu.New())
	// W = L @ R with
	//   L = [[1, 2], [3, 4]]   R = [[1, 0], [0, 1]]
	setFactors(t, layer, []float32{1, 2, 3, 4}, []float32{1, 0, 0, 1})

	w := layer.Reconstruct()
	assert.True(t, w.Shape().Equal(tensor.Shape{2, 2}))
	assert.InDelta(t, 1.0, float64(w.At(0, 0)), 1e-6)
	assert.InDelta(t, 2.0, float64(w.At(0, 1)), 1e-6)
	assert.InDelta(t, 3.0, float64(w.At(1, 0)), 1e-6)
	assert.InDelta(t, 4.0, float64(w.At(1, 1)), 1e-6)
}

func TestFactorizedLinear_ReconstructAfterDeactivate(t *testing.T) {
	layer := NewFactorizedLinear(2, 2, 2, cpu.New())
	setFactors(t, layer, []float32{1, 2, 3, 4}, []float32{1, 0, 0, 1})

	require.NoError(t, layer.Deactivate([]int{0}))

	// Only component 1 remains: W = L[:,1] ⊗ R[1,:] = [[0, 2], [0, 4]].
	w := layer.Reconstruct()
	assert.InDelta(t, 0.0, float64(w.At(0, 0)), 1e-6)
	assert.InDelta(t, 2.0, float64(w.At(0, 1)), 1e-6)
	assert.InDelta(t, 0.0, float64(w.At(1, 0)), 1e-6)
	assert.InDelta(t, 4.0, float64(w.At(1, 1)), 1e-6)
}

func TestFactorizedLinear_ReconstructAllRemoved(t *testing.T) {
	layer := NewFactorizedLinear(3, 2, 2, cpu.New())
	require.NoError(t, layer.Deactivate([]int{0, 1}))

	w := layer.Reconstruct()
	assert.True(t, w.Shape().Equal(tensor.Shape{2, 3}))
	for _, v := range w.Data() {
		assert.Zero(t, v)
	}
}

func TestFactorizedLinear_Forward(t *testing.T) {
	layer := NewFactorizedLinear(2, 2, 2, cpu.New())
	setFactors(t, layer, []float32{1, 0, 0, 1}, []float32{1, 2, 3, 4})
	// W = [[1, 2], [3, 4]]
	copy(layer.Bias().Tensor().Data(), []float32{10, 20})

	input, err := tensor.FromSlice([]float32{1, 1}, tensor.Shape{1, 2}, layer.Left().Tensor().Backend())
	require.NoError(t, err)

	// y = x @ W.T + b = [1+2, 3+4] + [10, 20] = [13, 27]
	output := layer.Forward(input)
	require.True(t, output.Shape().Equal(tensor.Shape{1, 2}))
	assert.InDelta(t, 13.0, float64(output.At(0, 0)), 1e-6)
	assert.InDelta(t, 27.0, float64(output.At(0, 1)), 1e-6)

	assert.NotNil(t, layer.LastWeight())
}

func TestFactorizedLinear_ForwardPanicsOnBadInput(t *testing.T) {
	layer := NewFactorizedLinear(4, 2, 2, cpu.New())
	backend := cpu.New()

	bad1D := tensor.Zeros[float32](tensor.Shape{4}, backend)
	assert.Panics(t, func() { layer.Forward(bad1D) })

	badWidth := tensor.Zeros[float32](tensor.Shape{1, 3}, backend)
	assert.Panics(t, func() { layer.Forward(badWidth) })
}

// TestFactorizedLinear_WeightGradient checks that a backward pass on an
// autodiff backend produces a gradient for the reconstructed weight, which
// is what SNIP scoring consumes.
func TestFactorizedLinear_WeightGradient(t *testing.T) {
	backend := autodiff.New(cpu.New())
	layer := NewFactorizedLinear(2, 2, 2, backend)
	setFactors(t, layer, []float32{1, 0, 0, 1}, []float32{1, 2, 3, 4})

	backend.Tape().StartRecording()
	defer backend.Tape().Clear()

	input, err := tensor.FromSlice([]float32{1, 2}, tensor.Shape{1, 2}, backend)
	require.NoError(t, err)
	targets, err := tensor.FromSlice([]float32{0, 0}, tensor.Shape{1, 2}, backend)
	require.NoError(t, err)

	output := layer.Forward(input)
	loss := NewMSELoss[Backend]().Forward(output, targets)

	grads := autodiff.Backward(loss, backend)

	g, ok := grads[layer.LastWeight()]
	require.True(t, ok, "gradient map must contain the reconstructed weight")
	assert.True(t, g.Shape().Equal(tensor.Shape{2, 2}))
}
