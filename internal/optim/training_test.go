package optim_test

import (
	"testing"

	"github.com/lowrank-ml/lowrank/internal/autodiff"
	"github.com/lowrank-ml/lowrank/internal/backend/cpu"
	"github.com/lowrank-ml/lowrank/internal/nn"
	"github.com/lowrank-ml/lowrank/internal/optim"
	"github.com/lowrank-ml/lowrank/internal/tensor"
)

// trainStep runs one forward/backward/update cycle and returns the loss,
// mirroring the real training loop.
func trainStep(
	layer *nn.FactorizedLinear[testBackend],
	criterion *nn.MSELoss[testBackend],
	optimizer optim.Optimizer,
	inputs, targets *tensor.Tensor[float32, testBackend],
	backend testBackend,
) float32 {
	optimizer.ZeroGrad()

	output := layer.Forward(inputs)
	loss := criterion.Forward(output, targets)
	lossValue := loss.Item()

	grads := autodiff.Backward(loss, backend)
	optimizer.Step(grads)

	backend.Tape().Clear()
	return lossValue
}

// TestSGD_TrainsFactorizedFactors drives the full loop through a
// FactorizedLinear and checks that the gradient actually reaches the left
// and right factor parameters, not just the bias.
func TestSGD_TrainsFactorizedFactors(t *testing.T) {
	backend := autodiff.New(cpu.New())

	layer := nn.NewFactorizedLinear(2, 2, 2, backend)
	copy(layer.Left().Tensor().Data(), []float32{1, 0, 0, 1})
	copy(layer.Right().Tensor().Data(), []float32{1, 2, 3, 4})

	criterion := nn.NewMSELoss[testBackend]()
	optimizer := optim.NewSGD(layer.Parameters(), optim.SGDConfig{LR: 0.01}, backend)

	inputs, err := tensor.FromSlice([]float32{1, 2, 0.5, -1}, tensor.Shape{2, 2}, backend)
	if err != nil {
		t.Fatalf("FromSlice failed: %v", err)
	}
	targets, err := tensor.FromSlice([]float32{0, 0, 0, 0}, tensor.Shape{2, 2}, backend)
	if err != nil {
		t.Fatalf("FromSlice failed: %v", err)
	}

	leftBefore := append([]float32(nil), layer.Left().Tensor().Data()...)
	rightBefore := append([]float32(nil), layer.Right().Tensor().Data()...)

	backend.Tape().StartRecording()
	defer backend.Tape().Clear()

	firstLoss := trainStep(layer, criterion, optimizer, inputs, targets, backend)
	var lastLoss float32
	for step := 0; step < 4; step++ {
		lastLoss = trainStep(layer, criterion, optimizer, inputs, targets, backend)
	}

	if lastLoss >= firstLoss {
		t.Errorf("loss did not decrease: first %f, last %f", firstLoss, lastLoss)
	}

	leftChanged := false
	for i, v := range layer.Left().Tensor().Data() {
		if v != leftBefore[i] {
			leftChanged = true
			break
		}
	}
	if !leftChanged {
		t.Error("left factor never updated: gradients do not reach the factor parameters")
	}

	rightChanged := false
	for i, v := range layer.Right().Tensor().Data() {
		if v != rightBefore[i] {
			rightChanged = true
			break
		}
	}
	if !rightChanged {
		t.Error("right factor never updated: gradients do not reach the factor parameters")
	}
}

// TestSGD_DeactivatedComponentStaysZero trains a layer with a removed
// component and checks the removed factor entries never move.
func TestSGD_DeactivatedComponentStaysZero(t *testing.T) {
	backend := autodiff.New(cpu.New())

	layer := nn.NewFactorizedLinear(2, 2, 3, backend)
	if err := layer.Deactivate([]int{1}); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}

	criterion := nn.NewMSELoss[testBackend]()
	optimizer := optim.NewSGD(layer.Parameters(), optim.SGDConfig{LR: 0.01}, backend)

	inputs, err := tensor.FromSlice([]float32{1, 2, -1, 0.5}, tensor.Shape{2, 2}, backend)
	if err != nil {
		t.Fatalf("FromSlice failed: %v", err)
	}
	targets, err := tensor.FromSlice([]float32{1, 0, 0, 1}, tensor.Shape{2, 2}, backend)
	if err != nil {
		t.Fatalf("FromSlice failed: %v", err)
	}

	backend.Tape().StartRecording()
	defer backend.Tape().Clear()

	for step := 0; step < 3; step++ {
		trainStep(layer, criterion, optimizer, inputs, targets, backend)
	}

	for row, v := range layer.LeftColumn(1) {
		if v != 0 {
			t.Errorf("removed left column entry %d moved to %f", row, v)
		}
	}
	for col, v := range layer.RightRow(1) {
		if v != 0 {
			t.Errorf("removed right row entry %d moved to %f", col, v)
		}
	}
}
