package main

import (
	"fmt"
	"log/slog"

	"github.com/lowrank-ml/lowrank/internal/autodiff"
	"github.com/lowrank-ml/lowrank/internal/backend/cpu"
	"github.com/lowrank-ml/lowrank/internal/config"
	"github.com/lowrank-ml/lowrank/internal/nn"
	"github.com/lowrank-ml/lowrank/internal/optim"
	"github.com/lowrank-ml/lowrank/internal/prune"
	"github.com/lowrank-ml/lowrank/internal/tensor"
)

// runExperiment trains a factorized network on the synthetic regression
// task while the scheduler prunes it down to the configured sparsity.
func runExperiment(cfg *config.Config, logger *slog.Logger) error {
	backend := autodiff.New(cpu.New())

	model := newRankNet(cfg.Model, backend)
	batches := makeBatches(cfg, backend)

	schedule, err := cfg.Schedule()
	if err != nil {
		return err
	}
	scorer, err := prune.NewScorer[*autodiff.AutodiffBackend[*cpu.CPUBackend]](cfg.Pruning.Pruner)
	if err != nil {
		return err
	}
	scope, err := prune.NewScope(cfg.Pruning.Scope)
	if err != nil {
		return err
	}
	scheduler, err := prune.NewScheduler(schedule, scorer, scope, logger)
	if err != nil {
		return err
	}
	for i, layer := range model.layers {
		if err := scheduler.RegisterLayer(model.names[i], layer); err != nil {
			return err
		}
	}

	criterion := nn.NewMSELoss[*autodiff.AutodiffBackend[*cpu.CPUBackend]]()
	optimizer := optim.NewSGD(
		model.Parameters(),
		optim.SGDConfig{LR: float32(cfg.Train.LearningRate)},
		backend,
	)

	logger.Info("starting experiment",
		"name", cfg.Name,
		"run_id", scheduler.RunID(),
		"layers", len(model.layers),
		"total_rank", model.TotalRank(),
		"pruner", cfg.Pruning.Pruner,
		"scope", cfg.Pruning.Scope,
		"target_sparsity", cfg.Pruning.TargetSparsity,
	)

	backend.Tape().StartRecording()

	grads := gradientProvider(model, batches[0], criterion, backend)
	refs := referenceProvider(model, batches[0], backend)

	for epoch := 0; epoch < cfg.TotalEpochs; epoch++ {
		avgLoss := trainEpoch(model, batches, criterion, optimizer, backend)
		logger.Info("epoch complete", "epoch", epoch, "loss", avgLoss)

		report, err := scheduler.OnEpochEnd(epoch, grads, refs)
		if err != nil {
			return fmt.Errorf("pruning at epoch %d: %w", epoch, err)
		}
		if report != nil {
			logger.Info("pruning event", "summary", report.Summary())
		}
	}

	logger.Info("experiment complete",
		"final_rank", model.TotalRank(),
		"state", scheduler.State().String(),
	)
	return nil
}

// trainEpoch runs one pass over all batches and returns the average loss.
func trainEpoch[B tensor.Backend](
	model *rankNet[*autodiff.AutodiffBackend[B]],
	batches []*batch[*autodiff.AutodiffBackend[B]],
	criterion *nn.MSELoss[*autodiff.AutodiffBackend[B]],
	optimizer optim.Optimizer,
	backend *autodiff.AutodiffBackend[B],
) float32 {
	totalLoss := float32(0)

	for _, b := range batches {
		optimizer.ZeroGrad()

		output := model.Forward(b.inputs)
		loss := criterion.Forward(output, b.targets)
		totalLoss += loss.Item()

		grads := autodiff.Backward(loss, backend)
		optimizer.Step(grads)

		backend.Tape().Clear()
	}

	return totalLoss / float32(len(batches))
}

// gradientProvider builds the SNIP signal: one forward/backward pass on a
// representative batch, returning dL/dW per registered layer.
func gradientProvider[B tensor.Backend](
	model *rankNet[*autodiff.AutodiffBackend[B]],
	b *batch[*autodiff.AutodiffBackend[B]],
	criterion *nn.MSELoss[*autodiff.AutodiffBackend[B]],
	backend *autodiff.AutodiffBackend[B],
) prune.GradientProvider {
	return func() (map[string]*tensor.RawTensor, error) {
		backend.Tape().Clear()

		output := model.Forward(b.inputs)
		loss := criterion.Forward(output, b.targets)
		grads := autodiff.Backward(loss, backend)
		backend.Tape().Clear()

		result := make(map[string]*tensor.RawTensor, len(model.layers))
		for i, layer := range model.layers {
			g, ok := grads[layer.LastWeight()]
			if !ok {
				return nil, fmt.Errorf("no gradient recorded for layer %q", model.names[i])
			}
			result[model.names[i]] = g
		}
		return result, nil
	}
}

// referenceProvider builds the alignment signal: each layer's mean output
// direction over a representative batch.
func referenceProvider[B tensor.Backend](
	model *rankNet[*autodiff.AutodiffBackend[B]],
	b *batch[*autodiff.AutodiffBackend[B]],
	backend *autodiff.AutodiffBackend[B],
) prune.ReferenceProvider {
	return func() (map[string]*tensor.RawTensor, error) {
		wasRecording := backend.Tape().IsRecording()
		backend.Tape().StopRecording()
		defer func() {
			if wasRecording {
				backend.Tape().StartRecording()
			}
		}()

		outputs := model.LayerOutputs(b.inputs)

		result := make(map[string]*tensor.RawTensor, len(outputs))
		for i, out := range outputs {
			ref, err := columnMeans(out.Raw())
			if err != nil {
				return nil, err
			}
			result[model.names[i]] = ref
		}
		return result, nil
	}
}

// columnMeans reduces a [rows, cols] tensor to a [cols] tensor of per-column
// means.
func columnMeans(t *tensor.RawTensor) (*tensor.RawTensor, error) {
	shape := t.Shape()
	if len(shape) != 2 {
		return nil, fmt.Errorf("columnMeans: expected 2D tensor, got shape %v", shape)
	}
	rows, cols := shape[0], shape[1]

	out, err := tensor.NewRaw(tensor.Shape{cols}, tensor.Float32, tensor.CPU)
	if err != nil {
		return nil, err
	}

	data := t.AsFloat32()
	means := out.AsFloat32()
	for j := 0; j < cols; j++ {
		sum := float64(0)
		for i := 0; i < rows; i++ {
			sum += float64(data[i*cols+j])
		}
		means[j] = float32(sum / float64(rows))
	}
	return out, nil
}
