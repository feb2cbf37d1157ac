package main

import (
	"math/rand"

	"github.com/lowrank-ml/lowrank/internal/config"
	"github.com/lowrank-ml/lowrank/internal/tensor"
)

// batch is one minibatch of the synthetic regression task.
type batch[B tensor.Backend] struct {
	inputs  *tensor.Tensor[float32, B] // [batch_size, in_features]
	targets *tensor.Tensor[float32, B] // [batch_size, out_features]
	size    int
}

// makeBatches generates a synthetic low-rank regression dataset and splits
// it into minibatches.
//
// Targets come from a random planted linear map W* = L* @ R* whose rank is
// half the model's max rank, plus small gaussian noise. A rank-pruned model
// can therefore match the data with far fewer components than it starts
// with.
func makeBatches[B tensor.Backend](cfg *config.Config, backend B) []*batch[B] {
	rng := rand.New(rand.NewSource(cfg.Train.Seed))

	in := cfg.Model.InFeatures
	out := cfg.Model.OutFeatures
	plantedRank := cfg.Model.MaxRank / 2
	if plantedRank < 1 {
		plantedRank = 1
	}

	inputs := tensor.RandnSource[float32](tensor.Shape{cfg.Train.Samples, in}, rng, backend)
	left := tensor.RandnSource[float32](tensor.Shape{out, plantedRank}, rng, backend)
	right := tensor.RandnSource[float32](tensor.Shape{plantedRank, in}, rng, backend)

	// targets = inputs @ (L* @ R*)ᵀ + noise
	weight := left.MatMul(right)
	targets := inputs.MatMul(weight.T())
	noise := tensor.RandnSource[float32](tensor.Shape{cfg.Train.Samples, out}, rng, backend).MulScalar(0.01)
	targets = targets.Add(noise)

	return splitBatches(inputs, targets, cfg.Train.BatchSize, backend)
}

// splitBatches slices the full dataset into contiguous minibatches. A
// short final batch is kept.
func splitBatches[B tensor.Backend](inputs, targets *tensor.Tensor[float32, B], batchSize int, backend B) []*batch[B] {
	samples := inputs.Shape()[0]
	in := inputs.Shape()[1]
	out := targets.Shape()[1]

	inputData := inputs.Data()
	targetData := targets.Data()

	var batches []*batch[B]
	for start := 0; start < samples; start += batchSize {
		end := start + batchSize
		if end > samples {
			end = samples
		}
		size := end - start

		bi, err := tensor.FromSlice(inputData[start*in:end*in], tensor.Shape{size, in}, backend)
		if err != nil {
			panic(err)
		}
		bt, err := tensor.FromSlice(targetData[start*out:end*out], tensor.Shape{size, out}, backend)
		if err != nil {
			panic(err)
		}
		batches = append(batches, &batch[B]{inputs: bi, targets: bt, size: size})
	}
	return batches
}
