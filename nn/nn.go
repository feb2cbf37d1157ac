// Copyright 2025 Lowrank ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides neural network layers and building blocks.
//
// This package contains:
//   - Layers: Linear, FactorizedLinear
//   - Activations: ReLU
//   - Loss functions: MSELoss
//   - Utilities: Sequential, Module interface, Parameter
//
// Example:
//
//	import (
//	    "github.com/lowrank-ml/lowrank/nn"
//	    "github.com/lowrank-ml/lowrank/backend/cpu"
//	)
//
//	func main() {
//	    backend := cpu.New()
//
//	    model := nn.NewSequential(
//	        nn.NewFactorizedLinear(64, 128, 32, backend),
//	        nn.NewReLU[*cpu.Backend](),
//	        nn.NewLinear(128, 10, backend),
//	    )
//
//	    output := model.Forward(input)
//	}
package nn

import (
	"github.com/lowrank-ml/lowrank/internal/nn"
	"github.com/lowrank-ml/lowrank/internal/tensor"
)

// Module interface defines the common interface for all neural network modules.
type Module[B tensor.Backend] = nn.Module[B]

// Parameter represents a trainable parameter in a neural network.
type Parameter[B tensor.Backend] = nn.Parameter[B]

// NewParameter creates a new parameter with the given name and tensor.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return nn.NewParameter(name, t)
}

// Layers

// Linear represents a fully connected (dense) layer.
type Linear[B tensor.Backend] = nn.Linear[B]

// NewLinear creates a new linear layer with Xavier initialization.
//
// Example:
//
//	backend := cpu.New()
//	layer := nn.NewLinear(784, 128, backend)
func NewLinear[B tensor.Backend](inFeatures, outFeatures int, backend B) *Linear[B] {
	return nn.NewLinear(inFeatures, outFeatures, backend)
}

// FactorizedLinear represents a low-rank factorized linear layer.
//
// The layer computes y = x @ (L @ R)ᵀ + b where L is [out_features,
// max_rank] and R is [max_rank, in_features]. Rank-one components can be
// permanently deactivated to shrink the layer's effective rank during
// training.
type FactorizedLinear[B tensor.Backend] = nn.FactorizedLinear[B]

// NewFactorizedLinear creates a factorized linear layer with all max_rank
// components active.
//
// Example:
//
//	backend := cpu.New()
//	layer := nn.NewFactorizedLinear(784, 128, 32, backend)
func NewFactorizedLinear[B tensor.Backend](inFeatures, outFeatures, maxRank int, backend B) *FactorizedLinear[B] {
	return nn.NewFactorizedLinear(inFeatures, outFeatures, maxRank, backend)
}

// InvalidComponentError reports a rejected component index in a
// FactorizedLinear.Deactivate call.
type InvalidComponentError = nn.InvalidComponentError

// Activations

// ReLU represents the Rectified Linear Unit activation function.
type ReLU[B tensor.Backend] = nn.ReLU[B]

// NewReLU creates a new ReLU activation layer.
func NewReLU[B tensor.Backend]() *ReLU[B] {
	return nn.NewReLU[B]()
}

// Loss functions

// MSELoss computes mean squared error loss for regression tasks.
type MSELoss[B tensor.Backend] = nn.MSELoss[B]

// NewMSELoss creates a new MSE loss function.
func NewMSELoss[B tensor.Backend]() *MSELoss[B] {
	return nn.NewMSELoss[B]()
}

// Containers

// Sequential chains modules, feeding each module's output to the next.
type Sequential[B tensor.Backend] = nn.Sequential[B]

// NewSequential creates a sequential container from the given modules.
func NewSequential[B tensor.Backend](modules ...Module[B]) *Sequential[B] {
	return nn.NewSequential(modules...)
}
