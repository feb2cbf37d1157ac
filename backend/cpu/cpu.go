// Copyright 2025 Lowrank ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides a pure Go CPU backend for tensor operations.
//
// The backend implements every operation of tensor.Backend with no CGO,
// supporting Float32 and Float64 with NumPy-compatible broadcasting.
package cpu

import (
	internalcpu "github.com/lowrank-ml/lowrank/internal/backend/cpu"
	"github.com/lowrank-ml/lowrank/tensor"
)

// Backend represents the CPU backend implementation.
type Backend = internalcpu.CPUBackend

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// New creates a new CPU backend.
//
// Example:
//
//	backend := cpu.New()
//	x := tensor.Zeros[float32](tensor.Shape{2, 3}, backend)
func New() *Backend {
	return internalcpu.New()
}
