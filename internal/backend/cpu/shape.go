package cpu

import (
	"fmt"

	"github.com/lowrank-ml/lowrank/internal/tensor"
)

// Reshape returns a view of the tensor with a new shape.
// The new shape must have the same number of elements.
func (cpu *CPUBackend) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	if t.NumElements() != newShape.NumElements() {
		panic(fmt.Sprintf("reshape: cannot reshape %v (%d elements) to %v (%d elements)",
			t.Shape(), t.NumElements(), newShape, newShape.NumElements()))
	}

	result, err := tensor.NewRaw(newShape, t.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("reshape: %v", err))
	}

	// Row-major layout: a reshape is a straight copy.
	switch t.DType() {
	case tensor.Float32:
		copy(result.AsFloat32(), t.AsFloat32())
	case tensor.Float64:
		copy(result.AsFloat64(), t.AsFloat64())
	default:
		panic(fmt.Sprintf("reshape: unsupported dtype %s", t.DType()))
	}

	return result
}

// Transpose permutes the tensor's dimensions.
// If axes is empty, all dimensions are reversed (standard transpose for 2D).
func (cpu *CPUBackend) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	shape := t.Shape()
	ndim := len(shape)

	if len(axes) == 0 {
		axes = make([]int, ndim)
		for i := range axes {
			axes[i] = ndim - 1 - i
		}
	}
	if len(axes) != ndim {
		panic(fmt.Sprintf("transpose: got %d axes for %dD tensor", len(axes), ndim))
	}

	outShape := make(tensor.Shape, ndim)
	for i, ax := range axes {
		if ax < 0 || ax >= ndim {
			panic(fmt.Sprintf("transpose: axis %d out of range for %dD tensor", ax, ndim))
		}
		outShape[i] = shape[ax]
	}

	result, err := tensor.NewRaw(outShape, t.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("transpose: %v", err))
	}

	inStrides := shape.ComputeStrides()
	outStrides := outShape.ComputeStrides()
	n := t.NumElements()

	// Map each output element back to its source offset.
	srcOffset := func(flat int) int {
		src := 0
		for d := 0; d < ndim; d++ {
			coord := flat / outStrides[d]
			flat -= coord * outStrides[d]
			src += coord * inStrides[axes[d]]
		}
		return src
	}

	switch t.DType() {
	case tensor.Float32:
		srcData := t.AsFloat32()
		dst := result.AsFloat32()
		for i := 0; i < n; i++ {
			dst[i] = srcData[srcOffset(i)]
		}
	case tensor.Float64:
		srcData := t.AsFloat64()
		dst := result.AsFloat64()
		for i := 0; i < n; i++ {
			dst[i] = srcData[srcOffset(i)]
		}
	default:
		panic(fmt.Sprintf("transpose: unsupported dtype %s", t.DType()))
	}

	return result
}
