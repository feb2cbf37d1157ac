package ops

import (
	"fmt"

	"github.com/lowrank-ml/lowrank/internal/tensor"
)

// reduceBroadcast reduces a gradient tensor to match the target shape.
// This is necessary when broadcasting was used in the forward pass.
//
// Example:
//
//	Forward: a[1,4] + b[3,4] -> c[3,4]  (a was broadcast along dim 0)
//	Backward: grad_c[3,4] -> grad_a[1,4] (sum along dim 0)
func reduceBroadcast(grad *tensor.RawTensor, targetShape tensor.Shape, backend tensor.Backend) *tensor.RawTensor {
	gradShape := grad.Shape()

	// If shapes already match, clone to avoid aliasing issues
	// (prevents inplace operations from modifying shared gradients)
	if gradShape.Equal(targetShape) {
		return grad.Clone()
	}

	// NumPy broadcasting aligns shapes from the right: sum away leading
	// dimensions the target doesn't have, then dimensions where target is 1.
	gradDims := len(gradShape)
	targetDims := len(targetShape)

	result := grad
	for i := 0; i < gradDims-targetDims; i++ {
		result = sumAlongDimension(result, 0, backend)
	}

	resultShape := result.Shape()
	for i := 0; i < targetDims; i++ {
		if targetShape[i] == 1 && resultShape[i] > 1 {
			result = sumAlongDimension(result, i, backend)
			resultShape = result.Shape()
		}
	}

	if !result.Shape().Equal(targetShape) {
		result = backend.Reshape(result, targetShape)
	}

	return result
}

// sumAlongDimension sums a tensor along one dimension, keeping it with size 1.
func sumAlongDimension(x *tensor.RawTensor, dim int, backend tensor.Backend) *tensor.RawTensor {
	shape := x.Shape()
	if dim < 0 || dim >= len(shape) {
		panic(fmt.Sprintf("sum: dimension %d out of range for %dD tensor", dim, len(shape)))
	}

	outShape := shape.Clone()
	outShape[dim] = 1

	result, err := tensor.NewRaw(outShape, x.DType(), backend.Device())
	if err != nil {
		panic(fmt.Sprintf("sum: %v", err))
	}

	inStrides := shape.ComputeStrides()
	outStrides := outShape.ComputeStrides()
	n := x.NumElements()

	// Accumulate each source element into its reduced destination slot.
	dstOffset := func(flat int) int {
		dst := 0
		for d := range shape {
			coord := flat / inStrides[d]
			flat -= coord * inStrides[d]
			if d != dim {
				dst += coord * outStrides[d]
			}
		}
		return dst
	}

	switch x.DType() {
	case tensor.Float32:
		src := x.AsFloat32()
		dst := result.AsFloat32()
		for i := 0; i < n; i++ {
			dst[dstOffset(i)] += src[i]
		}
	case tensor.Float64:
		src := x.AsFloat64()
		dst := result.AsFloat64()
		for i := 0; i < n; i++ {
			dst[dstOffset(i)] += src[i]
		}
	default:
		panic(fmt.Sprintf("sum: unsupported dtype %s", x.DType()))
	}

	return result
}

// fullLike creates a tensor with the given shape filled with a constant value.
func fullLike(shape tensor.Shape, dtype tensor.DataType, value float64, backend tensor.Backend) *tensor.RawTensor {
	result, err := tensor.NewRaw(shape, dtype, backend.Device())
	if err != nil {
		panic(fmt.Sprintf("fullLike: %v", err))
	}

	switch dtype {
	case tensor.Float32:
		data := result.AsFloat32()
		for i := range data {
			data[i] = float32(value)
		}
	case tensor.Float64:
		data := result.AsFloat64()
		for i := range data {
			data[i] = value
		}
	default:
		panic(fmt.Sprintf("fullLike: unsupported dtype %s", dtype))
	}

	return result
}

// scalarValue reads the single element of a shape-[1] gradient tensor.
func scalarValue(t *tensor.RawTensor) float64 {
	if t.NumElements() != 1 {
		panic(fmt.Sprintf("expected scalar tensor, got shape %v", t.Shape()))
	}
	switch t.DType() {
	case tensor.Float32:
		return float64(t.AsFloat32()[0])
	case tensor.Float64:
		return t.AsFloat64()[0]
	default:
		panic(fmt.Sprintf("unsupported dtype %s", t.DType()))
	}
}
