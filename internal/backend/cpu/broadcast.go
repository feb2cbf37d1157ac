package cpu

import (
	"fmt"

	"github.com/lowrank-ml/lowrank/internal/tensor"
)

// binaryOp applies an element-wise binary operation with broadcasting.
// Both inputs must share a dtype (float32 or float64).
func (cpu *CPUBackend) binaryOp(
	name string,
	a, b *tensor.RawTensor,
	f32 func(x, y float32) float32,
	f64 func(x, y float64) float64,
) *tensor.RawTensor {
	if a.DType() != b.DType() {
		panic(fmt.Sprintf("%s: dtype mismatch %s vs %s", name, a.DType(), b.DType()))
	}

	outShape, needsBroadcast, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}

	result, err := tensor.NewRaw(outShape, a.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%s: failed to create result tensor: %v", name, err))
	}

	switch a.DType() {
	case tensor.Float32:
		if !needsBroadcast {
			x, y, dst := a.AsFloat32(), b.AsFloat32(), result.AsFloat32()
			for i := range dst {
				dst[i] = f32(x[i], y[i])
			}
			return result
		}
		x, y, dst := a.AsFloat32(), b.AsFloat32(), result.AsFloat32()
		aIdx := newBroadcastIndexer(a.Shape(), outShape)
		bIdx := newBroadcastIndexer(b.Shape(), outShape)
		for i := range dst {
			dst[i] = f32(x[aIdx.at(i)], y[bIdx.at(i)])
		}
	case tensor.Float64:
		if !needsBroadcast {
			x, y, dst := a.AsFloat64(), b.AsFloat64(), result.AsFloat64()
			for i := range dst {
				dst[i] = f64(x[i], y[i])
			}
			return result
		}
		x, y, dst := a.AsFloat64(), b.AsFloat64(), result.AsFloat64()
		aIdx := newBroadcastIndexer(a.Shape(), outShape)
		bIdx := newBroadcastIndexer(b.Shape(), outShape)
		for i := range dst {
			dst[i] = f64(x[aIdx.at(i)], y[bIdx.at(i)])
		}
	default:
		panic(fmt.Sprintf("%s: unsupported dtype %s", name, a.DType()))
	}

	return result
}

// broadcastIndexer maps a flat index in the broadcast output shape back to a
// flat index in a (possibly smaller) source shape. Dimensions of size 1 in the
// source contribute stride 0, which is exactly NumPy's broadcasting rule.
type broadcastIndexer struct {
	outStrides []int
	srcStrides []int
}

func newBroadcastIndexer(src, out tensor.Shape) broadcastIndexer {
	outStrides := out.ComputeStrides()
	srcStrides := make([]int, len(out))

	realStrides := src.ComputeStrides()
	offset := len(out) - len(src)
	for i := range out {
		srcDim := i - offset
		if srcDim < 0 || src[srcDim] == 1 {
			srcStrides[i] = 0
		} else {
			srcStrides[i] = realStrides[srcDim]
		}
	}

	return broadcastIndexer{outStrides: outStrides, srcStrides: srcStrides}
}

func (bi broadcastIndexer) at(flat int) int {
	src := 0
	for d := range bi.outStrides {
		coord := flat / bi.outStrides[d]
		flat -= coord * bi.outStrides[d]
		src += coord * bi.srcStrides[d]
	}
	return src
}
