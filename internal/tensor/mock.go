package tensor

import "fmt"

// Verify that MockBackend implements Backend.
var _ Backend = (*MockBackend)(nil)

// MockBackend is a simple backend for testing.
// It implements all operations naively for correctness verification.
type MockBackend struct{}

// NewMockBackend creates a new MockBackend.
func NewMockBackend() *MockBackend {
	return &MockBackend{}
}

// Name returns the backend name.
func (m *MockBackend) Name() string {
	return "mock"
}

// Device returns the device type.
func (m *MockBackend) Device() Device {
	return CPU
}

// Add performs element-wise addition with broadcasting.
func (m *MockBackend) Add(a, b *RawTensor) *RawTensor {
	return m.elementWise(a, b, func(x, y float64) float64 { return x + y })
}

// Sub performs element-wise subtraction with broadcasting.
func (m *MockBackend) Sub(a, b *RawTensor) *RawTensor {
	return m.elementWise(a, b, func(x, y float64) float64 { return x - y })
}

// Mul performs element-wise multiplication with broadcasting.
func (m *MockBackend) Mul(a, b *RawTensor) *RawTensor {
	return m.elementWise(a, b, func(x, y float64) float64 { return x * y })
}

// elementWise applies op with naive index-by-index broadcasting.
func (m *MockBackend) elementWise(a, b *RawTensor, op func(float64, float64) float64) *RawTensor {
	outShape, _, err := BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(err)
	}

	result, err := NewRaw(outShape, a.DType(), m.Device())
	if err != nil {
		panic(err)
	}

	av := asFloat64Values(a)
	bv := asFloat64Values(b)
	out := make([]float64, outShape.NumElements())

	outStrides := outShape.ComputeStrides()
	for i := range out {
		idx := make([]int, len(outShape))
		rem := i
		for d := range outShape {
			idx[d] = rem / outStrides[d]
			rem %= outStrides[d]
		}
		out[i] = op(av[broadcastOffset(a.Shape(), idx)], bv[broadcastOffset(b.Shape(), idx)])
	}

	setFloat64Values(result, out)
	return result
}

// broadcastOffset maps an output index to the flat offset in a (possibly
// lower-rank or size-1-dimension) source shape.
func broadcastOffset(shape Shape, outIdx []int) int {
	strides := shape.ComputeStrides()
	skip := len(outIdx) - len(shape)

	offset := 0
	for d := range shape {
		i := outIdx[skip+d]
		if shape[d] == 1 {
			i = 0
		}
		offset += i * strides[d]
	}
	return offset
}

// MatMul multiplies two 2D matrices naively.
func (m *MockBackend) MatMul(a, b *RawTensor) *RawTensor {
	aShape, bShape := a.Shape(), b.Shape()
	if len(aShape) != 2 || len(bShape) != 2 || aShape[1] != bShape[0] {
		panic(fmt.Sprintf("mock matmul: bad shapes %v @ %v", aShape, bShape))
	}
	rows, inner, cols := aShape[0], aShape[1], bShape[1]

	result, err := NewRaw(Shape{rows, cols}, a.DType(), m.Device())
	if err != nil {
		panic(err)
	}

	av := asFloat64Values(a)
	bv := asFloat64Values(b)
	out := make([]float64, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			var sum float64
			for k := 0; k < inner; k++ {
				sum += av[i*inner+k] * bv[k*cols+j]
			}
			out[i*cols+j] = sum
		}
	}

	setFloat64Values(result, out)
	return result
}

// Reshape returns a copy with the new shape.
func (m *MockBackend) Reshape(t *RawTensor, newShape Shape) *RawTensor {
	if t.NumElements() != newShape.NumElements() {
		panic(fmt.Sprintf("mock reshape: %v incompatible with %v", t.Shape(), newShape))
	}
	result, err := NewRaw(newShape, t.DType(), m.Device())
	if err != nil {
		panic(err)
	}
	setFloat64Values(result, asFloat64Values(t))
	return result
}

// Transpose permutes dimensions; default reverses them.
func (m *MockBackend) Transpose(t *RawTensor, axes ...int) *RawTensor {
	shape := t.Shape()
	if len(axes) == 0 {
		axes = make([]int, len(shape))
		for i := range axes {
			axes[i] = len(shape) - 1 - i
		}
	}

	newShape := make(Shape, len(shape))
	for i, ax := range axes {
		newShape[i] = shape[ax]
	}

	result, err := NewRaw(newShape, t.DType(), m.Device())
	if err != nil {
		panic(err)
	}

	src := asFloat64Values(t)
	out := make([]float64, len(src))
	srcStrides := shape.ComputeStrides()
	newStrides := newShape.ComputeStrides()

	for i := range out {
		rem := i
		srcOffset := 0
		for d := range newShape {
			idx := rem / newStrides[d]
			rem %= newStrides[d]
			srcOffset += idx * srcStrides[axes[d]]
		}
		out[i] = src[srcOffset]
	}

	setFloat64Values(result, out)
	return result
}

// MulScalar multiplies every element by a scalar.
func (m *MockBackend) MulScalar(x *RawTensor, scalar any) *RawTensor {
	var s float64
	switch v := scalar.(type) {
	case float32:
		s = float64(v)
	case float64:
		s = v
	case int:
		s = float64(v)
	default:
		panic(fmt.Sprintf("mock mulscalar: unsupported scalar %T", scalar))
	}

	result, err := NewRaw(x.Shape(), x.DType(), m.Device())
	if err != nil {
		panic(err)
	}
	src := asFloat64Values(x)
	out := make([]float64, len(src))
	for i, v := range src {
		out[i] = v * s
	}
	setFloat64Values(result, out)
	return result
}

// Sum reduces to a shape-[1] scalar.
func (m *MockBackend) Sum(x *RawTensor) *RawTensor {
	return m.reduce(x, false)
}

// Mean reduces to a shape-[1] scalar.
func (m *MockBackend) Mean(x *RawTensor) *RawTensor {
	return m.reduce(x, true)
}

func (m *MockBackend) reduce(x *RawTensor, mean bool) *RawTensor {
	result, err := NewRaw(Shape{1}, x.DType(), m.Device())
	if err != nil {
		panic(err)
	}

	var sum float64
	values := asFloat64Values(x)
	for _, v := range values {
		sum += v
	}
	if mean {
		sum /= float64(len(values))
	}
	setFloat64Values(result, []float64{sum})
	return result
}

// asFloat64Values reads any supported dtype as float64.
func asFloat64Values(t *RawTensor) []float64 {
	switch t.DType() {
	case Float64:
		return append([]float64(nil), t.AsFloat64()...)
	case Float32:
		src := t.AsFloat32()
		out := make([]float64, len(src))
		for i, v := range src {
			out[i] = float64(v)
		}
		return out
	default:
		panic(fmt.Sprintf("mock backend: unsupported dtype %s", t.DType()))
	}
}

// setFloat64Values writes float64 values into any supported dtype.
func setFloat64Values(t *RawTensor, values []float64) {
	switch t.DType() {
	case Float64:
		copy(t.AsFloat64(), values)
	case Float32:
		dst := t.AsFloat32()
		for i, v := range values {
			dst[i] = float32(v)
		}
	default:
		panic(fmt.Sprintf("mock backend: unsupported dtype %s", t.DType()))
	}
}
