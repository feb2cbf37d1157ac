package cpu

import (
	"math"
	"testing"

	"github.com/lowrank-ml/lowrank/internal/tensor"
)

func newRaw(t *testing.T, data []float32, shape tensor.Shape) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	if err != nil {
		t.Fatalf("NewRaw failed: %v", err)
	}
	copy(raw.AsFloat32(), data)
	return raw
}

func assertFloat32s(t *testing.T, got, want []float32, msg string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: length %d, want %d", msg, len(got), len(want))
	}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Errorf("%s: [%d] = %v, want %v", msg, i, got[i], want[i])
		}
	}
}

func TestCPUBackend_Metadata(t *testing.T) {
	backend := New()
	if backend.Name() != "CPU" {
		t.Errorf("Name() = %q, want CPU", backend.Name())
	}
	if backend.Device() != tensor.CPU {
		t.Errorf("Device() = %v, want CPU", backend.Device())
	}
}

func TestAdd(t *testing.T) {
	backend := New()
	a := newRaw(t, []float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	b := newRaw(t, []float32{10, 20, 30, 40}, tensor.Shape{2, 2})

	result := backend.Add(a, b)
	assertFloat32s(t, result.AsFloat32(), []float32{11, 22, 33, 44}, "add")
}

func TestAdd_BroadcastsRow(t *testing.T) {
	backend := New()
	a := newRaw(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	bias := newRaw(t, []float32{10, 20, 30}, tensor.Shape{1, 3})

	result := backend.Add(a, bias)
	if !result.Shape().Equal(tensor.Shape{2, 3}) {
		t.Fatalf("shape = %v, want [2 3]", result.Shape())
	}
	assertFloat32s(t, result.AsFloat32(), []float32{11, 22, 33, 14, 25, 36}, "broadcast add")
}

func TestSubMul(t *testing.T) {
	backend := New()
	a := newRaw(t, []float32{5, 6, 7, 8}, tensor.Shape{4})
	b := newRaw(t, []float32{1, 2, 3, 4}, tensor.Shape{4})

	assertFloat32s(t, backend.Sub(a, b).AsFloat32(), []float32{4, 4, 4, 4}, "sub")
	assertFloat32s(t, backend.Mul(a, b).AsFloat32(), []float32{5, 12, 21, 32}, "mul")
}

func TestMatMul(t *testing.T) {
	backend := New()
	a := newRaw(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	b := newRaw(t, []float32{7, 8, 9, 10, 11, 12}, tensor.Shape{3, 2})

	result := backend.MatMul(a, b)
	if !result.Shape().Equal(tensor.Shape{2, 2}) {
		t.Fatalf("shape = %v, want [2 2]", result.Shape())
	}
	assertFloat32s(t, result.AsFloat32(), []float32{58, 64, 139, 154}, "matmul")
}

func TestMatMul_ShapeMismatchPanics(t *testing.T) {
	backend := New()
	a := newRaw(t, make([]float32, 6), tensor.Shape{2, 3})
	b := newRaw(t, make([]float32, 4), tensor.Shape{2, 2})

	defer func() {
		if recover() == nil {
			t.Error("expected panic on inner dimension mismatch")
		}
	}()
	backend.MatMul(a, b)
}

func TestTranspose(t *testing.T) {
	backend := New()
	a := newRaw(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})

	result := backend.Transpose(a)
	if !result.Shape().Equal(tensor.Shape{3, 2}) {
		t.Fatalf("shape = %v, want [3 2]", result.Shape())
	}
	assertFloat32s(t, result.AsFloat32(), []float32{1, 4, 2, 5, 3, 6}, "transpose")
}

func TestReshape(t *testing.T) {
	backend := New()
	a := newRaw(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})

	result := backend.Reshape(a, tensor.Shape{3, 2})
	if !result.Shape().Equal(tensor.Shape{3, 2}) {
		t.Fatalf("shape = %v, want [3 2]", result.Shape())
	}
	assertFloat32s(t, result.AsFloat32(), []float32{1, 2, 3, 4, 5, 6}, "reshape keeps order")
}

func TestMulScalar(t *testing.T) {
	backend := New()
	a := newRaw(t, []float32{1, -2, 3}, tensor.Shape{3})

	assertFloat32s(t, backend.MulScalar(a, float32(2)).AsFloat32(), []float32{2, -4, 6}, "mulscalar float32")
	assertFloat32s(t, backend.MulScalar(a, 0.5).AsFloat32(), []float32{0.5, -1, 1.5}, "mulscalar float64")
}

func TestSumMean(t *testing.T) {
	backend := New()
	a := newRaw(t, []float32{1, 2, 3, 4}, tensor.Shape{2, 2})

	sum := backend.Sum(a)
	if !sum.Shape().Equal(tensor.Shape{1}) {
		t.Fatalf("sum shape = %v, want [1]", sum.Shape())
	}
	assertFloat32s(t, sum.AsFloat32(), []float32{10}, "sum")
	assertFloat32s(t, backend.Mean(a).AsFloat32(), []float32{2.5}, "mean")
}

func TestReLU(t *testing.T) {
	backend := New()
	a := newRaw(t, []float32{-1, 0, 2, -3.5}, tensor.Shape{4})

	assertFloat32s(t, backend.ReLU(a).AsFloat32(), []float32{0, 0, 2, 0}, "relu")
}
