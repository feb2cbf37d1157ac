package ops

import "github.com/lowrank-ml/lowrank/internal/tensor"

// SumOp represents a full reduction: output = sum(x) with shape [1].
//
// Backward pass: d(sum(x))/dx_i = 1, so grad_x is the scalar gradient
// broadcast to the input shape.
type SumOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewSumOp creates a new SumOp.
func NewSumOp(input, output *tensor.RawTensor) *SumOp {
	return &SumOp{input: input, output: output}
}

// Backward computes the input gradient for a full sum.
func (op *SumOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	g := scalarValue(outputGrad)
	return []*tensor.RawTensor{fullLike(op.input.Shape(), op.input.DType(), g, backend)}
}

// Inputs returns the input tensor [x].
func (op *SumOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the scalar sum tensor.
func (op *SumOp) Output() *tensor.RawTensor {
	return op.output
}

// MeanOp represents a full reduction: output = mean(x) with shape [1].
//
// Backward pass: d(mean(x))/dx_i = 1/N.
type MeanOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewMeanOp creates a new MeanOp.
func NewMeanOp(input, output *tensor.RawTensor) *MeanOp {
	return &MeanOp{input: input, output: output}
}

// Backward computes the input gradient for a full mean.
func (op *MeanOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	g := scalarValue(outputGrad) / float64(op.input.NumElements())
	return []*tensor.RawTensor{fullLike(op.input.Shape(), op.input.DType(), g, backend)}
}

// Inputs returns the input tensor [x].
func (op *MeanOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the scalar mean tensor.
func (op *MeanOp) Output() *tensor.RawTensor {
	return op.output
}
