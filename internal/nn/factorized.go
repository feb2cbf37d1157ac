package nn

import (
	"fmt"
	"sort"

	"github.com/lowrank-ml/lowrank/internal/tensor"
)

// FactorizedLinear implements a fully connected layer whose weight matrix is
// stored as a low-rank product of two factors:
//
//	W = L @ R
//
// where:
//   - L (left factor) has shape [out_features, max_rank]
//   - R (right factor) has shape [max_rank, in_features]
//
// Each column L[:,i] together with row R[i,:] forms one rank-1 component of
// the effective weight. Components can be permanently deactivated, lowering
// the layer's effective rank. The removed set is append-only: once a
// component is deactivated there is no operation that brings it back, so
// Rank() is non-increasing over the lifetime of the layer.
//
// Forward performs y = x @ W.T + b using the active components only.
//
// Example:
//
//	layer := nn.NewFactorizedLinear(784, 128, 64, backend)
//	layer.Rank()                      // 64
//	_ = layer.Deactivate([]int{3, 7}) // drop two components
//	layer.Rank()                      // 62
type FactorizedLinear[B tensor.Backend] struct {
	inFeatures  int
	outFeatures int
	maxRank     int

	left  *Parameter[B] // [out_features, max_rank]
	right *Parameter[B] // [max_rank, in_features]
	bias  *Parameter[B] // [out_features]

	// leftMask and rightMask are 0/1 tensors matching the factor shapes.
	// Deactivate zeroes the corresponding column/row, so the masked product
	// excludes removed components no matter what the optimizer later does to
	// the factor data.
	leftMask  *tensor.Tensor[float32, B]
	rightMask *tensor.Tensor[float32, B]

	// removed is append-only; entries are never deleted.
	removed map[int]struct{}

	// lastWeight is the reconstructed weight used by the most recent Forward.
	// Gradient providers use it to look up dL/dW after a backward pass.
	lastWeight *tensor.RawTensor

	backend B
}

// NewFactorizedLinear creates a new factorized linear layer with all
// maxRank components active.
//
// Both factors are initialized with Xavier/Glorot uniform distribution so
// the reconstructed product starts at a sane scale. Bias is zeros.
//
// Parameters:
//   - inFeatures: Number of input features
//   - outFeatures: Number of output features
//   - maxRank: Number of rank-1 components (the layer's maximum rank)
//   - backend: Backend to use for tensor operations
func NewFactorizedLinear[B tensor.Backend](inFeatures, outFeatures, maxRank int, backend B) *FactorizedLinear[B] {
	if maxRank <= 0 {
		panic(fmt.Sprintf("NewFactorizedLinear: maxRank must be positive, got %d", maxRank))
	}

	left := NewParameter("left", Xavier(maxRank, outFeatures, tensor.Shape{outFeatures, maxRank}, backend))
	right := NewParameter("right", Xavier(inFeatures, maxRank, tensor.Shape{maxRank, inFeatures}, backend))
	bias := NewParameter("bias", Zeros(tensor.Shape{outFeatures}, backend))

	return &FactorizedLinear[B]{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		maxRank:     maxRank,
		left:        left,
		right:       right,
		bias:        bias,
		leftMask:    tensor.Ones[float32](tensor.Shape{outFeatures, maxRank}, backend),
		rightMask:   tensor.Ones[float32](tensor.Shape{maxRank, inFeatures}, backend),
		removed:     make(map[int]struct{}),
		backend:     backend,
	}
}

// Rank returns the current effective rank (number of active components).
func (l *FactorizedLinear[B]) Rank() int {
	return l.maxRank - len(l.removed)
}

// MaxRank returns the layer's maximum rank (number of components at build time).
func (l *FactorizedLinear[B]) MaxRank() int {
	return l.maxRank
}

// InFeatures returns the number of input features.
func (l *FactorizedLinear[B]) InFeatures() int {
	return l.inFeatures
}

// OutFeatures returns the number of output features.
func (l *FactorizedLinear[B]) OutFeatures() int {
	return l.outFeatures
}

// ActiveMask returns the component mask, index i true when component i is active.
func (l *FactorizedLinear[B]) ActiveMask() []bool {
	mask := make([]bool, l.maxRank)
	for i := range mask {
		_, gone := l.removed[i]
		mask[i] = !gone
	}
	return mask
}

// ActiveComponents returns the indices of active components in ascending order.
func (l *FactorizedLinear[B]) ActiveComponents() []int {
	active := make([]int, 0, l.Rank())
	for i := 0; i < l.maxRank; i++ {
		if _, gone := l.removed[i]; !gone {
			active = append(active, i)
		}
	}
	return active
}

// Deactivate permanently removes the given components from the layer.
//
// Returns an InvalidComponentError if any index is out of [0, maxRank),
// already inactive, or duplicated within the call. Validation happens before
// any mutation: on error the layer is left unchanged.
//
// The corresponding factor column/row is zeroed, and so is the matching
// mask entry, so the component can no longer contribute to Reconstruct or
// Forward even if the optimizer later perturbs the factor data. There is no
// inverse operation.
func (l *FactorizedLinear[B]) Deactivate(indices []int) error {
	seen := make(map[int]struct{}, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= l.maxRank {
			return &InvalidComponentError{Index: idx, MaxRank: l.maxRank, Reason: "out of range"}
		}
		if _, gone := l.removed[idx]; gone {
			return &InvalidComponentError{Index: idx, MaxRank: l.maxRank, Reason: "already inactive"}
		}
		if _, dup := seen[idx]; dup {
			return &InvalidComponentError{Index: idx, MaxRank: l.maxRank, Reason: "duplicate index"}
		}
		seen[idx] = struct{}{}
	}

	leftData := l.left.Tensor().Data()   // [out, maxRank] row-major
	rightData := l.right.Tensor().Data() // [maxRank, in] row-major
	leftMask := l.leftMask.Data()
	rightMask := l.rightMask.Data()

	for _, idx := range indices {
		l.removed[idx] = struct{}{}
		for row := 0; row < l.outFeatures; row++ {
			leftData[row*l.maxRank+idx] = 0
			leftMask[row*l.maxRank+idx] = 0
		}
		for col := 0; col < l.inFeatures; col++ {
			rightData[idx*l.inFeatures+col] = 0
			rightMask[idx*l.inFeatures+col] = 0
		}
	}

	return nil
}

// Reconstruct returns the dense-equivalent weight matrix [out_features,
// in_features] built from the active components only. It is side-effect free
// and callable at any time, including mid-training.
//
// The factors are gated by the component masks and multiplied entirely
// through backend ops, so an autodiff backend records the whole chain and a
// backward pass produces gradients for the left and right factor parameters
// as well as the reconstructed weight. Deactivated components sit behind a
// zero mask, so their gradient is exactly zero and they never train.
func (l *FactorizedLinear[B]) Reconstruct() *tensor.Tensor[float32, B] {
	gatedLeft := l.left.Tensor().Mul(l.leftMask)
	gatedRight := l.right.Tensor().Mul(l.rightMask)
	return gatedLeft.MatMul(gatedRight)
}

// Forward computes the output of the factorized layer.
//
// Performs: y = x @ W.T + b with W = Reconstruct()
//
// Input shape: [batch_size, in_features]
// Output shape: [batch_size, out_features]
func (l *FactorizedLinear[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	inputShape := input.Shape()
	if len(inputShape) != 2 {
		panic(fmt.Sprintf("FactorizedLinear.Forward: expected 2D input [batch, features], got shape %v", inputShape))
	}
	if inputShape[1] != l.inFeatures {
		panic(fmt.Sprintf("FactorizedLinear.Forward: expected input with %d features, got %d", l.inFeatures, inputShape[1]))
	}

	w := l.Reconstruct()
	l.lastWeight = w.Raw()

	output := input.MatMul(w.T())

	if l.bias != nil {
		output = output.Add(l.bias.Tensor().Reshape(1, l.outFeatures))
	}

	return output
}

// LastWeight returns the reconstructed weight tensor used by the most recent
// Forward call, or nil if Forward has not run yet. After a backward pass on
// an autodiff backend, the gradient map keyed by this tensor holds dL/dW.
func (l *FactorizedLinear[B]) LastWeight() *tensor.RawTensor {
	return l.lastWeight
}

// LeftColumn returns a copy of L[:,i], the output direction of component i.
func (l *FactorizedLinear[B]) LeftColumn(i int) []float32 {
	l.checkComponent(i)
	leftData := l.left.Tensor().Data()
	col := make([]float32, l.outFeatures)
	for row := 0; row < l.outFeatures; row++ {
		col[row] = leftData[row*l.maxRank+i]
	}
	return col
}

// RightRow returns a copy of R[i,:], the input direction of component i.
func (l *FactorizedLinear[B]) RightRow(i int) []float32 {
	l.checkComponent(i)
	rightData := l.right.Tensor().Data()
	row := make([]float32, l.inFeatures)
	copy(row, rightData[i*l.inFeatures:(i+1)*l.inFeatures])
	return row
}

func (l *FactorizedLinear[B]) checkComponent(i int) {
	if i < 0 || i >= l.maxRank {
		panic(fmt.Sprintf("component index %d out of range [0, %d)", i, l.maxRank))
	}
}

// Parameters returns the trainable parameters of this layer.
func (l *FactorizedLinear[B]) Parameters() []*Parameter[B] {
	if l.bias != nil {
		return []*Parameter[B]{l.left, l.right, l.bias}
	}
	return []*Parameter[B]{l.left, l.right}
}

// Left returns the left factor parameter [out_features, max_rank].
func (l *FactorizedLinear[B]) Left() *Parameter[B] {
	return l.left
}

// Right returns the right factor parameter [max_rank, in_features].
func (l *FactorizedLinear[B]) Right() *Parameter[B] {
	return l.right
}

// Bias returns the bias parameter.
func (l *FactorizedLinear[B]) Bias() *Parameter[B] {
	return l.bias
}

// RemovedComponents returns the deactivated indices in ascending order.
func (l *FactorizedLinear[B]) RemovedComponents() []int {
	gone := make([]int, 0, len(l.removed))
	for idx := range l.removed {
		gone = append(gone, idx)
	}
	sort.Ints(gone)
	return gone
}
