package main

import (
	"fmt"

	"github.com/lowrank-ml/lowrank/internal/config"
	"github.com/lowrank-ml/lowrank/internal/nn"
	"github.com/lowrank-ml/lowrank/internal/tensor"
)

// rankNet is a fully-connected regression network: factorized linear layers
// with ReLU activations, followed by a dense output head that stays out of
// the pruning run.
//
// Every factorized layer shares the same max rank, so the pruning scheduler
// can trade capacity between them under the global scope.
type rankNet[B tensor.Backend] struct {
	layers []*nn.FactorizedLinear[B]
	head   *nn.Linear[B]
	relu   *nn.ReLU[B]
	names  []string
}

// newRankNet builds the network described by the model config.
//
// The factorized layers span in_features -> hidden[0] -> ... ->
// hidden[last]; the dense head maps hidden[last] -> out_features. With no
// hidden widths the network degenerates to a single factorized layer.
func newRankNet[B tensor.Backend](cfg config.Model, backend B) *rankNet[B] {
	dims := make([]int, 0, len(cfg.Hidden)+2)
	dims = append(dims, cfg.InFeatures)
	dims = append(dims, cfg.Hidden...)
	dims = append(dims, cfg.OutFeatures)

	net := &rankNet[B]{relu: nn.NewReLU[B]()}
	last := len(dims) - 1
	if len(cfg.Hidden) == 0 {
		net.layers = append(net.layers, nn.NewFactorizedLinear(dims[0], dims[1], cfg.MaxRank, backend))
		net.names = append(net.names, "fc1")
		return net
	}
	for i := 0; i+1 < last; i++ {
		net.layers = append(net.layers, nn.NewFactorizedLinear(dims[i], dims[i+1], cfg.MaxRank, backend))
		net.names = append(net.names, fmt.Sprintf("fc%d", i+1))
	}
	net.head = nn.NewLinear(dims[last-1], dims[last], backend)
	return net
}

// Forward runs the full network.
func (n *rankNet[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	x := input
	for i, layer := range n.layers {
		x = layer.Forward(x)
		if n.head != nil || i+1 < len(n.layers) {
			x = n.relu.Forward(x)
		}
	}
	if n.head != nil {
		x = n.head.Forward(x)
	}
	return x
}

// LayerOutputs runs the network and returns each factorized layer's
// pre-activation output. Used to build alignment references.
func (n *rankNet[B]) LayerOutputs(input *tensor.Tensor[float32, B]) []*tensor.Tensor[float32, B] {
	outputs := make([]*tensor.Tensor[float32, B], 0, len(n.layers))
	x := input
	for i, layer := range n.layers {
		x = layer.Forward(x)
		outputs = append(outputs, x)
		if i+1 < len(n.layers) {
			x = n.relu.Forward(x)
		}
	}
	return outputs
}

// Parameters returns all trainable parameters of the network.
func (n *rankNet[B]) Parameters() []*nn.Parameter[B] {
	params := make([]*nn.Parameter[B], 0)
	for _, layer := range n.layers {
		params = append(params, layer.Parameters()...)
	}
	if n.head != nil {
		params = append(params, n.head.Parameters()...)
	}
	return params
}

// TotalRank sums the effective rank across all layers.
func (n *rankNet[B]) TotalRank() int {
	total := 0
	for _, layer := range n.layers {
		total += layer.Rank()
	}
	return total
}
