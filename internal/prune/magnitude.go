package prune

import (
	"math"

	"github.com/lowrank-ml/lowrank/internal/nn"
	"github.com/lowrank-ml/lowrank/internal/tensor"
)

// MagnitudeScorer scores component i by the Frobenius norm of its rank-1
// contribution to the reconstructed weight:
//
//	score_i = ‖L[:,i] ⊗ R[i,:]‖_F = ‖L[:,i]‖₂ · ‖R[i,:]‖₂
//
// It is a pure function of the current weights: no gradients or activations
// are needed, and repeated calls on unchanged weights give identical scores.
type MagnitudeScorer[B tensor.Backend] struct{}

// Name returns "magnitude".
func (s *MagnitudeScorer[B]) Name() string {
	return ScorerMagnitude
}

// Needs reports that magnitude scoring consumes no external signals.
func (s *MagnitudeScorer[B]) Needs() Needs {
	return Needs{}
}

// Score returns ‖L[:,i]‖·‖R[i,:]‖ for each active component i.
func (s *MagnitudeScorer[B]) Score(name string, layer *nn.FactorizedLinear[B], _ *Signals) ([]ComponentScore, error) {
	active := layer.ActiveComponents()
	scores := make([]ComponentScore, 0, len(active))

	for _, i := range active {
		scores = append(scores, ComponentScore{
			Layer: name,
			Index: i,
			Score: l2Norm(layer.LeftColumn(i)) * l2Norm(layer.RightRow(i)),
		})
	}

	return scores, nil
}

// l2Norm computes the Euclidean norm of a vector in float64.
func l2Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
