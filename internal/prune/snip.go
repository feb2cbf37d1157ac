package prune

import (
	"fmt"
	"math"

	"github.com/lowrank-ml/lowrank/internal/nn"
	"github.com/lowrank-ml/lowrank/internal/tensor"
)

// SNIPScorer scores components by their sensitivity to the loss.
//
// With a per-component gating variable m_i multiplying component i's rank-1
// contribution, the sensitivity at m_i = 1 is
//
//	score_i = |∂L/∂m_i · m_i| = |L[:,i]ᵀ G R[i,:]|
//
// where G = ∂Loss/∂W is the gradient of the loss with respect to the layer's
// reconstructed weight. The caller supplies G through the Scheduler's
// gradient provider, computed from exactly one representative batch; the
// scorer consumes what it is given and never resamples internally, so scores
// are deterministic for a fixed batch.
type SNIPScorer[B tensor.Backend] struct{}

// Name returns "snip".
func (s *SNIPScorer[B]) Name() string {
	return ScorerSNIP
}

// Needs reports that SNIP requires per-layer weight gradients.
func (s *SNIPScorer[B]) Needs() Needs {
	return Needs{Gradients: true}
}

// Score returns |L[:,i]ᵀ G R[i,:]| for each active component i.
func (s *SNIPScorer[B]) Score(name string, layer *nn.FactorizedLinear[B], sig *Signals) ([]ComponentScore, error) {
	if sig == nil || sig.WeightGrads == nil {
		return nil, &MissingSignalError{Scorer: ScorerSNIP, Signal: "weight gradient", Layer: name}
	}
	grad, ok := sig.WeightGrads[name]
	if !ok || grad == nil {
		return nil, &MissingSignalError{Scorer: ScorerSNIP, Signal: "weight gradient", Layer: name}
	}

	out, in := layer.OutFeatures(), layer.InFeatures()
	want := tensor.Shape{out, in}
	if !grad.Shape().Equal(want) {
		return nil, fmt.Errorf("snip scorer: gradient shape %v for layer %q, want %v", grad.Shape(), name, want)
	}

	g := grad.AsFloat32()
	active := layer.ActiveComponents()
	scores := make([]ComponentScore, 0, len(active))

	for _, i := range active {
		left := layer.LeftColumn(i)
		right := layer.RightRow(i)

		// l^T G r, accumulated in float64
		var acc float64
		for row := 0; row < out; row++ {
			var rowDot float64
			base := row * in
			for col := 0; col < in; col++ {
				rowDot += float64(g[base+col]) * float64(right[col])
			}
			acc += float64(left[row]) * rowDot
		}

		scores = append(scores, ComponentScore{
			Layer: name,
			Index: i,
			Score: math.Abs(acc),
		})
	}

	return scores, nil
}
