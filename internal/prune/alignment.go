package prune

import (
	"fmt"
	"math"

	"github.com/lowrank-ml/lowrank/internal/nn"
	"github.com/lowrank-ml/lowrank/internal/tensor"
)

// AlignmentScorer scores components by how well their output direction
// aligns with an externally supplied reference direction:
//
//	score_i = |cos(L[:,i], ref)| · ‖L[:,i]‖ · ‖R[i,:]‖
//
// The reference lives in the layer's output space, typically the mean
// gradient of the layer's output over a batch. Weighting the cosine by the
// component's magnitude keeps a large component that points along the
// reference ahead of a tiny one that happens to align perfectly.
//
// The caller must supply the reference through the Scheduler's reference
// provider; scoring fails with MissingSignalError otherwise.
type AlignmentScorer[B tensor.Backend] struct{}

// Name returns "alignment".
func (s *AlignmentScorer[B]) Name() string {
	return ScorerAlignment
}

// Needs reports that alignment requires per-layer reference directions.
func (s *AlignmentScorer[B]) Needs() Needs {
	return Needs{Reference: true}
}

// Score returns the alignment score for each active component.
func (s *AlignmentScorer[B]) Score(name string, layer *nn.FactorizedLinear[B], sig *Signals) ([]ComponentScore, error) {
	if sig == nil || sig.References == nil {
		return nil, &MissingSignalError{Scorer: ScorerAlignment, Signal: "reference direction", Layer: name}
	}
	ref, ok := sig.References[name]
	if !ok || ref == nil {
		return nil, &MissingSignalError{Scorer: ScorerAlignment, Signal: "reference direction", Layer: name}
	}

	out := layer.OutFeatures()
	want := tensor.Shape{out}
	if !ref.Shape().Equal(want) {
		return nil, fmt.Errorf("alignment scorer: reference shape %v for layer %q, want %v", ref.Shape(), name, want)
	}

	refData := ref.AsFloat32()
	refNorm := l2Norm(refData)

	active := layer.ActiveComponents()
	scores := make([]ComponentScore, 0, len(active))

	for _, i := range active {
		left := layer.LeftColumn(i)
		leftNorm := l2Norm(left)

		var cos float64
		if leftNorm > 0 && refNorm > 0 {
			var dot float64
			for j := range left {
				dot += float64(left[j]) * float64(refData[j])
			}
			cos = dot / (leftNorm * refNorm)
		}

		scores = append(scores, ComponentScore{
			Layer: name,
			Index: i,
			Score: math.Abs(cos) * leftNorm * l2Norm(layer.RightRow(i)),
		})
	}

	return scores, nil
}
