package nn

import "fmt"

// InvalidComponentError reports a bad component index passed to
// FactorizedLinear.Deactivate: out of range, already deactivated, or
// duplicated within one call. It signals a programming error in the caller
// and is never retried.
type InvalidComponentError struct {
	Index   int    // offending component index
	MaxRank int    // the layer's maximum rank
	Reason  string // "out of range", "already inactive", "duplicate index"
}

// Error implements the error interface.
func (e *InvalidComponentError) Error() string {
	return fmt.Sprintf("invalid component %d (max rank %d): %s", e.Index, e.MaxRank, e.Reason)
}
