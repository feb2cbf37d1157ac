package prune

import (
	"fmt"
	"sort"
)

// Schedule fixes when pruning events fire and how much is removed in total.
//
// The target sparsity is distributed across the scheduled epochs by the
// cumulative-quota rule documented on Scope: after event j of m the removed
// fraction is floor(sparsity·j/m·r)/r of the original rank budget, which
// reaches the target exactly at the last scheduled epoch.
//
// A Schedule is built once from configuration and read-only afterwards.
type Schedule struct {
	pruneEpochs    []int // sorted, unique
	targetSparsity float64
	totalEpochs    int
}

// NewSchedule validates and builds a pruning schedule.
//
// Fails with ScheduleConfigError if:
//   - pruneEpochs is empty
//   - any prune epoch is negative or >= totalEpochs
//   - targetSparsity is outside (0, 1]
//
// Duplicate epochs are collapsed; order does not matter.
func NewSchedule(pruneEpochs []int, targetSparsity float64, totalEpochs int) (*Schedule, error) {
	if totalEpochs <= 0 {
		return nil, &ScheduleConfigError{Field: "total_epochs", Reason: fmt.Sprintf("must be positive, got %d", totalEpochs)}
	}
	if len(pruneEpochs) == 0 {
		return nil, &ScheduleConfigError{Field: "prune_epochs", Reason: "at least one prune epoch required"}
	}
	if targetSparsity <= 0 || targetSparsity > 1 {
		return nil, &ScheduleConfigError{Field: "sparsity", Reason: fmt.Sprintf("must be in (0, 1], got %g", targetSparsity)}
	}

	seen := make(map[int]struct{}, len(pruneEpochs))
	epochs := make([]int, 0, len(pruneEpochs))
	for _, e := range pruneEpochs {
		if e < 0 || e >= totalEpochs {
			return nil, &ScheduleConfigError{
				Field:  "prune_epochs",
				Reason: fmt.Sprintf("epoch %d outside [0, %d)", e, totalEpochs),
			}
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		epochs = append(epochs, e)
	}
	sort.Ints(epochs)

	return &Schedule{
		pruneEpochs:    epochs,
		targetSparsity: targetSparsity,
		totalEpochs:    totalEpochs,
	}, nil
}

// PruneEpochs returns the scheduled epochs in ascending order.
func (s *Schedule) PruneEpochs() []int {
	return append([]int(nil), s.pruneEpochs...)
}

// TargetSparsity returns the fraction of original total rank to remove.
func (s *Schedule) TargetSparsity() float64 {
	return s.targetSparsity
}

// TotalEpochs returns the training run length the schedule was built for.
func (s *Schedule) TotalEpochs() int {
	return s.totalEpochs
}

// NumEvents returns the number of scheduled pruning events.
func (s *Schedule) NumEvents() int {
	return len(s.pruneEpochs)
}

// EventIndex returns the 1-based position of epoch in the schedule and true,
// or 0 and false if epoch is not a scheduled prune epoch.
func (s *Schedule) EventIndex(epoch int) (int, bool) {
	for i, e := range s.pruneEpochs {
		if e == epoch {
			return i + 1, true
		}
	}
	return 0, false
}

// LastEpoch returns the final scheduled prune epoch.
func (s *Schedule) LastEpoch() int {
	return s.pruneEpochs[len(s.pruneEpochs)-1]
}
