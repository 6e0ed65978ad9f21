package workflow

import (
	"fmt"

	"github.com/byggpilot/byggpilot/internal/store"
)

// Stage of a draft→review→finalize run. Transitions only move forward;
// a done instance is immutable and corrections happen as new compensating
// actions, never by reopening.
type Stage string

const (
	StageDrafting   Stage = "drafting"
	StageReviewing  Stage = "reviewing"
	StageFinalizing Stage = "finalizing"
	StageDone       Stage = "done"
)

var stageOrder = map[Stage]int{
	StageDrafting:   0,
	StageReviewing:  1,
	StageFinalizing: 2,
	StageDone:       3,
}

func (s Stage) valid() bool {
	_, ok := stageOrder[s]
	return ok
}

// Advance moves an instance to the given stage. Only the immediate next
// stage is allowed; staying put is a no-op.
func Advance(instance *store.WorkflowInstance, to Stage) error {
	if instance == nil {
		return fmt.Errorf("workflow instance is nil")
	}
	from := Stage(instance.Stage)
	if !from.valid() {
		return fmt.Errorf("unknown workflow stage %q", instance.Stage)
	}
	if !to.valid() {
		return fmt.Errorf("unknown workflow stage %q", to)
	}
	if from == StageDone {
		return fmt.Errorf("workflow instance %s is finalized and cannot change", instance.ID)
	}
	if to == from {
		return nil
	}
	if stageOrder[to] != stageOrder[from]+1 {
		return fmt.Errorf("cannot move workflow from %s to %s", from, to)
	}
	instance.Stage = string(to)
	return nil
}

// ChecklistComplete reports whether every checklist item has been ticked.
// An empty checklist counts as complete.
func ChecklistComplete(items map[string]bool) bool {
	for _, done := range items {
		if !done {
			return false
		}
	}
	return true
}
