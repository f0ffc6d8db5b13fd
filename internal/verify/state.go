package verify

import "fmt"

// UnitState is a step in a unit's lifecycle.
type UnitState string

const (
	StatePending        UnitState = "pending"
	StatePromptBuilding UnitState = "prompt_building"
	StateAIProcessing   UnitState = "ai_processing"
	StateSaving         UnitState = "saving"
	StateDone           UnitState = "done"
	StateFailed         UnitState = "failed"
)

// Final reports whether s is a terminal state.
func (s UnitState) Final() bool { return s == StateDone || s == StateFailed }

var forward = map[UnitState]UnitState{
	StatePending:        StatePromptBuilding,
	StatePromptBuilding: StateAIProcessing,
	StateAIProcessing:   StateSaving,
	StateSaving:         StateDone,
}

// CanTransition reports whether from -> to is a legal lifecycle step.
// Any non-final state may fail.
func CanTransition(from, to UnitState) bool {
	if from.Final() {
		return false
	}
	if to == StateFailed {
		return true
	}
	return forward[from] == to
}

// lifecycle tracks one unit's state.
type lifecycle struct {
	unit  string
	state UnitState
}

func newLifecycle(unit string) *lifecycle {
	return &lifecycle{unit: unit, state: StatePending}
}

func (l *lifecycle) advance(to UnitState) error {
	if !CanTransition(l.state, to) {
		return fmt.Errorf("unit %q: illegal transition %s -> %s", l.unit, l.state, to)
	}
	l.state = to
	return nil
}
