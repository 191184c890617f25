package position

import (
	"fmt"
	"time"
)

// LifecycleState is where a trade sits in its life.
type LifecycleState string

const (
	StateCandidate LifecycleState = "candidate" // validated, not yet opened
	StateOpen      LifecycleState = "open"      // entry persisted and announced
	StateHeld      LifecycleState = "held"      // under exit-loop management
	StateExiting   LifecycleState = "exiting"   // close decision taken
	StateClosed    LifecycleState = "closed"    // completed trade persisted
)

// StateTransition defines one legal lifecycle move.
type StateTransition struct {
	From        LifecycleState
	To          LifecycleState
	Condition   string
	Description string
}

// ValidTransitions is the full lifecycle graph.
var ValidTransitions = []StateTransition{
	{StateCandidate, StateOpen, "entry_persisted", "Active position written and open signal published"},
	{StateCandidate, StateClosed, "entry_discarded", "Persistence failed, candidate dropped without partial state"},
	{StateOpen, StateHeld, "first_tick", "Exit loop picked the position up"},
	{StateHeld, StateHeld, "peak_updated", "Peak price/profit improved on a tick"},
	{StateHeld, StateExiting, "exit_decision", "Exit engine ordered a close"},
	{StateOpen, StateExiting, "exit_decision", "Close ordered before the first held tick"},
	{StateExiting, StateClosed, "trade_persisted", "Completed trade written, active row deleted"},
}

// StateMachine tracks one position's lifecycle and rejects illegal moves.
type StateMachine struct {
	current        LifecycleState
	previous       LifecycleState
	transitionTime time.Time
}

// NewStateMachine starts at the candidate state.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current:        StateCandidate,
		previous:       StateCandidate,
		transitionTime: time.Now().UTC(),
	}
}

// Adopted returns a machine already in the held state, for positions
// recovered from the store after a restart.
func Adopted() *StateMachine {
	return &StateMachine{
		current:        StateHeld,
		previous:       StateOpen,
		transitionTime: time.Now().UTC(),
	}
}

// Current returns the current state.
func (sm *StateMachine) Current() LifecycleState { return sm.current }

// Previous returns the state before the last transition.
func (sm *StateMachine) Previous() LifecycleState { return sm.previous }

// Transition moves to a new state under a condition, or errors when the move
// is not in the lifecycle graph.
func (sm *StateMachine) Transition(to LifecycleState, condition string) error {
	for _, t := range ValidTransitions {
		if t.From != sm.current || t.To != to {
			continue
		}
		if t.Condition != "" && condition != "" && t.Condition != condition {
			continue
		}
		sm.previous = sm.current
		sm.current = to
		sm.transitionTime = time.Now().UTC()
		return nil
	}
	return fmt.Errorf("invalid transition from %s to %s with condition %q",
		sm.current, to, condition)
}

// Terminal reports whether the lifecycle is finished.
func (sm *StateMachine) Terminal() bool { return sm.current == StateClosed }
