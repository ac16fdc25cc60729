package workflow

import (
	"fmt"
	"sort"
)

// TransitionTable maps (state, action) to the next state. A state without
// entries is terminal.
type TransitionTable map[State]map[Action]State

// StandardTable returns the default document lifecycle:
//
//	draft --submit--> pending --approve--> approved --post--> posted
//	                          \--reject--> rejected
func StandardTable() TransitionTable {
	return TransitionTable{
		StateDraft:    {ActionSubmit: StatePending},
		StatePending:  {ActionApprove: StateApproved, ActionReject: StateRejected},
		StateApproved: {ActionPost: StatePosted},
		StateRejected: {},
		StatePosted:   {},
	}
}

// Next returns the target state for action from state
func (t TransitionTable) Next(from State, action Action) (State, bool) {
	to, ok := t[from][action]
	return to, ok
}

// IsTerminal reports whether no action leaves state
func (t TransitionTable) IsTerminal(s State) bool {
	return len(t[s]) == 0
}

// Actions returns the actions valid from state, sorted for stable output
func (t TransitionTable) Actions(from State) []Action {
	actions := make([]Action, 0, len(t[from]))
	for a := range t[from] {
		actions = append(actions, a)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })
	return actions
}

// Validate checks that every state reachable through the table is a known State
// and that draft is an entry point.
func (t TransitionTable) Validate() error {
	if _, ok := t[StateDraft]; !ok {
		return fmt.Errorf("transition table has no %s state", StateDraft)
	}
	for from, edges := range t {
		if !from.IsValid() {
			return fmt.Errorf("transition table has unknown state %q", from)
		}
		for action, to := range edges {
			if !to.IsValid() {
				return fmt.Errorf("transition %s --%s--> %q targets an unknown state", from, action, to)
			}
		}
	}
	return nil
}
