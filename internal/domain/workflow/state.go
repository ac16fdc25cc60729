package workflow

import "strings"

// State is the lifecycle state of a document
type State string

const (
	StateDraft    State = "draft"
	StatePending  State = "pending"
	StateApproved State = "approved"
	StateRejected State = "rejected"
	StatePosted   State = "posted"
)

// IsValid checks if the state is a known State
func (s State) IsValid() bool {
	switch s {
	case StateDraft, StatePending, StateApproved, StateRejected, StatePosted:
		return true
	}
	return false
}

// String returns the string representation of State
func (s State) String() string {
	return string(s)
}

// Action triggers a transition between states
type Action string

const (
	ActionSubmit  Action = "submit"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionPost    Action = "post"
)

// ParseAction normalizes raw input into an Action. Unknown actions are
// returned as-is so the transition table can reject them.
func ParseAction(raw string) Action {
	return Action(strings.ToLower(strings.TrimSpace(raw)))
}

// IsVote reports whether the action is an approval decision
func (a Action) IsVote() bool {
	return a == ActionApprove || a == ActionReject
}

// String returns the string representation of Action
func (a Action) String() string {
	return string(a)
}
