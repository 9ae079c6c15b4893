package workflows

import (
	"fmt"
	"slices"
)

// StateMachine enforces status transitions for a workflow
type StateMachine struct {
	allowedTransitions map[string][]string
}

// NewStateMachine creates a state machine from an explicit transition table.
// Statuses that appear only as targets are terminal.
func NewStateMachine(transitions map[string][]string) *StateMachine {
	return &StateMachine{allowedTransitions: transitions}
}

// NewCampaignStateMachine returns the outreach campaign lifecycle
func NewCampaignStateMachine() *StateMachine {
	return NewStateMachine(map[string][]string{
		"draft":     {"scheduled", "running", "cancelled"},
		"scheduled": {"running", "draft", "cancelled"},
		"running":   {"paused", "completed", "cancelled"},
		"paused":    {"running", "cancelled"},
		"completed": {},
		"cancelled": {},
	})
}

// NewPlacementStateMachine returns the practicum placement lifecycle
func NewPlacementStateMachine() *StateMachine {
	return NewStateMachine(map[string][]string{
		"pending":   {"confirmed", "cancelled"},
		"confirmed": {"active", "cancelled"},
		"active":    {"completed", "cancelled"},
		"completed": {},
		"cancelled": {},
	})
}

// CanTransition checks if a status transition is allowed
func (sm *StateMachine) CanTransition(from, to string) bool {
	return slices.Contains(sm.allowedTransitions[from], to)
}

// Transition returns an error if from -> to is not allowed
func (sm *StateMachine) Transition(from, to string) error {
	if !sm.CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

// GetAllowedTransitions returns the allowed next statuses for a given status
func (sm *StateMachine) GetAllowedTransitions(from string) []string {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return []string{}
	}
	return slices.Clone(allowed)
}

// IsTerminal reports whether no transition leaves status
func (sm *StateMachine) IsTerminal(status string) bool {
	return len(sm.allowedTransitions[status]) == 0
}

// TransitionError is returned for a disallowed status change
type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot transition from %q to %q", e.From, e.To)
}
