package workflow

import "context"

// Transition describes one applied state change
type Transition struct {
	From    State
	To      State
	Trigger Trigger
}

// StateMachine tracks the current state of one expense and validates transitions
type StateMachine interface {
	// State returns the current state
	State() State

	// CanFire returns true if the trigger is permitted in the current state
	CanFire(ctx context.Context, trigger Trigger, facts Facts) bool

	// Fire executes the trigger, transitioning to the new state if allowed
	Fire(ctx context.Context, trigger Trigger, facts Facts) (Transition, error)

	// PermittedTriggers returns all triggers configured for the current state
	PermittedTriggers() []Trigger
}
