package workflow

import (
	"context"
	"fmt"
)

// Facts are the expense attributes that guards may inspect
type Facts struct {
	RequiresDirectorSignoff bool
	DirectorSigned          bool
}

// GuardFunc evaluates whether a transition should be allowed
type GuardFunc func(ctx context.Context, facts Facts) bool

// StateMachineBuilder builds a configured state machine
type StateMachineBuilder interface {
	// Configure returns a state configuration for the given state
	Configure(state State) StateConfiguration

	// Build creates a new state machine instance with the given initial state
	Build(initialState State) StateMachine
}

// StateConfiguration configures transitions for a specific state
type StateConfiguration interface {
	// Permit allows a trigger to transition to the target state
	Permit(trigger Trigger, toState State) StateConfiguration

	// PermitIf allows a trigger to transition to the target state if the guard passes
	PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration
}

type transition struct {
	toState State
	guard   GuardFunc
}

type stateConfig struct {
	fromState   State
	transitions map[Trigger][]transition
}

type stateMachineBuilder struct {
	configurations map[State]*stateConfig
}

type stateMachine struct {
	currentState   State
	configurations map[State]*stateConfig
}

// NewBuilder creates a new state machine builder
func NewBuilder() StateMachineBuilder {
	return &stateMachineBuilder{
		configurations: make(map[State]*stateConfig),
	}
}

// Configure returns a state configuration for the given state
func (b *stateMachineBuilder) Configure(state State) StateConfiguration {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}

	config, exists := b.configurations[state]
	if !exists {
		config = &stateConfig{
			fromState:   state,
			transitions: make(map[Trigger][]transition),
		}
		b.configurations[state] = config
	}

	return config
}

// Build creates a new state machine instance with the given initial state.
// Configurations are copied so machines built from one builder are independent.
func (b *stateMachineBuilder) Build(initialState State) StateMachine {
	if !initialState.IsValid() {
		panic(fmt.Sprintf("invalid initial state: %s", initialState))
	}

	configsCopy := make(map[State]*stateConfig, len(b.configurations))
	for state, config := range b.configurations {
		transitionsCopy := make(map[Trigger][]transition, len(config.transitions))
		for trigger, transitions := range config.transitions {
			transitionsCopy[trigger] = append([]transition{}, transitions...)
		}
		configsCopy[state] = &stateConfig{
			fromState:   state,
			transitions: transitionsCopy,
		}
	}

	return &stateMachine{
		currentState:   initialState,
		configurations: configsCopy,
	}
}

// Permit allows a trigger to transition to the target state
func (c *stateConfig) Permit(trigger Trigger, toState State) StateConfiguration {
	return c.PermitIf(trigger, toState, nil)
}

// PermitIf allows a trigger to transition to the target state if the guard passes
func (c *stateConfig) PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration {
	if !toState.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}

	c.transitions[trigger] = append(c.transitions[trigger], transition{
		toState: toState,
		guard:   guard,
	})

	return c
}

// State returns the current state
func (m *stateMachine) State() State {
	return m.currentState
}

// CanFire returns true if the trigger is configured in the current state and
// at least one of its guards passes for the given facts
func (m *stateMachine) CanFire(ctx context.Context, trigger Trigger, facts Facts) bool {
	_, ok := m.resolve(ctx, trigger, facts)
	return ok
}

// Fire attempts to execute the trigger, transitioning to the new state if allowed
func (m *stateMachine) Fire(ctx context.Context, trigger Trigger, facts Facts) (Transition, error) {
	config, exists := m.configurations[m.currentState]
	if !exists {
		return Transition{}, fmt.Errorf("%w: cannot fire trigger %s from state %s (no configuration)", ErrInvalidTransition, trigger, m.currentState)
	}

	transitions, exists := config.transitions[trigger]
	if !exists || len(transitions) == 0 {
		return Transition{}, fmt.Errorf("%w: cannot fire trigger %s from state %s", ErrInvalidTransition, trigger, m.currentState)
	}

	to, ok := m.resolve(ctx, trigger, facts)
	if !ok {
		return Transition{}, fmt.Errorf("%w: trigger %s from state %s", ErrGuardFailed, trigger, m.currentState)
	}

	t := Transition{From: m.currentState, To: to, Trigger: trigger}
	m.currentState = to
	return t, nil
}

// PermittedTriggers returns all triggers configured for the current state
func (m *stateMachine) PermittedTriggers() []Trigger {
	config, exists := m.configurations[m.currentState]
	if !exists {
		return []Trigger{}
	}

	triggers := make([]Trigger, 0, len(config.transitions))
	for trigger := range config.transitions {
		triggers = append(triggers, trigger)
	}

	return triggers
}

// resolve picks the first transition whose guard passes
func (m *stateMachine) resolve(ctx context.Context, trigger Trigger, facts Facts) (State, bool) {
	config, exists := m.configurations[m.currentState]
	if !exists {
		return "", false
	}

	for _, t := range config.transitions[trigger] {
		if t.guard == nil || t.guard(ctx, facts) {
			return t.toState, true
		}
	}

	return "", false
}
