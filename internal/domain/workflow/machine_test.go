package workflow

import (
	"context"
	"errors"
	"testing"
)

func TestState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    State
		expected bool
	}{
		{StateDraft, false},
		{StateSubmitted, false},
		{StateUnderReview, false},
		{StateApprovedL1, false},
		{StateApprovedL2, false},
		{StateApprovedL3, false},
		{StateApprovedFinance, false},
		{StateApproved, false},
		{StateReimbursed, false},
		{StatePaymentProcessed, true},
		{StateRejected, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.IsTerminal(); got != tt.expected {
				t.Errorf("State.IsTerminal() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_IsDecided(t *testing.T) {
	tests := []struct {
		state    State
		expected bool
	}{
		{StateSubmitted, false},
		{StateApprovedFinance, false},
		{StateApproved, true},
		{StateReimbursed, true},
		{StatePaymentProcessed, true},
		{StateRejected, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.IsDecided(); got != tt.expected {
				t.Errorf("State.IsDecided() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		expected bool
	}{
		{"valid state", StateDraft, true},
		{"valid state", StatePaymentProcessed, true},
		{"invalid state", State("INVALID"), false},
		{"empty state", State(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.expected {
				t.Errorf("State.IsValid() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestParseState(t *testing.T) {
	s, err := ParseState("approved_l2")
	if err != nil {
		t.Fatalf("ParseState() failed: %v", err)
	}
	if s != StateApprovedL2 {
		t.Errorf("ParseState() = %v, want %v", s, StateApprovedL2)
	}

	if _, err := ParseState("APPROVED_L2"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("ParseState() error = %v, want %v", err, ErrInvalidState)
	}
}

func TestTrigger_String(t *testing.T) {
	trigger := TriggerSubmit
	if got := trigger.String(); got != "SUBMIT" {
		t.Errorf("Trigger.String() = %v, want %v", got, "SUBMIT")
	}
}

func TestBuilder_Configure(t *testing.T) {
	builder := NewBuilder()

	config := builder.Configure(StateDraft)
	if config == nil {
		t.Fatal("Configure() returned nil")
	}

	config2 := builder.Configure(StateDraft)
	if config != config2 {
		t.Error("Configure() should return same config for same state")
	}
}

func TestBuilder_ConfigurePanicsOnInvalidState(t *testing.T) {
	builder := NewBuilder()

	defer func() {
		if r := recover(); r == nil {
			t.Error("Configure() should panic on invalid state")
		}
	}()

	builder.Configure(State("INVALID"))
}

func TestBuilder_BuildPanicsOnInvalidInitialState(t *testing.T) {
	builder := NewBuilder()

	defer func() {
		if r := recover(); r == nil {
			t.Error("Build() should panic on invalid initial state")
		}
	}()

	builder.Build(State("INVALID"))
}

func TestStateConfiguration_Permit(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateDraft).
		Permit(TriggerSubmit, StateSubmitted)

	machine := builder.Build(StateDraft)
	ctx := context.Background()

	if !machine.CanFire(ctx, TriggerSubmit, Facts{}) {
		t.Error("CanFire() should return true for permitted trigger")
	}

	tr, err := machine.Fire(ctx, TriggerSubmit, Facts{})
	if err != nil {
		t.Fatalf("Fire() failed: %v", err)
	}

	if tr.From != StateDraft || tr.To != StateSubmitted || tr.Trigger != TriggerSubmit {
		t.Errorf("Fire() transition = %+v", tr)
	}

	if machine.State() != StateSubmitted {
		t.Errorf("State after Fire() = %v, want %v", machine.State(), StateSubmitted)
	}
}

func TestStateConfiguration_PermitIf_GuardFails(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateApprovedFinance).
		PermitIf(TriggerDirectorSignoff, StateApproved, func(ctx context.Context, f Facts) bool {
			return f.RequiresDirectorSignoff
		})

	machine := builder.Build(StateApprovedFinance)

	_, err := machine.Fire(context.Background(), TriggerDirectorSignoff, Facts{})
	if err == nil {
		t.Fatal("Fire() should fail when guard fails")
	}

	if !errors.Is(err, ErrGuardFailed) {
		t.Errorf("Fire() error = %v, want %v", err, ErrGuardFailed)
	}

	if machine.State() != StateApprovedFinance {
		t.Errorf("State should remain %v after failed Fire(), got %v", StateApprovedFinance, machine.State())
	}
}

func TestStateConfiguration_PermitIf_MultipleTransitions(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateSubmitted).
		PermitIf(TriggerReject, StateRejected, func(ctx context.Context, f Facts) bool {
			return f.RequiresDirectorSignoff
		}).
		PermitIf(TriggerReject, StateUnderReview, func(ctx context.Context, f Facts) bool {
			return !f.RequiresDirectorSignoff
		})

	machine1 := builder.Build(StateSubmitted)
	if _, err := machine1.Fire(context.Background(), TriggerReject, Facts{RequiresDirectorSignoff: true}); err != nil {
		t.Errorf("Fire() failed: %v", err)
	}
	if machine1.State() != StateRejected {
		t.Errorf("State after Fire() = %v, want %v", machine1.State(), StateRejected)
	}

	machine2 := builder.Build(StateSubmitted)
	if _, err := machine2.Fire(context.Background(), TriggerReject, Facts{}); err != nil {
		t.Errorf("Fire() failed: %v", err)
	}
	if machine2.State() != StateUnderReview {
		t.Errorf("State after Fire() = %v, want %v", machine2.State(), StateUnderReview)
	}
}

func TestStateConfiguration_PermitPanicsOnInvalidState(t *testing.T) {
	builder := NewBuilder()

	defer func() {
		if r := recover(); r == nil {
			t.Error("Permit() should panic on invalid target state")
		}
	}()

	builder.Configure(StateDraft).Permit(TriggerSubmit, State("INVALID"))
}

func TestStateMachine_Fire_InvalidTransition(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateDraft).
		Permit(TriggerSubmit, StateSubmitted)

	machine := builder.Build(StateDraft)

	_, err := machine.Fire(context.Background(), TriggerApprove, Facts{})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Fire() error = %v, want %v", err, ErrInvalidTransition)
	}

	if machine.State() != StateDraft {
		t.Errorf("State should remain %v after failed Fire(), got %v", StateDraft, machine.State())
	}
}

func TestStateMachine_Fire_NoConfiguration(t *testing.T) {
	machine := NewBuilder().Build(StateRejected)

	_, err := machine.Fire(context.Background(), TriggerApprove, Facts{})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Fire() error = %v, want %v", err, ErrInvalidTransition)
	}

	if len(machine.PermittedTriggers()) != 0 {
		t.Errorf("PermittedTriggers() = %v, want none", machine.PermittedTriggers())
	}
}

func TestStateMachine_Immutability(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateDraft).
		Permit(TriggerSubmit, StateSubmitted)

	machine1 := builder.Build(StateDraft)
	machine2 := builder.Build(StateDraft)

	if _, err := machine1.Fire(context.Background(), TriggerSubmit, Facts{}); err != nil {
		t.Errorf("Fire() failed: %v", err)
	}

	if machine2.State() != StateDraft {
		t.Errorf("machine2 state = %v, want %v (machines should be independent)", machine2.State(), StateDraft)
	}

	// configuring the builder after Build must not leak into existing machines
	builder.Configure(StateSubmitted).Permit(TriggerReject, StateRejected)
	if machine1.CanFire(context.Background(), TriggerReject, Facts{}) {
		t.Error("machine1 picked up configuration added after Build()")
	}
}

func TestLevelForRole(t *testing.T) {
	tests := []struct {
		role    Role
		want    Level
		wantErr bool
	}{
		{RoleL1Approver, LevelL1, false},
		{RoleL2Approver, LevelL2, false},
		{RoleL3Approver, LevelL3, false},
		{RoleFinance, LevelFinance, false},
		{RoleDirector, LevelDirector, false},
		{RoleSubmitter, LevelNone, true},
		{RoleAdmin, LevelNone, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			got, err := LevelForRole(tt.role)
			if (err != nil) != tt.wantErr {
				t.Fatalf("LevelForRole() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrUnknownRole) {
				t.Errorf("LevelForRole() error = %v, want %v", err, ErrUnknownRole)
			}
			if got != tt.want {
				t.Errorf("LevelForRole() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPendingLevel(t *testing.T) {
	tests := []struct {
		name   string
		state  State
		facts  Facts
		want   Level
		wantOK bool
	}{
		{"submitted", StateSubmitted, Facts{}, LevelL1, true},
		{"under review", StateUnderReview, Facts{}, LevelL1, true},
		{"after l1", StateApprovedL1, Facts{}, LevelL2, true},
		{"after l2", StateApprovedL2, Facts{}, LevelL3, true},
		{"after l3", StateApprovedL3, Facts{}, LevelFinance, true},
		{"finance needs director", StateApprovedFinance, Facts{RequiresDirectorSignoff: true}, LevelDirector, true},
		{"finance signed", StateApprovedFinance, Facts{RequiresDirectorSignoff: true, DirectorSigned: true}, LevelNone, false},
		{"approved", StateApproved, Facts{}, LevelNone, false},
		{"rejected", StateRejected, Facts{}, LevelNone, false},
		{"draft", StateDraft, Facts{}, LevelNone, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := PendingLevel(tt.state, tt.facts)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("PendingLevel() = (%v, %v), want (%v, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestPendingStates_RoundTrip(t *testing.T) {
	facts := Facts{RequiresDirectorSignoff: true}
	for _, lvl := range []Level{LevelL1, LevelL2, LevelL3, LevelFinance, LevelDirector} {
		for _, s := range PendingStates(lvl) {
			got, ok := PendingLevel(s, facts)
			if !ok || got != lvl {
				t.Errorf("PendingLevel(%v) = %v, want %v", s, got, lvl)
			}
		}
	}
}

func TestRoleForLevel(t *testing.T) {
	for _, lvl := range []Level{LevelL1, LevelL2, LevelL3, LevelFinance, LevelDirector} {
		r, ok := RoleForLevel(lvl)
		if !ok {
			t.Fatalf("RoleForLevel(%v) found no role", lvl)
		}
		if got, _ := LevelForRole(r); got != lvl {
			t.Errorf("LevelForRole(RoleForLevel(%v)) = %v", lvl, got)
		}
	}
	if _, ok := RoleForLevel(LevelNone); ok {
		t.Error("RoleForLevel(LevelNone) should find no role")
	}
}
