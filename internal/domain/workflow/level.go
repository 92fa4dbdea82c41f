package workflow

import "fmt"

// Role is a user's role in the portal
type Role string

const (
	RoleSubmitter  Role = "submitter"
	RoleL1Approver Role = "l1_approver"
	RoleL2Approver Role = "l2_approver"
	RoleL3Approver Role = "l3_approver"
	RoleFinance    Role = "finance"
	RoleDirector   Role = "director"
	RoleAdmin      Role = "admin"
)

// Level is a position in the approval chain
type Level int

const (
	LevelNone     Level = 0
	LevelL1       Level = 1
	LevelL2       Level = 2
	LevelL3       Level = 3
	LevelFinance  Level = 4
	LevelDirector Level = 5
)

// roleLevels is the capability table: which chain position a role may decide.
// Adding a role or level is a change to this table only.
var roleLevels = map[Role]Level{
	RoleL1Approver: LevelL1,
	RoleL2Approver: LevelL2,
	RoleL3Approver: LevelL3,
	RoleFinance:    LevelFinance,
	RoleDirector:   LevelDirector,
}

var validRoles = map[Role]bool{
	RoleSubmitter:  true,
	RoleL1Approver: true,
	RoleL2Approver: true,
	RoleL3Approver: true,
	RoleFinance:    true,
	RoleDirector:   true,
	RoleAdmin:      true,
}

// approvedAt maps a decided level to the state it moves the expense into
var approvedAt = map[Level]State{
	LevelL1:       StateApprovedL1,
	LevelL2:       StateApprovedL2,
	LevelL3:       StateApprovedL3,
	LevelFinance:  StateApprovedFinance,
	LevelDirector: StateApproved,
}

// IsValid returns true for known roles
func (r Role) IsValid() bool {
	return validRoles[r]
}

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}

// LevelForRole returns the approval level a role may act on
func LevelForRole(r Role) (Level, error) {
	lvl, ok := roleLevels[r]
	if !ok {
		return LevelNone, fmt.Errorf("%w: %s has no approval level", ErrUnknownRole, r)
	}
	return lvl, nil
}

// IsApprover returns true if the role sits anywhere in the approval chain
func (r Role) IsApprover() bool {
	_, ok := roleLevels[r]
	return ok
}

// IsValid returns true for levels 1..5
func (l Level) IsValid() bool {
	return l >= LevelL1 && l <= LevelDirector
}

// String returns a human readable level name
func (l Level) String() string {
	switch l {
	case LevelL1:
		return "L1"
	case LevelL2:
		return "L2"
	case LevelL3:
		return "L3"
	case LevelFinance:
		return "Finance"
	case LevelDirector:
		return "Director"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// PendingLevel returns the level whose decision the expense is waiting for
func PendingLevel(s State, facts Facts) (Level, bool) {
	switch s {
	case StateSubmitted, StateUnderReview:
		return LevelL1, true
	case StateApprovedL1:
		return LevelL2, true
	case StateApprovedL2:
		return LevelL3, true
	case StateApprovedL3:
		return LevelFinance, true
	case StateApprovedFinance:
		if facts.RequiresDirectorSignoff && !facts.DirectorSigned {
			return LevelDirector, true
		}
		return LevelNone, false
	default:
		return LevelNone, false
	}
}

// PendingStates returns the states in which the given level is expected to act
func PendingStates(l Level) []State {
	switch l {
	case LevelL1:
		return []State{StateSubmitted, StateUnderReview}
	case LevelL2:
		return []State{StateApprovedL1}
	case LevelL3:
		return []State{StateApprovedL2}
	case LevelFinance:
		return []State{StateApprovedL3}
	case LevelDirector:
		return []State{StateApprovedFinance}
	default:
		return nil
	}
}

// RoleForLevel returns the role that decides at the given level
func RoleForLevel(l Level) (Role, bool) {
	for r, lvl := range roleLevels {
		if lvl == l {
			return r, true
		}
	}
	return "", false
}
