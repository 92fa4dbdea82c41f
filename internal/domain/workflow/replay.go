package workflow

// Action is the decision an approver recorded
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionModify  Action = "modify"
)

// IsValid returns true for known actions
func (a Action) IsValid() bool {
	switch a {
	case ActionApprove, ActionReject, ActionModify:
		return true
	default:
		return false
	}
}

// Decision is the part of an approval record the status depends on
type Decision struct {
	ApproverID string
	Level      Level
	Action     Action
}

// Replay folds an ordered decision log into the approval-chain status.
// start is the status before the first decision (submitted or under_review).
// Decisions recorded after the chain was decided are ignored.
func Replay(start State, decisions []Decision, requiresDirector bool) State {
	current := start
	for _, d := range decisions {
		if current.IsDecided() {
			break
		}
		if d.Action == ActionReject {
			current = StateRejected
			continue
		}
		next, ok := approvedAt[d.Level]
		if !ok {
			continue
		}
		current = next
		if current == StateApprovedFinance && !requiresDirector {
			current = StateApproved
		}
	}
	return current
}

// HasDecision reports whether the approver already decided at this level
func HasDecision(decisions []Decision, approverID string, level Level) bool {
	for _, d := range decisions {
		if d.ApproverID == approverID && d.Level == level {
			return true
		}
	}
	return false
}

// HasLevelDecision reports whether anyone already decided at this level
func HasLevelDecision(decisions []Decision, level Level) bool {
	for _, d := range decisions {
		if d.Level == level {
			return true
		}
	}
	return false
}
