package workflow

// State represents an expense status in the approval lifecycle
type State string

const (
	StateDraft            State = "draft"
	StateSubmitted        State = "submitted"
	StateUnderReview      State = "under_review"
	StateApprovedL1       State = "approved_l1"
	StateApprovedL2       State = "approved_l2"
	StateApprovedL3       State = "approved_l3"
	StateApprovedFinance  State = "approved_finance"
	StateApproved         State = "approved"
	StateReimbursed       State = "reimbursed"
	StatePaymentProcessed State = "payment_processed"
	StateRejected         State = "rejected"
)

var validStates = map[State]bool{
	StateDraft:            true,
	StateSubmitted:        true,
	StateUnderReview:      true,
	StateApprovedL1:       true,
	StateApprovedL2:       true,
	StateApprovedL3:       true,
	StateApprovedFinance:  true,
	StateApproved:         true,
	StateReimbursed:       true,
	StatePaymentProcessed: true,
	StateRejected:         true,
}

// decidedStates no longer accept approval or rejection decisions.
// approved and reimbursed still accept payment transitions.
var decidedStates = map[State]bool{
	StateApproved:         true,
	StateReimbursed:       true,
	StatePaymentProcessed: true,
	StateRejected:         true,
}

var terminalStates = map[State]bool{
	StatePaymentProcessed: true,
	StateRejected:         true,
}

// AllStates returns every state in lifecycle order
func AllStates() []State {
	return []State{
		StateDraft,
		StateSubmitted,
		StateUnderReview,
		StateApprovedL1,
		StateApprovedL2,
		StateApprovedL3,
		StateApprovedFinance,
		StateApproved,
		StateReimbursed,
		StatePaymentProcessed,
		StateRejected,
	}
}

// IsTerminal returns true if the state has no outgoing transitions
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// IsDecided returns true once the approval chain has finished (approved or rejected)
func (s State) IsDecided() bool {
	return decidedStates[s]
}

// IsFullyApproved returns true for approved and the payment states after it
func (s State) IsFullyApproved() bool {
	return s == StateApproved || s == StateReimbursed || s == StatePaymentProcessed
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a valid workflow state
func (s State) IsValid() bool {
	return validStates[s]
}

// ParseState converts a persisted status string into a State
func ParseState(s string) (State, error) {
	st := State(s)
	if !st.IsValid() {
		return "", ErrInvalidState
	}
	return st, nil
}
