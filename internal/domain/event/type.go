package event

// Type identifies the type of domain event
type Type string

const (
	TypeExpenseSubmitted        Type = "expense.submitted"
	TypeExpenseLevelApproved    Type = "expense.approved_level"
	TypeExpenseRejected         Type = "expense.rejected"
	TypeExpenseApproved         Type = "expense.approved"
	TypeExpenseReimbursed       Type = "expense.reimbursed"
	TypeExpensePaymentProcessed Type = "expense.payment_processed"
	TypeStatusChanged           Type = "expense.status_changed"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeExpenseSubmitted,
		TypeExpenseLevelApproved,
		TypeExpenseRejected,
		TypeExpenseApproved,
		TypeExpenseReimbursed,
		TypeExpensePaymentProcessed,
		TypeStatusChanged:
		return true
	default:
		return false
	}
}
