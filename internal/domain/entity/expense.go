package entity

import (
	"time"

	"github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/shopspring/decimal"
)

// MaxAmount bounds every stored amount, policy limit and budget. Amounts are
// kept as int64 minor units and budget counters sum many of them, so the cap
// sits far below the int64 range.
var MaxAmount = decimal.New(1, 12)

// AmountInRange reports whether d is non-negative and at most MaxAmount
func AmountInRange(d decimal.Decimal) bool {
	return !d.IsNegative() && d.LessThanOrEqual(MaxAmount)
}

// Expense is a reimbursement claim moving through the approval chain
type Expense struct {
	ID                      int64           `json:"id"`
	Number                  string          `json:"number"`
	Title                   string          `json:"title"`
	Description             string          `json:"description"`
	Category                Category        `json:"category"`
	Amount                  decimal.Decimal `json:"amount"`
	OriginalAmount          decimal.Decimal `json:"originalAmount"`
	Currency                string          `json:"currency"`
	PaymentMethod           PaymentMethod   `json:"paymentMethod"`
	SiteID                  int64           `json:"siteId"`
	SubmitterID             string          `json:"submitterId"`
	Department              string          `json:"department"`
	ExpenseDate             time.Time       `json:"expenseDate"`
	SubmissionDate          *time.Time      `json:"submissionDate,omitempty"`
	Status                  workflow.State  `json:"status"`
	RequiresDirectorSignoff bool            `json:"requiresDirectorSignoff"`
	DirectorEscalation      bool            `json:"directorEscalation"`
	Priority                string          `json:"priority,omitempty"`
	Attachments             []string        `json:"attachments,omitempty"`
	ModificationReason      string          `json:"modificationReason,omitempty"`
	PaymentReference        string          `json:"paymentReference,omitempty"`
	ReimbursedAt            *time.Time      `json:"reimbursedAt,omitempty"`
	PaidAt                  *time.Time      `json:"paidAt,omitempty"`
	ArchivedAt              *time.Time      `json:"archivedAt,omitempty"`
	Version                 int64           `json:"version"`
	CreatedAt               time.Time       `json:"createdAt"`
	UpdatedAt               time.Time       `json:"updatedAt"`

	// ApprovalHistory is populated on reads; the log itself lives in approval_records
	ApprovalHistory []*ApprovalRecord `json:"approvalHistory,omitempty"`
}

// IsArchived returns true once the expense has been soft-deleted
func (e *Expense) IsArchived() bool {
	return e.ArchivedAt != nil
}

// Facts returns the attributes the state machine guards inspect
func (e *Expense) Facts() workflow.Facts {
	signed := false
	for _, r := range e.ApprovalHistory {
		if r.Level == workflow.LevelDirector && r.Action != workflow.ActionReject {
			signed = true
		}
	}
	return workflow.Facts{
		RequiresDirectorSignoff: e.RequiresDirectorSignoff,
		DirectorSigned:          signed,
	}
}

// Decisions projects the approval history into the replay log
func (e *Expense) Decisions() []workflow.Decision {
	out := make([]workflow.Decision, 0, len(e.ApprovalHistory))
	for _, r := range e.ApprovalHistory {
		out = append(out, r.Decision())
	}
	return out
}

// ApprovalRecord is one append-only decision in an expense's history
type ApprovalRecord struct {
	ID               int64           `json:"id"`
	ExpenseID        int64           `json:"expenseId"`
	ApproverID       string          `json:"approverId"`
	Level            workflow.Level  `json:"level"`
	Action           workflow.Action `json:"action"`
	Comment          string          `json:"comment"`
	AmountAtDecision decimal.Decimal `json:"amountAtDecision"`
	Timestamp        time.Time       `json:"timestamp"`
}

// Decision returns the replayable part of the record
func (r *ApprovalRecord) Decision() workflow.Decision {
	return workflow.Decision{
		ApproverID: r.ApproverID,
		Level:      r.Level,
		Action:     r.Action,
	}
}

// ExpenseFilter narrows expense listings
type ExpenseFilter struct {
	SiteID             *int64
	SubmitterID        string
	ExcludeSubmitterID string
	Statuses           []workflow.State
	Limit              int
	Offset             int
}
