package workflow

import (
	"context"
	"time"

	"github.com/garyjia/expense-approval/internal/application/policy"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/shopspring/decimal"
)

// ApprovalWorkflow drives an expense from submission to payment
type ApprovalWorkflow interface {
	// Create validates and stores a new expense as submitted (or draft)
	Create(ctx context.Context, in CreateInput) (*entity.Expense, error)

	// Submit moves a draft into the approval chain after policy validation
	Submit(ctx context.Context, expenseID int64, actor *entity.User) (*entity.Expense, error)

	// StartReview marks a submitted expense as picked up by an L1 approver
	StartReview(ctx context.Context, expenseID int64, actor *entity.User) (*entity.Expense, error)

	// Approve records an approval (optionally with a modified amount) at the actor's level
	Approve(ctx context.Context, in DecisionInput) (*entity.Expense, error)

	// Reject records a rejection at the actor's level
	Reject(ctx context.Context, in DecisionInput) (*entity.Expense, error)

	// MarkReimbursed records that the submitter was reimbursed
	MarkReimbursed(ctx context.Context, expenseID int64, actor *entity.User, reference string) (*entity.Expense, error)

	// MarkPaymentProcessed records that payment was completed
	MarkPaymentProcessed(ctx context.Context, expenseID int64, actor *entity.User, reference string) (*entity.Expense, error)

	// Archive soft-deletes a draft or rejected expense
	Archive(ctx context.Context, expenseID int64, actor *entity.User) error

	// Get returns an expense with its approval history
	Get(ctx context.Context, expenseID int64, actor *entity.User) (*entity.Expense, error)

	// History returns the approval log of an expense
	History(ctx context.Context, expenseID int64, actor *entity.User) ([]*entity.ApprovalRecord, error)

	// List returns expenses visible to the actor
	List(ctx context.Context, actor *entity.User, filter entity.ExpenseFilter) ([]*entity.Expense, error)

	// PendingApprovals returns expenses waiting on the actor's level within their scope
	PendingApprovals(ctx context.Context, actor *entity.User, limit, offset int) ([]*entity.Expense, error)
}

// CreateInput describes a new expense
type CreateInput struct {
	Submitter     *entity.User
	SiteID        int64
	Title         string
	Description   string
	Category      entity.Category
	Amount        decimal.Decimal
	Currency      string
	PaymentMethod entity.PaymentMethod
	Department    string
	ExpenseDate   time.Time
	Priority      string
	Attachments   []string
	// DirectorEscalation asks for director sign-off up front
	DirectorEscalation bool
	// Draft stores the expense without validation or submission
	Draft bool
}

// DecisionInput describes one approve or reject action
type DecisionInput struct {
	ExpenseID int64
	Actor     *entity.User
	// Level is the level the caller believes it acts at; zero means the actor's own level
	Level              domainwf.Level
	Comment            string
	ModifiedAmount     *decimal.Decimal
	ModificationReason string
}

// SiteLoader returns an active site with its effective policy
type SiteLoader interface {
	LoadSite(ctx context.Context, siteID int64) (*entity.Site, error)
}

// PolicyValidator checks a candidate expense against site policy
type PolicyValidator interface {
	Validate(ctx context.Context, candidate *entity.Expense, site *entity.Site) (*policy.Decision, error)
}

// BudgetRecorder counts fully approved expenses against their site
type BudgetRecorder interface {
	RecordApproved(ctx context.Context, expense *entity.Expense, at time.Time) (bool, error)
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}
