package port

import (
	"context"
	"time"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/shopspring/decimal"
)

// DuplicateQuery describes the neighbourhood searched for duplicate claims
type DuplicateQuery struct {
	SubmitterID string
	SiteID      int64
	Category    entity.Category
	MinAmount   decimal.Decimal
	MaxAmount   decimal.Decimal
	From        time.Time
	To          time.Time
	ExcludeID   int64
}

// ExpenseRepository defines persistence operations for Expense
type ExpenseRepository interface {
	// Create inserts the expense and sets its ID
	Create(ctx context.Context, expense *entity.Expense) error

	// NextNumber returns the next sequence value for the given year
	NextNumber(ctx context.Context, year int) (int64, error)

	// GetByID returns nil, nil when the expense does not exist
	GetByID(ctx context.Context, id int64) (*entity.Expense, error)

	// Update writes the expense only if its stored version equals expense.Version.
	// Returns false when the row changed underneath; on success expense.Version is bumped.
	Update(ctx context.Context, expense *entity.Expense) (bool, error)

	// FindDuplicates returns non-rejected, non-archived expenses matching the query
	FindDuplicates(ctx context.Context, q DuplicateQuery) ([]*entity.Expense, error)

	// List returns non-archived expenses matching the filter, newest first
	List(ctx context.Context, filter entity.ExpenseFilter) ([]*entity.Expense, error)

	// Archive soft-deletes the expense
	Archive(ctx context.Context, id int64, at time.Time) error
}

// ApprovalRecordRepository is the append-only decision log
type ApprovalRecordRepository interface {
	Append(ctx context.Context, record *entity.ApprovalRecord) error
	ListByExpenseID(ctx context.Context, expenseID int64) ([]*entity.ApprovalRecord, error)
}

// SiteRepository defines persistence operations for Site
type SiteRepository interface {
	// GetByID returns nil, nil when the site does not exist
	GetByID(ctx context.Context, id int64) (*entity.Site, error)
	Create(ctx context.Context, site *entity.Site) error
	UpdatePolicy(ctx context.Context, id int64, policy *entity.Policy) error

	// IncrementSpend adds amount to the cached statistics in a single statement,
	// resetting the counters first when at falls in a new month or year
	IncrementSpend(ctx context.Context, id int64, amount decimal.Decimal, at time.Time) error
}

// BudgetLedgerEntry marks one expense as counted against a site budget
type BudgetLedgerEntry struct {
	ExpenseID int64
	SiteID    int64
	Amount    decimal.Decimal
	CountedAt time.Time
}

// BudgetLedgerRepository guards budget counting per expense
type BudgetLedgerRepository interface {
	// Record inserts the entry unless the expense is already counted.
	// Returns true only when the entry was newly inserted.
	Record(ctx context.Context, entry *BudgetLedgerEntry) (bool, error)
	GetByExpenseID(ctx context.Context, expenseID int64) (*BudgetLedgerEntry, error)
}

// UserRepository defines read operations for User
type UserRepository interface {
	// GetByID returns nil, nil when the user does not exist
	GetByID(ctx context.Context, id string) (*entity.User, error)
	Create(ctx context.Context, user *entity.User) error

	// ListByRole returns active users with the role; siteID nil means any site
	ListByRole(ctx context.Context, role workflow.Role, siteID *int64) ([]*entity.User, error)
}

// NotificationRepository defines persistence operations for Notification
type NotificationRepository interface {
	Create(ctx context.Context, n *entity.Notification) error
	MarkSent(ctx context.Context, id int64, messageID string) error
	MarkFailed(ctx context.Context, id int64, errorMsg string) error
	ListFailed(ctx context.Context, maxAttempts, limit int) ([]*entity.Notification, error)
	GetByExpenseID(ctx context.Context, expenseID int64) ([]*entity.Notification, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Locker provides mutual exclusion keyed by string
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}
