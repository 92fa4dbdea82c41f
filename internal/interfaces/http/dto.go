package http

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/application/budget"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// PolicyService reads and replaces site policies
type PolicyService interface {
	Get(ctx context.Context, siteID int64) (*entity.Policy, error)
	Update(ctx context.Context, siteID int64, p *entity.Policy) error
}

// BudgetService reports site budget utilization
type BudgetService interface {
	Utilization(ctx context.Context, siteID int64, asOf time.Time) (*budget.Report, error)
}

// CreateExpenseRequest is the body of POST /expenses/create.
// SiteID defaults to the submitter's own site.
type CreateExpenseRequest struct {
	SiteID             int64           `json:"siteId"`
	Title              string          `json:"title" binding:"required"`
	Description        string          `json:"description"`
	Category           string          `json:"category" binding:"required"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency"`
	PaymentMethod      string          `json:"paymentMethod" binding:"required"`
	Department         string          `json:"department"`
	ExpenseDate        string          `json:"expenseDate" binding:"required"`
	Priority           string          `json:"priority"`
	Attachments        []string        `json:"attachments" binding:"max=20,dive,max=500"`
	DirectorEscalation bool            `json:"directorEscalation"`
	Draft              bool            `json:"draft"`
}

// DecisionRequest is the body of approve and reject
type DecisionRequest struct {
	Level              int              `json:"level"`
	ApproverID         string           `json:"approverId"`
	Comments           string           `json:"comments" binding:"max=2000"`
	ModifiedAmount     *decimal.Decimal `json:"modifiedAmount"`
	ModificationReason string           `json:"modificationReason" binding:"max=500"`
}

// PaymentRequest is the body of reimburse and payment
type PaymentRequest struct {
	Reference string `json:"reference" binding:"max=100"`
}

// ListQuery holds paging and filter parameters
type ListQuery struct {
	Status      string `form:"status"`
	SiteID      int64  `form:"siteId"`
	SubmitterID string `form:"submitterId"`
	Limit       int    `form:"limit"`
	Offset      int    `form:"offset"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Error     string `json:"error,omitempty"`
}

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

func (q ListQuery) page() (limit, offset int) {
	limit, offset = q.Limit, q.Offset
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
