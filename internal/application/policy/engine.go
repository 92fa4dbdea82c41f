package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/application/budget"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// Decision is the outcome of a successful validation
type Decision struct {
	RequiresDirectorSignoff bool
	// BudgetAfter is the monthly utilization the site would reach if the
	// expense were approved as submitted. Advisory only.
	BudgetAfter budget.PeriodUsage
}

// Engine validates candidate expenses against their site's policy.
// Checks run in a fixed order and the first violation is returned.
type Engine struct {
	expenses port.ExpenseRepository
	logger   Logger
	now      func() time.Time
}

// NewEngine creates a policy Engine
func NewEngine(expenses port.ExpenseRepository, logger Logger) *Engine {
	return &Engine{expenses: expenses, logger: logger, now: time.Now}
}

// Validate checks the candidate against site.Policy. It never mutates either argument.
func (e *Engine) Validate(ctx context.Context, candidate *entity.Expense, site *entity.Site) (*Decision, error) {
	p := &site.Policy

	if p.DisallowsDay(candidate.ExpenseDate.Weekday()) {
		return nil, apperr.New(apperr.CodeDateRestricted,
			"expenses dated on %s are not accepted at site %s",
			entity.Weekdays[candidate.ExpenseDate.Weekday()], site.Code)
	}

	dup, err := e.findDuplicate(ctx, candidate, p)
	if err != nil {
		return nil, err
	}
	if dup != nil {
		return nil, apperr.New(apperr.CodeDuplicateSuspected,
			"expense %s has the same category and amount within %d days", dup.Number, p.DuplicateWindowDays)
	}

	escalated := requiresDirector(candidate, p)

	if limit, ok := p.CategoryLimit(candidate.Category); ok && candidate.Amount.GreaterThan(limit) && !escalated {
		return nil, apperr.New(apperr.CodeCategoryLimitExceeded,
			"%s amount %s exceeds the category limit %s", candidate.Category, candidate.Amount, limit)
	}

	if candidate.PaymentMethod == entity.PaymentMethodCash && p.CashMax.IsPositive() && candidate.Amount.GreaterThan(p.CashMax) {
		return nil, apperr.New(apperr.CodeCashLimitExceeded,
			"cash amount %s exceeds the cash ceiling %s", candidate.Amount, p.CashMax)
	}

	monthly, _ := site.Statistics.SpendFor(e.now())
	after := budget.Percentage(monthly.Add(candidate.Amount), site.Budget.Monthly)
	decision := &Decision{
		RequiresDirectorSignoff: escalated,
		BudgetAfter: budget.PeriodUsage{
			Used:       monthly.Add(candidate.Amount),
			Allocated:  site.Budget.Monthly,
			Percentage: after,
			Alert:      budget.Classify(after),
		},
	}

	if decision.BudgetAfter.Alert == budget.AlertCritical {
		e.logger.Info("Submission pushes site into critical budget utilization",
			"site_id", site.ID, "percentage", after.String())
	}
	return decision, nil
}

// requiresDirector is true when the amount crosses the category's director
// threshold, or the submitter asked for escalation and a threshold exists
func requiresDirector(c *entity.Expense, p *entity.Policy) bool {
	threshold, ok := p.DirectorThreshold(c.Category)
	if !ok {
		return false
	}
	return c.DirectorEscalation || c.Amount.GreaterThan(threshold)
}

func (e *Engine) findDuplicate(ctx context.Context, c *entity.Expense, p *entity.Policy) (*entity.Expense, error) {
	day := truncateDay(c.ExpenseDate)
	window := time.Duration(p.DuplicateWindowDays) * 24 * time.Hour
	tol := p.DuplicateAmountTolerance
	if tol.IsNegative() {
		tol = decimal.Zero
	}

	matches, err := e.expenses.FindDuplicates(ctx, port.DuplicateQuery{
		SubmitterID: c.SubmitterID,
		SiteID:      c.SiteID,
		Category:    c.Category,
		MinAmount:   c.Amount.Sub(tol),
		MaxAmount:   c.Amount.Add(tol),
		From:        day.Add(-window),
		To:          day.Add(window),
		ExcludeID:   c.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("find duplicates: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return matches[0], nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
