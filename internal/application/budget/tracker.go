// Package budget tracks site spend against monthly and yearly allocations.
package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// AlertLevel is an advisory classification of utilization
type AlertLevel string

const (
	AlertHealthy  AlertLevel = "healthy"
	AlertModerate AlertLevel = "moderate"
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

var (
	hundred           = decimal.NewFromInt(100)
	thresholdCritical = decimal.NewFromInt(90)
	thresholdWarning  = decimal.NewFromInt(80)
	thresholdModerate = decimal.NewFromInt(50)
)

// Classify maps a utilization percentage to an alert level
func Classify(pct decimal.Decimal) AlertLevel {
	switch {
	case pct.GreaterThanOrEqual(thresholdCritical):
		return AlertCritical
	case pct.GreaterThanOrEqual(thresholdWarning):
		return AlertWarning
	case pct.GreaterThanOrEqual(thresholdModerate):
		return AlertModerate
	default:
		return AlertHealthy
	}
}

// Percentage returns used/allocated*100 rounded to 2 places; zero allocation reads as 0
func Percentage(used, allocated decimal.Decimal) decimal.Decimal {
	if !allocated.IsPositive() {
		return decimal.Zero
	}
	return used.Div(allocated).Mul(hundred).Round(2)
}

// Project extrapolates month-to-date spend linearly over the whole month
func Project(used, monthly decimal.Decimal, asOf time.Time) decimal.Decimal {
	if !monthly.IsPositive() {
		return decimal.Zero
	}
	day := decimal.NewFromInt(int64(asOf.Day()))
	days := decimal.NewFromInt(int64(daysIn(asOf)))
	return used.Div(day).Mul(days).Div(monthly).Mul(hundred).Round(2)
}

func daysIn(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

// PeriodUsage is utilization for one budget period
type PeriodUsage struct {
	Used       decimal.Decimal `json:"used"`
	Allocated  decimal.Decimal `json:"allocated"`
	Percentage decimal.Decimal `json:"percentage"`
	Alert      AlertLevel      `json:"alert"`
}

func newUsage(used, allocated decimal.Decimal) PeriodUsage {
	pct := Percentage(used, allocated)
	return PeriodUsage{Used: used, Allocated: allocated, Percentage: pct, Alert: Classify(pct)}
}

// Report is the budget view of a site at a point in time
type Report struct {
	SiteID         int64           `json:"siteId"`
	AsOf           time.Time       `json:"asOf"`
	Monthly        PeriodUsage     `json:"monthly"`
	Yearly         PeriodUsage     `json:"yearly"`
	Projected      decimal.Decimal `json:"projectedMonthlyPercentage"`
	ProjectedAlert AlertLevel      `json:"projectedAlert"`
}

// ReportFor builds a report from a loaded site without touching storage
func ReportFor(site *entity.Site, asOf time.Time) *Report {
	monthly, yearly := site.Statistics.SpendFor(asOf)
	projected := Project(monthly, site.Budget.Monthly, asOf)
	return &Report{
		SiteID:         site.ID,
		AsOf:           asOf,
		Monthly:        newUsage(monthly, site.Budget.Monthly),
		Yearly:         newUsage(yearly, site.Budget.Yearly),
		Projected:      projected,
		ProjectedAlert: Classify(projected),
	}
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Tracker reads and updates site spend counters
type Tracker struct {
	sites  port.SiteRepository
	ledger port.BudgetLedgerRepository
	logger Logger
}

// NewTracker creates a Tracker
func NewTracker(sites port.SiteRepository, ledger port.BudgetLedgerRepository, logger Logger) *Tracker {
	return &Tracker{sites: sites, ledger: ledger, logger: logger}
}

// Utilization returns monthly and yearly utilization for the site
func (t *Tracker) Utilization(ctx context.Context, siteID int64, asOf time.Time) (*Report, error) {
	site, err := t.loadSite(ctx, siteID)
	if err != nil {
		return nil, err
	}
	return ReportFor(site, asOf), nil
}

// ProjectedUtilization extrapolates month-to-date spend to month end
func (t *Tracker) ProjectedUtilization(ctx context.Context, siteID int64, asOf time.Time) (decimal.Decimal, error) {
	site, err := t.loadSite(ctx, siteID)
	if err != nil {
		return decimal.Zero, err
	}
	monthly, _ := site.Statistics.SpendFor(asOf)
	return Project(monthly, site.Budget.Monthly, asOf), nil
}

// RecordApproved counts a fully approved expense against its site exactly once.
// Must run inside the transaction that moves the expense to approved.
// Returns false when the expense had already been counted.
func (t *Tracker) RecordApproved(ctx context.Context, expense *entity.Expense, at time.Time) (bool, error) {
	inserted, err := t.ledger.Record(ctx, &port.BudgetLedgerEntry{
		ExpenseID: expense.ID,
		SiteID:    expense.SiteID,
		Amount:    expense.Amount,
		CountedAt: at,
	})
	if err != nil {
		return false, fmt.Errorf("record budget ledger: %w", err)
	}
	if !inserted {
		t.logger.Info("Expense already counted against budget", "expense_id", expense.ID, "site_id", expense.SiteID)
		return false, nil
	}

	if err := t.sites.IncrementSpend(ctx, expense.SiteID, expense.Amount, at); err != nil {
		return false, fmt.Errorf("increment site spend: %w", err)
	}

	t.logger.Info("Expense counted against budget",
		"expense_id", expense.ID,
		"site_id", expense.SiteID,
		"amount", expense.Amount.String(),
	)
	return true, nil
}

func (t *Tracker) loadSite(ctx context.Context, siteID int64) (*entity.Site, error) {
	site, err := t.sites.GetByID(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("get site: %w", err)
	}
	if site == nil || !site.IsActive {
		return nil, apperr.NotFound("site %d not found", siteID)
	}
	return site, nil
}
