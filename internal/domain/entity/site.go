package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Site is a cost center with its own budget and policy
type Site struct {
	ID         int64      `json:"id"`
	Code       string     `json:"code"`
	Name       string     `json:"name"`
	Location   string     `json:"location"`
	Budget     Budget     `json:"budget"`
	Statistics Statistics `json:"statistics"`
	Policy     Policy     `json:"policy"`
	IsActive   bool       `json:"isActive"`

	// RawPolicy is the stored policy document; keys it omits fall back to defaults
	RawPolicy []byte `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Budget is the allocation for a site
type Budget struct {
	Monthly decimal.Decimal `json:"monthly"`
	Yearly  decimal.Decimal `json:"yearly"`
}

// Statistics caches the spend counted against the budget.
// Month and Year name the period the counters belong to.
type Statistics struct {
	MonthlySpend decimal.Decimal `json:"monthlySpend"`
	YearlySpend  decimal.Decimal `json:"yearlySpend"`
	Month        string          `json:"month"`
	Year         int             `json:"year"`
}

// SpendFor returns the counters as seen at t; counters from a past period read as zero
func (s Statistics) SpendFor(t time.Time) (monthly, yearly decimal.Decimal) {
	monthly, yearly = decimal.Zero, decimal.Zero
	if s.Year == t.Year() {
		yearly = s.YearlySpend
		if s.Month == t.Format("2006-01") {
			monthly = s.MonthlySpend
		}
	}
	return monthly, yearly
}

// Policy is the per-site rule set applied to submissions
type Policy struct {
	DuplicateWindowDays      int                          `json:"duplicateWindowDays"`
	DuplicateAmountTolerance decimal.Decimal              `json:"duplicateAmountTolerance"`
	PerCategoryLimits        map[Category]decimal.Decimal `json:"perCategoryLimits"`
	CashMax                  decimal.Decimal              `json:"cashMax"`
	RequireDirectorAbove     map[Category]decimal.Decimal `json:"requireDirectorAbove"`
	WeekendDisallow          []string                     `json:"weekendDisallow"`
}

// DisallowsDay returns true if submissions dated on this weekday are blocked
func (p *Policy) DisallowsDay(d time.Weekday) bool {
	name := Weekdays[d]
	for _, w := range p.WeekendDisallow {
		if w == name {
			return true
		}
	}
	return false
}

// DirectorThreshold returns the escalation threshold for the category, if any
func (p *Policy) DirectorThreshold(c Category) (decimal.Decimal, bool) {
	v, ok := p.RequireDirectorAbove[c]
	return v, ok
}

// CategoryLimit returns the cap for the category, if any
func (p *Policy) CategoryLimit(c Category) (decimal.Decimal, bool) {
	v, ok := p.PerCategoryLimits[c]
	return v, ok
}
