// Package access centralizes which expenses a user may see and act on.
package access

import (
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
)

// siteScoped lists the roles restricted to their own site
var siteScoped = map[workflow.Role]bool{
	workflow.RoleL1Approver: true,
}

// Scope is the visibility of one user
type Scope struct {
	UserID string
	Role   workflow.Role
	// SiteID is nil when the user sees every site
	SiteID *int64
	// OwnOnly restricts the user to expenses they submitted
	OwnOnly bool
	// Level is the approval level the user acts at, LevelNone for non-approvers
	Level workflow.Level
}

// For resolves the scope of a user
func For(user *entity.User) Scope {
	s := Scope{UserID: user.ID, Role: user.Role}

	if lvl, err := workflow.LevelForRole(user.Role); err == nil {
		s.Level = lvl
	}

	switch {
	case user.Role == workflow.RoleSubmitter:
		s.OwnOnly = true
		site := user.SiteID
		s.SiteID = &site
	case siteScoped[user.Role]:
		site := user.SiteID
		s.SiteID = &site
	}
	return s
}

// CanView reports whether the expense is visible in this scope
func (s Scope) CanView(e *entity.Expense) bool {
	if e.SubmitterID == s.UserID {
		return true
	}
	if s.OwnOnly {
		return false
	}
	return s.CoversSite(e.SiteID)
}

// CoversSite reports whether the user may see expenses of the site
func (s Scope) CoversSite(siteID int64) bool {
	return s.SiteID == nil || *s.SiteID == siteID
}

// IsApprover reports whether the user acts in the approval chain
func (s Scope) IsApprover() bool {
	return s.Level != workflow.LevelNone
}

// ListFilter narrows a listing to what the user may see
func (s Scope) ListFilter(base entity.ExpenseFilter) entity.ExpenseFilter {
	f := base
	if s.SiteID != nil {
		site := *s.SiteID
		f.SiteID = &site
	}
	if s.OwnOnly {
		f.SubmitterID = s.UserID
	}
	return f
}

// PendingFilter returns the listing filter for expenses awaiting this user's level.
// ok is false for users outside the approval chain.
func (s Scope) PendingFilter() (entity.ExpenseFilter, bool) {
	if !s.IsApprover() {
		return entity.ExpenseFilter{}, false
	}
	// approvers never act on their own claims
	return s.ListFilter(entity.ExpenseFilter{
		Statuses:           workflow.PendingStates(s.Level),
		ExcludeSubmitterID: s.UserID,
	}), true
}
