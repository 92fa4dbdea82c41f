package entity

import "github.com/garyjia/expense-approval/internal/domain/workflow"

// User is a portal user resolved from a bearer token
type User struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Email      string        `json:"email"`
	Role       workflow.Role `json:"role"`
	SiteID     int64         `json:"siteId"`
	LarkOpenID string        `json:"larkOpenId,omitempty"`
	IsActive   bool          `json:"isActive"`
}
