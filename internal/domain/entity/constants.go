package entity

import "strings"

// Category is the closed set of expense categories
type Category string

const (
	CategoryTravel         Category = "TRAVEL"
	CategoryFood           Category = "FOOD"
	CategoryAccommodation  Category = "ACCOMMODATION"
	CategoryTransport      Category = "TRANSPORT"
	CategoryFuel           Category = "FUEL"
	CategoryOfficeSupplies Category = "OFFICE_SUPPLIES"
	CategoryEquipment      Category = "EQUIPMENT"
	CategoryCommunication  Category = "COMMUNICATION"
	CategoryMedical        Category = "MEDICAL"
	CategoryTraining       Category = "TRAINING"
	CategoryEntertainment  Category = "ENTERTAINMENT"
	CategoryMiscellaneous  Category = "MISCELLANEOUS"
)

var validCategories = map[Category]bool{
	CategoryTravel:         true,
	CategoryFood:           true,
	CategoryAccommodation:  true,
	CategoryTransport:      true,
	CategoryFuel:           true,
	CategoryOfficeSupplies: true,
	CategoryEquipment:      true,
	CategoryCommunication:  true,
	CategoryMedical:        true,
	CategoryTraining:       true,
	CategoryEntertainment:  true,
	CategoryMiscellaneous:  true,
}

// IsValid returns true for known categories
func (c Category) IsValid() bool {
	return validCategories[c]
}

// ParseCategory normalizes user input ("food", "Food") to a Category
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	return c, c.IsValid()
}

// PaymentMethod is how the submitter paid
type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodUPI          PaymentMethod = "upi"
)

// IsValid returns true for known payment methods
func (p PaymentMethod) IsValid() bool {
	switch p {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodBankTransfer, PaymentMethodUPI:
		return true
	default:
		return false
	}
}

// Priority constants for Expense
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// ValidPriority returns true for an empty or known priority
func ValidPriority(p string) bool {
	switch p {
	case "", PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// DefaultCurrency is used when an expense does not name one
const DefaultCurrency = "INR"

// Notification status constants
const (
	NotificationStatusPending = "PENDING"
	NotificationStatusSent    = "SENT"
	NotificationStatusFailed  = "FAILED"
)

// Weekdays lists the accepted lower-case weekday names
var Weekdays = []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}
