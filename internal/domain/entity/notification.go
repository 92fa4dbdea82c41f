package entity

import "time"

// Notification is one delivery attempt record for a domain event
type Notification struct {
	ID           int64      `json:"id"`
	ExpenseID    int64      `json:"expenseId"`
	EventType    string     `json:"eventType"`
	RecipientID  string     `json:"recipientId"`
	Channel      string     `json:"channel"`
	Message      string     `json:"message"`
	Status       string     `json:"status"`
	Attempts     int        `json:"attempts"`
	MessageID    string     `json:"messageId,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	SentAt       *time.Time `json:"sentAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// NotificationMessage is what a sender delivers to one recipient
type NotificationMessage struct {
	RecipientID string
	Address     string
	Title       string
	Body        string
}

// SendResult is what a sender reports back
type SendResult struct {
	Success      bool
	MessageID    string
	ErrorMessage string
}
