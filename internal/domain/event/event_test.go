package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestType_IsValid(t *testing.T) {
	tests := []struct {
		name      string
		eventType Type
		want      bool
	}{
		{"submitted", TypeExpenseSubmitted, true},
		{"level approved", TypeExpenseLevelApproved, true},
		{"rejected", TypeExpenseRejected, true},
		{"approved", TypeExpenseApproved, true},
		{"reimbursed", TypeExpenseReimbursed, true},
		{"payment processed", TypeExpensePaymentProcessed, true},
		{"status changed", TypeStatusChanged, true},
		{"unknown", Type("expense.exploded"), false},
		{"empty", Type(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.eventType.IsValid())
		})
	}
}

func TestNewEvent(t *testing.T) {
	e := NewEvent(TypeExpenseApproved, 7, map[string]interface{}{KeyToStatus: "approved"})

	assert.NotEmpty(t, e.ID)
	assert.NotEmpty(t, e.CorrelationID)
	assert.NotEqual(t, e.ID, e.CorrelationID)
	assert.Equal(t, int64(7), e.ExpenseID)
	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, "approved", e.GetPayloadString(KeyToStatus))
}

func TestNewEventWithCorrelation(t *testing.T) {
	e := NewEventWithCorrelation(TypeStatusChanged, 1, nil, "corr-1")
	assert.Equal(t, "corr-1", e.CorrelationID)
}

func TestEvent_WithPayloadIsImmutable(t *testing.T) {
	original := NewEvent(TypeExpenseSubmitted, 1, map[string]interface{}{KeySiteID: int64(3)})
	updated := original.WithPayload(KeyLevel, 2)

	assert.Equal(t, original.ID, updated.ID)
	assert.Equal(t, int64(2), updated.GetPayloadInt(KeyLevel))
	assert.Equal(t, int64(0), original.GetPayloadInt(KeyLevel))
	assert.Equal(t, int64(3), updated.GetPayloadInt(KeySiteID))
}

func TestEvent_GetPayloadMissingKeys(t *testing.T) {
	e := NewEvent(TypeExpenseSubmitted, 1, map[string]interface{}{KeyLevel: "not a number"})
	assert.Equal(t, "", e.GetPayloadString(KeyComment))
	assert.Equal(t, int64(0), e.GetPayloadInt(KeyLevel))
}
