package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// NotificationService turns expense events into messages for the people who need to act
type NotificationService interface {
	// Register subscribes the service to every expense event
	Register(d dispatcher.Dispatcher)

	// HandleEvent notifies the recipients of one event
	HandleEvent(ctx context.Context, evt *event.Event) error

	// Retry re-sends a previously failed notification
	Retry(ctx context.Context, n *entity.Notification) error
}

type notificationServiceImpl struct {
	users            port.UserRepository
	notificationRepo port.NotificationRepository
	sender           port.NotificationSender
	logger           Logger
	now              func() time.Time
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(
	users port.UserRepository,
	notificationRepo port.NotificationRepository,
	sender port.NotificationSender,
	logger Logger,
) NotificationService {
	return &notificationServiceImpl{
		users:            users,
		notificationRepo: notificationRepo,
		sender:           sender,
		logger:           logger,
		now:              time.Now,
	}
}

var subscribedEvents = []event.Type{
	event.TypeExpenseSubmitted,
	event.TypeExpenseLevelApproved,
	event.TypeExpenseRejected,
	event.TypeExpenseApproved,
	event.TypeExpenseReimbursed,
	event.TypeExpensePaymentProcessed,
	event.TypeStatusChanged,
}

func (s *notificationServiceImpl) Register(d dispatcher.Dispatcher) {
	d.SubscribeAll(subscribedEvents, "notification_service", s.HandleEvent)
}

// HandleEvent resolves recipients and sends one message each.
// A failed send is recorded and left for the retry worker; it does not fail the handler.
func (s *notificationServiceImpl) HandleEvent(ctx context.Context, evt *event.Event) error {
	// status changes are for audit consumers only
	if evt.Type == event.TypeStatusChanged {
		return nil
	}

	recipients, err := s.recipients(ctx, evt)
	if err != nil {
		return fmt.Errorf("resolve recipients: %w", err)
	}
	if len(recipients) == 0 {
		s.logger.Info("No recipients for event", "event_type", evt.Type, "expense_id", evt.ExpenseID)
		return nil
	}

	title, body := compose(evt)
	for _, u := range recipients {
		n := &entity.Notification{
			ExpenseID:   evt.ExpenseID,
			EventType:   evt.Type.String(),
			RecipientID: u.ID,
			Channel:     s.sender.Channel(),
			Message:     body,
			Status:      entity.NotificationStatusPending,
			CreatedAt:   s.now(),
			UpdatedAt:   s.now(),
		}
		if err := s.notificationRepo.Create(ctx, n); err != nil {
			return fmt.Errorf("create notification: %w", err)
		}
		s.deliver(ctx, n, u, title)
	}

	return nil
}

func (s *notificationServiceImpl) Retry(ctx context.Context, n *entity.Notification) error {
	u, err := s.users.GetByID(ctx, n.RecipientID)
	if err != nil {
		return fmt.Errorf("get recipient: %w", err)
	}
	if u == nil || !u.IsActive {
		s.logger.Info("Dropping notification for inactive recipient", "notification_id", n.ID, "recipient_id", n.RecipientID)
		return s.notificationRepo.MarkFailed(ctx, n.ID, "recipient inactive")
	}

	s.deliver(ctx, n, u, titleFor(event.Type(n.EventType)))
	return nil
}

// deliver sends and records the outcome; the stored status is the source of truth
func (s *notificationServiceImpl) deliver(ctx context.Context, n *entity.Notification, u *entity.User, title string) {
	result, err := s.sender.Send(ctx, &entity.NotificationMessage{
		RecipientID: u.ID,
		Address:     u.LarkOpenID,
		Title:       title,
		Body:        n.Message,
	})
	if err == nil && result != nil && !result.Success {
		err = fmt.Errorf("%s", result.ErrorMessage)
	}

	if err != nil {
		s.logger.Error("Failed to send notification",
			"notification_id", n.ID,
			"expense_id", n.ExpenseID,
			"recipient_id", u.ID,
			"channel", n.Channel,
			"error", err,
		)
		if markErr := s.notificationRepo.MarkFailed(ctx, n.ID, err.Error()); markErr != nil {
			s.logger.Error("Failed to mark notification failed", "notification_id", n.ID, "error", markErr)
		}
		return
	}

	if err := s.notificationRepo.MarkSent(ctx, n.ID, result.MessageID); err != nil {
		s.logger.Error("Failed to mark notification sent", "notification_id", n.ID, "error", err)
		return
	}

	s.logger.Info("Notification sent",
		"notification_id", n.ID,
		"expense_id", n.ExpenseID,
		"recipient_id", u.ID,
		"event_type", n.EventType,
	)
}

// recipients returns the submitter and, when the chain moves on, the approvers of the next level
func (s *notificationServiceImpl) recipients(ctx context.Context, evt *event.Event) ([]*entity.User, error) {
	submitterID := evt.GetPayloadString(event.KeySubmitterID)
	siteID := evt.GetPayloadInt(event.KeySiteID)

	var out []*entity.User
	seen := map[string]bool{}
	add := func(users ...*entity.User) {
		for _, u := range users {
			if u == nil || !u.IsActive || seen[u.ID] {
				continue
			}
			seen[u.ID] = true
			out = append(out, u)
		}
	}

	// the submitter already knows they submitted
	if evt.Type != event.TypeExpenseSubmitted && submitterID != "" {
		u, err := s.users.GetByID(ctx, submitterID)
		if err != nil {
			return nil, fmt.Errorf("get submitter: %w", err)
		}
		add(u)
	}

	var next workflow.Level
	switch evt.Type {
	case event.TypeExpenseSubmitted, event.TypeExpenseLevelApproved:
		next = workflow.Level(evt.GetPayloadInt(event.KeyNextLevel))
	case event.TypeExpenseApproved:
		next = workflow.LevelFinance
	}

	if next.IsValid() {
		approvers, err := s.approversFor(ctx, next, siteID)
		if err != nil {
			return nil, err
		}
		for _, a := range approvers {
			if a.ID != submitterID {
				add(a)
			}
		}
	}

	return out, nil
}

func (s *notificationServiceImpl) approversFor(ctx context.Context, lvl workflow.Level, siteID int64) ([]*entity.User, error) {
	role, ok := workflow.RoleForLevel(lvl)
	if !ok {
		return nil, nil
	}

	var site *int64
	if lvl == workflow.LevelL1 {
		site = &siteID
	}

	users, err := s.users.ListByRole(ctx, role, site)
	if err != nil {
		return nil, fmt.Errorf("list %s users: %w", role, err)
	}
	return users, nil
}

func titleFor(t event.Type) string {
	switch t {
	case event.TypeExpenseSubmitted:
		return "Expense awaiting approval"
	case event.TypeExpenseLevelApproved:
		return "Expense approved at a level"
	case event.TypeExpenseRejected:
		return "Expense rejected"
	case event.TypeExpenseApproved:
		return "Expense approved"
	case event.TypeExpenseReimbursed:
		return "Expense reimbursed"
	case event.TypeExpensePaymentProcessed:
		return "Expense payment processed"
	default:
		return "Expense update"
	}
}

func compose(evt *event.Event) (string, string) {
	number := evt.GetPayloadString(event.KeyExpenseNumber)
	amount := evt.GetPayloadString(event.KeyAmount)

	var b strings.Builder
	switch evt.Type {
	case event.TypeExpenseSubmitted:
		fmt.Fprintf(&b, "Expense %s for %s was submitted and awaits your review.", number, amount)
	case event.TypeExpenseLevelApproved:
		lvl := workflow.Level(evt.GetPayloadInt(event.KeyLevel))
		fmt.Fprintf(&b, "Expense %s for %s was approved at level %s.", number, amount, lvl)
		if next := workflow.Level(evt.GetPayloadInt(event.KeyNextLevel)); next.IsValid() {
			fmt.Fprintf(&b, " It now awaits %s approval.", next)
		}
	case event.TypeExpenseRejected:
		fmt.Fprintf(&b, "Expense %s for %s was rejected.", number, amount)
	case event.TypeExpenseApproved:
		fmt.Fprintf(&b, "Expense %s for %s is fully approved and ready for payment.", number, amount)
	case event.TypeExpenseReimbursed:
		fmt.Fprintf(&b, "Expense %s for %s was reimbursed.", number, amount)
	case event.TypeExpensePaymentProcessed:
		fmt.Fprintf(&b, "Payment for expense %s (%s) was processed.", number, amount)
	default:
		fmt.Fprintf(&b, "Expense %s changed to %s.", number, evt.GetPayloadString(event.KeyToStatus))
	}

	if comment := evt.GetPayloadString(event.KeyComment); comment != "" {
		fmt.Fprintf(&b, "\nComment: %s", comment)
	}
	return titleFor(evt.Type), b.String()
}
