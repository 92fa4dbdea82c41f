package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

const notificationColumns = `
	id, expense_id, event_type, recipient_id, channel, message, status,
	attempts, message_id, error_message, sent_at, created_at, updated_at`

// NotificationRepository implements port.NotificationRepository
type NotificationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *sql.DB, logger *zap.Logger) port.NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new notification record
func (r *NotificationRepository) Create(ctx context.Context, n *entity.Notification) error {
	query := `
		INSERT INTO notifications (
			expense_id, event_type, recipient_id, channel, message, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now
	if n.Status == "" {
		n.Status = entity.NotificationStatusPending
	}

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		n.ExpenseID,
		n.EventType,
		n.RecipientID,
		n.Channel,
		n.Message,
		n.Status,
		n.CreatedAt,
		n.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create notification",
			zap.Int64("expense_id", n.ExpenseID),
			zap.String("recipient_id", n.RecipientID),
			zap.Error(err))
		return fmt.Errorf("failed to create notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	n.ID = id
	return nil
}

// MarkSent records a successful attempt
func (r *NotificationRepository) MarkSent(ctx context.Context, id int64, messageID string) error {
	query := `
		UPDATE notifications
		SET status = ?, attempts = attempts + 1, message_id = ?, error_message = '', sent_at = ?, updated_at = ?
		WHERE id = ?
	`

	now := time.Now().UTC()
	if _, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		entity.NotificationStatusSent, messageID, now, now, id,
	); err != nil {
		r.logger.Error("Failed to mark notification sent", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}
	return nil
}

// MarkFailed records a failed attempt
func (r *NotificationRepository) MarkFailed(ctx context.Context, id int64, errorMsg string) error {
	query := `
		UPDATE notifications
		SET status = ?, attempts = attempts + 1, error_message = ?, updated_at = ?
		WHERE id = ?
	`

	if _, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		entity.NotificationStatusFailed, errorMsg, time.Now().UTC(), id,
	); err != nil {
		r.logger.Error("Failed to mark notification failed", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to mark notification failed: %w", err)
	}
	return nil
}

// ListFailed returns failed notifications that still have attempts left, oldest first
func (r *NotificationRepository) ListFailed(ctx context.Context, maxAttempts, limit int) ([]*entity.Notification, error) {
	query := `SELECT ` + notificationColumns + `
		FROM notifications
		WHERE status = ? AND attempts < ?
		ORDER BY id ASC
		LIMIT ?
	`

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query,
		entity.NotificationStatusFailed, maxAttempts, limit,
	)
	if err != nil {
		r.logger.Error("Failed to list failed notifications", zap.Error(err))
		return nil, fmt.Errorf("failed to list failed notifications: %w", err)
	}
	defer rows.Close()

	return collectNotifications(rows)
}

// GetByExpenseID returns every notification produced for an expense
func (r *NotificationRepository) GetByExpenseID(ctx context.Context, expenseID int64) ([]*entity.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE expense_id = ? ORDER BY id ASC`

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, expenseID)
	if err != nil {
		r.logger.Error("Failed to get notifications", zap.Int64("expense_id", expenseID), zap.Error(err))
		return nil, fmt.Errorf("failed to get notifications: %w", err)
	}
	defer rows.Close()

	return collectNotifications(rows)
}

func collectNotifications(rows *sql.Rows) ([]*entity.Notification, error) {
	var out []*entity.Notification
	for rows.Next() {
		var (
			n      entity.Notification
			sentAt sql.NullTime
		)
		if err := rows.Scan(
			&n.ID,
			&n.ExpenseID,
			&n.EventType,
			&n.RecipientID,
			&n.Channel,
			&n.Message,
			&n.Status,
			&n.Attempts,
			&n.MessageID,
			&n.ErrorMessage,
			&sentAt,
			&n.CreatedAt,
			&n.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.SentAt = nullTimePtr(sentAt)
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notifications: %w", err)
	}
	return out, nil
}
