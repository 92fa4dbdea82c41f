// Package notify holds notification senders that need no external service.
package notify

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"go.uber.org/zap"
)

// LogChannelName identifies the log sender in stored notifications
const LogChannelName = "log"

// LogSender writes notifications to the structured log.
// Used when no Lark app is configured.
type LogSender struct {
	logger *zap.Logger
	seq    atomic.Int64
}

// NewLogSender creates a sender that only logs
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Channel implements port.NotificationSender
func (s *LogSender) Channel() string {
	return LogChannelName
}

// Send implements port.NotificationSender
func (s *LogSender) Send(ctx context.Context, msg *entity.NotificationMessage) (*entity.SendResult, error) {
	id := fmt.Sprintf("log-%d", s.seq.Add(1))
	s.logger.Info("Notification",
		zap.String("message_id", id),
		zap.String("recipient_id", msg.RecipientID),
		zap.String("title", msg.Title),
		zap.String("body", msg.Body))
	return &entity.SendResult{Success: true, MessageID: id}, nil
}

var _ port.NotificationSender = (*LogSender)(nil)
