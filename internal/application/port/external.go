package port

import (
	"context"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// NotificationSender delivers a message over one channel
type NotificationSender interface {
	Send(ctx context.Context, msg *entity.NotificationMessage) (*entity.SendResult, error)
	Channel() string
}

// TokenVerifier resolves a bearer token to a user id
type TokenVerifier interface {
	Verify(token string) (string, error)
}
