package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"
)

// ChannelName identifies Lark in stored notifications
const ChannelName = "lark"

// messageCreator is the slice of the IM API the messenger needs
type messageCreator interface {
	Create(ctx context.Context, req *larkim.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.CreateMessageResp, error)
}

// Messenger implements port.NotificationSender over Lark IM
type Messenger struct {
	messages messageCreator
	logger   *zap.Logger
}

// NewMessenger creates a new Lark message sender
func NewMessenger(sdk *SDKClient, logger *zap.Logger) *Messenger {
	return &Messenger{
		messages: sdk.GetClient().Im.Message,
		logger:   logger,
	}
}

// Channel implements port.NotificationSender
func (m *Messenger) Channel() string {
	return ChannelName
}

// Send posts a rich-text message to the recipient's open_id.
// API-level failures come back as an unsuccessful result so they are recorded, not raised.
func (m *Messenger) Send(ctx context.Context, msg *entity.NotificationMessage) (*entity.SendResult, error) {
	if msg.Address == "" {
		return &entity.SendResult{Success: false, ErrorMessage: "recipient has no lark open_id"}, nil
	}

	content, err := postContent(msg.Title, msg.Body)
	if err != nil {
		return nil, err
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType("open_id").
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(msg.Address).
			MsgType("post").
			Content(content).
			Build()).
		Build()

	resp, err := m.messages.Create(ctx, req)
	if err != nil {
		m.logger.Error("Failed to send message",
			zap.String("recipient_id", msg.RecipientID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	if !resp.Success() {
		m.logger.Error("API returned failure",
			zap.String("recipient_id", msg.RecipientID),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return &entity.SendResult{
			Success:      false,
			ErrorMessage: fmt.Sprintf("lark error: code=%d, msg=%s", resp.Code, resp.Msg),
		}, nil
	}

	messageID := ""
	if resp.Data != nil && resp.Data.MessageId != nil {
		messageID = *resp.Data.MessageId
	}

	m.logger.Info("Message sent successfully",
		zap.String("message_id", messageID),
		zap.String("recipient_id", msg.RecipientID))

	return &entity.SendResult{Success: true, MessageID: messageID}, nil
}

type postElement struct {
	Tag  string `json:"tag"`
	Text string `json:"text"`
}

type postBody struct {
	Title   string          `json:"title"`
	Content [][]postElement `json:"content"`
}

// postContent builds the "post" message JSON, one paragraph per body line
func postContent(title, body string) (string, error) {
	var paragraphs [][]postElement
	for _, line := range strings.Split(body, "\n") {
		paragraphs = append(paragraphs, []postElement{{Tag: "text", Text: line}})
	}

	b, err := json.Marshal(map[string]postBody{
		"en_us": {Title: title, Content: paragraphs},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal message content: %w", err)
	}
	return string(b), nil
}

// Verify interface compliance
var _ port.NotificationSender = (*Messenger)(nil)
