package lark

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockCreator struct {
	createFunc func(ctx context.Context, req *larkim.CreateMessageReq) (*larkim.CreateMessageResp, error)
	calls      int
}

func (m *mockCreator) Create(ctx context.Context, req *larkim.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.CreateMessageResp, error) {
	m.calls++
	return m.createFunc(ctx, req)
}

func newTestMessenger(c messageCreator) *Messenger {
	return &Messenger{messages: c, logger: zap.NewNop()}
}

func TestMessenger_SendSuccess(t *testing.T) {
	var got *larkim.CreateMessageReq
	creator := &mockCreator{createFunc: func(ctx context.Context, req *larkim.CreateMessageReq) (*larkim.CreateMessageResp, error) {
		got = req
		return &larkim.CreateMessageResp{
			Data: &larkim.CreateMessageRespData{MessageId: larkcore.StringPtr("om_123")},
		}, nil
	}}

	result, err := newTestMessenger(creator).Send(context.Background(), &entity.NotificationMessage{
		RecipientID: "u1",
		Address:     "ou_abc",
		Title:       "Expense rejected",
		Body:        "Expense EXP-2024-000001 was rejected.\nComment: no receipt",
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "om_123", result.MessageID)

	require.NotNil(t, got)
	assert.Equal(t, "ou_abc", *got.Body.ReceiveId)
	assert.Equal(t, "post", *got.Body.MsgType)

	var content map[string]postBody
	require.NoError(t, json.Unmarshal([]byte(*got.Body.Content), &content))
	assert.Equal(t, "Expense rejected", content["en_us"].Title)
	require.Len(t, content["en_us"].Content, 2)
	assert.Equal(t, "Comment: no receipt", content["en_us"].Content[1][0].Text)
}

func TestMessenger_APIFailureIsUnsuccessfulResult(t *testing.T) {
	creator := &mockCreator{createFunc: func(ctx context.Context, req *larkim.CreateMessageReq) (*larkim.CreateMessageResp, error) {
		return &larkim.CreateMessageResp{CodeError: larkcore.CodeError{Code: 230002, Msg: "bot not in chat"}}, nil
	}}

	result, err := newTestMessenger(creator).Send(context.Background(), &entity.NotificationMessage{RecipientID: "u1", Address: "ou_abc"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage, "230002")
}

func TestMessenger_TransportError(t *testing.T) {
	creator := &mockCreator{createFunc: func(ctx context.Context, req *larkim.CreateMessageReq) (*larkim.CreateMessageResp, error) {
		return nil, errors.New("connection reset")
	}}

	_, err := newTestMessenger(creator).Send(context.Background(), &entity.NotificationMessage{RecipientID: "u1", Address: "ou_abc"})
	assert.ErrorContains(t, err, "connection reset")
}

func TestMessenger_MissingAddress(t *testing.T) {
	creator := &mockCreator{}
	m := newTestMessenger(creator)

	result, err := m.Send(context.Background(), &entity.NotificationMessage{RecipientID: "u1"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Zero(t, creator.calls)
	assert.Equal(t, ChannelName, m.Channel())
}
