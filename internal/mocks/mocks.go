package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"support-chat/internal/auth"
	"support-chat/internal/models"
	"support-chat/internal/repositories"
)

type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) FindByIdentity(ctx context.Context, identity models.Identity) (models.Conversation, error) {
	args := m.Called(ctx, identity)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) GetConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	args := m.Called(ctx, conversationID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	args := m.Called(ctx)
	var list []models.Conversation
	if val := args.Get(0); val != nil {
		list = val.([]models.Conversation)
	}
	return list, args.Error(1)
}

func (m *ConversationRepositoryMock) DeleteConversation(ctx context.Context, conversationID string) (repositories.DeleteResult, error) {
	args := m.Called(ctx, conversationID)
	var res repositories.DeleteResult
	if val := args.Get(0); val != nil {
		res = val.(repositories.DeleteResult)
	}
	return res, args.Error(1)
}

func (m *ConversationRepositoryMock) DeleteConversations(ctx context.Context, conversationIDs []string) (repositories.DeleteResult, error) {
	args := m.Called(ctx, conversationIDs)
	var res repositories.DeleteResult
	if val := args.Get(0); val != nil {
		res = val.(repositories.DeleteResult)
	}
	return res, args.Error(1)
}

func (m *ConversationRepositoryMock) PurgeIdentity(ctx context.Context, identity models.Identity) (repositories.DeleteResult, error) {
	args := m.Called(ctx, identity)
	var res repositories.DeleteResult
	if val := args.Get(0); val != nil {
		res = val.(repositories.DeleteResult)
	}
	return res, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, conversationID *string, msg models.NewMessage) (models.Message, error) {
	args := m.Called(ctx, conversationID, msg)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) ListConversationMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	args := m.Called(ctx, conversationID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) ListBroadcasts(ctx context.Context, limit int) ([]models.Message, error) {
	args := m.Called(ctx, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) DeleteMessage(ctx context.Context, messageID string) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) DeleteMessages(ctx context.Context, messageIDs []string) (int64, error) {
	args := m.Called(ctx, messageIDs)
	return int64(args.Int(0)), args.Error(1)
}

func (m *MessageRepositoryMock) DeleteConversationMessages(ctx context.Context, conversationID string) (int64, error) {
	args := m.Called(ctx, conversationID)
	return int64(args.Int(0)), args.Error(1)
}

type ThreadRepositoryMock struct {
	mock.Mock
}

func (m *ThreadRepositoryMock) SendFromUser(ctx context.Context, sender models.Identity, body string) (repositories.SendResult, error) {
	args := m.Called(ctx, sender, body)
	var res repositories.SendResult
	if val := args.Get(0); val != nil {
		res = val.(repositories.SendResult)
	}
	return res, args.Error(1)
}

func (m *ThreadRepositoryMock) SendFromAdmin(ctx context.Context, conversationID string, admin models.Identity, body, replyTo string) (repositories.SendResult, error) {
	args := m.Called(ctx, conversationID, admin, body, replyTo)
	var res repositories.SendResult
	if val := args.Get(0); val != nil {
		res = val.(repositories.SendResult)
	}
	return res, args.Error(1)
}

func (m *ThreadRepositoryMock) StartThread(ctx context.Context, admin models.Identity, targetUserID, body string) (repositories.SendResult, error) {
	args := m.Called(ctx, admin, targetUserID, body)
	var res repositories.SendResult
	if val := args.Get(0); val != nil {
		res = val.(repositories.SendResult)
	}
	return res, args.Error(1)
}

func (m *ThreadRepositoryMock) ConsumeThread(ctx context.Context, conversationID string, consumer models.Role) (models.ConversationThread, error) {
	args := m.Called(ctx, conversationID, consumer)
	var thread models.ConversationThread
	if val := args.Get(0); val != nil {
		thread = val.(models.ConversationThread)
	}
	return thread, args.Error(1)
}

func (m *ThreadRepositoryMock) ConsumeUserThread(ctx context.Context, identity models.Identity) (models.ConversationThread, error) {
	args := m.Called(ctx, identity)
	var thread models.ConversationThread
	if val := args.Get(0); val != nil {
		thread = val.(models.ConversationThread)
	}
	return thread, args.Error(1)
}

type ReadStateRepositoryMock struct {
	mock.Mock
}

func (m *ReadStateRepositoryMock) MarkConsumed(ctx context.Context, conversationID string, consumer models.Role) (repositories.ConsumeResult, error) {
	args := m.Called(ctx, conversationID, consumer)
	var res repositories.ConsumeResult
	if val := args.Get(0); val != nil {
		res = val.(repositories.ConsumeResult)
	}
	return res, args.Error(1)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID string) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

type TokenVerifierMock struct {
	mock.Mock
}

func (m *TokenVerifierMock) Verify(token string) (auth.Principal, error) {
	args := m.Called(token)
	var p auth.Principal
	if val := args.Get(0); val != nil {
		p = val.(auth.Principal)
	}
	return p, args.Error(1)
}
