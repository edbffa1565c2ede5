package service_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"supportchat/internal/domain"
)

type MockConversationRepo struct {
	mock.Mock
}

func (m *MockConversationRepo) Create(ctx context.Context, c *domain.Conversation) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockConversationRepo) GetByID(ctx context.Context, id int64) (*domain.Conversation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Conversation), args.Error(1)
}

func (m *MockConversationRepo) GetByCustomerKey(ctx context.Context, key string) (*domain.Conversation, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Conversation), args.Error(1)
}

func (m *MockConversationRepo) List(ctx context.Context) ([]*domain.Conversation, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Conversation), args.Error(1)
}

func (m *MockConversationRepo) SetStatus(ctx context.Context, id int64, status domain.ConversationStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockConversationRepo) SetArchived(ctx context.Context, id int64, archived bool) error {
	args := m.Called(ctx, id, archived)
	return args.Error(0)
}

func (m *MockConversationRepo) Reactivate(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockConversationRepo) AdvanceReadWatermark(ctx context.Context, id int64, role domain.Role, at time.Time) error {
	args := m.Called(ctx, id, role, at)
	return args.Error(0)
}

func (m *MockConversationRepo) TouchLastMessage(ctx context.Context, id int64, preview string, at time.Time, from domain.Role) error {
	args := m.Called(ctx, id, preview, at, from)
	return args.Error(0)
}

type MockMessageRepo struct {
	mock.Mock
}

func (m *MockMessageRepo) Insert(ctx context.Context, msg *domain.Message) (bool, error) {
	args := m.Called(ctx, msg)
	return args.Bool(0), args.Error(1)
}

func (m *MockMessageRepo) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *MockMessageRepo) GetByToken(ctx context.Context, conversationID int64, token string) (*domain.Message, error) {
	args := m.Called(ctx, conversationID, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *MockMessageRepo) ListAfter(ctx context.Context, conversationID, afterID int64, limit int) ([]*domain.Message, error) {
	args := m.Called(ctx, conversationID, afterID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}

func (m *MockMessageRepo) UpgradeStatusUpTo(ctx context.Context, conversationID int64, authorRole domain.Role, status domain.MessageStatus, upTo time.Time) error {
	args := m.Called(ctx, conversationID, authorRole, status, upTo)
	return args.Error(0)
}

func (m *MockMessageRepo) ListAttachments(ctx context.Context, conversationID int64) ([]domain.Attachment, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Attachment), args.Error(1)
}

func (m *MockMessageRepo) ClearAttachments(ctx context.Context, conversationID int64) error {
	args := m.Called(ctx, conversationID)
	return args.Error(0)
}

type MockBlobStore struct {
	mock.Mock
}

func (m *MockBlobStore) Save(ctx context.Context, name string, data []byte) (string, error) {
	args := m.Called(ctx, name, data)
	return args.String(0), args.Error(1)
}

func (m *MockBlobStore) Remove(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}
