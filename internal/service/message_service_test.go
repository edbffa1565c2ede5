package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"supportchat/internal/domain"
	"supportchat/internal/security"
	"supportchat/internal/service"
)

func newTestEncryptor(t *testing.T) *security.Encryptor {
	t.Helper()
	enc, err := security.NewEncryptor([]byte("test-key"))
	require.NoError(t, err)
	return enc
}

func activeConversation(id int64) *domain.Conversation {
	return &domain.Conversation{
		ID:          id,
		CustomerKey: "cust-1",
		Status:      domain.ConversationActive,
	}
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		convRepo := new(MockConversationRepo)
		msgRepo := new(MockMessageRepo)
		svc := service.NewMessageService(convRepo, msgRepo, newTestEncryptor(t), nil, 5000)

		convRepo.On("GetByID", ctx, int64(1)).Return(activeConversation(1), nil)
		msgRepo.On("GetByToken", ctx, int64(1), "tok-1").Return(nil, domain.ErrNotFound)
		msgRepo.On("Insert", ctx, mock.AnythingOfType("*domain.Message")).Return(true, nil)
		convRepo.On("TouchLastMessage", ctx, int64(1), "hello", mock.Anything, domain.RoleCustomer).Return(nil)

		res, err := svc.Submit(ctx, service.SubmitInput{
			ConversationID: 1,
			Content:        "hello",
			Role:           domain.RoleCustomer,
			Source:         domain.SourceWidget,
			ClientToken:    "tok-1",
		})
		require.NoError(t, err)
		assert.False(t, res.Duplicate)
		assert.Equal(t, "hello", res.Message.Content)
		assert.Equal(t, domain.StatusSent, res.Message.Status)
		convRepo.AssertExpectations(t)
		msgRepo.AssertExpectations(t)
	})

	t.Run("DuplicateToken", func(t *testing.T) {
		convRepo := new(MockConversationRepo)
		msgRepo := new(MockMessageRepo)
		enc := newTestEncryptor(t)
		svc := service.NewMessageService(convRepo, msgRepo, enc, nil, 5000)

		stored, err := enc.Encrypt("original")
		require.NoError(t, err)
		token := "tok-1"
		existing := &domain.Message{
			ID: 7, ConversationID: 1, Content: stored,
			Role: domain.RoleCustomer, Source: domain.SourceWidget,
			ClientToken: &token, Status: domain.StatusDelivered,
			CreatedAt: time.Now().UTC(),
		}
		convRepo.On("GetByID", ctx, int64(1)).Return(activeConversation(1), nil)
		msgRepo.On("GetByToken", ctx, int64(1), "tok-1").Return(existing, nil)

		res, err := svc.Submit(ctx, service.SubmitInput{
			ConversationID: 1,
			Content:        "retried with different text",
			Role:           domain.RoleCustomer,
			Source:         domain.SourceWidget,
			ClientToken:    "tok-1",
		})
		require.NoError(t, err)
		assert.True(t, res.Duplicate)
		assert.Equal(t, int64(7), res.Message.ID)
		assert.Equal(t, "original", res.Message.Content)
		msgRepo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
		convRepo.AssertNotCalled(t, "TouchLastMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("TokenRaceLoser", func(t *testing.T) {
		convRepo := new(MockConversationRepo)
		msgRepo := new(MockMessageRepo)
		enc := newTestEncryptor(t)
		svc := service.NewMessageService(convRepo, msgRepo, enc, nil, 5000)

		stored, err := enc.Encrypt("winner")
		require.NoError(t, err)
		token := "tok-1"
		winner := &domain.Message{
			ID: 9, ConversationID: 1, Content: stored,
			Role: domain.RoleCustomer, Source: domain.SourceWidget,
			ClientToken: &token, Status: domain.StatusSent,
			CreatedAt: time.Now().UTC(),
		}
		convRepo.On("GetByID", ctx, int64(1)).Return(activeConversation(1), nil)
		// fast-path check misses, then the insert loses the index race
		msgRepo.On("GetByToken", ctx, int64(1), "tok-1").Return(nil, domain.ErrNotFound).Once()
		msgRepo.On("Insert", ctx, mock.AnythingOfType("*domain.Message")).Return(false, nil)
		msgRepo.On("GetByToken", ctx, int64(1), "tok-1").Return(winner, nil).Once()

		res, err := svc.Submit(ctx, service.SubmitInput{
			ConversationID: 1,
			Content:        "winner",
			Role:           domain.RoleCustomer,
			Source:         domain.SourceWidget,
			ClientToken:    "tok-1",
		})
		require.NoError(t, err)
		assert.True(t, res.Duplicate)
		assert.Equal(t, int64(9), res.Message.ID)
		convRepo.AssertNotCalled(t, "TouchLastMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("DuplicateAgainstArchived", func(t *testing.T) {
		// a retry whose conversation was archived in between still gets the
		// canonical message back, with no conflict and no un-archive
		convRepo := new(MockConversationRepo)
		msgRepo := new(MockMessageRepo)
		enc := newTestEncryptor(t)
		svc := service.NewMessageService(convRepo, msgRepo, enc, nil, 5000)

		stored, err := enc.Encrypt("original")
		require.NoError(t, err)
		token := "tok-1"
		existing := &domain.Message{
			ID: 7, ConversationID: 1, Content: stored,
			Role: domain.RoleAgent, Source: domain.SourceDashboard,
			ClientToken: &token, Status: domain.StatusSent,
			CreatedAt: time.Now().UTC(),
		}
		conv := activeConversation(1)
		conv.Archived = true
		convRepo.On("GetByID", ctx, int64(1)).Return(conv, nil)
		msgRepo.On("GetByToken", ctx, int64(1), "tok-1").Return(existing, nil)

		for _, role := range []domain.Role{domain.RoleAgent, domain.RoleCustomer} {
			res, err := svc.Submit(ctx, service.SubmitInput{
				ConversationID: 1,
				Content:        "retry",
				Role:           role,
				Source:         domain.SourceDashboard,
				ClientToken:    "tok-1",
			})
			require.NoError(t, err)
			assert.True(t, res.Duplicate)
			assert.Equal(t, int64(7), res.Message.ID)
		}
		convRepo.AssertNotCalled(t, "Reactivate", mock.Anything, mock.Anything)
		msgRepo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	})

	t.Run("ArchivedRejectsAgent", func(t *testing.T) {
		convRepo := new(MockConversationRepo)
		msgRepo := new(MockMessageRepo)
		svc := service.NewMessageService(convRepo, msgRepo, newTestEncryptor(t), nil, 5000)

		conv := activeConversation(1)
		conv.Archived = true
		convRepo.On("GetByID", ctx, int64(1)).Return(conv, nil)

		_, err := svc.Submit(ctx, service.SubmitInput{
			ConversationID: 1,
			Content:        "hello",
			Role:           domain.RoleAgent,
			Source:         domain.SourceDashboard,
		})
		assert.ErrorIs(t, err, domain.ErrConflict)
		convRepo.AssertNotCalled(t, "Reactivate", mock.Anything, mock.Anything)
	})

	t.Run("ArchivedReactivatedByCustomer", func(t *testing.T) {
		convRepo := new(MockConversationRepo)
		msgRepo := new(MockMessageRepo)
		svc := service.NewMessageService(convRepo, msgRepo, newTestEncryptor(t), nil, 5000)

		conv := activeConversation(1)
		conv.Archived = true
		conv.Status = domain.ConversationClosed
		convRepo.On("GetByID", ctx, int64(1)).Return(conv, nil)
		convRepo.On("Reactivate", ctx, int64(1)).Return(nil)
		msgRepo.On("Insert", ctx, mock.AnythingOfType("*domain.Message")).Return(true, nil)
		convRepo.On("TouchLastMessage", ctx, int64(1), "back again", mock.Anything, domain.RoleCustomer).Return(nil)

		res, err := svc.Submit(ctx, service.SubmitInput{
			ConversationID: 1,
			Content:        "back again",
			Role:           domain.RoleCustomer,
			Source:         domain.SourceWidget,
		})
		require.NoError(t, err)
		assert.False(t, res.Duplicate)
		convRepo.AssertExpectations(t)
	})

	t.Run("EmptyContent", func(t *testing.T) {
		svc := service.NewMessageService(new(MockConversationRepo), new(MockMessageRepo), newTestEncryptor(t), nil, 5000)
		_, err := svc.Submit(ctx, service.SubmitInput{
			ConversationID: 1,
			Role:           domain.RoleCustomer,
			Source:         domain.SourceWidget,
		})
		assert.ErrorIs(t, err, domain.ErrPayloadInvalid)
	})

	t.Run("ContentTooLong", func(t *testing.T) {
		svc := service.NewMessageService(new(MockConversationRepo), new(MockMessageRepo), newTestEncryptor(t), nil, 10)
		_, err := svc.Submit(ctx, service.SubmitInput{
			ConversationID: 1,
			Content:        strings.Repeat("a", 11),
			Role:           domain.RoleCustomer,
			Source:         domain.SourceWidget,
		})
		assert.ErrorIs(t, err, domain.ErrPayloadInvalid)
	})

	t.Run("UnknownRole", func(t *testing.T) {
		svc := service.NewMessageService(new(MockConversationRepo), new(MockMessageRepo), newTestEncryptor(t), nil, 5000)
		_, err := svc.Submit(ctx, service.SubmitInput{
			ConversationID: 1,
			Content:        "hello",
			Role:           domain.Role("moderator"),
			Source:         domain.SourceWidget,
		})
		assert.ErrorIs(t, err, domain.ErrPayloadInvalid)
	})

	t.Run("AttachmentOnlyMessage", func(t *testing.T) {
		convRepo := new(MockConversationRepo)
		msgRepo := new(MockMessageRepo)
		svc := service.NewMessageService(convRepo, msgRepo, newTestEncryptor(t), nil, 5000)

		convRepo.On("GetByID", ctx, int64(1)).Return(activeConversation(1), nil)
		msgRepo.On("Insert", ctx, mock.AnythingOfType("*domain.Message")).Return(true, nil)
		convRepo.On("TouchLastMessage", ctx, int64(1), "receipt.pdf", mock.Anything, domain.RoleCustomer).Return(nil)

		res, err := svc.Submit(ctx, service.SubmitInput{
			ConversationID: 1,
			Role:           domain.RoleCustomer,
			Source:         domain.SourceWidget,
			Attachment: &domain.Attachment{
				URL: "/api/uploads/x.pdf", Name: "receipt.pdf",
				Size: 10, Mime: "application/pdf", Kind: "file",
			},
		})
		require.NoError(t, err)
		require.NotNil(t, res.Message.Attachment)
		assert.Equal(t, "receipt.pdf", res.Message.Attachment.Name)
	})
}

func TestFetchAfter(t *testing.T) {
	ctx := context.Background()

	t.Run("ArchivedHidden", func(t *testing.T) {
		convRepo := new(MockConversationRepo)
		msgRepo := new(MockMessageRepo)
		svc := service.NewMessageService(convRepo, msgRepo, newTestEncryptor(t), nil, 5000)

		conv := activeConversation(1)
		conv.Archived = true
		convRepo.On("GetByID", ctx, int64(1)).Return(conv, nil)

		_, err := svc.FetchAfter(ctx, 1, 0)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		msgRepo.AssertNotCalled(t, "ListAfter", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("WatermarkRaisesVisibleStatus", func(t *testing.T) {
		convRepo := new(MockConversationRepo)
		msgRepo := new(MockMessageRepo)
		enc := newTestEncryptor(t)
		svc := service.NewMessageService(convRepo, msgRepo, enc, nil, 5000)

		now := time.Now().UTC()
		wm := now.Add(time.Second)
		conv := activeConversation(1)
		conv.LastReadAtAgent = &wm

		stored, err := enc.Encrypt("hi")
		require.NoError(t, err)
		convRepo.On("GetByID", ctx, int64(1)).Return(conv, nil)
		msgRepo.On("ListAfter", ctx, int64(1), int64(0), 0).Return([]*domain.Message{
			{ID: 1, ConversationID: 1, Content: stored, Role: domain.RoleCustomer,
				Source: domain.SourceWidget, Status: domain.StatusSent, CreatedAt: now},
		}, nil)

		views, err := svc.FetchAfter(ctx, 1, 0)
		require.NoError(t, err)
		require.Len(t, views, 1)
		assert.Equal(t, domain.StatusRead, views[0].Status)
		assert.Equal(t, "hi", views[0].Content)
	})
}
