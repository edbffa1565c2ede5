package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"supportchat/internal/domain"
	"supportchat/internal/service"
)

func TestInit(t *testing.T) {
	ctx := context.Background()

	t.Run("ExistingIdentity", func(t *testing.T) {
		convRepo := new(MockConversationRepo)
		svc := service.NewConversationService(convRepo, new(MockMessageRepo), new(MockBlobStore))

		existing := activeConversation(1)
		convRepo.On("GetByCustomerKey", ctx, "cust-1").Return(existing, nil)

		conv, created, err := svc.Init(ctx, "cust-1")
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, existing.ID, conv.ID)
		convRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("NewIdentity", func(t *testing.T) {
		convRepo := new(MockConversationRepo)
		svc := service.NewConversationService(convRepo, new(MockMessageRepo), new(MockBlobStore))

		convRepo.On("GetByCustomerKey", ctx, "cust-2").Return(nil, domain.ErrNotFound)
		convRepo.On("Create", ctx, mock.AnythingOfType("*domain.Conversation")).Return(nil)

		conv, created, err := svc.Init(ctx, "cust-2")
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, domain.ConversationPending, conv.Status)
		convRepo.AssertExpectations(t)
	})

	t.Run("MissingKey", func(t *testing.T) {
		svc := service.NewConversationService(new(MockConversationRepo), new(MockMessageRepo), new(MockBlobStore))
		_, _, err := svc.Init(ctx, "")
		assert.ErrorIs(t, err, domain.ErrPayloadInvalid)
	})
}

func TestChangeStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("Close", func(t *testing.T) {
		convRepo := new(MockConversationRepo)
		svc := service.NewConversationService(convRepo, new(MockMessageRepo), new(MockBlobStore))

		convRepo.On("GetByID", ctx, int64(1)).Return(activeConversation(1), nil)
		convRepo.On("SetStatus", ctx, int64(1), domain.ConversationClosed).Return(nil)

		require.NoError(t, svc.ChangeStatus(ctx, 1, domain.ConversationClosed))
		convRepo.AssertExpectations(t)
	})

	t.Run("PendingNotSettable", func(t *testing.T) {
		svc := service.NewConversationService(new(MockConversationRepo), new(MockMessageRepo), new(MockBlobStore))
		err := svc.ChangeStatus(ctx, 1, domain.ConversationPending)
		assert.ErrorIs(t, err, domain.ErrPayloadInvalid)
	})
}

func TestArchive(t *testing.T) {
	ctx := context.Background()

	t.Run("PurgesAttachments", func(t *testing.T) {
		convRepo := new(MockConversationRepo)
		msgRepo := new(MockMessageRepo)
		blobs := new(MockBlobStore)
		svc := service.NewConversationService(convRepo, msgRepo, blobs)

		convRepo.On("GetByID", ctx, int64(1)).Return(activeConversation(1), nil)
		msgRepo.On("ListAttachments", ctx, int64(1)).Return([]domain.Attachment{
			{URL: "/api/uploads/a.png", Name: "a.png"},
			{URL: "/api/uploads/b.pdf", Name: "b.pdf"},
		}, nil)
		blobs.On("Remove", ctx, "a.png").Return(nil)
		blobs.On("Remove", ctx, "b.pdf").Return(nil)
		msgRepo.On("ClearAttachments", ctx, int64(1)).Return(nil)
		convRepo.On("SetArchived", ctx, int64(1), true).Return(nil)

		require.NoError(t, svc.Archive(ctx, 1))
		blobs.AssertExpectations(t)
		msgRepo.AssertExpectations(t)
		convRepo.AssertExpectations(t)
	})

	t.Run("AlreadyArchived", func(t *testing.T) {
		convRepo := new(MockConversationRepo)
		svc := service.NewConversationService(convRepo, new(MockMessageRepo), new(MockBlobStore))

		conv := activeConversation(1)
		conv.Archived = true
		convRepo.On("GetByID", ctx, int64(1)).Return(conv, nil)

		err := svc.Archive(ctx, 1)
		assert.ErrorIs(t, err, domain.ErrConflict)
		convRepo.AssertNotCalled(t, "SetArchived", mock.Anything, mock.Anything, mock.Anything)
	})
}
