package service

import (
	"context"
	"errors"
	"fmt"
	"path"

	"supportchat/internal/domain"
	"supportchat/internal/metrics"
)

// ConversationService governs conversation lifecycle: bootstrap for widget
// identities, agent status changes, and the destructive archive action.
type ConversationService struct {
	conversations domain.ConversationRepository
	messages      domain.MessageRepository
	blobs         domain.BlobStore
}

func NewConversationService(
	conversations domain.ConversationRepository,
	messages domain.MessageRepository,
	blobs domain.BlobStore,
) *ConversationService {
	return &ConversationService{
		conversations: conversations,
		messages:      messages,
		blobs:         blobs,
	}
}

// Init finds or creates the conversation for a stable widget identity.
// Repeated calls with the same key return the same conversation, which is
// what makes widget bootstrap idempotent.
func (s *ConversationService) Init(ctx context.Context, customerKey string) (*domain.Conversation, bool, error) {
	if customerKey == "" {
		return nil, false, fmt.Errorf("%w: missing customer key", domain.ErrPayloadInvalid)
	}
	conv, err := s.conversations.GetByCustomerKey(ctx, customerKey)
	if err == nil {
		return conv, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}
	conv = &domain.Conversation{
		CustomerKey: customerKey,
		Status:      domain.ConversationPending,
	}
	if err := s.conversations.Create(ctx, conv); err != nil {
		return nil, false, err
	}
	return conv, true, nil
}

func (s *ConversationService) Get(ctx context.Context, id int64) (*domain.Conversation, error) {
	return s.conversations.GetByID(ctx, id)
}

// ByCustomerKey resolves the conversation owned by a widget identity.
func (s *ConversationService) ByCustomerKey(ctx context.Context, key string) (*domain.Conversation, error) {
	return s.conversations.GetByCustomerKey(ctx, key)
}

func (s *ConversationService) List(ctx context.Context) ([]*domain.Conversation, error) {
	return s.conversations.List(ctx)
}

// ChangeStatus moves a conversation between active and closed. Closed
// conversations still accept inbound customer messages; the composer
// suppression is a UI concern.
func (s *ConversationService) ChangeStatus(ctx context.Context, id int64, status domain.ConversationStatus) error {
	if status != domain.ConversationActive && status != domain.ConversationClosed {
		return fmt.Errorf("%w: status must be active or closed", domain.ErrPayloadInvalid)
	}
	if _, err := s.conversations.GetByID(ctx, id); err != nil {
		return err
	}
	return s.conversations.SetStatus(ctx, id, status)
}

// Archive is terminal and destructive: attachment blobs are purged and
// cannot be recovered. Callers must obtain explicit confirmation before
// invoking it. A later inbound customer message clears the archived bit and
// reactivates the conversation, but purged attachments stay gone.
func (s *ConversationService) Archive(ctx context.Context, id int64) error {
	conv, err := s.conversations.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if conv.Archived {
		return fmt.Errorf("%w: conversation already archived", domain.ErrConflict)
	}

	atts, err := s.messages.ListAttachments(ctx, id)
	if err != nil {
		return err
	}
	for _, att := range atts {
		if err := s.blobs.Remove(ctx, path.Base(att.URL)); err != nil {
			return fmt.Errorf("purge attachment %s: %w", att.Name, err)
		}
	}
	if err := s.messages.ClearAttachments(ctx, id); err != nil {
		return err
	}
	if err := s.conversations.SetArchived(ctx, id, true); err != nil {
		return err
	}
	metrics.ConversationsArchived.Inc()
	return nil
}
