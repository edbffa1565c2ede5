package service

import (
	"context"
	"fmt"
	"time"

	"supportchat/internal/domain"
	"supportchat/internal/metrics"
	"supportchat/internal/security"
)

// Notifier receives hints that a conversation changed so connected
// dashboards can poll early. Delivery is best-effort; polling remains the
// source of truth.
type Notifier interface {
	ConversationUpdated(conversationID int64)
}

// NopNotifier discards all hints.
type NopNotifier struct{}

func (NopNotifier) ConversationUpdated(int64) {}

const previewRunes = 80

type MessageService struct {
	conversations domain.ConversationRepository
	messages      domain.MessageRepository
	encryptor     *security.Encryptor
	notifier      Notifier

	MaxContentRunes int
}

func NewMessageService(
	conversations domain.ConversationRepository,
	messages domain.MessageRepository,
	encryptor *security.Encryptor,
	notifier Notifier,
	maxContentRunes int,
) *MessageService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &MessageService{
		conversations:   conversations,
		messages:        messages,
		encryptor:       encryptor,
		notifier:        notifier,
		MaxContentRunes: maxContentRunes,
	}
}

type SubmitInput struct {
	ConversationID int64
	Content        string
	Role           domain.Role
	Source         domain.Source
	ClientToken    string
	Attachment     *domain.Attachment
}

type SubmitResult struct {
	Message   *MessageView `json:"message"`
	Duplicate bool         `json:"duplicate"`
}

// Submit appends a message to the conversation. When the input carries a
// client token that was already stored for this conversation, the original
// message is returned unchanged and no side effects re-trigger; a duplicate
// is never an error. A customer submission to an archived conversation
// un-archives it first; agent and system submissions to an archived
// conversation are rejected with a conflict.
func (s *MessageService) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	if !in.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown sender role %q", domain.ErrPayloadInvalid, in.Role)
	}
	if in.Content == "" && in.Attachment == nil {
		return nil, fmt.Errorf("%w: message content cannot be empty", domain.ErrPayloadInvalid)
	}
	if s.MaxContentRunes > 0 && len([]rune(in.Content)) > s.MaxContentRunes {
		return nil, fmt.Errorf("%w: message content exceeds %d characters", domain.ErrPayloadInvalid, s.MaxContentRunes)
	}

	conv, err := s.conversations.GetByID(ctx, in.ConversationID)
	if err != nil {
		return nil, err
	}

	// The duplicate check runs before any side effect: a retry must observe
	// the original outcome even if the conversation was archived in between,
	// and must not re-trigger the un-archive below.
	if in.ClientToken != "" {
		if existing, err := s.messages.GetByToken(ctx, conv.ID, in.ClientToken); err == nil {
			metrics.DuplicateSubmissions.Inc()
			return &SubmitResult{Message: s.toView(existing, conv), Duplicate: true}, nil
		}
	}

	if conv.Archived {
		if in.Role != domain.RoleCustomer {
			return nil, fmt.Errorf("%w: conversation is archived", domain.ErrConflict)
		}
		if err := s.conversations.Reactivate(ctx, conv.ID); err != nil {
			return nil, fmt.Errorf("reactivate conversation: %w", err)
		}
		conv.Archived = false
		conv.Status = domain.ConversationActive
	}

	encrypted, err := s.encryptor.Encrypt(in.Content)
	if err != nil {
		return nil, fmt.Errorf("encrypt content: %w", err)
	}

	msg := &domain.Message{
		ConversationID: conv.ID,
		Content:        encrypted,
		Role:           in.Role,
		Source:         in.Source,
		Status:         domain.StatusSent,
		Attachment:     in.Attachment,
		CreatedAt:      time.Now().UTC(),
	}
	if in.ClientToken != "" {
		token := in.ClientToken
		msg.ClientToken = &token
	}

	inserted, err := s.messages.Insert(ctx, msg)
	if err != nil {
		return nil, err
	}
	if !inserted {
		// Lost a token race: the other submission's row is canonical.
		existing, err := s.messages.GetByToken(ctx, conv.ID, in.ClientToken)
		if err != nil {
			return nil, err
		}
		metrics.DuplicateSubmissions.Inc()
		return &SubmitResult{Message: s.toView(existing, conv), Duplicate: true}, nil
	}

	if err := s.conversations.TouchLastMessage(ctx, conv.ID, preview(in.Content, msg.Attachment), msg.CreatedAt, msg.Role); err != nil {
		return nil, fmt.Errorf("touch conversation: %w", err)
	}

	metrics.MessagesStored.Inc()
	s.notifier.ConversationUpdated(conv.ID)
	return &SubmitResult{Message: s.toView(msg, conv)}, nil
}

// FetchAfter returns the conversation's messages with id greater than
// afterID, oldest first, with the status each message has from the sender's
// point of view. Archived conversations are never a target of poll-based
// delivery.
func (s *MessageService) FetchAfter(ctx context.Context, conversationID, afterID int64) ([]*MessageView, error) {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Archived {
		return nil, fmt.Errorf("%w: conversation is archived", domain.ErrNotFound)
	}
	msgs, err := s.messages.ListAfter(ctx, conversationID, afterID, 0)
	if err != nil {
		return nil, err
	}
	views := make([]*MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, s.toView(m, conv))
	}
	return views, nil
}

func preview(content string, att *domain.Attachment) string {
	if content == "" && att != nil {
		return att.Name
	}
	runes := []rune(content)
	if len(runes) > previewRunes {
		return string(runes[:previewRunes])
	}
	return content
}

// MessageView mirrors the API response shared by both clients.
type MessageView struct {
	ID             int64                `json:"id"`
	ConversationID int64                `json:"conversation_id"`
	Content        string               `json:"content"`
	Role           domain.Role          `json:"role"`
	Source         domain.Source        `json:"source"`
	ClientToken    string               `json:"client_token,omitempty"`
	Status         domain.MessageStatus `json:"status"`
	Attachment     *domain.Attachment   `json:"attachment,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}

func (s *MessageService) toView(m *domain.Message, conv *domain.Conversation) *MessageView {
	content := m.Content
	if dec, err := s.encryptor.Decrypt(m.Content); err == nil {
		content = dec
	}
	v := &MessageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Content:        content,
		Role:           m.Role,
		Source:         m.Source,
		Status:         m.EffectiveStatus(conv),
		Attachment:     m.Attachment,
		CreatedAt:      m.CreatedAt,
	}
	if m.ClientToken != nil {
		v.ClientToken = *m.ClientToken
	}
	return v
}
