package service

import (
	"context"
	"fmt"
	"time"

	"supportchat/internal/domain"
	"supportchat/internal/metrics"
)

// StatusService is the delivery status tracker. A message authored by role R
// only moves forward based on actions taken by the other role; marking read
// implicitly satisfies delivered. All writes are monotonic, so replays and
// out-of-order ticks are no-ops.
type StatusService struct {
	conversations domain.ConversationRepository
	messages      domain.MessageRepository
	notifier      Notifier
}

func NewStatusService(
	conversations domain.ConversationRepository,
	messages domain.MessageRepository,
	notifier Notifier,
) *StatusService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &StatusService{
		conversations: conversations,
		messages:      messages,
		notifier:      notifier,
	}
}

// authoredFor lists the sender roles whose messages are addressed to the
// given reader.
func authoredFor(reader domain.Role) []domain.Role {
	if reader == domain.RoleAgent {
		return []domain.Role{domain.RoleCustomer}
	}
	return []domain.Role{domain.RoleAgent, domain.RoleSystem, domain.RoleBot}
}

// MarkReadUpTo advances the reader's watermark to at, resets the reader's
// unread counter, and raises counterpart messages created no later than at
// to read. Calling with an older timestamp after a newer one never
// regresses anything.
func (s *StatusService) MarkReadUpTo(ctx context.Context, conversationID int64, reader domain.Role, at time.Time) error {
	if _, err := s.conversations.GetByID(ctx, conversationID); err != nil {
		return err
	}
	if err := s.conversations.AdvanceReadWatermark(ctx, conversationID, reader, at); err != nil {
		return fmt.Errorf("advance watermark: %w", err)
	}
	for _, author := range authoredFor(reader) {
		if err := s.messages.UpgradeStatusUpTo(ctx, conversationID, author, domain.StatusRead, at); err != nil {
			return fmt.Errorf("mark read: %w", err)
		}
	}
	metrics.ReadMarks.Inc()
	s.notifier.ConversationUpdated(conversationID)
	return nil
}

// MarkDeliveredUpTo raises counterpart messages created no later than at
// from sent to delivered. Called when the recipient's poller has fetched
// them.
func (s *StatusService) MarkDeliveredUpTo(ctx context.Context, conversationID int64, recipient domain.Role, at time.Time) error {
	for _, author := range authoredFor(recipient) {
		if err := s.messages.UpgradeStatusUpTo(ctx, conversationID, author, domain.StatusDelivered, at); err != nil {
			return fmt.Errorf("mark delivered: %w", err)
		}
	}
	return nil
}

// CurrentStatus returns the status of a message as visible to its sender.
func (s *StatusService) CurrentStatus(ctx context.Context, messageID int64) (domain.MessageStatus, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return "", err
	}
	conv, err := s.conversations.GetByID(ctx, msg.ConversationID)
	if err != nil {
		return "", err
	}
	return msg.EffectiveStatus(conv), nil
}
