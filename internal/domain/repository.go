package domain

import (
	"context"
	"time"
)

// ConversationRepository defines persistence operations for conversations.
type ConversationRepository interface {
	Create(ctx context.Context, c *Conversation) error
	GetByID(ctx context.Context, id int64) (*Conversation, error)
	GetByCustomerKey(ctx context.Context, key string) (*Conversation, error)
	List(ctx context.Context) ([]*Conversation, error)
	SetStatus(ctx context.Context, id int64, status ConversationStatus) error
	SetArchived(ctx context.Context, id int64, archived bool) error
	// Reactivate clears the archived bit and sets status active in one write.
	Reactivate(ctx context.Context, id int64) error
	// AdvanceReadWatermark moves the role's read watermark forward to at.
	// Applying a timestamp older than the stored watermark leaves the
	// watermark untouched; the role's unread counter is reset either way.
	AdvanceReadWatermark(ctx context.Context, id int64, role Role, at time.Time) error
	// TouchLastMessage records a new message's preview and timestamp and
	// increments the unread counter of the sender's counterpart.
	TouchLastMessage(ctx context.Context, id int64, preview string, at time.Time, from Role) error
}

// MessageRepository defines persistence operations for messages.
type MessageRepository interface {
	// Insert stores the message. When m carries a client token and a message
	// with the same (conversation, token) pair already exists, no row is
	// written and inserted is false. The check is atomic at the storage
	// layer (unique index), so two racing submissions resolve to one row.
	Insert(ctx context.Context, m *Message) (inserted bool, err error)
	GetByID(ctx context.Context, id int64) (*Message, error)
	GetByToken(ctx context.Context, conversationID int64, token string) (*Message, error)
	// ListAfter returns messages with id greater than afterID in id order.
	// afterID zero returns the full history.
	ListAfter(ctx context.Context, conversationID, afterID int64, limit int) ([]*Message, error)
	// UpgradeStatusUpTo raises the stored status of messages authored by
	// authorRole and created no later than upTo. Rows already at or past
	// the target status are left alone.
	UpgradeStatusUpTo(ctx context.Context, conversationID int64, authorRole Role, status MessageStatus, upTo time.Time) error
	ListAttachments(ctx context.Context, conversationID int64) ([]Attachment, error)
	ClearAttachments(ctx context.Context, conversationID int64) error
}

// BlobStore abstracts the external file storage used for attachments.
type BlobStore interface {
	Save(ctx context.Context, name string, data []byte) (url string, err error)
	Remove(ctx context.Context, name string) error
}
