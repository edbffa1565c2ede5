package domain

import "time"

// Role identifies which side of a conversation authored a message or signal.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAgent    Role = "agent"
	RoleSystem   Role = "system"
	RoleBot      Role = "bot"
)

// Counterpart returns the role whose read activity advances the status of
// messages authored by r. System and bot messages are addressed to the
// customer side, so their counterpart is the customer.
func (r Role) Counterpart() Role {
	if r == RoleCustomer {
		return RoleAgent
	}
	return RoleCustomer
}

// Valid reports whether r is one of the known sender roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleAgent, RoleSystem, RoleBot:
		return true
	}
	return false
}

// Source records which client surface submitted a message.
type Source string

const (
	SourceWidget    Source = "widget"
	SourceDashboard Source = "dashboard"
	SourceChannel   Source = "channel"
)

// MessageStatus is the delivery state of a message. Transitions are
// monotonic: sent -> delivered -> read, never backwards.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

func (s MessageStatus) rank() int {
	switch s {
	case StatusDelivered:
		return 1
	case StatusRead:
		return 2
	}
	return 0
}

// AtLeast reports whether s is equal to or further along than other.
func (s MessageStatus) AtLeast(other MessageStatus) bool {
	return s.rank() >= other.rank()
}

// MaxStatus returns the further-along of the two statuses.
func MaxStatus(a, b MessageStatus) MessageStatus {
	if a.rank() >= b.rank() {
		return a
	}
	return b
}

// ConversationStatus is the workflow state of a conversation. The archived
// bit is orthogonal and tracked separately on the conversation.
type ConversationStatus string

const (
	ConversationActive  ConversationStatus = "active"
	ConversationPending ConversationStatus = "pending"
	ConversationClosed  ConversationStatus = "closed"
)

// Conversation is a single customer's support thread, shared between the
// widget and the dashboard.
type Conversation struct {
	ID                 int64              `db:"id" json:"id"`
	CustomerKey        string             `db:"customer_key" json:"-"`
	Status             ConversationStatus `db:"status" json:"status"`
	Archived           bool               `db:"archived" json:"archived"`
	LastMessageAt      *time.Time         `db:"last_message_at" json:"last_message_at,omitempty"`
	LastMessagePreview string             `db:"last_message_preview" json:"last_message_preview"`
	UnreadCustomer     int                `db:"unread_customer" json:"unread_customer"`
	UnreadAgent        int                `db:"unread_agent" json:"unread_agent"`
	LastReadAtCustomer *time.Time         `db:"last_read_at_customer" json:"last_read_at_customer,omitempty"`
	LastReadAtAgent    *time.Time         `db:"last_read_at_agent" json:"last_read_at_agent,omitempty"`
	CreatedAt          time.Time          `db:"created_at" json:"created_at"`
}

// LastReadAt returns the read watermark recorded for the given role.
func (c *Conversation) LastReadAt(role Role) *time.Time {
	if role == RoleCustomer {
		return c.LastReadAtCustomer
	}
	return c.LastReadAtAgent
}

// Unread returns the unread counter for the given role.
func (c *Conversation) Unread(role Role) int {
	if role == RoleCustomer {
		return c.UnreadCustomer
	}
	return c.UnreadAgent
}

// Attachment describes a stored file referenced by a message.
type Attachment struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	Mime string `json:"mime"`
	Kind string `json:"kind"` // "image" | "file"
}

// Message is a single chat message.
type Message struct {
	ID             int64         `db:"id"`
	ConversationID int64         `db:"conversation_id"`
	Content        string        `db:"content"` // encrypted at rest
	Role           Role          `db:"role"`
	Source         Source        `db:"source"`
	ClientToken    *string       `db:"client_token"`
	Status         MessageStatus `db:"status"`
	Attachment     *Attachment
	CreatedAt      time.Time `db:"created_at"`
}

// EffectiveStatus resolves the status visible to the sender: the maximum of
// the stored per-message status and what the conversation's read watermark
// for the counterpart role implies.
func (m *Message) EffectiveStatus(conv *Conversation) MessageStatus {
	status := m.Status
	if wm := conv.LastReadAt(m.Role.Counterpart()); wm != nil && !m.CreatedAt.After(*wm) {
		status = MaxStatus(status, StatusRead)
	}
	return status
}
