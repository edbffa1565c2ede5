package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"supportchat/internal/domain"
)

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

var _ domain.ConversationRepository = (*ConversationRepo)(nil)

const conversationColumns = `id, customer_key, status, archived, last_message_at, last_message_preview,
	unread_customer, unread_agent, last_read_at_customer, last_read_at_agent, created_at`

func (r *ConversationRepo) Create(ctx context.Context, c *domain.Conversation) error {
	if c.Status == "" {
		c.Status = domain.ConversationPending
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO conversations (customer_key, status, archived, last_message_preview, created_at)
		VALUES (?, ?, ?, '', ?)
	`, c.CustomerKey, c.Status, c.Archived, c.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	c.ID = id
	return nil
}

func (r *ConversationRepo) GetByID(ctx context.Context, id int64) (*domain.Conversation, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	return scanConversation(row)
}

func (r *ConversationRepo) GetByCustomerKey(ctx context.Context, key string) (*domain.Conversation, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE customer_key = ?`, key)
	return scanConversation(row)
}

func (r *ConversationRepo) List(ctx context.Context) ([]*domain.Conversation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		ORDER BY COALESCE(last_message_at, created_at) DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var res []*domain.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r *ConversationRepo) SetStatus(ctx context.Context, id int64, status domain.ConversationStatus) error {
	return r.execOnConversation(ctx, `UPDATE conversations SET status = ? WHERE id = ?`, status, id)
}

func (r *ConversationRepo) SetArchived(ctx context.Context, id int64, archived bool) error {
	return r.execOnConversation(ctx, `UPDATE conversations SET archived = ? WHERE id = ?`, archived, id)
}

func (r *ConversationRepo) Reactivate(ctx context.Context, id int64) error {
	return r.execOnConversation(ctx,
		`UPDATE conversations SET archived = 0, status = ? WHERE id = ?`,
		domain.ConversationActive, id)
}

// AdvanceReadWatermark is a monotonic idempotent upsert: the watermark only
// moves forward, so concurrent readers and retried calls are safe without a
// read-modify-write transaction. The unread counter is reset regardless.
func (r *ConversationRepo) AdvanceReadWatermark(ctx context.Context, id int64, role domain.Role, at time.Time) error {
	col, unread := "last_read_at_agent", "unread_agent"
	if role == domain.RoleCustomer {
		col, unread = "last_read_at_customer", "unread_customer"
	}
	ms := at.UTC().UnixMilli()
	query := fmt.Sprintf(`
		UPDATE conversations SET
			%s = CASE WHEN %s IS NULL OR %s < ?1 THEN ?1 ELSE %s END,
			%s = 0
		WHERE id = ?2
	`, col, col, col, col, unread)
	return r.execOnConversation(ctx, query, ms, id)
}

func (r *ConversationRepo) TouchLastMessage(ctx context.Context, id int64, preview string, at time.Time, from domain.Role) error {
	unread := "unread_customer"
	if from.Counterpart() == domain.RoleAgent {
		unread = "unread_agent"
	}
	query := fmt.Sprintf(`
		UPDATE conversations SET
			last_message_at = ?,
			last_message_preview = ?,
			%s = %s + 1
		WHERE id = ?
	`, unread, unread)
	return r.execOnConversation(ctx, query, at.UTC().UnixMilli(), preview, id)
}

func (r *ConversationRepo) execOnConversation(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*domain.Conversation, error) {
	c := &domain.Conversation{}
	var (
		lastMessageAt, lastReadCustomer, lastReadAgent sql.NullInt64
		createdAt                                      int64
	)
	err := row.Scan(
		&c.ID,
		&c.CustomerKey,
		&c.Status,
		&c.Archived,
		&lastMessageAt,
		&c.LastMessagePreview,
		&c.UnreadCustomer,
		&c.UnreadAgent,
		&lastReadCustomer,
		&lastReadAgent,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	c.CreatedAt = time.UnixMilli(createdAt).UTC()
	c.LastMessageAt = nullTime(lastMessageAt)
	c.LastReadAtCustomer = nullTime(lastReadCustomer)
	c.LastReadAtAgent = nullTime(lastReadAgent)
	return c, nil
}

func nullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}
