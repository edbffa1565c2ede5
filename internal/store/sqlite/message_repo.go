package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"supportchat/internal/domain"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

const messageColumns = `id, conversation_id, content, role, source, client_token, status,
	attachment_url, attachment_name, attachment_size, attachment_mime, attachment_kind, created_at`

// Insert stores the message. INSERT OR IGNORE together with the unique
// (conversation_id, client_token) index makes the duplicate check atomic:
// the losing writer of a token race sees zero rows affected.
func (r *MessageRepo) Insert(ctx context.Context, m *domain.Message) (bool, error) {
	if m.Status == "" {
		m.Status = domain.StatusSent
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	var att domain.Attachment
	if m.Attachment != nil {
		att = *m.Attachment
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO messages
			(conversation_id, content, role, source, client_token, status,
			 attachment_url, attachment_name, attachment_size, attachment_mime, attachment_kind, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		m.ConversationID,
		m.Content,
		m.Role,
		m.Source,
		m.ClientToken,
		m.Status,
		nullString(att.URL),
		nullString(att.Name),
		nullInt(att.Size),
		nullString(att.Mime),
		nullString(att.Kind),
		m.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("insert message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("last insert id: %w", err)
	}
	m.ID = id
	return true, nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	return scanMessage(row)
}

func (r *MessageRepo) GetByToken(ctx context.Context, conversationID int64, token string) (*domain.Message, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = ? AND client_token = ?
	`, conversationID, token)
	return scanMessage(row)
}

func (r *MessageRepo) ListAfter(ctx context.Context, conversationID, afterID int64, limit int) ([]*domain.Message, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = ? AND id > ?
		ORDER BY id ASC
		LIMIT ?
	`, conversationID, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var res []*domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// UpgradeStatusUpTo only touches rows whose stored status ranks below the
// target, so status never regresses and replays are no-ops.
func (r *MessageRepo) UpgradeStatusUpTo(ctx context.Context, conversationID int64, authorRole domain.Role, status domain.MessageStatus, upTo time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE messages SET status = ?1
		WHERE conversation_id = ?2 AND role = ?3 AND created_at <= ?4
		  AND (CASE status WHEN 'delivered' THEN 1 WHEN 'read' THEN 2 ELSE 0 END)
		    < (CASE ?1 WHEN 'delivered' THEN 1 WHEN 'read' THEN 2 ELSE 0 END)
	`, status, conversationID, authorRole, upTo.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("upgrade message status: %w", err)
	}
	return nil
}

func (r *MessageRepo) ListAttachments(ctx context.Context, conversationID int64) ([]domain.Attachment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT attachment_url, attachment_name, attachment_size, attachment_mime, attachment_kind
		FROM messages
		WHERE conversation_id = ? AND attachment_url IS NOT NULL
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	var res []domain.Attachment
	for rows.Next() {
		var (
			url, name, mime, kind sql.NullString
			size                  sql.NullInt64
		)
		if err := rows.Scan(&url, &name, &size, &mime, &kind); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		res = append(res, domain.Attachment{
			URL:  url.String,
			Name: name.String,
			Size: size.Int64,
			Mime: mime.String,
			Kind: kind.String,
		})
	}
	return res, rows.Err()
}

func (r *MessageRepo) ClearAttachments(ctx context.Context, conversationID int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE messages SET
			attachment_url = NULL,
			attachment_name = NULL,
			attachment_size = NULL,
			attachment_mime = NULL,
			attachment_kind = NULL
		WHERE conversation_id = ?
	`, conversationID)
	if err != nil {
		return fmt.Errorf("clear attachments: %w", err)
	}
	return nil
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	m := &domain.Message{}
	var (
		token, attURL, attName, attMime, attKind sql.NullString
		attSize                                  sql.NullInt64
		createdAt                                int64
	)
	err := row.Scan(
		&m.ID,
		&m.ConversationID,
		&m.Content,
		&m.Role,
		&m.Source,
		&token,
		&m.Status,
		&attURL,
		&attName,
		&attSize,
		&attMime,
		&attKind,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}
	if token.Valid {
		m.ClientToken = &token.String
	}
	if attURL.Valid {
		m.Attachment = &domain.Attachment{
			URL:  attURL.String,
			Name: attName.String,
			Size: attSize.Int64,
			Mime: attMime.String,
			Kind: attKind.String,
		}
	}
	m.CreatedAt = time.UnixMilli(createdAt).UTC()
	return m, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
