package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Open opens a SQLite database with the given DSN.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return db, nil
}

// Migrate creates the schema. Timestamps are stored as unix milliseconds so
// watermark comparisons in SQL are exact. The unique partial index on
// (conversation_id, client_token) is what makes duplicate submission checks
// atomic: two racing inserts with the same token resolve to one row.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id INTEGER PRIMARY KEY,
			customer_key TEXT UNIQUE NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			archived INTEGER NOT NULL DEFAULT 0,
			last_message_at INTEGER,
			last_message_preview TEXT NOT NULL DEFAULT '',
			unread_customer INTEGER NOT NULL DEFAULT 0,
			unread_agent INTEGER NOT NULL DEFAULT 0,
			last_read_at_customer INTEGER,
			last_read_at_agent INTEGER,
			created_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY,
			conversation_id INTEGER NOT NULL,
			content TEXT NOT NULL,
			role TEXT NOT NULL,
			source TEXT NOT NULL,
			client_token TEXT,
			status TEXT NOT NULL DEFAULT 'sent',
			attachment_url TEXT,
			attachment_name TEXT,
			attachment_size INTEGER,
			attachment_mime TEXT,
			attachment_kind TEXT,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id)
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_conv_token
			ON messages(conversation_id, client_token)
			WHERE client_token IS NOT NULL;`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_last_message ON conversations(last_message_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, id);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conv_created ON messages(conversation_id, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	return nil
}
