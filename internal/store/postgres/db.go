package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open opens a PostgreSQL database using the pgx stdlib driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate runs idempotent DDL migrations on PostgreSQL.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id              TEXT PRIMARY KEY,
			username        VARCHAR(50) UNIQUE NOT NULL,
			hashed_password VARCHAR(255) NOT NULL,
			avatar_key      TEXT,
			refresh_token   TEXT,
			created_at      TIMESTAMPTZ NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id                   TEXT PRIMARY KEY,
			creator_id           TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			recipient_id         TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			last_message_sent_at TIMESTAMPTZ,
			created_at           TIMESTAMPTZ NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS closed_conversations (
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			user_id         TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			PRIMARY KEY (conversation_id, user_id)
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id              TEXT PRIMARY KEY,
			content         TEXT NOT NULL,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			author_id       TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			is_modified     BOOLEAN NOT NULL DEFAULT FALSE,
			reply_to_id     TEXT REFERENCES messages(id) ON DELETE CASCADE,
			created_at      TIMESTAMPTZ NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS message_unread (
			message_id TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
			user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			PRIMARY KEY (message_id, user_id)
		);`,
		`CREATE TABLE IF NOT EXISTS friend_requests (
			sender_id   TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			receiver_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			created_at  TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (sender_id, receiver_id)
		);`,
		`CREATE TABLE IF NOT EXISTS friendships (
			user_a     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			user_b     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			created_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (user_a, user_b),
			CHECK (user_a < user_b)
		);`,
		// One conversation and at most one pending request per unordered
		// pair, whichever side inserts first.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_pair
			ON conversations (LEAST(creator_id, recipient_id), GREATEST(creator_id, recipient_id));`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_friend_requests_pair
			ON friend_requests (LEAST(sender_id, receiver_id), GREATEST(sender_id, receiver_id));`,
		`CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_creator ON conversations(creator_id);`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_recipient ON conversations(recipient_id);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_reply_to ON messages(reply_to_id);`,
		`CREATE INDEX IF NOT EXISTS idx_message_unread_user ON message_unread(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_friend_requests_receiver ON friend_requests(receiver_id);`,
		`CREATE INDEX IF NOT EXISTS idx_friendships_user_b ON friendships(user_b);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// isUniqueViolation reports whether err is a unique_violation (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
