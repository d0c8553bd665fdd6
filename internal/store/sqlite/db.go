package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
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

// Migrate runs an idempotent set of CREATE TABLE / CREATE INDEX statements.
func Migrate(db *sql.DB) error {
	stmts := []string{
		// Users
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username VARCHAR(50) UNIQUE NOT NULL,
			hashed_password VARCHAR(255) NOT NULL,
			avatar_key TEXT DEFAULT NULL,
			refresh_token TEXT DEFAULT NULL,
			created_at DATETIME NOT NULL
		);`,
		// Conversations: one per unordered pair of users
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			creator_id TEXT NOT NULL,
			recipient_id TEXT NOT NULL,
			last_message_sent_at DATETIME DEFAULT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (creator_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY (recipient_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		// Participants who hid a conversation from their sidebar
		`CREATE TABLE IF NOT EXISTS closed_conversations (
			conversation_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			PRIMARY KEY (conversation_id, user_id),
			FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		// Messages; replies cascade with their target
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			author_id TEXT NOT NULL,
			is_modified BOOLEAN NOT NULL DEFAULT 0,
			reply_to_id TEXT DEFAULT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE,
			FOREIGN KEY (author_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY (reply_to_id) REFERENCES messages(id) ON DELETE CASCADE
		);`,
		// Per-message unread markers
		`CREATE TABLE IF NOT EXISTS message_unread (
			message_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			PRIMARY KEY (message_id, user_id),
			FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		// Pending friend requests (directed)
		`CREATE TABLE IF NOT EXISTS friend_requests (
			sender_id TEXT NOT NULL,
			receiver_id TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			PRIMARY KEY (sender_id, receiver_id),
			FOREIGN KEY (sender_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY (receiver_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		// Established friendships, stored once per pair with user_a < user_b
		`CREATE TABLE IF NOT EXISTS friendships (
			user_a TEXT NOT NULL,
			user_b TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			PRIMARY KEY (user_a, user_b),
			CHECK (user_a < user_b),
			FOREIGN KEY (user_a) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY (user_b) REFERENCES users(id) ON DELETE CASCADE
		);`,
		// One conversation and at most one pending request per unordered
		// pair, whichever side inserts first.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_pair
			ON conversations (MIN(creator_id, recipient_id), MAX(creator_id, recipient_id));`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_friend_requests_pair
			ON friend_requests (MIN(sender_id, receiver_id), MAX(sender_id, receiver_id));`,
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

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY
// constraint failure.
func isUniqueViolation(err error) bool {
	var se *sqlitedrv.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
		se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
