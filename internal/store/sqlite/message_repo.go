package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dmserver/internal/domain"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

const messageColumns = `id, content, conversation_id, author_id, is_modified, reply_to_id, created_at`

// Create inserts the message, its unread markers, reopens the conversation
// for the unread users and bumps last_message_sent_at in one transaction, so
// an incoming message and its sidebar effects are atomic.
func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, content, conversation_id, author_id, is_modified, reply_to_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.Content, m.ConversationID, m.AuthorID, m.IsModified, m.ReplyToID, m.CreatedAt); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	for _, uid := range m.UnreadBy {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO message_unread (message_id, user_id) VALUES (?, ?)
		`, m.ID, uid); err != nil {
			return fmt.Errorf("insert unread marker: %w", err)
		}
		// Reopen on incoming message: the recipient's closed flag is cleared,
		// never the author's.
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM closed_conversations WHERE conversation_id = ? AND user_id = ?
		`, m.ConversationID, uid); err != nil {
			return fmt.Errorf("reopen conversation: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations SET last_message_sent_at = ? WHERE id = ?
	`, m.CreatedAt, m.ConversationID); err != nil {
		return fmt.Errorf("bump last message time: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	m := &domain.Message{}
	err := r.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+` FROM messages WHERE id = ?
	`, id).Scan(
		&m.ID,
		&m.Content,
		&m.ConversationID,
		&m.AuthorID,
		&m.IsModified,
		&m.ReplyToID,
		&m.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	if err := r.loadUnreadBy(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MessageRepo) loadUnreadBy(ctx context.Context, m *domain.Message) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id FROM message_unread WHERE message_id = ?
	`, m.ID)
	if err != nil {
		return fmt.Errorf("load unread_by: %w", err)
	}
	defer rows.Close()

	m.UnreadBy = nil
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return fmt.Errorf("scan unread_by: %w", err)
		}
		m.UnreadBy = append(m.UnreadBy, uid)
	}
	return rows.Err()
}

func (r *MessageRepo) ListForConversation(ctx context.Context, conversationID string, before *time.Time, limit int) ([]*domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = ?
	`
	args := []any{conversationID}
	if before != nil {
		query += ` AND created_at < ?`
		args = append(args, *before)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var res []*domain.Message
	for rows.Next() {
		m := &domain.Message{}
		if err := rows.Scan(
			&m.ID,
			&m.Content,
			&m.ConversationID,
			&m.AuthorID,
			&m.IsModified,
			&m.ReplyToID,
			&m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		res = append(res, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, m := range res {
		if err := r.loadUnreadBy(ctx, m); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (r *MessageRepo) LastMessage(ctx context.Context, conversationID string) (*domain.Message, error) {
	msgs, err := r.ListForConversation(ctx, conversationID, nil, 1)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	return msgs[0], nil
}

func (r *MessageRepo) Update(ctx context.Context, m *domain.Message) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE messages SET content = ?, is_modified = ? WHERE id = ?
	`, m.Content, m.IsModified, m.ID)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	return nil
}

func (r *MessageRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkRead removes the user's unread markers for the conversation and
// returns the ids of the messages that transitioned, oldest first. The
// second identical call returns nothing.
func (r *MessageRepo) MarkRead(ctx context.Context, conversationID, userID string) ([]string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT mu.message_id
		FROM message_unread mu
		JOIN messages m ON m.id = mu.message_id
		WHERE m.conversation_id = ? AND mu.user_id = ? AND m.author_id <> ?
		ORDER BY m.created_at ASC, m.id ASC
	`, conversationID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("select unread: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan unread: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM message_unread
		WHERE user_id = ? AND message_id IN (
			SELECT id FROM messages WHERE conversation_id = ?
		)
	`, userID, conversationID); err != nil {
		return nil, fmt.Errorf("clear unread: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return ids, nil
}

func (r *MessageRepo) UnreadCount(ctx context.Context, conversationID, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM message_unread mu
		JOIN messages m ON m.id = mu.message_id
		WHERE m.conversation_id = ? AND mu.user_id = ?
	`, conversationID, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

func (r *MessageRepo) FirstUnreadID(ctx context.Context, conversationID, userID string) (*string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `
		SELECT mu.message_id
		FROM message_unread mu
		JOIN messages m ON m.id = mu.message_id
		WHERE m.conversation_id = ? AND mu.user_id = ?
		ORDER BY m.created_at ASC, m.id ASC
		LIMIT 1
	`, conversationID, userID).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("first unread: %w", err)
	}
	return &id, nil
}
