package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dmserver/internal/domain"
)

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

var _ domain.ConversationRepository = (*ConversationRepo)(nil)

const conversationColumns = `id, creator_id, recipient_id, last_message_sent_at, created_at`

func (r *ConversationRepo) Create(ctx context.Context, c *domain.Conversation) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO conversations (id, creator_id, recipient_id, last_message_sent_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, c.ID, c.CreatorID, c.RecipientID, c.LastMessageSentAt, c.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: conversation for this pair already exists", domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

func (r *ConversationRepo) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	return r.getOne(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
}

func (r *ConversationRepo) FindByParticipants(ctx context.Context, userA, userB string) (*domain.Conversation, error) {
	return r.getOne(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE (creator_id = $1 AND recipient_id = $2) OR (creator_id = $2 AND recipient_id = $1)
		LIMIT 1
	`, userA, userB)
}

func (r *ConversationRepo) getOne(ctx context.Context, query string, args ...any) (*domain.Conversation, error) {
	c := &domain.Conversation{}
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&c.ID,
		&c.CreatorID,
		&c.RecipientID,
		&c.LastMessageSentAt,
		&c.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if err := r.loadClosedBy(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *ConversationRepo) loadClosedBy(ctx context.Context, c *domain.Conversation) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id FROM closed_conversations WHERE conversation_id = $1
	`, c.ID)
	if err != nil {
		return fmt.Errorf("load closed_by: %w", err)
	}
	defer rows.Close()

	c.ClosedBy = nil
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return fmt.Errorf("scan closed_by: %w", err)
		}
		c.ClosedBy = append(c.ClosedBy, uid)
	}
	return rows.Err()
}

func (r *ConversationRepo) ListForUser(ctx context.Context, userID string) ([]*domain.Conversation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations c
		WHERE (c.creator_id = $1 OR c.recipient_id = $1)
		AND NOT EXISTS (
			SELECT 1 FROM closed_conversations cc
			WHERE cc.conversation_id = c.id AND cc.user_id = $1
		)
		ORDER BY COALESCE(c.last_message_sent_at, c.created_at) DESC, c.created_at DESC, c.id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var res []*domain.Conversation
	for rows.Next() {
		c := &domain.Conversation{}
		if err := rows.Scan(
			&c.ID,
			&c.CreatorID,
			&c.RecipientID,
			&c.LastMessageSentAt,
			&c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		res = append(res, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, c := range res {
		if err := r.loadClosedBy(ctx, c); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (r *ConversationRepo) AddClosedBy(ctx context.Context, conversationID, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO closed_conversations (conversation_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, conversationID, userID)
	if err != nil {
		return fmt.Errorf("add closed_by: %w", err)
	}
	return nil
}

func (r *ConversationRepo) RemoveClosedBy(ctx context.Context, conversationID string, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM closed_conversations
		WHERE conversation_id = $1 AND user_id = ANY($2)
	`, conversationID, userIDs)
	if err != nil {
		return fmt.Errorf("remove closed_by: %w", err)
	}
	return nil
}

func (r *ConversationRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
