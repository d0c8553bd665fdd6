package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"dmserver/internal/domain"
)

type FriendRepo struct {
	db *sql.DB
}

func NewFriendRepo(db *sql.DB) *FriendRepo {
	return &FriendRepo{db: db}
}

var _ domain.FriendRepository = (*FriendRepo)(nil)

func (r *FriendRepo) CreateRequest(ctx context.Context, fr *domain.FriendRequest) error {
	if fr.CreatedAt.IsZero() {
		fr.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO friend_requests (sender_id, receiver_id, created_at)
		VALUES ($1, $2, $3)
	`, fr.SenderID, fr.ReceiverID, fr.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: request between this pair already pending", domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert friend request: %w", err)
	}
	return nil
}

func (r *FriendRepo) GetRequest(ctx context.Context, senderID, receiverID string) (*domain.FriendRequest, error) {
	fr := &domain.FriendRequest{}
	err := r.db.QueryRowContext(ctx, `
		SELECT sender_id, receiver_id, created_at
		FROM friend_requests
		WHERE sender_id = $1 AND receiver_id = $2
	`, senderID, receiverID).Scan(&fr.SenderID, &fr.ReceiverID, &fr.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get friend request: %w", err)
	}
	return fr, nil
}

func (r *FriendRepo) HasPendingBetween(ctx context.Context, userA, userB string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM friend_requests
		WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
	`, userA, userB).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check pending request: %w", err)
	}
	return count > 0, nil
}

func (r *FriendRepo) DeleteRequest(ctx context.Context, senderID, receiverID string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM friend_requests WHERE sender_id = $1 AND receiver_id = $2
	`, senderID, receiverID)
	if err != nil {
		return fmt.Errorf("delete friend request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *FriendRepo) AcceptRequest(ctx context.Context, senderID, receiverID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		DELETE FROM friend_requests WHERE sender_id = $1 AND receiver_id = $2
	`, senderID, receiverID)
	if err != nil {
		return fmt.Errorf("delete friend request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}

	a, b := domain.NormalizePair(senderID, receiverID)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO friendships (user_a, user_b, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, a, b, time.Now().UTC()); err != nil {
		return fmt.Errorf("insert friendship: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *FriendRepo) AreFriends(ctx context.Context, userA, userB string) (bool, error) {
	a, b := domain.NormalizePair(userA, userB)
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM friendships WHERE user_a = $1 AND user_b = $2
	`, a, b).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check friendship: %w", err)
	}
	return count > 0, nil
}

func (r *FriendRepo) DeleteFriendship(ctx context.Context, userA, userB string) error {
	a, b := domain.NormalizePair(userA, userB)
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM friendships WHERE user_a = $1 AND user_b = $2
	`, a, b)
	if err != nil {
		return fmt.Errorf("delete friendship: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *FriendRepo) ListFriends(ctx context.Context, userID string) ([]*domain.User, error) {
	return r.listUsers(ctx, `
		SELECT u.id, u.username, u.hashed_password, u.avatar_key, u.refresh_token, u.created_at
		FROM friendships f
		JOIN users u ON u.id = CASE WHEN f.user_a = $1 THEN f.user_b ELSE f.user_a END
		WHERE f.user_a = $1 OR f.user_b = $1
		ORDER BY u.username ASC
	`, userID)
}

func (r *FriendRepo) ListSentRequests(ctx context.Context, userID string) ([]*domain.User, error) {
	return r.listUsers(ctx, `
		SELECT u.id, u.username, u.hashed_password, u.avatar_key, u.refresh_token, u.created_at
		FROM friend_requests fr
		JOIN users u ON u.id = fr.receiver_id
		WHERE fr.sender_id = $1
		ORDER BY u.username ASC
	`, userID)
}

func (r *FriendRepo) ListReceivedRequests(ctx context.Context, userID string) ([]*domain.User, error) {
	return r.listUsers(ctx, `
		SELECT u.id, u.username, u.hashed_password, u.avatar_key, u.refresh_token, u.created_at
		FROM friend_requests fr
		JOIN users u ON u.id = fr.sender_id
		WHERE fr.receiver_id = $1
		ORDER BY u.username ASC
	`, userID)
}

func (r *FriendRepo) listUsers(ctx context.Context, query string, args ...any) ([]*domain.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var res []*domain.User
	for rows.Next() {
		u := &domain.User{}
		if err := rows.Scan(
			&u.ID,
			&u.Username,
			&u.HashedPassword,
			&u.AvatarKey,
			&u.RefreshToken,
			&u.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		res = append(res, u)
	}
	return res, rows.Err()
}
