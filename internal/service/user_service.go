package service

import (
	"context"
	"fmt"
	"strings"

	"dmserver/internal/domain"
	"dmserver/internal/security"
)

// AvatarStorage stores uploaded avatar images and hands back an opaque key.
type AvatarStorage interface {
	Save(data []byte) (key string, err error)
	Remove(key string) error
}

type UserService struct {
	users   domain.UserRepository
	avatars AvatarStorage
	hash    *security.PasswordHasher
}

func NewUserService(users domain.UserRepository, avatars AvatarStorage, hash *security.PasswordHasher) *UserService {
	return &UserService{
		users:   users,
		avatars: avatars,
		hash:    hash,
	}
}

func (s *UserService) GetByID(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrNotFound
	}
	return user, nil
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	user, err := s.users.GetByUsername(ctx, strings.ToLower(strings.TrimSpace(username)))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrNotFound
	}
	return user, nil
}

func (s *UserService) Search(ctx context.Context, usernamePrefix string, limit int) ([]*domain.User, error) {
	return s.users.Search(ctx, strings.ToLower(strings.TrimSpace(usernamePrefix)), limit)
}

type UpdateUserInput struct {
	Username *string
	Password *string
	Avatar   []byte
}

// Update applies a partial update to the user's own profile. A new avatar
// replaces the previous stored image.
func (s *UserService) Update(ctx context.Context, userID string, in UpdateUserInput) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrNotFound
	}

	if in.Username != nil {
		username := strings.ToLower(strings.TrimSpace(*in.Username))
		if username == "" {
			return nil, fmt.Errorf("%w: username must not be empty", domain.ErrInvalidInput)
		}
		if username != user.Username {
			if existing, err := s.users.GetByUsername(ctx, username); err != nil {
				return nil, fmt.Errorf("check username: %w", err)
			} else if existing != nil {
				return nil, fmt.Errorf("%w: username already taken", domain.ErrConflict)
			}
			user.Username = username
		}
	}

	if in.Password != nil {
		if *in.Password == "" {
			return nil, fmt.Errorf("%w: password must not be empty", domain.ErrInvalidInput)
		}
		hashed, err := s.hash.Hash(*in.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		user.HashedPassword = hashed
	}

	if len(in.Avatar) > 0 {
		key, err := s.avatars.Save(in.Avatar)
		if err != nil {
			return nil, fmt.Errorf("store avatar: %w", err)
		}
		if user.AvatarKey != nil {
			// Old image removal is best-effort; the new key is already saved.
			_ = s.avatars.Remove(*user.AvatarKey)
		}
		user.AvatarKey = &key
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
