package service

import (
	"context"
	"errors"
	"fmt"

	"dmserver/internal/domain"
)

// FriendService owns the friend request state machine. Per ordered pair
// (A, B) the states are none -> pending -> friends, with decline/cancel and
// remove transitioning back to none.
type FriendService struct {
	friends domain.FriendRepository
	users   domain.UserRepository
}

func NewFriendService(friends domain.FriendRepository, users domain.UserRepository) *FriendService {
	return &FriendService{
		friends: friends,
		users:   users,
	}
}

// Send creates a pending request towards the user with the given username
// and returns the receiver. Fails on self-requests, on a pending request in
// either direction, and on an existing friendship.
func (s *FriendService) Send(ctx context.Context, senderID, receiverUsername string) (*domain.User, error) {
	receiver, err := s.users.GetByUsername(ctx, receiverUsername)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if receiver == nil {
		return nil, fmt.Errorf("%w: user", domain.ErrNotFound)
	}
	if receiver.ID == senderID {
		return nil, fmt.Errorf("%w: cannot send a friend request to yourself", domain.ErrConflict)
	}

	pending, err := s.friends.HasPendingBetween(ctx, senderID, receiver.ID)
	if err != nil {
		return nil, fmt.Errorf("check pending: %w", err)
	}
	if pending {
		return nil, fmt.Errorf("%w: a friend request between you is already pending", domain.ErrConflict)
	}

	already, err := s.friends.AreFriends(ctx, senderID, receiver.ID)
	if err != nil {
		return nil, fmt.Errorf("check friendship: %w", err)
	}
	if already {
		return nil, fmt.Errorf("%w: you are already friends with this user", domain.ErrConflict)
	}

	if err := s.friends.CreateRequest(ctx, &domain.FriendRequest{
		SenderID:   senderID,
		ReceiverID: receiver.ID,
	}); err != nil {
		return nil, err
	}
	return receiver, nil
}

// Accept establishes the symmetric friendship for a request sent to the
// caller by senderID.
func (s *FriendService) Accept(ctx context.Context, callerID, senderID string) error {
	if err := s.friends.AcceptRequest(ctx, senderID, callerID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: friend request", domain.ErrNotFound)
		}
		return err
	}
	return nil
}

// Decline clears a request sent to the caller without creating a friendship.
func (s *FriendService) Decline(ctx context.Context, callerID, senderID string) error {
	if err := s.friends.DeleteRequest(ctx, senderID, callerID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: friend request", domain.ErrNotFound)
		}
		return err
	}
	return nil
}

// Cancel clears a request the caller previously sent.
func (s *FriendService) Cancel(ctx context.Context, callerID, receiverID string) error {
	if err := s.friends.DeleteRequest(ctx, callerID, receiverID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: friend request", domain.ErrNotFound)
		}
		return err
	}
	return nil
}

// Remove dissolves an established friendship; either side may call it. A
// later Send between the pair is legal again.
func (s *FriendService) Remove(ctx context.Context, callerID, otherID string) error {
	if err := s.friends.DeleteFriendship(ctx, callerID, otherID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: friendship", domain.ErrNotFound)
		}
		return err
	}
	return nil
}

func (s *FriendService) ListFriends(ctx context.Context, userID string) ([]*domain.User, error) {
	return s.friends.ListFriends(ctx, userID)
}

func (s *FriendService) ListSentRequests(ctx context.Context, userID string) ([]*domain.User, error) {
	return s.friends.ListSentRequests(ctx, userID)
}

func (s *FriendService) ListReceivedRequests(ctx context.Context, userID string) ([]*domain.User, error) {
	return s.friends.ListReceivedRequests(ctx, userID)
}
