package service

import (
	"context"
	"errors"
	"fmt"

	"dmserver/internal/domain"
)

type ConversationService struct {
	conversations domain.ConversationRepository
	messages      domain.MessageRepository
	users         domain.UserRepository
}

func NewConversationService(
	conversations domain.ConversationRepository,
	messages domain.MessageRepository,
	users domain.UserRepository,
) *ConversationService {
	return &ConversationService{
		conversations: conversations,
		messages:      messages,
		users:         users,
	}
}

// FindOrCreateResult reports whether the conversation for the pair was newly
// created or reopened for the requesting user.
type FindOrCreateResult struct {
	Conversation *domain.Conversation
	Created      bool
	Reopened     bool
}

// FindOrCreate returns the unique conversation for the unordered pair
// (userID, otherUserID), creating it on first contact. If the requester had
// closed an existing conversation, starting it again un-hides it for them.
func (s *ConversationService) FindOrCreate(ctx context.Context, userID, otherUserID string) (*FindOrCreateResult, error) {
	if userID == otherUserID {
		return nil, fmt.Errorf("%w: cannot start a conversation with yourself", domain.ErrInvalidInput)
	}
	other, err := s.users.GetByID(ctx, otherUserID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if other == nil {
		return nil, fmt.Errorf("%w: user", domain.ErrNotFound)
	}

	existing, err := s.conversations.FindByParticipants(ctx, userID, otherUserID)
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	if existing != nil {
		res := &FindOrCreateResult{Conversation: existing}
		if existing.IsClosedBy(userID) {
			if err := s.conversations.RemoveClosedBy(ctx, existing.ID, userID); err != nil {
				return nil, err
			}
			closed := existing.ClosedBy[:0]
			for _, id := range existing.ClosedBy {
				if id != userID {
					closed = append(closed, id)
				}
			}
			existing.ClosedBy = closed
			res.Reopened = true
		}
		return res, nil
	}

	conv := &domain.Conversation{
		CreatorID:   userID,
		RecipientID: otherUserID,
	}
	if err := s.conversations.Create(ctx, conv); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// The other participant created the pair's conversation between
			// our lookup and insert; return the row that won.
			winner, ferr := s.conversations.FindByParticipants(ctx, userID, otherUserID)
			if ferr != nil {
				return nil, fmt.Errorf("find conversation: %w", ferr)
			}
			if winner != nil {
				return &FindOrCreateResult{Conversation: winner}, nil
			}
		}
		return nil, err
	}
	return &FindOrCreateResult{Conversation: conv, Created: true}, nil
}

// Get returns the conversation if the caller participates in it.
func (s *ConversationService) Get(ctx context.Context, conversationID, userID string) (*domain.Conversation, error) {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil || !conv.HasParticipant(userID) {
		return nil, fmt.Errorf("%w: conversation", domain.ErrNotFound)
	}
	return conv, nil
}

// Close hides the conversation for the user. Closing an already closed
// conversation is a no-op returning the unchanged record.
func (s *ConversationService) Close(ctx context.Context, conversationID, userID string) (*domain.Conversation, error) {
	conv, err := s.Get(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if conv.IsClosedBy(userID) {
		return conv, nil
	}
	if err := s.conversations.AddClosedBy(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	conv.ClosedBy = append(conv.ClosedBy, userID)
	return conv, nil
}

// Delete removes the conversation and all its messages.
func (s *ConversationService) Delete(ctx context.Context, conversationID, userID string) (*domain.Conversation, error) {
	conv, err := s.Get(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.conversations.Delete(ctx, conversationID); err != nil {
		return nil, err
	}
	return conv, nil
}

// UserConversation is a sidebar entry: the conversation plus the per-viewer
// unread state and the preview message.
type UserConversation struct {
	Conversation         *domain.Conversation `json:"conversation"`
	LastMessage          *domain.Message      `json:"-"`
	UnreadMessagesCount  int                  `json:"unread_messages_count"`
	FirstUnreadMessageID *string              `json:"first_unread_message_id,omitempty"`
}

// ListForUser returns the viewer's open conversations in sidebar order
// together with unread counts and first-unread anchors.
func (s *ConversationService) ListForUser(ctx context.Context, userID string) ([]*UserConversation, error) {
	convs, err := s.conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	res := make([]*UserConversation, 0, len(convs))
	for _, conv := range convs {
		last, err := s.messages.LastMessage(ctx, conv.ID)
		if err != nil {
			return nil, err
		}
		count, err := s.messages.UnreadCount(ctx, conv.ID, userID)
		if err != nil {
			return nil, err
		}
		firstUnread, err := s.messages.FirstUnreadID(ctx, conv.ID, userID)
		if err != nil {
			return nil, err
		}
		res = append(res, &UserConversation{
			Conversation:         conv,
			LastMessage:          last,
			UnreadMessagesCount:  count,
			FirstUnreadMessageID: firstUnread,
		})
	}
	return res, nil
}
