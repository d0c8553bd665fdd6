package service

import (
	"context"
	"fmt"
	"time"

	"dmserver/internal/domain"
	"dmserver/internal/security"
)

const maxMessageRunes = 5000

type MessageService struct {
	conversations domain.ConversationRepository
	messages      domain.MessageRepository
	users         domain.UserRepository
	encryptor     *security.Encryptor

	PageSize int
}

func NewMessageService(
	conversations domain.ConversationRepository,
	messages domain.MessageRepository,
	users domain.UserRepository,
	encryptor *security.Encryptor,
	pageSize int,
) *MessageService {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &MessageService{
		conversations: conversations,
		messages:      messages,
		users:         users,
		encryptor:     encryptor,
		PageSize:      pageSize,
	}
}

type MessageCreateInput struct {
	ConversationID string
	Content        string
	ReplyToID      *string
}

// Create validates the author's membership, stores the message unread by the
// other participant and reopens the conversation for them. The returned
// conversation reflects the state at commit time and drives the fan-out.
func (s *MessageService) Create(ctx context.Context, in MessageCreateInput, authorID string) (*domain.Message, *domain.Conversation, error) {
	if err := validateContent(in.Content); err != nil {
		return nil, nil, err
	}

	conv, err := s.conversations.GetByID(ctx, in.ConversationID)
	if err != nil {
		return nil, nil, fmt.Errorf("get conversation: %w", err)
	}
	if conv == nil || !conv.HasParticipant(authorID) {
		return nil, nil, fmt.Errorf("%w: conversation", domain.ErrNotFound)
	}

	if in.ReplyToID != nil {
		target, err := s.messages.GetByID(ctx, *in.ReplyToID)
		if err != nil {
			return nil, nil, fmt.Errorf("get reply target: %w", err)
		}
		if target == nil || target.ConversationID != conv.ID {
			return nil, nil, fmt.Errorf("%w: reply target", domain.ErrNotFound)
		}
	}

	encrypted, err := s.encryptor.Encrypt(in.Content)
	if err != nil {
		return nil, nil, fmt.Errorf("encrypt content: %w", err)
	}

	other := conv.OtherParticipant(authorID)
	msg := &domain.Message{
		Content:        encrypted,
		ConversationID: conv.ID,
		AuthorID:       authorID,
		ReplyToID:      in.ReplyToID,
		UnreadBy:       []string{other},
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, nil, err
	}

	// Mirror the commit in the in-memory record: the incoming message
	// reopened the conversation for the recipient and bumped activity.
	conv.LastMessageSentAt = &msg.CreatedAt
	closed := conv.ClosedBy[:0]
	for _, id := range conv.ClosedBy {
		if id != other {
			closed = append(closed, id)
		}
	}
	conv.ClosedBy = closed

	return msg, conv, nil
}

// Update edits a message's content. Only the author may edit; the first edit
// permanently marks the message as modified. Unread markers are untouched.
func (s *MessageService) Update(ctx context.Context, messageID, authorID, content string) (*domain.Message, error) {
	if err := validateContent(content); err != nil {
		return nil, err
	}

	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	if msg == nil {
		return nil, fmt.Errorf("%w: message", domain.ErrNotFound)
	}
	if msg.AuthorID != authorID {
		return nil, domain.ErrForbidden
	}

	encrypted, err := s.encryptor.Encrypt(content)
	if err != nil {
		return nil, fmt.Errorf("encrypt content: %w", err)
	}
	msg.Content = encrypted
	msg.IsModified = true
	if err := s.messages.Update(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// DeleteResult carries what the sidebar needs after a deletion: the
// conversation's new last message, nil when the conversation became empty.
type DeleteResult struct {
	MessageID      string
	ConversationID string
	NewLastMessage *domain.Message
}

// Delete removes a message authored by the caller. Replies to it are
// cascaded away with it.
func (s *MessageService) Delete(ctx context.Context, messageID, authorID string) (*DeleteResult, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	if msg == nil {
		return nil, fmt.Errorf("%w: message", domain.ErrNotFound)
	}
	if msg.AuthorID != authorID {
		return nil, domain.ErrForbidden
	}

	if err := s.messages.Delete(ctx, messageID); err != nil {
		return nil, err
	}
	last, err := s.messages.LastMessage(ctx, msg.ConversationID)
	if err != nil {
		return nil, err
	}
	return &DeleteResult{
		MessageID:      messageID,
		ConversationID: msg.ConversationID,
		NewLastMessage: last,
	}, nil
}

// MarkRead clears the caller's unread markers in the conversation and
// returns the ids of the messages that were unread. Idempotent.
func (s *MessageService) MarkRead(ctx context.Context, conversationID, userID string) ([]string, error) {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if conv == nil || !conv.HasParticipant(userID) {
		return nil, fmt.Errorf("%w: conversation", domain.ErrNotFound)
	}
	return s.messages.MarkRead(ctx, conversationID, userID)
}

// List returns messages in chronological order, paginated backwards from the
// optional cursor.
func (s *MessageService) List(ctx context.Context, conversationID, userID string, before *time.Time, limit int) ([]*domain.Message, error) {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if conv == nil || !conv.HasParticipant(userID) {
		return nil, fmt.Errorf("%w: conversation", domain.ErrNotFound)
	}

	if limit <= 0 || limit > s.PageSize {
		limit = s.PageSize
	}
	msgs, err := s.messages.ListForConversation(ctx, conversationID, before, limit)
	if err != nil {
		return nil, err
	}

	// Reverse to chronological order (repo returns DESC).
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// MessageResponse is the decrypted message DTO exposed over the API and the
// gateway.
type MessageResponse struct {
	ID             string    `json:"id"`
	Content        string    `json:"content"`
	ConversationID string    `json:"conversation_id"`
	AuthorID       string    `json:"author_id"`
	AuthorUsername string    `json:"author_username"`
	IsModified     bool      `json:"is_modified"`
	ReplyToID      *string   `json:"reply_to_id,omitempty"`
	UnreadBy       []string  `json:"unread_by"`
	CreatedAt      time.Time `json:"created_at"`
}

// ToResponse converts a domain message into a decrypted response DTO.
func (s *MessageService) ToResponse(ctx context.Context, m *domain.Message) (*MessageResponse, error) {
	content, err := s.encryptor.Decrypt(m.Content)
	if err != nil {
		// Fall back to the raw stored value rather than failing the read.
		content = m.Content
	}
	var username string
	if u, err := s.users.GetByID(ctx, m.AuthorID); err == nil && u != nil {
		username = u.Username
	}
	unread := m.UnreadBy
	if unread == nil {
		unread = []string{}
	}
	return &MessageResponse{
		ID:             m.ID,
		Content:        content,
		ConversationID: m.ConversationID,
		AuthorID:       m.AuthorID,
		AuthorUsername: username,
		IsModified:     m.IsModified,
		ReplyToID:      m.ReplyToID,
		UnreadBy:       unread,
		CreatedAt:      m.CreatedAt,
	}, nil
}

// ToResponses converts a slice of domain messages into response DTOs.
func (s *MessageService) ToResponses(ctx context.Context, msgs []*domain.Message) ([]*MessageResponse, error) {
	res := make([]*MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		dto, err := s.ToResponse(ctx, m)
		if err != nil {
			return nil, err
		}
		res = append(res, dto)
	}
	return res, nil
}

func validateContent(content string) error {
	if content == "" {
		return fmt.Errorf("%w: message content cannot be empty", domain.ErrInvalidInput)
	}
	if len([]rune(content)) > maxMessageRunes {
		return fmt.Errorf("%w: message content exceeds %d characters", domain.ErrInvalidInput, maxMessageRunes)
	}
	return nil
}
