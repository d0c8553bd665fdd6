package domain

import (
	"context"
	"time"
)

// UserRepository defines persistence operations for users.
// Lookups return (nil, nil) when the user does not exist.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	Update(ctx context.Context, u *User) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, usernamePrefix string, limit int) ([]*User, error)
}

// ConversationRepository defines persistence operations for conversations.
// GetByID and FindByParticipants load the ClosedBy set.
type ConversationRepository interface {
	Create(ctx context.Context, c *Conversation) error
	GetByID(ctx context.Context, id string) (*Conversation, error)
	// FindByParticipants looks the conversation up by its unordered pair of
	// participants, regardless of which of the two created it.
	FindByParticipants(ctx context.Context, userA, userB string) (*Conversation, error)
	// ListForUser returns conversations the user participates in and has not
	// closed, ordered descending by last message time, falling back to
	// creation time for empty conversations.
	ListForUser(ctx context.Context, userID string) ([]*Conversation, error)
	// AddClosedBy hides the conversation for the user. Adding a user that
	// already closed it is a no-op.
	AddClosedBy(ctx context.Context, conversationID, userID string) error
	RemoveClosedBy(ctx context.Context, conversationID string, userIDs ...string) error
	// Delete removes the conversation and cascades its messages.
	Delete(ctx context.Context, id string) error
}

// MessageRepository defines persistence operations for messages. GetByID and
// list operations load the UnreadBy set.
type MessageRepository interface {
	// Create inserts the message together with its unread markers, clears the
	// unread users from the conversation's closed set (reopen on incoming
	// message) and bumps the conversation's last message timestamp, all in
	// one transaction.
	Create(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id string) (*Message, error)
	// ListForConversation returns messages newest first, optionally only
	// those created before the cursor.
	ListForConversation(ctx context.Context, conversationID string, before *time.Time, limit int) ([]*Message, error)
	LastMessage(ctx context.Context, conversationID string) (*Message, error)
	Update(ctx context.Context, m *Message) error
	// Delete removes the message; replies to it cascade.
	Delete(ctx context.Context, id string) error
	// MarkRead clears the user's unread marker from every message in the
	// conversation not authored by the user and returns the ids that
	// transitioned. Calling it again returns an empty slice.
	MarkRead(ctx context.Context, conversationID, userID string) ([]string, error)
	UnreadCount(ctx context.Context, conversationID, userID string) (int, error)
	// FirstUnreadID returns the id of the oldest unread message for the user,
	// or nil when everything is read.
	FirstUnreadID(ctx context.Context, conversationID, userID string) (*string, error)
}

// FriendRepository defines persistence operations for the friend request /
// friendship graph. Friendships are stored once per pair in normalized order.
type FriendRepository interface {
	CreateRequest(ctx context.Context, fr *FriendRequest) error
	GetRequest(ctx context.Context, senderID, receiverID string) (*FriendRequest, error)
	// HasPendingBetween reports whether a pending request exists in either
	// direction between the two users.
	HasPendingBetween(ctx context.Context, userA, userB string) (bool, error)
	DeleteRequest(ctx context.Context, senderID, receiverID string) error
	// AcceptRequest deletes the pending request and creates the friendship in
	// one transaction.
	AcceptRequest(ctx context.Context, senderID, receiverID string) error
	AreFriends(ctx context.Context, userA, userB string) (bool, error)
	DeleteFriendship(ctx context.Context, userA, userB string) error
	ListFriends(ctx context.Context, userID string) ([]*User, error)
	ListSentRequests(ctx context.Context, userID string) ([]*User, error)
	ListReceivedRequests(ctx context.Context, userID string) ([]*User, error)
}
