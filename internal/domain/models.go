package domain

import "time"

// User represents an application user.
type User struct {
	ID             string    `db:"id" json:"id"`
	Username       string    `db:"username" json:"username"`
	HashedPassword string    `db:"hashed_password" json:"-"`
	AvatarKey      *string   `db:"avatar_key" json:"avatar_key,omitempty"`
	RefreshToken   *string   `db:"refresh_token" json:"-"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Conversation is a two-party chat between creator and recipient. The pair is
// unordered for lookup purposes: at most one conversation exists between any
// two users regardless of who initiated it.
type Conversation struct {
	ID                string     `db:"id" json:"id"`
	CreatorID         string     `db:"creator_id" json:"creator_id"`
	RecipientID       string     `db:"recipient_id" json:"recipient_id"`
	LastMessageSentAt *time.Time `db:"last_message_sent_at" json:"last_message_sent_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`

	// ClosedBy holds ids of participants who hid the conversation from their
	// sidebar. Cleared for a participant the moment the other one sends a
	// message.
	ClosedBy []string `json:"closed_by"`
}

// Participants returns both user ids of the conversation.
func (c *Conversation) Participants() []string {
	return []string{c.CreatorID, c.RecipientID}
}

// HasParticipant reports whether the given user belongs to the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	return c.CreatorID == userID || c.RecipientID == userID
}

// OtherParticipant returns the participant that is not userID.
func (c *Conversation) OtherParticipant(userID string) string {
	if c.CreatorID == userID {
		return c.RecipientID
	}
	return c.CreatorID
}

// IsClosedBy reports whether userID has hidden the conversation.
func (c *Conversation) IsClosedBy(userID string) bool {
	for _, id := range c.ClosedBy {
		if id == userID {
			return true
		}
	}
	return false
}

// Message represents a single chat message.
type Message struct {
	ID             string    `db:"id" json:"id"`
	Content        string    `db:"content" json:"content"` // encrypted at rest
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	AuthorID       string    `db:"author_id" json:"author_id"`
	IsModified     bool      `db:"is_modified" json:"is_modified"`
	ReplyToID      *string   `db:"reply_to_id" json:"reply_to_id,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`

	// UnreadBy holds ids of participants who have not read the message yet.
	// Initialized to the other participant on creation, never contains the
	// author, and only ever shrinks.
	UnreadBy []string `json:"unread_by"`
}

// IsUnreadBy reports whether userID still has the message marked unread.
func (m *Message) IsUnreadBy(userID string) bool {
	for _, id := range m.UnreadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// FriendRequest is a pending directed edge from sender to receiver. Accepting
// it replaces the edge with a symmetric Friendship.
type FriendRequest struct {
	SenderID   string    `db:"sender_id" json:"sender_id"`
	ReceiverID string    `db:"receiver_id" json:"receiver_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Friendship is an established symmetric friend relation, stored once per
// pair with UserA < UserB.
type Friendship struct {
	UserA     string    `db:"user_a" json:"user_a"`
	UserB     string    `db:"user_b" json:"user_b"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// NormalizePair orders two user ids so a friendship pair has a single
// canonical representation.
func NormalizePair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}
