package ws

// Event is the wire envelope for every server-to-client push.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Server-to-client event names. The names are part of the client contract.
const (
	EventError = "error"

	EventMessageCreated        = "onMessageCreated"
	EventMessageCreatedSidebar = "onMessageCreatedSidebar"
	EventMessageUpdated        = "onMessageUpdated"
	EventMessageUpdatedSidebar = "onMessageUpdatedSidebar"
	EventMessageDeleted        = "onMessageDeleted"
	EventMessageDeletedSidebar = "onMessageDeletedSidebar"

	EventUserJoin  = "userJoin"
	EventUserLeave = "userLeave"

	EventTypingStart             = "onTypingStart"
	EventTypingStop              = "onTypingStop"
	EventTypingStartConversation = "onTypingStartConversation"
	EventTypingStopConversation  = "onTypingStopConversation"

	EventFriendRequestReceived = "onFriendRequestSentReceived"
	EventFriendRequestSended   = "onFriendRequestSentSended"
	EventFriendRequestAccepted = "onFriendRequestAccepted"
	EventFriendRequestDeclined = "onFriendRequestDeclined"
	EventFriendRequestCanceled = "onFriendRequestCanceled"
	EventFriendRemoved         = "onFriendRemoved"

	EventConversationCreated = "onConversationCreated"
)

// Client-to-gateway event names. Everything else (messages, friend requests,
// read receipts) mutates state through the REST API, never through the
// gateway.
const (
	clientJoinConversation  = "joinConversation"
	clientLeaveConversation = "leaveConversation"
	clientTypingStart       = "typingStart"
	clientTypingStop        = "typingStop"
)
