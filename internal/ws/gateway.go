package ws

import (
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"dmserver/internal/domain"
	"dmserver/internal/security"
	"dmserver/internal/service"
)

// Gateway owns the /ws endpoint: it authenticates connections, binds them to
// the session registry and conversation rooms, handles the small set of
// client events (join/leave/typing), and exposes the fan-out methods the
// HTTP handlers call after successful mutations. Fan-out is fire-and-forget:
// recipients without a live connection receive nothing, and there is no
// retry or offline queue.
type Gateway struct {
	registry *Registry
	rooms    *Rooms

	tokens        *security.TokenService
	users         domain.UserRepository
	conversations domain.ConversationRepository

	checkOrigin func(r *http.Request) bool
	upgrader    websocket.Upgrader
}

func NewGateway(
	registry *Registry,
	tokens *security.TokenService,
	users domain.UserRepository,
	conversations domain.ConversationRepository,
	allowedOrigins []string,
) *Gateway {
	checkOrigin := makeCheckOrigin(allowedOrigins)
	return &Gateway{
		registry:      registry,
		rooms:         NewRooms(),
		tokens:        tokens,
		users:         users,
		conversations: conversations,
		checkOrigin:   checkOrigin,
		upgrader: websocket.Upgrader{
			CheckOrigin: checkOrigin,
			Subprotocols: []string{
				"bearer",
			},
		},
	}
}

type wsAuthError struct {
	status int
	msg    string
}

func (e wsAuthError) Error() string {
	return e.msg
}

func normalizeAllowedOrigins(origins []string) map[string]struct{} {
	res := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		o := strings.TrimSpace(strings.ToLower(origin))
		if o != "" {
			res[o] = struct{}{}
		}
	}
	return res
}

func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := normalizeAllowedOrigins(allowedOrigins)
	if len(allowed) == 0 {
		return func(r *http.Request) bool {
			return false
		}
	}

	return func(r *http.Request) bool {
		origin := strings.TrimSpace(strings.ToLower(r.Header.Get("Origin")))
		if origin == "" {
			return false
		}
		if _, ok := allowed[origin]; ok {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		normalized := strings.ToLower(fmt.Sprintf("%s://%s", u.Scheme, u.Host))
		_, ok := allowed[normalized]
		return ok
	}
}

// extractToken pulls the bearer credential from the Authorization header, the
// Sec-WebSocket-Protocol handshake ("bearer, <token>") or the access_token
// cookie, in that order. Browsers cannot set headers on WebSocket upgrades,
// hence the two fallbacks.
func extractToken(r *http.Request) (string, error) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		token := strings.TrimSpace(authHeader[len("Bearer "):])
		if token != "" {
			return token, nil
		}
	}

	protocolHeader := r.Header.Get("Sec-WebSocket-Protocol")
	if protocolHeader != "" {
		parts := strings.Split(protocolHeader, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 && strings.EqualFold(parts[0], "bearer") {
			token := parts[1]
			if token != "" {
				return token, nil
			}
		}
	}

	if cookie, err := r.Cookie("access_token"); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	return "", wsAuthError{status: http.StatusUnauthorized, msg: "missing bearer token"}
}

// Handler returns the HTTP handler for the /ws endpoint.
func (g *Gateway) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !g.checkOrigin(r) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}

		tokenStr, err := extractToken(r)
		if err != nil {
			if authErr, ok := err.(wsAuthError); ok {
				http.Error(w, authErr.msg, authErr.status)
				return
			}
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		userID, err := g.tokens.VerifyAccessToken(tokenStr)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		ctx := r.Context()
		user, err := g.users.GetByID(ctx, userID)
		if err != nil || user == nil {
			http.Error(w, "user not found", http.StatusUnauthorized)
			return
		}

		conn, err := g.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		client := newClient(user.ID, conn)
		if prev := g.registry.Register(user.ID, client); prev != nil {
			// Last connect wins: the replaced connection is torn down.
			prev.Close()
		}
		go client.writePump()

		defer func() {
			g.rooms.DropClient(client)
			// Only unbind if this connection is still the registered one;
			// a reconnect may already have replaced it.
			g.registry.RemoveClient(user.ID, client)
			client.Close()
		}()

		conn.SetReadLimit(maxMessageSize)

		for {
			var payload struct {
				Event          string `json:"event"`
				ConversationID string `json:"conversation_id"`
			}
			if err := conn.ReadJSON(&payload); err != nil {
				break
			}

			switch payload.Event {
			case clientJoinConversation:
				g.handleJoin(r, client, payload.ConversationID)
			case clientLeaveConversation:
				g.handleLeave(client, payload.ConversationID)
			case clientTypingStart:
				g.handleTyping(r, client, payload.ConversationID, true)
			case clientTypingStop:
				g.handleTyping(r, client, payload.ConversationID, false)
			default:
				client.Push(Event{Event: EventError, Data: map[string]any{
					"message": fmt.Sprintf("unknown event %q", payload.Event),
				}})
			}
		}
	}
}

// memberConversation loads the conversation and verifies the client belongs
// to it. Unknown ids and foreign conversations look the same to the client.
func (g *Gateway) memberConversation(r *http.Request, client *Client, conversationID string) *domain.Conversation {
	if conversationID == "" {
		return nil
	}
	conv, err := g.conversations.GetByID(r.Context(), conversationID)
	if err != nil {
		log.Printf("ws: get conversation %s: %v", conversationID, err)
		return nil
	}
	if conv == nil || !conv.HasParticipant(client.UserID) {
		client.Push(Event{Event: EventError, Data: map[string]any{
			"message": "not allowed for this conversation",
		}})
		return nil
	}
	return conv
}

func (g *Gateway) handleJoin(r *http.Request, client *Client, conversationID string) {
	conv := g.memberConversation(r, client, conversationID)
	if conv == nil {
		return
	}
	g.rooms.Join(conv.ID, client)
	g.rooms.Broadcast(conv.ID, Event{Event: EventUserJoin}, client)
}

func (g *Gateway) handleLeave(client *Client, conversationID string) {
	if conversationID == "" {
		return
	}
	g.rooms.Leave(conversationID, client)
	g.rooms.Broadcast(conversationID, Event{Event: EventUserLeave}, client)
}

// handleTyping routes a typing indicator two ways: to everyone else in the
// room, and to the other participant's personal channel when they are not
// currently viewing the conversation.
func (g *Gateway) handleTyping(r *http.Request, client *Client, conversationID string, start bool) {
	conv := g.memberConversation(r, client, conversationID)
	if conv == nil {
		return
	}

	roomEvent, personalEvent := EventTypingStop, EventTypingStopConversation
	if start {
		roomEvent, personalEvent = EventTypingStart, EventTypingStartConversation
	}
	data := map[string]any{"conversation_id": conv.ID}

	g.rooms.Broadcast(conv.ID, Event{Event: roomEvent, Data: data}, client)

	other := conv.OtherParticipant(client.UserID)
	if peer := g.registry.Lookup(other); peer != nil && !g.rooms.Contains(conv.ID, peer) {
		peer.Push(Event{Event: personalEvent, Data: data})
	}
}

// ── fan-out API, called by the HTTP handlers after a committed mutation ──

// MessageCreated announces a new message to the conversation room and to
// both participants' sidebars.
func (g *Gateway) MessageCreated(conv *domain.Conversation, msg *service.MessageResponse) {
	g.rooms.Broadcast(conv.ID, Event{Event: EventMessageCreated, Data: msg}, nil)
	for _, id := range conv.Participants() {
		g.registry.Send(id, Event{Event: EventMessageCreatedSidebar, Data: msg})
	}
}

// MessageUpdated announces an edit to the room and both sidebars.
func (g *Gateway) MessageUpdated(conv *domain.Conversation, msg *service.MessageResponse) {
	g.rooms.Broadcast(conv.ID, Event{Event: EventMessageUpdated, Data: msg}, nil)
	for _, id := range conv.Participants() {
		g.registry.Send(id, Event{Event: EventMessageUpdatedSidebar, Data: msg})
	}
}

// MessageDeleted announces a deletion. The room learns which message went
// away; the sidebars additionally learn the conversation's new last message,
// nil when the conversation became empty.
func (g *Gateway) MessageDeleted(conv *domain.Conversation, messageID string, newLast *service.MessageResponse) {
	g.rooms.Broadcast(conv.ID, Event{Event: EventMessageDeleted, Data: map[string]any{
		"message_id": messageID,
	}}, nil)
	for _, id := range conv.Participants() {
		g.registry.Send(id, Event{Event: EventMessageDeletedSidebar, Data: map[string]any{
			"conversation_id":  conv.ID,
			"new_last_message": newLast,
		}})
	}
}

// ConversationCreated announces a new (not reopened) conversation to both
// participants.
func (g *Gateway) ConversationCreated(conv *domain.Conversation) {
	for _, id := range conv.Participants() {
		g.registry.Send(id, Event{Event: EventConversationCreated, Data: conv})
	}
}

// FriendRequestSent notifies both ends of a new pending request. Each side
// receives the other side's user record.
func (g *Gateway) FriendRequestSent(sender, receiver *domain.User) {
	g.registry.Send(receiver.ID, Event{Event: EventFriendRequestReceived, Data: map[string]any{
		"user": sender,
	}})
	g.registry.Send(sender.ID, Event{Event: EventFriendRequestSended, Data: map[string]any{
		"user": receiver,
	}})
}

func (g *Gateway) FriendRequestAccepted(aID, bID string) {
	g.notifyPair(EventFriendRequestAccepted, aID, bID)
}

func (g *Gateway) FriendRequestDeclined(aID, bID string) {
	g.notifyPair(EventFriendRequestDeclined, aID, bID)
}

func (g *Gateway) FriendRequestCanceled(aID, bID string) {
	g.notifyPair(EventFriendRequestCanceled, aID, bID)
}

func (g *Gateway) FriendRemoved(aID, bID string) {
	g.notifyPair(EventFriendRemoved, aID, bID)
}

// notifyPair sends the event to both parties, each payload carrying the
// other party's id.
func (g *Gateway) notifyPair(event, aID, bID string) {
	g.registry.Send(aID, Event{Event: event, Data: map[string]any{"user_id": bID}})
	g.registry.Send(bID, Event{Event: event, Data: map[string]any{"user_id": aID}})
}
