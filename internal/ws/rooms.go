package ws

import "sync"

// Rooms tracks which connections are currently inside which conversation
// view. Rooms only scope ephemeral signals (typing, join/leave) and the
// in-conversation message events; membership is never persisted.
type Rooms struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
}

func NewRooms() *Rooms {
	return &Rooms{
		rooms: make(map[string]map[*Client]struct{}),
	}
}

// Join adds the client to the conversation room. Joining twice is a no-op.
func (r *Rooms) Join(conversationID string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rooms[conversationID] == nil {
		r.rooms[conversationID] = make(map[*Client]struct{})
	}
	r.rooms[conversationID][c] = struct{}{}
}

// Leave removes the client from the conversation room. Leaving a room the
// client is not in is a no-op.
func (r *Rooms) Leave(conversationID string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drop(conversationID, c)
}

// Contains reports whether the client is currently in the room.
func (r *Rooms) Contains(conversationID string, c *Client) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.rooms[conversationID][c]
	return ok
}

// DropClient removes the client from every room on disconnect.
func (r *Rooms) DropClient(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id := range r.rooms {
		r.drop(id, c)
	}
}

func (r *Rooms) drop(conversationID string, c *Client) {
	if members, ok := r.rooms[conversationID]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(r.rooms, conversationID)
		}
	}
}

// Broadcast pushes the event to every room member except the excluded
// client. Push failures count as offline and are ignored.
func (r *Rooms) Broadcast(conversationID string, ev Event, except *Client) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for member := range r.rooms[conversationID] {
		if member == except {
			continue
		}
		member.Push(ev)
	}
}
