package ws

import "sync"

// Registry is the authoritative in-memory map from user id to the user's
// live connection. A user has at most one connection per process; a new
// connection unconditionally replaces the previous one (last-connect-wins).
// All operations are safe for concurrent use and never touch I/O.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Client
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Client),
	}
}

// Register binds the client to the user and returns the replaced client, if
// any. The caller is responsible for closing the replaced connection; the
// registry no longer routes to it.
func (r *Registry) Register(userID string, c *Client) (prev *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev = r.sessions[userID]
	r.sessions[userID] = c
	return prev
}

// Lookup returns the user's live connection or nil.
func (r *Registry) Lookup(userID string) *Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[userID]
}

// RemoveClient unbinds the user only if the given client is still the
// registered one. The teardown of a replaced connection runs after the new
// connection has registered; deleting unconditionally there would unregister
// the live connection, so teardown must compare before it deletes.
func (r *Registry) RemoveClient(userID string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[userID] == c {
		delete(r.sessions, userID)
	}
}

// Send pushes an event to the user's personal channel. A user without a live
// connection silently receives nothing; there is no queuing or retry.
func (r *Registry) Send(userID string, ev Event) {
	if c := r.Lookup(userID); c != nil {
		c.Push(ev)
	}
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
