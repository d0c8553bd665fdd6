package ws

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testClient(userID string) *Client {
	return &Client{
		UserID: userID,
		send:   make(chan Event, sendBuffer),
	}
}

func drain(c *Client) []Event {
	var events []Event
	for {
		select {
		case ev := <-c.send:
			events = append(events, ev)
		default:
			return events
		}
	}
}

func TestRegistryLastConnectWins(t *testing.T) {
	r := NewRegistry()
	first := testClient("u1")
	second := testClient("u1")

	assert.Nil(t, r.Register("u1", first))

	prev := r.Register("u1", second)
	assert.Same(t, first, prev)
	assert.Same(t, second, r.Lookup("u1"))
	assert.Equal(t, 1, r.Count())
}

func TestRegistryRemoveClient(t *testing.T) {
	r := NewRegistry()
	c := testClient("u1")
	r.Register("u1", c)

	r.RemoveClient("u1", c)
	assert.Nil(t, r.Lookup("u1"))

	// Removing an absent binding is a no-op.
	r.RemoveClient("u1", c)
	r.RemoveClient("never-registered", c)
	assert.Equal(t, 0, r.Count())
}

func TestRegistryReplacedTeardownKeepsNewClient(t *testing.T) {
	r := NewRegistry()
	first := testClient("u1")
	second := testClient("u1")

	r.Register("u1", first)
	prev := r.Register("u1", second)
	assert.Same(t, first, prev)

	// The displaced connection's teardown runs after the reconnect has
	// registered; it must not unbind the live connection.
	r.RemoveClient("u1", first)
	assert.Same(t, second, r.Lookup("u1"))

	r.Send("u1", Event{Event: EventMessageCreatedSidebar})
	assert.Len(t, drain(second), 1)
	assert.Empty(t, drain(first))

	r.RemoveClient("u1", second)
	assert.Nil(t, r.Lookup("u1"))
}

func TestRegistrySendOfflineIsNoop(t *testing.T) {
	r := NewRegistry()
	assert.NotPanics(t, func() {
		r.Send("offline-user", Event{Event: EventUserJoin})
	})
}

func TestRegistrySendDelivers(t *testing.T) {
	r := NewRegistry()
	c := testClient("u1")
	r.Register("u1", c)

	r.Send("u1", Event{Event: EventFriendRemoved})

	events := drain(c)
	assert.Len(t, events, 1)
	assert.Equal(t, EventFriendRemoved, events[0].Event)
}

func TestClientPushAfterCloseDoesNotPanic(t *testing.T) {
	c := testClient("u1")
	c.Close()
	assert.NotPanics(t, func() {
		c.Push(Event{Event: EventUserJoin})
	})
	c.Close() // idempotent
}

func TestClientPushDropsWhenBufferFull(t *testing.T) {
	c := &Client{UserID: "u1", send: make(chan Event, 1)}
	c.Push(Event{Event: EventUserJoin})
	assert.NotPanics(t, func() {
		c.Push(Event{Event: EventUserLeave})
	})
	assert.Len(t, drain(c), 1)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		c := testClient("u1")
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Register("u1", c)
		}()
		go func() {
			defer wg.Done()
			r.RemoveClient("u1", c)
		}()
	}
	wg.Wait()
	// Either outcome is legal; the registry just must stay consistent.
	assert.LessOrEqual(t, r.Count(), 1)
}
