package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoomsJoinIsIdempotent(t *testing.T) {
	rooms := NewRooms()
	c := testClient("u1")

	rooms.Join("c1", c)
	rooms.Join("c1", c)

	other := testClient("u2")
	rooms.Join("c1", other)
	rooms.Broadcast("c1", Event{Event: EventUserJoin}, other)

	assert.Len(t, drain(c), 1)
}

func TestRoomsBroadcastExceptSender(t *testing.T) {
	rooms := NewRooms()
	sender := testClient("u1")
	peer := testClient("u2")
	rooms.Join("c1", sender)
	rooms.Join("c1", peer)

	rooms.Broadcast("c1", Event{Event: EventTypingStart}, sender)

	assert.Empty(t, drain(sender))
	events := drain(peer)
	assert.Len(t, events, 1)
	assert.Equal(t, EventTypingStart, events[0].Event)
}

func TestRoomsLeaveAndDropClient(t *testing.T) {
	rooms := NewRooms()
	c := testClient("u1")
	rooms.Join("c1", c)
	rooms.Join("c2", c)

	rooms.Leave("c1", c)
	assert.False(t, rooms.Contains("c1", c))
	assert.True(t, rooms.Contains("c2", c))

	// Leaving a room the client is not in is a no-op.
	rooms.Leave("c1", c)

	rooms.DropClient(c)
	assert.False(t, rooms.Contains("c2", c))
}

func TestRoomsBroadcastEmptyRoom(t *testing.T) {
	rooms := NewRooms()
	assert.NotPanics(t, func() {
		rooms.Broadcast("missing", Event{Event: EventUserLeave}, nil)
	})
}
