package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestHubBroadcastExcludesOrigin(t *testing.T) {
	hub := NewHub(zap.NewNop())
	sender := newFakeConn("c1", "alice")
	peer := newFakeConn("c2", "bob")
	hub.Join("room1", sender)
	hub.Join("room1", peer)

	hub.BroadcastToRoom("room1", EvNewMessage, "hello", "c1")

	assert.Empty(t, sender.received(EvNewMessage), "origin connection must be excluded")
	assert.Len(t, peer.received(EvNewMessage), 1)
}

func TestHubBroadcastToUnknownRoomIsNoop(t *testing.T) {
	hub := NewHub(zap.NewNop())
	hub.BroadcastToRoom("ghost", EvNewMessage, "hello", "")
}

func TestHubLeaveAllRemovesConnectionEverywhere(t *testing.T) {
	hub := NewHub(zap.NewNop())
	c := newFakeConn("c1", "alice")
	hub.Join("room1", c)
	hub.Join("room2", c)
	assert.True(t, hub.Joined("room1", "c1"))

	hub.LeaveAll("c1")

	assert.False(t, hub.Joined("room1", "c1"))
	assert.False(t, hub.Joined("room2", "c1"))
	hub.BroadcastToRoom("room1", EvNewMessage, "hello", "")
	assert.Empty(t, c.received(EvNewMessage))
}

func TestHubJoinIsIdempotentPerConnection(t *testing.T) {
	hub := NewHub(zap.NewNop())
	c := newFakeConn("c1", "alice")
	hub.Join("room1", c)
	hub.Join("room1", c)

	hub.BroadcastToRoom("room1", EvNewMessage, "hello", "")
	assert.Len(t, c.received(EvNewMessage), 1, "double join must not double deliveries")
}
