package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type typingFixture struct {
	presence *Presence
	hub      *Hub
	typing   *Typing
}

func newTypingFixture(users *fakeUserStore, rooms *fakeRoomStore) *typingFixture {
	log := zap.NewNop()
	fx := &typingFixture{
		presence: NewPresence(log),
		hub:      NewHub(log),
	}
	filter := NewFilter(users, nil, log)
	fx.typing = NewTyping(fx.presence, fx.hub, rooms, filter, log)
	return fx
}

func TestTypingNotifiesOtherParticipant(t *testing.T) {
	users := newFakeUserStore(&User{ID: "alice"}, &User{ID: "bob"})
	rooms := newFakeRoomStore(&Room{ID: "r1", Type: RoomPrivate, Participants: []string{"alice", "bob"}})
	fx := newTypingFixture(users, rooms)
	bob := newFakeConn("c2", "bob")
	fx.presence.Register(bob)

	req := &TypingRequest{RoomID: "r1", SenderID: "alice", SenderName: "Alice"}
	require.NoError(t, fx.typing.Set(context.Background(), req))
	assert.Len(t, bob.received(EvTyping), 1)
	assert.True(t, fx.typing.IsTyping("r1", "alice"))

	require.NoError(t, fx.typing.Clear(context.Background(), req))
	assert.Len(t, bob.received(EvStopTyping), 1)
	assert.False(t, fx.typing.IsTyping("r1", "alice"))
}

func TestTypingRepeatedSetEmitsOnce(t *testing.T) {
	users := newFakeUserStore(&User{ID: "alice"}, &User{ID: "bob"})
	rooms := newFakeRoomStore(&Room{ID: "r1", Type: RoomPrivate, Participants: []string{"alice", "bob"}})
	fx := newTypingFixture(users, rooms)
	bob := newFakeConn("c2", "bob")
	fx.presence.Register(bob)

	req := &TypingRequest{RoomID: "r1", SenderID: "alice", SenderName: "Alice"}
	require.NoError(t, fx.typing.Set(context.Background(), req))
	require.NoError(t, fx.typing.Set(context.Background(), req))
	assert.Len(t, bob.received(EvTyping), 1)
}

func TestTypingSuppressedTowardBlockedRecipient(t *testing.T) {
	users := newFakeUserStore(
		&User{ID: "alice", Blocked: []string{"bob"}},
		&User{ID: "bob"},
	)
	rooms := newFakeRoomStore(&Room{ID: "r1", Type: RoomPrivate, Participants: []string{"alice", "bob"}})
	fx := newTypingFixture(users, rooms)
	bob := newFakeConn("c2", "bob")
	fx.presence.Register(bob)

	require.NoError(t, fx.typing.Set(context.Background(), &TypingRequest{
		RoomID: "r1", SenderID: "alice", SenderName: "Alice",
	}))
	assert.Empty(t, bob.received(EvTyping), "typing from a blocker must not reach the blocked")
}

func TestTypingGroupRoomBroadcasts(t *testing.T) {
	users := newFakeUserStore(&User{ID: "alice"}, &User{ID: "bob"}, &User{ID: "carol"})
	rooms := newFakeRoomStore(&Room{ID: "r1", Type: RoomGroup, Participants: []string{"alice", "bob", "carol"}})
	fx := newTypingFixture(users, rooms)
	bob := newFakeConn("c2", "bob")
	carol := newFakeConn("c3", "carol")
	fx.presence.Register(bob)
	fx.presence.Register(carol)
	fx.hub.Join("r1", bob)
	fx.hub.Join("r1", carol)

	require.NoError(t, fx.typing.Set(context.Background(), &TypingRequest{
		RoomID: "r1", SenderID: "alice", SenderName: "Alice",
	}))
	assert.Len(t, bob.received(EvTyping), 1)
	assert.Len(t, carol.received(EvTyping), 1)
}

func TestTypingSweepStaleClearsOldEntries(t *testing.T) {
	users := newFakeUserStore(&User{ID: "alice"}, &User{ID: "bob"})
	rooms := newFakeRoomStore(&Room{ID: "r1", Type: RoomPrivate, Participants: []string{"alice", "bob"}})
	fx := newTypingFixture(users, rooms)

	require.NoError(t, fx.typing.Set(context.Background(), &TypingRequest{
		RoomID: "r1", SenderID: "alice", SenderName: "Alice",
	}))

	assert.Equal(t, 0, fx.typing.SweepStale(time.Minute), "fresh entries stay")
	assert.True(t, fx.typing.IsTyping("r1", "alice"))

	assert.Equal(t, 1, fx.typing.SweepStale(0))
	assert.False(t, fx.typing.IsTyping("r1", "alice"))
}

func TestTypingValidation(t *testing.T) {
	users := newFakeUserStore()
	rooms := newFakeRoomStore()
	fx := newTypingFixture(users, rooms)

	err := fx.typing.Set(context.Background(), &TypingRequest{RoomID: "r1"})
	assert.Error(t, err)
}
