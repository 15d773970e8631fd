package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPresenceRegisterTracksFirstAndLastConnection(t *testing.T) {
	p := NewPresence(zap.NewNop())

	first := newFakeConn("c1", "alice")
	second := newFakeConn("c2", "alice")

	assert.True(t, p.Register(first), "first connection should bring the user online")
	assert.False(t, p.Register(second), "second connection should not change online state")
	assert.True(t, p.Online("alice"))
	assert.Len(t, p.Lookup("alice"), 2)

	userID, wentOffline := p.Unregister("c1")
	assert.Equal(t, "alice", userID)
	assert.False(t, wentOffline, "one connection still open")

	userID, wentOffline = p.Unregister("c2")
	assert.Equal(t, "alice", userID)
	assert.True(t, wentOffline)
	assert.False(t, p.Online("alice"))
}

func TestPresenceUnregisterUnknownConnection(t *testing.T) {
	p := NewPresence(zap.NewNop())
	userID, wentOffline := p.Unregister("nope")
	assert.Empty(t, userID)
	assert.False(t, wentOffline)
}

func TestPresencePermanentEntrySurvivesUnregister(t *testing.T) {
	p := NewPresence(zap.NewNop())
	p.RegisterPermanent(NewVirtualConn("assistant", "bot"))

	require.True(t, p.Online("bot"))
	_, wentOffline := p.Unregister("assistant")
	assert.False(t, wentOffline)
	assert.True(t, p.Online("bot"), "permanent entry must stay online")

	found := false
	for _, info := range p.Snapshot() {
		if info.UserID == "bot" {
			found = true
			assert.Equal(t, StatusOnline, info.Status)
		}
	}
	assert.True(t, found, "permanent entry must appear in the snapshot")
}

func TestPresenceSnapshotListsDistinctUsers(t *testing.T) {
	p := NewPresence(zap.NewNop())
	p.Register(newFakeConn("c1", "alice"))
	p.Register(newFakeConn("c2", "alice"))
	p.Register(newFakeConn("c3", "bob"))

	snapshot := p.Snapshot()
	assert.Len(t, snapshot, 2, "multiple connections collapse to one row")
}
