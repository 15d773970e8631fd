package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestJanitorSweepFailsStaleCallLegs(t *testing.T) {
	log := zap.NewNop()
	users := newFakeUserStore(&User{ID: "alice"}, &User{ID: "bob"})
	rooms := newFakeRoomStore(&Room{ID: "r1", Type: RoomPrivate, Participants: []string{"alice", "bob"}})
	filter := NewFilter(users, nil, log)
	typing := NewTyping(NewPresence(log), NewHub(log), rooms, filter, log)
	calls := newFakeCallStore()

	stale := &CallRecord{
		ID: "old", CallerID: "alice", ReceiverID: "bob", RoomID: "r1",
		Media: MediaVoice, Direction: DirectionOutgoing, Status: CallRinging,
		StartTime: time.Now().UTC().Add(-3 * time.Hour),
	}
	fresh := &CallRecord{
		ID: "new", CallerID: "alice", ReceiverID: "bob", RoomID: "r1",
		Media: MediaVoice, Direction: DirectionOutgoing, Status: CallRinging,
		StartTime: time.Now().UTC(),
	}
	require.NoError(t, calls.CreateCall(context.Background(), stale))
	require.NoError(t, calls.CreateCall(context.Background(), fresh))

	j := NewJanitor(typing, calls, log)
	j.sweep()

	got, err := calls.CallByID(context.Background(), "old")
	require.NoError(t, err)
	assert.Equal(t, CallFailed, got.Status)

	got, err = calls.CallByID(context.Background(), "new")
	require.NoError(t, err)
	assert.Equal(t, CallRinging, got.Status, "live legs stay untouched")
}
