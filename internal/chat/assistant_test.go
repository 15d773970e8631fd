package chat

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hsg8-commits/ripple/internal/assistant"
	"github.com/hsg8-commits/ripple/pkg/errors"
)

type fakeResponder struct {
	reply string
	err   error

	turns []assistant.Turn
}

func (f *fakeResponder) Respond(_ context.Context, turns []assistant.Turn) (string, error) {
	f.turns = turns
	return f.reply, f.err
}

func newAssistantFixture(t *testing.T, responder assistant.Responder) (*pipelineFixture, *fakeRoomStore) {
	t.Helper()
	users := newFakeUserStore(&User{ID: "alice"}, &User{ID: "bot"})
	rooms := newFakeRoomStore(&Room{ID: "r1", Type: RoomPrivate, Participants: []string{"alice", "bot"}})
	fx := newPipelineFixture(users, rooms)
	NewAssistantScheduler(context.Background(), "bot", time.Millisecond, responder, fx.messages, fx.pipeline, zap.NewNop())
	return fx, rooms
}

func TestAssistantRepliesInItsRooms(t *testing.T) {
	responder := &fakeResponder{reply: "hello back"}
	fx, _ := newAssistantFixture(t, responder)

	_, err := fx.pipeline.Submit(context.Background(), &SubmitRequest{
		RoomID: "r1", SenderID: "alice", Body: "hello", TempID: "t1",
	}, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return fx.messages.count() == 2
	}, time.Second, 5*time.Millisecond, "the assistant reply should land")

	reply, err := fx.messages.LatestVisible(context.Background(), "r1", "alice")
	require.NoError(t, err)
	assert.Equal(t, "bot", reply.SenderID)
	assert.Equal(t, "hello back", reply.Body)
	assert.True(t, strings.HasPrefix(reply.TempID, "ai_"))

	require.NotEmpty(t, responder.turns)
	assert.Equal(t, assistant.RoleUser, responder.turns[len(responder.turns)-1].Role)

	// The assistant's own reply must not trigger another reply.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, fx.messages.count())
}

func TestAssistantIgnoresBodylessMessages(t *testing.T) {
	responder := &fakeResponder{reply: "hello back"}
	users := newFakeUserStore(&User{ID: "alice"}, &User{ID: "bot"})
	rooms := newFakeRoomStore(&Room{ID: "r1", Type: RoomPrivate, Participants: []string{"alice", "bot"}})
	fx := newPipelineFixture(users, rooms)
	s := NewAssistantScheduler(context.Background(), "bot", time.Millisecond, responder, fx.messages, fx.pipeline, zap.NewNop())

	room, err := rooms.GetRoom(context.Background(), "r1")
	require.NoError(t, err)
	s.MessageArrived(room, &Message{ID: "m1", RoomID: "r1", SenderID: "alice"})

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, fx.messages.count(), "no body and no attachment means no reply")
}

func TestAssistantFallsBackOnResponderError(t *testing.T) {
	responder := &fakeResponder{err: errors.New("upstream down")}
	fx, _ := newAssistantFixture(t, responder)

	_, err := fx.pipeline.Submit(context.Background(), &SubmitRequest{
		RoomID: "r1", SenderID: "alice", Body: "hello", TempID: "t1",
	}, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return fx.messages.count() == 2
	}, time.Second, 5*time.Millisecond)

	reply, err := fx.messages.LatestVisible(context.Background(), "r1", "alice")
	require.NoError(t, err)
	assert.Equal(t, assistantFallback, reply.Body)
}

func TestAssistantIgnoresForeignRooms(t *testing.T) {
	responder := &fakeResponder{reply: "hello back"}
	users := newFakeUserStore(&User{ID: "alice"}, &User{ID: "bob"})
	rooms := newFakeRoomStore(&Room{ID: "r1", Type: RoomPrivate, Participants: []string{"alice", "bob"}})
	fx := newPipelineFixture(users, rooms)
	NewAssistantScheduler(context.Background(), "bot", time.Millisecond, responder, fx.messages, fx.pipeline, zap.NewNop())

	_, err := fx.pipeline.Submit(context.Background(), &SubmitRequest{
		RoomID: "r1", SenderID: "alice", Body: "hello", TempID: "t1",
	}, "")
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, fx.messages.count(), "rooms without the assistant get no reply")
}

func TestAssistantCancelledContextStopsReplies(t *testing.T) {
	responder := &fakeResponder{reply: "hello back"}
	users := newFakeUserStore(&User{ID: "alice"}, &User{ID: "bot"})
	rooms := newFakeRoomStore(&Room{ID: "r1", Type: RoomPrivate, Participants: []string{"alice", "bot"}})
	fx := newPipelineFixture(users, rooms)
	ctx, cancel := context.WithCancel(context.Background())
	NewAssistantScheduler(ctx, "bot", 10*time.Millisecond, responder, fx.messages, fx.pipeline, zap.NewNop())

	_, err := fx.pipeline.Submit(context.Background(), &SubmitRequest{
		RoomID: "r1", SenderID: "alice", Body: "hello", TempID: "t1",
	}, "")
	require.NoError(t, err)
	cancel()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, fx.messages.count(), "shutdown must drop pending replies")
}
