package chat

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hsg8-commits/ripple/internal/assistant"
	"github.com/hsg8-commits/ripple/internal/metrics"
	"github.com/hsg8-commits/ripple/pkg/errors"
)

const (
	assistantContextSize = 10
	assistantTimeout     = 30 * time.Second

	assistantFallback = "Sorry, I can't respond right now. Please try again in a moment."
)

// AssistantScheduler watches the message stream and answers on behalf of the
// assistant user in rooms that include it. Replies are delayed by a small
// fixed pause so they read as typed rather than instantaneous.
type AssistantScheduler struct {
	userID    string
	delay     time.Duration
	responder assistant.Responder
	messages  MessageStore
	pipeline  *Pipeline
	log       *zap.Logger

	ctx context.Context
}

// NewAssistantScheduler builds the scheduler. ctx bounds all pending replies;
// cancelling it stops new responses from firing.
func NewAssistantScheduler(ctx context.Context, userID string, delay time.Duration, responder assistant.Responder, messages MessageStore, pipeline *Pipeline, log *zap.Logger) *AssistantScheduler {
	s := &AssistantScheduler{
		userID:    userID,
		delay:     delay,
		responder: responder,
		messages:  messages,
		pipeline:  pipeline,
		log:       log.With(zap.String("module", "assistant-scheduler")),
		ctx:       ctx,
	}
	pipeline.SetScheduler(s)
	return s
}

// MessageArrived implements ReplyScheduler. Only rooms the assistant belongs
// to trigger a reply, never its own messages, and only when the message
// carries a body or attachment.
func (s *AssistantScheduler) MessageArrived(room *Room, m *Message) {
	if m.SenderID == s.userID || !s.roomHasAssistant(room) {
		return
	}
	if m.Body == "" && m.Attachment == nil {
		return
	}
	time.AfterFunc(s.delay, func() {
		if s.ctx.Err() != nil {
			return
		}
		s.respond(room.ID)
	})
}

func (s *AssistantScheduler) roomHasAssistant(room *Room) bool {
	for _, p := range room.Participants {
		if p == s.userID {
			return true
		}
	}
	return false
}

func (s *AssistantScheduler) respond(roomID string) {
	ctx, cancel := context.WithTimeout(s.ctx, assistantTimeout)
	defer cancel()

	turns := s.conversation(ctx, roomID)
	if len(turns) == 0 {
		return
	}
	if turns[len(turns)-1].Role == assistant.RoleAssistant {
		// Someone else's delayed trigger already produced the answer.
		return
	}

	body, err := s.responder.Respond(ctx, turns)
	if err != nil || body == "" {
		metrics.AssistantFallbacks.Inc()
		errors.LogWithError(ctx, s.log, "assistant fell back to canned reply", err, zap.String("room", roomID))
		body = assistantFallback
	}

	_, err = s.pipeline.Submit(ctx, &SubmitRequest{
		RoomID:   roomID,
		SenderID: s.userID,
		Body:     body,
		TempID:   fmt.Sprintf("ai_%d", time.Now().UnixNano()),
	}, "")
	if err != nil {
		errors.LogWithError(ctx, s.log, "submitting assistant reply", err, zap.String("room", roomID))
		return
	}
	metrics.AssistantReplies.Inc()
}

// conversation builds the prompt context from the room's newest messages,
// oldest first, skipping anything without text.
func (s *AssistantScheduler) conversation(ctx context.Context, roomID string) []assistant.Turn {
	recent, err := s.messages.LastMessages(ctx, roomID, assistantContextSize)
	if err != nil {
		errors.LogWithError(ctx, s.log, "loading assistant context", err, zap.String("room", roomID))
		return nil
	}
	turns := make([]assistant.Turn, 0, len(recent))
	for _, m := range recent {
		if m.Body == "" {
			continue
		}
		role := assistant.RoleUser
		if m.SenderID == s.userID {
			role = assistant.RoleAssistant
		}
		turns = append(turns, assistant.Turn{Role: role, Content: m.Body})
	}
	return turns
}
