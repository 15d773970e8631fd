package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hsg8-commits/ripple/internal/metrics"
	"github.com/hsg8-commits/ripple/pkg/errors"
)

const lastMessageTTL = 24 * time.Hour

// Notifier pushes a message to a recipient who has no live connection.
// Implementations must be fire-and-forget; the pipeline never waits on them.
type Notifier interface {
	MessageCreated(ctx context.Context, userID string, m *Message)
}

// AttachmentResolver turns a stored attachment reference into a public URL.
type AttachmentResolver interface {
	Resolve(ref string) string
}

// ReplyScheduler is notified after every broadcast message so an automated
// responder can decide whether to answer.
type ReplyScheduler interface {
	MessageArrived(room *Room, m *Message)
}

// Pipeline runs a submitted message through validation, block filtering,
// idempotency, persistence and fan-out, in that order.
type Pipeline struct {
	messages MessageStore
	rooms    RoomStore
	filter   *Filter
	presence *Presence
	hub      *Hub
	cache    Cache
	notifier Notifier
	cdn      AttachmentResolver
	log      *zap.Logger

	// scheduler is set after construction; the responder submits through the
	// pipeline, so the two reference each other.
	scheduler ReplyScheduler

	submu sync.Mutex
	inits map[string]*submissionLock // room/tempID -> in-flight submission lock
}

// submissionLock serializes concurrent retries of one (room, tempID) pair.
// Entries are refcounted and removed once the last holder releases, so the
// map only ever holds in-flight submissions.
type submissionLock struct {
	mu   sync.Mutex
	refs int
}

// NewPipeline wires the message path. cache, notifier and cdn may be nil.
func NewPipeline(messages MessageStore, rooms RoomStore, filter *Filter, presence *Presence, hub *Hub, cache Cache, notifier Notifier, cdn AttachmentResolver, log *zap.Logger) *Pipeline {
	return &Pipeline{
		messages: messages,
		rooms:    rooms,
		filter:   filter,
		presence: presence,
		hub:      hub,
		cache:    cache,
		notifier: notifier,
		cdn:      cdn,
		log:      log.With(zap.String("module", "messages")),
		inits:    make(map[string]*submissionLock),
	}
}

// SetScheduler attaches the automated responder. Must be called before the
// pipeline starts receiving traffic.
func (p *Pipeline) SetScheduler(s ReplyScheduler) { p.scheduler = s }

// lockSubmission acquires the lock serializing submissions for one
// (room, tempID) pair, so concurrent retries of the same client send cannot
// both pass the duplicate check. The returned func releases the lock and
// drops the map entry when no other submission holds it.
func (p *Pipeline) lockSubmission(roomID, tempID string) func() {
	key := roomID + "/" + tempID
	p.submu.Lock()
	l, ok := p.inits[key]
	if !ok {
		l = &submissionLock{}
		p.inits[key] = l
	}
	l.refs++
	p.submu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		p.submu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.inits, key)
		}
		p.submu.Unlock()
	}
}

// Submit is the single entry point for new messages, both user-sent and
// automated. originConnID excludes the submitting connection from the
// new-message broadcast; it may be empty.
//
// A submission suppressed by a block returns a placeholder id shaped like a
// real one. The sender receives a normal-looking result and nothing else
// happens.
func (p *Pipeline) Submit(ctx context.Context, req *SubmitRequest, originConnID string) (*SubmitResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	room, err := p.rooms.GetRoom(ctx, req.RoomID)
	if err != nil {
		return nil, errors.Wrap(err, "loading room for submit")
	}

	if !p.filter.MayDeliverMessage(ctx, req.SenderID, room) {
		metrics.MessagesSuppressed.Inc()
		p.log.Info("message suppressed by block",
			zap.String("room", room.ID), zap.String("sender", req.SenderID))
		return &SubmitResult{ID: fmt.Sprintf("blocked_%d", time.Now().UnixNano()), Status: "sent"}, nil
	}

	if req.TempID != "" {
		unlock := p.lockSubmission(req.RoomID, req.TempID)
		defer unlock()

		existing, err := p.messages.MessageByTempID(ctx, req.RoomID, req.TempID)
		if err == nil && existing != nil {
			metrics.MessagesDeduplicated.Inc()
			return &SubmitResult{ID: existing.ID, Status: existing.Status}, nil
		}
		if err != nil && !errors.Is(err, errors.ErrNotFound) {
			return nil, errors.Wrap(err, "checking duplicate submission")
		}
	}

	m := &Message{
		ID:         uuid.NewString(),
		RoomID:     req.RoomID,
		SenderID:   req.SenderID,
		Body:       req.Body,
		TempID:     req.TempID,
		ReplyTo:    req.ReplyTo,
		Status:     "sent",
		Attachment: req.Attachment,
		CreatedAt:  time.Now().UTC(),
	}
	if m.Attachment != nil && p.cdn != nil {
		m.Attachment.URL = p.cdn.Resolve(m.Attachment.Ref)
	}

	if err := p.messages.CreateMessage(ctx, m); err != nil {
		// The unique (room, tempID) index is the backstop for races the lock
		// cannot see, e.g. after a restart. Resolve to the winner.
		if req.TempID != "" {
			if existing, dupErr := p.messages.MessageByTempID(ctx, req.RoomID, req.TempID); dupErr == nil && existing != nil {
				metrics.MessagesDeduplicated.Inc()
				return &SubmitResult{ID: existing.ID, Status: existing.Status}, nil
			}
		}
		return nil, errors.Persistence(err)
	}
	metrics.MessagesCreated.Inc()

	if m.ReplyTo != "" {
		if err := p.messages.AppendReply(ctx, m.ReplyTo, m.ID); err != nil {
			errors.LogWithError(ctx, p.log, "appending reply link", err,
				zap.String("message", m.ID), zap.String("target", m.ReplyTo))
		}
	}

	p.updateLastMessage(ctx, room.ID, m)
	p.fanOut(ctx, room, m, originConnID)

	if p.scheduler != nil {
		p.scheduler.MessageArrived(room, m)
	}

	return &SubmitResult{ID: m.ID, Status: m.Status}, nil
}

// updateLastMessage records the room's newest message in the store and the
// cache. Failures are logged, never surfaced: the message itself is already
// durable.
func (p *Pipeline) updateLastMessage(ctx context.Context, roomID string, m *Message) {
	if err := p.rooms.SetLastMessage(ctx, roomID, m.ID); err != nil {
		errors.LogWithError(ctx, p.log, "updating room last message", err, zap.String("room", roomID))
	}
	if p.cache != nil {
		if err := p.cache.Set(ctx, "lastmsg", roomID, m, lastMessageTTL); err != nil {
			p.log.Warn("last-message cache write failed", zap.String("room", roomID), zap.Error(err))
		}
	}
}

type lastMessagePayload struct {
	RoomID  string   `json:"roomID"`
	Message *Message `json:"message"`
}

// fanOut delivers the new message to the room and pushes to offline
// participants. The submitting connection is excluded from new-message but
// still receives last-message-updated, matching what a client needs to
// refresh its room list.
func (p *Pipeline) fanOut(ctx context.Context, room *Room, m *Message, originConnID string) {
	p.hub.BroadcastToRoom(room.ID, EvNewMessage, m, originConnID)
	p.hub.BroadcastToRoom(room.ID, EvLastMessageUpdated, lastMessagePayload{RoomID: room.ID, Message: m}, "")

	if p.notifier == nil {
		return
	}
	for _, participant := range room.Participants {
		if participant == m.SenderID || p.presence.Online(participant) {
			continue
		}
		if p.filter.Blocks(ctx, participant, m.SenderID) {
			continue
		}
		p.notifier.MessageCreated(ctx, participant, m)
	}
}

type seenPayload struct {
	RoomID    string    `json:"roomID"`
	MessageID string    `json:"messageID"`
	SeenBy    string    `json:"seenBy"`
	ReadTime  time.Time `json:"readTime"`
}

// MarkSeen records a read receipt and broadcasts it to the room.
func (p *Pipeline) MarkSeen(ctx context.Context, req *SeenRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	readTime := time.Now().UTC()
	if err := p.messages.MarkSeen(ctx, req.MessageID, req.SeenBy, readTime); err != nil {
		return errors.Wrap(err, "marking message seen")
	}
	p.hub.BroadcastToRoom(req.RoomID, EvMessageSeen, seenPayload{
		RoomID: req.RoomID, MessageID: req.MessageID, SeenBy: req.SeenBy, ReadTime: readTime,
	}, "")
	return nil
}

type editPayload struct {
	RoomID    string `json:"roomID"`
	MessageID string `json:"messageID"`
	Body      string `json:"body"`
}

// Edit replaces a message body and broadcasts the new text.
func (p *Pipeline) Edit(ctx context.Context, req *EditRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if err := p.messages.SetBody(ctx, req.MessageID, req.Body); err != nil {
		return errors.Wrap(err, "editing message")
	}
	p.hub.BroadcastToRoom(req.RoomID, EvMessageEdited, editPayload{
		RoomID: req.RoomID, MessageID: req.MessageID, Body: req.Body,
	}, "")
	return nil
}

type deletePayload struct {
	RoomID    string `json:"roomID"`
	MessageID string `json:"messageID"`
	ForAll    bool   `json:"forAll"`
}

// Delete removes a message for everyone, or hides it for one user only. A
// per-user delete is invisible to the rest of the room.
func (p *Pipeline) Delete(ctx context.Context, req *DeleteRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if !req.ForAll {
		if err := p.messages.HideFor(ctx, req.MessageID, req.UserID); err != nil {
			return errors.Wrap(err, "hiding message")
		}
		if c := p.presence.First(req.UserID); c != nil {
			p.hub.Unicast(c, EvMessageDeleted, deletePayload{RoomID: req.RoomID, MessageID: req.MessageID})
			// The hider's room list may have been showing the hidden message.
			if latest, err := p.messages.LatestVisible(ctx, req.RoomID, req.UserID); err == nil {
				p.hub.Unicast(c, EvLastMessageUpdated, lastMessagePayload{RoomID: req.RoomID, Message: latest})
			}
		}
		return nil
	}

	if err := p.messages.DeleteMessage(ctx, req.MessageID); err != nil {
		return errors.Wrap(err, "deleting message")
	}
	p.hub.BroadcastToRoom(req.RoomID, EvMessageDeleted, deletePayload{
		RoomID: req.RoomID, MessageID: req.MessageID, ForAll: true,
	}, "")
	p.repairLastMessage(ctx, req.RoomID, req.MessageID)
	return nil
}

// repairLastMessage re-points the room's last message when the current one
// was just removed.
func (p *Pipeline) repairLastMessage(ctx context.Context, roomID, deletedID string) {
	room, err := p.rooms.GetRoom(ctx, roomID)
	if err != nil || room.LastMessageID != deletedID {
		return
	}
	remaining, err := p.messages.LastMessages(ctx, roomID, 1)
	if err != nil || len(remaining) == 0 {
		return
	}
	p.updateLastMessage(ctx, roomID, remaining[0])
	p.hub.BroadcastToRoom(roomID, EvLastMessageUpdated, lastMessagePayload{RoomID: roomID, Message: remaining[0]}, "")
}

type pinPayload struct {
	RoomID    string     `json:"roomID"`
	MessageID string     `json:"messageID"`
	PinnedAt  *time.Time `json:"pinnedAt"`
}

// Pin toggles a message's pinned state and broadcasts the new timestamp; nil
// means unpinned.
func (p *Pipeline) Pin(ctx context.Context, req *PinRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	m, err := p.messages.MessageByID(ctx, req.MessageID)
	if err != nil {
		return errors.Wrap(err, "loading message for pin")
	}
	var pinnedAt *time.Time
	if m.PinnedAt == nil {
		now := time.Now().UTC()
		pinnedAt = &now
	}
	if err := p.messages.SetPinned(ctx, req.MessageID, pinnedAt); err != nil {
		return errors.Wrap(err, "pinning message")
	}
	p.hub.BroadcastToRoom(req.RoomID, EvMessagePinned, pinPayload{
		RoomID: req.RoomID, MessageID: req.MessageID, PinnedAt: pinnedAt,
	}, "")
	return nil
}
