package chat

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type typingEntry struct {
	name  string
	since time.Time
}

// Typing tracks who is currently typing per room. Entries are cleared
// explicitly by clear-typing; a client that disconnects mid-typing leaves a
// stale entry until the janitor sweeps it.
type Typing struct {
	mu     sync.Mutex
	byRoom map[string]map[string]typingEntry // roomID -> senderID -> entry

	presence *Presence
	hub      *Hub
	rooms    RoomStore
	filter   *Filter
	log      *zap.Logger
}

// NewTyping creates a typing broadcaster.
func NewTyping(presence *Presence, hub *Hub, rooms RoomStore, filter *Filter, log *zap.Logger) *Typing {
	return &Typing{
		byRoom:   make(map[string]map[string]typingEntry),
		presence: presence,
		hub:      hub,
		rooms:    rooms,
		filter:   filter,
		log:      log.With(zap.String("module", "typing")),
	}
}

type typingPayload struct {
	RoomID     string `json:"roomID"`
	SenderID   string `json:"senderID"`
	SenderName string `json:"senderName"`
}

// Set marks the sender typing and notifies allowed recipients. Already-typing
// senders produce no further events.
func (t *Typing) Set(ctx context.Context, req *TypingRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	t.mu.Lock()
	room := t.byRoom[req.RoomID]
	if room == nil {
		room = make(map[string]typingEntry)
		t.byRoom[req.RoomID] = room
	}
	if _, already := room[req.SenderID]; already {
		t.mu.Unlock()
		return nil
	}
	room[req.SenderID] = typingEntry{name: req.SenderName, since: time.Now()}
	t.mu.Unlock()

	t.notify(ctx, req, EvTyping)
	return nil
}

// Clear removes the sender's typing mark and notifies the same recipients.
func (t *Typing) Clear(ctx context.Context, req *TypingRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	t.mu.Lock()
	if room := t.byRoom[req.RoomID]; room != nil {
		delete(room, req.SenderID)
		if len(room) == 0 {
			delete(t.byRoom, req.RoomID)
		}
	}
	t.mu.Unlock()

	t.notify(ctx, req, EvStopTyping)
	return nil
}

// notify routes the typing event. Private rooms are checked per participant
// through the block filter; groups and channels broadcast to the whole room.
func (t *Typing) notify(ctx context.Context, req *TypingRequest, event string) {
	payload := typingPayload{RoomID: req.RoomID, SenderID: req.SenderID, SenderName: req.SenderName}

	room, err := t.rooms.GetRoom(ctx, req.RoomID)
	if err != nil {
		t.log.Warn("typing room lookup failed, broadcasting unfiltered",
			zap.String("room", req.RoomID), zap.Error(err))
		t.hub.BroadcastToRoom(req.RoomID, event, payload, "")
		return
	}

	if room.Type != RoomPrivate {
		t.hub.BroadcastToRoom(req.RoomID, event, payload, "")
		return
	}

	for _, participant := range room.Participants {
		if participant == req.SenderID {
			continue
		}
		if !t.filter.MayShowTyping(ctx, req.SenderID, participant) {
			continue
		}
		for _, c := range t.presence.Lookup(participant) {
			t.hub.Unicast(c, event, payload)
		}
	}
}

// IsTyping reports whether the sender is currently marked typing in the room.
func (t *Typing) IsTyping(roomID, senderID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	room := t.byRoom[roomID]
	if room == nil {
		return false
	}
	_, ok := room[senderID]
	return ok
}

// SweepStale drops entries older than maxAge and returns how many were
// removed. Called by the janitor; the original design had no expiry at all.
func (t *Typing) SweepStale(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for roomID, room := range t.byRoom {
		for senderID, e := range room {
			if e.since.Before(cutoff) {
				delete(room, senderID)
				removed++
			}
		}
		if len(room) == 0 {
			delete(t.byRoom, roomID)
		}
	}
	return removed
}
