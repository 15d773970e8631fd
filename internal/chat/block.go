package chat

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hsg8-commits/ripple/pkg/cache"
	"github.com/hsg8-commits/ripple/pkg/errors"
)

const blockCacheTTL = 30 * time.Second

// Cache is the subset of pkg/cache the core depends on. Nil-able: with
// no cache every lookup goes to the store.
type Cache interface {
	Get(ctx context.Context, entity, attribute string, value interface{}) error
	Set(ctx context.Context, entity, attribute string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, entity, attribute string) error
}

// Filter answers "may X's event reach Y" for messages, typing, presence
// listings and profile visibility. Two redaction strategies are used: events
// from a blocker toward the blocked are silently dropped, while the blocked
// party's view of the blocker is cosmetically redacted. Both deny the blocked
// party any detectable signal.
type Filter struct {
	users UserStore
	cache Cache
	log   *zap.Logger
}

// NewFilter creates a block filter. cache may be nil.
func NewFilter(users UserStore, c Cache, log *zap.Logger) *Filter {
	return &Filter{users: users, cache: c, log: log.With(zap.String("module", "block"))}
}

// blockedIDs loads a user's block list, cache first.
func (f *Filter) blockedIDs(ctx context.Context, userID string) ([]string, error) {
	if f.cache != nil {
		var ids []string
		err := f.cache.Get(ctx, "blocked", userID, &ids)
		if err == nil {
			return ids, nil
		}
		if err != cache.ErrMiss {
			f.log.Warn("block cache read failed", zap.String("user", userID), zap.Error(err))
		}
	}
	ids, err := f.users.BlockedIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if f.cache != nil {
		if err := f.cache.Set(ctx, "blocked", userID, ids, blockCacheTTL); err != nil {
			f.log.Warn("block cache write failed", zap.String("user", userID), zap.Error(err))
		}
	}
	return ids, nil
}

// Blocks reports whether a has blocked b. Store trouble degrades to false:
// delivery is never suppressed because the block list was unreadable.
func (f *Filter) Blocks(ctx context.Context, a, b string) bool {
	ids, err := f.blockedIDs(ctx, a)
	if err != nil {
		f.log.Warn("block lookup failed, allowing delivery", zap.String("user", a), zap.Error(err))
		return false
	}
	for _, id := range ids {
		if id == b {
			return true
		}
	}
	return false
}

// MayDeliverMessage decides whether a message from sender may be fanned out
// in the room. Only private rooms suppress: when the sender blocks the other
// participant the message is dropped silently and the sender still gets a
// success acknowledgment.
func (f *Filter) MayDeliverMessage(ctx context.Context, sender string, room *Room) bool {
	if room.Type != RoomPrivate {
		return true
	}
	other := otherParticipant(room, sender)
	if other == "" {
		return true
	}
	return !f.Blocks(ctx, sender, other)
}

// MayShowTyping applies the same suppression rule to ephemeral typing
// events, checked per recipient.
func (f *Filter) MayShowTyping(ctx context.Context, sender, recipient string) bool {
	return !f.Blocks(ctx, sender, recipient)
}

// FilterOnlineList removes from the candidates every user the viewer has
// blocked, plus the viewer's own entry.
func (f *Filter) FilterOnlineList(ctx context.Context, viewer string, candidates []PresenceInfo) []PresenceInfo {
	blocked, err := f.blockedIDs(ctx, viewer)
	if err != nil {
		f.log.Warn("presence filter fell back to unfiltered-minus-self", zap.String("viewer", viewer), zap.Error(err))
		blocked = nil
	}
	isBlocked := make(map[string]struct{}, len(blocked))
	for _, id := range blocked {
		isBlocked[id] = struct{}{}
	}
	out := make([]PresenceInfo, 0, len(candidates))
	for _, c := range candidates {
		if c.UserID == viewer {
			continue
		}
		if _, ok := isBlocked[c.UserID]; ok {
			continue
		}
		out = append(out, c)
	}
	return out
}

// SanitizeParticipant projects a participant for a viewer. When the
// participant has blocked the viewer the avatar and biography are cleared
// and the status forced offline, instead of removing the row, so the viewer
// only sees someone who "looks" offline.
func (f *Filter) SanitizeParticipant(ctx context.Context, viewer string, participant *User) ParticipantView {
	view := ParticipantView{
		ID:        participant.ID,
		Name:      participant.Name,
		LastName:  participant.LastName,
		Username:  participant.Username,
		Avatar:    participant.Avatar,
		Biography: participant.Biography,
		Status:    participant.Status,
	}
	if f.Blocks(ctx, participant.ID, viewer) {
		view.Avatar = ""
		view.Biography = ""
		view.Status = StatusOffline
	}
	return view
}

// Block adds a block edge and invalidates the cached list.
func (f *Filter) Block(ctx context.Context, userID, targetID string) ([]string, error) {
	ids, err := f.users.BlockUser(ctx, userID, targetID)
	if err != nil {
		return nil, errors.Wrap(err, "blocking user")
	}
	f.invalidate(ctx, userID)
	return ids, nil
}

// Unblock removes a block edge and invalidates the cached list.
func (f *Filter) Unblock(ctx context.Context, userID, targetID string) ([]string, error) {
	ids, err := f.users.UnblockUser(ctx, userID, targetID)
	if err != nil {
		return nil, errors.Wrap(err, "unblocking user")
	}
	f.invalidate(ctx, userID)
	return ids, nil
}

func (f *Filter) invalidate(ctx context.Context, userID string) {
	if f.cache == nil {
		return
	}
	if err := f.cache.Delete(ctx, "blocked", userID); err != nil {
		f.log.Warn("block cache invalidation failed", zap.String("user", userID), zap.Error(err))
	}
}

// otherParticipant resolves the peer in a private room.
func otherParticipant(room *Room, userID string) string {
	for _, p := range room.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}
