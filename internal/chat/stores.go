package chat

import (
	"context"
	"time"
)

// The core consumes persistence through these narrow interfaces. Loads return
// pkg/errors.ErrNotFound for missing rows and ErrPersistenceFailure wraps for
// store trouble; the core never retries.

// UserStore accesses user records and the block relation stored on them.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*User, error)
	SetUserStatus(ctx context.Context, id, status string) error
	BlockedIDs(ctx context.Context, userID string) ([]string, error)
	BlockUser(ctx context.Context, userID, targetID string) ([]string, error)
	UnblockUser(ctx context.Context, userID, targetID string) ([]string, error)
	UsersByIDs(ctx context.Context, ids []string) ([]*User, error)
}

// RoomStore accesses room membership and the last-message pointer.
type RoomStore interface {
	GetRoom(ctx context.Context, id string) (*Room, error)
	AddParticipant(ctx context.Context, roomID, userID string) error
	SetLastMessage(ctx context.Context, roomID, messageID string) error
}

// MessageStore persists messages and their per-user soft state.
type MessageStore interface {
	CreateMessage(ctx context.Context, m *Message) error
	MessageByTempID(ctx context.Context, roomID, tempID string) (*Message, error)
	MessageByID(ctx context.Context, id string) (*Message, error)
	AppendReply(ctx context.Context, targetID, replyID string) error
	MarkSeen(ctx context.Context, id, userID string, readTime time.Time) error
	SetBody(ctx context.Context, id, body string) error
	HideFor(ctx context.Context, id, userID string) error
	DeleteMessage(ctx context.Context, id string) error
	SetPinned(ctx context.Context, id string, pinnedAt *time.Time) error
	LastMessages(ctx context.Context, roomID string, n int) ([]*Message, error)
	LatestVisible(ctx context.Context, roomID, viewerID string) (*Message, error)
}

// CallStore persists call legs. Advance must be atomic with respect to
// concurrent transitions on the same record: it only applies when the current
// status is non-terminal, and reports whether it did.
type CallStore interface {
	CreateCall(ctx context.Context, c *CallRecord) error
	CallByID(ctx context.Context, id string) (*CallRecord, error)
	Advance(ctx context.Context, id string, to CallStatus, endTime *time.Time, duration int) (bool, error)
	// LatestCallerLeg finds the most recent leg for the room created by
	// caller whose status is one of the given set.
	LatestCallerLeg(ctx context.Context, roomID, callerID string, in []CallStatus) (*CallRecord, error)
	// CloseRoomLegs advances every leg in the room whose status is in the
	// given set, returning how many were advanced.
	CloseRoomLegs(ctx context.Context, roomID string, from []CallStatus, to CallStatus, endTime time.Time, duration int) (int, error)
	CallsForUser(ctx context.Context, userID string, limit, offset int) ([]*CallRecord, error)
	CallsForRoom(ctx context.Context, roomID string, limit int) ([]*CallRecord, error)
	// FailStale marks non-terminal legs older than the cutoff as failed.
	FailStale(ctx context.Context, olderThan time.Time) (int, error)
}
