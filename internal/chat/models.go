package chat

import "time"

// Room types.
const (
	RoomPrivate = "private"
	RoomGroup   = "group"
	RoomChannel = "channel"
)

// User statuses.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// User is the persistence view of a participant.
type User struct {
	ID        string
	Name      string
	LastName  string
	Username  string
	Avatar    string
	Biography string
	Status    string
	Blocked   []string
}

// Room holds the membership and last-message state needed for fan-out. The
// full record is owned by the persistence collaborator.
type Room struct {
	ID            string
	Name          string
	Type          string
	Participants  []string
	Admins        []string
	LastMessageID string
}

// Attachment is a reference to an uploaded file, resolved to a URL through
// the CDN collaborator before broadcast.
type Attachment struct {
	Ref      string `json:"ref"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
	URL      string `json:"url,omitempty"`
}

// Message is a persisted chat message. TempID is the client-supplied
// idempotency token: at most one message per (room, tempID).
type Message struct {
	ID         string      `json:"id"`
	RoomID     string      `json:"roomID"`
	SenderID   string      `json:"senderID"`
	Body       string      `json:"body,omitempty"`
	TempID     string      `json:"tempID,omitempty"`
	SeenBy     []string    `json:"seenBy,omitempty"`
	HideFor    []string    `json:"-"`
	ReplyTo    string      `json:"replyTo,omitempty"`
	Replies    []string    `json:"replies,omitempty"`
	PinnedAt   *time.Time  `json:"pinnedAt,omitempty"`
	Status     string      `json:"status"`
	Attachment *Attachment `json:"attachment,omitempty"`
	IsEdited   bool        `json:"isEdited,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// Call media types.
const (
	MediaVoice = "voice"
	MediaVideo = "video"
)

// Call directions. One record exists per observing party: the caller's is
// outgoing, the receiver's is incoming; both reference the same logical call
// but carry independent ids.
const (
	DirectionOutgoing = "outgoing"
	DirectionIncoming = "incoming"
)

// CallStatus is the per-leg state machine:
// initiated -> ringing -> {accepted} -> ended, with missed, rejected and
// failed as alternative terminals.
type CallStatus string

const (
	CallInitiated CallStatus = "initiated"
	CallRinging   CallStatus = "ringing"
	CallAccepted  CallStatus = "accepted"
	CallRejected  CallStatus = "rejected"
	CallMissed    CallStatus = "missed"
	CallEnded     CallStatus = "ended"
	CallFailed    CallStatus = "failed"
)

// Terminal reports whether a status permits no further transitions.
func (s CallStatus) Terminal() bool {
	switch s {
	case CallRejected, CallMissed, CallEnded, CallFailed:
		return true
	default:
		return false
	}
}

// CallRecord is one party's leg of a call.
type CallRecord struct {
	ID         string     `json:"id"`
	CallerID   string     `json:"callerID"`
	ReceiverID string     `json:"receiverID"`
	RoomID     string     `json:"roomID"`
	Media      string     `json:"media"`
	Direction  string     `json:"direction"`
	Status     CallStatus `json:"status"`
	StartTime  time.Time  `json:"startTime"`
	EndTime    *time.Time `json:"endTime,omitempty"`
	Duration   int        `json:"duration"`
}

// PresenceInfo is one row of the presence list sent to viewers.
type PresenceInfo struct {
	UserID string `json:"userID"`
	Status string `json:"status"`
}

// ParticipantView is the viewer-facing projection of a room participant.
// When the participant has blocked the viewer the profile fields are
// redacted and the status forced offline, so the viewer cannot tell a block
// from plain absence.
type ParticipantView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	LastName  string `json:"lastName,omitempty"`
	Username  string `json:"username"`
	Avatar    string `json:"avatar,omitempty"`
	Biography string `json:"biography,omitempty"`
	Status    string `json:"status"`
}
