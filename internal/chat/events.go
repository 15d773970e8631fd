package chat

import (
	jsonraw "encoding/json"

	"github.com/hsg8-commits/ripple/pkg/errors"
)

// Inbound event types.
const (
	EvRegisterUser    = "register-user"
	EvJoinRoom        = "join-room"
	EvSendMessage     = "send-message"
	EvSeenMessage     = "seen-message"
	EvEditMessage     = "edit-message"
	EvDeleteMessage   = "delete-message"
	EvPinMessage      = "pin-message"
	EvSetTyping       = "set-typing"
	EvClearTyping     = "clear-typing"
	EvBlockUser       = "block-user"
	EvUnblockUser     = "unblock-user"
	EvBlockedUsers    = "get-blocked-users"
	EvCallInitiate    = "call:initiate"
	EvCallAccept      = "call:accept"
	EvCallReject      = "call:reject"
	EvCallCancel      = "call:cancel"
	EvCallEnd         = "call:end"
	EvCallICE         = "call:ice-candidate"
	EvCallHistory     = "call:history"
	EvCallRoomHistory = "call:room-history"
)

// Outbound event types.
const (
	EvAck                = "ack"
	EvNewMessage         = "new-message"
	EvLastMessageUpdated = "last-message-updated"
	EvMessageSeen        = "message-seen"
	EvMessageEdited      = "message-edited"
	EvMessageDeleted     = "message-deleted"
	EvMessagePinned      = "message-pinned"
	EvTyping             = "typing"
	EvStopTyping         = "stop-typing"
	EvPresenceList       = "presence-list"
	EvIncomingCall       = "incoming-call"
	EvCallAcknowledged   = "call-acknowledged"
	EvPeerOffline        = "peer-offline"
	EvCallAccepted       = "call-accepted"
	EvCallRejected       = "call-rejected"
	EvCallCancelled      = "call-cancelled"
	EvCallEnded          = "call-ended"
	EvICECandidate       = "ice-candidate"
	EvBatch              = "batch"
)

// Frame is the wire envelope for both directions. AckID correlates a request
// with its acknowledgment.
type Frame struct {
	Type    string             `json:"type"`
	AckID   string             `json:"ackId,omitempty"`
	Payload jsonraw.RawMessage `json:"payload,omitempty"`
}

// RegisterUserRequest binds a user identity to the connection.
type RegisterUserRequest struct {
	UserID string `json:"userID"`
}

func (r *RegisterUserRequest) Validate() error {
	if r.UserID == "" {
		return errors.Wrap(errors.ErrInvalidInput, "register-user: missing userID")
	}
	return nil
}

// JoinRoomRequest adds the connection (and optionally the user) to a room.
type JoinRoomRequest struct {
	RoomID string `json:"roomID"`
	UserID string `json:"userID"`
}

func (r *JoinRoomRequest) Validate() error {
	if r.RoomID == "" {
		return errors.Wrap(errors.ErrInvalidInput, "join-room: missing roomID")
	}
	return nil
}

// SubmitRequest is the message pipeline input.
type SubmitRequest struct {
	RoomID     string      `json:"roomID"`
	SenderID   string      `json:"senderID"`
	Body       string      `json:"body,omitempty"`
	TempID     string      `json:"tempID"`
	ReplyTo    string      `json:"replyTo,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

func (r *SubmitRequest) Validate() error {
	if r.RoomID == "" || r.SenderID == "" {
		return errors.Wrap(errors.ErrInvalidInput, "send-message: missing roomID or senderID")
	}
	return nil
}

// SubmitResult is echoed to the submitter. The id may be a placeholder when
// delivery was suppressed; the submitter cannot tell.
type SubmitResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// SeenRequest marks a message seen by a user.
type SeenRequest struct {
	RoomID    string `json:"roomID"`
	MessageID string `json:"messageID"`
	SeenBy    string `json:"seenBy"`
}

func (r *SeenRequest) Validate() error {
	if r.RoomID == "" || r.MessageID == "" || r.SeenBy == "" {
		return errors.Wrap(errors.ErrInvalidInput, "seen-message: missing roomID, messageID or seenBy")
	}
	return nil
}

// EditRequest replaces a message body.
type EditRequest struct {
	RoomID    string `json:"roomID"`
	MessageID string `json:"messageID"`
	Body      string `json:"body"`
}

func (r *EditRequest) Validate() error {
	if r.RoomID == "" || r.MessageID == "" {
		return errors.Wrap(errors.ErrInvalidInput, "edit-message: missing roomID or messageID")
	}
	return nil
}

// DeleteRequest removes a message for everyone or hides it for the caller.
type DeleteRequest struct {
	RoomID    string `json:"roomID"`
	MessageID string `json:"messageID"`
	UserID    string `json:"userID"`
	ForAll    bool   `json:"forAll"`
}

func (r *DeleteRequest) Validate() error {
	if r.RoomID == "" || r.MessageID == "" {
		return errors.Wrap(errors.ErrInvalidInput, "delete-message: missing roomID or messageID")
	}
	if !r.ForAll && r.UserID == "" {
		return errors.Wrap(errors.ErrInvalidInput, "delete-message: missing userID for per-user delete")
	}
	return nil
}

// PinRequest toggles a message's pin timestamp.
type PinRequest struct {
	RoomID    string `json:"roomID"`
	MessageID string `json:"messageID"`
}

func (r *PinRequest) Validate() error {
	if r.RoomID == "" || r.MessageID == "" {
		return errors.Wrap(errors.ErrInvalidInput, "pin-message: missing roomID or messageID")
	}
	return nil
}

// TypingRequest starts or stops the sender's typing indicator in a room.
type TypingRequest struct {
	RoomID     string `json:"roomID"`
	SenderID   string `json:"senderID"`
	SenderName string `json:"senderName"`
}

func (r *TypingRequest) Validate() error {
	if r.RoomID == "" || r.SenderID == "" || r.SenderName == "" {
		return errors.Wrap(errors.ErrInvalidInput, "typing: missing roomID, senderID or senderName")
	}
	return nil
}

// BlockRequest adds or removes a block edge.
type BlockRequest struct {
	UserID   string `json:"userID"`
	TargetID string `json:"targetID"`
}

func (r *BlockRequest) Validate() error {
	if r.UserID == "" || r.TargetID == "" {
		return errors.Wrap(errors.ErrInvalidInput, "block: missing userID or targetID")
	}
	return nil
}

// InitiateCallRequest starts a call toward a receiver. Offer carries the SDP
// payload opaquely; the core never inspects it.
type InitiateCallRequest struct {
	CallerID   string             `json:"callerID"`
	ReceiverID string             `json:"receiverID"`
	RoomID     string             `json:"roomID"`
	Media      string             `json:"media"`
	Offer      jsonraw.RawMessage `json:"offer"`
}

func (r *InitiateCallRequest) Validate() error {
	if r.CallerID == "" || r.ReceiverID == "" || r.RoomID == "" {
		return errors.Wrap(errors.ErrInvalidInput, "call:initiate: missing callerID, receiverID or roomID")
	}
	if r.Media != MediaVoice && r.Media != MediaVideo {
		return errors.Wrap(errors.ErrInvalidInput, "call:initiate: media must be voice or video")
	}
	if len(r.Offer) == 0 {
		return errors.Wrap(errors.ErrInvalidInput, "call:initiate: missing offer")
	}
	return nil
}

// AnswerCallRequest accepts or rejects an incoming call leg.
type AnswerCallRequest struct {
	CallID     string             `json:"callID"`
	CallerID   string             `json:"callerID"`
	ReceiverID string             `json:"receiverID"`
	RoomID     string             `json:"roomID"`
	Answer     jsonraw.RawMessage `json:"answer,omitempty"`
}

func (r *AnswerCallRequest) Validate() error {
	if r.RoomID == "" || r.CallerID == "" {
		return errors.Wrap(errors.ErrInvalidInput, "call answer: missing roomID or callerID")
	}
	return nil
}

// EndCallRequest terminates an established call.
type EndCallRequest struct {
	CallID   string `json:"callID"`
	RoomID   string `json:"roomID"`
	FromID   string `json:"fromID"`
	PeerID   string `json:"peerID"`
	Duration int    `json:"duration"`
}

func (r *EndCallRequest) Validate() error {
	if r.RoomID == "" {
		return errors.Wrap(errors.ErrInvalidInput, "call:end: missing roomID")
	}
	return nil
}

// ICERequest relays a candidate to the peer. No state is touched.
type ICERequest struct {
	TargetID  string             `json:"targetID"`
	RoomID    string             `json:"roomID"`
	Candidate jsonraw.RawMessage `json:"candidate"`
}

func (r *ICERequest) Validate() error {
	if r.TargetID == "" || len(r.Candidate) == 0 {
		return errors.Wrap(errors.ErrInvalidInput, "call:ice-candidate: missing targetID or candidate")
	}
	return nil
}

// HistoryRequest fetches a user's call history page.
type HistoryRequest struct {
	UserID string `json:"userID"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

func (r *HistoryRequest) Validate() error {
	if r.UserID == "" {
		return errors.Wrap(errors.ErrInvalidInput, "call:history: missing userID")
	}
	return nil
}

// RoomHistoryRequest fetches a room's recent calls.
type RoomHistoryRequest struct {
	RoomID string `json:"roomID"`
	Limit  int    `json:"limit"`
}

func (r *RoomHistoryRequest) Validate() error {
	if r.RoomID == "" {
		return errors.Wrap(errors.ErrInvalidInput, "call:room-history: missing roomID")
	}
	return nil
}
