package chat

import (
	"context"
	jsonraw "encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hsg8-commits/ripple/internal/metrics"
	"github.com/hsg8-commits/ripple/pkg/errors"
)

// Signaling drives call setup and teardown. Every logical call is stored as
// two legs, one per party, so each side keeps its own direction and outcome
// in history. SDP offers, answers and ICE candidates pass through opaquely.
type Signaling struct {
	calls    CallStore
	filter   *Filter
	presence *Presence
	hub      *Hub
	pipeline *Pipeline
	log      *zap.Logger
}

// NewSignaling wires the call path.
func NewSignaling(calls CallStore, filter *Filter, presence *Presence, hub *Hub, pipeline *Pipeline, log *zap.Logger) *Signaling {
	return &Signaling{
		calls:    calls,
		filter:   filter,
		presence: presence,
		hub:      hub,
		pipeline: pipeline,
		log:      log.With(zap.String("module", "calls")),
	}
}

var nonTerminalStatuses = []CallStatus{CallInitiated, CallRinging, CallAccepted}

type incomingCallPayload struct {
	CallID   string             `json:"callID"`
	CallerID string             `json:"callerID"`
	RoomID   string             `json:"roomID"`
	Media    string             `json:"media"`
	Offer    jsonraw.RawMessage `json:"offer"`
}

type callAckPayload struct {
	CallID string     `json:"callID"`
	RoomID string     `json:"roomID"`
	Status CallStatus `json:"status"`
}

type peerOfflinePayload struct {
	CallID string `json:"callID"`
	RoomID string `json:"roomID"`
	PeerID string `json:"peerID"`
}

// Initiate creates the caller's leg and rings the receiver. The receiver's
// leg exists only once the receiver is actually being rung; an unreachable
// or blocking receiver leaves a single missed record, and the caller sees
// peer-offline either way and cannot distinguish the two.
func (s *Signaling) Initiate(ctx context.Context, req *InitiateCallRequest) (*CallRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	outgoing := &CallRecord{
		ID:         uuid.NewString(),
		CallerID:   req.CallerID,
		ReceiverID: req.ReceiverID,
		RoomID:     req.RoomID,
		Media:      req.Media,
		Direction:  DirectionOutgoing,
		Status:     CallInitiated,
		StartTime:  now,
	}
	if err := s.calls.CreateCall(ctx, outgoing); err != nil {
		return nil, errors.Persistence(err)
	}

	reachable := s.presence.Online(req.ReceiverID) && !s.filter.Blocks(ctx, req.ReceiverID, req.CallerID)
	if !reachable {
		endTime := time.Now().UTC()
		s.advance(ctx, outgoing.ID, CallMissed, &endTime, 0)
		// The missed-call summary goes through the pipeline, which also
		// pushes to the offline receiver.
		s.postOutcome(ctx, req.RoomID, req.CallerID, outgoing.ID, req.Media, CallMissed, 0)
		s.unicastToUser(req.CallerID, EvPeerOffline, peerOfflinePayload{
			CallID: outgoing.ID, RoomID: req.RoomID, PeerID: req.ReceiverID,
		})
		outgoing.Status = CallMissed
		return outgoing, nil
	}

	incoming := &CallRecord{
		ID:         uuid.NewString(),
		CallerID:   req.CallerID,
		ReceiverID: req.ReceiverID,
		RoomID:     req.RoomID,
		Media:      req.Media,
		Direction:  DirectionIncoming,
		Status:     CallRinging,
		StartTime:  now,
	}
	if err := s.calls.CreateCall(ctx, incoming); err != nil {
		return nil, errors.Persistence(err)
	}
	s.advance(ctx, outgoing.ID, CallRinging, nil, 0)

	s.unicastToUser(req.ReceiverID, EvIncomingCall, incomingCallPayload{
		CallID: incoming.ID, CallerID: req.CallerID, RoomID: req.RoomID, Media: req.Media, Offer: req.Offer,
	})
	s.unicastToUser(req.CallerID, EvCallAcknowledged, callAckPayload{
		CallID: outgoing.ID, RoomID: req.RoomID, Status: CallRinging,
	})
	outgoing.Status = CallRinging
	return outgoing, nil
}

type answerPayload struct {
	CallID string             `json:"callID"`
	RoomID string             `json:"roomID"`
	FromID string             `json:"fromID"`
	Answer jsonraw.RawMessage `json:"answer,omitempty"`
}

// Accept moves both legs to accepted and relays the SDP answer to the caller.
// Accepting an already-terminal call is a no-op.
func (s *Signaling) Accept(ctx context.Context, req *AnswerCallRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if req.CallID != "" {
		if ok, err := s.calls.Advance(ctx, req.CallID, CallAccepted, nil, 0); err != nil {
			return errors.Wrap(err, "accepting call leg")
		} else if !ok {
			return nil
		}
	}
	s.advanceCallerLeg(ctx, req.RoomID, req.CallerID, CallAccepted, nil, 0)
	s.unicastToUser(req.CallerID, EvCallAccepted, answerPayload{
		CallID: req.CallID, RoomID: req.RoomID, FromID: req.ReceiverID, Answer: req.Answer,
	})
	return nil
}

// Reject terminates both legs as rejected and tells the caller.
func (s *Signaling) Reject(ctx context.Context, req *AnswerCallRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if req.CallID != "" {
		if ok, err := s.calls.Advance(ctx, req.CallID, CallRejected, &now, 0); err != nil {
			return errors.Wrap(err, "rejecting call leg")
		} else if !ok {
			return nil
		}
		metrics.CallsTerminal.WithLabelValues(string(CallRejected)).Inc()
	}
	caller := s.advanceCallerLeg(ctx, req.RoomID, req.CallerID, CallRejected, &now, 0)
	s.unicastToUser(req.CallerID, EvCallRejected, answerPayload{
		CallID: req.CallID, RoomID: req.RoomID, FromID: req.ReceiverID,
	})
	if caller != nil {
		media := caller.Media
		s.postOutcome(ctx, req.RoomID, req.CallerID, caller.ID, media, CallRejected, 0)
	}
	return nil
}

// Cancel is the caller hanging up before an answer. Every live leg in the
// room becomes missed, the receiver's ringing UI is dismissed, and a
// cancelled-call summary lands in the room.
func (s *Signaling) Cancel(ctx context.Context, req *EndCallRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	var media string
	if req.CallID != "" {
		if leg, err := s.calls.CallByID(ctx, req.CallID); err == nil {
			media = leg.Media
		}
		if ok, err := s.calls.Advance(ctx, req.CallID, CallMissed, &now, 0); err != nil {
			return errors.Wrap(err, "cancelling call leg")
		} else if !ok {
			return nil
		}
		metrics.CallsTerminal.WithLabelValues(string(CallMissed)).Inc()
	}
	if n, err := s.calls.CloseRoomLegs(ctx, req.RoomID, []CallStatus{CallInitiated, CallRinging}, CallMissed, now, 0); err != nil {
		errors.LogWithError(ctx, s.log, "closing receiver leg on cancel", err, zap.String("room", req.RoomID))
	} else if n > 0 {
		metrics.CallsTerminal.WithLabelValues(string(CallMissed)).Add(float64(n))
	}
	if req.FromID != "" && req.CallID != "" {
		s.postOutcome(ctx, req.RoomID, req.FromID, req.CallID, media, callOutcomeCancelled, 0)
	}
	if req.PeerID != "" {
		s.unicastToUser(req.PeerID, EvCallCancelled, answerPayload{
			CallID: req.CallID, RoomID: req.RoomID, FromID: req.FromID,
		})
	}
	return nil
}

// End terminates an established call from either side. Every remaining
// non-terminal leg in the room is closed with the reported duration, and a
// call summary message is posted to the room.
func (s *Signaling) End(ctx context.Context, req *EndCallRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()

	var media string
	if req.CallID != "" {
		if leg, err := s.calls.CallByID(ctx, req.CallID); err == nil {
			media = leg.Media
		}
	}

	n, err := s.calls.CloseRoomLegs(ctx, req.RoomID, nonTerminalStatuses, CallEnded, now, req.Duration)
	if err != nil {
		return errors.Wrap(err, "ending call legs")
	}
	if n == 0 {
		return nil
	}
	metrics.CallsTerminal.WithLabelValues(string(CallEnded)).Add(float64(n))

	if req.PeerID != "" {
		s.unicastToUser(req.PeerID, EvCallEnded, answerPayload{
			CallID: req.CallID, RoomID: req.RoomID, FromID: req.FromID,
		})
	}
	if req.FromID != "" {
		s.postOutcome(ctx, req.RoomID, req.FromID, req.CallID, media, CallEnded, req.Duration)
	}
	return nil
}

type icePayload struct {
	RoomID    string             `json:"roomID"`
	Candidate jsonraw.RawMessage `json:"candidate"`
}

// RelayICE forwards a candidate to the target's connections. No call state
// is touched; an offline target drops the candidate silently.
func (s *Signaling) RelayICE(ctx context.Context, req *ICERequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	conns := s.presence.Lookup(req.TargetID)
	if len(conns) == 0 {
		s.log.Debug("ice candidate target unreachable",
			zap.String("target", req.TargetID), zap.String("room", req.RoomID))
		return nil
	}
	for _, c := range conns {
		s.hub.Unicast(c, EvICECandidate, icePayload{RoomID: req.RoomID, Candidate: req.Candidate})
	}
	return nil
}

// History returns the user's call legs, newest first.
func (s *Signaling) History(ctx context.Context, req *HistoryRequest) ([]*CallRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	records, err := s.calls.CallsForUser(ctx, req.UserID, limit, req.Offset)
	if err != nil {
		return nil, errors.Wrap(err, "loading call history")
	}
	return records, nil
}

// RoomHistory returns a room's recent call legs.
func (s *Signaling) RoomHistory(ctx context.Context, req *RoomHistoryRequest) ([]*CallRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	records, err := s.calls.CallsForRoom(ctx, req.RoomID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "loading room call history")
	}
	return records, nil
}

// advance is the best-effort form used where a failed transition should not
// abort the caller-facing flow.
func (s *Signaling) advance(ctx context.Context, id string, to CallStatus, endTime *time.Time, duration int) {
	ok, err := s.calls.Advance(ctx, id, to, endTime, duration)
	if err != nil {
		errors.LogWithError(ctx, s.log, "advancing call leg", err,
			zap.String("call", id), zap.String("to", string(to)))
		return
	}
	if ok && to.Terminal() {
		metrics.CallsTerminal.WithLabelValues(string(to)).Inc()
	}
}

// advanceCallerLeg finds the caller's newest live leg in the room and moves
// it. The two legs share no foreign key, so the pairing is room plus caller
// plus liveness.
func (s *Signaling) advanceCallerLeg(ctx context.Context, roomID, callerID string, to CallStatus, endTime *time.Time, duration int) *CallRecord {
	leg, err := s.calls.LatestCallerLeg(ctx, roomID, callerID, nonTerminalStatuses)
	if err != nil {
		if !errors.Is(err, errors.ErrNotFound) {
			errors.LogWithError(ctx, s.log, "pairing caller leg", err, zap.String("room", roomID))
		}
		return nil
	}
	s.advance(ctx, leg.ID, to, endTime, duration)
	return leg
}

// postOutcome writes the call summary into the room as a regular message, so
// history shows the call where it happened. tempID derives from the leg id,
// making the write idempotent across retries.
func (s *Signaling) postOutcome(ctx context.Context, roomID, senderID, legID, media string, outcome CallStatus, duration int) {
	if s.pipeline == nil {
		return
	}
	_, err := s.pipeline.Submit(ctx, &SubmitRequest{
		RoomID:   roomID,
		SenderID: senderID,
		Body:     outcomeBody(media, outcome, duration),
		TempID:   "call_" + legID,
	}, "")
	if err != nil {
		errors.LogWithError(ctx, s.log, "posting call outcome message", err, zap.String("room", roomID))
	}
}

// callOutcomeCancelled labels a cancelled ring in the summary message. The
// stored legs are missed; only the room message distinguishes the two.
const callOutcomeCancelled CallStatus = "cancelled"

func outcomeBody(media string, outcome CallStatus, duration int) string {
	if media == "" {
		media = MediaVoice
	}
	switch outcome {
	case CallMissed:
		return fmt.Sprintf("Missed %s call", media)
	case CallRejected:
		return fmt.Sprintf("Declined %s call", media)
	case callOutcomeCancelled:
		return fmt.Sprintf("Cancelled %s call", media)
	default:
		return fmt.Sprintf("%s call, %s", titleMedia(media), formatDuration(duration))
	}
}

func titleMedia(media string) string {
	if media == MediaVideo {
		return "Video"
	}
	return "Voice"
}

func formatDuration(seconds int) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
}

func (s *Signaling) unicastToUser(userID, event string, payload interface{}) {
	for _, c := range s.presence.Lookup(userID) {
		s.hub.Unicast(c, event, payload)
	}
}
