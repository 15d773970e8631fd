package chat

import (
	"context"

	"go.uber.org/zap"

	"github.com/hsg8-commits/ripple/pkg/errors"
)

// Engine composes the presence registry, room hub, block filter, typing
// broadcaster, message pipeline and call signaling behind one surface the
// transport dispatches into.
type Engine struct {
	presence  *Presence
	hub       *Hub
	filter    *Filter
	typing    *Typing
	pipeline  *Pipeline
	signaling *Signaling
	users     UserStore
	rooms     RoomStore
	log       *zap.Logger
}

// NewEngine wires the composed core.
func NewEngine(presence *Presence, hub *Hub, filter *Filter, typing *Typing, pipeline *Pipeline, signaling *Signaling, users UserStore, rooms RoomStore, log *zap.Logger) *Engine {
	return &Engine{
		presence:  presence,
		hub:       hub,
		filter:    filter,
		typing:    typing,
		pipeline:  pipeline,
		signaling: signaling,
		users:     users,
		rooms:     rooms,
		log:       log.With(zap.String("module", "engine")),
	}
}

// Pipeline exposes the message path.
func (e *Engine) Pipeline() *Pipeline { return e.pipeline }

// Typing exposes the typing broadcaster.
func (e *Engine) Typing() *Typing { return e.typing }

// Signaling exposes the call path.
func (e *Engine) Signaling() *Signaling { return e.signaling }

// Register binds a connection to its user, flips the stored status to online
// on the first connection, and re-broadcasts presence to everyone.
func (e *Engine) Register(ctx context.Context, req *RegisterUserRequest, c Conn) error {
	if err := req.Validate(); err != nil {
		return err
	}
	wentOnline := e.presence.Register(c)
	if wentOnline {
		if err := e.users.SetUserStatus(ctx, req.UserID, StatusOnline); err != nil {
			errors.LogWithError(ctx, e.log, "storing online status", err, zap.String("user", req.UserID))
		}
	}
	e.BroadcastPresence(ctx)
	return nil
}

// RegisterAssistant pins the assistant's presence entry. It survives every
// unregister, so the assistant is listed online to all viewers at all times.
func (e *Engine) RegisterAssistant(userID string) {
	e.presence.RegisterPermanent(NewVirtualConn("assistant", userID))
}

// Unregister drops a closed connection. The user goes offline only when this
// was their last connection.
func (e *Engine) Unregister(ctx context.Context, connID string) {
	e.hub.LeaveAll(connID)
	userID, wentOffline := e.presence.Unregister(connID)
	if userID == "" {
		return
	}
	if wentOffline {
		if err := e.users.SetUserStatus(ctx, userID, StatusOffline); err != nil {
			errors.LogWithError(ctx, e.log, "storing offline status", err, zap.String("user", userID))
		}
	}
	e.BroadcastPresence(ctx)
}

// JoinRoom subscribes the connection to a room's broadcasts, adding the user
// to the membership when a userID is supplied.
func (e *Engine) JoinRoom(ctx context.Context, req *JoinRoomRequest, c Conn) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if req.UserID != "" {
		if err := e.rooms.AddParticipant(ctx, req.RoomID, req.UserID); err != nil {
			return errors.Wrap(err, "adding room participant")
		}
	}
	e.hub.Join(req.RoomID, c)
	return nil
}

// BroadcastPresence sends each online user their own view of who is online.
// The list is filtered per viewer, so two users can legitimately see
// different lists at the same moment.
func (e *Engine) BroadcastPresence(ctx context.Context) {
	snapshot := e.presence.Snapshot()
	for _, info := range snapshot {
		conns := e.presence.Lookup(info.UserID)
		if len(conns) == 0 {
			continue
		}
		view := e.filter.FilterOnlineList(ctx, info.UserID, snapshot)
		for _, c := range conns {
			e.hub.Unicast(c, EvPresenceList, view)
		}
	}
}

// Block adds a block edge and returns the updated block list. Presence is
// re-broadcast because the lists both parties see just changed.
func (e *Engine) Block(ctx context.Context, req *BlockRequest) ([]string, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ids, err := e.filter.Block(ctx, req.UserID, req.TargetID)
	if err != nil {
		return nil, err
	}
	e.BroadcastPresence(ctx)
	return ids, nil
}

// Unblock removes a block edge and returns the updated block list.
func (e *Engine) Unblock(ctx context.Context, req *BlockRequest) ([]string, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ids, err := e.filter.Unblock(ctx, req.UserID, req.TargetID)
	if err != nil {
		return nil, err
	}
	e.BroadcastPresence(ctx)
	return ids, nil
}

// BlockedUsers resolves the caller's block list to user records.
func (e *Engine) BlockedUsers(ctx context.Context, userID string) ([]*User, error) {
	if userID == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "get-blocked-users: missing userID")
	}
	ids, err := e.users.BlockedIDs(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "loading block list")
	}
	if len(ids) == 0 {
		return []*User{}, nil
	}
	blocked, err := e.users.UsersByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "resolving blocked users")
	}
	return blocked, nil
}

// RoomParticipants returns the room's members as the viewer is allowed to see
// them, with blockers redacted.
func (e *Engine) RoomParticipants(ctx context.Context, viewerID, roomID string) ([]ParticipantView, error) {
	room, err := e.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, errors.Wrap(err, "loading room")
	}
	members, err := e.users.UsersByIDs(ctx, room.Participants)
	if err != nil {
		return nil, errors.Wrap(err, "loading participants")
	}
	views := make([]ParticipantView, 0, len(members))
	for _, u := range members {
		views = append(views, e.filter.SanitizeParticipant(ctx, viewerID, u))
	}
	return views, nil
}

// VirtualConn is a connectionless presence entry. Deliveries are dropped; it
// exists so a non-human participant can appear online.
type VirtualConn struct {
	id     string
	userID string
}

// NewVirtualConn builds a presence-only connection.
func NewVirtualConn(id, userID string) *VirtualConn {
	return &VirtualConn{id: id, userID: userID}
}

func (v *VirtualConn) ID() string     { return v.id }
func (v *VirtualConn) UserID() string { return v.userID }

// Deliver drops the event.
func (v *VirtualConn) Deliver(string, interface{}) bool { return true }
