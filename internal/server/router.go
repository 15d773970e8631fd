package server

import (
	"context"
	jsonraw "encoding/json"

	"go.uber.org/zap"

	"github.com/hsg8-commits/ripple/internal/chat"
	"github.com/hsg8-commits/ripple/pkg/errors"
	"github.com/hsg8-commits/ripple/pkg/json"
)

// handler decodes one event's payload and runs it against the core. The
// returned value, if any, rides back on the ack.
type handler func(ctx context.Context, c *Client, payload jsonraw.RawMessage) (interface{}, error)

// Router maps inbound frame types to core operations and acknowledges every
// frame that carries an ackId.
type Router struct {
	engine   *chat.Engine
	handlers map[string]handler
	log      *zap.Logger
}

// NewRouter builds the dispatch table.
func NewRouter(engine *chat.Engine, log *zap.Logger) *Router {
	r := &Router{engine: engine, log: log.With(zap.String("module", "router"))}
	r.handlers = map[string]handler{
		chat.EvRegisterUser: r.registerUser,
		chat.EvJoinRoom:     r.joinRoom,
		chat.EvSendMessage:  r.sendMessage,
		chat.EvSeenMessage:  decode(func(ctx context.Context, req *chat.SeenRequest) (interface{}, error) {
			return nil, engine.Pipeline().MarkSeen(ctx, req)
		}),
		chat.EvEditMessage: decode(func(ctx context.Context, req *chat.EditRequest) (interface{}, error) {
			return nil, engine.Pipeline().Edit(ctx, req)
		}),
		chat.EvDeleteMessage: decode(func(ctx context.Context, req *chat.DeleteRequest) (interface{}, error) {
			return nil, engine.Pipeline().Delete(ctx, req)
		}),
		chat.EvPinMessage: decode(func(ctx context.Context, req *chat.PinRequest) (interface{}, error) {
			return nil, engine.Pipeline().Pin(ctx, req)
		}),
		chat.EvSetTyping: decode(func(ctx context.Context, req *chat.TypingRequest) (interface{}, error) {
			return nil, engine.Typing().Set(ctx, req)
		}),
		chat.EvClearTyping: decode(func(ctx context.Context, req *chat.TypingRequest) (interface{}, error) {
			return nil, engine.Typing().Clear(ctx, req)
		}),
		chat.EvBlockUser: decode(func(ctx context.Context, req *chat.BlockRequest) (interface{}, error) {
			return engine.Block(ctx, req)
		}),
		chat.EvUnblockUser: decode(func(ctx context.Context, req *chat.BlockRequest) (interface{}, error) {
			return engine.Unblock(ctx, req)
		}),
		chat.EvBlockedUsers: r.blockedUsers,
		chat.EvCallInitiate: decode(func(ctx context.Context, req *chat.InitiateCallRequest) (interface{}, error) {
			return engine.Signaling().Initiate(ctx, req)
		}),
		chat.EvCallAccept: decode(func(ctx context.Context, req *chat.AnswerCallRequest) (interface{}, error) {
			return nil, engine.Signaling().Accept(ctx, req)
		}),
		chat.EvCallReject: decode(func(ctx context.Context, req *chat.AnswerCallRequest) (interface{}, error) {
			return nil, engine.Signaling().Reject(ctx, req)
		}),
		chat.EvCallCancel: decode(func(ctx context.Context, req *chat.EndCallRequest) (interface{}, error) {
			return nil, engine.Signaling().Cancel(ctx, req)
		}),
		chat.EvCallEnd: decode(func(ctx context.Context, req *chat.EndCallRequest) (interface{}, error) {
			return nil, engine.Signaling().End(ctx, req)
		}),
		chat.EvCallICE: decode(func(ctx context.Context, req *chat.ICERequest) (interface{}, error) {
			return nil, engine.Signaling().RelayICE(ctx, req)
		}),
		chat.EvCallHistory: decode(func(ctx context.Context, req *chat.HistoryRequest) (interface{}, error) {
			return engine.Signaling().History(ctx, req)
		}),
		chat.EvCallRoomHistory: decode(func(ctx context.Context, req *chat.RoomHistoryRequest) (interface{}, error) {
			return engine.Signaling().RoomHistory(ctx, req)
		}),
	}
	return r
}

// decode adapts a typed handler to the raw payload form.
func decode[T any](fn func(ctx context.Context, req *T) (interface{}, error)) handler {
	return func(ctx context.Context, _ *Client, payload jsonraw.RawMessage) (interface{}, error) {
		var req T
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &req); err != nil {
				return nil, errors.Wrap(errors.ErrInvalidInput, "malformed payload")
			}
		}
		return fn(ctx, &req)
	}
}

func (r *Router) registerUser(ctx context.Context, c *Client, payload jsonraw.RawMessage) (interface{}, error) {
	var req chat.RegisterUserRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "malformed payload")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	c.setUserID(req.UserID)
	return nil, r.engine.Register(ctx, &req, c)
}

func (r *Router) joinRoom(ctx context.Context, c *Client, payload jsonraw.RawMessage) (interface{}, error) {
	var req chat.JoinRoomRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "malformed payload")
	}
	return nil, r.engine.JoinRoom(ctx, &req, c)
}

func (r *Router) sendMessage(ctx context.Context, c *Client, payload jsonraw.RawMessage) (interface{}, error) {
	var req chat.SubmitRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "malformed payload")
	}
	return r.engine.Pipeline().Submit(ctx, &req, c.ID())
}

func (r *Router) blockedUsers(ctx context.Context, c *Client, payload jsonraw.RawMessage) (interface{}, error) {
	var req struct {
		UserID string `json:"userID"`
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, errors.Wrap(errors.ErrInvalidInput, "malformed payload")
		}
	}
	if req.UserID == "" {
		req.UserID = c.UserID()
	}
	return r.engine.BlockedUsers(ctx, req.UserID)
}

type ackPayload struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
	Code  string      `json:"code,omitempty"`
}

// Dispatch routes one inbound frame. Unknown types are logged and dropped;
// frames with an ackId always get an answer, success or not.
func (r *Router) Dispatch(ctx context.Context, c *Client, raw []byte) {
	var frame chat.Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		r.log.Warn("malformed inbound frame", zap.Error(err))
		return
	}
	h, ok := r.handlers[frame.Type]
	if !ok {
		r.log.Warn("unknown frame type", zap.String("type", frame.Type))
		return
	}

	data, err := h(ctx, c, frame.Payload)
	if err != nil {
		errors.LogWithError(ctx, r.log, "event handling failed", err,
			zap.String("type", frame.Type), zap.String("user", c.UserID()))
	}
	if frame.AckID == "" {
		return
	}

	ack := ackPayload{OK: err == nil, Data: data}
	if err != nil {
		ack.Error = err.Error()
		ack.Code = errors.Code(err)
	}
	body, mErr := json.Marshal(ack)
	if mErr != nil {
		r.log.Warn("encoding ack failed", zap.Error(mErr))
		return
	}
	reply, mErr := json.Marshal(chat.Frame{Type: chat.EvAck, AckID: frame.AckID, Payload: body})
	if mErr != nil {
		return
	}
	c.enqueue(reply)
}

// connectionClosed tears down everything the connection touched.
func (r *Router) connectionClosed(ctx context.Context, c *Client) {
	r.engine.Unregister(ctx, c.ID())
}
