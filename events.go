package chatsync

import (
	"log/slog"
	"sync/atomic"

	"github.com/NeboLoop/chatsync-go-sdk/frame"
	"github.com/NeboLoop/chatsync-go-sdk/wire"
)

// Subscription holds one callback per inbound event kind. Handlers may be
// invoked any number of times and in any order.
type Subscription struct {
	OnCreated     func(Message)
	OnEdited      func(Message)
	OnDeleted     func(conversationID, messageID string)
	OnUserJoined  func(Presence)
	OnUserLeft    func(Presence)
	OnServerError func(error)
}

// Router decodes inbound frames and forwards them to a Subscription.
// A detached router drops everything.
type Router struct {
	sub      Subscription
	logger   *slog.Logger
	detached atomic.Bool
}

// NewRouter binds a subscription. Pass nil logger for default.
func NewRouter(sub Subscription, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sub: sub, logger: logger.With("component", "router")}
}

// Detach stops all further dispatch.
func (r *Router) Detach() { r.detached.Store(true) }

// Dispatch routes one inbound frame.
func (r *Router) Dispatch(h frame.Header, payload []byte) {
	if r.detached.Load() {
		return
	}

	switch h.Type {
	case frame.TypeReceiveMessage, frame.TypeMessageEdited:
		var p wire.MessagePayload
		if !r.decode(h, payload, &p) {
			return
		}
		if p.Message.ID == "" {
			r.logger.Debug("message event without id", "event", h.Name())
			return
		}
		fn := r.sub.OnCreated
		if h.Type == frame.TypeMessageEdited {
			fn = r.sub.OnEdited
		}
		if fn != nil {
			fn(p.Message)
		}

	case frame.TypeMessageDeleted:
		var p wire.DeletePayload
		if !r.decode(h, payload, &p) {
			return
		}
		if r.sub.OnDeleted != nil && p.MessageID != "" {
			r.sub.OnDeleted(p.ConversationID, p.MessageID)
		}

	case frame.TypeUserJoined, frame.TypeUserLeft:
		var p wire.PresencePayload
		if !r.decode(h, payload, &p) {
			return
		}
		fn := r.sub.OnUserJoined
		if h.Type == frame.TypeUserLeft {
			fn = r.sub.OnUserLeft
		}
		if fn != nil {
			fn(p)
		}

	case frame.TypeError:
		var p wire.ErrorPayload
		if !r.decode(h, payload, &p) {
			return
		}
		se := &ServerError{Message: p.Message}
		if !h.CorrelationID.IsZero() {
			se.CorrelationID = h.CorrelationID.String()
		}
		r.logger.Warn("server error", "message", p.Message, "correlation_id", se.CorrelationID)
		if r.sub.OnServerError != nil {
			r.sub.OnServerError(se)
		}

	default:
		r.logger.Debug("unhandled event", "event", h.Name(), "type", h.Type)
	}
}

func (r *Router) decode(h frame.Header, payload []byte, v any) bool {
	if err := wire.Unmarshal(payload, v); err != nil {
		r.logger.Debug("bad payload", "event", h.Name(), "error", err)
		return false
	}
	return true
}
