// Package router maps inbound client events onto registry mutations and
// best-effort relays. One dispatch table, one handler per event name; the
// connection's read pump guarantees handlers run sequentially per client.
package router

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/teamerhq/relay/internal/persist"
	"github.com/teamerhq/relay/internal/presence"
	"github.com/teamerhq/relay/internal/relay"
	"github.com/teamerhq/relay/pkg/state"
)

type handlerFunc func(ctx context.Context, conn *state.Connection, payload json.RawMessage)

type Router struct {
	logger   *slog.Logger
	state    state.Manager
	store    persist.Store
	presence *presence.Broadcaster
	relay    *relay.Relay

	handlers map[string]handlerFunc
}

func New(logger *slog.Logger, st state.Manager, store persist.Store, pb *presence.Broadcaster, rl *relay.Relay) *Router {
	r := &Router{
		logger:   logger.With(slog.String("component", "event_router")),
		state:    st,
		store:    store,
		presence: pb,
		relay:    rl,
	}
	r.handlers = map[string]handlerFunc{
		"user_join":          r.handleUserJoin,
		"check_online":       r.handleCheckOnline,
		"request-user-names": r.handleRequestUserNames,

		"join_chat":   r.handleJoinChat,
		"sendMessage": r.handleSendMessage,
		"typing":      r.handleTyping("typing"),
		"stop_typing": r.handleTyping("stop_typing"),

		"join-call":    r.handleJoinCall,
		"leave-call":   r.handleLeaveCall,
		"signal":       r.handleSignal,
		"toggle-media": r.handleToggleMedia,

		"call_user":           r.handleCallUser,
		"answer_call":         r.handleAnswerCall,
		"end_call":            r.handleEndCall,
		"ice_candidate":       r.handleIceCandidate,
		"video-call-request":  r.handleVideoCallRequest,
		"video-call-response": r.handleVideoCallResponse,
		"video-call-cancel":   r.handleVideoCallCancel,
	}
	return r
}

// HandleMessage is the transport's message callback.
func (r *Router) HandleMessage(ctx context.Context, connID uuid.UUID, msg []byte) {
	var clientMsg ClientMessage
	if err := json.Unmarshal(msg, &clientMsg); err != nil {
		r.logger.Warn("Failed to unmarshal client message", slog.String("connID", connID.String()), slog.Any("error", err))
		return
	}

	handler, ok := r.handlers[clientMsg.Event]
	if !ok {
		r.logger.Warn("Received unknown event", slog.String("event", clientMsg.Event), slog.String("connID", connID.String()))
		return
	}

	conn, ok := r.state.GetConnection(connID)
	if !ok {
		r.logger.Warn("Message from unregistered connection", slog.String("connID", connID.String()))
		return
	}

	r.logger.Debug("Dispatching event", slog.String("event", clientMsg.Event), slog.String("connID", connID.String()))
	handler(ctx, conn, clientMsg.Payload)
}

// HandleDisconnect removes every trace of the connection in one atomic step,
// then emits the user-left and offline notifications derived from it. The
// registry is already clean by the time anything is sent, so a late signal
// can never be relayed to the departed connection.
func (r *Router) HandleDisconnect(connID uuid.UUID) {
	dep, err := r.state.DeregisterConnection(connID)
	if err != nil {
		r.logger.Error("Failed to deregister connection", slog.String("connID", connID.String()), slog.Any("error", err))
		return
	}

	for _, left := range dep.CallsLeft {
		payload := userLeftPayload{CallID: left.CallID, UserID: left.UserID}
		for _, t := range left.Remaining {
			r.relay.Send(t, "user-left", payload)
		}
	}

	if dep.WasCurrent {
		r.presence.Publish(context.Background(), dep.UserID, presence.StatusOffline)
	}
}

// warnIgnored is the single place a dropped message gets logged.
func (r *Router) warnIgnored(event string, conn *state.Connection, reason string) {
	r.logger.Warn("Ignoring message",
		slog.String("event", event),
		slog.String("connID", conn.ID.String()),
		slog.String("reason", reason),
	)
}
