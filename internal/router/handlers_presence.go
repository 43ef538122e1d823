package router

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/teamerhq/relay/internal/presence"
	"github.com/teamerhq/relay/pkg/state"
)

// handleUserJoin binds the announced identity to this connection
// (last-connection-wins), broadcasts the online transition, and kicks off
// the async chat-room auto-join. The userID is accepted as opaque; identity
// was established upstream before the transport connected.
func (r *Router) handleUserJoin(ctx context.Context, conn *state.Connection, payload json.RawMessage) {
	userID := announcedUserID(payload)
	if userID == "" {
		r.warnIgnored("user_join", conn, "missing userId")
		return
	}

	if _, err := r.state.Announce(conn.ID, userID); err != nil {
		r.warnIgnored("user_join", conn, err.Error())
		return
	}

	r.presence.Publish(ctx, userID, presence.StatusOnline)

	// The persistence lookup must not block this connection's dispatch loop.
	// JoinRoom itself rejects connections that dropped while the lookup was
	// in flight.
	go r.autoJoinChatRooms(userID, conn.ID)
}

// announcedUserID tolerates both the bare-string and object payload shapes
// the clients have historically sent.
func announcedUserID(payload json.RawMessage) string {
	res := gjson.ParseBytes(payload)
	if res.Type == gjson.String {
		return res.String()
	}
	return res.Get("userId").String()
}

func (r *Router) autoJoinChatRooms(userID string, connID uuid.UUID) {
	chatIDs, err := r.store.ChatRoomsForUser(context.Background(), userID)
	if err != nil {
		// Degraded but alive: the client can still join_chat explicitly.
		r.logger.Warn("Chat auto-join skipped",
			slog.String("userID", userID),
			slog.Any("error", err),
		)
		return
	}
	for _, chatID := range chatIDs {
		if err := r.state.JoinRoom(connID, chatID); err != nil {
			r.logger.Debug("Auto-join aborted", slog.String("userID", userID), slog.Any("error", err))
			return
		}
	}
	r.logger.Debug("Auto-joined chat rooms", slog.String("userID", userID), slog.Int("count", len(chatIDs)))
}

// handleCheckOnline answers a presence snapshot request with the subset of
// the given users that are currently online. Snapshots come from a live
// registry lookup, never from replayed history.
func (r *Router) handleCheckOnline(_ context.Context, conn *state.Connection, payload json.RawMessage) {
	var p userIDsPayload
	if err := json.Unmarshal(payload, &p); err != nil || len(p.UserIDs) == 0 {
		r.warnIgnored("check_online", conn, "missing userIds")
		return
	}
	online := r.state.OnlineAmong(p.UserIDs)
	r.relay.Send(conn.Transport, "online_users", map[string][]string{"userIds": online})
}

func (r *Router) handleRequestUserNames(ctx context.Context, conn *state.Connection, payload json.RawMessage) {
	var p userIDsPayload
	if err := json.Unmarshal(payload, &p); err != nil || len(p.UserIDs) == 0 {
		r.warnIgnored("request-user-names", conn, "missing userIds")
		return
	}
	names, err := r.store.UserNames(ctx, p.UserIDs)
	if err != nil {
		r.logger.Warn("User name lookup failed", slog.Any("error", err))
		return
	}
	r.relay.Send(conn.Transport, "user-names", map[string]map[string]string{"names": names})
}
