package router

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/tidwall/gjson"

	"github.com/teamerhq/relay/internal/persist"
	"github.com/teamerhq/relay/pkg/state"
)

// handleJoinChat is the explicit fallback for the announce-time auto-join.
func (r *Router) handleJoinChat(_ context.Context, conn *state.Connection, payload json.RawMessage) {
	res := gjson.ParseBytes(payload)
	chatID := res.String()
	if res.Type != gjson.String {
		chatID = res.Get("chatId").String()
	}
	if chatID == "" {
		r.warnIgnored("join_chat", conn, "missing chatId")
		return
	}
	if err := r.state.JoinRoom(conn.ID, chatID); err != nil {
		r.warnIgnored("join_chat", conn, err.Error())
	}
}

// handleSendMessage persists first, then fans the stored document out to the
// chat room. If persistence fails nothing is relayed; the message does not
// exist.
func (r *Router) handleSendMessage(ctx context.Context, conn *state.Connection, payload json.RawMessage) {
	var p sendMessagePayload
	if err := json.Unmarshal(payload, &p); err != nil || p.ChatID == "" || p.SenderID == "" {
		r.warnIgnored("sendMessage", conn, "missing chatId or senderId")
		return
	}

	saved, err := r.store.SaveMessage(ctx, persist.NewMessage{
		ChatID:   p.ChatID,
		SenderID: p.SenderID,
		Content:  p.Content,
	})
	if err != nil {
		r.logger.Warn("Message persistence failed",
			slog.String("chatID", p.ChatID),
			slog.Any("error", err),
		)
		return
	}
	r.relay.Publish(p.ChatID, "new_message", saved)
}

// handleTyping relays typing/stop_typing to the chat room, excluding the
// sender. Never persisted.
func (r *Router) handleTyping(event string) handlerFunc {
	return func(_ context.Context, conn *state.Connection, payload json.RawMessage) {
		var p typingPayload
		if err := json.Unmarshal(payload, &p); err != nil || p.ChatID == "" {
			r.warnIgnored(event, conn, "missing chatId")
			return
		}
		r.relay.PublishExcept(p.ChatID, conn.Transport, event, p)
	}
}
