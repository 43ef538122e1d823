package router

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/teamerhq/relay/pkg/state"
)

type callRoomInfoPayload struct {
	CallID       string              `json:"callId"`
	RoomSize     int                 `json:"roomSize"`
	Participants []state.Participant `json:"participants"`
}

type userJoinedPayload struct {
	CallID string `json:"callId"`
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

type userLeftPayload struct {
	CallID string `json:"callId"`
	UserID string `json:"userId"`
}

// handleJoinCall admits the connection to the call room and answers with the
// membership snapshot taken at the instant of the join, in join order. The
// joiner initiates an offer to each listed participant; existing members
// only ever answer, so no A-B pair can race offers (glare). The snapshot and
// the user-joined notifications come from one atomic mutation: nobody can be
// missing from the snapshot and also unaware of the joiner.
func (r *Router) handleJoinCall(_ context.Context, conn *state.Connection, payload json.RawMessage) {
	var p joinCallPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.CallID == "" || p.UserID == "" {
		r.warnIgnored("join-call", conn, "missing callId or userId")
		return
	}

	join, err := r.state.JoinCall(conn.ID, p.CallID, p.UserID, p.Name)
	if err != nil {
		r.warnIgnored("join-call", conn, err.Error())
		return
	}

	r.relay.Send(conn.Transport, "call-room-info", callRoomInfoPayload{
		CallID:       p.CallID,
		RoomSize:     len(join.Others),
		Participants: join.Others,
	})

	joined := userJoinedPayload{CallID: p.CallID, UserID: p.UserID, Name: p.Name}
	for _, t := range join.Notify {
		r.relay.Send(t, "user-joined", joined)
	}

	r.logger.Info("User joined call",
		slog.String("callID", p.CallID),
		slog.String("userID", p.UserID),
		slog.Int("existing", len(join.Others)),
	)
}

func (r *Router) handleLeaveCall(_ context.Context, conn *state.Connection, payload json.RawMessage) {
	var p leaveCallPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.CallID == "" {
		r.warnIgnored("leave-call", conn, "missing callId")
		return
	}

	leave, err := r.state.LeaveCall(conn.ID, p.CallID)
	if err != nil {
		r.warnIgnored("leave-call", conn, err.Error())
		return
	}
	if leave.UserID == "" {
		// was not a participant; leaving is idempotent
		return
	}

	left := userLeftPayload{CallID: p.CallID, UserID: leave.UserID}
	for _, t := range leave.Remaining {
		r.relay.Send(t, "user-left", left)
	}
}

// handleSignal relays one WebRTC handshake envelope (offer, answer or ICE
// candidate) to a single peer. Data passes through verbatim; if the peer is
// offline the envelope is dropped silently, since a stale offer delivered
// later would be worse than no offer.
func (r *Router) handleSignal(_ context.Context, conn *state.Connection, payload json.RawMessage) {
	var p signalPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.To == "" || len(p.Data) == 0 {
		r.warnIgnored("signal", conn, "missing to or data")
		return
	}

	target, ok := r.state.Resolve(p.To)
	if !ok {
		r.logger.Debug("Dropping signal for offline peer", slog.String("to", p.To))
		return
	}

	out := signalPayload{
		CallID: p.CallID,
		From:   senderID(p.From, conn),
		Name:   p.Name,
		Data:   p.Data,
	}
	r.relay.Send(target.Transport, "signal", out)
}

func (r *Router) handleToggleMedia(_ context.Context, conn *state.Connection, payload json.RawMessage) {
	var p toggleMediaPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.CallID == "" || p.Kind == "" {
		r.warnIgnored("toggle-media", conn, "missing callId or kind")
		return
	}

	others, err := r.state.SetMediaState(conn.ID, p.CallID, p.Kind, p.Enabled)
	if err != nil {
		r.warnIgnored("toggle-media", conn, err.Error())
		return
	}

	toggled := struct {
		CallID  string `json:"callId"`
		UserID  string `json:"userId"`
		Kind    string `json:"kind"`
		Enabled bool   `json:"enabled"`
	}{p.CallID, conn.UserID, p.Kind, p.Enabled}
	for _, t := range others {
		r.relay.Send(t, "media-toggled", toggled)
	}
}

// senderID prefers the sender's announced identity over whatever the payload
// claims, falling back to the payload for connections that signal before
// announcing.
func senderID(claimed string, conn *state.Connection) string {
	if conn.UserID != "" {
		return conn.UserID
	}
	return claimed
}
