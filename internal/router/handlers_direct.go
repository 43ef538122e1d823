package router

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/teamerhq/relay/pkg/state"
)

// 1:1 call signaling. Same best-effort relay pattern as group signaling,
// addressed directly by userId instead of call-room membership. Unknown
// targets are dropped without telling the sender.

func (r *Router) handleCallUser(_ context.Context, conn *state.Connection, payload json.RawMessage) {
	var p directCallPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.To == "" || len(p.Signal) == 0 {
		r.warnIgnored("call_user", conn, "missing to or signal")
		return
	}
	target, ok := r.state.Resolve(p.To)
	if !ok {
		r.logger.Debug("Dropping call_user for offline peer", slog.String("to", p.To))
		return
	}
	r.relay.Send(target.Transport, "incoming_call", directCallPayload{
		From:   senderID(p.From, conn),
		Name:   p.Name,
		Signal: p.Signal,
	})
}

func (r *Router) handleAnswerCall(_ context.Context, conn *state.Connection, payload json.RawMessage) {
	var p directCallPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.To == "" || len(p.Signal) == 0 {
		r.warnIgnored("answer_call", conn, "missing to or signal")
		return
	}
	target, ok := r.state.Resolve(p.To)
	if !ok {
		r.logger.Debug("Dropping answer_call for offline peer", slog.String("to", p.To))
		return
	}
	from := senderID(p.From, conn)
	r.relay.Send(target.Transport, "call_answered", directCallPayload{
		From:   from,
		Signal: p.Signal,
	})
	// Both ends learn the call is live once the answer is on its way.
	r.relay.Send(target.Transport, "call_connected", map[string]string{"peerId": from})
	r.relay.Send(conn.Transport, "call_connected", map[string]string{"peerId": p.To})
}

func (r *Router) handleEndCall(_ context.Context, conn *state.Connection, payload json.RawMessage) {
	var p directCallPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.To == "" {
		r.warnIgnored("end_call", conn, "missing to")
		return
	}
	target, ok := r.state.Resolve(p.To)
	if !ok {
		return
	}
	r.relay.Send(target.Transport, "call_ended", map[string]string{"from": senderID(p.From, conn)})
}

func (r *Router) handleIceCandidate(_ context.Context, conn *state.Connection, payload json.RawMessage) {
	var p iceCandidatePayload
	if err := json.Unmarshal(payload, &p); err != nil || p.To == "" || len(p.Candidate) == 0 {
		r.warnIgnored("ice_candidate", conn, "missing to or candidate")
		return
	}
	target, ok := r.state.Resolve(p.To)
	if !ok {
		r.logger.Debug("Dropping ice_candidate for offline peer", slog.String("to", p.To))
		return
	}
	r.relay.Send(target.Transport, "ice_candidate", iceCandidatePayload{
		From:      senderID(p.From, conn),
		Candidate: p.Candidate,
	})
}

// Pre-call negotiation for 1:1 video calls: request, accept/reject, cancel.
// Forwarded under their inbound names with the sender identity attached.

func (r *Router) handleVideoCallRequest(_ context.Context, conn *state.Connection, payload json.RawMessage) {
	var p directCallPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.To == "" {
		r.warnIgnored("video-call-request", conn, "missing to")
		return
	}
	target, ok := r.state.Resolve(p.To)
	if !ok {
		return
	}
	r.relay.Send(target.Transport, "video-call-request", directCallPayload{
		From: senderID(p.From, conn),
		Name: p.Name,
	})
}

func (r *Router) handleVideoCallResponse(_ context.Context, conn *state.Connection, payload json.RawMessage) {
	var p callResponsePayload
	if err := json.Unmarshal(payload, &p); err != nil || p.To == "" {
		r.warnIgnored("video-call-response", conn, "missing to")
		return
	}
	target, ok := r.state.Resolve(p.To)
	if !ok {
		return
	}
	r.relay.Send(target.Transport, "video-call-response", callResponsePayload{
		From:     senderID(p.From, conn),
		Accepted: p.Accepted,
	})
}

func (r *Router) handleVideoCallCancel(_ context.Context, conn *state.Connection, payload json.RawMessage) {
	var p directCallPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.To == "" {
		r.warnIgnored("video-call-cancel", conn, "missing to")
		return
	}
	target, ok := r.state.Resolve(p.To)
	if !ok {
		return
	}
	r.relay.Send(target.Transport, "video-call-cancel", directCallPayload{
		From: senderID(p.From, conn),
	})
}
