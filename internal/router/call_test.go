package router_test

import (
	"bytes"
	"encoding/json"
	"testing"
)

// --- Group Call Tests ---

func TestThreePartyCallScenario(t *testing.T) {
	h := newHarness(t)
	ft1, ft2, ft3 := h.connect(), h.connect(), h.connect()
	h.announce(ft1, "U1")
	h.announce(ft2, "U2")
	h.announce(ft3, "U3")

	h.dispatch(ft1, "join-call", map[string]string{"callId": "call-42", "userId": "U1", "name": "Alice"})
	h.dispatch(ft2, "join-call", map[string]string{"callId": "call-42", "userId": "U2", "name": "Bob"})
	h.dispatch(ft3, "join-call", map[string]string{"callId": "call-42", "userId": "U3", "name": "Carol"})

	// U1 sees each later joiner exactly once, in join order.
	joined := ft1.eventsNamed(t, "user-joined")
	if len(joined) != 2 {
		t.Fatalf("Expected U1 to receive 2 user-joined events, got %d", len(joined))
	}
	var j struct {
		UserID string `json:"userId"`
		Name   string `json:"name"`
	}
	json.Unmarshal(joined[0].Payload, &j)
	if j.UserID != "U2" || j.Name != "Bob" {
		t.Errorf("First user-joined should be Bob, got %+v", j)
	}
	json.Unmarshal(joined[1].Payload, &j)
	if j.UserID != "U3" || j.Name != "Carol" {
		t.Errorf("Second user-joined should be Carol, got %+v", j)
	}

	// U3's room info lists the two earlier participants, in join order.
	infos := ft3.eventsNamed(t, "call-room-info")
	if len(infos) != 1 {
		t.Fatalf("Expected 1 call-room-info for U3, got %d", len(infos))
	}
	var info struct {
		CallID       string `json:"callId"`
		RoomSize     int    `json:"roomSize"`
		Participants []struct {
			UserID string `json:"userId"`
			Name   string `json:"name"`
		} `json:"participants"`
	}
	json.Unmarshal(infos[0].Payload, &info)
	if info.CallID != "call-42" || info.RoomSize != 2 {
		t.Errorf("Expected roomSize 2 for call-42, got %+v", info)
	}
	if len(info.Participants) != 2 || info.Participants[0].UserID != "U1" || info.Participants[1].UserID != "U2" {
		t.Errorf("Expected participants [U1 U2], got %+v", info.Participants)
	}

	// U2 drops; U1 and U3 both learn about it.
	h.router.HandleDisconnect(ft2.ID())
	for _, ft := range []*fakeTransport{ft1, ft3} {
		lefts := ft.eventsNamed(t, "user-left")
		if len(lefts) != 1 {
			t.Fatalf("Expected 1 user-left, got %d", len(lefts))
		}
		var left struct {
			CallID string `json:"callId"`
			UserID string `json:"userId"`
		}
		json.Unmarshal(lefts[0].Payload, &left)
		if left.UserID != "U2" || left.CallID != "call-42" {
			t.Errorf("Unexpected user-left payload: %+v", left)
		}
	}
}

func TestLeaveCallNotifiesRemaining(t *testing.T) {
	h := newHarness(t)
	ft1, ft2 := h.connect(), h.connect()
	h.announce(ft1, "U1")
	h.announce(ft2, "U2")
	h.dispatch(ft1, "join-call", map[string]string{"callId": "c", "userId": "U1", "name": "Alice"})
	h.dispatch(ft2, "join-call", map[string]string{"callId": "c", "userId": "U2", "name": "Bob"})

	h.dispatch(ft2, "leave-call", map[string]string{"callId": "c"})

	lefts := ft1.eventsNamed(t, "user-left")
	if len(lefts) != 1 {
		t.Fatalf("Expected 1 user-left at U1, got %d", len(lefts))
	}

	// leaving again is a no-op, no duplicate notifications
	h.dispatch(ft2, "leave-call", map[string]string{"callId": "c"})
	if len(ft1.eventsNamed(t, "user-left")) != 1 {
		t.Error("Repeated leave-call produced duplicate user-left")
	}
}

func TestSignalRoundTrip(t *testing.T) {
	h := newHarness(t)
	ftA, ftB := h.connect(), h.connect()
	h.announce(ftA, "alice")
	h.announce(ftB, "bob")

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0\r\no=- 46117 2 IN IP4 127.0.0.1"}`)
	h.dispatch(ftA, "signal", map[string]any{
		"callId": "call-1",
		"to":     "bob",
		"from":   "alice",
		"data":   offer,
	})

	got := ftB.eventsNamed(t, "signal")
	if len(got) != 1 {
		t.Fatalf("Expected 1 signal at bob, got %d", len(got))
	}
	var p struct {
		CallID string          `json:"callId"`
		From   string          `json:"from"`
		Data   json.RawMessage `json:"data"`
	}
	json.Unmarshal(got[0].Payload, &p)
	if p.From != "alice" {
		t.Errorf("Expected from=alice, got %q", p.From)
	}
	if !bytes.Equal(p.Data, offer) {
		t.Errorf("Signal data not forwarded verbatim:\n want %s\n got  %s", offer, p.Data)
	}
}

func TestSignalToOfflinePeerIsDropped(t *testing.T) {
	h := newHarness(t)
	ftA := h.connect()
	h.announce(ftA, "alice")

	h.dispatch(ftA, "signal", map[string]any{
		"callId": "call-1",
		"to":     "nobody",
		"data":   json.RawMessage(`{"type":"offer"}`),
	})

	// No error reported to the sender, nothing delivered anywhere.
	if n := len(ftA.eventsNamed(t, "signal")); n != 0 {
		t.Errorf("Sender received %d unexpected signal frames", n)
	}
}

func TestSignalUsesAnnouncedIdentity(t *testing.T) {
	h := newHarness(t)
	ftA, ftB := h.connect(), h.connect()
	h.announce(ftA, "alice")
	h.announce(ftB, "bob")

	// A claims to be someone else; the announced identity wins.
	h.dispatch(ftA, "signal", map[string]any{
		"to":   "bob",
		"from": "mallory",
		"data": json.RawMessage(`{"type":"offer"}`),
	})

	got := ftB.eventsNamed(t, "signal")
	if len(got) != 1 {
		t.Fatalf("Expected 1 signal, got %d", len(got))
	}
	var p struct {
		From string `json:"from"`
	}
	json.Unmarshal(got[0].Payload, &p)
	if p.From != "alice" {
		t.Errorf("Expected announced identity alice, got %q", p.From)
	}
}

func TestToggleMedia(t *testing.T) {
	h := newHarness(t)
	ft1, ft2 := h.connect(), h.connect()
	h.announce(ft1, "U1")
	h.announce(ft2, "U2")
	h.dispatch(ft1, "join-call", map[string]string{"callId": "c", "userId": "U1", "name": "Alice"})
	h.dispatch(ft2, "join-call", map[string]string{"callId": "c", "userId": "U2", "name": "Bob"})

	h.dispatch(ft1, "toggle-media", map[string]any{"callId": "c", "kind": "mute", "enabled": true})

	got := ft2.eventsNamed(t, "media-toggled")
	if len(got) != 1 {
		t.Fatalf("Expected 1 media-toggled at U2, got %d", len(got))
	}
	var p struct {
		UserID  string `json:"userId"`
		Kind    string `json:"kind"`
		Enabled bool   `json:"enabled"`
	}
	json.Unmarshal(got[0].Payload, &p)
	if p.UserID != "U1" || p.Kind != "mute" || !p.Enabled {
		t.Errorf("Unexpected media-toggled payload: %+v", p)
	}
	if len(ft1.eventsNamed(t, "media-toggled")) != 0 {
		t.Error("Toggle must not echo back to the toggler")
	}

	// Late joiner sees the mirrored state in the snapshot.
	ft3 := h.connect()
	h.announce(ft3, "U3")
	h.dispatch(ft3, "join-call", map[string]string{"callId": "c", "userId": "U3", "name": "Carol"})
	infos := ft3.eventsNamed(t, "call-room-info")
	var info struct {
		Participants []struct {
			UserID string `json:"userId"`
			Muted  bool   `json:"isMuted"`
		} `json:"participants"`
	}
	json.Unmarshal(infos[0].Payload, &info)
	if !info.Participants[0].Muted {
		t.Error("Expected U1 to appear muted in the late joiner's snapshot")
	}
}

// --- 1:1 Call Tests ---

func TestDirectCallFlow(t *testing.T) {
	h := newHarness(t)
	ftA, ftB := h.connect(), h.connect()
	h.announce(ftA, "alice")
	h.announce(ftB, "bob")

	offer := json.RawMessage(`{"type":"offer","sdp":"caller-sdp"}`)
	h.dispatch(ftA, "call_user", map[string]any{"to": "bob", "name": "Alice", "signal": offer})

	incoming := ftB.eventsNamed(t, "incoming_call")
	if len(incoming) != 1 {
		t.Fatalf("Expected 1 incoming_call at bob, got %d", len(incoming))
	}
	var in struct {
		From   string          `json:"from"`
		Name   string          `json:"name"`
		Signal json.RawMessage `json:"signal"`
	}
	json.Unmarshal(incoming[0].Payload, &in)
	if in.From != "alice" || in.Name != "Alice" || !bytes.Equal(in.Signal, offer) {
		t.Errorf("Unexpected incoming_call: %+v", in)
	}

	answer := json.RawMessage(`{"type":"answer","sdp":"callee-sdp"}`)
	h.dispatch(ftB, "answer_call", map[string]any{"to": "alice", "signal": answer})

	answered := ftA.eventsNamed(t, "call_answered")
	if len(answered) != 1 {
		t.Fatalf("Expected 1 call_answered at alice, got %d", len(answered))
	}
	var ans struct {
		From   string          `json:"from"`
		Signal json.RawMessage `json:"signal"`
	}
	json.Unmarshal(answered[0].Payload, &ans)
	if ans.From != "bob" || !bytes.Equal(ans.Signal, answer) {
		t.Errorf("Unexpected call_answered: %+v", ans)
	}
	if len(ftA.eventsNamed(t, "call_connected")) != 1 || len(ftB.eventsNamed(t, "call_connected")) != 1 {
		t.Error("Both ends should observe call_connected once")
	}

	h.dispatch(ftA, "ice_candidate", map[string]any{"to": "bob", "candidate": json.RawMessage(`{"candidate":"a=1"}`)})
	if len(ftB.eventsNamed(t, "ice_candidate")) != 1 {
		t.Error("Expected candidate to reach bob")
	}

	h.dispatch(ftB, "end_call", map[string]any{"to": "alice"})
	ended := ftA.eventsNamed(t, "call_ended")
	if len(ended) != 1 {
		t.Fatalf("Expected 1 call_ended at alice, got %d", len(ended))
	}
}

func TestVideoCallNegotiation(t *testing.T) {
	h := newHarness(t)
	ftA, ftB := h.connect(), h.connect()
	h.announce(ftA, "alice")
	h.announce(ftB, "bob")

	h.dispatch(ftA, "video-call-request", map[string]any{"to": "bob", "name": "Alice"})
	if len(ftB.eventsNamed(t, "video-call-request")) != 1 {
		t.Fatal("Expected request to reach bob")
	}

	h.dispatch(ftB, "video-call-response", map[string]any{"to": "alice", "accepted": true})
	resp := ftA.eventsNamed(t, "video-call-response")
	if len(resp) != 1 {
		t.Fatal("Expected response to reach alice")
	}
	var p struct {
		From     string `json:"from"`
		Accepted bool   `json:"accepted"`
	}
	json.Unmarshal(resp[0].Payload, &p)
	if p.From != "bob" || !p.Accepted {
		t.Errorf("Unexpected response payload: %+v", p)
	}

	h.dispatch(ftA, "video-call-cancel", map[string]any{"to": "bob"})
	if len(ftB.eventsNamed(t, "video-call-cancel")) != 1 {
		t.Error("Expected cancel to reach bob")
	}
}
