package router

import "encoding/json"

// ClientMessage is the inbound wire shape: an event name plus an opaque
// payload decoded per-event at the boundary. Malformed payloads are ignored,
// never fatal to the connection.
type ClientMessage struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type joinCallPayload struct {
	CallID string `json:"callId"`
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

type leaveCallPayload struct {
	CallID string `json:"callId"`
}

// signalPayload is the group-call signaling envelope. Data carries SDP or
// ICE content and is forwarded verbatim, never parsed.
type signalPayload struct {
	CallID string          `json:"callId"`
	To     string          `json:"to"`
	From   string          `json:"from"`
	Name   string          `json:"name,omitempty"`
	Data   json.RawMessage `json:"data"`
}

type directCallPayload struct {
	To     string          `json:"to"`
	From   string          `json:"from"`
	Name   string          `json:"name,omitempty"`
	Signal json.RawMessage `json:"signal,omitempty"`
}

type iceCandidatePayload struct {
	To        string          `json:"to"`
	From      string          `json:"from"`
	Candidate json.RawMessage `json:"candidate"`
}

type callResponsePayload struct {
	To       string `json:"to"`
	From     string `json:"from"`
	Accepted bool   `json:"accepted"`
}

type sendMessagePayload struct {
	ChatID   string `json:"chatId"`
	SenderID string `json:"senderId"`
	Content  string `json:"content"`
}

type typingPayload struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

type userIDsPayload struct {
	UserIDs []string `json:"userIds"`
}

type toggleMediaPayload struct {
	CallID  string `json:"callId"`
	Kind    string `json:"kind"` // mute | camera | screen
	Enabled bool   `json:"enabled"`
}
