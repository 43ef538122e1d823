// Package relay fans application events out to the connections currently
// joined to a room. Delivery is best-effort: an empty room means the event
// is simply dropped and clients catch up from the persistence service's read
// endpoints when they rejoin.
package relay

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/teamerhq/relay/pkg/state"
)

// Envelope is the outbound wire shape. ID is set only for room-level
// notifications so clients can dedup redeliveries.
type Envelope struct {
	ID      string          `json:"id,omitempty"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Marshal builds an outbound frame for a single-target send.
func Marshal(event string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %q payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Payload: raw})
}

type Relay struct {
	logger *slog.Logger
	state  state.Manager

	// serializes Publish so delivery order within a room matches call order.
	mu sync.Mutex
}

func New(logger *slog.Logger, st state.Manager) *Relay {
	return &Relay{
		logger: logger.With(slog.String("component", "event_relay")),
		state:  st,
	}
}

// Publish delivers an event to every connection in the room, in publish-call
// order. Nothing is queued for members who are offline.
func (r *Relay) Publish(roomID, event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		r.logger.Error("Failed to encode event payload", slog.String("event", event), slog.Any("error", err))
		return
	}
	msg, err := json.Marshal(Envelope{ID: ulid.Make().String(), Event: event, Payload: raw})
	if err != nil {
		r.logger.Error("Failed to encode event envelope", slog.String("event", event), slog.Any("error", err))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	targets := r.state.RoomTransports(roomID)
	for _, t := range targets {
		t.Send(msg)
	}
	r.logger.Debug("Published event to room",
		slog.String("roomID", roomID),
		slog.String("event", event),
		slog.Int("targets", len(targets)),
	)
}

// PublishExcept is Publish minus one connection, used for room-scoped relays
// that must not echo back to the sender (typing indicators and the like).
func (r *Relay) PublishExcept(roomID string, except state.Transport, event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		r.logger.Error("Failed to encode event payload", slog.String("event", event), slog.Any("error", err))
		return
	}
	msg, err := json.Marshal(Envelope{Event: event, Payload: raw})
	if err != nil {
		r.logger.Error("Failed to encode event envelope", slog.String("event", event), slog.Any("error", err))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.state.RoomTransports(roomID) {
		if except != nil && t.ID() == except.ID() {
			continue
		}
		t.Send(msg)
	}
}

// Send delivers an event to a single transport.
func (r *Relay) Send(t state.Transport, event string, payload any) {
	msg, err := Marshal(event, payload)
	if err != nil {
		r.logger.Error("Failed to encode event", slog.String("event", event), slog.Any("error", err))
		return
	}
	t.Send(msg)
}

// SendRaw forwards an already-encoded notification payload verbatim to one
// connection, stamped with a dedup ID like room-level publishes.
func (r *Relay) SendRaw(t state.Transport, event string, payload json.RawMessage) {
	msg, err := json.Marshal(Envelope{ID: ulid.Make().String(), Event: event, Payload: payload})
	if err != nil {
		r.logger.Error("Failed to encode event", slog.String("event", event), slog.Any("error", err))
		return
	}
	t.Send(msg)
}
