// Package presence broadcasts online/offline transitions to every connected
// client. Presence is global, not room-scoped, and delivery is best-effort;
// clients that connect later query current status explicitly instead of
// replaying history.
package presence

import (
	"context"
	"log/slog"

	"github.com/teamerhq/relay/internal/relay"
	"github.com/teamerhq/relay/pkg/state"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

type statusPayload struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

type Broadcaster struct {
	logger *slog.Logger
	state  state.Manager
	mirror Mirror
}

func NewBroadcaster(logger *slog.Logger, st state.Manager, mirror Mirror) *Broadcaster {
	if mirror == nil {
		mirror = NoopMirror{}
	}
	return &Broadcaster{
		logger: logger.With(slog.String("component", "presence_broadcaster")),
		state:  st,
		mirror: mirror,
	}
}

// Publish fans a status transition out to all currently-connected clients
// and updates the external mirror. Mirror failures are logged and swallowed;
// the in-process registry stays authoritative.
func (b *Broadcaster) Publish(ctx context.Context, userID, status string) {
	msg, err := relay.Marshal("user_status", statusPayload{UserID: userID, Status: status})
	if err != nil {
		b.logger.Error("Failed to encode user_status", slog.Any("error", err))
		return
	}
	for _, t := range b.state.AllTransports() {
		t.Send(msg)
	}

	var mirrorErr error
	switch status {
	case StatusOnline:
		mirrorErr = b.mirror.SetOnline(ctx, userID)
	case StatusOffline:
		mirrorErr = b.mirror.SetOffline(ctx, userID)
	}
	if mirrorErr != nil {
		b.logger.Warn("Presence mirror update failed",
			slog.String("userID", userID),
			slog.String("status", status),
			slog.Any("error", mirrorErr),
		)
	}
}
