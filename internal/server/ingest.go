package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/teamerhq/relay/internal/server/middleware"
)

// ingestRequest is the body the persistence service posts after a write
// succeeds. Either a room or an explicit user list must be addressed.
type ingestRequest struct {
	Room    string          `json:"room,omitempty"`
	Users   []string        `json:"users,omitempty"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// ingestHandler is the HTTP half of the event relay: chat_created, new_task,
// new_schedule, task_completed, task_approved, polls_updated and friends
// enter here and fan out to whoever is online. Fire-and-forget by design;
// offline clients read current state from the persistence service instead.
func (a *App) ingestHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if _, err := middleware.VerifyToken(strings.TrimPrefix(auth, "Bearer "), a.config.Server.Auth.JWTSecret); err != nil {
		a.logger.Warn("Ingest request with invalid token", slog.Any("error", err))
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if req.Event == "" || (req.Room == "" && len(req.Users) == 0) {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if req.Room != "" {
		a.eventRelay.Publish(req.Room, req.Event, req.Payload)
	}
	for _, userID := range req.Users {
		conn, ok := a.stateManager.Resolve(userID)
		if !ok {
			continue
		}
		a.eventRelay.SendRaw(conn.Transport, req.Event, req.Payload)
	}

	w.WriteHeader(http.StatusAccepted)
}
