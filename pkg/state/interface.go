package state

import "github.com/google/uuid"

// Manager owns the online registry and all room membership. Every mutation
// is atomic with respect to every other; mutations that require follow-up
// notifications return the target transports captured under the same lock,
// and the caller delivers them. Implementations must never write to a
// transport themselves.
type Manager interface {
	// --- Connection Lifecycle ---
	RegisterConnection(t Transport) (*Connection, error)
	// DeregisterConnection removes every trace of the connection (registry
	// entry, room membership, call participation) in one atomic step.
	DeregisterConnection(connID uuid.UUID) (*Departure, error)
	GetConnection(connID uuid.UUID) (*Connection, bool)

	// --- Online Registry ---
	// Announce binds a user identity to a connection, last-connection-wins.
	// The userID is accepted as opaque; duplicate announces of the same
	// identity are idempotent, announcing a different identity on an
	// already-bound connection is an error.
	Announce(connID uuid.UUID, userID string) (*Connection, error)
	Resolve(userID string) (*Connection, bool)
	// OnlineAmong filters the given userIDs down to those currently online.
	OnlineAmong(userIDs []string) []string
	AllTransports() []Transport

	// --- Room Membership ---
	JoinRoom(connID uuid.UUID, roomID string) error
	LeaveRoom(connID uuid.UUID, roomID string) error
	RoomTransports(roomID string) []Transport

	// --- Call Rooms ---
	JoinCall(connID uuid.UUID, callID, userID, displayName string) (*CallJoin, error)
	LeaveCall(connID uuid.UUID, callID string) (*CallLeave, error)
	// SetMediaState updates the mirrored media flags for the connection's
	// participant entry and returns the other members to notify.
	SetMediaState(connID uuid.UUID, callID, kind string, enabled bool) ([]Transport, error)
}
