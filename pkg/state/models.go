package state

import (
	"time"

	"github.com/google/uuid"
)

// Transport is the send-side of one live client session. Satisfied by
// *transport.Connection; kept as an interface so the state layer never
// touches sockets and tests can capture outbound traffic.
type Transport interface {
	ID() uuid.UUID
	Send(msg []byte)
	Close(err error)
}

// Connection is the registry's view of one live transport session. UserID is
// empty until the client announces itself and immutable afterwards.
type Connection struct {
	ID        uuid.UUID
	UserID    string
	Transport Transport
	CreatedAt time.Time
}

// Participant is the server-side mirror of one call-room member's state.
// Clients own their media state; this copy only answers room-info queries.
type Participant struct {
	UserID        string `json:"userId"`
	DisplayName   string `json:"name"`
	Muted         bool   `json:"isMuted"`
	CameraOn      bool   `json:"isCameraOn"`
	ScreenSharing bool   `json:"isScreenSharing"`
}

// CallJoin is the atomic result of joining a call room: the participants
// present at the instant of the join (in join order, excluding the joiner)
// and the transports that must be told about the new member. The joiner
// initiates offers to everyone in Others; nobody offers back, which is what
// keeps the offer/offer glare race out of the design.
type CallJoin struct {
	Others []Participant
	Notify []Transport
}

// CallLeave reports who left and who remains to be notified.
type CallLeave struct {
	UserID    string
	Remaining []Transport
}

// CallDeparture is one call room a disconnecting connection was pulled from.
type CallDeparture struct {
	CallID    string
	UserID    string
	Remaining []Transport
}

// Departure is the atomic result of a disconnect: everything the caller
// needs to emit user-left and offline notifications after the registry has
// already forgotten the connection.
type Departure struct {
	UserID string
	// WasCurrent is false when a newer connection for the same user has
	// overwritten the online-registry entry; the entry is then left alone.
	WasCurrent bool
	CallsLeft  []CallDeparture
}
