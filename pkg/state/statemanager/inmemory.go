package statemanager

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teamerhq/relay/pkg/state"
)

// Media state kinds accepted by SetMediaState.
const (
	MediaMute   = "mute"
	MediaCamera = "camera"
	MediaScreen = "screen"
)

// InMemoryManager keeps the whole registry under a single mutex. Contention
// is low (one mutation per inbound event) and a single lock is what makes
// the call-room join snapshot and its notifications mutually consistent.
type InMemoryManager struct {
	mu     sync.Mutex
	conns  map[uuid.UUID]*connEntry
	online map[string]uuid.UUID // userID -> current connection
	rooms  map[string]*roomEntry

	logger *slog.Logger
}

type connEntry struct {
	conn  *state.Connection
	rooms map[string]struct{}
}

type roomEntry struct {
	id           string
	call         bool
	conns        map[uuid.UUID]*state.Connection
	participants map[uuid.UUID]*state.Participant
	seqs         map[uuid.UUID]uint64
	nextSeq      uint64
}

func NewInMemoryManager(logger *slog.Logger) *InMemoryManager {
	return &InMemoryManager{
		conns:  make(map[uuid.UUID]*connEntry),
		online: make(map[string]uuid.UUID),
		rooms:  make(map[string]*roomEntry),
		logger: logger.With(slog.String("component", "state_manager_inmemory")),
	}
}

// compile-time check to ensure InMemoryManager implements Manager.
var _ state.Manager = (*InMemoryManager)(nil)

func (m *InMemoryManager) RegisterConnection(t state.Transport) (*state.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	connID := t.ID()
	if _, exists := m.conns[connID]; exists {
		return nil, errors.New("connection is already registered")
	}
	conn := &state.Connection{
		ID:        connID,
		Transport: t,
		CreatedAt: time.Now(),
	}
	m.conns[connID] = &connEntry{conn: conn, rooms: make(map[string]struct{})}
	m.logger.Debug("Connection registered", slog.String("connID", connID.String()))
	return conn, nil
}

func (m *InMemoryManager) DeregisterConnection(connID uuid.UUID) (*state.Departure, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.conns[connID]
	if !ok {
		// already deregistered
		return &state.Departure{}, nil
	}
	delete(m.conns, connID)

	dep := &state.Departure{UserID: entry.conn.UserID}

	// Pull the connection out of every room it was in, collecting user-left
	// notifications for call rooms.
	for roomID := range entry.rooms {
		room, ok := m.rooms[roomID]
		if !ok {
			continue
		}
		delete(room.conns, connID)
		if room.call {
			if p, joined := room.participants[connID]; joined {
				m.removeParticipantLocked(room, connID)
				dep.CallsLeft = append(dep.CallsLeft, state.CallDeparture{
					CallID:    roomID,
					UserID:    p.UserID,
					Remaining: roomTransportsLocked(room),
				})
			}
		}
		m.dropRoomIfEmptyLocked(room)
	}

	// Guard against clobbering a newer connection's registry entry.
	if dep.UserID != "" {
		if current, ok := m.online[dep.UserID]; ok && current == connID {
			delete(m.online, dep.UserID)
			dep.WasCurrent = true
		}
	}

	m.logger.Debug("Connection deregistered", slog.String("connID", connID.String()), slog.String("userID", dep.UserID))
	return dep, nil
}

func (m *InMemoryManager) GetConnection(connID uuid.UUID) (*state.Connection, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.conns[connID]
	if !ok {
		return nil, false
	}
	return entry.conn, true
}

// --- Online Registry ---

func (m *InMemoryManager) Announce(connID uuid.UUID, userID string) (*state.Connection, error) {
	if userID == "" {
		return nil, errors.New("cannot announce an empty userID")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.conns[connID]
	if !ok {
		return nil, errors.New("cannot announce an unknown connection")
	}
	// A connection carries at most one identity. Allowing a change here
	// would strand the old online entry until process restart.
	if entry.conn.UserID != "" && entry.conn.UserID != userID {
		return nil, fmt.Errorf("connection already announced as %q", entry.conn.UserID)
	}
	entry.conn.UserID = userID
	// Last connection wins. A previous connection for the same user stays
	// registered but orphaned until its own disconnect.
	m.online[userID] = connID

	m.logger.Debug("User announced", slog.String("connID", connID.String()), slog.String("userID", userID))
	return entry.conn, nil
}

func (m *InMemoryManager) Resolve(userID string) (*state.Connection, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	connID, ok := m.online[userID]
	if !ok {
		return nil, false
	}
	entry, ok := m.conns[connID]
	if !ok {
		return nil, false
	}
	return entry.conn, true
}

func (m *InMemoryManager) OnlineAmong(userIDs []string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	online := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if _, ok := m.online[id]; ok {
			online = append(online, id)
		}
	}
	return online
}

func (m *InMemoryManager) AllTransports() []state.Transport {
	m.mu.Lock()
	defer m.mu.Unlock()

	ts := make([]state.Transport, 0, len(m.conns))
	for _, entry := range m.conns {
		ts = append(ts, entry.conn.Transport)
	}
	return ts
}

// --- Room Membership ---

func (m *InMemoryManager) JoinRoom(connID uuid.UUID, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.conns[connID]
	if !ok {
		// The connection may have dropped while an auto-join lookup was in
		// flight; joining it now would leak membership.
		return fmt.Errorf("cannot join room %q: connection not registered", roomID)
	}
	room := m.getOrCreateRoomLocked(roomID, false)
	if _, member := room.conns[connID]; member {
		return nil
	}
	room.conns[connID] = entry.conn
	entry.rooms[roomID] = struct{}{}
	m.logger.Debug("Connection joined room", slog.String("connID", connID.String()), slog.String("roomID", roomID))
	return nil
}

func (m *InMemoryManager) LeaveRoom(connID uuid.UUID, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.conns[connID]
	if !ok {
		return nil
	}
	room, ok := m.rooms[roomID]
	if !ok {
		return nil
	}
	if _, member := room.conns[connID]; !member {
		return nil
	}
	delete(room.conns, connID)
	m.removeParticipantLocked(room, connID)
	delete(entry.rooms, roomID)
	m.dropRoomIfEmptyLocked(room)
	m.logger.Debug("Connection left room", slog.String("connID", connID.String()), slog.String("roomID", roomID))
	return nil
}

func (m *InMemoryManager) RoomTransports(roomID string) []state.Transport {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return nil
	}
	return roomTransportsLocked(room)
}

// --- Call Rooms ---

func (m *InMemoryManager) JoinCall(connID uuid.UUID, callID, userID, displayName string) (*state.CallJoin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.conns[connID]
	if !ok {
		return nil, errors.New("cannot join call: connection not registered")
	}
	room := m.getOrCreateRoomLocked(callID, true)
	if !room.call {
		return nil, fmt.Errorf("room %q is not a call room", callID)
	}
	if _, already := room.participants[connID]; already {
		return nil, fmt.Errorf("connection already joined call %q", callID)
	}

	// Snapshot existing participants in join order before admitting the
	// joiner. The joiner offers to each of these; they answer.
	type ordered struct {
		p   state.Participant
		seq uint64
	}
	snapshot := make([]ordered, 0, len(room.participants))
	for id, p := range room.participants {
		snapshot = append(snapshot, ordered{p: *p, seq: room.seqs[id]})
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].seq < snapshot[j].seq })
	others := make([]state.Participant, len(snapshot))
	for i, o := range snapshot {
		others[i] = o.p
	}
	notify := roomTransportsLocked(room)

	room.conns[connID] = entry.conn
	room.participants[connID] = &state.Participant{UserID: userID, DisplayName: displayName}
	room.seqs[connID] = room.nextSeq
	room.nextSeq++
	entry.rooms[callID] = struct{}{}

	m.logger.Debug("User joined call",
		slog.String("connID", connID.String()),
		slog.String("callID", callID),
		slog.String("userID", userID),
	)
	return &state.CallJoin{Others: others, Notify: notify}, nil
}

func (m *InMemoryManager) LeaveCall(connID uuid.UUID, callID string) (*state.CallLeave, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.conns[connID]
	if !ok {
		return nil, errors.New("cannot leave call: connection not registered")
	}
	room, ok := m.rooms[callID]
	if !ok || !room.call {
		return &state.CallLeave{}, nil
	}
	p, joined := room.participants[connID]
	if !joined {
		return &state.CallLeave{}, nil
	}

	m.removeParticipantLocked(room, connID)
	delete(room.conns, connID)
	delete(entry.rooms, callID)
	leave := &state.CallLeave{UserID: p.UserID, Remaining: roomTransportsLocked(room)}
	m.dropRoomIfEmptyLocked(room)

	m.logger.Debug("User left call",
		slog.String("connID", connID.String()),
		slog.String("callID", callID),
		slog.String("userID", p.UserID),
	)
	return leave, nil
}

func (m *InMemoryManager) SetMediaState(connID uuid.UUID, callID, kind string, enabled bool) ([]state.Transport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[callID]
	if !ok || !room.call {
		return nil, fmt.Errorf("call %q not found", callID)
	}
	p, joined := room.participants[connID]
	if !joined {
		return nil, fmt.Errorf("connection is not a participant of call %q", callID)
	}

	switch kind {
	case MediaMute:
		p.Muted = enabled
	case MediaCamera:
		p.CameraOn = enabled
	case MediaScreen:
		p.ScreenSharing = enabled
	default:
		return nil, fmt.Errorf("unknown media kind %q", kind)
	}

	others := make([]state.Transport, 0, len(room.conns)-1)
	for id, c := range room.conns {
		if id == connID {
			continue
		}
		others = append(others, c.Transport)
	}
	return others, nil
}

// --- internal helpers; callers must hold m.mu ---

func (m *InMemoryManager) getOrCreateRoomLocked(roomID string, call bool) *roomEntry {
	room, ok := m.rooms[roomID]
	if !ok {
		room = &roomEntry{
			id:    roomID,
			call:  call,
			conns: make(map[uuid.UUID]*state.Connection),
		}
		if call {
			room.participants = make(map[uuid.UUID]*state.Participant)
			room.seqs = make(map[uuid.UUID]uint64)
		}
		m.rooms[roomID] = room
	}
	return room
}

func (m *InMemoryManager) removeParticipantLocked(room *roomEntry, connID uuid.UUID) {
	if room.participants != nil {
		delete(room.participants, connID)
		delete(room.seqs, connID)
	}
}

func (m *InMemoryManager) dropRoomIfEmptyLocked(room *roomEntry) {
	if len(room.conns) == 0 {
		delete(m.rooms, room.id)
		m.logger.Debug("Removed empty room", slog.String("roomID", room.id))
	}
}

func roomTransportsLocked(room *roomEntry) []state.Transport {
	ts := make([]state.Transport, 0, len(room.conns))
	for _, c := range room.conns {
		ts = append(ts, c.Transport)
	}
	return ts
}
