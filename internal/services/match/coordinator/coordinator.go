// Package coordinator pairs two connections into a session and relays opaque
// moves between them.
//
// The coordinator owns the session registry and nothing else: it never
// interprets moves, owns no timers and talks to peers only through the
// Transport it is given. Every exported operation runs under one mutex, so
// two events touching the same session never interleave.
package coordinator

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	apperrors "github.com/louisbranch/duelhall/internal/platform/errors"
	"github.com/louisbranch/duelhall/internal/platform/id"
)

// Outbound event names.
const (
	EventOpponentJoined     = "opponentJoined"
	EventMove               = "move"
	EventPlayerDisconnected = "playerDisconnected"
	EventCloseRoom          = "closeRoom"
)

const maxPlayers = 2

var (
	ErrRoomNotFound = apperrors.New(apperrors.CodeRoomNotFound, "room does not exist")
	ErrRoomEmpty    = apperrors.New(apperrors.CodeRoomEmpty, "room is empty")
	ErrRoomFull     = apperrors.New(apperrors.CodeRoomFull, "room is full")
)

// ConnID identifies one live connection. The transport assigns it and it is
// never reused.
type ConnID string

// Participant is a connection as known to a session.
type Participant struct {
	ID       ConnID `json:"id"`
	Username string `json:"username"`
}

// RoomSnapshot is the membership of a session in join order; index 0 created
// the session.
type RoomSnapshot struct {
	RoomID  string        `json:"roomId"`
	Players []Participant `json:"players"`
}

// ClosePayload is broadcast to the remaining members of a closed session.
type ClosePayload struct {
	RoomID string `json:"roomId"`
}

// Transport is the messaging layer the coordinator drives. Implementations
// must not block: sends are fire-and-forget.
type Transport interface {
	JoinGroup(conn ConnID, group string)
	LeaveGroup(conn ConnID, group string)
	// Emit sends one event to one connection.
	Emit(conn ConnID, event string, payload any)
	// Broadcast sends to every member of group except except (which may be empty).
	Broadcast(group string, event string, payload any, except ConnID)
	GroupMembers(group string) []ConnID
}

// Options tunes coordinator policy. The zero value is the permissive default.
type Options struct {
	// StrictMembership drops moves and close requests from connections that
	// are not participants of the target session.
	StrictMembership bool
	// Recorder receives lifecycle events. It is called with the registry lock
	// held and must not block.
	Recorder Recorder
	// NewID generates session ids; defaults to id.New.
	NewID func() string
	// Clock stamps lifecycle events; defaults to time.Now.
	Clock func() time.Time
}

// Stats is a point-in-time view of the registry.
type Stats struct {
	OpenSessions      int `json:"openSessions"`
	FullSessions      int `json:"fullSessions"`
	SeatedConnections int `json:"seatedConnections"`
}

type session struct {
	id      string
	players []Participant
}

func (s *session) snapshot() RoomSnapshot {
	players := make([]Participant, len(s.players))
	copy(players, s.players)
	return RoomSnapshot{RoomID: s.id, Players: players}
}

func (s *session) has(conn ConnID) bool {
	for _, p := range s.players {
		if p.ID == conn {
			return true
		}
	}
	return false
}

// Coordinator is the authoritative session registry.
type Coordinator struct {
	mu        sync.Mutex
	transport Transport
	opts      Options

	sessions  map[string]*session
	seats     map[ConnID]map[string]struct{} // connection -> session ids it sits in
	usernames map[ConnID]string
}

// New returns a coordinator that emits through transport.
func New(transport Transport, opts Options) *Coordinator {
	if opts.NewID == nil {
		opts.NewID = id.New
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Coordinator{
		transport: transport,
		opts:      opts,
		sessions:  make(map[string]*session),
		seats:     make(map[ConnID]map[string]struct{}),
		usernames: make(map[ConnID]string),
	}
}

// AnnounceIdentity records username for conn, as-is, and refreshes it in
// every session conn already sits in.
func (c *Coordinator) AnnounceIdentity(conn ConnID, username string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.usernames[conn] = username
	for roomID := range c.seats[conn] {
		s := c.sessions[roomID]
		if s == nil {
			continue
		}
		for i := range s.players {
			if s.players[i].ID == conn {
				s.players[i].Username = username
			}
		}
	}
}

// CreateSession opens a session with conn as its only participant and
// returns the new session id.
func (c *Coordinator) CreateSession(conn ConnID) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	roomID := c.freshID()
	creator := Participant{ID: conn, Username: c.usernames[conn]}
	c.sessions[roomID] = &session{id: roomID, players: []Participant{creator}}
	c.seat(conn, roomID)
	c.transport.JoinGroup(conn, roomID)

	c.record(Event{Kind: KindCreated, RoomID: roomID, ConnID: conn, Username: creator.Username})
	log.Printf("match: session created room=%q conn=%q", roomID, conn)
	return roomID
}

// JoinSession seats conn as the second participant of roomID. On success the
// full snapshot is returned to the caller and broadcast to the other member
// as opponentJoined. Failures leave the registry untouched.
func (c *Coordinator) JoinSession(conn ConnID, roomID string) (RoomSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[roomID]
	var err *apperrors.Error
	switch {
	case !ok:
		err = ErrRoomNotFound
	case len(s.players) == 0:
		err = ErrRoomEmpty
	case len(s.players) >= maxPlayers:
		err = ErrRoomFull
	}
	if err != nil {
		c.record(Event{Kind: KindJoinRejected, RoomID: roomID, ConnID: conn, Username: c.usernames[conn], Code: err.Code})
		return RoomSnapshot{}, err
	}

	joiner := Participant{ID: conn, Username: c.usernames[conn]}
	s.players = append(s.players, joiner)
	c.seat(conn, roomID)
	c.transport.JoinGroup(conn, roomID)

	snapshot := s.snapshot()
	c.transport.Broadcast(roomID, EventOpponentJoined, snapshot, conn)

	c.record(Event{Kind: KindJoined, RoomID: roomID, ConnID: conn, Username: joiner.Username})
	log.Printf("match: session joined room=%q conn=%q", roomID, conn)
	return snapshot, nil
}

// RelayMove forwards move, byte for byte, to every other member of roomID.
// Nothing is validated; with no other member the move is dropped.
func (c *Coordinator) RelayMove(conn ConnID, roomID string, move json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.opts.StrictMembership && !c.isParticipant(conn, roomID) {
		return
	}
	c.transport.Broadcast(roomID, EventMove, move, conn)
}

// Disconnect releases everything conn held. Sessions it was alone in are
// deleted; in shared sessions the remaining member receives
// playerDisconnected with conn's last-known participant data.
func (c *Coordinator) Disconnect(conn ConnID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for roomID := range c.seats[conn] {
		s := c.sessions[roomID]
		if s == nil {
			continue
		}
		departing := Participant{ID: conn, Username: c.usernames[conn]}
		remaining := s.players[:0]
		for _, p := range s.players {
			if p.ID == conn {
				departing = p
				continue
			}
			remaining = append(remaining, p)
		}
		s.players = remaining
		c.transport.LeaveGroup(conn, roomID)

		if len(remaining) == 0 {
			delete(c.sessions, roomID)
			c.record(Event{Kind: KindAbandoned, RoomID: roomID, ConnID: conn, Username: departing.Username})
			log.Printf("match: session abandoned room=%q conn=%q", roomID, conn)
			continue
		}
		c.transport.Broadcast(roomID, EventPlayerDisconnected, departing, conn)
		c.record(Event{Kind: KindPeerDisconnected, RoomID: roomID, ConnID: conn, Username: departing.Username})
		log.Printf("match: peer disconnected room=%q conn=%q", roomID, conn)
	}
	delete(c.seats, conn)
	delete(c.usernames, conn)
}

// CloseSession notifies the other members of roomID, empties its transport
// group and deletes it. Closing an unknown or already closed session is a
// no-op on the registry.
func (c *Coordinator) CloseSession(conn ConnID, roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.opts.StrictMembership && !c.isParticipant(conn, roomID) {
		return
	}

	c.transport.Broadcast(roomID, EventCloseRoom, ClosePayload{RoomID: roomID}, conn)
	for _, member := range c.transport.GroupMembers(roomID) {
		c.transport.LeaveGroup(member, roomID)
	}

	s, ok := c.sessions[roomID]
	if !ok {
		return
	}
	for _, p := range s.players {
		c.unseat(p.ID, roomID)
	}
	delete(c.sessions, roomID)
	c.record(Event{Kind: KindClosed, RoomID: roomID, ConnID: conn, Username: c.usernames[conn]})
	log.Printf("match: session closed room=%q conn=%q", roomID, conn)
}

// Snapshot returns the current membership of roomID.
func (c *Coordinator) Snapshot(roomID string) (RoomSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[roomID]
	if !ok {
		return RoomSnapshot{}, false
	}
	return s.snapshot(), true
}

// Stats counts live sessions by state.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{SeatedConnections: len(c.seats)}
	for _, s := range c.sessions {
		if len(s.players) >= maxPlayers {
			stats.FullSessions++
		} else {
			stats.OpenSessions++
		}
	}
	return stats
}

func (c *Coordinator) freshID() string {
	for {
		roomID := c.opts.NewID()
		if _, taken := c.sessions[roomID]; !taken && roomID != "" {
			return roomID
		}
	}
}

func (c *Coordinator) isParticipant(conn ConnID, roomID string) bool {
	s, ok := c.sessions[roomID]
	return ok && s.has(conn)
}

func (c *Coordinator) seat(conn ConnID, roomID string) {
	rooms, ok := c.seats[conn]
	if !ok {
		rooms = make(map[string]struct{})
		c.seats[conn] = rooms
	}
	rooms[roomID] = struct{}{}
}

func (c *Coordinator) unseat(conn ConnID, roomID string) {
	rooms, ok := c.seats[conn]
	if !ok {
		return
	}
	delete(rooms, roomID)
	if len(rooms) == 0 {
		delete(c.seats, conn)
	}
}

func (c *Coordinator) record(evt Event) {
	if c.opts.Recorder == nil {
		return
	}
	evt.OccurredAt = c.opts.Clock().UTC()
	c.opts.Recorder.Record(evt)
}
