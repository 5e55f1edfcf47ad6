package server

import (
	"errors"

	"github.com/coder/websocket"
)

// Role distinguishes what an inbound connection is allowed to do. Players own
// a token on the loop; watchers only receive state updates.
type Role string

const (
	RolePlayer  Role = "player"
	RoleWatcher Role = "watcher"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RolePlayer, RoleWatcher:
		return Role(s), nil
	default:
		return "", errors.New("INVALID_ROLE: Role must be 'player' or 'watcher'")
	}
}

// attachment is one live transport handle on a room session. Never persisted;
// the session's conns map is the only place these live.
type attachment struct {
	conn     *websocket.Conn
	connID   string
	role     Role
	playerID string // empty for watchers
}

// attach registers a transport handle with the session.
func (s *RoomSession) attach(conn *websocket.Conn, connID string, role Role, playerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[conn] = &attachment{
		conn:     conn,
		connID:   connID,
		role:     role,
		playerID: playerID,
	}
}

// detach removes a transport handle. Detaching an unknown handle is fine; a
// failed broadcast may have dropped it already.
func (s *RoomSession) detach(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

// ConnectionCount reports how many transport handles are attached.
func (s *RoomSession) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// attachments snapshots the live connection set, minus exclude if non-nil.
func (s *RoomSession) attachments(exclude *websocket.Conn) []*attachment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	atts := make([]*attachment, 0, len(s.conns))
	for conn, att := range s.conns {
		if conn == exclude {
			continue
		}
		atts = append(atts, att)
	}
	return atts
}
