package server

import (
	"log"
	"sync"

	"github.com/coder/websocket"

	"loopwalk-server/internal/store"
)

// SessionManager hands out at most one live RoomSession per room id. Session
// creation and teardown are serialized here, so two gateways racing to join
// the same room always land on the same session.
type SessionManager struct {
	store    store.Store
	sessions map[string]*RoomSession
	mu       sync.Mutex
}

func NewSessionManager(st store.Store) *SessionManager {
	return &SessionManager{
		store:    st,
		sessions: make(map[string]*RoomSession),
	}
}

// GetOrCreate returns the live session for a room, constructing one on
// demand. A session stopped between lookup and use surfaces as
// errSessionClosed from its operations; callers just call GetOrCreate again.
func (m *SessionManager) GetOrCreate(roomID string) *RoomSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, exists := m.sessions[roomID]; exists && !s.closed() {
		return s
	}

	s := newRoomSession(roomID, m.store)
	m.sessions[roomID] = s
	return s
}

// Detach removes a connection from its session and discards the session once
// the last connection is gone. Holding the manager lock across both steps
// keeps teardown from racing a concurrent GetOrCreate.
func (m *SessionManager) Detach(s *RoomSession, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s.detach(conn)
	m.reapLocked(s)
}

// Reap discards a session that never got a connection attached, e.g. after a
// failed join on a room id with no record.
func (m *SessionManager) Reap(s *RoomSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reapLocked(s)
}

func (m *SessionManager) reapLocked(s *RoomSession) {
	if s.ConnectionCount() > 0 {
		return
	}
	if current, exists := m.sessions[s.roomID]; exists && current == s {
		delete(m.sessions, s.roomID)
	}
	s.stop()
}

// SessionCount reports how many rooms currently have live sessions.
func (m *SessionManager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CloseAll force-closes every attached connection; used during shutdown.
func (m *SessionManager) CloseAll(code websocket.StatusCode, reason string) {
	m.mu.Lock()
	sessions := make([]*RoomSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		for _, att := range s.attachments(nil) {
			if err := att.conn.Close(code, reason); err != nil {
				log.Printf("Failed to close connection %s: %v", att.connID, err)
			}
		}
	}
}
