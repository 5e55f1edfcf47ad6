package server

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"loopwalk-server/internal/store"
)

func TestSessionManager_GetOrCreateReturnsSameSession(t *testing.T) {
	m := NewSessionManager(store.NewMemory())

	s1 := m.GetOrCreate("ABCD")
	s2 := m.GetOrCreate("ABCD")

	assert.Same(t, s1, s2)
	assert.Equal(t, 1, m.SessionCount())

	other := m.GetOrCreate("WXYZ")
	assert.NotSame(t, s1, other)
	assert.Equal(t, 2, m.SessionCount())
}

func TestSessionManager_ReapStopsEmptySession(t *testing.T) {
	m := NewSessionManager(store.NewMemory())

	s := m.GetOrCreate("ABCD")
	m.Reap(s)

	assert.True(t, s.closed())
	assert.Equal(t, 0, m.SessionCount())

	// A stopped session refuses new ops
	err := s.do(func() {})
	assert.True(t, errors.Is(err, errSessionClosed))
}

func TestSessionManager_GetOrCreateReplacesStoppedSession(t *testing.T) {
	m := NewSessionManager(store.NewMemory())

	s1 := m.GetOrCreate("ABCD")
	m.Reap(s1)

	s2 := m.GetOrCreate("ABCD")
	assert.NotSame(t, s1, s2)
	assert.False(t, s2.closed())
}

func TestRoomSession_DoRunsOpsInOrder(t *testing.T) {
	s := newRoomSession("ABCD", store.NewMemory())
	defer s.stop()

	var order []int
	for i := 0; i < 5; i++ {
		n := i
		if err := s.do(func() { order = append(order, n) }); err != nil {
			t.Fatalf("Op %d failed: %v", n, err)
		}
	}

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

// A room record reclaimed by the janitor while a player is still connected
// must not break that player: the session keeps operating on its working copy
// and simply stops persisting.
func TestWebsocket_SurvivesRoomDeletion(t *testing.T) {
	s, wsURL, cleanup := setupTestServer()
	defer cleanup()

	roomID := createTestRoom(t, s, "Doomed Room", 4, 10)

	conn := dialRoom(t, wsURL, roomID, RolePlayer, "Alice")
	readIdentity(t, conn)
	readStateUpdate(t, conn)

	sendMove(t, conn, "forward")
	readStateUpdate(t, conn)

	existed, err := s.store.Delete(t.Context(), roomID)
	if err != nil || !existed {
		t.Fatalf("Failed to delete room record: existed=%v err=%v", existed, err)
	}

	// Moves still work against the in-memory session
	sendMove(t, conn, "forward")
	update := readStateUpdate(t, conn)
	assert.Equal(t, 2, positionOf(t, update, "Alice"))

	// The record stays gone
	_, err = s.store.Get(t.Context(), roomID)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}
