package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"loopwalk-server/internal/game"
	"loopwalk-server/internal/store"
)

// broadcastTimeout bounds a single send during fan-out so one stuck socket
// can't stall delivery to the rest of the room.
const broadcastTimeout = 5 * time.Second

var errSessionClosed = errors.New("SESSION_CLOSED: Room session shut down")

// RoomSession owns one room's live connections and serializes every mutation
// against that room. The store read, in-memory transition, write, and
// broadcast for one command all run as a single op on the session's queue, so
// two concurrent moves can never interleave on a stale read — the lost-update
// race the shared JSON blob would otherwise invite.
type RoomSession struct {
	roomID string
	store  store.Store

	ops  chan func()
	done chan struct{}
	once sync.Once

	mu    sync.RWMutex
	conns map[*websocket.Conn]*attachment

	// working is the last room state this session loaded or wrote. Only ops
	// touch it, so it needs no lock. It keeps live players operating after
	// the janitor reclaims their store record (lazy cleanup: deletion never
	// forcibly disconnects anyone).
	working *game.Room
}

func newRoomSession(roomID string, st store.Store) *RoomSession {
	s := &RoomSession{
		roomID: roomID,
		store:  st,
		ops:    make(chan func()),
		done:   make(chan struct{}),
		conns:  make(map[*websocket.Conn]*attachment),
	}
	go s.run()
	return s
}

// run is the session's single worker. One op in flight per room, in arrival
// order; rooms don't share workers, so distinct rooms proceed in parallel.
func (s *RoomSession) run() {
	for {
		select {
		case op := <-s.ops:
			op()
		case <-s.done:
			return
		}
	}
}

// do submits fn to the op queue and waits for it to finish. Returns
// errSessionClosed if the session was stopped; callers grab a fresh session
// from the manager and retry.
func (s *RoomSession) do(fn func()) error {
	ran := make(chan struct{})
	select {
	case s.ops <- func() {
		fn()
		close(ran)
	}:
	case <-s.done:
		return errSessionClosed
	}

	<-ran
	return nil
}

func (s *RoomSession) stop() {
	s.once.Do(func() {
		close(s.done)
	})
}

func (s *RoomSession) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// loadRoom fetches the authoritative record. When the record is gone but the
// session has a working copy, that copy is returned with persisted=false so
// the op can proceed without writing to the store.
func (s *RoomSession) loadRoom(ctx context.Context) (room *game.Room, persisted bool, err error) {
	room, err = s.store.Get(ctx, s.roomID)
	if err == nil {
		return room, true, nil
	}
	if errors.Is(err, store.ErrNotFound) && s.working != nil {
		return s.working, false, nil
	}
	return nil, false, err
}

type JoinResult struct {
	PlayerID  string
	Reconnect bool
	Snapshot  StateUpdate
}

// Join resolves new-player vs reconnect by display name. A name already in
// the room means a second controller for the same token: the new handle is
// attached, nothing is mutated, and the existing playerId comes back. A new
// name gets a fresh player at position 0, persisted and announced to every
// other attached connection (the joiner gets its snapshot directly from the
// gateway, not via broadcast).
func (s *RoomSession) Join(ctx context.Context, name string, conn *websocket.Conn, connID string) (JoinResult, error) {
	var res JoinResult
	var opErr error

	err := s.do(func() {
		room, err := s.store.Get(ctx, s.roomID)
		if err != nil {
			opErr = err
			return
		}

		if p := room.PlayerByName(name); p != nil {
			s.attach(conn, connID, RolePlayer, p.ID)
			s.working = room
			res = JoinResult{
				PlayerID:  p.ID,
				Reconnect: true,
				Snapshot:  buildSnapshot(room),
			}
			return
		}

		if len(room.Players) >= room.MaxPlayers {
			opErr = game.ErrRoomFull
			return
		}

		playerID := uuid.New().String()
		if err := room.AddPlayer(playerID, name); err != nil {
			opErr = err
			return
		}
		room.Touch()

		if err := s.store.Put(ctx, room); err != nil {
			opErr = err
			return
		}

		s.attach(conn, connID, RolePlayer, playerID)
		s.working = room

		snapshot := buildSnapshot(room)
		s.broadcastSnapshot(snapshot, conn)

		res = JoinResult{
			PlayerID: playerID,
			Snapshot: snapshot,
		}
	})
	if err != nil {
		return JoinResult{}, err
	}

	return res, opErr
}

// Watch attaches a read-only connection and returns the current snapshot.
func (s *RoomSession) Watch(ctx context.Context, conn *websocket.Conn, connID string) (StateUpdate, error) {
	var snapshot StateUpdate
	var opErr error

	err := s.do(func() {
		room, err := s.store.Get(ctx, s.roomID)
		if err != nil {
			opErr = err
			return
		}
		s.attach(conn, connID, RoleWatcher, "")
		s.working = room
		snapshot = buildSnapshot(room)
	})
	if err != nil {
		return StateUpdate{}, err
	}

	return snapshot, opErr
}

// Move re-reads the authoritative record, applies the single-step transition,
// persists, and broadcasts the new snapshot to every attached connection.
func (s *RoomSession) Move(ctx context.Context, playerID string, dir game.Direction) (StateUpdate, error) {
	var snapshot StateUpdate
	var opErr error

	err := s.do(func() {
		room, persisted, err := s.loadRoom(ctx)
		if err != nil {
			opErr = err
			return
		}

		if err := room.MovePlayer(playerID, dir); err != nil {
			opErr = err
			return
		}
		room.Touch()

		if persisted {
			if err := s.store.Put(ctx, room); err != nil {
				opErr = err
				return
			}
		}
		s.working = room

		snapshot = buildSnapshot(room)
		s.broadcastSnapshot(snapshot, nil)
	})
	if err != nil {
		return StateUpdate{}, err
	}

	return snapshot, opErr
}

// Leave eagerly removes the player record, persists, and broadcasts to the
// remaining connections. Silent when the room record is already gone — the
// janitor may have reclaimed it while connections were still attached.
func (s *RoomSession) Leave(ctx context.Context, playerID string, exclude *websocket.Conn) error {
	var opErr error

	err := s.do(func() {
		room, persisted, err := s.loadRoom(ctx)
		if errors.Is(err, store.ErrNotFound) {
			return
		}
		if err != nil {
			opErr = err
			return
		}

		room.RemovePlayer(playerID)
		room.Touch()

		if persisted {
			if err := s.store.Put(ctx, room); err != nil {
				opErr = err
				return
			}
		}
		s.working = room

		s.broadcastSnapshot(buildSnapshot(room), exclude)
	})
	if err != nil {
		return err
	}

	return opErr
}

// broadcastSnapshot fans a state_update out to every attached connection
// except exclude. A failed send drops only that connection: it is removed
// from the set and force-closed, and its reader goroutine then runs the
// normal teardown (leave + detach) asynchronously.
func (s *RoomSession) broadcastSnapshot(snapshot StateUpdate, exclude *websocket.Conn) {
	data, err := json.Marshal(ServerMessage{
		Type:    "state_update",
		Payload: snapshot,
	})
	if err != nil {
		log.Printf("Failed to marshal state_update for room %s: %v", s.roomID, err)
		return
	}

	for _, att := range s.attachments(exclude) {
		ctx, cancel := context.WithTimeout(context.Background(), broadcastTimeout)
		err := att.conn.Write(ctx, websocket.MessageText, data)
		cancel()

		if err != nil {
			log.Printf("Broadcast to connection %s in room %s failed: %v", att.connID, s.roomID, err)
			s.dropConnection(att)
		}
	}
}

// dropConnection removes a dead connection from the set and closes it. The
// close unblocks the owning read loop, which runs the usual teardown path.
func (s *RoomSession) dropConnection(att *attachment) {
	s.detach(att.conn)
	go att.conn.Close(websocket.StatusInternalError, "send failed")
}
