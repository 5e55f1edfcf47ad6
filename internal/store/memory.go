package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"loopwalk-server/internal/game"
)

// Memory is an in-process Store. It backs unit tests and store-less
// development runs; the server uses Postgres in normal operation.
type Memory struct {
	rooms map[string]*game.Room
	mu    sync.RWMutex
}

func NewMemory() *Memory {
	return &Memory{
		rooms: make(map[string]*game.Room),
	}
}

func (m *Memory) Create(ctx context.Context, room *game.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rooms[room.ID]; exists {
		return errors.New("ROOM_EXISTS: Room id already in use")
	}
	m.rooms[room.ID] = room.Clone()
	return nil
}

func (m *Memory) Get(ctx context.Context, roomID string) (*game.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	room, exists := m.rooms[roomID]
	if !exists {
		return nil, ErrNotFound
	}
	return room.Clone(), nil
}

func (m *Memory) Put(ctx context.Context, room *game.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[room.ID] = room.Clone()
	return nil
}

func (m *Memory) Delete(ctx context.Context, roomID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, exists := m.rooms[roomID]
	delete(m.rooms, roomID)
	return exists, nil
}

func (m *Memory) ListActiveSince(ctx context.Context, since time.Time) ([]*game.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var rooms []*game.Room
	for _, room := range m.rooms {
		if !room.LastActiveAt.Before(since) {
			rooms = append(rooms, room.Clone())
		}
	}
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].LastActiveAt.After(rooms[j].LastActiveAt)
	})
	return rooms, nil
}

func (m *Memory) DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for id, room := range m.rooms {
		if room.LastActiveAt.Before(cutoff) {
			delete(m.rooms, id)
			deleted++
		}
	}
	return deleted, nil
}
