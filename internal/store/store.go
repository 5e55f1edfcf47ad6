package store

import (
	"context"
	"errors"
	"time"

	"loopwalk-server/internal/game"
)

// ErrNotFound is returned by Get when no room exists for the id.
var ErrNotFound = errors.New("ROOM_NOT_FOUND: Room not found")

// Store is the durable room collaborator. Implementations have last-write-wins
// semantics: Put overwrites whatever is there. Serialization of competing
// writers is the session layer's job, not the store's.
type Store interface {
	// Create inserts a new room record. Fails if the id is already taken.
	Create(ctx context.Context, room *game.Room) error

	// Get returns a copy of the room, or ErrNotFound.
	Get(ctx context.Context, roomID string) (*game.Room, error)

	// Put upserts the full room record.
	Put(ctx context.Context, room *game.Room) error

	// Delete removes the room, reporting whether a record existed.
	Delete(ctx context.Context, roomID string) (bool, error)

	// ListActiveSince returns rooms whose lastActiveAt is at or after the
	// given time, most recently active first.
	ListActiveSince(ctx context.Context, since time.Time) ([]*game.Room, error)

	// DeleteInactiveBefore removes rooms whose lastActiveAt is strictly
	// before the cutoff and returns how many were deleted.
	DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int, error)
}
