package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"loopwalk-server/internal/game"
)

// Postgres persists each room as a single JSON blob row keyed by room id.
// The blob is the whole authoritative record; partial updates don't exist,
// which matches the last-write-wins contract of Store.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (s *Postgres) Create(ctx context.Context, room *game.Room) error {
	state, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("failed to serialize room %s: %w", room.ID, err)
	}

	query := `
		INSERT INTO rooms (room_id, name, state, created_at, last_active_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err = s.pool.Exec(ctx, query, room.ID, room.Name, state, room.CreatedAt, room.LastActiveAt)
	if err != nil {
		return fmt.Errorf("failed to create room %s: %w", room.ID, err)
	}

	return nil
}

func (s *Postgres) Get(ctx context.Context, roomID string) (*game.Room, error) {
	query := `SELECT state FROM rooms WHERE room_id = $1`

	var state []byte
	err := s.pool.QueryRow(ctx, query, roomID).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load room %s: %w", roomID, err)
	}

	var room game.Room
	if err := json.Unmarshal(state, &room); err != nil {
		return nil, fmt.Errorf("failed to deserialize room %s: %w", roomID, err)
	}
	if room.Players == nil {
		room.Players = make(map[string]*game.Player)
	}

	return &room, nil
}

func (s *Postgres) Put(ctx context.Context, room *game.Room) error {
	state, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("failed to serialize room %s: %w", room.ID, err)
	}

	query := `
		INSERT INTO rooms (room_id, name, state, created_at, last_active_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (room_id) DO UPDATE
		SET state = EXCLUDED.state, last_active_at = EXCLUDED.last_active_at
	`

	_, err = s.pool.Exec(ctx, query, room.ID, room.Name, state, room.CreatedAt, room.LastActiveAt)
	if err != nil {
		return fmt.Errorf("failed to save room %s: %w", room.ID, err)
	}

	return nil
}

func (s *Postgres) Delete(ctx context.Context, roomID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM rooms WHERE room_id = $1`, roomID)
	if err != nil {
		return false, fmt.Errorf("failed to delete room %s: %w", roomID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Postgres) ListActiveSince(ctx context.Context, since time.Time) ([]*game.Room, error) {
	query := `
		SELECT state FROM rooms
		WHERE last_active_at >= $1
		ORDER BY last_active_at DESC
	`

	rows, err := s.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*game.Room
	for rows.Next() {
		var state []byte
		if err := rows.Scan(&state); err != nil {
			return nil, fmt.Errorf("failed to scan room row: %w", err)
		}

		var room game.Room
		if err := json.Unmarshal(state, &room); err != nil {
			// Skip a corrupted blob rather than failing the whole listing
			log.Printf("Failed to deserialize room row: %v", err)
			continue
		}
		if room.Players == nil {
			room.Players = make(map[string]*game.Player)
		}
		rooms = append(rooms, &room)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating room rows: %w", err)
	}

	return rooms, nil
}

func (s *Postgres) DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM rooms WHERE last_active_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete inactive rooms: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
