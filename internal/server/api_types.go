package server

import (
	"sort"
	"time"

	"loopwalk-server/internal/game"
)

// ============================================================================
// ERROR RESPONSES
// ============================================================================
// tygo:generate
type ErrorMessage struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ============================================================================
// IDENTITY (identity) — sent once, only to the joining connection
// ============================================================================
// tygo:generate
type IdentityMessage struct {
	PlayerID string `json:"playerId"`
}

// ============================================================================
// STATE UPDATE (state_update broadcast)
// ============================================================================
// tygo:generate
type StateUpdate struct {
	RoomName   string        `json:"roomName"`
	Players    []PlayerState `json:"players"`
	MaxPlayers int           `json:"maxPlayers"`
	LoopSize   int           `json:"loopSize"`
}

// tygo:generate
type PlayerState struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
}

// ============================================================================
// MOVE COMMAND (move)
// ============================================================================
// tygo:generate
type MoveCommand struct {
	Direction string `json:"direction"`
}

// ============================================================================
// ADMIN SURFACE (room CRUD over HTTP)
// ============================================================================
// tygo:generate
type CreateRoomRequest struct {
	Name       string `json:"name"`
	MaxPlayers int    `json:"maxPlayers"`
	LoopSize   int    `json:"loopSize,omitempty"`
}

// tygo:generate
type RoomSummary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	PlayerCount  int       `json:"playerCount"`
	MaxPlayers   int       `json:"maxPlayers"`
	LoopSize     int       `json:"loopSize"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActiveAt time.Time `json:"lastActiveAt"`
}

// buildSnapshot renders the canonical post-mutation state of a room. Always
// the full state, never a delta, so a missed broadcast self-heals on the next
// one. Players are sorted by name for stable output.
func buildSnapshot(room *game.Room) StateUpdate {
	players := make([]PlayerState, 0, len(room.Players))
	for _, p := range room.Players {
		players = append(players, PlayerState{
			ID:       p.ID,
			Name:     p.Name,
			Position: p.Position,
		})
	}
	sort.Slice(players, func(i, j int) bool {
		return players[i].Name < players[j].Name
	})

	return StateUpdate{
		RoomName:   room.Name,
		Players:    players,
		MaxPlayers: room.MaxPlayers,
		LoopSize:   room.LoopSize,
	}
}

func buildRoomSummary(room *game.Room) RoomSummary {
	return RoomSummary{
		ID:           room.ID,
		Name:         room.Name,
		PlayerCount:  len(room.Players),
		MaxPlayers:   room.MaxPlayers,
		LoopSize:     room.LoopSize,
		CreatedAt:    room.CreatedAt,
		LastActiveAt: room.LastActiveAt,
	}
}
