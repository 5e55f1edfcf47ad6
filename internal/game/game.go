package game

import (
	"errors"
	"time"
)

const (
	MinPlayers      = 2
	MaxPlayers      = 5
	MinLoopSize     = 2
	DefaultLoopSize = 10
)

var (
	ErrRoomFull       = errors.New("ROOM_FULL: Room is at player capacity")
	ErrNameTaken      = errors.New("NAME_TAKEN: Display name already in use")
	ErrPlayerNotFound = errors.New("PLAYER_NOT_FOUND: No such player in room")
)

type Direction string

const (
	Forward  Direction = "forward"
	Backward Direction = "backward"
)

// ParseDirection validates a client-supplied direction string.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case Forward, Backward:
		return Direction(s), nil
	default:
		return "", errors.New("INVALID_DIRECTION: Direction must be 'forward' or 'backward'")
	}
}

// Player is one token on the loop. ID is stable across reconnects as long
// as the player record survives; Position is always in [0, loopSize).
type Player struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
}

// Room is the authoritative game record. The store owns it; sessions load a
// fresh copy per mutation, so transition methods mutate the receiver directly.
type Room struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	MaxPlayers   int                `json:"maxPlayers"`
	LoopSize     int                `json:"loopSize"`
	Players      map[string]*Player `json:"players"`
	CreatedAt    time.Time          `json:"createdAt"`
	LastActiveAt time.Time          `json:"lastActiveAt"`
}

func NewRoom(id, name string, maxPlayers, loopSize int) *Room {
	if loopSize < MinLoopSize {
		loopSize = DefaultLoopSize
	}
	now := time.Now()
	return &Room{
		ID:           id,
		Name:         name,
		MaxPlayers:   maxPlayers,
		LoopSize:     loopSize,
		Players:      make(map[string]*Player),
		CreatedAt:    now,
		LastActiveAt: now,
	}
}

// PlayerByName returns the player with the exact (case-sensitive) display
// name, or nil. Name uniqueness within a room makes this lookup well-defined.
func (r *Room) PlayerByName(name string) *Player {
	for _, p := range r.Players {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// AddPlayer creates a new player at position 0.
func (r *Room) AddPlayer(playerID, name string) error {
	if len(r.Players) >= r.MaxPlayers {
		return ErrRoomFull
	}
	if r.PlayerByName(name) != nil {
		return ErrNameTaken
	}
	r.Players[playerID] = &Player{
		ID:       playerID,
		Name:     name,
		Position: 0,
	}
	return nil
}

// RemovePlayer deletes the player record. Removing an absent player is not
// an error; disconnect teardown can race a removal that already happened.
func (r *Room) RemovePlayer(playerID string) {
	delete(r.Players, playerID)
}

// MovePlayer steps the player one cell around the loop. The +LoopSize term
// keeps backward moves from position 0 out of negative territory.
func (r *Room) MovePlayer(playerID string, dir Direction) error {
	p, exists := r.Players[playerID]
	if !exists {
		return ErrPlayerNotFound
	}

	step := 1
	if dir == Backward {
		step = -1
	}
	p.Position = (p.Position + step + r.LoopSize) % r.LoopSize

	return nil
}

// Touch updates the activity timestamp; called on every persisted mutation
// so the janitor only reclaims genuinely idle rooms.
func (r *Room) Touch() {
	r.LastActiveAt = time.Now()
}

// Clone returns a deep copy. Stores hand out clones so no caller ever
// mutates a record shared with another goroutine.
func (r *Room) Clone() *Room {
	c := *r
	c.Players = make(map[string]*Player, len(r.Players))
	for id, p := range r.Players {
		pc := *p
		c.Players[id] = &pc
	}
	return &c
}
