package game

import (
	"errors"
	"fmt"
	"testing"
)

func TestAddPlayer_Success(t *testing.T) {
	room := NewRoom("ABCD", "Test Room", 4, 10)

	if err := room.AddPlayer("p1", "Alice"); err != nil {
		t.Fatalf("AddPlayer failed: %v", err)
	}

	p := room.Players["p1"]
	if p == nil {
		t.Fatal("Player p1 not found after AddPlayer")
	}
	if p.Name != "Alice" {
		t.Errorf("Name mismatch: got %s, want Alice", p.Name)
	}
	if p.Position != 0 {
		t.Errorf("New player should start at position 0, got %d", p.Position)
	}
}

func TestAddPlayer_RoomFull(t *testing.T) {
	room := NewRoom("ABCD", "Test Room", 2, 10)

	if err := room.AddPlayer("p1", "Alice"); err != nil {
		t.Fatalf("AddPlayer failed: %v", err)
	}
	if err := room.AddPlayer("p2", "Bob"); err != nil {
		t.Fatalf("AddPlayer failed: %v", err)
	}

	err := room.AddPlayer("p3", "Carol")
	if !errors.Is(err, ErrRoomFull) {
		t.Errorf("Expected ErrRoomFull, got %v", err)
	}

	// A failed join must not mutate state
	if len(room.Players) != 2 {
		t.Errorf("Player count changed on failed join: got %d, want 2", len(room.Players))
	}
}

func TestAddPlayer_NameTaken(t *testing.T) {
	room := NewRoom("ABCD", "Test Room", 4, 10)

	if err := room.AddPlayer("p1", "Alice"); err != nil {
		t.Fatalf("AddPlayer failed: %v", err)
	}

	err := room.AddPlayer("p2", "Alice")
	if !errors.Is(err, ErrNameTaken) {
		t.Errorf("Expected ErrNameTaken, got %v", err)
	}
	if len(room.Players) != 1 {
		t.Errorf("Player count changed on rejected name: got %d, want 1", len(room.Players))
	}
}

func TestAddPlayer_NameIsCaseSensitive(t *testing.T) {
	room := NewRoom("ABCD", "Test Room", 4, 10)

	if err := room.AddPlayer("p1", "Alice"); err != nil {
		t.Fatalf("AddPlayer failed: %v", err)
	}
	if err := room.AddPlayer("p2", "alice"); err != nil {
		t.Errorf("Names differing in case should both be allowed, got %v", err)
	}
}

func TestRemovePlayer_AbsentIsNoop(t *testing.T) {
	room := NewRoom("ABCD", "Test Room", 4, 10)

	if err := room.AddPlayer("p1", "Alice"); err != nil {
		t.Fatalf("AddPlayer failed: %v", err)
	}

	room.RemovePlayer("nonexistent")
	if len(room.Players) != 1 {
		t.Errorf("Removing absent player changed state: got %d players", len(room.Players))
	}

	room.RemovePlayer("p1")
	if len(room.Players) != 0 {
		t.Errorf("Player not removed: got %d players", len(room.Players))
	}

	// Removing twice is still fine
	room.RemovePlayer("p1")
}

func TestMovePlayer_ForwardWrapsAtLoopEnd(t *testing.T) {
	room := NewRoom("ABCD", "Test Room", 4, 5)
	if err := room.AddPlayer("p1", "Alice"); err != nil {
		t.Fatalf("AddPlayer failed: %v", err)
	}

	for i := 1; i <= 5; i++ {
		if err := room.MovePlayer("p1", Forward); err != nil {
			t.Fatalf("MovePlayer failed: %v", err)
		}
		want := i % 5
		if got := room.Players["p1"].Position; got != want {
			t.Errorf("After %d forward moves: got position %d, want %d", i, got, want)
		}
	}
}

func TestMovePlayer_BackwardFromZeroWraps(t *testing.T) {
	room := NewRoom("ABCD", "Test Room", 4, 10)
	if err := room.AddPlayer("p1", "Alice"); err != nil {
		t.Fatalf("AddPlayer failed: %v", err)
	}

	// Position 0 moving backward must land on loopSize-1, never go negative
	if err := room.MovePlayer("p1", Backward); err != nil {
		t.Fatalf("MovePlayer failed: %v", err)
	}
	if got := room.Players["p1"].Position; got != 9 {
		t.Errorf("Backward from 0: got position %d, want 9", got)
	}
}

func TestMovePlayer_RoundTripRestoresPosition(t *testing.T) {
	// forward then backward restores the original position, for any start cell
	for start := 0; start < 10; start++ {
		room := NewRoom("ABCD", "Test Room", 4, 10)
		if err := room.AddPlayer("p1", "Alice"); err != nil {
			t.Fatalf("AddPlayer failed: %v", err)
		}
		room.Players["p1"].Position = start

		if err := room.MovePlayer("p1", Forward); err != nil {
			t.Fatalf("MovePlayer forward failed: %v", err)
		}
		if err := room.MovePlayer("p1", Backward); err != nil {
			t.Fatalf("MovePlayer backward failed: %v", err)
		}

		if got := room.Players["p1"].Position; got != start {
			t.Errorf("Round trip from %d: got %d", start, got)
		}
	}
}

func TestMovePlayer_PositionStaysOnLoop(t *testing.T) {
	room := NewRoom("ABCD", "Test Room", 4, 3)
	if err := room.AddPlayer("p1", "Alice"); err != nil {
		t.Fatalf("AddPlayer failed: %v", err)
	}

	dirs := []Direction{Forward, Backward, Backward, Forward, Backward, Forward, Forward}
	for _, dir := range dirs {
		if err := room.MovePlayer("p1", dir); err != nil {
			t.Fatalf("MovePlayer failed: %v", err)
		}
		pos := room.Players["p1"].Position
		if pos < 0 || pos >= room.LoopSize {
			t.Fatalf("Position %d outside [0, %d)", pos, room.LoopSize)
		}
	}
}

func TestMovePlayer_NotFound(t *testing.T) {
	room := NewRoom("ABCD", "Test Room", 4, 10)

	err := room.MovePlayer("ghost", Forward)
	if !errors.Is(err, ErrPlayerNotFound) {
		t.Errorf("Expected ErrPlayerNotFound, got %v", err)
	}
}

func TestParseDirection(t *testing.T) {
	if _, err := ParseDirection("forward"); err != nil {
		t.Errorf("forward should parse: %v", err)
	}
	if _, err := ParseDirection("backward"); err != nil {
		t.Errorf("backward should parse: %v", err)
	}
	if _, err := ParseDirection("sideways"); err == nil {
		t.Error("sideways should not parse")
	}
	if _, err := ParseDirection(""); err == nil {
		t.Error("empty direction should not parse")
	}
}

func TestNewRoom_LoopSizeDefault(t *testing.T) {
	room := NewRoom("ABCD", "Test Room", 4, 0)
	if room.LoopSize != DefaultLoopSize {
		t.Errorf("LoopSize default: got %d, want %d", room.LoopSize, DefaultLoopSize)
	}

	room = NewRoom("ABCD", "Test Room", 4, 2)
	if room.LoopSize != 2 {
		t.Errorf("LoopSize 2 should be kept, got %d", room.LoopSize)
	}
}

func TestClone_IsDeep(t *testing.T) {
	room := NewRoom("ABCD", "Test Room", 4, 10)
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("p%d", i)
		if err := room.AddPlayer(id, fmt.Sprintf("Player%d", i)); err != nil {
			t.Fatalf("AddPlayer failed: %v", err)
		}
	}

	clone := room.Clone()
	clone.Players["p0"].Position = 7
	clone.RemovePlayer("p1")

	if room.Players["p0"].Position != 0 {
		t.Error("Mutating clone changed original player position")
	}
	if len(room.Players) != 3 {
		t.Error("Mutating clone changed original player set")
	}
}
