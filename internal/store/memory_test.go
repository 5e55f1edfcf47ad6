package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"loopwalk-server/internal/game"
)

func TestMemory_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	room := game.NewRoom("ABCD", "Test Room", 3, 10)
	if err := s.Create(ctx, room); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	loaded, err := s.Get(ctx, "ABCD")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if loaded.Name != "Test Room" || loaded.MaxPlayers != 3 || loaded.LoopSize != 10 {
		t.Errorf("Loaded room mismatch: %+v", loaded)
	}
}

func TestMemory_CreateDuplicateFails(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	room := game.NewRoom("ABCD", "Test Room", 3, 10)
	if err := s.Create(ctx, room); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := s.Create(ctx, room); err == nil {
		t.Error("Duplicate Create should fail")
	}
}

func TestMemory_GetNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	_, err := s.Get(ctx, "ZZZZ")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestMemory_GetReturnsIsolatedCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	room := game.NewRoom("ABCD", "Test Room", 3, 10)
	if err := room.AddPlayer("p1", "Alice"); err != nil {
		t.Fatalf("AddPlayer failed: %v", err)
	}
	if err := s.Create(ctx, room); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	first, _ := s.Get(ctx, "ABCD")
	first.Players["p1"].Position = 5

	second, _ := s.Get(ctx, "ABCD")
	if second.Players["p1"].Position != 0 {
		t.Error("Mutating a Get result leaked into the store")
	}
}

func TestMemory_PutIsLastWriteWins(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	room := game.NewRoom("ABCD", "Test Room", 3, 10)
	if err := s.Create(ctx, room); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := room.AddPlayer("p1", "Alice"); err != nil {
		t.Fatalf("AddPlayer failed: %v", err)
	}
	if err := s.Put(ctx, room); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	loaded, err := s.Get(ctx, "ABCD")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(loaded.Players) != 1 {
		t.Errorf("Put not reflected: got %d players, want 1", len(loaded.Players))
	}
}

func TestMemory_Delete(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	room := game.NewRoom("ABCD", "Test Room", 3, 10)
	if err := s.Create(ctx, room); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	existed, err := s.Delete(ctx, "ABCD")
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !existed {
		t.Error("Delete should report the record existed")
	}

	existed, err = s.Delete(ctx, "ABCD")
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if existed {
		t.Error("Second delete should report no record")
	}
}

func TestMemory_ListActiveSince(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	old := game.NewRoom("OLDR", "Old Room", 3, 10)
	old.LastActiveAt = time.Now().Add(-2 * time.Hour)
	if err := s.Create(ctx, old); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	fresh := game.NewRoom("NEWR", "New Room", 3, 10)
	if err := s.Create(ctx, fresh); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	rooms, err := s.ListActiveSince(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("ListActiveSince failed: %v", err)
	}
	if len(rooms) != 1 || rooms[0].ID != "NEWR" {
		t.Errorf("Expected only NEWR, got %d rooms", len(rooms))
	}
}

func TestMemory_DeleteInactiveBefore(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	stale := game.NewRoom("STAL", "Stale Room", 3, 10)
	stale.LastActiveAt = time.Now().Add(-2 * time.Hour)
	if err := s.Create(ctx, stale); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	active := game.NewRoom("LIVE", "Live Room", 3, 10)
	if err := s.Create(ctx, active); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	deleted, err := s.DeleteInactiveBefore(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("DeleteInactiveBefore failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 deletion, got %d", deleted)
	}

	if _, err := s.Get(ctx, "STAL"); !errors.Is(err, ErrNotFound) {
		t.Error("Stale room should be gone")
	}
	if _, err := s.Get(ctx, "LIVE"); err != nil {
		t.Errorf("Active room should survive: %v", err)
	}
}
