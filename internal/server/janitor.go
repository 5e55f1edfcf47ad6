package server

import (
	"context"
	"log"
	"time"
)

// janitorTask periodically reclaims rooms idle past the configured TTL. A
// failed sweep is logged and retried on the next tick; it never blocks
// subsequent sweeps. Deleting a record does not disconnect a live session —
// those connections keep operating in memory until they close naturally.
func (s *Server) janitorTask() {
	ticker := time.NewTicker(s.janitorInterval)
	defer ticker.Stop()

	for range ticker.C {
		s.sweepInactiveRooms(context.Background())
	}
}

// sweepInactiveRooms runs one janitor pass against the store.
func (s *Server) sweepInactiveRooms(ctx context.Context) {
	cutoff := time.Now().Add(-s.roomTTL)

	deleted, err := s.store.DeleteInactiveBefore(ctx, cutoff)
	if err != nil {
		log.Printf("Janitor sweep failed: %v", err)
		return
	}

	if deleted > 0 {
		log.Printf("Janitor sweep: deleted %d inactive rooms", deleted)
	}
}
